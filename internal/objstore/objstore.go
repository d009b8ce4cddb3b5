// Package objstore abstracts the artifact store behind a narrow interface
// so pipeline stages can run against MinIO in production and the local
// filesystem in development and tests.
package objstore

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// ObjectStore wraps the subset of MinIO the pipeline needs.
type ObjectStore interface {
	PutObject(ctx context.Context, bucketName, objectName string, reader io.Reader, objectSize int64, opts minio.PutObjectOptions) (minio.UploadInfo, error)
	GetObject(ctx context.Context, bucketName, objectName string, opts minio.GetObjectOptions) (io.ReadCloser, error)
	StatObject(ctx context.Context, bucketName, objectName string, opts minio.StatObjectOptions) (minio.ObjectInfo, error)
}

// MinIO adapts *minio.Client to ObjectStore.
type MinIO struct {
	C *minio.Client
}

// NewMinIO connects to a MinIO/S3 endpoint with static credentials.
func NewMinIO(endpoint, access, secret string, useSSL bool) (*MinIO, error) {
	mc, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(access, secret, ""),
		Secure: useSSL,
	})
	if err != nil {
		return nil, err
	}
	return &MinIO{C: mc}, nil
}

func (m *MinIO) PutObject(ctx context.Context, bucketName, objectName string, reader io.Reader, objectSize int64, opts minio.PutObjectOptions) (minio.UploadInfo, error) {
	return m.C.PutObject(ctx, bucketName, objectName, reader, objectSize, opts)
}

func (m *MinIO) GetObject(ctx context.Context, bucketName, objectName string, opts minio.GetObjectOptions) (io.ReadCloser, error) {
	obj, err := m.C.GetObject(ctx, bucketName, objectName, opts)
	if err != nil {
		return nil, err
	}
	return obj, nil
}

func (m *MinIO) StatObject(ctx context.Context, bucketName, objectName string, opts minio.StatObjectOptions) (minio.ObjectInfo, error) {
	return m.C.StatObject(ctx, bucketName, objectName, opts)
}

// FS implements ObjectStore on the local filesystem for development and
// testing. Object names may contain slashes; paths are constrained to the
// base directory to prevent traversal.
type FS struct {
	Base string
}

func (f *FS) resolve(bucketName, objectName string) (string, error) {
	base := filepath.Clean(f.Base)
	dir := base
	if bucketName != "" {
		dir = filepath.Join(base, bucketName)
	}
	fp := filepath.Clean(filepath.Join(dir, filepath.FromSlash(objectName)))
	if !strings.HasPrefix(fp, dir+string(os.PathSeparator)) && fp != dir {
		return "", os.ErrPermission
	}
	return fp, nil
}

func (f *FS) PutObject(ctx context.Context, bucketName, objectName string, reader io.Reader, objectSize int64, opts minio.PutObjectOptions) (minio.UploadInfo, error) {
	_ = ctx
	_ = opts
	fp, err := f.resolve(bucketName, objectName)
	if err != nil {
		return minio.UploadInfo{}, err
	}
	if err := os.MkdirAll(filepath.Dir(fp), 0o755); err != nil {
		return minio.UploadInfo{}, err
	}
	tmp := fp + ".tmp"
	out, err := os.Create(tmp)
	if err != nil {
		return minio.UploadInfo{}, err
	}
	defer out.Close()
	if _, err := io.Copy(out, reader); err != nil {
		_ = os.Remove(tmp)
		return minio.UploadInfo{}, err
	}
	if err := os.Rename(tmp, fp); err != nil {
		return minio.UploadInfo{}, err
	}
	return minio.UploadInfo{Bucket: bucketName, Key: objectName, Size: objectSize}, nil
}

func (f *FS) GetObject(ctx context.Context, bucketName, objectName string, opts minio.GetObjectOptions) (io.ReadCloser, error) {
	_ = ctx
	_ = opts
	fp, err := f.resolve(bucketName, objectName)
	if err != nil {
		return nil, err
	}
	return os.Open(fp)
}

func (f *FS) StatObject(ctx context.Context, bucketName, objectName string, opts minio.StatObjectOptions) (minio.ObjectInfo, error) {
	_ = ctx
	_ = opts
	fp, err := f.resolve(bucketName, objectName)
	if err != nil {
		return minio.ObjectInfo{}, err
	}
	fi, err := os.Stat(fp)
	if err != nil {
		return minio.ObjectInfo{}, err
	}
	return minio.ObjectInfo{Key: objectName, Size: fi.Size()}, nil
}
