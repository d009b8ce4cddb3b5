package objstore

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/minio/minio-go/v7"
)

// Presigner generates short-lived URLs for uploading raw exports and
// downloading run artifacts. Only available when the store is MinIO; the
// filesystem store has no presign equivalent.
type Presigner struct {
	Client *minio.Client
	Bucket string
	// MaxTTL limits the lifetime of generated URLs.
	MaxTTL time.Duration
}

// PresignPut creates a short-lived URL for uploading an object.
func (p Presigner) PresignPut(ctx context.Context, objectKey string, ttl time.Duration) (string, error) {
	if ttl <= 0 || ttl > p.MaxTTL {
		return "", fmt.Errorf("invalid ttl")
	}
	u, err := p.Client.PresignedPutObject(ctx, p.Bucket, objectKey, ttl)
	if err != nil {
		return "", err
	}
	return u.String(), nil
}

// PresignGet creates a short-lived URL for downloading an object with forced Content-Disposition.
func (p Presigner) PresignGet(ctx context.Context, objectKey, filename string, ttl time.Duration) (string, error) {
	if ttl <= 0 || ttl > p.MaxTTL {
		return "", fmt.Errorf("invalid ttl")
	}
	vals := url.Values{}
	if filename != "" {
		vals.Set("response-content-disposition", "attachment; filename=\""+filename+"\"")
	}
	u, err := p.Client.PresignedGetObject(ctx, p.Bucket, objectKey, ttl, vals)
	if err != nil {
		return "", err
	}
	return u.String(), nil
}
