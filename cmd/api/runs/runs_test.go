package runs

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/redis/go-redis/v9"

	apppkg "github.com/trackops/slapipe/cmd/api/app"
	"github.com/trackops/slapipe/internal/objstore"
)

type fakeRun struct {
	id, objectKey, status string
	artifacts             []byte
}

type fakeDB struct {
	runs  map[string]fakeRun
	execs []string
}

func (db *fakeDB) Query(context.Context, string, ...interface{}) (pgx.Rows, error) {
	return nil, pgx.ErrNoRows
}

func (db *fakeDB) QueryRow(_ context.Context, _ string, args ...interface{}) pgx.Row {
	id, _ := args[0].(string)
	r, ok := db.runs[id]
	return &fakeRow{run: r, missing: !ok}
}

func (db *fakeDB) Exec(_ context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error) {
	db.execs = append(db.execs, sql)
	if strings.Contains(sql, "insert into pipeline_runs") {
		if db.runs == nil {
			db.runs = map[string]fakeRun{}
		}
		id := args[0].(string)
		db.runs[id] = fakeRun{id: id, objectKey: args[1].(string), status: args[2].(string)}
	}
	return pgconn.CommandTag{}, nil
}

type fakeRow struct {
	run     fakeRun
	missing bool
}

func (r *fakeRow) Scan(dest ...interface{}) error {
	if r.missing {
		return pgx.ErrNoRows
	}
	*(dest[0].(*string)) = r.run.id
	*(dest[1].(*string)) = r.run.objectKey
	*(dest[2].(*string)) = r.run.status
	*(dest[4].(*[]byte)) = r.run.artifacts
	*(dest[5].(*time.Time)) = time.Now()
	*(dest[6].(*time.Time)) = time.Now()
	return nil
}

func newTestApp(t *testing.T, db *fakeDB) (*apppkg.App, *miniredis.Miniredis) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	mr := miniredis.RunT(t)
	q := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	a := apppkg.NewApp(apppkg.Config{Env: "test"}, db, q)
	a.R.POST("/runs", a.Limit.PerIP(), Create(a))
	a.R.GET("/runs/:id", Get(a))
	a.R.GET("/runs/:id/artifacts/:name", Artifact(a))
	return a, mr
}

func TestCreateEnqueuesRun(t *testing.T) {
	db := &fakeDB{}
	a, mr := newTestApp(t, db)

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/runs", strings.NewReader(`{"object_key":"raw/jira_issues_raw.json"}`))
	req.Header.Set("Content-Type", "application/json")
	a.R.ServeHTTP(rr, req)

	if rr.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", rr.Code, rr.Body.String())
	}
	var out map[string]string
	if err := json.Unmarshal(rr.Body.Bytes(), &out); err != nil {
		t.Fatal(err)
	}
	if out["status"] != "queued" || out["id"] == "" {
		t.Fatalf("unexpected response: %v", out)
	}

	jobs, err := mr.List("jobs")
	if err != nil || len(jobs) != 1 {
		t.Fatalf("expected 1 queued job, got %v (%v)", jobs, err)
	}
	if !strings.Contains(jobs[0], `"run_pipeline"`) || !strings.Contains(jobs[0], out["id"]) {
		t.Fatalf("unexpected job payload: %s", jobs[0])
	}
}

func TestCreateRequiresObjectKey(t *testing.T) {
	a, _ := newTestApp(t, &fakeDB{})
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/runs", strings.NewReader(`{}`))
	req.Header.Set("Content-Type", "application/json")
	a.R.ServeHTTP(rr, req)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
}

func TestGetRun(t *testing.T) {
	db := &fakeDB{runs: map[string]fakeRun{
		"r1": {id: "r1", objectKey: "raw/x.json", status: "succeeded", artifacts: []byte(`{"gold":"runs/r1/gold/gold_sla_issues.csv"}`)},
	}}
	a, _ := newTestApp(t, db)

	rr := httptest.NewRecorder()
	a.R.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/runs/r1", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	var out map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &out); err != nil {
		t.Fatal(err)
	}
	if out["status"] != "succeeded" {
		t.Fatalf("unexpected body: %v", out)
	}
	arts, _ := out["artifacts"].(map[string]any)
	if arts["gold"] != "runs/r1/gold/gold_sla_issues.csv" {
		t.Fatalf("artifacts not returned: %v", out)
	}

	rr = httptest.NewRecorder()
	a.R.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/runs/missing", nil))
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rr.Code)
	}
}

func TestArtifactDownload(t *testing.T) {
	db := &fakeDB{runs: map[string]fakeRun{
		"r1": {id: "r1", objectKey: "raw/x.json", status: "succeeded", artifacts: []byte(`{"gold":"runs/r1/gold/gold_sla_issues.csv"}`)},
	}}
	a, _ := newTestApp(t, db)

	rr := httptest.NewRecorder()
	a.R.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/runs/r1/artifacts/gold", nil))
	if rr.Code != http.StatusNotImplemented {
		t.Fatalf("expected 501 without presigner, got %d", rr.Code)
	}

	mc, err := minio.New("localhost:9000", &minio.Options{Creds: credentials.NewStaticV4("k", "s", ""), Region: "us-east-1"})
	if err != nil {
		t.Fatal(err)
	}
	a.Presign = &objstore.Presigner{Client: mc, Bucket: "pipeline", MaxTTL: time.Hour}

	rr = httptest.NewRecorder()
	a.R.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/runs/r1/artifacts/gold", nil))
	if rr.Code != http.StatusFound {
		t.Fatalf("expected 302, got %d: %s", rr.Code, rr.Body.String())
	}
	loc := rr.Header().Get("Location")
	if !strings.Contains(loc, "gold_sla_issues.csv") || !strings.Contains(loc, "X-Amz-Signature") {
		t.Fatalf("unexpected redirect target %s", loc)
	}

	rr = httptest.NewRecorder()
	a.R.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/runs/r1/artifacts/nope", nil))
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown artifact, got %d", rr.Code)
	}
}
