// Package store persists pipeline run state and gold rows in Postgres.
package store

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/trackops/slapipe/internal/report"
)

// DB is a minimal interface to allow mocking in tests.
type DB interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

// Run states.
const (
	StatusQueued    = "queued"
	StatusRunning   = "running"
	StatusSucceeded = "succeeded"
	StatusFailed    = "failed"
)

// Run is one pipeline execution.
type Run struct {
	ID        string            `json:"id"`
	ObjectKey string            `json:"object_key"`
	Status    string            `json:"status"`
	Error     *string           `json:"error,omitempty"`
	Artifacts map[string]string `json:"artifacts,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
	UpdatedAt time.Time         `json:"updated_at"`
}

// CreateRun records a queued run.
func CreateRun(ctx context.Context, db DB, id, objectKey string) error {
	_, err := db.Exec(ctx, `insert into pipeline_runs (id, object_key, status) values ($1, $2, $3)`, id, objectKey, StatusQueued)
	return err
}

// MarkRunning transitions a run to running. Jobs enqueued outside the API
// (runctl) have no ledger row yet, so this upserts.
func MarkRunning(ctx context.Context, db DB, id, objectKey string) error {
	_, err := db.Exec(ctx, `insert into pipeline_runs (id, object_key, status) values ($1, $2, $3)
		on conflict (id) do update set status=excluded.status, updated_at=now()`, id, objectKey, StatusRunning)
	return err
}

// MarkSucceeded records the artifact keys of a finished run.
func MarkSucceeded(ctx context.Context, db DB, id string, artifacts map[string]string) error {
	b, err := json.Marshal(artifacts)
	if err != nil {
		return err
	}
	_, err = db.Exec(ctx, `update pipeline_runs set status=$1, artifacts=$2, updated_at=now() where id=$3`, StatusSucceeded, b, id)
	return err
}

// MarkFailed records a run failure.
func MarkFailed(ctx context.Context, db DB, id, msg string) error {
	_, err := db.Exec(ctx, `update pipeline_runs set status=$1, error=$2, updated_at=now() where id=$3`, StatusFailed, msg, id)
	return err
}

// GetRun fetches one run by id.
func GetRun(ctx context.Context, db DB, id string) (*Run, error) {
	var r Run
	var artifacts []byte
	err := db.QueryRow(ctx, `select id::text, object_key, status, error, artifacts, created_at, updated_at from pipeline_runs where id=$1`, id).
		Scan(&r.ID, &r.ObjectKey, &r.Status, &r.Error, &artifacts, &r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if len(artifacts) > 0 {
		_ = json.Unmarshal(artifacts, &r.Artifacts)
	}
	return &r, nil
}

// InsertEvaluated upserts gold rows for a run. Row-level problems stay
// sentinel values (nulls) in the table; an exec error aborts the batch.
func InsertEvaluated(ctx context.Context, db DB, runID string, rows []report.Row) error {
	const q = `insert into evaluated_tickets
		(run_id, issue_id, issue_type, status, priority, assignee_name, dt_created, dt_resolved, resolution_hours, sla_expected_hours, is_sla_met)
		values ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
		on conflict (run_id, issue_id) do update set
		resolution_hours=excluded.resolution_hours, sla_expected_hours=excluded.sla_expected_hours, is_sla_met=excluded.is_sla_met`
	for _, r := range rows {
		_, err := db.Exec(ctx, q,
			runID, r.IssueID, r.IssueType, r.Status, r.Priority, r.AssigneeName,
			timeOrNil(r.CreatedAt), timeOrNil(r.ResolvedAt),
			r.ResolutionHours, r.ExpectedHours, string(r.Verdict))
		if err != nil {
			return err
		}
	}
	return nil
}

func timeOrNil(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return t.UTC()
}
