// Package pipeline orchestrates the bronze -> silver -> gold stages for
// one raw export object.
package pipeline

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/rs/zerolog/log"
	"github.com/sethvargo/go-retry"

	"github.com/trackops/slapipe/internal/holiday"
	"github.com/trackops/slapipe/internal/ingest"
	"github.com/trackops/slapipe/internal/metrics"
	"github.com/trackops/slapipe/internal/objstore"
	"github.com/trackops/slapipe/internal/refine"
	"github.com/trackops/slapipe/internal/report"
)

// Pipeline holds the collaborators for a run. All endpoints and buckets
// are injected; the pipeline carries no implicit environment dependence.
type Pipeline struct {
	Store    objstore.ObjectStore
	Bucket   string
	Holidays holiday.Provider
	// DownloadRetries bounds raw-export download attempts; zero means 3.
	DownloadRetries uint64
}

// Artifacts maps artifact names to the object keys written for a run.
type Artifacts map[string]string

// RunResult reports what a completed run produced.
type RunResult struct {
	Artifacts Artifacts
	Ingested  int
	Gold      report.Output
}

// Run executes the three stages for the export at inputKey, writing every
// artifact under prefix. Record-level data problems surface as sentinel
// values in the gold table; only structural failures (store, decode)
// return an error.
func (p *Pipeline) Run(ctx context.Context, inputKey, prefix string) (*RunResult, error) {
	raw, err := p.download(ctx, inputKey)
	if err != nil {
		return nil, fmt.Errorf("download %s: %w", inputKey, err)
	}

	// Bronze: decode and flatten.
	start := time.Now()
	rows, err := ingest.Parse(bytes.NewReader(raw))
	if err != nil {
		return nil, err
	}
	artifacts := Artifacts{}
	if err := p.putCSV(ctx, artifacts, "bronze", path.Join(prefix, "bronze", "bronze_issues.csv"), func(w io.Writer) error {
		return ingest.WriteCSV(rows, w)
	}); err != nil {
		return nil, err
	}
	metrics.StageDuration.WithLabelValues("bronze").Observe(time.Since(start).Seconds())
	log.Ctx(ctx).Info().Int("issues", len(rows)).Msg("bronze stage complete")

	// Silver: clean and normalize.
	start = time.Now()
	records := refine.Normalize(rows)
	if err := p.putCSV(ctx, artifacts, "silver", path.Join(prefix, "silver", "silver_issues.csv"), func(w io.Writer) error {
		return refine.WriteCSV(records, w)
	}); err != nil {
		return nil, err
	}
	metrics.StageDuration.WithLabelValues("silver").Observe(time.Since(start).Seconds())

	// Gold: build the calendar once for the whole batch, then evaluate.
	start = time.Now()
	cal := holiday.BuildCalendar(ctx, p.Holidays, holiday.Years(spanned(records)))
	out := report.Build(records, cal)
	goldWriters := []struct {
		name   string
		key    string
		render func(io.Writer) error
	}{
		{"gold", path.Join(prefix, "gold", "gold_sla_issues.csv"), out.WriteRows},
		{"report_by_assignee", path.Join(prefix, "gold", "gold_sla_by_assignee.csv"), out.WriteByAssignee},
		{"report_by_issue_type", path.Join(prefix, "gold", "gold_sla_by_issue_type.csv"), out.WriteByIssueType},
		{"report_distribution", path.Join(prefix, "gold", "gold_sla_distribution.csv"), out.WriteDistribution},
	}
	for _, gw := range goldWriters {
		if err := p.putCSV(ctx, artifacts, gw.name, gw.key, gw.render); err != nil {
			return nil, err
		}
	}
	metrics.StageDuration.WithLabelValues("gold").Observe(time.Since(start).Seconds())
	log.Ctx(ctx).Info().Int("evaluated", len(out.Rows)).Int("holidays", cal.HolidayCount()).Msg("gold stage complete")

	return &RunResult{Artifacts: artifacts, Ingested: len(rows), Gold: out}, nil
}

func (p *Pipeline) download(ctx context.Context, key string) ([]byte, error) {
	maxRetries := p.DownloadRetries
	if maxRetries == 0 {
		maxRetries = 3
	}
	var raw []byte
	backoff := retry.WithMaxRetries(maxRetries, retry.NewFibonacci(time.Second))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		rc, err := p.Store.GetObject(ctx, p.Bucket, key, minio.GetObjectOptions{})
		if err != nil {
			return retry.RetryableError(err)
		}
		defer rc.Close()
		raw, err = io.ReadAll(rc)
		if err != nil {
			return retry.RetryableError(err)
		}
		return nil
	})
	return raw, err
}

func (p *Pipeline) putCSV(ctx context.Context, artifacts Artifacts, name, key string, render func(io.Writer) error) error {
	buf := &bytes.Buffer{}
	if err := render(buf); err != nil {
		return fmt.Errorf("render %s: %w", name, err)
	}
	_, err := p.Store.PutObject(ctx, p.Bucket, key, bytes.NewReader(buf.Bytes()), int64(buf.Len()), minio.PutObjectOptions{ContentType: "text/csv"})
	if err != nil {
		return fmt.Errorf("put %s: %w", key, err)
	}
	artifacts[name] = key
	return nil
}

func spanned(records []refine.Record) []time.Time {
	var out []time.Time
	for _, r := range records {
		if r.CreatedAt != nil {
			out = append(out, *r.CreatedAt)
		}
		if r.ResolvedAt != nil {
			out = append(out, *r.ResolvedAt)
		}
	}
	return out
}
