// Package report implements the gold stage: resolved issues are scored
// against their SLA targets and aggregated into the published reports.
package report

import (
	"encoding/csv"
	"io"
	"math"
	"sort"
	"strconv"

	"github.com/trackops/slapipe/internal/ingest"
	"github.com/trackops/slapipe/internal/metrics"
	"github.com/trackops/slapipe/internal/refine"
	slapkg "github.com/trackops/slapipe/internal/sla"
)

// Row is a silver record augmented with the three derived SLA columns.
type Row struct {
	refine.Record
	slapkg.Result
}

// GroupStat is one line of the by-assignee and by-issue-type reports.
type GroupStat struct {
	Key                string
	IssueCount         int
	AvgResolutionHours *float64
}

// VerdictStat is one line of the verdict distribution report.
type VerdictStat struct {
	Verdict    slapkg.Verdict
	IssueCount int
	Percentage float64
}

// Output bundles the gold row table and its aggregated reports.
type Output struct {
	Rows         []Row
	ByAssignee   []GroupStat
	ByIssueType  []GroupStat
	Distribution []VerdictStat
}

// resolved statuses eligible for SLA evaluation, post title-casing.
var resolvedStatuses = map[string]bool{"Done": true, "Resolved": true}

// Build filters silver records down to resolved issues, evaluates each
// against the calendar, and computes the aggregate reports. Tickets are
// independent; the calendar is read-only throughout.
func Build(records []refine.Record, cal *slapkg.Calendar) Output {
	var rows []Row
	for _, rec := range records {
		if !resolvedStatuses[rec.Status] || rec.ResolvedAt == nil {
			continue
		}
		res := slapkg.Evaluate(slapkg.Input{
			CreatedAt:  rec.CreatedAt,
			ResolvedAt: rec.ResolvedAt,
			Priority:   rec.Priority,
		}, cal)
		metrics.TicketsEvaluated.WithLabelValues(string(res.Verdict)).Inc()
		rows = append(rows, Row{Record: rec, Result: res})
	}
	return Output{
		Rows:         rows,
		ByAssignee:   groupBy(rows, func(r Row) string { return r.AssigneeName }),
		ByIssueType:  groupBy(rows, func(r Row) string { return r.IssueType }),
		Distribution: distribution(rows),
	}
}

func groupBy(rows []Row, key func(Row) string) []GroupStat {
	type agg struct {
		count int
		sum   float64
		n     int
	}
	groups := map[string]*agg{}
	for _, r := range rows {
		k := key(r)
		g, ok := groups[k]
		if !ok {
			g = &agg{}
			groups[k] = g
		}
		g.count++
		if r.ResolutionHours != nil {
			g.sum += *r.ResolutionHours
			g.n++
		}
	}
	keys := make([]string, 0, len(groups))
	for k := range groups {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]GroupStat, 0, len(keys))
	for _, k := range keys {
		g := groups[k]
		stat := GroupStat{Key: k, IssueCount: g.count}
		if g.n > 0 {
			avg := g.sum / float64(g.n)
			stat.AvgResolutionHours = &avg
		}
		out = append(out, stat)
	}
	return out
}

func distribution(rows []Row) []VerdictStat {
	counts := map[slapkg.Verdict]int{}
	for _, r := range rows {
		counts[r.Verdict]++
	}
	verdicts := make([]slapkg.Verdict, 0, len(counts))
	for v := range counts {
		verdicts = append(verdicts, v)
	}
	sort.Slice(verdicts, func(i, j int) bool { return verdicts[i] < verdicts[j] })
	out := make([]VerdictStat, 0, len(verdicts))
	for _, v := range verdicts {
		pct := 0.0
		if len(rows) > 0 {
			pct = math.Round(float64(counts[v])/float64(len(rows))*100*100) / 100
		}
		out = append(out, VerdictStat{Verdict: v, IssueCount: counts[v], Percentage: pct})
	}
	return out
}

// RowHeader is the gold row-table column order: every silver column plus
// the three derived SLA columns.
var RowHeader = append(append([]string{}, ingest.Header...),
	"resolution_hours", "sla_expected_hours", "is_sla_met")

// WriteRows renders the gold row-level table.
func (o Output) WriteRows(w io.Writer) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(RowHeader); err != nil {
		return err
	}
	for _, r := range o.Rows {
		rec := []string{
			r.ProjectID, r.ProjectName, ingest.FormatTime(r.ExtractedAt),
			r.IssueID, r.IssueType, r.Status, r.Priority,
			r.AssigneeID, r.AssigneeName, r.AssigneeEmail,
			ingest.FormatTime(r.CreatedAt), ingest.FormatTime(r.ResolvedAt),
			formatHours(r.ResolutionHours), formatHours(r.ExpectedHours), string(r.Verdict),
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteByAssignee renders the average-resolution report keyed by assignee.
func (o Output) WriteByAssignee(w io.Writer) error {
	return writeGroups(w, "assignee_name", o.ByAssignee)
}

// WriteByIssueType renders the average-resolution report keyed by issue type.
func (o Output) WriteByIssueType(w io.Writer) error {
	return writeGroups(w, "issue_type", o.ByIssueType)
}

// WriteDistribution renders the met/violated/unknown distribution report.
func (o Output) WriteDistribution(w io.Writer) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"is_sla_met", "issue_count", "percentage"}); err != nil {
		return err
	}
	for _, s := range o.Distribution {
		rec := []string{string(s.Verdict), strconv.Itoa(s.IssueCount), strconv.FormatFloat(s.Percentage, 'f', 2, 64)}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func writeGroups(w io.Writer, keyName string, stats []GroupStat) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{keyName, "issue_count", "avg_resolution_hours"}); err != nil {
		return err
	}
	for _, s := range stats {
		rec := []string{s.Key, strconv.Itoa(s.IssueCount), formatHours(s.AvgResolutionHours)}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func formatHours(f *float64) string {
	if f == nil {
		return ""
	}
	return strconv.FormatFloat(*f, 'f', -1, 64)
}
