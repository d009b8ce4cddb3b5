// Package ingest implements the bronze stage: it decodes a raw
// issue-tracker JSON export and flattens the selected fields into rows.
//
// Export files in the wild are loosely shaped: per-issue "timestamps" and
// "assignee" appear either as an object or as a one-element array, and ids
// are sometimes numbers. The decoder tolerates all of those; only a
// structurally undecodable payload fails the stage.
package ingest

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/trackops/slapipe/internal/metrics"
)

// Row is one flattened bronze record. Nil timestamps mean the source
// value was absent or unparseable.
type Row struct {
	ProjectID     string
	ProjectName   string
	ExtractedAt   *time.Time
	IssueID       string
	IssueType     string
	Status        string
	Priority      string
	AssigneeID    string
	AssigneeName  string
	AssigneeEmail string
	CreatedAt     *time.Time
	ResolvedAt    *time.Time
}

// Header is the bronze CSV column order, shared by downstream stages.
var Header = []string{
	"project_id", "project_name", "dt_extracted",
	"issue_id", "issue_type", "status", "priority",
	"assignee_id", "assignee_name", "assignee_email",
	"dt_created", "dt_resolved",
}

type export struct {
	Project struct {
		ProjectID   flexString `json:"project_id"`
		ProjectName string     `json:"project_name"`
		ExtractedAt string     `json:"extracted_at"`
	} `json:"project"`
	Issues []issue `json:"issues"`
}

type issue struct {
	ID         flexString      `json:"id"`
	IssueType  string          `json:"issue_type"`
	Status     string          `json:"status"`
	Priority   string          `json:"priority"`
	Timestamps timestampsField `json:"timestamps"`
	Assignee   assigneeField   `json:"assignee"`
}

type timestamps struct {
	CreatedAt  string `json:"created_at"`
	ResolvedAt string `json:"resolved_at"`
}

type assignee struct {
	ID    flexString `json:"id"`
	Name  string     `json:"name"`
	Email string     `json:"email"`
}

// timestampsField accepts an object, a non-empty array (first element
// wins), null, or absence.
type timestampsField struct{ timestamps }

func (f *timestampsField) UnmarshalJSON(b []byte) error {
	return firstOrObject(b, &f.timestamps)
}

type assigneeField struct{ assignee }

func (f *assigneeField) UnmarshalJSON(b []byte) error {
	return firstOrObject(b, &f.assignee)
}

func firstOrObject(b []byte, dst any) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || string(b) == "null" {
		return nil
	}
	if b[0] == '[' {
		var raw []json.RawMessage
		if err := json.Unmarshal(b, &raw); err != nil {
			return err
		}
		if len(raw) == 0 {
			return nil
		}
		return json.Unmarshal(raw[0], dst)
	}
	return json.Unmarshal(b, dst)
}

// flexString decodes a JSON string or number into a string; null stays empty.
type flexString string

func (s *flexString) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || string(b) == "null" {
		return nil
	}
	if b[0] == '"' {
		var v string
		if err := json.Unmarshal(b, &v); err != nil {
			return err
		}
		*s = flexString(v)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*s = flexString(n.String())
	return nil
}

// Parse decodes a raw export and returns the flattened bronze rows in
// input order.
func Parse(r io.Reader) ([]Row, error) {
	var ex export
	dec := json.NewDecoder(r)
	dec.UseNumber()
	if err := dec.Decode(&ex); err != nil {
		return nil, fmt.Errorf("decode export: %w", err)
	}
	rows := make([]Row, 0, len(ex.Issues))
	for _, is := range ex.Issues {
		rows = append(rows, Row{
			ProjectID:     string(ex.Project.ProjectID),
			ProjectName:   ex.Project.ProjectName,
			ExtractedAt:   ParseTime(ex.Project.ExtractedAt),
			IssueID:       string(is.ID),
			IssueType:     is.IssueType,
			Status:        is.Status,
			Priority:      is.Priority,
			AssigneeID:    string(is.Assignee.ID),
			AssigneeName:  is.Assignee.Name,
			AssigneeEmail: is.Assignee.Email,
			CreatedAt:     ParseTime(is.Timestamps.CreatedAt),
			ResolvedAt:    ParseTime(is.Timestamps.ResolvedAt),
		})
	}
	metrics.TicketsIngested.Add(float64(len(rows)))
	return rows, nil
}

var timeLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// ParseTime coerces an ISO-8601-ish timestamp to UTC. Offset-less values
// are assumed UTC. Empty or unparseable input yields nil rather than an
// error; that is a per-record data-quality signal, not a failure.
func ParseTime(s string) *time.Time {
	if s == "" {
		return nil
	}
	for _, layout := range timeLayouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			t = t.UTC()
			return &t
		}
	}
	return nil
}

// FormatTime renders a timestamp in the pipeline's canonical ISO-8601 UTC
// form, or empty for nil.
func FormatTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format("2006-01-02T15:04:05Z")
}

// WriteCSV renders bronze rows as the stage's columnar artifact.
func WriteCSV(rows []Row, w io.Writer) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Header); err != nil {
		return err
	}
	for _, r := range rows {
		rec := []string{
			r.ProjectID, r.ProjectName, FormatTime(r.ExtractedAt),
			r.IssueID, r.IssueType, r.Status, r.Priority,
			r.AssigneeID, r.AssigneeName, r.AssigneeEmail,
			FormatTime(r.CreatedAt), FormatTime(r.ResolvedAt),
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
