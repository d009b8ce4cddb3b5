package ingest

import (
	"bytes"
	"strings"
	"testing"
	"time"
)

const sampleExport = `{
  "project": {"project_id": 42, "project_name": "fast track", "extracted_at": "2025-02-01T12:00:00Z"},
  "issues": [
    {
      "id": "ISS-1",
      "issue_type": "bug",
      "status": "done",
      "priority": "high",
      "timestamps": {"created_at": "2024-03-04T09:00:00Z", "resolved_at": "2024-03-05T09:00:00Z"},
      "assignee": {"id": 7, "name": "ana souza", "email": "ana@example.com"}
    },
    {
      "id": 2,
      "issue_type": "task",
      "status": "open",
      "priority": "low",
      "timestamps": [{"created_at": "2024-03-10T08:30:00+03:00"}],
      "assignee": []
    },
    {
      "id": "ISS-3",
      "issue_type": "task",
      "status": "done",
      "priority": "medium",
      "timestamps": {"created_at": "garbage", "resolved_at": null}
    }
  ]
}`

func TestParseFlexibleShapes(t *testing.T) {
	rows, err := Parse(strings.NewReader(sampleExport))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("expected 3 rows, got %d", len(rows))
	}

	r := rows[0]
	if r.ProjectID != "42" || r.ProjectName != "fast track" {
		t.Fatalf("unexpected project fields: %+v", r)
	}
	if r.IssueID != "ISS-1" || r.AssigneeID != "7" || r.AssigneeName != "ana souza" {
		t.Fatalf("unexpected issue fields: %+v", r)
	}
	if r.CreatedAt == nil || !r.CreatedAt.Equal(time.Date(2024, 3, 4, 9, 0, 0, 0, time.UTC)) {
		t.Fatalf("created_at = %v", r.CreatedAt)
	}

	// Array-shaped timestamps: first element, offset normalized to UTC.
	r = rows[1]
	if r.IssueID != "2" {
		t.Fatalf("numeric id not coerced: %q", r.IssueID)
	}
	if r.CreatedAt == nil || !r.CreatedAt.Equal(time.Date(2024, 3, 10, 5, 30, 0, 0, time.UTC)) {
		t.Fatalf("created_at = %v", r.CreatedAt)
	}
	if r.ResolvedAt != nil {
		t.Fatalf("open issue should have nil resolved_at, got %v", r.ResolvedAt)
	}
	if r.AssigneeName != "" {
		t.Fatalf("empty assignee array should leave fields empty")
	}

	// Unparseable timestamp coerces to nil, not an error.
	r = rows[2]
	if r.CreatedAt != nil || r.ResolvedAt != nil {
		t.Fatalf("expected nil timestamps, got %v / %v", r.CreatedAt, r.ResolvedAt)
	}
}

func TestParseRejectsMalformedPayload(t *testing.T) {
	if _, err := Parse(strings.NewReader(`{"issues": "nope"`)); err == nil {
		t.Fatal("expected structural decode error")
	}
}

func TestParseTimeLayouts(t *testing.T) {
	cases := map[string]time.Time{
		"2024-03-04T09:00:00Z":      time.Date(2024, 3, 4, 9, 0, 0, 0, time.UTC),
		"2024-03-04T09:00:00":       time.Date(2024, 3, 4, 9, 0, 0, 0, time.UTC),
		"2024-03-04 09:00:00":       time.Date(2024, 3, 4, 9, 0, 0, 0, time.UTC),
		"2024-03-04":                time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC),
		"2024-03-04T09:00:00-02:00": time.Date(2024, 3, 4, 11, 0, 0, 0, time.UTC),
	}
	for in, want := range cases {
		got := ParseTime(in)
		if got == nil || !got.Equal(want) {
			t.Fatalf("ParseTime(%q) = %v, want %v", in, got, want)
		}
	}
	if ParseTime("") != nil || ParseTime("03/04/2024") != nil {
		t.Fatal("expected nil for empty/unsupported input")
	}
}

func TestWriteCSV(t *testing.T) {
	rows, err := Parse(strings.NewReader(sampleExport))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	var buf bytes.Buffer
	if err := WriteCSV(rows, &buf); err != nil {
		t.Fatalf("WriteCSV: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 4 {
		t.Fatalf("expected header + 3 rows, got %d lines", len(lines))
	}
	if lines[0] != strings.Join(Header, ",") {
		t.Fatalf("unexpected header: %s", lines[0])
	}
	if !strings.Contains(lines[1], "2024-03-04T09:00:00Z") {
		t.Fatalf("timestamp not in canonical form: %s", lines[1])
	}
}
