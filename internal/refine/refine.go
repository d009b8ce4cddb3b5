// Package refine implements the silver stage: bronze rows are cleaned
// into canonical records with Title Case categorical text and
// UTC-normalized timestamps. All issues are kept here, open or resolved;
// filtering happens in the gold stage.
package refine

import (
	"encoding/csv"
	"io"
	"strings"
	"time"
	"unicode"

	"github.com/trackops/slapipe/internal/ingest"
)

// Record is one cleaned silver row.
type Record struct {
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

// Normalize cleans bronze rows into silver records. Categorical text
// (issue type, status, priority, names) is Title Cased; identifiers and
// email addresses pass through untouched.
func Normalize(rows []ingest.Row) []Record {
	out := make([]Record, 0, len(rows))
	for _, r := range rows {
		out = append(out, Record{
			ProjectID:     r.ProjectID,
			ProjectName:   TitleCase(r.ProjectName),
			ExtractedAt:   r.ExtractedAt,
			IssueID:       r.IssueID,
			IssueType:     TitleCase(r.IssueType),
			Status:        TitleCase(r.Status),
			Priority:      TitleCase(r.Priority),
			AssigneeID:    r.AssigneeID,
			AssigneeName:  TitleCase(r.AssigneeName),
			AssigneeEmail: r.AssigneeEmail,
			CreatedAt:     r.CreatedAt,
			ResolvedAt:    r.ResolvedAt,
		})
	}
	return out
}

// TitleCase uppercases the first letter of each space-separated word and
// lowercases the rest: "in progress" -> "In Progress".
func TitleCase(s string) string {
	words := strings.Fields(strings.TrimSpace(s))
	for i, w := range words {
		runes := []rune(strings.ToLower(w))
		runes[0] = unicode.ToUpper(runes[0])
		words[i] = string(runes)
	}
	return strings.Join(words, " ")
}

// WriteCSV renders silver records with the same column order as bronze.
func WriteCSV(records []Record, w io.Writer) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(ingest.Header); err != nil {
		return err
	}
	for _, r := range records {
		rec := []string{
			r.ProjectID, r.ProjectName, ingest.FormatTime(r.ExtractedAt),
			r.IssueID, r.IssueType, r.Status, r.Priority,
			r.AssigneeID, r.AssigneeName, r.AssigneeEmail,
			ingest.FormatTime(r.CreatedAt), ingest.FormatTime(r.ResolvedAt),
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
