// Package sla computes business-duration resolution times and SLA
// compliance verdicts for issue-tracker tickets.
//
// Duration policy: every calendar day between creation and resolution
// (inclusive) that is neither a weekend nor a holiday contributes a full
// 24 hours, regardless of where the interval falls within the day.
package sla

import (
	"math"
	"strings"
	"time"
)

// Verdict is the tri-state SLA compliance outcome. Unknown means the
// verdict could not be determined from the available data, which is
// distinct from a violation.
type Verdict string

const (
	VerdictMet      Verdict = "met"
	VerdictViolated Verdict = "violated"
	VerdictUnknown  Verdict = "unknown"
)

// Expected resolution targets in hours by normalized priority.
var expectedByPriority = map[string]float64{
	"high":   24,
	"medium": 72,
	"low":    120,
}

// Calendar is an immutable set of non-working dates. Weekends are derived
// from the weekday; holidays come from the set supplied at construction.
type Calendar struct {
	holidays map[time.Time]struct{}
}

// NewCalendar builds a Calendar from explicit holiday dates. Time-of-day
// and zone information on the inputs is discarded; dates are keyed at
// midnight UTC.
func NewCalendar(holidays []time.Time) *Calendar {
	set := make(map[time.Time]struct{}, len(holidays))
	for _, d := range holidays {
		set[midnightUTC(d)] = struct{}{}
	}
	return &Calendar{holidays: set}
}

// HolidayCount reports the number of distinct holiday dates in the calendar.
func (c *Calendar) HolidayCount() int { return len(c.holidays) }

// IsNonWorkingDay reports whether t falls on a Saturday, Sunday, or a
// holiday in the calendar.
func (c *Calendar) IsNonWorkingDay(t time.Time) bool {
	day := midnightUTC(t)
	if wd := day.Weekday(); wd == time.Saturday || wd == time.Sunday {
		return true
	}
	_, ok := c.holidays[day]
	return ok
}

// Input is the slice of a ticket the engine needs. Nil timestamps mean
// missing or unparseable source values.
type Input struct {
	CreatedAt  *time.Time
	ResolvedAt *time.Time
	Priority   string
}

// Result holds the three derived SLA fields. Nil hours values mean the
// quantity is undefined for this ticket.
type Result struct {
	ResolutionHours *float64
	ExpectedHours   *float64
	Verdict         Verdict
}

// Evaluate derives the SLA fields for a single ticket. It is pure: the
// input and calendar are never mutated, and tickets are independent of
// one another.
func Evaluate(in Input, cal *Calendar) Result {
	res := BusinessHours(in.CreatedAt, in.ResolvedAt, cal)
	exp := ExpectedHours(in.Priority)
	return Result{
		ResolutionHours: res,
		ExpectedHours:   exp,
		Verdict:         Classify(res, exp),
	}
}

// BusinessHours returns the elapsed hours between created and resolved
// counting only working days, or nil when either timestamp is missing.
// An interval that ends at or before its start clamps to zero; that is
// policy, not an error.
func BusinessHours(created, resolved *time.Time, cal *Calendar) *float64 {
	if created == nil || resolved == nil {
		return nil
	}
	if !resolved.After(*created) {
		zero := 0.0
		return &zero
	}
	// Normalize to UTC before any day arithmetic; mixed offsets would
	// corrupt the day boundaries.
	cur := midnightUTC(*created)
	last := midnightUTC(*resolved)
	hours := 0.0
	for !cur.After(last) {
		if !cal.IsNonWorkingDay(cur) {
			hours += 24
		}
		cur = cur.AddDate(0, 0, 1)
	}
	return &hours
}

// ExpectedHours maps a priority string to its SLA target. Matching is
// insensitive to case and surrounding whitespace; unrecognized priorities
// yield nil.
func ExpectedHours(priority string) *float64 {
	h, ok := expectedByPriority[strings.ToLower(strings.TrimSpace(priority))]
	if !ok {
		return nil
	}
	return &h
}

// Classify compares resolution hours against the expected target.
// Equality counts as met. Either side missing or NaN yields Unknown.
func Classify(resolutionHours, expected *float64) Verdict {
	if resolutionHours == nil || expected == nil {
		return VerdictUnknown
	}
	if math.IsNaN(*resolutionHours) || math.IsNaN(*expected) {
		return VerdictUnknown
	}
	if *resolutionHours <= *expected {
		return VerdictMet
	}
	return VerdictViolated
}

func midnightUTC(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
