// Package holiday resolves public-holiday dates per calendar year and
// assembles them into the engine's non-working-day calendar.
package holiday

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"time"

	"github.com/rickar/cal/v2"
	"github.com/rickar/cal/v2/br"
	"github.com/rs/zerolog/log"
	"github.com/sethvargo/go-retry"

	"github.com/trackops/slapipe/internal/metrics"
	slapkg "github.com/trackops/slapipe/internal/sla"
)

// Provider resolves the public holidays of a single year. Implementations
// must behave as a pure year->dates mapping.
type Provider interface {
	Holidays(ctx context.Context, year int) ([]time.Time, error)
}

// BuildCalendar resolves holidays for the distinct years given and freezes
// them into a Calendar. Each year is fetched once. A year whose lookup
// fails contributes no holidays; the batch still runs with weekends-only
// exclusion for that year (fail-open).
func BuildCalendar(ctx context.Context, p Provider, years []int) *slapkg.Calendar {
	seen := make(map[int]struct{}, len(years))
	var dates []time.Time
	for _, y := range years {
		if _, ok := seen[y]; ok {
			continue
		}
		seen[y] = struct{}{}
		ds, err := p.Holidays(ctx, y)
		if err != nil {
			metrics.HolidayFetchFailures.Inc()
			log.Ctx(ctx).Warn().Err(err).Int("year", y).Msg("holiday lookup failed; treating year as holiday-free")
			continue
		}
		dates = append(dates, ds...)
	}
	return slapkg.NewCalendar(dates)
}

// Years returns the sorted distinct calendar years covering every
// timestamp given, filled in as an inclusive min..max range.
func Years(times []time.Time) []int {
	if len(times) == 0 {
		return nil
	}
	minY, maxY := times[0].UTC().Year(), times[0].UTC().Year()
	for _, t := range times[1:] {
		y := t.UTC().Year()
		if y < minY {
			minY = y
		}
		if y > maxY {
			maxY = y
		}
	}
	years := make([]int, 0, maxY-minY+1)
	for y := minY; y <= maxY; y++ {
		years = append(years, y)
	}
	return years
}

// HTTPProvider fetches holidays from a BrasilAPI-compatible endpoint
// (GET {base}/{year} returning [{"date":"2006-01-02",...},...]). The base
// URL is injected; the provider has no built-in endpoint.
type HTTPProvider struct {
	BaseURL string
	Client  *http.Client
	// MaxRetries bounds retry attempts per year; zero means 3.
	MaxRetries uint64
}

type holidayRecord struct {
	Date string `json:"date"`
	Name string `json:"name"`
}

// Holidays fetches one year's holidays, retrying transient failures with
// fibonacci backoff. Records with unparseable dates are skipped
// individually rather than failing the year.
func (p *HTTPProvider) Holidays(ctx context.Context, year int) ([]time.Time, error) {
	client := p.Client
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	maxRetries := p.MaxRetries
	if maxRetries == 0 {
		maxRetries = 3
	}
	url := fmt.Sprintf("%s/%d", p.BaseURL, year)

	var records []holidayRecord
	backoff := retry.WithMaxRetries(maxRetries, retry.NewFibonacci(500*time.Millisecond))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return err
		}
		resp, err := client.Do(req)
		if err != nil {
			return retry.RetryableError(err)
		}
		defer resp.Body.Close()
		if resp.StatusCode >= 500 {
			return retry.RetryableError(fmt.Errorf("holiday source returned %d", resp.StatusCode))
		}
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("holiday source returned %d", resp.StatusCode)
		}
		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return retry.RetryableError(err)
		}
		records = records[:0]
		return json.Unmarshal(body, &records)
	})
	if err != nil {
		return nil, err
	}

	dates := make([]time.Time, 0, len(records))
	for _, r := range records {
		d, err := time.ParseInLocation("2006-01-02", r.Date, time.UTC)
		if err != nil {
			log.Ctx(ctx).Warn().Str("date", r.Date).Int("year", year).Msg("skipping malformed holiday record")
			continue
		}
		dates = append(dates, d)
	}
	return dates, nil
}

// StaticProvider derives Brazilian national holidays from the rickar/cal
// definitions, with no network dependency. Used by the one-shot runner
// and as an offline fallback.
type StaticProvider struct{}

// Holidays returns every observed Brazilian national holiday of the year.
func (StaticProvider) Holidays(_ context.Context, year int) ([]time.Time, error) {
	c := cal.NewBusinessCalendar()
	c.AddHoliday(br.Holidays...)
	var dates []time.Time
	day := time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC)
	for day.Year() == year {
		if actual, observed, _ := c.IsHoliday(day); actual || observed {
			dates = append(dates, day)
		}
		day = day.AddDate(0, 0, 1)
	}
	sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })
	return dates, nil
}
