package processor

import (
	"math"
	"testing"
	"time"

	"derivflow/models"
)

func ts(day string, hour int) time.Time {
	t, err := time.Parse("2006-01-02", day)
	if err != nil {
		panic(err)
	}
	return t.Add(time.Duration(hour) * time.Hour)
}

func TestCollapseMeanAveragesSameDay(t *testing.T) {
	samples := []Sample{
		{Time: ts("2026-08-01", 0), Value: 0.0001},
		{Time: ts("2026-08-01", 8), Value: 0.0002},
		{Time: ts("2026-08-01", 16), Value: 0.0003},
		{Time: ts("2026-08-02", 0), Value: 0.0004},
	}

	got := CollapseMean(samples)
	if len(got) != 2 {
		t.Fatalf("expected 2 daily points, got %d", len(got))
	}
	if got[0].Date != "2026-08-01" || math.Abs(got[0].Value-0.0002) > 1e-12 {
		t.Fatalf("unexpected first point: %+v", got[0])
	}
	if got[1].Date != "2026-08-02" || got[1].Value != 0.0004 {
		t.Fatalf("unexpected second point: %+v", got[1])
	}
}

func TestCollapseMeanDropsNonFinite(t *testing.T) {
	samples := []Sample{
		{Time: ts("2026-08-01", 0), Value: math.NaN()},
		{Time: ts("2026-08-01", 8), Value: 0.0004},
		{Time: ts("2026-08-02", 0), Value: math.Inf(1)},
	}

	got := CollapseMean(samples)
	if len(got) != 1 {
		t.Fatalf("expected 1 daily point, got %d: %+v", len(got), got)
	}
	if got[0].Value != 0.0004 {
		t.Fatalf("NaN leaked into the mean: %+v", got[0])
	}
}

func TestCollapseLastKeepsChronologicallyLastSample(t *testing.T) {
	// Samples arrive out of order; the 16:00 reading must win its day.
	samples := []Sample{
		{Time: ts("2026-08-01", 16), Value: 300},
		{Time: ts("2026-08-01", 0), Value: 100},
		{Time: ts("2026-08-01", 8), Value: 200},
		{Time: ts("2026-08-02", 0), Value: 400},
	}

	got := CollapseLast(samples)
	if len(got) != 2 {
		t.Fatalf("expected 2 daily points, got %d", len(got))
	}
	if got[0].OpenInterest != 300 {
		t.Fatalf("last-of-day should be 300, got %v", got[0].OpenInterest)
	}
}

func TestCollapseLastIdempotentOnDailySeries(t *testing.T) {
	daily := []Sample{
		{Time: ts("2026-08-01", 0), Value: 100},
		{Time: ts("2026-08-02", 0), Value: 110},
		{Time: ts("2026-08-03", 0), Value: 120},
	}

	got := CollapseLast(daily)
	want := []models.OIPoint{
		{Date: "2026-08-01", OpenInterest: 100},
		{Date: "2026-08-02", OpenInterest: 110},
		{Date: "2026-08-03", OpenInterest: 120},
	}
	if len(got) != len(want) {
		t.Fatalf("length changed: %d != %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("point %d changed: %+v != %+v", i, got[i], want[i])
		}
	}
}

func TestCollapseOutputOrderedAndUnique(t *testing.T) {
	samples := []Sample{
		{Time: ts("2026-08-03", 4), Value: 3},
		{Time: ts("2026-08-01", 4), Value: 1},
		{Time: ts("2026-08-02", 4), Value: 2},
		{Time: ts("2026-08-01", 9), Value: 1},
	}

	got := CollapseMean(samples)
	seen := map[string]bool{}
	for i, p := range got {
		if seen[p.Date] {
			t.Fatalf("duplicate date %s", p.Date)
		}
		seen[p.Date] = true
		if i > 0 && got[i-1].Date >= p.Date {
			t.Fatalf("dates not ascending: %s then %s", got[i-1].Date, p.Date)
		}
	}
}

func TestTailKeepsMostRecent(t *testing.T) {
	series := []models.DailyPoint{
		{Date: "2026-08-01", Value: 1},
		{Date: "2026-08-02", Value: 2},
		{Date: "2026-08-03", Value: 3},
	}
	got := TailDaily(series, 2)
	if len(got) != 2 || got[0].Date != "2026-08-02" {
		t.Fatalf("unexpected tail: %+v", got)
	}
	if tail := TailDaily(series, 10); len(tail) != 3 {
		t.Fatalf("short series should pass through, got %d points", len(tail))
	}
}
