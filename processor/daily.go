// Package processor collapses provider-native samples into clean daily
// series and derives the normalized metrics served by the API.
package processor

import (
	"math"
	"sort"
	"time"

	"derivflow/models"
)

// Sample is a provider-native observation after field extraction:
// a sub-daily timestamp and one numeric value.
type Sample struct {
	Time  time.Time
	Value float64
}

// DateKey buckets a timestamp into its UTC calendar day.
func DateKey(t time.Time) string {
	return t.UTC().Format(models.DateLayout)
}

// CollapseMean produces one point per UTC day whose value is the
// arithmetic mean of that day's samples. Non-finite samples are dropped
// before averaging. Output is ascending by date with unique dates.
func CollapseMean(samples []Sample) []models.DailyPoint {
	sums := make(map[string]float64)
	counts := make(map[string]int)
	for _, s := range samples {
		if !isFinite(s.Value) {
			continue
		}
		d := DateKey(s.Time)
		sums[d] += s.Value
		counts[d]++
	}

	out := make([]models.DailyPoint, 0, len(sums))
	for _, d := range sortedDates(counts) {
		out = append(out, models.DailyPoint{Date: d, Value: sums[d] / float64(counts[d])})
	}
	return out
}

// CollapseLast produces one open-interest point per UTC day, keeping the
// chronologically last sample observed for that day. Feeding it an
// already-daily series returns the series unchanged.
func CollapseLast(samples []Sample) []models.OIPoint {
	ordered := make([]Sample, 0, len(samples))
	for _, s := range samples {
		if isFinite(s.Value) {
			ordered = append(ordered, s)
		}
	}
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].Time.Before(ordered[j].Time) })

	last := make(map[string]float64, len(ordered))
	seen := make(map[string]int, len(ordered))
	for _, s := range ordered {
		d := DateKey(s.Time)
		last[d] = s.Value
		seen[d]++
	}

	out := make([]models.OIPoint, 0, len(last))
	for _, d := range sortedDates(seen) {
		out = append(out, models.OIPoint{Date: d, OpenInterest: last[d]})
	}
	return out
}

// TailDaily keeps the most recent n points of an ascending daily series.
func TailDaily(points []models.DailyPoint, n int) []models.DailyPoint {
	if len(points) <= n {
		return points
	}
	return points[len(points)-n:]
}

// TailOI keeps the most recent n points of an ascending OI series.
func TailOI(points []models.OIPoint, n int) []models.OIPoint {
	if len(points) <= n {
		return points
	}
	return points[len(points)-n:]
}

func sortedDates[V any](m map[string]V) []string {
	dates := make([]string, 0, len(m))
	for d := range m {
		dates = append(dates, d)
	}
	sort.Strings(dates)
	return dates
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
