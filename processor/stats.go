package processor

import (
	"math"

	"derivflow/models"
)

// Thresholds carries the minimum-sample gates for metric assembly. The
// values mirror the historical builders; they are configuration, not
// derived statistics.
type Thresholds struct {
	// MinFundingDays is the smallest accepted funding series: the z-score
	// history plus the latest observation.
	MinFundingDays int
	// MinOIDays is the smallest accepted open-interest series, sized so
	// that 3-day differencing still leaves a full z-score history.
	MinOIDays int
	// MinZSamples is the floor of valid historical points below which a
	// z-score is not reported.
	MinZSamples int
}

// ZScore computes the population z-score of latest against history.
// NaN and infinite history entries are discarded first. It reports
// ok=false when fewer than minSamples valid points remain, and exactly 0
// for a flat history so a zero standard deviation never divides.
func ZScore(history []float64, latest float64, minSamples int) (z float64, ok bool) {
	xs := make([]float64, 0, len(history))
	for _, v := range history {
		if isFinite(v) {
			xs = append(xs, v)
		}
	}
	if len(xs) < minSamples {
		return 0, false
	}

	mean := 0.0
	for _, v := range xs {
		mean += v
	}
	mean /= float64(len(xs))

	variance := 0.0
	for _, v := range xs {
		d := v - mean
		variance += d * d
	}
	variance /= float64(len(xs))

	sd := math.Sqrt(variance)
	if sd == 0 {
		return 0, true
	}
	return (latest - mean) / sd, true
}

// Delta3D computes the 3-day open-interest percentage change for each
// index: series[i]/series[i-3] - 1. The window is three samples, not
// three calendar days, so gaps in the daily series shift the comparison
// window. The first three entries, and any entry whose base is zero,
// carry a nil delta.
func Delta3D(series []models.OIPoint) []models.DeltaPoint {
	out := make([]models.DeltaPoint, len(series))
	for i, p := range series {
		out[i] = models.DeltaPoint{Date: p.Date}
		if i < 3 {
			continue
		}
		prev := series[i-3].OpenInterest
		if prev == 0 {
			continue
		}
		d := p.OpenInterest/prev - 1.0
		out[i].Delta = &d
	}
	return out
}

// LatestDelta scans a delta series backward for the most recent usable
// entry. The final day's open interest is often still forming, so the
// freshest non-nil, non-NaN delta stands in for "latest".
func LatestDelta(deltas []models.DeltaPoint) (idx int, val float64, ok bool) {
	for i := len(deltas) - 1; i >= 0; i-- {
		if deltas[i].Delta == nil {
			continue
		}
		v := *deltas[i].Delta
		if !isFinite(v) {
			continue
		}
		return i, v, true
	}
	return -1, 0, false
}

// FundingMetric tests the latest daily funding value against the z-score
// of all prior points. The series must hold at least th.MinFundingDays
// points; SampleDays reports the full accepted series length.
func FundingMetric(series []models.DailyPoint, th Thresholds) models.MetricResult {
	if len(series) < th.MinFundingDays {
		return models.MetricResult{}
	}
	latest := series[len(series)-1].Value
	history := make([]float64, 0, len(series)-1)
	for _, p := range series[:len(series)-1] {
		history = append(history, p.Value)
	}
	z, ok := ZScore(history, latest, th.MinZSamples)
	return models.MetricResult{Z: z, HasZ: ok, SampleDays: len(series)}
}

// OIDeltaMetric differentiates the open-interest series over a 3-sample
// window, locates the latest usable delta, and scores it against the
// deltas strictly preceding it. SampleDays counts the non-nil deltas
// through the latest one; zero means the provider gate was not met.
func OIDeltaMetric(series []models.OIPoint, th Thresholds) models.MetricResult {
	if len(series) < th.MinOIDays {
		return models.MetricResult{}
	}

	deltas := Delta3D(series)
	idx, latest, ok := LatestDelta(deltas)
	if !ok {
		return models.MetricResult{}
	}

	history := make([]float64, 0, idx)
	for _, d := range deltas[:idx] {
		if d.Delta != nil {
			history = append(history, *d.Delta)
		}
	}

	z, hasZ := ZScore(history, latest, th.MinZSamples)
	return models.MetricResult{Z: z, HasZ: hasZ, SampleDays: len(history) + 1}
}
