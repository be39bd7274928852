package processor

import (
	"fmt"
	"math"
	"testing"

	"derivflow/models"
)

var testThresholds = Thresholds{MinFundingDays: 11, MinOIDays: 14, MinZSamples: 10}

func TestZScoreShortHistoryReturnsNoValue(t *testing.T) {
	history := []float64{1, 2, 3, 4, 5, 6, 7, 8, 9}
	if _, ok := ZScore(history, 10, 10); ok {
		t.Fatal("expected no z-score for 9-point history")
	}
}

func TestZScoreDiscardsNaNBeforeGating(t *testing.T) {
	// 10 raw entries but only 9 valid ones: still below the floor.
	history := []float64{1, 2, 3, 4, 5, 6, 7, 8, 9, math.NaN()}
	if _, ok := ZScore(history, 10, 10); ok {
		t.Fatal("NaN entry should not count toward the sample floor")
	}
}

func TestZScoreZeroVariance(t *testing.T) {
	history := make([]float64, 20)
	for i := range history {
		history[i] = 0.25
	}
	z, ok := ZScore(history, 99, 10)
	if !ok {
		t.Fatal("expected a z-score")
	}
	if z != 0 {
		t.Fatalf("flat history must score exactly 0, got %v", z)
	}
}

func TestZScoreScaleConsistent(t *testing.T) {
	history := []float64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12}
	latest := 15.0

	base, ok := ZScore(history, latest, 10)
	if !ok {
		t.Fatal("expected a z-score")
	}

	for _, k := range []float64{2, 100, 0.001} {
		scaled := make([]float64, len(history))
		for i, v := range history {
			scaled[i] = v * k
		}
		z, ok := ZScore(scaled, latest*k, 10)
		if !ok {
			t.Fatalf("scaled by %v: expected a z-score", k)
		}
		if math.Abs(z-base) > 1e-9 {
			t.Fatalf("scaled by %v: z = %v, want %v", k, z, base)
		}
	}
}

func TestDelta3DWindowSemantics(t *testing.T) {
	series := make([]models.OIPoint, 8)
	for i := range series {
		series[i] = models.OIPoint{
			Date:         fmt.Sprintf("2026-08-%02d", i+1),
			OpenInterest: 1000 + float64(i)*37,
		}
	}

	deltas := Delta3D(series)
	for i := 0; i < 3; i++ {
		if deltas[i].Delta != nil {
			t.Fatalf("delta[%d] must be nil", i)
		}
	}
	for i := 3; i < len(series); i++ {
		if deltas[i].Delta == nil {
			t.Fatalf("delta[%d] unexpectedly nil", i)
		}
		want := series[i].OpenInterest/series[i-3].OpenInterest - 1.0
		if *deltas[i].Delta != want {
			t.Fatalf("delta[%d] = %v, want %v", i, *deltas[i].Delta, want)
		}
		// Round trip: the delta and the base reconstruct the observation.
		back := series[i-3].OpenInterest * (1.0 + *deltas[i].Delta)
		if math.Abs(back-series[i].OpenInterest) > 1e-9 {
			t.Fatalf("round trip failed at %d: %v != %v", i, back, series[i].OpenInterest)
		}
	}
}

func TestDelta3DZeroBaseYieldsNil(t *testing.T) {
	series := []models.OIPoint{
		{Date: "2026-08-01", OpenInterest: 0},
		{Date: "2026-08-02", OpenInterest: 10},
		{Date: "2026-08-03", OpenInterest: 10},
		{Date: "2026-08-04", OpenInterest: 10},
	}
	deltas := Delta3D(series)
	if deltas[3].Delta != nil {
		t.Fatalf("division by a zero base must yield nil, got %v", *deltas[3].Delta)
	}
}

func TestLatestDeltaSkipsTrailingNil(t *testing.T) {
	two := 2.0
	deltas := []models.DeltaPoint{
		{Date: "2026-08-01"},
		{Date: "2026-08-02", Delta: &two},
		{Date: "2026-08-03"},
	}
	idx, val, ok := LatestDelta(deltas)
	if !ok || idx != 1 || val != 2.0 {
		t.Fatalf("LatestDelta = (%d, %v, %v), want (1, 2, true)", idx, val, ok)
	}
}

func TestLatestDeltaAllNil(t *testing.T) {
	deltas := []models.DeltaPoint{{Date: "2026-08-01"}, {Date: "2026-08-02"}}
	if _, _, ok := LatestDelta(deltas); ok {
		t.Fatal("expected no usable delta")
	}
}

func TestFundingMetricWorkedExample(t *testing.T) {
	// History r0..r9 with mean 0.0001 and population sd 0.00005;
	// latest 0.0002 must score (0.0002-0.0001)/0.00005 = 2.0.
	series := make([]models.DailyPoint, 0, 11)
	for i := 0; i < 10; i++ {
		v := 0.00005
		if i%2 == 1 {
			v = 0.00015
		}
		series = append(series, models.DailyPoint{Date: fmt.Sprintf("2026-08-%02d", i+1), Value: v})
	}
	series = append(series, models.DailyPoint{Date: "2026-08-11", Value: 0.0002})

	res := FundingMetric(series, testThresholds)
	if !res.HasZ {
		t.Fatal("expected a z-score")
	}
	if math.Abs(res.Z-2.0) > 1e-9 {
		t.Fatalf("z = %v, want 2.0", res.Z)
	}
	if res.SampleDays != 11 {
		t.Fatalf("sample days = %d, want 11", res.SampleDays)
	}
}

func TestFundingMetricBelowGate(t *testing.T) {
	series := make([]models.DailyPoint, 10)
	for i := range series {
		series[i] = models.DailyPoint{Date: fmt.Sprintf("2026-08-%02d", i+1), Value: 0.0001}
	}
	res := FundingMetric(series, testThresholds)
	if res.HasZ || res.SampleDays != 0 {
		t.Fatalf("10-point series must not pass the 11-point gate: %+v", res)
	}
}

func TestOIDeltaMetricUsesLatestUsableDelta(t *testing.T) {
	// 17 daily points. Index 13 carries a zero reading, which makes the
	// final delta (index 16) unusable; the engine must fall back to the
	// delta at index 15 instead of failing outright.
	series := make([]models.OIPoint, 17)
	for i := range series {
		series[i] = models.OIPoint{
			Date:         fmt.Sprintf("2026-08-%02d", i+1),
			OpenInterest: 5000 + float64(i)*25,
		}
	}
	series[13].OpenInterest = 0

	res := OIDeltaMetric(series, testThresholds)
	if res.SampleDays == 0 {
		t.Fatal("metric should have been computed from the penultimate usable delta")
	}

	deltas := Delta3D(series)
	if deltas[16].Delta != nil {
		t.Fatal("test setup broken: final delta should be unusable")
	}
	idx, _, ok := LatestDelta(deltas)
	if !ok || idx != 15 {
		t.Fatalf("latest usable delta index = %d, want 15", idx)
	}
}

func TestOIDeltaMetricBelowGate(t *testing.T) {
	series := make([]models.OIPoint, 13)
	for i := range series {
		series[i] = models.OIPoint{Date: fmt.Sprintf("2026-08-%02d", i+1), OpenInterest: 100}
	}
	res := OIDeltaMetric(series, testThresholds)
	if res.HasZ || res.SampleDays != 0 {
		t.Fatalf("13-point series must not pass the 14-point gate: %+v", res)
	}
}

func TestOIDeltaMetricFlatSeriesScoresZero(t *testing.T) {
	series := make([]models.OIPoint, 20)
	for i := range series {
		series[i] = models.OIPoint{Date: fmt.Sprintf("2026-08-%02d", i+1), OpenInterest: 100}
	}
	res := OIDeltaMetric(series, testThresholds)
	if !res.HasZ {
		t.Fatal("expected a z-score for a flat series")
	}
	if res.Z != 0 {
		t.Fatalf("flat deltas must score 0, got %v", res.Z)
	}
}
