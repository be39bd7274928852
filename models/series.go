package models

import "time"

// DateLayout is the calendar-day key used across every daily series.
// All bucketing happens in UTC.
const DateLayout = "2006-01-02"

// DailyPoint is one calendar day of funding data. Dates are unique within
// a series and series are ordered ascending by date.
type DailyPoint struct {
	Date  string  `json:"date"`
	Value float64 `json:"value"`
}

// OIPoint is one calendar day of open-interest data.
type OIPoint struct {
	Date         string  `json:"date"`
	OpenInterest float64 `json:"open_interest"`
}

// DeltaPoint is the 3-day open-interest percentage change for one day.
// Delta is nil for the first three entries of a series, where the lookback
// window is not yet filled.
type DeltaPoint struct {
	Date  string   `json:"date"`
	Delta *float64 `json:"delta_3d"`
}

// MetricResult is the outcome of one metric computation for one
// instrument. Z is nil when no provider yielded enough data or the
// historical window held fewer valid points than the z-score floor.
type MetricResult struct {
	Z          float64
	HasZ       bool
	SampleDays int
	Provider   string
}

// ZPtr returns the z-score as a nullable value for JSON encoding.
func (m MetricResult) ZPtr() *float64 {
	if !m.HasZ {
		return nil
	}
	z := m.Z
	return &z
}

// InstrumentResult is the per-instrument slice of the response envelope.
type InstrumentResult struct {
	ID          string   `json:"id"`
	FundingZ    *float64 `json:"funding_z"`
	OIDeltaZ    *float64 `json:"oi_delta_z"`
	FundingDays int      `json:"funding_days"`
	OIDays      int      `json:"oi_days"`
}

// DebugEntry records which provider satisfied each metric for an
// instrument and the error trail of the providers that were rejected
// along the way. Only emitted when the caller opts in.
type DebugEntry struct {
	ID              string   `json:"id"`
	FundingProvider string   `json:"funding_provider,omitempty"`
	OIProvider      string   `json:"oi_provider,omitempty"`
	Errors          []string `json:"errors,omitempty"`
}

// Envelope is the response body of the derivatives endpoint. Every
// configured instrument appears in Items even when both metrics are null.
type Envelope struct {
	AsOf         string             `json:"as_of"`
	LookbackDays int                `json:"lookback_days"`
	Source       string             `json:"source"`
	Items        []InstrumentResult `json:"items"`
	Debug        []DebugEntry       `json:"debug,omitempty"`
}

// FormatAsOf renders the envelope timestamp without a sub-second
// fraction, matching the published schema.
func FormatAsOf(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05Z")
}
