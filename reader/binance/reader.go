// Package binance adapts Binance USD-M futures endpoints into uniform
// daily series through the go-binance SDK. The SDK pins one endpoint per
// client, so base fallback rebinds the endpoint between attempts instead
// of going through the shared resolver.
package binance

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	futures "github.com/adshao/go-binance/v2/futures"

	"derivflow/logger"
	"derivflow/models"
	"derivflow/processor"
)

const (
	fundingLimit = 1000
	oiLimit      = 200

	oiPad = 8
)

type Reader struct {
	client *futures.Client
	bases  []string
	log    *logger.Log
}

func NewReader(bases []string, timeout time.Duration, log *logger.Log) *Reader {
	client := futures.NewClient("", "")
	client.HTTPClient = &http.Client{Timeout: timeout}

	trimmed := make([]string, 0, len(bases))
	for _, b := range bases {
		b = strings.TrimRight(strings.TrimSpace(b), "/")
		if b != "" {
			trimmed = append(trimmed, b)
		}
	}

	return &Reader{client: client, bases: trimmed, log: log}
}

func (r *Reader) Name() string { return "binance" }

// withBases runs fn once per configured base, rebinding the SDK client
// to each endpoint in turn. The first success wins.
func (r *Reader) withBases(ctx context.Context, path string, fn func() error) error {
	var lastErr error
	for i, base := range r.bases {
		r.client.SetApiEndpoint(base)
		err := fn()
		if err == nil {
			return nil
		}
		lastErr = &models.TransportError{URL: base + path, Err: err}
		if ctx.Err() != nil {
			break
		}
		if i < len(r.bases)-1 {
			r.log.WithComponent("binance_reader").WithFields(logger.Fields{
				"base": base,
				"path": path,
			}).WithError(err).Debug("base failed, trying next")
		}
	}
	return &models.BasesExhaustedError{Path: path, Attempts: len(r.bases), Last: lastErr}
}

// FundingDaily returns the mean daily funding rate series for symbol.
// A single request covers the full window: funding settles three times a
// day and the endpoint allows up to 1000 records.
func (r *Reader) FundingDaily(ctx context.Context, symbol string, days int) ([]models.DailyPoint, error) {
	var records []*futures.FundingRate
	err := r.withBases(ctx, "/fapi/v1/fundingRate", func() error {
		res, err := r.client.NewFundingRateService().
			Symbol(symbol).
			Limit(fundingLimit).
			Do(ctx)
		if err != nil {
			return err
		}
		records = res
		return nil
	})
	if err != nil {
		return nil, err
	}

	samples := make([]processor.Sample, 0, len(records))
	for _, rec := range records {
		if rec == nil {
			continue
		}
		rate, err := strconv.ParseFloat(rec.FundingRate, 64)
		if err != nil {
			continue
		}
		samples = append(samples, processor.Sample{Time: time.UnixMilli(rec.FundingTime).UTC(), Value: rate})
	}

	daily := processor.CollapseMean(samples)
	r.log.WithComponent("binance_reader").WithFields(logger.Fields{
		"symbol": symbol,
		"points": len(samples),
		"days":   len(daily),
	}).Debug("funding history fetched")

	return processor.TailDaily(daily, days+1), nil
}

// OpenInterestDaily returns the daily open-interest series for symbol
// from the openInterestHist statistics endpoint at the 1d period.
func (r *Reader) OpenInterestDaily(ctx context.Context, symbol string, days int) ([]models.OIPoint, error) {
	var stats []*futures.OpenInterestStatistic
	err := r.withBases(ctx, "/futures/data/openInterestHist", func() error {
		res, err := r.client.NewOpenInterestStatisticsService().
			Symbol(symbol).
			Period("1d").
			Limit(oiLimit).
			Do(ctx)
		if err != nil {
			return err
		}
		stats = res
		return nil
	})
	if err != nil {
		return nil, err
	}

	samples := make([]processor.Sample, 0, len(stats))
	for _, item := range stats {
		if item == nil {
			continue
		}
		oi, err := strconv.ParseFloat(item.SumOpenInterest, 64)
		if err != nil {
			continue
		}
		samples = append(samples, processor.Sample{Time: time.UnixMilli(item.Timestamp).UTC(), Value: oi})
	}

	daily := processor.CollapseLast(samples)
	r.log.WithComponent("binance_reader").WithFields(logger.Fields{
		"symbol": symbol,
		"days":   len(daily),
	}).Debug("open-interest history fetched")

	return processor.TailOI(daily, days+oiPad), nil
}
