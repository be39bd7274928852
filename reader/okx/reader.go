// Package okx adapts OKX's v5 public endpoints into uniform daily
// series. Open interest prefers the native 1D candle history and falls
// back to 8H candles collapsed to last-of-day when the daily endpoint
// yields nothing.
package okx

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"derivflow/internal/fetch"
	"derivflow/logger"
	"derivflow/models"
	"derivflow/processor"
)

const (
	fundingPath = "/api/v5/public/funding-rate-history"
	oiPath      = "/api/v5/rubik/stat/contracts/open-interest-history"

	fundingLimit = 100
	oiDailyLimit = 200
	oi8HLimit    = 480

	maxFundingPages = 6
	pagePause       = 150 * time.Millisecond

	oiPad = 8
)

type Reader struct {
	resolver *fetch.Resolver
	log      *logger.Log
}

func NewReader(client *fetch.Client, bases []string, log *logger.Log) *Reader {
	return &Reader{
		resolver: fetch.NewResolver(client, bases, log),
		log:      log,
	}
}

func (r *Reader) Name() string { return "okx" }

type envelope struct {
	Code string          `json:"code"`
	Msg  string          `json:"msg"`
	Data json.RawMessage `json:"data"`
}

func (r *Reader) getData(ctx context.Context, path string, params url.Values) (json.RawMessage, error) {
	full := path + "?" + params.Encode()
	body, err := r.resolver.GetJSON(ctx, full)
	if err != nil {
		return nil, err
	}

	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, &models.ParseError{URL: path, Err: err}
	}
	if env.Code != "0" {
		return nil, &models.ProviderError{
			Provider: r.Name(),
			Code:     env.Code,
			Body:     fetch.TruncateBody(body),
		}
	}
	return env.Data, nil
}

type fundingRecord struct {
	FundingRate string `json:"fundingRate"`
	FundingTime string `json:"fundingTime"`
	TS          string `json:"ts"`
}

// FundingDaily returns the mean daily funding rate series for instId,
// newest pages first, paginated with the `after` timestamp cursor.
func (r *Reader) FundingDaily(ctx context.Context, instID string, days int) ([]models.DailyPoint, error) {
	needPoints := 3*days + 6
	samples := make([]processor.Sample, 0, needPoints)
	after := ""

	for page := 0; page < maxFundingPages && len(samples) < needPoints; page++ {
		if page > 0 {
			pausePage(ctx)
		}

		params := url.Values{}
		params.Set("instId", instID)
		params.Set("limit", strconv.Itoa(fundingLimit))
		if after != "" {
			params.Set("after", after)
		}

		data, err := r.getData(ctx, fundingPath, params)
		if err != nil {
			return nil, err
		}

		var records []fundingRecord
		if err := json.Unmarshal(data, &records); err != nil {
			return nil, &models.ParseError{URL: fundingPath, Err: err}
		}
		if len(records) == 0 {
			break
		}

		oldest := int64(0)
		for _, rec := range records {
			rate, err := strconv.ParseFloat(rec.FundingRate, 64)
			if err != nil {
				continue
			}
			tsField := rec.FundingTime
			if tsField == "" {
				tsField = rec.TS
			}
			ms, err := strconv.ParseInt(tsField, 10, 64)
			if err != nil {
				continue
			}
			if oldest == 0 || ms < oldest {
				oldest = ms
			}
			samples = append(samples, processor.Sample{Time: time.UnixMilli(ms).UTC(), Value: rate})
		}
		if oldest == 0 {
			break
		}
		after = strconv.FormatInt(oldest, 10)
	}

	daily := processor.CollapseMean(samples)
	r.log.WithComponent("okx_reader").WithFields(logger.Fields{
		"instId": instID,
		"points": len(samples),
		"days":   len(daily),
	}).Debug("funding history fetched")

	return processor.TailDaily(daily, days+1), nil
}

// OpenInterestDaily returns the daily open-interest series for instId.
// The rubik 1D history is tried first; when it errors or returns no
// usable rows the 8H history is fetched and collapsed to last-of-day.
func (r *Reader) OpenInterestDaily(ctx context.Context, instID string, days int) ([]models.OIPoint, error) {
	daily, err := r.openInterestPeriod(ctx, instID, "1D", oiDailyLimit)
	if err == nil && len(daily) > 0 {
		return processor.TailOI(daily, days+oiPad), nil
	}
	if err != nil {
		r.log.WithComponent("okx_reader").WithFields(logger.Fields{
			"instId": instID,
		}).WithError(err).Debug("1D open-interest failed, falling back to 8H")
	}

	sub, err := r.openInterestPeriod(ctx, instID, "8H", oi8HLimit)
	if err != nil {
		return nil, err
	}
	return processor.TailOI(sub, days+oiPad), nil
}

func (r *Reader) openInterestPeriod(ctx context.Context, instID, period string, limit int) ([]models.OIPoint, error) {
	params := url.Values{}
	params.Set("instId", instID)
	params.Set("period", period)
	params.Set("limit", strconv.Itoa(limit))

	data, err := r.getData(ctx, oiPath, params)
	if err != nil {
		return nil, err
	}

	// Rows are [ts, oi, oiCcy, oiUsd] arrays of strings.
	var rows [][]string
	if err := json.Unmarshal(data, &rows); err != nil {
		return nil, &models.ParseError{URL: oiPath, Err: err}
	}

	samples := make([]processor.Sample, 0, len(rows))
	for _, row := range rows {
		if len(row) < 2 {
			continue
		}
		ms, err := strconv.ParseInt(row[0], 10, 64)
		if err != nil {
			continue
		}
		oi, err := strconv.ParseFloat(row[1], 64)
		if err != nil {
			continue
		}
		samples = append(samples, processor.Sample{Time: time.UnixMilli(ms).UTC(), Value: oi})
	}
	if len(samples) == 0 && len(rows) > 0 {
		return nil, &models.ParseError{URL: oiPath, Err: fmt.Errorf("no parsable rows out of %d", len(rows))}
	}

	return processor.CollapseLast(samples), nil
}

func pausePage(ctx context.Context) {
	select {
	case <-ctx.Done():
	case <-time.After(pagePause):
	}
}
