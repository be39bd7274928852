// Package bybit adapts Bybit's v5 market endpoints into uniform daily
// series. Funding history arrives at 8h granularity and is averaged per
// UTC day; open interest is requested at native daily granularity.
package bybit

import (
	"context"
	"encoding/json"
	"net/url"
	"strconv"
	"time"

	"derivflow/internal/fetch"
	"derivflow/logger"
	"derivflow/models"
	"derivflow/processor"
)

const (
	fundingPath = "/v5/market/funding/history"
	oiPath      = "/v5/market/open-interest"

	pageLimit       = 200
	maxFundingPages = 8
	maxOIPages      = 5
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

func (r *Reader) Name() string { return "bybit" }

type envelope struct {
	RetCode int             `json:"retCode"`
	RetMsg  string          `json:"retMsg"`
	Result  json.RawMessage `json:"result"`
}

type fundingResult struct {
	List []struct {
		FundingRate          string `json:"fundingRate"`
		FundingRateTimestamp string `json:"fundingRateTimestamp"`
	} `json:"list"`
	NextPageCursor string `json:"nextPageCursor"`
}

type oiResult struct {
	List []struct {
		OpenInterest string `json:"openInterest"`
		Timestamp    string `json:"timestamp"`
	} `json:"list"`
	NextPageCursor string `json:"nextPageCursor"`
}

// FundingDaily returns the mean daily funding rate series for symbol,
// truncated to the most recent days+1 entries. Bybit pages by cursor;
// three samples land on most days, so roughly 3*days records are pulled
// before collapsing.
func (r *Reader) FundingDaily(ctx context.Context, symbol string, days int) ([]models.DailyPoint, error) {
	needPoints := 3*days + 6
	samples := make([]processor.Sample, 0, needPoints)
	cursor := ""

	for page := 0; page < maxFundingPages && len(samples) < needPoints; page++ {
		if page > 0 {
			pausePage(ctx)
		}

		params := url.Values{}
		params.Set("category", "linear")
		params.Set("symbol", symbol)
		params.Set("limit", strconv.Itoa(pageLimit))
		if cursor != "" {
			params.Set("cursor", cursor)
		}

		body, err := r.resolver.GetJSON(ctx, fundingPath+"?"+params.Encode())
		if err != nil {
			return nil, err
		}

		var env envelope
		if err := json.Unmarshal(body, &env); err != nil {
			return nil, &models.ParseError{URL: fundingPath, Err: err}
		}
		if env.RetCode != 0 {
			return nil, &models.ProviderError{
				Provider: r.Name(),
				Code:     strconv.Itoa(env.RetCode),
				Body:     fetch.TruncateBody(body),
			}
		}

		var result fundingResult
		if err := json.Unmarshal(env.Result, &result); err != nil {
			return nil, &models.ParseError{URL: fundingPath, Err: err}
		}

		for _, rec := range result.List {
			rate, err := strconv.ParseFloat(rec.FundingRate, 64)
			if err != nil {
				continue
			}
			ms, err := strconv.ParseInt(rec.FundingRateTimestamp, 10, 64)
			if err != nil {
				continue
			}
			samples = append(samples, processor.Sample{Time: time.UnixMilli(ms).UTC(), Value: rate})
		}

		cursor = result.NextPageCursor
		if cursor == "" || len(result.List) == 0 {
			break
		}
	}

	daily := processor.CollapseMean(samples)
	r.log.WithComponent("bybit_reader").WithFields(logger.Fields{
		"symbol": symbol,
		"points": len(samples),
		"days":   len(daily),
	}).Debug("funding history fetched")

	return processor.TailDaily(daily, days+1), nil
}

// OpenInterestDaily returns the daily open-interest series for symbol.
// Bybit exposes a native 1d interval, so the last-of-day collapse is a
// no-op beyond ordering and de-duplication.
func (r *Reader) OpenInterestDaily(ctx context.Context, symbol string, days int) ([]models.OIPoint, error) {
	samples := make([]processor.Sample, 0, days+oiPad)
	cursor := ""

	for page := 0; page < maxOIPages && len(samples) < days+oiPad; page++ {
		if page > 0 {
			pausePage(ctx)
		}

		params := url.Values{}
		params.Set("category", "linear")
		params.Set("symbol", symbol)
		params.Set("intervalTime", "1d")
		params.Set("limit", strconv.Itoa(pageLimit))
		if cursor != "" {
			params.Set("cursor", cursor)
		}

		body, err := r.resolver.GetJSON(ctx, oiPath+"?"+params.Encode())
		if err != nil {
			return nil, err
		}

		var env envelope
		if err := json.Unmarshal(body, &env); err != nil {
			return nil, &models.ParseError{URL: oiPath, Err: err}
		}
		if env.RetCode != 0 {
			return nil, &models.ProviderError{
				Provider: r.Name(),
				Code:     strconv.Itoa(env.RetCode),
				Body:     fetch.TruncateBody(body),
			}
		}

		var result oiResult
		if err := json.Unmarshal(env.Result, &result); err != nil {
			return nil, &models.ParseError{URL: oiPath, Err: err}
		}

		for _, rec := range result.List {
			oi, err := strconv.ParseFloat(rec.OpenInterest, 64)
			if err != nil {
				continue
			}
			ms, err := strconv.ParseInt(rec.Timestamp, 10, 64)
			if err != nil {
				continue
			}
			samples = append(samples, processor.Sample{Time: time.UnixMilli(ms).UTC(), Value: oi})
		}

		cursor = result.NextPageCursor
		if cursor == "" || len(result.List) == 0 {
			break
		}
	}

	daily := processor.CollapseLast(samples)
	r.log.WithComponent("bybit_reader").WithFields(logger.Fields{
		"symbol": symbol,
		"days":   len(daily),
	}).Debug("open-interest history fetched")

	return processor.TailOI(daily, days+oiPad), nil
}

func pausePage(ctx context.Context) {
	select {
	case <-ctx.Done():
	case <-time.After(pagePause):
	}
}
