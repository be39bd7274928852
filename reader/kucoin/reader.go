// Package kucoin adapts the KuCoin futures public funding-rate history
// into a uniform daily series. KuCoin publishes no public open-interest
// history, so this provider only serves the funding chain.
package kucoin

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

const fundingPath = "/api/v1/contract/funding-rates"

type Reader struct {
	resolver *fetch.Resolver
	log      *logger.Log
	now      func() time.Time
}

func NewReader(client *fetch.Client, bases []string, log *logger.Log) *Reader {
	return &Reader{
		resolver: fetch.NewResolver(client, bases, log),
		log:      log,
		now:      time.Now,
	}
}

func (r *Reader) Name() string { return "kucoin" }

type envelope struct {
	Code string `json:"code"`
	Msg  string `json:"msg"`
	Data []struct {
		Symbol      string  `json:"symbol"`
		FundingRate float64 `json:"fundingRate"`
		Timepoint   int64   `json:"timepoint"`
	} `json:"data"`
}

// FundingDaily returns the mean daily funding rate series for symbol.
// The endpoint takes an explicit millisecond window; a couple of days of
// slack covers settlement-time jitter at the window edges.
func (r *Reader) FundingDaily(ctx context.Context, symbol string, days int) ([]models.DailyPoint, error) {
	end := r.now().UTC()
	start := end.AddDate(0, 0, -(days + 2))

	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("from", strconv.FormatInt(start.UnixMilli(), 10))
	params.Set("to", strconv.FormatInt(end.UnixMilli(), 10))

	body, err := r.resolver.GetJSON(ctx, fundingPath+"?"+params.Encode())
	if err != nil {
		return nil, err
	}

	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, &models.ParseError{URL: fundingPath, Err: err}
	}
	if env.Code != "200000" {
		return nil, &models.ProviderError{
			Provider: r.Name(),
			Code:     env.Code,
			Body:     fetch.TruncateBody(body),
		}
	}

	samples := make([]processor.Sample, 0, len(env.Data))
	for _, rec := range env.Data {
		if rec.Timepoint <= 0 {
			continue
		}
		samples = append(samples, processor.Sample{Time: time.UnixMilli(rec.Timepoint).UTC(), Value: rec.FundingRate})
	}

	daily := processor.CollapseMean(samples)
	r.log.WithComponent("kucoin_reader").WithFields(logger.Fields{
		"symbol": symbol,
		"points": len(samples),
		"days":   len(daily),
	}).Debug("funding history fetched")

	return processor.TailDaily(daily, days+1), nil
}
