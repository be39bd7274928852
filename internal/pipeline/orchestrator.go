// Package pipeline walks the provider fallback chains and assembles the
// response envelope. Providers within a chain run strictly in order; the
// two metrics of one instrument run concurrently; instruments run
// sequentially behind a rate limiter.
package pipeline

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"

	appconfig "derivflow/config"
	"derivflow/internal/fetch"
	"derivflow/internal/metrics"
	"derivflow/logger"
	"derivflow/models"
	"derivflow/processor"
	"derivflow/reader/binance"
	"derivflow/reader/bybit"
	"derivflow/reader/kucoin"
	"derivflow/reader/okx"
)

// FundingSource serves a daily mean funding rate series for one symbol.
type FundingSource interface {
	Name() string
	FundingDaily(ctx context.Context, symbol string, days int) ([]models.DailyPoint, error)
}

// OpenInterestSource serves a daily open-interest series for one symbol.
type OpenInterestSource interface {
	Name() string
	OpenInterestDaily(ctx context.Context, symbol string, days int) ([]models.OIPoint, error)
}

type Orchestrator struct {
	cfg     *appconfig.Config
	funding []FundingSource
	oi      []OpenInterestSource
	limiter *rate.Limiter
	th      processor.Thresholds
	log     *logger.Log
	now     func() time.Time
	publish func(ctx context.Context, metric string, value float64, fields logger.Fields)
}

// New builds the orchestrator from configuration, wiring one reader per
// provider named in the priority lists.
func New(cfg *appconfig.Config, log *logger.Log) *Orchestrator {
	fundingByName := map[string]FundingSource{
		"bybit":   bybit.NewReader(fetch.NewClient(cfg.Providers.Bybit.Timeout), cfg.Providers.Bybit.Bases, log),
		"okx":     okx.NewReader(fetch.NewClient(cfg.Providers.Okx.Timeout), cfg.Providers.Okx.Bases, log),
		"binance": binance.NewReader(cfg.Providers.Binance.Bases, cfg.Providers.Binance.Timeout, log),
		"kucoin":  kucoin.NewReader(fetch.NewClient(cfg.Providers.Kucoin.Timeout), cfg.Providers.Kucoin.Bases, log),
	}
	oiByName := map[string]OpenInterestSource{
		"bybit":   bybit.NewReader(fetch.NewClient(cfg.Providers.Bybit.Timeout), cfg.Providers.Bybit.Bases, log),
		"okx":     okx.NewReader(fetch.NewClient(cfg.Providers.Okx.Timeout), cfg.Providers.Okx.Bases, log),
		"binance": binance.NewReader(cfg.Providers.Binance.Bases, cfg.Providers.Binance.Timeout, log),
	}

	funding := make([]FundingSource, 0, len(cfg.Pipeline.FundingPriority))
	for _, name := range cfg.Pipeline.FundingPriority {
		if src, ok := fundingByName[name]; ok {
			funding = append(funding, src)
		}
	}
	oi := make([]OpenInterestSource, 0, len(cfg.Pipeline.OIPriority))
	for _, name := range cfg.Pipeline.OIPriority {
		if src, ok := oiByName[name]; ok {
			oi = append(oi, src)
		}
	}

	return newOrchestrator(cfg, funding, oi, log)
}

// NewWithSources builds the orchestrator around caller-supplied sources,
// bypassing the provider registry.
func NewWithSources(cfg *appconfig.Config, funding []FundingSource, oi []OpenInterestSource, log *logger.Log) *Orchestrator {
	return newOrchestrator(cfg, funding, oi, log)
}

func newOrchestrator(cfg *appconfig.Config, funding []FundingSource, oi []OpenInterestSource, log *logger.Log) *Orchestrator {
	delay := cfg.Pipeline.InstrumentDelay
	if delay <= 0 {
		delay = 200 * time.Millisecond
	}
	return &Orchestrator{
		cfg:     cfg,
		funding: funding,
		oi:      oi,
		limiter: rate.NewLimiter(rate.Every(delay), 1),
		th: processor.Thresholds{
			MinFundingDays: cfg.Metrics.MinFundingDays,
			MinOIDays:      cfg.Metrics.MinOIDays,
			MinZSamples:    cfg.Metrics.MinZSamples,
		},
		log:     log,
		now:     time.Now,
		publish: logger.PublishCount,
	}
}

// Snapshot computes both metrics for every configured instrument. Every
// instrument appears in the result even when all of its providers
// failed; provider errors are recoverable and never fail the snapshot.
func (o *Orchestrator) Snapshot(ctx context.Context, debug bool) (*models.Envelope, error) {
	env := &models.Envelope{
		AsOf:         models.FormatAsOf(o.now()),
		LookbackDays: o.cfg.Metrics.LookbackDays,
		Source:       o.cfg.Pipeline.Source,
		Items:        make([]models.InstrumentResult, 0, len(o.cfg.Instruments)),
	}

	for _, inst := range o.cfg.Instruments {
		if err := o.limiter.Wait(ctx); err != nil {
			metrics.IncrementSnapshot("cancelled")
			return nil, fmt.Errorf("snapshot cancelled: %w", err)
		}

		var (
			wg     sync.WaitGroup
			fm, om models.MetricResult
			fErrs  []string
			oiErrs []string
		)

		wg.Add(2)
		go func() {
			defer wg.Done()
			fm, fErrs = o.fundingMetric(ctx, inst)
		}()
		go func() {
			defer wg.Done()
			om, oiErrs = o.oiMetric(ctx, inst)
		}()
		wg.Wait()

		env.Items = append(env.Items, models.InstrumentResult{
			ID:          inst.ID,
			FundingZ:    fm.ZPtr(),
			OIDeltaZ:    om.ZPtr(),
			FundingDays: fm.SampleDays,
			OIDays:      om.SampleDays,
		})

		if debug {
			env.Debug = append(env.Debug, models.DebugEntry{
				ID:              inst.ID,
				FundingProvider: fm.Provider,
				OIProvider:      om.Provider,
				Errors:          append(fErrs, oiErrs...),
			})
		}

		o.log.WithComponent("pipeline").WithFields(logger.Fields{
			"instrument":       inst.ID,
			"funding_provider": fm.Provider,
			"oi_provider":      om.Provider,
			"funding_days":     fm.SampleDays,
			"oi_days":          om.SampleDays,
		}).Info("instrument snapshot computed")

		o.publish(ctx, "snapshot", 1, logger.SnapshotDimensions(inst.ID))
	}

	metrics.IncrementSnapshot("success")
	return env, nil
}

// fundingMetric walks the funding chain and accepts the first provider
// whose series meets the minimum-day gate.
func (o *Orchestrator) fundingMetric(ctx context.Context, inst appconfig.Instrument) (models.MetricResult, []string) {
	var errTrail []string
	for _, src := range o.funding {
		symbol, ok := inst.Symbol(src.Name())
		if !ok {
			continue
		}

		series, err := src.FundingDaily(ctx, symbol, o.cfg.Metrics.LookbackDays)
		if err != nil {
			metrics.IncrementProvider(src.Name(), "funding", "error")
			errTrail = append(errTrail, fmt.Sprintf("%s funding: %v", src.Name(), err))
			o.log.WithComponent("pipeline").WithFields(logger.Fields{
				"instrument": inst.ID,
				"provider":   src.Name(),
			}).WithError(err).Warn("funding provider failed, advancing")
			continue
		}
		if len(series) < o.th.MinFundingDays {
			metrics.IncrementProvider(src.Name(), "funding", "error")
			err := &models.InsufficientDataError{Provider: src.Name(), Got: len(series), Need: o.th.MinFundingDays}
			errTrail = append(errTrail, fmt.Sprintf("%s funding: %v", src.Name(), err))
			continue
		}

		metrics.IncrementProvider(src.Name(), "funding", "success")
		result := processor.FundingMetric(series, o.th)
		result.Provider = src.Name()
		return result, errTrail
	}
	return models.MetricResult{}, errTrail
}

// oiMetric walks the open-interest chain. A provider is accepted when
// its series clears the minimum-day gate and yields a usable latest
// delta.
func (o *Orchestrator) oiMetric(ctx context.Context, inst appconfig.Instrument) (models.MetricResult, []string) {
	var errTrail []string
	for _, src := range o.oi {
		symbol, ok := inst.Symbol(src.Name())
		if !ok {
			continue
		}

		series, err := src.OpenInterestDaily(ctx, symbol, o.cfg.Metrics.LookbackDays)
		if err != nil {
			metrics.IncrementProvider(src.Name(), "open_interest", "error")
			errTrail = append(errTrail, fmt.Sprintf("%s open_interest: %v", src.Name(), err))
			o.log.WithComponent("pipeline").WithFields(logger.Fields{
				"instrument": inst.ID,
				"provider":   src.Name(),
			}).WithError(err).Warn("open-interest provider failed, advancing")
			continue
		}

		result := processor.OIDeltaMetric(series, o.th)
		if result.SampleDays == 0 {
			metrics.IncrementProvider(src.Name(), "open_interest", "error")
			err := &models.InsufficientDataError{Provider: src.Name(), Got: len(series), Need: o.th.MinOIDays}
			errTrail = append(errTrail, fmt.Sprintf("%s open_interest: %v", src.Name(), err))
			continue
		}

		metrics.IncrementProvider(src.Name(), "open_interest", "success")
		result.Provider = src.Name()
		return result, errTrail
	}
	return models.MetricResult{}, errTrail
}
