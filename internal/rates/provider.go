package rates

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/ukydev/fleet-ledger/internal/models"
	"golang.org/x/sync/singleflight"
)

// ErrRateUnavailable is returned when no tier could produce a rate.
var ErrRateUnavailable = errors.New("exchange rate unavailable")

const (
	DefaultFreshness = time.Hour
	DefaultTimeout   = 10 * time.Second
)

// DefaultFallback is the last-resort table the original service shipped with.
var DefaultFallback = map[string]float64{
	"USD": 43.85,
	"EUR": 51.65,
	"GBP": 55.20,
}

// Options configures a Provider. Zero durations select the defaults; a nil
// Fallback disables the hardcoded tier.
type Options struct {
	Reporting string
	Freshness time.Duration
	Timeout   time.Duration
	Fallback  map[string]float64
}

// Provider resolves "1 unit of currency = N reporting units" through the
// reporting-currency shortcut, a fresh cached snapshot, the remote source, a
// stale snapshot and finally the optional fallback table.
type Provider struct {
	source    Source
	cache     Cache
	reporting string
	freshness time.Duration
	timeout   time.Duration
	fallback  map[string]float64
	now       func() time.Time
	logger    log.FieldLogger
	refreshes singleflight.Group
}

// NewProvider creates a provider. logger may be nil.
func NewProvider(source Source, cache Cache, opts Options, logger log.FieldLogger) *Provider {
	if logger == nil {
		logger = log.StandardLogger()
	}
	p := &Provider{
		source:    source,
		cache:     cache,
		reporting: models.NormalizeCurrency(opts.Reporting),
		freshness: opts.Freshness,
		timeout:   opts.Timeout,
		now:       time.Now,
		logger:    logger.WithField("component", "rates"),
	}
	if p.reporting == "" {
		p.reporting = "TRY"
	}
	if p.freshness <= 0 {
		p.freshness = DefaultFreshness
	}
	if p.timeout <= 0 {
		p.timeout = DefaultTimeout
	}
	if len(opts.Fallback) > 0 {
		p.fallback = make(map[string]float64, len(opts.Fallback))
		for code, rate := range opts.Fallback {
			if rate > 0 {
				p.fallback[models.NormalizeCurrency(code)] = rate
			}
		}
	}
	return p
}

// SetClock replaces the time source used to judge snapshot age.
func (p *Provider) SetClock(now func() time.Time) { p.now = now }

// ReportingCurrency returns the currency every rate is quoted in.
func (p *Provider) ReportingCurrency() string { return p.reporting }

// GetRate returns how many reporting units one unit of currency is worth.
func (p *Provider) GetRate(ctx context.Context, currency string) (float64, error) {
	currency = models.NormalizeCurrency(currency)
	if currency == "" {
		return 0, models.ErrMissingCurrency
	}
	if currency == p.reporting {
		return 1, nil
	}
	logger := p.logger.WithField("currency", currency)

	cached, err := p.cache.Latest(ctx)
	if err != nil {
		logger.WithError(err).Warn("Failed to read rate cache")
		cached = nil
	}
	if cached != nil && cached.Age(p.now()) < p.freshness {
		if rate, ok := cached.Rate(currency); ok {
			return rate, nil
		}
	}

	snap, fetchErr := p.Refresh(ctx)
	if fetchErr == nil {
		if rate, ok := snap.Rate(currency); ok {
			return rate, nil
		}
		fetchErr = fmt.Errorf("source %s does not quote %s", snap.Source, currency)
	}
	if ctx.Err() != nil {
		return 0, ctx.Err()
	}

	if cached != nil {
		if rate, ok := cached.Rate(currency); ok {
			logger.WithError(fetchErr).WithField("age", cached.Age(p.now()).Round(time.Second).String()).
				Warn("Using stale cached rate")
			return rate, nil
		}
	}
	if rate, ok := p.fallback[currency]; ok {
		logger.WithError(fetchErr).Warn("Using fallback rate table")
		return rate, nil
	}
	return 0, fmt.Errorf("%w: %s: %v", ErrRateUnavailable, currency, fetchErr)
}

// Refresh fetches a new snapshot and saves it to the cache. Concurrent
// callers share one remote call; the fetch is bounded by the configured
// timeout. A cache write failure is logged and otherwise ignored.
func (p *Provider) Refresh(ctx context.Context) (*models.RateSnapshot, error) {
	ch := p.refreshes.DoChan("refresh", func() (interface{}, error) {
		fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.timeout)
		defer cancel()

		start := p.now()
		snap, err := p.source.FetchRates(fetchCtx, p.reporting)
		if err != nil {
			p.logger.WithError(err).WithField("source", p.source.Name()).Warn("Rate fetch failed")
			return nil, err
		}
		snap.FetchedAt = p.now()
		if snap.Source == "" {
			snap.Source = p.source.Name()
		}
		p.logger.WithFields(log.Fields{
			"source":   snap.Source,
			"count":    len(snap.Rates),
			"duration": snap.FetchedAt.Sub(start).String(),
		}).Info("Fetched exchange rates")

		if err := p.cache.Save(fetchCtx, snap); err != nil {
			p.logger.WithError(err).Warn("Failed to save rate snapshot")
		}
		return snap, nil
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		snap := *res.Val.(*models.RateSnapshot)
		return &snap, nil
	}
}

// ParseFallback parses "USD=43.85,EUR=51.65". The literal "default" selects
// DefaultFallback and an empty string disables the table.
func ParseFallback(spec string) (map[string]float64, error) {
	spec = strings.TrimSpace(spec)
	switch strings.ToLower(spec) {
	case "":
		return nil, nil
	case "default":
		out := make(map[string]float64, len(DefaultFallback))
		for k, v := range DefaultFallback {
			out[k] = v
		}
		return out, nil
	}

	out := map[string]float64{}
	for _, pair := range strings.Split(spec, ",") {
		code, value, ok := strings.Cut(strings.TrimSpace(pair), "=")
		code = models.NormalizeCurrency(code)
		if !ok || code == "" {
			return nil, fmt.Errorf("invalid fallback rate %q", pair)
		}
		rate, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
		if err != nil || rate <= 0 {
			return nil, fmt.Errorf("invalid fallback rate %q", pair)
		}
		out[code] = rate
	}
	return out, nil
}

// Currencies lists the codes a snapshot quotes, sorted.
func Currencies(snap *models.RateSnapshot) []string {
	codes := make([]string, 0, len(snap.Rates))
	for code := range snap.Rates {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	return codes
}
