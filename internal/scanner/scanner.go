// Package scanner fans an option-chain scan out across a watchlist and
// ranks the surviving contracts as income opportunities.
package scanner

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/wheelhouse-trading/wheelhouse/internal/broker"
	"github.com/wheelhouse-trading/wheelhouse/internal/indicators"
	"github.com/wheelhouse-trading/wheelhouse/internal/metrics"
	"github.com/wheelhouse-trading/wheelhouse/internal/models"
	"github.com/wheelhouse-trading/wheelhouse/internal/retry"
	"github.com/wheelhouse-trading/wheelhouse/internal/watchlist"
)

// Rejection reason keys tallied per symbol in the scan log.
const (
	RejectZeroBid          = "zero_bid"
	RejectBadStrike        = "bad_strike"
	RejectDTEOutOfRange    = "dte_out_of_range"
	RejectDeltaOutOfRange  = "delta_out_of_range"
	RejectLowVolume        = "low_volume"
	RejectLowOpenInterest  = "low_open_interest"
	RejectInvalidQuote     = "invalid_quote"
	RejectWideSpread       = "wide_spread"
	RejectLowPremium       = "low_premium"
	RejectBelowReference   = "below_reference_strike"
)

// History window for enrichment indicators: one trading year plus the
// RSI warmup.
const enrichmentHistoryDays = indicators.TradingDaysPerYear + indicators.DefaultRSIPeriod + 1

// Filter bounds one scan pass. Zero values for MinVolume,
// MinOpenInterest, MaxSpreadPct, MinPremium, MinDelta, and
// ReferenceStrike disable the corresponding check.
type Filter struct {
	Side            models.OptionType
	MinDTE          int
	MaxDTE          int
	MinDelta        float64 // absolute
	MaxDelta        float64 // absolute
	MinPremium      float64 // per-share mid
	MinVolume       int64
	MinOpenInterest int64
	MaxSpreadPct    float64
	ReferenceStrike float64 // accepted strikes must exceed this
}

// Validate rejects malformed bounds before any network traffic.
func (f Filter) Validate() error {
	if !f.Side.Valid() {
		return fmt.Errorf("filter side must be put or call, got %q", f.Side)
	}
	if f.MinDTE < 0 || f.MaxDTE <= 0 || f.MinDTE > f.MaxDTE {
		return fmt.Errorf("filter dte bounds must satisfy 0 <= min (%d) <= max (%d) with max > 0", f.MinDTE, f.MaxDTE)
	}
	if f.MaxDelta <= 0 || f.MaxDelta > 1 {
		return fmt.Errorf("filter max delta must be in (0,1], got %v", f.MaxDelta)
	}
	if f.MinDelta < 0 || f.MinDelta > f.MaxDelta {
		return fmt.Errorf("filter delta bounds must satisfy 0 <= min (%v) <= max (%v)", f.MinDelta, f.MaxDelta)
	}
	if f.MinPremium < 0 || f.MaxSpreadPct < 0 || f.MinVolume < 0 || f.MinOpenInterest < 0 {
		return fmt.Errorf("filter thresholds must be non-negative")
	}
	return nil
}

// ScanError records a per-symbol failure that degraded, but did not
// abort, the scan.
type ScanError struct {
	Symbol string `json:"symbol"`
	Stage  string `json:"stage"` // chains | history
	Reason string `json:"reason"`
}

// SymbolLog is the per-symbol accounting for one scan.
type SymbolLog struct {
	Symbol     string         `json:"symbol"`
	Considered int            `json:"considered"`
	Accepted   int            `json:"accepted"`
	Rejections map[string]int `json:"rejections,omitempty"`
	Error      *ScanError     `json:"error,omitempty"`
}

// Result is the ranked output of one scan.
type Result struct {
	ScanID        string                `json:"scan_id"`
	AsOf          time.Time             `json:"as_of"`
	Opportunities []models.Opportunity  `json:"opportunities"`
	Log           map[string]*SymbolLog `json:"log"`
	Errors        []ScanError           `json:"errors,omitempty"`
	Duration      time.Duration         `json:"duration"`
}

// Options tunes scanner behavior.
type Options struct {
	Concurrency   int  // worker pool size, default 6
	EnrichHistory bool // RSI / IV rank / readiness per surviving symbol
}

// Scanner runs concurrent chain scans against a market data gateway.
type Scanner struct {
	market broker.MarketDataGateway
	logger *logrus.Logger
	opts   Options
	retry  retry.Config
}

// New creates a Scanner. A nil logger falls back to the standard one.
func New(market broker.MarketDataGateway, logger *logrus.Logger, opts Options) *Scanner {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 6
	}
	return &Scanner{
		market: market,
		logger: logger,
		opts:   opts,
		// One retry per fetch keeps a degraded provider from doubling
		// the whole scan's latency.
		retry: retry.Config{
			MaxRetries:     1,
			InitialBackoff: 500 * time.Millisecond,
			MaxBackoff:     2 * time.Second,
		},
	}
}

type rankOrder int

const (
	rankAnnualized rankOrder = iota // annualized desc, |delta| asc, symbol asc
	rankDeepDelta                   // |delta| desc, DTE desc (LEAP selection)
	rankPremium                     // premium desc (short-call selection)
)

// Scan runs the cash-secured-put style scan over the watchlist.
func (s *Scanner) Scan(ctx context.Context, wl watchlist.Watchlist, filter Filter, asOf time.Time) (*Result, error) {
	return s.scan(ctx, wl, filter, asOf, rankAnnualized, s.opts.EnrichHistory)
}

// ScanLEAPs finds deep in-the-money long-dated calls suitable as the
// long leg of a poor man's covered call. Results rank deepest delta
// first, then longest runway.
func (s *Scanner) ScanLEAPs(ctx context.Context, wl watchlist.Watchlist, filter Filter, asOf time.Time) (*Result, error) {
	filter.Side = models.OptionTypeCall
	return s.scan(ctx, wl, filter, asOf, rankDeepDelta, false)
}

// ScanShortCalls finds short-call candidates above a reference strike,
// richest premium first. For PMCC the reference strike is the LEAP
// strike so assignment can never orphan the long leg.
func (s *Scanner) ScanShortCalls(ctx context.Context, wl watchlist.Watchlist, filter Filter, asOf time.Time) (*Result, error) {
	filter.Side = models.OptionTypeCall
	return s.scan(ctx, wl, filter, asOf, rankPremium, false)
}

func (s *Scanner) scan(ctx context.Context, wl watchlist.Watchlist, filter Filter, asOf time.Time, order rankOrder, enrich bool) (*Result, error) {
	if wl.Empty() {
		return nil, fmt.Errorf("watchlist is empty")
	}
	if err := filter.Validate(); err != nil {
		return nil, err
	}

	started := time.Now()
	result := &Result{
		ScanID: uuid.New().String(),
		AsOf:   asOf,
		Log:    make(map[string]*SymbolLog, wl.Len()),
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.opts.Concurrency)

	for _, symbol := range wl.Symbols() {
		symbol := symbol
		g.Go(func() error {
			log, opps := s.scanSymbol(gctx, symbol, filter, asOf, enrich)

			mu.Lock()
			result.Log[symbol] = log
			result.Opportunities = append(result.Opportunities, opps...)
			if log.Error != nil {
				result.Errors = append(result.Errors, *log.Error)
			}
			mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		// Cancelled mid-flight: partial results are not trustworthy.
		return nil, err
	}

	sortOpportunities(result.Opportunities, order)
	result.Duration = time.Since(started)

	s.logger.WithFields(logrus.Fields{
		"scan_id":       result.ScanID,
		"symbols":       wl.Len(),
		"opportunities": len(result.Opportunities),
		"errors":        len(result.Errors),
		"duration":      result.Duration,
	}).Info("scan complete")

	return result, nil
}

// scanSymbol fetches and filters one symbol's chains. Fetch failures
// degrade the symbol to an empty, error-annotated log entry.
func (s *Scanner) scanSymbol(ctx context.Context, symbol string, filter Filter, asOf time.Time, enrich bool) (*SymbolLog, []models.Opportunity) {
	log := &SymbolLog{Symbol: symbol, Rejections: make(map[string]int)}

	snapshot, err := retry.Do(ctx, s.retry, s.logger, "fetch chains "+symbol,
		func(ctx context.Context) (*broker.ChainSnapshot, error) {
			return s.market.GetOptionChainsCtx(ctx, symbol, filter.MinDTE, filter.MaxDTE, asOf)
		})
	if err != nil {
		log.Error = &ScanError{Symbol: symbol, Stage: "chains", Reason: err.Error()}
		return log, nil
	}

	var opps []models.Opportunity
	for _, contract := range snapshot.Contracts {
		if contract.OptionType != filter.Side {
			continue
		}
		log.Considered++

		if reason, ok := s.evaluate(contract, filter, asOf); !ok {
			log.Rejections[reason]++
			continue
		}

		opp, reason, ok := buildOpportunity(contract, snapshot.UnderlyingPrice, filter, asOf)
		if !ok {
			log.Rejections[reason]++
			continue
		}

		log.Accepted++
		opps = append(opps, opp)
	}

	if enrich && len(opps) > 0 {
		s.enrichSymbol(ctx, symbol, log, opps)
	}

	return log, opps
}

// evaluate applies the cheap pre-metric guards.
func (s *Scanner) evaluate(c models.ChainContract, filter Filter, asOf time.Time) (string, bool) {
	if c.Bid <= 0 {
		return RejectZeroBid, false
	}
	if c.Strike <= 0 {
		return RejectBadStrike, false
	}

	dte := c.DTE(asOf)
	if dte < filter.MinDTE || dte > filter.MaxDTE {
		return RejectDTEOutOfRange, false
	}

	absDelta := c.AbsDelta()
	if absDelta > filter.MaxDelta || absDelta < filter.MinDelta {
		return RejectDeltaOutOfRange, false
	}

	if filter.MinVolume > 0 && c.Volume < filter.MinVolume {
		return RejectLowVolume, false
	}
	if filter.MinOpenInterest > 0 && c.OpenInterest < filter.MinOpenInterest {
		return RejectLowOpenInterest, false
	}
	if filter.ReferenceStrike > 0 && c.Strike <= filter.ReferenceStrike {
		return RejectBelowReference, false
	}

	return "", true
}

// buildOpportunity computes the derived economics and applies the
// metric-dependent guards.
func buildOpportunity(c models.ChainContract, underlyingPrice float64, filter Filter, asOf time.Time) (models.Opportunity, string, bool) {
	mid, err := metrics.Mid(c.Bid, c.Ask)
	if err != nil || mid <= 0 {
		return models.Opportunity{}, RejectInvalidQuote, false
	}

	spreadPct, _ := metrics.SpreadPct(c.Bid, c.Ask, mid)
	if filter.MaxSpreadPct > 0 && spreadPct > filter.MaxSpreadPct {
		return models.Opportunity{}, RejectWideSpread, false
	}
	if filter.MinPremium > 0 && mid < filter.MinPremium {
		return models.Opportunity{}, RejectLowPremium, false
	}

	dte := c.DTE(asOf)
	premium := mid * models.SharesPerContract
	collateral := metrics.Collateral(c.Strike, 1)

	opp := models.Opportunity{
		ChainContract:    c,
		UnderlyingPrice:  underlyingPrice,
		Mid:              mid,
		DaysToExpiration: dte,
		Premium:          premium,
		Collateral:       collateral,
		SpreadPct:        spreadPct,
	}
	if roi, ok := metrics.ROI(premium, collateral); ok {
		opp.ROI = roi
		if ann, ok := metrics.AnnualizedReturn(roi, dte); ok {
			opp.AnnualizedReturn = ann
		}
	}
	if dist, ok := metrics.DistanceOTMPct(c.Strike, underlyingPrice); ok {
		opp.DistanceOTMPct = dist
	}

	return opp, "", true
}

// enrichSymbol attaches history-derived indicators to every surviving
// opportunity for the symbol. Failure leaves the fields nil and logs a
// history-stage error; the opportunities themselves stand.
func (s *Scanner) enrichSymbol(ctx context.Context, symbol string, log *SymbolLog, opps []models.Opportunity) {
	closes, err := retry.Do(ctx, s.retry, s.logger, "fetch history "+symbol,
		func(ctx context.Context) ([]float64, error) {
			return s.market.GetHistoricalClosesCtx(ctx, symbol, enrichmentHistoryDays)
		})
	if err != nil {
		log.Error = &ScanError{Symbol: symbol, Stage: "history", Reason: err.Error()}
		return
	}

	var rsiPtr, bbPtr, w52Ptr *float64
	if rsi, ok := indicators.RSI(closes, indicators.DefaultRSIPeriod); ok {
		rsiPtr = &rsi
	}
	if bb, ok := indicators.BollingerPctB(closes, indicators.DefaultBollingerPeriod, indicators.DefaultBollingerStdDev); ok {
		bbPtr = &bb
	}
	if w52, ok := indicators.FiftyTwoWeekPct(closes); ok {
		w52Ptr = &w52
	}
	readiness := indicators.ReadinessScore(rsiPtr, bbPtr, w52Ptr)

	// Implied volatility history is not exposed by the provider, so
	// rank the chain's median IV against realized volatility instead.
	rvSeries := indicators.RealizedVolSeries(closes, indicators.DefaultBollingerPeriod)

	for i := range opps {
		opps[i].RSI = rsiPtr
		opps[i].ReadinessScore = &readiness
		if len(rvSeries) > 0 && opps[i].IV > 0 {
			ivr := indicators.IVRank(opps[i].IV*100, rvSeries)
			opps[i].IVRank = &ivr
		}
	}
}

// sortOpportunities orders the merged result deterministically so the
// same inputs always rank the same way regardless of goroutine timing.
func sortOpportunities(opps []models.Opportunity, order rankOrder) {
	sort.SliceStable(opps, func(i, j int) bool {
		a, b := opps[i], opps[j]
		switch order {
		case rankDeepDelta:
			if a.AbsDelta() != b.AbsDelta() {
				return a.AbsDelta() > b.AbsDelta()
			}
			if a.DaysToExpiration != b.DaysToExpiration {
				return a.DaysToExpiration > b.DaysToExpiration
			}
		case rankPremium:
			if a.Premium != b.Premium {
				return a.Premium > b.Premium
			}
		default:
			if a.AnnualizedReturn != b.AnnualizedReturn {
				return a.AnnualizedReturn > b.AnnualizedReturn
			}
			if a.AbsDelta() != b.AbsDelta() {
				return a.AbsDelta() < b.AbsDelta()
			}
		}
		return a.Symbol < b.Symbol
	})
}
