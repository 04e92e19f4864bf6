// Package positions reconciles raw broker positions into classified
// income strategies with live marks, P/L, and assignment-risk views.
package positions

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/wheelhouse-trading/wheelhouse/internal/broker"
	"github.com/wheelhouse-trading/wheelhouse/internal/models"
	"github.com/wheelhouse-trading/wheelhouse/internal/risk"
)

const (
	// A long call counts as the PMCC long leg when it expires at least
	// this many days after the short call written against it.
	pmccGapDays = 90

	// A lone long call with at least this much runway is treated as a
	// PMCC awaiting its first short call rather than unclassified.
	leapMinDTE = 270
)

// Report is the reconciled view of the whole account at one moment.
type Report struct {
	AsOf       time.Time         `json:"as_of"`
	Strategies []models.Strategy `json:"strategies"`
	Exposure   models.Exposure   `json:"exposure"`
}

// Reconciler turns broker positions into classified strategies.
type Reconciler struct {
	market    broker.MarketDataGateway
	execution broker.ExecutionGateway
	logger    *logrus.Logger
}

// New creates a Reconciler. A nil logger falls back to the standard one.
func New(market broker.MarketDataGateway, execution broker.ExecutionGateway, logger *logrus.Logger) *Reconciler {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Reconciler{market: market, execution: execution, logger: logger}
}

// Reconcile fetches positions, marks every leg, groups legs by
// underlying, and classifies each group. Individual quote failures
// degrade the affected leg (MarkKnown false, P/L zeroed) instead of
// failing the whole report.
func (r *Reconciler) Reconcile(ctx context.Context, asOf time.Time) (*Report, error) {
	items, err := r.execution.GetPositionsCtx(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetching positions: %w", err)
	}

	byUnderlying := make(map[string][]models.Leg)
	for _, item := range items {
		leg := r.buildLeg(ctx, item, asOf)
		byUnderlying[leg.Underlying] = append(byUnderlying[leg.Underlying], leg)
	}

	report := &Report{AsOf: asOf, Exposure: make(models.Exposure)}

	underlyings := make([]string, 0, len(byUnderlying))
	for u := range byUnderlying {
		underlyings = append(underlyings, u)
	}
	sort.Strings(underlyings)

	for _, underlying := range underlyings {
		legs := byUnderlying[underlying]
		spot, spotKnown := r.underlyingPrice(ctx, underlying)

		for _, strat := range classify(underlying, legs) {
			finalize(&strat, spot, spotKnown)
			report.Strategies = append(report.Strategies, strat)
		}

		for _, leg := range legs {
			if leg.OptionType.Valid() {
				key := models.ExposureKey{Underlying: underlying, OptionType: leg.OptionType, Short: leg.Short()}
				report.Exposure[key] += leg.Contracts()
			}
		}
	}

	r.logger.WithFields(logrus.Fields{
		"positions":  len(items),
		"strategies": len(report.Strategies),
	}).Info("positions reconciled")

	return report, nil
}

// buildLeg converts one raw position into a marked leg. Option symbols
// that fail OSI parsing are treated as equity.
func (r *Reconciler) buildLeg(ctx context.Context, item broker.PositionItem, asOf time.Time) models.Leg {
	leg := models.Leg{
		Symbol:    item.Symbol,
		Quantity:  int(item.Quantity),
		CostBasis: item.CostBasis,
	}

	contract, err := broker.ParseOSI(item.Symbol)
	if err != nil {
		leg.Underlying = item.Symbol
	} else {
		leg.Underlying = contract.Underlying
		leg.OptionType = contract.OptionType
		leg.Strike = contract.Strike
		leg.Expiration = contract.Expiration
		leg.DTE = models.ChainContract{Expiration: contract.Expiration}.DTE(asOf)
		if leg.Short() {
			leg.PremiumCollected = -item.CostBasis
		}
	}

	r.markLeg(ctx, &leg)
	return leg
}

// markLeg attaches the current mark and P/L. A failed quote leaves
// MarkKnown false and P/L at zero; stale numbers are worse than absent
// ones.
func (r *Reconciler) markLeg(ctx context.Context, leg *models.Leg) {
	quote, err := r.market.GetQuoteCtx(ctx, leg.Symbol)
	if err != nil {
		r.logger.WithError(err).WithField("symbol", leg.Symbol).Warn("quote unavailable, leg unmarked")
		return
	}

	price := quote.Price()
	if price <= 0 {
		return
	}

	leg.MarkKnown = true
	if !leg.OptionType.Valid() {
		leg.MarkValue = price * float64(leg.Quantity)
		leg.PnL = leg.MarkValue - leg.CostBasis
		return
	}

	if leg.Short() {
		// Cost to buy the short leg back.
		leg.MarkValue = price * models.SharesPerContract * float64(leg.Contracts())
		leg.PnL = leg.PremiumCollected - leg.MarkValue
	} else {
		leg.MarkValue = price * models.SharesPerContract * float64(leg.Quantity)
		leg.PnL = leg.MarkValue - leg.CostBasis
	}
}

func (r *Reconciler) underlyingPrice(ctx context.Context, underlying string) (float64, bool) {
	quote, err := r.market.GetQuoteCtx(ctx, underlying)
	if err != nil {
		r.logger.WithError(err).WithField("symbol", underlying).Warn("underlying quote unavailable, risk view skipped")
		return 0, false
	}
	price := quote.Price()
	return price, price > 0
}

// classify splits one underlying's legs into strategies. Shapes that
// fit nothing are reported as unclassified rather than forced into the
// nearest bucket.
func classify(underlying string, legs []models.Leg) []models.Strategy {
	var (
		equity     *models.Leg
		longCalls  []models.Leg
		shortCalls []models.Leg
		strategies []models.Strategy
		others     []models.Leg
	)

	for _, leg := range legs {
		switch {
		case !leg.OptionType.Valid() && leg.Quantity > 0:
			l := leg
			equity = &l
		case leg.OptionType == models.OptionTypePut && leg.Short():
			// Every short put stands alone as a cash-secured put.
			strategies = append(strategies, models.Strategy{
				Kind:       models.KindCashSecuredPut,
				Underlying: underlying,
				ShortLegs:  []models.Leg{leg},
			})
		case leg.OptionType == models.OptionTypeCall && leg.Short():
			shortCalls = append(shortCalls, leg)
		case leg.OptionType == models.OptionTypeCall && leg.Quantity > 0:
			longCalls = append(longCalls, leg)
		default:
			others = append(others, leg)
		}
	}

	switch {
	case equity != nil && len(shortCalls) > 0 && equity.Quantity >= int(models.SharesPerContract):
		strategies = append(strategies, models.Strategy{
			Kind:       models.KindCoveredCall,
			Underlying: underlying,
			LongLeg:    equity,
			ShortLegs:  shortCalls,
		})
	case len(longCalls) > 0:
		pmcc, leftover := pairPMCC(underlying, longCalls, shortCalls)
		strategies = append(strategies, pmcc...)
		others = append(others, leftover...)
		if equity != nil {
			others = append(others, *equity)
		}
	default:
		if equity != nil {
			others = append(others, *equity)
		}
		others = append(others, shortCalls...)
	}

	if len(others) > 0 {
		strategies = append(strategies, models.Strategy{
			Kind:       models.KindUnclassified,
			Underlying: underlying,
			OtherLegs:  others,
		})
	}

	return strategies
}

// pairPMCC matches short calls to their covering long calls. Each short
// call takes the highest-strike long call at or below its own strike
// that also expires at least pmccGapDays later; when none qualifies by
// strike, the latest-dated long call covers it.
func pairPMCC(underlying string, longCalls, shortCalls []models.Leg) (strategies []models.Strategy, leftover []models.Leg) {
	// Stable pairing: deepest (lowest) strike LEAPs are considered last
	// so shallow LEAPs absorb shallow shorts first.
	sort.SliceStable(longCalls, func(i, j int) bool { return longCalls[i].Strike > longCalls[j].Strike })

	shortsByLong := make(map[int][]models.Leg)
	for _, short := range shortCalls {
		idx := -1
		for i, long := range longCalls {
			if long.Strike <= short.Strike && gapDays(long.Expiration, short.Expiration) >= pmccGapDays {
				idx = i
				break
			}
		}
		if idx < 0 {
			idx = latestDated(longCalls, short.Expiration)
		}
		if idx < 0 {
			leftover = append(leftover, short)
			continue
		}
		shortsByLong[idx] = append(shortsByLong[idx], short)
	}

	for i := range longCalls {
		long := longCalls[i]
		shorts := shortsByLong[i]
		if len(shorts) == 0 && long.DTE < leapMinDTE {
			leftover = append(leftover, long)
			continue
		}
		strategies = append(strategies, models.Strategy{
			Kind:       models.KindPoorMansCoveredCall,
			Underlying: underlying,
			LongLeg:    &long,
			ShortLegs:  shorts,
		})
	}

	return strategies, leftover
}

// latestDated returns the index of the long call expiring furthest out,
// provided it still clears the gap requirement against the short.
func latestDated(longCalls []models.Leg, shortExpiration time.Time) int {
	idx := -1
	for i, long := range longCalls {
		if gapDays(long.Expiration, shortExpiration) < pmccGapDays {
			continue
		}
		if idx < 0 || long.Expiration.After(longCalls[idx].Expiration) {
			idx = i
		}
	}
	return idx
}

func gapDays(long, short time.Time) int {
	return int(long.Sub(short).Hours() / 24)
}

// finalize computes the strategy-level economics and risk views once
// the legs are in place.
func finalize(s *models.Strategy, spot float64, spotKnown bool) {
	for _, leg := range s.ShortLegs {
		s.PremiumCollected += leg.PremiumCollected
		s.NetPnL += leg.PnL
		if s.Kind == models.KindCashSecuredPut {
			s.Collateral += leg.Strike * models.SharesPerContract * float64(leg.Contracts())
		}
		if spotKnown {
			s.Risks = append(s.Risks, risk.Assess(leg.Symbol, s.Underlying, spot, leg.Strike, leg.OptionType, leg.DTE))
		}
	}
	if s.LongLeg != nil {
		s.NetPnL += s.LongLeg.PnL
	}
	for _, leg := range s.OtherLegs {
		s.NetPnL += leg.PnL
	}

	// Premium recovered against the long leg's cost is the income
	// progress yardstick for covered structures.
	if s.LongLeg != nil && s.LongLeg.CostBasis > 0 {
		s.ROIToTargetPct = s.PremiumCollected / s.LongLeg.CostBasis * 100
		s.Progress = models.ProgressForROI(s.ROIToTargetPct)
	}
}
