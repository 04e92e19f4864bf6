package positions

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wheelhouse-trading/wheelhouse/internal/broker"
	"github.com/wheelhouse-trading/wheelhouse/internal/models"
)

var reconcileAsOf = time.Date(2025, 6, 2, 14, 30, 0, 0, time.UTC)

type fakeQuotes struct {
	prices map[string]float64
	errs   map[string]error
}

func (f *fakeQuotes) GetQuoteCtx(_ context.Context, symbol string) (*broker.QuoteItem, error) {
	if err, ok := f.errs[symbol]; ok {
		return nil, err
	}
	price, ok := f.prices[symbol]
	if !ok {
		return nil, errors.New("unknown symbol")
	}
	return &broker.QuoteItem{Symbol: symbol, Last: price}, nil
}

func (f *fakeQuotes) GetOptionChainsCtx(context.Context, string, int, int, time.Time) (*broker.ChainSnapshot, error) {
	return nil, errors.New("not implemented")
}

func (f *fakeQuotes) GetHistoricalClosesCtx(context.Context, string, int) ([]float64, error) {
	return nil, errors.New("not implemented")
}

type fakePositions struct {
	items []broker.PositionItem
	err   error
}

func (f *fakePositions) GetPositionsCtx(context.Context) ([]broker.PositionItem, error) {
	return f.items, f.err
}

func (f *fakePositions) GetOptionBuyingPowerCtx(context.Context) (float64, error) {
	return 0, errors.New("not implemented")
}

func (f *fakePositions) PlaceOptionOrderCtx(context.Context, models.OrderRequest) (*broker.OrderResponse, error) {
	return nil, errors.New("not implemented")
}

func (f *fakePositions) GetWorkingOrdersCtx(context.Context) ([]broker.WorkingOrder, error) {
	return nil, errors.New("not implemented")
}

func (f *fakePositions) CancelOrderCtx(context.Context, int) error {
	return errors.New("not implemented")
}

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func findStrategy(t *testing.T, report *Report, kind models.StrategyKind, underlying string) models.Strategy {
	t.Helper()
	for _, s := range report.Strategies {
		if s.Kind == kind && s.Underlying == underlying {
			return s
		}
	}
	t.Fatalf("no %s strategy for %s in %+v", kind, underlying, report.Strategies)
	return models.Strategy{}
}

func TestReconcile_CashSecuredPut(t *testing.T) {
	market := &fakeQuotes{prices: map[string]float64{
		"AAPL":                195,
		"AAPL250704P00185000": 1.80,
	}}
	execution := &fakePositions{items: []broker.PositionItem{
		{Symbol: "AAPL250704P00185000", Quantity: -2, CostBasis: -460},
	}}

	report, err := New(market, execution, quietLogger()).Reconcile(context.Background(), reconcileAsOf)
	require.NoError(t, err)
	require.Len(t, report.Strategies, 1)

	csp := findStrategy(t, report, models.KindCashSecuredPut, "AAPL")
	require.Len(t, csp.ShortLegs, 1)

	leg := csp.ShortLegs[0]
	assert.True(t, leg.MarkKnown)
	assert.InDelta(t, 460.0, leg.PremiumCollected, 1e-9)
	assert.InDelta(t, 360.0, leg.MarkValue, 1e-9) // 1.80 * 100 * 2
	assert.InDelta(t, 100.0, leg.PnL, 1e-9)
	assert.Equal(t, 32, leg.DTE)

	assert.InDelta(t, 37000.0, csp.Collateral, 1e-9) // 185 * 100 * 2
	assert.InDelta(t, 100.0, csp.NetPnL, 1e-9)

	require.Len(t, csp.Risks, 1)
	// 195 vs 185 strike is over 5% away.
	assert.Equal(t, models.RiskLow, csp.Risks[0].Tier)

	key := models.ExposureKey{Underlying: "AAPL", OptionType: models.OptionTypePut, Short: true}
	assert.Equal(t, 2, report.Exposure.Contracts(key))
}

func TestReconcile_PMCC(t *testing.T) {
	market := &fakeQuotes{prices: map[string]float64{
		"AAPL":                195,
		"AAPL260618C00140000": 60.00,
		"AAPL250704C00205000": 1.90,
	}}
	execution := &fakePositions{items: []broker.PositionItem{
		{Symbol: "AAPL260618C00140000", Quantity: 1, CostBasis: 5800},
		{Symbol: "AAPL250704C00205000", Quantity: -1, CostBasis: -230},
	}}

	report, err := New(market, execution, quietLogger()).Reconcile(context.Background(), reconcileAsOf)
	require.NoError(t, err)

	pmcc := findStrategy(t, report, models.KindPoorMansCoveredCall, "AAPL")
	require.NotNil(t, pmcc.LongLeg)
	require.Len(t, pmcc.ShortLegs, 1)

	assert.InDelta(t, 140.0, pmcc.LongLeg.Strike, 1e-9)
	assert.InDelta(t, 6000.0-5800.0, pmcc.LongLeg.PnL, 1e-9)

	assert.InDelta(t, 230.0, pmcc.PremiumCollected, 1e-9)
	assert.InDelta(t, 230.0/5800.0*100, pmcc.ROIToTargetPct, 1e-9)
	assert.Equal(t, models.ProgressBuilding, pmcc.Progress)

	// Short leg premium 230 vs 190 close cost, plus 200 on the LEAP.
	assert.InDelta(t, 240.0, pmcc.NetPnL, 1e-9)

	require.Len(t, pmcc.Risks, 1)
	// 195 is within 5% of the 205 strike.
	assert.Equal(t, models.RiskModerate, pmcc.Risks[0].Tier)
}

func TestReconcile_PMCCPairsHighestCoveringStrike(t *testing.T) {
	market := &fakeQuotes{prices: map[string]float64{
		"AAPL":                195,
		"AAPL260618C00140000": 60.00,
		"AAPL260618C00160000": 45.00,
		"AAPL250704C00150000": 46.00,
	}}
	execution := &fakePositions{items: []broker.PositionItem{
		{Symbol: "AAPL260618C00140000", Quantity: 1, CostBasis: 5800},
		{Symbol: "AAPL260618C00160000", Quantity: 1, CostBasis: 4300},
		{Symbol: "AAPL250704C00150000", Quantity: -1, CostBasis: -4500},
	}}

	report, err := New(market, execution, quietLogger()).Reconcile(context.Background(), reconcileAsOf)
	require.NoError(t, err)

	var paired, bare int
	for _, s := range report.Strategies {
		if s.Kind != models.KindPoorMansCoveredCall {
			continue
		}
		if len(s.ShortLegs) == 1 {
			paired++
			// 140 is the highest strike at or below the 150 short.
			assert.InDelta(t, 140.0, s.LongLeg.Strike, 1e-9)
		} else {
			bare++
			assert.InDelta(t, 160.0, s.LongLeg.Strike, 1e-9)
		}
	}
	assert.Equal(t, 1, paired)
	assert.Equal(t, 1, bare)
}

func TestReconcile_CoveredCall(t *testing.T) {
	market := &fakeQuotes{prices: map[string]float64{
		"MSFT":                420,
		"MSFT250704C00440000": 3.10,
	}}
	execution := &fakePositions{items: []broker.PositionItem{
		{Symbol: "MSFT", Quantity: 100, CostBasis: 40000},
		{Symbol: "MSFT250704C00440000", Quantity: -1, CostBasis: -350},
	}}

	report, err := New(market, execution, quietLogger()).Reconcile(context.Background(), reconcileAsOf)
	require.NoError(t, err)
	require.Len(t, report.Strategies, 1)

	cc := findStrategy(t, report, models.KindCoveredCall, "MSFT")
	require.NotNil(t, cc.LongLeg)
	assert.Equal(t, "MSFT", cc.LongLeg.Symbol)
	assert.InDelta(t, 42000.0, cc.LongLeg.MarkValue, 1e-9)

	assert.InDelta(t, 350.0, cc.PremiumCollected, 1e-9)
	// Stock up 2000, short call premium 350 less 310 to close.
	assert.InDelta(t, 2040.0, cc.NetPnL, 1e-9)
}

func TestReconcile_QuoteFailureDegradesLeg(t *testing.T) {
	market := &fakeQuotes{
		prices: map[string]float64{"AAPL": 195},
		errs:   map[string]error{"AAPL250704P00185000": errors.New("quote service down")},
	}
	execution := &fakePositions{items: []broker.PositionItem{
		{Symbol: "AAPL250704P00185000", Quantity: -1, CostBasis: -230},
	}}

	report, err := New(market, execution, quietLogger()).Reconcile(context.Background(), reconcileAsOf)
	require.NoError(t, err)

	csp := findStrategy(t, report, models.KindCashSecuredPut, "AAPL")
	leg := csp.ShortLegs[0]
	assert.False(t, leg.MarkKnown)
	assert.InDelta(t, 0.0, leg.PnL, 1e-9)
	assert.InDelta(t, 230.0, leg.PremiumCollected, 1e-9)

	// Risk still derives from the underlying quote.
	require.Len(t, csp.Risks, 1)
}

func TestReconcile_UnderlyingQuoteFailureSkipsRisk(t *testing.T) {
	market := &fakeQuotes{
		prices: map[string]float64{"AAPL250704P00185000": 1.80},
		errs:   map[string]error{"AAPL": errors.New("quote service down")},
	}
	execution := &fakePositions{items: []broker.PositionItem{
		{Symbol: "AAPL250704P00185000", Quantity: -1, CostBasis: -230},
	}}

	report, err := New(market, execution, quietLogger()).Reconcile(context.Background(), reconcileAsOf)
	require.NoError(t, err)

	csp := findStrategy(t, report, models.KindCashSecuredPut, "AAPL")
	assert.Empty(t, csp.Risks)
	assert.True(t, csp.ShortLegs[0].MarkKnown)
}

func TestReconcile_UnclassifiedRemainder(t *testing.T) {
	market := &fakeQuotes{prices: map[string]float64{
		"NVDA":                120,
		"NVDA250704P00110000": 2.00,
	}}
	execution := &fakePositions{items: []broker.PositionItem{
		{Symbol: "NVDA250704P00110000", Quantity: 1, CostBasis: 180}, // long put fits no income shape
	}}

	report, err := New(market, execution, quietLogger()).Reconcile(context.Background(), reconcileAsOf)
	require.NoError(t, err)
	require.Len(t, report.Strategies, 1)

	other := findStrategy(t, report, models.KindUnclassified, "NVDA")
	require.Len(t, other.OtherLegs, 1)
	assert.InDelta(t, 20.0, other.NetPnL, 1e-9) // marked 200 vs 180 basis
}

func TestReconcile_PositionsFetchFails(t *testing.T) {
	execution := &fakePositions{err: errors.New("provider down")}
	_, err := New(&fakeQuotes{}, execution, quietLogger()).Reconcile(context.Background(), reconcileAsOf)
	assert.Error(t, err)
}
