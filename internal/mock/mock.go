// Package mock provides deterministic in-memory gateways for paper
// trading and tests. All data derives from a per-symbol seed so repeat
// runs produce identical scans.
package mock

import (
	"context"
	"fmt"
	"hash/fnv"
	"math"
	"sync"
	"time"

	"github.com/wheelhouse-trading/wheelhouse/internal/broker"
	"github.com/wheelhouse-trading/wheelhouse/internal/models"
)

// Gateway implements both the market data and execution interfaces
// against synthetic data. Safe for concurrent use.
type Gateway struct {
	mu          sync.Mutex
	buyingPower float64
	positions   []broker.PositionItem
	working     []broker.WorkingOrder
	nextOrderID int
}

var (
	_ broker.MarketDataGateway = (*Gateway)(nil)
	_ broker.ExecutionGateway  = (*Gateway)(nil)
)

// NewGateway returns a paper gateway with the given starting buying
// power and no open positions.
func NewGateway(buyingPower float64) *Gateway {
	return &Gateway{buyingPower: buyingPower, nextOrderID: 1000}
}

// SeedPositions preloads positions, for reconciliation demos and tests.
func (g *Gateway) SeedPositions(items []broker.PositionItem) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.positions = append(g.positions, items...)
}

// basePrice derives a stable per-symbol price in the 40-400 range.
func basePrice(symbol string) float64 {
	h := fnv.New32a()
	h.Write([]byte(symbol))
	return 40 + float64(h.Sum32()%36000)/100
}

// GetQuoteCtx returns a synthetic quote. Option symbols are priced off
// their parsed strike and the underlying's base price.
func (g *Gateway) GetQuoteCtx(_ context.Context, symbol string) (*broker.QuoteItem, error) {
	if contract, err := broker.ParseOSI(symbol); err == nil {
		spot := basePrice(contract.Underlying)
		mid := optionMid(spot, contract.Strike, contract.OptionType)
		return &broker.QuoteItem{
			Symbol: symbol,
			Last:   mid,
			Bid:    mid * 0.97,
			Ask:    mid * 1.03,
		}, nil
	}

	price := basePrice(symbol)
	return &broker.QuoteItem{
		Symbol: symbol,
		Last:   price,
		Bid:    price - 0.02,
		Ask:    price + 0.02,
		Volume: 1_000_000,
	}, nil
}

// optionMid is a crude intrinsic-plus-time-value price, enough for
// plausible scan economics.
func optionMid(spot, strike float64, optType models.OptionType) float64 {
	var intrinsic float64
	if optType == models.OptionTypePut {
		intrinsic = math.Max(0, strike-spot)
	} else {
		intrinsic = math.Max(0, spot-strike)
	}
	timeValue := spot * 0.012 * math.Exp(-math.Abs(spot-strike)/spot*4)
	return math.Max(0.05, intrinsic+timeValue)
}

// GetOptionChainsCtx fabricates a chain with strikes every 2.5% around
// the base price for one expiration in the middle of the DTE window.
func (g *Gateway) GetOptionChainsCtx(_ context.Context, symbol string, minDTE, maxDTE int, asOf time.Time) (*broker.ChainSnapshot, error) {
	spot := basePrice(symbol)
	expiration := asOf.AddDate(0, 0, (minDTE+maxDTE)/2).UTC().Truncate(24 * time.Hour)

	snapshot := &broker.ChainSnapshot{
		Underlying:      symbol,
		UnderlyingPrice: spot,
		AsOf:            asOf,
	}

	for i := -8; i <= 8; i++ {
		strike := math.Round(spot*(1+float64(i)*0.025)*2) / 2
		if strike <= 0 {
			continue
		}
		for _, optType := range []models.OptionType{models.OptionTypePut, models.OptionTypeCall} {
			mid := optionMid(spot, strike, optType)
			delta := syntheticDelta(spot, strike, optType)
			snapshot.Contracts = append(snapshot.Contracts, models.ChainContract{
				Symbol:       broker.FormatOSI(symbol, expiration, optType, strike),
				Underlying:   symbol,
				Strike:       strike,
				Expiration:   expiration,
				OptionType:   optType,
				Bid:          mid * 0.97,
				Ask:          mid * 1.03,
				Last:         mid,
				Volume:       500,
				OpenInterest: 2000,
				Delta:        delta,
				IV:           0.22 + math.Abs(float64(i))*0.01,
			})
		}
	}

	return snapshot, nil
}

// syntheticDelta maps moneyness onto a plausible delta curve.
func syntheticDelta(spot, strike float64, optType models.OptionType) float64 {
	moneyness := (spot - strike) / spot
	callDelta := 0.5 + moneyness*4
	callDelta = math.Max(0.02, math.Min(0.98, callDelta))
	if optType == models.OptionTypeCall {
		return callDelta
	}
	return callDelta - 1
}

// GetHistoricalClosesCtx synthesizes a gently oscillating close series
// ending at the base price.
func (g *Gateway) GetHistoricalClosesCtx(_ context.Context, symbol string, days int) ([]float64, error) {
	if days <= 0 {
		return nil, fmt.Errorf("days must be positive, got %d", days)
	}
	spot := basePrice(symbol)

	closes := make([]float64, days)
	for i := range closes {
		phase := float64(days-1-i) / 21
		closes[i] = spot * (1 + 0.04*math.Sin(phase))
	}
	closes[days-1] = spot
	return closes, nil
}

// GetPositionsCtx returns seeded positions plus any filled paper orders.
func (g *Gateway) GetPositionsCtx(context.Context) ([]broker.PositionItem, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]broker.PositionItem, len(g.positions))
	copy(out, g.positions)
	return out, nil
}

// GetOptionBuyingPowerCtx returns the remaining paper buying power.
func (g *Gateway) GetOptionBuyingPowerCtx(context.Context) (float64, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.buyingPower, nil
}

// PlaceOptionOrderCtx fills the order immediately at its limit, books
// the resulting position, and adjusts buying power.
func (g *Gateway) PlaceOptionOrderCtx(_ context.Context, req models.OrderRequest) (*broker.OrderResponse, error) {
	if !req.Side.Valid() || req.Quantity <= 0 || req.LimitPrice <= 0 {
		return nil, fmt.Errorf("invalid order request: %+v", req)
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	qty := float64(req.Quantity)
	premium := req.LimitPrice * models.SharesPerContract * qty

	quantity := qty
	costBasis := premium
	if req.Side == models.SideSellToOpen {
		quantity = -qty
		costBasis = -premium
		g.buyingPower -= req.Strike * models.SharesPerContract * qty
	} else {
		g.buyingPower -= premium
	}

	g.positions = append(g.positions, broker.PositionItem{
		Symbol:       req.OptionSymbol,
		Quantity:     quantity,
		CostBasis:    costBasis,
		DateAcquired: time.Now().UTC().Format(time.RFC3339),
	})

	g.nextOrderID++
	resp := &broker.OrderResponse{}
	resp.Order.ID = g.nextOrderID
	resp.Order.Status = "filled"
	resp.Order.Symbol = req.Underlying
	return resp, nil
}

// GetWorkingOrdersCtx returns nothing; paper orders fill instantly.
func (g *Gateway) GetWorkingOrdersCtx(context.Context) ([]broker.WorkingOrder, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]broker.WorkingOrder, len(g.working))
	copy(out, g.working)
	return out, nil
}

// CancelOrderCtx is a no-op success in paper mode.
func (g *Gateway) CancelOrderCtx(context.Context, int) error { return nil }
