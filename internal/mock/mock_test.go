package mock

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wheelhouse-trading/wheelhouse/internal/models"
)

var mockAsOf = time.Date(2025, 6, 2, 14, 30, 0, 0, time.UTC)

func TestGateway_DeterministicQuotes(t *testing.T) {
	g := NewGateway(100000)

	q1, err := g.GetQuoteCtx(context.Background(), "AAPL")
	require.NoError(t, err)
	q2, err := g.GetQuoteCtx(context.Background(), "AAPL")
	require.NoError(t, err)

	assert.Equal(t, q1.Last, q2.Last)
	assert.Greater(t, q1.Last, 0.0)
	assert.Less(t, q1.Bid, q1.Ask)
}

func TestGateway_ChainShape(t *testing.T) {
	g := NewGateway(100000)

	snap, err := g.GetOptionChainsCtx(context.Background(), "AAPL", 21, 45, mockAsOf)
	require.NoError(t, err)
	require.NotEmpty(t, snap.Contracts)
	assert.Greater(t, snap.UnderlyingPrice, 0.0)

	for _, c := range snap.Contracts {
		assert.True(t, c.OptionType.Valid())
		assert.Greater(t, c.Strike, 0.0)
		assert.Greater(t, c.Bid, 0.0)
		assert.Greater(t, c.Ask, c.Bid)
		dte := c.DTE(mockAsOf)
		assert.GreaterOrEqual(t, dte, 21)
		assert.LessOrEqual(t, dte, 45)
		if c.OptionType == models.OptionTypePut {
			assert.Less(t, c.Delta, 0.0)
		} else {
			assert.Greater(t, c.Delta, 0.0)
		}
	}
}

func TestGateway_HistoryEndsAtSpot(t *testing.T) {
	g := NewGateway(100000)

	quote, err := g.GetQuoteCtx(context.Background(), "MSFT")
	require.NoError(t, err)

	closes, err := g.GetHistoricalClosesCtx(context.Background(), "MSFT", 60)
	require.NoError(t, err)
	require.Len(t, closes, 60)
	assert.InDelta(t, quote.Last, closes[59], 1e-9)
}

func TestGateway_PaperFillBooksPosition(t *testing.T) {
	g := NewGateway(50000)

	resp, err := g.PlaceOptionOrderCtx(context.Background(), models.OrderRequest{
		OptionSymbol: "AAPL250704P00185000",
		Underlying:   "AAPL",
		OptionType:   models.OptionTypePut,
		Strike:       185,
		Side:         models.SideSellToOpen,
		Quantity:     1,
		LimitPrice:   2.50,
	})
	require.NoError(t, err)
	assert.Equal(t, "filled", resp.Order.Status)

	positions, err := g.GetPositionsCtx(context.Background())
	require.NoError(t, err)
	require.Len(t, positions, 1)
	assert.InDelta(t, -1.0, positions[0].Quantity, 1e-9)
	assert.InDelta(t, -250.0, positions[0].CostBasis, 1e-9)

	bp, err := g.GetOptionBuyingPowerCtx(context.Background())
	require.NoError(t, err)
	assert.InDelta(t, 50000-18500, bp, 1e-9)
}

func TestGateway_RejectsInvalidOrder(t *testing.T) {
	g := NewGateway(50000)
	_, err := g.PlaceOptionOrderCtx(context.Background(), models.OrderRequest{
		Side: models.SideSellToOpen, Quantity: 0, LimitPrice: 1,
	})
	assert.Error(t, err)
}
