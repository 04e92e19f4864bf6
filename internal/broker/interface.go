// Package broker provides the Tradier market-data and execution
// clients behind the gateway interfaces the engine consumes.
package broker

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"

	"github.com/wheelhouse-trading/wheelhouse/internal/models"
)

// ChainSnapshot is one symbol's option chain at a fixed as-of moment,
// flattened across the expirations inside the requested DTE window.
type ChainSnapshot struct {
	Underlying      string
	UnderlyingPrice float64
	AsOf            time.Time
	Contracts       []models.ChainContract
}

// WorkingOrder is a live, not-yet-terminal order at the provider.
type WorkingOrder struct {
	ID         int     `json:"id"`
	Symbol     string  `json:"symbol"`
	Side       string  `json:"side"`
	Status     string  `json:"status"`
	Quantity   float64 `json:"quantity"`
	Price      float64 `json:"price"`
	CreateDate string  `json:"create_date"`
	Tag        string  `json:"tag,omitempty"`
}

// MarketDataGateway provides read-only market data. Implementations
// must be safe for concurrent use; the scanner fans out across symbols.
type MarketDataGateway interface {
	// GetQuoteCtx returns the current quote for an equity or option symbol.
	GetQuoteCtx(ctx context.Context, symbol string) (*QuoteItem, error)

	// GetOptionChainsCtx returns the chain snapshot for every expiration
	// whose DTE relative to asOf falls within [minDTE, maxDTE].
	GetOptionChainsCtx(ctx context.Context, symbol string, minDTE, maxDTE int, asOf time.Time) (*ChainSnapshot, error)

	// GetHistoricalClosesCtx returns up to days daily closes, oldest first.
	GetHistoricalClosesCtx(ctx context.Context, symbol string, days int) ([]float64, error)
}

// ExecutionGateway provides account state and order placement.
type ExecutionGateway interface {
	GetPositionsCtx(ctx context.Context) ([]PositionItem, error)
	GetOptionBuyingPowerCtx(ctx context.Context) (float64, error)
	PlaceOptionOrderCtx(ctx context.Context, req models.OrderRequest) (*OrderResponse, error)
	GetWorkingOrdersCtx(ctx context.Context) ([]WorkingOrder, error)
	CancelOrderCtx(ctx context.Context, orderID int) error
}

// Compile-time gateway conformance.
var (
	_ MarketDataGateway = (*TradierAPI)(nil)
	_ ExecutionGateway  = (*TradierAPI)(nil)
	_ ExecutionGateway  = (*CircuitBreakerExecution)(nil)
)

// CircuitBreakerExecution wraps an ExecutionGateway with a circuit
// breaker so a degraded provider stops absorbing order attempts.
type CircuitBreakerExecution struct {
	gateway ExecutionGateway
	breaker *gobreaker.CircuitBreaker
}

// CircuitBreakerSettings configures circuit breaker behavior.
type CircuitBreakerSettings struct {
	MaxRequests  uint32        // max requests when half-open
	Interval     time.Duration // reset counts interval
	Timeout      time.Duration // open circuit duration
	MinRequests  uint32        // min requests before tripping
	FailureRatio float64       // failure ratio threshold
}

// NewCircuitBreakerExecution wraps gateway with default settings.
func NewCircuitBreakerExecution(gateway ExecutionGateway, logger *logrus.Logger) *CircuitBreakerExecution {
	return NewCircuitBreakerExecutionWithSettings(gateway, logger, CircuitBreakerSettings{
		MaxRequests:  3,
		Interval:     60 * time.Second,
		Timeout:      30 * time.Second,
		MinRequests:  5,
		FailureRatio: 0.6,
	})
}

// NewCircuitBreakerExecutionWithSettings wraps gateway with custom settings.
func NewCircuitBreakerExecutionWithSettings(
	gateway ExecutionGateway,
	logger *logrus.Logger,
	settings CircuitBreakerSettings,
) *CircuitBreakerExecution {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	gbSettings := gobreaker.Settings{
		Name:        "ExecutionCircuitBreaker",
		MaxRequests: settings.MaxRequests,
		Interval:    settings.Interval,
		Timeout:     settings.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests == 0 || counts.Requests < settings.MinRequests {
				return false
			}
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return failureRatio >= settings.FailureRatio
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.WithFields(logrus.Fields{
				"breaker": name,
				"from":    from.String(),
				"to":      to.String(),
			}).Warn("circuit breaker state changed")
		},
	}

	return &CircuitBreakerExecution{
		gateway: gateway,
		breaker: gobreaker.NewCircuitBreaker(gbSettings),
	}
}

// execBreaker is a generic helper for circuit breaker wrapper methods.
func execBreaker[T any](
	breaker *gobreaker.CircuitBreaker,
	gateway ExecutionGateway,
	fn func(ExecutionGateway) (T, error),
) (T, error) {
	var zero T
	res, err := breaker.Execute(func() (interface{}, error) { return fn(gateway) })
	if err != nil {
		return zero, err
	}
	if res == nil {
		return zero, nil
	}
	v, ok := res.(T)
	if !ok {
		return zero, errors.New("circuit breaker: type assertion failed")
	}
	return v, nil
}

// GetPositionsCtx wraps the underlying gateway call with circuit breaker.
func (c *CircuitBreakerExecution) GetPositionsCtx(ctx context.Context) ([]PositionItem, error) {
	return execBreaker(c.breaker, c.gateway, func(g ExecutionGateway) ([]PositionItem, error) {
		return g.GetPositionsCtx(ctx)
	})
}

// GetOptionBuyingPowerCtx wraps the underlying gateway call with circuit breaker.
func (c *CircuitBreakerExecution) GetOptionBuyingPowerCtx(ctx context.Context) (float64, error) {
	return execBreaker(c.breaker, c.gateway, func(g ExecutionGateway) (float64, error) {
		return g.GetOptionBuyingPowerCtx(ctx)
	})
}

// PlaceOptionOrderCtx wraps the underlying gateway call with circuit breaker.
func (c *CircuitBreakerExecution) PlaceOptionOrderCtx(ctx context.Context, req models.OrderRequest) (*OrderResponse, error) {
	return execBreaker(c.breaker, c.gateway, func(g ExecutionGateway) (*OrderResponse, error) {
		return g.PlaceOptionOrderCtx(ctx, req)
	})
}

// GetWorkingOrdersCtx wraps the underlying gateway call with circuit breaker.
func (c *CircuitBreakerExecution) GetWorkingOrdersCtx(ctx context.Context) ([]WorkingOrder, error) {
	return execBreaker(c.breaker, c.gateway, func(g ExecutionGateway) ([]WorkingOrder, error) {
		return g.GetWorkingOrdersCtx(ctx)
	})
}

// CancelOrderCtx wraps the underlying gateway call with circuit breaker.
func (c *CircuitBreakerExecution) CancelOrderCtx(ctx context.Context, orderID int) error {
	_, err := execBreaker(c.breaker, c.gateway, func(g ExecutionGateway) (struct{}, error) {
		return struct{}{}, g.CancelOrderCtx(ctx, orderID)
	})
	return err
}
