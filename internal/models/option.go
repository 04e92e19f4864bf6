// Package models defines the core domain types for the options income
// engine: chain contracts, scored opportunities, reconciled strategies,
// risk assessments, and order records.
package models

import "time"

// SharesPerContract is the number of underlying shares one standard
// equity option contract controls.
const SharesPerContract = 100.0

// OptionType represents the type of option contract.
type OptionType string

const (
	// OptionTypePut represents a put option contract.
	OptionTypePut OptionType = "put"
	// OptionTypeCall represents a call option contract.
	OptionTypeCall OptionType = "call"
)

// Valid returns true if the OptionType is one of the defined constants.
func (t OptionType) Valid() bool {
	return t == OptionTypePut || t == OptionTypeCall
}

// ChainContract is a single option contract snapshot from a chain fetch.
// It is immutable once fetched; the next scan supersedes it.
type ChainContract struct {
	Symbol       string     `json:"symbol"` // OSI-formatted option symbol
	Underlying   string     `json:"underlying"`
	Strike       float64    `json:"strike"`
	Expiration   time.Time  `json:"expiration"`
	OptionType   OptionType `json:"option_type"`
	Bid          float64    `json:"bid"`
	Ask          float64    `json:"ask"`
	Last         float64    `json:"last"`
	Volume       int64      `json:"volume"`
	OpenInterest int64      `json:"open_interest"`
	Delta        float64    `json:"delta"`
	IV           float64    `json:"iv"` // mid implied volatility, decimal
}

// DTE returns the whole days between asOf and the contract expiration,
// comparing calendar dates in UTC. Expired contracts yield a negative
// or zero value; callers reject those before computing derived metrics.
func (c ChainContract) DTE(asOf time.Time) int {
	from := asOf.UTC().Truncate(24 * time.Hour)
	to := c.Expiration.UTC().Truncate(24 * time.Hour)
	return int(to.Sub(from).Hours() / 24)
}

// Opportunity is a ChainContract annotated with derived economics and
// optional per-symbol indicator enrichment. Enrichment fields are nil
// when the indicator fetch failed or was skipped; the opportunity itself
// is still valid.
type Opportunity struct {
	ChainContract

	UnderlyingPrice  float64 `json:"underlying_price"`
	Mid              float64 `json:"mid"`
	DaysToExpiration int     `json:"dte"`
	Premium          float64 `json:"premium"`    // per contract, dollars
	Collateral       float64 `json:"collateral"` // per contract, dollars
	ROI              float64 `json:"roi"`        // premium / collateral, fraction
	AnnualizedReturn float64 `json:"annualized_return"`
	SpreadPct        float64 `json:"spread_pct"`
	DistanceOTMPct   float64 `json:"distance_otm_pct"`

	IVRank         *float64 `json:"iv_rank,omitempty"`
	RSI            *float64 `json:"rsi,omitempty"`
	ReadinessScore *float64 `json:"readiness_score,omitempty"`
}

// AbsDelta returns the magnitude of the contract delta. Put deltas are
// reported negative by the provider; ranking and filtering use the
// magnitude as an assignment-probability proxy.
func (c ChainContract) AbsDelta() float64 {
	if c.Delta < 0 {
		return -c.Delta
	}
	return c.Delta
}
