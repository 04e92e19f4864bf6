package models

import "time"

// OrderSide is the direction of an option order.
type OrderSide string

const (
	// SideSellToOpen opens a short option position (CSP, covered call,
	// PMCC short call).
	SideSellToOpen OrderSide = "sell_to_open"
	// SideBuyToOpen opens a long option position (LEAP).
	SideBuyToOpen OrderSide = "buy_to_open"
	// SideBuyToClose closes an existing short option position.
	SideBuyToClose OrderSide = "buy_to_close"
)

// Valid returns true if the OrderSide is one of the defined constants.
func (s OrderSide) Valid() bool {
	switch s {
	case SideSellToOpen, SideBuyToOpen, SideBuyToClose:
		return true
	default:
		return false
	}
}

// Credit reports whether the side collects premium.
func (s OrderSide) Credit() bool { return s == SideSellToOpen }

// OrderRequest describes one option order submission. It is created per
// submission and never mutated after dispatch.
type OrderRequest struct {
	OptionSymbol string     `json:"option_symbol"` // OSI format
	Underlying   string     `json:"underlying"`
	OptionType   OptionType `json:"option_type"`
	Strike       float64    `json:"strike"`
	Expiration   time.Time  `json:"expiration"`
	Side         OrderSide  `json:"side"`
	Quantity     int        `json:"quantity"`
	LimitPrice   float64    `json:"limit_price"` // mid at submission time
	Duration     string     `json:"duration"`
	Tag          string     `json:"tag,omitempty"`
	Simulated    bool       `json:"simulated"`
}

// OutcomeStatus is the terminal status of an order submission attempt.
type OutcomeStatus string

const (
	// OutcomeAccepted means the provider (or the dry-run synthesizer)
	// accepted the order.
	OutcomeAccepted OutcomeStatus = "accepted"
	// OutcomeRejected means a pre-submission guard rejected the item
	// before any network call.
	OutcomeRejected OutcomeStatus = "rejected"
	// OutcomeFailed means the provider rejected or erred on submission.
	OutcomeFailed OutcomeStatus = "failed"
)

// Rejection reasons for pre-submission validation failures.
const (
	ReasonInsufficientFunds = "insufficient_buying_power"
	ReasonStrikeBelowLEAP   = "strike_below_leap_strike"
	ReasonExposureCap       = "exposure_cap_exceeded"
	ReasonInvalidItem       = "invalid_item"
)

// OrderOutcome is the terminal record for one submitted (or simulated,
// or rejected) order item.
type OrderOutcome struct {
	OptionSymbol string        `json:"option_symbol"`
	Underlying   string        `json:"underlying"`
	Side         OrderSide     `json:"side"`
	Quantity     int           `json:"quantity"`
	LimitPrice   float64       `json:"limit_price"`
	Status       OutcomeStatus `json:"status"`
	ProviderID   int           `json:"provider_id,omitempty"`
	Reason       string        `json:"reason,omitempty"`
	Tag          string        `json:"tag,omitempty"`
	Simulated    bool          `json:"simulated"`
	SubmittedAt  time.Time     `json:"submitted_at"`

	Premium    float64 `json:"premium"`    // total credit (or debit) at limit
	Collateral float64 `json:"collateral"` // buying power consumed
}

// Accepted reports whether the outcome represents a successful
// submission (live or simulated).
func (o OrderOutcome) Accepted() bool { return o.Status == OutcomeAccepted }
