package models

// RiskTier classifies the assignment risk of a short option leg.
type RiskTier string

const (
	// RiskCritical means the leg is in the money with 7 or fewer days left.
	RiskCritical RiskTier = "critical"
	// RiskHigh means the leg is in the money with more than 7 days left.
	RiskHigh RiskTier = "high"
	// RiskModerate means the leg is out of the money but the underlying
	// is within 5% of the strike.
	RiskModerate RiskTier = "moderate"
	// RiskLow means the leg is safely out of the money.
	RiskLow RiskTier = "low"
)

// RiskAssessment is the live assignment-risk view of one short leg.
// It is always derived fresh from the current position and quote; it is
// never persisted.
type RiskAssessment struct {
	Symbol          string     `json:"symbol"`
	Underlying      string     `json:"underlying"`
	OptionType      OptionType `json:"option_type"`
	UnderlyingPrice float64    `json:"underlying_price"`
	Strike          float64    `json:"strike"`
	DTE             int        `json:"dte"`
	InTheMoney      bool       `json:"in_the_money"`
	Tier            RiskTier   `json:"tier"`
	Message         string     `json:"message"`
}
