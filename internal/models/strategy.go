package models

import "time"

// StrategyKind identifies the inferred shape of a reconciled position
// group. Classification is an explicit step over position composition;
// shapes that fit no known strategy surface as Unclassified rather than
// being forced into a wrong bucket.
type StrategyKind string

const (
	// KindCashSecuredPut is a standalone short put.
	KindCashSecuredPut StrategyKind = "cash_secured_put"
	// KindCoveredCall is long stock with short calls written against it.
	KindCoveredCall StrategyKind = "covered_call"
	// KindPoorMansCoveredCall is a long-dated long call (LEAP) with
	// zero or more short calls written against it.
	KindPoorMansCoveredCall StrategyKind = "poor_mans_covered_call"
	// KindUnclassified is any leg combination that fits no known shape.
	KindUnclassified StrategyKind = "unclassified"
)

// ROIProgress buckets ROI-to-target for income strategies.
type ROIProgress string

const (
	// ProgressBuilding means premium collected is under 50% of the target.
	ProgressBuilding ROIProgress = "building"
	// ProgressOnTarget means premium collected is 50-100% of the target.
	ProgressOnTarget ROIProgress = "on_target"
	// ProgressExcellent means premium collected meets or exceeds the target.
	ProgressExcellent ROIProgress = "excellent"
)

// ProgressForROI maps an ROI-to-target percentage to its bucket.
func ProgressForROI(roiPct float64) ROIProgress {
	switch {
	case roiPct >= 100:
		return ProgressExcellent
	case roiPct >= 50:
		return ProgressOnTarget
	default:
		return ProgressBuilding
	}
}

// Leg is one reconciled position leg, option or equity.
type Leg struct {
	Symbol     string     `json:"symbol"` // OSI option symbol, or ticker for equity
	Underlying string     `json:"underlying"`
	OptionType OptionType `json:"option_type,omitempty"` // empty for equity
	Strike     float64    `json:"strike,omitempty"`
	Expiration time.Time  `json:"expiration,omitempty"`
	Quantity   int        `json:"quantity"` // negative for short legs
	DTE        int        `json:"dte,omitempty"`

	CostBasis        float64 `json:"cost_basis"`        // signed: credit negative
	PremiumCollected float64 `json:"premium_collected"` // short legs, dollars
	MarkValue        float64 `json:"mark_value"`        // current close cost / value
	MarkKnown        bool    `json:"mark_known"`        // false when the quote fetch failed
	PnL              float64 `json:"pnl"`
}

// Short reports whether the leg is a short position.
func (l Leg) Short() bool { return l.Quantity < 0 }

// Contracts returns the unsigned contract count.
func (l Leg) Contracts() int {
	if l.Quantity < 0 {
		return -l.Quantity
	}
	return l.Quantity
}

// Strategy is a group of legs classified into one income strategy with
// computed economics.
type Strategy struct {
	Kind       StrategyKind `json:"kind"`
	Underlying string       `json:"underlying"`

	LongLeg   *Leg  `json:"long_leg,omitempty"` // LEAP (PMCC) or stock (covered call)
	ShortLegs []Leg `json:"short_legs,omitempty"`
	OtherLegs []Leg `json:"other_legs,omitempty"` // unclassified remainder

	PremiumCollected float64     `json:"premium_collected"`
	Collateral       float64     `json:"collateral"`
	NetPnL           float64     `json:"net_pnl"`
	ROIToTargetPct   float64     `json:"roi_to_target_pct"` // PMCC: premiums / LEAP cost
	Progress         ROIProgress `json:"progress,omitempty"`

	Risks []RiskAssessment `json:"risks,omitempty"`
}

// ExposureKey identifies a same-underlying, same-type, same-direction
// contract bucket for pre-submission exposure checks.
type ExposureKey struct {
	Underlying string
	OptionType OptionType
	Short      bool
}

// Exposure maps exposure buckets to open contract counts.
type Exposure map[ExposureKey]int

// Contracts returns the open contract count for a bucket, zero when the
// bucket is absent.
func (e Exposure) Contracts(key ExposureKey) int {
	if e == nil {
		return 0
	}
	return e[key]
}
