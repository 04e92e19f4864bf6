// Package orders sequences option order batches through pre-submission
// guards, dry-run simulation, and live limit-order placement.
package orders

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/wheelhouse-trading/wheelhouse/internal/broker"
	"github.com/wheelhouse-trading/wheelhouse/internal/models"
	"github.com/wheelhouse-trading/wheelhouse/internal/storage"
	"github.com/wheelhouse-trading/wheelhouse/internal/util"
)

// Options tunes batch submission behavior.
type Options struct {
	// MaxContractsPerUnderlying caps same-direction, same-type open
	// contracts per underlying, counting both existing exposure and
	// earlier items in the batch. Zero disables the cap.
	MaxContractsPerUnderlying int
	// Tick is the limit price increment, default 0.01.
	Tick float64
	// Duration is the order time in force, default "day".
	Duration string
}

func (o Options) withDefaults() Options {
	if o.Tick <= 0 {
		o.Tick = 0.01
	}
	if o.Duration == "" {
		o.Duration = "day"
	}
	return o
}

// BatchItem is one order candidate inside a batch.
type BatchItem struct {
	Opportunity models.Opportunity `json:"opportunity"`
	Side        models.OrderSide   `json:"side"`
	Quantity    int                `json:"quantity"`
	// LEAPStrike, when set, marks the item as a PMCC short call; its
	// strike must sit strictly above the covering LEAP strike.
	LEAPStrike float64 `json:"leap_strike,omitempty"`
}

// BatchRequest is a batch submission with the account state the guards
// check against.
type BatchRequest struct {
	Items       []BatchItem     `json:"items"`
	DryRun      bool            `json:"dry_run"`
	BuyingPower float64         `json:"buying_power"`
	Exposure    models.Exposure `json:"-"`
}

// BatchResult is the terminal accounting for one batch.
type BatchResult struct {
	Outcomes           []models.OrderOutcome `json:"outcomes"`
	PremiumToCollect   float64               `json:"premium_to_collect"`
	CollateralRequired float64               `json:"collateral_required"`
	Succeeded          int                   `json:"succeeded"`
	Failed             int                   `json:"failed"`
	// StateStale is set once any live order is accepted: positions and
	// buying power read before the batch no longer reflect the account.
	StateStale bool `json:"state_stale"`
}

// Orchestrator submits order batches against an execution gateway and
// journals every outcome.
type Orchestrator struct {
	execution broker.ExecutionGateway
	journal   storage.Interface
	logger    *logrus.Logger
	opts      Options
}

// New creates an Orchestrator. A nil logger falls back to the standard
// one; a nil journal disables outcome persistence.
func New(execution broker.ExecutionGateway, journal storage.Interface, logger *logrus.Logger, opts Options) *Orchestrator {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Orchestrator{
		execution: execution,
		journal:   journal,
		logger:    logger,
		opts:      opts.withDefaults(),
	}
}

// SubmitBatch runs the batch sequentially, best-effort: a failed or
// rejected item never aborts the remainder. Dry-run batches apply every
// guard but synthesize accepted outcomes without touching the gateway.
func (o *Orchestrator) SubmitBatch(ctx context.Context, req BatchRequest) (*BatchResult, error) {
	result := &BatchResult{}

	// Guards consume a local copy so earlier items in the batch count
	// against later ones.
	remaining := req.BuyingPower
	exposure := make(models.Exposure, len(req.Exposure))
	for k, v := range req.Exposure {
		exposure[k] = v
	}

	for _, item := range req.Items {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		outcome := o.submitItem(ctx, item, req.DryRun, &remaining, exposure)
		result.Outcomes = append(result.Outcomes, outcome)

		if outcome.Accepted() {
			result.Succeeded++
			result.CollateralRequired += outcome.Collateral
			if item.Side.Credit() {
				result.PremiumToCollect += outcome.Premium
			}
			if !outcome.Simulated {
				result.StateStale = true
			}
		} else {
			result.Failed++
		}
	}

	if o.journal != nil && len(result.Outcomes) > 0 {
		if err := o.journal.AppendOutcomes(result.Outcomes); err != nil {
			o.logger.WithError(err).Warn("journaling order outcomes failed")
		}
	}

	o.logger.WithFields(logrus.Fields{
		"items":     len(req.Items),
		"succeeded": result.Succeeded,
		"failed":    result.Failed,
		"dry_run":   req.DryRun,
	}).Info("order batch complete")

	return result, nil
}

func (o *Orchestrator) submitItem(ctx context.Context, item BatchItem, dryRun bool, remaining *float64, exposure models.Exposure) models.OrderOutcome {
	opp := item.Opportunity
	outcome := models.OrderOutcome{
		OptionSymbol: opp.Symbol,
		Underlying:   opp.Underlying,
		Side:         item.Side,
		Quantity:     item.Quantity,
		Simulated:    dryRun,
		SubmittedAt:  time.Now().UTC(),
	}

	if reason := o.validate(item, *remaining, exposure); reason != "" {
		outcome.Status = models.OutcomeRejected
		outcome.Reason = reason
		o.logger.WithFields(logrus.Fields{
			"symbol": opp.Symbol,
			"reason": reason,
		}).Warn("order item rejected")
		return outcome
	}

	limit := util.RoundToTick(opp.Mid, o.opts.Tick)
	qty := float64(item.Quantity)
	outcome.LimitPrice = limit
	outcome.Premium = limit * models.SharesPerContract * qty
	outcome.Collateral = itemCollateral(item, limit)
	outcome.Tag = "wheelhouse-" + uuid.New().String()[:8]

	*remaining -= outcome.Collateral
	key := models.ExposureKey{
		Underlying: opp.Underlying,
		OptionType: opp.OptionType,
		Short:      item.Side == models.SideSellToOpen,
	}
	exposure[key] += item.Quantity

	if dryRun {
		outcome.Status = models.OutcomeAccepted
		return outcome
	}

	resp, err := o.execution.PlaceOptionOrderCtx(ctx, models.OrderRequest{
		OptionSymbol: opp.Symbol,
		Underlying:   opp.Underlying,
		OptionType:   opp.OptionType,
		Strike:       opp.Strike,
		Expiration:   opp.Expiration,
		Side:         item.Side,
		Quantity:     item.Quantity,
		LimitPrice:   limit,
		Duration:     o.opts.Duration,
		Tag:          outcome.Tag,
	})
	if err != nil {
		outcome.Status = models.OutcomeFailed
		outcome.Reason = err.Error()
		o.logger.WithError(err).WithField("symbol", opp.Symbol).Error("order placement failed")
		return outcome
	}

	outcome.Status = models.OutcomeAccepted
	outcome.ProviderID = resp.Order.ID
	o.logger.WithFields(logrus.Fields{
		"symbol":   opp.Symbol,
		"order_id": resp.Order.ID,
		"limit":    limit,
	}).Info("order placed")
	return outcome
}

// validate applies every pre-submission guard and returns the first
// failing reason, empty when the item is clean.
func (o *Orchestrator) validate(item BatchItem, remaining float64, exposure models.Exposure) string {
	opp := item.Opportunity

	if item.Quantity <= 0 || !item.Side.Valid() || opp.Symbol == "" || opp.Strike <= 0 || opp.Mid <= 0 {
		return models.ReasonInvalidItem
	}

	// A PMCC short call assigned below its LEAP strike locks in a loss
	// on the spread; refuse before any network call.
	if item.LEAPStrike > 0 && opp.Strike <= item.LEAPStrike {
		return models.ReasonStrikeBelowLEAP
	}

	if o.opts.MaxContractsPerUnderlying > 0 {
		key := models.ExposureKey{
			Underlying: opp.Underlying,
			OptionType: opp.OptionType,
			Short:      item.Side == models.SideSellToOpen,
		}
		if exposure.Contracts(key)+item.Quantity > o.opts.MaxContractsPerUnderlying {
			return models.ReasonExposureCap
		}
	}

	limit := util.RoundToTick(opp.Mid, o.opts.Tick)
	if itemCollateral(item, limit) > remaining {
		return models.ReasonInsufficientFunds
	}

	return ""
}

// itemCollateral is the buying power an accepted item consumes: strike
// value for short puts, debit paid for long openings, and nothing extra
// for short calls covered by a LEAP or stock.
func itemCollateral(item BatchItem, limit float64) float64 {
	qty := float64(item.Quantity)
	switch {
	case item.Side == models.SideSellToOpen && item.Opportunity.OptionType == models.OptionTypePut:
		return item.Opportunity.Strike * models.SharesPerContract * qty
	case item.Side == models.SideBuyToOpen || item.Side == models.SideBuyToClose:
		return limit * models.SharesPerContract * qty
	default:
		return 0
	}
}

// String implements fmt.Stringer for batch summaries in logs.
func (r *BatchResult) String() string {
	return fmt.Sprintf("%d/%d accepted, premium %.2f, collateral %.2f",
		r.Succeeded, r.Succeeded+r.Failed, r.PremiumToCollect, r.CollateralRequired)
}
