package calculation

import (
	"github.com/shopspring/decimal"

	"github.com/dpgo/drawdown-planner/internal/domain"
)

// PreservationController throttles withdrawals when wealth degrades. It is a
// two-state hysteresis machine: activation at thresholdFraction of the
// retirement-start wealth, deactivation only at thresholdFraction +
// recoveryBand, so the state cannot oscillate around a single threshold.
type PreservationController struct {
	enabled   bool
	threshold decimal.Decimal
	recovery  decimal.Decimal
	reduction decimal.Decimal

	activateBelow decimal.Decimal
	deactivateAt  decimal.Decimal
	active        bool
	triggered     bool
	initialized   bool
}

// NewPreservationController builds a controller from scenario config. It
// stays inert until Initialize fixes the reference wealth.
func NewPreservationController(cfg domain.CapitalPreservation) *PreservationController {
	return &PreservationController{
		enabled:   cfg.Enabled,
		threshold: cfg.ThresholdFraction,
		recovery:  cfg.RecoveryBand,
		reduction: cfg.ReductionFraction,
	}
}

// Initialize fixes the retirement-start wealth the thresholds derive from.
func (c *PreservationController) Initialize(retirementStartWealth decimal.Decimal) {
	if !c.enabled {
		return
	}
	c.activateBelow = c.threshold.Mul(retirementStartWealth)
	c.deactivateAt = c.threshold.Add(c.recovery).Mul(retirementStartWealth)
	c.initialized = true
}

// Throttle updates the state from the current wealth and returns the possibly
// reduced withdrawal along with the active flag.
func (c *PreservationController) Throttle(wealth, requested decimal.Decimal) (decimal.Decimal, bool) {
	if !c.enabled || !c.initialized {
		return requested, false
	}
	if !c.active && wealth.LessThan(c.activateBelow) {
		c.active = true
		c.triggered = true
	} else if c.active && wealth.GreaterThanOrEqual(c.deactivateAt) {
		c.active = false
	}
	if !c.active {
		return requested, false
	}
	return requested.Mul(decimal.NewFromInt(1).Sub(c.reduction)), true
}

// Triggered reports whether throttling activated at any point in the run.
func (c *PreservationController) Triggered() bool { return c.triggered }
