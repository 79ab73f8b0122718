package domain

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// WithdrawalMode selects how the monthly payout is determined once the
// withdrawal phase starts. Exactly one mode is active per scenario.
type WithdrawalMode string

const (
	// WithdrawalFixedAmount pays a configured absolute monthly amount.
	WithdrawalFixedAmount WithdrawalMode = "fixed_amount"
	// WithdrawalPercentage converts an annual percentage of the wealth at
	// retirement start into an absolute monthly amount, fixed at that instant.
	WithdrawalPercentage WithdrawalMode = "percentage"
)

// LotSelection determines which acquisition lot a sale consumes first.
type LotSelection string

const (
	LotSelectionFIFO LotSelection = "fifo"
	LotSelectionLIFO LotSelection = "lifo"
)

// ChurchTaxTier is the church-tax surcharge applied on top of the flat
// capital-gains rate and the solidarity surcharge.
type ChurchTaxTier string

const (
	ChurchTaxNone  ChurchTaxTier = "none"
	ChurchTaxEight ChurchTaxTier = "eight_percent"
	ChurchTaxNine  ChurchTaxTier = "nine_percent"
)

// TaxRegime carries the capital-gains tax parameters of a scenario.
type TaxRegime struct {
	// AnnualAllowance is the yearly amount of gains and interest that can be
	// realized tax free (Sparerpauschbetrag). Default: 1000.
	AnnualAllowance decimal.Decimal `yaml:"annual_allowance" json:"annual_allowance"`
	// TaxableFraction is the fraction of a gain that remains taxable after
	// the statutory partial exemption, e.g. 0.70 for equity funds. Default: 0.70.
	TaxableFraction decimal.Decimal `yaml:"taxable_fraction" json:"taxable_fraction"`
	// ChurchTax selects the surcharge tier. Default: none.
	ChurchTax ChurchTaxTier `yaml:"church_tax" json:"church_tax"`
	// LotSelection picks FIFO or LIFO sale order. Default: fifo.
	LotSelection LotSelection `yaml:"lot_selection" json:"lot_selection"`
	// BaselineRate is the annual notional return used for the
	// deemed-distribution tax when no historical rate is available for the
	// scenario's start year. Default: 0.0253.
	BaselineRate decimal.Decimal `yaml:"baseline_rate" json:"baseline_rate"`
}

// EffectiveTaxRate returns the combined flat rate: 25% capital-gains tax plus
// 5.5% solidarity surcharge plus the church-tax tier, each expressed as a
// surcharge on the base rate. The Kirchensteuer deduction feedback on the base
// rate is intentionally not modeled.
func (t TaxRegime) EffectiveTaxRate() decimal.Decimal {
	base := decimal.NewFromFloat(0.25)
	surcharge := decimal.NewFromFloat(0.055)
	switch t.ChurchTax {
	case ChurchTaxEight:
		surcharge = surcharge.Add(decimal.NewFromFloat(0.08))
	case ChurchTaxNine:
		surcharge = surcharge.Add(decimal.NewFromFloat(0.09))
	}
	return base.Add(base.Mul(surcharge))
}

// CapitalPreservation configures the withdrawal-throttling hysteresis.
type CapitalPreservation struct {
	Enabled bool `yaml:"enabled" json:"enabled"`
	// ThresholdFraction of the wealth at retirement start below which
	// throttling activates. Default: 0.70.
	ThresholdFraction decimal.Decimal `yaml:"threshold_fraction" json:"threshold_fraction"`
	// RecoveryBand is added to ThresholdFraction to form the deactivation
	// threshold. Must be strictly positive. Default: 0.05.
	RecoveryBand decimal.Decimal `yaml:"recovery_band" json:"recovery_band"`
	// ReductionFraction is the cut applied to the requested withdrawal while
	// throttled. Default: 0.20.
	ReductionFraction decimal.Decimal `yaml:"reduction_fraction" json:"reduction_fraction"`
}

// SpecialCashFlow is a periodic extra contribution or expense.
type SpecialCashFlow struct {
	Amount decimal.Decimal `yaml:"amount" json:"amount"`
	// IntervalMonths between occurrences; the flow fires on months where
	// (month - StartMonth) is a non-negative multiple of the interval.
	IntervalMonths int `yaml:"interval_months" json:"interval_months"`
	StartMonth     int `yaml:"start_month" json:"start_month"`
	// InflationIndexed scales the amount by the cumulative inflation factor.
	InflationIndexed bool `yaml:"inflation_indexed" json:"inflation_indexed"`
}

// AmountAt returns the flow amount due in the given month, or zero when the
// flow does not fire that month.
func (s *SpecialCashFlow) AmountAt(month int, cumulativeInflation decimal.Decimal) decimal.Decimal {
	if s == nil || s.IntervalMonths <= 0 || month < s.StartMonth {
		return decimal.Zero
	}
	if (month-s.StartMonth)%s.IntervalMonths != 0 {
		return decimal.Zero
	}
	if s.InflationIndexed {
		return s.Amount.Mul(cumulativeInflation)
	}
	return s.Amount
}

// ScenarioParameters is the immutable input record for one simulation run.
// Defaults noted per field are applied by config.ApplyDefaults; zero values
// are meaningful where no default is stated.
type ScenarioParameters struct {
	// Starting balances.
	InitialCash     decimal.Decimal `yaml:"initial_cash" json:"initial_cash"`
	InitialInvested decimal.Decimal `yaml:"initial_invested" json:"initial_invested"`

	// Accumulation-phase cash flows.
	MonthlyContribution decimal.Decimal `yaml:"monthly_contribution" json:"monthly_contribution"`
	// AnnualRaiseRate grosses the contribution up once per year.
	AnnualRaiseRate decimal.Decimal `yaml:"annual_raise_rate" json:"annual_raise_rate"`
	// CashTarget is the cash buffer; the surplus above it is invested.
	CashTarget decimal.Decimal `yaml:"cash_target" json:"cash_target"`

	// Market assumptions.
	AnnualGrowthRate   decimal.Decimal `yaml:"annual_growth_rate" json:"annual_growth_rate"`
	AnnualInterestRate decimal.Decimal `yaml:"annual_interest_rate" json:"annual_interest_rate"`
	// AnnualFeeRate is the fund's fee drag, subtracted from asset growth.
	AnnualFeeRate       decimal.Decimal `yaml:"annual_fee_rate" json:"annual_fee_rate"`
	AnnualInflationRate decimal.Decimal `yaml:"annual_inflation_rate" json:"annual_inflation_rate"`

	// Phase lengths in years.
	AccumulationYears int `yaml:"accumulation_years" json:"accumulation_years"`
	WithdrawalYears   int `yaml:"withdrawal_years" json:"withdrawal_years"`

	// Withdrawal target. Exactly one of MonthlyWithdrawal / WithdrawalRate is
	// set when WithdrawalYears > 0.
	WithdrawalMode    WithdrawalMode  `yaml:"withdrawal_mode" json:"withdrawal_mode"`
	MonthlyWithdrawal decimal.Decimal `yaml:"monthly_withdrawal" json:"monthly_withdrawal"`
	// WithdrawalRate is the annual percentage of retirement-start wealth,
	// converted to an absolute monthly figure on the first withdrawal month.
	WithdrawalRate decimal.Decimal `yaml:"withdrawal_rate" json:"withdrawal_rate"`
	// WithdrawalGross pays the target pre-tax instead of net. Default: false.
	WithdrawalGross bool `yaml:"withdrawal_gross" json:"withdrawal_gross"`
	// WithdrawalInflationIndexed inflates the base withdrawal monthly.
	WithdrawalInflationIndexed bool            `yaml:"withdrawal_inflation_indexed" json:"withdrawal_inflation_indexed"`
	WithdrawalMin              decimal.Decimal `yaml:"withdrawal_min" json:"withdrawal_min"`
	// WithdrawalMax caps the monthly payout; zero means uncapped.
	WithdrawalMax decimal.Decimal `yaml:"withdrawal_max" json:"withdrawal_max"`

	Tax          TaxRegime           `yaml:"tax" json:"tax"`
	Preservation CapitalPreservation `yaml:"preservation" json:"preservation"`

	SpecialContribution *SpecialCashFlow `yaml:"special_contribution,omitempty" json:"special_contribution,omitempty"`
	SpecialExpense      *SpecialCashFlow `yaml:"special_expense,omitempty" json:"special_expense,omitempty"`

	// EmergencyFundGoal is the target cash reserve tracked per path; zero
	// disables tracking.
	EmergencyFundGoal decimal.Decimal `yaml:"emergency_fund_goal" json:"emergency_fund_goal"`
}

// AccumulationMonths returns the month index of the phase transition.
func (p *ScenarioParameters) AccumulationMonths() int { return p.AccumulationYears * 12 }

// TotalMonths returns the full simulation horizon.
func (p *ScenarioParameters) TotalMonths() int { return (p.AccumulationYears + p.WithdrawalYears) * 12 }

// Validate fails fast on malformed parameters, before any simulation starts.
func (p *ScenarioParameters) Validate() error {
	if p.AccumulationYears < 0 {
		return fmt.Errorf("accumulation_years must not be negative, got %d", p.AccumulationYears)
	}
	if p.WithdrawalYears < 0 {
		return fmt.Errorf("withdrawal_years must not be negative, got %d", p.WithdrawalYears)
	}
	if p.TotalMonths() == 0 {
		return fmt.Errorf("simulation horizon is empty: accumulation_years and withdrawal_years are both zero")
	}
	if p.InitialCash.IsNegative() || p.InitialInvested.IsNegative() {
		return fmt.Errorf("starting balances must not be negative")
	}
	if p.MonthlyContribution.IsNegative() {
		return fmt.Errorf("monthly_contribution must not be negative")
	}
	if p.WithdrawalYears > 0 {
		fixed := p.MonthlyWithdrawal.IsPositive()
		pct := p.WithdrawalRate.IsPositive()
		switch p.WithdrawalMode {
		case WithdrawalFixedAmount:
			if !fixed {
				return fmt.Errorf("withdrawal_mode %q requires a positive monthly_withdrawal", p.WithdrawalMode)
			}
			if pct {
				return fmt.Errorf("monthly_withdrawal and withdrawal_rate are mutually exclusive")
			}
		case WithdrawalPercentage:
			if !pct {
				return fmt.Errorf("withdrawal_mode %q requires a positive withdrawal_rate", p.WithdrawalMode)
			}
			if fixed {
				return fmt.Errorf("monthly_withdrawal and withdrawal_rate are mutually exclusive")
			}
		default:
			return fmt.Errorf("unknown withdrawal_mode %q", p.WithdrawalMode)
		}
	}
	if !p.WithdrawalMax.IsZero() && p.WithdrawalMax.LessThan(p.WithdrawalMin) {
		return fmt.Errorf("withdrawal_max (%s) is below withdrawal_min (%s)", p.WithdrawalMax, p.WithdrawalMin)
	}
	// Allow deflation but cap extreme values.
	if p.AnnualInflationRate.LessThan(decimal.NewFromFloat(-0.10)) || p.AnnualInflationRate.GreaterThan(decimal.NewFromFloat(0.20)) {
		return fmt.Errorf("annual_inflation_rate must be between -10%% and 20%%, got %s", p.AnnualInflationRate)
	}
	if p.AnnualGrowthRate.LessThanOrEqual(decimal.NewFromInt(-1)) {
		return fmt.Errorf("annual_growth_rate must be greater than -100%%, got %s", p.AnnualGrowthRate)
	}
	if p.Tax.TaxableFraction.IsNegative() || p.Tax.TaxableFraction.GreaterThan(decimal.NewFromInt(1)) {
		return fmt.Errorf("tax.taxable_fraction must be within [0, 1], got %s", p.Tax.TaxableFraction)
	}
	if p.Tax.AnnualAllowance.IsNegative() {
		return fmt.Errorf("tax.annual_allowance must not be negative, got %s", p.Tax.AnnualAllowance)
	}
	switch p.Tax.LotSelection {
	case LotSelectionFIFO, LotSelectionLIFO:
	default:
		return fmt.Errorf("unknown tax.lot_selection %q", p.Tax.LotSelection)
	}
	switch p.Tax.ChurchTax {
	case ChurchTaxNone, ChurchTaxEight, ChurchTaxNine:
	default:
		return fmt.Errorf("unknown tax.church_tax %q", p.Tax.ChurchTax)
	}
	if p.Preservation.Enabled {
		if !p.Preservation.ThresholdFraction.IsPositive() || p.Preservation.ThresholdFraction.GreaterThanOrEqual(decimal.NewFromInt(1)) {
			return fmt.Errorf("preservation.threshold_fraction must be within (0, 1), got %s", p.Preservation.ThresholdFraction)
		}
		if !p.Preservation.RecoveryBand.IsPositive() {
			return fmt.Errorf("preservation.recovery_band must be strictly positive, got %s", p.Preservation.RecoveryBand)
		}
		if p.Preservation.ReductionFraction.IsNegative() || p.Preservation.ReductionFraction.GreaterThan(decimal.NewFromInt(1)) {
			return fmt.Errorf("preservation.reduction_fraction must be within [0, 1], got %s", p.Preservation.ReductionFraction)
		}
	}
	return nil
}

// Clone returns a deep copy, so optimizer candidates can vary parameters
// without touching the base scenario.
func (p *ScenarioParameters) Clone() *ScenarioParameters {
	c := *p
	if p.SpecialContribution != nil {
		sc := *p.SpecialContribution
		c.SpecialContribution = &sc
	}
	if p.SpecialExpense != nil {
		se := *p.SpecialExpense
		c.SpecialExpense = &se
	}
	return &c
}

// SimulationOptions carries the per-run knobs that are not part of the plan
// itself.
type SimulationOptions struct {
	// Volatility is the annualized return volatility; zero makes the run
	// deterministic.
	Volatility decimal.Decimal `yaml:"volatility" json:"volatility"`
	Seed       int64           `yaml:"seed" json:"seed"`
	// StressScenario names a deterministic withdrawal-phase return sequence;
	// empty means pure stochastic returns.
	StressScenario string `yaml:"stress_scenario" json:"stress_scenario"`
	// StartYear anchors historical baseline-rate lookups for the
	// deemed-distribution tax; zero falls back to TaxRegime.BaselineRate.
	StartYear int `yaml:"start_year" json:"start_year"`
}
