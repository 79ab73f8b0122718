package domain

import "github.com/shopspring/decimal"

// Phase tags a simulated month.
type Phase string

const (
	PhaseAccumulation Phase = "accumulation"
	PhaseWithdrawal   Phase = "withdrawal"
)

// MonthlySnapshot is one month of simulated plan state. The engine emits one
// per month; the Monte Carlo aggregator and the output formatters are the only
// consumers.
type MonthlySnapshot struct {
	Month int   `json:"month"`
	Phase Phase `json:"phase"`

	Cash        decimal.Decimal `json:"cash"`
	Invested    decimal.Decimal `json:"invested"`
	TotalWealth decimal.Decimal `json:"total_wealth"`
	SharePrice  decimal.Decimal `json:"share_price"`
	// ReturnFactor is the asset price multiplier applied this month.
	ReturnFactor float64 `json:"return_factor"`

	Contribution        decimal.Decimal `json:"contribution"`
	WithdrawalRequested decimal.Decimal `json:"withdrawal_requested"`
	WithdrawalPaid      decimal.Decimal `json:"withdrawal_paid"`
	// WithdrawalShortfall = requested - paid.
	WithdrawalShortfall decimal.Decimal `json:"withdrawal_shortfall"`

	// Taxes settled this month, itemized.
	TradeTaxPaid              decimal.Decimal `json:"trade_tax_paid"`
	DeemedDistributionTaxPaid decimal.Decimal `json:"deemed_distribution_tax_paid"`
	InterestTaxPaid           decimal.Decimal `json:"interest_tax_paid"`
	// TaxShortfall is tax due that even full lot liquidation could not cover.
	TaxShortfall decimal.Decimal `json:"tax_shortfall"`

	CumulativeInflation decimal.Decimal `json:"cumulative_inflation"`
	PreservationActive  bool            `json:"preservation_active"`
	LotCount            int             `json:"lot_count"`
}

// TaxPaid returns the total tax settled in this month.
func (s *MonthlySnapshot) TaxPaid() decimal.Decimal {
	return s.TradeTaxPaid.Add(s.DeemedDistributionTaxPaid).Add(s.InterestTaxPaid)
}

// SimulationRun is the immutable result of one engine run for one seed.
type SimulationRun struct {
	Seed      int64             `json:"seed"`
	Snapshots []MonthlySnapshot `json:"snapshots"`
	// RetirementStartWealth is the total wealth snapshotted on the first
	// withdrawal month; zero when the run has no withdrawal phase.
	RetirementStartWealth decimal.Decimal `json:"retirement_start_wealth"`
	// LossPotRemaining and AllowanceUsed capture ledger state after the last
	// month, for reporting.
	LossPotRemaining decimal.Decimal `json:"loss_pot_remaining"`
	AllowanceUsed    decimal.Decimal `json:"allowance_used"`
}

// EndWealth returns the total wealth after the final month.
func (r *SimulationRun) EndWealth() decimal.Decimal {
	if len(r.Snapshots) == 0 {
		return decimal.Zero
	}
	return r.Snapshots[len(r.Snapshots)-1].TotalWealth
}
