package domain

import "github.com/shopspring/decimal"

// OptimizerMode selects the optimization objective.
type OptimizerMode string

const (
	// ModeMaxWithdrawal keeps the total budget fixed and maximizes the
	// sustainable monthly withdrawal.
	ModeMaxWithdrawal OptimizerMode = "max_withdrawal"
	// ModeMinBudget keeps the target withdrawal fixed and minimizes the
	// budget needed to sustain it.
	ModeMinBudget OptimizerMode = "min_budget"
)

// GridRange is an inclusive sweep over one parameter dimension.
type GridRange struct {
	Min   decimal.Decimal `yaml:"min" json:"min"`
	Max   decimal.Decimal `yaml:"max" json:"max"`
	Steps int             `yaml:"steps" json:"steps"`
}

// Values expands the range into Steps evenly spaced values. A single step
// yields Min.
func (g GridRange) Values() []decimal.Decimal {
	if g.Steps <= 1 {
		return []decimal.Decimal{g.Min}
	}
	step := g.Max.Sub(g.Min).Div(decimal.NewFromInt(int64(g.Steps - 1)))
	vals := make([]decimal.Decimal, g.Steps)
	for i := range vals {
		vals[i] = g.Min.Add(step.Mul(decimal.NewFromInt(int64(i))))
	}
	return vals
}

// OptimizerConfig configures candidate generation and scoring.
type OptimizerConfig struct {
	Mode OptimizerMode `yaml:"mode" json:"mode"`

	// TargetSuccessRate in percent; candidates below it are disqualified.
	// Default: 90.
	TargetSuccessRate float64 `yaml:"target_success_rate" json:"target_success_rate"`

	// TotalBudget is the fixed overall budget in max_withdrawal mode.
	TotalBudget decimal.Decimal `yaml:"total_budget" json:"total_budget"`
	// TargetWithdrawal is the fixed monthly payout in min_budget mode.
	TargetWithdrawal decimal.Decimal `yaml:"target_withdrawal" json:"target_withdrawal"`

	// CashFraction sweeps the cash-vs-invested split of the budget.
	CashFraction GridRange `yaml:"cash_fraction" json:"cash_fraction"`
	// Withdrawal sweeps the monthly payout (max_withdrawal mode).
	Withdrawal GridRange `yaml:"withdrawal" json:"withdrawal"`
	// Budget sweeps the total budget (min_budget mode).
	Budget GridRange `yaml:"budget" json:"budget"`

	// MaxCombinations caps the grid size to bound runtime. Default: 64.
	MaxCombinations int `yaml:"max_combinations" json:"max_combinations"`

	// Secondary scoring terms.
	// MedianWealthBonus scales the reward for higher median real end wealth,
	// applied per unit of budget. Default: 0.05.
	MedianWealthBonus float64 `yaml:"median_wealth_bonus" json:"median_wealth_bonus"`
	// RuinPenalty scales the penalty per percentage point of ruin
	// probability. Default: 0.01.
	RuinPenalty float64 `yaml:"ruin_penalty" json:"ruin_penalty"`

	// Emergency-fund scoring. MinFillProbability (percent) hard-disqualifies
	// candidates below it when positive; FillWeight and SpeedWeight blend the
	// fill probability and fill speed into the score.
	EmergencyMinFillProbability float64 `yaml:"emergency_min_fill_probability" json:"emergency_min_fill_probability"`
	EmergencyFillWeight         float64 `yaml:"emergency_fill_weight" json:"emergency_fill_weight"`
	EmergencySpeedWeight        float64 `yaml:"emergency_speed_weight" json:"emergency_speed_weight"`

	MonteCarlo MonteCarloOptions `yaml:"monte_carlo" json:"monte_carlo"`
}

// Candidate is one parameter variant and its score. A score of -Inf marks a
// disqualified candidate.
type Candidate struct {
	Index   int                 `json:"index"`
	Params  *ScenarioParameters `json:"params"`
	Summary *MonteCarloResult   `json:"summary"`
	Score   float64             `json:"score"`
}
