package calculation

import (
	"context"
	"fmt"
	"math"

	"github.com/shopspring/decimal"

	"github.com/dpgo/drawdown-planner/internal/domain"
)

// Optimizer sweeps a parameter grid and scores each candidate with a Monte
// Carlo run. Candidates below the target success rate are disqualified with a
// score of -Inf; when nothing qualifies, Optimize returns (nil, nil), which
// is a normal outcome, not an error.
type Optimizer struct {
	Runner *MonteCarloRunner
	Logger Logger
}

// NewOptimizer creates an optimizer around the given runner.
func NewOptimizer(runner *MonteCarloRunner) *Optimizer {
	return &Optimizer{Runner: runner, Logger: NopLogger{}}
}

// SetLogger sets the optimizer logger. Nil installs a no-op logger.
func (o *Optimizer) SetLogger(l Logger) {
	if l == nil {
		o.Logger = NopLogger{}
		return
	}
	o.Logger = l
}

func applyOptimizerDefaults(cfg *domain.OptimizerConfig) {
	if cfg.TargetSuccessRate == 0 {
		cfg.TargetSuccessRate = 90
	}
	if cfg.MaxCombinations <= 0 {
		cfg.MaxCombinations = 64
	}
	if cfg.MedianWealthBonus == 0 {
		cfg.MedianWealthBonus = 0.05
	}
	if cfg.RuinPenalty == 0 {
		cfg.RuinPenalty = 0.01
	}
}

func validateOptimizerConfig(cfg *domain.OptimizerConfig) error {
	switch cfg.Mode {
	case domain.ModeMaxWithdrawal:
		if !cfg.TotalBudget.IsPositive() {
			return fmt.Errorf("mode %q requires a positive total_budget", cfg.Mode)
		}
		if cfg.Withdrawal.Steps < 1 {
			return fmt.Errorf("mode %q requires a withdrawal grid", cfg.Mode)
		}
	case domain.ModeMinBudget:
		if !cfg.TargetWithdrawal.IsPositive() {
			return fmt.Errorf("mode %q requires a positive target_withdrawal", cfg.Mode)
		}
		if cfg.Budget.Steps < 1 {
			return fmt.Errorf("mode %q requires a budget grid", cfg.Mode)
		}
	default:
		return fmt.Errorf("unknown optimizer mode %q", cfg.Mode)
	}
	if cfg.CashFraction.Steps < 1 {
		return fmt.Errorf("cash_fraction grid requires at least one step")
	}
	return nil
}

// Optimize evaluates the candidate grid and returns the best qualifying
// candidate, or (nil, nil) when no candidate reaches the target success rate.
// All candidates run with seed = base seed + candidate index so that
// cross-candidate comparisons share their random-number stream structure.
func (o *Optimizer) Optimize(ctx context.Context, base *domain.ScenarioParameters, cfg domain.OptimizerConfig) (*domain.Candidate, error) {
	applyOptimizerDefaults(&cfg)
	if err := validateOptimizerConfig(&cfg); err != nil {
		return nil, fmt.Errorf("invalid optimizer config: %w", err)
	}

	candidates := o.generate(base, cfg)
	if len(candidates) == 0 {
		return nil, fmt.Errorf("candidate grid is empty")
	}
	o.Logger.Infof("optimizer: evaluating %d candidates", len(candidates))

	var best *domain.Candidate
	for _, cand := range candidates {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		mcOpts := cfg.MonteCarlo
		mcOpts.Seed += int64(cand.Index)
		summary, err := o.Runner.Run(ctx, cand.Params, mcOpts)
		if err != nil {
			return nil, fmt.Errorf("candidate %d: %w", cand.Index, err)
		}
		cand.Summary = summary
		cand.Score = o.score(base, cand, cfg)
		o.Logger.Debugf("candidate %d: success=%.1f%% ruin=%.1f%% score=%.3f",
			cand.Index, summary.SuccessRate, summary.RuinProbability, cand.Score)
		if !math.IsInf(cand.Score, -1) && (best == nil || cand.Score > best.Score) {
			best = cand
		}
	}
	return best, nil
}

// generate expands the grid for the configured mode, capped at
// MaxCombinations.
func (o *Optimizer) generate(base *domain.ScenarioParameters, cfg domain.OptimizerConfig) []*domain.Candidate {
	one := decimal.NewFromInt(1)
	var candidates []*domain.Candidate

	add := func(budget, cashFraction, withdrawal decimal.Decimal) bool {
		if len(candidates) >= cfg.MaxCombinations {
			return false
		}
		p := base.Clone()
		p.InitialCash = budget.Mul(cashFraction)
		p.InitialInvested = budget.Mul(one.Sub(cashFraction))
		p.WithdrawalMode = domain.WithdrawalFixedAmount
		p.MonthlyWithdrawal = withdrawal
		p.WithdrawalRate = decimal.Zero
		candidates = append(candidates, &domain.Candidate{
			Index:  len(candidates),
			Params: p,
			Score:  math.Inf(-1),
		})
		return true
	}

	switch cfg.Mode {
	case domain.ModeMaxWithdrawal:
		for _, cf := range cfg.CashFraction.Values() {
			for _, w := range cfg.Withdrawal.Values() {
				if !add(cfg.TotalBudget, cf, w) {
					o.Logger.Warnf("optimizer: grid truncated at %d combinations", cfg.MaxCombinations)
					return candidates
				}
			}
		}
	case domain.ModeMinBudget:
		for _, budget := range cfg.Budget.Values() {
			for _, cf := range cfg.CashFraction.Values() {
				if !add(budget, cf, cfg.TargetWithdrawal) {
					o.Logger.Warnf("optimizer: grid truncated at %d combinations", cfg.MaxCombinations)
					return candidates
				}
			}
		}
	}
	return candidates
}

// score computes the multi-objective score. Hard constraints return -Inf.
func (o *Optimizer) score(base *domain.ScenarioParameters, cand *domain.Candidate, cfg domain.OptimizerConfig) float64 {
	summary := cand.Summary
	if summary.SuccessRate < cfg.TargetSuccessRate {
		return math.Inf(-1)
	}

	var score float64
	switch cfg.Mode {
	case domain.ModeMaxWithdrawal:
		score = cand.Params.MonthlyWithdrawal.InexactFloat64()
	case domain.ModeMinBudget:
		budget := cand.Params.InitialCash.Add(cand.Params.InitialInvested)
		score = -budget.InexactFloat64() / 1000
	}

	// Secondary terms: reward median real end wealth, penalize ruin.
	score += cfg.MedianWealthBonus * summary.MedianEndWealthReal / 1000
	score -= cfg.RuinPenalty * summary.RuinProbability

	if base.EmergencyFundGoal.IsPositive() {
		fill := summary.EmergencyFillRate
		if cfg.EmergencyMinFillProbability > 0 && fill < cfg.EmergencyMinFillProbability {
			return math.Inf(-1)
		}
		speed := 0.0
		if fill > 0 && summary.Months > 0 {
			speed = 1 - summary.EmergencyFillMonths/float64(summary.Months)
		}
		score += cfg.EmergencyFillWeight*fill/100 + cfg.EmergencySpeedWeight*speed
	}
	return score
}
