package calculation

import (
	"context"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dpgo/drawdown-planner/internal/domain"
)

func mcParams() *domain.ScenarioParameters {
	p := baseParams()
	p.AccumulationYears = 1
	p.WithdrawalYears = 3
	p.MonthlyWithdrawal = decimal.NewFromInt(800)
	return p
}

func mcOpts() domain.MonteCarloOptions {
	return domain.MonteCarloOptions{
		Iterations: 40,
		Workers:    4,
		Seed:       1234,
		Volatility: decimal.NewFromFloat(0.15),
	}
}

func TestMonteCarloDeterminism(t *testing.T) {
	runner := NewMonteCarloRunner(NewEngine())
	ctx := context.Background()

	a, err := runner.Run(ctx, mcParams(), mcOpts())
	require.NoError(t, err)
	b, err := runner.Run(ctx, mcParams(), mcOpts())
	require.NoError(t, err)

	assert.Equal(t, a.SuccessRate, b.SuccessRate)
	assert.Equal(t, a.RuinProbability, b.RuinProbability)
	assert.Equal(t, a.EndWealth, b.EndWealth)
	assert.Equal(t, a.Wealth.P50, b.Wealth.P50)
	assert.Equal(t, a.SoRR, b.SoRR)
}

func TestMonteCarloPercentileMonotonicity(t *testing.T) {
	runner := NewMonteCarloRunner(NewEngine())
	res, err := runner.Run(context.Background(), mcParams(), mcOpts())
	require.NoError(t, err)

	for m := 0; m < res.Months; m++ {
		curves := []float64{
			res.Wealth.P5[m], res.Wealth.P10[m], res.Wealth.P25[m], res.Wealth.P50[m],
			res.Wealth.P75[m], res.Wealth.P90[m], res.Wealth.P95[m],
		}
		for i := 1; i < len(curves); i++ {
			assert.LessOrEqual(t, curves[i-1], curves[i], "month %d, step %d", m, i)
		}
	}

	end := []float64{
		res.EndWealth.P5, res.EndWealth.P10, res.EndWealth.P25, res.EndWealth.P50,
		res.EndWealth.P75, res.EndWealth.P90, res.EndWealth.P95,
	}
	for i := 1; i < len(end); i++ {
		assert.LessOrEqual(t, end[i-1], end[i])
	}
}

func TestMonteCarloRateBounds(t *testing.T) {
	runner := NewMonteCarloRunner(NewEngine())
	res, err := runner.Run(context.Background(), mcParams(), mcOpts())
	require.NoError(t, err)

	assert.GreaterOrEqual(t, res.SuccessRate, 0.0)
	assert.LessOrEqual(t, res.SuccessRate, 100.0)
	assert.GreaterOrEqual(t, res.RuinProbability, 0.0)
	assert.LessOrEqual(t, res.RuinProbability, 100.0)
	// Ruin paths never count as successes.
	assert.LessOrEqual(t, res.SuccessRate+res.RuinProbability, 100.0)
	assert.Equal(t, 40, res.Iterations)
}

func TestMonteCarloChunkEquivalence(t *testing.T) {
	// Aggregating externally produced chunks must match the in-process run,
	// regardless of chunk arrival order.
	runner := NewMonteCarloRunner(NewEngine())
	ctx := context.Background()
	params := mcParams()
	opts := mcOpts()
	opts.Iterations = 30
	opts.Workers = 3

	whole, err := runner.Run(ctx, params, opts)
	require.NoError(t, err)

	var chunks []*domain.MonteCarloRawData
	for _, span := range []struct{ first, count int }{{20, 10}, {0, 10}, {10, 10}} {
		raw, err := runner.RunChunk(ctx, params, opts, span.first, span.count, nil)
		require.NoError(t, err)
		chunks = append(chunks, raw)
	}
	merged, err := Aggregate(opts, chunks...)
	require.NoError(t, err)

	assert.Equal(t, whole.SuccessRate, merged.SuccessRate)
	assert.Equal(t, whole.RuinProbability, merged.RuinProbability)
	assert.Equal(t, whole.EndWealth, merged.EndWealth)
	assert.Equal(t, whole.MeanEndWealth, merged.MeanEndWealth)
	assert.Equal(t, whole.Wealth.P50, merged.Wealth.P50)
	assert.Equal(t, whole.SoRR, merged.SoRR)
}

func TestMonteCarloProgress(t *testing.T) {
	var mu sync.Mutex
	var calls [][2]int

	opts := mcOpts()
	opts.Progress = func(done, total int) {
		mu.Lock()
		defer mu.Unlock()
		calls = append(calls, [2]int{done, total})
	}

	runner := NewMonteCarloRunner(NewEngine())
	_, err := runner.Run(context.Background(), mcParams(), opts)
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	require.NotEmpty(t, calls)
	last := calls[len(calls)-1]
	assert.Equal(t, [2]int{40, 40}, last, "the final report covers all paths")
}

func TestMonteCarloCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	runner := NewMonteCarloRunner(NewEngine())
	_, err := runner.Run(ctx, mcParams(), mcOpts())
	assert.ErrorIs(t, err, context.Canceled)
}

func TestAggregateValidation(t *testing.T) {
	_, err := Aggregate(mcOpts())
	assert.ErrorContains(t, err, "no chunks")

	a := &domain.MonteCarloRawData{Months: 12, Paths: []domain.PathRecord{{}}, MonthlyWealth: make([][]float64, 12)}
	b := &domain.MonteCarloRawData{FirstPath: 1, Months: 24, Paths: []domain.PathRecord{{}}, MonthlyWealth: make([][]float64, 24)}
	_, err = Aggregate(mcOpts(), a, b)
	assert.ErrorContains(t, err, "month count mismatch")
}

func TestClassifyPath(t *testing.T) {
	params := mcParams()
	opts := mcOpts()
	applyMonteCarloDefaults(&opts)

	one := decimal.NewFromInt(1)
	snap := func(month int, wealth int64) domain.MonthlySnapshot {
		return domain.MonthlySnapshot{
			Month:               month,
			Phase:               domain.PhaseWithdrawal,
			TotalWealth:         decimal.NewFromInt(wealth),
			ReturnFactor:        1.0,
			CumulativeInflation: one,
			WithdrawalRequested: decimal.NewFromInt(800),
		}
	}

	t.Run("healthy path succeeds", func(t *testing.T) {
		run := &domain.SimulationRun{
			RetirementStartWealth: decimal.NewFromInt(100000),
			Snapshots:             []domain.MonthlySnapshot{snap(0, 99000), snap(1, 98000)},
		}
		rec := classifyPath(params, opts, run)
		assert.True(t, rec.PositiveEnd)
		assert.False(t, rec.Ruin)
		assert.True(t, rec.Success)
	})

	t.Run("wealth collapse is ruin even with a positive end", func(t *testing.T) {
		run := &domain.SimulationRun{
			RetirementStartWealth: decimal.NewFromInt(100000),
			Snapshots:             []domain.MonthlySnapshot{snap(0, 5000), snap(1, 40000)},
		}
		rec := classifyPath(params, opts, run)
		assert.True(t, rec.PositiveEnd)
		assert.True(t, rec.Ruin, "dipping below the ruin fraction is terminal")
		assert.False(t, rec.Success)
	})

	t.Run("small shortfall blocks success without ruin", func(t *testing.T) {
		s := snap(0, 90000)
		s.WithdrawalShortfall = decimal.NewFromFloat(0.50)
		run := &domain.SimulationRun{
			RetirementStartWealth: decimal.NewFromInt(100000),
			Snapshots:             []domain.MonthlySnapshot{s},
		}
		rec := classifyPath(params, opts, run)
		assert.False(t, rec.Ruin, "half a euro is inside the ruin tolerance")
		assert.True(t, rec.WithdrawalShortfall)
		assert.False(t, rec.Success)
	})

	t.Run("large shortfall is ruin", func(t *testing.T) {
		s := snap(0, 90000)
		s.WithdrawalShortfall = decimal.NewFromInt(200)
		run := &domain.SimulationRun{
			RetirementStartWealth: decimal.NewFromInt(100000),
			Snapshots:             []domain.MonthlySnapshot{s},
		}
		rec := classifyPath(params, opts, run)
		assert.True(t, rec.Ruin)
	})

	t.Run("emergency goal month is recorded", func(t *testing.T) {
		p := mcParams()
		p.EmergencyFundGoal = decimal.NewFromInt(5000)
		a := snap(0, 90000)
		a.Cash = decimal.NewFromInt(1000)
		b := snap(1, 90000)
		b.Cash = decimal.NewFromInt(6000)
		run := &domain.SimulationRun{
			RetirementStartWealth: decimal.NewFromInt(100000),
			Snapshots:             []domain.MonthlySnapshot{a, b},
		}
		rec := classifyPath(p, opts, run)
		assert.Equal(t, 1, rec.MonthsToEmergencyGoal)
	})
}

func TestEarlyReturnMonths(t *testing.T) {
	tests := []struct {
		years    int
		expected int
	}{
		{0, 0},
		{3, 36},
		{5, 60},
		{30, 60},
	}
	for _, tt := range tests {
		p := &domain.ScenarioParameters{WithdrawalYears: tt.years}
		assert.Equal(t, tt.expected, earlyReturnMonths(p))
	}
}
