package calculation

import (
	"context"
	"fmt"
	"math"
	"runtime"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"

	"github.com/dpgo/drawdown-planner/internal/domain"
	"github.com/dpgo/drawdown-planner/pkg/stats"
)

// shortfallSuccessEpsilon: withdrawal shortfalls above one cent disqualify a
// path from counting as a success, independent of the larger ruin tolerance.
var shortfallSuccessEpsilon = decimal.NewFromFloat(0.01)

// MonteCarloRunner executes the engine across many seeded paths and merges
// the raw results. Paths are partitioned into contiguous chunks that run on
// independent workers; chunks share no mutable state and every path owns its
// locally seeded generator (seed = base + global path index).
type MonteCarloRunner struct {
	Engine *Engine
	Logger Logger
}

// NewMonteCarloRunner creates a runner around the given engine.
func NewMonteCarloRunner(engine *Engine) *MonteCarloRunner {
	return &MonteCarloRunner{Engine: engine, Logger: NopLogger{}}
}

// SetLogger sets the runner logger. Nil installs a no-op logger.
func (r *MonteCarloRunner) SetLogger(l Logger) {
	if l == nil {
		r.Logger = NopLogger{}
		return
	}
	r.Logger = l
}

func applyMonteCarloDefaults(opts *domain.MonteCarloOptions) {
	if opts.Iterations <= 0 {
		opts.Iterations = 1000
	}
	if opts.Workers <= 0 {
		opts.Workers = runtime.GOMAXPROCS(0)
	}
	if opts.Volatility.IsZero() {
		opts.Volatility = decimal.NewFromFloat(0.15)
	}
	if opts.RuinWealthFraction.IsZero() {
		opts.RuinWealthFraction = decimal.NewFromFloat(0.10)
	}
	if opts.ShortfallAbsoluteFloor.IsZero() {
		opts.ShortfallAbsoluteFloor = decimal.NewFromInt(1)
	}
	if opts.ShortfallRelativeFloor.IsZero() {
		opts.ShortfallRelativeFloor = decimal.NewFromFloat(0.05)
	}
}

// Run executes the full Monte Carlo: chunked parallel path execution, raw
// data concatenation, then single-threaded aggregation. Cancellation is
// cooperative and checked between path iterations.
func (r *MonteCarloRunner) Run(ctx context.Context, params *domain.ScenarioParameters, opts domain.MonteCarloOptions) (*domain.MonteCarloResult, error) {
	if err := params.Validate(); err != nil {
		return nil, fmt.Errorf("invalid scenario parameters: %w", err)
	}
	applyMonteCarloDefaults(&opts)

	workers := opts.Workers
	if workers > opts.Iterations {
		workers = opts.Iterations
	}
	chunkSize := (opts.Iterations + workers - 1) / workers

	var completed atomic.Int64
	limiter := rate.NewLimiter(rate.Every(200*time.Millisecond), 1)
	progress := func() {
		if opts.Progress == nil {
			return
		}
		if limiter.Allow() {
			opts.Progress(int(completed.Load()), opts.Iterations)
		}
	}

	chunks := make([]*domain.MonteCarloRawData, 0, workers)
	errs := make([]error, 0)
	var mu sync.Mutex
	var wg sync.WaitGroup

	start := time.Now()
	for first := 0; first < opts.Iterations; first += chunkSize {
		count := chunkSize
		if first+count > opts.Iterations {
			count = opts.Iterations - first
		}
		wg.Add(1)
		go func(first, count int) {
			defer wg.Done()
			raw, err := r.RunChunk(ctx, params, opts, first, count, func(done int) {
				completed.Add(1)
				progress()
			})
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				errs = append(errs, err)
				return
			}
			chunks = append(chunks, raw)
		}(first, count)
	}
	wg.Wait()

	if len(errs) > 0 {
		return nil, errs[0]
	}
	if opts.Progress != nil {
		opts.Progress(opts.Iterations, opts.Iterations)
	}
	r.Logger.Infof("monte carlo: %d paths in %s", opts.Iterations, time.Since(start).Round(time.Millisecond))

	return Aggregate(opts, chunks...)
}

// RunChunk executes count consecutive paths starting at global index
// firstPath and returns their raw, unaggregated data. It is the entry point
// for distributed execution; onPath may be nil.
func (r *MonteCarloRunner) RunChunk(ctx context.Context, params *domain.ScenarioParameters, opts domain.MonteCarloOptions, firstPath, count int, onPath func(done int)) (*domain.MonteCarloRawData, error) {
	applyMonteCarloDefaults(&opts)
	months := params.TotalMonths()

	raw := &domain.MonteCarloRawData{
		FirstPath:     firstPath,
		Months:        months,
		Paths:         make([]domain.PathRecord, 0, count),
		MonthlyWealth: make([][]float64, months),
	}
	for m := range raw.MonthlyWealth {
		raw.MonthlyWealth[m] = make([]float64, 0, count)
	}

	simOpts := domain.SimulationOptions{
		Volatility:     opts.Volatility,
		StressScenario: opts.StressScenario,
		StartYear:      opts.StartYear,
	}

	for i := 0; i < count; i++ {
		// Cooperative cancellation between path iterations; a path in
		// progress runs to completion.
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		simOpts.Seed = opts.Seed + int64(firstPath+i)
		run, err := r.Engine.Simulate(ctx, params, simOpts)
		if err != nil {
			return nil, err
		}
		raw.Paths = append(raw.Paths, classifyPath(params, opts, run))
		for m, snap := range run.Snapshots {
			raw.MonthlyWealth[m] = append(raw.MonthlyWealth[m], snap.TotalWealth.InexactFloat64())
		}
		if onPath != nil {
			onPath(i + 1)
		}
	}
	return raw, nil
}

// classifyPath folds one run's snapshot stream into the per-path scalars.
func classifyPath(params *domain.ScenarioParameters, opts domain.MonteCarloOptions, run *domain.SimulationRun) domain.PathRecord {
	rec := domain.PathRecord{
		Seed:                  run.Seed,
		MonthsToEmergencyGoal: -1,
	}
	if len(run.Snapshots) == 0 {
		return rec
	}
	last := run.Snapshots[len(run.Snapshots)-1]

	endWealth := last.TotalWealth
	rec.EndWealthNominal = endWealth.InexactFloat64()
	if last.CumulativeInflation.IsPositive() {
		rec.EndWealthReal = endWealth.Div(last.CumulativeInflation).InexactFloat64()
	}
	rec.RetirementStartWealth = run.RetirementStartWealth.InexactFloat64()
	rec.LossPotRemaining = run.LossPotRemaining.InexactFloat64()
	rec.AllowanceUsed = run.AllowanceUsed.InexactFloat64()

	// Positive end: end wealth above the inflation-scaled success floor.
	floor := opts.SuccessFloor.Mul(last.CumulativeInflation)
	rec.PositiveEnd = endWealth.GreaterThan(floor)

	ruinWealth := opts.RuinWealthFraction.Mul(run.RetirementStartWealth)
	earlyMonths := earlyReturnMonths(params)
	earlyProduct := 1.0
	earlySeen := 0

	trackGoal := params.EmergencyFundGoal.IsPositive()

	for _, snap := range run.Snapshots {
		if trackGoal && rec.MonthsToEmergencyGoal < 0 && snap.Cash.GreaterThanOrEqual(params.EmergencyFundGoal) {
			rec.MonthsToEmergencyGoal = snap.Month
		}
		if snap.PreservationActive {
			rec.PreservationTriggered = true
		}
		if snap.Phase != domain.PhaseWithdrawal {
			continue
		}
		if earlySeen < earlyMonths {
			earlyProduct *= snap.ReturnFactor
			earlySeen++
		}
		if snap.WithdrawalShortfall.GreaterThan(shortfallSuccessEpsilon) {
			rec.WithdrawalShortfall = true
		}
		if !rec.Ruin {
			if snap.TotalWealth.LessThan(ruinWealth) {
				rec.Ruin = true
			} else {
				tol := decimal.Max(opts.ShortfallAbsoluteFloor, snap.WithdrawalRequested.Mul(opts.ShortfallRelativeFloor))
				if snap.WithdrawalShortfall.GreaterThan(tol) || snap.TaxShortfall.GreaterThan(tol) {
					rec.Ruin = true
				}
			}
		}
	}

	if earlySeen > 0 {
		rec.EarlyReturn = math.Pow(earlyProduct, 12.0/float64(earlySeen)) - 1
	}

	// A path cannot count as both success and ruin.
	rec.Success = rec.PositiveEnd && !rec.Ruin && !rec.WithdrawalShortfall
	return rec
}

// earlyReturnMonths returns the SoRR observation window: the first
// min(5, withdrawalYears) years of the withdrawal phase, in months.
func earlyReturnMonths(params *domain.ScenarioParameters) int {
	years := params.WithdrawalYears
	if years > 5 {
		years = 5
	}
	return years * 12
}

// Aggregate merges raw chunk data and computes the aggregate result. Raw
// per-path and per-month arrays are concatenated before any percentile or
// correlation computation; those statistics do not compose from partial
// aggregates.
func Aggregate(opts domain.MonteCarloOptions, chunks ...*domain.MonteCarloRawData) (*domain.MonteCarloResult, error) {
	applyMonteCarloDefaults(&opts)
	if len(chunks) == 0 {
		return nil, fmt.Errorf("no chunks to aggregate")
	}
	sort.Slice(chunks, func(a, b int) bool { return chunks[a].FirstPath < chunks[b].FirstPath })

	months := chunks[0].Months
	var paths []domain.PathRecord
	monthly := make([][]float64, months)
	for _, c := range chunks {
		if c.Months != months {
			return nil, fmt.Errorf("chunk month count mismatch: %d vs %d", c.Months, months)
		}
		paths = append(paths, c.Paths...)
		for m := 0; m < months; m++ {
			monthly[m] = append(monthly[m], c.MonthlyWealth[m]...)
		}
	}
	n := len(paths)
	if n == 0 {
		return nil, fmt.Errorf("no paths to aggregate")
	}

	res := &domain.MonteCarloResult{
		Iterations: n,
		Months:     months,
		Wealth: domain.PercentileCurves{
			P5:  make([]float64, months),
			P10: make([]float64, months),
			P25: make([]float64, months),
			P50: make([]float64, months),
			P75: make([]float64, months),
			P90: make([]float64, months),
			P95: make([]float64, months),
		},
	}

	for m := 0; m < months; m++ {
		sorted := monthly[m]
		sort.Float64s(sorted)
		res.Wealth.P5[m] = stats.PercentileSorted(sorted, 5)
		res.Wealth.P10[m] = stats.PercentileSorted(sorted, 10)
		res.Wealth.P25[m] = stats.PercentileSorted(sorted, 25)
		res.Wealth.P50[m] = stats.PercentileSorted(sorted, 50)
		res.Wealth.P75[m] = stats.PercentileSorted(sorted, 75)
		res.Wealth.P90[m] = stats.PercentileSorted(sorted, 90)
		res.Wealth.P95[m] = stats.PercentileSorted(sorted, 95)
	}

	endNominal := make([]float64, n)
	endReal := make([]float64, n)
	var successes, ruins, preserved, filled int
	var fillMonths float64
	for i, p := range paths {
		endNominal[i] = p.EndWealthNominal
		endReal[i] = p.EndWealthReal
		if p.Success {
			successes++
		}
		if p.Ruin {
			ruins++
		}
		if p.PreservationTriggered {
			preserved++
		}
		if p.MonthsToEmergencyGoal >= 0 {
			filled++
			fillMonths += float64(p.MonthsToEmergencyGoal)
		}
	}

	sort.Float64s(endNominal)
	res.EndWealth = domain.Percentiles{
		P5:  stats.PercentileSorted(endNominal, 5),
		P10: stats.PercentileSorted(endNominal, 10),
		P25: stats.PercentileSorted(endNominal, 25),
		P50: stats.PercentileSorted(endNominal, 50),
		P75: stats.PercentileSorted(endNominal, 75),
		P90: stats.PercentileSorted(endNominal, 90),
		P95: stats.PercentileSorted(endNominal, 95),
	}
	res.MeanEndWealth = stats.Mean(endNominal)
	res.MedianEndWealthReal = stats.Percentile(endReal, 50)

	res.SuccessRate = float64(successes) / float64(n) * 100
	res.RuinProbability = float64(ruins) / float64(n) * 100
	res.PreservationRate = float64(preserved) / float64(n) * 100
	res.EmergencyFillRate = float64(filled) / float64(n) * 100
	if filled > 0 {
		res.EmergencyFillMonths = fillMonths / float64(filled)
	}

	res.SoRR = computeSoRR(paths)
	return res, nil
}
