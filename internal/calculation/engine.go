package calculation

import (
	"context"
	"fmt"
	"math"

	"github.com/shopspring/decimal"

	"github.com/dpgo/drawdown-planner/internal/domain"
)

// startPrice is the normalized share price at month zero.
var startPrice = decimal.NewFromInt(100)

// Lot consolidation runs at tax-year boundaries once the ledger grows past
// this count; bases within 0.5% are merged.
const lotConsolidationThreshold = 100

var lotConsolidationTolerance = decimal.NewFromFloat(0.005)

// baselineRates holds the published annual baseline rates (Basiszins) for the
// deemed-distribution tax, by calendar year. Years without an entry fall back
// to the scenario's configured rate. Negative years produce no deemed
// distribution.
var baselineRates = map[int]decimal.Decimal{
	2016: decimal.NewFromFloat(0.0110),
	2017: decimal.NewFromFloat(0.0059),
	2018: decimal.NewFromFloat(0.0087),
	2019: decimal.NewFromFloat(0.0052),
	2020: decimal.NewFromFloat(0.0007),
	2021: decimal.NewFromFloat(-0.0045),
	2022: decimal.NewFromFloat(-0.0005),
	2023: decimal.NewFromFloat(0.0255),
	2024: decimal.NewFromFloat(0.0229),
	2025: decimal.NewFromFloat(0.0253),
}

// baselineRateFor resolves the baseline rate for the tax year at yearIdx
// after the scenario start.
func baselineRateFor(startYear, yearIdx int, fallback decimal.Decimal) decimal.Decimal {
	if startYear == 0 {
		return fallback
	}
	if rate, ok := baselineRates[startYear+yearIdx]; ok {
		return rate
	}
	return fallback
}

// Engine runs one full savings-and-withdrawal projection. It is a pure
// function of (parameters, seed): no state survives between Simulate calls,
// so concurrent invocations are safe.
type Engine struct {
	Logger Logger
}

// NewEngine creates an engine with a no-op logger.
func NewEngine() *Engine {
	return &Engine{Logger: NopLogger{}}
}

// SetLogger sets the engine logger. Nil installs a no-op logger.
func (e *Engine) SetLogger(l Logger) {
	if l == nil {
		e.Logger = NopLogger{}
		return
	}
	e.Logger = l
}

// monthlyRate converts an annual rate to its compounding monthly equivalent.
func monthlyRate(annual decimal.Decimal) decimal.Decimal {
	return decimal.NewFromFloat(math.Pow(1+annual.InexactFloat64(), 1.0/12) - 1)
}

// Simulate runs the scenario month by month and returns one snapshot per
// month. Validation failures surface before the first simulated month;
// in-run liquidity gaps are recorded as shortfalls, never as errors.
func (e *Engine) Simulate(ctx context.Context, params *domain.ScenarioParameters, opts domain.SimulationOptions) (*domain.SimulationRun, error) {
	if err := params.Validate(); err != nil {
		return nil, fmt.Errorf("invalid scenario parameters: %w", err)
	}
	if opts.Volatility.IsNegative() {
		return nil, fmt.Errorf("volatility must not be negative, got %s", opts.Volatility)
	}

	// Fee drag reduces the asset's growth rate.
	netGrowth := params.AnnualGrowthRate.Sub(params.AnnualFeeRate)
	gen, err := NewReturnGenerator(netGrowth, opts.Volatility, opts.Seed, opts.StressScenario, params.AccumulationMonths())
	if err != nil {
		return nil, err
	}

	ledger := NewLedger(params.Tax)
	controller := NewPreservationController(params.Preservation)

	totalMonths := params.TotalMonths()
	accumMonths := params.AccumulationMonths()

	price := startPrice
	cash := params.InitialCash
	if params.InitialInvested.IsPositive() {
		ledger.AddLot(params.InitialInvested, price, 0)
	}

	interestMonthly := monthlyRate(params.AnnualInterestRate)
	inflationFactor := decimal.NewFromInt(1).Add(monthlyRate(params.AnnualInflationRate))
	one := decimal.NewFromInt(1)

	contribution := params.MonthlyContribution
	cumInflation := one
	yearInterest := decimal.Zero
	yearStartPrice := price
	yearStartMonth := 0

	var retirementStartWealth, baseWithdrawal, inflationAtRetirement decimal.Decimal

	run := &domain.SimulationRun{
		Seed:      opts.Seed,
		Snapshots: make([]domain.MonthlySnapshot, 0, totalMonths),
	}

	for m := 0; m < totalMonths; m++ {
		snap := domain.MonthlySnapshot{Month: m, Phase: domain.PhaseAccumulation}
		if m >= accumMonths {
			snap.Phase = domain.PhaseWithdrawal
		}

		// Tax-year boundary: settle last year's deemed-distribution accrual,
		// reset the allowance, bound ledger growth.
		if m > 0 && m%12 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			if due := ledger.SettlePendingTax(); due.IsPositive() {
				ts := ledger.CoverTax(due, cash, price)
				cash = ts.CashAfter
				snap.DeemedDistributionTaxPaid = due.Sub(ts.Shortfall)
				snap.TradeTaxPaid = snap.TradeTaxPaid.Add(ts.TradeTaxPaid)
				snap.TaxShortfall = snap.TaxShortfall.Add(ts.Shortfall)
			}
			ledger.ResetAllowance()
			ledger.ConsolidateLots(lotConsolidationThreshold, lotConsolidationTolerance)
			yearStartPrice = price
			yearStartMonth = m
		}

		factor := gen.NextMonthlyReturn(m)
		price = price.Mul(decimal.NewFromFloat(factor))
		snap.ReturnFactor = factor

		interest := cash.Mul(interestMonthly)
		cash = cash.Add(interest)
		yearInterest = yearInterest.Add(interest)

		cumInflation = cumInflation.Mul(inflationFactor)

		if m < accumMonths {
			if m > 0 && m%12 == 0 && params.AnnualRaiseRate.IsPositive() {
				contribution = contribution.Mul(one.Add(params.AnnualRaiseRate))
			}
			cash = cash.Add(contribution)
			snap.Contribution = contribution
			if extra := params.SpecialContribution.AmountAt(m, cumInflation); extra.IsPositive() {
				cash = cash.Add(extra)
				snap.Contribution = snap.Contribution.Add(extra)
			}

			if expense := params.SpecialExpense.AmountAt(m, cumInflation); expense.IsPositive() {
				surplus := decimal.Max(decimal.Zero, cash.Sub(params.CashTarget))
				fromCash := decimal.Min(expense, surplus)
				cash = cash.Sub(fromCash)
				paid := fromCash
				if rem := expense.Sub(fromCash); rem.IsPositive() {
					sale := ledger.SellToCoverNet(rem, price)
					snap.TradeTaxPaid = snap.TradeTaxPaid.Add(sale.TaxPaid)
					paid = paid.Add(rem.Sub(sale.Shortfall))
				}
				snap.WithdrawalRequested = expense
				snap.WithdrawalPaid = paid
				snap.WithdrawalShortfall = expense.Sub(paid)
			}

			if cash.GreaterThan(params.CashTarget) {
				invest := cash.Sub(params.CashTarget)
				ledger.AddLot(invest, price, m)
				cash = params.CashTarget
			}
		} else {
			if m == accumMonths {
				retirementStartWealth = cash.Add(ledger.Value(price))
				controller.Initialize(retirementStartWealth)
				inflationAtRetirement = cumInflation
				switch params.WithdrawalMode {
				case domain.WithdrawalPercentage:
					baseWithdrawal = retirementStartWealth.Mul(params.WithdrawalRate).Div(decimal.NewFromInt(12))
				default:
					baseWithdrawal = params.MonthlyWithdrawal
				}
				run.RetirementStartWealth = retirementStartWealth
				e.Logger.Debugf("withdrawal phase starts: wealth=%s base=%s", retirementStartWealth.StringFixed(2), baseWithdrawal.StringFixed(2))
			}

			w := baseWithdrawal
			if params.WithdrawalInflationIndexed {
				w = w.Mul(cumInflation.Div(inflationAtRetirement))
			}
			if w.LessThan(params.WithdrawalMin) {
				w = params.WithdrawalMin
			}
			if params.WithdrawalMax.IsPositive() && w.GreaterThan(params.WithdrawalMax) {
				w = params.WithdrawalMax
			}

			wealth := cash.Add(ledger.Value(price))
			w, active := controller.Throttle(wealth, w)
			snap.PreservationActive = active

			requested := w.Add(params.SpecialExpense.AmountAt(m, cumInflation))
			fromCash := decimal.Min(cash, requested)
			cash = cash.Sub(fromCash)
			paid := fromCash
			if rem := requested.Sub(fromCash); rem.IsPositive() {
				var sale SaleResult
				if params.WithdrawalGross {
					sale = ledger.SellGross(rem, price)
				} else {
					sale = ledger.SellToCoverNet(rem, price)
				}
				snap.TradeTaxPaid = snap.TradeTaxPaid.Add(sale.TaxPaid)
				paid = paid.Add(rem.Sub(sale.Shortfall))
			}
			snap.WithdrawalRequested = requested
			snap.WithdrawalPaid = paid
			snap.WithdrawalShortfall = requested.Sub(paid)
		}

		// Tax-year end: accrue the deemed-distribution tax for settlement at
		// the next year boundary, and settle this year's interest tax.
		if m%12 == 11 {
			baseline := baselineRateFor(opts.StartYear, m/12, params.Tax.BaselineRate)
			accrued := ledger.AccrueDeemedDistribution(price, yearStartPrice, baseline, yearStartMonth)
			if accrued.IsPositive() {
				e.Logger.Debugf("month %d: accrued deemed-distribution tax %s", m, accrued.StringFixed(2))
			}
			if due := ledger.TaxInterest(yearInterest); due.IsPositive() {
				ts := ledger.CoverTax(due, cash, price)
				cash = ts.CashAfter
				snap.InterestTaxPaid = due.Sub(ts.Shortfall)
				snap.TradeTaxPaid = snap.TradeTaxPaid.Add(ts.TradeTaxPaid)
				snap.TaxShortfall = snap.TaxShortfall.Add(ts.Shortfall)
			}
			yearInterest = decimal.Zero
		}

		snap.Cash = cash
		snap.Invested = ledger.Value(price)
		snap.TotalWealth = snap.Cash.Add(snap.Invested)
		snap.SharePrice = price
		snap.CumulativeInflation = cumInflation
		snap.LotCount = ledger.LotCount()
		run.Snapshots = append(run.Snapshots, snap)
	}

	// The final year has no following year boundary; settle its accrued
	// deemed-distribution tax immediately so the obligation is consumed
	// exactly once.
	if due := ledger.SettlePendingTax(); due.IsPositive() {
		ts := ledger.CoverTax(due, cash, price)
		cash = ts.CashAfter
		last := &run.Snapshots[len(run.Snapshots)-1]
		last.DeemedDistributionTaxPaid = last.DeemedDistributionTaxPaid.Add(due.Sub(ts.Shortfall))
		last.TradeTaxPaid = last.TradeTaxPaid.Add(ts.TradeTaxPaid)
		last.TaxShortfall = last.TaxShortfall.Add(ts.Shortfall)
		last.Cash = cash
		last.Invested = ledger.Value(price)
		last.TotalWealth = last.Cash.Add(last.Invested)
	}

	run.LossPotRemaining = ledger.LossPot()
	run.AllowanceUsed = ledger.AllowanceUsed()
	return run, nil
}
