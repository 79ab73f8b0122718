package calculation

import (
	"github.com/shopspring/decimal"

	"github.com/dpgo/drawdown-planner/internal/domain"
)

// saleEpsilon is the residual below which a cash need counts as met. Keeps the
// sale loop from chasing sub-micro-cent remainders.
var saleEpsilon = decimal.New(1, -6)

// Lot is one acquisition of fund shares. CostBasis is per share and is raised
// by deemed-distribution amounts over time.
type Lot struct {
	Shares           decimal.Decimal
	CostBasis        decimal.Decimal
	AcquisitionMonth int
}

// SaleResult reports the outcome of one ledger sale.
type SaleResult struct {
	GrossProceeds decimal.Decimal
	NetProceeds   decimal.Decimal
	TaxPaid       decimal.Decimal
	// Shortfall is the unmet part of the request after all lots were
	// exhausted. Never negative.
	Shortfall decimal.Decimal
}

// TaxSettlement reports how a tax liability was covered.
type TaxSettlement struct {
	CashAfter decimal.Decimal
	// TradeTaxPaid is additional trading tax triggered by selling shares to
	// cover the liability.
	TradeTaxPaid decimal.Decimal
	Shortfall    decimal.Decimal
}

// Ledger owns the acquisition lots of one simulation run and all sale and tax
// state: loss carryforward, annual allowance usage, and the pending
// deemed-distribution obligation. It is never shared across runs.
type Ledger struct {
	lots []Lot
	// head indexes the first live lot, so FIFO consumption is O(1).
	head int

	lossPot         decimal.Decimal
	allowanceUsed   decimal.Decimal
	annualAllowance decimal.Decimal

	taxRate         decimal.Decimal
	taxableFraction decimal.Decimal
	useFIFO         bool

	pendingDeemedTax decimal.Decimal
}

// NewLedger builds an empty ledger for the given tax regime.
func NewLedger(regime domain.TaxRegime) *Ledger {
	return &Ledger{
		lossPot:          decimal.Zero,
		allowanceUsed:    decimal.Zero,
		annualAllowance:  regime.AnnualAllowance,
		taxRate:          regime.EffectiveTaxRate(),
		taxableFraction:  regime.TaxableFraction,
		useFIFO:          regime.LotSelection != domain.LotSelectionLIFO,
		pendingDeemedTax: decimal.Zero,
	}
}

// AddLot records a purchase of amount at the given price.
func (l *Ledger) AddLot(amount, price decimal.Decimal, month int) {
	if !amount.IsPositive() || !price.IsPositive() {
		return
	}
	l.lots = append(l.lots, Lot{
		Shares:           amount.Div(price),
		CostBasis:        price,
		AcquisitionMonth: month,
	})
}

// LotCount returns the number of live lots.
func (l *Ledger) LotCount() int { return len(l.lots) - l.head }

// TotalShares sums the shares across live lots.
func (l *Ledger) TotalShares() decimal.Decimal {
	total := decimal.Zero
	for i := l.head; i < len(l.lots); i++ {
		total = total.Add(l.lots[i].Shares)
	}
	return total
}

// Value returns the market value of all live lots at the given price.
func (l *Ledger) Value(price decimal.Decimal) decimal.Decimal {
	return l.TotalShares().Mul(price)
}

// LossPot returns the carried-forward realized loss.
func (l *Ledger) LossPot() decimal.Decimal { return l.lossPot }

// AllowanceUsed returns the allowance consumed in the current tax year.
func (l *Ledger) AllowanceUsed() decimal.Decimal { return l.allowanceUsed }

// PendingDeemedTax returns the accrued, not yet settled deemed-distribution
// tax.
func (l *Ledger) PendingDeemedTax() decimal.Decimal { return l.pendingDeemedTax }

// ResetAllowance starts a new tax year. The loss pot persists.
func (l *Ledger) ResetAllowance() { l.allowanceUsed = decimal.Zero }

func (l *Ledger) remainingAllowance() decimal.Decimal {
	r := l.annualAllowance.Sub(l.allowanceUsed)
	if r.IsNegative() {
		return decimal.Zero
	}
	return r
}

// currentIndex returns the lot index the next sale consumes, or -1 when the
// ledger is empty.
func (l *Ledger) currentIndex() int {
	if l.head >= len(l.lots) {
		return -1
	}
	if l.useFIFO {
		return l.head
	}
	return len(l.lots) - 1
}

// consume removes shares from the lot at idx and prunes it once empty.
func (l *Ledger) consume(idx int, shares decimal.Decimal) {
	lot := &l.lots[idx]
	lot.Shares = lot.Shares.Sub(shares)
	if lot.Shares.LessThanOrEqual(saleEpsilon) {
		if idx == l.head {
			l.head++
		} else {
			l.lots = l.lots[:idx]
		}
	}
	// Compact once the dead prefix dominates the backing array.
	if l.head > 64 && l.head > len(l.lots)/2 {
		l.lots = append([]Lot(nil), l.lots[l.head:]...)
		l.head = 0
	}
}

// SellToCoverNet sells shares until the net proceeds cover the requested
// amount. Gains are first offset against the loss pot, then against the
// remaining annual allowance, then taxed at the flat rate. When all lots are
// exhausted the unmet remainder is reported as Shortfall, not an error.
func (l *Ledger) SellToCoverNet(needed, price decimal.Decimal) SaleResult {
	var res SaleResult
	remaining := needed

	for remaining.GreaterThan(saleEpsilon) {
		idx := l.currentIndex()
		if idx < 0 {
			break
		}
		lot := &l.lots[idx]
		gainPerShare := price.Sub(lot.CostBasis)

		if gainPerShare.LessThanOrEqual(decimal.Zero) {
			// Selling at or below basis: no tax, realized loss feeds the pot.
			shares := decimal.Min(lot.Shares, remaining.Div(price))
			gross := shares.Mul(price)
			loss := gainPerShare.Neg().Mul(shares).Mul(l.taxableFraction)
			l.lossPot = l.lossPot.Add(loss)
			res.GrossProceeds = res.GrossProceeds.Add(gross)
			res.NetProceeds = res.NetProceeds.Add(gross)
			remaining = remaining.Sub(gross)
			l.consume(idx, shares)
			continue
		}

		taxablePerShare := gainPerShare.Mul(l.taxableFraction)
		shelter := l.lossPot.Add(l.remainingAllowance())

		if shelter.GreaterThan(saleEpsilon) && taxablePerShare.IsPositive() {
			// Tax-sheltered region: net per share equals the price.
			shares := decimal.Min(lot.Shares, remaining.Div(price))
			shares = decimal.Min(shares, shelter.Div(taxablePerShare))
			if shares.GreaterThan(saleEpsilon) {
				gross := shares.Mul(price)
				sheltered := shares.Mul(taxablePerShare)
				fromPot := decimal.Min(l.lossPot, sheltered)
				l.lossPot = l.lossPot.Sub(fromPot)
				l.allowanceUsed = l.allowanceUsed.Add(sheltered.Sub(fromPot))
				res.GrossProceeds = res.GrossProceeds.Add(gross)
				res.NetProceeds = res.NetProceeds.Add(gross)
				remaining = remaining.Sub(gross)
				l.consume(idx, shares)
				continue
			}
		}

		// Beyond the tax-free region: solve for the share count whose net
		// proceeds cover the rest.
		netPerShare := price.Sub(taxablePerShare.Mul(l.taxRate))
		if netPerShare.LessThanOrEqual(saleEpsilon) {
			// Degenerate regime; no further shares can raise net cash.
			break
		}
		shares := decimal.Min(lot.Shares, remaining.Div(netPerShare))
		gross := shares.Mul(price)
		tax := shares.Mul(taxablePerShare).Mul(l.taxRate)
		res.GrossProceeds = res.GrossProceeds.Add(gross)
		res.TaxPaid = res.TaxPaid.Add(tax)
		res.NetProceeds = res.NetProceeds.Add(gross.Sub(tax))
		remaining = remaining.Sub(gross.Sub(tax))
		l.consume(idx, shares)
	}

	if remaining.GreaterThan(saleEpsilon) {
		res.Shortfall = remaining
	}
	return res
}

// SellGross sells shares until the gross proceeds reach the requested amount,
// used when the configured payout is defined pre-tax. Tax mechanics match
// SellToCoverNet; the shortfall is measured against the gross target.
func (l *Ledger) SellGross(requested, price decimal.Decimal) SaleResult {
	var res SaleResult
	remaining := requested

	for remaining.GreaterThan(saleEpsilon) {
		idx := l.currentIndex()
		if idx < 0 {
			break
		}
		lot := &l.lots[idx]
		shares := decimal.Min(lot.Shares, remaining.Div(price))
		gross := shares.Mul(price)
		gainPerShare := price.Sub(lot.CostBasis)

		if gainPerShare.LessThanOrEqual(decimal.Zero) {
			loss := gainPerShare.Neg().Mul(shares).Mul(l.taxableFraction)
			l.lossPot = l.lossPot.Add(loss)
			res.NetProceeds = res.NetProceeds.Add(gross)
		} else {
			taxableGain := gainPerShare.Mul(l.taxableFraction).Mul(shares)
			fromPot := decimal.Min(l.lossPot, taxableGain)
			l.lossPot = l.lossPot.Sub(fromPot)
			afterPot := taxableGain.Sub(fromPot)
			fromAllowance := decimal.Min(l.remainingAllowance(), afterPot)
			l.allowanceUsed = l.allowanceUsed.Add(fromAllowance)
			tax := afterPot.Sub(fromAllowance).Mul(l.taxRate)
			res.TaxPaid = res.TaxPaid.Add(tax)
			res.NetProceeds = res.NetProceeds.Add(gross.Sub(tax))
		}

		res.GrossProceeds = res.GrossProceeds.Add(gross)
		remaining = remaining.Sub(gross)
		l.consume(idx, shares)
	}

	if remaining.GreaterThan(saleEpsilon) {
		res.Shortfall = remaining
	}
	return res
}

// CoverTax settles a tax liability from cash first, then by selling shares
// for the remainder. A liability that even full liquidation cannot cover is
// reported as Shortfall.
func (l *Ledger) CoverTax(taxDue, cash, price decimal.Decimal) TaxSettlement {
	s := TaxSettlement{CashAfter: cash}
	if !taxDue.IsPositive() {
		return s
	}
	fromCash := decimal.Min(cash, taxDue)
	s.CashAfter = cash.Sub(fromCash)
	remainder := taxDue.Sub(fromCash)
	if remainder.GreaterThan(saleEpsilon) {
		sale := l.SellToCoverNet(remainder, price)
		s.TradeTaxPaid = sale.TaxPaid
		s.Shortfall = sale.Shortfall
	}
	return s
}

// AccrueDeemedDistribution computes the deemed-distribution tax for the tax
// year ending now and accrues it as a pending obligation, settled at the next
// year boundary. For each lot the notional baseline is
// valueAtYearStart × baselineRate × taxableFraction, pro-rated by months held
// for lots acquired during the year, and capped by the lot's actual gain.
// The cost basis of each lot is raised by its deemed amount immediately.
func (l *Ledger) AccrueDeemedDistribution(price, yearStartPrice, baselineRate decimal.Decimal, yearStartMonth int) decimal.Decimal {
	accrued := decimal.Zero
	twelve := decimal.NewFromInt(12)

	for i := l.head; i < len(l.lots); i++ {
		lot := &l.lots[i]
		var startValue, gain, prorate decimal.Decimal
		if lot.AcquisitionMonth < yearStartMonth {
			startValue = lot.Shares.Mul(yearStartPrice)
			gain = lot.Shares.Mul(price.Sub(yearStartPrice))
			prorate = decimal.NewFromInt(1)
		} else {
			startValue = lot.Shares.Mul(lot.CostBasis)
			gain = lot.Shares.Mul(price.Sub(lot.CostBasis))
			monthsHeld := 12 - (lot.AcquisitionMonth - yearStartMonth)
			if monthsHeld < 1 {
				monthsHeld = 1
			}
			prorate = decimal.NewFromInt(int64(monthsHeld)).Div(twelve)
		}
		if !gain.IsPositive() {
			continue
		}
		baseline := startValue.Mul(baselineRate).Mul(l.taxableFraction).Mul(prorate)
		deemed := decimal.Min(baseline, gain)
		if !deemed.IsPositive() {
			continue
		}
		fromAllowance := decimal.Min(l.remainingAllowance(), deemed)
		l.allowanceUsed = l.allowanceUsed.Add(fromAllowance)
		accrued = accrued.Add(deemed.Sub(fromAllowance).Mul(l.taxRate))
		lot.CostBasis = lot.CostBasis.Add(deemed.Div(lot.Shares))
	}

	l.pendingDeemedTax = l.pendingDeemedTax.Add(accrued)
	return accrued
}

// SettlePendingTax consumes the pending deemed-distribution obligation
// exactly once and returns the amount to pay.
func (l *Ledger) SettlePendingTax() decimal.Decimal {
	t := l.pendingDeemedTax
	l.pendingDeemedTax = decimal.Zero
	return t
}

// TaxInterest applies the annual allowance to the year's cash interest and
// returns the tax due on the remainder. Interest carries no partial
// exemption.
func (l *Ledger) TaxInterest(interest decimal.Decimal) decimal.Decimal {
	if !interest.IsPositive() {
		return decimal.Zero
	}
	fromAllowance := decimal.Min(l.remainingAllowance(), interest)
	l.allowanceUsed = l.allowanceUsed.Add(fromAllowance)
	return interest.Sub(fromAllowance).Mul(l.taxRate)
}

// ConsolidateLots merges neighboring lots whose cost bases differ by at most
// relTolerance (relative), weight-averaging the basis and keeping the
// earliest acquisition month, once the live lot count exceeds threshold.
// Total share count is preserved.
func (l *Ledger) ConsolidateLots(threshold int, relTolerance decimal.Decimal) {
	if l.LotCount() <= threshold {
		return
	}
	merged := make([]Lot, 0, l.LotCount())
	for i := l.head; i < len(l.lots); i++ {
		lot := l.lots[i]
		if len(merged) > 0 {
			last := &merged[len(merged)-1]
			diff := last.CostBasis.Sub(lot.CostBasis).Abs()
			if diff.LessThanOrEqual(last.CostBasis.Mul(relTolerance)) {
				total := last.Shares.Add(lot.Shares)
				last.CostBasis = last.CostBasis.Mul(last.Shares).Add(lot.CostBasis.Mul(lot.Shares)).Div(total)
				last.Shares = total
				if lot.AcquisitionMonth < last.AcquisitionMonth {
					last.AcquisitionMonth = lot.AcquisitionMonth
				}
				continue
			}
		}
		merged = append(merged, lot)
	}
	l.lots = merged
	l.head = 0
}
