package calculation

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dpgo/drawdown-planner/internal/domain"
)

func testRegime(allowance float64, fraction float64, selection domain.LotSelection) domain.TaxRegime {
	return domain.TaxRegime{
		AnnualAllowance: decimal.NewFromFloat(allowance),
		TaxableFraction: decimal.NewFromFloat(fraction),
		ChurchTax:       domain.ChurchTaxNone,
		LotSelection:    selection,
		BaselineRate:    decimal.NewFromFloat(0.0253),
	}
}

func TestEffectiveTaxRate(t *testing.T) {
	tests := []struct {
		name     string
		tier     domain.ChurchTaxTier
		expected string
	}{
		{"no church tax", domain.ChurchTaxNone, "0.263750"},
		{"eight percent", domain.ChurchTaxEight, "0.283750"},
		{"nine percent", domain.ChurchTaxNine, "0.286250"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			regime := domain.TaxRegime{ChurchTax: tt.tier}
			assert.Equal(t, tt.expected, regime.EffectiveTaxRate().StringFixed(6))
		})
	}
}

func TestLotSelectionOrder(t *testing.T) {
	price := decimal.NewFromInt(150)
	need := decimal.NewFromInt(500)

	t.Run("LIFO depletes the later lot first", func(t *testing.T) {
		l := NewLedger(testRegime(0, 1.0, domain.LotSelectionLIFO))
		l.AddLot(decimal.NewFromInt(800), decimal.NewFromInt(80), 0)    // 10 shares @ 80
		l.AddLot(decimal.NewFromInt(1400), decimal.NewFromInt(140), 12) // 10 shares @ 140

		res := l.SellToCoverNet(need, price)
		require.True(t, res.Shortfall.IsZero())

		first := l.lots[0].Shares
		second := l.lots[1].Shares
		assert.True(t, first.Equal(decimal.NewFromInt(10)), "first lot untouched, got %s", first)
		assert.True(t, first.GreaterThan(second), "first lot must retain more shares than the second")
	})

	t.Run("FIFO depletes the earlier lot first", func(t *testing.T) {
		l := NewLedger(testRegime(0, 1.0, domain.LotSelectionFIFO))
		l.AddLot(decimal.NewFromInt(800), decimal.NewFromInt(80), 0)
		l.AddLot(decimal.NewFromInt(1400), decimal.NewFromInt(140), 12)

		res := l.SellToCoverNet(need, price)
		require.True(t, res.Shortfall.IsZero())

		require.Equal(t, 2, l.LotCount())
		first := l.lots[l.head].Shares
		second := l.lots[l.head+1].Shares
		assert.True(t, second.Equal(decimal.NewFromInt(10)), "second lot untouched, got %s", second)
		assert.True(t, first.LessThan(second))
	})
}

func TestSellToCoverNetAllowancePriority(t *testing.T) {
	// A sale whose taxable gain fits in the remaining allowance pays no tax.
	l := NewLedger(testRegime(1000, 0.7, domain.LotSelectionFIFO))
	l.AddLot(decimal.NewFromInt(1000), decimal.NewFromInt(100), 0)

	res := l.SellToCoverNet(decimal.NewFromInt(200), decimal.NewFromInt(110))
	assert.True(t, res.TaxPaid.IsZero(), "tax paid should be zero, got %s", res.TaxPaid)
	assert.True(t, res.Shortfall.IsZero())
	assert.True(t, l.AllowanceUsed().IsPositive())
	assert.True(t, l.AllowanceUsed().LessThanOrEqual(l.annualAllowance))
}

func TestSellToCoverNetLossPotPriority(t *testing.T) {
	l := NewLedger(testRegime(0, 1.0, domain.LotSelectionFIFO))
	// Liquidating below basis feeds the loss pot.
	l.AddLot(decimal.NewFromInt(1500), decimal.NewFromInt(150), 0) // 10 shares @ 150
	res := l.SellToCoverNet(decimal.NewFromInt(1000), decimal.NewFromInt(100))
	require.True(t, res.TaxPaid.IsZero())
	// 10 shares sold at a 50 loss each.
	assert.True(t, l.LossPot().Equal(decimal.NewFromInt(500)), "loss pot %s", l.LossPot())

	// A later gain is offset against the pot before anything is taxed.
	l.AddLot(decimal.NewFromInt(1000), decimal.NewFromInt(100), 1) // 10 shares @ 100
	res = l.SellToCoverNet(decimal.NewFromInt(240), decimal.NewFromInt(120))
	assert.True(t, res.TaxPaid.IsZero(), "pot-sheltered sale must pay no tax, got %s", res.TaxPaid)
	// 2 shares sold, 40 of gain consumed from the pot.
	assert.True(t, l.LossPot().Equal(decimal.NewFromInt(460)), "loss pot %s", l.LossPot())
	assert.False(t, l.LossPot().IsNegative(), "loss pot must never go negative")
}

func TestSellToCoverNetTaxedRegion(t *testing.T) {
	// No allowance, no pot: the closed-form share solve must cover the need
	// net of tax.
	l := NewLedger(testRegime(0, 1.0, domain.LotSelectionFIFO))
	l.AddLot(decimal.NewFromInt(10000), decimal.NewFromInt(100), 0) // 100 shares

	need := decimal.NewFromInt(1000)
	res := l.SellToCoverNet(need, decimal.NewFromInt(150))
	assert.True(t, res.Shortfall.IsZero())
	assert.True(t, res.TaxPaid.IsPositive())
	diff := res.NetProceeds.Sub(need).Abs()
	assert.True(t, diff.LessThan(decimal.NewFromFloat(0.01)), "net proceeds %s must match the need", res.NetProceeds)
	assert.True(t, res.GrossProceeds.Equal(res.NetProceeds.Add(res.TaxPaid)))
}

func TestSellToCoverNetShortfall(t *testing.T) {
	l := NewLedger(testRegime(0, 1.0, domain.LotSelectionFIFO))
	l.AddLot(decimal.NewFromInt(100), decimal.NewFromInt(100), 0) // 1 share

	res := l.SellToCoverNet(decimal.NewFromInt(500), decimal.NewFromInt(100))
	assert.True(t, res.Shortfall.IsPositive())
	assert.Equal(t, 0, l.LotCount(), "a lot with zero shares must be pruned, never retained")

	diff := res.Shortfall.Sub(decimal.NewFromInt(400)).Abs()
	assert.True(t, diff.LessThan(decimal.NewFromFloat(0.01)), "shortfall %s", res.Shortfall)
}

func TestSellGross(t *testing.T) {
	l := NewLedger(testRegime(0, 1.0, domain.LotSelectionFIFO))
	l.AddLot(decimal.NewFromInt(10000), decimal.NewFromInt(100), 0)

	res := l.SellGross(decimal.NewFromInt(1500), decimal.NewFromInt(150))
	assert.True(t, res.Shortfall.IsZero())
	assert.True(t, res.GrossProceeds.Equal(decimal.NewFromInt(1500)))
	// 10 shares sold, 50 gain each, flat rate 26.375%.
	expectedTax := decimal.NewFromInt(500).Mul(decimal.NewFromFloat(0.26375))
	assert.True(t, res.TaxPaid.Sub(expectedTax).Abs().LessThan(decimal.NewFromFloat(0.01)), "tax %s", res.TaxPaid)
	assert.True(t, res.NetProceeds.Equal(res.GrossProceeds.Sub(res.TaxPaid)))
}

func TestCoverTax(t *testing.T) {
	t.Run("cash first", func(t *testing.T) {
		l := NewLedger(testRegime(0, 1.0, domain.LotSelectionFIFO))
		s := l.CoverTax(decimal.NewFromInt(100), decimal.NewFromInt(500), decimal.NewFromInt(100))
		assert.True(t, s.CashAfter.Equal(decimal.NewFromInt(400)))
		assert.True(t, s.Shortfall.IsZero())
	})

	t.Run("lot sale for the remainder", func(t *testing.T) {
		l := NewLedger(testRegime(0, 1.0, domain.LotSelectionFIFO))
		l.AddLot(decimal.NewFromInt(10000), decimal.NewFromInt(100), 0)
		s := l.CoverTax(decimal.NewFromInt(300), decimal.NewFromInt(100), decimal.NewFromInt(100))
		assert.True(t, s.CashAfter.IsZero())
		assert.True(t, s.Shortfall.IsZero())
	})

	t.Run("shortfall when even liquidation cannot cover", func(t *testing.T) {
		l := NewLedger(testRegime(0, 1.0, domain.LotSelectionFIFO))
		l.AddLot(decimal.NewFromInt(50), decimal.NewFromInt(100), 0)
		s := l.CoverTax(decimal.NewFromInt(300), decimal.NewFromInt(100), decimal.NewFromInt(100))
		assert.True(t, s.Shortfall.IsPositive())
	})
}

func TestDeemedDistribution(t *testing.T) {
	l := NewLedger(testRegime(0, 0.7, domain.LotSelectionFIFO))
	l.AddLot(decimal.NewFromInt(1000), decimal.NewFromInt(100), 0) // 10 shares

	baseline := decimal.NewFromFloat(0.02)
	accrued := l.AccrueDeemedDistribution(decimal.NewFromInt(110), decimal.NewFromInt(100), baseline, 0)

	// baseline = 1000 × 0.02 × 0.7 = 14, capped by the 100 gain → 14 taxable.
	expected := decimal.NewFromInt(14).Mul(decimal.NewFromFloat(0.26375))
	assert.True(t, accrued.Sub(expected).Abs().LessThan(decimal.NewFromFloat(0.001)), "accrued %s", accrued)
	assert.True(t, l.PendingDeemedTax().Equal(accrued))

	// Cost basis steps up by the deemed amount per share: 14/10 = 1.4.
	assert.True(t, l.lots[0].CostBasis.Equal(decimal.NewFromFloat(101.4)), "basis %s", l.lots[0].CostBasis)

	// Settlement consumes the obligation exactly once.
	due := l.SettlePendingTax()
	assert.True(t, due.Equal(accrued))
	assert.True(t, l.SettlePendingTax().IsZero())
}

func TestDeemedDistributionCappedByGain(t *testing.T) {
	l := NewLedger(testRegime(0, 1.0, domain.LotSelectionFIFO))
	l.AddLot(decimal.NewFromInt(10000), decimal.NewFromInt(100), 0)

	// Gain of 1 total, baseline far larger: taxable is the gain.
	accrued := l.AccrueDeemedDistribution(decimal.NewFromFloat(100.01), decimal.NewFromInt(100), decimal.NewFromFloat(0.05), 0)
	expected := decimal.NewFromInt(1).Mul(decimal.NewFromFloat(0.26375))
	assert.True(t, accrued.Sub(expected).Abs().LessThan(decimal.NewFromFloat(0.001)), "accrued %s", accrued)
}

func TestDeemedDistributionProRation(t *testing.T) {
	l := NewLedger(testRegime(0, 1.0, domain.LotSelectionFIFO))
	// Acquired in month 6 of the tax year starting at month 12: held 6 months.
	l.AddLot(decimal.NewFromInt(1200), decimal.NewFromInt(100), 18)

	accrued := l.AccrueDeemedDistribution(decimal.NewFromInt(120), decimal.NewFromInt(90), decimal.NewFromFloat(0.02), 12)
	// startValue = 1200 (acquisition value), baseline = 1200 × 0.02 × 6/12 = 12.
	expected := decimal.NewFromInt(12).Mul(decimal.NewFromFloat(0.26375))
	assert.True(t, accrued.Sub(expected).Abs().LessThan(decimal.NewFromFloat(0.001)), "accrued %s", accrued)
}

func TestDeemedDistributionNegativeBaseline(t *testing.T) {
	l := NewLedger(testRegime(0, 1.0, domain.LotSelectionFIFO))
	l.AddLot(decimal.NewFromInt(1000), decimal.NewFromInt(100), 0)
	accrued := l.AccrueDeemedDistribution(decimal.NewFromInt(110), decimal.NewFromInt(100), decimal.NewFromFloat(-0.0045), 0)
	assert.True(t, accrued.IsZero(), "negative baseline years produce no deemed distribution")
}

func TestTaxInterest(t *testing.T) {
	l := NewLedger(testRegime(1000, 0.7, domain.LotSelectionFIFO))

	// Fully sheltered by the allowance.
	due := l.TaxInterest(decimal.NewFromInt(800))
	assert.True(t, due.IsZero())
	assert.True(t, l.AllowanceUsed().Equal(decimal.NewFromInt(800)))

	// The remainder of the allowance shelters 200 of the next 500.
	due = l.TaxInterest(decimal.NewFromInt(500))
	expected := decimal.NewFromInt(300).Mul(decimal.NewFromFloat(0.26375))
	assert.True(t, due.Sub(expected).Abs().LessThan(decimal.NewFromFloat(0.001)), "due %s", due)
	assert.True(t, l.AllowanceUsed().Equal(l.annualAllowance))

	// A new tax year resets the counter; the loss pot persists.
	l.lossPot = decimal.NewFromInt(42)
	l.ResetAllowance()
	assert.True(t, l.AllowanceUsed().IsZero())
	assert.True(t, l.LossPot().Equal(decimal.NewFromInt(42)))
}

func TestConsolidateLots(t *testing.T) {
	l := NewLedger(testRegime(0, 1.0, domain.LotSelectionFIFO))
	for i := 0; i < 10; i++ {
		l.AddLot(decimal.NewFromInt(100), decimal.NewFromFloat(100.01), i+1)
	}
	l.AddLot(decimal.NewFromInt(100), decimal.NewFromInt(200), 11)
	before := l.TotalShares()

	l.ConsolidateLots(5, decimal.NewFromFloat(0.005))

	assert.Equal(t, 2, l.LotCount(), "near-identical bases merge, the outlier stays")
	assert.True(t, l.TotalShares().Equal(before), "total share count must be preserved")
	assert.Equal(t, 1, l.lots[0].AcquisitionMonth, "earliest acquisition month must be kept")

	// Below the threshold nothing happens.
	l2 := NewLedger(testRegime(0, 1.0, domain.LotSelectionFIFO))
	l2.AddLot(decimal.NewFromInt(100), decimal.NewFromInt(100), 0)
	l2.AddLot(decimal.NewFromInt(100), decimal.NewFromInt(100), 1)
	l2.ConsolidateLots(5, decimal.NewFromFloat(0.005))
	assert.Equal(t, 2, l2.LotCount())
}
