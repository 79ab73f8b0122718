package output

import (
	"bytes"
	"fmt"

	"github.com/olekukonko/tablewriter"
	"github.com/shopspring/decimal"

	"github.com/dpgo/drawdown-planner/internal/domain"
	pdecimal "github.com/dpgo/drawdown-planner/pkg/decimal"
)

// ConsoleFormatter renders a report as plain-text tables.
type ConsoleFormatter struct{}

func (ConsoleFormatter) Name() string { return "table" }

func (f ConsoleFormatter) Format(report *Report) ([]byte, error) {
	var buf bytes.Buffer

	if report.Run != nil {
		f.writeRun(&buf, report.Run)
	}
	if report.MonteCarlo != nil {
		f.writeMonteCarlo(&buf, report.MonteCarlo)
	}
	if report.NoCandidate {
		buf.WriteString("Optimizer: no qualifying candidate\n")
	} else if report.Candidate != nil {
		f.writeCandidate(&buf, report.Candidate)
	}
	return buf.Bytes(), nil
}

func eur(d decimal.Decimal) string {
	return pdecimal.NewMoneyFromDecimal(d).Round().Format()
}

func eurf(v float64) string {
	return pdecimal.NewMoney(v).Round().Format()
}

// writeRun prints yearly rows of a single simulation run; monthly granularity
// stays in the JSON export.
func (f ConsoleFormatter) writeRun(buf *bytes.Buffer, run *domain.SimulationRun) {
	fmt.Fprintf(buf, "Simulation (seed %d, %d months)\n", run.Seed, len(run.Snapshots))
	if run.RetirementStartWealth.IsPositive() {
		fmt.Fprintf(buf, "Wealth at retirement start: %s\n", eur(run.RetirementStartWealth))
	}

	table := tablewriter.NewWriter(buf)
	table.Header("Year", "Phase", "Cash", "Invested", "Wealth", "Withdrawn", "Shortfall", "Tax")
	for m := 11; m < len(run.Snapshots); m += 12 {
		var withdrawn, shortfall, tax decimal.Decimal
		for _, s := range run.Snapshots[m-11 : m+1] {
			withdrawn = withdrawn.Add(s.WithdrawalPaid)
			shortfall = shortfall.Add(s.WithdrawalShortfall)
			tax = tax.Add(s.TaxPaid())
		}
		s := run.Snapshots[m]
		table.Append(
			fmt.Sprintf("%d", m/12+1),
			string(s.Phase),
			eur(s.Cash),
			eur(s.Invested),
			eur(s.TotalWealth),
			eur(withdrawn),
			eur(shortfall),
			eur(tax),
		)
	}
	table.Render()
	buf.WriteByte('\n')
}

func (f ConsoleFormatter) writeMonteCarlo(buf *bytes.Buffer, res *domain.MonteCarloResult) {
	fmt.Fprintf(buf, "Monte Carlo (%d paths, %d months)\n", res.Iterations, res.Months)
	fmt.Fprintf(buf, "Success rate: %.1f%%  Ruin probability: %.1f%%  Capital preservation triggered: %.1f%%\n",
		res.SuccessRate, res.RuinProbability, res.PreservationRate)
	fmt.Fprintf(buf, "Median real end wealth: %s  Mean end wealth: %s\n",
		eurf(res.MedianEndWealthReal), eurf(res.MeanEndWealth))
	if res.EmergencyFillRate > 0 {
		fmt.Fprintf(buf, "Emergency fund: filled in %.1f%% of paths, mean %.0f months\n",
			res.EmergencyFillRate, res.EmergencyFillMonths)
	}
	fmt.Fprintf(buf, "SoRR: risk score %.3f, early-return/end-wealth correlation %.3f\n",
		res.SoRR.RiskScore, res.SoRR.Correlation)

	table := tablewriter.NewWriter(buf)
	table.Header("Percentile", "End wealth")
	rows := []struct {
		label string
		value float64
	}{
		{"p5", res.EndWealth.P5},
		{"p10", res.EndWealth.P10},
		{"p25", res.EndWealth.P25},
		{"p50", res.EndWealth.P50},
		{"p75", res.EndWealth.P75},
		{"p90", res.EndWealth.P90},
		{"p95", res.EndWealth.P95},
	}
	for _, r := range rows {
		table.Append(r.label, eurf(r.value))
	}
	table.Render()
	buf.WriteByte('\n')
}

func (f ConsoleFormatter) writeCandidate(buf *bytes.Buffer, cand *domain.Candidate) {
	fmt.Fprintf(buf, "Best candidate (#%d, score %.3f)\n", cand.Index, cand.Score)
	table := tablewriter.NewWriter(buf)
	table.Header("Parameter", "Value")
	budget := cand.Params.InitialCash.Add(cand.Params.InitialInvested)
	table.Append("Total budget", eur(budget))
	table.Append("Initial cash", eur(cand.Params.InitialCash))
	table.Append("Initial invested", eur(cand.Params.InitialInvested))
	table.Append("Monthly withdrawal", eur(cand.Params.MonthlyWithdrawal))
	if cand.Summary != nil {
		table.Append("Success rate", fmt.Sprintf("%.1f%%", cand.Summary.SuccessRate))
		table.Append("Ruin probability", fmt.Sprintf("%.1f%%", cand.Summary.RuinProbability))
		table.Append("Median real end wealth", eurf(cand.Summary.MedianEndWealthReal))
	}
	table.Render()
	buf.WriteByte('\n')
}
