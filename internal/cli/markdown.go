package cli

import (
	"fmt"
	"strings"

	"github.com/aristath/frontier/internal/modules/analysis"
	"github.com/aristath/frontier/internal/modules/marketdata"
)

const dateLayout = "2006-01-02"

func percent(v float64) string {
	return fmt.Sprintf("%.2f%%", v*100)
}

func ratio(v float64) string {
	return fmt.Sprintf("%.2f", v)
}

// table writes a markdown table. The first column is left aligned and the
// others right aligned.
func table(b *strings.Builder, header []string, rows [][]string) {
	b.WriteString("| " + strings.Join(header, " | ") + " |\n")
	align := make([]string, len(header))
	for i := range align {
		if i == 0 {
			align[i] = ":---"
		} else {
			align[i] = "---:"
		}
	}
	b.WriteString("| " + strings.Join(align, " | ") + " |\n")
	for _, row := range rows {
		b.WriteString("| " + strings.Join(row, " | ") + " |\n")
	}
	b.WriteString("\n")
}

// RefreshMarkdown lists the stored series after a refresh.
func RefreshMarkdown(status []marketdata.RefreshInfo) string {
	var b strings.Builder
	b.WriteString("# Market data\n\n")
	if len(status) == 0 {
		b.WriteString("No series stored yet.\n")
		return b.String()
	}
	rows := make([][]string, len(status))
	for i, s := range status {
		rows[i] = []string{
			s.Series,
			s.Source,
			fmt.Sprintf("%d", s.Rows),
			fmt.Sprintf("%d", s.Columns),
			s.RefreshedAt.UTC().Format("2006-01-02 15:04"),
		}
	}
	table(&b, []string{"Series", "Source", "Rows", "Columns", "Refreshed (UTC)"}, rows)
	return b.String()
}

// AssumptionsMarkdown renders the asset assumptions and correlations.
func AssumptionsMarkdown(obj *analysis.Objective) string {
	var b strings.Builder
	b.WriteString("# Asset assumptions\n\n")

	if est := obj.Estimates; est != nil {
		fmt.Fprintf(&b, "%d observations from %s to %s, covariance `%s`",
			est.Observations, est.Start.Format(dateLayout), est.End.Format(dateLayout), est.Method)
		if est.Shrinkage > 0 {
			fmt.Fprintf(&b, " (shrinkage %.3f)", est.Shrinkage)
		}
		b.WriteString(".\n\n")
	}
	if obj.Mandate != "" {
		fmt.Fprintf(&b, "Mandate: **%s**\n\n", obj.Mandate)
	}

	rows := make([][]string, len(obj.Assumptions))
	for i, a := range obj.Assumptions {
		rows[i] = []string{a.Asset, percent(a.ExpectedReturn), percent(a.StdDev)}
	}
	table(&b, []string{"Asset", "Expected return", "Std dev"}, rows)

	if corr := obj.Correlation; corr != nil && len(corr.Columns) > 0 {
		b.WriteString("## Correlation\n\n")
		rows := make([][]string, len(corr.Matrix))
		for i, line := range corr.Matrix {
			row := []string{corr.Columns[i]}
			for _, v := range line {
				row = append(row, ratio(v))
			}
			rows[i] = row
		}
		table(&b, append([]string{""}, corr.Columns...), rows)
	}
	return b.String()
}

// ReportMarkdown renders one optimisation run.
func ReportMarkdown(r *analysis.Report) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", r.Label)
	kind := "Mean-variance"
	if r.Kind == analysis.KindBlackLitterman {
		kind = "Black-Litterman"
	}
	fmt.Fprintf(&b, "%s run `%s`, %s.\n\n", kind, r.ID, r.CreatedAt.UTC().Format("2006-01-02 15:04"))

	b.WriteString("## Weights\n\n")
	amounts := map[string]string{}
	if r.Allocation != nil {
		for _, p := range r.Allocation.Positions {
			amounts[p.Asset] = p.Display
		}
	}
	rows := make([][]string, len(r.Weights))
	for i, w := range r.Weights {
		rows[i] = []string{w.Asset, percent(w.Weight), amounts[w.Asset]}
	}
	table(&b, []string{"Asset", "Weight", "Allocation"}, rows)
	if r.Allocation != nil {
		fmt.Fprintf(&b, "Total: **%s**\n\n", r.Allocation.Display)
	}

	b.WriteString("## Expected performance\n\n")
	table(&b, []string{"Measure", "Value"}, [][]string{
		{"Expected annual return", percent(r.Performance.ExpectedReturn)},
		{"Annual volatility", percent(r.Performance.Volatility)},
		{"Sharpe ratio", ratio(r.Performance.SharpeRatio)},
	})

	if len(r.PriorReturns) > 0 {
		b.WriteString("## Returns\n\n")
		posterior := make(map[string]float64, len(r.ExpectedReturns))
		for _, a := range r.ExpectedReturns {
			posterior[a.Asset] = a.ExpectedReturn
		}
		rows := make([][]string, len(r.PriorReturns))
		for i, a := range r.PriorReturns {
			rows[i] = []string{a.Asset, percent(a.ExpectedReturn), percent(posterior[a.Asset])}
		}
		table(&b, []string{"Asset", "Prior", "Posterior"}, rows)
	}

	if m := r.Metrics; m != nil {
		fmt.Fprintf(&b, "## Realised against %s\n\n", r.BenchmarkLabel)
		table(&b, []string{"Measure", "Value"}, [][]string{
			{"Portfolio return", percent(m.PortfolioReturn)},
			{"Benchmark return", percent(m.BenchmarkReturn)},
			{"Active risk", percent(m.ActiveRisk)},
			{"Downside risk", percent(m.DownsideRisk)},
			{"Sortino ratio", ratio(m.SortinoRatio)},
			{"Beta", ratio(m.Beta)},
			{"Alpha", percent(m.Alpha)},
			{"Information ratio", ratio(m.InformationRatio)},
			{"Max drawdown", percent(m.MaxDrawdown)},
			{"VaR 95%", percent(m.VaR95)},
			{"CVaR 95%", percent(m.CVaR95)},
		})
		if len(m.Undefined) > 0 {
			fmt.Fprintf(&b, "Undefined (zero denominator): %s\n\n", strings.Join(m.Undefined, ", "))
		}
	}

	if len(r.Warnings) > 0 {
		b.WriteString("## Warnings\n\n")
		for _, w := range r.Warnings {
			fmt.Fprintf(&b, "- %s\n", w)
		}
		b.WriteString("\n")
	}
	return b.String()
}
