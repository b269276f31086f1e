// Package report renders risk profiles for export.
package report

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"

	"github.com/aristath/tailrisk/internal/modules/analysis"
)

// monthLayout formats timestamps in export rows.
const monthLayout = "2006-01"

// WriteCSV renders a profile as flat metric,series,value rows: the tail-risk
// grid, GARCH parameters, copula, drawdown summaries, and the risk
// decomposition. Pair-level metrics carry both symbols in the series column.
func WriteCSV(w io.Writer, profile *analysis.RiskProfile) error {
	if profile == nil {
		return errors.New("nil profile")
	}

	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"metric", "series", "value"}); err != nil {
		return err
	}

	rows := [][]string{
		{"run_id", "", profile.RunID},
		{"window_start", "", profile.Window.Start.Format(monthLayout)},
		{"window_end", "", profile.Window.End.Format(monthLayout)},
		{"observations", "", strconv.Itoa(profile.Window.Observations)},
	}

	for _, leg := range []analysis.SeriesReport{profile.Portfolio, profile.Benchmark} {
		rows = append(rows, legRows(leg)...)
	}

	pair := profile.Portfolio.Symbol + "/" + profile.Benchmark.Symbol
	if profile.Copula != nil {
		rows = append(rows,
			[]string{"copula_theta", pair, formatValue(profile.Copula.Theta)},
			[]string{"copula_tau", pair, formatValue(profile.Copula.Tau)},
			[]string{"copula_lower_tail_dependence", pair, formatValue(profile.Copula.LowerTailDependence)},
		)
	} else if profile.CopulaNote != "" {
		rows = append(rows, []string{"copula_note", pair, profile.CopulaNote})
	}

	if d := profile.Decomposition; d != nil {
		rows = append(rows, []string{"portfolio_volatility", pair, formatValue(d.PortfolioVolatility)})
		for _, asset := range d.Assets {
			c := d.Contributions[asset]
			rows = append(rows,
				[]string{"risk_weight", asset, formatValue(c.Weight)},
				[]string{"risk_marginal_beta", asset, formatValue(c.MarginalBeta)},
				[]string{"risk_contribution_pct", asset, formatValue(c.Percent)},
			)
		}
	}

	for _, row := range rows {
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func legRows(leg analysis.SeriesReport) [][]string {
	var rows [][]string

	for _, res := range leg.VarEs {
		confidence := strconv.FormatFloat(res.Confidence, 'g', -1, 64)
		rows = append(rows,
			[]string{fmt.Sprintf("var_%s_%s", res.Method, confidence), leg.Symbol, formatValue(res.VaR)},
			[]string{fmt.Sprintf("es_%s_%s", res.Method, confidence), leg.Symbol, formatValue(res.ES)},
		)
	}

	rows = append(rows,
		[]string{"garch_mu", leg.Symbol, formatValue(leg.Garch.Mu)},
		[]string{"garch_omega", leg.Symbol, formatValue(leg.Garch.Omega)},
		[]string{"garch_alpha", leg.Symbol, formatValue(leg.Garch.Alpha)},
		[]string{"garch_beta", leg.Symbol, formatValue(leg.Garch.Beta)},
		[]string{"garch_persistence", leg.Symbol, formatValue(leg.Garch.Persistence)},
		[]string{"garch_annualized_volatility", leg.Symbol, formatValue(leg.Garch.AnnualizedVolatility)},
	)

	rows = append(rows,
		[]string{"max_drawdown", leg.Symbol, formatValue(leg.Drawdown.MaxDrawdown)},
		[]string{"max_drawdown_month", leg.Symbol, leg.Drawdown.MaxDrawdownTime.Format(monthLayout)},
		[]string{"current_drawdown", leg.Symbol, formatValue(leg.Drawdown.CurrentDrawdown)},
	)
	if gap := leg.Drawdown.RecoveryGap; gap != nil {
		rows = append(rows, []string{"longest_recovery_months", leg.Symbol, strconv.Itoa(gap.Months)})
	}

	return rows
}

func formatValue(v float64) string {
	return strconv.FormatFloat(v, 'f', 6, 64)
}
