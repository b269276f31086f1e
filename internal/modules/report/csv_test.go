package report

import (
	"bytes"
	"encoding/csv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/tailrisk/internal/modules/analysis"
	"github.com/aristath/tailrisk/pkg/copula"
	"github.com/aristath/tailrisk/pkg/drawdown"
	"github.com/aristath/tailrisk/pkg/garch"
	"github.com/aristath/tailrisk/pkg/riskdecomp"
	"github.com/aristath/tailrisk/pkg/tailrisk"
)

func sampleProfile() *analysis.RiskProfile {
	month := func(y int, m time.Month) time.Time {
		return time.Date(y, m, 1, 0, 0, 0, 0, time.UTC)
	}

	portfolio := analysis.SeriesReport{
		Symbol: "FUNDX",
		VarEs: []tailrisk.Result{
			{Confidence: 0.95, Method: tailrisk.MethodHistorical, VaR: -8.25, ES: -11.5},
			{Confidence: 0.99, Method: tailrisk.MethodMonteCarlo, VaR: -13.75, ES: -16.0},
		},
		Garch: analysis.GarchReport{
			Fit:                  garch.Fit{Mu: 0.4, Omega: 0.9, Alpha: 0.08, Beta: 0.84, Persistence: 0.92},
			AnnualizedVolatility: 15.2,
		},
		Drawdown: analysis.DrawdownReport{
			MaxDrawdown:     -32.5,
			MaxDrawdownTime: month(2017, time.September),
			CurrentDrawdown: -4.1,
			RecoveryGap: &drawdown.RecoveryGap{
				Months: 14,
				Start:  month(2017, time.March),
				End:    month(2018, time.May),
			},
		},
	}

	benchmark := analysis.SeriesReport{
		Symbol: "MARKET",
		VarEs: []tailrisk.Result{
			{Confidence: 0.95, Method: tailrisk.MethodHistorical, VaR: -6.0, ES: -8.5},
		},
		Garch: analysis.GarchReport{
			Fit:                  garch.Fit{Mu: 0.3, Omega: 0.5, Alpha: 0.05, Beta: 0.9, Persistence: 0.95},
			AnnualizedVolatility: 11.8,
		},
		Drawdown: analysis.DrawdownReport{
			MaxDrawdown:     -18.0,
			MaxDrawdownTime: month(2018, time.December),
			CurrentDrawdown: -2.5,
		},
	}

	return &analysis.RiskProfile{
		RunID:     "2f0c6a7e-b9a8-44f5-9d5c-1f6d82c9a30f",
		Window:    analysis.Window{Start: month(2015, time.February), End: month(2019, time.December), Observations: 59},
		Portfolio: portfolio,
		Benchmark: benchmark,
		Copula:    &copula.Fit{Theta: 1.6, Tau: 0.444444, LowerTailDependence: 0.648420},
		Decomposition: &riskdecomp.Decomposition{
			Assets: []string{"FUNDX", "MARKET"},
			Contributions: map[string]riskdecomp.Contribution{
				"FUNDX":  {Weight: 0.6, MarginalBeta: 1.2, Total: 9.0, Percent: 72.0},
				"MARKET": {Weight: 0.4, MarginalBeta: 0.7, Total: 3.5, Percent: 28.0},
			},
			PortfolioVariance:   12.25,
			PortfolioVolatility: 3.5,
		},
		GeneratedAt: time.Now().UTC(),
	}
}

func renderRows(t *testing.T, profile *analysis.RiskProfile) [][]string {
	t.Helper()

	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, profile))

	rows, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	return rows
}

func TestWriteCSV(t *testing.T) {
	profile := sampleProfile()
	rows := renderRows(t, profile)

	require.Equal(t, []string{"metric", "series", "value"}, rows[0])
	require.Equal(t, []string{"run_id", "", profile.RunID}, rows[1])
	assert.Equal(t, []string{"window_start", "", "2015-02"}, rows[2])
	assert.Equal(t, []string{"window_end", "", "2019-12"}, rows[3])
	assert.Equal(t, []string{"observations", "", "59"}, rows[4])
	assert.Len(t, rows, 40)

	got := make(map[string]string, len(rows))
	for _, r := range rows[1:] {
		got[r[0]+"|"+r[1]] = r[2]
	}

	assert.Equal(t, "-8.250000", got["var_historical_0.95|FUNDX"])
	assert.Equal(t, "-16.000000", got["es_monte_carlo_0.99|FUNDX"])
	assert.Equal(t, "-6.000000", got["var_historical_0.95|MARKET"])
	assert.Equal(t, "0.080000", got["garch_alpha|FUNDX"])
	assert.Equal(t, "0.920000", got["garch_persistence|FUNDX"])
	assert.Equal(t, "11.800000", got["garch_annualized_volatility|MARKET"])

	assert.Equal(t, "-32.500000", got["max_drawdown|FUNDX"])
	assert.Equal(t, "2017-09", got["max_drawdown_month|FUNDX"])
	assert.Equal(t, "14", got["longest_recovery_months|FUNDX"])
	_, hasGap := got["longest_recovery_months|MARKET"]
	assert.False(t, hasGap, "benchmark never regained a high, so no gap is defined")

	assert.Equal(t, "1.600000", got["copula_theta|FUNDX/MARKET"])
	assert.Equal(t, "0.444444", got["copula_tau|FUNDX/MARKET"])
	assert.Equal(t, "0.648420", got["copula_lower_tail_dependence|FUNDX/MARKET"])

	assert.Equal(t, "3.500000", got["portfolio_volatility|FUNDX/MARKET"])
	assert.Equal(t, "0.600000", got["risk_weight|FUNDX"])
	assert.Equal(t, "0.700000", got["risk_marginal_beta|MARKET"])
	assert.Equal(t, "72.000000", got["risk_contribution_pct|FUNDX"])
	assert.Equal(t, "28.000000", got["risk_contribution_pct|MARKET"])
}

func TestWriteCSVCopulaNote(t *testing.T) {
	profile := sampleProfile()
	profile.Copula = nil
	profile.CopulaNote = "copula not applicable: dependence outside clayton domain"

	rows := renderRows(t, profile)

	got := make(map[string]string, len(rows))
	for _, r := range rows[1:] {
		got[r[0]+"|"+r[1]] = r[2]
	}

	assert.Equal(t, profile.CopulaNote, got["copula_note|FUNDX/MARKET"])
	_, hasTheta := got["copula_theta|FUNDX/MARKET"]
	assert.False(t, hasTheta)
}

func TestWriteCSVNilProfile(t *testing.T) {
	var buf bytes.Buffer
	err := WriteCSV(&buf, nil)
	require.Error(t, err)
	assert.Zero(t, buf.Len())
}
