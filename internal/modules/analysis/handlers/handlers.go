// Package handlers provides HTTP handlers for risk analysis operations.
package handlers

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/tailrisk/internal/modules/analysis"
	"github.com/aristath/tailrisk/internal/modules/report"
	"github.com/aristath/tailrisk/internal/universe"
	"github.com/aristath/tailrisk/pkg/copula"
	"github.com/aristath/tailrisk/pkg/garch"
	"github.com/aristath/tailrisk/pkg/series"
	"github.com/aristath/tailrisk/pkg/stress"
	"github.com/aristath/tailrisk/pkg/tailrisk"
)

// Handler handles risk analysis HTTP requests.
type Handler struct {
	service          *analysis.Service
	defaultPortfolio string
	defaultBenchmark string
	log              zerolog.Logger
}

// NewHandler creates a new risk analysis handler. The default pair fills in
// profile requests that omit the portfolio or benchmark query parameter.
func NewHandler(service *analysis.Service, defaultPortfolio, defaultBenchmark string, log zerolog.Logger) *Handler {
	return &Handler{
		service:          service,
		defaultPortfolio: defaultPortfolio,
		defaultBenchmark: defaultBenchmark,
		log:              log.With().Str("handler", "risk").Logger(),
	}
}

// HandleGetProfile handles GET /api/v1/risk/profile
func (h *Handler) HandleGetProfile(w http.ResponseWriter, r *http.Request) {
	portfolio, benchmark := h.pairFromQuery(r)

	profile, err := h.service.Run(r.Context(), portfolio, benchmark)
	if err != nil {
		h.log.Error().Err(err).
			Str("portfolio", portfolio).
			Str("benchmark", benchmark).
			Msg("Risk profile run failed")
		h.writeError(w, statusFromErr(err), err)
		return
	}
	h.writeData(w, profile)
}

// HandleGetProfileCSV handles GET /api/v1/risk/profile.csv
func (h *Handler) HandleGetProfileCSV(w http.ResponseWriter, r *http.Request) {
	portfolio, benchmark := h.pairFromQuery(r)

	profile, err := h.service.Run(r.Context(), portfolio, benchmark)
	if err != nil {
		h.log.Error().Err(err).
			Str("portfolio", portfolio).
			Str("benchmark", benchmark).
			Msg("Risk profile run failed")
		h.writeError(w, statusFromErr(err), err)
		return
	}

	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", `attachment; filename="risk_profile.csv"`)
	if err := report.WriteCSV(w, profile); err != nil {
		h.log.Error().Err(err).Msg("Failed to write CSV export")
	}
}

// HandleGetVarEs handles GET /api/v1/risk/var/{symbol}
func (h *Handler) HandleGetVarEs(w http.ResponseWriter, r *http.Request, symbol string) {
	query := r.URL.Query()

	confidence := 0.95
	if raw := query.Get("confidence"); raw != "" {
		parsed, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			h.writeError(w, http.StatusBadRequest, fmt.Errorf("invalid confidence %q", raw))
			return
		}
		confidence = parsed
	}

	method := tailrisk.MethodHistorical
	if raw := query.Get("method"); raw != "" {
		method = tailrisk.Method(raw)
	}

	var seed *uint64
	if raw := query.Get("seed"); raw != "" {
		parsed, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			h.writeError(w, http.StatusBadRequest, fmt.Errorf("invalid seed %q", raw))
			return
		}
		seed = &parsed
	}

	result, err := h.service.VarEs(r.Context(), symbol, confidence, method, seed)
	if err != nil {
		h.log.Error().Err(err).Str("symbol", symbol).Msg("VaR estimate failed")
		h.writeError(w, statusFromErr(err), err)
		return
	}

	h.writeData(w, map[string]interface{}{
		"symbol": symbol,
		"result": result,
	})
}

// HandleGetGarch handles GET /api/v1/risk/garch/{symbol}
func (h *Handler) HandleGetGarch(w http.ResponseWriter, r *http.Request, symbol string) {
	fit, err := h.service.Garch(r.Context(), symbol)
	if err != nil {
		h.log.Error().Err(err).Str("symbol", symbol).Msg("GARCH fit failed")
		h.writeError(w, statusFromErr(err), err)
		return
	}

	h.writeData(w, map[string]interface{}{
		"symbol": symbol,
		"fit":    fit,
	})
}

// HandleGetCopula handles GET /api/v1/risk/copula
func (h *Handler) HandleGetCopula(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	a := query.Get("a")
	b := query.Get("b")
	if a == "" || b == "" {
		h.writeError(w, http.StatusBadRequest, errors.New("query parameters a and b are required"))
		return
	}

	fit, err := h.service.Copula(r.Context(), a, b)
	if err != nil {
		h.log.Error().Err(err).Str("a", a).Str("b", b).Msg("Copula fit failed")
		h.writeError(w, statusFromErr(err), err)
		return
	}

	h.writeData(w, map[string]interface{}{
		"a":   a,
		"b":   b,
		"fit": fit,
	})
}

// HandleGetDrawdown handles GET /api/v1/risk/drawdown/{symbol}
func (h *Handler) HandleGetDrawdown(w http.ResponseWriter, r *http.Request, symbol string) {
	path, summary, err := h.service.Drawdown(r.Context(), symbol)
	if err != nil {
		h.log.Error().Err(err).Str("symbol", symbol).Msg("Drawdown analysis failed")
		h.writeError(w, statusFromErr(err), err)
		return
	}

	h.writeData(w, map[string]interface{}{
		"symbol":  symbol,
		"summary": summary,
		"path":    path,
	})
}

type stressRequest struct {
	Symbol    string            `json:"symbol"`
	Scenarios []stress.Scenario `json:"scenarios"`
	Mode      stress.Mode       `json:"mode"`
	Seed      *uint64           `json:"seed"`
}

// HandlePostStress handles POST /api/v1/risk/stress
func (h *Handler) HandlePostStress(w http.ResponseWriter, r *http.Request) {
	var req stressRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, fmt.Errorf("invalid request body: %v", err))
		return
	}
	if req.Symbol == "" {
		h.writeError(w, http.StatusBadRequest, errors.New("symbol is required"))
		return
	}

	results, err := h.service.Stress(r.Context(), req.Symbol, req.Scenarios, req.Mode, req.Seed)
	if err != nil {
		h.log.Error().Err(err).Str("symbol", req.Symbol).Msg("Stress run failed")
		h.writeError(w, statusFromErr(err), err)
		return
	}

	h.writeData(w, map[string]interface{}{
		"symbol":  req.Symbol,
		"results": results,
	})
}

// pairFromQuery reads the portfolio/benchmark pair, falling back to the
// configured defaults.
func (h *Handler) pairFromQuery(r *http.Request) (string, string) {
	portfolio := r.URL.Query().Get("portfolio")
	if portfolio == "" {
		portfolio = h.defaultPortfolio
	}
	benchmark := r.URL.Query().Get("benchmark")
	if benchmark == "" {
		benchmark = h.defaultBenchmark
	}
	return portfolio, benchmark
}

// statusFromErr maps the analysis error taxonomy onto HTTP statuses. Analytic
// failures on valid requests (thin data, degenerate dependence, a fit that
// does not converge) are 422s; malformed requests are 400s.
func statusFromErr(err error) int {
	switch {
	case errors.Is(err, universe.ErrNotFound), errors.Is(err, sql.ErrNoRows):
		return http.StatusNotFound
	case errors.Is(err, series.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, series.ErrInsufficientData),
		errors.Is(err, garch.ErrConvergence),
		errors.Is(err, copula.ErrDegenerateDependence):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// writeData wraps a payload in the standard response envelope.
func (h *Handler) writeData(w http.ResponseWriter, data interface{}) {
	response := map[string]interface{}{
		"data": data,
		"metadata": map[string]interface{}{
			"timestamp": time.Now().Format(time.RFC3339),
		},
	}
	h.writeJSON(w, http.StatusOK, response)
}

// writeError writes the error string in the response envelope.
func (h *Handler) writeError(w http.ResponseWriter, status int, err error) {
	response := map[string]interface{}{
		"error": err.Error(),
		"metadata": map[string]interface{}{
			"timestamp": time.Now().Format(time.RFC3339),
		},
	}
	h.writeJSON(w, status, response)
}

// writeJSON writes a JSON response
func (h *Handler) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}
