package app

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/justMega/barcode-pdf-pc/internal/domain"
	"github.com/justMega/barcode-pdf-pc/internal/observability"
)

// ScanResponse is the JSON body of a scan request
type ScanResponse struct {
	Summary domain.ScanSummary `json:"summary"`
	Error   string             `json:"error,omitempty"`
}

// NewRouter exposes the app over HTTP: trigger a scan, read the last result,
// browse history, health and Prometheus metrics.
func NewRouter(a *App, gatherer prometheus.Gatherer, logger *observability.Logger) http.Handler {
	if logger == nil {
		logger = observability.Nop()
	}
	h := &handler{app: a, logger: logger.WithOperation("http")}

	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"status":   "healthy",
			"service":  "barcode-filer",
			"scanning": a.Running(),
		})
	})

	if gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/v1", func(r chi.Router) {
		r.Post("/scan", h.runScan)
		r.Get("/scan/last", h.lastScan)
		r.Get("/history", h.history)
		r.Get("/runs", h.runs)
	})

	return r
}

type handler struct {
	app    *App
	logger *observability.Logger
}

// runScan handles POST /v1/scan. The scan runs within the request and is
// cancelled if the client goes away.
func (h *handler) runScan(w http.ResponseWriter, r *http.Request) {
	h.logger.Info().Str("request_id", chimiddleware.GetReqID(r.Context())).Msg("scan requested")

	summary, err := h.app.RunScan(r.Context(), nil)
	switch {
	case errors.Is(err, domain.ErrScanInProgress):
		writeError(w, http.StatusConflict, "scan already in progress", "")
	case domain.TypeOf(err) == domain.ErrorTypeConfig:
		writeError(w, http.StatusBadRequest, "scan folders are not configured", err.Error())
	case err != nil:
		h.logger.Error().Err(err).Msg("scan failed")
		writeJSON(w, http.StatusInternalServerError, ScanResponse{Summary: summary, Error: err.Error()})
	default:
		writeJSON(w, http.StatusOK, ScanResponse{Summary: summary})
	}
}

// lastScan handles GET /v1/scan/last
func (h *handler) lastScan(w http.ResponseWriter, r *http.Request) {
	last, ok := h.app.Last()
	if !ok {
		writeError(w, http.StatusNotFound, "no scan has run yet", "")
		return
	}
	resp := ScanResponse{Summary: last.Summary}
	if last.Err != nil {
		resp.Error = last.Err.Error()
	}
	writeJSON(w, http.StatusOK, resp)
}

// history handles GET /v1/history?limit=N
func (h *handler) history(w http.ResponseWriter, r *http.Request) {
	if !h.app.HasHistory() {
		writeError(w, http.StatusServiceUnavailable, "scan history is disabled", "")
		return
	}
	limit, err := parseLimit(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid limit", err.Error())
		return
	}
	entries, err := h.app.Recent(r.Context(), limit)
	if err != nil {
		h.logger.Error().Err(err).Msg("history query failed")
		writeError(w, http.StatusInternalServerError, "history query failed", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"entries": entries})
}

// runs handles GET /v1/runs?limit=N
func (h *handler) runs(w http.ResponseWriter, r *http.Request) {
	if !h.app.HasHistory() {
		writeError(w, http.StatusServiceUnavailable, "scan history is disabled", "")
		return
	}
	limit, err := parseLimit(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid limit", err.Error())
		return
	}
	runs, err := h.app.Runs(r.Context(), limit)
	if err != nil {
		h.logger.Error().Err(err).Msg("runs query failed")
		writeError(w, http.StatusInternalServerError, "runs query failed", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"runs": runs})
}

func parseLimit(r *http.Request) (int, error) {
	v := r.URL.Query().Get("limit")
	if v == "" {
		return 20, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 1 || n > 1000 {
		return 0, errors.New("limit must be between 1 and 1000")
	}
	return n, nil
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message, detail string) {
	resp := map[string]string{
		"error":   message,
		"message": message,
	}
	if detail != "" {
		resp["detail"] = detail
	}
	writeJSON(w, status, resp)
}
