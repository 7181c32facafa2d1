package httpserver

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	appanalysis "github.com/bryanwahyu/solidity-sentinel/internal/application/analysis"
	"github.com/bryanwahyu/solidity-sentinel/internal/domain/ai"
	domain "github.com/bryanwahyu/solidity-sentinel/internal/domain/analysis"
	"github.com/bryanwahyu/solidity-sentinel/internal/domain/contracts"
	"github.com/bryanwahyu/solidity-sentinel/internal/middleware"
)

type Router struct {
	svc           *appanalysis.Service
	log           *zap.Logger
	maxCodeSizeKB int
}

// NewRouter mounts the API. healthCheckers feed /health; nil disables it.
func NewRouter(svc *appanalysis.Service, log *zap.Logger, maxCodeSizeKB int, healthCheckers map[string]middleware.HealthChecker) http.Handler {
	r := &Router{svc: svc, log: log, maxCodeSizeKB: maxCodeSizeKB}
	mux := chi.NewRouter()

	mux.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
	}))
	mux.Use(middleware.Logging(log))

	if healthCheckers != nil {
		mux.Get("/health", middleware.HealthHandler(healthCheckers))
	}
	mux.Get("/metrics", middleware.MetricsHandler())

	mux.Route("/v1", func(rt chi.Router) {
		rt.Post("/analyze/code", r.wrap(r.handleAnalyzeCode))
		rt.Get("/analyze/latest", r.wrap(r.handleLatest))
		rt.Get("/analyze/{id}", r.wrap(r.handleGetRun))

		rt.Get("/contracts", r.wrap(r.handleListContracts))
		rt.Get("/contracts/{id}", r.wrap(r.handleGetContract))
		rt.Get("/contracts/{id}/analyses", r.wrap(r.handleContractRuns))
		rt.Delete("/contracts/{id}", r.wrap(r.handleDeleteContract))

		rt.Get("/reports/{id}", r.wrap(r.handleReport))
		rt.Get("/stats", r.wrap(r.handleStats))
	})

	return mux
}

type handlerFunc func(http.ResponseWriter, *http.Request) error

type apiError struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// wrap maps classified failures onto stable machine-readable categories;
// the caller never sees a raw stack trace.
func (r *Router) wrap(h handlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		middleware.IncrementRequests()
		err := h(w, req)
		if err == nil {
			return
		}
		middleware.IncrementRequestsFailed()

		switch {
		case errors.Is(err, ai.ErrAIService):
			writeJSON(w, http.StatusServiceUnavailable, apiError{"ai_unavailable", err.Error()})
		case errors.Is(err, ai.ErrAnalysis):
			writeJSON(w, http.StatusInternalServerError, apiError{"analysis_failed", err.Error()})
		default:
			r.log.Error("handler error", zap.String("path", req.URL.Path), zap.Error(err))
			writeJSON(w, http.StatusInternalServerError, apiError{"internal_error", err.Error()})
		}
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func badRequest(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusBadRequest, apiError{"validation_error", msg})
}

func notFound(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusNotFound, apiError{"not_found", msg})
}

type analyzeCodeRequest struct {
	ContractName string `json:"contract_name"`
	ContractCode string `json:"contract_code"`
	Network      string `json:"network"`
}

type analysisResponse struct {
	*domain.Run
	Findings []*domain.Finding `json:"findings"`
}

// POST /v1/analyze/code
func (r *Router) handleAnalyzeCode(w http.ResponseWriter, req *http.Request) error {
	var body analyzeCodeRequest
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		badRequest(w, "invalid JSON body")
		return nil
	}
	if err := middleware.ValidateContractName(body.ContractName); err != nil {
		badRequest(w, err.Error())
		return nil
	}
	if err := middleware.ValidateContractCode(body.ContractCode, r.maxCodeSizeKB); err != nil {
		badRequest(w, err.Error())
		return nil
	}
	if err := middleware.ValidateNetwork(body.Network); err != nil {
		badRequest(w, err.Error())
		return nil
	}
	network := body.Network
	if network == "" {
		network = string(contracts.NetworkPolygon)
	}

	middleware.IncrementAnalyses()
	middleware.IncrementAnalysesRunning()
	defer middleware.DecrementAnalysesRunning()

	run, err := r.svc.AnalyzeCode(req.Context(), body.ContractName, body.ContractCode, network)
	if err != nil {
		middleware.IncrementAnalysesFailed()
		return err
	}

	findings, err := r.svc.RunFindings(req.Context(), run.ID)
	if err != nil {
		return err
	}
	middleware.AddFindings(len(findings))
	writeJSON(w, http.StatusOK, analysisResponse{run, findings})
	return nil
}

// GET /v1/analyze/{id}
func (r *Router) handleGetRun(w http.ResponseWriter, req *http.Request) error {
	id := chi.URLParam(req, "id")
	run, err := r.svc.GetRun(req.Context(), domain.RunID(id))
	if err != nil {
		return err
	}
	if run == nil {
		notFound(w, "analysis not found: "+id)
		return nil
	}
	findings, err := r.svc.RunFindings(req.Context(), run.ID)
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, analysisResponse{run, findings})
	return nil
}

// GET /v1/analyze/latest?limit=
func (r *Router) handleLatest(w http.ResponseWriter, req *http.Request) error {
	limit, _ := strconv.Atoi(req.URL.Query().Get("limit"))
	runs, err := r.svc.LatestRuns(req.Context(), limit)
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, runs)
	return nil
}

// GET /v1/contracts?page=&page_size=&network=
func (r *Router) handleListContracts(w http.ResponseWriter, req *http.Request) error {
	page, _ := strconv.Atoi(req.URL.Query().Get("page"))
	size, _ := strconv.Atoi(req.URL.Query().Get("page_size"))
	network := req.URL.Query().Get("network")
	if err := middleware.ValidateNetwork(network); err != nil {
		badRequest(w, err.Error())
		return nil
	}

	list, total, err := r.svc.ListContracts(req.Context(), network, page, size)
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"contracts": list,
		"total":     total,
	})
	return nil
}

// GET /v1/contracts/{id}
func (r *Router) handleGetContract(w http.ResponseWriter, req *http.Request) error {
	id := chi.URLParam(req, "id")
	c, err := r.svc.GetContract(req.Context(), contracts.ContractID(id))
	if err != nil {
		return err
	}
	if c == nil {
		notFound(w, "contract not found: "+id)
		return nil
	}
	writeJSON(w, http.StatusOK, c)
	return nil
}

// GET /v1/contracts/{id}/analyses
func (r *Router) handleContractRuns(w http.ResponseWriter, req *http.Request) error {
	id := chi.URLParam(req, "id")
	limit, _ := strconv.Atoi(req.URL.Query().Get("limit"))
	runs, err := r.svc.ContractRuns(req.Context(), contracts.ContractID(id), limit)
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, runs)
	return nil
}

// DELETE /v1/contracts/{id} — cascades to runs and findings
func (r *Router) handleDeleteContract(w http.ResponseWriter, req *http.Request) error {
	id := chi.URLParam(req, "id")
	c, err := r.svc.GetContract(req.Context(), contracts.ContractID(id))
	if err != nil {
		return err
	}
	if c == nil {
		notFound(w, "contract not found: "+id)
		return nil
	}
	if err := r.svc.DeleteContract(req.Context(), contracts.ContractID(id)); err != nil {
		return err
	}
	w.WriteHeader(http.StatusNoContent)
	return nil
}

// GET /v1/reports/{id} — JSON report for a completed run
func (r *Router) handleReport(w http.ResponseWriter, req *http.Request) error {
	id := chi.URLParam(req, "id")
	run, err := r.svc.GetRun(req.Context(), domain.RunID(id))
	if err != nil {
		return err
	}
	if run == nil {
		notFound(w, "analysis not found: "+id)
		return nil
	}
	if run.Status != domain.StatusCompleted {
		badRequest(w, "analysis is not completed, current status: "+string(run.Status))
		return nil
	}
	findings, err := r.svc.RunFindings(req.Context(), run.ID)
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"analysis": run,
		"findings": findings,
	})
	return nil
}

// GET /v1/stats?days=
func (r *Router) handleStats(w http.ResponseWriter, req *http.Request) error {
	days, _ := strconv.Atoi(req.URL.Query().Get("days"))
	stats, err := r.svc.Stats(req.Context(), days)
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, stats)
	return nil
}
