// Package api implements the admin REST API for the load-balancing core.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/magickw/linkDAO-sub004/internal/balancer"
	"github.com/magickw/linkDAO-sub004/internal/types"
	"github.com/magickw/linkDAO-sub004/internal/version"
)

// Handler exposes the balancer's operations over HTTP. Business services
// normally call the balancer in-process; this surface exists for operators
// and for out-of-process callers.
type Handler struct {
	balancer *balancer.Balancer
	logger   types.Logger
	config   *types.Config
}

// New creates an API handler around a running balancer.
func New(b *balancer.Balancer, logger types.Logger, cfg *types.Config) *Handler {
	return &Handler{
		balancer: b,
		logger:   logger,
		config:   cfg,
	}
}

// Router returns the HTTP handler for the API.
func (h *Handler) Router() http.Handler {
	r := mux.NewRouter()

	r.HandleFunc("/health", h.handleHealth).Methods("GET")
	r.Handle(h.metricsPath(), promhttp.Handler()).Methods("GET")

	apiRouter := r.PathPrefix("/api/v1").Subrouter()
	apiRouter.HandleFunc("/servers", h.handleListServers).Methods("GET", "OPTIONS")
	apiRouter.HandleFunc("/servers", h.handleAddServer).Methods("POST", "OPTIONS")
	apiRouter.HandleFunc("/servers/{id}", h.handleRemoveServer).Methods("DELETE", "OPTIONS")
	apiRouter.HandleFunc("/select", h.handleSelect).Methods("POST", "OPTIONS")
	apiRouter.HandleFunc("/report", h.handleReport).Methods("POST", "OPTIONS")
	apiRouter.HandleFunc("/stats", h.handleStats).Methods("GET", "OPTIONS")
	apiRouter.HandleFunc("/version", h.handleVersion).Methods("GET", "OPTIONS")
	apiRouter.HandleFunc("/breakers", h.handleBreakers).Methods("GET", "OPTIONS")
	apiRouter.HandleFunc("/strategy", h.handleGetStrategy).Methods("GET", "OPTIONS")
	apiRouter.HandleFunc("/strategy", h.handleSetStrategy).Methods("PUT", "OPTIONS")
	apiRouter.HandleFunc("/policy", h.handleGetPolicy).Methods("GET", "OPTIONS")
	apiRouter.HandleFunc("/policy", h.handleSetPolicy).Methods("PUT", "OPTIONS")
	apiRouter.HandleFunc("/events", h.handleEvents).Methods("GET")

	apiRouter.Use(func(next http.Handler) http.Handler {
		return corsMiddleware(jsonMiddleware(loggingMiddleware(next, h.logger)))
	})
	if h.config.API.RateLimit.Enabled {
		apiRouter.Use(func(next http.Handler) http.Handler {
			return rateLimitMiddleware(next, h.config.API.RateLimit.RPS, h.config.API.RateLimit.Burst)
		})
	}

	return r
}

func (h *Handler) metricsPath() string {
	if h.config.Metrics.Path != "" {
		return h.config.Metrics.Path
	}
	return "/metrics"
}

func (h *Handler) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func (h *Handler) handleListServers(w http.ResponseWriter, r *http.Request) {
	filter := types.ListFilter{
		Status: types.ServerStatus(r.URL.Query().Get("status")),
		Tag:    r.URL.Query().Get("tag"),
	}
	writeJSON(w, http.StatusOK, h.balancer.ListServers(filter))
}

func (h *Handler) handleAddServer(w http.ResponseWriter, r *http.Request) {
	var req addServerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	spec, err := h.balancer.AddServer(types.ServerSpec{
		ID:       req.ID,
		Host:     req.Host,
		Port:     req.Port,
		Weight:   req.Weight,
		MaxConns: req.MaxConns,
		Tags:     req.Tags,
	})
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusCreated, spec)
}

func (h *Handler) handleRemoveServer(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := h.balancer.RemoveServer(id); err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"server_id": id, "status": "draining"})
}

func (h *Handler) handleSelect(w http.ResponseWriter, r *http.Request) {
	var req selectRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
	}

	target, err := h.balancer.SelectServer(req.Strategy, req.AffinityKey)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, target)
}

func (h *Handler) handleReport(w http.ResponseWriter, r *http.Request) {
	var req reportRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	latency := time.Duration(req.LatencyMs * float64(time.Millisecond))
	if err := h.balancer.ReportCompletion(req.ServerID, latency, req.Success); err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleStats(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.balancer.GetMetrics())
}

func (h *Handler) handleVersion(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, version.GetInfo())
}

func (h *Handler) handleBreakers(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.balancer.BreakerStates())
}

func (h *Handler) handleGetStrategy(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"strategy": h.balancer.Strategy()})
}

func (h *Handler) handleSetStrategy(w http.ResponseWriter, r *http.Request) {
	var req strategyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := h.balancer.SetStrategy(req.Strategy); err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"strategy": req.Strategy})
}

func (h *Handler) handleGetPolicy(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.balancer.AutoScalingPolicy())
}

func (h *Handler) handleSetPolicy(w http.ResponseWriter, r *http.Request) {
	var policy types.AutoScalingPolicy
	if err := json.NewDecoder(r.Body).Decode(&policy); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := h.balancer.SetAutoScalingPolicy(policy); err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, policy)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, errorResponse{
		Error:     err.Error(),
		Retryable: types.IsRetryable(err),
	})
}

// statusFor maps balancer errors onto HTTP status codes. Transient
// unavailability is 503 so callers back off; configuration errors are 4xx.
func statusFor(err error) int {
	switch {
	case errors.Is(err, types.ErrNoServerAvailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, types.ErrServerNotFound):
		return http.StatusNotFound
	case errors.Is(err, types.ErrServerExists):
		return http.StatusConflict
	case errors.Is(err, types.ErrUnknownStrategy),
		errors.Is(err, types.ErrInvalidSpec),
		errors.Is(err, types.ErrInvalidWeight),
		errors.Is(err, types.ErrInvalidPolicy),
		errors.Is(err, types.ErrServerDraining):
		return http.StatusBadRequest
	default:
		var ve types.ValidationError
		if errors.As(err, &ve) {
			return http.StatusBadRequest
		}
		return http.StatusInternalServerError
	}
}
