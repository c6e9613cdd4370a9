// Package http provides the HTTP API for the leaderboard service.
package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/artpar/tokenrank/adapters/metrics"
	"github.com/artpar/tokenrank/app"
	"github.com/artpar/tokenrank/domain/principal"
	"github.com/artpar/tokenrank/ports"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// DefaultMaxBodyBytes is the ingest body limit when none is configured.
const DefaultMaxBodyBytes = 10 << 20 // 10 MB

// Handler wraps the application services for HTTP handling.
type Handler struct {
	ingest  *app.IngestService
	rank    *app.RankService
	device  *app.DeviceService
	logger  zerolog.Logger
	metrics *metrics.Collector
	maxBody int64
}

// HandlerConfig holds optional handler settings.
type HandlerConfig struct {
	Metrics      *metrics.Collector
	MaxBodyBytes int64
}

// NewHandler creates a new HTTP handler.
func NewHandler(ingest *app.IngestService, rank *app.RankService, device *app.DeviceService, logger zerolog.Logger, cfg HandlerConfig) *Handler {
	maxBody := cfg.MaxBodyBytes
	if maxBody <= 0 {
		maxBody = DefaultMaxBodyBytes
	}
	return &Handler{
		ingest:  ingest,
		rank:    rank,
		device:  device,
		logger:  logger,
		metrics: cfg.Metrics,
		maxBody: maxBody,
	}
}

// errorBody is the uniform error response shape.
type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorBody{Error: errorDetail{Code: code, Message: message}})
}

// HandleIngest accepts an OTLP-JSON metrics payload.
func (h *Handler) HandleIngest(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	body, err := io.ReadAll(io.LimitReader(r.Body, h.maxBody))
	if err != nil {
		h.countIngest("read_error")
		writeError(w, http.StatusBadRequest, "bad_request", "failed to read request body")
		return
	}

	receipt, err := h.ingest.Submit(r.Context(), body)
	if err != nil {
		h.writeIngestError(w, err)
		return
	}

	h.countIngest("ok")
	if h.metrics != nil {
		h.metrics.IngestDuration.Observe(time.Since(start).Seconds())
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"tokens":  receipt.Tokens,
	})
}

func (h *Handler) writeIngestError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, app.ErrMalformedEnvelope):
		h.countIngest("malformed")
		writeError(w, http.StatusBadRequest, "malformed_payload", "body is not a valid OTLP metrics payload")
	case errors.Is(err, app.ErrMissingAttributes):
		h.countIngest("missing_attributes")
		h.countAuthFailure("missing_attributes")
		writeError(w, http.StatusUnauthorized, "missing_attributes", "twitter_handle and cr_api_key resource attributes are required")
	case errors.Is(err, app.ErrInvalidCredentials):
		h.countIngest("unauthorized")
		h.countAuthFailure("invalid_api_key")
		writeError(w, http.StatusForbidden, "invalid_credentials", "the handle and API key do not match")
	default:
		h.countIngest("error")
		h.logger.Error().Err(err).Msg("ingest failed")
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to record usage")
	}
}

// HandleLeaderboard serves the ranked leaderboard with the stats block.
func (h *Handler) HandleLeaderboard(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			limit = n
		}
	}

	lb, err := h.rank.Leaderboard(r.Context(), limit)
	if err != nil {
		h.logger.Error().Err(err).Msg("leaderboard read failed")
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to load leaderboard")
		return
	}
	if h.metrics != nil {
		h.metrics.LeaderboardRequests.Inc()
	}

	rows := make([]map[string]any, 0, len(lb.Entries))
	for _, e := range lb.Entries {
		rows = append(rows, profileJSON(e.Rank, e.Profile))
	}

	graph := make([]map[string]any, 0, len(lb.Stats.Hourly))
	for _, b := range lb.Stats.Hourly {
		graph = append(graph, map[string]any{
			"hour":         b.Hour.Format(time.RFC3339),
			"tokens":       b.Tokens,
			"active_users": b.ActiveUsers,
		})
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"users": rows,
		"stats": map[string]any{
			"peak_throughput":  lb.Stats.PeakThroughput,
			"last_24h_tokens":  lb.Stats.Last24hTokens,
			"active_users_24h": lb.Stats.ActiveUsers,
			"graph_data":       graph,
		},
		"generated_at": lb.GeneratedAt.Format(time.RFC3339),
	})
}

// HandleUser serves one principal's profile and rank.
func (h *Handler) HandleUser(w http.ResponseWriter, r *http.Request) {
	handle := chi.URLParam(r, "handle")

	rp, err := h.rank.Profile(r.Context(), handle)
	if errors.Is(err, ports.ErrNotFound) {
		writeError(w, http.StatusNotFound, "not_found", "no such user")
		return
	}
	if err != nil {
		h.logger.Error().Err(err).Str("handle", handle).Msg("profile read failed")
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to load user")
		return
	}

	writeJSON(w, http.StatusOK, profileJSON(rp.Rank, rp.Profile))
}

func profileJSON(rank int, p principal.Profile) map[string]any {
	return map[string]any{
		"rank":               rank,
		"twitter_handle":     p.Handle,
		"avatar_url":         p.AvatarURL,
		"total_tokens":       p.TotalTokens(),
		"input_tokens":       p.InputTokens,
		"output_tokens":      p.OutputTokens,
		"cache_read_tokens":  p.CacheReadTokens,
		"cache_write_tokens": p.CacheWriteTokens,
		"savings_score":      p.SavingsScore(),
		"last_active":        p.LastActive.Format(time.RFC3339),
	}
}

// HandleDeviceStart opens a new device-flow login.
func (h *Handler) HandleDeviceStart(w http.ResponseWriter, r *http.Request) {
	start, err := h.device.Start(r.Context())
	if err != nil {
		h.logger.Error().Err(err).Msg("device flow start failed")
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to start device flow")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"device_code":      start.Code,
		"verification_uri": verificationURI(r, start.Code),
		"expires_in":       start.ExpiresIn,
		"interval":         start.Interval,
	})
}

// verificationURI points the user at the approval page for a device code.
// The page itself is served by the web frontend, not this API.
func verificationURI(r *http.Request, code string) string {
	scheme := "http"
	if r.TLS != nil || r.Header.Get("X-Forwarded-Proto") == "https" {
		scheme = "https"
	}
	return scheme + "://" + r.Host + "/device?code=" + code
}

// HandleDevicePoll reports the state of a pending device code.
func (h *Handler) HandleDevicePoll(w http.ResponseWriter, r *http.Request) {
	code := strings.ToUpper(strings.TrimSpace(r.URL.Query().Get("code")))
	if code == "" {
		writeError(w, http.StatusBadRequest, "missing_code", "code query parameter is required")
		return
	}

	grant, err := h.device.Poll(r.Context(), code)
	switch {
	case errors.Is(err, app.ErrAuthorizationPending):
		writeJSON(w, http.StatusOK, map[string]any{"status": "pending"})
	case errors.Is(err, app.ErrDeviceCodeExpired):
		writeError(w, http.StatusNotFound, "expired_code", "the device code has expired")
	case errors.Is(err, ports.ErrNotFound):
		writeError(w, http.StatusNotFound, "unknown_code", "no such device code")
	case err != nil:
		h.logger.Error().Err(err).Msg("device poll failed")
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to check device code")
	default:
		writeJSON(w, http.StatusOK, map[string]any{
			"status":         "complete",
			"twitter_handle": grant.Handle,
			"api_key":        grant.APIKey,
		})
	}
}

type deviceVerifyRequest struct {
	Code   string `json:"code"`
	Handle string `json:"twitter_handle"`
}

// HandleDeviceVerify is the browser side of the device flow: it binds a
// handle to a pending code.
func (h *Handler) HandleDeviceVerify(w http.ResponseWriter, r *http.Request) {
	var req deviceVerifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid JSON body")
		return
	}

	profile, err := h.device.Approve(r.Context(), strings.ToUpper(strings.TrimSpace(req.Code)), req.Handle)
	switch {
	case errors.Is(err, app.ErrMissingHandle):
		writeError(w, http.StatusBadRequest, "missing_handle", "twitter_handle is required")
	case errors.Is(err, app.ErrDeviceCodeExpired):
		writeError(w, http.StatusBadRequest, "expired_code", "the device code has expired")
	case errors.Is(err, ports.ErrNotFound):
		writeError(w, http.StatusNotFound, "unknown_code", "no such device code")
	case err != nil:
		h.logger.Error().Err(err).Msg("device verify failed")
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to verify device code")
	default:
		writeJSON(w, http.StatusOK, map[string]any{
			"status":         "verified",
			"twitter_handle": profile.Handle,
		})
	}
}

type generateRequest struct {
	Handle string `json:"twitter_handle"`
}

// HandleGenerate mints an API key for a handle directly, without the
// device flow.
func (h *Handler) HandleGenerate(w http.ResponseWriter, r *http.Request) {
	var req generateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid JSON body")
		return
	}

	grant, err := h.device.GenerateKey(r.Context(), req.Handle)
	switch {
	case errors.Is(err, app.ErrMissingHandle):
		writeError(w, http.StatusBadRequest, "missing_handle", "twitter_handle is required")
	case err != nil:
		h.logger.Error().Err(err).Msg("key generation failed")
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to generate key")
	default:
		writeJSON(w, http.StatusOK, map[string]any{
			"twitter_handle": grant.Profile.Handle,
			"api_key":        grant.APIKey,
		})
	}
}

type verifyRequest struct {
	APIKey string `json:"api_key"`
}

// HandleVerify checks an API key and reports its owning handle.
func (h *Handler) HandleVerify(w http.ResponseWriter, r *http.Request) {
	var req verifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid JSON body")
		return
	}

	profile, err := h.device.VerifyKey(r.Context(), req.APIKey)
	switch {
	case errors.Is(err, app.ErrInvalidCredentials):
		h.countAuthFailure("invalid_api_key")
		writeJSON(w, http.StatusOK, map[string]any{"valid": false})
	case err != nil:
		h.logger.Error().Err(err).Msg("key verification failed")
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to verify key")
	default:
		writeJSON(w, http.StatusOK, map[string]any{
			"valid":          true,
			"twitter_handle": profile.Handle,
		})
	}
}

func (h *Handler) countIngest(outcome string) {
	if h.metrics != nil {
		h.metrics.IngestRequests.WithLabelValues(outcome).Inc()
	}
}

func (h *Handler) countAuthFailure(reason string) {
	if h.metrics != nil {
		h.metrics.AuthFailures.WithLabelValues(reason).Inc()
	}
}

// HealthChecker reports whether a backing dependency is reachable.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// HealthHandler provides health check endpoints.
type HealthHandler struct {
	deps []HealthChecker
}

// NewHealthHandler creates a new health handler. Checkers may be nil.
func NewHealthHandler(deps ...HealthChecker) *HealthHandler {
	return &HealthHandler{deps: deps}
}

// Liveness returns a simple liveness check.
func (h *HealthHandler) Liveness(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Readiness checks whether the backing stores are reachable.
func (h *HealthHandler) Readiness(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	for _, dep := range h.deps {
		if dep == nil {
			continue
		}
		if err := dep.HealthCheck(ctx); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]any{
				"status": "unhealthy",
				"error":  err.Error(),
			})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// RouterConfig holds optional configuration for the router.
type RouterConfig struct {
	Metrics     *metrics.Collector
	MetricsPath string
}

// NewRouter creates the main HTTP router.
func NewRouter(h *Handler, health *HealthHandler, logger zerolog.Logger, cfg RouterConfig) chi.Router {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(NewLoggingMiddleware(logger))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	// Health endpoints (no auth required)
	r.Get("/healthz", health.Liveness)
	r.Get("/healthz/ready", health.Readiness)

	// Metrics endpoint
	if cfg.Metrics != nil {
		path := cfg.MetricsPath
		if path == "" {
			path = "/metrics"
		}
		r.Handle(path, promhttp.Handler())
	}

	// Telemetry ingestion
	r.Post("/api/v1/metrics", h.HandleIngest)

	// Leaderboard reads
	r.Get("/api/leaderboard", h.HandleLeaderboard)
	r.Get("/api/user/{handle}", h.HandleUser)

	// Credential issuance
	r.Route("/api/auth", func(r chi.Router) {
		r.Post("/device", h.HandleDeviceStart)
		r.Get("/device", h.HandleDevicePoll)
		r.Post("/device/verify", h.HandleDeviceVerify)
		r.Post("/generate", h.HandleGenerate)
		r.Post("/verify", h.HandleVerify)
	})

	return r
}

// NewLoggingMiddleware creates a new logging middleware.
func NewLoggingMiddleware(logger zerolog.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			// Skip logging for health checks and metrics
			if strings.HasPrefix(r.URL.Path, "/healthz") || r.URL.Path == "/metrics" {
				return
			}

			logger.Debug().
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", ww.Status()).
				Int("bytes", ww.BytesWritten()).
				Dur("duration", time.Since(start)).
				Str("request_id", middleware.GetReqID(r.Context())).
				Msg("http request")
		})
	}
}
