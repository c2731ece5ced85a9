package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/bestsmilejp/ai-creative-compass-studio/internal/analytics"
	"github.com/bestsmilejp/ai-creative-compass-studio/internal/articles"
	"github.com/bestsmilejp/ai-creative-compass-studio/internal/circuitbreaker"
	"github.com/bestsmilejp/ai-creative-compass-studio/internal/domain"
	"github.com/bestsmilejp/ai-creative-compass-studio/internal/jobs"
	"github.com/bestsmilejp/ai-creative-compass-studio/internal/metrics"
	"github.com/bestsmilejp/ai-creative-compass-studio/internal/schedules"
	"github.com/bestsmilejp/ai-creative-compass-studio/internal/sites"
	"github.com/bestsmilejp/ai-creative-compass-studio/internal/users"
	"github.com/bestsmilejp/ai-creative-compass-studio/internal/wordpress"
)

// maxRequestBodySize is the maximum allowed request body size (1MB).
const maxRequestBodySize = 1 << 20

// Services are the use cases the API exposes.
type Services struct {
	Jobs      *jobs.Service
	Schedules *schedules.Service
	Sites     *sites.Service
	Articles  *articles.Service
	Users     *users.Service
}

// PostLister reads posts from a site's WordPress installation.
type PostLister interface {
	ListPosts(ctx context.Context, creds wordpress.Credentials, opts wordpress.ListOptions) (wordpress.PostsPage, error)
}

// JobStatsReader serves the per-site job counters.
type JobStatsReader interface {
	JobStats(ctx context.Context, siteID uuid.UUID, now time.Time, hours int) (analytics.JobStats, error)
}

// HealthChecker provides store health status for the /health endpoint.
type HealthChecker interface {
	Ping(ctx context.Context) error
}

// Config carries the request-level settings of the API.
type Config struct {
	// N8NAPIKey authenticates /api/n8n. Empty makes those routes answer 500.
	N8NAPIKey string
	// AdminAPIKey authenticates dashboard and admin routes. Empty leaves them open.
	AdminAPIKey string
	// RateLimit is requests per second per client IP; 0 disables limiting.
	RateLimit float64
	RateBurst int
}

type Handler struct {
	cfg      Config
	svc      Services
	posts    PostLister
	stats    JobStatsReader
	health   map[string]HealthChecker
	breakers map[string]*circuitbreaker.CircuitBreaker
	metrics  metrics.Sink
	limiter  *ipLimiter
	now      func() time.Time
	mux      http.Handler
}

func NewHandler(cfg Config, svc Services, posts PostLister) *Handler {
	h := &Handler{
		cfg:      cfg,
		svc:      svc,
		posts:    posts,
		health:   make(map[string]HealthChecker),
		breakers: make(map[string]*circuitbreaker.CircuitBreaker),
		metrics:  metrics.NewNoopSink(),
		limiter:  newIPLimiter(cfg.RateLimit, cfg.RateBurst),
		now:      time.Now,
	}
	h.mux = h.routes()
	return h
}

// WithHealthChecker adds a component to verbose /health responses.
func (h *Handler) WithHealthChecker(name string, c HealthChecker) *Handler {
	h.health[name] = c
	return h
}

// WithCircuitBreaker exposes a breaker's per-target state on verbose /health.
func (h *Handler) WithCircuitBreaker(name string, cb *circuitbreaker.CircuitBreaker) *Handler {
	h.breakers[name] = cb
	return h
}

// WithJobStats enables GET /api/sites/{siteId}/jobs/stats.
func (h *Handler) WithJobStats(r JobStatsReader) *Handler {
	h.stats = r
	return h
}

func (h *Handler) WithMetrics(m metrics.Sink) *Handler {
	if m != nil {
		h.metrics = m
	}
	return h
}

func (h *Handler) WithClock(now func() time.Time) *Handler {
	h.now = now
	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

func (h *Handler) routes() http.Handler {
	mux := http.NewServeMux()

	handle := func(pattern string, guard func(http.HandlerFunc) http.HandlerFunc, fn http.HandlerFunc) {
		mux.Handle(pattern, h.instrument(pattern, guard(fn)))
	}
	n8n, admin := h.requireN8NKey, h.requireAdminKey
	open := func(fn http.HandlerFunc) http.HandlerFunc { return fn }

	handle("GET /health", open, h.healthz)

	// Workflow engine.
	handle("POST /api/n8n/jobs", n8n, h.createJob)
	handle("GET /api/n8n/jobs", n8n, h.listJobs)
	handle("GET /api/n8n/jobs/{jobId}", n8n, h.getJob)
	handle("PATCH /api/n8n/jobs/{jobId}", n8n, h.updateJob)
	handle("DELETE /api/n8n/jobs/{jobId}", n8n, h.deleteJob)
	handle("GET /api/n8n/schedules/due", n8n, h.dueSchedules)
	handle("POST /api/n8n/schedules/due", n8n, h.recordScheduleRun)
	handle("GET /api/n8n/sites/{siteId}/keywords", n8n, h.n8nKeywords)
	handle("POST /api/n8n/sites/{siteId}/keywords", n8n, h.markKeywordUsed)
	handle("GET /api/n8n/sites/{siteId}/articles", n8n, h.searchArticles)
	handle("POST /api/n8n/sites/{siteId}/articles", n8n, h.createArticle)

	// Dashboard.
	for _, base := range []string{"/api/sites/{siteId}", "/api/sites/{siteId}/settings"} {
		handle("GET "+base, admin, h.getSite)
		handle("PATCH "+base, admin, h.updateSite)
		handle("DELETE "+base, admin, h.deleteSite)
	}
	handle("GET /api/sites/{siteId}/keywords", admin, h.listKeywords)
	handle("PUT /api/sites/{siteId}/keywords", admin, h.replaceKeywords)
	handle("POST /api/sites/{siteId}/keywords", admin, h.addKeyword)
	handle("GET /api/sites/{siteId}/schedule", admin, h.getSchedule)
	handle("PUT /api/sites/{siteId}/schedule", admin, h.saveSchedule)
	handle("GET /api/sites/{siteId}/jobs", admin, h.siteJobs)
	handle("GET /api/sites/{siteId}/jobs/stats", admin, h.siteJobStats)
	handle("PATCH /api/sites/{siteId}/jobs/{jobId}", admin, h.updateSiteJob)
	handle("GET /api/sites/{siteId}/posts", admin, h.listPosts)
	handle("POST /api/sites/{siteId}/webhook", admin, h.regeneratePosts)
	handle("GET /api/sites/{siteId}/articles", admin, h.listArticles)
	handle("GET /api/articles/{articleId}", admin, h.getArticle)
	handle("PATCH /api/articles/{articleId}", admin, h.setArticleStatus)
	handle("POST /api/articles/{articleId}/regenerate", admin, h.regenerateArticle)
	handle("POST /api/articles/{articleId}/publish", admin, h.publishArticle)

	// Platform administration.
	handle("GET /api/admin/sites", admin, h.listSites)
	handle("POST /api/admin/sites", admin, h.createSite)
	handle("GET /api/admin/users", admin, h.listUsers)
	handle("POST /api/admin/users", admin, h.upsertUser)
	handle("PATCH /api/admin/users/{userId}", admin, h.setUserRole)
	handle("DELETE /api/admin/users/{userId}", admin, h.deleteUser)

	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "not found")
	})

	return h.rateLimit(mux)
}

// HealthResponse represents the /health endpoint response.
type HealthResponse struct {
	Status     string            `json:"status"`
	Components map[string]string `json:"components,omitempty"`
}

func (h *Handler) healthz(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("verbose") != "true" {
		writeJSON(w, http.StatusOK, HealthResponse{Status: "ok"})
		return
	}

	resp := HealthResponse{Status: "ok", Components: make(map[string]string)}

	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	for name, c := range h.health {
		if err := c.Ping(ctx); err != nil {
			resp.Status = "degraded"
			resp.Components[name] = "unhealthy: " + err.Error()
			continue
		}
		resp.Components[name] = "healthy"
	}
	for name, cb := range h.breakers {
		for target, state := range cb.Snapshot() {
			resp.Components["circuit:"+name+":"+target] = state
		}
	}

	status := http.StatusOK
	if resp.Status == "degraded" {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, resp)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("api: json encode error")
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, ErrorResponse{Error: msg})
}

// Outcome tags for error responses that callers branch on.
const (
	outcomeInvalidTransition = "invalid_transition"
	outcomeConflict          = "conflict"
)

// writeServiceError maps a use-case error to its HTTP status. It is the only
// place where error kinds become status codes.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var apiErr *wordpress.APIError
	switch {
	case errors.Is(err, domain.ErrInvalidTransition):
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: err.Error(), Outcome: outcomeInvalidTransition})
	case errors.Is(err, domain.ErrConflict):
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: err.Error(), Outcome: outcomeConflict})
	case errors.Is(err, domain.ErrValidation):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, domain.ErrConfiguration):
		log.Error().Err(err).Str("path", r.URL.Path).Msg("api: configuration error")
		writeError(w, http.StatusInternalServerError, err.Error())
	case errors.Is(err, domain.ErrUpstream),
		errors.Is(err, circuitbreaker.ErrCircuitOpen),
		errors.As(err, &apiErr):
		log.Warn().Err(err).Str("path", r.URL.Path).Msg("api: upstream error")
		writeError(w, http.StatusBadGateway, err.Error())
	default:
		log.Error().Err(err).Str("method", r.Method).Str("path", r.URL.Path).Msg("api: internal error")
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}
