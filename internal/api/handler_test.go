package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/bestsmilejp/ai-creative-compass-studio/internal/circuitbreaker"
	"github.com/bestsmilejp/ai-creative-compass-studio/internal/domain"
	"github.com/bestsmilejp/ai-creative-compass-studio/internal/metrics"
	"github.com/bestsmilejp/ai-creative-compass-studio/internal/wordpress"
)

// --- Auth Tests ---

func TestHandler_N8NKeyNotConfigured(t *testing.T) {
	f := newFixture(t, Config{AdminAPIKey: testAdminKey})

	w := f.do(t, http.MethodGet, "/api/n8n/jobs", "anything", nil)

	expectStatus(t, w, http.StatusInternalServerError)
	resp := decode[ErrorResponse](t, w)
	if resp.Error != "N8N_API_KEY is not configured on server" {
		t.Errorf("Error = %q", resp.Error)
	}
}

func TestHandler_N8NKeyMissing(t *testing.T) {
	f := newFixture(t, defaultConfig())

	w := f.do(t, http.MethodGet, "/api/n8n/jobs", "", nil)

	expectStatus(t, w, http.StatusUnauthorized)
	if resp := decode[ErrorResponse](t, w); resp.Error != "missing x-api-key header" {
		t.Errorf("Error = %q", resp.Error)
	}
}

func TestHandler_N8NKeyWrong(t *testing.T) {
	f := newFixture(t, defaultConfig())

	w := f.do(t, http.MethodGet, "/api/n8n/jobs", "wrong", nil)

	expectStatus(t, w, http.StatusUnauthorized)
	if resp := decode[ErrorResponse](t, w); resp.Error != "invalid API key" {
		t.Errorf("Error = %q", resp.Error)
	}
}

func TestHandler_AdminKeyRejectsN8NKey(t *testing.T) {
	f := newFixture(t, defaultConfig())

	w := f.do(t, http.MethodGet, "/api/admin/sites", testN8NKey, nil)

	expectStatus(t, w, http.StatusUnauthorized)
}

func TestHandler_AdminRoutesOpenWithoutKey(t *testing.T) {
	f := newFixture(t, Config{N8NAPIKey: testN8NKey})

	w := f.do(t, http.MethodGet, "/api/admin/sites", "", nil)

	expectStatus(t, w, http.StatusOK)
}

// --- Health Tests ---

type mockHealthChecker struct {
	err error
}

func (m *mockHealthChecker) Ping(ctx context.Context) error {
	return m.err
}

func TestHandler_Health_Simple(t *testing.T) {
	f := newFixture(t, defaultConfig())

	w := f.do(t, http.MethodGet, "/health", "", nil)

	expectStatus(t, w, http.StatusOK)
	if resp := decode[HealthResponse](t, w); resp.Status != "ok" {
		t.Errorf("Status = %q, want ok", resp.Status)
	}
}

func TestHandler_Health_Verbose_Healthy(t *testing.T) {
	f := newFixture(t, defaultConfig())
	cb := circuitbreaker.New(1, 0)
	cb.RecordFailure("wp.example.com")
	f.handler.WithHealthChecker("database", f.store).WithCircuitBreaker("wordpress", cb)

	w := f.do(t, http.MethodGet, "/health?verbose=true", "", nil)

	expectStatus(t, w, http.StatusOK)
	resp := decode[HealthResponse](t, w)
	if resp.Components["database"] != "healthy" {
		t.Errorf("database = %q, want healthy", resp.Components["database"])
	}
	if resp.Components["circuit:wordpress:wp.example.com"] != "open" {
		t.Errorf("components = %v", resp.Components)
	}
}

func TestHandler_Health_Verbose_Unhealthy(t *testing.T) {
	f := newFixture(t, defaultConfig())
	f.handler.WithHealthChecker("redis", &mockHealthChecker{err: errors.New("connection refused")})

	w := f.do(t, http.MethodGet, "/health?verbose=true", "", nil)

	expectStatus(t, w, http.StatusServiceUnavailable)
	resp := decode[HealthResponse](t, w)
	if resp.Status != "degraded" {
		t.Errorf("Status = %q, want degraded", resp.Status)
	}
	if resp.Components["redis"] != "unhealthy: connection refused" {
		t.Errorf("redis = %q", resp.Components["redis"])
	}
}

// --- Routing Tests ---

func TestHandler_NotFound(t *testing.T) {
	f := newFixture(t, defaultConfig())

	w := f.do(t, http.MethodGet, "/nonexistent", "", nil)

	expectStatus(t, w, http.StatusNotFound)
	if resp := decode[ErrorResponse](t, w); resp.Error != "not found" {
		t.Errorf("Error = %q", resp.Error)
	}
}

func TestHandler_InvalidPathID(t *testing.T) {
	f := newFixture(t, defaultConfig())

	w := f.n8n(t, http.MethodGet, "/api/n8n/jobs/not-a-uuid", nil)

	expectStatus(t, w, http.StatusBadRequest)
	if resp := decode[ErrorResponse](t, w); resp.Error != "invalid job id format" {
		t.Errorf("Error = %q", resp.Error)
	}
}

// --- Rate Limit Tests ---

func TestHandler_RateLimit(t *testing.T) {
	cfg := defaultConfig()
	cfg.RateLimit = 1
	cfg.RateBurst = 2
	f := newFixture(t, cfg)

	for i := 0; i < 2; i++ {
		expectStatus(t, f.n8n(t, http.MethodGet, "/api/n8n/jobs", nil), http.StatusOK)
	}
	w := f.n8n(t, http.MethodGet, "/api/n8n/jobs", nil)
	expectStatus(t, w, http.StatusTooManyRequests)
	if w.Header().Get("Retry-After") == "" {
		t.Error("Retry-After header not set")
	}

	// Health checks are never limited.
	expectStatus(t, f.do(t, http.MethodGet, "/health", "", nil), http.StatusOK)
}

func TestHandler_RateLimitPerClient(t *testing.T) {
	cfg := defaultConfig()
	cfg.RateLimit = 1
	cfg.RateBurst = 1
	f := newFixture(t, cfg)

	send := func(ip string) int {
		req := httptest.NewRequest(http.MethodGet, "/api/n8n/jobs", nil)
		req.Header.Set("x-api-key", testN8NKey)
		req.Header.Set("X-Forwarded-For", ip)
		w := httptest.NewRecorder()
		f.handler.ServeHTTP(w, req)
		return w.Code
	}

	if code := send("10.0.0.1"); code != http.StatusOK {
		t.Fatalf("first request: %d", code)
	}
	if code := send("10.0.0.1"); code != http.StatusTooManyRequests {
		t.Errorf("second request from same client: %d, want 429", code)
	}
	if code := send("10.0.0.2"); code != http.StatusOK {
		t.Errorf("request from other client: %d, want 200", code)
	}
}

// --- Instrumentation ---

type requestRecorder struct {
	metrics.NoopSink
	routes   []string
	statuses []int
}

func (r *requestRecorder) HTTPRequestCompleted(route string, status int, _ time.Duration) {
	r.routes = append(r.routes, route)
	r.statuses = append(r.statuses, status)
}

func TestHandler_RecordsRequestMetrics(t *testing.T) {
	f := newFixture(t, defaultConfig())
	rec := &requestRecorder{}
	f.handler.WithMetrics(rec)

	f.n8n(t, http.MethodGet, "/api/n8n/jobs", nil)

	if len(rec.routes) != 1 {
		t.Fatalf("recorded %d requests, want 1", len(rec.routes))
	}
	if rec.routes[0] != "GET /api/n8n/jobs" || rec.statuses[0] != http.StatusOK {
		t.Errorf("recorded %s %d", rec.routes[0], rec.statuses[0])
	}
}

// --- Error Mapping ---

func TestWriteServiceError(t *testing.T) {
	tests := []struct {
		name        string
		err         error
		wantStatus  int
		wantOutcome string
		wantMessage string
	}{
		{"validation", domain.Validationf("title is required"), http.StatusBadRequest, "", "title is required"},
		{"not found", domain.NotFoundf("site not found"), http.StatusNotFound, "", "site not found"},
		{"conflict", domain.Conflictf("slug taken"), http.StatusBadRequest, outcomeConflict, "slug taken"},
		{
			"invalid transition",
			errors.Mark(domain.Conflictf("cannot move job"), domain.ErrInvalidTransition),
			http.StatusBadRequest, outcomeInvalidTransition, "cannot move job",
		},
		{"configuration", domain.Configurationf("N8N_WEBHOOK_BASE_URL missing"), http.StatusInternalServerError, "", "N8N_WEBHOOK_BASE_URL missing"},
		{"upstream", domain.Upstream(errors.New("dial tcp"), "n8n webhook"), http.StatusBadGateway, "", ""},
		{"circuit open", errors.Wrap(circuitbreaker.ErrCircuitOpen, "webhook"), http.StatusBadGateway, "", ""},
		{"wordpress", errors.Wrap(&wordpress.APIError{StatusCode: 401}, "list posts"), http.StatusBadGateway, "", ""},
		{"internal", errors.New("disk on fire"), http.StatusInternalServerError, "", "internal server error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/x", nil)
			w := httptest.NewRecorder()

			writeServiceError(w, req, tt.err)

			expectStatus(t, w, tt.wantStatus)
			resp := decode[ErrorResponse](t, w)
			if resp.Outcome != tt.wantOutcome {
				t.Errorf("Outcome = %q, want %q", resp.Outcome, tt.wantOutcome)
			}
			if tt.wantMessage != "" && resp.Error != tt.wantMessage {
				t.Errorf("Error = %q, want %q", resp.Error, tt.wantMessage)
			}
		})
	}
}
