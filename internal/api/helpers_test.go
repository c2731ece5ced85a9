package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/bestsmilejp/ai-creative-compass-studio/internal/articles"
	"github.com/bestsmilejp/ai-creative-compass-studio/internal/domain"
	"github.com/bestsmilejp/ai-creative-compass-studio/internal/jobs"
	"github.com/bestsmilejp/ai-creative-compass-studio/internal/schedules"
	"github.com/bestsmilejp/ai-creative-compass-studio/internal/sites"
	"github.com/bestsmilejp/ai-creative-compass-studio/internal/store/memory"
	"github.com/bestsmilejp/ai-creative-compass-studio/internal/testutil"
	"github.com/bestsmilejp/ai-creative-compass-studio/internal/users"
	"github.com/bestsmilejp/ai-creative-compass-studio/internal/wordpress"
	"github.com/bestsmilejp/ai-creative-compass-studio/internal/workflow"
)

const (
	testN8NKey   = "n8n-secret"
	testAdminKey = "admin-secret"
)

// Tuesday 2024-01-09 10:00 UTC.
var testNow = time.Date(2024, 1, 9, 10, 0, 0, 0, time.UTC)

type fixture struct {
	store   *memory.Store
	handler *Handler
	clock   *testutil.FakeClock
}

func newFixture(t *testing.T, cfg Config) *fixture {
	t.Helper()
	st := memory.New()
	clock := testutil.NewFakeClock(testNow)
	client := workflow.NewClient("", "", 5*time.Second)

	svc := Services{
		Jobs:      jobs.NewService(st, st).WithClock(clock.Now),
		Schedules: schedules.NewService(st, time.UTC).WithClock(clock.Now),
		Sites:     sites.NewService(st).WithClock(clock.Now),
		Articles:  articles.NewService(st, client).WithClock(clock.Now),
		Users:     users.NewService(st).WithClock(clock.Now),
	}
	h := NewHandler(cfg, svc, wordpress.NewClient(5*time.Second, 0)).WithClock(clock.Now)
	return &fixture{store: st, handler: h, clock: clock}
}

func defaultConfig() Config {
	return Config{N8NAPIKey: testN8NKey, AdminAPIKey: testAdminKey}
}

func (f *fixture) addSite(t *testing.T, slug, webhookURL string) domain.Site {
	t.Helper()
	site := testutil.Site(slug, webhookURL)
	if err := f.store.InsertSite(context.Background(), site); err != nil {
		t.Fatalf("insert site: %v", err)
	}
	return site
}

// do sends a request with the given API key; body is JSON-encoded unless it
// is a string, which is sent verbatim.
func (f *fixture) do(t *testing.T, method, path, key string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	switch b := body.(type) {
	case nil:
	case string:
		buf.WriteString(b)
	default:
		if err := json.NewEncoder(&buf).Encode(b); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if key != "" {
		req.Header.Set("x-api-key", key)
	}
	w := httptest.NewRecorder()
	f.handler.ServeHTTP(w, req)
	return w
}

func (f *fixture) n8n(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	return f.do(t, method, path, testN8NKey, body)
}

func (f *fixture) admin(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	return f.do(t, method, path, testAdminKey, body)
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(w.Body.Bytes(), &v); err != nil {
		t.Fatalf("unmarshal %q: %v", w.Body.String(), err)
	}
	return v
}

func expectStatus(t *testing.T, w *httptest.ResponseRecorder, want int) {
	t.Helper()
	if w.Code != want {
		t.Fatalf("expected %d, got %d: %s", want, w.Code, w.Body.String())
	}
}

var _ http.Handler = (*Handler)(nil)
