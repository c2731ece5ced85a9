package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/bestsmilejp/ai-creative-compass-studio/internal/analytics"
	"github.com/bestsmilejp/ai-creative-compass-studio/internal/domain"
	"github.com/bestsmilejp/ai-creative-compass-studio/internal/wordpress"
	"github.com/bestsmilejp/ai-creative-compass-studio/internal/workflow"
)

// --- Site Settings ---

func TestHandler_SiteSettings(t *testing.T) {
	f := newFixture(t, defaultConfig())
	site := f.addSite(t, "health", "")

	w := f.admin(t, http.MethodGet, "/api/sites/"+site.ID.String(), nil)
	expectStatus(t, w, http.StatusOK)
	got := decode[SiteResponse](t, w)
	if got.Slug != "health" || !got.HasWPPassword {
		t.Errorf("site = %+v", got)
	}
	if raw := w.Body.String(); strings.Contains(raw, site.WPAppPassword) {
		t.Error("response leaks the WordPress application password")
	}

	w = f.admin(t, http.MethodPatch, "/api/sites/"+site.ID.String()+"/settings", map[string]any{
		"description":     "  Wellness guides ",
		"wp_app_password": "",
		"is_active":       false,
	})
	expectStatus(t, w, http.StatusOK)
	got = decode[SiteResponse](t, w)
	if got.Description != "Wellness guides" {
		t.Errorf("description = %q", got.Description)
	}
	if got.HasWPPassword {
		t.Error("password should have been cleared")
	}
	if got.IsActive {
		t.Error("site should be inactive")
	}
	if got.Name != "health" {
		t.Errorf("name changed to %q", got.Name)
	}
}

func TestHandler_UpdateSite_Errors(t *testing.T) {
	f := newFixture(t, defaultConfig())
	a := f.addSite(t, "alpha", "")
	f.addSite(t, "beta", "")

	w := f.admin(t, http.MethodPatch, "/api/sites/"+a.ID.String(), map[string]any{"slug": "beta"})
	expectStatus(t, w, http.StatusBadRequest)
	if resp := decode[ErrorResponse](t, w); resp.Error != "slug is already in use" {
		t.Errorf("Error = %q", resp.Error)
	}

	w = f.admin(t, http.MethodPatch, "/api/sites/"+a.ID.String(), map[string]any{"name": " "})
	expectStatus(t, w, http.StatusBadRequest)

	w = f.admin(t, http.MethodPatch, "/api/sites/"+uuid.NewString(), map[string]any{"description": "x"})
	expectStatus(t, w, http.StatusNotFound)
}

func TestHandler_DeleteSite(t *testing.T) {
	f := newFixture(t, defaultConfig())
	site := f.addSite(t, "health", "")
	f.n8n(t, http.MethodPost, "/api/n8n/jobs", map[string]any{"siteId": site.ID.String()})

	expectStatus(t, f.admin(t, http.MethodDelete, "/api/sites/"+site.ID.String(), nil), http.StatusOK)

	expectStatus(t, f.admin(t, http.MethodGet, "/api/sites/"+site.ID.String(), nil), http.StatusNotFound)
	jobs := decode[ListJobsResponse](t, f.n8n(t, http.MethodGet, "/api/n8n/jobs?siteId="+site.ID.String(), nil))
	if jobs.Count != 0 {
		t.Errorf("jobs of a deleted site remain: %d", jobs.Count)
	}
}

// --- Keywords ---

func TestHandler_DashboardKeywords(t *testing.T) {
	f := newFixture(t, defaultConfig())
	site := f.addSite(t, "health", "")
	path := "/api/sites/" + site.ID.String() + "/keywords"

	w := f.admin(t, http.MethodPost, path, map[string]any{"keyword": "sleep"})
	expectStatus(t, w, http.StatusOK)
	first := decode[KeywordResponse](t, w)
	if !first.IsActive {
		t.Error("new keyword should be active")
	}

	w = f.admin(t, http.MethodPost, path, map[string]any{"keyword": "diet"})
	expectStatus(t, w, http.StatusOK)
	if second := decode[KeywordResponse](t, w); second.Priority <= first.Priority {
		t.Errorf("priority %d should follow %d", second.Priority, first.Priority)
	}

	w = f.admin(t, http.MethodGet, path, nil)
	expectStatus(t, w, http.StatusOK)
	list := decode[KeywordsResponse](t, w)
	if len(list.Keywords) != 2 || list.SiteName == nil || *list.SiteName != "health" {
		t.Errorf("list = %+v", list)
	}

	expectStatus(t, f.admin(t, http.MethodPost, path, map[string]any{"keyword": "  "}), http.StatusBadRequest)
	expectStatus(t, f.admin(t, http.MethodPut, path, map[string]any{}), http.StatusBadRequest)

	expectStatus(t, f.admin(t, http.MethodPut, path, map[string]any{"keywords": []any{}}), http.StatusOK)
	if list := decode[KeywordsResponse](t, f.admin(t, http.MethodGet, path, nil)); len(list.Keywords) != 0 {
		t.Errorf("keywords left after replace with empty list: %d", len(list.Keywords))
	}
}

// --- Schedule ---

func TestHandler_Schedule(t *testing.T) {
	f := newFixture(t, defaultConfig())
	site := f.addSite(t, "health", "")
	path := "/api/sites/" + site.ID.String() + "/schedule"

	w := f.admin(t, http.MethodGet, path, nil)
	expectStatus(t, w, http.StatusOK)
	env := decode[ScheduleEnvelope](t, w)
	if env.SiteName != "health" || env.Schedule.IsEnabled || env.Schedule.FrequencyType != "daily" {
		t.Errorf("default schedule = %+v", env)
	}

	w = f.admin(t, http.MethodPut, path, map[string]any{"schedule": map[string]any{
		"is_enabled":       true,
		"frequency_type":   "daily",
		"time_of_day":      "14:00",
		"articles_per_run": 50,
	}})
	expectStatus(t, w, http.StatusOK)
	sc := decode[ScheduleResponse](t, w)
	if !sc.IsEnabled || sc.ArticlesPerRun != domain.MaxArticlesPerRun {
		t.Errorf("schedule = %+v", sc)
	}
	if sc.NextRunAt == nil || *sc.NextRunAt != "2024-01-09T14:00:00Z" {
		t.Errorf("next_run_at = %v, want later today", sc.NextRunAt)
	}

	w = f.admin(t, http.MethodPut, path, map[string]any{"schedule": map[string]any{
		"frequency_type": "weekly",
		"time_of_day":    "09:00",
		"days_of_week":   []int{},
	}})
	expectStatus(t, w, http.StatusBadRequest)

	expectStatus(t, f.admin(t, http.MethodPut, path, map[string]any{}), http.StatusBadRequest)
	expectStatus(t, f.admin(t, http.MethodGet, "/api/sites/"+uuid.NewString()+"/schedule", nil), http.StatusNotFound)
}

// --- Jobs ---

func TestHandler_SiteJobs(t *testing.T) {
	f := newFixture(t, defaultConfig())
	site := f.addSite(t, "health", "")
	created := decode[CreateJobResponse](t, f.n8n(t, http.MethodPost, "/api/n8n/jobs", map[string]any{
		"siteId": site.ID.String(),
	}))

	w := f.admin(t, http.MethodGet, "/api/sites/"+site.ID.String()+"/jobs", nil)
	expectStatus(t, w, http.StatusOK)
	list := decode[SiteJobsResponse](t, w)
	if len(list.Jobs) != 1 || list.SiteName != "health" {
		t.Fatalf("list = %+v", list)
	}

	w = f.admin(t, http.MethodPatch, "/api/sites/"+site.ID.String()+"/jobs/"+created.Job.ID, map[string]any{
		"status":       "failed",
		"errorMessage": "cancelled by operator",
	})
	expectStatus(t, w, http.StatusOK)
	resp := decode[UpdateSiteJobResponse](t, w)
	if !resp.Success || resp.Job.Status != "failed" {
		t.Errorf("resp = %+v", resp)
	}
	if resp.Job.ErrorMessage == nil || *resp.Job.ErrorMessage != "cancelled by operator" {
		t.Errorf("error_message = %v", resp.Job.ErrorMessage)
	}
}

func TestHandler_UpdateSiteJob_OtherSite(t *testing.T) {
	f := newFixture(t, defaultConfig())
	a := f.addSite(t, "alpha", "")
	b := f.addSite(t, "beta", "")
	created := decode[CreateJobResponse](t, f.n8n(t, http.MethodPost, "/api/n8n/jobs", map[string]any{
		"siteId": a.ID.String(),
	}))

	w := f.admin(t, http.MethodPatch, "/api/sites/"+b.ID.String()+"/jobs/"+created.Job.ID, map[string]any{
		"status": "failed",
	})

	expectStatus(t, w, http.StatusNotFound)
}

func TestHandler_SiteJobStats(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	sink := analytics.NewRedisSink(client, 0)

	f := newFixture(t, defaultConfig())
	site := f.addSite(t, "health", "")
	ctx := context.Background()
	for _, st := range []domain.JobStatus{domain.JobStatusPending, domain.JobStatusPending, domain.JobStatusCompleted} {
		if err := sink.RecordJobStatus(ctx, site.ID, st, testNow); err != nil {
			t.Fatalf("record: %v", err)
		}
	}

	path := "/api/sites/" + site.ID.String() + "/jobs/stats"
	expectStatus(t, f.admin(t, http.MethodGet, path, nil), http.StatusNotImplemented)

	f.handler.WithJobStats(sink)
	w := f.admin(t, http.MethodGet, path+"?hours=3", nil)
	expectStatus(t, w, http.StatusOK)
	stats := decode[analytics.JobStats](t, w)
	if stats.Hours != 3 || len(stats.Hourly) != 3 {
		t.Errorf("hours = %d, buckets = %d", stats.Hours, len(stats.Hourly))
	}
	if stats.Totals[domain.JobStatusPending] != 2 || stats.Totals[domain.JobStatusCompleted] != 1 {
		t.Errorf("totals = %v", stats.Totals)
	}

	expectStatus(t, f.admin(t, http.MethodGet, "/api/sites/"+uuid.NewString()+"/jobs/stats", nil), http.StatusNotFound)
}

// --- WordPress Posts ---

func TestHandler_ListPosts(t *testing.T) {
	var gotQuery, gotUser string
	wp := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
		gotUser, _, _ = r.BasicAuth()
		w.Header().Set("X-WP-Total", "12")
		w.Header().Set("X-WP-TotalPages", "2")
		_, _ = io.WriteString(w, `[{"id":5,"status":"publish","title":{"rendered":"Hello"}}]`)
	}))
	t.Cleanup(wp.Close)

	f := newFixture(t, defaultConfig())
	site := f.addSite(t, "health", "")
	wpURL := wp.URL
	if _, err := f.handler.svc.Sites.Update(context.Background(), site.ID, domain.SiteUpdate{WPURL: &wpURL}); err != nil {
		t.Fatalf("update site: %v", err)
	}

	w := f.admin(t, http.MethodGet, "/api/sites/"+site.ID.String()+"/posts?page=2&per_page=10&search=sleep&categories=3,4", nil)

	expectStatus(t, w, http.StatusOK)
	page := decode[wordpress.PostsPage](t, w)
	if page.Total != 12 || page.TotalPages != 2 || len(page.Posts) != 1 {
		t.Errorf("page = %+v", page)
	}
	if page.Posts[0].Title.Rendered != "Hello" {
		t.Errorf("title = %q", page.Posts[0].Title.Rendered)
	}
	if gotUser != site.WPUsername {
		t.Errorf("basic auth user = %q", gotUser)
	}
	for _, want := range []string{"page=2", "per_page=10", "search=sleep", "categories=3%2C4"} {
		if !strings.Contains(gotQuery, want) {
			t.Errorf("query %q missing %q", gotQuery, want)
		}
	}
}

func TestHandler_ListPosts_Errors(t *testing.T) {
	wp := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = io.WriteString(w, `{"code":"rest_forbidden"}`)
	}))
	t.Cleanup(wp.Close)

	f := newFixture(t, defaultConfig())
	noWP := f.addSite(t, "bare", "")
	empty := ""
	if _, err := f.handler.svc.Sites.Update(context.Background(), noWP.ID, domain.SiteUpdate{WPURL: &empty}); err != nil {
		t.Fatalf("update site: %v", err)
	}
	w := f.admin(t, http.MethodGet, "/api/sites/"+noWP.ID.String()+"/posts", nil)
	expectStatus(t, w, http.StatusBadRequest)
	if resp := decode[ErrorResponse](t, w); resp.Error != "WordPress URL not configured for this site" {
		t.Errorf("Error = %q", resp.Error)
	}

	site := f.addSite(t, "health", "")
	wpURL := wp.URL
	if _, err := f.handler.svc.Sites.Update(context.Background(), site.ID, domain.SiteUpdate{WPURL: &wpURL}); err != nil {
		t.Fatalf("update site: %v", err)
	}
	expectStatus(t, f.admin(t, http.MethodGet, "/api/sites/"+site.ID.String()+"/posts", nil), http.StatusBadGateway)

	expectStatus(t, f.admin(t, http.MethodGet, "/api/sites/"+site.ID.String()+"/posts?categories=x", nil), http.StatusBadRequest)
}

// --- Regeneration Webhook ---

func TestHandler_RegeneratePosts(t *testing.T) {
	var action string
	var payload workflow.RegeneratePayload
	n8n := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		action = r.Header.Get(workflow.HeaderAction)
		_ = json.NewDecoder(r.Body).Decode(&payload)
		_, _ = io.WriteString(w, `{"accepted":true}`)
	}))
	t.Cleanup(n8n.Close)

	f := newFixture(t, defaultConfig())
	site := f.addSite(t, "health", n8n.URL)

	w := f.admin(t, http.MethodPost, "/api/sites/"+site.ID.String()+"/webhook", map[string]any{"postIds": []int64{3, 8}})

	expectStatus(t, w, http.StatusOK)
	resp := decode[RegeneratePostsResponse](t, w)
	if !resp.Success || len(resp.PostIDs) != 2 {
		t.Errorf("resp = %+v", resp)
	}
	if string(resp.WebhookResult) != `{"accepted":true}` {
		t.Errorf("webhookResult = %s", resp.WebhookResult)
	}
	if action != workflow.ActionRegenerate {
		t.Errorf("action = %q", action)
	}
	if len(payload.Posts) != 2 {
		t.Errorf("payload = %+v", payload)
	}
}

func TestHandler_RegeneratePosts_Errors(t *testing.T) {
	failing := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	t.Cleanup(failing.Close)

	f := newFixture(t, defaultConfig())
	noHook := f.addSite(t, "bare", "")
	site := f.addSite(t, "health", failing.URL)

	w := f.admin(t, http.MethodPost, "/api/sites/"+noHook.ID.String()+"/webhook", map[string]any{"postIds": []int64{1}})
	expectStatus(t, w, http.StatusBadRequest)

	w = f.admin(t, http.MethodPost, "/api/sites/"+site.ID.String()+"/webhook", map[string]any{"postIds": []int64{}})
	expectStatus(t, w, http.StatusBadRequest)

	w = f.admin(t, http.MethodPost, "/api/sites/"+site.ID.String()+"/webhook", map[string]any{"postIds": []int64{1}})
	expectStatus(t, w, http.StatusBadGateway)
}

// --- Articles ---

func TestHandler_ArticleActions(t *testing.T) {
	f := newFixture(t, defaultConfig())
	site := f.addSite(t, "health", "")
	created := decode[ArticleEnvelope](t, f.n8n(t, http.MethodPost, "/api/n8n/sites/"+site.ID.String()+"/articles", map[string]any{
		"title": "Better sleep", "keyword": "sleep",
	}))
	path := "/api/articles/" + created.Article.ID

	w := f.admin(t, http.MethodGet, "/api/sites/"+site.ID.String()+"/articles", nil)
	expectStatus(t, w, http.StatusOK)
	if list := decode[ArticlesResponse](t, w); list.Count != 1 {
		t.Errorf("count = %d, want 1", list.Count)
	}

	w = f.admin(t, http.MethodPatch, path, map[string]any{"status": "review"})
	expectStatus(t, w, http.StatusOK)
	if got := decode[ArticleResponse](t, w); got.Status != "review" {
		t.Errorf("status = %q, want review", got.Status)
	}
	expectStatus(t, f.admin(t, http.MethodPatch, path, map[string]any{"status": "archived"}), http.StatusBadRequest)

	// Without a workflow base URL the calls succeed in development mode.
	w = f.admin(t, http.MethodPost, path+"/regenerate", map[string]any{"feedback": "More sources please"})
	expectStatus(t, w, http.StatusOK)
	if res := decode[workflow.ActionResult](t, w); !res.Success || !res.DevelopmentMode {
		t.Errorf("regenerate = %+v", res)
	}
	w = f.admin(t, http.MethodPost, path+"/publish", nil)
	expectStatus(t, w, http.StatusOK)

	got := decode[ArticleResponse](t, f.admin(t, http.MethodGet, path, nil))
	if len(got.FeedbackHistory) != 1 || got.FeedbackHistory[0].Text != "More sources please" {
		t.Errorf("feedback = %+v", got.FeedbackHistory)
	}

	expectStatus(t, f.admin(t, http.MethodPost, path+"/regenerate", map[string]any{"feedback": " "}), http.StatusBadRequest)
	expectStatus(t, f.admin(t, http.MethodGet, "/api/articles/"+uuid.NewString(), nil), http.StatusNotFound)
}

// --- Administration ---

func TestHandler_AdminSites(t *testing.T) {
	f := newFixture(t, defaultConfig())

	w := f.admin(t, http.MethodPost, "/api/admin/sites", map[string]any{
		"name": "Whisky Magazine", "slug": "whisky", "wp_url": "https://whisky.example.com",
	})
	expectStatus(t, w, http.StatusCreated)
	created := decode[SiteResponse](t, w)
	if !created.IsActive || created.WPURL != "https://whisky.example.com" {
		t.Errorf("created = %+v", created)
	}

	expectStatus(t, f.admin(t, http.MethodPost, "/api/admin/sites", map[string]any{"name": "Dup", "slug": "whisky"}), http.StatusBadRequest)
	expectStatus(t, f.admin(t, http.MethodPost, "/api/admin/sites", map[string]any{"name": "No slug"}), http.StatusBadRequest)

	list := decode[SitesResponse](t, f.admin(t, http.MethodGet, "/api/admin/sites", nil))
	if list.Count != 1 || list.Sites[0].Slug != "whisky" {
		t.Errorf("list = %+v", list)
	}
}

func TestHandler_AdminUsers(t *testing.T) {
	f := newFixture(t, defaultConfig())

	w := f.admin(t, http.MethodPost, "/api/admin/users", map[string]any{
		"firebase_uid": "uid-1", "email": "a@example.com", "display_name": "A",
	})
	expectStatus(t, w, http.StatusOK)
	u := decode[UserResponse](t, w)
	if u.Role != "user" {
		t.Errorf("role = %q, want user", u.Role)
	}

	w = f.admin(t, http.MethodPatch, "/api/admin/users/"+u.ID, map[string]any{"role": "super_admin"})
	expectStatus(t, w, http.StatusOK)
	if got := decode[UserResponse](t, w); got.Role != "super_admin" {
		t.Errorf("role = %q", got.Role)
	}
	expectStatus(t, f.admin(t, http.MethodPatch, "/api/admin/users/"+u.ID, map[string]any{"role": "owner"}), http.StatusBadRequest)

	// A repeated upsert refreshes details but keeps the role.
	w = f.admin(t, http.MethodPost, "/api/admin/users", map[string]any{
		"firebase_uid": "uid-1", "email": "new@example.com",
	})
	expectStatus(t, w, http.StatusOK)
	if got := decode[UserResponse](t, w); got.Role != "super_admin" || got.Email != "new@example.com" {
		t.Errorf("upserted = %+v", got)
	}

	list := decode[UsersResponse](t, f.admin(t, http.MethodGet, "/api/admin/users", nil))
	if list.Count != 1 {
		t.Errorf("count = %d, want 1", list.Count)
	}

	expectStatus(t, f.admin(t, http.MethodDelete, "/api/admin/users/"+u.ID, nil), http.StatusOK)
	expectStatus(t, f.admin(t, http.MethodDelete, "/api/admin/users/"+u.ID, nil), http.StatusNotFound)
	expectStatus(t, f.admin(t, http.MethodPost, "/api/admin/users", map[string]any{"email": "x@example.com"}), http.StatusBadRequest)
}
