package workflow

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/bestsmilejp/ai-creative-compass-studio/internal/circuitbreaker"
	"github.com/bestsmilejp/ai-creative-compass-studio/internal/testutil"
)

func TestSend_SignsAndDecodesReply(t *testing.T) {
	var gotHeaders http.Header
	var gotBody []byte

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotHeaders = r.Header
		gotBody, _ = io.ReadAll(r.Body)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"queued": 2}`))
	}))
	defer server.Close()

	client := NewClient("", "my-secret", 5*time.Second)
	resp, err := client.Send(context.Background(), server.URL, ActionRegenerate, map[string]string{"hello": "world"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.StatusCode != 200 {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}
	if string(resp.Body) != `{"queued": 2}` {
		t.Errorf("body = %s", resp.Body)
	}

	if ct := gotHeaders.Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q, want application/json", ct)
	}
	if a := gotHeaders.Get(HeaderAction); a != ActionRegenerate {
		t.Errorf("%s = %q", HeaderAction, a)
	}
	if _, err := uuid.Parse(gotHeaders.Get(HeaderDeliveryID)); err != nil {
		t.Errorf("%s is not a uuid: %v", HeaderDeliveryID, err)
	}

	mac := hmac.New(sha256.New, []byte("my-secret"))
	mac.Write(gotBody)
	want := hex.EncodeToString(mac.Sum(nil))
	if got := gotHeaders.Get(HeaderSignature); got != want {
		t.Errorf("signature = %q, want %q", got, want)
	}
}

func TestSend_NoSecretNoSignature(t *testing.T) {
	var sig string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sig = r.Header.Get(HeaderSignature)
	}))
	defer server.Close()

	if _, err := NewClient("", "", 0).Send(context.Background(), server.URL, ActionRegenerate, struct{}{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sig != "" {
		t.Errorf("signature header set without a secret: %q", sig)
	}
}

func TestSend_ToleratesEmptyAndNonJSONReplies(t *testing.T) {
	for _, reply := range []string{"", "   ", "Workflow was started"} {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(reply))
		}))

		resp, err := NewClient("", "", time.Second).Send(context.Background(), server.URL, ActionRegenerate, struct{}{})
		server.Close()
		if err != nil {
			t.Fatalf("reply %q: unexpected error: %v", reply, err)
		}
		if resp.Body != nil {
			t.Errorf("reply %q: body = %s, want nil", reply, resp.Body)
		}
	}
}

func TestSend_Non2xxIsStatusError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte("webhook not registered"))
	}))
	defer server.Close()

	_, err := NewClient("", "", time.Second).Send(context.Background(), server.URL, ActionRegenerate, struct{}{})

	var se *StatusError
	if !errors.As(err, &se) {
		t.Fatalf("expected *StatusError, got %v", err)
	}
	if se.StatusCode != 404 || se.Body != "webhook not registered" {
		t.Errorf("unexpected status error: %+v", se)
	}
}

func TestSend_ConnectionError(t *testing.T) {
	_, err := NewClient("", "", time.Second).Send(context.Background(), "http://127.0.0.1:1", ActionRegenerate, struct{}{})
	if err == nil {
		t.Fatal("expected connection error")
	}
}

func TestSend_CircuitOpensAfterFailures(t *testing.T) {
	calls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	client := NewClient("", "", time.Second).WithCircuitBreaker(circuitbreaker.New(2, time.Hour))
	for i := 0; i < 3; i++ {
		client.Send(context.Background(), server.URL, ActionScheduledRun, struct{}{})
	}

	if calls != 2 {
		t.Errorf("server calls = %d, want 2", calls)
	}
	_, err := client.Send(context.Background(), server.URL, ActionScheduledRun, struct{}{})
	if !errors.Is(err, circuitbreaker.ErrCircuitOpen) {
		t.Errorf("expected ErrCircuitOpen, got %v", err)
	}
}

func TestArticleActions_DevelopmentMode(t *testing.T) {
	client := NewClient("", "", time.Second)

	res, err := client.RegenerateArticle(context.Background(), uuid.New(), "shorter")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.Success || !res.DevelopmentMode {
		t.Errorf("unexpected result: %+v", res)
	}
}

func TestArticleActions_Paths(t *testing.T) {
	var paths []string
	var payloads []ArticlePayload
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		paths = append(paths, r.URL.Path)
		var p ArticlePayload
		json.NewDecoder(r.Body).Decode(&p)
		payloads = append(payloads, p)
		if r.URL.Path == "/hooks/publish" {
			w.Write([]byte(`{"message":"Published to WordPress"}`))
		}
	}))
	defer server.Close()

	client := NewClient(server.URL+"/hooks/", "", time.Second)
	id := uuid.New()

	res, err := client.RegenerateArticle(context.Background(), id, "add a summary")
	if err != nil {
		t.Fatalf("regenerate: %v", err)
	}
	if res.Message != "Regeneration triggered successfully" {
		t.Errorf("regenerate message = %q", res.Message)
	}

	res, err = client.PublishArticle(context.Background(), id)
	if err != nil {
		t.Fatalf("publish: %v", err)
	}
	if res.Message != "Published to WordPress" {
		t.Errorf("publish message = %q", res.Message)
	}

	if len(paths) != 2 || paths[0] != "/hooks/regenerate" || paths[1] != "/hooks/publish" {
		t.Errorf("paths = %v", paths)
	}
	if payloads[0].ArticleID != id.String() || payloads[0].Feedback != "add a summary" {
		t.Errorf("regenerate payload = %+v", payloads[0])
	}
}

func TestNewRegeneratePayload(t *testing.T) {
	site := testutil.Site("health", "https://n8n.example.com/hook")
	site.SystemPrompt = ""
	now := time.Date(2024, 1, 10, 10, 0, 0, 0, time.UTC)

	p := NewRegeneratePayload(site, []int64{12, 34}, now)

	if p.Action != "regenerate" || p.SiteSlug != "health" {
		t.Errorf("unexpected payload: %+v", p)
	}
	if p.SystemPrompt != nil {
		t.Errorf("empty system prompt should be null, got %q", *p.SystemPrompt)
	}
	if len(p.Posts) != 2 || p.Posts[1].Link != "https://health.example.com?p=34" {
		t.Errorf("posts = %+v", p.Posts)
	}
	if p.TriggeredAt != "2024-01-10T10:00:00Z" {
		t.Errorf("triggered_at = %q", p.TriggeredAt)
	}
}

func TestVerifySignature(t *testing.T) {
	body := []byte(`{"action":"regenerate"}`)
	sig := computeSignature("secret", body)

	if !VerifySignature("secret", body, sig) {
		t.Error("valid signature rejected")
	}
	if VerifySignature("other", body, sig) {
		t.Error("wrong secret accepted")
	}
	if VerifySignature("secret", []byte(`{"action":"publish"}`), sig) {
		t.Error("tampered body accepted")
	}
}
