package main

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func sign(secret, body string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(body))
	return hex.EncodeToString(mac.Sum(nil))
}

func post(t *testing.T, h http.Handler, body, signature string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(body))
	req.Header.Set("X-Compass-Action", "scheduled_run")
	if signature != "" {
		req.Header.Set("X-Compass-Signature", signature)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHook_Signature(t *testing.T) {
	rc := newReceiver("s3cret")
	h := rc.routes()
	body := `{"action":"scheduled_run"}`

	if rec := post(t, h, body, sign("s3cret", body)); rec.Code != http.StatusOK {
		t.Fatalf("valid signature: status = %d", rec.Code)
	}
	if rec := post(t, h, body, sign("other", body)); rec.Code != http.StatusUnauthorized {
		t.Fatalf("bad signature: status = %d", rec.Code)
	}

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/stats", nil))
	var s stats
	if err := json.NewDecoder(rec.Body).Decode(&s); err != nil {
		t.Fatal(err)
	}
	if s.Count != 2 || s.Rejected != 1 || s.ByAction["scheduled_run"] != 2 {
		t.Errorf("stats = %+v", s)
	}
}

func TestHook_NoSecretAcceptsAll(t *testing.T) {
	h := newReceiver("").routes()
	if rec := post(t, h, "not json", ""); rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
}
