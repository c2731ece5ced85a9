// Command n8n-receiver stands in for the n8n webhook during local runs.
// It records every delivery, checks the X-Compass-Signature header when
// WEBHOOK_SECRET is set and answers like a workflow that accepted the run.
package main

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"sync"
	"time"
)

type delivery struct {
	Timestamp   string          `json:"timestamp"`
	Action      string          `json:"action"`
	DeliveryID  string          `json:"delivery_id"`
	SignatureOK *bool           `json:"signature_ok,omitempty"`
	Body        json.RawMessage `json:"body"`
}

type stats struct {
	Count          int64            `json:"count"`
	Rejected       int64            `json:"rejected"`
	ByAction       map[string]int64 `json:"by_action"`
	LastDeliveries []delivery       `json:"last_deliveries"`
	Since          string           `json:"since"`
}

type receiver struct {
	secret    string
	maxStored int

	mu         sync.Mutex
	count      int64
	rejected   int64
	byAction   map[string]int64
	deliveries []delivery
	since      time.Time
}

func newReceiver(secret string) *receiver {
	return &receiver{
		secret:    secret,
		maxStored: 50,
		byAction:  make(map[string]int64),
		since:     time.Now().UTC(),
	}
}

func main() {
	addr := ":8080"
	if v := os.Getenv("ADDR"); v != "" {
		addr = v
	}
	rcv := newReceiver(os.Getenv("WEBHOOK_SECRET"))

	log.Printf("n8n-receiver listening on %s (signature check: %t)", addr, rcv.secret != "")
	log.Fatal(http.ListenAndServe(addr, rcv.routes()))
}

func (rc *receiver) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /webhook", rc.hook)
	mux.HandleFunc("GET /stats", rc.stats)
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprintln(w, "ok")
	})
	mux.HandleFunc("POST /reset", func(w http.ResponseWriter, _ *http.Request) {
		rc.mu.Lock()
		rc.count, rc.rejected = 0, 0
		rc.byAction = make(map[string]int64)
		rc.deliveries = nil
		rc.since = time.Now().UTC()
		rc.mu.Unlock()
		fmt.Fprintln(w, "reset")
	})
	return mux
}

func (rc *receiver) hook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		http.Error(w, "read failed", http.StatusBadRequest)
		return
	}

	d := delivery{
		Timestamp:  time.Now().UTC().Format(time.RFC3339Nano),
		Action:     r.Header.Get("X-Compass-Action"),
		DeliveryID: r.Header.Get("X-Compass-Delivery-ID"),
		Body:       json.RawMessage(body),
	}
	if !json.Valid(body) {
		d.Body, _ = json.Marshal(string(body))
	}
	if rc.secret != "" {
		ok := verify(rc.secret, body, r.Header.Get("X-Compass-Signature"))
		d.SignatureOK = &ok
	}

	rc.mu.Lock()
	rc.count++
	rc.byAction[d.Action]++
	rc.deliveries = append(rc.deliveries, d)
	if len(rc.deliveries) > rc.maxStored {
		rc.deliveries = rc.deliveries[len(rc.deliveries)-rc.maxStored:]
	}
	rejected := d.SignatureOK != nil && !*d.SignatureOK
	if rejected {
		rc.rejected++
	}
	current := rc.count
	rc.mu.Unlock()

	if rejected {
		log.Printf("delivery #%d (%s) rejected: bad signature", current, d.Action)
		http.Error(w, `{"error":"invalid signature"}`, http.StatusUnauthorized)
		return
	}

	log.Printf("delivery #%d action=%s id=%s: %s", current, d.Action, d.DeliveryID, string(body))
	w.Header().Set("Content-Type", "application/json")
	fmt.Fprintf(w, `{"success":true,"received":%d}`, current)
}

func (rc *receiver) stats(w http.ResponseWriter, _ *http.Request) {
	rc.mu.Lock()
	byAction := make(map[string]int64, len(rc.byAction))
	for k, v := range rc.byAction {
		byAction[k] = v
	}
	s := stats{
		Count:          rc.count,
		Rejected:       rc.rejected,
		ByAction:       byAction,
		LastDeliveries: append([]delivery(nil), rc.deliveries...),
		Since:          rc.since.Format(time.RFC3339),
	}
	rc.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(s)
}

// verify checks a hex HMAC-SHA256 of the raw body.
func verify(secret string, body []byte, signature string) bool {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(signature))
}
