// Package workflow sends signed webhook requests to the n8n workflow engine.
package workflow

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/bestsmilejp/ai-creative-compass-studio/internal/circuitbreaker"
	"github.com/bestsmilejp/ai-creative-compass-studio/internal/metrics"
)

const (
	defaultTimeout  = 30 * time.Second
	maxResponseBody = 1 << 20

	HeaderSignature  = "X-Compass-Signature"
	HeaderAction     = "X-Compass-Action"
	HeaderDeliveryID = "X-Compass-Delivery-ID"
)

// StatusError is returned when the workflow answers with a non-2xx status.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("workflow webhook returned status %d", e.StatusCode)
}

// Response is a successful webhook call. Body holds the decoded JSON reply
// and is nil when the workflow answered with an empty or non-JSON body.
type Response struct {
	StatusCode int
	Body       json.RawMessage
	Duration   time.Duration
}

// ActionResult is the outcome of an article regenerate or publish call.
type ActionResult struct {
	Success         bool   `json:"success"`
	Message         string `json:"message"`
	DevelopmentMode bool   `json:"developmentMode,omitempty"`
}

type Client struct {
	httpClient *http.Client
	baseURL    string
	secret     string
	timeout    time.Duration
	breaker    *circuitbreaker.CircuitBreaker
	metrics    metrics.Sink
}

// NewClient builds a client. baseURL is used for article actions and may be
// empty; secret enables request signing when set.
func NewClient(baseURL, secret string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		httpClient: &http.Client{},
		baseURL:    strings.TrimRight(baseURL, "/"),
		secret:     secret,
		timeout:    timeout,
		metrics:    metrics.NewNoopSink(),
	}
}

// WithMetrics attaches a metrics sink to the client.
func (c *Client) WithMetrics(m metrics.Sink) *Client {
	c.metrics = m
	return c
}

// WithCircuitBreaker attaches a per-URL circuit breaker.
func (c *Client) WithCircuitBreaker(cb *circuitbreaker.CircuitBreaker) *Client {
	c.breaker = cb
	return c
}

// WithHTTPClient replaces the underlying HTTP client.
func (c *Client) WithHTTPClient(hc *http.Client) *Client {
	c.httpClient = hc
	return c
}

// Send posts payload to url. Non-2xx answers return a *StatusError. No
// retries are attempted; the caller decides what to do with a failure.
func (c *Client) Send(ctx context.Context, url, action string, payload any) (Response, error) {
	start := time.Now()

	if err := c.breaker.Allow(url); err != nil {
		c.metrics.CircuitRejected(url)
		return Response{}, errors.Wrapf(err, "webhook %s", action)
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return Response{}, errors.Wrap(err, "marshal")
	}

	ctxTimeout, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctxTimeout, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return Response{}, errors.Wrap(err, "create request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(HeaderAction, action)
	req.Header.Set(HeaderDeliveryID, uuid.NewString())
	if c.secret != "" {
		req.Header.Set(HeaderSignature, computeSignature(c.secret, body))
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.finish(url, action, 0, err, start)
		return Response{Duration: time.Since(start)}, errors.Wrap(err, "send")
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	c.finish(url, action, resp.StatusCode, nil, start)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		log.Warn().Str("action", action).Int("status", resp.StatusCode).Msg("workflow: webhook rejected")
		return Response{StatusCode: resp.StatusCode, Duration: time.Since(start)},
			&StatusError{StatusCode: resp.StatusCode, Body: string(raw)}
	}

	out := Response{StatusCode: resp.StatusCode, Duration: time.Since(start)}
	if trimmed := bytes.TrimSpace(raw); len(trimmed) > 0 && json.Valid(trimmed) {
		out.Body = json.RawMessage(trimmed)
	}
	return out, nil
}

func (c *Client) finish(url, action string, status int, err error, start time.Time) {
	c.metrics.WebhookCompleted(action, metrics.ClassifyStatus(status, err), time.Since(start))
	if err != nil || status >= 500 {
		c.breaker.RecordFailure(url)
		return
	}
	c.breaker.RecordSuccess(url)
}

// RegenerateArticle asks the workflow to rewrite an article with feedback.
func (c *Client) RegenerateArticle(ctx context.Context, articleID uuid.UUID, feedback string) (ActionResult, error) {
	return c.articleAction(ctx, "/regenerate", ActionRegenerateArticle,
		ArticlePayload{ArticleID: articleID.String(), Feedback: feedback},
		"Regeneration triggered successfully")
}

// PublishArticle asks the workflow to push an article to WordPress.
func (c *Client) PublishArticle(ctx context.Context, articleID uuid.UUID) (ActionResult, error) {
	return c.articleAction(ctx, "/publish", ActionPublishArticle,
		ArticlePayload{ArticleID: articleID.String()},
		"Publishing triggered successfully")
}

// articleAction succeeds without a network call when no base URL is
// configured, so the dashboard works against a local setup.
func (c *Client) articleAction(ctx context.Context, path, action string, payload ArticlePayload, fallback string) (ActionResult, error) {
	if c.baseURL == "" {
		log.Warn().Str("action", action).Msg("workflow: N8N_WEBHOOK_BASE_URL not configured, skipping call")
		return ActionResult{Success: true, Message: "Development mode: webhook not configured", DevelopmentMode: true}, nil
	}

	resp, err := c.Send(ctx, c.baseURL+path, action, payload)
	if err != nil {
		return ActionResult{}, err
	}

	result := ActionResult{Success: true, Message: fallback}
	var reply struct {
		Message string `json:"message"`
	}
	if resp.Body != nil && json.Unmarshal(resp.Body, &reply) == nil && reply.Message != "" {
		result.Message = reply.Message
	}
	return result, nil
}

func computeSignature(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature is for webhook receivers to verify incoming requests.
func VerifySignature(secret string, body []byte, signature string) bool {
	expected := computeSignature(secret, body)
	return hmac.Equal([]byte(expected), []byte(signature))
}
