// Package testutil provides shared test helpers for compass.
package testutil

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/bestsmilejp/ai-creative-compass-studio/internal/domain"
)

// FakeClock provides deterministic time for testing.
type FakeClock struct {
	mu      sync.Mutex
	current time.Time
}

// NewFakeClock creates a FakeClock set to the given time.
func NewFakeClock(t time.Time) *FakeClock {
	return &FakeClock{current: t}
}

// Now returns the current fake time.
func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

// Advance moves the clock forward by d.
func (c *FakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.current = c.current.Add(d)
}

// Set jumps the clock to t.
func (c *FakeClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.current = t
}

// TestContext returns a context with a 5-second timeout.
// The context is cancelled when the test completes.
func TestContext(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

// Ptr returns a pointer to v.
func Ptr[T any](v T) *T {
	return &v
}

// Site returns an active site with WordPress credentials and a webhook URL
// filled in.
func Site(slug, webhookURL string) domain.Site {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	return domain.Site{
		ID:            uuid.New(),
		Name:          slug,
		Slug:          slug,
		SystemPrompt:  "Write clearly.",
		WPURL:         "https://" + slug + ".example.com",
		WPUsername:    "editor",
		WPAppPassword: "abcd efgh ijkl",
		N8NWebhookURL: webhookURL,
		Active:        true,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}
