// Package wordpress is a read-only client for the WordPress REST API.
package wordpress

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"golang.org/x/time/rate"

	"github.com/bestsmilejp/ai-creative-compass-studio/internal/circuitbreaker"
	"github.com/bestsmilejp/ai-creative-compass-studio/internal/domain"
	"github.com/bestsmilejp/ai-creative-compass-studio/internal/metrics"
)

const (
	DefaultPerPage = 20
	MaxPerPage     = 100
	maxErrorBody   = 4 << 10
)

// Credentials address one WordPress installation. Username and AppPassword
// are optional; without them only public posts are visible.
type Credentials struct {
	URL         string
	Username    string
	AppPassword string
}

// CredentialsFor extracts the site's WordPress credentials.
func CredentialsFor(site domain.Site) (Credentials, error) {
	if strings.TrimSpace(site.WPURL) == "" {
		return Credentials{}, domain.Validationf("WordPress URL not configured for this site")
	}
	return Credentials{URL: site.WPURL, Username: site.WPUsername, AppPassword: site.WPAppPassword}, nil
}

// NormalizeURL adds an https scheme when missing and a trailing slash.
func NormalizeURL(raw string) string {
	u := strings.TrimSpace(raw)
	if !strings.HasPrefix(u, "http://") && !strings.HasPrefix(u, "https://") {
		u = "https://" + u
	}
	if !strings.HasSuffix(u, "/") {
		u += "/"
	}
	return u
}

type Rendered struct {
	Rendered string `json:"rendered"`
}

// Post is the subset of the wp/v2 post object the dashboard shows.
type Post struct {
	ID            int64           `json:"id"`
	Date          string          `json:"date"`
	Modified      string          `json:"modified"`
	Slug          string          `json:"slug"`
	Status        string          `json:"status"`
	Link          string          `json:"link"`
	Title         Rendered        `json:"title"`
	Excerpt       Rendered        `json:"excerpt"`
	Author        int64           `json:"author"`
	FeaturedMedia int64           `json:"featured_media"`
	Categories    []int64         `json:"categories"`
	Tags          []int64         `json:"tags"`
	Embedded      json.RawMessage `json:"_embedded,omitempty"`
}

// PostsPage is one page of posts plus the pagination headers.
type PostsPage struct {
	Posts      []Post `json:"posts"`
	Total      int    `json:"total"`
	TotalPages int    `json:"totalPages"`
}

// ListOptions mirrors the wp/v2/posts query parameters the dashboard uses.
type ListOptions struct {
	Page       int
	PerPage    int
	Status     string
	Search     string
	Categories []int64
	OrderBy    string
	Order      string
}

func (o ListOptions) query() url.Values {
	if o.Page < 1 {
		o.Page = 1
	}
	if o.PerPage < 1 {
		o.PerPage = DefaultPerPage
	}
	if o.PerPage > MaxPerPage {
		o.PerPage = MaxPerPage
	}
	if o.Status == "" {
		o.Status = "any"
	}
	switch o.OrderBy {
	case "date", "modified", "title":
	default:
		o.OrderBy = "modified"
	}
	if o.Order != "asc" {
		o.Order = "desc"
	}

	q := url.Values{}
	q.Set("page", strconv.Itoa(o.Page))
	q.Set("per_page", strconv.Itoa(o.PerPage))
	q.Set("status", o.Status)
	q.Set("orderby", o.OrderBy)
	q.Set("order", o.Order)
	q.Set("_embed", "1")
	if o.Search != "" {
		q.Set("search", o.Search)
	}
	if len(o.Categories) > 0 {
		ids := make([]string, len(o.Categories))
		for i, c := range o.Categories {
			ids[i] = strconv.FormatInt(c, 10)
		}
		q.Set("categories", strings.Join(ids, ","))
	}
	return q
}

// APIError is a non-2xx answer from WordPress.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("WordPress API error: %d - %s", e.StatusCode, e.Body)
}

// Client talks to any number of WordPress hosts. Requests to one host are
// throttled by a per-host token bucket.
type Client struct {
	httpClient *http.Client
	rps        rate.Limit
	burst      int
	breaker    *circuitbreaker.CircuitBreaker
	metrics    metrics.Sink

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

// NewClient returns a client. rps <= 0 disables throttling.
func NewClient(timeout time.Duration, rps float64) *Client {
	limit := rate.Inf
	burst := 1
	if rps > 0 {
		limit = rate.Limit(rps)
		burst = int(rps)
		if burst < 1 {
			burst = 1
		}
	}
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		rps:        limit,
		burst:      burst,
		metrics:    metrics.NewNoopSink(),
		limiters:   make(map[string]*rate.Limiter),
	}
}

// WithMetrics attaches a metrics sink to the client.
func (c *Client) WithMetrics(m metrics.Sink) *Client {
	c.metrics = m
	return c
}

// WithCircuitBreaker attaches a per-host circuit breaker.
func (c *Client) WithCircuitBreaker(cb *circuitbreaker.CircuitBreaker) *Client {
	c.breaker = cb
	return c
}

// ListPosts fetches one page of posts.
func (c *Client) ListPosts(ctx context.Context, creds Credentials, opts ListOptions) (PostsPage, error) {
	endpoint := NormalizeURL(creds.URL) + "wp-json/wp/v2/posts?" + opts.query().Encode()

	var page PostsPage
	header, err := c.get(ctx, creds, endpoint, &page.Posts)
	if err != nil {
		return PostsPage{}, err
	}
	if page.Posts == nil {
		page.Posts = []Post{}
	}
	page.Total, _ = strconv.Atoi(header.Get("X-WP-Total"))
	page.TotalPages, _ = strconv.Atoi(header.Get("X-WP-TotalPages"))
	return page, nil
}

// GetPost fetches a single post.
func (c *Client) GetPost(ctx context.Context, creds Credentials, id int64) (Post, error) {
	endpoint := fmt.Sprintf("%swp-json/wp/v2/posts/%d?_embed=1", NormalizeURL(creds.URL), id)

	var post Post
	if _, err := c.get(ctx, creds, endpoint, &post); err != nil {
		return Post{}, err
	}
	return post, nil
}

func (c *Client) get(ctx context.Context, creds Credentials, endpoint string, out any) (http.Header, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return nil, domain.Validationf("invalid WordPress URL %q", creds.URL)
	}
	host := u.Host

	if err := c.breaker.Allow(host); err != nil {
		c.metrics.CircuitRejected(host)
		return nil, errors.Wrapf(err, "wordpress %s", host)
	}
	if err := c.limiter(host).Wait(ctx); err != nil {
		return nil, errors.Wrap(err, "wordpress rate limit")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, errors.Wrap(err, "create request")
	}
	req.Header.Set("Accept", "application/json")
	if creds.Username != "" && creds.AppPassword != "" {
		req.SetBasicAuth(creds.Username, creds.AppPassword)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.record(host, 0, err, start)
		return nil, errors.Wrap(err, "wordpress request")
	}
	defer resp.Body.Close()
	c.record(host, resp.StatusCode, nil, start)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, &APIError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return nil, errors.Wrap(err, "decode wordpress response")
	}
	return resp.Header, nil
}

func (c *Client) record(host string, status int, err error, start time.Time) {
	c.metrics.WordPressRequestCompleted(metrics.ClassifyStatus(status, err), time.Since(start))
	if err != nil || status >= 500 {
		c.breaker.RecordFailure(host)
		return
	}
	c.breaker.RecordSuccess(host)
}

func (c *Client) limiter(host string) *rate.Limiter {
	c.mu.Lock()
	defer c.mu.Unlock()
	l, ok := c.limiters[host]
	if !ok {
		l = rate.NewLimiter(c.rps, c.burst)
		c.limiters[host] = l
	}
	return l
}
