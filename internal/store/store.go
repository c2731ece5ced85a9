// Package store defines the storage port: one typed repository per entity
// and the error values every implementation must return.
package store

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"

	"github.com/bestsmilejp/ai-creative-compass-studio/internal/domain"
)

var (
	// ErrNotFound is returned when no row matches.
	ErrNotFound = errors.New("store: not found")

	// ErrUniqueViolation is returned when a write violates a uniqueness
	// constraint (idempotency key, active job per post, slug, firebase uid).
	ErrUniqueViolation = errors.New("store: unique constraint violation")

	// ErrStatusChanged is returned by guarded job writes when the row exists
	// but no longer has the expected status.
	ErrStatusChanged = errors.New("store: job status changed")
)

// JobFilter narrows ListJobs. Zero values mean "no filter".
type JobFilter struct {
	SiteID uuid.UUID
	Status domain.JobStatus
	Limit  int
}

// KeywordFilter narrows ListKeywords.
type KeywordFilter struct {
	ActiveOnly bool
	Limit      int
}

// DueSchedule is a schedule that should run now, joined with its site.
type DueSchedule struct {
	Schedule domain.Schedule
	Site     domain.Site
}

type SiteRepository interface {
	GetSite(ctx context.Context, id uuid.UUID) (domain.Site, error)
	ListSites(ctx context.Context) ([]domain.Site, error)
	InsertSite(ctx context.Context, site domain.Site) error
	UpdateSite(ctx context.Context, site domain.Site) error
	DeleteSite(ctx context.Context, id uuid.UUID) error
	// SlugTaken reports whether a site other than exclude uses slug.
	SlugTaken(ctx context.Context, slug string, exclude uuid.UUID) (bool, error)
}

type JobRepository interface {
	GetJob(ctx context.Context, id uuid.UUID) (domain.ArticleJob, error)
	FindJobByIdempotencyKey(ctx context.Context, key string) (domain.ArticleJob, error)
	// FindActiveJob returns the pending or processing job for (site, post).
	FindActiveJob(ctx context.Context, siteID uuid.UUID, wpPostID int64) (domain.ArticleJob, error)
	// ListJobs returns jobs newest first.
	ListJobs(ctx context.Context, filter JobFilter) ([]domain.ArticleJob, error)
	// ListStaleJobs returns processing jobs started before olderThan, oldest first.
	ListStaleJobs(ctx context.Context, olderThan time.Time, limit int) ([]domain.ArticleJob, error)
	InsertJob(ctx context.Context, job domain.ArticleJob) error
	// UpdateJob writes job only while the stored status is still from.
	UpdateJob(ctx context.Context, job domain.ArticleJob, from domain.JobStatus) error
	// DeleteJob removes the job only while the stored status is still from.
	DeleteJob(ctx context.Context, id uuid.UUID, from domain.JobStatus) error
}

type ScheduleRepository interface {
	GetSchedule(ctx context.Context, siteID uuid.UUID) (domain.Schedule, error)
	InsertSchedule(ctx context.Context, s domain.Schedule) error
	UpdateSchedule(ctx context.Context, s domain.Schedule) error
	// ListDueSchedules returns enabled schedules with next_run_at <= now
	// whose site is active.
	ListDueSchedules(ctx context.Context, now time.Time) ([]DueSchedule, error)
}

type KeywordRepository interface {
	// ListKeywords returns keywords by priority, highest first.
	ListKeywords(ctx context.Context, siteID uuid.UUID, filter KeywordFilter) ([]domain.Keyword, error)
	GetKeyword(ctx context.Context, siteID, id uuid.UUID) (domain.Keyword, error)
	// ReplaceKeywords deletes every keyword of the site and inserts kws.
	ReplaceKeywords(ctx context.Context, siteID uuid.UUID, kws []domain.Keyword) error
	InsertKeyword(ctx context.Context, k domain.Keyword) error
	UpdateKeyword(ctx context.Context, k domain.Keyword) error
	// MaxKeywordPriority returns 0 for a site without keywords.
	MaxKeywordPriority(ctx context.Context, siteID uuid.UUID) (int, error)
}

type ArticleRepository interface {
	GetArticle(ctx context.Context, id uuid.UUID) (domain.Article, error)
	// ListArticles returns the site's articles newest first.
	ListArticles(ctx context.Context, siteID uuid.UUID, limit int) ([]domain.Article, error)
	InsertArticle(ctx context.Context, a domain.Article) error
	UpdateArticle(ctx context.Context, a domain.Article) error
}

type UserRepository interface {
	ListUsers(ctx context.Context) ([]domain.PlatformUser, error)
	GetUser(ctx context.Context, id uuid.UUID) (domain.PlatformUser, error)
	// UpsertUser inserts u or, if its firebase uid exists, updates email and
	// display name. The stored row is returned.
	UpsertUser(ctx context.Context, u domain.PlatformUser) (domain.PlatformUser, error)
	UpdateUser(ctx context.Context, u domain.PlatformUser) error
	DeleteUser(ctx context.Context, id uuid.UUID) error
}

// Store is the full storage port selected at startup.
type Store interface {
	SiteRepository
	JobRepository
	ScheduleRepository
	KeywordRepository
	ArticleRepository
	UserRepository
	Ping(ctx context.Context) error
}
