package postgres

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/bestsmilejp/ai-creative-compass-studio/internal/domain"
	"github.com/bestsmilejp/ai-creative-compass-studio/internal/store"
)

//go:embed schema.sql
var schemaSQL string

// Store implements store.Store using PostgreSQL.
type Store struct {
	db        *sql.DB
	opTimeout time.Duration
}

// New creates a store. A positive opTimeout bounds every statement.
func New(db *sql.DB, opTimeout time.Duration) *Store {
	return &Store{db: db, opTimeout: opTimeout}
}

// Migrate applies the embedded schema. Every statement is idempotent.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schemaSQL); err != nil {
		return errors.Wrap(err, "apply schema")
	}
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	return s.db.PingContext(ctx)
}

func (s *Store) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.opTimeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, s.opTimeout)
}

// --- sites ---

func (s *Store) GetSite(ctx context.Context, id uuid.UUID) (domain.Site, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	site, err := scanSite(s.db.QueryRowContext(ctx, queryGetSite, id))
	return site, mapError(err)
}

func (s *Store) ListSites(ctx context.Context) ([]domain.Site, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	rows, err := s.db.QueryContext(ctx, queryListSites)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.Site
	for rows.Next() {
		site, err := scanSite(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, site)
	}
	return result, rows.Err()
}

func (s *Store) InsertSite(ctx context.Context, site domain.Site) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	_, err := s.db.ExecContext(ctx, queryInsertSite,
		site.ID,
		site.Name,
		site.Slug,
		nullString(site.Description),
		nullString(site.SystemPrompt),
		nullString(site.WPURL),
		nullString(site.WPUsername),
		nullString(site.WPAppPassword),
		nullString(site.N8NWebhookURL),
		site.Active,
		site.CreatedAt,
		site.UpdatedAt,
	)
	return mapError(err)
}

func (s *Store) UpdateSite(ctx context.Context, site domain.Site) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	result, err := s.db.ExecContext(ctx, queryUpdateSite,
		site.ID,
		site.Name,
		site.Slug,
		nullString(site.Description),
		nullString(site.SystemPrompt),
		nullString(site.WPURL),
		nullString(site.WPUsername),
		nullString(site.WPAppPassword),
		nullString(site.N8NWebhookURL),
		site.Active,
		site.UpdatedAt,
	)
	return requireRow(result, err)
}

func (s *Store) DeleteSite(ctx context.Context, id uuid.UUID) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	result, err := s.db.ExecContext(ctx, queryDeleteSite, id)
	return requireRow(result, err)
}

func (s *Store) SlugTaken(ctx context.Context, slug string, exclude uuid.UUID) (bool, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	var taken bool
	err := s.db.QueryRowContext(ctx, querySlugTaken, slug, exclude).Scan(&taken)
	return taken, err
}

// --- jobs ---

func (s *Store) GetJob(ctx context.Context, id uuid.UUID) (domain.ArticleJob, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	job, err := scanJob(s.db.QueryRowContext(ctx, queryGetJob, id))
	return job, mapError(err)
}

func (s *Store) FindJobByIdempotencyKey(ctx context.Context, key string) (domain.ArticleJob, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	job, err := scanJob(s.db.QueryRowContext(ctx, queryFindJobByIdempotencyKey, key))
	return job, mapError(err)
}

func (s *Store) FindActiveJob(ctx context.Context, siteID uuid.UUID, wpPostID int64) (domain.ArticleJob, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	job, err := scanJob(s.db.QueryRowContext(ctx, queryFindActiveJob, siteID, wpPostID))
	return job, mapError(err)
}

func (s *Store) ListJobs(ctx context.Context, f store.JobFilter) ([]domain.ArticleJob, error) {
	var siteID, status, limit any
	if f.SiteID != uuid.Nil {
		siteID = f.SiteID
	}
	if f.Status != "" {
		status = string(f.Status)
	}
	if f.Limit > 0 {
		limit = f.Limit
	}
	return s.queryJobs(ctx, queryListJobs, siteID, status, limit)
}

// ListStaleJobs returns jobs stuck in processing since before olderThan.
// Results are ordered oldest first and limited to maxResults.
func (s *Store) ListStaleJobs(ctx context.Context, olderThan time.Time, maxResults int) ([]domain.ArticleJob, error) {
	return s.queryJobs(ctx, queryListStaleJobs, olderThan, maxResults)
}

func (s *Store) queryJobs(ctx context.Context, query string, args ...any) ([]domain.ArticleJob, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.ArticleJob
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, job)
	}
	return result, rows.Err()
}

// InsertJob inserts a job. Returns store.ErrUniqueViolation when the
// idempotency key is reused or the post already has an active job.
func (s *Store) InsertJob(ctx context.Context, job domain.ArticleJob) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	_, err := s.db.ExecContext(ctx, queryInsertJob,
		job.ID,
		job.SiteID,
		nullInt64(job.WPPostID),
		nullString(job.IdempotencyKey),
		string(job.Status),
		nullJSON(job.ResultData),
		job.ErrorMessage,
		job.StartedAt,
		job.CompletedAt,
		job.CreatedAt,
		job.UpdatedAt,
	)
	return mapError(err)
}

// UpdateJob is a compare-and-set on status so a concurrent writer (the
// reaper or a second workflow callback) cannot overwrite a finished job.
func (s *Store) UpdateJob(ctx context.Context, job domain.ArticleJob, from domain.JobStatus) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	result, err := s.db.ExecContext(ctx, queryUpdateJob,
		job.ID,
		nullInt64(job.WPPostID),
		string(job.Status),
		nullJSON(job.ResultData),
		job.ErrorMessage,
		job.StartedAt,
		job.CompletedAt,
		job.UpdatedAt,
		string(from),
	)
	return s.guardedRow(ctx, job.ID, result, err)
}

func (s *Store) DeleteJob(ctx context.Context, id uuid.UUID, from domain.JobStatus) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	result, err := s.db.ExecContext(ctx, queryDeleteJob, id, string(from))
	return s.guardedRow(ctx, id, result, err)
}

// guardedRow tells a missing job apart from one whose status moved on.
func (s *Store) guardedRow(ctx context.Context, id uuid.UUID, result sql.Result, err error) error {
	err = requireRow(result, err)
	if !errors.Is(err, store.ErrNotFound) {
		return err
	}
	var status string
	if err := s.db.QueryRowContext(ctx, queryJobStatus, id).Scan(&status); err != nil {
		return mapError(err)
	}
	return errors.Wrapf(store.ErrStatusChanged, "job is now %s", status)
}

// --- schedules ---

func (s *Store) GetSchedule(ctx context.Context, siteID uuid.UUID) (domain.Schedule, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	sc, err := scanSchedule(s.db.QueryRowContext(ctx, queryGetSchedule, siteID))
	return sc, mapError(err)
}

func (s *Store) InsertSchedule(ctx context.Context, sc domain.Schedule) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	_, err := s.db.ExecContext(ctx, queryInsertSchedule,
		sc.ID,
		sc.SiteID,
		sc.Enabled,
		string(sc.Frequency),
		sc.TimeOfDay.String(),
		pq.Array(days64(sc.DaysOfWeek)),
		sc.CustomIntervalHours,
		sc.ArticlesPerRun,
		sc.LastRunAt,
		sc.NextRunAt,
		sc.CreatedAt,
		sc.UpdatedAt,
	)
	return mapError(err)
}

func (s *Store) UpdateSchedule(ctx context.Context, sc domain.Schedule) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	result, err := s.db.ExecContext(ctx, queryUpdateSchedule,
		sc.SiteID,
		sc.Enabled,
		string(sc.Frequency),
		sc.TimeOfDay.String(),
		pq.Array(days64(sc.DaysOfWeek)),
		sc.CustomIntervalHours,
		sc.ArticlesPerRun,
		sc.LastRunAt,
		sc.NextRunAt,
		sc.UpdatedAt,
	)
	return requireRow(result, err)
}

func (s *Store) ListDueSchedules(ctx context.Context, now time.Time) ([]store.DueSchedule, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	rows, err := s.db.QueryContext(ctx, queryListDueSchedules, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []store.DueSchedule
	for rows.Next() {
		var (
			due  store.DueSchedule
			sr   scheduleRow
			site siteRow
		)
		dest := append(sr.dest(), site.dest()...)
		if err := rows.Scan(dest...); err != nil {
			return nil, err
		}
		if due.Schedule, err = sr.schedule(); err != nil {
			return nil, err
		}
		due.Site = site.site()
		result = append(result, due)
	}
	return result, rows.Err()
}

// --- keywords ---

func (s *Store) ListKeywords(ctx context.Context, siteID uuid.UUID, f store.KeywordFilter) ([]domain.Keyword, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	var limit any
	if f.Limit > 0 {
		limit = f.Limit
	}
	rows, err := s.db.QueryContext(ctx, queryListKeywords, siteID, f.ActiveOnly, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.Keyword
	for rows.Next() {
		k, err := scanKeyword(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, k)
	}
	return result, rows.Err()
}

func (s *Store) GetKeyword(ctx context.Context, siteID, id uuid.UUID) (domain.Keyword, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	k, err := scanKeyword(s.db.QueryRowContext(ctx, queryGetKeyword, siteID, id))
	return k, mapError(err)
}

// ReplaceKeywords swaps the site's keyword list in one transaction.
func (s *Store) ReplaceKeywords(ctx context.Context, siteID uuid.UUID, kws []domain.Keyword) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, queryDeleteSiteKeywords, siteID); err != nil {
		return err
	}
	for _, k := range kws {
		if _, err := tx.ExecContext(ctx, queryInsertKeyword, keywordArgs(siteID, k)...); err != nil {
			return mapError(err)
		}
	}
	return tx.Commit()
}

func (s *Store) InsertKeyword(ctx context.Context, k domain.Keyword) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	_, err := s.db.ExecContext(ctx, queryInsertKeyword, keywordArgs(k.SiteID, k)...)
	return mapError(err)
}

func (s *Store) UpdateKeyword(ctx context.Context, k domain.Keyword) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	result, err := s.db.ExecContext(ctx, queryUpdateKeyword,
		k.ID,
		k.Keyword,
		k.Priority,
		k.Active,
		k.UseCount,
		k.LastUsedAt,
		k.UpdatedAt,
	)
	return requireRow(result, err)
}

func (s *Store) MaxKeywordPriority(ctx context.Context, siteID uuid.UUID) (int, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	var max int
	err := s.db.QueryRowContext(ctx, queryMaxKeywordPriority, siteID).Scan(&max)
	return max, err
}

func keywordArgs(siteID uuid.UUID, k domain.Keyword) []any {
	return []any{
		k.ID,
		siteID,
		k.Keyword,
		k.Priority,
		k.Active,
		k.UseCount,
		k.LastUsedAt,
		k.CreatedAt,
		k.UpdatedAt,
	}
}

// --- articles ---

func (s *Store) GetArticle(ctx context.Context, id uuid.UUID) (domain.Article, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	a, err := scanArticle(s.db.QueryRowContext(ctx, queryGetArticle, id))
	return a, mapError(err)
}

func (s *Store) ListArticles(ctx context.Context, siteID uuid.UUID, limit int) ([]domain.Article, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	var lim any
	if limit > 0 {
		lim = limit
	}
	rows, err := s.db.QueryContext(ctx, queryListArticles, siteID, lim)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.Article
	for rows.Next() {
		a, err := scanArticle(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, a)
	}
	return result, rows.Err()
}

func (s *Store) InsertArticle(ctx context.Context, a domain.Article) error {
	feedback, err := json.Marshal(feedbackOrEmpty(a.FeedbackHistory))
	if err != nil {
		return err
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	_, err = s.db.ExecContext(ctx, queryInsertArticle,
		a.ID,
		a.SiteID,
		a.Title,
		a.ContentHTML,
		string(a.Status),
		nullJSON(a.SourceData),
		string(feedback),
		nullInt64(a.WPPostID),
		a.CreatedAt,
		a.UpdatedAt,
	)
	return mapError(err)
}

func (s *Store) UpdateArticle(ctx context.Context, a domain.Article) error {
	feedback, err := json.Marshal(feedbackOrEmpty(a.FeedbackHistory))
	if err != nil {
		return err
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	result, err := s.db.ExecContext(ctx, queryUpdateArticle,
		a.ID,
		a.Title,
		a.ContentHTML,
		string(a.Status),
		nullJSON(a.SourceData),
		string(feedback),
		nullInt64(a.WPPostID),
		a.UpdatedAt,
	)
	return requireRow(result, err)
}

func feedbackOrEmpty(items []domain.FeedbackItem) []domain.FeedbackItem {
	if items == nil {
		return []domain.FeedbackItem{}
	}
	return items
}

// --- users ---

func (s *Store) ListUsers(ctx context.Context) ([]domain.PlatformUser, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	rows, err := s.db.QueryContext(ctx, queryListUsers)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.PlatformUser
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, u)
	}
	return result, rows.Err()
}

func (s *Store) GetUser(ctx context.Context, id uuid.UUID) (domain.PlatformUser, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	u, err := scanUser(s.db.QueryRowContext(ctx, queryGetUser, id))
	return u, mapError(err)
}

func (s *Store) UpsertUser(ctx context.Context, u domain.PlatformUser) (domain.PlatformUser, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	stored, err := scanUser(s.db.QueryRowContext(ctx, queryUpsertUser,
		u.ID,
		u.FirebaseUID,
		u.Email,
		nullString(u.DisplayName),
		string(u.Role),
		u.CreatedAt,
		u.UpdatedAt,
	))
	return stored, mapError(err)
}

func (s *Store) UpdateUser(ctx context.Context, u domain.PlatformUser) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	result, err := s.db.ExecContext(ctx, queryUpdateUser,
		u.ID,
		u.Email,
		nullString(u.DisplayName),
		string(u.Role),
		u.UpdatedAt,
	)
	return requireRow(result, err)
}

func (s *Store) DeleteUser(ctx context.Context, id uuid.UUID) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	result, err := s.db.ExecContext(ctx, queryDeleteUser, id)
	return requireRow(result, err)
}

// --- errors ---

// mapError translates driver errors into the storage port's values.
func mapError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, sql.ErrNoRows):
		return store.ErrNotFound
	case isUniqueViolation(err):
		return errors.Mark(err, store.ErrUniqueViolation)
	}
	return err
}

// requireRow maps a zero-row UPDATE/DELETE to store.ErrNotFound.
func requireRow(result sql.Result, err error) error {
	if err != nil {
		return mapError(err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return store.ErrNotFound
	}
	return nil
}

// isUniqueViolation checks for PostgreSQL error code 23505, falling back to
// message matching for wrapped driver errors.
func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	msg := err.Error()
	return strings.Contains(msg, "23505") || strings.Contains(msg, "duplicate key")
}

var _ store.Store = (*Store)(nil)
