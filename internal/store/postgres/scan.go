package postgres

import (
	"database/sql"
	"encoding/json"

	"github.com/cockroachdb/errors"
	"github.com/lib/pq"

	"github.com/bestsmilejp/ai-creative-compass-studio/internal/domain"
)

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

type siteRow struct {
	s             domain.Site
	description   sql.NullString
	systemPrompt  sql.NullString
	wpURL         sql.NullString
	wpUsername    sql.NullString
	wpAppPassword sql.NullString
	webhookURL    sql.NullString
}

func (r *siteRow) dest() []any {
	return []any{
		&r.s.ID, &r.s.Name, &r.s.Slug, &r.description, &r.systemPrompt,
		&r.wpURL, &r.wpUsername, &r.wpAppPassword, &r.webhookURL,
		&r.s.Active, &r.s.CreatedAt, &r.s.UpdatedAt,
	}
}

func (r *siteRow) site() domain.Site {
	s := r.s
	s.Description = r.description.String
	s.SystemPrompt = r.systemPrompt.String
	s.WPURL = r.wpURL.String
	s.WPUsername = r.wpUsername.String
	s.WPAppPassword = r.wpAppPassword.String
	s.N8NWebhookURL = r.webhookURL.String
	return s
}

func scanSite(row rowScanner) (domain.Site, error) {
	var r siteRow
	if err := row.Scan(r.dest()...); err != nil {
		return domain.Site{}, err
	}
	return r.site(), nil
}

func scanJob(row rowScanner) (domain.ArticleJob, error) {
	var (
		job            domain.ArticleJob
		wpPostID       sql.NullInt64
		idempotencyKey sql.NullString
		status         string
		resultData     []byte
		errorMessage   sql.NullString
		startedAt      sql.NullTime
		completedAt    sql.NullTime
	)
	err := row.Scan(
		&job.ID,
		&job.SiteID,
		&wpPostID,
		&idempotencyKey,
		&status,
		&resultData,
		&errorMessage,
		&startedAt,
		&completedAt,
		&job.CreatedAt,
		&job.UpdatedAt,
	)
	if err != nil {
		return domain.ArticleJob{}, err
	}
	if wpPostID.Valid {
		job.WPPostID = &wpPostID.Int64
	}
	job.IdempotencyKey = idempotencyKey.String
	job.Status = domain.JobStatus(status)
	if len(resultData) > 0 {
		job.ResultData = json.RawMessage(resultData)
	}
	if errorMessage.Valid {
		job.ErrorMessage = &errorMessage.String
	}
	if startedAt.Valid {
		job.StartedAt = &startedAt.Time
	}
	if completedAt.Valid {
		job.CompletedAt = &completedAt.Time
	}
	return job, nil
}

type scheduleRow struct {
	s         domain.Schedule
	frequency string
	timeOfDay string
	days      []int64
	interval  sql.NullInt64
	lastRunAt sql.NullTime
	nextRunAt sql.NullTime
}

func (r *scheduleRow) dest() []any {
	return []any{
		&r.s.ID, &r.s.SiteID, &r.s.Enabled, &r.frequency, &r.timeOfDay,
		pq.Array(&r.days), &r.interval, &r.s.ArticlesPerRun,
		&r.lastRunAt, &r.nextRunAt, &r.s.CreatedAt, &r.s.UpdatedAt,
	}
}

func (r *scheduleRow) schedule() (domain.Schedule, error) {
	s := r.s
	s.Frequency = domain.Frequency(r.frequency)
	tod, err := domain.ParseTimeOfDay(r.timeOfDay)
	if err != nil {
		return domain.Schedule{}, errors.Wrapf(err, "schedule %s", s.ID)
	}
	s.TimeOfDay = tod
	s.DaysOfWeek = make([]int, len(r.days))
	for i, d := range r.days {
		s.DaysOfWeek[i] = int(d)
	}
	if r.interval.Valid {
		h := int(r.interval.Int64)
		s.CustomIntervalHours = &h
	}
	if r.lastRunAt.Valid {
		s.LastRunAt = &r.lastRunAt.Time
	}
	if r.nextRunAt.Valid {
		s.NextRunAt = &r.nextRunAt.Time
	}
	return s, nil
}

func scanSchedule(row rowScanner) (domain.Schedule, error) {
	var r scheduleRow
	if err := row.Scan(r.dest()...); err != nil {
		return domain.Schedule{}, err
	}
	return r.schedule()
}

func scanKeyword(row rowScanner) (domain.Keyword, error) {
	var (
		k          domain.Keyword
		lastUsedAt sql.NullTime
	)
	err := row.Scan(
		&k.ID,
		&k.SiteID,
		&k.Keyword,
		&k.Priority,
		&k.Active,
		&k.UseCount,
		&lastUsedAt,
		&k.CreatedAt,
		&k.UpdatedAt,
	)
	if err != nil {
		return domain.Keyword{}, err
	}
	if lastUsedAt.Valid {
		k.LastUsedAt = &lastUsedAt.Time
	}
	return k, nil
}

func scanArticle(row rowScanner) (domain.Article, error) {
	var (
		a        domain.Article
		status   string
		source   []byte
		feedback []byte
		wpPostID sql.NullInt64
	)
	err := row.Scan(
		&a.ID,
		&a.SiteID,
		&a.Title,
		&a.ContentHTML,
		&status,
		&source,
		&feedback,
		&wpPostID,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		return domain.Article{}, err
	}
	a.Status = domain.ArticleStatus(status)
	if len(source) > 0 {
		a.SourceData = json.RawMessage(source)
	}
	a.FeedbackHistory = []domain.FeedbackItem{}
	if len(feedback) > 0 {
		if err := json.Unmarshal(feedback, &a.FeedbackHistory); err != nil {
			return domain.Article{}, errors.Wrapf(err, "article %s: decode feedback_history", a.ID)
		}
	}
	if wpPostID.Valid {
		a.WPPostID = &wpPostID.Int64
	}
	return a, nil
}

func scanUser(row rowScanner) (domain.PlatformUser, error) {
	var (
		u           domain.PlatformUser
		displayName sql.NullString
		role        string
	)
	err := row.Scan(
		&u.ID,
		&u.FirebaseUID,
		&u.Email,
		&displayName,
		&role,
		&u.CreatedAt,
		&u.UpdatedAt,
	)
	if err != nil {
		return domain.PlatformUser{}, err
	}
	u.DisplayName = displayName.String
	u.Role = domain.PlatformRole(role)
	return u, nil
}

// --- parameters ---

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullInt64(v *int64) any {
	if v == nil {
		return nil
	}
	return *v
}

// nullJSON passes JSON as text; lib/pq would send []byte as bytea.
func nullJSON(raw json.RawMessage) any {
	if len(raw) == 0 {
		return nil
	}
	return string(raw)
}

func days64(days []int) []int64 {
	out := make([]int64, len(days))
	for i, d := range days {
		out[i] = int64(d)
	}
	return out
}
