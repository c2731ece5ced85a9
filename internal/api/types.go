package api

import (
	"encoding/json"
	"time"

	"github.com/bestsmilejp/ai-creative-compass-studio/internal/domain"
	"github.com/bestsmilejp/ai-creative-compass-studio/internal/store"
)

// Entities are rendered with snake_case keys, the way dashboard and workflow
// clients read database rows. Envelope keys stay camelCase.

type JobResponse struct {
	ID             string          `json:"id"`
	SiteID         string          `json:"site_id"`
	WPPostID       *int64          `json:"wp_post_id"`
	IdempotencyKey *string         `json:"idempotency_key"`
	Status         string          `json:"status"`
	ResultData     json.RawMessage `json:"result_data"`
	ErrorMessage   *string         `json:"error_message"`
	StartedAt      *string         `json:"started_at"`
	CompletedAt    *string         `json:"completed_at"`
	CreatedAt      string          `json:"created_at"`
	UpdatedAt      string          `json:"updated_at"`
}

func jobResponse(j domain.ArticleJob) JobResponse {
	resp := JobResponse{
		ID:           j.ID.String(),
		SiteID:       j.SiteID.String(),
		WPPostID:     j.WPPostID,
		Status:       string(j.Status),
		ResultData:   j.ResultData,
		ErrorMessage: j.ErrorMessage,
		StartedAt:    formatTimePtr(j.StartedAt),
		CompletedAt:  formatTimePtr(j.CompletedAt),
		CreatedAt:    formatTime(j.CreatedAt),
		UpdatedAt:    formatTime(j.UpdatedAt),
	}
	if j.IdempotencyKey != "" {
		key := j.IdempotencyKey
		resp.IdempotencyKey = &key
	}
	if len(resp.ResultData) == 0 {
		resp.ResultData = json.RawMessage("null")
	}
	return resp
}

func jobResponses(jobs []domain.ArticleJob) []JobResponse {
	out := make([]JobResponse, len(jobs))
	for i, j := range jobs {
		out[i] = jobResponse(j)
	}
	return out
}

// SiteResponse never carries the WordPress application password.
type SiteResponse struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	Slug          string `json:"slug"`
	Description   string `json:"description"`
	SystemPrompt  string `json:"system_prompt"`
	WPURL         string `json:"wp_url"`
	WPUsername    string `json:"wp_username"`
	HasWPPassword bool   `json:"has_wp_app_password"`
	N8NWebhookURL string `json:"n8n_webhook_url"`
	IsActive      bool   `json:"is_active"`
	CreatedAt     string `json:"created_at"`
	UpdatedAt     string `json:"updated_at"`
}

func siteResponse(s domain.Site) SiteResponse {
	return SiteResponse{
		ID:            s.ID.String(),
		Name:          s.Name,
		Slug:          s.Slug,
		Description:   s.Description,
		SystemPrompt:  s.SystemPrompt,
		WPURL:         s.WPURL,
		WPUsername:    s.WPUsername,
		HasWPPassword: s.WPAppPassword != "",
		N8NWebhookURL: s.N8NWebhookURL,
		IsActive:      s.Active,
		CreatedAt:     formatTime(s.CreatedAt),
		UpdatedAt:     formatTime(s.UpdatedAt),
	}
}

// SiteUpdateRequest is a partial site update; absent keys are left alone.
type SiteUpdateRequest struct {
	Name          *string `json:"name"`
	Slug          *string `json:"slug"`
	Description   *string `json:"description"`
	SystemPrompt  *string `json:"system_prompt"`
	WPURL         *string `json:"wp_url"`
	WPUsername    *string `json:"wp_username"`
	WPAppPassword *string `json:"wp_app_password"`
	N8NWebhookURL *string `json:"n8n_webhook_url"`
	IsActive      *bool   `json:"is_active"`
}

func (r SiteUpdateRequest) toDomain() domain.SiteUpdate {
	return domain.SiteUpdate{
		Name:          r.Name,
		Slug:          r.Slug,
		Description:   r.Description,
		SystemPrompt:  r.SystemPrompt,
		WPURL:         r.WPURL,
		WPUsername:    r.WPUsername,
		WPAppPassword: r.WPAppPassword,
		N8NWebhookURL: r.N8NWebhookURL,
		Active:        r.IsActive,
	}
}

type ScheduleResponse struct {
	ID                  string  `json:"id"`
	SiteID              string  `json:"site_id"`
	IsEnabled           bool    `json:"is_enabled"`
	FrequencyType       string  `json:"frequency_type"`
	TimeOfDay           string  `json:"time_of_day"`
	DaysOfWeek          []int   `json:"days_of_week"`
	CustomIntervalHours *int    `json:"custom_interval_hours"`
	ArticlesPerRun      int     `json:"articles_per_run"`
	LastRunAt           *string `json:"last_run_at"`
	NextRunAt           *string `json:"next_run_at"`
	CreatedAt           string  `json:"created_at"`
	UpdatedAt           string  `json:"updated_at"`
}

func scheduleResponse(s domain.Schedule) ScheduleResponse {
	days := s.DaysOfWeek
	if days == nil {
		days = []int{}
	}
	return ScheduleResponse{
		ID:                  s.ID.String(),
		SiteID:              s.SiteID.String(),
		IsEnabled:           s.Enabled,
		FrequencyType:       string(s.Frequency),
		TimeOfDay:           s.TimeOfDay.String(),
		DaysOfWeek:          days,
		CustomIntervalHours: s.CustomIntervalHours,
		ArticlesPerRun:      s.ArticlesPerRun,
		LastRunAt:           formatTimePtr(s.LastRunAt),
		NextRunAt:           formatTimePtr(s.NextRunAt),
		CreatedAt:           formatTime(s.CreatedAt),
		UpdatedAt:           formatTime(s.UpdatedAt),
	}
}

type ScheduleRequest struct {
	IsEnabled           bool   `json:"is_enabled"`
	FrequencyType       string `json:"frequency_type"`
	TimeOfDay           string `json:"time_of_day"`
	DaysOfWeek          []int  `json:"days_of_week"`
	CustomIntervalHours *int   `json:"custom_interval_hours"`
	ArticlesPerRun      int    `json:"articles_per_run"`
}

// DueSite is the site block of a due schedule. It includes the WordPress
// credentials the workflow needs to publish.
type DueSite struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	Slug          string `json:"slug"`
	WPURL         string `json:"wp_url"`
	WPUsername    string `json:"wp_username"`
	WPAppPassword string `json:"wp_app_password"`
	SystemPrompt  string `json:"system_prompt"`
	IsActive      bool   `json:"is_active"`
}

type DueScheduleResponse struct {
	ScheduleResponse
	Sites DueSite `json:"sites"`
}

func dueScheduleResponses(due []store.DueSchedule) []DueScheduleResponse {
	out := make([]DueScheduleResponse, len(due))
	for i, d := range due {
		out[i] = DueScheduleResponse{
			ScheduleResponse: scheduleResponse(d.Schedule),
			Sites: DueSite{
				ID:            d.Site.ID.String(),
				Name:          d.Site.Name,
				Slug:          d.Site.Slug,
				WPURL:         d.Site.WPURL,
				WPUsername:    d.Site.WPUsername,
				WPAppPassword: d.Site.WPAppPassword,
				SystemPrompt:  d.Site.SystemPrompt,
				IsActive:      d.Site.Active,
			},
		}
	}
	return out
}

type KeywordResponse struct {
	ID         string  `json:"id"`
	SiteID     string  `json:"site_id"`
	Keyword    string  `json:"keyword"`
	Priority   int     `json:"priority"`
	IsActive   bool    `json:"is_active"`
	UseCount   int     `json:"use_count"`
	LastUsedAt *string `json:"last_used_at"`
	CreatedAt  string  `json:"created_at"`
	UpdatedAt  string  `json:"updated_at"`
}

func keywordResponses(kws []domain.Keyword) []KeywordResponse {
	out := make([]KeywordResponse, len(kws))
	for i, k := range kws {
		out[i] = keywordResponse(k)
	}
	return out
}

func keywordResponse(k domain.Keyword) KeywordResponse {
	return KeywordResponse{
		ID:         k.ID.String(),
		SiteID:     k.SiteID.String(),
		Keyword:    k.Keyword,
		Priority:   k.Priority,
		IsActive:   k.Active,
		UseCount:   k.UseCount,
		LastUsedAt: formatTimePtr(k.LastUsedAt),
		CreatedAt:  formatTime(k.CreatedAt),
		UpdatedAt:  formatTime(k.UpdatedAt),
	}
}

type KeywordRequest struct {
	Keyword  string `json:"keyword"`
	Priority *int   `json:"priority"`
	IsActive *bool  `json:"is_active"`
}

type ArticleResponse struct {
	ID              string                `json:"id"`
	SiteID          string                `json:"site_id"`
	Title           string                `json:"title"`
	ContentHTML     string                `json:"content_html"`
	Status          string                `json:"status"`
	SourceData      json.RawMessage       `json:"source_data"`
	FeedbackHistory []domain.FeedbackItem `json:"feedback_history"`
	WPPostID        *int64                `json:"wp_post_id"`
	CreatedAt       string                `json:"created_at"`
	UpdatedAt       string                `json:"updated_at"`
}

func articleResponse(a domain.Article) ArticleResponse {
	resp := ArticleResponse{
		ID:              a.ID.String(),
		SiteID:          a.SiteID.String(),
		Title:           a.Title,
		ContentHTML:     a.ContentHTML,
		Status:          string(a.Status),
		SourceData:      a.SourceData,
		FeedbackHistory: a.FeedbackHistory,
		WPPostID:        a.WPPostID,
		CreatedAt:       formatTime(a.CreatedAt),
		UpdatedAt:       formatTime(a.UpdatedAt),
	}
	if len(resp.SourceData) == 0 {
		resp.SourceData = json.RawMessage("null")
	}
	if resp.FeedbackHistory == nil {
		resp.FeedbackHistory = []domain.FeedbackItem{}
	}
	return resp
}

func articleResponses(as []domain.Article) []ArticleResponse {
	out := make([]ArticleResponse, len(as))
	for i, a := range as {
		out[i] = articleResponse(a)
	}
	return out
}

// ArticleSummary is the short form the workflow uses to avoid repeating
// topics.
type ArticleSummary struct {
	ID        string  `json:"id"`
	Title     string  `json:"title"`
	CreatedAt string  `json:"createdAt"`
	Angle     *string `json:"angle"`
}

func articleSummaries(as []domain.Article) []ArticleSummary {
	out := make([]ArticleSummary, len(as))
	for i, a := range as {
		out[i] = ArticleSummary{ID: a.ID.String(), Title: a.Title, CreatedAt: formatTime(a.CreatedAt)}
		if angle := a.Source().Angle; angle != "" {
			out[i].Angle = &angle
		}
	}
	return out
}

type UserResponse struct {
	ID          string `json:"id"`
	FirebaseUID string `json:"firebase_uid"`
	Email       string `json:"email"`
	DisplayName string `json:"display_name"`
	Role        string `json:"role"`
	CreatedAt   string `json:"created_at"`
	UpdatedAt   string `json:"updated_at"`
}

func userResponse(u domain.PlatformUser) UserResponse {
	return UserResponse{
		ID:          u.ID.String(),
		FirebaseUID: u.FirebaseUID,
		Email:       u.Email,
		DisplayName: u.DisplayName,
		Role:        string(u.Role),
		CreatedAt:   formatTime(u.CreatedAt),
		UpdatedAt:   formatTime(u.UpdatedAt),
	}
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Outcome string `json:"outcome,omitempty"`
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

func formatTimePtr(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := formatTime(*t)
	return &s
}
