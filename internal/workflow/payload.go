package workflow

import (
	"fmt"
	"strings"
	"time"

	"github.com/bestsmilejp/ai-creative-compass-studio/internal/domain"
)

// Webhook actions, sent in the payload and the X-Compass-Action header.
const (
	ActionRegenerate        = "regenerate"
	ActionRegenerateArticle = "regenerate_article"
	ActionPublishArticle    = "publish_article"
	ActionScheduledRun      = "scheduled_run"
)

// PostRef identifies one WordPress post in a regeneration request. Title,
// slug and status are left for the workflow to fill in.
type PostRef struct {
	WPPostID int64  `json:"wp_post_id"`
	Title    string `json:"title"`
	Slug     string `json:"slug"`
	Status   string `json:"status"`
	Link     string `json:"link"`
}

// RegeneratePayload asks the site's workflow to rewrite existing posts.
type RegeneratePayload struct {
	Action       string    `json:"action"`
	SiteID       string    `json:"site_id"`
	SiteName     string    `json:"site_name"`
	SiteSlug     string    `json:"site_slug"`
	WPURL        string    `json:"wp_url"`
	SystemPrompt *string   `json:"system_prompt"`
	Posts        []PostRef `json:"posts"`
	TriggeredAt  string    `json:"triggered_at"`
}

func NewRegeneratePayload(site domain.Site, postIDs []int64, now time.Time) RegeneratePayload {
	posts := make([]PostRef, len(postIDs))
	for i, id := range postIDs {
		posts[i] = PostRef{WPPostID: id, Link: fmt.Sprintf("%s?p=%d", site.WPURL, id)}
	}
	return RegeneratePayload{
		Action:       ActionRegenerate,
		SiteID:       site.ID.String(),
		SiteName:     site.Name,
		SiteSlug:     site.Slug,
		WPURL:        site.WPURL,
		SystemPrompt: optional(site.SystemPrompt),
		Posts:        posts,
		TriggeredAt:  now.UTC().Format(time.RFC3339Nano),
	}
}

// ScheduledRunPayload tells the site's workflow that its schedule is due.
type ScheduledRunPayload struct {
	Action         string  `json:"action"`
	SiteID         string  `json:"site_id"`
	SiteName       string  `json:"site_name"`
	SiteSlug       string  `json:"site_slug"`
	WPURL          *string `json:"wp_url"`
	SystemPrompt   *string `json:"system_prompt"`
	ScheduleID     string  `json:"schedule_id"`
	FrequencyType  string  `json:"frequency_type"`
	ArticlesPerRun int     `json:"articles_per_run"`
	ScheduledFor   *string `json:"scheduled_for"`
	TriggeredAt    string  `json:"triggered_at"`
}

func NewScheduledRunPayload(site domain.Site, sc domain.Schedule, now time.Time) ScheduledRunPayload {
	var scheduledFor *string
	if sc.NextRunAt != nil {
		s := sc.NextRunAt.UTC().Format(time.RFC3339)
		scheduledFor = &s
	}
	return ScheduledRunPayload{
		Action:         ActionScheduledRun,
		SiteID:         site.ID.String(),
		SiteName:       site.Name,
		SiteSlug:       site.Slug,
		WPURL:          optional(site.WPURL),
		SystemPrompt:   optional(site.SystemPrompt),
		ScheduleID:     sc.ID.String(),
		FrequencyType:  string(sc.Frequency),
		ArticlesPerRun: sc.ArticlesPerRun,
		ScheduledFor:   scheduledFor,
		TriggeredAt:    now.UTC().Format(time.RFC3339Nano),
	}
}

// ArticlePayload is sent to the global regenerate and publish endpoints.
type ArticlePayload struct {
	ArticleID string `json:"article_id"`
	Feedback  string `json:"feedback,omitempty"`
}

func optional(s string) *string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	return &s
}
