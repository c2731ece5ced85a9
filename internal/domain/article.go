package domain

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
)

type ArticleStatus string

const (
	ArticleStatusDraft     ArticleStatus = "draft"
	ArticleStatusReview    ArticleStatus = "review"
	ArticleStatusPublished ArticleStatus = "published"
)

func ParseArticleStatus(s string) (ArticleStatus, error) {
	switch st := ArticleStatus(s); st {
	case ArticleStatusDraft, ArticleStatusReview, ArticleStatusPublished:
		return st, nil
	}
	return "", Validationf("invalid article status %q, must be one of: draft, review, published", s)
}

type FeedbackItem struct {
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"created_at"`
}

// ArticleSource is the source_data document written for generated drafts.
type ArticleSource struct {
	Keyword     string    `json:"keyword,omitempty"`
	Angle       string    `json:"angle,omitempty"`
	GeneratedAt time.Time `json:"generated_at"`
}

type Article struct {
	ID              uuid.UUID
	SiteID          uuid.UUID
	Title           string
	ContentHTML     string
	Status          ArticleStatus
	SourceData      json.RawMessage
	FeedbackHistory []FeedbackItem
	WPPostID        *int64
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// NewDraftArticle creates a draft recording the keyword and angle it was
// generated from.
func NewDraftArticle(siteID uuid.UUID, title, keyword, angle string, wpPostID *int64, now time.Time) (Article, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return Article{}, Validationf("title is required")
	}
	src, err := json.Marshal(ArticleSource{
		Keyword:     strings.TrimSpace(keyword),
		Angle:       strings.TrimSpace(angle),
		GeneratedAt: now,
	})
	if err != nil {
		return Article{}, err
	}
	return Article{
		ID:              uuid.New(),
		SiteID:          siteID,
		Title:           title,
		Status:          ArticleStatusDraft,
		SourceData:      src,
		FeedbackHistory: []FeedbackItem{},
		WPPostID:        wpPostID,
		CreatedAt:       now,
		UpdatedAt:       now,
	}, nil
}

// Source decodes SourceData. Articles imported from elsewhere may hold a
// different document shape; those yield a zero ArticleSource.
func (a Article) Source() ArticleSource {
	var src ArticleSource
	if len(a.SourceData) > 0 {
		_ = json.Unmarshal(a.SourceData, &src)
	}
	return src
}

// MatchesKeyword reports whether the title contains kw (case-insensitive) or
// the article was generated from exactly kw.
func (a Article) MatchesKeyword(kw string) bool {
	kw = strings.TrimSpace(kw)
	if kw == "" {
		return true
	}
	if strings.Contains(strings.ToLower(a.Title), strings.ToLower(kw)) {
		return true
	}
	return a.Source().Keyword == kw
}

// AddFeedback appends a regeneration request to the history.
func (a *Article) AddFeedback(text string, now time.Time) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return Validationf("feedback is required")
	}
	a.FeedbackHistory = append(a.FeedbackHistory, FeedbackItem{Text: text, CreatedAt: now})
	a.UpdatedAt = now
	return nil
}
