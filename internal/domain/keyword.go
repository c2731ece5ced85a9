package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

type Keyword struct {
	ID         uuid.UUID
	SiteID     uuid.UUID
	Keyword    string
	Priority   int
	Active     bool
	UseCount   int
	LastUsedAt *time.Time
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// KeywordInput is one entry of a replace-all request.
type KeywordInput struct {
	Keyword  string
	Priority *int
	Active   *bool
}

// NewKeyword trims text and rejects empty keywords.
func NewKeyword(siteID uuid.UUID, text string, priority int, now time.Time) (Keyword, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return Keyword{}, Validationf("keyword is required")
	}
	return Keyword{
		ID:        uuid.New(),
		SiteID:    siteID,
		Keyword:   text,
		Priority:  priority,
		Active:    true,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// BuildKeywordList turns a replace-all request into keywords. Entries without
// a priority are ranked by position, first entry highest.
func BuildKeywordList(siteID uuid.UUID, inputs []KeywordInput, now time.Time) ([]Keyword, error) {
	out := make([]Keyword, 0, len(inputs))
	for i, in := range inputs {
		priority := len(inputs) - i
		if in.Priority != nil {
			priority = *in.Priority
		}
		k, err := NewKeyword(siteID, in.Keyword, priority, now)
		if err != nil {
			return nil, Validationf("keyword %d: keyword is required", i)
		}
		if in.Active != nil {
			k.Active = *in.Active
		}
		out = append(out, k)
	}
	return out, nil
}

// MarkUsed records one use of the keyword by the workflow engine.
func (k *Keyword) MarkUsed(now time.Time) {
	k.UseCount++
	k.LastUsedAt = timePtr(now)
	k.UpdatedAt = now
}
