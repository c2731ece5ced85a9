package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Site is a managed content destination. Optional text columns use the
// empty string for "not set".
type Site struct {
	ID            uuid.UUID
	Name          string
	Slug          string
	Description   string
	SystemPrompt  string
	WPURL         string
	WPUsername    string
	WPAppPassword string
	N8NWebhookURL string
	Active        bool
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// NewSite validates the required fields and returns an active site.
func NewSite(name, slug string, now time.Time) (Site, error) {
	name, slug = strings.TrimSpace(name), strings.TrimSpace(slug)
	if name == "" || slug == "" {
		return Site{}, Validationf("name and slug are required")
	}
	return Site{
		ID:        uuid.New(),
		Name:      name,
		Slug:      slug,
		Active:    true,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// SiteUpdate is a partial update. Nil fields are left unchanged; an empty
// string clears an optional field.
type SiteUpdate struct {
	Name          *string
	Slug          *string
	Description   *string
	SystemPrompt  *string
	WPURL         *string
	WPUsername    *string
	WPAppPassword *string
	N8NWebhookURL *string
	Active        *bool
}

// Apply validates u and copies the set fields into s.
func (s *Site) Apply(u SiteUpdate, now time.Time) error {
	if u.Name != nil && strings.TrimSpace(*u.Name) == "" {
		return Validationf("name cannot be empty")
	}
	if u.Slug != nil && strings.TrimSpace(*u.Slug) == "" {
		return Validationf("slug cannot be empty")
	}

	setString(&s.Name, u.Name)
	setString(&s.Slug, u.Slug)
	setString(&s.Description, u.Description)
	setString(&s.SystemPrompt, u.SystemPrompt)
	setString(&s.WPURL, u.WPURL)
	setString(&s.WPUsername, u.WPUsername)
	setString(&s.WPAppPassword, u.WPAppPassword)
	setString(&s.N8NWebhookURL, u.N8NWebhookURL)
	if u.Active != nil {
		s.Active = *u.Active
	}
	s.UpdatedAt = now
	return nil
}

func setString(dst *string, v *string) {
	if v != nil {
		*dst = strings.TrimSpace(*v)
	}
}
