// Package sites implements site administration and the per-site keyword
// list.
package sites

import (
	"context"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/bestsmilejp/ai-creative-compass-studio/internal/domain"
	"github.com/bestsmilejp/ai-creative-compass-studio/internal/store"
)

// Default keyword limit for the workflow engine.
const DefaultKeywordLimit = 10

type Repository interface {
	store.SiteRepository
	store.KeywordRepository
}

type Service struct {
	repo Repository
	now  func() time.Time
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo, now: func() time.Time { return time.Now().UTC() }}
}

// WithClock overrides the time source.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (domain.Site, error) {
	site, err := s.repo.GetSite(ctx, id)
	if err != nil {
		return domain.Site{}, notFound(err, "site")
	}
	return site, nil
}

func (s *Service) List(ctx context.Context) ([]domain.Site, error) {
	sites, err := s.repo.ListSites(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "list sites")
	}
	return sites, nil
}

// CreateRequest is an admin site creation. Active defaults to true.
type CreateRequest struct {
	Name   string
	Slug   string
	Fields domain.SiteUpdate
}

func (s *Service) Create(ctx context.Context, req CreateRequest) (domain.Site, error) {
	now := s.now()
	site, err := domain.NewSite(req.Name, req.Slug, now)
	if err != nil {
		return domain.Site{}, err
	}
	fields := req.Fields
	fields.Name, fields.Slug = nil, nil
	if err := site.Apply(fields, now); err != nil {
		return domain.Site{}, err
	}
	if err := s.checkSlug(ctx, site.Slug, uuid.Nil); err != nil {
		return domain.Site{}, err
	}

	if err := s.repo.InsertSite(ctx, site); err != nil {
		if errors.Is(err, store.ErrUniqueViolation) {
			return domain.Site{}, slugTaken()
		}
		return domain.Site{}, errors.Wrap(err, "insert site")
	}
	log.Info().Str("site_id", site.ID.String()).Str("slug", site.Slug).Msg("sites: created")
	return site, nil
}

// Update applies a partial update. A changed slug must not be used by any
// other site.
func (s *Service) Update(ctx context.Context, id uuid.UUID, u domain.SiteUpdate) (domain.Site, error) {
	site, err := s.Get(ctx, id)
	if err != nil {
		return domain.Site{}, err
	}
	if err := site.Apply(u, s.now()); err != nil {
		return domain.Site{}, err
	}
	if u.Slug != nil {
		if err := s.checkSlug(ctx, site.Slug, id); err != nil {
			return domain.Site{}, err
		}
	}

	if err := s.repo.UpdateSite(ctx, site); err != nil {
		switch {
		case errors.Is(err, store.ErrUniqueViolation):
			return domain.Site{}, slugTaken()
		case errors.Is(err, store.ErrNotFound):
			return domain.Site{}, domain.NotFoundf("site not found")
		}
		return domain.Site{}, errors.Wrap(err, "update site")
	}
	return site, nil
}

// Delete removes the site and everything that belongs to it.
func (s *Service) Delete(ctx context.Context, id uuid.UUID) error {
	if err := s.repo.DeleteSite(ctx, id); err != nil {
		return notFound(err, "site")
	}
	log.Info().Str("site_id", id.String()).Msg("sites: deleted")
	return nil
}

func (s *Service) checkSlug(ctx context.Context, slug string, exclude uuid.UUID) error {
	taken, err := s.repo.SlugTaken(ctx, slug, exclude)
	if err != nil {
		return errors.Wrap(err, "check slug")
	}
	if taken {
		return slugTaken()
	}
	return nil
}

func slugTaken() error {
	return domain.Validationf("slug is already in use")
}

// Keywords returns the site's keywords, highest priority first.
func (s *Service) Keywords(ctx context.Context, siteID uuid.UUID, filter store.KeywordFilter) ([]domain.Keyword, error) {
	kws, err := s.repo.ListKeywords(ctx, siteID, filter)
	if err != nil {
		return nil, errors.Wrap(err, "list keywords")
	}
	return kws, nil
}

// ReplaceKeywords swaps the whole keyword list of a site.
func (s *Service) ReplaceKeywords(ctx context.Context, siteID uuid.UUID, inputs []domain.KeywordInput) ([]domain.Keyword, error) {
	if _, err := s.Get(ctx, siteID); err != nil {
		return nil, err
	}
	kws, err := domain.BuildKeywordList(siteID, inputs, s.now())
	if err != nil {
		return nil, err
	}
	if err := s.repo.ReplaceKeywords(ctx, siteID, kws); err != nil {
		return nil, errors.Wrap(err, "replace keywords")
	}
	return kws, nil
}

// AddKeyword appends one keyword. Without a priority it ranks above every
// existing keyword.
func (s *Service) AddKeyword(ctx context.Context, siteID uuid.UUID, text string, priority *int) (domain.Keyword, error) {
	if strings.TrimSpace(text) == "" {
		return domain.Keyword{}, domain.Validationf("keyword is required")
	}
	if _, err := s.Get(ctx, siteID); err != nil {
		return domain.Keyword{}, err
	}

	p := 0
	if priority != nil {
		p = *priority
	} else {
		highest, err := s.repo.MaxKeywordPriority(ctx, siteID)
		if err != nil {
			return domain.Keyword{}, errors.Wrap(err, "max keyword priority")
		}
		p = highest + 1
	}

	k, err := domain.NewKeyword(siteID, text, p, s.now())
	if err != nil {
		return domain.Keyword{}, err
	}
	if err := s.repo.InsertKeyword(ctx, k); err != nil {
		return domain.Keyword{}, errors.Wrap(err, "insert keyword")
	}
	return k, nil
}

// MarkKeywordUsed increments the use counter of a keyword of the site.
func (s *Service) MarkKeywordUsed(ctx context.Context, siteID, keywordID uuid.UUID) (domain.Keyword, error) {
	k, err := s.repo.GetKeyword(ctx, siteID, keywordID)
	if err != nil {
		return domain.Keyword{}, notFound(err, "keyword")
	}
	k.MarkUsed(s.now())
	if err := s.repo.UpdateKeyword(ctx, k); err != nil {
		return domain.Keyword{}, notFound(err, "keyword")
	}
	return k, nil
}

func notFound(err error, entity string) error {
	if errors.Is(err, store.ErrNotFound) {
		return domain.NotFoundf("%s not found", entity)
	}
	return errors.Wrapf(err, "get %s", entity)
}
