// Package articles implements generated-article management and the calls
// that hand articles and WordPress posts back to the workflow engine.
package articles

import (
	"context"
	"encoding/json"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/bestsmilejp/ai-creative-compass-studio/internal/domain"
	"github.com/bestsmilejp/ai-creative-compass-studio/internal/store"
	"github.com/bestsmilejp/ai-creative-compass-studio/internal/workflow"
)

const (
	DefaultSearchLimit = 10
	DefaultListLimit   = 50
	MaxListLimit       = 100
)

type Repository interface {
	store.ArticleRepository
	GetSite(ctx context.Context, id uuid.UUID) (domain.Site, error)
}

// Workflow is the part of the workflow client the service needs.
type Workflow interface {
	Send(ctx context.Context, url, action string, payload any) (workflow.Response, error)
	RegenerateArticle(ctx context.Context, articleID uuid.UUID, feedback string) (workflow.ActionResult, error)
	PublishArticle(ctx context.Context, articleID uuid.UUID) (workflow.ActionResult, error)
}

type Service struct {
	repo     Repository
	workflow Workflow
	now      func() time.Time
}

func NewService(repo Repository, wf Workflow) *Service {
	return &Service{repo: repo, workflow: wf, now: func() time.Time { return time.Now().UTC() }}
}

// WithClock overrides the time source.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

type DraftRequest struct {
	Title    string
	Keyword  string
	Angle    string
	WPPostID *int64
}

// CreateDraft stores a draft written by the workflow engine.
func (s *Service) CreateDraft(ctx context.Context, siteID uuid.UUID, req DraftRequest) (domain.Article, error) {
	if req.WPPostID != nil && *req.WPPostID <= 0 {
		req.WPPostID = nil
	}
	a, err := domain.NewDraftArticle(siteID, req.Title, req.Keyword, req.Angle, req.WPPostID, s.now())
	if err != nil {
		return domain.Article{}, err
	}
	if _, err := s.repo.GetSite(ctx, siteID); err != nil {
		return domain.Article{}, notFound(err, "site")
	}
	if err := s.repo.InsertArticle(ctx, a); err != nil {
		return domain.Article{}, errors.Wrap(err, "insert article")
	}
	return a, nil
}

// Search returns the site's newest articles matching keyword, at most limit
// of them. An empty keyword matches everything.
func (s *Service) Search(ctx context.Context, siteID uuid.UUID, keyword string, limit int) ([]domain.Article, error) {
	if limit <= 0 {
		limit = DefaultSearchLimit
	}
	all, err := s.repo.ListArticles(ctx, siteID, 0)
	if err != nil {
		return nil, errors.Wrap(err, "list articles")
	}
	out := make([]domain.Article, 0, limit)
	for _, a := range all {
		if len(out) == limit {
			break
		}
		if a.MatchesKeyword(keyword) {
			out = append(out, a)
		}
	}
	return out, nil
}

func (s *Service) List(ctx context.Context, siteID uuid.UUID, limit int) ([]domain.Article, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	if limit > MaxListLimit {
		limit = MaxListLimit
	}
	out, err := s.repo.ListArticles(ctx, siteID, limit)
	if err != nil {
		return nil, errors.Wrap(err, "list articles")
	}
	return out, nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (domain.Article, error) {
	a, err := s.repo.GetArticle(ctx, id)
	if err != nil {
		return domain.Article{}, notFound(err, "article")
	}
	return a, nil
}

// SetStatus moves an article between draft, review and published.
func (s *Service) SetStatus(ctx context.Context, id uuid.UUID, status string) (domain.Article, error) {
	st, err := domain.ParseArticleStatus(status)
	if err != nil {
		return domain.Article{}, err
	}
	a, err := s.Get(ctx, id)
	if err != nil {
		return domain.Article{}, err
	}
	a.Status = st
	a.UpdatedAt = s.now()
	if err := s.repo.UpdateArticle(ctx, a); err != nil {
		return domain.Article{}, notFound(err, "article")
	}
	return a, nil
}

// Regenerate appends feedback to the article history and asks the workflow
// to rewrite the article. The feedback is kept even if the call fails.
func (s *Service) Regenerate(ctx context.Context, id uuid.UUID, feedback string) (workflow.ActionResult, error) {
	a, err := s.Get(ctx, id)
	if err != nil {
		return workflow.ActionResult{}, err
	}
	if err := a.AddFeedback(feedback, s.now()); err != nil {
		return workflow.ActionResult{}, err
	}
	if err := s.repo.UpdateArticle(ctx, a); err != nil {
		return workflow.ActionResult{}, notFound(err, "article")
	}

	res, err := s.workflow.RegenerateArticle(ctx, a.ID, a.FeedbackHistory[len(a.FeedbackHistory)-1].Text)
	if err != nil {
		return workflow.ActionResult{}, domain.Upstream(err, "trigger regeneration")
	}
	return res, nil
}

// Publish asks the workflow to push the article to WordPress.
func (s *Service) Publish(ctx context.Context, id uuid.UUID) (workflow.ActionResult, error) {
	a, err := s.Get(ctx, id)
	if err != nil {
		return workflow.ActionResult{}, err
	}
	res, err := s.workflow.PublishArticle(ctx, a.ID)
	if err != nil {
		return workflow.ActionResult{}, domain.Upstream(err, "trigger publishing")
	}
	return res, nil
}

// RegeneratePostsResult is what the site's workflow answered. Reply is nil
// for an empty or non-JSON answer.
type RegeneratePostsResult struct {
	PostIDs []int64
	Reply   json.RawMessage
}

// RegeneratePosts sends existing WordPress posts to the site's own workflow
// webhook for rewriting.
func (s *Service) RegeneratePosts(ctx context.Context, siteID uuid.UUID, postIDs []int64) (RegeneratePostsResult, error) {
	if len(postIDs) == 0 {
		return RegeneratePostsResult{}, domain.Validationf("postIds must contain at least one post id")
	}
	for _, id := range postIDs {
		if id <= 0 {
			return RegeneratePostsResult{}, domain.Validationf("invalid post id %d", id)
		}
	}

	site, err := s.repo.GetSite(ctx, siteID)
	if err != nil {
		return RegeneratePostsResult{}, notFound(err, "site")
	}
	if site.N8NWebhookURL == "" {
		return RegeneratePostsResult{}, domain.Validationf("n8n webhook URL not configured for this site")
	}
	if site.WPURL == "" {
		return RegeneratePostsResult{}, domain.Validationf("WordPress URL not configured for this site")
	}

	payload := workflow.NewRegeneratePayload(site, postIDs, s.now())
	resp, err := s.workflow.Send(ctx, site.N8NWebhookURL, workflow.ActionRegenerate, payload)
	if err != nil {
		log.Warn().Err(err).Str("site_id", siteID.String()).Msg("articles: regenerate webhook failed")
		return RegeneratePostsResult{}, domain.Upstream(err, "n8n webhook")
	}
	return RegeneratePostsResult{PostIDs: postIDs, Reply: resp.Body}, nil
}

func notFound(err error, entity string) error {
	if errors.Is(err, store.ErrNotFound) {
		return domain.NotFoundf("%s not found", entity)
	}
	return errors.Wrapf(err, "get %s", entity)
}
