// Package jobs implements the article-job use cases: deduplicated creation,
// status updates through the domain state machine, and deletion.
package jobs

import (
	"context"
	"encoding/json"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/bestsmilejp/ai-creative-compass-studio/internal/domain"
	"github.com/bestsmilejp/ai-creative-compass-studio/internal/metrics"
	"github.com/bestsmilejp/ai-creative-compass-studio/internal/store"
)

// Outcome tags the result of a create request.
type Outcome string

const (
	OutcomeCreated           Outcome = "created"
	OutcomeAlreadyExists     Outcome = "already_exists"
	OutcomeAlreadyProcessing Outcome = "already_processing"
	OutcomeDuplicate         Outcome = "duplicate"
)

// List limits.
const (
	DefaultListLimit = 50
	MaxListLimit     = 100
)

// StatusRecorder receives every status a job reaches. The Redis analytics
// sink implements it.
type StatusRecorder interface {
	RecordJobStatus(ctx context.Context, siteID uuid.UUID, status domain.JobStatus, at time.Time) error
}

type Service struct {
	jobs     store.JobRepository
	sites    store.SiteRepository
	metrics  metrics.Sink
	recorder StatusRecorder
	now      func() time.Time
}

func NewService(jobs store.JobRepository, sites store.SiteRepository) *Service {
	return &Service{
		jobs:    jobs,
		sites:   sites,
		metrics: metrics.NewNoopSink(),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// WithMetrics attaches a metrics sink to the service.
func (s *Service) WithMetrics(m metrics.Sink) *Service {
	s.metrics = m
	return s
}

// WithStatusRecorder attaches an analytics recorder.
func (s *Service) WithStatusRecorder(r StatusRecorder) *Service {
	s.recorder = r
	return s
}

// WithClock overrides the time source.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

type CreateRequest struct {
	SiteID         uuid.UUID
	WPPostID       *int64
	IdempotencyKey string
}

// CreateResult carries the job that now represents the request. Job is nil
// only for a duplicate whose winner could not be read back.
type CreateResult struct {
	Outcome Outcome
	Job     *domain.ArticleJob
}

// Create inserts a pending job unless an equivalent one exists:
//  1. a job with the same idempotency key is returned as already_exists;
//  2. an active job for the same (site, post) is returned as already_processing;
//  3. a unique violation on insert, from a concurrent request, is duplicate.
func (s *Service) Create(ctx context.Context, req CreateRequest) (CreateResult, error) {
	if req.SiteID == uuid.Nil {
		return CreateResult{}, domain.Validationf("invalid or missing siteId")
	}
	if req.WPPostID != nil && *req.WPPostID <= 0 {
		return CreateResult{}, domain.Validationf("invalid wpPostId")
	}
	if _, err := s.sites.GetSite(ctx, req.SiteID); err != nil {
		return CreateResult{}, notFound(err, "site")
	}

	res, found, err := s.findExisting(ctx, req)
	if err != nil {
		return CreateResult{}, err
	}
	if found {
		s.metrics.JobCreateOutcome(string(res.Outcome))
		return res, nil
	}

	job := domain.NewArticleJob(req.SiteID, req.WPPostID, req.IdempotencyKey, s.now())
	if err := s.jobs.InsertJob(ctx, job); err != nil {
		if !errors.Is(err, store.ErrUniqueViolation) {
			return CreateResult{}, errors.Wrap(err, "insert job")
		}
		log.Info().Str("site_id", req.SiteID.String()).Str("idempotency_key", req.IdempotencyKey).
			Msg("jobs: concurrent create lost the race")
		s.metrics.JobCreateOutcome(string(OutcomeDuplicate))

		winner, found, lookupErr := s.findExisting(ctx, req)
		if lookupErr != nil || !found {
			return CreateResult{Outcome: OutcomeDuplicate}, nil
		}
		return CreateResult{Outcome: OutcomeDuplicate, Job: winner.Job}, nil
	}

	s.metrics.JobCreateOutcome(string(OutcomeCreated))
	s.record(ctx, job)
	return CreateResult{Outcome: OutcomeCreated, Job: &job}, nil
}

func (s *Service) findExisting(ctx context.Context, req CreateRequest) (CreateResult, bool, error) {
	if req.IdempotencyKey != "" {
		job, err := s.jobs.FindJobByIdempotencyKey(ctx, req.IdempotencyKey)
		switch {
		case err == nil:
			return CreateResult{Outcome: OutcomeAlreadyExists, Job: &job}, true, nil
		case !errors.Is(err, store.ErrNotFound):
			return CreateResult{}, false, errors.Wrap(err, "find job by idempotency key")
		}
	}
	if req.WPPostID != nil {
		job, err := s.jobs.FindActiveJob(ctx, req.SiteID, *req.WPPostID)
		switch {
		case err == nil:
			return CreateResult{Outcome: OutcomeAlreadyProcessing, Job: &job}, true, nil
		case !errors.Is(err, store.ErrNotFound):
			return CreateResult{}, false, errors.Wrap(err, "find active job")
		}
	}
	return CreateResult{}, false, nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (domain.ArticleJob, error) {
	job, err := s.jobs.GetJob(ctx, id)
	if err != nil {
		return domain.ArticleJob{}, notFound(err, "job")
	}
	return job, nil
}

// List returns jobs newest first. The limit defaults to DefaultListLimit and
// is capped at MaxListLimit.
func (s *Service) List(ctx context.Context, filter store.JobFilter) ([]domain.ArticleJob, error) {
	if filter.Status != "" {
		if _, err := domain.ParseJobStatus(string(filter.Status)); err != nil {
			return nil, err
		}
	}
	if filter.Limit <= 0 {
		filter.Limit = DefaultListLimit
	}
	if filter.Limit > MaxListLimit {
		filter.Limit = MaxListLimit
	}
	jobs, err := s.jobs.ListJobs(ctx, filter)
	if err != nil {
		return nil, errors.Wrap(err, "list jobs")
	}
	return jobs, nil
}

type UpdateRequest struct {
	Status       domain.JobStatus
	ResultData   json.RawMessage
	ErrorMessage string
	WPPostID     *int64
}

// Update moves a job to a new status.
func (s *Service) Update(ctx context.Context, id uuid.UUID, req UpdateRequest) (domain.ArticleJob, error) {
	job, err := s.Get(ctx, id)
	if err != nil {
		return domain.ArticleJob{}, err
	}
	return s.transition(ctx, job, req)
}

// UpdateForSite is Update restricted to jobs of one site; a job of another
// site is reported as not found.
func (s *Service) UpdateForSite(ctx context.Context, siteID, id uuid.UUID, req UpdateRequest) (domain.ArticleJob, error) {
	job, err := s.Get(ctx, id)
	if err != nil {
		return domain.ArticleJob{}, err
	}
	if job.SiteID != siteID {
		return domain.ArticleJob{}, domain.NotFoundf("job not found")
	}
	return s.transition(ctx, job, req)
}

func (s *Service) transition(ctx context.Context, job domain.ArticleJob, req UpdateRequest) (domain.ArticleJob, error) {
	if req.WPPostID != nil && *req.WPPostID <= 0 {
		return domain.ArticleJob{}, domain.Validationf("invalid wpPostId")
	}
	next, err := job.ApplyTransition(req.Status, domain.TransitionOptions{
		ErrorMessage: req.ErrorMessage,
		ResultData:   req.ResultData,
		WPPostID:     req.WPPostID,
	}, s.now())
	if err != nil {
		return domain.ArticleJob{}, err
	}

	if err := s.jobs.UpdateJob(ctx, next, job.Status); err != nil {
		switch {
		case errors.Is(err, store.ErrStatusChanged):
			return domain.ArticleJob{}, errors.Mark(
				domain.Conflictf("job changed from %s concurrently, cannot move to %s", job.Status, req.Status),
				domain.ErrInvalidTransition)
		case errors.Is(err, store.ErrNotFound):
			return domain.ArticleJob{}, domain.NotFoundf("job not found")
		case errors.Is(err, store.ErrUniqueViolation):
			return domain.ArticleJob{}, domain.Conflictf("another active job exists for this post")
		}
		return domain.ArticleJob{}, errors.Wrap(err, "update job")
	}

	s.metrics.JobTransition(string(job.Status), string(next.Status))
	s.record(ctx, next)
	return next, nil
}

// Delete removes a pending or failed job.
func (s *Service) Delete(ctx context.Context, id uuid.UUID) error {
	job, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := job.CheckDeletable(); err != nil {
		return err
	}
	if err := s.jobs.DeleteJob(ctx, id, job.Status); err != nil {
		if errors.Is(err, store.ErrStatusChanged) {
			return domain.Conflictf("job changed from %s concurrently, cannot delete", job.Status)
		}
		return notFound(err, "job")
	}
	return nil
}

func (s *Service) record(ctx context.Context, job domain.ArticleJob) {
	if s.recorder == nil {
		return
	}
	if err := s.recorder.RecordJobStatus(ctx, job.SiteID, job.Status, job.UpdatedAt); err != nil {
		log.Warn().Err(err).Str("job_id", job.ID.String()).Msg("jobs: analytics record failed")
	}
}

// notFound translates store.ErrNotFound into a domain not-found error and
// wraps anything else.
func notFound(err error, entity string) error {
	if errors.Is(err, store.ErrNotFound) {
		return domain.NotFoundf("%s not found", entity)
	}
	return errors.Wrapf(err, "get %s", entity)
}
