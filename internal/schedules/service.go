// Package schedules implements the per-site publishing schedule use cases.
// All next-run arithmetic happens in one configured location.
package schedules

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/bestsmilejp/ai-creative-compass-studio/internal/domain"
	"github.com/bestsmilejp/ai-creative-compass-studio/internal/metrics"
	"github.com/bestsmilejp/ai-creative-compass-studio/internal/store"
)

type Repository interface {
	store.ScheduleRepository
	GetSite(ctx context.Context, id uuid.UUID) (domain.Site, error)
}

type Service struct {
	repo    Repository
	loc     *time.Location
	metrics metrics.Sink
	now     func() time.Time
}

func NewService(repo Repository, loc *time.Location) *Service {
	if loc == nil {
		loc = time.UTC
	}
	return &Service{
		repo:    repo,
		loc:     loc,
		metrics: metrics.NewNoopSink(),
		now:     time.Now,
	}
}

// WithMetrics attaches a metrics sink to the service.
func (s *Service) WithMetrics(m metrics.Sink) *Service {
	s.metrics = m
	return s
}

// WithClock overrides the time source.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

func (s *Service) clock() time.Time {
	return s.now().In(s.loc)
}

// Get returns the site's schedule, creating and storing the default one on
// first access.
func (s *Service) Get(ctx context.Context, siteID uuid.UUID) (domain.Schedule, domain.Site, error) {
	site, err := s.repo.GetSite(ctx, siteID)
	if err != nil {
		return domain.Schedule{}, domain.Site{}, notFound(err, "site")
	}

	sc, err := s.repo.GetSchedule(ctx, siteID)
	if err == nil {
		return sc, site, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return domain.Schedule{}, domain.Site{}, errors.Wrap(err, "get schedule")
	}

	sc = domain.DefaultSchedule(siteID, s.clock())
	if err := s.repo.InsertSchedule(ctx, sc); err != nil {
		if !errors.Is(err, store.ErrUniqueViolation) {
			return domain.Schedule{}, domain.Site{}, errors.Wrap(err, "insert default schedule")
		}
		// Another request created it first.
		if sc, err = s.repo.GetSchedule(ctx, siteID); err != nil {
			return domain.Schedule{}, domain.Site{}, errors.Wrap(err, "get schedule")
		}
	}
	return sc, site, nil
}

// Settings is the editable part of a schedule.
type Settings struct {
	Enabled             bool
	Frequency           string
	TimeOfDay           string
	DaysOfWeek          []int
	CustomIntervalHours *int
	ArticlesPerRun      int
}

// Save validates and stores new settings and recomputes next_run_at,
// allowing a slot later today.
func (s *Service) Save(ctx context.Context, siteID uuid.UUID, in Settings) (domain.Schedule, error) {
	freq, err := domain.ParseFrequency(in.Frequency)
	if err != nil {
		return domain.Schedule{}, err
	}
	tod, err := domain.ParseTimeOfDay(in.TimeOfDay)
	if err != nil {
		return domain.Schedule{}, err
	}

	sc, _, err := s.Get(ctx, siteID)
	if err != nil {
		return domain.Schedule{}, err
	}

	sc.Enabled = in.Enabled
	sc.Frequency = freq
	sc.TimeOfDay = tod
	sc.DaysOfWeek = append([]int{}, in.DaysOfWeek...)
	sc.CustomIntervalHours = in.CustomIntervalHours
	sc.ArticlesPerRun = domain.ClampArticlesPerRun(in.ArticlesPerRun)
	if err := sc.Validate(); err != nil {
		return domain.Schedule{}, err
	}
	sc.Reschedule(s.clock())

	if err := s.repo.UpdateSchedule(ctx, sc); err != nil {
		return domain.Schedule{}, errors.Wrap(err, "update schedule")
	}
	return sc, nil
}

// Due returns enabled schedules of active sites whose next run is not in the
// future.
func (s *Service) Due(ctx context.Context) ([]store.DueSchedule, error) {
	due, err := s.repo.ListDueSchedules(ctx, s.clock())
	if err != nil {
		return nil, errors.Wrap(err, "list due schedules")
	}
	s.metrics.DueSchedulesUpdate(len(due))
	return due, nil
}

// RecordRun stamps last_run_at and advances next_run_at by a full period.
func (s *Service) RecordRun(ctx context.Context, siteID uuid.UUID) (domain.Schedule, error) {
	sc, err := s.repo.GetSchedule(ctx, siteID)
	if err != nil {
		return domain.Schedule{}, notFound(err, "schedule")
	}

	sc.RecordRun(s.clock())
	if err := s.repo.UpdateSchedule(ctx, sc); err != nil {
		return domain.Schedule{}, errors.Wrap(err, "update schedule")
	}

	s.metrics.ScheduleRunRecorded()
	ev := log.Info().Str("site_id", siteID.String())
	if sc.NextRunAt != nil {
		ev = ev.Time("next_run_at", *sc.NextRunAt)
	}
	ev.Msg("schedules: run recorded")
	return sc, nil
}

func notFound(err error, entity string) error {
	if errors.Is(err, store.ErrNotFound) {
		return domain.NotFoundf("%s not found", entity)
	}
	return errors.Wrapf(err, "get %s", entity)
}
