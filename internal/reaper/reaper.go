// Package reaper fails article jobs that have been stuck in processing.
//
// A job is stale when the workflow that claimed it never reported back:
// it has status processing and started longer ago than the threshold. The
// reaper moves such jobs to failed through the job state machine, so a
// result that arrives later is rejected as an invalid transition.
package reaper

import (
	"context"
	"fmt"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/bestsmilejp/ai-creative-compass-studio/internal/domain"
	"github.com/bestsmilejp/ai-creative-compass-studio/internal/jobs"
	"github.com/bestsmilejp/ai-creative-compass-studio/internal/metrics"
)

// Store lists stale jobs.
type Store interface {
	ListStaleJobs(ctx context.Context, olderThan time.Time, limit int) ([]domain.ArticleJob, error)
}

// Updater applies job transitions.
type Updater interface {
	Update(ctx context.Context, id uuid.UUID, req jobs.UpdateRequest) (domain.ArticleJob, error)
}

// Config holds reaper configuration.
type Config struct {
	// Threshold is how long a job may stay in processing.
	Threshold time.Duration

	// BatchSize is the maximum number of jobs failed per cycle.
	BatchSize int
}

// DefaultConfig returns the default reaper configuration.
func DefaultConfig() Config {
	return Config{
		Threshold: 30 * time.Minute,
		BatchSize: 100,
	}
}

type Reaper struct {
	config  Config
	store   Store
	jobs    Updater
	metrics metrics.Sink
	clock   func() time.Time
}

func New(config Config, store Store, jobs Updater) *Reaper {
	def := DefaultConfig()
	if config.Threshold <= 0 {
		config.Threshold = def.Threshold
	}
	if config.BatchSize <= 0 {
		config.BatchSize = def.BatchSize
	}
	return &Reaper{
		config:  config,
		store:   store,
		jobs:    jobs,
		metrics: metrics.NewNoopSink(),
		clock:   time.Now,
	}
}

func (r *Reaper) WithMetrics(m metrics.Sink) *Reaper {
	if m != nil {
		r.metrics = m
	}
	return r
}

func (r *Reaper) WithClock(now func() time.Time) *Reaper {
	r.clock = now
	return r
}

// Run adapts RunCycle to a cron task.
func (r *Reaper) Run(ctx context.Context) {
	if _, err := r.RunCycle(ctx); err != nil {
		log.Error().Err(err).Msg("reaper: cycle failed")
	}
}

// RunCycle fails one batch of stale jobs and returns how many were failed.
func (r *Reaper) RunCycle(ctx context.Context) (int, error) {
	cutoff := r.clock().Add(-r.config.Threshold)

	stale, err := r.store.ListStaleJobs(ctx, cutoff, r.config.BatchSize)
	if err != nil {
		return 0, errors.Wrap(err, "list stale jobs")
	}
	if len(stale) == 0 {
		return 0, nil
	}

	log.Info().Int("count", len(stale)).Msg("reaper: found stale processing jobs")

	reaped, skipped := 0, 0
	msg := fmt.Sprintf("job timed out after %s in processing", r.config.Threshold)
	for _, job := range stale {
		if ctx.Err() != nil {
			log.Warn().Int("reaped", reaped).Int("total", len(stale)).Msg("reaper: cycle interrupted")
			break
		}

		_, err := r.jobs.Update(ctx, job.ID, jobs.UpdateRequest{
			Status:       domain.JobStatusFailed,
			ErrorMessage: msg,
		})
		if err != nil {
			// The workflow may have finished the job since it was listed.
			if errors.Is(err, domain.ErrInvalidTransition) || errors.Is(err, domain.ErrNotFound) {
				skipped++
				continue
			}
			log.Warn().Err(err).Str("job_id", job.ID.String()).Msg("reaper: failed to fail job")
			continue
		}

		log.Info().
			Str("job_id", job.ID.String()).
			Str("site_id", job.SiteID.String()).
			Msg("reaper: job failed after timeout")
		reaped++
	}

	r.metrics.JobsReaped(reaped)
	log.Info().Int("reaped", reaped).Int("skipped", skipped).Msg("reaper: cycle complete")
	return reaped, nil
}
