// Package trigger notifies site workflows when their publishing schedule
// is due.
//
// Each tick lists due schedules and posts a scheduled_run payload to the
// site's n8n webhook. A run is recorded only after the webhook accepted it;
// a failed site keeps its next_run_at and is picked up again on the next
// tick.
package trigger

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/bestsmilejp/ai-creative-compass-studio/internal/domain"
	"github.com/bestsmilejp/ai-creative-compass-studio/internal/metrics"
	"github.com/bestsmilejp/ai-creative-compass-studio/internal/store"
	"github.com/bestsmilejp/ai-creative-compass-studio/internal/workflow"
)

// Schedules is the part of the schedules service the trigger drives.
type Schedules interface {
	Due(ctx context.Context) ([]store.DueSchedule, error)
	RecordRun(ctx context.Context, siteID uuid.UUID) (domain.Schedule, error)
}

// Sender delivers a workflow payload.
type Sender interface {
	Send(ctx context.Context, url, action string, payload any) (workflow.Response, error)
}

type Trigger struct {
	schedules   Schedules
	sender      Sender
	concurrency int
	metrics     metrics.Sink
	clock       func() time.Time
}

// New creates a Trigger that contacts at most concurrency sites at once.
func New(schedules Schedules, sender Sender, concurrency int) *Trigger {
	if concurrency < 1 {
		concurrency = 1
	}
	return &Trigger{
		schedules:   schedules,
		sender:      sender,
		concurrency: concurrency,
		metrics:     metrics.NewNoopSink(),
		clock:       time.Now,
	}
}

func (t *Trigger) WithMetrics(m metrics.Sink) *Trigger {
	if m != nil {
		t.metrics = m
	}
	return t
}

func (t *Trigger) WithClock(now func() time.Time) *Trigger {
	t.clock = now
	return t
}

// Tick runs one trigger pass. It returns the number of sites whose run was
// dispatched and recorded, and an error summarising the sites that failed.
func (t *Trigger) Tick(ctx context.Context) (int, error) {
	start := t.clock()
	dispatched, err := t.tick(ctx)
	t.metrics.TriggerTickCompleted(t.clock().Sub(start), dispatched, err)
	return dispatched, err
}

func (t *Trigger) tick(ctx context.Context) (int, error) {
	due, err := t.schedules.Due(ctx)
	if err != nil {
		return 0, errors.Wrap(err, "list due schedules")
	}
	if len(due) == 0 {
		return 0, nil
	}

	var dispatched, failed atomic.Int32
	var g errgroup.Group
	g.SetLimit(t.concurrency)

	for _, ds := range due {
		if ds.Site.N8NWebhookURL == "" {
			log.Debug().Str("site_id", ds.Site.ID.String()).Msg("trigger: site has no webhook URL, skipping")
			continue
		}
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := t.fire(ctx, ds); err != nil {
				failed.Add(1)
				log.Warn().Err(err).
					Str("site_id", ds.Site.ID.String()).
					Str("site", ds.Site.Slug).
					Msg("trigger: scheduled run failed")
				return nil
			}
			dispatched.Add(1)
			return nil
		})
	}
	_ = g.Wait()

	n := int(dispatched.Load())
	if f := failed.Load(); f > 0 {
		return n, errors.Newf("%d of %d due sites failed", f, int32(n)+f)
	}
	if err := ctx.Err(); err != nil {
		return n, err
	}
	return n, nil
}

func (t *Trigger) fire(ctx context.Context, ds store.DueSchedule) error {
	payload := workflow.NewScheduledRunPayload(ds.Site, ds.Schedule, t.clock())
	if _, err := t.sender.Send(ctx, ds.Site.N8NWebhookURL, workflow.ActionScheduledRun, payload); err != nil {
		return errors.Wrap(err, "send scheduled run")
	}
	sc, err := t.schedules.RecordRun(ctx, ds.Site.ID)
	if err != nil {
		return errors.Wrap(err, "record run")
	}

	ev := log.Info().Str("site_id", ds.Site.ID.String()).Int("articles", sc.ArticlesPerRun)
	if sc.NextRunAt != nil {
		ev = ev.Time("next_run_at", *sc.NextRunAt)
	}
	ev.Msg("trigger: scheduled run dispatched")
	return nil
}

// Run adapts Tick to a cron task.
func (t *Trigger) Run(ctx context.Context) {
	n, err := t.Tick(ctx)
	if err != nil {
		log.Error().Err(err).Int("dispatched", n).Msg("trigger: tick error")
		return
	}
	if n > 0 {
		log.Info().Int("dispatched", n).Msg("trigger: tick complete")
	}
}
