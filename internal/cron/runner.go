package cron

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"
)

// Task is one periodic duty. It receives the runner's context.
type Task func(ctx context.Context)

// Runner runs tasks on cron specs until its context is cancelled. A task
// still running when its next slot arrives is skipped for that slot. Run may
// be called again after it returns, as happens when leadership moves back to
// this instance.
type Runner struct {
	loc   *time.Location
	tasks []namedTask
}

type namedTask struct {
	name string
	spec string
	fn   Task
}

func NewRunner(loc *time.Location) *Runner {
	if loc == nil {
		loc = time.UTC
	}
	return &Runner{loc: loc}
}

// Add registers fn under name. It fails only for an invalid spec.
func (r *Runner) Add(name, spec string, fn Task) error {
	if err := ValidateSpec(spec); err != nil {
		return err
	}
	r.tasks = append(r.tasks, namedTask{name: name, spec: spec, fn: fn})
	return nil
}

// Run starts every task and blocks until ctx is cancelled, then waits for
// running tasks to return.
func (r *Runner) Run(ctx context.Context) {
	logger := zerologAdapter{}
	c := cron.New(
		cron.WithParser(specParser),
		cron.WithLocation(r.loc),
		cron.WithLogger(logger),
		cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
	)
	for _, t := range r.tasks {
		t := t
		if _, err := c.AddFunc(t.spec, func() { t.fn(ctx) }); err != nil {
			log.Error().Err(err).Str("task", t.name).Msg("cron: task not scheduled")
			continue
		}
		log.Info().Str("task", t.name).Str("spec", t.spec).Msg("cron: task scheduled")
	}

	c.Start()
	<-ctx.Done()
	<-c.Stop().Done()
	log.Info().Msg("cron: runner stopped")
}

// zerologAdapter satisfies cron.Logger.
type zerologAdapter struct{}

func (zerologAdapter) Info(msg string, keysAndValues ...interface{}) {
	log.Debug().Fields(keysAndValues).Msg("cron: " + msg)
}

func (zerologAdapter) Error(err error, msg string, keysAndValues ...interface{}) {
	log.Error().Err(err).Fields(keysAndValues).Msg("cron: " + msg)
}
