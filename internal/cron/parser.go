// Package cron wraps robfig/cron for the service's periodic duties: spec
// parsing for config validation and a context-bound runner.
package cron

import (
	"time"

	"github.com/cockroachdb/errors"
	"github.com/robfig/cron/v3"
)

// Standard five-field expressions plus descriptors such as "@every 1m" and
// "@hourly".
var specParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

type Schedule interface {
	Next(after time.Time) time.Time
}

type schedule struct {
	sched cron.Schedule
	loc   *time.Location
}

func (s *schedule) Next(after time.Time) time.Time {
	return s.sched.Next(after.In(s.loc))
}

// Parse parses spec and evaluates it in loc (UTC when nil).
func Parse(spec string, loc *time.Location) (Schedule, error) {
	sched, err := specParser.Parse(spec)
	if err != nil {
		return nil, errors.Wrapf(err, "parse cron spec %q", spec)
	}
	if loc == nil {
		loc = time.UTC
	}
	return &schedule{sched: sched, loc: loc}, nil
}

// ValidateSpec reports whether spec parses.
func ValidateSpec(spec string) error {
	_, err := Parse(spec, time.UTC)
	return err
}
