// Package analytics keeps per-site hourly job outcome counters in Redis.
package analytics

import (
	"context"
	"fmt"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/bestsmilejp/ai-creative-compass-studio/internal/domain"
)

// DefaultRetention keeps one week of hourly buckets.
const DefaultRetention = 7 * 24 * time.Hour

// MaxStatsHours is the widest JobStats window; older buckets have expired.
const MaxStatsHours = 7 * 24

type RedisSink struct {
	client    *redis.Client
	retention time.Duration
}

func NewRedisSink(client *redis.Client, retention time.Duration) *RedisSink {
	if retention <= 0 {
		retention = DefaultRetention
	}
	return &RedisSink{client: client, retention: retention}
}

// RecordJobStatus counts one job reaching status at time at.
func (s *RedisSink) RecordJobStatus(ctx context.Context, siteID uuid.UUID, status domain.JobStatus, at time.Time) error {
	key := buildKey(siteID, status, at)

	pipe := s.client.Pipeline()
	pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, s.retention)

	if _, err := pipe.Exec(ctx); err != nil {
		return errors.Wrap(err, "redis pipeline")
	}
	return nil
}

// HourlyCount is one bucket of a JobStats result.
type HourlyCount struct {
	Hour   time.Time                  `json:"hour"`
	Counts map[domain.JobStatus]int64 `json:"counts"`
}

// JobStats is the per-site summary over the last N hours.
type JobStats struct {
	SiteID uuid.UUID                  `json:"siteId"`
	Hours  int                        `json:"hours"`
	Totals map[domain.JobStatus]int64 `json:"totals"`
	Hourly []HourlyCount              `json:"hourly"`
}

// JobStats reads the counters for the `hours` hourly buckets ending at now,
// oldest first.
func (s *RedisSink) JobStats(ctx context.Context, siteID uuid.UUID, now time.Time, hours int) (JobStats, error) {
	if hours <= 0 {
		hours = 24
	}
	if hours > MaxStatsHours {
		hours = MaxStatsHours
	}
	start := now.UTC().Truncate(time.Hour).Add(-time.Duration(hours-1) * time.Hour)

	keys := make([]string, 0, hours*len(domain.JobStatuses))
	for h := 0; h < hours; h++ {
		at := start.Add(time.Duration(h) * time.Hour)
		for _, st := range domain.JobStatuses {
			keys = append(keys, buildKey(siteID, st, at))
		}
	}

	vals, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return JobStats{}, errors.Wrap(err, "redis mget")
	}

	stats := JobStats{
		SiteID: siteID,
		Hours:  hours,
		Totals: make(map[domain.JobStatus]int64, len(domain.JobStatuses)),
		Hourly: make([]HourlyCount, hours),
	}
	for h := 0; h < hours; h++ {
		bucket := HourlyCount{
			Hour:   start.Add(time.Duration(h) * time.Hour),
			Counts: make(map[domain.JobStatus]int64, len(domain.JobStatuses)),
		}
		for i, st := range domain.JobStatuses {
			n := parseCount(vals[h*len(domain.JobStatuses)+i])
			bucket.Counts[st] = n
			stats.Totals[st] += n
		}
		stats.Hourly[h] = bucket
	}
	return stats, nil
}

func (s *RedisSink) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func buildKey(siteID uuid.UUID, status domain.JobStatus, t time.Time) string {
	return fmt.Sprintf("compass:site:%s:jobs:%s:%s", siteID, status, t.UTC().Format("2006010215"))
}

func parseCount(v any) int64 {
	str, ok := v.(string)
	if !ok {
		return 0
	}
	var n int64
	if _, err := fmt.Sscan(str, &n); err != nil {
		return 0
	}
	return n
}
