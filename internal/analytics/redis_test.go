package analytics

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bestsmilejp/ai-creative-compass-studio/internal/domain"
)

func newTestSink(t *testing.T) (*RedisSink, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("failed to start miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewRedisSink(client, time.Hour), mr
}

func TestRecordJobStatus_IncrementsAndExpires(t *testing.T) {
	sink, mr := newTestSink(t)
	ctx := context.Background()
	siteID := uuid.MustParse("00000000-0000-0000-0000-000000000001")
	at := time.Date(2024, 1, 10, 10, 15, 0, 0, time.UTC)

	require.NoError(t, sink.RecordJobStatus(ctx, siteID, domain.JobStatusCompleted, at))
	require.NoError(t, sink.RecordJobStatus(ctx, siteID, domain.JobStatusCompleted, at.Add(time.Minute)))

	key := "compass:site:00000000-0000-0000-0000-000000000001:jobs:completed:2024011010"
	got, err := mr.Get(key)
	require.NoError(t, err)
	assert.Equal(t, "2", got)
	assert.Equal(t, time.Hour, mr.TTL(key))
}

func TestJobStats(t *testing.T) {
	sink, _ := newTestSink(t)
	ctx := context.Background()
	siteID := uuid.New()
	now := time.Date(2024, 1, 10, 10, 30, 0, 0, time.UTC)

	require.NoError(t, sink.RecordJobStatus(ctx, siteID, domain.JobStatusPending, now))
	require.NoError(t, sink.RecordJobStatus(ctx, siteID, domain.JobStatusFailed, now.Add(-time.Hour)))
	require.NoError(t, sink.RecordJobStatus(ctx, siteID, domain.JobStatusFailed, now.Add(-5*time.Hour)))
	require.NoError(t, sink.RecordJobStatus(ctx, uuid.New(), domain.JobStatusFailed, now))

	stats, err := sink.JobStats(ctx, siteID, now, 3)
	require.NoError(t, err)

	assert.Equal(t, 3, stats.Hours)
	require.Len(t, stats.Hourly, 3)
	assert.Equal(t, time.Date(2024, 1, 10, 8, 0, 0, 0, time.UTC), stats.Hourly[0].Hour)
	assert.Equal(t, int64(1), stats.Totals[domain.JobStatusPending])
	assert.Equal(t, int64(1), stats.Totals[domain.JobStatusFailed])
	assert.Equal(t, int64(0), stats.Totals[domain.JobStatusCompleted])
	assert.Equal(t, int64(1), stats.Hourly[1].Counts[domain.JobStatusFailed])
}

func TestJobStats_RedisDown(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	defer client.Close()
	sink := NewRedisSink(client, 0)
	mr.Close()

	_, err = sink.JobStats(context.Background(), uuid.New(), time.Now(), 1)
	assert.Error(t, err)
}
