// Package leaderelection decides which compass replica runs the background
// duties: the due-schedule trigger and the stale-job reaper. Both write to
// shared rows (schedules' next_run_at, processing jobs), so running them on
// every replica would fire webhooks twice and race on job status.
//
// Leadership is a Postgres session-level advisory lock taken on a dedicated
// connection. While the lock is held the elector runs the lead function with
// a context that is cancelled the moment leadership ends; it waits for lead
// to return before releasing the lock, so two replicas never run duties at
// the same time. Followers retry at a fixed interval.
//
// There is no lease or TTL. A heartbeat ping on the dedicated connection
// notices a dead session early; Postgres itself frees the lock of a dead
// session.
package leaderelection

import (
	"context"
	"database/sql"
	"time"

	"github.com/rs/zerolog/log"
)

const (
	queryTryLock = "SELECT pg_try_advisory_lock($1)"
	queryUnlock  = "SELECT pg_advisory_unlock($1)"

	unlockTimeout = 5 * time.Second
)

// Why a term of leadership ended.
const (
	ReasonShutdown = "shutdown"
	ReasonConnLost = "conn_lost"
)

// MetricsSink records leadership changes. Implementations must not block.
type MetricsSink interface {
	LeaderStatusChanged(isLeader bool)
}

// Options configures an Elector. Every replica sharing a database must use
// the same LockKey.
type Options struct {
	LockKey           int64
	RetryInterval     time.Duration
	HeartbeatInterval time.Duration
}

type Elector struct {
	db      *sql.DB
	opts    Options
	lead    func(ctx context.Context)
	metrics MetricsSink
}

// New returns an elector that calls lead each time this replica becomes
// leader. lead must block until its context is cancelled and must stop its
// work before returning.
func New(db *sql.DB, opts Options, lead func(ctx context.Context)) *Elector {
	return &Elector{db: db, opts: opts, lead: lead}
}

func (e *Elector) WithMetrics(sink MetricsSink) *Elector {
	e.metrics = sink
	return e
}

// Run campaigns for leadership until ctx is cancelled. A replica that loses
// its session goes back to campaigning.
func (e *Elector) Run(ctx context.Context) {
	log.Info().
		Int64("lock_key", e.opts.LockKey).
		Dur("retry", e.opts.RetryInterval).
		Dur("heartbeat", e.opts.HeartbeatInterval).
		Msg("leader: campaigning")

	retry := time.NewTimer(0)
	defer retry.Stop()
	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("leader: campaign stopped")
			return
		case <-retry.C:
		}

		if reason, led := e.term(ctx); led && reason != ReasonShutdown {
			log.Warn().Str("reason", reason).Msg("leader: leadership lost, campaigning again")
		}
		retry.Reset(e.opts.RetryInterval)
	}
}

// term runs one attempt: take the lock, lead while the session lives, then
// hand the lock back. led is false when another replica holds the lock.
func (e *Elector) term(ctx context.Context) (reason string, led bool) {
	// Session-level locks belong to one connection, not the pool.
	conn, err := e.db.Conn(ctx)
	if err != nil {
		if ctx.Err() == nil {
			log.Error().Err(err).Msg("leader: no connection for the lock session")
		}
		return "", false
	}
	defer conn.Close()

	var acquired bool
	if err := conn.QueryRowContext(ctx, queryTryLock, e.opts.LockKey).Scan(&acquired); err != nil {
		if ctx.Err() == nil {
			log.Error().Err(err).Msg("leader: lock attempt failed")
		}
		return "", false
	}
	if !acquired {
		log.Debug().Int64("lock_key", e.opts.LockKey).Msg("leader: another replica is leading")
		return "", false
	}

	log.Info().Int64("lock_key", e.opts.LockKey).Msg("leader: elected, starting trigger and reaper")
	e.statusChanged(true)

	leadCtx, stop := context.WithCancel(ctx)
	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		e.lead(leadCtx)
	}()

	reason = e.watchSession(ctx, conn)
	stop()
	<-stopped
	e.statusChanged(false)

	// Duties have stopped; only now may another replica take over. A
	// pooled connection keeps its session, so the unlock is explicit.
	if reason != ReasonConnLost {
		unlockCtx, cancel := context.WithTimeout(context.Background(), unlockTimeout)
		if _, err := conn.ExecContext(unlockCtx, queryUnlock, e.opts.LockKey); err != nil {
			log.Warn().Err(err).Msg("leader: unlock failed")
		}
		cancel()
	}

	log.Info().Str("reason", reason).Msg("leader: stepped down")
	return reason, true
}

// watchSession returns when ctx ends or the lock session stops answering.
func (e *Elector) watchSession(ctx context.Context, conn *sql.Conn) string {
	heartbeat := time.NewTicker(e.opts.HeartbeatInterval)
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			return ReasonShutdown
		case <-heartbeat.C:
		}
		if err := conn.PingContext(ctx); err != nil {
			if ctx.Err() != nil {
				return ReasonShutdown
			}
			log.Error().Err(err).Msg("leader: lock session lost")
			return ReasonConnLost
		}
	}
}

func (e *Elector) statusChanged(isLeader bool) {
	if e.metrics != nil {
		e.metrics.LeaderStatusChanged(isLeader)
	}
}
