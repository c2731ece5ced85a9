package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"
)

// PrometheusSink implements Sink using Prometheus client library.
// All methods are non-blocking and fire-and-forget.
// Registration errors are logged but never propagated.
type PrometheusSink struct {
	// Job metrics
	jobCreateOutcomes *prometheus.CounterVec
	jobTransitions    *prometheus.CounterVec
	jobsReapedTotal   prometheus.Counter

	// Trigger metrics
	triggerTicksTotal      prometheus.Counter
	triggerTickErrorsTotal prometheus.Counter
	triggerDispatchedTotal prometheus.Counter
	triggerTickDuration    prometheus.Histogram
	scheduleRunsTotal      prometheus.Counter
	dueSchedules           prometheus.Gauge

	// Outbound metrics
	webhookRequestsTotal   *prometheus.CounterVec
	webhookDuration        *prometheus.HistogramVec
	wordpressRequestsTotal *prometheus.CounterVec
	wordpressDuration      prometheus.Histogram
	circuitRejectionsTotal *prometheus.CounterVec

	// API metrics
	httpRequestsTotal *prometheus.CounterVec
	httpDuration      *prometheus.HistogramVec

	isLeader prometheus.Gauge
}

// NewPrometheusSink creates a new Prometheus metrics sink.
// If registration fails, it logs a warning and returns a functional sink.
func NewPrometheusSink(reg prometheus.Registerer) *PrometheusSink {
	s := &PrometheusSink{}
	s.initJobMetrics(reg)
	s.initTriggerMetrics(reg)
	s.initOutboundMetrics(reg)
	s.initAPIMetrics(reg)
	return s
}

func (s *PrometheusSink) initJobMetrics(reg prometheus.Registerer) {
	s.jobCreateOutcomes = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "compass_jobs_create_outcomes_total",
		Help: "Job creation requests by deduplication outcome.",
	}, []string{"outcome"})
	s.jobTransitions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "compass_jobs_transitions_total",
		Help: "Applied job status transitions.",
	}, []string{"from", "to"})
	s.jobsReapedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "compass_jobs_reaped_total",
		Help: "Processing jobs failed by the stale-job reaper.",
	})

	s.register(reg, s.jobCreateOutcomes, "compass_jobs_create_outcomes_total")
	s.register(reg, s.jobTransitions, "compass_jobs_transitions_total")
	s.register(reg, s.jobsReapedTotal, "compass_jobs_reaped_total")
}

func (s *PrometheusSink) initTriggerMetrics(reg prometheus.Registerer) {
	s.triggerTicksTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "compass_trigger_ticks_total",
		Help: "Total number of due-schedule trigger ticks.",
	})
	s.triggerTickErrorsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "compass_trigger_tick_errors_total",
		Help: "Trigger ticks that ended with at least one error.",
	})
	s.triggerDispatchedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "compass_trigger_dispatched_total",
		Help: "Scheduled runs successfully handed to the workflow engine.",
	})
	s.triggerTickDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "compass_trigger_tick_duration_seconds",
		Help:    "Duration of each trigger tick in seconds.",
		Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 30},
	})
	s.scheduleRunsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "compass_schedule_runs_recorded_total",
		Help: "Schedule runs recorded (next_run_at advanced).",
	})
	s.dueSchedules = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "compass_trigger_due_schedules",
		Help: "Number of due schedules found by the last trigger tick.",
	})

	s.register(reg, s.triggerTicksTotal, "compass_trigger_ticks_total")
	s.register(reg, s.triggerTickErrorsTotal, "compass_trigger_tick_errors_total")
	s.register(reg, s.triggerDispatchedTotal, "compass_trigger_dispatched_total")
	s.register(reg, s.triggerTickDuration, "compass_trigger_tick_duration_seconds")
	s.register(reg, s.scheduleRunsTotal, "compass_schedule_runs_recorded_total")
	s.register(reg, s.dueSchedules, "compass_trigger_due_schedules")
}

func (s *PrometheusSink) initOutboundMetrics(reg prometheus.Registerer) {
	s.webhookRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "compass_webhook_requests_total",
		Help: "Outbound workflow webhook requests.",
	}, []string{"action", "status_class"})
	s.webhookDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "compass_webhook_duration_seconds",
		Help:    "Workflow webhook latency in seconds.",
		Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
	}, []string{"action"})
	s.wordpressRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "compass_wordpress_requests_total",
		Help: "Outbound WordPress REST API requests.",
	}, []string{"status_class"})
	s.wordpressDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "compass_wordpress_duration_seconds",
		Help:    "WordPress REST API latency in seconds.",
		Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10},
	})
	s.circuitRejectionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "compass_circuit_rejections_total",
		Help: "Outbound requests rejected by an open circuit breaker.",
	}, []string{"target"})

	s.register(reg, s.webhookRequestsTotal, "compass_webhook_requests_total")
	s.register(reg, s.webhookDuration, "compass_webhook_duration_seconds")
	s.register(reg, s.wordpressRequestsTotal, "compass_wordpress_requests_total")
	s.register(reg, s.wordpressDuration, "compass_wordpress_duration_seconds")
	s.register(reg, s.circuitRejectionsTotal, "compass_circuit_rejections_total")
}

func (s *PrometheusSink) initAPIMetrics(reg prometheus.Registerer) {
	s.httpRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "compass_http_requests_total",
		Help: "Inbound API requests by route and status code.",
	}, []string{"route", "code"})
	s.httpDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "compass_http_request_duration_seconds",
		Help:    "Inbound API latency in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"route"})

	s.register(reg, s.httpRequestsTotal, "compass_http_requests_total")
	s.register(reg, s.httpDuration, "compass_http_request_duration_seconds")

	s.isLeader = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "compass_leader",
		Help: "1 while this instance holds the trigger/reaper leader lock.",
	})
	s.register(reg, s.isLeader, "compass_leader")
}

// register attempts to register a collector, logging any errors without propagating them.
func (s *PrometheusSink) register(reg prometheus.Registerer, c prometheus.Collector, name string) {
	if err := reg.Register(c); err != nil {
		log.Warn().Err(err).Str("metric", name).Msg("metrics: failed to register collector")
	}
}

func (s *PrometheusSink) JobCreateOutcome(outcome string) {
	s.jobCreateOutcomes.WithLabelValues(outcome).Inc()
}

func (s *PrometheusSink) JobTransition(from, to string) {
	s.jobTransitions.WithLabelValues(from, to).Inc()
}

func (s *PrometheusSink) JobsReaped(count int) {
	s.jobsReapedTotal.Add(float64(count))
}

func (s *PrometheusSink) TriggerTickCompleted(duration time.Duration, dispatched int, err error) {
	s.triggerTicksTotal.Inc()
	s.triggerTickDuration.Observe(duration.Seconds())
	s.triggerDispatchedTotal.Add(float64(dispatched))
	if err != nil {
		s.triggerTickErrorsTotal.Inc()
	}
}

func (s *PrometheusSink) ScheduleRunRecorded() {
	s.scheduleRunsTotal.Inc()
}

func (s *PrometheusSink) DueSchedulesUpdate(count int) {
	s.dueSchedules.Set(float64(count))
}

func (s *PrometheusSink) WebhookCompleted(action, statusClass string, duration time.Duration) {
	s.webhookRequestsTotal.WithLabelValues(action, statusClass).Inc()
	s.webhookDuration.WithLabelValues(action).Observe(duration.Seconds())
}

func (s *PrometheusSink) WordPressRequestCompleted(statusClass string, duration time.Duration) {
	s.wordpressRequestsTotal.WithLabelValues(statusClass).Inc()
	s.wordpressDuration.Observe(duration.Seconds())
}

func (s *PrometheusSink) CircuitRejected(target string) {
	s.circuitRejectionsTotal.WithLabelValues(target).Inc()
}

func (s *PrometheusSink) HTTPRequestCompleted(route string, status int, duration time.Duration) {
	s.httpRequestsTotal.WithLabelValues(route, strconv.Itoa(status)).Inc()
	s.httpDuration.WithLabelValues(route).Observe(duration.Seconds())
}

// LeaderStatusChanged satisfies leaderelection.MetricsSink.
func (s *PrometheusSink) LeaderStatusChanged(isLeader bool) {
	if isLeader {
		s.isLeader.Set(1)
		return
	}
	s.isLeader.Set(0)
}
