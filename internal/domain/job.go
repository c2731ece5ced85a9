package domain

import (
	"encoding/json"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
)

type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
)

// JobStatuses lists every valid status in lifecycle order.
var JobStatuses = []JobStatus{JobStatusPending, JobStatusProcessing, JobStatusCompleted, JobStatusFailed}

// DefaultFailureMessage is stored when a job fails without an explicit message.
const DefaultFailureMessage = "job failed without an error message"

// ParseJobStatus validates a wire value.
func ParseJobStatus(s string) (JobStatus, error) {
	for _, st := range JobStatuses {
		if string(st) == s {
			return st, nil
		}
	}
	return "", Validationf("invalid status %q, must be one of: pending, processing, completed, failed", s)
}

// IsTerminal reports whether no further transitions are allowed.
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// IsActive reports whether the job still occupies its (site, post) slot.
func (s JobStatus) IsActive() bool {
	return s == JobStatusPending || s == JobStatusProcessing
}

// allowedTransitions is the full transition table. Terminal states have no
// entry and therefore no outgoing edges.
var allowedTransitions = map[JobStatus][]JobStatus{
	JobStatusPending:    {JobStatusProcessing, JobStatusCompleted, JobStatusFailed},
	JobStatusProcessing: {JobStatusCompleted, JobStatusFailed},
}

// CanTransition reports whether from -> to is in the transition table.
func CanTransition(from, to JobStatus) bool {
	for _, allowed := range allowedTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// ArticleJob tracks one asynchronous article-generation attempt.
type ArticleJob struct {
	ID     uuid.UUID
	SiteID uuid.UUID

	// WPPostID is the WordPress post the job works on. It may be attached
	// after creation.
	WPPostID       *int64
	IdempotencyKey string // empty when the caller supplied none

	Status       JobStatus
	ResultData   json.RawMessage
	ErrorMessage *string

	StartedAt   *time.Time
	CompletedAt *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

// NewArticleJob returns a pending job.
func NewArticleJob(siteID uuid.UUID, wpPostID *int64, idempotencyKey string, now time.Time) ArticleJob {
	return ArticleJob{
		ID:             uuid.New(),
		SiteID:         siteID,
		WPPostID:       wpPostID,
		IdempotencyKey: idempotencyKey,
		Status:         JobStatusPending,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

// TransitionOptions carries the optional payload of a status update.
type TransitionOptions struct {
	ErrorMessage string
	ResultData   json.RawMessage
	// WPPostID attaches the post id when the job was created without one.
	WPPostID *int64
}

// ApplyTransition returns a copy of the job moved to status `to`. The
// receiver is never modified, so a rejected transition leaves the caller's
// job untouched.
func (j ArticleJob) ApplyTransition(to JobStatus, opts TransitionOptions, now time.Time) (ArticleJob, error) {
	if _, err := ParseJobStatus(string(to)); err != nil {
		return j, err
	}
	if !CanTransition(j.Status, to) {
		return j, errors.Mark(
			errors.Wrapf(ErrInvalidTransition, "cannot update job with status '%s' to '%s'", j.Status, to),
			ErrConflict,
		)
	}

	next := j
	next.Status = to
	next.UpdatedAt = now

	if opts.WPPostID != nil && next.WPPostID == nil {
		id := *opts.WPPostID
		next.WPPostID = &id
	}

	switch to {
	case JobStatusProcessing:
		if next.StartedAt == nil {
			next.StartedAt = timePtr(now)
		}
	case JobStatusCompleted:
		if next.CompletedAt == nil {
			next.CompletedAt = timePtr(now)
		}
		next.ErrorMessage = nil
		if len(opts.ResultData) > 0 {
			next.ResultData = opts.ResultData
		}
	case JobStatusFailed:
		if next.CompletedAt == nil {
			next.CompletedAt = timePtr(now)
		}
		msg := opts.ErrorMessage
		if msg == "" {
			msg = DefaultFailureMessage
		}
		next.ErrorMessage = &msg
	}

	return next, nil
}

// CheckDeletable returns a conflict error unless the job is pending or failed.
func (j ArticleJob) CheckDeletable() error {
	switch j.Status {
	case JobStatusPending, JobStatusFailed:
		return nil
	case JobStatusProcessing:
		return Conflictf("cannot delete a job that is currently processing")
	default:
		return Conflictf("cannot delete a job with status '%s'", j.Status)
	}
}

func timePtr(t time.Time) *time.Time {
	return &t
}
