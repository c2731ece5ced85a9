package domain

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newJob(status JobStatus) ArticleJob {
	post := int64(42)
	j := NewArticleJob(uuid.New(), &post, "", at("2024-01-10T10:00:00"))
	j.Status = status
	return j
}

func TestCanTransition(t *testing.T) {
	allowed := map[JobStatus]map[JobStatus]bool{
		JobStatusPending:    {JobStatusProcessing: true, JobStatusCompleted: true, JobStatusFailed: true},
		JobStatusProcessing: {JobStatusCompleted: true, JobStatusFailed: true},
	}
	for _, from := range JobStatuses {
		for _, to := range JobStatuses {
			assert.Equal(t, allowed[from][to], CanTransition(from, to), "%s -> %s", from, to)
		}
	}
}

func TestApplyTransition_ProcessingSetsStartedAtOnce(t *testing.T) {
	first := at("2024-01-10T10:01:00")
	j := newJob(JobStatusPending)

	j, err := j.ApplyTransition(JobStatusProcessing, TransitionOptions{}, first)
	require.NoError(t, err)
	require.NotNil(t, j.StartedAt)
	assert.Equal(t, first, *j.StartedAt)
	assert.Nil(t, j.CompletedAt)

	// Re-requesting processing from a job that already has startedAt keeps
	// the original value.
	j.Status = JobStatusPending
	j, err = j.ApplyTransition(JobStatusProcessing, TransitionOptions{}, first.Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, first, *j.StartedAt)
}

func TestApplyTransition_CompletedClearsError(t *testing.T) {
	now := at("2024-01-10T10:05:00")
	j := newJob(JobStatusProcessing)
	stale := "earlier failure"
	j.ErrorMessage = &stale

	j, err := j.ApplyTransition(JobStatusCompleted, TransitionOptions{
		ResultData: json.RawMessage(`{"article_id":"a1"}`),
	}, now)
	require.NoError(t, err)
	assert.Equal(t, JobStatusCompleted, j.Status)
	assert.Nil(t, j.ErrorMessage)
	require.NotNil(t, j.CompletedAt)
	assert.Equal(t, now, *j.CompletedAt)
	assert.JSONEq(t, `{"article_id":"a1"}`, string(j.ResultData))
}

func TestApplyTransition_FailedMessage(t *testing.T) {
	now := at("2024-01-10T10:05:00")

	j, err := newJob(JobStatusProcessing).ApplyTransition(JobStatusFailed, TransitionOptions{}, now)
	require.NoError(t, err)
	require.NotNil(t, j.ErrorMessage)
	assert.Equal(t, DefaultFailureMessage, *j.ErrorMessage)
	require.NotNil(t, j.CompletedAt)

	j, err = newJob(JobStatusProcessing).ApplyTransition(JobStatusFailed, TransitionOptions{
		ErrorMessage: "LLM quota exceeded",
	}, now)
	require.NoError(t, err)
	assert.Equal(t, "LLM quota exceeded", *j.ErrorMessage)
}

func TestApplyTransition_PendingStraightToTerminal(t *testing.T) {
	now := at("2024-01-10T10:05:00")
	j, err := newJob(JobStatusPending).ApplyTransition(JobStatusCompleted, TransitionOptions{}, now)
	require.NoError(t, err)
	assert.Nil(t, j.StartedAt)
	require.NotNil(t, j.CompletedAt)
}

func TestApplyTransition_TerminalStatesRejected(t *testing.T) {
	for _, from := range []JobStatus{JobStatusCompleted, JobStatusFailed} {
		for _, to := range JobStatuses {
			j := newJob(from)
			got, err := j.ApplyTransition(to, TransitionOptions{ErrorMessage: "x"}, at("2024-01-10T11:00:00"))
			require.Error(t, err, "%s -> %s", from, to)
			assert.True(t, errors.Is(err, ErrConflict))
			assert.True(t, errors.Is(err, ErrInvalidTransition))
			assert.Equal(t, j, got)
		}
	}
}

func TestApplyTransition_UnknownStatus(t *testing.T) {
	_, err := newJob(JobStatusPending).ApplyTransition("archived", TransitionOptions{}, time.Now())
	assert.True(t, errors.Is(err, ErrValidation))
}

func TestApplyTransition_AttachesPostID(t *testing.T) {
	j := NewArticleJob(uuid.New(), nil, "", at("2024-01-10T10:00:00"))
	post := int64(7)

	j, err := j.ApplyTransition(JobStatusProcessing, TransitionOptions{WPPostID: &post}, at("2024-01-10T10:01:00"))
	require.NoError(t, err)
	require.NotNil(t, j.WPPostID)
	assert.Equal(t, int64(7), *j.WPPostID)
}

func TestCheckDeletable(t *testing.T) {
	assert.NoError(t, newJob(JobStatusPending).CheckDeletable())
	assert.NoError(t, newJob(JobStatusFailed).CheckDeletable())
	assert.True(t, errors.Is(newJob(JobStatusProcessing).CheckDeletable(), ErrConflict))
	assert.True(t, errors.Is(newJob(JobStatusCompleted).CheckDeletable(), ErrConflict))
}
