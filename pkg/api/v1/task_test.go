package v1

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTaskStatusIsTerminal(t *testing.T) {
	terminal := []TaskStatus{TaskStatusCompleted, TaskStatusFailed, TaskStatusCancelled}
	for _, s := range terminal {
		assert.True(t, s.IsTerminal(), "%s should be terminal", s)
	}

	live := []TaskStatus{
		TaskStatusQueued, TaskStatusPendingAck, TaskStatusAssigned,
		TaskStatusInProgress, TaskStatusInReview, TaskStatusBlocked,
	}
	for _, s := range live {
		assert.False(t, s.IsTerminal(), "%s should not be terminal", s)
	}
}

func TestTaskPriorityRank(t *testing.T) {
	assert.Greater(t, PriorityCritical.Rank(), PriorityHigh.Rank())
	assert.Greater(t, PriorityHigh.Rank(), PriorityNormal.Rank())

	// Unknown and empty priorities fall back to normal weight.
	assert.Equal(t, PriorityNormal.Rank(), TaskPriority("").Rank())
	assert.Equal(t, PriorityNormal.Rank(), TaskPriority("urgent").Rank())
}

func TestTaskPriorityValid(t *testing.T) {
	assert.True(t, PriorityNormal.Valid())
	assert.True(t, PriorityHigh.Valid())
	assert.True(t, PriorityCritical.Valid())
	assert.True(t, TaskPriority("").Valid())

	assert.False(t, TaskPriority("urgent").Valid())
	assert.False(t, TaskPriority("NORMAL").Valid())
}
