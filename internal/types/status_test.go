package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidTransitionForwardOnly(t *testing.T) {
	order := []JobStatusEnum{StatusSubmitted, StatusAssigned, StatusPreparing, StatusRunning}
	for i := range order {
		for j := range order {
			got := ValidTransition(order[i], order[j])
			assert.Equal(t, i < j, got, "transition %s -> %s", order[i], order[j])
		}
	}
}

func TestValidTransitionIntoTerminal(t *testing.T) {
	assert.True(t, ValidTransition(StatusRunning, StatusFinished))
	assert.True(t, ValidTransition(StatusRunning, StatusFailed))
	assert.False(t, ValidTransition(StatusFinished, StatusRunning), "terminal states must not move backwards")
	assert.False(t, ValidTransition(StatusFailed, StatusFinished), "failed and finished are both terminal")
}

func TestValidTransitionFromEmpty(t *testing.T) {
	assert.True(t, ValidTransition("", StatusSubmitted))
}

func TestApplySequenceProducesMaximum(t *testing.T) {
	updates := []JobStatusEnum{StatusSubmitted, StatusAssigned, StatusRunning, StatusPreparing, StatusFinished, StatusRunning}
	var current JobStatusEnum
	for _, u := range updates {
		if ValidTransition(current, u) {
			current = u
		}
	}
	assert.Equal(t, StatusFinished, current)
}

func TestIsTerminal(t *testing.T) {
	assert.True(t, IsTerminal(StatusFailed))
	assert.True(t, IsTerminal(StatusFinished))
	assert.False(t, IsTerminal(StatusRunning))
}
