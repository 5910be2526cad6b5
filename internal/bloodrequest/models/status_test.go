package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "hemogrid/pkg/domain-errors"
)

var allStatuses = []Status{StatusPending, StatusAccepted, StatusCompleted, StatusCancelled}

func TestTransitionGraph(t *testing.T) {
	allowed := map[Status]map[Status]bool{
		StatusPending:  {StatusAccepted: true, StatusCancelled: true},
		StatusAccepted: {StatusCompleted: true, StatusCancelled: true},
	}

	for _, from := range allStatuses {
		for _, to := range allStatuses {
			t.Run(string(from)+"->"+string(to), func(t *testing.T) {
				assert.Equal(t, allowed[from][to], from.CanTransitionTo(to))
			})
		}
	}
}

func TestTerminalStatesHaveNoExits(t *testing.T) {
	for _, terminal := range []Status{StatusCompleted, StatusCancelled} {
		assert.True(t, terminal.IsTerminal())
		for _, to := range allStatuses {
			assert.False(t, terminal.CanTransitionTo(to), "%s -> %s", terminal, to)
		}
	}
}

func TestIsActiveOnlyWhilePending(t *testing.T) {
	assert.True(t, StatusPending.IsActive())
	assert.False(t, StatusAccepted.IsActive())
	assert.False(t, StatusCompleted.IsActive())
	assert.False(t, StatusCancelled.IsActive())
}

func TestParseStatus(t *testing.T) {
	st, err := ParseStatus("accepted")
	require.NoError(t, err)
	assert.Equal(t, StatusAccepted, st)

	_, err = ParseStatus("archived")
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
	assert.Equal(t, "status", dErrors.FieldOf(err))
}

func TestParseUrgency(t *testing.T) {
	u, err := ParseUrgency("")
	require.NoError(t, err)
	assert.Equal(t, UrgencyMedium, u)

	u, err = ParseUrgency("high")
	require.NoError(t, err)
	assert.Equal(t, UrgencyHigh, u)

	_, err = ParseUrgency("critical")
	assert.Equal(t, "urgency", dErrors.FieldOf(err))
}
