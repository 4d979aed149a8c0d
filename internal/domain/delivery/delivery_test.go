package delivery

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCanTransition_AllowedEdges(t *testing.T) {
	allowed := []struct{ from, to Status }{
		{StatusOpen, StatusPendingApproval},
		{StatusOpen, StatusCaptured},
		{StatusOpen, StatusCancelled},
		{StatusPendingApproval, StatusCaptured},
		{StatusPendingApproval, StatusCancelled},
		{StatusCaptured, StatusInProgress},
		{StatusInProgress, StatusDelivered},
	}
	for _, edge := range allowed {
		assert.True(t, CanTransition(edge.from, edge.to), "%s -> %s should be allowed", edge.from, edge.to)
	}
}

func TestCanTransition_RejectsEverythingElse(t *testing.T) {
	rejected := []struct{ from, to Status }{
		{StatusOpen, StatusInProgress},
		{StatusOpen, StatusDelivered},
		{StatusCaptured, StatusOpen},
		{StatusCaptured, StatusCancelled},
		{StatusDelivered, StatusOpen},
		{StatusCancelled, StatusOpen},
		{StatusInProgress, StatusCaptured},
	}
	for _, edge := range rejected {
		assert.False(t, CanTransition(edge.from, edge.to), "%s -> %s should be rejected", edge.from, edge.to)
	}
}

func TestIsTerminal(t *testing.T) {
	assert.True(t, StatusDelivered.IsTerminal())
	assert.True(t, StatusCancelled.IsTerminal())
	assert.False(t, StatusOpen.IsTerminal())
	assert.False(t, StatusPendingApproval.IsTerminal())
	assert.False(t, StatusCaptured.IsTerminal())
	assert.False(t, StatusInProgress.IsTerminal())
}
