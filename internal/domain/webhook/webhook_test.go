package webhook

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestIsStale(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	fresh := &Event{Status: StatusProcessing, UpdatedAt: now.Add(-60 * time.Second)}
	assert.False(t, fresh.IsStale(now))

	stale := &Event{Status: StatusProcessing, UpdatedAt: now.Add(-121 * time.Second)}
	assert.True(t, stale.IsStale(now))

	processed := &Event{Status: StatusProcessed, UpdatedAt: now.Add(-1000 * time.Second)}
	assert.False(t, processed.IsStale(now), "a processed event is never stale, regardless of age")
}
