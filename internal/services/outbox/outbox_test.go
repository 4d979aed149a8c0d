package outbox

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBackoff_Doubles(t *testing.T) {
	base := 60 * time.Second
	max := time.Hour

	assert.Equal(t, 120*time.Second, backoff(1, base, max))
	assert.Equal(t, 240*time.Second, backoff(2, base, max))
	assert.Equal(t, 480*time.Second, backoff(3, base, max))
}

func TestBackoff_CapsAtMax(t *testing.T) {
	base := 60 * time.Second
	max := time.Hour

	assert.Equal(t, max, backoff(10, base, max))
	assert.Equal(t, max, backoff(100, base, max))
}

func TestBackoff_NegativeRetryCountClamped(t *testing.T) {
	base := 60 * time.Second
	max := time.Hour

	assert.Equal(t, base, backoff(-5, base, max))
}
