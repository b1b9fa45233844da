package signal

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRateLimiterQuota(t *testing.T) {
	rl := NewRoomRateLimiter(3, time.Minute)

	for i := 0; i < 3; i++ {
		assert.True(t, rl.Allow("sid-1"), "attempt %d should pass", i)
	}
	assert.False(t, rl.Allow("sid-1"))

	// Quotas are per session.
	assert.True(t, rl.Allow("sid-2"))
}

func TestRateLimiterWindowRollover(t *testing.T) {
	rl := NewRoomRateLimiter(1, 20*time.Millisecond)

	assert.True(t, rl.Allow("sid"))
	assert.False(t, rl.Allow("sid"))

	time.Sleep(30 * time.Millisecond)
	assert.True(t, rl.Allow("sid"))
}

func TestRateLimiterForget(t *testing.T) {
	rl := NewRoomRateLimiter(1, time.Minute)

	assert.True(t, rl.Allow("sid"))
	assert.False(t, rl.Allow("sid"))

	rl.Forget("sid")
	assert.True(t, rl.Allow("sid"))
}
