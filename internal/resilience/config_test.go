package resilience

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFromCircuitConfig(t *testing.T) {
	cfg := FromCircuitConfig(3, 60)
	assert.Equal(t, 3, cfg.FailureThreshold)
	assert.Equal(t, time.Minute, cfg.ResetTimeout)

	def := FromCircuitConfig(0, 0)
	assert.Equal(t, 5, def.FailureThreshold)
	assert.Equal(t, 30*time.Second, def.ResetTimeout)
}

func TestFromTimeouts(t *testing.T) {
	cfg := FromTimeouts(2, 10*time.Second)
	assert.Equal(t, 2, cfg.MaxAttempts)
	assert.Equal(t, 10*time.Second, cfg.MaxBackoff)

	def := FromTimeouts(0, 0)
	assert.Equal(t, 3, def.MaxAttempts)
	assert.Equal(t, 30*time.Second, def.MaxBackoff)
}
