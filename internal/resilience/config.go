package resilience

import (
	"time"
)

// FromCircuitConfig converts config values to a CircuitBreakerConfig.
func FromCircuitConfig(failureThreshold, resetTimeoutSecs int) CircuitBreakerConfig {
	cfg := DefaultCircuitBreakerConfig()
	if failureThreshold > 0 {
		cfg.FailureThreshold = failureThreshold
	}
	if resetTimeoutSecs > 0 {
		cfg.ResetTimeout = time.Duration(resetTimeoutSecs) * time.Second
	}
	return cfg
}

// FromTimeouts builds a RetryConfig for calls bounded by a per-call timeout:
// attempts are capped so that the backoff never exceeds the timeout itself.
func FromTimeouts(maxAttempts int, perCall time.Duration) RetryConfig {
	cfg := DefaultRetryConfig()
	if maxAttempts > 0 {
		cfg.MaxAttempts = maxAttempts
	}
	if perCall > 0 && perCall < cfg.MaxBackoff {
		cfg.MaxBackoff = perCall
	}
	return cfg
}
