package resilience

import (
	"time"

	"github.com/sells-group/einvoice-cli/internal/config"
)

// FromConfig converts configured retry settings, keeping defaults for
// zero values.
func FromConfig(c config.RetryConfig) RetryConfig {
	cfg := DefaultRetryConfig()
	if c.MaxAttempts > 0 {
		cfg.MaxAttempts = c.MaxAttempts
	}
	if c.InitialBackoffMS > 0 {
		cfg.InitialBackoff = time.Duration(c.InitialBackoffMS) * time.Millisecond
	}
	if c.MaxBackoffMS > 0 {
		cfg.MaxBackoff = time.Duration(c.MaxBackoffMS) * time.Millisecond
	}
	return cfg
}

// FromBreakerConfig converts configured breaker settings.
func FromBreakerConfig(c config.BreakerConfig) CircuitBreakerConfig {
	cfg := DefaultCircuitBreakerConfig()
	if c.FailureThreshold > 0 {
		cfg.FailureThreshold = c.FailureThreshold
	}
	if c.ResetSecs > 0 {
		cfg.ResetTimeout = time.Duration(c.ResetSecs) * time.Second
	}
	return cfg
}
