package logging

import (
	"time"

	"github.com/rs/zerolog"
)

// ResilienceEvent represents a type of resilience-related event
type ResilienceEvent string

const (
	EventCircuitBreakerChange ResilienceEvent = "circuit_breaker_change"
	EventHealthCheckFailed    ResilienceEvent = "health_check_failed"
	EventCacheFallback        ResilienceEvent = "cache_fallback"
)

// LogCircuitBreakerChange logs a circuit breaker state change (WARN level)
func LogCircuitBreakerChange(l zerolog.Logger, oldState, newState, target string) {
	ev := l.Warn().
		Str("event", string(EventCircuitBreakerChange)).
		Str("old_state", oldState).
		Str("new_state", newState)
	if target != "" {
		ev = ev.Str("target", target)
	}
	ev.Msg("circuit breaker state changed")
}

// LogHealthCheckFailed logs a failed health check (WARN level)
func LogHealthCheckFailed(l zerolog.Logger, check string, err error) {
	l.Warn().
		Str("event", string(EventHealthCheckFailed)).
		Str("check", check).
		Err(err).
		Msg("health check failed")
}

// LogCacheFallback logs that stale cached content was served instead of a fresh fetch.
func LogCacheFallback(l zerolog.Logger, url string, age time.Duration, cause error) {
	l.Warn().
		Str("event", string(EventCacheFallback)).
		Str("url", url).
		Dur("age", age).
		Err(cause).
		Msg("serving cached content")
}
