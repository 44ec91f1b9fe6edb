package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ParsedEntries tracks channels produced by parsing a source
	ParsedEntries = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "iptv_source_entries_parsed_total",
		Help: "Total number of channel entries parsed per source",
	}, []string{"source"})

	// DroppedEntries tracks entries discarded while parsing, by reason
	DroppedEntries = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "iptv_source_entries_dropped_total",
		Help: "Total number of entries discarded per source and reason",
	}, []string{"source", "reason"})

	// SourceFetchErrors tracks failed source fetches
	SourceFetchErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "iptv_source_fetch_errors_total",
		Help: "Total number of failed source fetches",
	}, []string{"source"})

	// DirectorySize tracks the number of channels in the published directory
	DirectorySize = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "iptv_directory_channels",
		Help: "Number of channels in the merged directory",
	})

	// DirectoryVerified tracks the number of verified channels
	DirectoryVerified = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "iptv_directory_verified_channels",
		Help: "Number of verified channels in the merged directory",
	})

	// DirectoryRefreshes tracks refresh runs by result
	DirectoryRefreshes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "iptv_directory_refreshes_total",
		Help: "Total number of directory refreshes by result",
	}, []string{"result"})

	// PlaybackTransitions tracks playback state transitions
	PlaybackTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "iptv_playback_transitions_total",
		Help: "Total number of playback state transitions by target state",
	}, []string{"state"})

	// PlaybackFailures tracks failed playback attempts by transport and reason
	PlaybackFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "iptv_playback_failures_total",
		Help: "Total number of failed playback attempts",
	}, []string{"kind", "reason"})

	// PlaybackStaleEvents tracks engine events discarded because their attempt was superseded
	PlaybackStaleEvents = promauto.NewCounter(prometheus.CounterOpts{
		Name: "iptv_playback_stale_events_total",
		Help: "Total number of engine events discarded for superseded attempts",
	})

	// CircuitBreakerState tracks the current state of circuit breakers
	// 0=closed, 1=open, 2=half-open
	CircuitBreakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "iptv_circuit_breaker_state",
		Help: "Current state of circuit breaker (0=closed, 1=open, 2=half-open)",
	}, []string{"target"})

	// CircuitBreakerTrips tracks how many times a circuit breaker transitioned to OPEN
	CircuitBreakerTrips = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "iptv_circuit_breaker_trips_total",
		Help: "Total number of times circuit breaker transitioned to OPEN state",
	}, []string{"target"})

	// HealthCheckFailures tracks health check failures
	HealthCheckFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "iptv_health_check_failures_total",
		Help: "Total number of health check failures",
	})
)

// RecordParse records the outcome of parsing one source.
func RecordParse(source string, parsed, orphaned, malformed, nameless int) {
	ParsedEntries.WithLabelValues(source).Add(float64(parsed))
	DroppedEntries.WithLabelValues(source, "orphaned").Add(float64(orphaned))
	DroppedEntries.WithLabelValues(source, "malformed").Add(float64(malformed))
	DroppedEntries.WithLabelValues(source, "nameless").Add(float64(nameless))
}

// RecordSourceFetchError increments the fetch error counter for a source
func RecordSourceFetchError(source string) {
	SourceFetchErrors.WithLabelValues(source).Inc()
}

// SetDirectory publishes the size of the current directory
func SetDirectory(channels, verified int) {
	DirectorySize.Set(float64(channels))
	DirectoryVerified.Set(float64(verified))
}

// RecordRefresh increments the refresh counter ("ok" or "error")
func RecordRefresh(result string) {
	DirectoryRefreshes.WithLabelValues(result).Inc()
}

// RecordPlaybackTransition increments the transition counter for the target state
func RecordPlaybackTransition(state string) {
	PlaybackTransitions.WithLabelValues(state).Inc()
}

// RecordPlaybackFailure increments the failure counter
func RecordPlaybackFailure(kind, reason string) {
	PlaybackFailures.WithLabelValues(kind, reason).Inc()
}

// RecordStaleEvent increments the stale event counter
func RecordStaleEvent() {
	PlaybackStaleEvents.Inc()
}

// SetCircuitBreakerState updates the circuit breaker state metric
// state should be one of: "CLOSED" (0), "OPEN" (1), "HALF-OPEN" (2)
func SetCircuitBreakerState(target, state string) {
	var value float64
	switch state {
	case "CLOSED":
		value = 0
	case "OPEN":
		value = 1
	case "HALF-OPEN":
		value = 2
	}
	CircuitBreakerState.WithLabelValues(target).Set(value)
}

// RecordCircuitBreakerTrip increments the circuit breaker trip counter
func RecordCircuitBreakerTrip(target string) {
	CircuitBreakerTrips.WithLabelValues(target).Inc()
}

// RecordHealthCheckFailure increments the health check failure counter
func RecordHealthCheckFailure() {
	HealthCheckFailures.Inc()
}
