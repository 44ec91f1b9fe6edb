package application

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/rs/zerolog"

	"github.com/alorle/iptv-hub/circuitbreaker"
	"github.com/alorle/iptv-hub/internal/port/driven"
	"github.com/alorle/iptv-hub/logging"
	"github.com/alorle/iptv-hub/metrics"
)

// BreakerStates reports the state of every upstream circuit breaker.
type BreakerStates interface {
	States() map[string]circuitbreaker.State
}

// HealthService orchestrates health checks for the application and its dependencies.
type HealthService struct {
	db        driven.DirectoryRepository
	directory DirectorySnapshot
	swarms    driven.SwarmEngine
	breakers  BreakerStates
	logger    zerolog.Logger
}

// NewHealthService creates a new health check service. swarms and breakers may be nil.
func NewHealthService(db driven.DirectoryRepository, directory DirectorySnapshot, swarms driven.SwarmEngine, breakers BreakerStates, logger zerolog.Logger) *HealthService {
	return &HealthService{
		db:        db,
		directory: directory,
		swarms:    swarms,
		breakers:  breakers,
		logger:    logger,
	}
}

// ComponentHealth represents the health status of a single component.
type ComponentHealth struct {
	Status string `json:"status"` // "ok" or "error"
	Error  string `json:"error,omitempty"`
	Detail string `json:"detail,omitempty"`
}

// HealthStatus represents the overall health status of the application.
type HealthStatus struct {
	Status     string                     `json:"status"` // "ok" if all components are healthy, "degraded" otherwise
	Components map[string]ComponentHealth `json:"components"`
}

// Check performs health checks on all dependencies.
// Returns the overall health status and individual component statuses.
func (s *HealthService) Check(ctx context.Context) HealthStatus {
	status := HealthStatus{
		Status:     "ok",
		Components: make(map[string]ComponentHealth),
	}

	fail := func(name string, err error) {
		status.Components[name] = ComponentHealth{Status: "error", Error: err.Error()}
		status.Status = "degraded"
		metrics.RecordHealthCheckFailure()
		logging.LogHealthCheckFailed(s.logger, name, err)
	}

	if err := s.db.Ping(ctx); err != nil {
		fail("db", err)
	} else {
		status.Components["db"] = ComponentHealth{Status: "ok"}
	}

	dir := s.directory.Directory()
	status.Components["directory"] = ComponentHealth{
		Status: "ok",
		Detail: fmt.Sprintf("%d channels, %d verified", dir.Len(), len(dir.VerifiedIDs())),
	}

	if s.swarms != nil {
		status.Components["swarm"] = ComponentHealth{
			Status: "ok",
			Detail: fmt.Sprintf("%d torrents", len(s.swarms.Torrents())),
		}
	}

	if s.breakers != nil {
		var open []string
		for target, st := range s.breakers.States() {
			if st == circuitbreaker.StateOpen {
				open = append(open, target)
			}
		}
		if len(open) > 0 {
			sort.Strings(open)
			fail("upstreams", fmt.Errorf("circuit open for %s", strings.Join(open, ", ")))
		} else {
			status.Components["upstreams"] = ComponentHealth{Status: "ok"}
		}
	}

	return status
}
