package circuitbreaker

import "sync"

// Registry hands out one breaker per target (typically an upstream host),
// all built from the same template configuration.
type Registry struct {
	template Config

	mu       sync.Mutex
	breakers map[string]CircuitBreaker
}

// NewRegistry creates a registry whose breakers use cfg with Name set to the target.
func NewRegistry(cfg Config) *Registry {
	return &Registry{template: cfg, breakers: make(map[string]CircuitBreaker)}
}

// Get returns the breaker for target, creating it on first use.
func (r *Registry) Get(target string) CircuitBreaker {
	r.mu.Lock()
	defer r.mu.Unlock()

	if cb, ok := r.breakers[target]; ok {
		return cb
	}
	cfg := r.template
	cfg.Name = target
	cb := New(cfg)
	r.breakers[target] = cb
	return cb
}

// States reports the current state of every breaker created so far.
func (r *Registry) States() map[string]State {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make(map[string]State, len(r.breakers))
	for target, cb := range r.breakers {
		out[target] = cb.State()
	}
	return out
}
