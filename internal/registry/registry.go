// Package registry implements the authoritative in-memory table of backend
// instances and their live state.
package registry

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/magickw/linkDAO-sub004/internal/events"
	"github.com/magickw/linkDAO-sub004/internal/types"
)

// emaAlpha is the smoothing factor for response-time and error-rate signals.
const emaAlpha = 0.2

// entry is the live, mutable record for one registered server.
type entry struct {
	id       string
	host     string
	port     int
	weight   int
	maxConns int
	tags     map[string]string

	activeConns atomic.Int64

	// Guarded by Registry.mu
	status         types.ServerStatus
	responseTimeMs float64
	errorRate      float64
	rtSeeded       bool
	lastCheck      time.Time
}

func (e *entry) snapshot() types.ServerInstance {
	tags := make(map[string]string, len(e.tags))
	for k, v := range e.tags {
		tags[k] = v
	}
	return types.ServerInstance{
		ID:              e.id,
		Host:            e.host,
		Port:            e.port,
		Weight:          e.weight,
		MaxConns:        e.maxConns,
		Status:          e.status,
		ActiveConns:     e.activeConns.Load(),
		ResponseTimeMs:  e.responseTimeMs,
		ErrorRate:       e.errorRate,
		LastHealthCheck: e.lastCheck,
		Tags:            tags,
	}
}

// Registry is the single source of truth for the server pool. Iteration
// order is insertion order, which keeps tie-breaking deterministic.
type Registry struct {
	mu          sync.RWMutex
	servers     map[string]*entry
	order       []string
	drainWindow time.Duration
	clock       clockwork.Clock
	bus         *events.Bus
	logger      types.Logger

	// Invoked after a drained server is purged, so dependents can drop
	// per-server state (breaker entries, leases).
	onPurge func(id string)
}

// New creates an empty registry. Removed servers are purged drainWindow
// after Remove is called, and never while connections are outstanding.
func New(drainWindow time.Duration, clock clockwork.Clock, bus *events.Bus, logger types.Logger) *Registry {
	return &Registry{
		servers:     make(map[string]*entry),
		drainWindow: drainWindow,
		clock:       clock,
		bus:         bus,
		logger:      logger,
	}
}

// OnPurge registers a callback fired after a server leaves the table.
func (r *Registry) OnPurge(fn func(id string)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onPurge = fn
}

// Add registers a new instance in healthy state with zero connections.
func (r *Registry) Add(spec types.ServerSpec) error {
	if spec.ID == "" || spec.Host == "" || spec.Port <= 0 {
		return types.ErrInvalidSpec
	}
	if spec.Weight < 0 {
		return types.ErrInvalidWeight
	}

	r.mu.Lock()
	if _, exists := r.servers[spec.ID]; exists {
		r.mu.Unlock()
		return types.ErrServerExists
	}

	tags := make(map[string]string, len(spec.Tags))
	for k, v := range spec.Tags {
		tags[k] = v
	}
	e := &entry{
		id:       spec.ID,
		host:     spec.Host,
		port:     spec.Port,
		weight:   spec.Weight,
		maxConns: spec.MaxConns,
		tags:     tags,
		status:   types.StatusHealthy,
	}
	r.servers[spec.ID] = e
	r.order = append(r.order, spec.ID)
	r.mu.Unlock()

	r.logger.Info("server registered",
		"server_id", spec.ID,
		"address", e.snapshot().Address(),
		"weight", spec.Weight,
	)
	r.bus.Publish(types.Event{Type: types.EventServerAdded, ServerID: spec.ID})
	return nil
}

// Remove marks the instance draining and schedules its purge after the
// drain window. Draining servers are excluded from new selections but keep
// accepting completion reports for in-flight work.
func (r *Registry) Remove(id string) error {
	r.mu.Lock()
	e, ok := r.servers[id]
	if !ok {
		r.mu.Unlock()
		return types.ErrServerNotFound
	}
	if e.status == types.StatusDraining {
		r.mu.Unlock()
		return types.ErrServerDraining
	}
	e.status = types.StatusDraining
	r.mu.Unlock()

	r.logger.Info("server draining",
		"server_id", id,
		"drain_window", r.drainWindow.String(),
	)
	r.clock.AfterFunc(r.drainWindow, func() { r.purge(id) })
	return nil
}

// purge deletes a drained server once its in-flight work has finished.
// If connections are still outstanding the purge is re-armed.
func (r *Registry) purge(id string) {
	r.mu.Lock()
	e, ok := r.servers[id]
	if !ok {
		r.mu.Unlock()
		return
	}
	if pending := e.activeConns.Load(); pending > 0 {
		r.mu.Unlock()
		r.logger.Warn("drain window elapsed with in-flight work, purge deferred",
			"server_id", id,
			"active_conns", pending,
		)
		r.clock.AfterFunc(r.drainWindow, func() { r.purge(id) })
		return
	}

	delete(r.servers, id)
	for i, sid := range r.order {
		if sid == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	onPurge := r.onPurge
	r.mu.Unlock()

	r.logger.Info("server removed", "server_id", id)
	r.bus.Publish(types.Event{Type: types.EventServerRemoved, ServerID: id, Reason: "drained"})
	if onPurge != nil {
		onPurge(id)
	}
}

// List returns filtered snapshots of all registered servers, in insertion
// order. The result is a copy, safe to hold across registry mutation.
func (r *Registry) List(filter types.ListFilter) []types.ServerInstance {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]types.ServerInstance, 0, len(r.order))
	for _, id := range r.order {
		snap := r.servers[id].snapshot()
		if filter.Matches(snap) {
			out = append(out, snap)
		}
	}
	return out
}

// Selectable returns snapshots of servers that may receive new work:
// healthy, not draining, and below their connection limit.
func (r *Registry) Selectable() []types.ServerInstance {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]types.ServerInstance, 0, len(r.order))
	for _, id := range r.order {
		e := r.servers[id]
		if e.status != types.StatusHealthy {
			continue
		}
		if e.maxConns > 0 && e.activeConns.Load() >= int64(e.maxConns) {
			continue
		}
		out = append(out, e.snapshot())
	}
	return out
}

// Acquire increments the in-flight count for a selected server.
func (r *Registry) Acquire(id string) error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.servers[id]
	if !ok {
		return types.ErrServerNotFound
	}
	e.activeConns.Add(1)
	return nil
}

// Release decrements the in-flight count, flooring at zero.
func (r *Registry) Release(id string) error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.servers[id]
	if !ok {
		return types.ErrServerNotFound
	}
	if v := e.activeConns.Add(-1); v < 0 {
		e.activeConns.Add(1)
		r.logger.Warn("in-flight count underflow", "server_id", id)
	}
	return nil
}

// RecordCompletion folds a completion report into the server's smoothed
// signals. release controls whether an in-flight slot is returned; it is
// false when the lease already expired and was reclaimed defensively.
func (r *Registry) RecordCompletion(id string, latency time.Duration, success, release bool) error {
	r.mu.Lock()
	e, ok := r.servers[id]
	if !ok {
		r.mu.Unlock()
		return types.ErrServerNotFound
	}

	observeResponseTime(e, float64(latency.Milliseconds()))
	sample := 0.0
	if !success {
		sample = 1.0
	}
	e.errorRate = emaAlpha*sample + (1-emaAlpha)*e.errorRate
	r.mu.Unlock()

	if release {
		return r.Release(id)
	}
	return nil
}

// RecordProbeSuccess folds a successful health probe into the server state
// and reports whether the server just recovered from unhealthy.
func (r *Registry) RecordProbeSuccess(id string, rttMs float64) (recovered bool, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.servers[id]
	if !ok {
		return false, types.ErrServerNotFound
	}
	observeResponseTime(e, rttMs)
	e.lastCheck = r.clock.Now()
	if e.status == types.StatusUnhealthy {
		e.status = types.StatusHealthy
		return true, nil
	}
	return false, nil
}

// RecordProbeFailure marks the server unhealthy and reports whether the
// status actually flipped. Draining servers keep their status.
func (r *Registry) RecordProbeFailure(id string) (flipped bool, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.servers[id]
	if !ok {
		return false, types.ErrServerNotFound
	}
	e.lastCheck = r.clock.Now()
	if e.status == types.StatusHealthy {
		e.status = types.StatusUnhealthy
		return true, nil
	}
	return false, nil
}

// HealthyCount returns the number of servers currently in healthy state.
func (r *Registry) HealthyCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	n := 0
	for _, e := range r.servers {
		if e.status == types.StatusHealthy {
			n++
		}
	}
	return n
}

// Len returns the total number of registered servers, draining included.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.servers)
}

// LeastConnected returns the healthy server with the fewest in-flight
// connections, ties broken by insertion order.
func (r *Registry) LeastConnected() (types.ServerInstance, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var best *entry
	var bestConns int64
	for _, id := range r.order {
		e := r.servers[id]
		if e.status != types.StatusHealthy {
			continue
		}
		conns := e.activeConns.Load()
		if best == nil || conns < bestConns {
			best = e
			bestConns = conns
		}
	}
	if best == nil {
		return types.ServerInstance{}, false
	}
	return best.snapshot(), true
}

// observeResponseTime folds a latency sample into the EMA. The first sample
// seeds the average directly so a cold server does not start from zero.
func observeResponseTime(e *entry, ms float64) {
	if !e.rtSeeded {
		e.responseTimeMs = ms
		e.rtSeeded = true
		return
	}
	e.responseTimeMs = emaAlpha*ms + (1-emaAlpha)*e.responseTimeMs
}
