// Package circuit implements the per-server failure-isolation state machine.
package circuit

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/magickw/linkDAO-sub004/internal/events"
	"github.com/magickw/linkDAO-sub004/internal/types"
)

// State is the breaker position for one server.
type State int

const (
	Closed State = iota
	Open
	HalfOpen
)

func (s State) String() string {
	switch s {
	case Closed:
		return "closed"
	case Open:
		return "open"
	case HalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// serverBreaker holds the machine for a single server. Created lazily on
// first failure; a server with no record is implicitly closed.
type serverBreaker struct {
	state       State
	failures    int
	lastFailure time.Time
	openedAt    time.Time
}

// Breaker tracks one state machine per server id. It is driven entirely by
// completion reports from real traffic, independent of synthetic health
// probes: a server can pass probes while its breaker is open.
//
// Transitions: closed->open on reaching the failure threshold; open->half-open
// after the recovery timeout; half-open->closed on the next success;
// half-open->open on the next failure.
type Breaker struct {
	mu        sync.Mutex
	threshold int
	recovery  time.Duration
	clock     clockwork.Clock
	bus       *events.Bus
	logger    types.Logger
	states    map[string]*serverBreaker
}

// New creates a breaker set. threshold is the consecutive-weighted failure
// count that opens a circuit, recovery the open->half-open timeout.
func New(threshold int, recovery time.Duration, clock clockwork.Clock, bus *events.Bus, logger types.Logger) *Breaker {
	if threshold <= 0 {
		threshold = 5
	}
	return &Breaker{
		threshold: threshold,
		recovery:  recovery,
		clock:     clock,
		bus:       bus,
		logger:    logger,
		states:    make(map[string]*serverBreaker),
	}
}

// Allows reports whether the server may receive traffic. An open breaker
// whose recovery timeout has elapsed transitions to half-open here, so the
// trial request is admitted on the first eligible selection.
func (b *Breaker) Allows(id string) bool {
	b.mu.Lock()
	sb, ok := b.states[id]
	if !ok || sb.state == Closed || sb.state == HalfOpen {
		b.mu.Unlock()
		return true
	}

	if b.clock.Since(sb.openedAt) >= b.recovery {
		sb.state = HalfOpen
		b.mu.Unlock()
		b.logger.Info("circuit half-open", "server_id", id)
		b.bus.Publish(types.Event{Type: types.EventCircuitHalfOpen, ServerID: id})
		return true
	}
	b.mu.Unlock()
	return false
}

// RecordSuccess feeds a successful completion into the machine.
func (b *Breaker) RecordSuccess(id string) {
	b.mu.Lock()
	sb, ok := b.states[id]
	if !ok {
		b.mu.Unlock()
		return
	}

	switch sb.state {
	case Closed:
		if sb.failures > 0 {
			sb.failures--
		}
		b.mu.Unlock()
	case HalfOpen:
		sb.state = Closed
		sb.failures = 0
		b.mu.Unlock()
		b.logger.Info("circuit closed", "server_id", id)
		b.bus.Publish(types.Event{Type: types.EventCircuitClosed, ServerID: id})
	default:
		// A late report for a request admitted before the circuit opened.
		b.mu.Unlock()
	}
}

// RecordFailure feeds a failed completion into the machine.
func (b *Breaker) RecordFailure(id string) {
	b.mu.Lock()
	sb, ok := b.states[id]
	if !ok {
		sb = &serverBreaker{state: Closed}
		b.states[id] = sb
	}
	sb.lastFailure = b.clock.Now()

	switch sb.state {
	case Closed:
		sb.failures++
		if sb.failures < b.threshold {
			b.mu.Unlock()
			return
		}
		sb.state = Open
		sb.openedAt = b.clock.Now()
		failures := sb.failures
		b.mu.Unlock()
		b.logger.Warn("circuit opened",
			"server_id", id,
			"consecutive_failures", failures,
		)
		b.bus.Publish(types.Event{Type: types.EventCircuitOpened, ServerID: id})
	case HalfOpen:
		sb.state = Open
		sb.openedAt = b.clock.Now()
		b.mu.Unlock()
		b.logger.Warn("circuit reopened after failed trial", "server_id", id)
		b.bus.Publish(types.Event{Type: types.EventCircuitOpened, ServerID: id, Reason: "trial failed"})
	default:
		b.mu.Unlock()
	}
}

// StateOf returns the current state for a server.
func (b *Breaker) StateOf(id string) State {
	b.mu.Lock()
	defer b.mu.Unlock()

	if sb, ok := b.states[id]; ok {
		return sb.state
	}
	return Closed
}

// Remove drops the machine for a purged server.
func (b *Breaker) Remove(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.states, id)
}

// States returns a snapshot of every tracked breaker, keyed by server id.
func (b *Breaker) States() map[string]string {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make(map[string]string, len(b.states))
	for id, sb := range b.states {
		out[id] = sb.state.String()
	}
	return out
}
