// Package balancer assembles the registry, strategy engine, circuit
// breaker, health checker, metrics aggregator and auto-scaler into the
// single long-lived service that callers interact with.
package balancer

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/magickw/linkDAO-sub004/internal/circuit"
	"github.com/magickw/linkDAO-sub004/internal/events"
	"github.com/magickw/linkDAO-sub004/internal/health"
	"github.com/magickw/linkDAO-sub004/internal/metrics"
	"github.com/magickw/linkDAO-sub004/internal/registry"
	"github.com/magickw/linkDAO-sub004/internal/scaler"
	"github.com/magickw/linkDAO-sub004/internal/strategy"
	"github.com/magickw/linkDAO-sub004/internal/types"
)

// Balancer is the load-balancing core. It is constructed explicitly, owns
// its background loops, and is injected into callers; there is no ambient
// global instance.
type Balancer struct {
	cfg    *types.Config
	logger types.Logger
	clock  clockwork.Clock

	registry *registry.Registry
	engine   *strategy.Engine
	breaker  *circuit.Breaker
	checker  *health.Checker
	metrics  *metrics.Aggregator
	scaler   *scaler.Scaler
	bus      *events.Bus

	// selMu serializes snapshot+select+acquire so two concurrent selections
	// never act on the same stale connection counts.
	selMu sync.Mutex

	leaseMu sync.Mutex
	leases  map[string][]time.Time

	cancel    context.CancelFunc
	startOnce sync.Once
	stopOnce  sync.Once
}

// New wires up a balancer from configuration. Call Start to launch the
// background loops and Stop for a deterministic shutdown.
func New(cfg *types.Config, logger types.Logger, clock clockwork.Clock) *Balancer {
	bus := events.New(logger)

	drainWindow := cfg.Registry.DrainWindow
	if drainWindow <= 0 {
		drainWindow = 30 * time.Second
	}
	reg := registry.New(drainWindow, clock, bus, logger)

	score := strategy.ScoreWeights{
		Utilization:  cfg.LoadBalancing.Score.Utilization,
		ResponseTime: cfg.LoadBalancing.Score.ResponseTime,
		ErrorRate:    cfg.LoadBalancing.Score.ErrorRate,
		Weight:       cfg.LoadBalancing.Score.Weight,
	}
	engine := strategy.NewEngine(score, logger)
	if cfg.LoadBalancing.Strategy != "" {
		if err := engine.SetStrategy(cfg.LoadBalancing.Strategy); err != nil {
			logger.Warn("unknown configured strategy, keeping round robin",
				"strategy", cfg.LoadBalancing.Strategy,
			)
		}
	}

	recovery := cfg.CircuitBreaker.RecoveryTimeout
	if recovery <= 0 {
		recovery = 60 * time.Second
	}
	breaker := circuit.New(cfg.CircuitBreaker.FailureThreshold, recovery, clock, bus, logger)

	checker := health.New(health.Config{
		Interval:       cfg.HealthCheck.Interval,
		Timeout:        cfg.HealthCheck.Timeout,
		Path:           cfg.HealthCheck.Path,
		ExpectedStatus: cfg.HealthCheck.ExpectedStatus,
	}, reg, clock, bus, logger)

	agg := metrics.New(cfg.Metrics.Interval, reg, nil, clock, logger)

	policy := cfg.AutoScaling.Policy
	if policy == (types.AutoScalingPolicy{}) {
		policy = types.DefaultAutoScalingPolicy()
	}
	sc := scaler.New(cfg.AutoScaling.Interval, policy, reg, agg, clock, bus, logger)

	b := &Balancer{
		cfg:      cfg,
		logger:   logger,
		clock:    clock,
		registry: reg,
		engine:   engine,
		breaker:  breaker,
		checker:  checker,
		metrics:  agg,
		scaler:   sc,
		bus:      bus,
		leases:   make(map[string][]time.Time),
	}
	reg.OnPurge(func(id string) {
		breaker.Remove(id)
		b.dropLeases(id)
	})
	return b
}

// Start launches the health-check, aggregation, scaling and lease-sweep
// loops. Each is independently cancellable and stops on Stop.
func (b *Balancer) Start() {
	b.startOnce.Do(func() {
		ctx, cancel := context.WithCancel(context.Background())
		b.cancel = cancel

		b.checker.Start(ctx)
		b.metrics.Start(ctx)
		b.scaler.Start(ctx)
		b.startLeaseJanitor(ctx)

		b.logger.Info("balancer started",
			"strategy", b.engine.ActiveName(),
			"autoscaling", b.scaler.Policy().Enabled,
		)
	})
}

// Stop shuts down all background loops and closes the event bus.
func (b *Balancer) Stop() {
	b.stopOnce.Do(func() {
		if b.cancel != nil {
			b.cancel()
		}
		b.checker.Stop()
		b.metrics.Stop()
		b.scaler.Stop()
		b.bus.Close()
		b.logger.Info("balancer stopped")
	})
}

// AddServer registers a backend. An empty id gets a generated one; the
// assigned spec is returned.
func (b *Balancer) AddServer(spec types.ServerSpec) (types.ServerSpec, error) {
	if spec.ID == "" {
		spec.ID = uuid.NewString()
	}
	if spec.Weight == 0 {
		spec.Weight = 1
	}
	if err := b.registry.Add(spec); err != nil {
		return types.ServerSpec{}, err
	}
	return spec, nil
}

// RemoveServer begins the drain-and-remove sequence for a backend.
func (b *Balancer) RemoveServer(id string) error {
	return b.registry.Remove(id)
}

// ListServers returns snapshots of registered servers.
func (b *Balancer) ListServers(filter types.ListFilter) []types.ServerInstance {
	return b.registry.List(filter)
}

// SelectServer picks a target from the eligible set (healthy servers whose
// breaker admits traffic) and atomically claims an in-flight slot on it.
// A non-empty strategyName overrides the configured strategy for this call
// only; an unknown name is ErrUnknownStrategy. An empty eligible set yields
// ErrNoServerAvailable, a back-pressure signal the caller should retry with
// backoff.
func (b *Balancer) SelectServer(strategyName, affinityKey string) (types.Target, error) {
	strat, err := b.engine.Resolve(strategyName)
	if err != nil {
		return types.Target{}, err
	}

	b.selMu.Lock()
	defer b.selMu.Unlock()

	candidates := b.registry.Selectable()
	eligible := candidates[:0]
	for _, s := range candidates {
		if b.breaker.Allows(s.ID) {
			eligible = append(eligible, s)
		}
	}

	if len(eligible) == 0 {
		b.logger.Debug("no server available", "strategy", strat.Name())
		b.bus.Publish(types.Event{Type: types.EventNoServersAvailable})
		return types.Target{}, types.ErrNoServerAvailable
	}

	chosen, err := strat.Select(eligible, affinityKey)
	if err != nil {
		b.bus.Publish(types.Event{Type: types.EventNoServersAvailable})
		return types.Target{}, err
	}

	if err := b.registry.Acquire(chosen.ID); err != nil {
		return types.Target{}, err
	}
	b.pushLease(chosen.ID)

	return types.Target{ID: chosen.ID, Host: chosen.Host, Port: chosen.Port}, nil
}

// ReportCompletion records the outcome of a previously selected request:
// it returns the in-flight slot, updates the server's smoothed signals,
// feeds the circuit breaker, and counts toward the next metrics snapshot.
func (b *Balancer) ReportCompletion(serverID string, latency time.Duration, success bool) error {
	release := b.popLease(serverID)
	if err := b.registry.RecordCompletion(serverID, latency, success, release); err != nil {
		return err
	}

	if success {
		b.breaker.RecordSuccess(serverID)
	} else {
		b.breaker.RecordFailure(serverID)
	}
	b.metrics.RecordCompletion(latency, success)
	return nil
}

// GetMetrics returns the latest aggregated snapshot.
func (b *Balancer) GetMetrics() metrics.Snapshot {
	return b.metrics.GetSnapshot()
}

// SetStrategy switches the active selection algorithm.
func (b *Balancer) SetStrategy(name string) error {
	return b.engine.SetStrategy(name)
}

// Strategy returns the active selection algorithm's name.
func (b *Balancer) Strategy() string {
	return b.engine.ActiveName()
}

// SetAutoScalingPolicy replaces the scaling policy for the next cycle.
func (b *Balancer) SetAutoScalingPolicy(p types.AutoScalingPolicy) error {
	return b.scaler.SetPolicy(p)
}

// AutoScalingPolicy returns the current scaling policy.
func (b *Balancer) AutoScalingPolicy() types.AutoScalingPolicy {
	return b.scaler.Policy()
}

// BreakerStates returns the circuit state per tracked server.
func (b *Balancer) BreakerStates() map[string]string {
	return b.breaker.States()
}

// Subscribe registers an event subscriber.
func (b *Balancer) Subscribe() chan types.Event {
	return b.bus.Subscribe()
}

// Unsubscribe removes an event subscriber.
func (b *Balancer) Unsubscribe(ch chan types.Event) {
	b.bus.Unsubscribe(ch)
}

// pushLease records the selection time for the server; ReportCompletion
// consumes leases oldest-first.
func (b *Balancer) pushLease(id string) {
	b.leaseMu.Lock()
	defer b.leaseMu.Unlock()
	b.leases[id] = append(b.leases[id], b.clock.Now())
}

// popLease consumes the oldest lease for the server. It reports false when
// no lease remains, meaning the slot was already reclaimed by the janitor
// and must not be released twice.
func (b *Balancer) popLease(id string) bool {
	b.leaseMu.Lock()
	defer b.leaseMu.Unlock()

	q := b.leases[id]
	if len(q) == 0 {
		return false
	}
	b.leases[id] = q[1:]
	return true
}

func (b *Balancer) dropLeases(id string) {
	b.leaseMu.Lock()
	defer b.leaseMu.Unlock()
	delete(b.leases, id)
}

// startLeaseJanitor reclaims in-flight slots whose caller never reported
// completion, bounding resource exhaustion from misbehaving callers.
func (b *Balancer) startLeaseJanitor(ctx context.Context) {
	maxHold := b.cfg.Lease.MaxHold
	if maxHold <= 0 {
		maxHold = 2 * time.Minute
	}
	sweep := b.cfg.Lease.SweepInterval
	if sweep <= 0 {
		sweep = 5 * time.Second
	}

	go func() {
		ticker := b.clock.NewTicker(sweep)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.Chan():
				b.sweepLeases(maxHold)
			}
		}
	}()
}

// sweepLeases expires leases older than maxHold and defensively returns
// their in-flight slots.
func (b *Balancer) sweepLeases(maxHold time.Duration) {
	cutoff := b.clock.Now().Add(-maxHold)

	b.leaseMu.Lock()
	expired := make(map[string]int)
	for id, q := range b.leases {
		n := 0
		for n < len(q) && q[n].Before(cutoff) {
			n++
		}
		if n > 0 {
			b.leases[id] = q[n:]
			expired[id] = n
		}
	}
	b.leaseMu.Unlock()

	for id, n := range expired {
		for i := 0; i < n; i++ {
			if err := b.registry.Release(id); err != nil {
				break
			}
		}
		b.logger.Warn("completion never reported, in-flight slots reclaimed",
			"server_id", id,
			"count", n,
			"max_hold", maxHold.String(),
		)
	}
}
