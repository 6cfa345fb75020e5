// Package scaler implements the capacity-scaling control loop. It emits
// scale intents as events; an external provisioning system acts on them.
package scaler

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/magickw/linkDAO-sub004/internal/events"
	"github.com/magickw/linkDAO-sub004/internal/metrics"
	"github.com/magickw/linkDAO-sub004/internal/registry"
	"github.com/magickw/linkDAO-sub004/internal/types"
)

// MetricsSource supplies the aggregated inputs for scale decisions.
type MetricsSource interface {
	GetSnapshot() metrics.Snapshot
}

// Scaler evaluates the auto-scaling policy on a fixed cadence. After any
// scale action, no action in either direction is taken until that action's
// cooldown elapses; this is the anti-flapping discipline.
type Scaler struct {
	interval time.Duration
	clock    clockwork.Clock
	registry *registry.Registry
	source   MetricsSource
	bus      *events.Bus
	logger   types.Logger

	mu           sync.Mutex
	policy       types.AutoScalingPolicy
	lastAction   time.Time
	lastCooldown time.Duration

	stopOnce sync.Once
	stopCh   chan struct{}
	wg       sync.WaitGroup
}

// New creates a scaler with the given initial policy.
func New(interval time.Duration, policy types.AutoScalingPolicy, reg *registry.Registry, source MetricsSource, clock clockwork.Clock, bus *events.Bus, logger types.Logger) *Scaler {
	if interval <= 0 {
		interval = 60 * time.Second
	}
	return &Scaler{
		interval: interval,
		clock:    clock,
		registry: reg,
		source:   source,
		bus:      bus,
		logger:   logger,
		policy:   policy,
		stopCh:   make(chan struct{}),
	}
}

// SetPolicy replaces the policy atomically; it applies on the next tick.
func (s *Scaler) SetPolicy(p types.AutoScalingPolicy) error {
	if err := p.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	s.policy = p
	s.mu.Unlock()
	s.logger.Info("auto-scaling policy updated",
		"enabled", p.Enabled,
		"min_instances", p.MinInstances,
		"max_instances", p.MaxInstances,
	)
	return nil
}

// Policy returns the current policy.
func (s *Scaler) Policy() types.AutoScalingPolicy {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.policy
}

// Start launches the control loop.
func (s *Scaler) Start(ctx context.Context) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		ticker := s.clock.NewTicker(s.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-s.stopCh:
				return
			case <-ticker.Chan():
				s.Evaluate()
			}
		}
	}()
}

// Stop terminates the control loop.
func (s *Scaler) Stop() {
	s.stopOnce.Do(func() { close(s.stopCh) })
	s.wg.Wait()
}

// Evaluate runs one decision pass. The periodic loop calls this every tick.
func (s *Scaler) Evaluate() {
	s.mu.Lock()
	policy := s.policy
	lastAction := s.lastAction
	lastCooldown := s.lastCooldown
	s.mu.Unlock()

	if !policy.Enabled {
		return
	}
	if !lastAction.IsZero() && s.clock.Since(lastAction) < lastCooldown {
		return
	}

	snap := s.source.GetSnapshot()
	healthy := s.registry.List(types.ListFilter{Status: types.StatusHealthy})
	healthyCount := len(healthy)
	util := meanUtilization(healthy)

	if healthyCount < policy.MaxInstances && s.shouldScaleUp(snap, util, policy) {
		s.record(policy.ScaleUpCooldown)
		s.logger.Info("scale-up requested",
			"current", healthyCount,
			"target", healthyCount+1,
			"avg_response_ms", snap.AvgResponseTimeMs,
			"error_rate", snap.ErrorRate,
			"utilization", util,
		)
		s.bus.Publish(types.Event{
			Type:         types.EventScaleUpRequested,
			CurrentCount: healthyCount,
			TargetCount:  healthyCount + 1,
		})
		return
	}

	if healthyCount > policy.MinInstances && s.shouldScaleDown(snap, util, policy) {
		victim, ok := s.registry.LeastConnected()
		if !ok {
			return
		}
		if err := s.registry.Remove(victim.ID); err != nil {
			s.logger.Error("scale-down drain failed", "server_id", victim.ID, "error", err)
			return
		}
		s.record(policy.ScaleDownCooldown)
		s.logger.Info("scale-down requested",
			"current", healthyCount,
			"target", healthyCount-1,
			"server_id", victim.ID,
			"utilization", util,
		)
		s.bus.Publish(types.Event{
			Type:         types.EventScaleDownRequested,
			ServerID:     victim.ID,
			CurrentCount: healthyCount,
			TargetCount:  healthyCount - 1,
		})
	}
}

func (s *Scaler) shouldScaleUp(snap metrics.Snapshot, util float64, p types.AutoScalingPolicy) bool {
	return snap.AvgResponseTimeMs > p.ResponseTimeThresholdMs ||
		snap.ErrorRate > p.ErrorRateThreshold ||
		util > p.UtilizationUpThreshold
}

func (s *Scaler) shouldScaleDown(snap metrics.Snapshot, util float64, p types.AutoScalingPolicy) bool {
	return util < p.UtilizationDownThreshold &&
		snap.AvgResponseTimeMs < p.ScaleDownResponseTimeMs
}

func (s *Scaler) record(cooldown time.Duration) {
	s.mu.Lock()
	s.lastAction = s.clock.Now()
	s.lastCooldown = cooldown
	s.mu.Unlock()
}

// meanUtilization averages connection utilization across the given servers.
// Servers without a connection limit are ignored.
func meanUtilization(servers []types.ServerInstance) float64 {
	sum := 0.0
	n := 0
	for _, s := range servers {
		if s.MaxConns <= 0 {
			continue
		}
		sum += s.Utilization()
		n++
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}
