package config

import (
	"fmt"

	"github.com/magickw/linkDAO-sub004/internal/strategy"
	"github.com/magickw/linkDAO-sub004/internal/types"
)

var knownStrategies = map[string]struct{}{
	strategy.RoundRobin:         {},
	strategy.WeightedRoundRobin: {},
	strategy.LeastConnections:   {},
	strategy.LeastResponseTime:  {},
	strategy.IPHash:             {},
	strategy.ResourceScore:      {},
}

// Validate checks the configuration for consistency.
func Validate(cfg *types.Config) error {
	if cfg.LoadBalancing.Strategy != "" {
		if _, ok := knownStrategies[cfg.LoadBalancing.Strategy]; !ok {
			return fmt.Errorf("%w: %q", types.ErrUnknownStrategy, cfg.LoadBalancing.Strategy)
		}
	}

	if cfg.HealthCheck.Interval < 0 {
		return types.ValidationError{Field: "health_check.interval", Message: "must not be negative"}
	}
	if cfg.HealthCheck.Timeout > 0 && cfg.HealthCheck.Interval > 0 &&
		cfg.HealthCheck.Timeout > cfg.HealthCheck.Interval {
		return types.ValidationError{Field: "health_check.timeout", Message: "must not exceed the probe interval"}
	}
	if cfg.CircuitBreaker.FailureThreshold < 0 {
		return types.ValidationError{Field: "circuit_breaker.failure_threshold", Message: "must not be negative"}
	}

	if cfg.AutoScaling.Policy != (types.AutoScalingPolicy{}) {
		if err := cfg.AutoScaling.Policy.Validate(); err != nil {
			return err
		}
	}

	if cfg.API.Enabled && cfg.API.Addr == "" {
		return types.ValidationError{Field: "api.addr", Message: "required when the API is enabled"}
	}
	return nil
}
