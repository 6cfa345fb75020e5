// Package config provides configuration management for the balancer daemon
package config

import (
	"github.com/spf13/viper"
)

// setDefaults sets default configuration values on the global viper
func setDefaults() {
	applyDefaults(viper.GetViper())
}

// applyDefaults sets default configuration values
func applyDefaults(v *viper.Viper) {
	v.SetDefault("shutdown_timeout", "30s")

	// Load balancing defaults
	v.SetDefault("load_balancing.strategy", "round_robin")
	v.SetDefault("load_balancing.score.utilization", 0.4)
	v.SetDefault("load_balancing.score.response_time", 0.3)
	v.SetDefault("load_balancing.score.error_rate", 0.2)
	v.SetDefault("load_balancing.score.weight", 0.1)

	// Registry defaults
	v.SetDefault("registry.drain_window", "30s")

	// Lease defaults
	v.SetDefault("lease.max_hold", "2m")
	v.SetDefault("lease.sweep_interval", "5s")

	// Health check defaults
	v.SetDefault("health_check.interval", "30s")
	v.SetDefault("health_check.timeout", "5s")
	v.SetDefault("health_check.path", "/health")
	v.SetDefault("health_check.expected_status", 200)

	// Circuit breaker defaults
	v.SetDefault("circuit_breaker.failure_threshold", 5)
	v.SetDefault("circuit_breaker.recovery_timeout", "60s")

	// Metrics defaults
	v.SetDefault("metrics.interval", "60s")
	v.SetDefault("metrics.path", "/metrics")

	// Auto-scaling defaults
	v.SetDefault("autoscaling.interval", "60s")
	v.SetDefault("autoscaling.policy.enabled", false)
	v.SetDefault("autoscaling.policy.min_instances", 1)
	v.SetDefault("autoscaling.policy.max_instances", 10)
	v.SetDefault("autoscaling.policy.response_time_threshold_ms", 1000)
	v.SetDefault("autoscaling.policy.error_rate_threshold", 0.05)
	v.SetDefault("autoscaling.policy.utilization_up_threshold", 0.8)
	v.SetDefault("autoscaling.policy.utilization_down_threshold", 0.3)
	v.SetDefault("autoscaling.policy.scale_down_response_time_ms", 200)
	v.SetDefault("autoscaling.policy.scale_up_cooldown", "5m")
	v.SetDefault("autoscaling.policy.scale_down_cooldown", "10m")

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	// API defaults
	v.SetDefault("api.enabled", true)
	v.SetDefault("api.addr", ":8081")
	v.SetDefault("api.read_timeout", "30s")
	v.SetDefault("api.write_timeout", "30s")
	v.SetDefault("api.rate_limit.enabled", false)
	v.SetDefault("api.rate_limit.rps", 100)
	v.SetDefault("api.rate_limit.burst", 200)
}
