package types

import "time"

// AutoScalingPolicy bounds and thresholds for the scaling control loop.
// Read-only at decision time; replaced wholesale via SetAutoScalingPolicy
// and picked up on the next tick.
type AutoScalingPolicy struct {
	Enabled      bool `json:"enabled" mapstructure:"enabled"`
	MinInstances int  `json:"min_instances" mapstructure:"min_instances"`
	MaxInstances int  `json:"max_instances" mapstructure:"max_instances"`

	// Scale-up triggers (any one suffices)
	ResponseTimeThresholdMs float64 `json:"response_time_threshold_ms" mapstructure:"response_time_threshold_ms"`
	ErrorRateThreshold      float64 `json:"error_rate_threshold" mapstructure:"error_rate_threshold"`
	UtilizationUpThreshold  float64 `json:"utilization_up_threshold" mapstructure:"utilization_up_threshold"`

	// Scale-down requires both
	UtilizationDownThreshold float64 `json:"utilization_down_threshold" mapstructure:"utilization_down_threshold"`
	ScaleDownResponseTimeMs  float64 `json:"scale_down_response_time_ms" mapstructure:"scale_down_response_time_ms"`

	ScaleUpCooldown   time.Duration `json:"scale_up_cooldown" mapstructure:"scale_up_cooldown"`
	ScaleDownCooldown time.Duration `json:"scale_down_cooldown" mapstructure:"scale_down_cooldown"`
}

// DefaultAutoScalingPolicy returns the stock policy values.
func DefaultAutoScalingPolicy() AutoScalingPolicy {
	return AutoScalingPolicy{
		Enabled:                  false,
		MinInstances:             1,
		MaxInstances:             10,
		ResponseTimeThresholdMs:  1000,
		ErrorRateThreshold:       0.05,
		UtilizationUpThreshold:   0.8,
		UtilizationDownThreshold: 0.3,
		ScaleDownResponseTimeMs:  200,
		ScaleUpCooldown:          5 * time.Minute,
		ScaleDownCooldown:        10 * time.Minute,
	}
}

// Validate checks the policy for internal consistency.
func (p AutoScalingPolicy) Validate() error {
	if p.MinInstances < 0 {
		return ValidationError{Field: "min_instances", Message: "must be >= 0"}
	}
	if p.MaxInstances < p.MinInstances {
		return ValidationError{Field: "max_instances", Message: "must be >= min_instances"}
	}
	if p.ErrorRateThreshold < 0 || p.ErrorRateThreshold > 1 {
		return ValidationError{Field: "error_rate_threshold", Message: "must be in [0,1]"}
	}
	if p.UtilizationUpThreshold <= p.UtilizationDownThreshold {
		return ValidationError{Field: "utilization_up_threshold", Message: "must exceed utilization_down_threshold"}
	}
	return nil
}
