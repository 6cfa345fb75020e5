package types

import "time"

// Config is the complete daemon configuration, loaded with viper.
type Config struct {
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`

	LoadBalancing struct {
		Strategy string `mapstructure:"strategy"`
		Score    struct {
			Utilization  float64 `mapstructure:"utilization"`
			ResponseTime float64 `mapstructure:"response_time"`
			ErrorRate    float64 `mapstructure:"error_rate"`
			Weight       float64 `mapstructure:"weight"`
		} `mapstructure:"score"`
	} `mapstructure:"load_balancing"`

	Registry struct {
		DrainWindow time.Duration `mapstructure:"drain_window"`
	} `mapstructure:"registry"`

	Lease struct {
		MaxHold       time.Duration `mapstructure:"max_hold"`
		SweepInterval time.Duration `mapstructure:"sweep_interval"`
	} `mapstructure:"lease"`

	HealthCheck struct {
		Interval       time.Duration `mapstructure:"interval"`
		Timeout        time.Duration `mapstructure:"timeout"`
		Path           string        `mapstructure:"path"`
		ExpectedStatus int           `mapstructure:"expected_status"`
	} `mapstructure:"health_check"`

	CircuitBreaker struct {
		FailureThreshold int           `mapstructure:"failure_threshold"`
		RecoveryTimeout  time.Duration `mapstructure:"recovery_timeout"`
	} `mapstructure:"circuit_breaker"`

	Metrics struct {
		Interval time.Duration `mapstructure:"interval"`
		Path     string        `mapstructure:"path"`
	} `mapstructure:"metrics"`

	AutoScaling struct {
		Interval time.Duration     `mapstructure:"interval"`
		Policy   AutoScalingPolicy `mapstructure:"policy"`
	} `mapstructure:"autoscaling"`

	Logging struct {
		Level  string `mapstructure:"level"`
		Format string `mapstructure:"format"` // json, console
	} `mapstructure:"logging"`

	API struct {
		Enabled      bool          `mapstructure:"enabled"`
		Addr         string        `mapstructure:"addr"`
		ReadTimeout  time.Duration `mapstructure:"read_timeout"`
		WriteTimeout time.Duration `mapstructure:"write_timeout"`
		RateLimit    struct {
			Enabled bool `mapstructure:"enabled"`
			RPS     int  `mapstructure:"rps"`
			Burst   int  `mapstructure:"burst"`
		} `mapstructure:"rate_limit"`
	} `mapstructure:"api"`
}
