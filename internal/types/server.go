package types

import (
	"fmt"
	"time"
)

// ServerStatus is the live health state of a backend instance.
type ServerStatus string

const (
	StatusHealthy   ServerStatus = "healthy"
	StatusUnhealthy ServerStatus = "unhealthy"
	StatusDraining  ServerStatus = "draining"
)

// ServerSpec describes a backend instance at registration time.
type ServerSpec struct {
	ID       string            `json:"id"`
	Host     string            `json:"host"`
	Port     int               `json:"port"`
	Weight   int               `json:"weight"`
	MaxConns int               `json:"max_conns"`
	Tags     map[string]string `json:"tags,omitempty"`
}

// ServerInstance is a point-in-time copy of a registered backend.
// Instances returned by the registry are snapshots, never live references.
type ServerInstance struct {
	ID              string            `json:"id"`
	Host            string            `json:"host"`
	Port            int               `json:"port"`
	Weight          int               `json:"weight"`
	MaxConns        int               `json:"max_conns"`
	Status          ServerStatus      `json:"status"`
	ActiveConns     int64             `json:"active_conns"`
	ResponseTimeMs  float64           `json:"response_time_ms"`
	ErrorRate       float64           `json:"error_rate"`
	LastHealthCheck time.Time         `json:"last_health_check"`
	Tags            map[string]string `json:"tags,omitempty"`
}

// Address returns the host:port pair for the instance.
func (s ServerInstance) Address() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// Utilization returns the connection utilization in [0,1].
// Instances without a connection limit report zero utilization.
func (s ServerInstance) Utilization() float64 {
	if s.MaxConns <= 0 {
		return 0
	}
	u := float64(s.ActiveConns) / float64(s.MaxConns)
	if u > 1 {
		return 1
	}
	return u
}

// Target is the handle handed back to callers after a selection.
type Target struct {
	ID   string `json:"server_id"`
	Host string `json:"host"`
	Port int    `json:"port"`
}

// ListFilter restricts the instances returned by ListServers.
// The zero value matches everything.
type ListFilter struct {
	Status ServerStatus
	Tag    string
}

// Matches reports whether the instance passes the filter.
func (f ListFilter) Matches(s ServerInstance) bool {
	if f.Status != "" && s.Status != f.Status {
		return false
	}
	if f.Tag != "" {
		if _, ok := s.Tags[f.Tag]; !ok {
			return false
		}
	}
	return true
}
