package types

import "time"

// EventType identifies a lifecycle notification published on the event bus.
type EventType string

const (
	EventServerAdded        EventType = "serverAdded"
	EventServerRemoved      EventType = "serverRemoved"
	EventServerUnhealthy    EventType = "serverUnhealthy"
	EventServerRecovered    EventType = "serverRecovered"
	EventCircuitOpened      EventType = "circuitOpened"
	EventCircuitHalfOpen    EventType = "circuitHalfOpen"
	EventCircuitClosed      EventType = "circuitClosed"
	EventScaleUpRequested   EventType = "scaleUpRequested"
	EventScaleDownRequested EventType = "scaleDownRequested"
	EventNoServersAvailable EventType = "noServersAvailable"
)

// Event is a single notification. ServerID is empty for pool-wide events.
// CurrentCount/TargetCount are populated only on scale events; they are the
// payload consumed by the external provisioning system.
type Event struct {
	Type         EventType `json:"type"`
	ServerID     string    `json:"server_id,omitempty"`
	Reason       string    `json:"reason,omitempty"`
	CurrentCount int       `json:"current_count,omitempty"`
	TargetCount  int       `json:"target_count,omitempty"`
	Timestamp    time.Time `json:"timestamp"`
}
