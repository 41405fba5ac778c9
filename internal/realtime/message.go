package realtime

import "time"

type MessageType string

const (
	Heartbeat        MessageType = "heartbeat"
	EnergyUpdate     MessageType = "energy_update"
	SolarUpdate      MessageType = "solar_update"
	GreenhouseUpdate MessageType = "greenhouse_update"
)

// Message is one frame of the realtime stream. Data is omitted for heartbeats.
type Message struct {
	Type      MessageType `json:"type"`
	Timestamp string      `json:"timestamp"`
	Data      any         `json:"data,omitempty"`
	Error     string      `json:"error,omitempty"`
}

func stamp(t time.Time) string { return t.UTC().Format(time.RFC3339) }
