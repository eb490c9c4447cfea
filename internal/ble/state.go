package ble

import "fmt"

// ConnectionState is the lifecycle state of the single monitored peripheral.
type ConnectionState int32

const (
	Disconnected ConnectionState = iota
	Connecting
	Connected
	Monitoring
	Reconnecting
)

func (s ConnectionState) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case Monitoring:
		return "monitoring"
	case Reconnecting:
		return "reconnecting"
	default:
		return fmt.Sprintf("ConnectionState(%d)", int32(s))
	}
}

// MarshalText lets states appear by name in JSON status payloads.
func (s ConnectionState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

var transitions = map[ConnectionState][]ConnectionState{
	Disconnected: {Connecting},
	Connecting:   {Connecting, Connected, Disconnected},
	Connected:    {Monitoring, Reconnecting, Disconnected},
	Monitoring:   {Reconnecting, Disconnected},
	Reconnecting: {Connected, Disconnected},
}

// CanTransition reports whether from→to is a legal lifecycle edge.
func CanTransition(from, to ConnectionState) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}
