package telemetry

import (
	"github.com/nstehr/mowbot/agent"
	"github.com/nstehr/mowbot/model"
)

// Frame is the JSON document pushed to websocket clients for each snapshot.
type Frame struct {
	Tick       int             `json:"tick"`
	Mode       agent.Mode      `json:"mode"`
	Position   model.Offset    `json:"position"`
	Facing     model.Direction `json:"facing"`
	Terrain    model.Terrain   `json:"terrain"`
	Energy     int             `json:"energy"`
	Capacity   int             `json:"capacity"`
	Battery    float64         `json:"battery"` // Energy / Capacity
	Discovered int             `json:"discovered"`
	Visited    int             `json:"visited"`
	StackDepth int             `json:"stackDepth"`
	Refuels    int             `json:"refuels"`
	Events     []agent.Event   `json:"events,omitempty"`
}

func toFrame(s agent.Snapshot) Frame {
	battery := 0.0
	if s.State.Capacity > 0 {
		battery = float64(s.State.Energy) / float64(s.State.Capacity)
	}
	return Frame{
		Tick:       s.Tick,
		Mode:       s.State.Mode,
		Position:   s.State.Position,
		Facing:     s.State.Facing,
		Terrain:    s.State.Terrain,
		Energy:     s.State.Energy,
		Capacity:   s.State.Capacity,
		Battery:    battery,
		Discovered: s.Graph.Discovered,
		Visited:    s.Graph.Visited,
		StackDepth: s.StackDepth,
		Refuels:    s.Refuels,
		Events:     s.Events,
	}
}
