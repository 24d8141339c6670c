package agent

import (
	"errors"
	"fmt"

	"github.com/nstehr/mowbot/model"
)

var (
	// ErrFuelExhausted means a trip to a charging station is required but no
	// station can be reached, or even a full battery cannot pay for the next plan.
	ErrFuelExhausted = errors.New("fuel exhausted")

	// ErrCorruptBacktrackState means the backtrack stack no longer describes a
	// path through the discovered graph.
	ErrCorruptBacktrackState = errors.New("corrupt backtrack state")
)

// Mode is the engine's position in its state machine.
type Mode int

const (
	Exploring Mode = iota
	ReturningToCharge
	Complete
	FuelExhausted
)

func (m Mode) String() string {
	switch m {
	case Exploring:
		return "exploring"
	case ReturningToCharge:
		return "returning_to_charge"
	case Complete:
		return "complete"
	case FuelExhausted:
		return "fuel_exhausted"
	}
	return fmt.Sprintf("mode(%d)", m)
}

func (m Mode) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

// Terminal reports whether the engine accepts no further work in mode m.
func (m Mode) Terminal() bool {
	return m == Complete || m == FuelExhausted
}

// State is everything the engine knows about the mower itself. Transitions
// return a new value and never mutate the receiver.
type State struct {
	Mode     Mode            `json:"mode"`
	Position model.Offset    `json:"position"`
	Facing   model.Direction `json:"facing"`
	Terrain  model.Terrain   `json:"terrain"`
	Energy   int             `json:"energy"`
	Capacity int             `json:"capacity"`
}

// initialState puts the mower on the charging station at the origin, facing
// left, with a full battery.
func initialState(capacity int) State {
	return State{
		Mode:     Exploring,
		Facing:   model.Left,
		Terrain:  model.ChargingStation,
		Energy:   capacity,
		Capacity: capacity,
	}
}

// moved returns the state after moving onto to, facing the step's direction,
// having paid cost.
func (s State) moved(dir model.Direction, to model.Offset, arrived model.Terrain, cost int) State {
	s.Position = to
	s.Facing = dir
	s.Terrain = arrived
	s.Energy -= cost
	return s
}

func (s State) sensed(center model.Terrain) State {
	s.Terrain = center
	return s
}

func (s State) recharged() State {
	s.Energy = s.Capacity
	s.Mode = Exploring
	return s
}

func (s State) withMode(m Mode) State {
	s.Mode = m
	return s
}
