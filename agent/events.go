package agent

import (
	"fmt"

	"github.com/nstehr/mowbot/model"
)

// EventKind identifies something noteworthy that happened during a tick.
type EventKind string

const (
	EventReturnTriggered  EventKind = "return_triggered"
	EventRecharged        EventKind = "recharged"
	EventObstacleFound    EventKind = "obstacle_found"
	EventBacktrack        EventKind = "backtrack"
	EventCoverageComplete EventKind = "coverage_complete"
	EventFuelExhausted    EventKind = "fuel_exhausted"
)

// Event is derived by diffing consecutive snapshots.
type Event struct {
	Kind   EventKind `json:"kind"`
	Tick   int       `json:"tick"`
	Detail string    `json:"detail"`
}

// Snapshot summarizes the engine after a tick.
type Snapshot struct {
	Tick        int         `json:"tick"`
	State       State       `json:"state"`
	Graph       model.Stats `json:"graph"`
	StackDepth  int         `json:"stackDepth"`
	ReturnSteps int         `json:"returnSteps"`
	Retreats    int         `json:"retreats"` // retreat steps executed this tick
	Returns     int         `json:"returns"`  // trips to a station started so far
	Refuels     int         `json:"refuels"`  // completed recharges so far
	RefuelRule  string      `json:"refuelRule,omitempty"`
	Events      []Event     `json:"events,omitempty"`
}

// detectEvents compares cur against the previous tick's snapshot.
func detectEvents(cur Snapshot, prev *Snapshot) []Event {
	if prev == nil {
		return nil
	}

	var events []Event

	if cur.Returns > prev.Returns {
		events = append(events, Event{
			Kind:   EventReturnTriggered,
			Tick:   cur.Tick,
			Detail: fmt.Sprintf("return to charge triggered by rule %s, now at %v with %d energy", cur.RefuelRule, cur.State.Position, cur.State.Energy),
		})
	}

	if cur.Refuels > prev.Refuels {
		events = append(events, Event{
			Kind:   EventRecharged,
			Tick:   cur.Tick,
			Detail: fmt.Sprintf("recharged to %d at %v", cur.State.Capacity, cur.State.Position),
		})
	}

	if cur.Graph.Water > prev.Graph.Water {
		events = append(events, Event{
			Kind:   EventObstacleFound,
			Tick:   cur.Tick,
			Detail: fmt.Sprintf("%d new water field(s) sensed", cur.Graph.Water-prev.Graph.Water),
		})
	}

	if cur.Retreats > 0 {
		events = append(events, Event{
			Kind:   EventBacktrack,
			Tick:   cur.Tick,
			Detail: fmt.Sprintf("retreated %d step(s) to %v", cur.Retreats, cur.State.Position),
		})
	}

	if prev.State.Mode != cur.State.Mode {
		switch cur.State.Mode {
		case Complete:
			events = append(events, Event{
				Kind:   EventCoverageComplete,
				Tick:   cur.Tick,
				Detail: fmt.Sprintf("visited %d of %d discovered fields", cur.Graph.Visited, cur.Graph.Discovered),
			})
		case FuelExhausted:
			events = append(events, Event{
				Kind:   EventFuelExhausted,
				Tick:   cur.Tick,
				Detail: fmt.Sprintf("stranded at %v with %d energy", cur.State.Position, cur.State.Energy),
			})
		}
	}

	return events
}
