package model

import (
	"errors"
	"fmt"
)

// ErrInvalidDirectionTranslation is returned when an offset delta is not one of
// the four cardinal unit vectors.
var ErrInvalidDirectionTranslation = errors.New("offset delta is not a cardinal unit vector")

// Offset is a cell position relative to the charging station the mower started on.
// It is the identity of a discovered field.
type Offset struct {
	X int `json:"x"`
	Y int `json:"y"`
}

func (o Offset) Add(other Offset) Offset {
	return Offset{X: o.X + other.X, Y: o.Y + other.Y}
}

func (o Offset) Subtract(other Offset) Offset {
	return Offset{X: o.X - other.X, Y: o.Y - other.Y}
}

// Step returns the offset one cell away in direction d.
func (o Offset) Step(d Direction) Offset {
	return o.Add(d.Delta())
}

// AreNeighbors reports whether the Manhattan distance between o and other is at most 1.
// An offset counts as its own neighbor.
func (o Offset) AreNeighbors(other Offset) bool {
	return abs(o.X-other.X)+abs(o.Y-other.Y) <= 1
}

// DirectionTo returns the direction that moves o onto other.
func (o Offset) DirectionTo(other Offset) (Direction, error) {
	delta := other.Subtract(o)
	for _, d := range Directions {
		if d.Delta() == delta {
			return d, nil
		}
	}
	return Top, fmt.Errorf("%w: %v -> %v", ErrInvalidDirectionTranslation, o, other)
}

func (o Offset) String() string {
	return fmt.Sprintf("(%d,%d)", o.X, o.Y)
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
