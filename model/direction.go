package model

import (
	"fmt"
	"strings"
)

// Direction is one of the four cardinal headings, in clockwise order.
type Direction byte

const (
	Top Direction = iota
	Right
	Bottom
	Left
)

// DirectionCount is the number of neighbor slots a field has.
const DirectionCount = 4

// Directions lists all headings in frontier priority order.
var Directions = [DirectionCount]Direction{Top, Right, Bottom, Left}

// Delta maps a heading to its unit vector. Top is +Y and Right is +X; the same
// convention is used for sensing, planning and the environment contract.
func (d Direction) Delta() Offset {
	switch d {
	case Top:
		return Offset{X: 0, Y: 1}
	case Right:
		return Offset{X: 1, Y: 0}
	case Bottom:
		return Offset{X: 0, Y: -1}
	case Left:
		return Offset{X: -1, Y: 0}
	}
	panic(fmt.Sprintf("model: invalid direction %d", d))
}

// Invert returns the opposite heading.
func (d Direction) Invert() Direction {
	switch d {
	case Top:
		return Bottom
	case Right:
		return Left
	case Bottom:
		return Top
	case Left:
		return Right
	}
	panic(fmt.Sprintf("model: invalid direction %d", d))
}

// Vertical reports whether d is Top or Bottom.
func (d Direction) Vertical() bool {
	return d == Top || d == Bottom
}

// Valid reports whether d is one of the four headings.
func (d Direction) Valid() bool {
	return d <= Left
}

func (d Direction) String() string {
	switch d {
	case Top:
		return "top"
	case Right:
		return "right"
	case Bottom:
		return "bottom"
	case Left:
		return "left"
	}
	return fmt.Sprintf("direction(%d)", d)
}

// ParseDirection accepts the names produced by String, case-insensitively.
func ParseDirection(s string) (Direction, error) {
	for _, d := range Directions {
		if strings.EqualFold(s, d.String()) {
			return d, nil
		}
	}
	return Top, fmt.Errorf("unknown direction %q", s)
}

func (d Direction) MarshalText() ([]byte, error) {
	if !d.Valid() {
		return nil, fmt.Errorf("invalid direction %d", d)
	}
	return []byte(d.String()), nil
}

func (d *Direction) UnmarshalText(text []byte) error {
	parsed, err := ParseDirection(string(text))
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// PlanTurns returns the turns needed to face desired when facing current.
// Opposite headings pivot through a fixed perpendicular: Left when current is
// vertical, Top when it is horizontal. There is never more than two turns.
func PlanTurns(current, desired Direction) []Direction {
	if current == desired {
		return nil
	}
	if current.Invert() != desired {
		return []Direction{desired}
	}
	pivot := Top
	if current.Vertical() {
		pivot = Left
	}
	return []Direction{pivot, desired}
}
