package model

import (
	"errors"
	"fmt"
)

// ErrInvalidTerrainForCost is returned when an energy cost is requested for a
// terrain the mower cannot move onto.
var ErrInvalidTerrainForCost = errors.New("terrain cannot be moved onto")

// Energy costs.
const (
	TurnCost     = 4 // per 90° turn
	MowSurcharge = 5 // moving onto grass or cobblestone
)

// TerrainBaseCost is the energy needed to move onto a cell of terrain t.
func TerrainBaseCost(t Terrain) (int, error) {
	switch t {
	case Grass, ChargingStation, MowedLawn:
		return 10, nil
	case CobbleStone:
		return 5, nil
	case Sand:
		return 20, nil
	case Water, Unknown:
		return 0, fmt.Errorf("%w: %s", ErrInvalidTerrainForCost, t)
	}
	return 0, fmt.Errorf("%w: %s", ErrInvalidTerrainForCost, t)
}

// EnergyCost is the cost of turning turns times and then moving onto terrain t.
func EnergyCost(t Terrain, turns int) (int, error) {
	base, err := TerrainBaseCost(t)
	if err != nil {
		return 0, err
	}
	cost := base + turns*TurnCost
	if t.NeedsMowing() {
		cost += MowSurcharge
	}
	return cost, nil
}

// MowingStep is one planned move: the turns to perform in order, then a move
// one cell toward Direction onto a cell of Terrain.
type MowingStep struct {
	Turns      []Direction `json:"turns"`
	Direction  Direction   `json:"direction"`
	Terrain    Terrain     `json:"terrain"`
	EnergyCost int         `json:"energyCost"`
}

// NewMowingStep builds a step and computes its energy cost.
func NewMowingStep(turns []Direction, dir Direction, t Terrain) (MowingStep, error) {
	cost, err := EnergyCost(t, len(turns))
	if err != nil {
		return MowingStep{}, err
	}
	return MowingStep{
		Turns:      append([]Direction(nil), turns...),
		Direction:  dir,
		Terrain:    t,
		EnergyCost: cost,
	}, nil
}

// StepToward plans a step onto a cell of terrain t in direction dir for a
// mower currently facing facing.
func StepToward(facing, dir Direction, t Terrain) (MowingStep, error) {
	return NewMowingStep(PlanTurns(facing, dir), dir, t)
}

func (s MowingStep) String() string {
	return fmt.Sprintf("%s->%s(%d)", s.Direction, s.Terrain, s.EnergyCost)
}

// PlanCost sums the energy cost of steps.
func PlanCost(steps []MowingStep) int {
	total := 0
	for _, s := range steps {
		total += s.EnergyCost
	}
	return total
}
