package agent

import (
	"context"

	"github.com/nstehr/mowbot/model"
)

// Environment is the mower's view of the world: the simulated or physical map
// manager that senses cells and carries out moves. Calls are synchronous and
// must complete or fail before they return.
type Environment interface {
	// FieldOfView senses the current cell and its four neighbors. It has no side effects.
	FieldOfView(ctx context.Context) (model.FieldOfView, error)

	// MoveMowingMachine performs step. previous is the terrain the mower leaves
	// behind on the cell it is leaving. The returned terrain is the one actually
	// found on arrival and overrides the step's prediction.
	MoveMowingMachine(ctx context.Context, step model.MowingStep, previous model.Terrain) (model.Terrain, error)

	// Verify reports whether the machine is operational. A tick does nothing while it is false.
	Verify(ctx context.Context) (bool, error)
}
