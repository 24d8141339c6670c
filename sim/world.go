package sim

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/nstehr/mowbot/model"
)

var (
	// ErrBlocked is returned for a move onto a cell the mower cannot stand on.
	ErrBlocked = errors.New("cell is not walkable")

	// ErrInvalidMap is returned for an empty, ragged or unusable grid.
	ErrInvalidMap = errors.New("invalid map")
)

// Stats counts what the simulated mower has done.
type Stats struct {
	Moves       int `json:"moves"`
	Turns       int `json:"turns"`
	Mowed       int `json:"mowed"`
	EnergySpent int `json:"energySpent"`
}

// World is a grid-backed environment. Row 0 is the top row, so a move toward
// model.Top decreases the row. Cells outside the grid read as model.Unknown.
type World struct {
	mu          sync.Mutex
	name        string
	grid        [][]model.Terrain
	col, row    int
	operational bool
	stats       Stats
}

// NewWorld copies grid and places the mower at (col, row).
func NewWorld(name string, grid [][]model.Terrain, col, row int) (*World, error) {
	if len(grid) == 0 || len(grid[0]) == 0 {
		return nil, fmt.Errorf("%w: empty grid", ErrInvalidMap)
	}
	width := len(grid[0])
	cells := make([][]model.Terrain, len(grid))
	for r, line := range grid {
		if len(line) != width {
			return nil, fmt.Errorf("%w: row %d has %d cells, want %d", ErrInvalidMap, r, len(line), width)
		}
		for c, t := range line {
			if t == model.Unknown {
				return nil, fmt.Errorf("%w: unknown terrain at (%d,%d)", ErrInvalidMap, c, r)
			}
		}
		cells[r] = append([]model.Terrain(nil), line...)
	}

	w := &World{name: name, grid: cells, col: col, row: row, operational: true}
	if start := w.at(col, row); !start.Walkable() {
		return nil, fmt.Errorf("%w: start (%d,%d) is %s", ErrInvalidMap, col, row, start)
	}
	return w, nil
}

func (w *World) Name() string { return w.name }
func (w *World) Width() int   { return len(w.grid[0]) }
func (w *World) Height() int  { return len(w.grid) }

// Position returns the mower's column and row.
func (w *World) Position() (col, row int) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.col, w.row
}

// Terrain returns the terrain at (col, row), Unknown outside the grid.
func (w *World) Terrain(col, row int) model.Terrain {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.at(col, row)
}

func (w *World) at(col, row int) model.Terrain {
	if row < 0 || row >= len(w.grid) || col < 0 || col >= len(w.grid[row]) {
		return model.Unknown
	}
	return w.grid[row][col]
}

func (w *World) Stats() Stats {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.stats
}

// Unmowed counts grass cells left anywhere on the grid, reachable or not.
func (w *World) Unmowed() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	n := 0
	for _, line := range w.grid {
		for _, t := range line {
			if t == model.Grass {
				n++
			}
		}
	}
	return n
}

// SetOperational controls what Verify reports.
func (w *World) SetOperational(ok bool) {
	w.mu.Lock()
	w.operational = ok
	w.mu.Unlock()
}

func (w *World) Verify(ctx context.Context) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.operational, nil
}

func (w *World) FieldOfView(ctx context.Context) (model.FieldOfView, error) {
	if err := ctx.Err(); err != nil {
		return model.FieldOfView{}, err
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	look := func(d model.Direction) model.Terrain {
		c, r := w.neighbor(d)
		return w.at(c, r)
	}
	return model.FieldOfView{
		Center: w.at(w.col, w.row),
		Top:    look(model.Top),
		Right:  look(model.Right),
		Bottom: look(model.Bottom),
		Left:   look(model.Left),
	}, nil
}

// MoveMowingMachine leaves previous behind on the current cell and moves one
// cell toward step.Direction. Grass is mowed on arrival; the terrain found
// before mowing is returned.
func (w *World) MoveMowingMachine(ctx context.Context, step model.MowingStep, previous model.Terrain) (model.Terrain, error) {
	if err := ctx.Err(); err != nil {
		return model.Unknown, err
	}
	if !step.Direction.Valid() {
		return model.Unknown, fmt.Errorf("invalid direction %d", step.Direction)
	}
	if !previous.Walkable() {
		return model.Unknown, fmt.Errorf("%w: cannot leave %s behind", ErrBlocked, previous)
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	c, r := w.neighbor(step.Direction)
	target := w.at(c, r)
	if !target.Walkable() {
		return model.Unknown, fmt.Errorf("%w: %s at (%d,%d)", ErrBlocked, target, c, r)
	}

	w.grid[w.row][w.col] = previous
	w.col, w.row = c, r
	if target == model.Grass {
		w.grid[r][c] = target.Mowed()
		w.stats.Mowed++
	}
	w.stats.Moves++
	w.stats.Turns += len(step.Turns)
	w.stats.EnergySpent += step.EnergyCost
	return target, nil
}

func (w *World) neighbor(d model.Direction) (col, row int) {
	delta := d.Delta()
	return w.col + delta.X, w.row - delta.Y
}

// String renders the grid with the lawn letters, the mower as '@'.
func (w *World) String() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	var out []byte
	for r, line := range w.grid {
		for c, t := range line {
			if c == w.col && r == w.row {
				out = append(out, '@')
				continue
			}
			out = append(out, letterFor(t))
		}
		out = append(out, '\n')
	}
	return string(out)
}
