package agent

import (
	"testing"

	"github.com/nstehr/mowbot/model"
)

var testLetters = map[byte]model.Terrain{
	'G': model.Grass,
	'M': model.MowedLawn,
	'K': model.CobbleStone,
	'S': model.Sand,
	'C': model.ChargingStation,
	'W': model.Water,
}

// at converts a layout cell to an offset: column c is X, row r is -Y, so the
// top-left cell is the origin and model.Top moves one row up.
func at(c, r int) model.Offset {
	return model.Offset{X: c, Y: -r}
}

// gridGraph senses every walkable cell of rows, as if the mower had stood on
// each one. Nothing is marked visited.
func gridGraph(t *testing.T, rows ...string) *model.Graph {
	t.Helper()
	cell := func(c, r int) model.Terrain {
		if r < 0 || r >= len(rows) || c < 0 || c >= len(rows[r]) {
			return model.Unknown
		}
		terrain, ok := testLetters[rows[r][c]]
		if !ok {
			t.Fatalf("bad layout letter %q", rows[r][c])
		}
		return terrain
	}

	g := model.NewGraph()
	for r, line := range rows {
		for c := range line {
			center := cell(c, r)
			if !center.Walkable() {
				continue
			}
			fov := model.FieldOfView{
				Center: center,
				Top:    cell(c, r-1),
				Right:  cell(c+1, r),
				Bottom: cell(c, r+1),
				Left:   cell(c-1, r),
			}
			if _, err := g.Integrate(fov, at(c, r)); err != nil {
				t.Fatalf("Integrate(%d,%d): %v", c, r, err)
			}
		}
	}
	return g
}

func visitAll(g *model.Graph, offsets ...model.Offset) {
	for _, o := range offsets {
		g.Visit(o)
	}
}
