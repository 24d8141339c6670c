package sim

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/alecthomas/participle/v2"

	"github.com/nstehr/mowbot/model"
)

var letters = map[rune]model.Terrain{
	'G': model.Grass,
	'M': model.MowedLawn,
	'K': model.CobbleStone,
	'S': model.Sand,
	'C': model.ChargingStation,
	'W': model.Water,
}

func letterFor(t model.Terrain) byte {
	for l, lt := range letters {
		if lt == t {
			return byte(l)
		}
	}
	return '?'
}

// lawnFile is the grammar of a .lawn map:
//
//	lawn "backyard" {
//	  start 0 0;
//	  row "CGGS";
//	}
type lawnFile struct {
	Name  string      `parser:"'lawn' @String '{'"`
	Stmts []*lawnStmt `parser:"@@* '}'"`
}

type lawnStmt struct {
	Start *lawnStart `parser:"  @@"`
	Row   *lawnRow   `parser:"| @@"`
}

type lawnStart struct {
	Col int `parser:"'start' @Int"`
	Row int `parser:"@Int ';'"`
}

type lawnRow struct {
	Cells string `parser:"'row' @String ';'"`
}

var lawnParser = participle.MustBuild[lawnFile](participle.Unquote("String"))

// ParseLawn builds a World from .lawn source. Without a start statement the
// mower starts on the first charging station, row by row.
func ParseLawn(filename, src string) (*World, error) {
	file, err := lawnParser.ParseString(filename, src)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", filename, err)
	}

	var grid [][]model.Terrain
	var start *lawnStart
	for _, st := range file.Stmts {
		switch {
		case st.Start != nil:
			if start != nil {
				return nil, fmt.Errorf("%w: %s declares start twice", ErrInvalidMap, filename)
			}
			start = st.Start
		case st.Row != nil:
			line := make([]model.Terrain, 0, len(st.Row.Cells))
			for _, l := range strings.ToUpper(st.Row.Cells) {
				t, ok := letters[l]
				if !ok {
					return nil, fmt.Errorf("%w: %s row %d: unknown letter %q", ErrInvalidMap, filename, len(grid), l)
				}
				line = append(line, t)
			}
			grid = append(grid, line)
		}
	}

	if start != nil {
		return NewWorld(file.Name, grid, start.Col, start.Row)
	}
	col, row, err := defaultStart(grid)
	if err != nil {
		return nil, err
	}
	return NewWorld(file.Name, grid, col, row)
}

// ParseJSON builds a World from a row-major [][]int grid of terrain codes.
func ParseJSON(name string, r io.Reader) (*World, error) {
	var codes [][]int
	if err := json.NewDecoder(r).Decode(&codes); err != nil {
		return nil, fmt.Errorf("decode %s: %w", name, err)
	}
	grid := make([][]model.Terrain, len(codes))
	for i, line := range codes {
		grid[i] = make([]model.Terrain, len(line))
		for j, code := range line {
			t, err := model.TerrainFromCode(code)
			if err != nil {
				return nil, fmt.Errorf("%w: %s (%d,%d): %v", ErrInvalidMap, name, j, i, err)
			}
			grid[i][j] = t
		}
	}
	col, row, err := defaultStart(grid)
	if err != nil {
		return nil, err
	}
	return NewWorld(name, grid, col, row)
}

// Load reads a map file, choosing the format by extension: .lawn, otherwise JSON.
func Load(path string) (*World, error) {
	name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	if filepath.Ext(path) == ".lawn" {
		src, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading map file: %w", err)
		}
		return ParseLawn(filepath.Base(path), string(src))
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("reading map file: %w", err)
	}
	defer f.Close()
	return ParseJSON(name, f)
}

// defaultStart picks the first charging station, else the first walkable cell.
func defaultStart(grid [][]model.Terrain) (col, row int, err error) {
	fallback := [2]int{-1, -1}
	for r, line := range grid {
		for c, t := range line {
			if t == model.ChargingStation {
				return c, r, nil
			}
			if fallback[0] < 0 && t.Walkable() {
				fallback = [2]int{c, r}
			}
		}
	}
	if fallback[0] < 0 {
		return 0, 0, fmt.Errorf("%w: no walkable cell", ErrInvalidMap)
	}
	return fallback[0], fallback[1], nil
}
