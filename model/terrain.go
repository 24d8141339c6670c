package model

import (
	"fmt"
	"strings"
)

// Terrain classifies a grid cell. The numeric values are the codes used in
// JSON map files; Unknown is -1, the out-of-bounds marker.
type Terrain int8

const (
	Unknown         Terrain = -1 // out of bounds or never sensed
	Grass           Terrain = 0
	MowedLawn       Terrain = 1
	CobbleStone     Terrain = 2
	Sand            Terrain = 3
	ChargingStation Terrain = 4
	Water           Terrain = 5 // impassable
)

// Terrains lists every known terrain, Unknown last.
var Terrains = []Terrain{Grass, MowedLawn, CobbleStone, Sand, ChargingStation, Water, Unknown}

// Walkable reports whether the mower can stand on t.
func (t Terrain) Walkable() bool {
	switch t {
	case Grass, MowedLawn, CobbleStone, Sand, ChargingStation:
		return true
	case Water, Unknown:
		return false
	}
	return false
}

// Mowed returns the terrain a cell is left with after the mower passed over it.
func (t Terrain) Mowed() Terrain {
	if t == Grass {
		return MowedLawn
	}
	return t
}

// NeedsMowing reports whether moving onto t costs the mowing surcharge.
func (t Terrain) NeedsMowing() bool {
	return t == Grass || t == CobbleStone
}

func (t Terrain) String() string {
	switch t {
	case Grass:
		return "grass"
	case MowedLawn:
		return "mowed_lawn"
	case CobbleStone:
		return "cobblestone"
	case Sand:
		return "sand"
	case ChargingStation:
		return "charging_station"
	case Water:
		return "water"
	case Unknown:
		return "unknown"
	}
	return fmt.Sprintf("terrain(%d)", t)
}

// ParseTerrain accepts the names produced by String, case-insensitively.
func ParseTerrain(s string) (Terrain, error) {
	for _, t := range Terrains {
		if strings.EqualFold(s, t.String()) {
			return t, nil
		}
	}
	return Unknown, fmt.Errorf("unknown terrain %q", s)
}

// TerrainFromCode converts a map file code. Codes outside the table are rejected.
func TerrainFromCode(code int) (Terrain, error) {
	t := Terrain(code)
	if code < int(Unknown) || code > int(Water) {
		return Unknown, fmt.Errorf("invalid terrain code %d", code)
	}
	return t, nil
}

func (t Terrain) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

func (t *Terrain) UnmarshalText(text []byte) error {
	parsed, err := ParseTerrain(string(text))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}
