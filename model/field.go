package model

// Field is a discovered cell. Neighbor slots only record that the adjacent
// field is known; the field itself lives in the Graph that owns both.
type Field struct {
	Offset  Offset
	Terrain Terrain
	Visited bool

	links [DirectionCount]bool
}

// Linked reports whether the neighbor slot in direction d is filled.
func (f *Field) Linked(d Direction) bool {
	return f.links[d]
}

// NeighborOffset returns the key of the neighbor in direction d, and whether
// that neighbor has been discovered.
func (f *Field) NeighborOffset(d Direction) (Offset, bool) {
	return f.Offset.Step(d), f.links[d]
}

// Walkable reports whether the mower can stand on the field.
func (f *Field) Walkable() bool {
	return f.Terrain.Walkable()
}

// FieldOfView is a sensor snapshot of the mower's cell and its four neighbors.
type FieldOfView struct {
	Center Terrain `json:"center"`
	Top    Terrain `json:"top"`
	Right  Terrain `json:"right"`
	Bottom Terrain `json:"bottom"`
	Left   Terrain `json:"left"`
}

// Toward returns the sensed terrain of the neighbor in direction d.
func (v FieldOfView) Toward(d Direction) Terrain {
	switch d {
	case Top:
		return v.Top
	case Right:
		return v.Right
	case Bottom:
		return v.Bottom
	case Left:
		return v.Left
	}
	return Unknown
}
