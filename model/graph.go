package model

import (
	"errors"
	"fmt"
	"sort"
)

// ErrInvalidFieldOfView is returned when the sensed center cell is not walkable.
var ErrInvalidFieldOfView = errors.New("field of view center is not walkable")

// Graph owns every discovered field, keyed by offset. It is the only owner;
// fields reference each other through offsets.
type Graph struct {
	fields map[Offset]*Field
}

func NewGraph() *Graph {
	return &Graph{fields: make(map[Offset]*Field)}
}

// Field returns the field at o, or nil if it has not been discovered.
func (g *Graph) Field(o Offset) *Field {
	return g.fields[o]
}

// Neighbor returns the linked neighbor of f in direction d, or nil.
func (g *Graph) Neighbor(f *Field, d Direction) *Field {
	o, ok := f.NeighborOffset(d)
	if !ok {
		return nil
	}
	return g.fields[o]
}

// Len returns the number of discovered fields.
func (g *Graph) Len() int {
	return len(g.fields)
}

// Fields returns all discovered fields ordered by Y, then X.
func (g *Graph) Fields() []*Field {
	out := make([]*Field, 0, len(g.fields))
	for _, f := range g.fields {
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Offset.Y != out[j].Offset.Y {
			return out[i].Offset.Y < out[j].Offset.Y
		}
		return out[i].Offset.X < out[j].Offset.X
	})
	return out
}

// Integrate merges a field of view sensed while standing at at. The center
// terrain updates or creates the field at at; each sensed neighbor is created
// if new, otherwise its terrain is refreshed, and linked both ways. Unknown
// neighbors are out of bounds and leave the slot empty. Integrating the same
// snapshot twice changes nothing. The offsets of newly created fields are returned.
func (g *Graph) Integrate(fov FieldOfView, at Offset) ([]Offset, error) {
	if !fov.Center.Walkable() {
		return nil, fmt.Errorf("%w: %s at %v", ErrInvalidFieldOfView, fov.Center, at)
	}

	var created []Offset
	center, isNew := g.upsert(at, fov.Center)
	if isNew {
		created = append(created, at)
	}

	for _, d := range Directions {
		sensed := fov.Toward(d)
		if sensed == Unknown {
			continue
		}
		o := at.Step(d)
		neighbor, isNew := g.upsert(o, sensed)
		if isNew {
			created = append(created, o)
		}
		if err := g.link(center, d, neighbor); err != nil {
			return created, err
		}
	}
	return created, nil
}

func (g *Graph) upsert(o Offset, t Terrain) (*Field, bool) {
	if f, ok := g.fields[o]; ok {
		f.Terrain = t
		return f, false
	}
	f := &Field{Offset: o, Terrain: t}
	g.fields[o] = f
	return f, true
}

func (g *Graph) link(a *Field, d Direction, b *Field) error {
	if !a.Offset.AreNeighbors(b.Offset) || a.Offset.Step(d) != b.Offset {
		return fmt.Errorf("%w: cannot link %v %s to %v", ErrInvalidDirectionTranslation, a.Offset, d, b.Offset)
	}
	a.links[d] = true
	b.links[d.Invert()] = true
	return nil
}

// Visit marks the field at o visited. It reports false if o is unknown.
func (g *Graph) Visit(o Offset) bool {
	f, ok := g.fields[o]
	if !ok {
		return false
	}
	f.Visited = true
	return true
}

// SetTerrain records the terrain the mower left behind at o. It reports false
// if o is unknown or t is not walkable; the field is left untouched then.
func (g *Graph) SetTerrain(o Offset, t Terrain) bool {
	f, ok := g.fields[o]
	if !ok || !t.Walkable() {
		return false
	}
	f.Terrain = t
	return true
}

// Stats summarizes the graph.
type Stats struct {
	Discovered int `json:"discovered"`
	Walkable   int `json:"walkable"`
	Visited    int `json:"visited"`
	Water      int `json:"water"`
	Stations   int `json:"stations"`
}

func (g *Graph) Stats() Stats {
	var s Stats
	for _, f := range g.fields {
		s.Discovered++
		if f.Walkable() {
			s.Walkable++
		}
		if f.Visited {
			s.Visited++
		}
		switch f.Terrain {
		case Water:
			s.Water++
		case ChargingStation:
			s.Stations++
		}
	}
	return s
}

// AllVisited reports whether every walkable discovered field has been visited.
func (g *Graph) AllVisited() bool {
	for _, f := range g.fields {
		if f.Walkable() && !f.Visited {
			return false
		}
	}
	return true
}
