package agent

import (
	"fmt"

	"github.com/nstehr/mowbot/model"
)

type stepKind int

const (
	stepForward stepKind = iota // explores a new field, pushes a backtrack entry
	stepRetreat                 // undoes the top backtrack entry
	stepTransit                 // travels over visited fields, stack untouched
)

func (k stepKind) String() string {
	switch k {
	case stepForward:
		return "forward"
	case stepRetreat:
		return "retreat"
	case stepTransit:
		return "transit"
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// plannedStep is a MowingStep together with where it lands and how it changes
// the backtrack stack.
type plannedStep struct {
	model.MowingStep
	To   model.Offset
	kind stepKind
}

// plan is an ordered sequence of steps executed as one unit within a tick.
type plan []plannedStep

func (p plan) cost() int {
	return model.PlanCost(p.steps())
}

// end returns where the mower stands and faces after p, starting from pos/facing.
func (p plan) end(pos model.Offset, facing model.Direction) (model.Offset, model.Direction) {
	if len(p) == 0 {
		return pos, facing
	}
	last := p[len(p)-1]
	return last.To, last.Direction
}

func (p plan) steps() []model.MowingStep {
	out := make([]model.MowingStep, len(p))
	for i, s := range p {
		out[i] = s.MowingStep
	}
	return out
}

// selectFrontier picks the first discovered, walkable, unvisited neighbor of
// field in Top, Right, Bottom, Left order.
func selectFrontier(g *model.Graph, field *model.Field, facing model.Direction) (plannedStep, bool, error) {
	for _, d := range model.Directions {
		n := g.Neighbor(field, d)
		if n == nil || !n.Walkable() || n.Visited {
			continue
		}
		step, err := model.StepToward(facing, d, n.Terrain)
		if err != nil {
			return plannedStep{}, false, err
		}
		return plannedStep{MowingStep: step, To: n.Offset, kind: stepForward}, true, nil
	}
	return plannedStep{}, false, nil
}

// backtrackEntry records a forward step taken from Origin and the unvisited
// walkable neighbors Origin still had when it was taken.
type backtrackEntry struct {
	Step     model.MowingStep
	Origin   model.Offset
	Siblings []model.Offset
}

func (e backtrackEntry) destination() model.Offset {
	return e.Origin.Step(e.Step.Direction)
}

// planBacktrack retreats along the stack, newest entry first, until an entry
// still has a sibling, then steps forward onto that sibling. Each visited entry
// contributes one retreat step into its origin. A nil plan means the stack is
// exhausted and the reachable region is covered.
func planBacktrack(g *model.Graph, stack []backtrackEntry, pos model.Offset, facing model.Direction) (plan, error) {
	var out plan
	at := pos
	for i := len(stack) - 1; i >= 0; i-- {
		entry := stack[i]
		if entry.destination() != at {
			return nil, fmt.Errorf("%w: entry %d ends at %v, mower would be at %v", ErrCorruptBacktrackState, i, entry.destination(), at)
		}
		origin := g.Field(entry.Origin)
		if origin == nil {
			return nil, fmt.Errorf("%w: origin %v not discovered", ErrCorruptBacktrackState, entry.Origin)
		}

		back := entry.Step.Direction.Invert()
		retreat, err := model.StepToward(facing, back, origin.Terrain)
		if err != nil {
			return nil, err
		}
		out = append(out, plannedStep{MowingStep: retreat, To: entry.Origin, kind: stepRetreat})
		facing = back
		at = entry.Origin

		if len(entry.Siblings) == 0 {
			continue
		}

		target := g.Field(entry.Siblings[0])
		if target == nil {
			return nil, fmt.Errorf("%w: sibling %v not discovered", ErrCorruptBacktrackState, entry.Siblings[0])
		}
		dir, err := entry.Origin.DirectionTo(target.Offset)
		if err != nil {
			return nil, err
		}
		forward, err := model.StepToward(facing, dir, target.Terrain)
		if err != nil {
			return nil, err
		}
		return append(out, plannedStep{MowingStep: forward, To: target.Offset, kind: stepForward}), nil
	}
	return nil, nil
}

// openSiblings lists the walkable, unvisited neighbors of origin other than except.
func openSiblings(g *model.Graph, origin model.Offset, except model.Offset) []model.Offset {
	field := g.Field(origin)
	if field == nil {
		return nil
	}
	var out []model.Offset
	for _, d := range model.Directions {
		n := g.Neighbor(field, d)
		if n == nil || n.Offset == except || !n.Walkable() || n.Visited {
			continue
		}
		out = append(out, n.Offset)
	}
	return out
}

// pruneSiblings drops siblings that were visited meanwhile or turned out not
// to be walkable.
func pruneSiblings(g *model.Graph, stack []backtrackEntry) {
	for i := range stack {
		kept := stack[i].Siblings[:0]
		for _, o := range stack[i].Siblings {
			f := g.Field(o)
			if f == nil || !f.Walkable() || f.Visited {
				continue
			}
			kept = append(kept, o)
		}
		stack[i].Siblings = kept
	}
}
