package agent

import (
	"container/heap"

	"github.com/nstehr/mowbot/model"
)

// heading is a Dijkstra node: turn costs make the facing part of the state.
type heading struct {
	at     model.Offset
	facing model.Direction
}

type queued struct {
	node heading
	cost int
	seq  int // insertion order, breaks ties deterministically
}

type routeQueue []queued

func (q routeQueue) Len() int { return len(q) }
func (q routeQueue) Less(i, j int) bool {
	if q[i].cost != q[j].cost {
		return q[i].cost < q[j].cost
	}
	return q[i].seq < q[j].seq
}
func (q routeQueue) Swap(i, j int) { q[i], q[j] = q[j], q[i] }
func (q *routeQueue) Push(x any)   { *q = append(*q, x.(queued)) }
func (q *routeQueue) Pop() any {
	old := *q
	n := len(old)
	item := old[n-1]
	*q = old[:n-1]
	return item
}

type hop struct {
	from heading
	step model.MowingStep
}

// shortestRoute finds the cheapest route from (from, facing) to any field
// accepted by isTarget. Only visited fields are entered, so a detour never
// steps onto a field exploration has not reached yet; from itself may be
// unvisited. Edge weights are MowingStep costs including turns. ok is false
// when no target is reachable.
func shortestRoute(g *model.Graph, from model.Offset, facing model.Direction, isTarget func(*model.Field) bool) (route plan, cost int, ok bool, err error) {
	start := g.Field(from)
	if start == nil {
		return nil, 0, false, nil
	}
	if isTarget(start) {
		return nil, 0, true, nil
	}

	origin := heading{at: from, facing: facing}
	best := map[heading]int{origin: 0}
	parent := make(map[heading]hop)
	done := make(map[heading]bool)

	q := &routeQueue{}
	seq := 0
	heap.Push(q, queued{node: origin, cost: 0, seq: seq})

	for q.Len() > 0 {
		cur := heap.Pop(q).(queued)
		if done[cur.node] {
			continue
		}
		done[cur.node] = true

		field := g.Field(cur.node.at)
		if cur.node != origin && isTarget(field) {
			return unwind(parent, origin, cur.node), cur.cost, true, nil
		}

		for _, d := range model.Directions {
			n := g.Neighbor(field, d)
			if n == nil || !n.Walkable() || !n.Visited {
				continue
			}
			step, err := model.StepToward(cur.node.facing, d, n.Terrain)
			if err != nil {
				return nil, 0, false, err
			}
			next := heading{at: n.Offset, facing: d}
			nc := cur.cost + step.EnergyCost
			if c, seen := best[next]; seen && c <= nc {
				continue
			}
			best[next] = nc
			parent[next] = hop{from: cur.node, step: step}
			seq++
			heap.Push(q, queued{node: next, cost: nc, seq: seq})
		}
	}
	return nil, 0, false, nil
}

func unwind(parent map[heading]hop, origin, target heading) plan {
	var out plan
	for cur := target; cur != origin; {
		h := parent[cur]
		out = append(out, plannedStep{MowingStep: h.step, To: cur.at, kind: stepTransit})
		cur = h.from
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out
}

func isChargingStation(f *model.Field) bool {
	return f.Terrain == model.ChargingStation
}
