package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/nstehr/mowbot/model"
	"github.com/nstehr/mowbot/rules"
)

// Options configures an Engine.
type Options struct {
	Capacity int            // full battery
	Rules    *rules.Engine  // refuel rules; nil means rules.DefaultRules
	Observer func(Snapshot) // called after every tick, may be nil
}

// Engine is the online coverage planner for one mower. It owns the discovered
// graph and the backtrack stack and advances by one decision per PerformMove.
// An Engine is not safe for concurrent use.
type Engine struct {
	env     Environment
	rules   *rules.Engine
	observe func(Snapshot)

	graph *model.Graph
	stack []backtrackEntry
	state State

	returnRoute plan          // remaining steps to the charging station
	resumeAt    *model.Offset // where exploration stopped for a recharge
	refuelRule  string        // rule that triggered the latest return

	tick     int
	retreats int
	returns  int
	refuels  int
	last     *Snapshot
}

func New(env Environment, opts Options) (*Engine, error) {
	if opts.Capacity <= 0 {
		return nil, fmt.Errorf("energy capacity must be positive, got %d", opts.Capacity)
	}
	policy := opts.Rules
	if policy == nil {
		var err error
		policy, err = rules.NewEngine(rules.DefaultRules())
		if err != nil {
			return nil, err
		}
	}

	e := &Engine{
		env:     env,
		rules:   policy,
		observe: opts.Observer,
		graph:   model.NewGraph(),
		state:   initialState(opts.Capacity),
	}
	initial := e.Snapshot()
	e.last = &initial
	return e, nil
}

// PerformMove advances the engine by one tick. It returns true exactly once,
// on the tick coverage completes; afterwards it is a no-op. Environment
// failures are returned unchanged in meaning and not retried. Once the engine
// is stranded every call returns ErrFuelExhausted.
func (e *Engine) PerformMove(ctx context.Context) (bool, error) {
	switch e.state.Mode {
	case Complete:
		return false, nil
	case FuelExhausted:
		return false, ErrFuelExhausted
	}

	ok, err := e.env.Verify(ctx)
	if err != nil {
		return false, fmt.Errorf("verify: %w", err)
	}
	if !ok {
		slog.Debug("machine not operational, tick skipped", "tick", e.tick)
		return false, nil
	}

	e.tick++
	e.retreats = 0
	done, err := e.advance(ctx)
	if errors.Is(err, ErrFuelExhausted) {
		e.state = e.state.withMode(FuelExhausted)
	}
	e.record()
	return done, err
}

func (e *Engine) advance(ctx context.Context) (bool, error) {
	if err := e.sense(ctx); err != nil {
		return false, err
	}
	if e.state.Mode == ReturningToCharge {
		return false, e.continueReturn(ctx)
	}
	return e.explore(ctx)
}

// sense integrates the current field of view and marks the mower's cell visited.
func (e *Engine) sense(ctx context.Context) error {
	fov, err := e.env.FieldOfView(ctx)
	if err != nil {
		return fmt.Errorf("field of view: %w", err)
	}
	created, err := e.graph.Integrate(fov, e.state.Position)
	if err != nil {
		return err
	}
	e.graph.Visit(e.state.Position)
	e.state = e.state.sensed(fov.Center)
	pruneSiblings(e.graph, e.stack)

	if len(created) > 0 {
		slog.Debug("fields discovered", "tick", e.tick, "at", e.state.Position, "count", len(created))
	}
	return nil
}

func (e *Engine) explore(ctx context.Context) (bool, error) {
	pos, facing := e.state.Position, e.state.Facing

	var (
		p     plan
		depth = len(e.stack)
		err   error
	)
	if e.resumeAt != nil && *e.resumeAt != pos {
		p, depth, err = e.resumePlan(pos, facing, *e.resumeAt)
	} else {
		p, err = e.nextPlan(pos, facing)
	}
	if err != nil {
		return false, err
	}
	if len(p) == 0 {
		e.resumeAt = nil
		e.state = e.state.withMode(Complete)
		stats := e.graph.Stats()
		slog.Info("coverage complete", "tick", e.tick, "visited", stats.Visited, "discovered", stats.Discovered, "energy", e.state.Energy)
		return true, nil
	}

	refuel, err := e.needsToRefuel(p)
	if err != nil {
		return false, err
	}
	if refuel {
		return false, e.startReturn(ctx)
	}

	if depth < len(e.stack) {
		slog.Debug("backtrack entries skipped after recharge", "tick", e.tick, "from", len(e.stack), "to", depth)
		e.stack = e.stack[:depth]
	}
	if err := e.execute(ctx, p); err != nil {
		return false, err
	}
	e.resumeAt = nil
	return false, nil
}

// resumePlan plans the first exploration step after a recharge, starting at
// pos rather than at target, where exploration stopped. When target still has
// a frontier the plan travels back to it first. Otherwise the retreats that
// backtracking would make from target are skipped: the plan travels straight
// to the origin of the newest entry with an open sibling and steps onto it.
// depth is the stack length the plan assumes; entries above it are dropped
// once the plan is committed. An empty plan means coverage is complete.
func (e *Engine) resumePlan(pos model.Offset, facing model.Direction, target model.Offset) (p plan, depth int, err error) {
	field := e.graph.Field(target)
	if field == nil {
		return nil, 0, fmt.Errorf("%w: resume point %v not discovered", ErrCorruptBacktrackState, target)
	}
	if _, ok, err := selectFrontier(e.graph, field, facing); err != nil {
		return nil, 0, err
	} else if ok {
		route, err := e.routeTo(pos, facing, target)
		if err != nil {
			return nil, 0, err
		}
		end, endFacing := route.end(pos, facing)
		next, err := e.nextPlan(end, endFacing)
		if err != nil {
			return nil, 0, err
		}
		return append(route, next...), len(e.stack), nil
	}

	i := len(e.stack) - 1
	for i >= 0 && len(e.stack[i].Siblings) == 0 {
		i--
	}
	if i < 0 {
		return nil, len(e.stack), nil
	}
	entry := e.stack[i]

	route, err := e.routeTo(pos, facing, entry.Origin)
	if err != nil {
		return nil, 0, err
	}
	sibling := e.graph.Field(entry.Siblings[0])
	if sibling == nil {
		return nil, 0, fmt.Errorf("%w: sibling %v not discovered", ErrCorruptBacktrackState, entry.Siblings[0])
	}
	dir, err := entry.Origin.DirectionTo(sibling.Offset)
	if err != nil {
		return nil, 0, err
	}
	_, endFacing := route.end(pos, facing)
	step, err := model.StepToward(endFacing, dir, sibling.Terrain)
	if err != nil {
		return nil, 0, err
	}
	return append(route, plannedStep{MowingStep: step, To: sibling.Offset, kind: stepForward}), i, nil
}

// routeTo is the cheapest route over visited fields from pos to target.
func (e *Engine) routeTo(pos model.Offset, facing model.Direction, target model.Offset) (plan, error) {
	route, _, ok, err := shortestRoute(e.graph, pos, facing, func(f *model.Field) bool {
		return f.Offset == target
	})
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: no route back to %v", ErrCorruptBacktrackState, target)
	}
	return route, nil
}

// nextPlan chooses a frontier step from pos, falling back to backtracking.
func (e *Engine) nextPlan(pos model.Offset, facing model.Direction) (plan, error) {
	field := e.graph.Field(pos)
	if field == nil {
		return nil, fmt.Errorf("%w: mower position %v not discovered", ErrCorruptBacktrackState, pos)
	}
	step, ok, err := selectFrontier(e.graph, field, facing)
	if err != nil {
		return nil, err
	}
	if ok {
		return plan{step}, nil
	}
	return planBacktrack(e.graph, e.stack, pos, facing)
}

// needsToRefuel evaluates the refuel rules for p, using the cheapest known
// route from p's end to a charging station.
func (e *Engine) needsToRefuel(p plan) (bool, error) {
	end, facing := p.end(e.state.Position, e.state.Facing)
	_, returnCost, reachable, err := shortestRoute(e.graph, end, facing, isChargingStation)
	if err != nil {
		return false, err
	}

	decision := e.rules.Evaluate(rules.RefuelEnv{
		PlanCost:         p.cost(),
		PlanSteps:        len(p),
		ReturnCost:       returnCost,
		StationReachable: reachable,
		Energy:           e.state.Energy,
		Capacity:         e.state.Capacity,
	})
	if decision.Refuel {
		e.refuelRule = decision.Rule
	}
	return decision.Refuel, nil
}

func (e *Engine) startReturn(ctx context.Context) error {
	pos := e.state.Position
	if e.resumeAt == nil {
		e.resumeAt = &pos
	}

	route, cost, ok, err := shortestRoute(e.graph, pos, e.state.Facing, isChargingStation)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: no charging station reachable from %v", ErrFuelExhausted, pos)
	}
	e.returns++
	if len(route) == 0 {
		if e.state.Energy >= e.state.Capacity {
			return fmt.Errorf("%w: next plan does not fit a full battery of %d", ErrFuelExhausted, e.state.Capacity)
		}
		e.recharge()
		return nil
	}

	slog.Info("returning to charge",
		"tick", e.tick,
		"from", pos,
		"steps", len(route),
		"cost", cost,
		"energy", e.state.Energy,
		"rule", e.refuelRule,
	)
	e.state = e.state.withMode(ReturningToCharge)
	e.returnRoute = route
	return e.continueReturn(ctx)
}

// continueReturn executes the next step of the return route and recharges on arrival.
func (e *Engine) continueReturn(ctx context.Context) error {
	if len(e.returnRoute) > 0 {
		step := e.returnRoute[0]
		e.returnRoute = e.returnRoute[1:]
		if err := e.execute(ctx, plan{step}); err != nil {
			return err
		}
		if len(e.returnRoute) > 0 {
			return nil
		}
	}

	field := e.graph.Field(e.state.Position)
	if field == nil || !isChargingStation(field) {
		return fmt.Errorf("%w: return route ended at %v, not a charging station", ErrFuelExhausted, e.state.Position)
	}
	e.recharge()
	return nil
}

func (e *Engine) recharge() {
	e.state = e.state.recharged()
	e.refuels++
	slog.Info("recharged", "tick", e.tick, "at", e.state.Position, "energy", e.state.Energy)
}

// execute performs p step by step, keeping the backtrack stack and the graph
// in sync with every move.
func (e *Engine) execute(ctx context.Context, p plan) error {
	for _, s := range p {
		if s.EnergyCost > e.state.Energy {
			return fmt.Errorf("%w: step %s needs %d, %d left", ErrFuelExhausted, s.MowingStep, s.EnergyCost, e.state.Energy)
		}

		origin := e.state.Position
		leaving := e.state.Terrain.Mowed()
		var siblings []model.Offset
		if s.kind == stepForward {
			siblings = openSiblings(e.graph, origin, s.To)
		}

		arrived, err := e.env.MoveMowingMachine(ctx, s.MowingStep, leaving)
		if err != nil {
			return fmt.Errorf("move %s from %v: %w", s.Direction, origin, err)
		}
		cost, err := model.EnergyCost(arrived, len(s.Turns))
		if err != nil {
			return fmt.Errorf("arrived at %v: %w", s.To, err)
		}
		e.graph.SetTerrain(origin, leaving)
		if left := e.state.Energy; cost > left {
			// The machine has moved; record where it is with a drained battery.
			e.state = e.state.moved(s.Direction, s.To, arrived, left)
			return fmt.Errorf("%w: arriving on %s at %v cost %d, %d left", ErrFuelExhausted, arrived, s.To, cost, left)
		}

		switch s.kind {
		case stepForward:
			e.stack = append(e.stack, backtrackEntry{Step: s.MowingStep, Origin: origin, Siblings: siblings})
		case stepRetreat:
			top := len(e.stack) - 1
			if top < 0 || e.stack[top].Origin != s.To {
				return fmt.Errorf("%w: retreat to %v does not match the stack", ErrCorruptBacktrackState, s.To)
			}
			e.stack = e.stack[:top]
			e.retreats++
		}

		e.state = e.state.moved(s.Direction, s.To, arrived, cost)
		slog.Debug("step executed",
			"tick", e.tick,
			"kind", s.kind,
			"to", s.To,
			"direction", s.Direction,
			"terrain", arrived,
			"cost", cost,
			"energy", e.state.Energy,
		)

		if err := e.sense(ctx); err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine) record() {
	snap := e.Snapshot()
	snap.Events = detectEvents(snap, e.last)
	for _, ev := range snap.Events {
		slog.Info("event", "kind", ev.Kind, "tick", ev.Tick, "detail", ev.Detail)
	}
	e.last = &snap
	if e.observe != nil {
		e.observe(snap)
	}
}

// Snapshot summarizes the engine as of the last tick, without events.
func (e *Engine) Snapshot() Snapshot {
	return Snapshot{
		Tick:        e.tick,
		State:       e.state,
		Graph:       e.graph.Stats(),
		StackDepth:  len(e.stack),
		ReturnSteps: len(e.returnRoute),
		Retreats:    e.retreats,
		Returns:     e.returns,
		Refuels:     e.refuels,
		RefuelRule:  e.refuelRule,
	}
}

// State returns the mower's current state.
func (e *Engine) State() State { return e.state }

// Graph exposes the discovered graph for inspection. Callers must not modify it.
func (e *Engine) Graph() *model.Graph { return e.graph }

// Complete reports whether coverage has finished.
func (e *Engine) Complete() bool { return e.state.Mode == Complete }

// Tick returns the number of ticks performed.
func (e *Engine) Tick() int { return e.tick }
