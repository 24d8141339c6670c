package agent

import (
	"context"
	"errors"
	"strings"
	"testing"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/nstehr/mowbot/model"
	"github.com/nstehr/mowbot/rules"
	"github.com/nstehr/mowbot/sim"
)

func lawn(t *testing.T, rows ...string) *sim.World {
	t.Helper()
	var b strings.Builder
	b.WriteString(`lawn "test" {`)
	for _, r := range rows {
		b.WriteString(` row "` + r + `";`)
	}
	b.WriteString(" }")
	w, err := sim.ParseLawn("test.lawn", b.String())
	if err != nil {
		t.Fatalf("ParseLawn: %v", err)
	}
	return w
}

// recorder collects every published snapshot.
type recorder struct {
	snaps []Snapshot
}

func (r *recorder) observe(s Snapshot) { r.snaps = append(r.snaps, s) }

func (r *recorder) events(kind EventKind) []Event {
	var out []Event
	for _, s := range r.snaps {
		for _, e := range s.Events {
			if e.Kind == kind {
				out = append(out, e)
			}
		}
	}
	return out
}

func newEngine(t *testing.T, env Environment, capacity int, rec *recorder) *Engine {
	t.Helper()
	opts := Options{Capacity: capacity}
	if rec != nil {
		opts.Observer = rec.observe
	}
	e, err := New(env, opts)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return e
}

// runToCompletion ticks until completion, failing after limit ticks. It
// returns how many ticks reported completion.
func runToCompletion(t *testing.T, e *Engine, limit int) int {
	t.Helper()
	ctx := context.Background()
	completions := 0
	for i := 0; i < limit && !e.Complete(); i++ {
		done, err := e.PerformMove(ctx)
		if err != nil {
			t.Fatalf("tick %d: %v", e.Tick(), err)
		}
		if done {
			completions++
		}
	}
	return completions
}

func linksSymmetric(g *model.Graph) bool {
	for _, f := range g.Fields() {
		for _, d := range model.Directions {
			if !f.Linked(d) {
				continue
			}
			n := g.Neighbor(f, d)
			if n == nil || !n.Linked(d.Invert()) {
				return false
			}
		}
	}
	return true
}

func square(n int) []string {
	rows := make([]string, n)
	for r := range rows {
		rows[r] = strings.Repeat("G", n)
	}
	rows[0] = "C" + rows[0][1:]
	return rows
}

func TestCoverageTerminates(t *testing.T) {
	Convey("Given an all-walkable square lawn", t, func() {
		for n := 1; n <= 6; n++ {
			world := lawn(t, square(n)...)
			engine := newEngine(t, world, 100000, nil)

			completions := runToCompletion(t, engine, 4*n*n+4)

			So(engine.Complete(), ShouldBeTrue)
			So(completions, ShouldEqual, 1)
			So(engine.Graph().Len(), ShouldEqual, n*n)
			So(engine.Graph().AllVisited(), ShouldBeTrue)
			So(engine.Graph().Stats().Visited, ShouldEqual, n*n)
			So(world.Unmowed(), ShouldEqual, 0)
			So(linksSymmetric(engine.Graph()), ShouldBeTrue)
		}
	})

	Convey("Given a lawn with water and sand", t, func() {
		world := lawn(t,
			"CGWG",
			"GKWG",
			"SGGG",
			"WWWW",
		)
		engine := newEngine(t, world, 100000, nil)
		runToCompletion(t, engine, 100)

		So(engine.Complete(), ShouldBeTrue)
		So(engine.Graph().AllVisited(), ShouldBeTrue)
		So(engine.Graph().Stats().Water, ShouldEqual, 6)
		So(world.Unmowed(), ShouldEqual, 0)
		So(linksSymmetric(engine.Graph()), ShouldBeTrue)
	})

	Convey("Given a completed engine", t, func() {
		world := lawn(t, "CG")
		engine := newEngine(t, world, 1000, nil)
		runToCompletion(t, engine, 10)
		moves := world.Stats().Moves

		Convey("further ticks are no-ops", func() {
			done, err := engine.PerformMove(context.Background())
			So(err, ShouldBeNil)
			So(done, ShouldBeFalse)
			So(engine.Complete(), ShouldBeTrue)
			So(world.Stats().Moves, ShouldEqual, moves)
		})
	})
}

func TestDeadEndBacktrack(t *testing.T) {
	Convey("Given a dead end to the right of the station", t, func() {
		// C G W
		// G W W
		world := lawn(t,
			"CGW",
			"GWW",
		)
		rec := &recorder{}
		engine := newEngine(t, world, 1000, rec)
		ctx := context.Background()

		Convey("the first tick explores right", func() {
			done, err := engine.PerformMove(ctx)
			So(err, ShouldBeNil)
			So(done, ShouldBeFalse)
			So(engine.State().Position, ShouldResemble, at(1, 0))
			// Left to Right is a half turn: 10 + 2*4 + 5.
			So(engine.State().Energy, ShouldEqual, 1000-23)
			So(engine.Snapshot().StackDepth, ShouldEqual, 1)

			Convey("the second tick retreats to the station and takes the sibling", func() {
				_, err := engine.PerformMove(ctx)
				So(err, ShouldBeNil)
				So(engine.State().Position, ShouldResemble, at(0, 1))
				So(engine.State().Facing, ShouldEqual, model.Bottom)
				// Retreat onto the station (10 + 2*4), then one turn onto grass (10 + 4 + 5).
				So(engine.State().Energy, ShouldEqual, 1000-23-18-19)
				So(engine.Snapshot().StackDepth, ShouldEqual, 1)
				So(len(rec.events(EventBacktrack)), ShouldEqual, 1)

				Convey("the third tick completes without moving", func() {
					done, err := engine.PerformMove(ctx)
					So(err, ShouldBeNil)
					So(done, ShouldBeTrue)
					So(engine.State().Position, ShouldResemble, at(0, 1))
					So(world.Stats().Moves, ShouldEqual, 3)
					So(len(rec.events(EventCoverageComplete)), ShouldEqual, 1)
				})
			})
		})
	})
}

func TestReturnToCharge(t *testing.T) {
	Convey("Given a corridor longer than one battery allows", t, func() {
		world := lawn(t, "CGGGG")
		rec := &recorder{}
		engine := newEngine(t, world, 110, rec)
		ctx := context.Background()

		tick := func() {
			_, err := engine.PerformMove(ctx)
			So(err, ShouldBeNil)
		}

		for i := 0; i < 3; i++ {
			tick()
		}
		So(engine.State().Mode, ShouldEqual, Exploring)
		So(engine.State().Position, ShouldResemble, at(3, 0))
		So(engine.State().Energy, ShouldEqual, 57)

		Convey("the fourth tick turns back toward the station", func() {
			tick()
			So(engine.State().Mode, ShouldEqual, ReturningToCharge)
			So(engine.State().Position, ShouldResemble, at(2, 0))
			So(engine.Snapshot().ReturnSteps, ShouldEqual, 2)
			So(rec.events(EventReturnTriggered), ShouldHaveLength, 1)
			So(engine.Snapshot().RefuelRule, ShouldEqual, rules.BudgetRuleName)

			Convey("one step per tick until it recharges", func() {
				tick()
				So(engine.State().Position, ShouldResemble, at(1, 0))
				tick()
				So(engine.State().Position, ShouldResemble, at(0, 0))
				So(engine.State().Mode, ShouldEqual, Exploring)
				So(engine.State().Energy, ShouldEqual, 110)
				So(engine.Snapshot().Refuels, ShouldEqual, 1)
				So(rec.events(EventRecharged), ShouldHaveLength, 1)

				Convey("then resumes and finishes the corridor", func() {
					tick()
					So(engine.State().Position, ShouldResemble, at(4, 0))
					So(engine.State().Energy, ShouldEqual, 110-53)

					done, err := engine.PerformMove(ctx)
					So(err, ShouldBeNil)
					So(done, ShouldBeTrue)
					So(engine.Tick(), ShouldEqual, 8)
					So(world.Unmowed(), ShouldEqual, 0)
				})
			})
		})
	})
}

func TestResumeSkipsRetracedDeadEnd(t *testing.T) {
	Convey("Given a dead-end corridor whose only open sibling sits next to the station", t, func() {
		world := lawn(t,
			"CGGGGG",
			"GWWWWW",
		)
		rec := &recorder{}
		engine := newEngine(t, world, 150, rec)
		ctx := context.Background()

		tick := func() bool {
			done, err := engine.PerformMove(ctx)
			So(err, ShouldBeNil)
			return done
		}

		for i := 0; i < 5; i++ {
			tick()
		}
		So(engine.State().Position, ShouldResemble, at(5, 0))
		So(engine.Snapshot().StackDepth, ShouldEqual, 5)

		Convey("it returns to charge from the dead end", func() {
			for i := 0; i < 5; i++ {
				tick()
			}
			So(engine.State().Position, ShouldResemble, at(0, 0))
			So(engine.State().Energy, ShouldEqual, 150)
			So(engine.Snapshot().Refuels, ShouldEqual, 1)

			Convey("and steps straight onto the sibling instead of retracing the corridor", func() {
				moves := world.Stats().Moves
				tick()
				So(world.Stats().Moves, ShouldEqual, moves+1)
				So(engine.State().Position, ShouldResemble, at(0, 1))
				So(engine.State().Energy, ShouldEqual, 150-19)
				So(engine.Snapshot().StackDepth, ShouldEqual, 1)

				So(tick(), ShouldBeTrue)
				So(engine.Complete(), ShouldBeTrue)
				So(world.Unmowed(), ShouldEqual, 0)
				So(rec.events(EventFuelExhausted), ShouldBeEmpty)
			})
		})
	})

	// 121 covers the trip from a recharge out to the dead end and home.
	Convey("Given the same layout at every battery size that can reach the dead end and back", t, func() {
		for capacity := 121; capacity <= 400; capacity += 3 {
			world := lawn(t,
				"CGGGGG",
				"GWWWWW",
			)
			engine := newEngine(t, world, capacity, nil)
			runToCompletion(t, engine, 200)
			So(engine.Complete(), ShouldBeTrue)
			So(world.Unmowed(), ShouldEqual, 0)
		}
	})
}

// misreportingEnv moves the machine but reports a different arrival terrain.
type misreportingEnv struct {
	*sim.World
	arrive model.Terrain
}

func (m misreportingEnv) MoveMowingMachine(ctx context.Context, step model.MowingStep, previous model.Terrain) (model.Terrain, error) {
	if _, err := m.World.MoveMowingMachine(ctx, step, previous); err != nil {
		return model.Unknown, err
	}
	return m.arrive, nil
}

func TestArrivalCostExceedsBattery(t *testing.T) {
	Convey("Given an environment that reports sand where grass was expected", t, func() {
		never, err := rules.NewEngine([]*rules.Rule{{Name: "never", ConditionSrc: "false"}})
		So(err, ShouldBeNil)
		env := misreportingEnv{World: lawn(t, "CG"), arrive: model.Sand}
		engine, err := New(env, Options{Capacity: 25, Rules: never})
		So(err, ShouldBeNil)

		Convey("the engine strands with an empty battery instead of going negative", func() {
			_, err := engine.PerformMove(context.Background())
			So(errors.Is(err, ErrFuelExhausted), ShouldBeTrue)
			So(engine.State().Mode, ShouldEqual, FuelExhausted)
			So(engine.State().Position, ShouldResemble, at(1, 0))
			So(engine.State().Energy, ShouldEqual, 0)
		})
	})
}

func TestFuelExhausted(t *testing.T) {
	Convey("Given a lawn without a charging station", t, func() {
		world := lawn(t, "GGG")
		rec := &recorder{}
		engine := newEngine(t, world, 30, rec)
		ctx := context.Background()

		_, err := engine.PerformMove(ctx)
		So(err, ShouldBeNil)
		So(engine.State().Energy, ShouldEqual, 7)

		Convey("the engine strands once the next step does not fit", func() {
			_, err := engine.PerformMove(ctx)
			So(errors.Is(err, ErrFuelExhausted), ShouldBeTrue)
			So(engine.State().Mode, ShouldEqual, FuelExhausted)
			So(rec.events(EventFuelExhausted), ShouldHaveLength, 1)

			Convey("and every later tick reports it without touching the environment", func() {
				moves := world.Stats().Moves
				_, err := engine.PerformMove(ctx)
				So(errors.Is(err, ErrFuelExhausted), ShouldBeTrue)
				So(world.Stats().Moves, ShouldEqual, moves)
			})
		})
	})

	Convey("Given a battery that cannot cover even the first step", t, func() {
		world := lawn(t, "CG")
		engine := newEngine(t, world, 20, nil)

		_, err := engine.PerformMove(context.Background())
		So(errors.Is(err, ErrFuelExhausted), ShouldBeTrue)
		So(engine.State().Position, ShouldResemble, at(0, 0))
		So(world.Stats().Moves, ShouldEqual, 0)
	})
}

// stubEnv fails or blocks on demand.
type stubEnv struct {
	fov       model.FieldOfView
	fovErr    error
	verify    bool
	verifyErr error
	moves     int
}

func (s *stubEnv) FieldOfView(context.Context) (model.FieldOfView, error) {
	return s.fov, s.fovErr
}

func (s *stubEnv) MoveMowingMachine(context.Context, model.MowingStep, model.Terrain) (model.Terrain, error) {
	s.moves++
	return model.Grass, nil
}

func (s *stubEnv) Verify(context.Context) (bool, error) {
	return s.verify, s.verifyErr
}

func TestEnvironmentFailures(t *testing.T) {
	ctx := context.Background()
	errSensor := errors.New("sensor offline")
	station := model.FieldOfView{
		Center: model.ChargingStation,
		Top:    model.Unknown,
		Right:  model.Unknown,
		Bottom: model.Unknown,
		Left:   model.Unknown,
	}

	Convey("When the machine is not operational", t, func() {
		env := &stubEnv{fov: station, verify: false}
		engine := newEngine(t, env, 100, nil)

		done, err := engine.PerformMove(ctx)
		So(err, ShouldBeNil)
		So(done, ShouldBeFalse)
		So(engine.Tick(), ShouldEqual, 0)
		So(engine.Graph().Len(), ShouldEqual, 0)
	})

	Convey("When verify fails", t, func() {
		env := &stubEnv{verifyErr: errSensor}
		engine := newEngine(t, env, 100, nil)

		_, err := engine.PerformMove(ctx)
		So(errors.Is(err, errSensor), ShouldBeTrue)
	})

	Convey("When the field of view cannot be read", t, func() {
		env := &stubEnv{verify: true, fovErr: errSensor}
		engine := newEngine(t, env, 100, nil)

		_, err := engine.PerformMove(ctx)
		So(errors.Is(err, errSensor), ShouldBeTrue)
		So(engine.State().Mode, ShouldEqual, Exploring)
		So(env.moves, ShouldEqual, 0)
	})

	Convey("When the mower reports standing in water", t, func() {
		env := &stubEnv{verify: true, fov: model.FieldOfView{Center: model.Water}}
		engine := newEngine(t, env, 100, nil)

		_, err := engine.PerformMove(ctx)
		So(errors.Is(err, model.ErrInvalidFieldOfView), ShouldBeTrue)
	})

	Convey("When the station is an island", t, func() {
		env := &stubEnv{verify: true, fov: station}
		engine := newEngine(t, env, 100, nil)

		done, err := engine.PerformMove(ctx)
		So(err, ShouldBeNil)
		So(done, ShouldBeTrue)
		So(env.moves, ShouldEqual, 0)
	})
}

func TestNewValidatesCapacity(t *testing.T) {
	if _, err := New(&stubEnv{}, Options{Capacity: 0}); err == nil {
		t.Error("expected error for zero capacity")
	}
}

func TestCustomRulesReturnEarly(t *testing.T) {
	reserve, err := rules.NewEngine(append(rules.DefaultRules(), &rules.Rule{
		Name:         "reserve",
		Priority:     2000,
		ConditionSrc: `StationReachable && Remaining() - ReturnCost < 5`,
	}))
	if err != nil {
		t.Fatal(err)
	}

	world := lawn(t, "CGGGG")
	rec := &recorder{}
	engine, err := New(world, Options{Capacity: 110, Rules: reserve, Observer: rec.observe})
	if err != nil {
		t.Fatal(err)
	}

	ctx := context.Background()
	for i := 0; i < 40 && !engine.Complete(); i++ {
		if _, err := engine.PerformMove(ctx); err != nil {
			t.Fatalf("tick %d: %v", engine.Tick(), err)
		}
	}
	if !engine.Complete() {
		t.Fatal("coverage did not complete")
	}
	triggered := rec.events(EventReturnTriggered)
	if len(triggered) == 0 {
		t.Fatal("reserve rule never sent the mower back")
	}
	if !strings.Contains(triggered[0].Detail, "reserve") {
		t.Errorf("first return detail = %q, want reserve rule", triggered[0].Detail)
	}
}
