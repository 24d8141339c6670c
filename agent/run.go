package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// ErrTickLimit is returned by Run when RunOptions.MaxTicks is reached first.
var ErrTickLimit = errors.New("tick limit reached")

const defaultIdleWait = 250 * time.Millisecond

// RunOptions paces the host loop.
type RunOptions struct {
	Interval    time.Duration // pause between ticks
	CallTimeout time.Duration // bound on one tick, 0 for none
	MaxTicks    int           // 0 for unlimited
	IdleWait    time.Duration // retry delay after a tick the machine skipped
}

// Run calls PerformMove once per tick until coverage completes, the engine
// fails or ctx is cancelled.
func Run(ctx context.Context, e *Engine, opts RunOptions) error {
	if opts.IdleWait <= 0 {
		opts.IdleWait = defaultIdleWait
	}
	var pace <-chan time.Time
	if opts.Interval > 0 {
		ticker := time.NewTicker(opts.Interval)
		defer ticker.Stop()
		pace = ticker.C
	}

	for {
		if opts.MaxTicks > 0 && e.Tick() >= opts.MaxTicks {
			return fmt.Errorf("%w after %d ticks", ErrTickLimit, e.Tick())
		}
		if pace != nil {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-pace:
			}
		} else if err := ctx.Err(); err != nil {
			return err
		}

		before := e.Tick()
		done, err := perform(ctx, e, opts.CallTimeout)
		if err != nil {
			return err
		}
		if done {
			s := e.Snapshot()
			slog.Info("run finished", "ticks", s.Tick, "visited", s.Graph.Visited, "refuels", s.Refuels, "energy", s.State.Energy)
			return nil
		}
		if e.Tick() == before {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(opts.IdleWait):
			}
		}
	}
}

func perform(ctx context.Context, e *Engine, timeout time.Duration) (bool, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	return e.PerformMove(ctx)
}
