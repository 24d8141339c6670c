// Command mowsim simulates a lawn for the mowbot planner, either over the
// planner's unix socket or in-process with -local.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nstehr/mowbot/agent"
	"github.com/nstehr/mowbot/ipc"
	"github.com/nstehr/mowbot/sim"
)

func main() {
	mapPath := flag.String("map", "", "map file (.lawn or JSON terrain codes)")
	socket := flag.String("socket", "/tmp/mowbot.sock", "planner socket to connect to")
	local := flag.Bool("local", false, "run the planner in-process instead of connecting")
	capacity := flag.Int("capacity", 1000, "battery capacity for -local runs")
	interval := flag.Duration("interval", 0, "pause between ticks for -local runs")
	level := flag.String("log-level", "info", "debug, info, warn or error")
	flag.Parse()

	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(*level)); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})))

	if *mapPath == "" {
		fmt.Fprintln(os.Stderr, "mowsim: -map is required")
		flag.Usage()
		os.Exit(2)
	}
	world, err := sim.Load(*mapPath)
	if err != nil {
		slog.Error("failed to load map", "path", *mapPath, "error", err)
		os.Exit(1)
	}
	slog.Info("map loaded", "lawn", world.Name(), "width", world.Width(), "height", world.Height(), "grass", world.Unmowed())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if *local {
		err = runLocal(ctx, world, *capacity, *interval)
	} else {
		err = serve(ctx, world, *socket)
	}

	fmt.Print(world.String())
	stats := world.Stats()
	slog.Info("simulation ended",
		"moves", stats.Moves,
		"turns", stats.Turns,
		"mowed", stats.Mowed,
		"energySpent", stats.EnergySpent,
		"unmowed", world.Unmowed(),
	)
	if err != nil {
		slog.Error("simulation failed", "error", err)
		os.Exit(1)
	}
}

func runLocal(ctx context.Context, world *sim.World, capacity int, interval time.Duration) error {
	engine, err := agent.New(world, agent.Options{Capacity: capacity})
	if err != nil {
		return err
	}
	return agent.Run(ctx, engine, agent.RunOptions{Interval: interval})
}

// serve connects to the planner and answers its requests until it sends a
// summary or hangs up.
func serve(ctx context.Context, world *sim.World, socket string) error {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "unix", socket)
	if err != nil {
		return fmt.Errorf("connect to planner: %w", err)
	}

	c := ipc.NewConnection(conn, nil)
	srv := sim.NewServer(world)
	srv.Register(c)

	helloCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	err = c.Hello(helloCtx, srv.Hello())
	cancel()
	if err != nil {
		c.Close()
		return fmt.Errorf("handshake: %w", err)
	}
	slog.Info("connected to planner", "socket", socket)

	closed := make(chan struct{})
	go func() {
		c.ReadLoop()
		close(closed)
	}()

	select {
	case <-ctx.Done():
		c.Close()
		<-closed
		return nil
	case summary := <-srv.Summary():
		slog.Info("planner finished",
			"mode", summary.Mode,
			"ticks", summary.Ticks,
			"energy", summary.Energy,
			"refuels", summary.Refuels,
			"visited", summary.Graph.Visited,
			"error", summary.Error,
		)
		// Let the ack reach the planner before hanging up.
		select {
		case <-closed:
		case <-time.After(time.Second):
			c.Close()
			<-closed
		}
		return nil
	case <-closed:
		return fmt.Errorf("planner hung up without a summary")
	}
}
