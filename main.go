package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/nstehr/mowbot/agent"
	"github.com/nstehr/mowbot/config"
	"github.com/nstehr/mowbot/ipc"
	"github.com/nstehr/mowbot/rules"
	"github.com/nstehr/mowbot/telemetry"
)

const banner = `
┌┬┐┌─┐┬ ┬┌┐ ┌─┐┌┬┐
││││ ││││├┴┐│ │ │
┴ ┴└─┘└┴┘└─┘└─┘ ┴

Online Coverage Planning`

func main() {
	configPath := flag.String("config", "", "path to YAML config; built-in defaults when empty")
	flag.Parse()

	cfg := config.Default()
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		cfg = loaded
	}

	level, _ := cfg.Level()
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	fmt.Println(banner)

	slog.Info("starting mowbot", "capacity", cfg.Capacity, "tickInterval", cfg.TickInterval)

	policy, err := rules.NewEngine(cfg.RefuelRules())
	if err != nil {
		slog.Error("failed to compile refuel rules", "error", err)
		os.Exit(1)
	}
	slog.Info("refuel rules loaded", "rules", policy.Names())

	// Unix sockets leave behind a file on unclean shutdown; remove it so we can rebind.
	if err := os.RemoveAll(cfg.Socket); err != nil {
		slog.Error("failed to clean up socket", "path", cfg.Socket, "error", err)
		os.Exit(1)
	}

	listener, err := net.Listen("unix", cfg.Socket)
	if err != nil {
		slog.Error("failed to listen on socket", "path", cfg.Socket, "error", err)
		os.Exit(1)
	}
	defer listener.Close()
	defer os.Remove(cfg.Socket)

	slog.Info("listening on domain socket", "path", cfg.Socket)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	hub := telemetry.NewHub()
	defer hub.Close()
	if cfg.Telemetry != "" {
		go func() {
			if err := telemetry.NewServer(cfg.Telemetry, hub).Serve(ctx); err != nil {
				slog.Error("telemetry stopped", "error", err)
			}
		}()
	}

	go reloadOnHangup(ctx, *configPath, policy)

	go func() {
		for {
			conn, err := listener.Accept()
			if err != nil {
				select {
				case <-ctx.Done():
					return
				default:
					slog.Error("failed to accept connection", "error", err)
					continue
				}
			}
			slog.Info("new connection accepted")
			go handleConn(ctx, conn, cfg, policy, hub)
		}
	}()

	<-ctx.Done()
	slog.Info("shutting down")
}

// handleConn drives one simulator from handshake to summary.
func handleConn(ctx context.Context, conn net.Conn, cfg *config.Config, policy *rules.Engine, hub *telemetry.Hub) {
	c := ipc.NewConnection(conn, nil)
	defer c.Close()

	helloCtx, cancel := context.WithTimeout(ctx, cfg.CallTimeout)
	hello, err := c.AcceptHello(helloCtx)
	cancel()
	if err != nil {
		slog.Error("handshake failed", "error", err)
		return
	}

	env := ipc.NewRemoteEnvironment(c)
	engine, err := agent.New(env, agent.Options{
		Capacity: cfg.Capacity,
		Rules:    policy,
		Observer: hub.Publish,
	})
	if err != nil {
		slog.Error("failed to create engine", "error", err)
		return
	}

	runErr := agent.Run(ctx, engine, agent.RunOptions{
		Interval:    cfg.TickInterval,
		CallTimeout: cfg.CallTimeout,
		MaxTicks:    cfg.MaxTicks,
	})
	switch {
	case runErr == nil:
	case errors.Is(runErr, context.Canceled):
		slog.Info("run interrupted", "lawn", hello.Lawn)
	default:
		slog.Error("run failed", "lawn", hello.Lawn, "mode", engine.State().Mode, "error", runErr)
	}

	snap := engine.Snapshot()
	summary := ipc.SummaryMessage{
		Mode:    snap.State.Mode.String(),
		Ticks:   snap.Tick,
		Energy:  snap.State.Energy,
		Refuels: snap.Refuels,
		Graph:   snap.Graph,
	}
	if runErr != nil {
		summary.Error = runErr.Error()
	}

	sumCtx, cancel := context.WithTimeout(context.Background(), cfg.CallTimeout)
	defer cancel()
	if err := env.Summarize(sumCtx, summary); err != nil {
		slog.Warn("failed to send summary", "error", err)
	}
}

// reloadOnHangup recompiles the refuel rules from the config file on SIGHUP.
// A rule set that fails to load leaves the active one in place.
func reloadOnHangup(ctx context.Context, path string, policy *rules.Engine) {
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)

	for {
		select {
		case <-ctx.Done():
			return
		case <-hup:
			if path == "" {
				slog.Warn("SIGHUP ignored, no config file")
				continue
			}
			cfg, err := config.Load(path)
			if err != nil {
				slog.Error("config reload failed", "error", err)
				continue
			}
			if err := policy.Swap(cfg.RefuelRules()); err != nil {
				slog.Error("refuel rule swap failed", "error", err)
			}
		}
	}
}
