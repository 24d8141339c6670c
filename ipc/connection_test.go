package ipc

import (
	"context"
	"errors"
	"fmt"
	"net"
	"testing"
	"time"

	"github.com/nstehr/mowbot/model"
)

// serve starts a simulator-side ReadLoop on one end of a pipe and returns the
// planner-side connection.
func serve(t *testing.T, handlers map[string]Handler) *Connection {
	t.Helper()
	planner, sim := net.Pipe()
	server := NewConnection(sim, handlers)
	go server.ReadLoop()
	client := NewConnection(planner, nil)
	t.Cleanup(func() { client.Close() })
	return client
}

func reply(msgType string, data any) (*Envelope, error) {
	env, err := NewEnvelope(msgType, data)
	if err != nil {
		return nil, err
	}
	return &env, nil
}

func TestCallDecodesReply(t *testing.T) {
	client := serve(t, map[string]Handler{
		TypeVerify: func(Envelope) (*Envelope, error) {
			return reply(TypeVerifyResult, VerifyResult{OK: true})
		},
	})

	var res VerifyResult
	if err := client.Call(context.Background(), TypeVerify, struct{}{}, &res); err != nil {
		t.Fatalf("Call: %v", err)
	}
	if !res.OK {
		t.Error("OK = false, want true")
	}
}

func TestCallSurfacesHandlerError(t *testing.T) {
	client := serve(t, map[string]Handler{
		TypeMove: func(Envelope) (*Envelope, error) {
			return nil, fmt.Errorf("blocked by water")
		},
	})

	err := client.Call(context.Background(), TypeMove, MoveMessage{}, &MoveResult{})
	if !errors.Is(err, ErrRemote) {
		t.Fatalf("err = %v, want ErrRemote", err)
	}
}

func TestCallUnsupportedType(t *testing.T) {
	client := serve(t, nil)

	err := client.Call(context.Background(), TypeFieldOfView, struct{}{}, nil)
	if !errors.Is(err, ErrRemote) {
		t.Fatalf("err = %v, want ErrRemote", err)
	}
}

func TestCallRejectsWrongReplyType(t *testing.T) {
	client := serve(t, map[string]Handler{
		TypeVerify: func(Envelope) (*Envelope, error) {
			return reply(TypeAck, AckMessage{Status: "ok"})
		},
	})

	if err := client.Call(context.Background(), TypeVerify, struct{}{}, &VerifyResult{}); err == nil {
		t.Fatal("expected error for mismatched reply type")
	}
}

func TestCallHonorsDeadline(t *testing.T) {
	planner, sim := net.Pipe()
	defer sim.Close()
	client := NewConnection(planner, nil)
	defer client.Close()

	// The peer never reads, so the write blocks until the deadline.
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err := client.Call(ctx, TypeVerify, struct{}{}, &VerifyResult{})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v, want context.DeadlineExceeded", err)
	}
}

func TestCallCanceledContext(t *testing.T) {
	client := serve(t, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := client.Call(ctx, TypeVerify, struct{}{}, nil); !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}

func TestHelloHandshake(t *testing.T) {
	planner, sim := net.Pipe()
	daemon := NewConnection(planner, nil)
	simulator := NewConnection(sim, nil)
	defer daemon.Close()
	defer simulator.Close()

	want := HelloMessage{Lawn: "backyard", Width: 4, Height: 3}
	errc := make(chan error, 1)
	go func() { errc <- simulator.Hello(context.Background(), want) }()

	got, err := daemon.AcceptHello(context.Background())
	if err != nil {
		t.Fatalf("AcceptHello: %v", err)
	}
	if got != want {
		t.Errorf("hello = %+v, want %+v", got, want)
	}
	if daemon.Lawn != "backyard" {
		t.Errorf("Lawn = %q, want backyard", daemon.Lawn)
	}
	if err := <-errc; err != nil {
		t.Errorf("Hello: %v", err)
	}
}

func TestRemoteEnvironment(t *testing.T) {
	var gotMove MoveMessage
	client := serve(t, map[string]Handler{
		TypeVerify: func(Envelope) (*Envelope, error) {
			return reply(TypeVerifyResult, VerifyResult{OK: true})
		},
		TypeFieldOfView: func(Envelope) (*Envelope, error) {
			return reply(TypeFieldOfViewResult, model.FieldOfView{
				Center: model.ChargingStation,
				Top:    model.Grass,
				Right:  model.Water,
				Bottom: model.Unknown,
				Left:   model.Sand,
			})
		},
		TypeMove: func(env Envelope) (*Envelope, error) {
			if err := env.Decode(&gotMove); err != nil {
				return nil, err
			}
			return reply(TypeMoveResult, MoveResult{Terrain: model.Grass})
		},
		TypeSummary: func(Envelope) (*Envelope, error) {
			return reply(TypeAck, AckMessage{Status: "ok"})
		},
	})
	remote := NewRemoteEnvironment(client)
	ctx := context.Background()

	ok, err := remote.Verify(ctx)
	if err != nil || !ok {
		t.Fatalf("Verify = %v, %v; want true, nil", ok, err)
	}

	fov, err := remote.FieldOfView(ctx)
	if err != nil {
		t.Fatalf("FieldOfView: %v", err)
	}
	if fov.Center != model.ChargingStation || fov.Right != model.Water || fov.Bottom != model.Unknown {
		t.Errorf("fov = %+v", fov)
	}

	step, _ := model.StepToward(model.Left, model.Top, model.Grass)
	arrived, err := remote.MoveMowingMachine(ctx, step, model.ChargingStation)
	if err != nil {
		t.Fatalf("MoveMowingMachine: %v", err)
	}
	if arrived != model.Grass {
		t.Errorf("arrived = %s, want grass", arrived)
	}
	if gotMove.Direction != model.Top || gotMove.Previous != model.ChargingStation || gotMove.EnergyCost != step.EnergyCost {
		t.Errorf("move request = %+v", gotMove)
	}

	if err := remote.Summarize(ctx, SummaryMessage{Mode: "complete", Ticks: 3}); err != nil {
		t.Errorf("Summarize: %v", err)
	}
}
