package sim

import (
	"context"
	"log/slog"

	"github.com/nstehr/mowbot/ipc"
)

// Server answers the planner's environment requests from a World.
type Server struct {
	world   *World
	summary chan ipc.SummaryMessage
}

func NewServer(w *World) *Server {
	return &Server{world: w, summary: make(chan ipc.SummaryMessage, 1)}
}

// Hello describes the world for the handshake.
func (s *Server) Hello() ipc.HelloMessage {
	return ipc.HelloMessage{Lawn: s.world.Name(), Width: s.world.Width(), Height: s.world.Height()}
}

// Register installs the request handlers on conn.
func (s *Server) Register(conn *ipc.Connection) {
	conn.RegisterHandler(ipc.TypeVerify, s.handleVerify)
	conn.RegisterHandler(ipc.TypeFieldOfView, s.handleFieldOfView)
	conn.RegisterHandler(ipc.TypeMove, s.handleMove)
	conn.RegisterHandler(ipc.TypeSummary, s.handleSummary)
}

// Summary delivers the planner's final report once it arrives.
func (s *Server) Summary() <-chan ipc.SummaryMessage {
	return s.summary
}

func (s *Server) handleVerify(ipc.Envelope) (*ipc.Envelope, error) {
	ok, err := s.world.Verify(context.Background())
	if err != nil {
		return nil, err
	}
	return reply(ipc.TypeVerifyResult, ipc.VerifyResult{OK: ok})
}

func (s *Server) handleFieldOfView(ipc.Envelope) (*ipc.Envelope, error) {
	fov, err := s.world.FieldOfView(context.Background())
	if err != nil {
		return nil, err
	}
	return reply(ipc.TypeFieldOfViewResult, fov)
}

func (s *Server) handleMove(env ipc.Envelope) (*ipc.Envelope, error) {
	var msg ipc.MoveMessage
	if err := env.Decode(&msg); err != nil {
		return nil, err
	}
	arrived, err := s.world.MoveMowingMachine(context.Background(), msg.Step(), msg.Previous)
	if err != nil {
		return nil, err
	}
	col, row := s.world.Position()
	slog.Debug("mower moved", "direction", msg.Direction, "col", col, "row", row, "terrain", arrived)
	return reply(ipc.TypeMoveResult, ipc.MoveResult{Terrain: arrived})
}

func (s *Server) handleSummary(env ipc.Envelope) (*ipc.Envelope, error) {
	var msg ipc.SummaryMessage
	if err := env.Decode(&msg); err != nil {
		return nil, err
	}
	select {
	case s.summary <- msg:
	default:
	}
	return reply(ipc.TypeAck, ipc.AckMessage{Status: "ok"})
}

func reply(msgType string, data any) (*ipc.Envelope, error) {
	env, err := ipc.NewEnvelope(msgType, data)
	if err != nil {
		return nil, err
	}
	return &env, nil
}
