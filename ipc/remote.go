package ipc

import (
	"context"

	"github.com/nstehr/mowbot/model"
)

// RemoteEnvironment implements the planner's environment port over a
// Connection to a simulator.
type RemoteEnvironment struct {
	conn *Connection
}

func NewRemoteEnvironment(conn *Connection) *RemoteEnvironment {
	return &RemoteEnvironment{conn: conn}
}

func (r *RemoteEnvironment) FieldOfView(ctx context.Context) (model.FieldOfView, error) {
	var fov model.FieldOfView
	if err := r.conn.Call(ctx, TypeFieldOfView, struct{}{}, &fov); err != nil {
		return model.FieldOfView{}, err
	}
	return fov, nil
}

func (r *RemoteEnvironment) MoveMowingMachine(ctx context.Context, step model.MowingStep, previous model.Terrain) (model.Terrain, error) {
	req := MoveMessage{
		Direction:  step.Direction,
		Turns:      step.Turns,
		Terrain:    step.Terrain,
		EnergyCost: step.EnergyCost,
		Previous:   previous,
	}
	var res MoveResult
	if err := r.conn.Call(ctx, TypeMove, req, &res); err != nil {
		return model.Unknown, err
	}
	return res.Terrain, nil
}

func (r *RemoteEnvironment) Verify(ctx context.Context) (bool, error) {
	var res VerifyResult
	if err := r.conn.Call(ctx, TypeVerify, struct{}{}, &res); err != nil {
		return false, err
	}
	return res.OK, nil
}

// Summarize reports the final outcome to the simulator.
func (r *RemoteEnvironment) Summarize(ctx context.Context, summary SummaryMessage) error {
	return r.conn.Call(ctx, TypeSummary, summary, nil)
}
