package ipc

import "github.com/nstehr/mowbot/model"

// Message types. Requests flow from the planner daemon to the simulator; every
// request is answered with its result type or TypeError.
const (
	TypeHello             = "hello"
	TypeAck               = "ack"
	TypeError             = "error"
	TypeVerify            = "verify"
	TypeVerifyResult      = "verify_result"
	TypeFieldOfView       = "field_of_view"
	TypeFieldOfViewResult = "field_of_view_result"
	TypeMove              = "move"
	TypeMoveResult        = "move_result"
	TypeSummary           = "summary"
)

// replyTypes maps each request to the reply type it expects on success.
var replyTypes = map[string]string{
	TypeHello:       TypeAck,
	TypeVerify:      TypeVerifyResult,
	TypeFieldOfView: TypeFieldOfViewResult,
	TypeMove:        TypeMoveResult,
	TypeSummary:     TypeAck,
}

// HelloMessage is sent by the simulator when it connects.
type HelloMessage struct {
	Lawn   string `json:"lawn"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
}

type AckMessage struct {
	Status string `json:"status"`
}

type ErrorMessage struct {
	Message string `json:"message"`
}

type VerifyResult struct {
	OK bool `json:"ok"`
}

// MoveMessage asks the simulator to execute one MowingStep. Previous is the
// terrain to leave behind on the cell the mower departs from.
type MoveMessage struct {
	Direction  model.Direction   `json:"direction"`
	Turns      []model.Direction `json:"turns"`
	Terrain    model.Terrain     `json:"terrain"`
	EnergyCost int               `json:"energyCost"`
	Previous   model.Terrain     `json:"previous"`
}

// Step returns the MowingStep carried by m.
func (m MoveMessage) Step() model.MowingStep {
	return model.MowingStep{
		Turns:      m.Turns,
		Direction:  m.Direction,
		Terrain:    m.Terrain,
		EnergyCost: m.EnergyCost,
	}
}

type MoveResult struct {
	Terrain model.Terrain `json:"terrain"`
}

// SummaryMessage is sent once when the planner stops driving the simulator.
type SummaryMessage struct {
	Mode    string      `json:"mode"`
	Ticks   int         `json:"ticks"`
	Energy  int         `json:"energy"`
	Refuels int         `json:"refuels"`
	Graph   model.Stats `json:"graph"`
	Error   string      `json:"error,omitempty"`
}
