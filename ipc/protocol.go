package ipc

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
)

// MaxFrameSize bounds a single envelope payload.
const MaxFrameSize = 1 << 20

// Envelope is the wire format shared by the planner daemon and the simulator.
// Data is kept as RawMessage so handlers can defer deserialization to the concrete type.
type Envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

func NewEnvelope(msgType string, data any) (Envelope, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return Envelope{}, fmt.Errorf("marshal data: %w", err)
	}
	return Envelope{Type: msgType, Data: raw}, nil
}

// Decode unmarshals the envelope payload into v.
func (e Envelope) Decode(v any) error {
	if err := json.Unmarshal(e.Data, v); err != nil {
		return fmt.Errorf("unmarshal %s: %w", e.Type, err)
	}
	return nil
}

// ReadEnvelope reads a single length-prefixed JSON envelope. The prefix is a
// 4-byte little-endian payload length.
func ReadEnvelope(r io.Reader) (Envelope, error) {
	var length uint32
	if err := binary.Read(r, binary.LittleEndian, &length); err != nil {
		return Envelope{}, fmt.Errorf("read length: %w", err)
	}

	// Guard against corrupted frames.
	if length == 0 || length > MaxFrameSize {
		return Envelope{}, fmt.Errorf("invalid message length: %d", length)
	}

	payload := make([]byte, length)
	if _, err := io.ReadFull(r, payload); err != nil {
		return Envelope{}, fmt.Errorf("read payload: %w", err)
	}

	var env Envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return Envelope{}, fmt.Errorf("unmarshal envelope: %w", err)
	}

	return env, nil
}

func WriteEnvelope(w io.Writer, env Envelope) error {
	payload, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal envelope: %w", err)
	}
	if len(payload) > MaxFrameSize {
		return fmt.Errorf("message too large: %d bytes", len(payload))
	}

	// One write per frame so a frame is never interleaved on a shared conn.
	frame := make([]byte, 4+len(payload))
	binary.LittleEndian.PutUint32(frame, uint32(len(payload)))
	copy(frame[4:], payload)

	if _, err := w.Write(frame); err != nil {
		return fmt.Errorf("write frame: %w", err)
	}
	return nil
}
