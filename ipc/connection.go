package ipc

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"
)

// ErrRemote wraps failures reported by the peer in an error envelope.
var ErrRemote = errors.New("remote error")

// Handler processes a received envelope. Return nil to send no reply.
type Handler func(env Envelope) (*Envelope, error)

// Connection is one planner/simulator link. The simulator side serves
// requests with ReadLoop; the planner side issues them with Call.
type Connection struct {
	conn     net.Conn
	handlers map[string]Handler
	mu       sync.Mutex // one outstanding Call at a time
	Lawn     string
}

func NewConnection(conn net.Conn, handlers map[string]Handler) *Connection {
	if handlers == nil {
		handlers = make(map[string]Handler)
	}
	return &Connection{
		conn:     conn,
		handlers: handlers,
	}
}

func (c *Connection) RegisterHandler(msgType string, handler Handler) {
	c.handlers[msgType] = handler
}

func (c *Connection) Send(msgType string, data any) error {
	env, err := NewEnvelope(msgType, data)
	if err != nil {
		return err
	}
	return WriteEnvelope(c.conn, env)
}

func (c *Connection) Close() error {
	return c.conn.Close()
}

// Call sends a request and blocks for its reply, decoding the reply payload
// into resp when resp is non-nil. The context deadline becomes the socket
// deadline and cancelling ctx aborts the exchange.
func (c *Connection) Call(ctx context.Context, msgType string, req, resp any) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	release, err := c.bind(ctx)
	if err != nil {
		return err
	}
	defer release()

	if err := c.Send(msgType, req); err != nil {
		return c.callErr(ctx, msgType, err)
	}
	env, err := ReadEnvelope(c.conn)
	if err != nil {
		return c.callErr(ctx, msgType, err)
	}

	if env.Type == TypeError {
		var msg ErrorMessage
		if err := env.Decode(&msg); err != nil {
			return err
		}
		return fmt.Errorf("%s: %w: %s", msgType, ErrRemote, msg.Message)
	}
	if want, ok := replyTypes[msgType]; ok && env.Type != want {
		return fmt.Errorf("%s: unexpected reply %q, want %q", msgType, env.Type, want)
	}
	if resp == nil {
		return nil
	}
	return env.Decode(resp)
}

// Hello announces the simulator to the planner and waits for the ack.
func (c *Connection) Hello(ctx context.Context, hello HelloMessage) error {
	c.Lawn = hello.Lawn
	return c.Call(ctx, TypeHello, hello, nil)
}

// AcceptHello waits for the simulator's hello and acknowledges it.
func (c *Connection) AcceptHello(ctx context.Context) (HelloMessage, error) {
	release, err := c.bind(ctx)
	if err != nil {
		return HelloMessage{}, err
	}
	defer release()

	env, err := ReadEnvelope(c.conn)
	if err != nil {
		return HelloMessage{}, c.callErr(ctx, TypeHello, err)
	}
	if env.Type != TypeHello {
		return HelloMessage{}, fmt.Errorf("expected %q, got %q", TypeHello, env.Type)
	}
	var hello HelloMessage
	if err := env.Decode(&hello); err != nil {
		return HelloMessage{}, err
	}
	c.Lawn = hello.Lawn
	slog.Info("simulator identified", "lawn", hello.Lawn, "width", hello.Width, "height", hello.Height)

	if err := c.Send(TypeAck, AckMessage{Status: "ok"}); err != nil {
		return HelloMessage{}, err
	}
	return hello, nil
}

// bind maps ctx onto the socket deadline until release is called.
func (c *Connection) bind(ctx context.Context) (release func(), err error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	deadline, _ := ctx.Deadline()
	if err := c.conn.SetDeadline(deadline); err != nil {
		return nil, fmt.Errorf("set deadline: %w", err)
	}
	stop := context.AfterFunc(ctx, func() {
		c.conn.SetDeadline(time.Now())
	})
	return func() {
		stop()
		c.conn.SetDeadline(time.Time{})
	}, nil
}

func (c *Connection) callErr(ctx context.Context, msgType string, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return fmt.Errorf("%s: %w", msgType, ctxErr)
	}
	if deadline, ok := ctx.Deadline(); ok && !time.Now().Before(deadline) {
		return fmt.Errorf("%s: %w", msgType, context.DeadlineExceeded)
	}
	return fmt.Errorf("%s: %w", msgType, err)
}

// ReadLoop serves requests until the connection closes or errors. Handler
// failures are answered with an error envelope. It owns the conn lifetime so
// callers don't need to track cleanup.
func (c *Connection) ReadLoop() {
	defer c.conn.Close()

	for {
		env, err := ReadEnvelope(c.conn)
		if err != nil {
			slog.Info("connection read ended", "lawn", c.Lawn, "error", err)
			return
		}

		handler, ok := c.handlers[env.Type]
		if !ok {
			slog.Warn("no handler for message type", "type", env.Type)
			if err := c.Send(TypeError, ErrorMessage{Message: "unsupported message type " + env.Type}); err != nil {
				return
			}
			continue
		}

		resp, err := handler(env)
		if err != nil {
			slog.Error("handler error", "type", env.Type, "error", err)
			errEnv, mErr := NewEnvelope(TypeError, ErrorMessage{Message: err.Error()})
			if mErr != nil {
				return
			}
			resp = &errEnv
		}

		if resp != nil {
			if err := WriteEnvelope(c.conn, *resp); err != nil {
				slog.Error("failed to send response", "type", resp.Type, "error", err)
				return
			}
			slog.Debug("sent response", "type", resp.Type, "lawn", c.Lawn)
		}
	}
}
