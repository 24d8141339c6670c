package telemetry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	channerics "github.com/niceyeti/channerics/channels"
	"golang.org/x/sync/errgroup"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 1 * time.Second
	// Maximum message size allowed from peer.
	maxMessageSize = 8192

	// Frames are flushed at most this often; intervening snapshots are skipped.
	pubResolution  = 100 * time.Millisecond
	pingResolution = 200 * time.Millisecond
	// Number of missed pings tolerated before the peer is considered gone.
	pongWait = pingResolution * 4
)

// ErrPongDeadlineExceeded ends a client whose peer stopped answering pings.
var ErrPongDeadlineExceeded = errors.New("client disconnect, pong deadline exceeded")

var upgrader = websocket.Upgrader{}

// Server streams hub snapshots to websocket clients on /ws.
type Server struct {
	hub *Hub
	srv *http.Server
}

func NewServer(addr string, hub *Hub) *Server {
	s := &Server{hub: hub}
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.serveWebsocket)
	s.srv = &http.Server{Addr: addr, Handler: mux}
	return s
}

// Handler exposes the routes, for embedding or tests.
func (s *Server) Handler() http.Handler {
	return s.srv.Handler
}

// Serve listens until ctx is cancelled.
func (s *Server) Serve(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.srv.Addr)
	if err != nil {
		return fmt.Errorf("telemetry listen: %w", err)
	}
	slog.Info("telemetry listening", "addr", ln.Addr().String())

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		s.srv.Shutdown(shutdownCtx)
	}()

	if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("telemetry serve: %w", err)
	}
	return nil
}

func (s *Server) serveWebsocket(w http.ResponseWriter, r *http.Request) {
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("websocket upgrade failed", "error", err)
		return
	}
	defer ws.Close()

	snaps, cancel := s.hub.Subscribe()
	defer cancel()

	c := &client{ws: ws, writeSem: make(chan struct{}, 1)}
	slog.Info("telemetry client connected", "remote", r.RemoteAddr)
	if err := c.sync(r.Context(), channerics.Convert(r.Context().Done(), snaps, toFrame)); err != nil {
		slog.Info("telemetry client ended", "remote", r.RemoteAddr, "error", err)
		return
	}
	closeNormally(ws)
}

// client publishes frames to one websocket. Gorilla allows one concurrent
// writer, which writeSem enforces between publish and ping.
type client struct {
	ws       *websocket.Conn
	writeSem chan struct{}
	lastPong atomic.Int64
}

// sync runs the reader, pinger and publisher until one of them fails or the
// frames channel closes.
func (c *client) sync(ctx context.Context, frames <-chan Frame) error {
	group, groupCtx := errgroup.WithContext(ctx)

	group.Go(func() error {
		return c.readMessages()
	})
	group.Go(func() error {
		return c.pingPong(groupCtx)
	})
	group.Go(func() error {
		err := c.publish(groupCtx, frames)
		// Unblock the reader.
		c.ws.SetReadDeadline(time.Now())
		return err
	})

	err := group.Wait()
	if isClosure(err) || errors.Is(err, errPublishDone) {
		return nil
	}
	return err
}

var errPublishDone = errors.New("publish finished")

// readMessages drains client messages so control frames are processed.
// Errors returned by websocket reads are permanent.
func (c *client) readMessages() error {
	c.ws.SetReadLimit(maxMessageSize)
	c.lastPong.Store(time.Now().UnixNano())
	c.ws.SetPongHandler(func(string) error {
		c.lastPong.Store(time.Now().UnixNano())
		return nil
	})
	for {
		if _, _, err := c.ws.ReadMessage(); err != nil {
			return err
		}
	}
}

func (c *client) pingPong(ctx context.Context) error {
	pinger := channerics.NewTicker(ctx.Done(), pingResolution)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-pinger:
			if time.Since(time.Unix(0, c.lastPong.Load())) > pongWait {
				return ErrPongDeadlineExceeded
			}
			err := c.write(ctx, func(ws *websocket.Conn) error {
				return ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
			})
			if err != nil {
				return fmt.Errorf("ping failed: %w", err)
			}
		}
	}
}

// publish sends the newest pending frame every pubResolution. Frames replaced
// before a flush hand their events to the next one.
func (c *client) publish(ctx context.Context, frames <-chan Frame) error {
	flush := channerics.NewTicker(ctx.Done(), pubResolution)
	var pending *Frame
	open := true

	for {
		select {
		case <-ctx.Done():
			return nil
		case f, ok := <-frames:
			if !ok {
				frames = nil
				open = false
				if pending == nil {
					return errPublishDone
				}
				continue
			}
			if pending != nil {
				f.Events = mergeEvents(pending.Events, f.Events)
			}
			pending = &f
		case <-flush:
			if pending == nil {
				continue
			}
			frame := *pending
			pending = nil
			err := c.write(ctx, func(ws *websocket.Conn) error {
				if err := ws.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
					return fmt.Errorf("failed to set deadline: %w", err)
				}
				return ws.WriteJSON(frame)
			})
			if err != nil {
				return fmt.Errorf("publish failed: %w", err)
			}
			if !open {
				return errPublishDone
			}
		}
	}
}

func (c *client) write(ctx context.Context, fn func(*websocket.Conn) error) error {
	select {
	case <-ctx.Done():
		return nil
	case c.writeSem <- struct{}{}:
		defer func() { <-c.writeSem }()
		return fn(c.ws)
	}
}

func isClosure(err error) bool {
	return err != nil && websocket.IsCloseError(
		err,
		websocket.CloseNormalClosure,
		websocket.CloseGoingAway)
}

func closeNormally(ws *websocket.Conn) {
	_ = ws.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(writeWait))
}
