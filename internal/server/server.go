package server

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog/log"
)

// idleSleep throttles the loop when no frame was available.
const idleSleep = 10 * time.Millisecond

// Transport carries protocol frames between a client and the dispatch loop.
type Transport interface {
	// Receive returns the next pending frame without blocking.
	Receive() (frame string, ok bool)
	// Send delivers a reply frame to the client.
	Send(frame string) error
}

// Server drives an engine with a single-threaded receive and dispatch loop.
// All engine access happens on the loop goroutine, no locking is needed.
type Server struct {
	engine *Engine
}

// NewServer creates a server around the given engine.
func NewServer(engine *Engine) *Server {
	return &Server{engine: engine}
}

// Run drains and dispatches frames until the context is cancelled.
// On each cycle every immediately available frame is processed before
// the loop sleeps briefly when it found none.
func (s *Server) Run(ctx context.Context, t Transport) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		if !s.Drain(t) {
			time.Sleep(idleSleep)
		}
	}
}

// Drain processes every immediately available frame and reports whether any was handled.
func (s *Server) Drain(t Transport) bool {
	processed := false
	for {
		frame, ok := t.Receive()
		if !ok {
			return processed
		}
		processed = true
		s.dispatch(t, frame)
	}
}

// dispatch decodes and handles one frame. Errors are fatal to the frame only,
// they are logged and the connection stays open.
func (s *Server) dispatch(t Transport, frame string) {
	msg, err := Decode(frame)
	if err != nil {
		log.Error().Err(err).Str("frame", frame).Msg("dropping frame")
		return
	}
	reply, err := s.engine.Handle(msg)
	if err != nil {
		log.Error().Err(err).Str("frame", frame).Msg("could not process frame")
		return
	}
	if reply == "" {
		return
	}
	if err := t.Send(reply); err != nil {
		log.Error().Err(err).Str("reply", reply).Msg("could not send reply")
	}
}

// ChannelTransport is an in-memory transport over buffered channels,
// pairing a client and a server within the same process.
type ChannelTransport struct {
	In  chan string
	Out chan string
}

// NewChannelTransport creates a transport with the given channel capacity.
func NewChannelTransport(size int) *ChannelTransport {
	return &ChannelTransport{
		In:  make(chan string, size),
		Out: make(chan string, size),
	}
}

// Receive pops the next pending frame, if any.
func (t *ChannelTransport) Receive() (string, bool) {
	select {
	case frame := <-t.In:
		return frame, true
	default:
		return "", false
	}
}

// Send pushes the reply, failing when the client stopped consuming.
func (t *ChannelTransport) Send(frame string) error {
	select {
	case t.Out <- frame:
		return nil
	default:
		return errors.New("reply channel full")
	}
}
