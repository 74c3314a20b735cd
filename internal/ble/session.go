package ble

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/pkg/errors"
)

// SessionOptions configures a Session.
type SessionOptions struct {
	ConnectTimeout time.Duration
	Reconnect      bool // reconnect after the peer drops
	ReconnectMax   int  // max reconnect backoff in seconds
}

// DefaultSessionOptions returns sensible defaults.
func DefaultSessionOptions() SessionOptions {
	return SessionOptions{
		ConnectTimeout: 10 * time.Second,
		Reconnect:      true,
		ReconnectMax:   30,
	}
}

// Session keeps one peripheral connected through a Stack: it connects,
// runs discovery, and after a drop reconnects with exponential backoff.
type Session struct {
	stack   *Stack
	address string
	opts    SessionOptions

	mu     sync.Mutex
	conn   ConnHandle
	closed bool
	done   chan struct{}
}

// NewSession creates a Session for address and adds it as an observer of
// stack.
func NewSession(stack *Stack, address string, opts SessionOptions) *Session {
	if opts.ConnectTimeout <= 0 {
		opts.ConnectTimeout = 10 * time.Second
	}
	if opts.ReconnectMax <= 0 {
		opts.ReconnectMax = 30
	}
	s := &Session{
		stack:   stack,
		address: address,
		opts:    opts,
		conn:    InvalidConnHandle,
		done:    make(chan struct{}),
	}
	stack.AddObserver(s)
	return s
}

// Start establishes the initial connection and runs discovery. Stack.Run
// must already be running.
func (s *Session) Start(ctx context.Context) error {
	if err := s.stack.adapter.Enable(); err != nil {
		return errors.Wrap(err, "enable adapter")
	}
	return s.connect(ctx)
}

func (s *Session) connect(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.opts.ConnectTimeout)
	defer cancel()

	h, err := s.stack.Connect(ctx, s.address)
	if err != nil {
		return err
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return s.stack.Disconnect(h)
	}
	s.conn = h
	s.mu.Unlock()

	err = s.stack.Discover(h)
	if errors.Is(err, ErrUnknownConn) {
		// The peer dropped during discovery. If OnTransportEvent already
		// saw the drop it has started a reconnect loop of its own.
		s.mu.Lock()
		stale := s.conn == h
		if stale {
			s.conn = InvalidConnHandle
		}
		s.mu.Unlock()
		if !stale {
			return nil
		}
		return errors.Wrap(err, "peer dropped during discovery")
	}
	if err != nil {
		return errors.Wrap(err, "discover")
	}
	return nil
}

// ConnHandle returns the current connection handle, or InvalidConnHandle.
func (s *Session) ConnHandle() ConnHandle {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn
}

// OnTransportEvent starts the reconnect loop when the session's
// connection drops.
func (s *Session) OnTransportEvent(ev *Event) {
	if ev.Kind != EventDisconnected {
		return
	}
	s.mu.Lock()
	if ev.Conn != s.conn {
		s.mu.Unlock()
		return
	}
	s.conn = InvalidConnHandle
	reconnect := s.opts.Reconnect && !s.closed
	s.mu.Unlock()

	if reconnect {
		slog.Warn("[BLE] disconnected, reconnecting...", "address", s.address)
		go s.reconnectLoop()
	}
}

// OnDiscoveryEvent is a no-op.
func (s *Session) OnDiscoveryEvent(*DiscoveryEvent) {}

// Close stops reconnecting and disconnects the peer.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	close(s.done)
	h := s.conn
	s.conn = InvalidConnHandle
	s.mu.Unlock()

	if h == InvalidConnHandle {
		return nil
	}
	return s.stack.Disconnect(h)
}

// backoffDelay returns the reconnection delay for attempt n, capped at maxSeconds.
func backoffDelay(attempt int, maxSeconds int) time.Duration {
	delay := time.Duration(1<<uint(attempt)) * time.Second
	max := time.Duration(maxSeconds) * time.Second
	if delay > max || delay <= 0 {
		return max
	}
	return delay
}

// reconnectLoop attempts to reconnect with exponential backoff until it
// succeeds or the session is closed.
func (s *Session) reconnectLoop() {
	for attempt := 0; ; attempt++ {
		// On the first attempt, try immediately; subsequent attempts use backoff.
		if attempt > 0 {
			delay := backoffDelay(attempt-1, s.opts.ReconnectMax)
			slog.Info("[BLE] reconnect backoff", "attempt", attempt+1, "delay", delay)
			select {
			case <-time.After(delay):
			case <-s.done:
				return
			}
		}

		select {
		case <-s.done:
			return
		default:
		}

		if err := s.connect(context.Background()); err != nil {
			if errors.Is(err, ErrStackClosed) {
				return
			}
			slog.Warn("[BLE] reconnect failed", "error", err, "attempt", attempt+1)
			continue
		}

		slog.Info("[BLE] reconnected", "address", s.address)
		return
	}
}
