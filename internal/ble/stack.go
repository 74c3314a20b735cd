package ble

import (
	"context"
	"log/slog"
	"sync"

	"github.com/pkg/errors"
	"tinygo.org/x/bluetooth"

	"github.com/chaz8081/scwatch/internal/ble/protocol"
)

// StackOptions configures the Stack.
type StackOptions struct {
	QueueSize        int // events buffered before producers block
	MaxRegistrations int // services that can be registered for discovery
}

// DefaultStackOptions returns sensible defaults.
func DefaultStackOptions() StackOptions {
	return StackOptions{
		QueueSize:        64,
		MaxRegistrations: 8,
	}
}

// Stack is a handle-level GATT central. It allocates connection handles,
// numbers discovered attributes, accepts CCCD writes, and delivers every
// event to its observers from the single goroutine running Run.
//
// Connect, Discover and WriteAttribute are safe for concurrent use.
type Stack struct {
	adapter Adapter
	opts    StackOptions

	// mu protects the fields below.
	mu        sync.Mutex
	services  []bluetooth.UUID
	peers     map[ConnHandle]*peer
	nextConn  ConnHandle
	observers []Observer

	queue     chan queued
	done      chan struct{}
	closeOnce sync.Once
}

type queued struct {
	ev   *Event
	disc *DiscoveryEvent
}

// peer is the per-connection attribute table.
type peer struct {
	conn    Connection
	address string
	handles map[Handle]*attribute
	next    Handle

	// CCCD writes run one at a time in submission order, as ATT allows a
	// single outstanding request per connection.
	writes  []cccdWrite
	writing bool
}

type cccdWrite struct {
	handle Handle
	attr   *attribute
	value  protocol.CCCD
}

type attribute struct {
	char  RemoteCharacteristic
	decl  Handle
	value Handle
	cccd  Handle
}

// NewStack creates a Stack backed by adapter.
func NewStack(adapter Adapter, opts StackOptions) *Stack {
	if opts.QueueSize <= 0 {
		opts.QueueSize = 64
	}
	if opts.MaxRegistrations <= 0 {
		opts.MaxRegistrations = 8
	}
	return &Stack{
		adapter: adapter,
		opts:    opts,
		peers:   make(map[ConnHandle]*peer),
		queue:   make(chan queued, opts.QueueSize),
		done:    make(chan struct{}),
	}
}

// Register adds a service to the set walked by Discover. Each UUID may
// be registered once.
func (s *Stack) Register(uuid bluetooth.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.services {
		if u == uuid {
			return errors.Wrapf(ErrAlreadyRegistered, "register %s", uuid)
		}
	}
	if len(s.services) >= s.opts.MaxRegistrations {
		return errors.Wrapf(ErrRegistryFull, "register %s", uuid)
	}
	s.services = append(s.services, uuid)
	slog.Debug("[BLE] registered service for discovery", "uuid", uuid.String())
	return nil
}

// AddObserver adds o to the observers called by Run, in the order added.
func (s *Stack) AddObserver(o Observer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.observers = append(s.observers, o)
}

// Run delivers queued events to the observers until ctx is done or the
// stack is closed. Only one Run may be active.
func (s *Stack) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.done:
			return nil
		case q := <-s.queue:
			s.dispatch(q)
		}
	}
}

func (s *Stack) dispatch(q queued) {
	s.mu.Lock()
	observers := make([]Observer, len(s.observers))
	copy(observers, s.observers)
	s.mu.Unlock()

	for _, o := range observers {
		if q.ev != nil {
			o.OnTransportEvent(q.ev)
		}
		if q.disc != nil {
			o.OnDiscoveryEvent(q.disc)
		}
	}
}

// post queues an event, blocking while the queue is full.
func (s *Stack) post(q queued) error {
	select {
	case <-s.done:
		return ErrStackClosed
	default:
	}
	select {
	case s.queue <- q:
		return nil
	case <-s.done:
		return ErrStackClosed
	}
}

// Close stops Run and disconnects every peer.
func (s *Stack) Close() error {
	s.closeOnce.Do(func() { close(s.done) })

	s.mu.Lock()
	peers := s.peers
	s.peers = make(map[ConnHandle]*peer)
	s.mu.Unlock()

	for h, p := range peers {
		if err := p.conn.Disconnect(); err != nil {
			slog.Warn("[BLE] disconnect on close failed", "conn", h, "error", err)
		}
	}
	return nil
}

// Connect connects to address and queues an EventConnected carrying the
// new connection handle.
func (s *Stack) Connect(ctx context.Context, address string) (ConnHandle, error) {
	conn, err := s.adapter.Connect(ctx, address)
	if err != nil {
		return InvalidConnHandle, errors.Wrapf(err, "connect to %s", address)
	}

	s.mu.Lock()
	h := s.allocConnLocked()
	s.peers[h] = &peer{
		conn:    conn,
		address: address,
		handles: make(map[Handle]*attribute),
		next:    1,
	}
	s.mu.Unlock()

	if err := s.post(queued{ev: &Event{Kind: EventConnected, Conn: h}}); err != nil {
		s.mu.Lock()
		delete(s.peers, h)
		s.mu.Unlock()
		_ = conn.Disconnect()
		return InvalidConnHandle, err
	}
	conn.OnDisconnect(func() { s.drop(h) })

	slog.Info("[BLE] connected", "address", address, "conn", h)
	return h, nil
}

// allocConnLocked returns the next free connection handle (caller must hold mu).
func (s *Stack) allocConnLocked() ConnHandle {
	for {
		h := s.nextConn
		s.nextConn++
		if s.nextConn == InvalidConnHandle {
			s.nextConn = 0
		}
		if _, used := s.peers[h]; !used && h != InvalidConnHandle {
			return h
		}
	}
}

// Disconnect terminates the connection and queues an EventDisconnected.
func (s *Stack) Disconnect(h ConnHandle) error {
	s.mu.Lock()
	p, ok := s.peers[h]
	s.mu.Unlock()
	if !ok {
		return errors.Wrapf(ErrUnknownConn, "disconnect %s", h)
	}
	err := p.conn.Disconnect()
	s.drop(h)
	if err != nil {
		return errors.Wrapf(err, "disconnect %s", p.address)
	}
	return nil
}

// drop forgets h and queues an EventDisconnected. Calling it more than
// once for the same handle is a no-op.
func (s *Stack) drop(h ConnHandle) {
	s.mu.Lock()
	p, ok := s.peers[h]
	delete(s.peers, h)
	s.mu.Unlock()
	if !ok {
		return
	}
	slog.Info("[BLE] disconnected", "address", p.address, "conn", h)
	_ = s.post(queued{ev: &Event{Kind: EventDisconnected, Conn: h}})
}

// Discover walks every registered service on the peer, renumbers its
// attribute table, and queues one DiscoveryEvent per service. It blocks
// on the peer; do not call it from an observer.
func (s *Stack) Discover(h ConnHandle) error {
	s.mu.Lock()
	p, ok := s.peers[h]
	if ok {
		p.handles = make(map[Handle]*attribute)
		p.next = 1
	}
	services := make([]bluetooth.UUID, len(s.services))
	copy(services, s.services)
	s.mu.Unlock()
	if !ok {
		return errors.Wrapf(ErrUnknownConn, "discover %s", h)
	}

	for _, svc := range services {
		ev := &DiscoveryEvent{Conn: h, Service: svc}
		chars, err := p.conn.DiscoverCharacteristics(svc)
		switch {
		case errors.Is(err, ErrServiceNotFound):
			ev.Kind = DiscoveryServiceNotFound
		case err != nil:
			ev.Kind = DiscoveryError
			ev.Err = errors.Wrapf(err, "discover %s", svc)
		default:
			ev.Kind = DiscoveryComplete
			ev.Chars = s.number(p, chars)
		}
		slog.Debug("[BLE] discovery", "conn", h, "service", svc.String(), "result", ev.Kind, "chars", len(ev.Chars))
		if err := s.post(queued{disc: ev}); err != nil {
			return err
		}
	}
	return nil
}

// number assigns handles to a service and its characteristics: the
// service declaration, then for each characteristic its declaration,
// its value, and a CCCD when it can notify or indicate.
func (s *Stack) number(p *peer, chars []RemoteCharacteristic) []DiscoveredChar {
	s.mu.Lock()
	defer s.mu.Unlock()

	p.next++ // service declaration
	out := make([]DiscoveredChar, 0, len(chars))
	for _, rc := range chars {
		a := &attribute{char: rc, decl: p.next, value: p.next + 1}
		p.next += 2
		props := rc.Properties()
		if props&(CharNotify|CharIndicate) != 0 {
			a.cccd = p.next
			p.next++
			p.handles[a.cccd] = a
		}
		p.handles[a.decl] = a
		p.handles[a.value] = a
		out = append(out, DiscoveredChar{
			Characteristic: Characteristic{
				UUID:        rc.UUID(),
				Properties:  props,
				DeclHandle:  a.decl,
				ValueHandle: a.value,
			},
			CCCDHandle: a.cccd,
		})
	}
	return out
}

// WriteAttribute submits a write to handle on connection h. Only CCCD
// writes sent as WriteRequest are supported. Submission errors are
// returned directly; the outcome of the write arrives later as an
// EventWriteResponse. Writes to one connection are applied and answered
// in the order they were submitted. It never blocks.
func (s *Stack) WriteAttribute(h ConnHandle, handle Handle, value []byte, op WriteOp) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.peers[h]
	var a *attribute
	if ok {
		a = p.handles[handle]
	}

	if !ok {
		return errors.Wrapf(ErrUnknownConn, "write to conn %s", h)
	}
	if a == nil {
		return errors.Wrapf(ErrUnknownHandle, "write to handle 0x%04x", uint16(handle))
	}
	if handle != a.cccd {
		return errors.Wrapf(ErrWriteNotPermitted, "write to handle 0x%04x", uint16(handle))
	}
	if op != WriteRequest {
		return errors.Wrap(ErrInvalidCCCDWrite, "cccd writes must be write requests")
	}
	cccd, err := protocol.DecodeCCCD(value)
	if err != nil {
		return errors.Wrap(ErrInvalidCCCDWrite, err.Error())
	}

	p.writes = append(p.writes, cccdWrite{handle: handle, attr: a, value: cccd})
	if !p.writing {
		p.writing = true
		go s.drainWrites(h, p)
	}
	return nil
}

// drainWrites applies p's queued CCCD writes until the queue is empty.
func (s *Stack) drainWrites(h ConnHandle, p *peer) {
	for {
		s.mu.Lock()
		if len(p.writes) == 0 {
			p.writing = false
			s.mu.Unlock()
			return
		}
		w := p.writes[0]
		p.writes = p.writes[1:]
		s.mu.Unlock()

		s.configure(h, w.handle, w.attr, w.value)
	}
}

// configure applies a CCCD value to the remote characteristic and queues
// the write response.
func (s *Stack) configure(h ConnHandle, handle Handle, a *attribute, cccd protocol.CCCD) {
	var err error
	if cccd.Indicate() || cccd.Notify() {
		kind := EventValueNotified
		if cccd.Indicate() {
			kind = EventValueIndicated
		}
		err = a.char.Subscribe(func(data []byte) {
			buf := make([]byte, len(data))
			copy(buf, data)
			_ = s.post(queued{ev: &Event{Kind: kind, Conn: h, Handle: a.value, Data: buf}})
		})
	} else {
		err = a.char.Unsubscribe()
	}
	if err != nil {
		err = errors.Wrapf(err, "write cccd 0x%04x", uint16(handle))
		slog.Warn("[BLE] cccd write failed", "conn", h, "error", err)
	}
	_ = s.post(queued{ev: &Event{Kind: EventWriteResponse, Conn: h, Handle: handle, Err: err}})
}
