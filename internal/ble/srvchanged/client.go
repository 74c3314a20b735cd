// Package srvchanged implements a GATT client for the Service Changed
// characteristic. The client learns the characteristic's handles from
// discovery, writes its CCCD to turn indications on or off, and reports
// received indications to the application.
//
// A Client is not safe for concurrent use. All methods, including the
// event handlers, must be called from the goroutine that delivers stack
// events (ble.Stack.Run), and the Handler is called synchronously from
// that goroutine. Handlers may call SetIndicationEnabled.
package srvchanged

import (
	"fmt"
	"log/slog"

	"github.com/chaz8081/scwatch/internal/ble"
	"github.com/chaz8081/scwatch/internal/ble/protocol"
)

// Transport submits attribute writes to a connected peer.
type Transport interface {
	WriteAttribute(conn ble.ConnHandle, handle ble.Handle, value []byte, op ble.WriteOp) error
}

// Option configures a Client.
type Option func(*Client)

// WithResetOnDisconnect makes the client forget the discovered
// characteristic when the connection drops, so handles from one peer are
// never written on the next.
func WithResetOnDisconnect() Option {
	return func(c *Client) { c.resetOnDisconnect = true }
}

// Client tracks the Service Changed characteristic for one connection.
type Client struct {
	registry          *Registry
	transport         Transport
	resetOnDisconnect bool

	char        ble.Characteristic
	cccdHandle  ble.Handle
	conn        ble.ConnHandle
	initialized bool
	found       bool
	handler     Handler
}

// NewClient creates an uninitialized client. Call Init before use.
func NewClient(registry *Registry, transport Transport, opts ...Option) *Client {
	c := &Client{
		registry:  registry,
		transport: transport,
		conn:      ble.InvalidConnHandle,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Init resets the client, stores h, and registers for discovery through
// the shared Registry if no client has done so yet. On error the client
// is left uninitialized.
func (c *Client) Init(h Handler) error {
	if isNilHandler(h) {
		return fmt.Errorf("%w: nil handler", ErrInvalidArgument)
	}

	c.char = ble.Characteristic{}
	c.cccdHandle = ble.InvalidHandle
	c.conn = ble.InvalidConnHandle
	c.initialized = false
	c.found = false
	c.handler = h

	if err := c.registry.Register(); err != nil {
		return err
	}
	c.initialized = true
	return nil
}

func isNilHandler(h Handler) bool {
	if h == nil {
		return true
	}
	f, ok := h.(HandlerFunc)
	return ok && f == nil
}

// SetIndicationEnabled writes the characteristic's CCCD to enable or
// disable indications. The write is submitted asynchronously; its
// completion is not reported.
func (c *Client) SetIndicationEnabled(enable bool) error {
	if !c.found {
		return ErrNotFound
	}
	if !c.initialized {
		return fmt.Errorf("%w: not initialized", ErrInvalidState)
	}
	if c.conn == ble.InvalidConnHandle {
		return fmt.Errorf("%w: no active connection", ErrInvalidState)
	}

	var v protocol.CCCD
	if enable {
		v = protocol.CCCDIndicate
	}
	return c.transport.WriteAttribute(c.conn, c.cccdHandle, protocol.EncodeCCCD(v), ble.WriteRequest)
}

// OnDiscoveryEvent looks for the Service Changed characteristic in a
// completed discovery and reports the result to the handler.
func (c *Client) OnDiscoveryEvent(ev *ble.DiscoveryEvent) {
	typ := EventCharNotFound
	if ev.Kind == ble.DiscoveryComplete {
		for _, dc := range ev.Chars {
			if dc.UUID == ble.ServiceChangedUUID && dc.Properties.Has(ble.CharIndicate) {
				c.char = dc.Characteristic
				c.cccdHandle = dc.CCCDHandle
				c.found = true
				typ = EventCharFound
				slog.Info("[SRVCHG] service changed characteristic found",
					"conn", c.conn, "value_handle", uint16(dc.ValueHandle), "cccd_handle", uint16(dc.CCCDHandle))
				break
			}
		}
	}
	// Error and service-not-found results also report CHAR_NOT_FOUND.
	// It is unclear whether callers want failure here or silence; kept as
	// a failure so a missing result never looks like success.

	c.emit(Event{Type: typ, Conn: c.conn})
}

// OnTransportEvent tracks the connection and forwards Service Changed
// indications received on it to the handler. ev must not be nil.
func (c *Client) OnTransportEvent(ev *ble.Event) {
	if ev == nil {
		panic("srvchanged: nil transport event")
	}

	switch ev.Kind {
	case ble.EventConnected:
		c.conn = ev.Conn

	case ble.EventDisconnected:
		c.conn = ble.InvalidConnHandle
		if c.resetOnDisconnect {
			c.char = ble.Characteristic{}
			c.cccdHandle = ble.InvalidHandle
			c.found = false
		}

	case ble.EventValueIndicated:
		// Handles are numbered per connection, so a match on another
		// link is a different attribute.
		if !c.found || ev.Conn != c.conn || ev.Handle != c.char.ValueHandle {
			return
		}
		out := Event{Type: EventServiceChanged, Conn: c.conn}
		if r, err := protocol.ParseServiceChanged(ev.Data); err == nil {
			out.Affected = r
			out.HasRange = true
		} else {
			slog.Debug("[SRVCHG] unparsable service changed value", "error", err)
		}
		slog.Info("[SRVCHG] service changed indication", "conn", c.conn, "range", out.Affected)
		c.emit(out)
	}
}

func (c *Client) emit(ev Event) {
	if c.handler != nil {
		c.handler.HandleServiceChanged(ev)
	}
}

// Initialized reports whether Init has succeeded.
func (c *Client) Initialized() bool { return c.initialized }

// Found reports whether the characteristic has been discovered.
func (c *Client) Found() bool { return c.found }

// Characteristic returns the discovered characteristic, if found.
func (c *Client) Characteristic() (ble.Characteristic, bool) { return c.char, c.found }

// CCCDHandle returns the characteristic's CCCD handle. Only meaningful
// when Found is true.
func (c *Client) CCCDHandle() ble.Handle { return c.cccdHandle }

// ConnHandle returns the tracked connection, or ble.InvalidConnHandle.
func (c *Client) ConnHandle() ble.ConnHandle { return c.conn }

// Compile-time check that Client can observe a ble.Stack.
var _ ble.Observer = (*Client)(nil)
