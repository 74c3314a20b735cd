package srvchanged

import (
	"fmt"

	"github.com/chaz8081/scwatch/internal/ble"
	"github.com/chaz8081/scwatch/internal/ble/protocol"
)

// EventType is the type of a client event.
type EventType int

const (
	// EventCharFound signals that the Service Changed characteristic was
	// found on the peer.
	EventCharFound EventType = iota
	// EventCharNotFound signals that discovery did not find it.
	EventCharNotFound
	// EventServiceChanged signals a Service Changed indication.
	EventServiceChanged
)

func (t EventType) String() string {
	switch t {
	case EventCharFound:
		return "CHAR_FOUND"
	case EventCharNotFound:
		return "CHAR_NOT_FOUND"
	case EventServiceChanged:
		return "SERVICE_CHANGED"
	default:
		return fmt.Sprintf("EventType(%d)", int(t))
	}
}

// Event is delivered to the application Handler.
type Event struct {
	Type EventType
	Conn ble.ConnHandle

	// Affected is the changed handle range carried by a Service Changed
	// indication. Only meaningful when HasRange is true.
	Affected protocol.HandleRange
	HasRange bool
}

// Handler receives client events. It is called synchronously from the
// goroutine delivering stack events and must not block.
type Handler interface {
	HandleServiceChanged(ev Event)
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(ev Event)

// HandleServiceChanged calls f(ev).
func (f HandlerFunc) HandleServiceChanged(ev Event) { f(ev) }
