package ble

import (
	"fmt"

	"tinygo.org/x/bluetooth"
)

// ConnHandle identifies a connection. Handles are allocated by the Stack.
type ConnHandle uint16

// InvalidConnHandle marks the absence of a connection.
const InvalidConnHandle ConnHandle = 0xFFFF

func (h ConnHandle) String() string {
	if h == InvalidConnHandle {
		return "invalid"
	}
	return fmt.Sprintf("%d", uint16(h))
}

// Handle is an attribute handle in a peer's attribute table.
type Handle uint16

// InvalidHandle is never assigned to an attribute.
const InvalidHandle Handle = 0

// Property is the characteristic properties bit field.
type Property uint8

// Characteristic property flags (Core Vol 3, Part G, 3.3.1.1).
const (
	CharBroadcast   Property = 0x01
	CharRead        Property = 0x02
	CharWriteNR     Property = 0x04
	CharWrite       Property = 0x08
	CharNotify      Property = 0x10
	CharIndicate    Property = 0x20
	CharSignedWrite Property = 0x40
	CharExtended    Property = 0x80
)

// Has reports whether all bits of p are set.
func (props Property) Has(p Property) bool { return props&p == p }

// Characteristic describes a discovered characteristic.
type Characteristic struct {
	UUID        bluetooth.UUID
	Properties  Property
	DeclHandle  Handle
	ValueHandle Handle
}

// DiscoveredChar pairs a characteristic with its CCCD handle, or
// InvalidHandle when it has none.
type DiscoveredChar struct {
	Characteristic
	CCCDHandle Handle
}

// WriteOp selects how an attribute write is sent.
type WriteOp int

const (
	// WriteRequest expects a write response from the server.
	WriteRequest WriteOp = iota
	// WriteCommand is sent without a response.
	WriteCommand
)

// EventKind is the type of a transport Event.
type EventKind int

const (
	EventConnected EventKind = iota + 1
	EventDisconnected
	EventValueIndicated
	EventValueNotified
	EventWriteResponse
)

var eventKindNames = map[EventKind]string{
	EventConnected:      "connected",
	EventDisconnected:   "disconnected",
	EventValueIndicated: "value-indicated",
	EventValueNotified:  "value-notified",
	EventWriteResponse:  "write-response",
}

func (k EventKind) String() string {
	if s, ok := eventKindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("EventKind(%d)", int(k))
}

// Event is a connection or GATT client event.
type Event struct {
	Kind   EventKind
	Conn   ConnHandle
	Handle Handle // value handle for indications/notifications, written handle for write responses
	Data   []byte
	Err    error // write-response failure
}

// DiscoveryEventKind is the type of a DiscoveryEvent.
type DiscoveryEventKind int

const (
	DiscoveryComplete DiscoveryEventKind = iota + 1
	DiscoveryError
	DiscoveryServiceNotFound
)

var discoveryKindNames = map[DiscoveryEventKind]string{
	DiscoveryComplete:        "complete",
	DiscoveryError:           "error",
	DiscoveryServiceNotFound: "service-not-found",
}

func (k DiscoveryEventKind) String() string {
	if s, ok := discoveryKindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("DiscoveryEventKind(%d)", int(k))
}

// DiscoveryEvent reports the outcome of discovering one registered service.
type DiscoveryEvent struct {
	Kind    DiscoveryEventKind
	Conn    ConnHandle
	Service bluetooth.UUID
	Chars   []DiscoveredChar // set for DiscoveryComplete, in server order
	Err     error            // set for DiscoveryError
}

// Observer receives events from Stack.Run. Both methods are called on the
// dispatch goroutine and must not block.
type Observer interface {
	OnTransportEvent(ev *Event)
	OnDiscoveryEvent(ev *DiscoveryEvent)
}
