package srvchanged

import (
	"testing"

	"tinygo.org/x/bluetooth"

	"github.com/chaz8081/scwatch/internal/ble"
)

// mockDiscovery records registrations and rejects duplicates like ble.Stack.
type mockDiscovery struct {
	registered []bluetooth.UUID
	calls      int
	err        error // returned from Register when set
}

func (d *mockDiscovery) Register(uuid bluetooth.UUID) error {
	d.calls++
	if d.err != nil {
		return d.err
	}
	for _, u := range d.registered {
		if u == uuid {
			return ble.ErrAlreadyRegistered
		}
	}
	d.registered = append(d.registered, uuid)
	return nil
}

type write struct {
	conn   ble.ConnHandle
	handle ble.Handle
	value  []byte
	op     ble.WriteOp
}

// mockTransport records attribute writes.
type mockTransport struct {
	writes []write
	err    error
}

func (tr *mockTransport) WriteAttribute(conn ble.ConnHandle, handle ble.Handle, value []byte, op ble.WriteOp) error {
	if tr.err != nil {
		return tr.err
	}
	cp := make([]byte, len(value))
	copy(cp, value)
	tr.writes = append(tr.writes, write{conn, handle, cp, op})
	return nil
}

// recorder collects handler events.
type recorder struct {
	events []Event
}

func (r *recorder) HandleServiceChanged(ev Event) {
	r.events = append(r.events, ev)
}

func (r *recorder) count(typ EventType) int {
	n := 0
	for _, ev := range r.events {
		if ev.Type == typ {
			n++
		}
	}
	return n
}

func TestMockDiscoveryImplementsInterface(t *testing.T) {
	var _ Discovery = (*mockDiscovery)(nil)
}

func TestMockTransportImplementsInterface(t *testing.T) {
	var _ Transport = (*mockTransport)(nil)
}

func TestStackImplementsCollaborators(t *testing.T) {
	var _ Discovery = (*ble.Stack)(nil)
	var _ Transport = (*ble.Stack)(nil)
}
