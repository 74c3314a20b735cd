package srvchanged

import (
	"context"
	"sync"
	"testing"
	"time"

	"tinygo.org/x/bluetooth"

	"github.com/chaz8081/scwatch/internal/ble"
	"github.com/chaz8081/scwatch/internal/ble/protocol"
)

// peerChar is a remote characteristic whose subscription the test can drive.
type peerChar struct {
	uuid  bluetooth.UUID
	props ble.Property

	mu sync.Mutex
	cb func([]byte)
}

func (c *peerChar) UUID() bluetooth.UUID     { return c.uuid }
func (c *peerChar) Properties() ble.Property { return c.props }

func (c *peerChar) Subscribe(cb func([]byte)) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cb = cb
	return nil
}

func (c *peerChar) Unsubscribe() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cb = nil
	return nil
}

func (c *peerChar) indicate(data []byte) bool {
	c.mu.Lock()
	cb := c.cb
	c.mu.Unlock()
	if cb == nil {
		return false
	}
	cb(data)
	return true
}

// peer is a connection exposing a Generic Attribute service.
type peer struct {
	chars []*peerChar
}

func (p *peer) DiscoverCharacteristics(service bluetooth.UUID) ([]ble.RemoteCharacteristic, error) {
	if service != ble.GenericAttributeUUID {
		return nil, ble.ErrServiceNotFound
	}
	out := make([]ble.RemoteCharacteristic, len(p.chars))
	for i, c := range p.chars {
		out[i] = c
	}
	return out, nil
}

func (p *peer) Disconnect() error   { return nil }
func (p *peer) OnDisconnect(func()) {}

// peerAdapter hands out one fixed peer.
type peerAdapter struct {
	peer *peer
}

func (a *peerAdapter) Enable() error { return nil }

func (a *peerAdapter) Scan(context.Context, []bluetooth.UUID) ([]ble.Device, error) {
	return nil, nil
}

func (a *peerAdapter) Connect(context.Context, string) (ble.Connection, error) {
	return a.peer, nil
}

// writeAcks forwards write responses from the dispatch goroutine.
type writeAcks chan ble.Event

func (w writeAcks) OnTransportEvent(ev *ble.Event) {
	if ev.Kind == ble.EventWriteResponse {
		w <- *ev
	}
}

func (w writeAcks) OnDiscoveryEvent(*ble.DiscoveryEvent) {}

func nextEvent(t *testing.T, events <-chan Event) Event {
	t.Helper()
	select {
	case ev := <-events:
		return ev
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for client event")
		return Event{}
	}
}

func TestClientOnStack(t *testing.T) {
	sc := &peerChar{uuid: ble.ServiceChangedUUID, props: ble.CharIndicate}
	hash := &peerChar{uuid: ble.DatabaseHashUUID, props: ble.CharRead}
	stack := ble.NewStack(&peerAdapter{peer: &peer{chars: []*peerChar{hash, sc}}}, ble.DefaultStackOptions())

	client := NewClient(NewRegistry(stack), stack)
	events := make(chan Event, 16)
	enableErr := make(chan error, 1)
	err := client.Init(HandlerFunc(func(ev Event) {
		if ev.Type == EventCharFound {
			enableErr <- client.SetIndicationEnabled(true)
		}
		events <- ev
	}))
	if err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	acks := make(writeAcks, 4)
	stack.AddObserver(client)
	stack.AddObserver(acks)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = stack.Run(ctx) }()
	defer stack.Close()

	h, err := stack.Connect(ctx, "AA:BB:CC:DD:EE:FF")
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	if err := stack.Discover(h); err != nil {
		t.Fatalf("Discover() error = %v", err)
	}

	if ev := nextEvent(t, events); ev.Type != EventCharFound || ev.Conn != h {
		t.Fatalf("event = %+v, want CHAR_FOUND on %v", ev, h)
	}
	if err := <-enableErr; err != nil {
		t.Fatalf("SetIndicationEnabled() error = %v", err)
	}

	// 1: service, 2/3: Database Hash, 4/5: Service Changed, 6: its CCCD.
	char, _ := client.Characteristic()
	if char.ValueHandle != 5 || client.CCCDHandle() != 6 {
		t.Errorf("value/cccd = %d/%d, want 5/6", char.ValueHandle, client.CCCDHandle())
	}

	select {
	case ack := <-acks:
		if ack.Err != nil || ack.Handle != client.CCCDHandle() {
			t.Fatalf("write response = %+v, want success on the cccd", ack)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for the cccd write response")
	}

	want := protocol.HandleRange{Start: 0x0020, End: 0x002f}
	if !sc.indicate(protocol.MarshalServiceChanged(want)) {
		t.Fatal("service changed characteristic was not subscribed")
	}
	ev := nextEvent(t, events)
	if ev.Type != EventServiceChanged || ev.Conn != h {
		t.Fatalf("event = %+v, want SERVICE_CHANGED on %v", ev, h)
	}
	if !ev.HasRange || ev.Affected != want {
		t.Errorf("Affected = %v (HasRange %v), want %v", ev.Affected, ev.HasRange, want)
	}
}
