package ble

import (
	"context"
	"log/slog"
	"sync"

	"github.com/pkg/errors"
	"tinygo.org/x/bluetooth"
)

// TinyGoAdapter wraps tinygo-org/bluetooth.
// On macOS, device addresses are CoreBluetooth UUIDs rather than MAC
// addresses; the Address field of Device stores that UUID string.
type TinyGoAdapter struct {
	adapter *bluetooth.Adapter

	// mu protects the fields below.
	mu          sync.Mutex
	enabled     bool
	connections map[string]*tinyGoConnection // keyed by bluetooth.Address.String()
}

// NewTinyGoAdapter creates an adapter for the default host controller.
func NewTinyGoAdapter() *TinyGoAdapter {
	return &TinyGoAdapter{
		adapter:     bluetooth.DefaultAdapter,
		connections: make(map[string]*tinyGoConnection),
	}
}

// Compile-time check that TinyGoAdapter implements Adapter.
var _ Adapter = (*TinyGoAdapter)(nil)

func (a *TinyGoAdapter) Enable() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.enabled {
		return nil
	}
	if err := a.adapter.Enable(); err != nil {
		return errors.Wrap(err, "enable adapter")
	}
	a.enabled = true

	// tinygo/bluetooth reports peripheral disconnects through the
	// adapter-level connect handler with connected=false.
	a.adapter.SetConnectHandler(func(device bluetooth.Device, connected bool) {
		if connected {
			return
		}
		id := device.Address.String()
		a.mu.Lock()
		conn, ok := a.connections[id]
		delete(a.connections, id)
		a.mu.Unlock()
		if ok {
			conn.fireDisconnect()
		}
	})
	return nil
}

func (a *TinyGoAdapter) Scan(ctx context.Context, services []bluetooth.UUID) ([]Device, error) {
	var mu sync.Mutex
	var devices []Device
	seen := make(map[string]bool)

	done := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			_ = a.adapter.StopScan()
		case <-done:
		}
	}()

	err := a.adapter.Scan(func(adapter *bluetooth.Adapter, result bluetooth.ScanResult) {
		if !advertisesAny(result, services) {
			return
		}
		addr := result.Address.String()
		mu.Lock()
		defer mu.Unlock()
		if seen[addr] {
			return
		}
		seen[addr] = true
		devices = append(devices, Device{
			Name:    result.LocalName(),
			Address: addr,
			RSSI:    int(result.RSSI),
		})
	})
	close(done)

	if err != nil && ctx.Err() == nil {
		return nil, errors.Wrap(err, "scan")
	}
	mu.Lock()
	defer mu.Unlock()
	return devices, nil
}

func advertisesAny(result bluetooth.ScanResult, services []bluetooth.UUID) bool {
	if len(services) == 0 {
		return true
	}
	for _, u := range services {
		if result.HasServiceUUID(u) {
			return true
		}
	}
	return false
}

func (a *TinyGoAdapter) Connect(ctx context.Context, address string) (Connection, error) {
	var addr bluetooth.Address
	addr.Set(address)

	// tinygo/bluetooth's Connect blocks with its own timeout; wrap it so
	// ctx cancellation returns early.
	device, err := awaitConnect(ctx,
		func() (bluetooth.Device, error) {
			return a.adapter.Connect(addr, bluetooth.ConnectionParams{})
		},
		func(d bluetooth.Device) {
			if err := d.Disconnect(); err != nil {
				slog.Warn("[BLE] disconnect after cancelled connect failed", "address", address, "error", err)
			}
		})
	if err != nil {
		return nil, err
	}
	conn := &tinyGoConnection{device: device}
	a.mu.Lock()
	a.connections[addr.String()] = conn
	a.mu.Unlock()
	return conn, nil
}

// awaitConnect runs dial in the background and waits for it or ctx. A
// link that comes up after ctx is done is handed to release so it does
// not leak.
func awaitConnect[T any](ctx context.Context, dial func() (T, error), release func(T)) (T, error) {
	type result struct {
		v   T
		err error
	}
	ch := make(chan result, 1)
	go func() {
		v, err := dial()
		ch <- result{v, err}
	}()

	select {
	case <-ctx.Done():
		go func() {
			if late := <-ch; late.err == nil {
				release(late.v)
			}
		}()
		var zero T
		return zero, ctx.Err()
	case r := <-ch:
		return r.v, r.err
	}
}

type tinyGoConnection struct {
	device bluetooth.Device

	mu           sync.Mutex
	disconnectCb func()
}

func (c *tinyGoConnection) DiscoverCharacteristics(service bluetooth.UUID) ([]RemoteCharacteristic, error) {
	svcs, err := c.device.DiscoverServices([]bluetooth.UUID{service})
	if err != nil {
		return nil, errors.Wrap(err, "discover services")
	}
	if len(svcs) == 0 {
		return nil, ErrServiceNotFound
	}

	chars, err := svcs[0].DiscoverCharacteristics(nil)
	if err != nil {
		return nil, errors.Wrap(err, "discover characteristics")
	}
	out := make([]RemoteCharacteristic, 0, len(chars))
	for i := range chars {
		out = append(out, &tinyGoCharacteristic{char: chars[i]})
	}
	return out, nil
}

func (c *tinyGoConnection) Disconnect() error {
	return c.device.Disconnect()
}

func (c *tinyGoConnection) OnDisconnect(cb func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.disconnectCb = cb
}

func (c *tinyGoConnection) fireDisconnect() {
	c.mu.Lock()
	cb := c.disconnectCb
	c.mu.Unlock()
	if cb != nil {
		cb()
	}
}

// knownProperties holds the mandated property bits of the Generic
// Attribute service characteristics. tinygo does not surface the declared
// properties on every backend.
var knownProperties = map[bluetooth.UUID]Property{
	ServiceChangedUUID:          CharIndicate,
	ClientSupportedFeaturesUUID: CharRead | CharWrite,
	DatabaseHashUUID:            CharRead,
}

type tinyGoCharacteristic struct {
	char bluetooth.DeviceCharacteristic
}

func (c *tinyGoCharacteristic) UUID() bluetooth.UUID {
	return c.char.UUID()
}

func (c *tinyGoCharacteristic) Properties() Property {
	if p, ok := knownProperties[c.char.UUID()]; ok {
		return p
	}
	slog.Debug("[BLE] characteristic properties unknown", "uuid", c.char.UUID().String())
	return CharRead
}

func (c *tinyGoCharacteristic) Subscribe(cb func([]byte)) error {
	return c.char.EnableNotifications(func(buf []byte) {
		cb(buf)
	})
}

func (c *tinyGoCharacteristic) Unsubscribe() error {
	return c.char.EnableNotifications(nil)
}
