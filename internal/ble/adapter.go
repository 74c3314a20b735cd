// Package ble provides a handle-level GATT central on top of
// tinygo.org/x/bluetooth. It connects to peripherals, walks the services
// registered for discovery, exposes the result as a numbered attribute
// table, and serializes every stack event onto a single dispatch goroutine.
package ble

import (
	"context"

	"tinygo.org/x/bluetooth"
)

// Well-known GATT UUIDs.
var (
	GenericAttributeUUID        = bluetooth.New16BitUUID(0x1801)
	ServiceChangedUUID          = bluetooth.New16BitUUID(0x2A05)
	ClientSupportedFeaturesUUID = bluetooth.New16BitUUID(0x2B29)
	DatabaseHashUUID            = bluetooth.New16BitUUID(0x2B2A)
)

// RemoteCharacteristic is a characteristic discovered on a connected peer.
type RemoteCharacteristic interface {
	// UUID returns the characteristic type.
	UUID() bluetooth.UUID
	// Properties returns the characteristic property bits.
	Properties() Property
	// Subscribe enables notifications or indications and delivers
	// every received value to callback.
	Subscribe(callback func(data []byte)) error
	// Unsubscribe disables notifications and indications.
	Unsubscribe() error
}

// Device represents a discovered BLE peripheral.
type Device struct {
	Name    string
	Address string
	RSSI    int
}

// Connection represents an active BLE connection to a peripheral.
type Connection interface {
	// DiscoverCharacteristics lists the characteristics of a service in
	// server order. Returns ErrServiceNotFound if the peer lacks it.
	DiscoverCharacteristics(service bluetooth.UUID) ([]RemoteCharacteristic, error)
	// Disconnect terminates the connection.
	Disconnect() error
	// OnDisconnect registers a callback invoked when the connection drops.
	OnDisconnect(callback func())
}

// Adapter abstracts the BLE hardware adapter for testing.
type Adapter interface {
	// Enable powers on the BLE adapter.
	Enable() error
	// Scan discovers BLE peripherals until ctx is done. When services is
	// non-empty only peripherals advertising one of them are returned.
	Scan(ctx context.Context, services []bluetooth.UUID) ([]Device, error)
	// Connect establishes a connection to the device with the given address.
	Connect(ctx context.Context, address string) (Connection, error)
}
