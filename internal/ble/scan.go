package ble

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"tinygo.org/x/bluetooth"
)

// ScanForDevices scans for timeout and returns each peripheral once.
// When services are given, only peripherals advertising one of them are
// returned.
func ScanForDevices(adapter Adapter, timeout time.Duration, services ...bluetooth.UUID) ([]Device, error) {
	if err := adapter.Enable(); err != nil {
		return nil, errors.Wrap(err, "enable adapter")
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	devices, err := adapter.Scan(ctx, services)
	if err != nil {
		return nil, errors.Wrap(err, "scan")
	}
	return devices, nil
}
