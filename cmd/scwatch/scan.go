package main

import (
	"fmt"
	"time"

	"github.com/pkg/errors"
	"github.com/urfave/cli"
	"tinygo.org/x/bluetooth"

	"github.com/chaz8081/scwatch/internal/ble"
)

func scan(c *cli.Context) error {
	duration := c.Duration("duration")
	if duration <= 0 {
		duration = time.Duration(cfg.Device.ScanTimeout) * time.Second
	}

	var services []bluetooth.UUID
	for _, s := range c.StringSlice("service") {
		u, err := bluetooth.ParseUUID(expandShortUUID(s))
		if err != nil {
			return errors.Wrapf(err, "can't parse service UUID %q", s)
		}
		services = append(services, u)
	}

	fmt.Printf("Scanning for %s...\n", duration)
	devices, err := ble.ScanForDevices(ble.NewTinyGoAdapter(), duration, services...)
	if err != nil {
		return err
	}

	if len(devices) == 0 {
		fmt.Println("No devices found")
		return nil
	}
	for _, d := range devices {
		name := d.Name
		if name == "" {
			name = "(unnamed)"
		}
		fmt.Printf("%-40s %4d dBm  %s\n", d.Address, d.RSSI, name)
	}
	return nil
}

// expandShortUUID turns a 16-bit UUID such as "180f" into its full
// Bluetooth Base UUID form. Longer strings are returned unchanged.
func expandShortUUID(s string) string {
	if len(s) == 4 {
		return "0000" + s + "-0000-1000-8000-00805f9b34fb"
	}
	return s
}
