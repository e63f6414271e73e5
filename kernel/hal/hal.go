// Package hal binds drivers to the devices discovered during boot.
package hal

import (
	"bytes"
	"io"
	"kestrel/device"
	"kestrel/kernel/kfmt"
)

var (
	// drivers is the driver table consulted by DetectHardware. Tests
	// override it.
	drivers = device.Drivers

	strBuf bytes.Buffer
)

// DetectHardware looks up a driver for each device and initializes it. The
// initialization output of each driver is prefixed with
// "[hal] name(major.minor.patch): ". The successfully initialized drivers
// are returned in device order.
func DetectHardware(devs []device.Device, res *device.Resources, w io.Writer) []device.Driver {
	var (
		prefixWriter  = kfmt.PrefixWriter{Sink: w}
		activeDrivers []device.Driver
	)

	for _, dev := range devs {
		drv := device.FindDriver(drivers, dev, res)
		if drv == nil {
			continue
		}

		strBuf.Reset()
		major, minor, patch := drv.DriverVersion()
		kfmt.Fprintf(&strBuf, "[hal] %s(%d.%d.%d): ", drv.DriverName(), major, minor, patch)
		prefixWriter.Prefix = strBuf.Bytes()

		if err := drv.DriverInit(&prefixWriter); err != nil {
			kfmt.Fprintf(&prefixWriter, "init failed: %s\n", err.Message)
			continue
		}

		kfmt.Fprintf(&prefixWriter, "initialized\n")
		activeDrivers = append(activeDrivers, drv)
	}

	return activeDrivers
}
