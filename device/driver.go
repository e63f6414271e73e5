package device

import (
	"io"
	"kestrel/device/pci"
	"kestrel/device/rtc"
	"kestrel/device/storage/ahci"
	"kestrel/kernel"
)

// Driver is an interface implemented by all drivers.
type Driver interface {
	// DriverName returns the name of the driver.
	DriverName() string

	// DriverVersion returns the driver version.
	DriverVersion() (major uint16, minor uint16, patch uint16)

	// DriverInit initializes the device driver. If the driver init code
	// needs to log some output, it can use the supplied io.Writer in
	// conjunction with a call to kfmt.Fprint.
	DriverInit(io.Writer) *kernel.Error
}

// Resources holds the kernel services that drivers may need while probing
// their device.
type Resources struct {
	// PCI is nil if the system has no PCI configuration mechanism.
	PCI pci.ConfigAccess

	Mapper        ahci.RegionMapper
	BISTPollLimit int

	// RTCCenturyRegister is the CMOS century register from the FADT.
	RTCCenturyRegister uint8
}

// ProbeFn returns a driver for dev or nil if the driver cannot handle it.
type ProbeFn func(dev Device, res *Resources) Driver

// DriverEntry describes a driver that can be bound to devices of a
// particular kind.
type DriverEntry struct {
	Name  string
	Kind  Kind
	Match func(Device) bool
	Probe ProbeFn
}

// Drivers lists the drivers built into the kernel in the order they are
// tried.
var Drivers = []DriverEntry{
	{
		Name: "AHCI",
		Kind: KindPCI,
		Match: func(dev Device) bool {
			return ahci.Matches(dev.(*PCIDevice).Device)
		},
		Probe: func(dev Device, res *Resources) Driver {
			if res.PCI == nil || res.Mapper == nil {
				return nil
			}

			if drv := ahci.Probe(dev.(*PCIDevice).Device, res.PCI, res.Mapper, res.BISTPollLimit); drv != nil {
				return drv
			}
			return nil
		},
	},
	{
		Name: "RTC",
		Kind: KindACPI,
		Match: func(dev Device) bool {
			return rtc.Matches(dev.(*ACPIDevice).HID)
		},
		Probe: func(dev Device, res *Resources) Driver {
			if drv := rtc.Probe(dev.(*ACPIDevice).Device, res.RTCCenturyRegister); drv != nil {
				return drv
			}
			return nil
		},
	},
}

// FindDriver returns the driver of the first entry in drivers that matches
// dev and whose probe succeeds. It returns nil if no driver claims dev.
func FindDriver(drivers []DriverEntry, dev Device, res *Resources) Driver {
	for _, entry := range drivers {
		if entry.Kind != dev.Kind() || !entry.Match(dev) {
			continue
		}

		if drv := entry.Probe(dev, res); drv != nil {
			return drv
		}
	}

	return nil
}
