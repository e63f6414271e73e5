// Package device defines the devices discovered during boot and the table
// of drivers that can be bound to them.
package device

import (
	"kestrel/device/acpi"
	"kestrel/device/pci"
	"strings"
)

// Kind identifies the bus a device was discovered on.
type Kind uint8

// The list of supported device kinds.
const (
	KindACPI Kind = iota
	KindPCI
)

// Device is a piece of hardware discovered during boot. It is implemented
// by *ACPIDevice and *PCIDevice only.
type Device interface {
	Kind() Kind
	String() string

	device()
}

// ACPIDevice is a device object declared in the ACPI namespace.
type ACPIDevice struct {
	*acpi.Device
}

// Kind implements Device.
func (*ACPIDevice) Kind() Kind { return KindACPI }

// String implements Device.
func (d *ACPIDevice) String() string {
	var sb strings.Builder
	sb.WriteString("ACPI device ")
	sb.WriteString(d.Path)
	sb.WriteString(": hid=")
	sb.WriteString(d.HID)
	return sb.String()
}

func (*ACPIDevice) device() {}

// PCIDevice is a function found while walking the PCI bus.
type PCIDevice struct {
	*pci.Device
}

// Kind implements Device.
func (*PCIDevice) Kind() Kind { return KindPCI }

func (*PCIDevice) device() {}

// Inventory merges the devices found in the ACPI namespace and on the PCI
// bus. ACPI devices come first and each group keeps its discovery order.
func Inventory(acpiDevs []*acpi.Device, pciDevs []*pci.Device) []Device {
	devs := make([]Device, 0, len(acpiDevs)+len(pciDevs))

	for _, dev := range acpiDevs {
		devs = append(devs, &ACPIDevice{dev})
	}

	for _, dev := range pciDevs {
		devs = append(devs, &PCIDevice{dev})
	}

	return devs
}
