package pci

import (
	"kestrel/kernel/kfmt"
	"strings"
)

// DeviceType classifies a function by its class and subclass codes. Only
// the types that the kernel may bind a driver to are recognized.
type DeviceType uint8

// The list of recognized device types.
const (
	DeviceTypeUnknown DeviceType = iota
	DeviceTypeSATAController
	DeviceTypeVGACompatibleController
	DeviceTypeHostBridge
	DeviceTypeISABridge
	DeviceTypePCIPCIBridge
	DeviceTypeSMBusController
)

var deviceTypeNames = [...]string{
	DeviceTypeUnknown:                 "Unknown",
	DeviceTypeSATAController:          "SataController",
	DeviceTypeVGACompatibleController: "VgaCompatibleController",
	DeviceTypeHostBridge:              "HostBridge",
	DeviceTypeISABridge:               "IsaBridge",
	DeviceTypePCIPCIBridge:            "PciPciBridge",
	DeviceTypeSMBusController:         "SmBusController",
}

// String implements fmt.Stringer for DeviceType.
func (t DeviceType) String() string {
	if int(t) >= len(deviceTypeNames) {
		return deviceTypeNames[DeviceTypeUnknown]
	}
	return deviceTypeNames[t]
}

// DeviceTypeFor maps a class and subclass pair to a DeviceType.
func DeviceTypeFor(class, subclass uint8) DeviceType {
	switch uint16(class)<<8 | uint16(subclass) {
	case 0x0106:
		return DeviceTypeSATAController
	case 0x0300:
		return DeviceTypeVGACompatibleController
	case 0x0600:
		return DeviceTypeHostBridge
	case 0x0601:
		return DeviceTypeISABridge
	case 0x0604:
		return DeviceTypePCIPCIBridge
	case 0x0c05:
		return DeviceTypeSMBusController
	default:
		return DeviceTypeUnknown
	}
}

// Device describes a PCI function discovered while walking the bus.
type Device struct {
	Address  Address
	VendorID uint16
	DeviceID uint16
	Class    uint8
	Subclass uint8
	ProgIF   uint8
	Revision uint8
	Type     DeviceType
}

var vendorNames = map[uint16]string{
	0x1022: "AMD",
	0x8086: "Intel Corporation",
	0x10de: "NVIDIA Corporation",
	0x1234: "QEMU",
	0x1af4: "Red Hat, Inc.",
}

var deviceNames = map[uint32]string{
	0x8086_29c0: "82G33/G31/P35/P31 Express DRAM Controller",
	0x8086_2918: "82801IB (ICH9) LPC Interface Controller",
	0x8086_2922: "82801IR/IO/IH (ICH9R/DO/DH) 6 port SATA Controller [AHCI mode]",
	0x8086_2930: "82801I (ICH9 Family) SMBus Controller",
	0x8086_1237: "440FX - 82441FX PMC [Natoma]",
	0x8086_7000: "82371SB PIIX3 ISA [Natoma/Triton II]",
	0x1234_1111: "QEMU Virtual Video Controller [\"-vga std\"]",
}

// VendorName returns the name of the device vendor or "Unknown".
func (d *Device) VendorName() string {
	if name, ok := vendorNames[d.VendorID]; ok {
		return name
	}
	return "Unknown"
}

// DeviceName returns the product name of the device or "Unknown".
func (d *Device) DeviceName() string {
	if name, ok := deviceNames[uint32(d.VendorID)<<16|uint32(d.DeviceID)]; ok {
		return name
	}
	return "Unknown"
}

// InterfaceName describes the programming interface of the device. It
// returns an empty string for interfaces without a known name.
func (d *Device) InterfaceName() string {
	switch d.Type {
	case DeviceTypeSATAController:
		switch d.ProgIF {
		case 0x00:
			return d.Type.String() + " Vendor Specific Interface"
		case 0x01:
			return d.Type.String() + " AHCI 1.0 Controller"
		case 0x02:
			return d.Type.String() + " Serial Storage Bus"
		}
	case DeviceTypeVGACompatibleController:
		switch d.ProgIF {
		case 0x00:
			return d.Type.String() + " VGA Controller"
		case 0x01:
			return d.Type.String() + " 8514 Compatible VGA Controller"
		}
	case DeviceTypeHostBridge, DeviceTypeISABridge, DeviceTypePCIPCIBridge, DeviceTypeSMBusController:
		return d.Type.String()
	}

	return ""
}

// String returns a single line description of the device.
func (d *Device) String() string {
	var sb strings.Builder
	kfmt.Fprintf(&sb, "PCI device %s: %s %s (%s) [%4x:%4x]",
		d.Address.String(),
		d.VendorName(),
		d.DeviceName(),
		d.InterfaceName(),
		d.VendorID,
		d.DeviceID,
	)
	return sb.String()
}
