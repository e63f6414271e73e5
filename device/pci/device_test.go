package pci

import "testing"

func TestDeviceTypeFor(t *testing.T) {
	specs := []struct {
		class, subclass uint8
		exp             DeviceType
		expName         string
	}{
		{0x01, 0x06, DeviceTypeSATAController, "SataController"},
		{0x03, 0x00, DeviceTypeVGACompatibleController, "VgaCompatibleController"},
		{0x06, 0x00, DeviceTypeHostBridge, "HostBridge"},
		{0x06, 0x01, DeviceTypeISABridge, "IsaBridge"},
		{0x06, 0x04, DeviceTypePCIPCIBridge, "PciPciBridge"},
		{0x0c, 0x05, DeviceTypeSMBusController, "SmBusController"},
		{0x01, 0x01, DeviceTypeUnknown, "Unknown"},
		{0x02, 0x00, DeviceTypeUnknown, "Unknown"},
	}

	for _, spec := range specs {
		t.Run(spec.expName, func(t *testing.T) {
			got := DeviceTypeFor(spec.class, spec.subclass)
			if got != spec.exp {
				t.Fatalf("expected type for %x:%x to be %s; got %s", spec.class, spec.subclass, spec.exp, got)
			}

			if got.String() != spec.expName {
				t.Fatalf("expected type name %q; got %q", spec.expName, got.String())
			}
		})
	}

	if got := DeviceType(99).String(); got != "Unknown" {
		t.Fatalf("expected out of range types to be reported as Unknown; got %q", got)
	}
}

func TestDeviceNames(t *testing.T) {
	specs := []struct {
		dev          Device
		expVendor    string
		expDevice    string
		expInterface string
		expString    string
	}{
		{
			Device{Address: NewAddress(0, 0, 0x1f, 2), VendorID: 0x8086, DeviceID: 0x2922, Class: 1, Subclass: 6, ProgIF: 1, Type: DeviceTypeSATAController},
			"Intel Corporation",
			"82801IR/IO/IH (ICH9R/DO/DH) 6 port SATA Controller [AHCI mode]",
			"SataController AHCI 1.0 Controller",
			"PCI device 0000:00:1f.2: Intel Corporation 82801IR/IO/IH (ICH9R/DO/DH) 6 port SATA Controller [AHCI mode] (SataController AHCI 1.0 Controller) [8086:2922]",
		},
		{
			Device{Address: NewAddress(0, 0, 1, 0), VendorID: 0x1234, DeviceID: 0x1111, Class: 3, ProgIF: 0, Type: DeviceTypeVGACompatibleController},
			"QEMU",
			"QEMU Virtual Video Controller [\"-vga std\"]",
			"VgaCompatibleController VGA Controller",
			"PCI device 0000:00:01.0: QEMU QEMU Virtual Video Controller [\"-vga std\"] (VgaCompatibleController VGA Controller) [1234:1111]",
		},
		{
			Device{Address: NewAddress(0, 0, 0x1f, 3), VendorID: 0x8086, DeviceID: 0x2930, Class: 0xc, Subclass: 5, Type: DeviceTypeSMBusController},
			"Intel Corporation",
			"82801I (ICH9 Family) SMBus Controller",
			"SmBusController",
			"PCI device 0000:00:1f.3: Intel Corporation 82801I (ICH9 Family) SMBus Controller (SmBusController) [8086:2930]",
		},
		{
			Device{Address: NewAddress(0, 2, 0, 0), VendorID: 0x1b36, DeviceID: 0x0007, Class: 1, Subclass: 6, ProgIF: 0x7f, Type: DeviceTypeSATAController},
			"Unknown",
			"Unknown",
			"",
			"PCI device 0000:02:00.0: Unknown Unknown () [1b36:0007]",
		},
	}

	for _, spec := range specs {
		t.Run(spec.dev.Address.String(), func(t *testing.T) {
			dev := spec.dev
			if got := dev.VendorName(); got != spec.expVendor {
				t.Errorf("expected vendor name %q; got %q", spec.expVendor, got)
			}
			if got := dev.DeviceName(); got != spec.expDevice {
				t.Errorf("expected device name %q; got %q", spec.expDevice, got)
			}
			if got := dev.InterfaceName(); got != spec.expInterface {
				t.Errorf("expected interface name %q; got %q", spec.expInterface, got)
			}
			if got := dev.String(); got != spec.expString {
				t.Errorf("expected description %q; got %q", spec.expString, got)
			}
		})
	}
}
