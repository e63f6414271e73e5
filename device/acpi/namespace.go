package acpi

import (
	"io"
	"kestrel/device/acpi/aml"
	"kestrel/kernel"
	"kestrel/kernel/kfmt"
)

var (
	// ErrNoDefinitionBlocks is returned by LoadNamespace when neither a
	// DSDT nor an SSDT is available.
	ErrNoDefinitionBlocks = &kernel.Error{Module: "acpi", Message: "no DSDT or SSDT tables found"}

	errUnsupportedHID = &kernel.Error{Module: "acpi", Message: "unsupported _HID object type"}
)

// LoadNamespace parses the AML of the DSDT followed by every SSDT into ctx.
// A table that fails to map or parse is reported to w and the remaining
// tables are still loaded. The number of tables parsed without errors is
// returned.
func LoadNamespace(h *Handler, tables *Tables, ctx *aml.Context, w io.Writer) (int, *kernel.Error) {
	var blocks []TableHandle
	if tables.DSDT != nil {
		blocks = append(blocks, *tables.DSDT)
	} else {
		kfmt.Fprintf(w, "no DSDT table found\n")
	}
	blocks = append(blocks, tables.SSDTs...)

	if len(blocks) == 0 {
		return 0, ErrNoDefinitionBlocks
	}

	var loaded int
	for _, handle := range blocks {
		m, err := mapHandle(h, handle)
		if err != nil {
			kfmt.Fprintf(w, "unable to map %s at 0x%x: %s\n", handle.Signature, handle.PhysAddr, err.Message)
			continue
		}

		err = ctx.ParseTable(handle.Signature, handle.Revision, m.Bytes()[sizeofSDTHeader:])
		_ = h.UnmapPhysicalRegion(m)

		if err != nil {
			kfmt.Fprintf(w, "failed to load %s at 0x%x: %s\n", handle.Signature, handle.PhysAddr, err.Message)
			continue
		}

		loaded++
	}

	return loaded, nil
}

// Device is a device object found in the ACPI namespace.
type Device struct {
	// Path is the absolute namespace path of the device.
	Path string

	// HID is the hardware ID of the device. Integer IDs are decoded from
	// their compressed EISA form.
	HID string

	// EISA is true if HID was decoded from an integer.
	EISA bool
}

// EnumerateDevices walks the namespace and returns the devices that define
// a _HID object in the order they were visited. If the walk fails the
// error is reported to w and the devices found so far are returned.
func EnumerateDevices(ctx *aml.Context, w io.Writer) []*Device {
	var devices []*Device

	err := ctx.Traverse(func(level *aml.Level) (bool, *kernel.Error) {
		if level.Type != aml.LevelDevice {
			return true, nil
		}

		hid, ok := level.Value("_HID")
		if !ok {
			return true, nil
		}

		dev := &Device{Path: level.Path()}
		switch hid.Type {
		case aml.ObjectInteger:
			dev.HID, dev.EISA = aml.EISAIDToString(uint32(hid.Integer)), true
		case aml.ObjectString:
			dev.HID = hid.String
		case aml.ObjectMethod:
			// The loader does not evaluate methods
			kfmt.Fprintf(w, "device %s: _HID is a method; skipping\n", dev.Path)
			return true, nil
		default:
			kfmt.Fprintf(w, "device %s: ", dev.Path)
			return false, errUnsupportedHID
		}

		devices = append(devices, dev)
		return true, nil
	})

	if err != nil {
		kfmt.Fprintf(w, "%s\n", err.Message)
	}

	return devices
}
