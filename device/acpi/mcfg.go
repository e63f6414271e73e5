package acpi

import (
	"kestrel/device/acpi/table"
	"kestrel/device/pci"
	"kestrel/kernel"
	"unsafe"
)

// ErrNoPCIConfigRegions is returned by PCIConfigRegions when the firmware
// does not describe any memory mapped PCI configuration space.
var ErrNoPCIConfigRegions = &kernel.Error{Module: "acpi", Message: "no MCFG table or MCFG lists no configuration regions"}

const (
	sizeofMCFG      = unsafe.Sizeof(table.MCFG{})
	sizeofMCFGEntry = unsafe.Sizeof(table.MCFGEntry{})
)

// PCIConfigRegions decodes the ECAM windows listed in the MCFG table.
// Entries whose bus range is empty are ignored.
func PCIConfigRegions(h *Handler, tables *Tables) (pci.ConfigRegions, *kernel.Error) {
	if tables.MCFG == nil {
		return nil, ErrNoPCIConfigRegions
	}

	m, err := mapHandle(h, *tables.MCFG)
	if err != nil {
		return nil, err
	}
	defer func() { _ = h.UnmapPhysicalRegion(m) }()

	var regions pci.ConfigRegions
	for offset := sizeofMCFG; offset+sizeofMCFGEntry <= m.Size; offset += sizeofMCFGEntry {
		entry := (*table.MCFGEntry)(unsafe.Pointer(m.VirtAddr + offset))
		if entry.StartBus > entry.EndBus {
			continue
		}

		regions = append(regions, pci.ConfigRegion{
			BaseAddr: entry.BaseAddress,
			Segment:  entry.Segment,
			StartBus: entry.StartBus,
			EndBus:   entry.EndBus,
		})
	}

	if len(regions) == 0 {
		return nil, ErrNoPCIConfigRegions
	}

	return regions, nil
}
