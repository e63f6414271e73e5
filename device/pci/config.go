package pci

// ConfigAccess provides 32-bit access to the configuration space of PCI
// functions. Offsets must be dword aligned.
type ConfigAccess interface {
	// Read returns the configuration register at offset.
	Read(addr Address, offset uint16) uint32

	// Write stores value to the configuration register at offset.
	Write(addr Address, offset uint16, value uint32)

	// FunctionExists returns true if the configuration space for addr is
	// reachable. It does not probe whether a device responds.
	FunctionExists(addr Address) bool
}

// ConfigRegion describes the memory mapped configuration space of a range
// of buses within a segment group.
type ConfigRegion struct {
	// BaseAddr is the physical address of the configuration space of
	// StartBus.
	BaseAddr uint64
	Segment  uint16
	StartBus uint8
	EndBus   uint8
}

// ConfigRegions is the set of ECAM windows reported by the firmware.
type ConfigRegions []ConfigRegion

// PhysicalAddress returns the physical address of the 4K configuration
// space of addr.
func (regions ConfigRegions) PhysicalAddress(addr Address) (uint64, bool) {
	seg, bus := addr.Segment(), addr.Bus()

	for _, r := range regions {
		if r.Segment != seg || bus < r.StartBus || bus > r.EndBus {
			continue
		}

		return r.BaseAddr + (uint64(bus-r.StartBus)<<20 | uint64(addr.Device())<<15 | uint64(addr.Function())<<12), true
	}

	return 0, false
}
