package pci

type fakeFunction struct {
	regs [64]uint32

	// barMask holds the writable bits of each BAR register.
	barMask [barSlots]uint32

	bistPolls   int
	bistCode    uint8
	bistRunning bool
}

// fakeConfigSpace emulates the configuration space of a set of functions.
// Buses listed in missingBuses are not covered by any config region.
type fakeConfigSpace struct {
	functions    map[Address]*fakeFunction
	missingBuses map[uint8]bool
	busReads     map[uint8]int
}

func newFakeConfigSpace() *fakeConfigSpace {
	return &fakeConfigSpace{
		functions:    make(map[Address]*fakeFunction),
		missingBuses: make(map[uint8]bool),
		busReads:     make(map[uint8]int),
	}
}

// add registers a function with the given IDs and class code. The class
// argument packs class, subclass and programming interface as 0xCCSSPP.
func (cs *fakeConfigSpace) add(addr Address, vendor, device uint16, class uint32, multiFunction bool) *fakeFunction {
	fn := &fakeFunction{}
	fn.regs[regID/4] = uint32(device)<<16 | uint32(vendor)
	fn.regs[regClass/4] = class<<8 | 0x02
	if multiFunction {
		fn.regs[regHeaderBIST/4] |= multiFnBit
	}
	cs.functions[addr] = fn
	return fn
}

func (cs *fakeConfigSpace) FunctionExists(addr Address) bool {
	return !cs.missingBuses[addr.Bus()]
}

func (cs *fakeConfigSpace) Read(addr Address, offset uint16) uint32 {
	cs.busReads[addr.Bus()]++

	fn, ok := cs.functions[addr]
	if !ok {
		return 0xffffffff
	}

	if offset == regHeaderBIST && fn.bistRunning {
		if fn.bistPolls--; fn.bistPolls <= 0 {
			fn.bistRunning = false
			reg := fn.regs[regHeaderBIST/4] &^ (bistStartBit | 0x0f000000)
			fn.regs[regHeaderBIST/4] = reg | uint32(fn.bistCode)<<24
		}
	}

	return fn.regs[offset/4]
}

func (cs *fakeConfigSpace) Write(addr Address, offset uint16, value uint32) {
	fn, ok := cs.functions[addr]
	if !ok {
		return
	}

	switch {
	case offset >= regBAR0 && offset < regBAR0+4*barSlots:
		slot := (offset - regBAR0) / 4
		mask := fn.barMask[slot]
		fn.regs[offset/4] = (value & mask) | (fn.regs[offset/4] &^ mask)
	case offset == regHeaderBIST:
		fn.regs[offset/4] = value
		if value&bistStartBit != 0 && value&bistCapableBit != 0 {
			fn.bistRunning = true
		}
	default:
		fn.regs[offset/4] = value
	}
}
