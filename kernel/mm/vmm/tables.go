package vmm

import (
	"kestrel/kernel"
	"kestrel/kernel/mm"
	"unsafe"
)

var (
	// ptePtrFn converts the virtual address of a page table entry into a
	// pointer. Tests override it to route accesses through a software MMU.
	ptePtrFn = func(entryAddr uintptr) unsafe.Pointer {
		return unsafe.Pointer(entryAddr)
	}

	errInvalidRecursiveIndex = &kernel.Error{Module: "vmm", Message: "recursive page table index must be in the range [0, 511]"}
)

// recursiveTables computes the virtual addresses under which the active page
// tables are visible, given the index of the P4 slot that points back to the
// P4 table itself.
//
// Walking the recursive slot k times before following the regular indices
// of an address drops the translation by k levels, so the table at level L
// (0 = P4) that covers virtAddr is addressed by 4-L copies of the recursive
// index followed by the top L indices of virtAddr.
type recursiveTables struct {
	index uintptr
}

func newRecursiveTables(index uint16) (recursiveTables, *kernel.Error) {
	if index >= entriesPerTable {
		return recursiveTables{}, errInvalidRecursiveIndex
	}
	return recursiveTables{index: uintptr(index)}, nil
}

// entryIndex returns the index of the level entry that translates virtAddr.
func entryIndex(level uint8, virtAddr uintptr) uintptr {
	return (virtAddr >> pageLevelShifts[level]) & (entriesPerTable - 1)
}

// canonical sign-extends bit 47 of addr.
func canonical(addr uintptr) uintptr {
	if addr&canonicalSignBit != 0 {
		return addr | canonicalUpperBits
	}
	return addr &^ canonicalUpperBits
}

// tableAddr returns the virtual address of the level table covering
// virtAddr. It panics if level is out of range.
func (rt recursiveTables) tableAddr(level uint8, virtAddr uintptr) uintptr {
	if level >= pageLevels {
		panic(errInvalidPageLevel)
	}

	var addr uintptr
	for slot := uint8(0); slot < pageLevels; slot++ {
		index := rt.index
		if slot >= pageLevels-level {
			index = entryIndex(slot-(pageLevels-level), virtAddr)
		}
		addr |= index << pageLevelShifts[slot]
	}

	return canonical(addr)
}

// entry returns the level entry that translates virtAddr.
func (rt recursiveTables) entry(level uint8, virtAddr uintptr) *pageTableEntry {
	return (*pageTableEntry)(ptePtrFn(rt.tableAddr(level, virtAddr) + entryIndex(level, virtAddr)<<mm.PointerShift))
}

// pageTableWalker is invoked by walk for every level. Returning false aborts
// the walk.
type pageTableWalker func(level uint8, pte *pageTableEntry) bool

// walk visits the entries that translate virtAddr starting at the P4 level.
// The walker must stop the walk before a non-present or huge entry since the
// next level table does not exist.
func (rt recursiveTables) walk(virtAddr uintptr, walkFn pageTableWalker) {
	for level := uint8(0); level < pageLevels; level++ {
		if !walkFn(level, rt.entry(level, virtAddr)) {
			return
		}
	}
}

var errInvalidPageLevel = &kernel.Error{Module: "vmm", Message: "page table level out of range"}
