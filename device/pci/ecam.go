package pci

import (
	"kestrel/kernel"
	"kestrel/kernel/kfmt"
	"kestrel/kernel/mm"
	"kestrel/kernel/mm/vmm"
	"kestrel/kernel/sync"
	"unsafe"
)

var (
	// windowPtrFn returns a pointer to a config register through the
	// scratch window. Tests override it to redirect accesses to a fake
	// configuration space.
	windowPtrFn = func(addr uintptr) *uint32 {
		return (*uint32)(unsafe.Pointer(addr))
	}

	panicFn = kfmt.Panic
)

// configRegisterMask limits offsets to dword aligned registers within the
// 4K config space of a function.
const configRegisterMask = 0xffc

// RegionRemapper is implemented by the VMM and used to point the scratch
// window at the configuration space of a function.
type RegionRemapper interface {
	RemapRegion(physAddr, virtAddr, size uintptr, flags vmm.PageTableEntryFlag) *kernel.Error
}

// ECAMAccess implements ConfigAccess on top of the memory mapped
// configuration mechanism. A single page of virtual address space is
// remapped to the target function before each access.
type ECAMAccess struct {
	mutex sync.Spinlock

	regions  ConfigRegions
	remapper RegionRemapper
	window   uintptr
}

// NewECAMAccess returns an ECAMAccess that resolves addresses through
// regions and uses the page at window as the scratch mapping.
func NewECAMAccess(regions ConfigRegions, remapper RegionRemapper, window uintptr) *ECAMAccess {
	return &ECAMAccess{
		regions:  regions,
		remapper: remapper,
		window:   window &^ (mm.PageSize - 1),
	}
}

// Regions returns the configuration regions served by this access.
func (e *ECAMAccess) Regions() ConfigRegions {
	return e.regions
}

// FunctionExists implements ConfigAccess.
func (e *ECAMAccess) FunctionExists(addr Address) bool {
	_, ok := e.regions.PhysicalAddress(addr)
	return ok
}

// Read implements ConfigAccess. Reads from functions outside the known
// regions return all ones, like a bus master abort.
func (e *ECAMAccess) Read(addr Address, offset uint16) uint32 {
	physAddr, ok := e.regions.PhysicalAddress(addr)
	if !ok {
		return 0xffffffff
	}

	e.mutex.Acquire()
	defer e.mutex.Release()

	return *e.registerLocked(physAddr, offset)
}

// Write implements ConfigAccess. Writes to functions outside the known
// regions are ignored.
func (e *ECAMAccess) Write(addr Address, offset uint16, value uint32) {
	physAddr, ok := e.regions.PhysicalAddress(addr)
	if !ok {
		return
	}

	e.mutex.Acquire()
	defer e.mutex.Release()

	*e.registerLocked(physAddr, offset) = value
}

func (e *ECAMAccess) registerLocked(physAddr uint64, offset uint16) *uint32 {
	flags := vmm.FlagPresent | vmm.FlagRW | vmm.FlagDoNotCache
	if err := e.remapper.RemapRegion(uintptr(physAddr), e.window, mm.PageSize, flags); err != nil {
		panicFn(err)
	}

	return windowPtrFn(e.window + uintptr(offset&configRegisterMask))
}
