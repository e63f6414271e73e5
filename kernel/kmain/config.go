package kmain

import (
	"kestrel/device/acpi"
	"kestrel/device/pci"
	"kestrel/kernel"
	"kestrel/kernel/mm"
	"kestrel/kernel/mm/vmm"
)

// Config describes the virtual memory layout used by the boot sequence.
type Config struct {
	// HeapStart and HeapSize define the kernel heap which is backed by
	// physical frames as soon as the VMM is available.
	HeapStart uintptr
	HeapSize  uintptr

	// SearchEnd bounds the region above the heap that MapRegion may hand
	// out. It must not overlap the scratch windows.
	SearchEnd uintptr

	// PCIWindow is the page remapped to the configuration space of the
	// function being accessed.
	PCIWindow uintptr

	// AMLWindow is the first of the acpi.AMLWindowPages pages used by the
	// AML bridge for physical memory accesses.
	AMLWindow uintptr

	// BISTPollLimit bounds the number of BIST register reads performed
	// by drivers during their probe.
	BISTPollLimit int
}

// DefaultConfig returns the layout used by the kernel image.
func DefaultConfig() Config {
	return Config{
		HeapStart:     0x4444_4444_0000,
		HeapSize:      1 << 20,
		SearchEnd:     0x4444_6444_0000,
		PCIWindow:     0x4444_6444_0000,
		AMLWindow:     0x4444_6444_2000,
		BISTPollLimit: pci.DefaultBISTPollLimit,
	}
}

// heapEnd returns the first address past the kernel heap.
func (c Config) heapEnd() uintptr {
	return c.HeapStart + mm.PageCount(c.HeapStart, c.HeapSize)*mm.PageSize
}

// windowsEnd returns the first address past the scratch windows.
func (c Config) windowsEnd() uintptr {
	return c.AMLWindow + acpi.AMLWindowPages*mm.PageSize
}

// validate checks that the heap, the free page search window and the
// scratch windows are disjoint and ordered in that way.
func (c Config) validate() *kernel.Error {
	switch {
	case c.HeapSize == 0, c.heapEnd() >= c.SearchEnd:
		return errInvalidLayout
	case c.SearchEnd > c.PCIWindow&^(mm.PageSize-1):
		return errInvalidLayout
	case c.PCIWindow+mm.PageSize > c.AMLWindow&^(mm.PageSize-1):
		return errInvalidLayout
	case c.windowsEnd() > vmm.LowerHalfEnd:
		return errInvalidLayout
	}
	return nil
}
