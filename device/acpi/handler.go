package acpi

import (
	"kestrel/kernel"
	"kestrel/kernel/mm"
	"kestrel/kernel/mm/vmm"
	"unsafe"
)

// RegionMapper is implemented by the VMM and used to establish temporary
// mappings for firmware tables.
type RegionMapper interface {
	MapRegion(physAddr, size uintptr, flags vmm.PageTableEntryFlag) (uintptr, *kernel.Error)
	UnmapRegion(virtAddr, size uintptr) *kernel.Error
}

// PhysicalMapping describes a physical memory range that has been mapped
// into the kernel address space.
type PhysicalMapping struct {
	PhysAddr uintptr
	VirtAddr uintptr

	// Size is the number of bytes that were requested.
	Size uintptr

	// MappedLength is Size rounded out to the boundaries of the pages
	// that back the mapping.
	MappedLength uintptr
}

// Bytes returns the requested range as a byte slice.
func (m PhysicalMapping) Bytes() []byte {
	return unsafe.Slice((*byte)(unsafe.Pointer(m.VirtAddr)), m.Size)
}

// Handler maps physical memory for the ACPI table loader.
type Handler struct {
	mapper RegionMapper
}

// NewHandler returns a Handler that establishes mappings through mapper.
func NewHandler(mapper RegionMapper) *Handler {
	return &Handler{mapper: mapper}
}

// MapPhysicalRegion maps the read-only range [physAddr, physAddr+size).
func (h *Handler) MapPhysicalRegion(physAddr, size uintptr) (PhysicalMapping, *kernel.Error) {
	virtAddr, err := h.mapper.MapRegion(physAddr, size, vmm.FlagPresent)
	if err != nil {
		return PhysicalMapping{}, err
	}

	return PhysicalMapping{
		PhysAddr:     physAddr,
		VirtAddr:     virtAddr,
		Size:         size,
		MappedLength: mm.PageCount(physAddr, size) * mm.PageSize,
	}, nil
}

// UnmapPhysicalRegion releases a mapping returned by MapPhysicalRegion.
func (h *Handler) UnmapPhysicalRegion(m PhysicalMapping) *kernel.Error {
	return h.mapper.UnmapRegion(m.VirtAddr, m.Size)
}
