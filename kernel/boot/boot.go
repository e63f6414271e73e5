// Package boot decodes the boot information structure that the bootloader
// trampoline (rt0) hands over to Kmain.
package boot

import (
	"kestrel/kernel"
	"unsafe"
)

// InfoMagic identifies a valid boot information block ("KSTRLBI1").
const InfoMagic = 0x3149424c5254534b

var (
	errBadMagic       = &kernel.Error{Module: "boot", Message: "boot info magic mismatch"}
	errNilInfo        = &kernel.Error{Module: "boot", Message: "boot info pointer is nil"}
	errNoMemoryMap    = &kernel.Error{Module: "boot", Message: "bootloader did not provide a memory map"}
	errRegionsOrdered = &kernel.Error{Module: "boot", Message: "memory map regions are not sorted"}
	errTooManyRegions = &kernel.Error{Module: "boot", Message: "memory map has too many regions"}

	errBadRecursiveIndex = &kernel.Error{Module: "boot", Message: "recursive page table index is out of range"}
)

const (
	// MaxMemoryRegions is the number of memory map entries that FromRaw can
	// decode.
	MaxMemoryRegions = 256

	// p4Entries is the number of slots in the top-level page table.
	p4Entries = 512
)

// MemoryRegionKind classifies a MemoryRegion.
type MemoryRegionKind uint32

const (
	// Usable memory is free for the kernel to allocate.
	Usable MemoryRegionKind = iota

	// Bootloader memory holds the kernel image, page tables and boot info.
	Bootloader

	// UnknownUEFI is memory with a UEFI memory type the bootloader does not
	// know how to classify.
	UnknownUEFI

	// UnknownBIOS is memory with an E820 type the bootloader does not know
	// how to classify.
	UnknownBIOS
)

// String implements fmt.Stringer for MemoryRegionKind.
func (k MemoryRegionKind) String() string {
	switch k {
	case Usable:
		return "usable"
	case Bootloader:
		return "bootloader"
	case UnknownUEFI:
		return "unknown (UEFI)"
	case UnknownBIOS:
		return "unknown (BIOS)"
	default:
		return "invalid"
	}
}

// MemoryRegion describes the physical range [Start, End).
type MemoryRegion struct {
	Start uint64
	End   uint64
	Kind  MemoryRegionKind
}

// Size returns the region length in bytes.
func (r MemoryRegion) Size() uint64 {
	return r.End - r.Start
}

// FramebufferInfo describes the framebuffer set up by the bootloader.
type FramebufferInfo struct {
	PhysAddr      uint64
	Length        uint64
	Width, Height uint32
	Stride        uint32
	BytesPerPixel uint32
}

// Info holds the decoded boot information. Optional fields are accompanied
// by a Has... flag.
type Info struct {
	// MemoryRegions is backed by regionStore when the Info is populated by
	// FromRaw.
	MemoryRegions []MemoryRegion
	regionStore   [MaxMemoryRegions]MemoryRegion

	HasRSDP  bool
	RSDPAddr uintptr

	HasRecursiveIndex bool
	RecursiveIndex    uint16

	HasFramebuffer bool
	Framebuffer    FramebufferInfo
}

// MemRegionVisitor is invoked by VisitMemRegions for each region. It must
// return true to continue or false to abort the scan.
type MemRegionVisitor func(*MemoryRegion) bool

// VisitMemRegions invokes visitor for each memory region in address order.
func (i *Info) VisitMemRegions(visitor MemRegionVisitor) {
	for index := range i.MemoryRegions {
		if !visitor(&i.MemoryRegions[index]) {
			return
		}
	}
}

const (
	flagRSDP uint32 = 1 << iota
	flagRecursiveIndex
	flagFramebuffer
)

// rawInfo mirrors the C layout written by rt0.
type rawInfo struct {
	magic          uint64
	flags          uint32
	recursiveIndex uint32
	rsdpAddr       uint64
	regionsAddr    uint64
	regionsCount   uint64
	framebuffer    FramebufferInfo
}

type rawMemoryRegion struct {
	start uint64
	end   uint64
	kind  uint32
	_     uint32
}

// FromRaw decodes the boot information block at ptr into info. The decoded
// Info does not reference the raw block so the bootloader memory it lives in
// may be reused afterwards.
//
// FromRaw runs before the kernel heap exists and never allocates; the
// memory map is copied into storage owned by info.
func FromRaw(ptr uintptr, info *Info) *kernel.Error {
	if ptr == 0 {
		return errNilInfo
	}

	raw := (*rawInfo)(unsafe.Pointer(ptr))
	switch {
	case raw.magic != InfoMagic:
		return errBadMagic
	case raw.regionsCount == 0 || raw.regionsAddr == 0:
		return errNoMemoryMap
	case raw.regionsCount > MaxMemoryRegions:
		return errTooManyRegions
	case raw.flags&flagRecursiveIndex != 0 && raw.recursiveIndex >= p4Entries:
		return errBadRecursiveIndex
	}

	*info = Info{}
	rawRegions := unsafe.Slice((*rawMemoryRegion)(unsafe.Pointer(uintptr(raw.regionsAddr))), raw.regionsCount)
	for index, r := range rawRegions {
		if index > 0 && r.start < rawRegions[index-1].start {
			info.MemoryRegions = nil
			return errRegionsOrdered
		}
		info.regionStore[index] = MemoryRegion{Start: r.start, End: r.end, Kind: MemoryRegionKind(r.kind)}
	}
	info.MemoryRegions = info.regionStore[:len(rawRegions)]

	if raw.flags&flagRSDP != 0 {
		info.HasRSDP, info.RSDPAddr = true, uintptr(raw.rsdpAddr)
	}

	if raw.flags&flagRecursiveIndex != 0 {
		info.HasRecursiveIndex, info.RecursiveIndex = true, uint16(raw.recursiveIndex)
	}

	if raw.flags&flagFramebuffer != 0 {
		info.HasFramebuffer, info.Framebuffer = true, raw.framebuffer
	}

	return nil
}
