// Package mmtest provides a software MMU for exercising the memory managers
// from hosted tests.
//
// PhysMem is a page-aligned anonymous mapping that plays the role of
// physical memory: physical address N is byte N of the mapping. MMU walks
// real 4-level page tables stored inside PhysMem, so code that relies on a
// recursive page-table slot can be run unchanged by routing its pointer
// dereferences through MMU.Ptr.
package mmtest

import (
	"kestrel/kernel"
	"kestrel/kernel/mm"
	"unsafe"

	"golang.org/x/sys/unix"
)

const (
	entryPresent  = 1 << 0
	entryRW       = 1 << 1
	entryHugePage = 1 << 7
	entryFrame    = uintptr(0x000ffffffffff000)
)

var errOutOfFrames = &kernel.Error{Module: "mmtest", Message: "fake physical memory exhausted"}

// PhysMem is a fake physical address space.
type PhysMem struct {
	arena     []byte
	nextFrame mm.Frame

	// Allocs counts successful AllocFrame calls.
	Allocs int
}

// NewPhysMem maps frameCount zeroed frames of fake physical memory.
func NewPhysMem(frameCount int) (*PhysMem, error) {
	arena, err := unix.Mmap(-1, 0, frameCount*int(mm.PageSize), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_ANON|unix.MAP_PRIVATE)
	if err != nil {
		return nil, err
	}

	return &PhysMem{arena: arena}, nil
}

// Close releases the backing mapping.
func (m *PhysMem) Close() error {
	return unix.Munmap(m.arena)
}

// Frames returns the number of frames in the address space.
func (m *PhysMem) Frames() int {
	return len(m.arena) >> mm.PageShift
}

// AllocFrame hands out frames in ascending order. It implements
// mm.FrameAllocator.
func (m *PhysMem) AllocFrame() (mm.Frame, *kernel.Error) {
	if int(m.nextFrame) >= m.Frames() {
		return mm.InvalidFrame, errOutOfFrames
	}

	frame := m.nextFrame
	m.nextFrame++
	m.Allocs++
	return frame, nil
}

// Ptr returns a host pointer to physical address phys. It panics if phys is
// outside the address space.
func (m *PhysMem) Ptr(phys uintptr) unsafe.Pointer {
	return unsafe.Pointer(&m.arena[phys])
}

// Bytes returns the size bytes starting at physical address phys.
func (m *PhysMem) Bytes(phys, size uintptr) []byte {
	return m.arena[phys : phys+size]
}

// MMU translates virtual addresses using the page tables rooted at Root.
type MMU struct {
	Mem  *PhysMem
	Root mm.Frame
}

// NewMMU allocates an empty top-level table from mem and installs a
// recursive entry at recursiveIndex pointing back to it.
func NewMMU(mem *PhysMem, recursiveIndex uint16) (*MMU, error) {
	root, err := mem.AllocFrame()
	if err != nil {
		return nil, err
	}

	kernel.Memset(uintptr(mem.Ptr(root.Address())), 0, mm.PageSize)
	*(*uintptr)(mem.Ptr(root.Address() + uintptr(recursiveIndex)<<3)) = root.Address() | entryPresent | entryRW

	return &MMU{Mem: mem, Root: root}, nil
}

// Translate walks the page tables like the hardware would and returns the
// physical address mapped at virt.
func (u *MMU) Translate(virt uintptr) (uintptr, bool) {
	table := u.Root.Address()
	for level, shift := range [...]uint{39, 30, 21, 12} {
		index := (virt >> shift) & 511
		entry := *(*uintptr)(u.Mem.Ptr(table + index<<3))
		if entry&entryPresent == 0 {
			return 0, false
		}

		if level > 0 && level < 3 && entry&entryHugePage != 0 {
			return entry&entryFrame&^(1<<shift-1) | virt&(1<<shift-1), true
		}

		table = entry & entryFrame
	}

	return table | mm.PageOffset(virt), true
}

// Ptr returns a host pointer for virtual address virt. It panics when virt
// is not mapped, which corresponds to a page fault.
func (u *MMU) Ptr(virt uintptr) unsafe.Pointer {
	phys, ok := u.Translate(virt)
	if !ok {
		panic(&kernel.Error{Module: "mmtest", Message: "page fault"})
	}
	return u.Mem.Ptr(phys)
}
