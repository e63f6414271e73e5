// Package mm defines the physical frame and virtual page types shared by the
// physical and virtual memory managers.
package mm

import (
	"kestrel/kernel"
	"math"
)

// Frame describes a physical memory page index.
type Frame uintptr

const (
	// InvalidFrame is returned by frame allocators when they fail to
	// reserve a frame.
	InvalidFrame = Frame(math.MaxUint64)
)

// Valid returns true if this is a valid frame.
func (f Frame) Valid() bool {
	return f != InvalidFrame
}

// Address returns the physical address of the first byte of this Frame.
func (f Frame) Address() uintptr {
	return uintptr(f << PageShift)
}

// FrameFromAddress returns the Frame containing physAddr.
func FrameFromAddress(physAddr uintptr) Frame {
	return Frame((physAddr &^ (PageSize - 1)) >> PageShift)
}

// FrameAllocator is implemented by physical frame allocators.
type FrameAllocator interface {
	AllocFrame() (Frame, *kernel.Error)
}

// FrameAllocatorFn adapts a plain function to the FrameAllocator interface.
type FrameAllocatorFn func() (Frame, *kernel.Error)

// AllocFrame calls fn.
func (fn FrameAllocatorFn) AllocFrame() (Frame, *kernel.Error) { return fn() }

// Page describes a virtual memory page index.
type Page uintptr

// Address returns the virtual address of the first byte of this Page.
func (p Page) Address() uintptr {
	return uintptr(p << PageShift)
}

// PageFromAddress returns the Page containing virtAddr.
func PageFromAddress(virtAddr uintptr) Page {
	return Page((virtAddr &^ (PageSize - 1)) >> PageShift)
}

// PageOffset returns the offset of addr inside its page.
func PageOffset(addr uintptr) uintptr {
	return addr & (PageSize - 1)
}

// PageCount returns the number of pages spanned by the byte range
// [addr, addr+size).
func PageCount(addr, size uintptr) uintptr {
	if size == 0 {
		return 0
	}
	return ((PageOffset(addr) + size + PageSize - 1) >> PageShift)
}
