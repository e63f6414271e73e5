// Package pmm implements the physical memory manager used while the kernel
// boots.
package pmm

import (
	"io"
	"kestrel/kernel"
	"kestrel/kernel/boot"
	"kestrel/kernel/kfmt"
	"kestrel/kernel/mm"
	"kestrel/kernel/sync"
)

var (
	errOutOfMemory = &kernel.Error{Module: "pmm", Message: "out of memory"}
)

// BootInfoAllocator implements a bump allocator over the usable memory
// regions reported by the bootloader.
//
// Frames are handed out in ascending address order. Region bounds that are
// not page aligned are rounded inward so partial pages are never returned.
// Allocated frames cannot be freed.
type BootInfoAllocator struct {
	mutex   sync.Spinlock
	regions []boot.MemoryRegion

	// allocCount is the number of frames handed out so far.
	allocCount uint64

	// regionIndex and nextFrame point at the next candidate frame.
	regionIndex int
	nextFrame   mm.Frame
}

// Init sets up the allocator to serve frames from the Usable entries of
// regions. The slice must not be modified afterwards. Init does not
// allocate so the allocator can live in static storage and be initialized
// before the kernel heap is mapped.
func (alloc *BootInfoAllocator) Init(regions []boot.MemoryRegion) {
	alloc.mutex.Acquire()
	defer alloc.mutex.Release()

	alloc.regions = regions
	alloc.allocCount = 0
	alloc.regionIndex = -1
	alloc.advanceRegion()
}

// usableFrames returns the inclusive-exclusive frame range covered by r
// after rounding its bounds inward.
func usableFrames(r *boot.MemoryRegion) (mm.Frame, mm.Frame) {
	pageSizeMinus1 := uint64(mm.PageSize - 1)
	start := mm.Frame(((r.Start + pageSizeMinus1) &^ pageSizeMinus1) >> mm.PageShift)
	end := mm.Frame((r.End &^ pageSizeMinus1) >> mm.PageShift)
	return start, end
}

// advanceRegion moves the cursor to the first frame of the next usable
// region that contains at least one full page.
func (alloc *BootInfoAllocator) advanceRegion() {
	for alloc.regionIndex++; alloc.regionIndex < len(alloc.regions); alloc.regionIndex++ {
		region := &alloc.regions[alloc.regionIndex]
		if region.Kind != boot.Usable {
			continue
		}

		start, end := usableFrames(region)
		if start < end {
			alloc.nextFrame = start
			return
		}
	}
	alloc.nextFrame = mm.InvalidFrame
}

// AllocFrame reserves the next available usable frame. Once every usable
// frame has been handed out, it returns mm.InvalidFrame and an error on each
// call.
func (alloc *BootInfoAllocator) AllocFrame() (mm.Frame, *kernel.Error) {
	alloc.mutex.Acquire()
	defer alloc.mutex.Release()

	if !alloc.nextFrame.Valid() {
		return mm.InvalidFrame, errOutOfMemory
	}

	frame := alloc.nextFrame
	alloc.allocCount++

	if _, end := usableFrames(&alloc.regions[alloc.regionIndex]); frame+1 < end {
		alloc.nextFrame = frame + 1
	} else {
		alloc.advanceRegion()
	}

	return frame, nil
}

// AllocatedFrames returns the number of frames handed out so far.
func (alloc *BootInfoAllocator) AllocatedFrames() uint64 {
	alloc.mutex.Acquire()
	defer alloc.mutex.Release()
	return alloc.allocCount
}

// PrintMemoryMap writes the system memory map and the total amount of
// usable memory to w.
func (alloc *BootInfoAllocator) PrintMemoryMap(w io.Writer) {
	kfmt.Fprintf(w, "[pmm] system memory map:\n")

	var usableFrameCount uint64
	for index := range alloc.regions {
		region := &alloc.regions[index]
		kfmt.Fprintf(w, "\t[0x%10x - 0x%10x], size: %10d, type: %s\n", region.Start, region.End, region.Size(), region.Kind.String())

		if region.Kind == boot.Usable {
			if start, end := usableFrames(region); start < end {
				usableFrameCount += uint64(end - start)
			}
		}
	}

	kfmt.Fprintf(w, "[pmm] available memory: %dKb\n", usableFrameCount*uint64(mm.PageSize)>>10)
}
