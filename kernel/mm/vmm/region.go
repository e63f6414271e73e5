package vmm

import (
	"kestrel/kernel"
	"kestrel/kernel/mm"
)

var (
	errNoFreePages       = &kernel.Error{Module: "vmm", Message: "no free virtual pages in search window"}
	errInvalidRegionSize = &kernel.Error{Module: "vmm", Message: "region size must be greater than zero"}
	errOffsetMismatch    = &kernel.Error{Module: "vmm", Message: "physical and virtual addresses must have the same page offset"}
)

// MapRegion maps the physical range [physAddr, physAddr+size) into the first
// run of free pages inside the search window and returns the virtual address
// that corresponds to physAddr. The range is widened to page boundaries.
//
// If a page cannot be mapped the pages mapped so far are unmapped again.
func (m *Manager) MapRegion(physAddr, size uintptr, flags PageTableEntryFlag) (uintptr, *kernel.Error) {
	if size == 0 {
		return 0, errInvalidRegionSize
	}

	m.mutex.Acquire()
	defer m.mutex.Release()

	pageCount := mm.PageCount(physAddr, size)
	virtAddr, ok := m.findFreePagesLocked(m.searchStart, m.searchEnd, pageCount)
	if !ok {
		return 0, errNoFreePages
	}

	startPage, startFrame := mm.PageFromAddress(virtAddr), mm.FrameFromAddress(physAddr)
	for i := uintptr(0); i < pageCount; i++ {
		if err := m.mapToLocked(startPage+mm.Page(i), startFrame+mm.Frame(i), flags); err != nil {
			for ; i > 0; i-- {
				_, _ = m.unmapLocked(startPage + mm.Page(i-1))
			}
			return 0, err
		}
	}

	return virtAddr + mm.PageOffset(physAddr), nil
}

// UnmapRegion removes the mappings for every page overlapping
// [virtAddr, virtAddr+size). It stops at the first page that is not mapped.
func (m *Manager) UnmapRegion(virtAddr, size uintptr) *kernel.Error {
	m.mutex.Acquire()
	defer m.mutex.Release()

	startPage := mm.PageFromAddress(virtAddr)
	for i, pageCount := uintptr(0), mm.PageCount(virtAddr, size); i < pageCount; i++ {
		if _, err := m.unmapLocked(startPage + mm.Page(i)); err != nil {
			return err
		}
	}

	return nil
}

// RemapRegion points the pages overlapping [virtAddr, virtAddr+size) at the
// physical range starting at physAddr. Pages that already map the target
// frame are left untouched; pages mapping a different frame are unmapped
// first. Both addresses must share the same page offset.
func (m *Manager) RemapRegion(physAddr, virtAddr, size uintptr, flags PageTableEntryFlag) *kernel.Error {
	if mm.PageOffset(physAddr) != mm.PageOffset(virtAddr) {
		panic(errOffsetMismatch)
	}

	m.mutex.Acquire()
	defer m.mutex.Release()

	startPage, startFrame := mm.PageFromAddress(virtAddr), mm.FrameFromAddress(physAddr)
	for i, pageCount := uintptr(0), mm.PageCount(virtAddr, size); i < pageCount; i++ {
		page, frame := startPage+mm.Page(i), startFrame+mm.Frame(i)

		if curAddr, err := m.translateLocked(page.Address()); err == nil {
			if curAddr == frame.Address() {
				continue
			}

			if _, err = m.unmapLocked(page); err != nil {
				return err
			}
		}

		if err := m.mapToLocked(page, frame, flags); err != nil {
			return err
		}
	}

	return nil
}

// FindFreePages returns the address of the first run of count consecutive
// unmapped pages inside [start, end].
func (m *Manager) FindFreePages(start, end mm.Page, count uintptr) (uintptr, bool) {
	m.mutex.Acquire()
	defer m.mutex.Release()

	return m.findFreePagesLocked(start, end, count)
}

func (m *Manager) findFreePagesLocked(start, end mm.Page, count uintptr) (uintptr, bool) {
	if count == 0 || start > end {
		return 0, false
	}

	var (
		runStart = start
		runLen   uintptr
	)

	for page := start; ; page++ {
		if _, err := m.translateLocked(page.Address()); err != nil {
			if runLen == 0 {
				runStart = page
			}

			if runLen++; runLen == count {
				return runStart.Address(), true
			}
		} else {
			runLen = 0
		}

		if page == end {
			return 0, false
		}
	}
}
