// Package vmm manages the active virtual address space through the
// recursively mapped page tables set up by the bootloader.
package vmm

import (
	"kestrel/kernel"
	"kestrel/kernel/cpu"
	"kestrel/kernel/mm"
	"kestrel/kernel/sync"
)

var (
	// flushTLBEntryFn is used by tests to override calls to flushTLBEntry
	// which will cause a fault if called in user-mode.
	flushTLBEntryFn = cpu.FlushTLBEntry

	// ErrInvalidMapping is returned when trying to lookup a virtual memory address that is not yet mapped.
	ErrInvalidMapping = &kernel.Error{Module: "vmm", Message: "virtual address does not point to a mapped physical page"}

	errFrameAllocationFailed = &kernel.Error{Module: "vmm", Message: "frame allocation failed"}
	errPageAlreadyMapped     = &kernel.Error{Module: "vmm", Message: "page is already mapped"}
	errParentEntryHugePage   = &kernel.Error{Module: "vmm", Message: "parent entry maps a huge page"}
	errPageNotMapped         = &kernel.Error{Module: "vmm", Message: "page is not mapped"}
	errInvalidSearchWindow   = &kernel.Error{Module: "vmm", Message: "free page search window is empty"}
)

// Manager maps and unmaps pages in the active address space. All page table
// accesses go through the recursive P4 slot whose index is fixed when the
// Manager is created.
//
// Manager methods are safe for concurrent use. Frame allocations are
// performed while the Manager lock is held so the frame allocator must never
// call back into the Manager.
type Manager struct {
	mutex          sync.Spinlock
	tables         recursiveTables
	frameAllocator mm.FrameAllocator

	// searchStart and searchEnd (inclusive) bound the pages that
	// MapRegion may pick when looking for free virtual address space.
	searchStart, searchEnd mm.Page
}

// NewManager returns a Manager for the page tables reachable through the
// P4 slot recursiveIndex. See Init for a description of the arguments.
func NewManager(recursiveIndex uint16, frameAllocator mm.FrameAllocator, searchStart, searchEnd uintptr) (*Manager, *kernel.Error) {
	m := new(Manager)
	if err := m.Init(recursiveIndex, frameAllocator, searchStart, searchEnd); err != nil {
		return nil, err
	}

	return m, nil
}

// Init sets up m to manage the page tables reachable through the P4 slot
// recursiveIndex. Intermediate page tables are allocated from
// frameAllocator and MapRegion reserves pages inside [searchStart,
// searchEnd). Init does not allocate so the kernel Manager can live in
// static storage and be initialized before the heap is mapped.
func (m *Manager) Init(recursiveIndex uint16, frameAllocator mm.FrameAllocator, searchStart, searchEnd uintptr) *kernel.Error {
	tables, err := newRecursiveTables(recursiveIndex)
	if err != nil {
		return err
	}

	if searchEnd <= searchStart || searchEnd-searchStart < mm.PageSize {
		return errInvalidSearchWindow
	}

	m.mutex.Acquire()
	defer m.mutex.Release()

	m.tables = tables
	m.frameAllocator = frameAllocator
	m.searchStart = mm.PageFromAddress(searchStart + mm.PageSize - 1)
	m.searchEnd = mm.PageFromAddress(searchEnd - 1)
	return nil
}

// RecursiveIndex returns the P4 slot used for accessing the page tables.
func (m *Manager) RecursiveIndex() uint16 {
	return uint16(m.tables.index)
}

// Map allocates a physical frame and maps page to it.
func (m *Manager) Map(page mm.Page, flags PageTableEntryFlag) *kernel.Error {
	m.mutex.Acquire()
	defer m.mutex.Release()

	frame, err := m.frameAllocator.AllocFrame()
	if err != nil {
		return errFrameAllocationFailed
	}

	return m.mapToLocked(page, frame, flags)
}

// MapTo maps page to frame using the supplied flags; FlagPresent is always
// set. Missing intermediate page tables are allocated and cleared.
func (m *Manager) MapTo(page mm.Page, frame mm.Frame, flags PageTableEntryFlag) *kernel.Error {
	m.mutex.Acquire()
	defer m.mutex.Release()

	return m.mapToLocked(page, frame, flags)
}

func (m *Manager) mapToLocked(page mm.Page, frame mm.Frame, flags PageTableEntryFlag) *kernel.Error {
	var (
		err       *kernel.Error
		virtAddr  = page.Address()
		userFlags = flags & FlagUserAccessible
	)

	m.tables.walk(virtAddr, func(level uint8, pte *pageTableEntry) bool {
		if level == pageLevels-1 {
			if pte.HasFlags(FlagPresent) {
				err = errPageAlreadyMapped
				return false
			}

			*pte = 0
			pte.SetFrame(frame)
			pte.SetFlags(flags | FlagPresent)
			flushTLBEntryFn(virtAddr)
			return true
		}

		if !pte.HasFlags(FlagPresent) {
			tableFrame, allocErr := m.frameAllocator.AllocFrame()
			if allocErr != nil {
				err = errFrameAllocationFailed
				return false
			}

			*pte = 0
			pte.SetFrame(tableFrame)
			pte.SetFlags(FlagPresent | FlagRW | userFlags)

			// Non-present entries are never cached by the TLB so the
			// new table is reachable without a flush.
			kernel.Memset(uintptr(ptePtrFn(m.tables.tableAddr(level+1, virtAddr))), 0, mm.PageSize)
			return true
		}

		if pte.HasFlags(FlagHugePage) {
			err = errParentEntryHugePage
			return false
		}

		pte.SetFlags(userFlags)
		return true
	})

	return err
}

// Unmap removes the mapping for page and returns the frame it pointed to.
func (m *Manager) Unmap(page mm.Page) (mm.Frame, *kernel.Error) {
	m.mutex.Acquire()
	defer m.mutex.Release()

	return m.unmapLocked(page)
}

func (m *Manager) unmapLocked(page mm.Page) (mm.Frame, *kernel.Error) {
	var (
		err      = errPageNotMapped
		frame    = mm.InvalidFrame
		virtAddr = page.Address()
	)

	m.tables.walk(virtAddr, func(level uint8, pte *pageTableEntry) bool {
		if !pte.HasFlags(FlagPresent) {
			return false
		}

		if level == pageLevels-1 {
			frame = pte.Frame()
			*pte = 0
			flushTLBEntryFn(virtAddr)
			err = nil
			return true
		}

		if pte.HasFlags(FlagHugePage) {
			err = errParentEntryHugePage
			return false
		}

		return true
	})

	return frame, err
}

// Translate returns the physical address that corresponds to the supplied
// virtual address or ErrInvalidMapping if the virtual address does not
// correspond to a mapped physical address. Addresses inside 1G and 2M pages
// are also translated.
func (m *Manager) Translate(virtAddr uintptr) (uintptr, *kernel.Error) {
	m.mutex.Acquire()
	defer m.mutex.Release()

	return m.translateLocked(virtAddr)
}

func (m *Manager) translateLocked(virtAddr uintptr) (uintptr, *kernel.Error) {
	var (
		err      = ErrInvalidMapping
		physAddr uintptr
	)

	m.tables.walk(virtAddr, func(level uint8, pte *pageTableEntry) bool {
		if !pte.HasFlags(FlagPresent) {
			return false
		}

		if level == pageLevels-1 || (level > 0 && pte.HasFlags(FlagHugePage)) {
			offsetMask := uintptr(1)<<pageLevelShifts[level] - 1
			physAddr = (pte.Frame().Address() &^ offsetMask) | (virtAddr & offsetMask)
			err = nil
			return false
		}

		return true
	})

	return physAddr, err
}

// PageOffset returns the offset within the page specified by a virtual
// address.
func PageOffset(virtAddr uintptr) uintptr {
	return mm.PageOffset(virtAddr)
}
