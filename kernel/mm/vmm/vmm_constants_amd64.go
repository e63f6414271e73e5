package vmm

const (
	// pageLevels indicates the number of page levels supported by the amd64 architecture.
	pageLevels = 4

	// entriesPerTable is the number of entries in a page table at any level.
	entriesPerTable = 512

	// ptePhysPageMask extracts the physical frame address from a page
	// table entry (bits 12-51).
	ptePhysPageMask = uintptr(0x000ffffffffff000)

	// canonicalSignBit is the highest implemented virtual address bit; bits
	// 48-63 must be copies of it.
	canonicalSignBit = uintptr(1) << 47

	// canonicalUpperBits are the sign-extension bits of a canonical address.
	canonicalUpperBits = ^(uintptr(1)<<48 - 1)

	// LowerHalfEnd is the first address past the canonical lower half.
	LowerHalfEnd = canonicalSignBit
)

var (
	// pageLevelShifts defines the shift required to access each page table component
	// of a virtual address. Index 0 is the P4 level.
	pageLevelShifts = [pageLevels]uint8{
		39,
		30,
		21,
		12,
	}
)

const (
	// FlagPresent is set when the page is available in memory and not swapped out.
	FlagPresent PageTableEntryFlag = 1 << iota

	// FlagRW is set if the page can be written to.
	FlagRW

	// FlagUserAccessible is set if user-mode processes can access this page. If
	// not set only kernel code can access this page.
	FlagUserAccessible

	// FlagWriteThroughCaching implies write-through caching when set and write-back
	// caching if cleared.
	FlagWriteThroughCaching

	// FlagDoNotCache prevents this page from being cached if set. Device
	// register windows must be mapped with this flag.
	FlagDoNotCache

	// FlagAccessed is set by the CPU when this page is accessed.
	FlagAccessed

	// FlagDirty is set by the CPU when this page is modified.
	FlagDirty

	// FlagHugePage is set on P3 and P2 entries that map 1G and 2M pages.
	FlagHugePage

	// FlagGlobal prevents the TLB entry for this page from being flushed
	// when CR3 is reloaded.
	FlagGlobal

	// FlagNoExecute if set, indicates that a page contains non-executable code.
	FlagNoExecute PageTableEntryFlag = 1 << 63
)
