// Package acpi locates the ACPI tables provided by the firmware, loads the
// AML definition blocks into a namespace and bridges AML operation region
// accesses to the hardware.
package acpi

import (
	"io"
	"kestrel/device/acpi/table"
	"kestrel/kernel"
	"kestrel/kernel/kfmt"
	"unsafe"
)

const (
	acpiRev1     uint8 = 0
	acpiRev2Plus uint8 = 2

	sizeofSDTHeader = unsafe.Sizeof(table.SDTHeader{})
	sizeofRSDP      = unsafe.Sizeof(table.RSDPDescriptor{})
)

var (
	errMissingRSDP           = &kernel.Error{Module: "acpi", Message: "could not locate ACPI RSDP"}
	errInvalidRSDP           = &kernel.Error{Module: "acpi", Message: "invalid RSDP signature or checksum"}
	errInvalidRootTable      = &kernel.Error{Module: "acpi", Message: "invalid RSDT/XSDT signature or checksum"}
	errTableChecksumMismatch = &kernel.Error{Module: "acpi", Message: "detected checksum mismatch while parsing ACPI table header"}
	errTableTooShort         = &kernel.Error{Module: "acpi", Message: "ACPI table length is smaller than its header"}

	// RDSP must be located in the physical memory region 0xe0000 to 0xfffff
	rsdpLocationLow uintptr = 0xe0000
	rsdpLocationHi  uintptr = 0xfffff
	rsdpAlignment   uintptr = 16
)

// TableHandle identifies an ACPI table that passed validation. Tables are
// not kept mapped; the handle is used to map them again on demand.
type TableHandle struct {
	Signature string
	PhysAddr  uintptr
	Length    uint32
	Revision  uint8
}

// Tables is the set of ACPI tables reachable from the RSDP.
type Tables struct {
	// Revision is the ACPI revision reported by the RSDP.
	Revision uint8

	handles []TableHandle

	DSDT  *TableHandle
	SSDTs []TableHandle
	MCFG  *TableHandle
}

// Handles returns the recorded tables in discovery order.
func (t *Tables) Handles() []TableHandle {
	return t.handles
}

// Lookup returns the first table with the given signature.
func (t *Tables) Lookup(signature string) (TableHandle, bool) {
	for _, handle := range t.handles {
		if handle.Signature == signature {
			return handle, true
		}
	}

	return TableHandle{}, false
}

// LocateRSDP scans the BIOS read-only memory area for the root system
// descriptor pointer and returns its physical address.
func LocateRSDP(h *Handler) (uintptr, *kernel.Error) {
	m, err := h.MapPhysicalRegion(rsdpLocationLow, rsdpLocationHi-rsdpLocationLow+1)
	if err != nil {
		return 0, err
	}
	defer func() { _ = h.UnmapPhysicalRegion(m) }()

	// The RSDP should be aligned on a 16-byte boundary
	for offset := uintptr(0); offset+sizeofRSDP <= m.Size; offset += rsdpAlignment {
		if validRSDP(m.VirtAddr+offset, m.Size-offset) {
			return m.PhysAddr + offset, nil
		}
	}

	return 0, errMissingRSDP
}

// validRSDP checks the signature and checksums of the RSDP at ptr. avail is
// the number of mapped bytes starting at ptr.
func validRSDP(ptr, avail uintptr) bool {
	rsdp := (*table.RSDPDescriptor)(unsafe.Pointer(ptr))
	if rsdp.Signature != table.RSDPSignature || !validTable(ptr, uint32(sizeofRSDP)) {
		return false
	}

	if rsdp.Revision == acpiRev1 {
		return true
	}

	return avail >= table.ExtRSDPLength && validTable(ptr, table.ExtRSDPLength)
}

// LoadTables validates the RSDP at rsdpAddr and records a handle for every
// table referenced by the RSDT (ACPI 1.0) or XSDT (ACPI 2.0+). The DSDT is
// located through the FADT. Tables with an invalid checksum are reported to
// w and skipped. No mappings are left behind when LoadTables returns.
func LoadTables(h *Handler, rsdpAddr uintptr, w io.Writer) (*Tables, *kernel.Error) {
	rootAddr, useXSDT, revision, err := readRSDP(h, rsdpAddr)
	if err != nil {
		return nil, err
	}

	sdtAddresses, err := readRootTable(h, rootAddr, useXSDT)
	if err != nil {
		return nil, err
	}

	tables := &Tables{Revision: revision}
	for _, addr := range sdtAddresses {
		handle, ok, err := loadTable(h, addr, w)
		if err != nil {
			return nil, err
		} else if !ok {
			continue
		}

		tables.add(handle)

		// The FADT allows us to lookup the DSDT table address
		if handle.Signature == table.SignatureFADT {
			dsdtAddr, err := dsdtAddress(h, handle, revision)
			if err != nil {
				return nil, err
			}

			if dsdtAddr == 0 {
				continue
			}

			if handle, ok, err = loadTable(h, dsdtAddr, w); err != nil {
				return nil, err
			} else if ok {
				tables.add(handle)
			}
		}
	}

	for _, handle := range tables.handles {
		kfmt.Fprintf(w, "%s at 0x%16x %6x (rev %d)\n",
			handle.Signature,
			handle.PhysAddr,
			handle.Length,
			handle.Revision,
		)
	}

	return tables, nil
}

func (t *Tables) add(handle TableHandle) {
	t.handles = append(t.handles, handle)

	switch handle.Signature {
	case table.SignatureDSDT:
		if t.DSDT == nil {
			dsdt := handle
			t.DSDT = &dsdt
		}
	case table.SignatureSSDT:
		t.SSDTs = append(t.SSDTs, handle)
	case table.SignatureMCFG:
		if t.MCFG == nil {
			mcfg := handle
			t.MCFG = &mcfg
		}
	}
}

// readRSDP validates the RSDP and returns the address of the root table
// and whether it is an XSDT.
func readRSDP(h *Handler, rsdpAddr uintptr) (uintptr, bool, uint8, *kernel.Error) {
	m, err := h.MapPhysicalRegion(rsdpAddr, table.ExtRSDPLength)
	if err != nil {
		return 0, false, 0, err
	}
	defer func() { _ = h.UnmapPhysicalRegion(m) }()

	if !validRSDP(m.VirtAddr, m.Size) {
		return 0, false, 0, errInvalidRSDP
	}

	rsdp := (*table.RSDPDescriptor)(unsafe.Pointer(m.VirtAddr))
	if rsdp.Revision == acpiRev1 {
		return uintptr(rsdp.RSDTAddr), false, rsdp.Revision, nil
	}

	// System uses ACPI revision > 1 and provides an extended RSDP
	// which can be accessed at the same place.
	rsdp2 := (*table.ExtRSDPDescriptor)(unsafe.Pointer(m.VirtAddr))
	if rsdp2.XSDTAddr == 0 {
		return uintptr(rsdp.RSDTAddr), false, rsdp.Revision, nil
	}

	return uintptr(rsdp2.XSDTAddr), true, rsdp.Revision, nil
}

// readRootTable returns the table addresses listed by the RSDT or XSDT at
// rootAddr.
func readRootTable(h *Handler, rootAddr uintptr, useXSDT bool) ([]uintptr, *kernel.Error) {
	m, err := mapTable(h, rootAddr)
	if err != nil {
		if err == errTableChecksumMismatch || err == errTableTooShort {
			err = errInvalidRootTable
		}
		return nil, err
	}
	defer func() { _ = h.UnmapPhysicalRegion(m.PhysicalMapping) }()

	header := (*table.SDTHeader)(unsafe.Pointer(m.VirtAddr))
	expSignature := table.SignatureRSDT
	if useXSDT {
		expSignature = table.SignatureXSDT
	}

	if string(header.Signature[:]) != expSignature {
		return nil, errInvalidRootTable
	}

	// RSDT uses 4-byte long pointers whereas the XSDT uses 8-byte long.
	var (
		payloadLen   = uintptr(header.Length) - sizeofSDTHeader
		sdtAddresses []uintptr
	)

	switch useXSDT {
	case true:
		sdtAddresses = make([]uintptr, payloadLen>>3)
		for curPtr, i := m.VirtAddr+sizeofSDTHeader, 0; i < len(sdtAddresses); curPtr, i = curPtr+8, i+1 {
			sdtAddresses[i] = uintptr(*(*uint64)(unsafe.Pointer(curPtr)))
		}
	default:
		sdtAddresses = make([]uintptr, payloadLen>>2)
		for curPtr, i := m.VirtAddr+sizeofSDTHeader, 0; i < len(sdtAddresses); curPtr, i = curPtr+4, i+1 {
			sdtAddresses[i] = uintptr(*(*uint32)(unsafe.Pointer(curPtr)))
		}
	}

	return sdtAddresses, nil
}

// loadTable validates the table at addr and returns its handle. The second
// return value is false if the table failed validation and was skipped.
func loadTable(h *Handler, addr uintptr, w io.Writer) (TableHandle, bool, *kernel.Error) {
	m, err := mapTable(h, addr)
	switch err {
	case nil:
	case errTableChecksumMismatch, errTableTooShort:
		kfmt.Fprintf(w, "%s at 0x%16x %6x [%s; skipping]\n",
			m.signature,
			addr,
			m.length,
			err.Message,
		)
		return TableHandle{}, false, nil
	default:
		return TableHandle{}, false, err
	}
	defer func() { _ = h.UnmapPhysicalRegion(m.PhysicalMapping) }()

	header := (*table.SDTHeader)(unsafe.Pointer(m.VirtAddr))
	return TableHandle{
		Signature: m.signature,
		PhysAddr:  addr,
		Length:    header.Length,
		Revision:  header.Revision,
	}, true, nil
}

// dsdtAddress returns the DSDT address stored in the FADT. ACPI 2.0+
// systems provide a 64-bit pointer which takes precedence when set.
func dsdtAddress(h *Handler, fadtHandle TableHandle, revision uint8) (uintptr, *kernel.Error) {
	m, err := h.MapPhysicalRegion(fadtHandle.PhysAddr, uintptr(fadtHandle.Length))
	if err != nil {
		return 0, err
	}
	defer func() { _ = h.UnmapPhysicalRegion(m) }()

	fadt := (*table.FADT)(unsafe.Pointer(m.VirtAddr))
	if revision >= acpiRev2Plus {
		if xdsdt, ok := fadt.XDSDT(); ok && xdsdt != 0 {
			return uintptr(xdsdt), nil
		}
	}

	return uintptr(fadt.Dsdt), nil
}

// tableMapping is a mapping that covers an entire ACPI table.
type tableMapping struct {
	PhysicalMapping

	signature string
	length    uint32
}

// mapTable maps the header of the table at addr to learn its length and
// then maps the whole table and verifies its checksum. A mapping is only
// left in place if mapTable returns a nil error; the signature and length
// are filled in for validation errors.
func mapTable(h *Handler, addr uintptr) (tableMapping, *kernel.Error) {
	var tm tableMapping

	m, err := h.MapPhysicalRegion(addr, sizeofSDTHeader)
	if err != nil {
		return tm, err
	}

	header := (*table.SDTHeader)(unsafe.Pointer(m.VirtAddr))
	tm.signature, tm.length = string(header.Signature[:]), header.Length
	if err = h.UnmapPhysicalRegion(m); err != nil {
		return tm, err
	}

	if uintptr(tm.length) < sizeofSDTHeader {
		return tm, errTableTooShort
	}

	// Expand mapping to cover the table contents
	if m, err = h.MapPhysicalRegion(addr, uintptr(tm.length)); err != nil {
		return tm, err
	}

	if !validTable(m.VirtAddr, tm.length) {
		_ = h.UnmapPhysicalRegion(m)
		return tm, errTableChecksumMismatch
	}

	tm.PhysicalMapping = m
	return tm, nil
}

// mapHandle maps the full contents of a previously validated table.
func mapHandle(h *Handler, handle TableHandle) (PhysicalMapping, *kernel.Error) {
	return h.MapPhysicalRegion(handle.PhysAddr, uintptr(handle.Length))
}

// validTable calculates the checksum for an ACPI table of length tableLength
// that starts at tablePtr and returns true if the table is valid.
func validTable(tablePtr uintptr, tableLength uint32) bool {
	var (
		i   uint32
		sum uint8
	)

	for i = 0; i < tableLength; i++ {
		sum += *(*uint8)(unsafe.Pointer(tablePtr + uintptr(i)))
	}

	return sum == 0
}

// CenturyRegister returns the index of the CMOS register that holds the
// RTC century as reported by the FADT, or 0 if the firmware reports none.
func CenturyRegister(h *Handler, tables *Tables) uint8 {
	handle, ok := tables.Lookup(table.SignatureFADT)
	if !ok || uintptr(handle.Length) <= unsafe.Offsetof(table.FADT{}.Century) {
		return 0
	}

	m, err := mapHandle(h, handle)
	if err != nil {
		return 0
	}
	defer func() { _ = h.UnmapPhysicalRegion(m) }()

	return (*table.FADT)(unsafe.Pointer(m.VirtAddr)).Century
}
