package acpi

import (
	"kestrel/device/pci"
	"kestrel/kernel"
	"kestrel/kernel/cpu"
	"kestrel/kernel/mm"
	"kestrel/kernel/mm/vmm"
	"kestrel/kernel/sync"
	"unsafe"
)

var (
	// ErrNoPCIAccess is returned for PCI configuration space accesses
	// when the system provides no PCI configuration mechanism.
	ErrNoPCIAccess = &kernel.Error{Module: "acpi", Message: "PCI configuration space is not available"}

	errUnalignedPCIAccess = &kernel.Error{Module: "acpi", Message: "PCI configuration access crosses a dword boundary"}

	// windowPtrFn converts a scratch window address into a pointer. Tests
	// override it to redirect accesses to a fake physical address space.
	windowPtrFn = func(addr uintptr) unsafe.Pointer {
		return unsafe.Pointer(addr)
	}

	portReadByteFn   = cpu.PortReadByte
	portReadWordFn   = cpu.PortReadWord
	portReadDwordFn  = cpu.PortReadDword
	portWriteByteFn  = cpu.PortWriteByte
	portWriteWordFn  = cpu.PortWriteWord
	portWriteDwordFn = cpu.PortWriteDword
)

// AMLWindowPages is the number of pages that the memory window of an
// AMLBridge must span so that an 8-byte access may straddle a page
// boundary.
const AMLWindowPages = 2

// AMLBridge implements aml.Handler. Physical memory is reached by remapping
// a scratch window of AMLWindowPages pages; I/O ports are accessed directly
// and PCI configuration space goes through a pci.ConfigAccess.
type AMLBridge struct {
	mutex sync.Spinlock

	remapper  pci.RegionRemapper
	window    uintptr
	pciAccess pci.ConfigAccess
}

// NewAMLBridge returns an AMLBridge that uses the pages at window as its
// scratch mapping. pciAccess may be nil if the system provides no PCI
// configuration mechanism.
func NewAMLBridge(remapper pci.RegionRemapper, window uintptr, pciAccess pci.ConfigAccess) *AMLBridge {
	return &AMLBridge{
		remapper:  remapper,
		window:    window &^ (mm.PageSize - 1),
		pciAccess: pciAccess,
	}
}

// memLocked points the scratch window at physAddr and returns a pointer to
// it. The window keeps the page offset of physAddr.
func (b *AMLBridge) memLocked(physAddr, size uintptr) (unsafe.Pointer, *kernel.Error) {
	virtAddr := b.window + mm.PageOffset(physAddr)
	flags := vmm.FlagPresent | vmm.FlagRW | vmm.FlagDoNotCache
	if err := b.remapper.RemapRegion(physAddr, virtAddr, size, flags); err != nil {
		return nil, err
	}

	return windowPtrFn(virtAddr), nil
}

// ReadMemU8 implements aml.Handler.
func (b *AMLBridge) ReadMemU8(physAddr uintptr) (uint8, *kernel.Error) {
	b.mutex.Acquire()
	defer b.mutex.Release()

	ptr, err := b.memLocked(physAddr, 1)
	if err != nil {
		return 0, err
	}
	return *(*uint8)(ptr), nil
}

// ReadMemU16 implements aml.Handler.
func (b *AMLBridge) ReadMemU16(physAddr uintptr) (uint16, *kernel.Error) {
	b.mutex.Acquire()
	defer b.mutex.Release()

	ptr, err := b.memLocked(physAddr, 2)
	if err != nil {
		return 0, err
	}
	return *(*uint16)(ptr), nil
}

// ReadMemU32 implements aml.Handler.
func (b *AMLBridge) ReadMemU32(physAddr uintptr) (uint32, *kernel.Error) {
	b.mutex.Acquire()
	defer b.mutex.Release()

	ptr, err := b.memLocked(physAddr, 4)
	if err != nil {
		return 0, err
	}
	return *(*uint32)(ptr), nil
}

// ReadMemU64 implements aml.Handler.
func (b *AMLBridge) ReadMemU64(physAddr uintptr) (uint64, *kernel.Error) {
	b.mutex.Acquire()
	defer b.mutex.Release()

	ptr, err := b.memLocked(physAddr, 8)
	if err != nil {
		return 0, err
	}
	return *(*uint64)(ptr), nil
}

// WriteMemU8 implements aml.Handler.
func (b *AMLBridge) WriteMemU8(physAddr uintptr, value uint8) *kernel.Error {
	b.mutex.Acquire()
	defer b.mutex.Release()

	ptr, err := b.memLocked(physAddr, 1)
	if err != nil {
		return err
	}
	*(*uint8)(ptr) = value
	return nil
}

// WriteMemU16 implements aml.Handler.
func (b *AMLBridge) WriteMemU16(physAddr uintptr, value uint16) *kernel.Error {
	b.mutex.Acquire()
	defer b.mutex.Release()

	ptr, err := b.memLocked(physAddr, 2)
	if err != nil {
		return err
	}
	*(*uint16)(ptr) = value
	return nil
}

// WriteMemU32 implements aml.Handler.
func (b *AMLBridge) WriteMemU32(physAddr uintptr, value uint32) *kernel.Error {
	b.mutex.Acquire()
	defer b.mutex.Release()

	ptr, err := b.memLocked(physAddr, 4)
	if err != nil {
		return err
	}
	*(*uint32)(ptr) = value
	return nil
}

// WriteMemU64 implements aml.Handler.
func (b *AMLBridge) WriteMemU64(physAddr uintptr, value uint64) *kernel.Error {
	b.mutex.Acquire()
	defer b.mutex.Release()

	ptr, err := b.memLocked(physAddr, 8)
	if err != nil {
		return err
	}
	*(*uint64)(ptr) = value
	return nil
}

// ReadIOU8 implements aml.Handler.
func (b *AMLBridge) ReadIOU8(port uint16) (uint8, *kernel.Error) {
	return portReadByteFn(port), nil
}

// ReadIOU16 implements aml.Handler.
func (b *AMLBridge) ReadIOU16(port uint16) (uint16, *kernel.Error) {
	return portReadWordFn(port), nil
}

// ReadIOU32 implements aml.Handler.
func (b *AMLBridge) ReadIOU32(port uint16) (uint32, *kernel.Error) {
	return portReadDwordFn(port), nil
}

// WriteIOU8 implements aml.Handler.
func (b *AMLBridge) WriteIOU8(port uint16, value uint8) *kernel.Error {
	portWriteByteFn(port, value)
	return nil
}

// WriteIOU16 implements aml.Handler.
func (b *AMLBridge) WriteIOU16(port uint16, value uint16) *kernel.Error {
	portWriteWordFn(port, value)
	return nil
}

// WriteIOU32 implements aml.Handler.
func (b *AMLBridge) WriteIOU32(port uint16, value uint32) *kernel.Error {
	portWriteDwordFn(port, value)
	return nil
}

// readPCI returns the size-byte value at offset. Accesses narrower than a
// dword are extracted from the containing config register.
func (b *AMLBridge) readPCI(addr pci.Address, offset uint16, size uint16) (uint32, *kernel.Error) {
	if b.pciAccess == nil {
		return 0, ErrNoPCIAccess
	}

	shift := offset & 3
	if shift+size > 4 {
		return 0, errUnalignedPCIAccess
	}

	b.mutex.Acquire()
	defer b.mutex.Release()

	value := b.pciAccess.Read(addr, offset&^3) >> (shift * 8)
	if size < 4 {
		value &= 1<<(size*8) - 1
	}
	return value, nil
}

// writePCI stores a size-byte value at offset by merging it into the
// containing config register.
func (b *AMLBridge) writePCI(addr pci.Address, offset uint16, size uint16, value uint32) *kernel.Error {
	if b.pciAccess == nil {
		return ErrNoPCIAccess
	}

	shift := offset & 3
	if shift+size > 4 {
		return errUnalignedPCIAccess
	}

	b.mutex.Acquire()
	defer b.mutex.Release()

	if size < 4 {
		mask := uint32(1<<(size*8)-1) << (shift * 8)
		reg := b.pciAccess.Read(addr, offset&^3)
		value = reg&^mask | (value<<(shift*8))&mask
	}

	b.pciAccess.Write(addr, offset&^3, value)
	return nil
}

// ReadPCIU8 implements aml.Handler.
func (b *AMLBridge) ReadPCIU8(segment uint16, bus, device, function uint8, offset uint16) (uint8, *kernel.Error) {
	v, err := b.readPCI(pci.NewAddress(segment, bus, device, function), offset, 1)
	return uint8(v), err
}

// ReadPCIU16 implements aml.Handler.
func (b *AMLBridge) ReadPCIU16(segment uint16, bus, device, function uint8, offset uint16) (uint16, *kernel.Error) {
	v, err := b.readPCI(pci.NewAddress(segment, bus, device, function), offset, 2)
	return uint16(v), err
}

// ReadPCIU32 implements aml.Handler.
func (b *AMLBridge) ReadPCIU32(segment uint16, bus, device, function uint8, offset uint16) (uint32, *kernel.Error) {
	return b.readPCI(pci.NewAddress(segment, bus, device, function), offset, 4)
}

// WritePCIU8 implements aml.Handler.
func (b *AMLBridge) WritePCIU8(segment uint16, bus, device, function uint8, offset uint16, value uint8) *kernel.Error {
	return b.writePCI(pci.NewAddress(segment, bus, device, function), offset, 1, uint32(value))
}

// WritePCIU16 implements aml.Handler.
func (b *AMLBridge) WritePCIU16(segment uint16, bus, device, function uint8, offset uint16, value uint16) *kernel.Error {
	return b.writePCI(pci.NewAddress(segment, bus, device, function), offset, 2, uint32(value))
}

// WritePCIU32 implements aml.Handler.
func (b *AMLBridge) WritePCIU32(segment uint16, bus, device, function uint8, offset uint16, value uint32) *kernel.Error {
	return b.writePCI(pci.NewAddress(segment, bus, device, function), offset, 4, value)
}
