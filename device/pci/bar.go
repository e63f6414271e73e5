package pci

import "math/bits"

// BARKind distinguishes between memory and I/O space BARs.
type BARKind uint8

// The list of supported BAR kinds.
const (
	BARMemory BARKind = iota
	BARIO
)

const (
	barIOSpaceBit      = 1 << 0
	barPrefetchableBit = 1 << 3
	barMemTypeMask     = 0x6
	barMemType32       = 0x0
	barMemType64       = 0x4
	barMemAddrMask     = 0xfffffff0
	barIOAddrMask      = 0xfffffffc
	barSlots           = 6
)

// BAR describes a decoded base address register.
type BAR struct {
	Kind BARKind

	// Base is the physical address for memory BARs or the first port for
	// I/O BARs.
	Base uint64

	// Size is the length of the decoded window in bytes.
	Size uint64

	Prefetchable bool
	Is64Bit      bool
}

// StandardHeader provides access to the fields of a type 0 header.
type StandardHeader struct {
	Header
}

// BAR decodes the base address register at slot (0-5). The size of the
// window is probed by writing all ones to the register and reading it back;
// the original values are always restored. BAR returns nil if the register
// is not implemented, if it uses a reserved memory type or if a 64-bit BAR
// would start at the last slot.
func (h StandardHeader) BAR(slot uint8) *BAR {
	if slot >= barSlots {
		return nil
	}

	offset := uint16(regBAR0) + uint16(slot)*4
	orig := h.access.Read(h.addr, offset)

	if orig&barIOSpaceBit != 0 {
		h.access.Write(h.addr, offset, 0xffffffff)
		readback := h.access.Read(h.addr, offset) & barIOAddrMask
		h.access.Write(h.addr, offset, orig)

		if readback == 0 {
			return nil
		}

		return &BAR{
			Kind: BARIO,
			Base: uint64(orig & barIOAddrMask),
			Size: 1 << bits.TrailingZeros32(readback),
		}
	}

	prefetchable := orig&barPrefetchableBit != 0

	switch orig & barMemTypeMask {
	case barMemType32:
		h.access.Write(h.addr, offset, barMemAddrMask)
		readback := h.access.Read(h.addr, offset) & barMemAddrMask
		h.access.Write(h.addr, offset, orig)

		if readback == 0 {
			return nil
		}

		return &BAR{
			Kind:         BARMemory,
			Base:         uint64(orig & barMemAddrMask),
			Size:         1 << bits.TrailingZeros32(readback),
			Prefetchable: prefetchable,
		}
	case barMemType64:
		if slot == barSlots-1 {
			return nil
		}

		origHigh := h.access.Read(h.addr, offset+4)

		h.access.Write(h.addr, offset, barMemAddrMask)
		h.access.Write(h.addr, offset+4, 0xffffffff)
		readbackLow := h.access.Read(h.addr, offset) & barMemAddrMask
		readbackHigh := h.access.Read(h.addr, offset+4)
		h.access.Write(h.addr, offset, orig)
		h.access.Write(h.addr, offset+4, origHigh)

		var size uint64
		switch {
		case readbackLow != 0:
			size = 1 << bits.TrailingZeros32(readbackLow)
		case readbackHigh != 0:
			size = 1 << (bits.TrailingZeros32(readbackHigh) + 32)
		default:
			return nil
		}

		return &BAR{
			Kind:         BARMemory,
			Base:         uint64(origHigh)<<32 | uint64(orig&barMemAddrMask),
			Size:         size,
			Prefetchable: prefetchable,
			Is64Bit:      true,
		}
	}

	return nil
}

// BridgeHeader provides access to the fields of a type 1 (PCI-to-PCI
// bridge) header.
type BridgeHeader struct {
	Header
}

// PrimaryBus returns the number of the bus the bridge is attached to.
func (h BridgeHeader) PrimaryBus() uint8 {
	return uint8(h.access.Read(h.addr, regBusNumbers))
}

// SecondaryBus returns the number of the bus behind the bridge.
func (h BridgeHeader) SecondaryBus() uint8 {
	return uint8(h.access.Read(h.addr, regBusNumbers) >> 8)
}

// SubordinateBus returns the highest bus number reachable through the
// bridge.
func (h BridgeHeader) SubordinateBus() uint8 {
	return uint8(h.access.Read(h.addr, regBusNumbers) >> 16)
}
