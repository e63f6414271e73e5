package pci

// Offsets of the configuration registers shared by all header types.
const (
	regID          = 0x00
	regStatus      = 0x04
	regClass       = 0x08
	regHeaderBIST  = 0x0c
	regBAR0        = 0x10
	regBusNumbers  = 0x18
	noVendor       = 0xffff
	multiFnBit     = 1 << 23
	bistCapableBit = 1 << 31
	bistStartBit   = 1 << 30
)

// DefaultBISTPollLimit is the number of times that RunBIST polls the BIST
// register before giving up on a device.
const DefaultBISTPollLimit = 1 << 20

// HeaderType describes the layout of a configuration space header.
type HeaderType uint8

// The list of supported header types.
const (
	HeaderTypeStandard HeaderType = iota
	HeaderTypeBridge
	HeaderTypeCardBus
)

// BISTStatus is the outcome of a built-in self test.
type BISTStatus uint8

// The list of BIST outcomes.
const (
	BISTPassed BISTStatus = iota
	BISTNotSupported
	BISTFailed
	BISTTimeout
)

// String implements fmt.Stringer for BISTStatus.
func (s BISTStatus) String() string {
	switch s {
	case BISTPassed:
		return "passed"
	case BISTNotSupported:
		return "not supported"
	case BISTFailed:
		return "failed"
	default:
		return "timed out"
	}
}

// Header provides access to the configuration header fields common to all
// header types.
type Header struct {
	access ConfigAccess
	addr   Address
}

// NewHeader returns the Header of the function at addr.
func NewHeader(access ConfigAccess, addr Address) Header {
	return Header{access: access, addr: addr}
}

// Address returns the address of the function.
func (h Header) Address() Address {
	return h.addr
}

// Present returns true if a function responds at the header's address.
func (h Header) Present() bool {
	if !h.access.FunctionExists(h.addr) {
		return false
	}

	vendor, _ := h.ID()
	return vendor != noVendor
}

// ID returns the vendor and device IDs.
func (h Header) ID() (vendor, device uint16) {
	v := h.access.Read(h.addr, regID)
	return uint16(v), uint16(v >> 16)
}

// RevisionAndClass returns the revision ID and the class code triplet.
func (h Header) RevisionAndClass() (revision, class, subclass, progIF uint8) {
	v := h.access.Read(h.addr, regClass)
	return uint8(v), uint8(v >> 24), uint8(v >> 16), uint8(v >> 8)
}

// Status returns the contents of the status register.
func (h Header) Status() StatusRegister {
	return StatusRegister(h.access.Read(h.addr, regStatus) >> 16)
}

// HeaderType returns the header layout. The second return value is false
// for unknown layouts.
func (h Header) HeaderType() (HeaderType, bool) {
	typ := HeaderType(h.access.Read(h.addr, regHeaderBIST)>>16) & 0x7f
	return typ, typ <= HeaderTypeCardBus
}

// HasMultipleFunctions returns true if the device implements functions
// other than function 0.
func (h Header) HasMultipleFunctions() bool {
	return h.access.Read(h.addr, regHeaderBIST)&multiFnBit != 0
}

// RunBIST starts the built-in self test of a BIST capable function and
// polls for its completion at most pollLimit times. For failed tests the
// completion code is also returned.
func (h Header) RunBIST(pollLimit int) (BISTStatus, uint8) {
	reg := h.access.Read(h.addr, regHeaderBIST)
	if reg&bistCapableBit == 0 {
		return BISTNotSupported, 0
	}

	h.access.Write(h.addr, regHeaderBIST, reg|bistStartBit)

	for polls := 0; ; polls++ {
		if polls == pollLimit {
			return BISTTimeout, 0
		}

		if reg = h.access.Read(h.addr, regHeaderBIST); reg&bistStartBit == 0 {
			break
		}
	}

	if code := uint8(reg>>24) & 0xf; code != 0 {
		return BISTFailed, code
	}

	return BISTPassed, 0
}

// DevselTiming is the DEVSEL timing advertised in the status register.
type DevselTiming uint8

// The list of DEVSEL timings.
const (
	DevselFast DevselTiming = iota
	DevselMedium
	DevselSlow
)

// StatusRegister wraps the contents of the PCI status register.
type StatusRegister uint16

func (s StatusRegister) bit(n uint) bool { return s&(1<<n) != 0 }

// ParityErrorDetected returns true if the device detected a parity error.
func (s StatusRegister) ParityErrorDetected() bool { return s.bit(15) }

// SignaledSystemError returns true if the device asserted SERR#.
func (s StatusRegister) SignaledSystemError() bool { return s.bit(14) }

// ReceivedMasterAbort returns true if a transaction from the device was
// terminated with a master abort.
func (s StatusRegister) ReceivedMasterAbort() bool { return s.bit(13) }

// ReceivedTargetAbort returns true if a transaction from the device was
// terminated with a target abort.
func (s StatusRegister) ReceivedTargetAbort() bool { return s.bit(12) }

// SignaledTargetAbort returns true if the device terminated a transaction
// with a target abort.
func (s StatusRegister) SignaledTargetAbort() bool { return s.bit(11) }

// DevselTiming returns the DEVSEL timing. The second return value is false
// for the reserved encoding.
func (s StatusRegister) DevselTiming() (DevselTiming, bool) {
	t := DevselTiming(s>>9) & 0x3
	return t, t <= DevselSlow
}

// MasterDataParityError returns true if a data parity error was detected
// while the device was the bus master.
func (s StatusRegister) MasterDataParityError() bool { return s.bit(8) }

// FastBackToBackCapable returns true if the device supports fast
// back-to-back transactions to different agents.
func (s StatusRegister) FastBackToBackCapable() bool { return s.bit(7) }

// Capable66MHz returns true if the device can run at 66 MHz.
func (s StatusRegister) Capable66MHz() bool { return s.bit(5) }

// HasCapabilityList returns true if the device implements the capability
// list pointer.
func (s StatusRegister) HasCapabilityList() bool { return s.bit(4) }

// InterruptStatus returns the state of the device's INTx# signal.
func (s StatusRegister) InterruptStatus() bool { return s.bit(3) }
