package pci

// Address encodes a PCI segment, bus, device and function tuple. The
// function lives in bits 0-2, the device in bits 3-7, the bus in bits 8-15
// and the segment group in bits 16-31.
type Address uint32

// NewAddress returns the Address for the given tuple. Device and function
// values are truncated to 5 and 3 bits respectively.
func NewAddress(segment uint16, bus, device, function uint8) Address {
	return Address(uint32(segment)<<16 | uint32(bus)<<8 | uint32(device&0x1f)<<3 | uint32(function&0x7))
}

// Segment returns the PCI segment group.
func (a Address) Segment() uint16 { return uint16(a >> 16) }

// Bus returns the bus number.
func (a Address) Bus() uint8 { return uint8(a >> 8) }

// Device returns the device number.
func (a Address) Device() uint8 { return uint8(a>>3) & 0x1f }

// Function returns the function number.
func (a Address) Function() uint8 { return uint8(a) & 0x7 }

const hexDigits = "0123456789abcdef"

// String returns the address in the usual ssss:bb:dd.f notation.
func (a Address) String() string {
	var buf [12]byte

	putHex(buf[0:4], uint64(a.Segment()))
	buf[4] = ':'
	putHex(buf[5:7], uint64(a.Bus()))
	buf[7] = ':'
	putHex(buf[8:10], uint64(a.Device()))
	buf[10] = '.'
	putHex(buf[11:12], uint64(a.Function()))

	return string(buf[:])
}

// putHex renders v as zero-padded hex digits filling dst.
func putHex(dst []byte, v uint64) {
	for i := len(dst) - 1; i >= 0; i-- {
		dst[i] = hexDigits[v&0xf]
		v >>= 4
	}
}
