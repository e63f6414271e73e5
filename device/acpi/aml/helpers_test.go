package aml

import (
	"bytes"
	"kestrel/kernel"
)

// amlPkg encodes op followed by a PkgLength covering the concatenated
// contents.
func amlPkg(op []byte, contents ...[]byte) []byte {
	body := bytes.Join(contents, nil)

	var pkgLen []byte
	switch total := len(body) + 1; {
	case total <= 0x3f:
		pkgLen = []byte{byte(total)}
	default:
		total++
		pkgLen = []byte{0x40 | byte(total&0xf), byte(total >> 4)}
	}

	return bytes.Join([][]byte{op, pkgLen, body}, nil)
}

// amlRawPkgLen encodes n as a PkgLength value without adjusting for the
// size of the encoding itself.
func amlRawPkgLen(n int) []byte {
	if n <= 0x3f {
		return []byte{byte(n)}
	}
	return []byte{0x40 | byte(n&0xf), byte(n >> 4)}
}

func amlCat(parts ...[]byte) []byte {
	return bytes.Join(parts, nil)
}

func amlName(name string, value []byte) []byte {
	return amlCat([]byte{opName}, []byte(name), value)
}

func amlByte(v uint8) []byte   { return []byte{opBytePrefix, v} }
func amlWord(v uint16) []byte  { return []byte{opWordPrefix, byte(v), byte(v >> 8)} }
func amlDword(v uint32) []byte { return []byte{opDwordPrefix, byte(v), byte(v >> 8), byte(v >> 16), byte(v >> 24)} }

func amlString(s string) []byte {
	return amlCat([]byte{opStringPrefix}, []byte(s), []byte{0})
}

func amlOpRegion(name string, space RegionSpace, offset, length []byte) []byte {
	return amlCat([]byte{extOpPrefix, 0x80}, []byte(name), []byte{byte(space)}, offset, length)
}

// amlField encodes a Field operator; elements are pairs of segment name and
// bit width where an empty name produces a reserved field.
func amlField(region string, flags byte, elements ...interface{}) []byte {
	var list [][]byte
	for i := 0; i < len(elements); i += 2 {
		name, width := elements[i].(string), elements[i+1].(int)
		if name == "" {
			list = append(list, []byte{0x00}, amlRawPkgLen(width))
			continue
		}
		list = append(list, []byte(name), amlRawPkgLen(width))
	}

	return amlPkg([]byte{extOpPrefix, 0x81}, []byte(region), []byte{flags}, bytes.Join(list, nil))
}

type portKey uint16

type pciKey struct {
	segment  uint16
	bus      uint8
	device   uint8
	function uint8
	offset   uint16
}

// fakeHandler is a byte-addressable Handler backed by maps.
type fakeHandler struct {
	mem map[uintptr]byte
	io  map[portKey]byte
	pci map[pciKey]byte

	accessWidths []int
}

func newFakeHandler() *fakeHandler {
	return &fakeHandler{
		mem: make(map[uintptr]byte),
		io:  make(map[portKey]byte),
		pci: make(map[pciKey]byte),
	}
}

func (h *fakeHandler) memRead(addr uintptr, n int) uint64 {
	h.accessWidths = append(h.accessWidths, n)
	var v uint64
	for i := 0; i < n; i++ {
		v |= uint64(h.mem[addr+uintptr(i)]) << (8 * uint(i))
	}
	return v
}

func (h *fakeHandler) memWrite(addr uintptr, n int, v uint64) {
	h.accessWidths = append(h.accessWidths, n)
	for i := 0; i < n; i++ {
		h.mem[addr+uintptr(i)] = byte(v >> (8 * uint(i)))
	}
}

func (h *fakeHandler) ioRead(port uint16, n int) uint64 {
	h.accessWidths = append(h.accessWidths, n)
	var v uint64
	for i := 0; i < n; i++ {
		v |= uint64(h.io[portKey(port+uint16(i))]) << (8 * uint(i))
	}
	return v
}

func (h *fakeHandler) ioWrite(port uint16, n int, v uint64) {
	h.accessWidths = append(h.accessWidths, n)
	for i := 0; i < n; i++ {
		h.io[portKey(port+uint16(i))] = byte(v >> (8 * uint(i)))
	}
}

func (h *fakeHandler) pciRead(k pciKey, n int) uint64 {
	h.accessWidths = append(h.accessWidths, n)
	var v uint64
	for i := 0; i < n; i++ {
		key := k
		key.offset += uint16(i)
		v |= uint64(h.pci[key]) << (8 * uint(i))
	}
	return v
}

func (h *fakeHandler) pciWrite(k pciKey, n int, v uint64) {
	h.accessWidths = append(h.accessWidths, n)
	for i := 0; i < n; i++ {
		key := k
		key.offset += uint16(i)
		h.pci[key] = byte(v >> (8 * uint(i)))
	}
}

func (h *fakeHandler) ReadMemU8(a uintptr) (uint8, *kernel.Error)   { return uint8(h.memRead(a, 1)), nil }
func (h *fakeHandler) ReadMemU16(a uintptr) (uint16, *kernel.Error) { return uint16(h.memRead(a, 2)), nil }
func (h *fakeHandler) ReadMemU32(a uintptr) (uint32, *kernel.Error) { return uint32(h.memRead(a, 4)), nil }
func (h *fakeHandler) ReadMemU64(a uintptr) (uint64, *kernel.Error) { return h.memRead(a, 8), nil }

func (h *fakeHandler) WriteMemU8(a uintptr, v uint8) *kernel.Error {
	h.memWrite(a, 1, uint64(v))
	return nil
}
func (h *fakeHandler) WriteMemU16(a uintptr, v uint16) *kernel.Error {
	h.memWrite(a, 2, uint64(v))
	return nil
}
func (h *fakeHandler) WriteMemU32(a uintptr, v uint32) *kernel.Error {
	h.memWrite(a, 4, uint64(v))
	return nil
}
func (h *fakeHandler) WriteMemU64(a uintptr, v uint64) *kernel.Error {
	h.memWrite(a, 8, v)
	return nil
}

func (h *fakeHandler) ReadIOU8(p uint16) (uint8, *kernel.Error)   { return uint8(h.ioRead(p, 1)), nil }
func (h *fakeHandler) ReadIOU16(p uint16) (uint16, *kernel.Error) { return uint16(h.ioRead(p, 2)), nil }
func (h *fakeHandler) ReadIOU32(p uint16) (uint32, *kernel.Error) { return uint32(h.ioRead(p, 4)), nil }

func (h *fakeHandler) WriteIOU8(p uint16, v uint8) *kernel.Error {
	h.ioWrite(p, 1, uint64(v))
	return nil
}
func (h *fakeHandler) WriteIOU16(p uint16, v uint16) *kernel.Error {
	h.ioWrite(p, 2, uint64(v))
	return nil
}
func (h *fakeHandler) WriteIOU32(p uint16, v uint32) *kernel.Error {
	h.ioWrite(p, 4, uint64(v))
	return nil
}

func (h *fakeHandler) ReadPCIU8(s uint16, b, d, f uint8, off uint16) (uint8, *kernel.Error) {
	return uint8(h.pciRead(pciKey{s, b, d, f, off}, 1)), nil
}
func (h *fakeHandler) ReadPCIU16(s uint16, b, d, f uint8, off uint16) (uint16, *kernel.Error) {
	return uint16(h.pciRead(pciKey{s, b, d, f, off}, 2)), nil
}
func (h *fakeHandler) ReadPCIU32(s uint16, b, d, f uint8, off uint16) (uint32, *kernel.Error) {
	return uint32(h.pciRead(pciKey{s, b, d, f, off}, 4)), nil
}

func (h *fakeHandler) WritePCIU8(s uint16, b, d, f uint8, off uint16, v uint8) *kernel.Error {
	h.pciWrite(pciKey{s, b, d, f, off}, 1, uint64(v))
	return nil
}
func (h *fakeHandler) WritePCIU16(s uint16, b, d, f uint8, off uint16, v uint16) *kernel.Error {
	h.pciWrite(pciKey{s, b, d, f, off}, 2, uint64(v))
	return nil
}
func (h *fakeHandler) WritePCIU32(s uint16, b, d, f uint8, off uint16, v uint32) *kernel.Error {
	h.pciWrite(pciKey{s, b, d, f, off}, 4, uint64(v))
	return nil
}
