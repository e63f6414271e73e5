package acpi

import (
	"encoding/binary"
	"kestrel/kernel"
	"kestrel/kernel/mm/vmm"
	"unsafe"
)

var errOutsideArena = &kernel.Error{Module: "test", Message: "physical address outside of test arena"}

// fakeMapper backs a range of physical memory with a host buffer. Mapped
// addresses point straight into the buffer.
type fakeMapper struct {
	physBase uintptr
	mem      []byte

	live     map[uintptr]int
	mapCalls int
	mapErr   *kernel.Error

	// failAt makes the n-th MapRegion call (1-based) fail with mapErr.
	failAt int
}

func newFakeMapper(physBase uintptr, size int) *fakeMapper {
	return &fakeMapper{
		physBase: physBase,
		mem:      make([]byte, size),
		live:     make(map[uintptr]int),
	}
}

func (f *fakeMapper) MapRegion(physAddr, size uintptr, _ vmm.PageTableEntryFlag) (uintptr, *kernel.Error) {
	f.mapCalls++
	if f.mapErr != nil && (f.failAt == 0 || f.failAt == f.mapCalls) {
		return 0, f.mapErr
	}

	if physAddr < f.physBase || physAddr+size > f.physBase+uintptr(len(f.mem)) {
		return 0, errOutsideArena
	}

	virtAddr := uintptr(unsafe.Pointer(&f.mem[physAddr-f.physBase]))
	f.live[virtAddr]++
	return virtAddr, nil
}

func (f *fakeMapper) UnmapRegion(virtAddr, _ uintptr) *kernel.Error {
	if f.live[virtAddr]--; f.live[virtAddr] <= 0 {
		delete(f.live, virtAddr)
	}
	return nil
}

func (f *fakeMapper) liveMappings() int {
	var count int
	for _, n := range f.live {
		count += n
	}
	return count
}

func (f *fakeMapper) at(physAddr uintptr) []byte {
	return f.mem[physAddr-f.physBase:]
}

func checksum(data []byte) byte {
	var sum byte
	for _, b := range data {
		sum += b
	}
	return -sum
}

// writeTable stores an SDT with the given signature and payload at
// physAddr and returns the table length.
func (f *fakeMapper) writeTable(physAddr uintptr, signature string, revision uint8, payload []byte) int {
	length := int(sizeofSDTHeader) + len(payload)
	buf := f.at(physAddr)[:length]

	copy(buf[0:4], signature)
	binary.LittleEndian.PutUint32(buf[4:], uint32(length))
	buf[8] = revision
	buf[9] = 0
	copy(buf[10:16], "KESTRL")
	copy(buf[16:24], "TESTTBL ")
	copy(buf[sizeofSDTHeader:], payload)
	buf[9] = checksum(buf)

	return length
}

// writeRSDP stores an RSDP at physAddr. Revision 0 descriptors omit the
// extended fields.
func (f *fakeMapper) writeRSDP(physAddr uintptr, revision uint8, rsdtAddr uint32, xsdtAddr uint64) {
	buf := f.at(physAddr)[:36]

	copy(buf[0:8], "RSD PTR ")
	copy(buf[9:15], "KESTRL")
	buf[15] = revision
	binary.LittleEndian.PutUint32(buf[16:], rsdtAddr)
	buf[8] = checksum(buf[:20])

	if revision == acpiRev1 {
		return
	}

	binary.LittleEndian.PutUint32(buf[20:], 36)
	binary.LittleEndian.PutUint64(buf[24:], xsdtAddr)
	buf[32] = checksum(buf[:36])
}

func rootTablePayload(entrySize int, addrs ...uintptr) []byte {
	payload := make([]byte, entrySize*len(addrs))
	for i, addr := range addrs {
		if entrySize == 8 {
			binary.LittleEndian.PutUint64(payload[i*8:], uint64(addr))
		} else {
			binary.LittleEndian.PutUint32(payload[i*4:], uint32(addr))
		}
	}
	return payload
}

// fadtPayload returns an ACPI 2.0+ FADT body.
func fadtPayload(dsdt uint32, xdsdt uint64) []byte {
	payload := make([]byte, 244-sizeofSDTHeader)
	binary.LittleEndian.PutUint32(payload[40-sizeofSDTHeader:], dsdt)
	binary.LittleEndian.PutUint64(payload[140-sizeofSDTHeader:], xdsdt)
	return payload
}

type mcfgEntry struct {
	base             uint64
	segment          uint16
	startBus, endBus uint8
}

func mcfgPayload(entries ...mcfgEntry) []byte {
	payload := make([]byte, 8+16*len(entries))
	for i, e := range entries {
		b := payload[8+16*i:]
		binary.LittleEndian.PutUint64(b, e.base)
		binary.LittleEndian.PutUint16(b[8:], e.segment)
		b[10], b[11] = e.startBus, e.endBus
	}
	return payload
}

// The helpers below emit AML byte code.

func amlPkg(op []byte, body ...[]byte) []byte {
	var contents []byte
	for _, b := range body {
		contents = append(contents, b...)
	}

	var pkgLen []byte
	if total := len(contents) + 1; total < 0x40 {
		pkgLen = []byte{byte(total)}
	} else {
		total++
		pkgLen = []byte{0x40 | byte(total&0xf), byte(total >> 4)}
	}

	out := append([]byte{}, op...)
	out = append(out, pkgLen...)
	return append(out, contents...)
}

func amlScope(name string, body ...[]byte) []byte {
	return amlPkg([]byte{0x10}, append([][]byte{[]byte(name)}, body...)...)
}

func amlDevice(name string, body ...[]byte) []byte {
	return amlPkg([]byte{0x5b, 0x82}, append([][]byte{[]byte(name)}, body...)...)
}

func amlNameDword(name string, value uint32) []byte {
	out := append([]byte{0x08}, name...)
	out = append(out, 0x0c)
	return binary.LittleEndian.AppendUint32(out, value)
}

func amlNameString(name, value string) []byte {
	out := append([]byte{0x08}, name...)
	out = append(out, 0x0d)
	out = append(out, value...)
	return append(out, 0x00)
}

func amlNameBuffer(name string, data ...byte) []byte {
	size := []byte{0x0a, byte(len(data))}
	out := append([]byte{0x08}, name...)
	return append(out, amlPkg([]byte{0x11}, size, data)...)
}

func amlMethod(name string, args uint8, body ...byte) []byte {
	return amlPkg([]byte{0x14}, []byte(name), []byte{args}, body)
}

func amlCat(parts ...[]byte) []byte {
	var out []byte
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}
