package cpu

var (
	cpuidFn = ID
)

// DisableInterrupts disables interrupt handling.
func DisableInterrupts()

// Halt stops instruction execution.
func Halt()

// FlushTLBEntry invalidates the TLB entry for the page that contains
// virtAddr (INVLPG).
func FlushTLBEntry(virtAddr uintptr)

// ID returns information about the CPU and its features. It
// is implemented as a CPUID instruction with EAX=leaf and
// returns the values in EAX, EBX, ECX and EDX.
func ID(leaf uint32) (uint32, uint32, uint32, uint32)

// Vendor returns the 12 character vendor identification string reported by
// CPUID leaf 0, e.g. "GenuineIntel".
func Vendor() string {
	var id [12]byte

	_, ebx, ecx, edx := cpuidFn(0)
	for i, reg := range [3]uint32{ebx, edx, ecx} {
		for b := 0; b < 4; b++ {
			id[i*4+b] = byte(reg >> (8 * b))
		}
	}

	return string(id[:])
}

// PortWriteByte writes a uint8 value to the requested port.
func PortWriteByte(port uint16, val uint8)

// PortWriteWord writes a uint16 value to the requested port.
func PortWriteWord(port uint16, val uint16)

// PortWriteDword writes a uint32 value to the requested port.
func PortWriteDword(port uint16, val uint32)

// PortReadByte reads a uint8 value from the requested port.
func PortReadByte(port uint16) uint8

// PortReadWord reads a uint16 value from the requested port.
func PortReadWord(port uint16) uint16

// PortReadDword reads a uint32 value from the requested port.
func PortReadDword(port uint16) uint32
