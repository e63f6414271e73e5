package table

import "unsafe"

// Signatures of the tables that the kernel consumes.
const (
	SignatureRSDT = "RSDT"
	SignatureXSDT = "XSDT"
	SignatureFADT = "FACP"
	SignatureDSDT = "DSDT"
	SignatureSSDT = "SSDT"
	SignatureMCFG = "MCFG"
)

// RSDPSignature is the signature of the root system descriptor pointer
// ("RSD PTR " with a trailing space).
var RSDPSignature = [8]byte{'R', 'S', 'D', ' ', 'P', 'T', 'R', ' '}

// RSDPDescriptor defines the root system descriptor pointer for ACPI 1.0. This
// is used as the entry-point for parsing ACPI data.
type RSDPDescriptor struct {
	// The signature must contain "RSD PTR " (last byte is a space).
	Signature [8]byte

	// A value that when added to the sum of all other bytes contained in
	// this descriptor should result in the value 0.
	Checksum uint8

	OEMID [6]byte

	// ACPI revision number. It is 0 for ACPI1.0 and 2 for versions 2.0 to 6.2.
	Revision uint8

	// Physical address of 32-bit root system descriptor table.
	RSDTAddr uint32
}

// ExtRSDPLength is the number of bytes covered by the extended RSDP checksum.
// It is smaller than the size of ExtRSDPDescriptor which is padded to the
// alignment of XSDTAddr.
const ExtRSDPLength = 36

// ExtRSDPDescriptor extends RSDPDescriptor with additional fields. It is used
// when RSDPDescriptor.revision > 1.
type ExtRSDPDescriptor struct {
	RSDPDescriptor

	// The size of the 64-bit root system descriptor table.
	Length uint32

	// Physical address of 64-bit root system descriptor table.
	XSDTAddr uint64

	// A value that when added to the sum of all other bytes contained in
	// this descriptor should result in the value 0.
	ExtendedChecksum uint8

	reserved [3]byte
}

// SDTHeader defines the common header for all ACPI-related tables.
type SDTHeader struct {
	// The signature defines the table type.
	Signature [4]byte

	// The length of the table
	Length uint32

	// If this header belongs to a DSDT/SSDT table, the revision is also
	// used to indicate whether the AML VM should treat integers as 32-bits
	// (revision < 2) or 64-bits (revision >= 2).
	Revision uint8

	// A value that when added to the sum of all other bytes in the table
	// should result in the value 0.
	Checksum uint8

	// OEM specific information
	OEMID       [6]byte
	OEMTableID  [8]byte
	OEMRevision uint32

	// Information about the ASL compiler that generated this table
	CreatorID       uint32
	CreatorRevision uint32
}

// AddressSpace defines the location where a set of registers resides.
type AddressSpace uint8

// The list of supported address space types.
const (
	AddressSpaceSysMemory AddressSpace = iota
	AddressSpaceSysIO
	AddressSpacePCI
	AddressSpaceEmbController
	AddressSpaceSMBus
	AddressSpaceFuncFixedHW = 0x7f
)

// GenericAddress specifies a register range located in a particular address
// space. The 64-bit address is split in two halves so that the struct keeps
// the 12-byte, 4-byte aligned layout used by the firmware.
type GenericAddress struct {
	Space      AddressSpace
	BitWidth   uint8
	BitOffset  uint8
	AccessSize uint8
	AddressLo  uint32
	AddressHi  uint32
}

// Address returns the 64-bit register address.
func (g GenericAddress) Address() uint64 {
	return uint64(g.AddressHi)<<32 | uint64(g.AddressLo)
}

// PowerProfileType describes a power profile referenced by the FADT table.
type PowerProfileType uint8

// The list of supported power profile types
const (
	PowerProfileUnspecified PowerProfileType = iota
	PowerProfileDesktop
	PowerProfileMobile
	PowerProfileWorkstation
	PowerProfileEnterpriseServer
	PowerProfileSOHOServer
	PowerProfileAppliancePC
	PowerProfilePerformanceServer
)

// Byte offsets of the 64-bit FADT extensions used by ACPI 2.0+. They are
// read through accessors as their natural alignment does not match the
// table layout.
const (
	fadtXFirmwareCtrlOffset = 132
	fadtXDSDTOffset         = 140
)

// FADT (Fixed ACPI Description Table) is an ACPI table containing information
// about fixed register blocks used for power management.
type FADT struct {
	SDTHeader

	FirmwareCtrl uint32
	Dsdt         uint32

	reserved uint8

	PreferredPowerManagementProfile PowerProfileType
	SCIInterrupt                    uint16
	SMICommandPort                  uint32
	AcpiEnable                      uint8
	AcpiDisable                     uint8
	S4BIOSReq                       uint8
	PSTATEControl                   uint8
	PM1aEventBlock                  uint32
	PM1bEventBlock                  uint32
	PM1aControlBlock                uint32
	PM1bControlBlock                uint32
	PM2ControlBlock                 uint32
	PMTimerBlock                    uint32
	GPE0Block                       uint32
	GPE1Block                       uint32
	PM1EventLength                  uint8
	PM1ControlLength                uint8
	PM2ControlLength                uint8
	PMTimerLength                   uint8
	GPE0Length                      uint8
	GPE1Length                      uint8
	GPE1Base                        uint8
	CStateControl                   uint8
	WorstC2Latency                  uint16
	WorstC3Latency                  uint16
	FlushSize                       uint16
	FlushStride                     uint16
	DutyOffset                      uint8
	DutyWidth                       uint8
	DayAlarm                        uint8
	MonthAlarm                      uint8
	Century                         uint8

	// Reserved in ACPI 1.0; used since ACPI 2.0+
	BootArchitectureFlags [2]uint8

	reserved2 uint8
	Flags     uint32

	ResetReg GenericAddress

	ResetValue       uint8
	ARMBootArchFlags [2]uint8
	MinorVersion     uint8
}

// XDSDT returns the 64-bit DSDT address from the ACPI 2.0+ extension of
// the table. The second return value is false if the table is too short to
// contain the field; the caller must ensure that Length bytes are mapped.
func (f *FADT) XDSDT() (uint64, bool) {
	return f.ext64(fadtXDSDTOffset)
}

// XFirmwareCtrl returns the 64-bit FACS address from the ACPI 2.0+
// extension of the table.
func (f *FADT) XFirmwareCtrl() (uint64, bool) {
	return f.ext64(fadtXFirmwareCtrlOffset)
}

func (f *FADT) ext64(offset uintptr) (uint64, bool) {
	if uintptr(f.Length) < offset+8 {
		return 0, false
	}

	return *(*uint64)(unsafe.Pointer(uintptr(unsafe.Pointer(f)) + offset)), true
}

// MCFG describes the memory mapped PCI express configuration space. The
// header is followed by (Length - sizeof(MCFG)) / sizeof(MCFGEntry) entries.
type MCFG struct {
	SDTHeader

	reserved [8]byte
}

// MCFGEntry describes the ECAM window of a PCI segment group for a range of
// buses.
type MCFGEntry struct {
	// BaseAddress is the physical address of the ECAM window.
	BaseAddress uint64

	Segment  uint16
	StartBus uint8
	EndBus   uint8

	reserved uint32
}
