// Package ahci provides a driver for SATA controllers operating in AHCI
// mode.
package ahci

import (
	"io"
	"kestrel/device/pci"
	"kestrel/kernel"
	"kestrel/kernel/kfmt"
	"kestrel/kernel/mm/vmm"
	"unsafe"
)

const (
	// abarSlot is the BAR that holds the AHCI base address (ABAR).
	abarSlot = 5

	regCap = 0x00
	regGHC = 0x04
	regPI  = 0x0c
	regVS  = 0x10

	portBase   = 0x100
	portStride = 0x80
	maxPorts   = 32

	portRegSig    = 0x24
	portRegSSTS   = 0x28
	hbaMemorySize = portBase + maxPorts*portStride

	ghcAHCIEnable = 1 << 31

	// SATA status: device present and phy communication established,
	// interface in active state.
	sstsDetEstablished = 3
	sstsIPMActive      = 1
)

var (
	// regPtrFn converts an HBA register address to a pointer. Tests
	// override it to redirect accesses to a fake register file.
	regPtrFn = func(addr uintptr) *uint32 {
		return (*uint32)(unsafe.Pointer(addr))
	}

	errBISTFailed  = &kernel.Error{Module: "ahci", Message: "controller self test failed"}
	errMissingABAR = &kernel.Error{Module: "ahci", Message: "BAR5 does not describe a memory region"}
)

// RegionMapper is implemented by the VMM and used to map the HBA registers.
type RegionMapper interface {
	MapRegion(physAddr, size uintptr, flags vmm.PageTableEntryFlag) (uintptr, *kernel.Error)
}

// PortSignature identifies the type of device attached to a port.
type PortSignature uint32

// The list of known port signatures.
const (
	SignatureATA            PortSignature = 0x00000101
	SignatureATAPI          PortSignature = 0xeb140101
	SignatureSEMB           PortSignature = 0xc33c0101
	SignaturePortMultiplier PortSignature = 0x96690101
)

// String implements fmt.Stringer for PortSignature.
func (s PortSignature) String() string {
	switch s {
	case SignatureATA:
		return "SATA drive"
	case SignatureATAPI:
		return "SATAPI drive"
	case SignatureSEMB:
		return "enclosure management bridge"
	case SignaturePortMultiplier:
		return "port multiplier"
	default:
		return "unknown device"
	}
}

// Port describes an implemented port with an active link.
type Port struct {
	Index     uint8
	Signature PortSignature
}

// Driver manages an AHCI host bus adapter.
type Driver struct {
	dev           *pci.Device
	header        pci.StandardHeader
	mapper        RegionMapper
	bistPollLimit int

	abar *pci.BAR
	regs uintptr

	capabilities uint32
	implemented  uint32
	ports        []Port
}

// Matches returns true if dev is a SATA controller that implements the
// AHCI 1.0 programming interface.
func Matches(dev *pci.Device) bool {
	return dev.Class == 0x01 && dev.Subclass == 0x06 && dev.ProgIF == 0x01
}

// Probe returns a driver for dev or nil if dev is not an AHCI controller.
func Probe(dev *pci.Device, access pci.ConfigAccess, mapper RegionMapper, bistPollLimit int) *Driver {
	if !Matches(dev) {
		return nil
	}

	return &Driver{
		dev:           dev,
		header:        pci.StandardHeader{Header: pci.NewHeader(access, dev.Address)},
		mapper:        mapper,
		bistPollLimit: bistPollLimit,
	}
}

// DriverName returns the name of this driver.
func (*Driver) DriverName() string {
	return "AHCI"
}

// DriverVersion returns the version of this driver.
func (*Driver) DriverVersion() (uint16, uint16, uint16) {
	return 0, 0, 1
}

// DriverInit runs the controller self test, maps the HBA registers and
// detects the ports with an active link.
func (drv *Driver) DriverInit(w io.Writer) *kernel.Error {
	switch status, code := drv.header.RunBIST(drv.bistPollLimit); status {
	case pci.BISTPassed, pci.BISTNotSupported:
	default:
		kfmt.Fprintf(w, "self test %s (code %d)\n", status.String(), code)
		return errBISTFailed
	}

	if drv.abar = drv.header.BAR(abarSlot); drv.abar == nil || drv.abar.Kind != pci.BARMemory {
		return errMissingABAR
	}

	flags := vmm.FlagPresent | vmm.FlagRW | vmm.FlagDoNotCache
	if drv.abar.Prefetchable {
		flags |= vmm.FlagWriteThroughCaching
	}

	regs, err := drv.mapper.MapRegion(uintptr(drv.abar.Base), hbaMemorySize, flags)
	if err != nil {
		return err
	}
	drv.regs = regs

	drv.capabilities, drv.implemented = drv.read(regCap), drv.read(regPI)
	version, ghc := drv.read(regVS), drv.read(regGHC)
	kfmt.Fprintf(w, "AHCI %d.%d controller at 0x%x, %d ports, AHCI mode: %t\n",
		version>>16, (version>>8)&0xff, drv.abar.Base, drv.PortCount(), ghc&ghcAHCIEnable != 0)

	drv.enumeratePorts()
	for _, port := range drv.ports {
		kfmt.Fprintf(w, "port %d: %s\n", port.Index, port.Signature.String())
	}

	return nil
}

// PortCount returns the number of ports supported by the HBA.
func (drv *Driver) PortCount() int {
	return int(drv.capabilities&0x1f) + 1
}

// Ports returns the ports with an established, active link.
func (drv *Driver) Ports() []Port {
	return drv.ports
}

// Device returns the PCI function managed by the driver.
func (drv *Driver) Device() *pci.Device {
	return drv.dev
}

func (drv *Driver) read(offset uintptr) uint32 {
	return *regPtrFn(drv.regs + offset)
}

func (drv *Driver) enumeratePorts() {
	drv.ports = drv.ports[:0]

	for i := 0; i < drv.PortCount(); i++ {
		if drv.implemented&(1<<uint(i)) == 0 {
			continue
		}

		base := uintptr(portBase + i*portStride)
		ssts := drv.read(base + portRegSSTS)
		if det, ipm := ssts&0xf, (ssts>>8)&0xf; det != sstsDetEstablished || ipm != sstsIPMActive {
			continue
		}

		drv.ports = append(drv.ports, Port{
			Index:     uint8(i),
			Signature: PortSignature(drv.read(base + portRegSig)),
		})
	}
}
