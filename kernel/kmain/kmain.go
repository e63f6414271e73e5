// Package kmain contains the kernel entrypoint and the boot sequence that
// brings up memory management and discovers the hardware.
package kmain

import (
	"io"
	"kestrel/device"
	"kestrel/device/acpi"
	"kestrel/device/acpi/aml"
	"kestrel/device/pci"
	"kestrel/kernel"
	"kestrel/kernel/boot"
	"kestrel/kernel/cpu"
	"kestrel/kernel/hal"
	"kestrel/kernel/kfmt"
	"kestrel/kernel/mm"
	"kestrel/kernel/mm/pmm"
	"kestrel/kernel/mm/vmm"
)

var (
	// The following functions are mocked by tests.
	bootInfoFn          = boot.FromRaw
	initMemoryManagerFn = func(recursiveIndex uint16, fa mm.FrameAllocator, searchStart, searchEnd uintptr) (MemoryManager, *kernel.Error) {
		if err := kernelVMM.Init(recursiveIndex, fa, searchStart, searchEnd); err != nil {
			return nil, err
		}
		return &kernelVMM, nil
	}
	panicFn             = kfmt.Panic
	disableInterruptsFn = cpu.DisableInterrupts
	cpuVendorFn         = cpu.Vendor

	errKmainReturned    = &kernel.Error{Module: "kmain", Message: "Kmain returned"}
	errNoRecursiveIndex = &kernel.Error{Module: "kmain", Message: "boot info does not provide the recursive page table index"}
	errInvalidLayout    = &kernel.Error{Module: "kmain", Message: "heap, search window and scratch windows overlap"}
)

// The services created before the kernel heap is mapped live in static
// storage since the Go allocator cannot be used until then.
var (
	kernelState    Kernel
	bootInfo       boot.Info
	frameAllocator pmm.BootInfoAllocator
	kernelVMM      vmm.Manager
)

// MemoryManager is the part of the VMM used by the boot sequence and the
// services it creates.
type MemoryManager interface {
	Map(page mm.Page, flags vmm.PageTableEntryFlag) *kernel.Error
	MapRegion(physAddr, size uintptr, flags vmm.PageTableEntryFlag) (uintptr, *kernel.Error)
	UnmapRegion(virtAddr, size uintptr) *kernel.Error
	RemapRegion(physAddr, virtAddr, size uintptr, flags vmm.PageTableEntryFlag) *kernel.Error
}

// Kernel holds the services created while booting.
type Kernel struct {
	Config   Config
	BootInfo *boot.Info

	FrameAllocator *pmm.BootInfoAllocator
	VMM            MemoryManager

	// ACPI and Tables are nil if no usable RSDP was found.
	ACPI   *acpi.Handler
	Tables *acpi.Tables

	// PCI is nil if the firmware does not describe any ECAM regions.
	PCI pci.ConfigAccess

	// AMLBridge and AML are nil if no ACPI tables were loaded.
	AMLBridge *acpi.AMLBridge
	AML       *aml.Context

	Devices []device.Device
	Drivers []device.Driver

	log io.Writer
}

// Kmain is the only Go symbol that is visible (exported) from the rt0
// initialization code. It is invoked by rt0 after it has set up a minimal
// environment for running Go code and receives the address of the boot
// information block prepared by the bootloader.
//
// Kmain is not expected to return. If it does, the rt0 code will halt the CPU.
//
//go:noinline
func Kmain(bootInfoPtr uintptr) {
	// Page table updates are not safe against interrupt handlers so
	// interrupts stay masked while the boot sequence runs.
	disableInterruptsFn()

	w := kfmt.Output()
	kfmt.Fprintf(w, "[kmain] booting on a %s CPU\n", cpuVendorFn())

	if _, err := Boot(bootInfoPtr, DefaultConfig(), w); err != nil {
		panicFn(err)
		return
	}

	// Use panicFn instead of panic to prevent the compiler from treating
	// kfmt.Panic as dead-code and eliminating it.
	panicFn(errKmainReturned)
}

// Boot runs the boot sequence using the memory layout in cfg and writes its
// log to w. Errors that leave the kernel without working memory management
// are returned; missing or broken firmware tables only disable the
// services that depend on them.
//
// The returned Kernel is backed by static storage that is reset by each
// call to Boot.
func Boot(bootInfoPtr uintptr, cfg Config, w io.Writer) (*Kernel, *kernel.Error) {
	k := &kernelState
	*k = Kernel{Config: cfg, log: w}

	if err := k.initMemory(bootInfoPtr); err != nil {
		return k, err
	}

	k.initACPI()
	k.initPCI()
	k.initAML()
	k.enumerate()

	k.Drivers = hal.DetectHardware(k.Devices, k.driverResources(), w)
	return k, nil
}

// initMemory decodes the boot information and sets up the physical and
// virtual memory managers followed by the kernel heap. Nothing in here may
// allocate.
func (k *Kernel) initMemory(bootInfoPtr uintptr) *kernel.Error {
	var err *kernel.Error

	if err = k.Config.validate(); err != nil {
		return err
	}

	if err = bootInfoFn(bootInfoPtr, &bootInfo); err != nil {
		return err
	} else if !bootInfo.HasRecursiveIndex {
		return errNoRecursiveIndex
	}
	k.BootInfo = &bootInfo

	k.FrameAllocator = &frameAllocator
	k.FrameAllocator.Init(k.BootInfo.MemoryRegions)
	k.FrameAllocator.PrintMemoryMap(k.log)

	if k.VMM, err = initMemoryManagerFn(k.BootInfo.RecursiveIndex, k.FrameAllocator, k.Config.heapEnd(), k.Config.SearchEnd); err != nil {
		return err
	}

	heapPages := mm.PageCount(k.Config.HeapStart, k.Config.HeapSize)
	firstPage := mm.PageFromAddress(k.Config.HeapStart)
	for page := firstPage; page < firstPage+mm.Page(heapPages); page++ {
		if err = k.VMM.Map(page, vmm.FlagPresent|vmm.FlagRW|vmm.FlagNoExecute); err != nil {
			return err
		}
	}

	kfmt.Fprintf(k.log, "[vmm] heap mapped at 0x%x (%d pages), %d frames in use\n",
		k.Config.HeapStart, heapPages, k.FrameAllocator.AllocatedFrames())
	return nil
}

// initACPI locates the RSDP and loads the table handles it references.
func (k *Kernel) initACPI() {
	var (
		w       = &kfmt.PrefixWriter{Sink: k.log, Prefix: []byte("[acpi] ")}
		handler = acpi.NewHandler(k.VMM)
		rsdp    uintptr
		err     *kernel.Error
	)

	if k.BootInfo.HasRSDP {
		rsdp = k.BootInfo.RSDPAddr
	} else if rsdp, err = acpi.LocateRSDP(handler); err != nil {
		kfmt.Fprintf(w, "%s; ACPI support disabled\n", err.Message)
		return
	}

	tables, err := acpi.LoadTables(handler, rsdp, w)
	if err != nil {
		kfmt.Fprintf(w, "%s; ACPI support disabled\n", err.Message)
		return
	}

	k.ACPI, k.Tables = handler, tables
}

// initPCI sets up ECAM access for the regions listed in the MCFG table.
func (k *Kernel) initPCI() {
	w := &kfmt.PrefixWriter{Sink: k.log, Prefix: []byte("[pci] ")}

	if k.Tables == nil {
		kfmt.Fprintf(w, "no ACPI tables; PCI support disabled\n")
		return
	}

	regions, err := acpi.PCIConfigRegions(k.ACPI, k.Tables)
	if err != nil {
		kfmt.Fprintf(w, "%s; PCI support disabled\n", err.Message)
		return
	}

	for _, r := range regions {
		kfmt.Fprintf(w, "ECAM segment %d, buses %d-%d at 0x%x\n", r.Segment, r.StartBus, r.EndBus, r.BaseAddr)
	}

	k.PCI = pci.NewECAMAccess(regions, k.VMM, k.Config.PCIWindow)
}

// initAML creates the AML bridge and loads the DSDT and SSDTs into the
// namespace.
func (k *Kernel) initAML() {
	if k.Tables == nil {
		return
	}

	w := &kfmt.PrefixWriter{Sink: k.log, Prefix: []byte("[aml] ")}

	k.AMLBridge = acpi.NewAMLBridge(k.VMM, k.Config.AMLWindow, k.PCI)
	ctx := aml.NewContext(k.AMLBridge, w)

	loaded, err := acpi.LoadNamespace(k.ACPI, k.Tables, ctx, w)
	if err != nil {
		kfmt.Fprintf(w, "%s\n", err.Message)
	} else {
		kfmt.Fprintf(w, "loaded %d definition blocks\n", loaded)
	}

	k.AML = ctx
}

// enumerate collects the ACPI devices followed by the PCI devices.
func (k *Kernel) enumerate() {
	var (
		acpiDevs []*acpi.Device
		pciDevs  []*pci.Device
	)

	if k.AML != nil {
		acpiDevs = acpi.EnumerateDevices(k.AML, &kfmt.PrefixWriter{Sink: k.log, Prefix: []byte("[acpi] ")})
	}

	if k.PCI != nil {
		pciDevs, _ = pci.Enumerate(k.PCI)
	}

	k.Devices = device.Inventory(acpiDevs, pciDevs)
	for _, dev := range k.Devices {
		kfmt.Fprintf(k.log, "[hal] found %s\n", dev.String())
	}
}

func (k *Kernel) driverResources() *device.Resources {
	res := &device.Resources{
		PCI:           k.PCI,
		Mapper:        k.VMM,
		BISTPollLimit: k.Config.BISTPollLimit,
	}

	if k.Tables != nil {
		res.RTCCenturyRegister = acpi.CenturyRegister(k.ACPI, k.Tables)
	}

	return res
}
