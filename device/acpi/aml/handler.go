package aml

import "kestrel/kernel"

// Handler provides the hardware access that AML code needs for reading and
// writing operation regions. Physical memory addresses are not required to
// be mapped by the caller.
type Handler interface {
	ReadMemU8(physAddr uintptr) (uint8, *kernel.Error)
	ReadMemU16(physAddr uintptr) (uint16, *kernel.Error)
	ReadMemU32(physAddr uintptr) (uint32, *kernel.Error)
	ReadMemU64(physAddr uintptr) (uint64, *kernel.Error)
	WriteMemU8(physAddr uintptr, value uint8) *kernel.Error
	WriteMemU16(physAddr uintptr, value uint16) *kernel.Error
	WriteMemU32(physAddr uintptr, value uint32) *kernel.Error
	WriteMemU64(physAddr uintptr, value uint64) *kernel.Error

	ReadIOU8(port uint16) (uint8, *kernel.Error)
	ReadIOU16(port uint16) (uint16, *kernel.Error)
	ReadIOU32(port uint16) (uint32, *kernel.Error)
	WriteIOU8(port uint16, value uint8) *kernel.Error
	WriteIOU16(port uint16, value uint16) *kernel.Error
	WriteIOU32(port uint16, value uint32) *kernel.Error

	ReadPCIU8(segment uint16, bus, device, function uint8, offset uint16) (uint8, *kernel.Error)
	ReadPCIU16(segment uint16, bus, device, function uint8, offset uint16) (uint16, *kernel.Error)
	ReadPCIU32(segment uint16, bus, device, function uint8, offset uint16) (uint32, *kernel.Error)
	WritePCIU8(segment uint16, bus, device, function uint8, offset uint16, value uint8) *kernel.Error
	WritePCIU16(segment uint16, bus, device, function uint8, offset uint16, value uint16) *kernel.Error
	WritePCIU32(segment uint16, bus, device, function uint8, offset uint16, value uint32) *kernel.Error
}
