package main

import "kestrel/kernel"

// noHardware is the aml.Handler used when loading tables outside the
// kernel. The namespace loader only needs it for evaluating operation
// region accesses which acpidump never performs.
type noHardware struct{}

func (noHardware) ReadMemU8(uintptr) (uint8, *kernel.Error)   { return 0, errNoHardware }
func (noHardware) ReadMemU16(uintptr) (uint16, *kernel.Error) { return 0, errNoHardware }
func (noHardware) ReadMemU32(uintptr) (uint32, *kernel.Error) { return 0, errNoHardware }
func (noHardware) ReadMemU64(uintptr) (uint64, *kernel.Error) { return 0, errNoHardware }
func (noHardware) WriteMemU8(uintptr, uint8) *kernel.Error    { return errNoHardware }
func (noHardware) WriteMemU16(uintptr, uint16) *kernel.Error  { return errNoHardware }
func (noHardware) WriteMemU32(uintptr, uint32) *kernel.Error  { return errNoHardware }
func (noHardware) WriteMemU64(uintptr, uint64) *kernel.Error  { return errNoHardware }

func (noHardware) ReadIOU8(uint16) (uint8, *kernel.Error)   { return 0, errNoHardware }
func (noHardware) ReadIOU16(uint16) (uint16, *kernel.Error) { return 0, errNoHardware }
func (noHardware) ReadIOU32(uint16) (uint32, *kernel.Error) { return 0, errNoHardware }
func (noHardware) WriteIOU8(uint16, uint8) *kernel.Error    { return errNoHardware }
func (noHardware) WriteIOU16(uint16, uint16) *kernel.Error  { return errNoHardware }
func (noHardware) WriteIOU32(uint16, uint32) *kernel.Error  { return errNoHardware }

func (noHardware) ReadPCIU8(uint16, uint8, uint8, uint8, uint16) (uint8, *kernel.Error) {
	return 0, errNoHardware
}

func (noHardware) ReadPCIU16(uint16, uint8, uint8, uint8, uint16) (uint16, *kernel.Error) {
	return 0, errNoHardware
}

func (noHardware) ReadPCIU32(uint16, uint8, uint8, uint8, uint16) (uint32, *kernel.Error) {
	return 0, errNoHardware
}

func (noHardware) WritePCIU8(uint16, uint8, uint8, uint8, uint16, uint8) *kernel.Error {
	return errNoHardware
}

func (noHardware) WritePCIU16(uint16, uint8, uint8, uint8, uint16, uint16) *kernel.Error {
	return errNoHardware
}

func (noHardware) WritePCIU32(uint16, uint8, uint8, uint8, uint16, uint32) *kernel.Error {
	return errNoHardware
}
