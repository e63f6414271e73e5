package aml

import "kestrel/kernel"

var (
	errNotFieldUnit           = &kernel.Error{Module: "aml", Message: "object is not a field unit"}
	errRegionNotFound         = &kernel.Error{Module: "aml", Message: "field refers to an unknown operation region"}
	errFieldTooWide           = &kernel.Error{Module: "aml", Message: "field units wider than 64 bits are not supported"}
	errFieldOutOfRegion       = &kernel.Error{Module: "aml", Message: "field extends past the end of its operation region"}
	errUnsupportedRegionSpace = &kernel.Error{Module: "aml", Message: "unsupported operation region space"}
	errUnsupportedAccessWidth = &kernel.Error{Module: "aml", Message: "unsupported access width for region space"}
	errNoHandler              = &kernel.Error{Module: "aml", Message: "no hardware handler configured"}
)

// ReadField reads the field unit at the given absolute path.
func (c *Context) ReadField(path string) (uint64, *kernel.Error) {
	field, region, err := c.resolveField(path)
	if err != nil {
		return 0, err
	}

	var (
		unitSize  = field.AccessType.width()
		unitBits  = unitSize * 8
		fieldEnd  = field.BitOffset + field.BitWidth
		result    uint64
		resultBit uint64
	)

	for unit := field.BitOffset / unitBits; unit*unitBits < fieldEnd; unit++ {
		val, err := c.readUnit(region, unit*unitSize, unitSize)
		if err != nil {
			return 0, err
		}

		lo, hi := unitSpan(unit*unitBits, unitBits, field.BitOffset, fieldEnd)
		result |= ((val >> lo) & bitMask(hi-lo)) << resultBit
		resultBit += hi - lo
	}

	return result, nil
}

// WriteField writes value to the field unit at the given absolute path.
// Access units that are only partially covered by the field are updated
// with a read-modify-write cycle.
func (c *Context) WriteField(path string, value uint64) *kernel.Error {
	field, region, err := c.resolveField(path)
	if err != nil {
		return err
	}

	var (
		unitSize = field.AccessType.width()
		unitBits = unitSize * 8
		fieldEnd = field.BitOffset + field.BitWidth
		srcBit   uint64
	)

	for unit := field.BitOffset / unitBits; unit*unitBits < fieldEnd; unit++ {
		lo, hi := unitSpan(unit*unitBits, unitBits, field.BitOffset, fieldEnd)
		mask := bitMask(hi-lo) << lo

		var cur uint64
		if hi-lo != unitBits {
			if cur, err = c.readUnit(region, unit*unitSize, unitSize); err != nil {
				return err
			}
		}

		cur = (cur &^ mask) | (((value >> srcBit) << lo) & mask)
		if err = c.writeUnit(region, unit*unitSize, unitSize, cur); err != nil {
			return err
		}
		srcBit += hi - lo
	}

	return nil
}

func (c *Context) resolveField(path string) (*FieldUnit, *OperationRegion, *kernel.Error) {
	obj, ok := c.Lookup(path)
	if !ok || obj.Type != ObjectFieldUnit {
		return nil, nil, errNotFieldUnit
	}

	field := obj.Field
	if field.BitWidth == 0 || field.BitWidth > 64 {
		return nil, nil, errFieldTooWide
	}

	regionObj, _ := findValue(field.scope, c.root, field.RegionName)
	if regionObj == nil || regionObj.Type != ObjectOperationRegion {
		return nil, nil, errRegionNotFound
	}

	region := regionObj.Region
	unitSize := field.AccessType.width()
	lastUnit := (field.BitOffset + field.BitWidth - 1) / (unitSize * 8)
	if (lastUnit+1)*unitSize > region.Length {
		return nil, nil, errFieldOutOfRegion
	}

	if c.handler == nil {
		return nil, nil, errNoHandler
	}

	return field, region, nil
}

// unitSpan returns the bit range [lo, hi) of the access unit starting at
// unitStart that is covered by the field range [fieldStart, fieldEnd).
func unitSpan(unitStart, unitBits, fieldStart, fieldEnd uint64) (lo, hi uint64) {
	lo, hi = 0, unitBits
	if fieldStart > unitStart {
		lo = fieldStart - unitStart
	}
	if fieldEnd < unitStart+unitBits {
		hi = fieldEnd - unitStart
	}
	return lo, hi
}

func bitMask(bits uint64) uint64 {
	if bits >= 64 {
		return ^uint64(0)
	}
	return (uint64(1) << bits) - 1
}

func (c *Context) readUnit(region *OperationRegion, offset, size uint64) (uint64, *kernel.Error) {
	addr := region.Offset + offset

	switch region.Space {
	case RegionSpaceSystemMemory:
		switch size {
		case 1:
			v, err := c.handler.ReadMemU8(uintptr(addr))
			return uint64(v), err
		case 2:
			v, err := c.handler.ReadMemU16(uintptr(addr))
			return uint64(v), err
		case 4:
			v, err := c.handler.ReadMemU32(uintptr(addr))
			return uint64(v), err
		default:
			return c.handler.ReadMemU64(uintptr(addr))
		}
	case RegionSpaceSystemIO:
		switch size {
		case 1:
			v, err := c.handler.ReadIOU8(uint16(addr))
			return uint64(v), err
		case 2:
			v, err := c.handler.ReadIOU16(uint16(addr))
			return uint64(v), err
		case 4:
			v, err := c.handler.ReadIOU32(uint16(addr))
			return uint64(v), err
		}
		return 0, errUnsupportedAccessWidth
	case RegionSpacePCIConfig:
		pa := c.pciAddress(region.scope)
		switch size {
		case 1:
			v, err := c.handler.ReadPCIU8(pa.segment, pa.bus, pa.device, pa.function, uint16(addr))
			return uint64(v), err
		case 2:
			v, err := c.handler.ReadPCIU16(pa.segment, pa.bus, pa.device, pa.function, uint16(addr))
			return uint64(v), err
		case 4:
			v, err := c.handler.ReadPCIU32(pa.segment, pa.bus, pa.device, pa.function, uint16(addr))
			return uint64(v), err
		default:
			lo, err := c.handler.ReadPCIU32(pa.segment, pa.bus, pa.device, pa.function, uint16(addr))
			if err != nil {
				return 0, err
			}
			hi, err := c.handler.ReadPCIU32(pa.segment, pa.bus, pa.device, pa.function, uint16(addr+4))
			return uint64(hi)<<32 | uint64(lo), err
		}
	}

	return 0, errUnsupportedRegionSpace
}

func (c *Context) writeUnit(region *OperationRegion, offset, size, value uint64) *kernel.Error {
	addr := region.Offset + offset

	switch region.Space {
	case RegionSpaceSystemMemory:
		switch size {
		case 1:
			return c.handler.WriteMemU8(uintptr(addr), uint8(value))
		case 2:
			return c.handler.WriteMemU16(uintptr(addr), uint16(value))
		case 4:
			return c.handler.WriteMemU32(uintptr(addr), uint32(value))
		default:
			return c.handler.WriteMemU64(uintptr(addr), value)
		}
	case RegionSpaceSystemIO:
		switch size {
		case 1:
			return c.handler.WriteIOU8(uint16(addr), uint8(value))
		case 2:
			return c.handler.WriteIOU16(uint16(addr), uint16(value))
		case 4:
			return c.handler.WriteIOU32(uint16(addr), uint32(value))
		}
		return errUnsupportedAccessWidth
	case RegionSpacePCIConfig:
		pa := c.pciAddress(region.scope)
		switch size {
		case 1:
			return c.handler.WritePCIU8(pa.segment, pa.bus, pa.device, pa.function, uint16(addr), uint8(value))
		case 2:
			return c.handler.WritePCIU16(pa.segment, pa.bus, pa.device, pa.function, uint16(addr), uint16(value))
		case 4:
			return c.handler.WritePCIU32(pa.segment, pa.bus, pa.device, pa.function, uint16(addr), uint32(value))
		default:
			if err := c.handler.WritePCIU32(pa.segment, pa.bus, pa.device, pa.function, uint16(addr), uint32(value)); err != nil {
				return err
			}
			return c.handler.WritePCIU32(pa.segment, pa.bus, pa.device, pa.function, uint16(addr+4), uint32(value>>32))
		}
	}

	return errUnsupportedRegionSpace
}

type pciAddress struct {
	segment  uint16
	bus      uint8
	device   uint8
	function uint8
}

// pciAddress derives the config space address of the device that owns a
// PCI_Config region. The device and function come from the nearest _ADR
// (device in the high word, function in the low word); the segment and bus
// come from the nearest _SEG and _BBN. Missing objects default to zero.
func (c *Context) pciAddress(scope *Level) pciAddress {
	var pa pciAddress
	var haveADR, haveSEG, haveBBN bool

	for l := scope; l != nil; l = l.parent {
		if obj, ok := l.values["_ADR"]; ok && !haveADR && obj.Type == ObjectInteger {
			pa.device = uint8(obj.Integer >> 16)
			pa.function = uint8(obj.Integer)
			haveADR = true
		}
		if obj, ok := l.values["_SEG"]; ok && !haveSEG && obj.Type == ObjectInteger {
			pa.segment = uint16(obj.Integer)
			haveSEG = true
		}
		if obj, ok := l.values["_BBN"]; ok && !haveBBN && obj.Type == ObjectInteger {
			pa.bus = uint8(obj.Integer)
			haveBBN = true
		}
	}

	return pa
}
