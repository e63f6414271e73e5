package table

import (
	"testing"
	"unsafe"
)

func TestTableLayout(t *testing.T) {
	specs := []struct {
		name    string
		got     uintptr
		expSize uintptr
	}{
		{"RSDPDescriptor", unsafe.Sizeof(RSDPDescriptor{}), 20},
		{"ExtRSDPDescriptor.XSDTAddr", unsafe.Offsetof(ExtRSDPDescriptor{}.XSDTAddr), 24},
		{"ExtRSDPDescriptor.reserved", unsafe.Offsetof(ExtRSDPDescriptor{}.reserved) + 3, ExtRSDPLength},
		{"SDTHeader", unsafe.Sizeof(SDTHeader{}), 36},
		{"GenericAddress", unsafe.Sizeof(GenericAddress{}), 12},
		{"FADT", unsafe.Sizeof(FADT{}), 132},
		{"FADT.Dsdt", unsafe.Offsetof(FADT{}.Dsdt), 40},
		{"FADT.Century", unsafe.Offsetof(FADT{}.Century), 108},
		{"FADT.Flags", unsafe.Offsetof(FADT{}.Flags), 112},
		{"FADT.ResetReg", unsafe.Offsetof(FADT{}.ResetReg), 116},
		{"MCFG", unsafe.Sizeof(MCFG{}), 44},
		{"MCFGEntry", unsafe.Sizeof(MCFGEntry{}), 16},
	}

	for _, spec := range specs {
		if spec.got != spec.expSize {
			t.Errorf("expected %s to be %d; got %d", spec.name, spec.expSize, spec.got)
		}
	}
}

func TestFADTExtensions(t *testing.T) {
	buf := make([]uint64, 20)
	fadt := (*FADT)(unsafe.Pointer(&buf[0]))
	raw := unsafe.Slice((*byte)(unsafe.Pointer(&buf[0])), len(buf)*8)

	for i, b := range []byte{0x00, 0x10, 0x00, 0xbf, 0x00, 0x00, 0x00, 0x00} {
		raw[fadtXDSDTOffset+i] = b
	}
	raw[fadtXFirmwareCtrlOffset] = 0x40

	t.Run("ACPI 1.0 table", func(t *testing.T) {
		fadt.Length = 116
		if _, ok := fadt.XDSDT(); ok {
			t.Fatal("expected XDSDT to be unavailable for short FADT")
		}
	})

	t.Run("ACPI 2.0+ table", func(t *testing.T) {
		fadt.Length = 244
		got, ok := fadt.XDSDT()
		if !ok || got != 0xbf001000 {
			t.Fatalf("expected XDSDT to be 0xbf001000; got 0x%x, %t", got, ok)
		}

		if got, _ := fadt.XFirmwareCtrl(); got != 0x40 {
			t.Fatalf("expected XFirmwareCtrl to be 0x40; got 0x%x", got)
		}
	})
}

func TestGenericAddress(t *testing.T) {
	g := GenericAddress{AddressLo: 0xcafe0000, AddressHi: 0x1}
	if got := g.Address(); got != 0x1cafe0000 {
		t.Fatalf("expected address to be 0x1cafe0000; got 0x%x", got)
	}
}
