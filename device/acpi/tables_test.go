package acpi

import (
	"bytes"
	"kestrel/device/acpi/table"
	"kestrel/kernel"
	"strings"
	"testing"
)

const (
	arenaBase = uintptr(0xe0000)
	arenaSize = 0x40000

	rsdpAddr = uintptr(0xf0010)
	rsdtAddr = uintptr(0x100000)
	xsdtAddr = uintptr(0x100100)
	fadtAddr = uintptr(0x101000)
	dsdtAddr = uintptr(0x102000)
	ssdtAddr = uintptr(0x103000)
	mcfgAddr = uintptr(0x104000)
	apicAddr = uintptr(0x105000)
)

var (
	testDSDT = amlScope(`\_SB_`,
		amlDevice("PCI0",
			amlNameDword("_HID", 0x030AD041),
			amlDevice("RTC_",
				amlNameDword("_HID", 0x000BD041),
			),
			amlDevice("NOID"),
		),
	)

	testSSDT = amlScope(`\_SB_`,
		amlDevice("COM1",
			amlNameString("_HID", "ACPI0001"),
		),
		amlDevice("DYN0",
			amlMethod("_HID", 0, 0xa4, 0x00),
		),
	)
)

// newTestFirmware populates a fake physical address space with a set of
// ACPI 2.0 tables reachable through both the RSDT and the XSDT.
func newTestFirmware(revision uint8) *fakeMapper {
	f := newFakeMapper(arenaBase, arenaSize)

	tableAddrs := []uintptr{fadtAddr, ssdtAddr, apicAddr, mcfgAddr}
	f.writeRSDP(rsdpAddr, revision, uint32(rsdtAddr), uint64(xsdtAddr))
	f.writeTable(rsdtAddr, table.SignatureRSDT, 1, rootTablePayload(4, tableAddrs...))
	f.writeTable(xsdtAddr, table.SignatureXSDT, 1, rootTablePayload(8, tableAddrs...))

	// The 32-bit pointer is only used by ACPI 1.0 systems
	if revision == acpiRev1 {
		f.writeTable(fadtAddr, table.SignatureFADT, 1, fadtPayload(uint32(dsdtAddr), 0))
	} else {
		f.writeTable(fadtAddr, table.SignatureFADT, 4, fadtPayload(uint32(ssdtAddr), uint64(dsdtAddr)))
	}

	f.writeTable(dsdtAddr, table.SignatureDSDT, 2, testDSDT)
	f.writeTable(ssdtAddr, table.SignatureSSDT, 2, testSSDT)
	f.writeTable(mcfgAddr, table.SignatureMCFG, 1, mcfgPayload(
		mcfgEntry{base: 0xb000_0000, startBus: 0, endBus: 0xff},
		mcfgEntry{base: 0xc000_0000, segment: 1, startBus: 0x10, endBus: 0x0f},
		mcfgEntry{base: 0xd000_0000, segment: 1, startBus: 0x10, endBus: 0x1f},
	))

	// Corrupt the checksum of the APIC table
	f.writeTable(apicAddr, "APIC", 3, make([]byte, 8))
	f.at(apicAddr)[9]++

	return f
}

func TestHandlerMapping(t *testing.T) {
	f := newFakeMapper(arenaBase, arenaSize)
	h := NewHandler(f)

	m, err := h.MapPhysicalRegion(arenaBase+0xff0, 0x20)
	if err != nil {
		t.Fatal(err)
	}

	if m.PhysAddr != arenaBase+0xff0 || m.Size != 0x20 {
		t.Fatalf("unexpected mapping: %+v", m)
	}

	if exp := uintptr(0x2000); m.MappedLength != exp {
		t.Fatalf("expected mapped length to be 0x%x; got 0x%x", exp, m.MappedLength)
	}

	if got := len(m.Bytes()); got != 0x20 {
		t.Fatalf("expected mapping to expose %d bytes; got %d", 0x20, got)
	}

	if err = h.UnmapPhysicalRegion(m); err != nil {
		t.Fatal(err)
	}

	if got := f.liveMappings(); got != 0 {
		t.Fatalf("expected no live mappings; got %d", got)
	}
}

func TestLocateRSDP(t *testing.T) {
	t.Run("found", func(t *testing.T) {
		f := newTestFirmware(acpiRev2Plus)

		// A signature match with a bad checksum must be skipped
		copy(f.at(0xe0100), "RSD PTR ")

		got, err := LocateRSDP(NewHandler(f))
		if err != nil {
			t.Fatal(err)
		}

		if got != rsdpAddr {
			t.Fatalf("expected RSDP at 0x%x; got 0x%x", rsdpAddr, got)
		}

		if live := f.liveMappings(); live != 0 {
			t.Fatalf("expected no live mappings; got %d", live)
		}
	})

	t.Run("missing", func(t *testing.T) {
		f := newFakeMapper(arenaBase, arenaSize)

		if _, err := LocateRSDP(NewHandler(f)); err != errMissingRSDP {
			t.Fatalf("expected to get errMissingRSDP; got %v", err)
		}
	})

	t.Run("map error", func(t *testing.T) {
		f := newFakeMapper(arenaBase, arenaSize)
		f.mapErr = &kernel.Error{Module: "test", Message: "out of pages"}

		if _, err := LocateRSDP(NewHandler(f)); err != f.mapErr {
			t.Fatalf("expected to get mapping error; got %v", err)
		}
	})
}

func TestLoadTables(t *testing.T) {
	specs := []struct {
		name        string
		revision    uint8
		expRootSig  string
		expHandles  []string
		expDSDTAddr uintptr
	}{
		{"ACPI 1.0 with RSDT", acpiRev1, table.SignatureRSDT, []string{"FACP", "DSDT", "SSDT", "MCFG"}, dsdtAddr},
		{"ACPI 2.0+ with XSDT", acpiRev2Plus, table.SignatureXSDT, []string{"FACP", "DSDT", "SSDT", "MCFG"}, dsdtAddr},
	}

	for _, spec := range specs {
		t.Run(spec.name, func(t *testing.T) {
			f := newTestFirmware(spec.revision)

			var buf bytes.Buffer
			tables, err := LoadTables(NewHandler(f), rsdpAddr, &buf)
			if err != nil {
				t.Fatal(err)
			}

			if tables.Revision != spec.revision {
				t.Errorf("expected revision %d; got %d", spec.revision, tables.Revision)
			}

			handles := tables.Handles()
			if len(handles) != len(spec.expHandles) {
				t.Fatalf("expected %d tables; got %d", len(spec.expHandles), len(handles))
			}

			for i, handle := range handles {
				if handle.Signature != spec.expHandles[i] {
					t.Errorf("expected table %d to be %s; got %s", i, spec.expHandles[i], handle.Signature)
				}
			}

			if tables.DSDT == nil || tables.DSDT.PhysAddr != spec.expDSDTAddr {
				t.Fatalf("expected DSDT at 0x%x; got %+v", spec.expDSDTAddr, tables.DSDT)
			}

			if tables.DSDT.Revision != 2 || tables.DSDT.Length != uint32(int(sizeofSDTHeader)+len(testDSDT)) {
				t.Errorf("unexpected DSDT handle: %+v", *tables.DSDT)
			}

			if len(tables.SSDTs) != 1 || tables.SSDTs[0].PhysAddr != ssdtAddr {
				t.Errorf("expected one SSDT at 0x%x; got %+v", ssdtAddr, tables.SSDTs)
			}

			if tables.MCFG == nil || tables.MCFG.PhysAddr != mcfgAddr {
				t.Errorf("expected MCFG at 0x%x; got %+v", mcfgAddr, tables.MCFG)
			}

			if handle, ok := tables.Lookup("FACP"); !ok || handle.PhysAddr != fadtAddr {
				t.Errorf("expected lookup of FACP to return the table at 0x%x; got %+v", fadtAddr, handle)
			}

			if _, ok := tables.Lookup("APIC"); ok {
				t.Error("expected APIC table with invalid checksum to be skipped")
			}

			out := buf.String()
			if !strings.Contains(out, "APIC at 0x0000000000105000") || !strings.Contains(out, "checksum mismatch") {
				t.Errorf("expected checksum mismatch for APIC to be reported; got:\n%s", out)
			}

			if !strings.Contains(out, "DSDT at 0x0000000000102000") {
				t.Errorf("expected DSDT to be listed; got:\n%s", out)
			}

			if live := f.liveMappings(); live != 0 {
				t.Fatalf("expected no live mappings; got %d", live)
			}
		})
	}

	t.Run("errors", func(t *testing.T) {
		mapErr := &kernel.Error{Module: "test", Message: "out of pages"}

		specs := []struct {
			name   string
			setup  func(f *fakeMapper)
			expErr *kernel.Error
		}{
			{
				"bad RSDP signature",
				func(f *fakeMapper) { f.at(rsdpAddr)[0] = 'X' },
				errInvalidRSDP,
			},
			{
				"bad extended RSDP checksum",
				func(f *fakeMapper) { f.at(rsdpAddr)[32]++ },
				errInvalidRSDP,
			},
			{
				"bad root table checksum",
				func(f *fakeMapper) { f.at(xsdtAddr)[9]++ },
				errInvalidRootTable,
			},
			{
				"root table signature mismatch",
				func(f *fakeMapper) {
					f.writeTable(xsdtAddr, table.SignatureRSDT, 1, rootTablePayload(8, fadtAddr))
				},
				errInvalidRootTable,
			},
			{
				"RSDP map error",
				func(f *fakeMapper) { f.mapErr, f.failAt = mapErr, 1 },
				mapErr,
			},
			{
				"table map error",
				func(f *fakeMapper) { f.mapErr, f.failAt = mapErr, 4 },
				mapErr,
			},
		}

		for _, spec := range specs {
			t.Run(spec.name, func(t *testing.T) {
				f := newTestFirmware(acpiRev2Plus)
				spec.setup(f)

				var buf bytes.Buffer
				if _, err := LoadTables(NewHandler(f), rsdpAddr, &buf); err != spec.expErr {
					t.Fatalf("expected to get error %v; got %v", spec.expErr, err)
				}

				if live := f.liveMappings(); live != 0 {
					t.Fatalf("expected no live mappings; got %d", live)
				}
			})
		}
	})

	t.Run("FADT without DSDT", func(t *testing.T) {
		f := newTestFirmware(acpiRev2Plus)
		f.writeTable(fadtAddr, table.SignatureFADT, 4, fadtPayload(0, 0))

		var buf bytes.Buffer
		tables, err := LoadTables(NewHandler(f), rsdpAddr, &buf)
		if err != nil {
			t.Fatal(err)
		}

		if tables.DSDT != nil {
			t.Fatalf("expected no DSDT; got %+v", tables.DSDT)
		}
	})
}

func TestPCIConfigRegions(t *testing.T) {
	f := newTestFirmware(acpiRev2Plus)
	h := NewHandler(f)

	var buf bytes.Buffer
	tables, err := LoadTables(h, rsdpAddr, &buf)
	if err != nil {
		t.Fatal(err)
	}

	regions, err := PCIConfigRegions(h, tables)
	if err != nil {
		t.Fatal(err)
	}

	if len(regions) != 2 {
		t.Fatalf("expected 2 config regions; got %d", len(regions))
	}

	if r := regions[0]; r.BaseAddr != 0xb000_0000 || r.Segment != 0 || r.StartBus != 0 || r.EndBus != 0xff {
		t.Errorf("unexpected first region: %+v", r)
	}

	if r := regions[1]; r.BaseAddr != 0xd000_0000 || r.Segment != 1 || r.StartBus != 0x10 || r.EndBus != 0x1f {
		t.Errorf("unexpected second region: %+v", r)
	}

	if live := f.liveMappings(); live != 0 {
		t.Fatalf("expected no live mappings; got %d", live)
	}

	t.Run("missing MCFG", func(t *testing.T) {
		if _, err := PCIConfigRegions(h, &Tables{}); err != ErrNoPCIConfigRegions {
			t.Fatalf("expected to get ErrNoPCIConfigRegions; got %v", err)
		}
	})

	t.Run("MCFG without valid entries", func(t *testing.T) {
		f.writeTable(mcfgAddr, table.SignatureMCFG, 1, mcfgPayload(
			mcfgEntry{base: 0xc000_0000, startBus: 2, endBus: 1},
		))

		handle := TableHandle{Signature: table.SignatureMCFG, PhysAddr: mcfgAddr, Length: uint32(int(sizeofMCFG) + 16)}
		if _, err := PCIConfigRegions(h, &Tables{MCFG: &handle}); err != ErrNoPCIConfigRegions {
			t.Fatalf("expected to get ErrNoPCIConfigRegions; got %v", err)
		}
	})
}

func TestCenturyRegister(t *testing.T) {
	f := newTestFirmware(acpiRev2Plus)
	h := NewHandler(f)

	// Keep the FADT checksum valid
	f.at(fadtAddr)[108] = 0x32
	f.at(fadtAddr)[9] -= 0x32

	var buf bytes.Buffer
	tables, err := LoadTables(h, rsdpAddr, &buf)
	if err != nil {
		t.Fatal(err)
	}

	if got := CenturyRegister(h, tables); got != 0x32 {
		t.Fatalf("expected century register to be 0x32; got 0x%x", got)
	}

	if got := CenturyRegister(h, &Tables{}); got != 0 {
		t.Fatalf("expected century register to be 0 without a FADT; got 0x%x", got)
	}

	if live := f.liveMappings(); live != 0 {
		t.Fatalf("expected no live mappings; got %d", live)
	}
}
