package rtc

import (
	"bytes"
	"kestrel/device/acpi"
	"testing"
)

// fakeCMOS emulates the CMOS index/data port pair.
type fakeCMOS struct {
	regs     [128]uint8
	index    uint8
	reads    [128]int
	updating int

	// tick advances the seconds register on every read when set.
	tick bool
}

func (c *fakeCMOS) install() func() {
	origWrite, origRead := portWriteByteFn, portReadByteFn

	portWriteByteFn = func(port uint16, v uint8) {
		if port == cmosAddressPort {
			c.index = v & 0x7f
		}
	}
	portReadByteFn = func(port uint16) uint8 {
		if port != cmosDataPort {
			return 0xff
		}

		c.reads[c.index]++
		switch {
		case c.index == regStatusA && c.updating > 0:
			c.updating--
			return statusAUpdateInProgress
		case c.index == regSeconds && c.tick:
			c.regs[regSeconds]++
		}
		return c.regs[c.index]
	}

	return func() {
		portWriteByteFn, portReadByteFn = origWrite, origRead
	}
}

func TestRead(t *testing.T) {
	specs := []struct {
		name       string
		regs       map[uint8]uint8
		centuryReg uint8
		exp        Time
	}{
		{
			"BCD 24h",
			map[uint8]uint8{regSeconds: 0x56, regMinutes: 0x34, regHours: 0x12, regDay: 0x14, regMonth: 0x10, regYear: 0x26, regStatusB: statusB24Hour},
			0,
			Time{2026, 10, 14, 12, 34, 56},
		},
		{
			"BCD 12h PM",
			map[uint8]uint8{regSeconds: 0x00, regMinutes: 0x05, regHours: hourPMBit | 0x01, regDay: 0x01, regMonth: 0x02, regYear: 0x24},
			0,
			Time{2024, 2, 1, 13, 5, 0},
		},
		{
			"BCD 12h midnight",
			map[uint8]uint8{regHours: 0x12, regDay: 0x31, regMonth: 0x12, regYear: 0x23},
			0,
			Time{2023, 12, 31, 0, 0, 0},
		},
		{
			"BCD 12h noon",
			map[uint8]uint8{regHours: hourPMBit | 0x12, regDay: 0x01, regMonth: 0x01, regYear: 0x25},
			0,
			Time{2025, 1, 1, 12, 0, 0},
		},
		{
			"binary 24h",
			map[uint8]uint8{regSeconds: 59, regMinutes: 59, regHours: 23, regDay: 28, regMonth: 2, regYear: 30, regStatusB: statusB24Hour | statusBBinary},
			0,
			Time{2030, 2, 28, 23, 59, 59},
		},
		{
			"century register",
			map[uint8]uint8{regDay: 0x31, regMonth: 0x12, regYear: 0x99, regStatusB: statusB24Hour, 0x32: 0x19},
			0x32,
			Time{1999, 12, 31, 0, 0, 0},
		},
	}

	for _, spec := range specs {
		t.Run(spec.name, func(t *testing.T) {
			cmos := &fakeCMOS{updating: 3}
			for reg, v := range spec.regs {
				cmos.regs[reg] = v
			}
			defer cmos.install()()

			drv := Probe(&acpi.Device{Path: `\_SB_.PCI0.RTC_`, HID: "PNP0B00"}, spec.centuryReg)
			got, err := drv.Read()
			if err != nil {
				t.Fatal(err)
			}

			if got != spec.exp {
				t.Fatalf("expected time %s; got %s", spec.exp.String(), got.String())
			}

			if cmos.updating != 0 {
				t.Fatal("expected Read to wait for the pending update to complete")
			}
		})
	}
}

func TestReadUnstableClock(t *testing.T) {
	cmos := &fakeCMOS{tick: true}
	defer cmos.install()()

	drv := Probe(&acpi.Device{HID: "PNP0B00"}, 0)
	if _, err := drv.Read(); err != errUnstableClock {
		t.Fatalf("expected to get errUnstableClock; got %v", err)
	}

	if exp := maxReadAttempts + 1; cmos.reads[regSeconds] != exp {
		t.Fatalf("expected clock to be sampled %d times; got %d", exp, cmos.reads[regSeconds])
	}
}

func TestDriverInit(t *testing.T) {
	cmos := &fakeCMOS{}
	cmos.regs[regSeconds], cmos.regs[regMinutes], cmos.regs[regHours] = 0x07, 0x08, 0x09
	cmos.regs[regDay], cmos.regs[regMonth], cmos.regs[regYear] = 0x14, 0x10, 0x26
	cmos.regs[regStatusB] = statusB24Hour
	defer cmos.install()()

	drv := Probe(&acpi.Device{Path: `\_SB_.PCI0.RTC_`, HID: "PNP0B00"}, 0)

	var buf bytes.Buffer
	if err := drv.DriverInit(&buf); err != nil {
		t.Fatal(err)
	}

	if exp := "\\_SB_.PCI0.RTC_: current time 2026-10-14 09:08:07\n"; buf.String() != exp {
		t.Fatalf("expected output %q; got %q", exp, buf.String())
	}

	if got := drv.BootTime(); got != (Time{2026, 10, 14, 9, 8, 7}) {
		t.Fatalf("unexpected boot time %s", got.String())
	}

	if drv.DriverName() != "RTC" {
		t.Fatalf("unexpected driver name %q", drv.DriverName())
	}
}

func TestProbe(t *testing.T) {
	specs := []struct {
		hid string
		exp bool
	}{
		{"PNP0B00", true},
		{"PNP0B01", true},
		{"PNP0B02", true},
		{"PNP0A03", false},
		{"ACPI0001", false},
	}

	for _, spec := range specs {
		if got := Probe(&acpi.Device{HID: spec.hid}, 0) != nil; got != spec.exp {
			t.Errorf("expected Probe for %s to return a driver: %t; got %t", spec.hid, spec.exp, got)
		}
	}
}

func TestTimeString(t *testing.T) {
	if got := (Time{Year: 987, Month: 1, Day: 2, Hour: 3, Minute: 4, Second: 5}).String(); got != "0987-01-02 03:04:05" {
		t.Fatalf("unexpected time format %q", got)
	}
}
