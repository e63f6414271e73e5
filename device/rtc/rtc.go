// Package rtc provides a driver for the CMOS real-time clock.
package rtc

import (
	"io"
	"kestrel/device/acpi"
	"kestrel/kernel"
	"kestrel/kernel/cpu"
	"kestrel/kernel/kfmt"
)

const (
	cmosAddressPort = 0x70
	cmosDataPort    = 0x71

	regSeconds = 0x00
	regMinutes = 0x02
	regHours   = 0x04
	regDay     = 0x07
	regMonth   = 0x08
	regYear    = 0x09
	regStatusA = 0x0a
	regStatusB = 0x0b

	statusAUpdateInProgress = 1 << 7
	statusB24Hour           = 1 << 1
	statusBBinary           = 1 << 2
	hourPMBit               = 1 << 7

	// maxReadAttempts bounds the number of times the clock is sampled
	// while waiting for two identical consecutive readings.
	maxReadAttempts = 16
	maxUpdateWait   = 1 << 16
)

var (
	portWriteByteFn = cpu.PortWriteByte
	portReadByteFn  = cpu.PortReadByte

	errUnstableClock = &kernel.Error{Module: "rtc", Message: "clock did not settle while reading"}

	hardwareIDs = []string{"PNP0B00", "PNP0B01", "PNP0B02"}
)

// Time is a wall-clock reading of the RTC.
type Time struct {
	Year   uint16
	Month  uint8
	Day    uint8
	Hour   uint8
	Minute uint8
	Second uint8
}

// String formats t as "YYYY-MM-DD hh:mm:ss".
func (t Time) String() string {
	buf := make([]byte, 0, 19)
	buf = appendDigits(buf, uint(t.Year), 4)
	buf = append(buf, '-')
	buf = appendDigits(buf, uint(t.Month), 2)
	buf = append(buf, '-')
	buf = appendDigits(buf, uint(t.Day), 2)
	buf = append(buf, ' ')
	buf = appendDigits(buf, uint(t.Hour), 2)
	buf = append(buf, ':')
	buf = appendDigits(buf, uint(t.Minute), 2)
	buf = append(buf, ':')
	buf = appendDigits(buf, uint(t.Second), 2)
	return string(buf)
}

func appendDigits(buf []byte, v uint, width int) []byte {
	start := len(buf)
	for i := 0; i < width; i++ {
		buf = append(buf, '0')
	}
	for i := len(buf) - 1; i >= start && v > 0; i, v = i-1, v/10 {
		buf[i] = byte('0' + v%10)
	}
	return buf
}

// Driver reads the wall-clock time from the CMOS RTC.
type Driver struct {
	dev *acpi.Device

	// centuryReg is the CMOS register holding the century or 0 if the
	// firmware did not report one.
	centuryReg uint8

	bootTime Time
}

// Matches returns true if hid identifies a CMOS compatible RTC.
func Matches(hid string) bool {
	for _, id := range hardwareIDs {
		if hid == id {
			return true
		}
	}
	return false
}

// Probe returns a driver for dev or nil if dev is not an RTC. centuryReg is
// the CMOS century register reported by the FADT (0 if not available).
func Probe(dev *acpi.Device, centuryReg uint8) *Driver {
	if !Matches(dev.HID) {
		return nil
	}

	return &Driver{dev: dev, centuryReg: centuryReg}
}

// DriverName returns the name of this driver.
func (*Driver) DriverName() string {
	return "RTC"
}

// DriverVersion returns the version of this driver.
func (*Driver) DriverVersion() (uint16, uint16, uint16) {
	return 0, 0, 1
}

// DriverInit reads the current time from the clock.
func (drv *Driver) DriverInit(w io.Writer) *kernel.Error {
	t, err := drv.Read()
	if err != nil {
		return err
	}

	drv.bootTime = t
	kfmt.Fprintf(w, "%s: current time %s\n", drv.dev.Path, t.String())
	return nil
}

// BootTime returns the time read by DriverInit.
func (drv *Driver) BootTime() Time {
	return drv.bootTime
}

// Read samples the clock until two consecutive readings match and returns
// the decoded time.
func (drv *Driver) Read() (Time, *kernel.Error) {
	var (
		prev, cur [7]uint8
		status    = readRegister(regStatusB)
	)

	prev = drv.sample()
	for attempt := 0; attempt < maxReadAttempts; attempt++ {
		if cur = drv.sample(); cur == prev {
			return decode(cur, status), nil
		}
		prev = cur
	}

	return Time{}, errUnstableClock
}

// sample returns the raw second, minute, hour, day, month, year and
// century registers once no update is in progress.
func (drv *Driver) sample() [7]uint8 {
	for wait := 0; wait < maxUpdateWait; wait++ {
		if readRegister(regStatusA)&statusAUpdateInProgress == 0 {
			break
		}
	}

	raw := [7]uint8{
		readRegister(regSeconds),
		readRegister(regMinutes),
		readRegister(regHours),
		readRegister(regDay),
		readRegister(regMonth),
		readRegister(regYear),
	}

	if drv.centuryReg != 0 {
		raw[6] = readRegister(drv.centuryReg)
	}

	return raw
}

func decode(raw [7]uint8, status uint8) Time {
	pm := raw[2]&hourPMBit != 0
	raw[2] &^= hourPMBit

	if status&statusBBinary == 0 {
		for i := range raw {
			raw[i] = fromBCD(raw[i])
		}
	}

	hour := raw[2]
	if status&statusB24Hour == 0 {
		switch {
		case pm && hour != 12:
			hour += 12
		case !pm && hour == 12:
			hour = 0
		}
	}

	century := uint16(20)
	if raw[6] != 0 {
		century = uint16(raw[6])
	}

	return Time{
		Year:   century*100 + uint16(raw[5]),
		Month:  raw[4],
		Day:    raw[3],
		Hour:   hour,
		Minute: raw[1],
		Second: raw[0],
	}
}

func fromBCD(v uint8) uint8 {
	return (v>>4)*10 + v&0x0f
}

func readRegister(reg uint8) uint8 {
	portWriteByteFn(cmosAddressPort, reg)
	return portReadByteFn(cmosDataPort)
}
