package pci

const (
	maxDevices   = 32
	maxFunctions = 8

	// hostBridgeBuses is the number of buses probed when the host bridge
	// at 0000:00:00.0 implements multiple functions; each function is the
	// host controller for one bus.
	hostBridgeBuses = 8
)

// Inventory indexes the discovered devices by their address.
type Inventory map[Address]*Device

// Enumerate walks the PCI hierarchy of segment 0 and returns the recognized
// devices in the order they were visited along with an Inventory of them.
// Buses are scanned in ascending device and function order and the bus
// behind each PCI-to-PCI bridge is scanned when the bridge is found.
func Enumerate(access ConfigAccess) ([]*Device, Inventory) {
	s := scanner{
		access:    access,
		inventory: make(Inventory),
	}

	if host := NewHeader(access, NewAddress(0, 0, 0, 0)); host.Present() && host.HasMultipleFunctions() {
		for bus := 0; bus < hostBridgeBuses; bus++ {
			s.scanBus(uint8(bus))
		}
	} else {
		s.scanBus(0)
	}

	return s.devices, s.inventory
}

type scanner struct {
	access    ConfigAccess
	scanned   [256]bool
	devices   []*Device
	inventory Inventory
}

func (s *scanner) scanBus(bus uint8) {
	if s.scanned[bus] {
		return
	}
	s.scanned[bus] = true

	for dev := uint8(0); dev < maxDevices; dev++ {
		header := NewHeader(s.access, NewAddress(0, bus, dev, 0))
		if !header.Present() {
			continue
		}

		s.scanFunction(header)

		if !header.HasMultipleFunctions() {
			continue
		}

		for fn := uint8(1); fn < maxFunctions; fn++ {
			if header := NewHeader(s.access, NewAddress(0, bus, dev, fn)); header.Present() {
				s.scanFunction(header)
			}
		}
	}
}

func (s *scanner) scanFunction(header Header) {
	vendor, device := header.ID()
	revision, class, subclass, progIF := header.RevisionAndClass()

	typ := DeviceTypeFor(class, subclass)
	if typ == DeviceTypeUnknown {
		return
	}

	dev := &Device{
		Address:  header.Address(),
		VendorID: vendor,
		DeviceID: device,
		Class:    class,
		Subclass: subclass,
		ProgIF:   progIF,
		Revision: revision,
		Type:     typ,
	}
	s.devices = append(s.devices, dev)
	s.inventory[dev.Address] = dev

	if typ == DeviceTypePCIPCIBridge {
		s.scanBus(BridgeHeader{header}.SecondaryBus())
	}
}
