package aml

import "testing"

func TestEISAIDToString(t *testing.T) {
	specs := []struct {
		id  uint32
		exp string
	}{
		{0x0303D041, "PNP0303"},
		{0x030AD041, "PNP0A03"},
		{0x000BD041, "PNP0B00"},
		{0x0501D041, "PNP0105"},
		{0x080AD041, "PNP0A08"},
		{0x0C0CD041, "PNP0C0C"},
		{0x0100D831, "LNX0001"},
	}

	for _, spec := range specs {
		if got := EISAIDToString(spec.id); got != spec.exp {
			t.Errorf("expected EISA ID 0x%08x to decode to %q; got %q", spec.id, spec.exp, got)
		}
	}
}
