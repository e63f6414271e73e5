package mmtest

import "testing"

func TestMMURecursiveSlot(t *testing.T) {
	mem, err := NewPhysMem(8)
	if err != nil {
		t.Fatal(err)
	}
	defer mem.Close()

	mmu, err := NewMMU(mem, 511)
	if err != nil {
		t.Fatal(err)
	}

	// All four levels follow slot 511 back to the root table.
	phys, ok := mmu.Translate(^uintptr(0) &^ 0xfff)
	if !ok || phys != mmu.Root.Address() {
		t.Fatalf("expected recursive address to resolve to the root table at 0x%x; got 0x%x (%t)", mmu.Root.Address(), phys, ok)
	}

	if _, ok = mmu.Translate(0x1000); ok {
		t.Fatal("expected unmapped address not to translate")
	}

	if mem.Allocs != 1 {
		t.Fatalf("expected NewMMU to allocate a single frame; got %d", mem.Allocs)
	}
}

func TestPhysMemExhaustion(t *testing.T) {
	mem, err := NewPhysMem(2)
	if err != nil {
		t.Fatal(err)
	}
	defer mem.Close()

	for i := 0; i < 2; i++ {
		if _, err := mem.AllocFrame(); err != nil {
			t.Fatalf("[alloc %d] unexpected error: %v", i, err)
		}
	}

	if frame, err := mem.AllocFrame(); err != errOutOfFrames || frame.Valid() {
		t.Fatalf("expected (InvalidFrame, errOutOfFrames); got (%d, %v)", frame, err)
	}
}
