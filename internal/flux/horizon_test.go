package flux

import (
	"testing"

	"github.com/hydranexus/hn4/hal"
	"github.com/hydranexus/hn4/internal/armor"
	"github.com/hydranexus/hn4/internal/hnerr"
)

func TestHorizonRejectsNonBaseFractalScale(t *testing.T) {
	void := armor.NewVoidBitmap(64, 0, nil)
	h := NewHorizon(0, 64, 4096, hal.ProfileSSD, void, nil)
	if _, _, code := h.Alloc(1); code != hnerr.ErrGeometry {
		t.Fatalf("expected ErrGeometry for M>0, got %v", code)
	}
}

func TestHorizonAllocAdvancesAndWraps(t *testing.T) {
	void := armor.NewVoidBitmap(8, 0, nil)
	dirtyCalls := 0
	h := NewHorizon(0, 4, 4096, hal.ProfileSSD, void, func() { dirtyCalls++ })

	seen := map[uint64]bool{}
	for i := 0; i < 4; i++ {
		lba, wrapped, code := h.Alloc(0)
		if code.IsError() {
			t.Fatalf("Alloc %d: %v", i, code)
		}
		seen[lba] = true
		// The write head completes its first full lap on the 4th call
		// (head 3->4): that is the "crossing ring capacity" event.
		if i < 3 && wrapped {
			t.Fatalf("unexpected wrap on allocation %d", i)
		}
		if i == 3 && !wrapped {
			t.Fatal("expected the 4th allocation to cross the ring boundary")
		}
	}
	if len(seen) != 4 {
		t.Fatalf("expected 4 distinct horizon blocks, got %d", len(seen))
	}
	if dirtyCalls != 1 {
		t.Fatalf("expected exactly one Dirty call from completing the first lap, got %d", dirtyCalls)
	}

	// Free a slot and allocate again: the head is mid-lap, so this does
	// not cross the boundary again even though it reuses a freed slot.
	if _, code := void.Clear(0); code.IsError() {
		t.Fatal(code)
	}
	lba, wrapped, code := h.Alloc(0)
	if code.IsError() {
		t.Fatalf("Alloc after free: %v", code)
	}
	if wrapped {
		t.Fatal("mid-lap reuse of a freed slot should not re-cross the boundary")
	}
	if lba != 0 {
		t.Fatalf("expected reuse to land back on slot 0, got %d", lba)
	}
	if dirtyCalls != 1 {
		t.Fatalf("dirtyCalls changed on a non-crossing allocation: %d", dirtyCalls)
	}
}

func TestHorizonEnospcWhenRingFull(t *testing.T) {
	void := armor.NewVoidBitmap(4, 0, nil)
	h := NewHorizon(0, 2, 4096, hal.ProfileSSD, void, nil)

	for i := 0; i < 2; i++ {
		if _, _, code := h.Alloc(0); code.IsError() {
			t.Fatalf("seed alloc %d: %v", i, code)
		}
	}
	if _, _, code := h.Alloc(0); code != hnerr.ErrEnospc {
		t.Fatalf("expected ErrEnospc on a full 2-slot ring, got %v", code)
	}
}

func TestHorizonZeroCapacityIsGeometry(t *testing.T) {
	void := armor.NewVoidBitmap(4, 0, nil)
	h := NewHorizon(10, 10, 4096, hal.ProfileSSD, void, nil)
	if _, _, code := h.Alloc(0); code != hnerr.ErrGeometry {
		t.Fatalf("expected ErrGeometry for journalStart==horizonStart, got %v", code)
	}
}

func TestHorizonNeedsZoneResetOnlyOnZNSWrap(t *testing.T) {
	void := armor.NewVoidBitmap(4, 0, nil)
	h := NewHorizon(0, 2, 4096, hal.ProfileZNS, void, nil)
	if h.NeedsZoneReset(false) {
		t.Fatal("no reset needed without a wrap")
	}
	if !h.NeedsZoneReset(true) {
		t.Fatal("expected reset required on a ZNS wrap")
	}

	hSSD := NewHorizon(0, 2, 4096, hal.ProfileSSD, void, nil)
	if hSSD.NeedsZoneReset(true) {
		t.Fatal("non-ZNS devices never need a zone reset")
	}
}
