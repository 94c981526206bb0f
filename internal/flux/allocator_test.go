package flux

import (
	"testing"

	"github.com/hydranexus/hn4/hal"
	"github.com/hydranexus/hn4/internal/armor"
	"github.com/hydranexus/hn4/internal/hnerr"
	"github.com/hydranexus/hn4/internal/qmask"
)

func newTestAllocator(total uint64) (*Allocator, *armor.VoidBitmap, *qmask.Mask) {
	void := armor.NewVoidBitmap(total, 0, nil)
	qm := qmask.New(total)
	horizon := NewHorizon(total-8, total, 4096, hal.ProfileSSD, void, nil)
	a := NewAllocator(0, total-8, total, hal.ProfileSSD, void, qm, horizon, nil)
	return a, void, qm
}

func TestGenesisReturnsValidParams(t *testing.T) {
	a, _, _ := newTestAllocator(4096)
	dev := hal.NewSimDevice(1<<20, 4096, hal.ProfileSSD, 0)
	p, code := a.Genesis(dev, qmask.IntentUserData)
	if code != hnerr.OK {
		t.Fatalf("Genesis: %v", code)
	}
	if p.M != 0 {
		t.Fatalf("Genesis should hand back fractal scale 0, got %d", p.M)
	}
}

func TestGenesisRedirectsWhenSaturated(t *testing.T) {
	a, _, _ := newTestAllocator(100)
	a.usedBlocks = 95 // 95% of 100, above the 90% Genesis threshold
	dev := hal.NewSimDevice(1<<20, 4096, hal.ProfileSSD, 0)
	_, code := a.Genesis(dev, qmask.IntentUserData)
	if code != hnerr.InfoHorizonFallback {
		t.Fatalf("expected InfoHorizonFallback redirect, got %v", code)
	}
	if !a.IsRuntimeSaturated() {
		t.Fatal("expected the Runtime-Saturated latch to be set")
	}
}

func TestBlockClaimsFirstFreeCandidate(t *testing.T) {
	a, _, _ := newTestAllocator(4096)
	p := Params{G: 42, V: 7, M: 0}
	lba, k, fallback, _, code := a.Block(p, 0, qmask.IntentUserData, false)
	if code.IsError() {
		t.Fatalf("Block: %v", code)
	}
	if fallback {
		t.Fatal("first allocation should not need the horizon fallback")
	}
	if k != 0 {
		t.Fatalf("expected k=0 to succeed on a fresh bitmap, got k=%d", k)
	}
	if a.UsedBlocks() != 1 {
		t.Fatalf("used_blocks = %d, want 1", a.UsedBlocks())
	}
	_ = lba
}

func TestBlockSkipsCollidingCandidate(t *testing.T) {
	a, void, _ := newTestAllocator(4096)
	p := Params{G: 42, V: 7, M: 0}

	lba0, _, _, _, code := a.Block(p, 0, qmask.IntentUserData, false)
	if code.IsError() {
		t.Fatal(code)
	}

	// Free the block directly via void so the allocator's next pass for
	// the same (p, n) must skip k=0 via an externally-forced collision.
	_, _ = void.Clear(lba0)
	if _, code := void.Set(lba0); code.IsError() {
		t.Fatal(code)
	}

	lba1, k1, _, _, code := a.Block(p, 0, qmask.IntentUserData, false)
	if code.IsError() {
		t.Fatalf("Block: %v", code)
	}
	if lba1 == lba0 {
		t.Fatal("expected a different candidate once k=0 collided")
	}
	if k1 == 0 {
		t.Fatal("expected k to advance past the colliding depth")
	}
}

func TestBlockToxicGradeNeverAdmitted(t *testing.T) {
	a, _, qm := newTestAllocator(4096)
	p := Params{G: 0, V: 1, M: 0}

	// Mark every candidate block for k=0..3 toxic so the allocator must
	// walk forward; simplest is to mark a broad low range toxic.
	for i := uint64(0); i < 64; i++ {
		qm.Set(i, qmask.Toxic)
	}
	lba, _, _, _, code := a.Block(p, 0, qmask.IntentUserData, false)
	if code.IsError() {
		t.Fatalf("Block: %v", code)
	}
	if lba < 64 {
		t.Fatalf("allocator landed on a toxic block %d", lba)
	}
}

func TestBlockGravityCollapseWhenFractalScalePositiveAndExhausted(t *testing.T) {
	a, void, _ := newTestAllocator(256)
	p := Params{G: 0, V: 1, M: 3} // S=8, Phi=(256-8... )/8 small window

	// Fill the entire D1 region at scale 0 so every M=3 candidate collides
	// too (clusters overlap the same underlying blocks).
	for i := uint64(0); i < a.availableD1Blocks; i++ {
		_, _ = void.Set(i)
	}
	_, _, _, _, code := a.Block(p, 0, qmask.IntentUserData, false)
	if code != hnerr.ErrGravityCollapse {
		t.Fatalf("expected ErrGravityCollapse, got %v", code)
	}
}

func TestFreeThenRollbackAdjustUsedBlocks(t *testing.T) {
	a, _, _ := newTestAllocator(4096)
	p := Params{G: 1, V: 1, M: 0}
	lba, _, _, _, code := a.Block(p, 0, qmask.IntentUserData, false)
	if code.IsError() {
		t.Fatal(code)
	}
	if a.UsedBlocks() != 1 {
		t.Fatalf("used_blocks = %d, want 1", a.UsedBlocks())
	}
	changed, code := a.Free(lba)
	if code.IsError() || !changed {
		t.Fatalf("Free: changed=%v code=%v", changed, code)
	}
	if a.UsedBlocks() != 0 {
		t.Fatalf("used_blocks after Free = %d, want 0", a.UsedBlocks())
	}

	lba2, _, _, _, code := a.Block(p, 0, qmask.IntentUserData, false)
	if code.IsError() {
		t.Fatal(code)
	}
	changed, code = a.Rollback(lba2)
	if code.IsError() || !changed {
		t.Fatalf("Rollback: changed=%v code=%v", changed, code)
	}
	if a.UsedBlocks() != 0 {
		t.Fatalf("used_blocks after Rollback = %d, want 0", a.UsedBlocks())
	}
}

func TestDoubleFreeDoesNotUnderflowUsedBlocks(t *testing.T) {
	a, _, _ := newTestAllocator(4096)
	changed, code := a.Free(10)
	if code.IsError() || changed {
		t.Fatalf("expected a no-op clear on an already-free block, got changed=%v code=%v", changed, code)
	}
	if a.UsedBlocks() != 0 {
		t.Fatalf("used_blocks must saturate at 0, got %d", a.UsedBlocks())
	}
}
