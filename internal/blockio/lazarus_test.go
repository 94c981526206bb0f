package blockio

import (
	"context"
	"testing"

	"github.com/hydranexus/hn4/internal/flux"
	"github.com/hydranexus/hn4/internal/hnerr"
	"github.com/hydranexus/hn4/internal/qmask"
)

func TestPulseCheckPassesForIntactBlock(t *testing.T) {
	dev, void, alloc := fixture(t)
	ctx := context.Background()
	wellID := [16]byte{7}
	p := flux.Params{G: 2, V: 3, M: 0}

	lba, code := AtomicWrite(ctx, dev, alloc, testBlockSize, p, qmask.IntentUserData, false, wellID, 0, 1, []byte("undelete me"), 0, false, okCommit)
	if code.IsError() {
		t.Fatal(code)
	}
	if code := PulseCheck(ctx, dev, void, testBlockSize, lba, wellID); code != hnerr.OK {
		t.Fatalf("PulseCheck: %v", code)
	}
}

func TestPulseCheckFailsIfBlockReclaimed(t *testing.T) {
	dev, void, alloc := fixture(t)
	ctx := context.Background()
	wellID := [16]byte{7}
	p := flux.Params{G: 2, V: 3, M: 0}

	lba, code := AtomicWrite(ctx, dev, alloc, testBlockSize, p, qmask.IntentUserData, false, wellID, 0, 1, []byte("x"), 0, false, okCommit)
	if code.IsError() {
		t.Fatal(code)
	}
	if _, code := alloc.Rollback(lba); code.IsError() {
		t.Fatal(code)
	}

	if code := PulseCheck(ctx, dev, void, testBlockSize, lba, wellID); code != hnerr.ErrDataRot {
		t.Fatalf("expected ErrDataRot once the bitmap bit is cleared, got %v", code)
	}
}

func TestPulseCheckFailsOnWellIDMismatch(t *testing.T) {
	dev, void, alloc := fixture(t)
	ctx := context.Background()
	wellID := [16]byte{7}
	otherID := [16]byte{8}
	p := flux.Params{G: 2, V: 3, M: 0}

	lba, code := AtomicWrite(ctx, dev, alloc, testBlockSize, p, qmask.IntentUserData, false, wellID, 0, 1, []byte("x"), 0, false, okCommit)
	if code.IsError() {
		t.Fatal(code)
	}
	if code := PulseCheck(ctx, dev, void, testBlockSize, lba, otherID); code != hnerr.ErrIDMismatch {
		t.Fatalf("expected ErrIDMismatch, got %v", code)
	}
}

func TestPulseCheckFailsOnHeaderCorruption(t *testing.T) {
	dev, void, alloc := fixture(t)
	ctx := context.Background()
	wellID := [16]byte{7}
	p := flux.Params{G: 2, V: 3, M: 0}

	lba, code := AtomicWrite(ctx, dev, alloc, testBlockSize, p, qmask.IntentUserData, false, wellID, 0, 1, []byte("x"), 0, false, okCommit)
	if code.IsError() {
		t.Fatal(code)
	}
	block, code := readBlock(ctx, dev, lba, testBlockSize)
	if code.IsError() {
		t.Fatal(code)
	}
	block[5] ^= 0xFF
	if code := writeBlock(ctx, dev, lba, block); code.IsError() {
		t.Fatal(code)
	}
	if code := PulseCheck(ctx, dev, void, testBlockSize, lba, wellID); code != hnerr.ErrHeaderRot {
		t.Fatalf("expected ErrHeaderRot, got %v", code)
	}
}
