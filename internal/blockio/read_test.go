package blockio

import (
	"context"
	"testing"

	"github.com/hydranexus/hn4/hal"
	"github.com/hydranexus/hn4/internal/flux"
	"github.com/hydranexus/hn4/internal/hnerr"
)

const testAvailableD1 = 256 - 8

func plantBlock(t *testing.T, dev *hal.SimDevice, void interface {
	Set(uint64) (bool, hnerr.Code)
}, blockIdx uint64, wellID [16]byte, logicalIdx uint64, writeGen uint32, payload []byte) {
	t.Helper()
	block, code := BuildBlock(testBlockSize, wellID, logicalIdx, writeGen, payload)
	if code.IsError() {
		t.Fatalf("BuildBlock: %v", code)
	}
	if _, code := void.Set(blockIdx); code.IsError() {
		t.Fatalf("void.Set: %v", code)
	}
	if code := writeBlock(context.Background(), dev, blockIdx, block); code.IsError() {
		t.Fatalf("writeBlock: %v", code)
	}
}

func TestAtomicReadSparseWhenNeverWritten(t *testing.T) {
	dev, void, _ := fixture(t)
	wellID := [16]byte{1}
	p := flux.Params{G: 3, V: 5, M: 0}
	_, code := AtomicRead(context.Background(), dev, void, testBlockSize, p, testAvailableD1, 0, hal.ProfileSSD,
		wellID, 0, 0, false, nil)
	if code != hnerr.InfoSparse {
		t.Fatalf("expected InfoSparse, got %v", code)
	}
}

func TestAtomicReadNotFoundWhenEverWrittenButGone(t *testing.T) {
	dev, void, _ := fixture(t)
	wellID := [16]byte{1}
	p := flux.Params{G: 3, V: 5, M: 0}
	_, code := AtomicRead(context.Background(), dev, void, testBlockSize, p, testAvailableD1, 0, hal.ProfileSSD,
		wellID, 0, 0, true, nil)
	if code != hnerr.ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", code)
	}
}

func TestAtomicReadReportsDataRotOnVerifiedHeaderBadPayload(t *testing.T) {
	dev, void, _ := fixture(t)
	wellID := [16]byte{2}
	p := flux.Params{G: 0, V: 1, M: 0}

	lba, code := flux.Trajectory(p, testAvailableD1, 0, 0, 0, hal.ProfileSSD)
	if code.IsError() {
		t.Fatal(code)
	}
	plantBlock(t, dev, void, lba, wellID, 0, 1, []byte("intact"))

	// Corrupt the payload bytes on-device without touching the header.
	corrupt := make([]byte, testBlockSize)
	block, _ := readBlock(context.Background(), dev, lba, testBlockSize)
	copy(corrupt, block)
	corrupt[HeaderSize] ^= 0xFF
	if code := writeBlock(context.Background(), dev, lba, corrupt); code.IsError() {
		t.Fatal(code)
	}

	_, code = AtomicRead(context.Background(), dev, void, testBlockSize, p, testAvailableD1, 0, hal.ProfileSSD,
		wellID, 0, 0, true, nil)
	if code != hnerr.ErrDataRot {
		t.Fatalf("expected ErrDataRot, got %v", code)
	}
}

func TestAtomicReadSkipsStaleGenerationForFresherCandidate(t *testing.T) {
	dev, void, _ := fixture(t)
	wellID := [16]byte{3}
	p := flux.Params{G: 0, V: 1, M: 0}

	lba0, code := flux.Trajectory(p, testAvailableD1, 0, 0, 0, hal.ProfileSSD)
	if code.IsError() {
		t.Fatal(code)
	}
	lba1, code := flux.Trajectory(p, testAvailableD1, 0, 1, 0, hal.ProfileSSD)
	if code.IsError() {
		t.Fatal(code)
	}

	plantBlock(t, dev, void, lba0, wellID, 0, 1, []byte("stale copy"))
	plantBlock(t, dev, void, lba1, wellID, 0, 5, []byte("fresh copy"))

	got, code := AtomicRead(context.Background(), dev, void, testBlockSize, p, testAvailableD1, 0, hal.ProfileSSD,
		wellID, 0, 5, true, nil)
	if code.IsError() {
		t.Fatalf("AtomicRead: %v", code)
	}
	if string(got) != "fresh copy" {
		t.Fatalf("expected the fresher generation to win, got %q", got)
	}
}

func TestAtomicReadStaleOnlyReportsNotFound(t *testing.T) {
	dev, void, _ := fixture(t)
	wellID := [16]byte{3}
	p := flux.Params{G: 0, V: 1, M: 0}

	lba0, code := flux.Trajectory(p, testAvailableD1, 0, 0, 0, hal.ProfileSSD)
	if code.IsError() {
		t.Fatal(code)
	}
	plantBlock(t, dev, void, lba0, wellID, 0, 1, []byte("stale copy"))

	_, code = AtomicRead(context.Background(), dev, void, testBlockSize, p, testAvailableD1, 0, hal.ProfileSSD,
		wellID, 0, 5, true, nil)
	if code != hnerr.ErrNotFound {
		t.Fatalf("expected a stale-only match to report ErrNotFound, got %v", code)
	}
}

func TestAtomicReadHonorsExtraCandidates(t *testing.T) {
	dev, void, _ := fixture(t)
	wellID := [16]byte{4}
	p := flux.Params{G: 0, V: 1, M: 0}

	// Plant the real copy on a Horizon-style block far outside the normal
	// k=0..12 trajectory fan, reachable only via the extra-candidate hint.
	const horizonLBA = 250
	if _, code := void.Set(horizonLBA); code.IsError() {
		t.Fatal(code)
	}
	block, code := BuildBlock(testBlockSize, wellID, 0, 9, []byte("from the ring"))
	if code.IsError() {
		t.Fatal(code)
	}
	if code := writeBlock(context.Background(), dev, horizonLBA, block); code.IsError() {
		t.Fatal(code)
	}

	got, code := AtomicRead(context.Background(), dev, void, testBlockSize, p, testAvailableD1, 0, hal.ProfileSSD,
		wellID, 0, 0, true, []uint64{horizonLBA})
	if code.IsError() {
		t.Fatalf("AtomicRead: %v", code)
	}
	if string(got) != "from the ring" {
		t.Fatalf("got %q", got)
	}
}
