package sb

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/hydranexus/hn4/hal"
)

func newDev(sizeBytes uint64, profile hal.Profile, flags hal.DeviceFlag) *hal.SimDevice {
	return hal.NewSimDevice(sizeBytes, 4096, profile, flags)
}

func TestWriteQuorumThenReadQuorumAgree(t *testing.T) {
	dev := newDev(64<<20, hal.ProfileSSD, 0)
	off := ComputeOffsets(dev.Caps())
	ctx := context.Background()

	s := &Superblock{Version: 1, BlockSize: 4096, CopyGeneration: 1, VolumeUUID: uuid.New()}
	if code := WriteQuorum(ctx, dev, s, off); code.IsError() {
		t.Fatalf("WriteQuorum: %v", code)
	}

	got, from, healed, code := ReadQuorum(ctx, dev, off)
	if code.IsError() {
		t.Fatalf("ReadQuorum: %v", code)
	}
	if from != North {
		t.Fatalf("expected winner North, got %v", from)
	}
	if healed {
		t.Fatal("no self-heal should be needed when North already wins")
	}
	if got.CopyGeneration != 1 {
		t.Fatalf("CopyGeneration = %d, want 1", got.CopyGeneration)
	}
}

// Reproduces the split-brain scenario: North is stale (generation 10) while
// East carries the newer generation 11. Mount must pick East's record and
// self-heal North to match it.
func TestReadQuorumPicksHighestGenerationAndHealsNorth(t *testing.T) {
	dev := newDev(64<<20, hal.ProfileSSD, 0)
	off := ComputeOffsets(dev.Caps())
	ctx := context.Background()

	stale := &Superblock{Version: 1, BlockSize: 4096, CopyGeneration: 10, VolumeUUID: uuid.New()}
	fresh := &Superblock{Version: 1, BlockSize: 4096, CopyGeneration: 11, VolumeUUID: stale.VolumeUUID}

	if !writeReplica(ctx, dev, off.LBA[North], stale.ToBytes()) {
		t.Fatal("seed write to North failed")
	}
	if !writeReplica(ctx, dev, off.LBA[East], fresh.ToBytes()) {
		t.Fatal("seed write to East failed")
	}

	got, from, healed, code := ReadQuorum(ctx, dev, off)
	if code.IsError() {
		t.Fatalf("ReadQuorum: %v", code)
	}
	if from != East {
		t.Fatalf("expected winner East, got %v", from)
	}
	if got.CopyGeneration != 11 {
		t.Fatalf("CopyGeneration = %d, want 11", got.CopyGeneration)
	}
	if !healed {
		t.Fatal("expected North to be self-healed")
	}

	raw, ok := readReplica(ctx, dev, off.LBA[North])
	if !ok {
		t.Fatal("could not read back North after heal")
	}
	healedSB, err := FromBytes(raw)
	if err != nil {
		t.Fatalf("North record invalid after heal: %v", err)
	}
	if healedSB.CopyGeneration != 11 {
		t.Fatalf("North generation after heal = %d, want 11", healedSB.CopyGeneration)
	}
}

func TestZNSDeviceOnlyWritesNorth(t *testing.T) {
	dev := newDev(64<<20, hal.ProfileZNS, hal.FlagZNSNative)
	off := ComputeOffsets(dev.Caps())
	ctx := context.Background()

	s := &Superblock{Version: 1, BlockSize: 4096, CopyGeneration: 1, VolumeUUID: uuid.New()}
	if code := WriteQuorum(ctx, dev, s, off); code.IsError() {
		t.Fatalf("WriteQuorum: %v", code)
	}

	if raw, ok := readReplica(ctx, dev, off.LBA[East]); ok {
		if _, err := FromBytes(raw); err == nil {
			t.Fatal("East replica should not have been written on a ZNS-native device")
		}
	}
}

func TestWriteQuorumSucceedsWithoutNorthIfAllMirrorsOK(t *testing.T) {
	dev := newDev(64<<20, hal.ProfileSSD, 0)
	off := ComputeOffsets(dev.Caps())
	ctx := context.Background()

	s := &Superblock{Version: 1, BlockSize: 4096, CopyGeneration: 1, VolumeUUID: uuid.New()}

	// WriteQuorum writes North first, so failing the device's very first
	// op makes North's write the only one that fails.
	dev.FailNextOp()
	code := WriteQuorum(ctx, dev, s, off)
	if code.IsError() {
		t.Fatalf("expected quorum via mirrors alone to succeed, got %v", code)
	}
}
