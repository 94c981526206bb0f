package volume

import (
	"context"
	"testing"

	"github.com/sirupsen/logrus"

	"github.com/hydranexus/hn4/hal"
)

const testBlockSize = 4096

// testDevice allocates a SimDevice with enough blocks to exercise a real
// format: 4096 blocks comfortably clears minFormatBlocks and leaves room
// for a non-trivial D1 region.
func testDevice(t *testing.T) *hal.SimDevice {
	t.Helper()
	const totalBlocks = 4096
	return hal.NewSimDevice(totalBlocks*testBlockSize, testBlockSize, hal.ProfileSSD, 0)
}

func testLogger() *logrus.Logger {
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)
	return log
}

func TestMountFormatsFreshVolume(t *testing.T) {
	ctx := context.Background()
	dev := testDevice(t)

	v, code := Mount(ctx, dev, testBlockSize, false, testLogger())
	if code.IsError() {
		t.Fatalf("Mount: %v", code)
	}
	if v.ReadOnly() {
		t.Fatal("fresh format should not be read-only")
	}
	if v.BlockSize() != testBlockSize {
		t.Fatalf("BlockSize = %d, want %d", v.BlockSize(), testBlockSize)
	}
}

func TestMountReadOnlyWithNoExistingVolumeFails(t *testing.T) {
	ctx := context.Background()
	dev := testDevice(t)

	_, code := Mount(ctx, dev, testBlockSize, true, testLogger())
	if code.IsError() == false {
		t.Fatal("read-only mount of an unformatted device should fail rather than implicitly format")
	}
}

func TestMountThenUnmountThenRemountHydrates(t *testing.T) {
	ctx := context.Background()
	dev := testDevice(t)

	v1, code := Mount(ctx, dev, testBlockSize, false, testLogger())
	if code.IsError() {
		t.Fatalf("first Mount: %v", code)
	}
	if _, code := v1.Create("hello.txt", false); code.IsError() {
		t.Fatalf("Create: %v", code)
	}
	payload := []byte("ballistic placement")
	if code := v1.Write(ctx, "hello.txt", 0, payload); code.IsError() {
		t.Fatalf("Write: %v", code)
	}
	if code := v1.Unmount(ctx); code.IsError() {
		t.Fatalf("Unmount: %v", code)
	}

	v2, code := Mount(ctx, dev, testBlockSize, false, testLogger())
	if code.IsError() {
		t.Fatalf("second Mount: %v", code)
	}
	got, code := v2.Read(ctx, "hello.txt", 0)
	if code.IsError() {
		t.Fatalf("Read after remount: %v", code)
	}
	if string(got) != string(payload) {
		t.Fatalf("Read after remount = %q, want %q", got, payload)
	}
}

func TestMountMarksVolumeDirtyAfterMutation(t *testing.T) {
	ctx := context.Background()
	dev := testDevice(t)

	v1, code := Mount(ctx, dev, testBlockSize, false, testLogger())
	if code.IsError() {
		t.Fatalf("Mount: %v", code)
	}
	if _, code := v1.Create("a", false); code.IsError() {
		t.Fatalf("Create: %v", code)
	}
	if !v1.IsDirty() {
		t.Fatal("volume should be dirty after a mutation that never reached a clean unmount")
	}
	// No Unmount call: simulates a crash. The Dirty flag checked above is
	// the in-memory superblock's; the on-disk superblock is only rewritten
	// at Unmount, so a remount after this crash does not see Dirty.
}
