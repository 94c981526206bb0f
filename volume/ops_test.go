package volume

import (
	"bytes"
	"context"
	"testing"

	"github.com/hydranexus/hn4/internal/hnerr"
)

func mustMount(t *testing.T) (*Volume, context.Context) {
	t.Helper()
	ctx := context.Background()
	dev := testDevice(t)
	v, code := Mount(ctx, dev, testBlockSize, false, testLogger())
	if code.IsError() {
		t.Fatalf("Mount: %v", code)
	}
	return v, ctx
}

func TestWriteThenReadRoundTrips(t *testing.T) {
	v, ctx := mustMount(t)

	if _, code := v.Create("f1", false); code.IsError() {
		t.Fatalf("Create: %v", code)
	}
	payload := []byte("shadow-hop payload for f1")
	if code := v.Write(ctx, "f1", 0, payload); code.IsError() {
		t.Fatalf("Write: %v", code)
	}

	got, code := v.Read(ctx, "f1", 0)
	if code.IsError() {
		t.Fatalf("Read: %v", code)
	}
	if !bytes.Equal(got, payload) {
		t.Fatalf("Read = %q, want %q", got, payload)
	}
}

func TestWriteOverwriteMovesShadowAndReclaimsOldBlock(t *testing.T) {
	v, ctx := mustMount(t)

	if _, code := v.Create("f1", false); code.IsError() {
		t.Fatalf("Create: %v", code)
	}
	if code := v.Write(ctx, "f1", 0, []byte("v1")); code.IsError() {
		t.Fatalf("first Write: %v", code)
	}
	before := v.UsedBlocks()

	if code := v.Write(ctx, "f1", 0, []byte("v2, a little longer than v1")); code.IsError() {
		t.Fatalf("second Write: %v", code)
	}
	got, code := v.Read(ctx, "f1", 0)
	if code.IsError() {
		t.Fatalf("Read: %v", code)
	}
	if string(got) != "v2, a little longer than v1" {
		t.Fatalf("Read = %q", got)
	}
	// The shadow hop frees the old block on commit, so the net block
	// count does not grow across an overwrite of the same logical index.
	if v.UsedBlocks() != before {
		t.Fatalf("used_blocks after overwrite = %d, want %d", v.UsedBlocks(), before)
	}
}

func TestReadUnwrittenLogicalIndexIsSparse(t *testing.T) {
	v, ctx := mustMount(t)

	if _, code := v.Create("empty", false); code.IsError() {
		t.Fatalf("Create: %v", code)
	}
	_, code := v.Read(ctx, "empty", 0)
	if code != hnerr.InfoSparse {
		t.Fatalf("Read of never-written block = %v, want InfoSparse", code)
	}
}

func TestDeleteThenUndeleteRestoresSameSeedID(t *testing.T) {
	v, ctx := mustMount(t)

	created, code := v.Create("recoverable", false)
	if code.IsError() {
		t.Fatalf("Create: %v", code)
	}
	if code := v.Write(ctx, "recoverable", 0, []byte("payload")); code.IsError() {
		t.Fatalf("Write: %v", code)
	}
	if code := v.Delete("recoverable"); code.IsError() {
		t.Fatalf("Delete: %v", code)
	}
	if _, code := v.Lookup("recoverable"); code != hnerr.ErrNotFound {
		t.Fatalf("Lookup of tombstoned anchor = %v, want ErrNotFound", code)
	}

	restored, code := v.Undelete(ctx, "recoverable")
	if code.IsError() {
		t.Fatalf("Undelete: %v", code)
	}
	if restored.SeedID != created.SeedID {
		t.Fatalf("Undelete seed_id = %x, want %x", restored.SeedID, created.SeedID)
	}

	got, code := v.Read(ctx, "recoverable", 0)
	if code.IsError() {
		t.Fatalf("Read after undelete: %v", code)
	}
	if string(got) != "payload" {
		t.Fatalf("Read after undelete = %q", got)
	}
}

func TestUndeleteRefusesWhenPhysicalBlockReclaimed(t *testing.T) {
	v, ctx := mustMount(t)

	if _, code := v.Create("gone", false); code.IsError() {
		t.Fatalf("Create: %v", code)
	}
	if code := v.Write(ctx, "gone", 0, []byte("x")); code.IsError() {
		t.Fatalf("Write: %v", code)
	}
	if code := v.Delete("gone"); code.IsError() {
		t.Fatalf("Delete: %v", code)
	}
	if n, code := v.ScavengeOnce(ctx, 16); code.IsError() || n == 0 {
		t.Fatalf("ScavengeOnce: reclaimed=%d code=%v", n, code)
	}

	if _, code := v.Undelete(ctx, "gone"); code != hnerr.ErrNotFound {
		t.Fatalf("Undelete after scavenge = %v, want ErrNotFound", code)
	}
}

func TestWriteRejectedOnReadOnlyVolume(t *testing.T) {
	ctx := context.Background()
	dev := testDevice(t)
	v, code := Mount(ctx, dev, testBlockSize, false, testLogger())
	if code.IsError() {
		t.Fatalf("Mount: %v", code)
	}
	if _, code := v.Create("a", false); code.IsError() {
		t.Fatalf("Create: %v", code)
	}
	if code := v.Unmount(ctx); code.IsError() {
		t.Fatalf("Unmount: %v", code)
	}

	ro, code := Mount(ctx, dev, testBlockSize, true, testLogger())
	if code.IsError() {
		t.Fatalf("read-only Mount: %v", code)
	}
	if code := ro.Write(ctx, "a", 0, []byte("x")); code != hnerr.ErrTimeParadox {
		t.Fatalf("Write on read-only volume = %v, want ErrTimeParadox", code)
	}
}

func TestUnmountRefusesBusyWhileOpen(t *testing.T) {
	v, ctx := mustMount(t)
	v.Open()
	if code := v.Unmount(ctx); code != hnerr.ErrBusy {
		t.Fatalf("Unmount while open = %v, want ErrBusy", code)
	}
	v.Release()
	if code := v.Unmount(ctx); code.IsError() {
		t.Fatalf("Unmount after Release: %v", code)
	}
}
