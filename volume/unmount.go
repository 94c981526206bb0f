package volume

import (
	"context"

	"github.com/hydranexus/hn4/internal/hnerr"
	"github.com/hydranexus/hn4/internal/sb"
)

// Unmount implements spec §4.5.2's ordered unmount: flush every cached
// structure durably, advance and persist the Epoch Ring, broadcast the
// updated, now-Clean superblock to the Cardinal quorum, then barrier.
// Per spec §3/§7 ("ref_count: ... unmount refuses if > 1"), Unmount
// refuses with ERR_BUSY while any caller beyond the mount's own handle
// still holds the volume open.
func (v *Volume) Unmount(ctx context.Context) hnerr.Code {
	if v.refs() > 1 {
		return hnerr.ErrBusy
	}
	if v.ReadOnly() {
		return v.unmountReadOnly(ctx)
	}

	flush := func() hnerr.Code {
		return v.flushMetadataRegions(ctx)
	}

	broadcast := func(epochID uint64, epochPtr uint32) hnerr.Code {
		v.super.EpochID = epochID
		v.super.EpochPtr = epochPtr
		v.super.CopyGeneration++
		v.super.ClearState(sb.StateDirty)
		v.mu.Lock()
		v.dirty = false
		v.mu.Unlock()
		return sb.WriteQuorum(ctx, v.dev, v.super, v.offsets)
	}

	code := v.ring.UnmountSequence(ctx, v.super.EpochID, v.super.EpochPtr, flush, broadcast)
	if code.IsError() {
		// Revert: mark Degraded, bump the generation and rebroadcast so the
		// replicas record that this unmount did not complete.
		v.super.SetState(sb.StateDegraded)
		v.super.CopyGeneration++
		if bcode := sb.WriteQuorum(ctx, v.dev, v.super, v.offsets); bcode.IsError() {
			v.noteIO(bcode)
		}
		v.log.WithError(hnerr.Wrap(code, "unmount sequence failed")).Error("unmount degraded: volume left dirty")
		return code
	}

	v.destroy()
	return hnerr.OK
}

// unmountReadOnly skips the write-side flush/broadcast entirely: a
// read-only (snapshot) volume made no mutations to flush and must not
// write a superblock back (it may not even be able to).
func (v *Volume) unmountReadOnly(_ context.Context) hnerr.Code {
	v.destroy()
	return hnerr.OK
}

// destroy implements the "destroyed by unmount with secure zeroing"
// half of spec §3's Volume lifecycle: it is the in-memory Volume that is
// zeroed, not the underlying device's data, since an ordinary unmount
// must leave the caller's stored data intact for the next mount. Every
// subsystem pointer is cleared so a caller holding a stale *Volume after
// Unmount gets a nil-pointer fault instead of silently operating on a
// torn-down volume.
func (v *Volume) destroy() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.dev = nil
	v.void = nil
	v.qmask = nil
	v.cortex = nil
	v.alloc = nil
	v.horizon = nil
	v.ring = nil
	v.super = nil
}
