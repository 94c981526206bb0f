package volume

import (
	"context"
	"encoding/binary"

	"github.com/hydranexus/hn4/internal/cortex"
	"github.com/hydranexus/hn4/internal/hnerr"
)

// ScavengeOnce implements the background scavenger spec §4.4 explicitly
// leaves "out of core scope" as a distinct runtime thread: here it is a
// synchronous, budget-bounded call a caller drives from its own loop or
// timer (SPEC_FULL's decision, recorded in DESIGN.md, to give the
// scavenger a home without inventing a worker-pool runtime this module
// does not otherwise have). It walks up to budget tombstoned slots from
// the table's persistent cursor, force-clears logical index 0's
// physical block (plus an extension block, if the name spilled), and
// hard-frees the slot.
func (v *Volume) ScavengeOnce(ctx context.Context, budget int) (reclaimed int, code hnerr.Code) {
	if v.ReadOnly() {
		return 0, hnerr.ErrTimeParadox
	}
	if budget <= 0 {
		return 0, hnerr.OK
	}

	v.mu.Lock()
	cursor := v.scavengeCursor
	v.mu.Unlock()

	for i := 0; i < budget; i++ {
		slot, anchor, found, next := v.cortex.NextTombstoned(cursor)
		cursor = next
		if !found {
			break
		}

		if anchor.Mass > 0 {
			if blockIdx, ok, lcode := v.locateBlock(ctx, anchor, 0); lcode == hnerr.OK && ok {
				v.alloc.Rollback(blockIdx)
			}
		}
		if anchor.HasFlag(cortex.FlagExtendedName) {
			v.reclaimExtName(&anchor)
		}

		if rcode := v.cortex.Reclaim(slot); rcode.IsError() {
			v.mu.Lock()
			v.scavengeCursor = cursor
			v.mu.Unlock()
			return reclaimed, rcode
		}
		reclaimed++
	}

	v.mu.Lock()
	v.scavengeCursor = cursor
	v.mu.Unlock()
	return reclaimed, hnerr.OK
}

// reclaimExtName force-frees the extension block a spilled name lives
// in. A bad or already-reclaimed spill pointer is not itself cause to
// abort the scavenge pass: the anchor slot still gets reclaimed either
// way, since losing the name is strictly less harmful than leaking the
// slot forever.
func (v *Volume) reclaimExtName(anchor *cortex.Anchor) {
	lba := binary.LittleEndian.Uint64(anchor.InlineBuffer[0:8])
	v.alloc.Rollback(lba)
}
