package volume

import (
	"context"

	"github.com/hydranexus/hn4/hal"
	"github.com/hydranexus/hn4/internal/cortex"
	"github.com/hydranexus/hn4/internal/hnerr"
)

// persistAnchor is cortex.PersistFunc: the durable-write half of
// write_anchor_atomic (spec §4.4). cortex.Table holds the one
// volume-wide slot-table lock for the whole call, so a read-modify-write
// of the anchor's containing block is safe without any locking of its
// own here. cortex.PersistFunc carries no context, so this uses
// context.Background() the same way internal/cortex's own Mutate/Create
// have no context parameter to thread through either — the whole anchor
// commit path is synchronous by design (spec §9: "no async runtime").
func (v *Volume) persistAnchor(slot uint64, raw []byte) hnerr.Code {
	if v.ReadOnly() {
		return hnerr.ErrAccessDenied
	}

	recordsPerBlock := uint64(v.blockSize) / cortex.RecordSize
	if recordsPerBlock == 0 {
		return hnerr.ErrGeometry
	}
	blockIdx := v.lay.CortexStart + slot/recordsPerBlock
	within := (slot % recordsPerBlock) * cortex.RecordSize
	if within+cortex.RecordSize > uint64(v.blockSize) {
		return hnerr.ErrGeometry
	}

	ctx := context.Background()
	block, code := readRegion(ctx, v.dev, blockIdx, 1, v.blockSize)
	if code.IsError() {
		v.noteIO(code)
		return code
	}
	copy(block[within:within+cortex.RecordSize], raw)

	if code := writeRegion(ctx, v.dev, blockIdx, block, v.blockSize); code.IsError() {
		v.noteIO(code)
		return code
	}
	if v.dev.Barrier(ctx) != hal.IOOk {
		return hnerr.ErrHwIO
	}
	v.markDirty()
	return hnerr.OK
}
