package blockio

import (
	"context"

	"github.com/hydranexus/hn4/hal"
	"github.com/hydranexus/hn4/internal/armor"
	"github.com/hydranexus/hn4/internal/hnerr"
)

// PulseCheck implements the block-level half of Lazarus undelete (spec
// §4.3.4 step 2). cortex.Table.Undelete already finds a tombstoned slot
// by name and clears its Tombstone flag at the anchor level; PulseCheck
// is the complementary physical-layer check a caller runs against the
// anchor's logical index 0 before trusting that undelete: the bitmap bit
// must still be set, the block's header magic and CRC must still check
// out, and the well_id must still match the anchor's seed_id. Any
// failure means the physical block was reclaimed or corrupted out from
// under the tombstone and the undelete must be refused.
func PulseCheck(ctx context.Context, dev hal.Device, void *armor.VoidBitmap, blockSize uint32, blockIdx uint64, wellID [16]byte) hnerr.Code {
	occupied, tcode := void.Test(blockIdx)
	if tcode.IsError() {
		return tcode
	}
	if !occupied {
		return hnerr.ErrDataRot
	}

	block, rcode := readBlock(ctx, dev, blockIdx, blockSize)
	if rcode.IsError() {
		return rcode
	}

	hdr, hcode := DecodeHeader(block)
	if hcode.IsError() {
		if hcode == hnerr.ErrHeaderRot {
			return hnerr.ErrHeaderRot
		}
		return hnerr.ErrNotFound
	}
	if hdr.WellID != wellID {
		return hnerr.ErrIDMismatch
	}
	return hnerr.OK
}
