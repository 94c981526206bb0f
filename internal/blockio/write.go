package blockio

import (
	"context"

	"github.com/hydranexus/hn4/hal"
	"github.com/hydranexus/hn4/internal/flux"
	"github.com/hydranexus/hn4/internal/hnerr"
	"github.com/hydranexus/hn4/internal/qmask"
)

// maxShadowAttempts bounds the commit-retry loop of spec §4.3.3: a commit
// race only needs to be retried a handful of times before callers should
// surface backpressure rather than spin.
const maxShadowAttempts = 3

// CommitFunc CASes the owning anchor onto a newly written shadow block.
// It returns an error code if another writer already moved the anchor
// out from under this attempt, in which case AtomicWrite rolls the new
// block back and retries against a freshly allocated candidate.
type CommitFunc func(newBlockIdx uint64, k int, fallback bool) hnerr.Code

// AtomicWrite implements the shadow-hop atomic write of spec §4.3.3:
// allocate a brand new block via the Flux Manifold, write the full
// payload there, then CAS the owning anchor onto it. On commit success
// the old location (if any) is force-cleared; on commit failure the new
// location is force-cleared and the whole attempt retries against a
// fresh allocation. Both the eventual success and every retry leave the
// volume Dirty — only a clean unmount clears that flag, and this package
// does not touch it directly.
func AtomicWrite(ctx context.Context, dev hal.Device, alloc *flux.Allocator, blockSize uint32,
	p flux.Params, intent qmask.Intent, existingAnchor bool,
	wellID [16]byte, logicalIdx uint64, newWriteGen uint32, payload []byte,
	oldBlockIdx uint64, hasOld bool, commit CommitFunc) (newBlockIdx uint64, code hnerr.Code) {

	for attempt := 0; attempt < maxShadowAttempts; attempt++ {
		candidate, k, fallback, wrapped, acode := alloc.Block(p, logicalIdx, intent, existingAnchor)
		if acode.IsError() {
			return 0, acode
		}

		block, bcode := BuildBlock(blockSize, wellID, logicalIdx, newWriteGen, payload)
		if bcode.IsError() {
			alloc.Rollback(candidate)
			return 0, bcode
		}

		if alloc.NeedsZoneReset(wrapped) {
			if zcode := zoneResetBlock(ctx, dev, candidate, blockSize); zcode.IsError() {
				alloc.Rollback(candidate)
				return 0, zcode
			}
		}

		if wcode := writeBlock(ctx, dev, candidate, block); wcode.IsError() {
			alloc.Rollback(candidate)
			return 0, wcode
		}

		if ccode := commit(candidate, k, fallback); ccode.IsError() {
			alloc.Rollback(candidate)
			continue
		}

		if hasOld {
			alloc.Rollback(oldBlockIdx)
		}
		return candidate, hnerr.OK
	}
	return 0, hnerr.ErrBusy
}

// ReadExisting reads and fully verifies blockIdx's current payload, for
// the read-modify-write path of a partial-block write: the caller
// overlays its new bytes onto the returned payload and hands the result
// to AtomicWrite as a fresh shadow.
func ReadExisting(ctx context.Context, dev hal.Device, blockSize uint32, blockIdx uint64) ([]byte, hnerr.Code) {
	block, rcode := readBlock(ctx, dev, blockIdx, blockSize)
	if rcode.IsError() {
		return nil, rcode
	}
	hdr, hcode := DecodeHeader(block)
	if hcode.IsError() {
		return nil, hcode
	}
	if pcode := VerifyPayload(block, hdr); pcode.IsError() {
		return nil, pcode
	}
	return block[HeaderSize : HeaderSize+hdr.PayloadLen], hnerr.OK
}
