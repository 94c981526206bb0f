package blockio

import (
	"context"

	"github.com/hydranexus/hn4/hal"
	"github.com/hydranexus/hn4/internal/armor"
	"github.com/hydranexus/hn4/internal/flux"
	"github.com/hydranexus/hn4/internal/hnerr"
)

// verifyCandidate reads blockIdx and checks every identity proof spec
// §4.3.2 lists in order: the bitmap bit must be set, the header magic and
// CRC must check out, and the header's well_id/logical_idx must match the
// anchor asking for this block. Any failure disqualifies the candidate
// without necessarily implicating it as corrupt; only a payload CRC
// failure after a verified header is reported as DataRot.
func verifyCandidate(ctx context.Context, dev hal.Device, void *armor.VoidBitmap, blockSize uint32, blockIdx uint64, wellID [16]byte, logicalIdx uint64) (payload []byte, hdr *Header, code hnerr.Code) {
	occupied, tcode := void.Test(blockIdx)
	if tcode.IsError() {
		return nil, nil, tcode
	}
	if !occupied {
		return nil, nil, hnerr.ErrNotFound
	}

	block, rcode := readBlock(ctx, dev, blockIdx, blockSize)
	if rcode.IsError() {
		return nil, nil, rcode
	}

	hdr, hcode := DecodeHeader(block)
	if hcode.IsError() {
		return nil, nil, hcode
	}
	if hdr.WellID != wellID || hdr.LogicalIdx != logicalIdx {
		return nil, nil, hnerr.ErrNotFound
	}

	if pcode := VerifyPayload(block, hdr); pcode.IsError() {
		return nil, hdr, pcode
	}
	return block[HeaderSize : HeaderSize+hdr.PayloadLen], hdr, hnerr.OK
}

// scanResult is what the shared candidate scan in scanVerified found for
// one candidate: either a terminal outcome (done=true, stop scanning) or
// a disqualification that should move on to the next candidate.
type scanResult struct {
	blockIdx uint64
	payload  []byte
	code     hnerr.Code
	done     bool
}

// scanVerified walks every trajectory candidate for (p, logicalIdx) at
// every orbit depth profile allows, plus extraCandidates, applying
// verifyCandidate to each and stopping at the first terminal outcome:
// a fresh verified match (OK) or a verified-but-corrupt payload
// (DataRot). A verified match whose write_gen trails cachedGen is
// recorded as stale and the scan continues past it. staleFound tells the
// caller whether to report NotFound (something matched, just stale) or
// fall through to the sparse/not-found split.
func scanVerified(ctx context.Context, dev hal.Device, void *armor.VoidBitmap, blockSize uint32,
	p flux.Params, availableD1Blocks, fluxStartBlk uint64, profile hal.Profile,
	wellID [16]byte, logicalIdx uint64, cachedGen uint32, extraCandidates []uint64) (result scanResult, staleFound bool) {

	try := func(blockIdx uint64) (scanResult, bool) {
		payload, hdr, vcode := verifyCandidate(ctx, dev, void, blockSize, blockIdx, wellID, logicalIdx)
		switch {
		case vcode == hnerr.OK:
			if hdr.WriteGen < cachedGen {
				return scanResult{}, true // stale: caller marks staleFound and continues
			}
			return scanResult{blockIdx: blockIdx, payload: payload, code: hnerr.OK, done: true}, false
		case vcode == hnerr.ErrDataRot:
			return scanResult{blockIdx: blockIdx, code: hnerr.ErrDataRot, done: true}, false
		default:
			return scanResult{}, false
		}
	}

	for _, k := range flux.TrajectoryBudget(profile) {
		candidate, tcode := flux.Trajectory(p, availableD1Blocks, logicalIdx, k, fluxStartBlk, profile)
		if tcode.IsError() {
			continue
		}
		r, stale := try(candidate)
		if stale {
			staleFound = true
			continue
		}
		if r.done {
			return r, staleFound
		}
	}

	for _, candidate := range extraCandidates {
		r, stale := try(candidate)
		if stale {
			staleFound = true
			continue
		}
		if r.done {
			return r, staleFound
		}
	}

	return scanResult{}, staleFound
}

// AtomicRead implements spec §4.3.2: re-derive the trajectory candidates
// for logical index logicalIdx at every orbit depth the device profile
// allows, plus any extra candidates the caller supplies (the Horizon-hint
// LBA, for anchors that fell back to the ring), and return the first
// candidate whose identity and checksums verify. cachedGen is the
// anchor's last known write_gen: a verified block whose on-disk
// write_gen trails it is a stale, incomplete shadow hop and is treated as
// not found rather than returned. everWritten tells the sparse/not-found
// split when nothing verifies at all: a logical index the anchor has
// never written reads back as SPARSE (an info code, not an error); one
// that was written and is now entirely unaccounted for is NotFound.
func AtomicRead(ctx context.Context, dev hal.Device, void *armor.VoidBitmap, blockSize uint32,
	p flux.Params, availableD1Blocks, fluxStartBlk uint64, profile hal.Profile,
	wellID [16]byte, logicalIdx uint64, cachedGen uint32, everWritten bool,
	extraCandidates []uint64) ([]byte, hnerr.Code) {

	r, staleFound := scanVerified(ctx, dev, void, blockSize, p, availableD1Blocks, fluxStartBlk, profile, wellID, logicalIdx, cachedGen, extraCandidates)
	if r.done {
		return r.payload, r.code
	}
	if staleFound || everWritten {
		return nil, hnerr.ErrNotFound
	}
	return nil, hnerr.InfoSparse
}

// Locate is AtomicRead's sibling for callers (the shadow-hop write path)
// that need the physical block index of an anchor's current logical
// index rather than its payload, so the old location can be force-
// cleared once the new shadow commits.
func Locate(ctx context.Context, dev hal.Device, void *armor.VoidBitmap, blockSize uint32,
	p flux.Params, availableD1Blocks, fluxStartBlk uint64, profile hal.Profile,
	wellID [16]byte, logicalIdx uint64, cachedGen uint32, extraCandidates []uint64) (blockIdx uint64, found bool, code hnerr.Code) {

	r, staleFound := scanVerified(ctx, dev, void, blockSize, p, availableD1Blocks, fluxStartBlk, profile, wellID, logicalIdx, cachedGen, extraCandidates)
	if r.done {
		if r.code == hnerr.OK {
			return r.blockIdx, true, hnerr.OK
		}
		return 0, false, r.code
	}
	if staleFound {
		return 0, false, hnerr.ErrNotFound
	}
	return 0, false, hnerr.InfoSparse
}
