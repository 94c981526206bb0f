package flux

import (
	"sync/atomic"

	"github.com/hydranexus/hn4/hal"
	"github.com/hydranexus/hn4/internal/armor"
	"github.com/hydranexus/hn4/internal/hnerr"
	"github.com/hydranexus/hn4/internal/qmask"
)

// Allocator is the Flux Manifold: ballistic placement over a D1 region,
// with a Horizon fallback and the saturation state machine of spec §4.1.
type Allocator struct {
	fluxStartBlk      uint64
	availableD1Blocks uint64
	totalBlocks       uint64
	profile           hal.Profile
	void              *armor.VoidBitmap
	qmask             *qmask.Mask
	horizon           *Horizon
	usedBlocks        uint64
	sat               saturation
	dirty             func()
}

// NewAllocator builds an allocator over a D1 region of availableD1Blocks
// blocks starting at fluxStartBlk, with horizon fallback delegated to h.
func NewAllocator(fluxStartBlk, availableD1Blocks, totalBlocks uint64, profile hal.Profile,
	void *armor.VoidBitmap, qm *qmask.Mask, h *Horizon, dirty func()) *Allocator {
	return &Allocator{
		fluxStartBlk:      fluxStartBlk,
		availableD1Blocks: availableD1Blocks,
		totalBlocks:       totalBlocks,
		profile:           profile,
		void:              void,
		qmask:             qm,
		horizon:           h,
		dirty:             dirty,
	}
}

// UsedBlocks returns the current used-block count.
func (a *Allocator) UsedBlocks() uint64 { return atomic.LoadUint64(&a.usedBlocks) }

// SeedUsed primes used_blocks from an authoritative count gathered at
// mount time (armor.Bitmap.CountSet over the hydrated void bitmap): the
// superblock carries no used-blocks field of its own to restore from, so
// a freshly constructed Allocator otherwise starts the saturation state
// machine of spec §4.1.5 blind at 0 on every remount of a non-empty
// volume. Only legal before the allocator serves its first Block/Genesis
// call.
func (a *Allocator) SeedUsed(n uint64) {
	atomic.StoreUint64(&a.usedBlocks, n)
	a.sat.update(a.usedPercent())
}

// IsRuntimeSaturated reports the sticky Runtime-Saturated latch.
func (a *Allocator) IsRuntimeSaturated() bool { return a.sat.isSaturated() }

func (a *Allocator) usedPercent() int {
	if a.totalBlocks == 0 {
		return 100
	}
	return int(a.UsedBlocks() * 100 / a.totalBlocks)
}

// bumpUsed applies a SET/CLEAR's logical_change to used_blocks (spec
// §4.1.6): increments on a true SET, decrements (saturating at 0, which
// also marks Dirty as a detected consistency bug) on a true CLEAR, and
// refreshes the saturation latch either way. force_clear bypasses Dirty.
func (a *Allocator) bumpUsed(delta int, markDirtyOnUnderflow bool) {
	for {
		old := atomic.LoadUint64(&a.usedBlocks)
		var next uint64
		if delta > 0 {
			next = old + uint64(delta)
		} else {
			dec := uint64(-delta)
			if dec > old {
				next = 0
				if markDirtyOnUnderflow && a.dirty != nil {
					a.dirty()
				}
			} else {
				next = old - dec
			}
		}
		if atomic.CompareAndSwapUint64(&a.usedBlocks, old, next) {
			break
		}
	}
	a.sat.update(a.usedPercent())
}

// Genesis chooses a placement seed for a new file (spec §4.1.3). If the
// volume is already at or above the Genesis saturation threshold, it
// returns a successful redirect signal (InfoHorizonFallback, not an
// error) instructing the caller to use the horizon path instead.
func (a *Allocator) Genesis(dev hal.Device, intent qmask.Intent) (Params, hnerr.Code) {
	if a.usedPercent() >= genesisThresholdPct {
		a.sat.update(a.usedPercent())
		return Params{}, hnerr.InfoHorizonFallback
	}

	phi := a.availableD1Blocks
	if phi == 0 {
		return Params{}, hnerr.ErrGeometry
	}

	budget := genesisProbeBudget(a.profile)
	for i := 0; i < budget; i++ {
		g := dev.GetRandomU64()
		v := coprimeV(dev.GetRandomU64(), phi)
		p := Params{G: g, V: v, M: 0}
		if _, code := Trajectory(p, a.availableD1Blocks, 0, 0, a.fluxStartBlk, a.profile); !code.IsError() {
			return p, hnerr.OK
		}
	}
	return Params{}, hnerr.ErrGravityCollapse
}

// Block chooses a physical block for logical index n of an existing (or
// brand new, for n==0 right after Genesis) anchor, per the protocol of
// spec §4.1.2. wrapped is only ever true alongside fallback: it reports
// whether landing in the Horizon ring crossed the ring's wrap boundary,
// which on a ZNS device means the caller must zone-reset lba before
// writing to it (spec §4.1.4 step 4; see NeedsZoneReset).
func (a *Allocator) Block(p Params, n uint64, intent qmask.Intent, existingAnchor bool) (lba uint64, k int, fallback bool, wrapped bool, code hnerr.Code) {
	for _, k := range TrajectoryBudget(a.profile) {
		candidate, tcode := Trajectory(p, a.availableD1Blocks, n, k, a.fluxStartBlk, a.profile)
		if tcode.IsError() {
			continue
		}
		if candidate >= a.fluxStartBlk+a.availableD1Blocks {
			// The theta jitter can push a deep candidate past the end of
			// the D1 window; such a depth is skipped like a collision.
			continue
		}

		admits, qcode := a.qmask.Admits(candidate, intent)
		if qcode.IsError() {
			return 0, 0, false, false, qcode
		}
		if !admits {
			continue
		}

		knownEmpty, vcode := a.void.QuickFree(candidate)
		if vcode.IsError() {
			return 0, 0, false, false, vcode
		}
		if !knownEmpty {
			occupied, tcode := a.void.Test(candidate)
			if tcode.IsError() {
				return 0, 0, false, false, tcode
			}
			if occupied {
				continue
			}
		}

		changed, scode := a.void.Set(candidate)
		if scode.IsError() {
			return 0, 0, false, false, scode
		}
		if !changed {
			// Lost a race to another allocation between the probe and
			// the claim; treat exactly like a collision and try the
			// next orbit depth.
			continue
		}
		a.bumpUsed(1, false)
		return candidate, k, false, false, hnerr.OK
	}

	if p.M > 0 {
		return 0, 0, false, false, hnerr.ErrGravityCollapse
	}
	usedPct := a.usedPercent()
	if existingAnchor && usedPct >= updateThresholdPct {
		return a.allocHorizon()
	}
	if a.profile == hal.ProfileSystem || intent == qmask.IntentMetadata {
		return 0, 0, false, false, hnerr.ErrEnospc
	}
	return a.allocHorizon()
}

const horizonSentinelK = 15

func (a *Allocator) allocHorizon() (lba uint64, k int, fallback bool, wrapped bool, code hnerr.Code) {
	if a.horizon == nil {
		return 0, 0, false, false, hnerr.ErrEnospc
	}
	blockIdx, wrapped, hcode := a.horizon.Alloc(0)
	if hcode.IsError() {
		return 0, 0, false, false, hcode
	}
	a.bumpUsed(1, false)
	return blockIdx, horizonSentinelK, true, wrapped, hnerr.InfoHorizonFallback
}

// NeedsZoneReset reports whether a block landed via allocHorizon (wrapped
// as returned by Block) requires a zone reset before the caller may write
// to it (spec §4.1.4 step 4, ZNS devices only).
func (a *Allocator) NeedsZoneReset(wrapped bool) bool {
	if a.horizon == nil {
		return false
	}
	return a.horizon.NeedsZoneReset(wrapped)
}

// Free releases blockIndex back to the pool via a logical CLEAR, updating
// used_blocks per the round-trip rules of spec §4.1.6 (double-free is a
// silent no-op: used_blocks only moves on an actual flip).
func (a *Allocator) Free(blockIndex uint64) (changed bool, code hnerr.Code) {
	changed, code = a.void.Clear(blockIndex)
	if code.IsError() {
		return changed, code
	}
	if changed {
		a.bumpUsed(-1, true)
	}
	return changed, hnerr.OK
}

// Rollback is the force_clear path used by shadow-hop failure recovery
// (spec §4.3.3/§4.1.6): it physically clears the bit and adjusts
// used_blocks without ever marking the volume Dirty.
func (a *Allocator) Rollback(blockIndex uint64) (changed bool, code hnerr.Code) {
	changed, code = a.void.ForceClear(blockIndex)
	if code.IsError() {
		return changed, code
	}
	if changed {
		a.bumpUsed(-1, false)
	}
	return changed, hnerr.OK
}
