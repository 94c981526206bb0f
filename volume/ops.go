package volume

import (
	"context"

	"github.com/hydranexus/hn4/internal/blockio"
	"github.com/hydranexus/hn4/internal/cortex"
	"github.com/hydranexus/hn4/internal/flux"
	"github.com/hydranexus/hn4/internal/hnerr"
	"github.com/hydranexus/hn4/internal/qmask"
)

// PayloadCapacity is the largest payload one logical block can carry:
// the block size minus the fixed block header (spec §4.3.1).
func (v *Volume) PayloadCapacity() int { return int(v.blockSize) - blockio.HeaderSize }

func intentFor(isDir bool) qmask.Intent {
	if isDir {
		return qmask.IntentMetadata
	}
	return qmask.IntentUserData
}

// Create reserves a new anchor and chooses its placement seed (spec
// §4.1.3's Genesis protocol). A Genesis call that redirects to the
// Horizon (the volume is already at or above the Genesis saturation
// threshold) still succeeds: the new anchor is simply marked
// Horizon-hint and starts with no ballistic parameters, consistent with
// spec §4.1.3 treating that redirect as a successful placement decision,
// not a failure. A hard Genesis failure (gravity collapse, out of
// space) reclaims the slot cortex.Table.Create already reserved, so a
// failed Create never leaves a half-alive anchor behind.
func (v *Volume) Create(name string, isDir bool) (cortex.Anchor, hnerr.Code) {
	if v.ReadOnly() {
		return cortex.Anchor{}, hnerr.ErrTimeParadox
	}

	anchor, slot, code := v.cortex.Create(name, isDir)
	if code.IsError() {
		return cortex.Anchor{}, code
	}

	params, gcode := v.alloc.Genesis(v.dev, intentFor(isDir))
	switch {
	case gcode == hnerr.OK:
		mcode := v.cortex.Mutate(slot, func(a *cortex.Anchor) {
			a.GravityCenter = params.G
			a.OrbitVector = params.V
			a.FractalScale = params.M
		})
		if mcode.IsError() {
			v.cortex.Reclaim(slot)
			return cortex.Anchor{}, mcode
		}
		anchor.GravityCenter, anchor.OrbitVector, anchor.FractalScale = params.G, params.V, params.M
		return anchor, hnerr.OK
	case gcode == hnerr.InfoHorizonFallback:
		mcode := v.cortex.Mutate(slot, func(a *cortex.Anchor) {
			a.SetFlag(cortex.FlagHorizonHint)
		})
		if mcode.IsError() {
			v.cortex.Reclaim(slot)
			return cortex.Anchor{}, mcode
		}
		anchor.SetFlag(cortex.FlagHorizonHint)
		return anchor, hnerr.OK
	default:
		v.cortex.Reclaim(slot)
		return cortex.Anchor{}, gcode
	}
}

// Lookup resolves a live anchor by name.
func (v *Volume) Lookup(name string) (cortex.Anchor, hnerr.Code) {
	a, _, code := v.cortex.LookupByName(name)
	return a, code
}

// List returns every live anchor with its resolved name, for a
// directory-listing caller (spec.md's POSIX adapter layer).
func (v *Volume) List() []cortex.NamedAnchor { return v.cortex.Live() }

// Delete tombstones the anchor, per spec §4.4: physical block reclaim is
// left to ScavengeOnce.
func (v *Volume) Delete(name string) hnerr.Code {
	if v.ReadOnly() {
		return hnerr.ErrTimeParadox
	}
	a, slot, code := v.cortex.LookupByName(name)
	if code.IsError() {
		return code
	}
	_ = a
	return v.cortex.Delete(slot)
}

// Undelete implements spec §4.3.4: find the tombstoned anchor by name,
// pulse-check logical index 0's physical block, and only then clear the
// Tombstone bit.
func (v *Volume) Undelete(ctx context.Context, name string) (cortex.Anchor, hnerr.Code) {
	if v.ReadOnly() {
		return cortex.Anchor{}, hnerr.ErrTimeParadox
	}

	candidate, _, code := v.cortex.LookupTombstoned(name)
	if code.IsError() {
		return cortex.Anchor{}, code
	}

	blockIdx, found, lcode := v.locateBlock(ctx, candidate, 0)
	if lcode.IsError() {
		return cortex.Anchor{}, lcode
	}
	if !found {
		return cortex.Anchor{}, hnerr.ErrNotFound
	}
	if pcode := blockio.PulseCheck(ctx, v.dev, v.void, v.blockSize, blockIdx, candidate.SeedID); pcode.IsError() {
		v.noteIO(pcode)
		return cortex.Anchor{}, pcode
	}

	return v.cortex.Undelete(name)
}

// locateBlock finds logicalIdx's current physical block for anchor,
// trying the ballistic trajectory candidates and, for a Horizon-hint
// anchor, the block index cached in GravityCenter (spec §4.3.2 step 1:
// "in addition the horizon slot via Horizon-hint flag").
func (v *Volume) locateBlock(ctx context.Context, anchor cortex.Anchor, logicalIdx uint64) (blockIdx uint64, found bool, code hnerr.Code) {
	p := flux.Params{G: anchor.GravityCenter, V: anchor.OrbitVector, M: anchor.FractalScale}
	var extra []uint64
	if anchor.HasFlag(cortex.FlagHorizonHint) {
		extra = []uint64{anchor.GravityCenter}
	}
	return blockio.Locate(ctx, v.dev, v.void, v.blockSize, p, v.lay.AvailableD1Blocks, v.lay.FluxManifoldStart,
		v.profile, anchor.SeedID, logicalIdx, anchor.WriteGen, extra)
}

// Read fetches logical block logicalIdx of the named file. A block the
// file never wrote back comes back as InfoSparse, which callers
// presenting a POSIX-shaped view should treat as a run of zero bytes
// (spec §4.3.2 step 4).
func (v *Volume) Read(ctx context.Context, name string, logicalIdx uint64) ([]byte, hnerr.Code) {
	anchor, code := v.Lookup(name)
	if code.IsError() {
		return nil, code
	}

	p := flux.Params{G: anchor.GravityCenter, V: anchor.OrbitVector, M: anchor.FractalScale}
	var extra []uint64
	if anchor.HasFlag(cortex.FlagHorizonHint) {
		extra = []uint64{anchor.GravityCenter}
	}
	everWritten := logicalIdx*uint64(v.PayloadCapacity()) < anchor.Mass

	payload, rcode := blockio.AtomicRead(ctx, v.dev, v.void, v.blockSize, p, v.lay.AvailableD1Blocks, v.lay.FluxManifoldStart,
		v.profile, anchor.SeedID, logicalIdx, anchor.WriteGen, everWritten, extra)
	if rcode.IsError() {
		v.noteIO(rcode)
	}
	return payload, rcode
}

// Write implements the shadow-hop atomic write of spec §4.3.3 for one
// logical block of the named file, growing mass if this write extends
// the file.
func (v *Volume) Write(ctx context.Context, name string, logicalIdx uint64, payload []byte) hnerr.Code {
	if v.ReadOnly() {
		return hnerr.ErrTimeParadox
	}
	if len(payload) > v.PayloadCapacity() {
		return hnerr.ErrGeometry
	}

	anchor, slot, code := v.cortex.LookupByName(name)
	if code.IsError() {
		return code
	}
	if anchor.HasFlag(cortex.FlagTombstone) {
		return hnerr.ErrNotFound
	}

	intent := intentFor(anchor.HasFlag(cortex.FlagIsDirectory))
	existingAnchor := anchor.Mass > 0 || logicalIdx > 0
	newGen := anchor.WriteGen + 1

	var oldBlockIdx uint64
	hasOld := false
	if everWritten := logicalIdx*uint64(v.PayloadCapacity()) < anchor.Mass; everWritten {
		if idx, found, lcode := v.locateBlock(ctx, anchor, logicalIdx); lcode == hnerr.OK && found {
			oldBlockIdx, hasOld = idx, true
		} else if lcode.IsError() && lcode != hnerr.ErrNotFound && lcode != hnerr.InfoSparse {
			return lcode
		}
	}

	newMass := (logicalIdx)*uint64(v.PayloadCapacity()) + uint64(len(payload))

	p := flux.Params{G: anchor.GravityCenter, V: anchor.OrbitVector, M: anchor.FractalScale}
	commit := func(newBlockIdx uint64, k int, fallback bool) hnerr.Code {
		return v.cortex.Mutate(slot, func(a *cortex.Anchor) {
			a.WriteGen = newGen
			a.ModClock = v.dev.GetTimeNS()
			if fallback {
				a.SetFlag(cortex.FlagHorizonHint)
				a.GravityCenter = newBlockIdx
			}
			if newMass > a.Mass {
				a.Mass = newMass
			}
		})
	}

	_, wcode := blockio.AtomicWrite(ctx, v.dev, v.alloc, v.blockSize, p, intent, existingAnchor,
		anchor.SeedID, logicalIdx, newGen, payload, oldBlockIdx, hasOld, commit)
	if wcode.IsError() {
		v.noteIO(wcode)
	}
	return wcode
}
