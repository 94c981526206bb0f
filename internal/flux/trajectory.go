// Package flux implements the Flux Manifold allocator of spec §4.1: the
// ballistic placement trajectory function, the Genesis and Block
// protocols, the Horizon ring-buffer fallback, and the saturation state
// machine. Trajectory is implemented as a pure function per spec §9's
// "no vtables, data tables indexed by device type" guidance — no pack
// example implements closed-form placement, so this is grounded directly
// on spec.md §4.1.1.
package flux

import (
	"math/bits"

	"github.com/hydranexus/hn4/hal"
	"github.com/hydranexus/hn4/internal/hnerr"
)

// magicSwizzle is the fixed constant XORed into a rotated orbit vector
// when the trajectory function needs a "canonical gravity-assist" at
// higher orbit depths (spec §4.1.1).
const magicSwizzle uint64 = 0x9E3779B97F4A7C15

// swizzle perturbs V for k>=4 candidates. It is deterministic and, for
// every V this type can represent, never returns V itself. rotl(v,17)^v
// takes every even-weight value and magicSwizzle has even weight, so
// exactly two inputs satisfy rotl(v,17)^magicSwizzle == v; for those the
// result is complemented, which always differs from v.
func swizzle(v uint64) uint64 {
	s := bits.RotateLeft64(v, 17) ^ magicSwizzle
	if s == v {
		s = ^s
	}
	return s
}

// thetaLUT is the fixed 16-entry jitter table (spec §4.1.1). Values are
// small and strictly increasing so higher orbit depths fan candidates
// further apart; on linear-profile devices every entry collapses to 0
// via thetaFor, regardless of what is stored here.
var thetaLUT = [16]uint64{0, 1, 3, 7, 15, 31, 63, 127, 255, 511, 1023, 2047, 4095, 8191, 16383, 32767}

func isLinearProfile(p hal.Profile) bool {
	return p == hal.ProfileHDD || p == hal.ProfileZNS || p == hal.ProfileTape
}

func thetaFor(k int, profile hal.Profile) uint64 {
	if isLinearProfile(profile) {
		return 0
	}
	idx := k
	if idx > 15 {
		idx = 15
	}
	if idx < 0 {
		idx = 0
	}
	return thetaLUT[idx]
}

// Params are the anchor's placement parameters: gravity_center (G),
// orbit_vector (V, 48 significant bits), and fractal_scale (M).
type Params struct {
	G uint64
	V uint64
	M uint16
}

// TrajectoryBudget lists the orbit depths to try for a device profile
// (spec §4.1.2): SSD-class devices get the full 0..12 range; HDD, Tape
// and Pico are limited to k=0 (no point perturbing an address the device
// will seek to linearly anyway, or that Pico's tiny geometry can't afford
// to fan out over).
func TrajectoryBudget(profile hal.Profile) []int {
	switch profile {
	case hal.ProfileHDD, hal.ProfileTape, hal.ProfilePico:
		return []int{0}
	default:
		ks := make([]int, 13)
		for i := range ks {
			ks[i] = i
		}
		return ks
	}
}

// Trajectory evaluates the closed-form placement function of spec
// §4.1.1 for logical index n at orbit depth k, returning the candidate
// LBA. It reports ErrGeometry for every condition the spec calls
// INVALID: fractal scale too large, or a window of zero (the region
// can't hold even one fractal-scale cluster).
func Trajectory(p Params, availableD1Blocks uint64, n uint64, k int, fluxStartBlk uint64, profile hal.Profile) (lba uint64, code hnerr.Code) {
	if p.M >= 63 {
		return 0, hnerr.ErrGeometry
	}
	s := uint64(1) << p.M
	phi := availableD1Blocks / s
	if phi == 0 {
		return 0, hnerr.ErrGeometry
	}

	gUnit := (p.G / s) % phi

	veff := p.V
	if k >= 4 {
		veff = swizzle(p.V)
	}

	offset := (n*veff)%phi + gUnit
	offset %= phi

	theta := thetaFor(k, profile)
	entropy := p.G % s

	lba = fluxStartBlk + offset*s + theta + entropy
	return lba, hnerr.OK
}
