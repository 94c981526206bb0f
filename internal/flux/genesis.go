package flux

import "github.com/hydranexus/hn4/hal"

// wheelPrimes are the small primes the wheel-factorization projection
// checks V against, per spec §4.1.3.
var wheelPrimes = [5]uint64{3, 5, 7, 11, 13}

// coprimeV derives an orbit vector that is (with high probability) coprime
// with phi: force it odd, then for each wheel prime dividing both V and
// phi, nudge V by 2, finally reduce mod phi with a nonzero fallback.
func coprimeV(raw uint64, phi uint64) uint64 {
	v := raw
	if v%2 == 0 {
		v++
	}
	for _, p := range wheelPrimes {
		if v%p == 0 && phi%p == 0 {
			v += 2
		}
	}
	if phi > 0 {
		v %= phi
	}
	if v == 0 {
		v = 3
	}
	return v
}

// genesisProbeBudget returns how many random (G) candidates Genesis may
// try before giving up (spec §4.1.3: "<=20 on SSD; up to 128 on USB").
func genesisProbeBudget(profile hal.Profile) int {
	if profile == hal.ProfileUSB {
		return 128
	}
	return 20
}
