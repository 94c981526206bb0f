package flux

import "sync/atomic"

// Saturation percentage thresholds (spec §4.1.5).
const (
	genesisThresholdPct   = 90
	updateThresholdPct    = 95
	recoveryThresholdPct  = 85
)

// saturation tracks the sticky Runtime-Saturated latch: set once used
// blocks cross genesisThresholdPct, cleared only once usage drops below
// recoveryThresholdPct (hysteresis prevents flapping around 90%).
type saturation struct {
	flag uint32
}

func (s *saturation) update(usedPct int) {
	switch {
	case usedPct >= genesisThresholdPct:
		atomic.StoreUint32(&s.flag, 1)
	case usedPct < recoveryThresholdPct:
		atomic.StoreUint32(&s.flag, 0)
	}
	// Between recovery and genesis thresholds, the latch holds its
	// previous value (hysteresis band).
}

func (s *saturation) isSaturated() bool { return atomic.LoadUint32(&s.flag) != 0 }
