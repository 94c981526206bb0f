package flux

import (
	"github.com/hydranexus/hn4/hal"
	"github.com/hydranexus/hn4/internal/armor"
	"github.com/hydranexus/hn4/internal/hnerr"
)

const horizonSectorSize = 512

// Horizon is the D1.5 ring buffer of spec §4.1.4: a linear-log fallback
// region between horizon_start and journal_start, addressed by a
// monotonic write head modulo the ring's capacity.
type Horizon struct {
	horizonStart uint64
	journalStart uint64
	blockSize    uint32
	void         *armor.VoidBitmap
	profile      hal.Profile
	writeHead    uint64
	lock         hal.SpinLock
	dirty        func()
}

// NewHorizon describes a horizon ring over [horizonStart, journalStart)
// backed by void for collision detection and claims.
func NewHorizon(horizonStart, journalStart uint64, blockSize uint32, profile hal.Profile, void *armor.VoidBitmap, dirty func()) *Horizon {
	return &Horizon{
		horizonStart: horizonStart,
		journalStart: journalStart,
		blockSize:    blockSize,
		profile:      profile,
		void:         void,
		dirty:        dirty,
	}
}

func (h *Horizon) capacity() uint64 {
	if h.journalStart <= h.horizonStart {
		return 0
	}
	return h.journalStart - h.horizonStart
}

// Alloc claims the next free horizon slot, probing up to 4 consecutive
// ring positions from the current write head (spec §4.1.4). It rejects
// any allocation at fractal scale M>0, since mixing scales would corrupt
// the ring's linear-log semantics. When a successful allocation crossed
// the ring boundary (pointer wrap), Alloc itself invokes the dirty
// callback; a probe that ends in ENOSPC does not. wrapped reports that
// crossing so the caller can, on a ZNS device, zone-reset the
// wrapped-to region before the actual block write.
func (h *Horizon) Alloc(m uint16) (lba uint64, wrapped bool, code hnerr.Code) {
	if m > 0 {
		return 0, false, hnerr.ErrGeometry
	}
	capacity := h.capacity()
	if capacity == 0 || uint64(h.blockSize)%horizonSectorSize != 0 {
		return 0, false, hnerr.ErrGeometry
	}

	h.lock.Acquire()
	defer h.lock.Release()

	crossed := false
	for i := 0; i < 4; i++ {
		oldHead := h.writeHead
		newHead := oldHead + 1
		h.writeHead = newHead
		if oldHead/capacity != newHead/capacity {
			crossed = true
		}

		slot := oldHead % capacity
		blockIdx := h.horizonStart + slot

		occupied, tcode := h.void.Test(blockIdx)
		if tcode.IsError() {
			return 0, false, tcode
		}
		if occupied {
			continue
		}

		changed, scode := h.void.Set(blockIdx)
		if scode.IsError() {
			return 0, false, scode
		}
		if !changed {
			continue
		}

		if crossed && h.dirty != nil {
			h.dirty()
		}
		return blockIdx, crossed, hnerr.OK
	}
	return 0, false, hnerr.ErrEnospc
}

// NeedsZoneReset reports whether landing on lba after a ring wrap
// requires a zone reset before the caller may write to it (ZNS devices
// only; spec §4.1.4 step 4).
func (h *Horizon) NeedsZoneReset(wrapped bool) bool {
	return wrapped && h.profile == hal.ProfileZNS
}
