package armor

import "github.com/hydranexus/hn4/internal/hnerr"

// L2GroupBlocks is how many physical blocks one L2 summary bit covers:
// one armored-word group of 8 (512 blocks), per spec §3.
const L2GroupBlocks = 512

// VoidBitmap is the full Armored Void Bitmap: the L3 per-block bitmap
// plus its L2 advisory summary, kept coherent per spec §4.2.4.
type VoidBitmap struct {
	L3 *Bitmap
	L2 *Bitmap
}

// NewVoidBitmap builds a VoidBitmap covering totalBlocks physical blocks.
func NewVoidBitmap(totalBlocks uint64, epochMask uint64, dirty func()) *VoidBitmap {
	l2Bits := (totalBlocks + L2GroupBlocks - 1) / L2GroupBlocks
	return &VoidBitmap{
		L3: NewBitmap(totalBlocks, epochMask, dirty),
		L2: NewBitmap(l2Bits, epochMask, dirty),
	}
}

// SetReadOnly propagates read-only status to both levels.
func (v *VoidBitmap) SetReadOnly(ro bool) {
	v.L3.SetReadOnly(ro)
	v.L2.SetReadOnly(ro)
}

// QuickFree uses the L2 advisory index to short-circuit a full-region
// scan: if the L2 bit for blockIndex's 512-block region reads 0, every
// L3 bit in that region is guaranteed clear (false-negatives are not
// permitted in L2; false-positives are). Returns (regionKnownEmpty,
// code). A caller that gets regionKnownEmpty=false must still consult L3
// directly, since L2 may be a false positive.
func (v *VoidBitmap) QuickFree(blockIndex uint64) (regionKnownEmpty bool, code hnerr.Code) {
	l2Bit := blockIndex / L2GroupBlocks
	set, code := v.L2.Test(l2Bit)
	if code.IsError() {
		return false, code
	}
	return !set, hnerr.OK
}

// Test reads a single L3 bit (no L2 mutation).
func (v *VoidBitmap) Test(blockIndex uint64) (value bool, code hnerr.Code) {
	return v.L3.Test(blockIndex)
}

// Set marks blockIndex used, keeping L2 coherent per §4.2.4: any time the
// L3 bit is observed set after this call (whether it just flipped or was
// already set), the L2 bit is forced to 1 if it currently reads 0.
func (v *VoidBitmap) Set(blockIndex uint64) (changed bool, code hnerr.Code) {
	changed, code = v.L3.SetBit(blockIndex)
	if code.IsError() {
		return changed, code
	}
	l2Bit := blockIndex / L2GroupBlocks
	l2Val, l2code := v.L2.Test(l2Bit)
	if l2code.IsError() {
		return changed, l2code
	}
	if !l2Val {
		if _, code := v.L2.SetBit(l2Bit); code.IsError() {
			return changed, code
		}
	}
	return changed, hnerr.OK
}

// Clear marks blockIndex free. If the L3 bit actually flipped 1->0, the
// covering 512-block L2 region is scanned under the owning L3 shard lock
// and the L2 bit is cleared iff every L3 bit in the region is now clear.
// L2 is never cleared optimistically (spec §4.2.4: "false-negative not
// permitted").
func (v *VoidBitmap) Clear(blockIndex uint64) (changed bool, code hnerr.Code) {
	return v.clearLike(blockIndex, Clear)
}

// ForceClear is the rollback primitive (spec §4.1.6/§4.3.3): physically
// clears the bit and keeps L2 coherent, without marking the volume Dirty.
func (v *VoidBitmap) ForceClear(blockIndex uint64) (changed bool, code hnerr.Code) {
	return v.clearLike(blockIndex, ForceClear)
}

func (v *VoidBitmap) clearLike(blockIndex uint64, op Op) (changed bool, code hnerr.Code) {
	var doClear func(uint64) (bool, hnerr.Code)
	if op == ForceClear {
		doClear = v.L3.ForceClearBit
	} else {
		doClear = v.L3.ClearBit
	}
	changed, code = doClear(blockIndex)
	if code.IsError() || !changed {
		return changed, code
	}

	groupStartBlock := (blockIndex / L2GroupBlocks) * L2GroupBlocks
	firstWord := groupStartBlock / BitsPerWord
	wordsInGroup := uint64(L2GroupBlocks / BitsPerWord)

	v.L3.LockRegion(firstWord)
	empty := true
	for i := uint64(0); i < wordsInGroup; i++ {
		w := v.L3.RawWordLocked(firstWord + i)
		outcome, data, _ := decodeAndCorrect(w.Data, w.ECC)
		if outcome == eccDoubleBitError {
			v.L3.UnlockRegion(firstWord)
			return changed, hnerr.ErrBitmapCorrupt
		}
		if data != 0 {
			empty = false
			break
		}
	}
	v.L3.UnlockRegion(firstWord)

	if empty {
		l2Bit := blockIndex / L2GroupBlocks
		if op == ForceClear {
			if _, code := v.L2.ForceClearBit(l2Bit); code.IsError() {
				return changed, code
			}
		} else if _, code := v.L2.ClearBit(l2Bit); code.IsError() {
			return changed, code
		}
	}
	return changed, hnerr.OK
}

// TotalBlocks reports the number of physical blocks this bitmap covers.
func (v *VoidBitmap) TotalBlocks() uint64 { return v.L3.totalBits }

// HealCount is the aggregate L3+L2 heal counter.
func (v *VoidBitmap) HealCount() uint64 { return v.L3.HealCount() + v.L2.HealCount() }

// Panicked reports whether either level ever hit a DED.
func (v *VoidBitmap) Panicked() bool { return v.L3.Panicked() || v.L2.Panicked() }
