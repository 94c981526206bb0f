package armor

import (
	"sync/atomic"

	"github.com/hydranexus/hn4/internal/hnerr"
)

// Dump serializes every armored word to its WordSize on-disk form, in
// order, for a caller to persist to the bitmap's on-disk region. This is
// the armor-level analogue of the teacher's blockgroup.go bitmap
// toBytes(), generalized from plain bytes to the armored word format.
func (b *Bitmap) Dump() []byte {
	out := make([]byte, 0, len(b.words)*WordSize)
	for _, w := range b.words {
		out = append(out, w.toBytes()...)
	}
	return out
}

// LoadFrom replaces the bitmap's words from a prior Dump, correcting any
// single-bit ECC errors accrued at rest and rebuilding the fast-iteration
// shadow bitset. A double-bit error anywhere in the dump is reported as
// ErrBitmapCorrupt and latches the panic flag, same as a live bitOp would.
func (b *Bitmap) LoadFrom(raw []byte) hnerr.Code {
	if uint64(len(raw)) != uint64(len(b.words))*WordSize {
		return hnerr.ErrGeometry
	}
	for i := range b.words {
		w := DecodeWord(raw[i*WordSize : (i+1)*WordSize])
		outcome, data, ecc := decodeAndCorrect(w.Data, w.ECC)
		if outcome == eccDoubleBitError {
			atomic.StoreUint32(&b.panicFlag, 1)
			return hnerr.ErrBitmapCorrupt
		}
		w.Data, w.ECC = data, ecc
		b.words[i] = w
		for bit := uint64(0); bit < BitsPerWord; bit++ {
			shadowBit := uint(uint64(i)*BitsPerWord + bit)
			if (data>>bit)&1 == 1 {
				b.bits.Set(shadowBit)
			} else {
				b.bits.Clear(shadowBit)
			}
		}
		if outcome != eccClean {
			atomic.AddUint64(&b.healCount, 1)
		}
	}
	return hnerr.OK
}

// Dump returns the L3 and L2 levels' on-disk forms, for the volume layer
// to write to VoidBitmapStart at unmount (or any quiescent flush point).
func (v *VoidBitmap) Dump() (l3, l2 []byte) { return v.L3.Dump(), v.L2.Dump() }

// LoadFrom hydrates both levels from a prior Dump, at mount time.
func (v *VoidBitmap) LoadFrom(l3, l2 []byte) hnerr.Code {
	if code := v.L3.LoadFrom(l3); code.IsError() {
		return code
	}
	return v.L2.LoadFrom(l2)
}
