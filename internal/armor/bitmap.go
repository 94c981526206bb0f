// Package armor implements the Armored Void Bitmap of spec §4.2: a
// contiguous array of 128-bit SEC-DED-ECC-protected, versioned,
// shard-locked words, plus the coarser L2 summary bitmap that indexes it.
// The armored words hold the bits; a github.com/bits-and-blooms/bitset
// shadow copy of the data bits backs counting and iteration.
package armor

import (
	"sync/atomic"

	"github.com/bits-and-blooms/bitset"
	"github.com/hydranexus/hn4/hal"
	"github.com/hydranexus/hn4/internal/hnerr"
)

// Op identifies a bitmap_op mutation kind (spec §4.2).
type Op int

const (
	Test Op = iota
	Set
	Clear
	ForceClear
)

const shardCount = 64

// Bitmap is one level of the armored bitmap (L3 data bits, or the L2
// summary). Each 64-block group is a single Word; shard = (wordIndex/64)
// % shardCount so operations on distant words never contend.
type Bitmap struct {
	bits       *bitset.BitSet // shadow copy of the "live" data bits, used only for fast iteration helpers
	words      []Word
	shards     [shardCount]hal.SpinLock
	epochMask  uint64
	versionCtr uint64 // monotonic seed combined with epochMask per mutation
	healCount  uint64
	panicFlag  uint32
	readOnly   bool
	totalBits  uint64
	dirty      func() // volume-level Dirty-flag setter; nil is legal (no-op)
}

// BitsPerWord is how many logical bits (blocks, or summary regions) one
// armored word covers.
const BitsPerWord = 64

// NewBitmap allocates a zeroed bitmap covering totalBits logical bits.
func NewBitmap(totalBits uint64, epochMask uint64, dirty func()) *Bitmap {
	wordCount := (totalBits + BitsPerWord - 1) / BitsPerWord
	b := &Bitmap{
		bits:      bitset.New(uint(totalBits)),
		words:     make([]Word, wordCount),
		epochMask: epochMask,
		totalBits: totalBits,
		dirty:     dirty,
	}
	for i := range b.words {
		b.words[i].ECC = encodeECC(0)
	}
	return b
}

// SetReadOnly marks the bitmap as belonging to a read-only (snapshot)
// volume: healing still happens in the returned value, but never persists.
func (b *Bitmap) SetReadOnly(ro bool) { b.readOnly = ro }

// HealCount returns the number of persisted single-bit corrections.
func (b *Bitmap) HealCount() uint64 { return atomic.LoadUint64(&b.healCount) }

// Panicked reports whether a double-bit (DED) error has ever been
// observed on this bitmap.
func (b *Bitmap) Panicked() bool { return atomic.LoadUint32(&b.panicFlag) != 0 }

func (b *Bitmap) shardFor(wordIndex uint64) *hal.SpinLock {
	shard := (wordIndex / shardCount) % shardCount
	return &b.shards[shard]
}

// LockRegion acquires the shard lock covering wordIndex, for callers (the
// L2 coherence logic) that must hold it across a multi-word scan.
func (b *Bitmap) LockRegion(wordIndex uint64) { b.shardFor(wordIndex).Acquire() }

// UnlockRegion releases a lock taken by LockRegion.
func (b *Bitmap) UnlockRegion(wordIndex uint64) { b.shardFor(wordIndex).Release() }

// RawWordLocked reads a word without taking its shard lock — the caller
// must already hold it (via LockRegion).
func (b *Bitmap) RawWordLocked(wordIndex uint64) Word { return b.words[wordIndex] }

// bitOp is the single primitive spec §4.2 requires: bitmap_op(volume,
// block_index, op, out_changed). It performs the ECC load-verify-correct
// sequence, applies the logical operation, and writes back under the
// owning shard lock.
func (b *Bitmap) bitOp(bitIndex uint64, op Op) (changed bool, code hnerr.Code) {
	wordIndex := bitIndex / BitsPerWord
	if wordIndex >= uint64(len(b.words)) {
		return false, hnerr.ErrGeometry
	}
	bitInWord := bitIndex % BitsPerWord

	lock := b.shardFor(wordIndex)
	lock.Acquire()
	defer lock.Release()

	return b.bitOpLocked(wordIndex, bitInWord, op)
}

func (b *Bitmap) bitOpLocked(wordIndex, bitInWord uint64, op Op) (changed bool, code hnerr.Code) {
	word := b.words[wordIndex]
	outcome, correctedData, correctedECC := decodeAndCorrect(word.Data, word.ECC)

	if outcome == eccDoubleBitError {
		atomic.StoreUint32(&b.panicFlag, 1)
		return false, hnerr.ErrBitmapCorrupt
	}

	healed := outcome != eccClean
	bitVal := (correctedData>>bitInWord)&1 == 1

	var newData uint64
	switch op {
	case Test:
		changed = bitVal
		newData = correctedData
	case Set:
		newData = correctedData | (1 << bitInWord)
		changed = !bitVal
	case Clear, ForceClear:
		newData = correctedData &^ (1 << bitInWord)
		changed = bitVal
	default:
		return false, hnerr.ErrGeometry
	}

	isMutation := op != Test && changed
	needsPersist := healed || (op != Test && newData != word.Data)

	if !needsPersist {
		return changed, hnerr.OK
	}

	if b.readOnly {
		// "Read-only volume: return OK with corrected value, do not write."
		if op == Test {
			return changed, hnerr.OK
		}
		// A mutation attempted against a read-only bitmap cannot be
		// honored durably; surface as a time-paradox-style rejection
		// at the caller (volume) layer.
		return false, hnerr.ErrAccessDenied
	}

	// Healing alone preserves the version (spec §4.2.3); only a logical
	// mutation bumps it.
	version := word.Version()
	if isMutation {
		b.versionCtr++
		version = mixVersion(b.versionCtr, b.epochMask)
	}
	newWord := Word{Data: newData, ECC: encodeECC(newData)}
	setVersion(&newWord, version)
	b.words[wordIndex] = newWord
	shadowBit := uint(wordIndex*BitsPerWord + bitInWord)
	if newData>>bitInWord&1 == 1 {
		b.bits.Set(shadowBit)
	} else {
		b.bits.Clear(shadowBit)
	}

	if healed {
		atomic.AddUint64(&b.healCount, 1)
	}
	if op != ForceClear && isMutation && b.dirty != nil {
		b.dirty()
	}
	if healed && op == Test {
		return changed, hnerr.InfoHealed
	}

	return changed, hnerr.OK
}

// Test reads a single bit (logical value returned in `changed`).
func (b *Bitmap) Test(bitIndex uint64) (value bool, code hnerr.Code) {
	return b.bitOp(bitIndex, Test)
}

// SetBit sets a single bit; changed is true only if it actually flipped
// 0->1. used_blocks accounting is the caller's responsibility (spec
// §4.1.6 keeps that counter on the volume/allocator, not the bitmap).
func (b *Bitmap) SetBit(bitIndex uint64) (changed bool, code hnerr.Code) {
	return b.bitOp(bitIndex, Set)
}

// ClearBit clears a single bit; on a double-free (already clear) this is
// a silent no-op outside strict-audit builds (spec §4.1.6).
func (b *Bitmap) ClearBit(bitIndex uint64) (changed bool, code hnerr.Code) {
	return b.bitOp(bitIndex, Clear)
}

// ForceClearBit physically clears a bit without marking the volume Dirty
// — the rollback primitive of spec §4.1.6 and §4.3.3.
func (b *Bitmap) ForceClearBit(bitIndex uint64) (changed bool, code hnerr.Code) {
	return b.bitOp(bitIndex, ForceClear)
}

// WordCount reports how many armored words back this bitmap.
func (b *Bitmap) WordCount() uint64 { return uint64(len(b.words)) }

// CountSet returns the number of set bits via the shadow bitset. Mount
// uses it to seed the allocator's used-blocks counter; the superblock
// carries no such counter of its own.
func (b *Bitmap) CountSet() uint64 { return uint64(b.bits.Count()) }
