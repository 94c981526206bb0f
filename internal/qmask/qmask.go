// Package qmask implements the two-bit-per-block Quality Mask of spec
// §3: Toxic/Bronze/Silver/Gold classification that gates allocation
// intent, built on the same bits-and-blooms/bitset the Armored Void
// Bitmap uses for its underlying storage, paired up to encode two bits
// per block.
package qmask

import (
	"github.com/bits-and-blooms/bitset"
	"github.com/hydranexus/hn4/internal/hnerr"
)

// Grade is a block's quality classification.
type Grade uint8

const (
	Toxic  Grade = 0b00
	Bronze Grade = 0b01
	Silver Grade = 0b10
	Gold   Grade = 0b11
)

// Intent is the kind of allocation being attempted, used to decide which
// grades are acceptable (spec §3: "Metadata-intent allocations require
// Silver or Gold; user-data allocations accept Bronze; Toxic blocks are
// never allocated.").
type Intent int

const (
	IntentUserData Intent = iota
	IntentMetadata
)

// Mask is the quality mask for a volume: two bitsets, hi and lo, encoding
// the two bits of each block's Grade.
type Mask struct {
	lo, hi *bitset.BitSet
	total  uint64
}

// New allocates a mask covering totalBlocks blocks, every block
// defaulting to Silver per spec §3 ("Silver is the default").
func New(totalBlocks uint64) *Mask {
	m := &Mask{
		lo:    bitset.New(uint(totalBlocks)),
		hi:    bitset.New(uint(totalBlocks)),
		total: totalBlocks,
	}
	for i := uint64(0); i < totalBlocks; i++ {
		m.hi.Set(uint(i)) // Silver = 0b10: hi=1, lo=0
	}
	return m
}

// Get returns the grade of blockIndex.
func (m *Mask) Get(blockIndex uint64) (Grade, hnerr.Code) {
	if blockIndex >= m.total {
		return Toxic, hnerr.ErrGeometry
	}
	var g Grade
	if m.lo.Test(uint(blockIndex)) {
		g |= 0b01
	}
	if m.hi.Test(uint(blockIndex)) {
		g |= 0b10
	}
	return g, hnerr.OK
}

// Set assigns a grade to blockIndex.
func (m *Mask) Set(blockIndex uint64, g Grade) hnerr.Code {
	if blockIndex >= m.total {
		return hnerr.ErrGeometry
	}
	if g&0b01 != 0 {
		m.lo.Set(uint(blockIndex))
	} else {
		m.lo.Clear(uint(blockIndex))
	}
	if g&0b10 != 0 {
		m.hi.Set(uint(blockIndex))
	} else {
		m.hi.Clear(uint(blockIndex))
	}
	return hnerr.OK
}

// Admits reports whether blockIndex's grade is acceptable for intent
// (spec §4.1.2 step 2). Toxic is never admitted.
func (m *Mask) Admits(blockIndex uint64, intent Intent) (bool, hnerr.Code) {
	g, code := m.Get(blockIndex)
	if code.IsError() {
		return false, code
	}
	if g == Toxic {
		return false, hnerr.OK
	}
	if intent == IntentMetadata && g == Bronze {
		return false, hnerr.OK
	}
	return true, hnerr.OK
}
