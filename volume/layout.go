package volume

import (
	"github.com/hydranexus/hn4/internal/armor"
	"github.com/hydranexus/hn4/internal/cortex"
)

// epochRingRecords is the fixed Epoch Ring capacity: small, since only
// the last handful of unmounts ever matter for recovery (spec §4.5.2).
const epochRingRecords = 64

// cortexBlocksPerAnchor sets the Nano-Cortex slot count as a fraction of
// the volume's total blocks, the same "one record per N blocks" sizing
// rule the teacher's ext4.go uses to size its inode table off block
// count (ext4FormatOptions' inode ratio), generalized to HN4's flat
// anchor table.
const cortexBlocksPerAnchor = 16

// layout is the block-indexed geometry of a freshly formatted volume:
// where each fixed region starts, in HN4 blocks. Superblock replicas are
// addressed separately, in the device's fixed 512-byte sector space (see
// internal/sb.ComputeOffsets) — they are not part of this block-indexed
// plane, so layout reserves a one-block margin at the front for North.
type layout struct {
	EpochRingStart    uint64
	EpochRingBlocks   uint64
	CortexStart       uint64
	CortexBlocks      uint64
	CortexCapacity    uint64
	VoidBitmapStart   uint64
	VoidBitmapBlocks  uint64
	QualityMaskStart  uint64
	QualityMaskBlocks uint64
	FluxManifoldStart uint64
	AvailableD1Blocks uint64
	HorizonStart      uint64
	HorizonBlocks     uint64
	JournalStart      uint64
}

func ceilDiv(n, d uint64) uint64 {
	if d == 0 {
		return 0
	}
	return (n + d - 1) / d
}

// computeLayout lays every fixed region out sequentially after a
// one-block front margin, sizing each region generously from totalBlocks
// rather than to the exact byte: this is a teaching module, not a format
// committee, and qmask's bitset-backed MarshalBinary carries encoding
// overhead that isn't worth hand-deriving to the byte (see DESIGN.md).
func computeLayout(totalBlocks uint64, blockSize uint32) layout {
	l := layout{}
	cursor := uint64(1)

	recordsPerBlock := ceilDiv(uint64(blockSize), 16)
	l.EpochRingStart = cursor
	l.EpochRingBlocks = ceilDiv(epochRingRecords, recordsPerBlock)
	cursor += l.EpochRingBlocks

	l.CortexCapacity = totalBlocks / cortexBlocksPerAnchor
	if l.CortexCapacity < 16 {
		l.CortexCapacity = 16
	}
	cortexBytes := l.CortexCapacity * cortex.RecordSize
	l.CortexStart = cursor
	l.CortexBlocks = ceilDiv(cortexBytes, uint64(blockSize))
	cursor += l.CortexBlocks

	l3Words := ceilDiv(totalBlocks, armor.BitsPerWord)
	l2Words := ceilDiv(ceilDiv(totalBlocks, armor.L2GroupBlocks), armor.BitsPerWord)
	// +8 for the two length prefixes encodeTwoBlobs puts in front.
	voidBytes := (l3Words+l2Words)*armor.WordSize + 8
	l.VoidBitmapStart = cursor
	l.VoidBitmapBlocks = ceilDiv(voidBytes, uint64(blockSize))
	cursor += l.VoidBitmapBlocks

	// bitset.BitSet's MarshalBinary adds a small fixed header per set; a
	// 2x safety margin over the raw 2-bits-per-block payload comfortably
	// covers it without computing the library's exact wire format.
	qmaskBytes := ceilDiv(totalBlocks, 4) * 2
	l.QualityMaskStart = cursor
	l.QualityMaskBlocks = ceilDiv(qmaskBytes, uint64(blockSize))
	cursor += l.QualityMaskBlocks

	l.FluxManifoldStart = cursor

	remaining := uint64(0)
	if totalBlocks > cursor {
		remaining = totalBlocks - cursor
	}
	// Reserve 1/16th of what's left for the Horizon ring, minimum 8
	// blocks, per spec §4.1.4's "small fixed fraction" guidance.
	horizonBlocks := remaining / 16
	if horizonBlocks < 8 {
		horizonBlocks = 8
	}
	if horizonBlocks > remaining {
		horizonBlocks = remaining
	}
	l.AvailableD1Blocks = remaining - horizonBlocks
	l.HorizonStart = l.FluxManifoldStart + l.AvailableD1Blocks
	l.HorizonBlocks = horizonBlocks
	l.JournalStart = l.HorizonStart + l.HorizonBlocks

	return l
}
