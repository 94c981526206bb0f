// Package blockio implements the HN4 Block I/O data path of spec §4.3:
// the fixed block header, atomic read across trajectory candidates,
// shadow-hop atomic write, and the Lazarus pulse-check used by undelete.
// Header layout and checksum handling follow the teacher's crc32c.go
// (CRC32 Castagnoli) and the explicit-offset byte packing of
// superblock.go/inode.go.
package blockio

import (
	"encoding/binary"
	"hash/crc32"

	"github.com/hydranexus/hn4/internal/hnerr"
)

// HeaderSize is the fixed on-disk block header size (spec §6: magic:u32,
// well_id:u128, logical_idx:u64, write_gen:u32, payload_len:u32,
// reserved:u32, header_crc:u32, payload_crc:u32).
const HeaderSize = 48

const blockMagic uint32 = 0x484e344b // "HN4K"

var crcTable = crc32.MakeTable(crc32.Castagnoli)

// Header is the parsed form of a block's fixed header.
type Header struct {
	WellID     [16]byte
	LogicalIdx uint64
	WriteGen   uint32
	PayloadLen uint32
	PayloadCRC uint32
}

// EncodeHeader packs h into its HeaderSize on-disk form. header_crc
// covers every preceding field (magic through reserved); payload_crc is
// the caller-supplied checksum of the payload bytes that follow.
func EncodeHeader(h *Header) [HeaderSize]byte {
	var b [HeaderSize]byte
	binary.LittleEndian.PutUint32(b[0:4], blockMagic)
	copy(b[4:20], h.WellID[:])
	binary.LittleEndian.PutUint64(b[20:28], h.LogicalIdx)
	binary.LittleEndian.PutUint32(b[28:32], h.WriteGen)
	binary.LittleEndian.PutUint32(b[32:36], h.PayloadLen)
	// b[36:40] reserved, left zero.
	crc := crc32.Checksum(b[:40], crcTable)
	binary.LittleEndian.PutUint32(b[40:44], crc)
	binary.LittleEndian.PutUint32(b[44:48], h.PayloadCRC)
	return b
}

// DecodeHeader validates magic and the header CRC, returning the parsed
// header on success. A bad magic or CRC disqualifies this candidate
// block entirely; the caller moves on to the next trajectory candidate.
func DecodeHeader(buf []byte) (*Header, hnerr.Code) {
	if len(buf) < HeaderSize {
		return nil, hnerr.ErrGeometry
	}
	if got := binary.LittleEndian.Uint32(buf[0:4]); got != blockMagic {
		return nil, hnerr.ErrNotFound
	}
	crc := crc32.Checksum(buf[:40], crcTable)
	if want := binary.LittleEndian.Uint32(buf[40:44]); crc != want {
		return nil, hnerr.ErrHeaderRot
	}

	h := &Header{}
	copy(h.WellID[:], buf[4:20])
	h.LogicalIdx = binary.LittleEndian.Uint64(buf[20:28])
	h.WriteGen = binary.LittleEndian.Uint32(buf[28:32])
	h.PayloadLen = binary.LittleEndian.Uint32(buf[32:36])
	h.PayloadCRC = binary.LittleEndian.Uint32(buf[44:48])
	return h, hnerr.OK
}

// BuildBlock assembles a full blockSize-byte block: header followed by
// payload, zero-padded to the block boundary.
func BuildBlock(blockSize uint32, wellID [16]byte, logicalIdx uint64, writeGen uint32, payload []byte) ([]byte, hnerr.Code) {
	if len(payload) > int(blockSize)-HeaderSize {
		return nil, hnerr.ErrGeometry
	}
	block := make([]byte, blockSize)
	hdr := Header{
		WellID:     wellID,
		LogicalIdx: logicalIdx,
		WriteGen:   writeGen,
		PayloadLen: uint32(len(payload)),
		PayloadCRC: crc32.Checksum(payload, crcTable),
	}
	encoded := EncodeHeader(&hdr)
	copy(block[:HeaderSize], encoded[:])
	copy(block[HeaderSize:HeaderSize+len(payload)], payload)
	return block, hnerr.OK
}

// VerifyPayload checks a decoded header's payload_crc against the actual
// payload bytes carried in block.
func VerifyPayload(block []byte, hdr *Header) hnerr.Code {
	end := HeaderSize + int(hdr.PayloadLen)
	if end > len(block) {
		return hnerr.ErrGeometry
	}
	payload := block[HeaderSize:end]
	if crc32.Checksum(payload, crcTable) != hdr.PayloadCRC {
		return hnerr.ErrDataRot
	}
	return hnerr.OK
}
