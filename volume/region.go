package volume

import "encoding/binary"

// encodeTwoBlobs frames two independently-sized byte blobs (the void
// bitmap's L3+L2 dumps, or the quality mask's lo+hi bitsets) into one
// on-disk region with explicit length prefixes, so the volume layer does
// not need to know the internal wire format bits-and-blooms/bitset uses
// for its own MarshalBinary output.
func encodeTwoBlobs(a, b []byte) []byte {
	out := make([]byte, 8+len(a)+len(b))
	binary.LittleEndian.PutUint32(out[0:4], uint32(len(a)))
	binary.LittleEndian.PutUint32(out[4:8], uint32(len(b)))
	copy(out[8:8+len(a)], a)
	copy(out[8+len(a):8+len(a)+len(b)], b)
	return out
}

// decodeTwoBlobs reverses encodeTwoBlobs.
func decodeTwoBlobs(buf []byte) (a, b []byte, ok bool) {
	if len(buf) < 8 {
		return nil, nil, false
	}
	la := uint64(binary.LittleEndian.Uint32(buf[0:4]))
	lb := uint64(binary.LittleEndian.Uint32(buf[4:8]))
	if uint64(len(buf)) < 8+la+lb {
		return nil, nil, false
	}
	a = buf[8 : 8+la]
	b = buf[8+la : 8+la+lb]
	return a, b, true
}
