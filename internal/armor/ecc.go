package armor

import "sync"

// eccLUT is the lazily-initialized, immutable-after-init process-wide
// syndrome lookup table spec §9 allows as the sole process-wide state
// ("process-wide state is limited to the ECC syndrome LUT"). It maps each
// data-bit index to its Hamming codeword bit position and back; parity-bit
// positions have no entry in posToDataBit.
type eccLUT struct {
	dataPositions [dataBits]int // codeword position (1-based) for data bit i
	posToDataBit  map[int]int   // codeword position -> data bit index
}

const (
	dataBits    = 64
	parityBits  = 7
	codewordLen = 71 // dataBits + parityBits
)

var (
	lutOnce sync.Once
	lut     *eccLUT
)

func getLUT() *eccLUT {
	lutOnce.Do(func() {
		l := &eccLUT{posToDataBit: make(map[int]int, dataBits)}
		i := 0
		for pos := 1; pos <= codewordLen && i < dataBits; pos++ {
			if isPowerOfTwo(pos) {
				continue
			}
			l.dataPositions[i] = pos
			l.posToDataBit[pos] = i
			i++
		}
		lut = l
	})
	return lut
}

func isPowerOfTwo(v int) bool {
	return v != 0 && v&(v-1) == 0
}

// buildCodeword lays data bits and the 7 received parity bits into a
// 1-indexed boolean array (index 0 unused).
func buildCodeword(data uint64, parity [parityBits]bool) [codewordLen + 1]bool {
	l := getLUT()
	var cw [codewordLen + 1]bool
	for i := 0; i < dataBits; i++ {
		cw[l.dataPositions[i]] = (data>>uint(i))&1 == 1
	}
	for k := 0; k < parityBits; k++ {
		cw[1<<uint(k)] = parity[k]
	}
	return cw
}

func parityBitsFromECC(ecc uint8) [parityBits]bool {
	var p [parityBits]bool
	for k := 0; k < parityBits; k++ {
		p[k] = (ecc>>uint(k))&1 == 1
	}
	return p
}

func overallParityBitFromECC(ecc uint8) bool {
	return (ecc>>7)&1 == 1
}

// encodeECC computes the 8-bit ECC byte for a 64-bit data word: 7 Hamming
// parity bits in bits 0-6, one global (SEC-DED) parity bit in bit 7.
func encodeECC(data uint64) uint8 {
	cw := buildCodeword(data, [parityBits]bool{})
	var parity [parityBits]bool
	for k := 0; k < parityBits; k++ {
		p := 1 << uint(k)
		v := false
		for pos := 1; pos <= codewordLen; pos++ {
			if pos&p != 0 {
				v = v != cw[pos]
			}
		}
		parity[k] = v
		cw[p] = v
	}
	overall := false
	for pos := 1; pos <= codewordLen; pos++ {
		overall = overall != cw[pos]
	}
	var ecc uint8
	for k := 0; k < parityBits; k++ {
		if parity[k] {
			ecc |= 1 << uint(k)
		}
	}
	if overall {
		ecc |= 1 << 7
	}
	return ecc
}

// eccOutcome classifies what decodeAndCorrect found.
type eccOutcome int

const (
	eccClean eccOutcome = iota
	eccHealedData
	eccHealedParityOnly // the stored ECC byte itself had the single-bit error; data untouched
	eccDoubleBitError
)

// decodeAndCorrect recomputes the syndrome and global parity for (data,
// ecc) and classifies the result per spec §4.2.2. On a single-bit error
// it returns the corrected data/ecc pair; on a double-bit error it
// returns the inputs unchanged with eccDoubleBitError.
func decodeAndCorrect(data uint64, ecc uint8) (outcome eccOutcome, correctedData uint64, correctedECC uint8) {
	l := getLUT()
	parity := parityBitsFromECC(ecc)
	cw := buildCodeword(data, parity)

	syndrome := 0
	for k := 0; k < parityBits; k++ {
		p := 1 << uint(k)
		v := false
		for pos := 1; pos <= codewordLen; pos++ {
			if pos&p != 0 {
				v = v != cw[pos]
			}
		}
		if v {
			syndrome |= p
		}
	}

	overallRecomputed := false
	for pos := 1; pos <= codewordLen; pos++ {
		overallRecomputed = overallRecomputed != cw[pos]
	}
	parityMismatch := overallRecomputed != overallParityBitFromECC(ecc)

	switch {
	case syndrome == 0 && !parityMismatch:
		return eccClean, data, ecc
	case syndrome == 0 && parityMismatch:
		// The error is confined to the global parity bit itself.
		return eccHealedParityOnly, data, ecc ^ (1 << 7)
	case syndrome != 0 && parityMismatch:
		if isPowerOfTwo(syndrome) {
			k := 0
			for (1 << uint(k)) != syndrome {
				k++
			}
			return eccHealedParityOnly, data, ecc ^ (1 << uint(k))
		}
		bit, ok := l.posToDataBit[syndrome]
		if !ok {
			// Syndrome points outside the mapped data/parity range: not a
			// single correctable bit.
			return eccDoubleBitError, data, ecc
		}
		return eccHealedData, data ^ (1 << uint(bit)), ecc
	default: // syndrome != 0 && !parityMismatch
		return eccDoubleBitError, data, ecc
	}
}
