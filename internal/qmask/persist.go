package qmask

// Dump marshals both underlying bitsets to their binary form, for the
// volume layer to persist to QualityMaskStart.
func (m *Mask) Dump() (lo, hi []byte, err error) {
	lo, err = m.lo.MarshalBinary()
	if err != nil {
		return nil, nil, err
	}
	hi, err = m.hi.MarshalBinary()
	if err != nil {
		return nil, nil, err
	}
	return lo, hi, nil
}

// LoadMask rebuilds a Mask from a prior Dump.
func LoadMask(totalBlocks uint64, loBytes, hiBytes []byte) (*Mask, error) {
	m := New(totalBlocks)
	if err := m.lo.UnmarshalBinary(loBytes); err != nil {
		return nil, err
	}
	if err := m.hi.UnmarshalBinary(hiBytes); err != nil {
		return nil, err
	}
	return m, nil
}
