package permission

// MaxBits is the number of distinct rights a Mask64 can carry.
const MaxBits = 64

// Mask64 is a fixed-width bitmask of rights.
type Mask64 uint64

func (m Mask64) Has(bit int) bool {
	if bit < 0 || bit >= MaxBits {
		return false
	}
	return (m & (1 << bit)) != 0
}

// HasAll reports whether every bit set in other is also set in m.
func (m Mask64) HasAll(other Mask64) bool {
	return m&other == other
}

func (m *Mask64) Set(bit int) {
	if bit < 0 || bit >= MaxBits {
		return
	}
	*m |= (1 << bit)
}

func (m *Mask64) Clear(bit int) {
	if bit < 0 || bit >= MaxBits {
		return
	}
	*m &^= (1 << bit)
}

func (m Mask64) Raw() uint64 {
	return uint64(m)
}
