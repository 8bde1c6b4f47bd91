package permission

import (
	"errors"
	"sync"
)

// Registry maps rights to bit positions within a [Mask64].
type Registry struct {
	mu        sync.RWMutex
	nameToBit map[Right]int
	bitToName map[int]Right
	frozen    bool
}

// NewRegistry creates an empty right [Registry].
func NewRegistry() *Registry {
	return &Registry{
		nameToBit: make(map[Right]int),
		bitToName: make(map[int]Right),
	}
}

// Register assigns the next available bit to the right and returns it.
// Registering a right twice returns the bit it already holds. Must be called
// before [Registry.Freeze].
func (r *Registry) Register(right Right) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.frozen {
		return -1, errors.New("registry frozen")
	}

	if right == "" {
		return -1, errors.New("right name cannot be empty")
	}

	if bit, exists := r.nameToBit[right]; exists {
		return bit, nil
	}

	nextBit := len(r.nameToBit)
	if nextBit >= MaxBits {
		return -1, errors.New("right limit exceeded")
	}

	r.nameToBit[right] = nextBit
	r.bitToName[nextBit] = right

	return nextBit, nil
}

// Bit returns the bit index for the right, or false if not registered.
func (r *Registry) Bit(right Right) (int, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	bit, ok := r.nameToBit[right]
	return bit, ok
}

// Name returns the right for the given bit index, or false if unassigned.
func (r *Registry) Name(bit int) (Right, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	name, ok := r.bitToName[bit]
	return name, ok
}

// Freeze prevents further registrations.
func (r *Registry) Freeze() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.frozen = true
}

// Frozen reports whether Freeze has been called.
func (r *Registry) Frozen() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.frozen
}

// Count returns the number of registered rights.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.nameToBit)
}
