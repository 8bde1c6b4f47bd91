package permission

import (
	"errors"
	"sync"
)

// RoleManager composes one [Mask64] per [Role] from a frozen [Registry].
type RoleManager struct {
	registry *Registry

	mu     sync.RWMutex
	roles  map[Role]Mask64
	frozen bool
}

// NewRoleManager returns a RoleManager resolving right names through registry.
func NewRoleManager(registry *Registry) *RoleManager {
	return &RoleManager{
		registry: registry,
		roles:    make(map[Role]Mask64),
	}
}

// RegisterRole records the right-set of role. Each role may be registered once;
// every right must already be known to the registry.
func (rm *RoleManager) RegisterRole(role Role, rights []Right) error {
	rm.mu.Lock()
	defer rm.mu.Unlock()

	if rm.frozen {
		return errors.New("role manager frozen")
	}

	if !role.Valid() {
		return errors.New("role invalid: " + role.String())
	}

	if _, exists := rm.roles[role]; exists {
		return errors.New("role already registered: " + role.String())
	}

	var mask Mask64
	for _, right := range rights {
		bit, ok := rm.registry.Bit(right)
		if !ok {
			return errors.New("right not registered: " + string(right))
		}
		mask.Set(bit)
	}

	rm.roles[role] = mask
	return nil
}

// Mask returns the mask registered for role. Unregistered roles report false
// and the zero mask.
func (rm *RoleManager) Mask(role Role) (Mask64, bool) {
	rm.mu.RLock()
	defer rm.mu.RUnlock()

	mask, ok := rm.roles[role]
	return mask, ok
}

// Freeze prevents further role registration.
func (rm *RoleManager) Freeze() {
	rm.mu.Lock()
	defer rm.mu.Unlock()
	rm.frozen = true
}

// Count returns the number of registered roles.
func (rm *RoleManager) Count() int {
	rm.mu.RLock()
	defer rm.mu.RUnlock()
	return len(rm.roles)
}
