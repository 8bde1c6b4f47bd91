package permission

// DefaultTable is the platform's role policy.
var DefaultTable = map[Role][]Right{
	RoleStudent:     {},
	RoleMentor:      {GetStudents},
	RoleAdmin:       {GetUsers, ManageUsers, GetStudents},
	RoleInstitution: {GetStudents},
	RoleEmployer:    {GetStudents},
	RoleFaculty:     {GetStudents},
}

// Policy is the frozen, process-wide role policy table.
type Policy struct {
	registry *Registry
	roles    *RoleManager
}

// NewPolicy builds a frozen Policy from table. Every valid role gets a
// right-set: roles absent from table are registered with no rights.
func NewPolicy(table map[Role][]Right) (*Policy, error) {
	registry := NewRegistry()
	for _, role := range Roles() {
		for _, right := range table[role] {
			if _, err := registry.Register(right); err != nil {
				return nil, err
			}
		}
	}
	registry.Freeze()

	roles := NewRoleManager(registry)
	for _, role := range Roles() {
		if err := roles.RegisterRole(role, table[role]); err != nil {
			return nil, err
		}
	}
	roles.Freeze()

	return &Policy{registry: registry, roles: roles}, nil
}

// MustDefaultPolicy builds the Policy for DefaultTable.
func MustDefaultPolicy() *Policy {
	p, err := NewPolicy(DefaultTable)
	if err != nil {
		panic("permission: default policy: " + err.Error())
	}
	return p
}

// RightsFor returns the right-set of role. Unknown roles yield the empty set.
func (p *Policy) RightsFor(role Role) RightSet {
	if p == nil {
		return RightSet{}
	}
	mask, _ := p.roles.Mask(role)
	return RightSet{mask: mask, registry: p.registry}
}

// Satisfies reports whether role holds every right in required.
func (p *Policy) Satisfies(role Role, required []Right) bool {
	return p.RightsFor(role).HasAll(required)
}

// RightSet is an immutable set of rights.
type RightSet struct {
	mask     Mask64
	registry *Registry
}

func (s RightSet) Has(right Right) bool {
	if s.registry == nil {
		return false
	}
	bit, ok := s.registry.Bit(right)
	if !ok {
		return false
	}
	return s.mask.Has(bit)
}

// HasAll reports whether every right in required is in s. An empty required
// list is always satisfied.
func (s RightSet) HasAll(required []Right) bool {
	if len(required) == 0 {
		return true
	}
	if s.registry == nil {
		return false
	}

	var want Mask64
	for _, right := range required {
		bit, ok := s.registry.Bit(right)
		if !ok {
			return false
		}
		want.Set(bit)
	}
	return s.mask.HasAll(want)
}

// List returns the rights in s in bit order.
func (s RightSet) List() []Right {
	if s.registry == nil {
		return nil
	}
	out := make([]Right, 0, s.Len())
	for bit := 0; bit < MaxBits; bit++ {
		if !s.mask.Has(bit) {
			continue
		}
		if name, ok := s.registry.Name(bit); ok {
			out = append(out, name)
		}
	}
	return out
}

func (s RightSet) Len() int {
	n := 0
	for m := s.mask.Raw(); m != 0; m &= m - 1 {
		n++
	}
	return n
}
