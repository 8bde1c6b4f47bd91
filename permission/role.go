package permission

import "strings"

// Right is an atomic permission tag gating a specific operation.
type Right string

const (
	// GetUsers allows listing and reading any user profile.
	GetUsers Right = "getUsers"
	// ManageUsers allows creating, updating and deleting any user.
	ManageUsers Right = "manageUsers"
	// GetStudents allows listing student profiles.
	GetStudents Right = "getStudents"
)

// Role is the closed set of platform roles.
type Role uint8

const (
	// RoleUnknown is the zero Role. It carries no rights.
	RoleUnknown Role = iota
	RoleStudent
	RoleMentor
	RoleAdmin
	RoleInstitution
	RoleEmployer
	RoleFaculty
	roleCount
)

var roleNames = [roleCount]string{
	RoleUnknown:     "unknown",
	RoleStudent:     "student",
	RoleMentor:      "mentor",
	RoleAdmin:       "admin",
	RoleInstitution: "institution",
	RoleEmployer:    "employer",
	RoleFaculty:     "faculty",
}

// Roles returns every valid role in declaration order.
func Roles() []Role {
	out := make([]Role, 0, roleCount-1)
	for r := RoleStudent; r < roleCount; r++ {
		out = append(out, r)
	}
	return out
}

// ParseRole maps a role name to its Role. Unrecognised names return
// RoleUnknown and false.
func ParseRole(name string) (Role, bool) {
	name = strings.ToLower(strings.TrimSpace(name))
	for r := RoleStudent; r < roleCount; r++ {
		if roleNames[r] == name {
			return r, true
		}
	}
	return RoleUnknown, false
}

func (r Role) String() string {
	if r >= roleCount {
		return roleNames[RoleUnknown]
	}
	return roleNames[r]
}

// Valid reports whether r is one of the declared roles other than RoleUnknown.
func (r Role) Valid() bool {
	return r > RoleUnknown && r < roleCount
}

func (r Role) MarshalText() ([]byte, error) {
	return []byte(r.String()), nil
}

// UnmarshalText never fails: unknown names decode to RoleUnknown so stored
// records with a retired role authenticate with no rights.
func (r *Role) UnmarshalText(text []byte) error {
	*r, _ = ParseRole(string(text))
	return nil
}
