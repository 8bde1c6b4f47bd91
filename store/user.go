package store

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/MrEthical07/sessiongate"
	"github.com/MrEthical07/sessiongate/permission"
)

var (
	// ErrNotFound is returned for unknown user ids.
	ErrNotFound = sessiongate.ErrIdentityNotFound
	// ErrEmailTaken is returned when an email is already registered.
	ErrEmailTaken = errors.New("email already taken")
	// ErrInvalidUser is returned for records missing a name, email or valid role.
	ErrInvalidUser = errors.New("invalid user")
)

// User is the profile record behind an Identity.
type User struct {
	ID              string          `json:"id"`
	Name            string          `json:"name"`
	Email           string          `json:"email"`
	Role            permission.Role `json:"role"`
	IsEmailVerified bool            `json:"isEmailVerified"`
	CreatedAt       time.Time       `json:"createdAt"`
	UpdatedAt       time.Time       `json:"updatedAt"`
}

// Identity returns the immutable snapshot the engine binds to requests and
// connections.
func (u User) Identity() sessiongate.Identity {
	return sessiongate.Identity{
		ID:          u.ID,
		Email:       u.Email,
		Role:        u.Role,
		DisplayName: u.Name,
	}
}

func (u User) validate() error {
	if strings.TrimSpace(u.Name) == "" || !strings.Contains(u.Email, "@") || !u.Role.Valid() {
		return ErrInvalidUser
	}
	return nil
}

// UserUpdate lists the fields an update may change. Nil fields are kept.
type UserUpdate struct {
	Name  *string          `json:"name,omitempty"`
	Email *string          `json:"email,omitempty"`
	Role  *permission.Role `json:"role,omitempty"`
}

func (u UserUpdate) apply(user *User) {
	if u.Name != nil {
		user.Name = strings.TrimSpace(*u.Name)
	}
	if u.Email != nil {
		user.Email = normalizeEmail(*u.Email)
	}
	if u.Role != nil {
		user.Role = *u.Role
	}
}

// ListOptions filters and paginates List. Zero Role matches every role.
type ListOptions struct {
	Name  string
	Role  permission.Role
	Limit int
	Page  int
}

const (
	defaultLimit = 10
	maxLimit     = 100
)

func (o ListOptions) normalized() ListOptions {
	if o.Limit <= 0 {
		o.Limit = defaultLimit
	}
	if o.Limit > maxLimit {
		o.Limit = maxLimit
	}
	if o.Page <= 0 {
		o.Page = 1
	}
	o.Name = strings.TrimSpace(o.Name)
	return o
}

func (o ListOptions) matches(u User) bool {
	if o.Role != permission.RoleUnknown && u.Role != o.Role {
		return false
	}
	if o.Name != "" && !strings.Contains(strings.ToLower(u.Name), strings.ToLower(o.Name)) {
		return false
	}
	return true
}

// Page is one page of List results.
type Page struct {
	Results      []User `json:"results"`
	Page         int    `json:"page"`
	Limit        int    `json:"limit"`
	TotalPages   int    `json:"totalPages"`
	TotalResults int    `json:"totalResults"`
}

func newPage(opts ListOptions, total int, results []User) Page {
	if results == nil {
		results = []User{}
	}
	return Page{
		Results:      results,
		Page:         opts.Page,
		Limit:        opts.Limit,
		TotalPages:   (total + opts.Limit - 1) / opts.Limit,
		TotalResults: total,
	}
}

// Directory is the user store contract shared by every backend.
type Directory interface {
	sessiongate.IdentityProvider
	Get(ctx context.Context, id string) (User, error)
	List(ctx context.Context, opts ListOptions) (Page, error)
	Create(ctx context.Context, user User) (User, error)
	Update(ctx context.Context, id string, update UserUpdate) (User, error)
	Delete(ctx context.Context, id string) error
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
