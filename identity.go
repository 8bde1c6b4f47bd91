package sessiongate

import (
	"context"

	"github.com/MrEthical07/sessiongate/permission"
)

// Identity is the snapshot of a user resolved from a verified token. It is
// resolved once per request or once per connection and never refreshed.
type Identity struct {
	ID          string          `json:"id"`
	Email       string          `json:"email"`
	Role        permission.Role `json:"role"`
	DisplayName string          `json:"name"`
}

// IdentityProvider resolves token subjects to identities.
//
// FindIdentityByID must return ErrIdentityNotFound (or an error wrapping it)
// for ids with no record; any other error is treated as a lookup outage.
type IdentityProvider interface {
	FindIdentityByID(ctx context.Context, id string) (Identity, error)
}

// IdentityProviderFunc adapts a function to IdentityProvider.
type IdentityProviderFunc func(ctx context.Context, id string) (Identity, error)

func (f IdentityProviderFunc) FindIdentityByID(ctx context.Context, id string) (Identity, error) {
	return f(ctx, id)
}

// Handshake carries the credentials presented when a socket connection opens.
// AuthToken is the handshake auth field, QueryToken the ?token= parameter.
type Handshake struct {
	AuthToken  string
	QueryToken string
	RemoteAddr string
}

func (h Handshake) token() string {
	if h.AuthToken != "" {
		return h.AuthToken
	}
	return h.QueryToken
}
