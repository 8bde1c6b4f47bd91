package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/MrEthical07/sessiongate"
	"github.com/MrEthical07/sessiongate/internal/httputil"
	"github.com/MrEthical07/sessiongate/permission"
)

type identityContextKey struct{}

// IdentityFromContext returns the identity attached by a guard.
func IdentityFromContext(ctx context.Context) (*sessiongate.Identity, bool) {
	id, ok := ctx.Value(identityContextKey{}).(*sessiongate.Identity)
	return id, ok && id != nil
}

// ContextWithIdentity attaches identity to ctx the same way the guards do.
func ContextWithIdentity(ctx context.Context, identity *sessiongate.Identity) context.Context {
	return context.WithValue(ctx, identityContextKey{}, identity)
}

// OwnerFunc extracts the id of the resource a request targets. An empty
// string means the request targets no owned resource.
type OwnerFunc func(r *http.Request) string

// Authorize returns middleware that admits requests whose bearer token
// resolves to an identity holding every right in rights.
func Authorize(engine *sessiongate.Engine, rights ...permission.Right) func(http.Handler) http.Handler {
	return AuthorizeOwner(engine, nil, rights...)
}

// AuthorizeOwner is Authorize with the self-access override: a request whose
// owner id equals the caller's id is admitted without the rights.
func AuthorizeOwner(engine *sessiongate.Engine, owner OwnerFunc, rights ...permission.Right) func(http.Handler) http.Handler {
	required := append([]permission.Right(nil), rights...)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if engine == nil {
				writeError(w, http.StatusUnauthorized, messageUnauthenticated)
				return
			}

			token, _ := bearerToken(r.Header.Get("Authorization"))

			var ownerID string
			if owner != nil {
				ownerID = owner(r)
			}

			ctx := sessiongate.WithClientIP(r.Context(), httputil.ClientIP(r))
			identity, err := engine.Authorize(ctx, token, required, ownerID)
			if err != nil {
				if errors.Is(err, sessiongate.ErrForbidden) {
					writeError(w, http.StatusForbidden, messageForbidden)
					return
				}
				writeError(w, http.StatusUnauthorized, messageUnauthenticated)
				return
			}

			next.ServeHTTP(w, r.WithContext(ContextWithIdentity(r.Context(), identity)))
		})
	}
}

const (
	messageUnauthenticated = "Please authenticate"
	messageForbidden       = "Forbidden"
)

func writeError(w http.ResponseWriter, status int, message string) {
	httputil.WriteError(w, status, message)
}

func bearerToken(value string) (string, bool) {
	const bearer = "Bearer "
	if !strings.HasPrefix(value, bearer) {
		return "", false
	}

	token := strings.TrimSpace(value[len(bearer):])
	if token == "" {
		return "", false
	}

	return token, true
}
