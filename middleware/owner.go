package middleware

import (
	"net/http"

	"github.com/MrEthical07/sessiongate"
	"github.com/gorilla/mux"
)

// PathOwner reads the owner id from the gorilla/mux route variable name.
func PathOwner(name string) OwnerFunc {
	return func(r *http.Request) string {
		return mux.Vars(r)[name]
	}
}

// Authenticated admits any request carrying a valid token, regardless of
// role. It is Authorize with no required rights.
func Authenticated(engine *sessiongate.Engine) func(http.Handler) http.Handler {
	return Authorize(engine)
}
