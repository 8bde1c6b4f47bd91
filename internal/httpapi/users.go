package httpapi

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/MrEthical07/sessiongate"
	"github.com/MrEthical07/sessiongate/internal/httputil"
	"github.com/MrEthical07/sessiongate/middleware"
	"github.com/MrEthical07/sessiongate/permission"
	"github.com/MrEthical07/sessiongate/store"
	"github.com/gorilla/mux"
)

const maxBodyBytes = 64 << 10

// Users serves /v1/users.
type Users struct {
	engine    *sessiongate.Engine
	directory store.Directory
	logger    *slog.Logger
}

func NewUsers(engine *sessiongate.Engine, directory store.Directory, logger *slog.Logger) *Users {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Users{
		engine:    engine,
		directory: directory,
		logger:    logger.With("component", "httpapi"),
	}
}

// RegisterRoutes mounts the user routes on router under /v1/users. Fixed
// paths are registered before /{userId} so they are never captured by it.
func (h *Users) RegisterRoutes(router *mux.Router) {
	r := router.PathPrefix("/v1/users").Subrouter()

	authenticated := middleware.Authenticated(h.engine)
	owner := middleware.PathOwner("userId")

	r.Handle("/profile/me", authenticated(http.HandlerFunc(h.getProfile))).Methods(http.MethodGet)
	r.Handle("/profile/me", authenticated(http.HandlerFunc(h.updateProfile))).Methods(http.MethodPatch)
	r.Handle("/mentors", authenticated(http.HandlerFunc(h.listRole(permission.RoleMentor)))).Methods(http.MethodGet)
	r.Handle("/students", middleware.Authorize(h.engine, permission.GetStudents)(http.HandlerFunc(h.listRole(permission.RoleStudent)))).Methods(http.MethodGet)

	r.Handle("", middleware.Authorize(h.engine, permission.ManageUsers)(http.HandlerFunc(h.createUser))).Methods(http.MethodPost)
	r.Handle("", middleware.Authorize(h.engine, permission.GetUsers)(http.HandlerFunc(h.listUsers))).Methods(http.MethodGet)
	r.Handle("/", middleware.Authorize(h.engine, permission.ManageUsers)(http.HandlerFunc(h.createUser))).Methods(http.MethodPost)
	r.Handle("/", middleware.Authorize(h.engine, permission.GetUsers)(http.HandlerFunc(h.listUsers))).Methods(http.MethodGet)

	r.Handle("/{userId}", middleware.AuthorizeOwner(h.engine, owner, permission.GetUsers)(http.HandlerFunc(h.getUser))).Methods(http.MethodGet)
	r.Handle("/{userId}", middleware.AuthorizeOwner(h.engine, owner, permission.ManageUsers)(http.HandlerFunc(h.updateUser))).Methods(http.MethodPatch)
	r.Handle("/{userId}", middleware.AuthorizeOwner(h.engine, owner, permission.ManageUsers)(http.HandlerFunc(h.deleteUser))).Methods(http.MethodDelete)
}

type createRequest struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Role  string `json:"role,omitempty"`
}

type updateRequest struct {
	Name  *string `json:"name,omitempty"`
	Email *string `json:"email,omitempty"`
	Role  *string `json:"role,omitempty"`
}

// createUser handles POST /v1/users
func (h *Users) createUser(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if err := httputil.DecodeJSON(r, maxBodyBytes, &req); err != nil {
		httputil.WriteBadRequest(w, "Invalid request body")
		return
	}

	role := permission.RoleStudent
	if req.Role != "" {
		parsed, ok := permission.ParseRole(req.Role)
		if !ok {
			httputil.WriteBadRequest(w, "Invalid role")
			return
		}
		role = parsed
	}

	user, err := h.directory.Create(r.Context(), store.User{Name: req.Name, Email: req.Email, Role: role})
	if err != nil {
		h.writeStoreError(w, err)
		return
	}
	_ = httputil.WriteJSON(w, http.StatusCreated, user)
}

// listUsers handles GET /v1/users?name=&role=&limit=&page=
func (h *Users) listUsers(w http.ResponseWriter, r *http.Request) {
	opts, ok := listOptions(w, r)
	if !ok {
		return
	}
	if value := r.URL.Query().Get("role"); value != "" {
		role, valid := permission.ParseRole(value)
		if !valid {
			httputil.WriteBadRequest(w, "Invalid role")
			return
		}
		opts.Role = role
	}
	h.writePage(w, r, opts)
}

// listRole serves the fixed-role listings behind /mentors and /students.
func (h *Users) listRole(role permission.Role) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		opts, ok := listOptions(w, r)
		if !ok {
			return
		}
		opts.Role = role
		h.writePage(w, r, opts)
	}
}

func (h *Users) writePage(w http.ResponseWriter, r *http.Request, opts store.ListOptions) {
	page, err := h.directory.List(r.Context(), opts)
	if err != nil {
		h.writeStoreError(w, err)
		return
	}
	_ = httputil.WriteJSON(w, http.StatusOK, page)
}

// getUser handles GET /v1/users/{userId}
func (h *Users) getUser(w http.ResponseWriter, r *http.Request) {
	h.writeUser(w, r, mux.Vars(r)["userId"])
}

// updateUser handles PATCH /v1/users/{userId}. Owners admitted through the
// self-access override may not change their own role.
func (h *Users) updateUser(w http.ResponseWriter, r *http.Request) {
	identity, _ := middleware.IdentityFromContext(r.Context())
	canManage := identity != nil && h.engine.RightsFor(identity.Role).Has(permission.ManageUsers)
	h.applyUpdate(w, r, mux.Vars(r)["userId"], canManage)
}

// deleteUser handles DELETE /v1/users/{userId}
func (h *Users) deleteUser(w http.ResponseWriter, r *http.Request) {
	if err := h.directory.Delete(r.Context(), mux.Vars(r)["userId"]); err != nil {
		h.writeStoreError(w, err)
		return
	}
	httputil.WriteNoContent(w)
}

// getProfile handles GET /v1/users/profile/me
func (h *Users) getProfile(w http.ResponseWriter, r *http.Request) {
	identity, _ := middleware.IdentityFromContext(r.Context())
	h.writeUser(w, r, identity.ID)
}

// updateProfile handles PATCH /v1/users/profile/me
func (h *Users) updateProfile(w http.ResponseWriter, r *http.Request) {
	identity, _ := middleware.IdentityFromContext(r.Context())
	h.applyUpdate(w, r, identity.ID, false)
}

func (h *Users) writeUser(w http.ResponseWriter, r *http.Request, id string) {
	user, err := h.directory.Get(r.Context(), id)
	if err != nil {
		h.writeStoreError(w, err)
		return
	}
	_ = httputil.WriteJSON(w, http.StatusOK, user)
}

func (h *Users) applyUpdate(w http.ResponseWriter, r *http.Request, id string, allowRole bool) {
	var req updateRequest
	if err := httputil.DecodeJSON(r, maxBodyBytes, &req); err != nil {
		httputil.WriteBadRequest(w, "Invalid request body")
		return
	}
	if req.Name == nil && req.Email == nil && req.Role == nil {
		httputil.WriteBadRequest(w, "Nothing to update")
		return
	}

	update := store.UserUpdate{Name: req.Name, Email: req.Email}
	if req.Role != nil {
		if !allowRole {
			httputil.WriteError(w, http.StatusForbidden, "Forbidden")
			return
		}
		role, ok := permission.ParseRole(*req.Role)
		if !ok {
			httputil.WriteBadRequest(w, "Invalid role")
			return
		}
		update.Role = &role
	}

	user, err := h.directory.Update(r.Context(), id, update)
	if err != nil {
		h.writeStoreError(w, err)
		return
	}
	_ = httputil.WriteJSON(w, http.StatusOK, user)
}

func (h *Users) writeStoreError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		httputil.WriteNotFound(w, "User not found")
	case errors.Is(err, store.ErrEmailTaken):
		httputil.WriteBadRequest(w, "Email already taken")
	case errors.Is(err, store.ErrInvalidUser):
		httputil.WriteBadRequest(w, "Invalid user")
	default:
		h.logger.Error("directory request failed", "error", err)
		httputil.WriteError(w, http.StatusInternalServerError, "Internal Server Error")
	}
}

func listOptions(w http.ResponseWriter, r *http.Request) (store.ListOptions, bool) {
	q := r.URL.Query()
	opts := store.ListOptions{Name: q.Get("name")}

	var err error
	if v := q.Get("limit"); v != "" {
		if opts.Limit, err = strconv.Atoi(v); err != nil {
			httputil.WriteBadRequest(w, "limit must be an integer")
			return opts, false
		}
	}
	if v := q.Get("page"); v != "" {
		if opts.Page, err = strconv.Atoi(v); err != nil {
			httputil.WriteBadRequest(w, "page must be an integer")
			return opts, false
		}
	}
	return opts, true
}
