package webapp

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
)

// AdminAPI serves user administration below /api/admin.
type AdminAPI struct {
	users  *Users
	logger *slog.Logger
	router chi.Router
}

// NewAdminAPI creates the admin API.
func NewAdminAPI(engines *Engines, users *Users, logger *slog.Logger) *AdminAPI {
	a := &AdminAPI{users: users, logger: logger}
	r := chi.NewRouter()
	r.Route("/{engine}", func(r chi.Router) {
		r.Use(withEngine(engines))
		r.Get("/user", a.handleListUsers)
		r.Post("/user", a.handleCreateUser)
		r.Delete("/user/{id}", a.handleDeleteUser)
		r.Post("/setup/user", a.handleSetupUser)
	})
	a.router = r
	return a
}

func (a *AdminAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	a.router.ServeHTTP(w, r)
}

func (a *AdminAPI) handleListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := a.users.List(r.Context())
	if err != nil {
		writeServiceError(w, a.logger, "list users", err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(users))
}

func (a *AdminAPI) handleCreateUser(w http.ResponseWriter, r *http.Request) {
	var req NewUser
	if err := decodeJSON(w, r, &req); err != nil {
		writeServiceError(w, a.logger, "create user", err)
		return
	}
	u, err := a.users.Create(r.Context(), req)
	if err != nil {
		writeServiceError(w, a.logger, "create user", err)
		return
	}
	a.logger.Info("user created", "user", u.ID)
	writeJSON(w, http.StatusCreated, u)
}

func (a *AdminAPI) handleDeleteUser(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := a.users.Delete(r.Context(), id); err != nil {
		writeServiceError(w, a.logger, "delete user", err)
		return
	}
	a.logger.Info("user deleted", "user", id)
	w.WriteHeader(http.StatusNoContent)
}

// handleSetupUser creates the first user. It is forbidden once any user exists.
func (a *AdminAPI) handleSetupUser(w http.ResponseWriter, r *http.Request) {
	var req NewUser
	if err := decodeJSON(w, r, &req); err != nil {
		writeServiceError(w, a.logger, "setup user", err)
		return
	}
	u, err := a.users.Setup(r.Context(), req)
	if err != nil {
		writeServiceError(w, a.logger, "setup user", err)
		return
	}
	a.logger.Info("initial user created", "user", u.ID)
	writeJSON(w, http.StatusCreated, u)
}
