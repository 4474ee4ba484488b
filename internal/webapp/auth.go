package webapp

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/seantiz/showcase/internal/model"
)

type userKey struct{}

// UserFromContext returns the authenticated user of a request, if any.
func UserFromContext(ctx context.Context) (*model.User, bool) {
	u, ok := ctx.Value(userKey{}).(*model.User)
	return u, ok
}

// WithUser returns ctx carrying u as the authenticated user.
func WithUser(ctx context.Context, u *model.User) context.Context {
	return context.WithValue(ctx, userKey{}, u)
}

// AuthenticationFilter resolves HTTP basic credentials to a user. It never
// rejects a request; enforcing access is left to the security filter.
type AuthenticationFilter struct {
	users  *Users
	logger *slog.Logger
}

// NewAuthenticationFilter creates an authentication filter checking users.
func NewAuthenticationFilter(users *Users, logger *slog.Logger) *AuthenticationFilter {
	return &AuthenticationFilter{users: users, logger: logger}
}

// Wrap implements Filter.
func (f *AuthenticationFilter) Wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, password, ok := r.BasicAuth()
		if !ok {
			next.ServeHTTP(w, r)
			return
		}
		u, err := f.users.Authenticate(r.Context(), id, password)
		if err != nil {
			f.logger.Debug("authentication failed", "user", id, "error", err)
			next.ServeHTTP(w, r)
			return
		}
		next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), u)))
	})
}
