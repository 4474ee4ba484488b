package webapp

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"golang.org/x/crypto/bcrypt"

	"github.com/seantiz/showcase/internal/store"
)

func newTestUsers(t *testing.T) *Users {
	t.Helper()
	s, err := store.NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	u := NewUsers(s)
	u.cost = bcrypt.MinCost
	return u
}

func TestUsersCreateAndAuthenticate(t *testing.T) {
	users := newTestUsers(t)
	ctx := context.Background()

	u, err := users.Create(ctx, NewUser{ID: "demo", FirstName: "Demo", Password: "secret"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if u.PasswordHash == "" || u.PasswordHash == "secret" {
		t.Errorf("password not hashed: %q", u.PasswordHash)
	}

	if _, err := users.Create(ctx, NewUser{ID: "demo", Password: "other"}); !errors.Is(err, ErrUserExists) {
		t.Errorf("duplicate Create error = %v, want ErrUserExists", err)
	}
	if _, err := users.Create(ctx, NewUser{ID: " ", Password: "x"}); !errors.Is(err, ErrInvalidUser) {
		t.Errorf("blank id error = %v, want ErrInvalidUser", err)
	}

	got, err := users.Authenticate(ctx, "demo", "secret")
	if err != nil || got.ID != "demo" || got.FirstName != "Demo" {
		t.Errorf("Authenticate = %+v, %v", got, err)
	}
	if _, err := users.Authenticate(ctx, "demo", "wrong"); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("wrong password error = %v", err)
	}
	if _, err := users.Authenticate(ctx, "nobody", "secret"); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("unknown user error = %v", err)
	}
}

func TestUsersEnsureAdmin(t *testing.T) {
	users := newTestUsers(t)
	ctx := context.Background()

	if err := users.EnsureAdmin(ctx, "", "ignored"); err != nil {
		t.Fatalf("EnsureAdmin without id: %v", err)
	}
	for range 2 {
		if err := users.EnsureAdmin(ctx, "admin", "admin"); err != nil {
			t.Fatalf("EnsureAdmin: %v", err)
		}
	}
	if n, _ := users.Count(ctx); n != 1 {
		t.Errorf("Count = %d, want 1", n)
	}

	if err := users.Delete(ctx, "admin"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := users.Delete(ctx, "admin"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("second Delete error = %v, want ErrNotFound", err)
	}
}

func TestAuthenticationFilter(t *testing.T) {
	users := newTestUsers(t)
	if _, err := users.Create(context.Background(), NewUser{ID: "demo", Password: "secret"}); err != nil {
		t.Fatal(err)
	}
	f := NewAuthenticationFilter(users, slog.New(slog.NewJSONHandler(io.Discard, nil)))
	h := f.Wrap(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if u, ok := UserFromContext(r.Context()); ok {
			io.WriteString(w, u.ID)
			return
		}
		io.WriteString(w, "anonymous")
	}))

	tests := []struct {
		name     string
		user     string
		password string
		want     string
	}{
		{"valid", "demo", "secret", "demo"},
		{"wrong password", "demo", "nope", "anonymous"},
		{"unknown user", "ghost", "secret", "anonymous"},
		{"no credentials", "", "", "anonymous"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/engine/engine", nil)
			if tt.user != "" {
				req.SetBasicAuth(tt.user, tt.password)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			if rec.Code != http.StatusOK || rec.Body.String() != tt.want {
				t.Errorf("got %d %q, want 200 %q", rec.Code, rec.Body.String(), tt.want)
			}
		})
	}
}

func TestUsersConcurrentDuplicateCreate(t *testing.T) {
	users := newTestUsers(t)
	ctx := context.Background()

	const n = 4
	errs := make([]error, n)
	var wg sync.WaitGroup
	for i := range n {
		wg.Go(func() {
			_, errs[i] = users.Create(ctx, NewUser{ID: "demo", Password: "secret"})
		})
	}
	wg.Wait()

	ok := 0
	for _, err := range errs {
		switch {
		case err == nil:
			ok++
		case !errors.Is(err, ErrUserExists):
			t.Errorf("Create error = %v, want ErrUserExists", err)
		}
	}
	if ok != 1 {
		t.Errorf("successful creates = %d, want 1", ok)
	}
}

func TestUsersSetup(t *testing.T) {
	users := newTestUsers(t)
	ctx := context.Background()

	if _, err := users.Setup(ctx, NewUser{ID: "first"}); !errors.Is(err, ErrInvalidUser) {
		t.Errorf("Setup without password error = %v, want ErrInvalidUser", err)
	}
	if _, err := users.Setup(ctx, NewUser{ID: "first", Password: "x"}); err != nil {
		t.Fatalf("Setup: %v", err)
	}
	if _, err := users.Setup(ctx, NewUser{ID: "second", Password: "x"}); !errors.Is(err, ErrSetupCompleted) {
		t.Errorf("second Setup error = %v, want ErrSetupCompleted", err)
	}
}
