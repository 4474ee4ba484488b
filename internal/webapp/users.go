package webapp

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/seantiz/showcase/internal/model"
	"github.com/seantiz/showcase/internal/store"
)

var (
	// ErrInvalidUser is returned for a user without id or password.
	ErrInvalidUser = errors.New("invalid user")

	// ErrUserExists is returned when creating a user whose id is taken.
	ErrUserExists = errors.New("user already exists")

	// ErrInvalidCredentials is returned by Authenticate for an unknown user
	// or a wrong password.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrSetupCompleted is returned by Setup once any user exists.
	ErrSetupCompleted = errors.New("setup already completed")
)

// UserStore is the part of the store the user service needs.
type UserStore interface {
	CreateUser(ctx context.Context, u *model.User) error
	GetUser(ctx context.Context, id string) (*model.User, error)
	ListUsers(ctx context.Context) ([]*model.User, error)
	DeleteUser(ctx context.Context, id string) error
	CountUsers(ctx context.Context) (int, error)
	InTx(ctx context.Context, fn func(tx store.Tx) error) error
}

// NewUser is the input for creating a user.
type NewUser struct {
	ID        string `json:"id"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Email     string `json:"email"`
	Password  string `json:"password"`
}

// Users manages the administrative users of the web applications.
type Users struct {
	store UserStore
	cost  int
}

// NewUsers creates a user service backed by s.
func NewUsers(s UserStore) *Users {
	return &Users{store: s, cost: bcrypt.DefaultCost}
}

// Create hashes the password of u and stores the user.
func (s *Users) Create(ctx context.Context, u NewUser) (*model.User, error) {
	user, err := s.newRecord(u)
	if err != nil {
		return nil, err
	}
	if err := s.insert(ctx, s.store, user); err != nil {
		return nil, err
	}
	return user, nil
}

// Setup creates the first user. Counting and inserting run in one
// transaction, so of concurrent setups only the first one succeeds.
func (s *Users) Setup(ctx context.Context, u NewUser) (*model.User, error) {
	user, err := s.newRecord(u)
	if err != nil {
		return nil, err
	}
	err = s.store.InTx(ctx, func(tx store.Tx) error {
		n, err := tx.CountUsers(ctx)
		if err != nil {
			return fmt.Errorf("count users: %w", err)
		}
		if n > 0 {
			return ErrSetupCompleted
		}
		return s.insert(ctx, tx, user)
	})
	if err != nil {
		return nil, err
	}
	return user, nil
}

// newRecord validates u and hashes its password. Hashing happens before any
// transaction is opened.
func (s *Users) newRecord(u NewUser) (*model.User, error) {
	u.ID = strings.TrimSpace(u.ID)
	if u.ID == "" || u.Password == "" {
		return nil, fmt.Errorf("%w: id and password are required", ErrInvalidUser)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(u.Password), s.cost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	return &model.User{
		ID:           u.ID,
		FirstName:    u.FirstName,
		LastName:     u.LastName,
		Email:        u.Email,
		PasswordHash: string(hash),
		CreatedAt:    time.Now().UTC(),
	}, nil
}

// userInserter is satisfied by the store and by its transactions.
type userInserter interface {
	CreateUser(ctx context.Context, u *model.User) error
}

func (s *Users) insert(ctx context.Context, dst userInserter, u *model.User) error {
	err := dst.CreateUser(ctx, u)
	if errors.Is(err, store.ErrAlreadyExists) {
		return fmt.Errorf("%w: %s", ErrUserExists, u.ID)
	}
	if err != nil {
		return fmt.Errorf("create user: %w", err)
	}
	return nil
}

// List returns all users.
func (s *Users) List(ctx context.Context) ([]*model.User, error) {
	return s.store.ListUsers(ctx)
}

// Delete removes the user with the given id.
func (s *Users) Delete(ctx context.Context, id string) error {
	return s.store.DeleteUser(ctx, id)
}

// Count returns the number of users.
func (s *Users) Count(ctx context.Context) (int, error) {
	return s.store.CountUsers(ctx)
}

// Authenticate checks a user id and password.
func (s *Users) Authenticate(ctx context.Context, id, password string) (*model.User, error) {
	u, err := s.store.GetUser(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, fmt.Errorf("lookup user: %w", err)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}
	return u, nil
}

// EnsureAdmin creates the user id with the given password unless it exists.
// It does nothing when id is empty.
func (s *Users) EnsureAdmin(ctx context.Context, id, password string) error {
	if id == "" {
		return nil
	}
	_, err := s.Create(ctx, NewUser{ID: id, Password: password})
	if errors.Is(err, ErrUserExists) {
		return nil
	}
	return err
}
