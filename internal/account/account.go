// Package account signs staff up and in against the accounts collection and
// issues session tokens.
package account

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/example/sems-monitoring/internal/store"
)

const (
	RoleUser  = "user"
	RoleAdmin = "admin"

	adminID           = "admin"
	minPasswordLength = 6
)

var (
	ErrMissingCredentials = errors.New("email and password are required")
	ErrWeakPassword       = errors.New("password too short")
	ErrExists             = errors.New("account already exists")
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrInvalidAdmin       = errors.New("incorrect admin password")
)

var publicMessages = map[error]string{
	ErrMissingCredentials: "Email and password are required.",
	ErrWeakPassword:       "Password must be at least 6 characters long.",
	ErrExists:             "Account with this email already exists.",
	ErrInvalidCredentials: "Invalid email or password.",
	ErrInvalidAdmin:       "Incorrect admin password.",
}

// PublicMessage returns the text shown to the person signing in, and false
// for errors that must not be shown.
func PublicMessage(err error) (string, bool) {
	for target, msg := range publicMessages {
		if errors.Is(err, target) {
			return msg, true
		}
	}
	return "", false
}

// User is the signed-in principal.
type User struct {
	Email string `json:"email"`
	Role  string `json:"role"`
}

type Service struct {
	accounts store.Store
	cost     int
}

func NewService(accounts store.Store) *Service {
	return &Service{accounts: accounts, cost: bcrypt.DefaultCost}
}

// SanitizeEmail maps an email address to a key the realtime database accepts.
func SanitizeEmail(email string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '.', '@', '$', '[', ']', '#', '/':
			return ','
		}
		return r
	}, email)
}

func (s *Service) SignUp(ctx context.Context, email, password string) (User, error) {
	email = strings.TrimSpace(email)
	if email == "" || password == "" {
		return User{}, ErrMissingCredentials
	}
	if len(password) < minPasswordLength {
		return User{}, ErrWeakPassword
	}
	key := SanitizeEmail(email)
	if key == adminID {
		return User{}, ErrExists
	}
	_, exists, err := s.accounts.Get(ctx, key)
	if err != nil {
		return User{}, fmt.Errorf("look up account: %w", err)
	}
	if exists {
		return User{}, ErrExists
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if err != nil {
		return User{}, fmt.Errorf("hash password: %w", err)
	}
	username, _, _ := strings.Cut(email, "@")
	rec := store.Record{
		"email":        email,
		"passwordHash": string(hash),
		"username":     username,
		"role":         RoleUser,
	}
	if err := s.accounts.Set(ctx, key, rec); err != nil {
		return User{}, fmt.Errorf("save account: %w", err)
	}
	return User{Email: email, Role: RoleUser}, nil
}

// SignIn checks the special admin account when the login is "admin" and
// otherwise matches the email case-insensitively.
func (s *Service) SignIn(ctx context.Context, email, password string) (User, error) {
	email = strings.TrimSpace(email)
	if email == "" || password == "" {
		return User{}, ErrMissingCredentials
	}

	if strings.EqualFold(email, adminID) {
		rec, ok, err := s.accounts.Get(ctx, adminID)
		if err != nil {
			return User{}, fmt.Errorf("look up admin: %w", err)
		}
		if !ok || !passwordMatches(rec, password) {
			return User{}, ErrInvalidAdmin
		}
		return User{Email: adminID, Role: RoleAdmin}, nil
	}

	snap, err := s.accounts.List(ctx)
	if err != nil {
		return User{}, fmt.Errorf("list accounts: %w", err)
	}
	for _, id := range snap.IDs() {
		if id == adminID {
			continue
		}
		rec := snap[id]
		stored, _ := rec["email"].(string)
		if !strings.EqualFold(stored, email) || !passwordMatches(rec, password) {
			continue
		}
		role, _ := rec["role"].(string)
		if role == "" {
			role = RoleUser
		}
		return User{Email: stored, Role: role}, nil
	}
	return User{}, ErrInvalidCredentials
}

// EnsureAdmin creates the admin account with the given password when it does
// not exist yet.
func (s *Service) EnsureAdmin(ctx context.Context, password string) error {
	if len(password) < minPasswordLength {
		return ErrWeakPassword
	}
	_, ok, err := s.accounts.Get(ctx, adminID)
	if err != nil {
		return fmt.Errorf("look up admin: %w", err)
	}
	if ok {
		return nil
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	return s.accounts.Set(ctx, adminID, store.Record{"passwordHash": string(hash), "role": RoleAdmin})
}

// passwordMatches accepts bcrypt hashes and, for records written before
// hashing was introduced, the legacy plain "password" field.
func passwordMatches(rec store.Record, password string) bool {
	if hash, ok := rec["passwordHash"].(string); ok && hash != "" {
		return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
	}
	if plain, ok := rec["password"].(string); ok && plain != "" {
		return subtle.ConstantTimeCompare([]byte(plain), []byte(password)) == 1
	}
	return false
}
