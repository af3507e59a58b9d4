package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"kakeibo/internal/auth"
	"kakeibo/internal/core"
	"kakeibo/internal/log"
	"kakeibo/internal/storage"
)

type AuthStore interface {
	storage.UserRepository
	CountCategories(ctx context.Context, userID string) (int, error)
	CreateCategories(ctx context.Context, userID string, cs []core.Category) ([]core.Category, error)
}

type AuthOptions struct {
	BcryptCost     int
	CheckEmailHost bool
	// SeedCategories are created on the first login of a user with none.
	SeedCategories []core.Category
}

type AuthService struct {
	store    AuthStore
	sessions auth.SessionStore
	cache    *MonthCache
	opts     AuthOptions
	logger   *log.Logger

	dummyOnce sync.Once
	dummy     string
}

func NewAuthService(store AuthStore, sessions auth.SessionStore, cache *MonthCache, opts AuthOptions, logger *log.Logger) *AuthService {
	if logger == nil {
		logger = log.Discard()
	}
	if len(opts.SeedCategories) == 0 {
		opts.SeedCategories = core.DefaultCategories()
	}
	return &AuthService{store: store, sessions: sessions, cache: cache, opts: opts, logger: logger.WithComponent(log.ComponentAuth)}
}

// Register creates an account. It does not log the user in.
func (s *AuthService) Register(ctx context.Context, name, email, password string) (core.User, error) {
	name = strings.TrimSpace(name)
	email = auth.NormalizeEmail(email)
	if name == "" || email == "" || password == "" {
		return core.User{}, core.NewValidationError("", core.ErrMissingCredentials)
	}
	if err := auth.ValidateEmail(email, s.opts.CheckEmailHost); err != nil {
		return core.User{}, core.NewValidationError("email", err)
	}
	if err := auth.ValidatePassword(password); err != nil {
		return core.User{}, core.NewValidationError("password", err)
	}

	hash, err := auth.HashPassword(password, s.opts.BcryptCost)
	if err != nil {
		return core.User{}, err
	}
	u, err := s.store.CreateUser(ctx, core.User{Name: name, Email: email, PasswordHash: hash})
	if errors.Is(err, storage.ErrConflict) {
		return core.User{}, auth.ErrEmailTaken
	}
	if err != nil {
		return core.User{}, fmt.Errorf("create user: %w", err)
	}

	s.logger.InfoContext(ctx, "User registered", log.FieldOperation, log.OpRegister, log.FieldUserID, u.ID)
	return u, nil
}

// Login checks the credentials, seeds the default categories for a user who
// has none and issues a session token.
func (s *AuthService) Login(ctx context.Context, email, password string) (core.User, string, error) {
	email = auth.NormalizeEmail(email)
	if email == "" || password == "" {
		return core.User{}, "", auth.ErrInvalidCredentials
	}
	u, err := s.store.GetUserByEmail(ctx, email)
	if errors.Is(err, storage.ErrNotFound) {
		// same bcrypt cost as a wrong password
		auth.PasswordsMatch(s.dummyHash(), password)
		return core.User{}, "", auth.ErrInvalidCredentials
	}
	if err != nil {
		return core.User{}, "", fmt.Errorf("find user: %w", err)
	}
	if !auth.PasswordsMatch(u.PasswordHash, password) {
		s.logger.WarnContext(ctx, "Login rejected", log.FieldOperation, log.OpLogin, log.FieldUserID, u.ID)
		return core.User{}, "", auth.ErrInvalidCredentials
	}

	if err := s.seedCategories(ctx, u.ID); err != nil {
		return core.User{}, "", err
	}

	token, err := s.sessions.Create(u.ID)
	if err != nil {
		return core.User{}, "", err
	}
	s.logger.InfoContext(ctx, "User logged in", log.FieldOperation, log.OpLogin, log.FieldUserID, u.ID)
	return u, token, nil
}

func (s *AuthService) seedCategories(ctx context.Context, userID string) error {
	n, err := s.store.CountCategories(ctx, userID)
	if err != nil {
		return fmt.Errorf("count categories: %w", err)
	}
	if n > 0 {
		return nil
	}
	seed := make([]core.Category, len(s.opts.SeedCategories))
	copy(seed, s.opts.SeedCategories)
	created, err := s.store.CreateCategories(ctx, userID, seed)
	// a concurrent first login may have seeded already
	if errors.Is(err, storage.ErrConflict) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("seed categories: %w", err)
	}
	s.cache.InvalidateUser(userID)
	s.logger.InfoContext(ctx, "Seeded default categories", log.FieldUserID, userID, log.FieldCount, len(created))
	return nil
}

func (s *AuthService) Logout(ctx context.Context, token string) {
	if token == "" {
		return
	}
	s.sessions.Revoke(token)
	s.logger.DebugContext(ctx, "Session revoked", log.FieldOperation, log.OpLogout)
}

// Me returns the user behind userID.
func (s *AuthService) Me(ctx context.Context, userID string) (core.User, error) {
	if userID == "" {
		return core.User{}, auth.ErrInvalidSession
	}
	return s.store.GetUserByID(ctx, userID)
}

// dummyHash is compared against when the email is unknown. It is built once
// at the configured cost.
func (s *AuthService) dummyHash() string {
	s.dummyOnce.Do(func() {
		h, err := auth.HashPassword("kakeibo-no-such-user", s.opts.BcryptCost)
		if err != nil {
			s.logger.Warn("Building dummy password hash failed", log.FieldError, err)
			return
		}
		s.dummy = h
	})
	return s.dummy
}
