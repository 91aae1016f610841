package accounts

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/crypto/bcrypt"

	"github.com/Jefrey13/chatdesk/internal/auth"
)

// Store is the persistence surface the service depends on.
type Store interface {
	Get(ctx context.Context, id string) (Account, error)
	GetByUsername(ctx context.Context, username string) (Account, error)
	Create(ctx context.Context, username, passwordHash, displayName, role string) (Account, error)
	ListActive(ctx context.Context) ([]Account, error)
}

// Service owns account creation and credential checks.
type Service struct {
	store  Store
	logger *slog.Logger
}

// NewService creates the account service.
func NewService(store Store, logger *slog.Logger) *Service {
	return &Service{
		store:  store,
		logger: logger.With(slog.String("service", "accounts")),
	}
}

// Get loads one account.
func (s *Service) Get(ctx context.Context, id string) (Account, error) {
	return s.store.Get(ctx, id)
}

// ListActive returns every active account, hashes stripped.
func (s *Service) ListActive(ctx context.Context) ([]Account, error) {
	out, err := s.store.ListActive(ctx)
	if err != nil {
		return nil, err
	}
	for i := range out {
		out[i].PasswordHash = ""
	}
	return out, nil
}

// Authenticate checks the credentials and returns the account. Unknown
// usernames and wrong passwords both come back as ErrInvalidCredentials.
func (s *Service) Authenticate(ctx context.Context, username, password string) (Account, error) {
	account, err := s.store.GetByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Account{}, ErrInvalidCredentials
		}
		return Account{}, err
	}
	if !account.IsActive {
		return Account{}, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(account.PasswordHash), []byte(password)); err != nil {
		return Account{}, ErrInvalidCredentials
	}
	account.PasswordHash = ""
	return account, nil
}

// Create registers a new account with a hashed password.
func (s *Service) Create(ctx context.Context, username, password, displayName, role string) (Account, error) {
	if role != auth.RoleAdmin && role != auth.RoleAgent {
		return Account{}, fmt.Errorf("unknown role %q", role)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return Account{}, fmt.Errorf("hash password: %w", err)
	}
	account, err := s.store.Create(ctx, username, string(hash), displayName, role)
	if err != nil {
		return Account{}, err
	}
	s.logger.Info("account created",
		slog.String("account_id", account.ID),
		slog.String("username", username),
		slog.String("role", role))
	account.PasswordHash = ""
	return account, nil
}

// EnsureAdmin creates the configured admin account on first start.
func (s *Service) EnsureAdmin(ctx context.Context, username, password string) error {
	_, err := s.store.GetByUsername(ctx, username)
	if err == nil {
		return nil
	}
	if !errors.Is(err, ErrNotFound) {
		return err
	}
	if _, err := s.Create(ctx, username, password, "Administrator", auth.RoleAdmin); err != nil {
		return fmt.Errorf("seed admin account: %w", err)
	}
	return nil
}
