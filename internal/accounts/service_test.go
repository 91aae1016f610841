package accounts

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStore struct {
	byUsername map[string]Account
}

func newFakeStore() *fakeStore {
	return &fakeStore{byUsername: make(map[string]Account)}
}

func (s *fakeStore) Get(_ context.Context, id string) (Account, error) {
	for _, account := range s.byUsername {
		if account.ID == id {
			return account, nil
		}
	}
	return Account{}, ErrNotFound
}

func (s *fakeStore) GetByUsername(_ context.Context, username string) (Account, error) {
	account, ok := s.byUsername[username]
	if !ok {
		return Account{}, ErrNotFound
	}
	return account, nil
}

func (s *fakeStore) Create(_ context.Context, username, passwordHash, displayName, role string) (Account, error) {
	if _, ok := s.byUsername[username]; ok {
		return Account{}, errors.New("duplicate username")
	}
	account := Account{
		ID:           fmt.Sprintf("acc-%d", len(s.byUsername)+1),
		Username:     username,
		PasswordHash: passwordHash,
		DisplayName:  displayName,
		Role:         role,
		IsActive:     true,
		CreatedAt:    time.Now(),
	}
	s.byUsername[username] = account
	return account, nil
}

func (s *fakeStore) ListActive(_ context.Context) ([]Account, error) {
	var out []Account
	for _, account := range s.byUsername {
		if account.IsActive {
			out = append(out, account)
		}
	}
	return out, nil
}

func newTestService() (*Service, *fakeStore) {
	store := newFakeStore()
	return NewService(store, slog.New(slog.NewTextHandler(io.Discard, nil))), store
}

func TestCreateAndAuthenticate(t *testing.T) {
	t.Parallel()

	svc, _ := newTestService()
	created, err := svc.Create(context.Background(), "maria", "s3cret-pw", "María", "agent")
	require.NoError(t, err)
	assert.Empty(t, created.PasswordHash)
	assert.Equal(t, "agent", created.Role)

	account, err := svc.Authenticate(context.Background(), "maria", "s3cret-pw")
	require.NoError(t, err)
	assert.Equal(t, created.ID, account.ID)
	assert.Empty(t, account.PasswordHash)
}

func TestAuthenticateWrongPassword(t *testing.T) {
	t.Parallel()

	svc, _ := newTestService()
	_, err := svc.Create(context.Background(), "maria", "s3cret-pw", "", "agent")
	require.NoError(t, err)

	_, err = svc.Authenticate(context.Background(), "maria", "wrong")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = svc.Authenticate(context.Background(), "nobody", "s3cret-pw")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestAuthenticateInactiveAccount(t *testing.T) {
	t.Parallel()

	svc, store := newTestService()
	_, err := svc.Create(context.Background(), "maria", "s3cret-pw", "", "agent")
	require.NoError(t, err)
	account := store.byUsername["maria"]
	account.IsActive = false
	store.byUsername["maria"] = account

	_, err = svc.Authenticate(context.Background(), "maria", "s3cret-pw")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestCreateRejectsUnknownRole(t *testing.T) {
	t.Parallel()

	svc, _ := newTestService()
	_, err := svc.Create(context.Background(), "maria", "s3cret-pw", "", "superuser")
	assert.Error(t, err)
}

func TestEnsureAdminIsIdempotent(t *testing.T) {
	t.Parallel()

	svc, store := newTestService()
	require.NoError(t, svc.EnsureAdmin(context.Background(), "admin", "admin-pw"))
	require.NoError(t, svc.EnsureAdmin(context.Background(), "admin", "admin-pw"))
	assert.Len(t, store.byUsername, 1)
	assert.Equal(t, "admin", store.byUsername["admin"].Role)
}
