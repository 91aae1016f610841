package accounts

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	dbpkg "github.com/Jefrey13/chatdesk/internal/db"
)

const accountColumns = `id, username, password_hash, display_name, role, is_active, created_at`

// DBStore persists accounts in Postgres.
type DBStore struct {
	pool *pgxpool.Pool
}

// NewStore creates an account store backed by the given pool.
func NewStore(pool *pgxpool.Pool) *DBStore {
	return &DBStore{pool: pool}
}

// Get loads one account by id.
func (s *DBStore) Get(ctx context.Context, id string) (Account, error) {
	pgID, err := dbpkg.ParseUUID(id)
	if err != nil {
		return Account{}, err
	}
	row := s.pool.QueryRow(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE id = $1`, pgID)
	return scanAccount(row)
}

// GetByUsername loads one account by username, hash included.
func (s *DBStore) GetByUsername(ctx context.Context, username string) (Account, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE username = $1`, username)
	return scanAccount(row)
}

// Create inserts a new account.
func (s *DBStore) Create(ctx context.Context, username, passwordHash, displayName, role string) (Account, error) {
	row := s.pool.QueryRow(ctx,
		`INSERT INTO accounts (username, password_hash, display_name, role)
		 VALUES ($1, $2, $3, $4)
		 RETURNING `+accountColumns,
		username, passwordHash, dbpkg.ToPgText(displayName), role)
	return scanAccount(row)
}

// ListActive returns every active account.
func (s *DBStore) ListActive(ctx context.Context) ([]Account, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE is_active ORDER BY username`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]Account, 0)
	for rows.Next() {
		account, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, account)
	}
	return out, rows.Err()
}

func scanAccount(row pgx.Row) (Account, error) {
	var (
		id          pgtype.UUID
		username    string
		hash        string
		displayName pgtype.Text
		role        string
		isActive    bool
		createdAt   pgtype.Timestamptz
	)
	if err := row.Scan(&id, &username, &hash, &displayName, &role, &isActive, &createdAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Account{}, ErrNotFound
		}
		return Account{}, err
	}
	return Account{
		ID:           id.String(),
		Username:     username,
		PasswordHash: hash,
		DisplayName:  dbpkg.TextToString(displayName),
		Role:         role,
		IsActive:     isActive,
		CreatedAt:    createdAt.Time,
	}, nil
}
