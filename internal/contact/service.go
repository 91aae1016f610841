package contact

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	dbpkg "github.com/Jefrey13/chatdesk/internal/db"
)

// DBStore persists contacts in Postgres.
type DBStore struct {
	pool *pgxpool.Pool
}

// NewStore creates a contact store backed by the given pool.
func NewStore(pool *pgxpool.Pool) *DBStore {
	return &DBStore{pool: pool}
}

// Get loads one contact by id.
func (s *DBStore) Get(ctx context.Context, id string) (Contact, error) {
	pgID, err := dbpkg.ParseUUID(id)
	if err != nil {
		return Contact{}, err
	}
	row := s.pool.QueryRow(ctx,
		`SELECT id, phone_number, display_name, created_at FROM contacts WHERE id = $1`, pgID)
	return scanContact(row)
}

// GetByPhone loads one contact by phone number.
func (s *DBStore) GetByPhone(ctx context.Context, phone string) (Contact, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, phone_number, display_name, created_at FROM contacts WHERE phone_number = $1`, phone)
	return scanContact(row)
}

// GetOrCreate returns the contact for the phone number, inserting it first if
// needed. Concurrent first messages from the same number converge on one row
// through the unique constraint.
func (s *DBStore) GetOrCreate(ctx context.Context, phone, displayName string) (Contact, error) {
	tag, err := s.pool.Exec(ctx,
		`INSERT INTO contacts (phone_number, display_name)
		 VALUES ($1, $2)
		 ON CONFLICT (phone_number) DO NOTHING`,
		phone, dbpkg.ToPgText(displayName))
	if err != nil {
		return Contact{}, fmt.Errorf("insert contact: %w", err)
	}
	contact, err := s.GetByPhone(ctx, phone)
	if err != nil {
		return Contact{}, err
	}
	if tag.RowsAffected() == 0 && displayName != "" && contact.DisplayName == "" {
		// Backfill a name we only just learned.
		if _, err := s.pool.Exec(ctx,
			`UPDATE contacts SET display_name = $2 WHERE id = $1 AND display_name IS NULL`,
			mustUUID(contact.ID), displayName); err == nil {
			contact.DisplayName = displayName
		}
	}
	return contact, nil
}

func scanContact(row pgx.Row) (Contact, error) {
	var (
		id          pgtype.UUID
		phone       string
		displayName pgtype.Text
		createdAt   pgtype.Timestamptz
	)
	if err := row.Scan(&id, &phone, &displayName, &createdAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Contact{}, ErrNotFound
		}
		return Contact{}, err
	}
	return Contact{
		ID:          id.String(),
		PhoneNumber: phone,
		DisplayName: dbpkg.TextToString(displayName),
		CreatedAt:   createdAt.Time,
	}, nil
}

func mustUUID(id string) pgtype.UUID {
	parsed, _ := dbpkg.ParseUUID(id)
	return parsed
}

// Service exposes contact lookups to the rest of the system.
type Service struct {
	store  *DBStore
	logger *slog.Logger
}

// NewService creates the contact service.
func NewService(store *DBStore, logger *slog.Logger) *Service {
	return &Service{
		store:  store,
		logger: logger.With(slog.String("service", "contact")),
	}
}

// Get loads one contact.
func (s *Service) Get(ctx context.Context, id string) (Contact, error) {
	return s.store.Get(ctx, id)
}

// Resolve maps an inbound phone number to a contact, creating it on first
// sight.
func (s *Service) Resolve(ctx context.Context, phone, displayName string) (Contact, error) {
	contact, err := s.store.GetByPhone(ctx, phone)
	if err == nil {
		return contact, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return Contact{}, err
	}
	contact, err = s.store.GetOrCreate(ctx, phone, displayName)
	if err != nil {
		return Contact{}, err
	}
	s.logger.Info("contact created",
		slog.String("contact_id", contact.ID),
		slog.String("phone_number", phone))
	return contact, nil
}
