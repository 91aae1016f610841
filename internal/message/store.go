package message

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	dbpkg "github.com/Jefrey13/chatdesk/internal/db"
)

const messageColumns = `id, conversation_id, sender_contact_id, sender_account_id, external_id,
	direction, message_type, content, status, sent_at, delivered_at, read_at`

// DBStore persists messages in Postgres.
type DBStore struct {
	pool *pgxpool.Pool
}

// NewStore creates a message store backed by the given pool.
func NewStore(pool *pgxpool.Pool) *DBStore {
	return &DBStore{pool: pool}
}

// Insert writes the message. A message whose external id was already recorded
// for the conversation leaves the table untouched and returns
// ErrDuplicateEvent.
func (s *DBStore) Insert(ctx context.Context, msg Message) (Message, error) {
	pgID, err := dbpkg.ParseUUID(msg.ID)
	if err != nil {
		return Message{}, err
	}
	pgConvID, err := dbpkg.ParseUUID(msg.ConversationID)
	if err != nil {
		return Message{}, err
	}
	row := s.pool.QueryRow(ctx,
		`INSERT INTO messages
			(id, conversation_id, sender_contact_id, sender_account_id, external_id,
			 direction, message_type, content, status, sent_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		 ON CONFLICT (conversation_id, external_id) WHERE external_id IS NOT NULL DO NOTHING
		 RETURNING `+messageColumns,
		pgID,
		pgConvID,
		optionalUUID(msg.SenderContactID),
		optionalUUID(msg.SenderAccountID),
		dbpkg.ToPgText(msg.ExternalID),
		string(msg.Direction),
		string(msg.Type),
		msg.Content,
		string(msg.Status),
		dbpkg.ToPgTimestamptz(msg.SentAt),
	)
	inserted, err := scanMessage(row)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Message{}, fmt.Errorf("%w: external id %s", ErrDuplicateEvent, msg.ExternalID)
		}
		return Message{}, err
	}
	return inserted, nil
}

// ListByConversation returns the conversation's messages, oldest first.
func (s *DBStore) ListByConversation(ctx context.Context, conversationID string, limit int) ([]Message, error) {
	pgConvID, err := dbpkg.ParseUUID(conversationID)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 200
	}
	rows, err := s.pool.Query(ctx,
		`SELECT `+messageColumns+` FROM messages
		 WHERE conversation_id = $1 ORDER BY sent_at LIMIT $2`, pgConvID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	messages := make([]Message, 0)
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		messages = append(messages, msg)
	}
	return messages, rows.Err()
}

// UpdateStatusByExternalID applies a provider delivery callback. Delivered
// and read callbacks also stamp their timestamps.
func (s *DBStore) UpdateStatusByExternalID(ctx context.Context, externalID string, status DeliveryStatus, at time.Time) (Message, error) {
	row := s.pool.QueryRow(ctx,
		`UPDATE messages SET
			status = $2,
			delivered_at = CASE WHEN $2 IN ('delivered', 'read') AND delivered_at IS NULL THEN $3 ELSE delivered_at END,
			read_at = CASE WHEN $2 = 'read' AND read_at IS NULL THEN $3 ELSE read_at END
		 WHERE external_id = $1 AND direction = 'outbound'
		 RETURNING `+messageColumns,
		externalID, string(status), dbpkg.ToPgTimestamptz(at))
	return scanMessage(row)
}

func scanMessage(row pgx.Row) (Message, error) {
	var (
		id, convID           pgtype.UUID
		senderContact        pgtype.UUID
		senderAccount        pgtype.UUID
		externalID           pgtype.Text
		direction, msgType   string
		content, status      string
		sentAt               pgtype.Timestamptz
		deliveredAt, readAt  pgtype.Timestamptz
	)
	err := row.Scan(&id, &convID, &senderContact, &senderAccount, &externalID,
		&direction, &msgType, &content, &status, &sentAt, &deliveredAt, &readAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Message{}, ErrNotFound
		}
		return Message{}, err
	}
	return Message{
		ID:              id.String(),
		ConversationID:  convID.String(),
		SenderContactID: senderContact.String(),
		SenderAccountID: senderAccount.String(),
		ExternalID:      dbpkg.TextToString(externalID),
		Direction:       Direction(direction),
		Type:            Type(msgType),
		Content:         content,
		Status:          DeliveryStatus(status),
		SentAt:          sentAt.Time,
		DeliveredAt:     dbpkg.TimePtr(deliveredAt),
		ReadAt:          dbpkg.TimePtr(readAt),
	}, nil
}

func optionalUUID(id string) pgtype.UUID {
	if id == "" {
		return pgtype.UUID{}
	}
	parsed, err := dbpkg.ParseUUID(id)
	if err != nil {
		return pgtype.UUID{}
	}
	return parsed
}
