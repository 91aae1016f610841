package conversation

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

const conversationColumns = `id, contact_id, company_id, assigned_agent_id, status, assignment_state,
	initialized, version, created_at, client_last_message_at, agent_first_message_at,
	agent_last_message_at, warning_sent_at, closed_at, assigned_at`

// DBStore persists conversations and their audit trail in Postgres.
type DBStore struct {
	pool *pgxpool.Pool
}

// NewStore creates a conversation store backed by the given pool.
func NewStore(pool *pgxpool.Pool) *DBStore {
	return &DBStore{pool: pool}
}

// Get loads one conversation by id.
func (s *DBStore) Get(ctx context.Context, id string) (Conversation, error) {
	pgID, err := dbpkg.ParseUUID(id)
	if err != nil {
		return Conversation{}, err
	}
	row := s.pool.QueryRow(ctx,
		`SELECT `+conversationColumns+` FROM conversations WHERE id = $1`, pgID)
	return scanConversation(row)
}

// GetOpenByContact returns the contact's newest non-closed conversation,
// or ErrNotFound.
func (s *DBStore) GetOpenByContact(ctx context.Context, contactID string) (Conversation, error) {
	pgContactID, err := dbpkg.ParseUUID(contactID)
	if err != nil {
		return Conversation{}, err
	}
	row := s.pool.QueryRow(ctx,
		`SELECT `+conversationColumns+` FROM conversations
		 WHERE contact_id = $1 AND status <> 'closed'
		 ORDER BY created_at DESC LIMIT 1`, pgContactID)
	return scanConversation(row)
}

// Create inserts a fresh conversation for the contact in status new.
func (s *DBStore) Create(ctx context.Context, contactID string) (Conversation, error) {
	pgContactID, err := dbpkg.ParseUUID(contactID)
	if err != nil {
		return Conversation{}, err
	}
	row := s.pool.QueryRow(ctx,
		`INSERT INTO conversations (contact_id) VALUES ($1)
		 RETURNING `+conversationColumns, pgContactID)
	return scanConversation(row)
}

// ListByStatus returns all conversations in the given status, oldest first.
func (s *DBStore) ListByStatus(ctx context.Context, status Status) ([]Conversation, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+conversationColumns+` FROM conversations
		 WHERE status = $1 ORDER BY created_at`, string(status))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	conversations := make([]Conversation, 0)
	for rows.Next() {
		conv, err := scanConversation(rows)
		if err != nil {
			return nil, err
		}
		conversations = append(conversations, conv)
	}
	return conversations, rows.Err()
}

// Update writes every mutable conversation field under an optimistic version
// check and, when audit is non-nil, appends the history row in the same
// transaction. A lost version race returns ErrPersistenceConflict with
// nothing written.
func (s *DBStore) Update(ctx context.Context, conv Conversation, audit *HistoryLog) (Conversation, error) {
	pgID, err := dbpkg.ParseUUID(conv.ID)
	if err != nil {
		return Conversation{}, err
	}
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return Conversation{}, fmt.Errorf("begin conversation update: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	row := tx.QueryRow(ctx,
		`UPDATE conversations SET
			assigned_agent_id = $2,
			status = $3,
			assignment_state = $4,
			initialized = $5,
			client_last_message_at = $6,
			agent_first_message_at = $7,
			agent_last_message_at = $8,
			warning_sent_at = $9,
			closed_at = $10,
			assigned_at = $11,
			version = version + 1
		 WHERE id = $1 AND version = $12
		 RETURNING `+conversationColumns,
		pgID,
		optionalUUID(conv.AssignedAgentID),
		string(conv.Status),
		string(conv.AssignmentState),
		conv.Initialized,
		optionalTime(conv.ClientLastMessageAt),
		optionalTime(conv.AgentFirstMessageAt),
		optionalTime(conv.AgentLastMessageAt),
		optionalTime(conv.WarningSentAt),
		optionalTime(conv.ClosedAt),
		optionalTime(conv.AssignedAt),
		conv.Version,
	)
	updated, err := scanConversation(row)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Conversation{}, fmt.Errorf("%w: conversation %s version %d", ErrPersistenceConflict, conv.ID, conv.Version)
		}
		return Conversation{}, err
	}

	if audit != nil {
		if _, err := tx.Exec(ctx,
			`INSERT INTO conversation_history_logs
				(conversation_id, old_status, new_status, changed_by, changed_at, source_ip, user_agent)
			 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			pgID,
			string(audit.OldStatus),
			string(audit.NewStatus),
			optionalUUID(audit.ChangedBy),
			audit.ChangedAt,
			dbpkg.ToPgText(audit.SourceIP),
			dbpkg.ToPgText(audit.UserAgent),
		); err != nil {
			return Conversation{}, fmt.Errorf("append history log: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return Conversation{}, fmt.Errorf("commit conversation update: %w", err)
	}
	return updated, nil
}

// History returns the audit trail for one conversation, oldest first.
func (s *DBStore) History(ctx context.Context, conversationID string) ([]HistoryLog, error) {
	pgID, err := dbpkg.ParseUUID(conversationID)
	if err != nil {
		return nil, err
	}
	rows, err := s.pool.Query(ctx,
		`SELECT id, conversation_id, old_status, new_status, changed_by, changed_at, source_ip, user_agent
		 FROM conversation_history_logs
		 WHERE conversation_id = $1 ORDER BY changed_at`, pgID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	logs := make([]HistoryLog, 0)
	for rows.Next() {
		var (
			id, convID       pgtype.UUID
			oldStatus        string
			newStatus        string
			changedBy        pgtype.UUID
			changedAt        pgtype.Timestamptz
			sourceIP, userUA pgtype.Text
		)
		if err := rows.Scan(&id, &convID, &oldStatus, &newStatus, &changedBy, &changedAt, &sourceIP, &userUA); err != nil {
			return nil, err
		}
		logs = append(logs, HistoryLog{
			ID:             id.String(),
			ConversationID: convID.String(),
			OldStatus:      Status(oldStatus),
			NewStatus:      Status(newStatus),
			ChangedBy:      changedBy.String(),
			ChangedAt:      changedAt.Time,
			SourceIP:       dbpkg.TextToString(sourceIP),
			UserAgent:      dbpkg.TextToString(userUA),
		})
	}
	return logs, rows.Err()
}

func scanConversation(row pgx.Row) (Conversation, error) {
	var (
		id, contactID       pgtype.UUID
		companyID, agentID  pgtype.UUID
		status, assignState string
		initialized         bool
		version             int64
		createdAt           pgtype.Timestamptz
		clientLast          pgtype.Timestamptz
		agentFirst          pgtype.Timestamptz
		agentLast           pgtype.Timestamptz
		warningSent         pgtype.Timestamptz
		closedAt            pgtype.Timestamptz
		assignedAt          pgtype.Timestamptz
	)
	err := row.Scan(&id, &contactID, &companyID, &agentID, &status, &assignState,
		&initialized, &version, &createdAt, &clientLast, &agentFirst,
		&agentLast, &warningSent, &closedAt, &assignedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Conversation{}, ErrNotFound
		}
		return Conversation{}, err
	}
	return Conversation{
		ID:                  id.String(),
		ContactID:           contactID.String(),
		CompanyID:           companyID.String(),
		AssignedAgentID:     agentID.String(),
		Status:              Status(status),
		AssignmentState:     AssignmentState(assignState),
		Initialized:         initialized,
		Version:             version,
		CreatedAt:           createdAt.Time,
		ClientLastMessageAt: dbpkg.TimePtr(clientLast),
		AgentFirstMessageAt: dbpkg.TimePtr(agentFirst),
		AgentLastMessageAt:  dbpkg.TimePtr(agentLast),
		WarningSentAt:       dbpkg.TimePtr(warningSent),
		ClosedAt:            dbpkg.TimePtr(closedAt),
		AssignedAt:          dbpkg.TimePtr(assignedAt),
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

func optionalTime(t *time.Time) pgtype.Timestamptz {
	if t == nil {
		return pgtype.Timestamptz{}
	}
	return pgtype.Timestamptz{Time: *t, Valid: true}
}
