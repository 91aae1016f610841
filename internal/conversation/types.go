// Package conversation defines the support-conversation domain: statuses,
// assignment sub-states, the transition rules, and persistence.
package conversation

import (
	"errors"
	"time"
)

// Status is the lifecycle state of a conversation.
type Status string

const (
	StatusNew        Status = "new"
	StatusBot        Status = "bot"
	StatusWaiting    Status = "waiting"
	StatusHuman      Status = "human"
	StatusClosed     Status = "closed"
	StatusIncomplete Status = "incomplete"
)

// String returns the status as a plain string.
func (s Status) String() string {
	return string(s)
}

// Valid reports whether the status is one of the known values.
func (s Status) Valid() bool {
	switch s {
	case StatusNew, StatusBot, StatusWaiting, StatusHuman, StatusClosed, StatusIncomplete:
		return true
	default:
		return false
	}
}

// AssignmentState is the agent-assignment sub-state, independent of Status.
type AssignmentState string

const (
	AssignmentNone       AssignmentState = "none"
	AssignmentPending    AssignmentState = "pending"
	AssignmentAccepted   AssignmentState = "accepted"
	AssignmentRejected   AssignmentState = "rejected"
	AssignmentForced     AssignmentState = "forced"
	AssignmentUnassigned AssignmentState = "unassigned"
	AssignmentAssigned   AssignmentState = "assigned"
	AssignmentReassigned AssignmentState = "reassigned"
)

// Conversation is a bounded interaction between one contact and the support
// channel. Status and assignment mutations go through the transition rules;
// Version is the optimistic-concurrency token compared on every write.
type Conversation struct {
	ID                  string          `json:"id"`
	ContactID           string          `json:"contact_id"`
	CompanyID           string          `json:"company_id,omitempty"`
	AssignedAgentID     string          `json:"assigned_agent_id,omitempty"`
	Status              Status          `json:"status"`
	AssignmentState     AssignmentState `json:"assignment_state"`
	Initialized         bool            `json:"initialized"`
	Version             int64           `json:"version"`
	CreatedAt           time.Time       `json:"created_at"`
	ClientLastMessageAt *time.Time      `json:"client_last_message_at,omitempty"`
	AgentFirstMessageAt *time.Time      `json:"agent_first_message_at,omitempty"`
	AgentLastMessageAt  *time.Time      `json:"agent_last_message_at,omitempty"`
	WarningSentAt       *time.Time      `json:"warning_sent_at,omitempty"`
	ClosedAt            *time.Time      `json:"closed_at,omitempty"`
	AssignedAt          *time.Time      `json:"assigned_at,omitempty"`
}

// LastClientActivity returns the client's last message time, falling back to
// the creation time for conversations that never received one.
func (c Conversation) LastClientActivity() time.Time {
	if c.ClientLastMessageAt != nil {
		return *c.ClientLastMessageAt
	}
	return c.CreatedAt
}

// HistoryLog is one append-only audit row recording a status change.
// ChangedBy, SourceIP and UserAgent are empty for scheduler-driven changes.
type HistoryLog struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversation_id"`
	OldStatus      Status    `json:"old_status"`
	NewStatus      Status    `json:"new_status"`
	ChangedBy      string    `json:"changed_by,omitempty"`
	ChangedAt      time.Time `json:"changed_at"`
	SourceIP       string    `json:"source_ip,omitempty"`
	UserAgent      string    `json:"user_agent,omitempty"`
}

// Actor identifies who requested a mutation. The zero value is the system
// actor (scheduler or pipeline), which carries no request provenance.
type Actor struct {
	AccountID string
	Role      string
	SourceIP  string
	UserAgent string
}

// System reports whether the mutation was not requested by a person.
func (a Actor) System() bool {
	return a.AccountID == ""
}

// Admin reports whether the actor carries the admin role.
func (a Actor) Admin() bool {
	return a.Role == "admin"
}

var (
	// ErrInvalidTransition marks a rejected status or assignment change.
	ErrInvalidTransition = errors.New("invalid transition")
	// ErrPersistenceConflict marks a lost optimistic-concurrency race.
	ErrPersistenceConflict = errors.New("conversation write conflict")
	// ErrNotFound marks a missing conversation.
	ErrNotFound = errors.New("conversation not found")
)
