package conversation

import (
	"fmt"
	"strings"
)

// statusGraph is the fixed set of legal status transitions. Closed is
// terminal; reopening a closed conversation means creating a new one.
var statusGraph = map[Status][]Status{
	StatusNew:        {StatusBot, StatusIncomplete, StatusClosed},
	StatusBot:        {StatusWaiting, StatusHuman, StatusIncomplete, StatusClosed},
	StatusWaiting:    {StatusHuman, StatusBot, StatusClosed},
	StatusHuman:      {StatusWaiting, StatusClosed},
	StatusIncomplete: {StatusBot, StatusClosed},
	StatusClosed:     {},
}

// assignmentGraph is the fixed set of legal assignment sub-state transitions.
var assignmentGraph = map[AssignmentState][]AssignmentState{
	AssignmentNone:       {AssignmentPending, AssignmentForced},
	AssignmentPending:    {AssignmentAccepted, AssignmentRejected, AssignmentForced},
	AssignmentAccepted:   {AssignmentAssigned, AssignmentUnassigned, AssignmentReassigned, AssignmentForced},
	AssignmentRejected:   {AssignmentPending, AssignmentForced},
	AssignmentForced:     {AssignmentUnassigned, AssignmentReassigned},
	AssignmentUnassigned: {AssignmentPending, AssignmentForced},
	AssignmentAssigned:   {AssignmentUnassigned, AssignmentReassigned, AssignmentForced},
	AssignmentReassigned: {AssignmentAccepted, AssignmentRejected, AssignmentUnassigned, AssignmentForced},
}

// CanTransition reports whether from -> to is a legal status change.
func CanTransition(from, to Status) bool {
	for _, candidate := range statusGraph[from] {
		if candidate == to {
			return true
		}
	}
	return false
}

// Apply validates and applies a status transition, returning the updated
// conversation and the audit row to persist alongside it. The input
// conversation is not modified; an illegal transition returns
// ErrInvalidTransition.
func Apply(conv Conversation, target Status, actor Actor, log HistoryLog) (Conversation, HistoryLog, error) {
	if !target.Valid() {
		return conv, HistoryLog{}, fmt.Errorf("%w: unknown status %q", ErrInvalidTransition, target)
	}
	if conv.Status == target {
		return conv, HistoryLog{}, fmt.Errorf("%w: already %s", ErrInvalidTransition, target)
	}
	if !CanTransition(conv.Status, target) {
		return conv, HistoryLog{}, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, conv.Status, target)
	}

	updated := conv
	audit := log
	audit.ConversationID = conv.ID
	audit.OldStatus = conv.Status
	audit.NewStatus = target
	audit.ChangedBy = actor.AccountID
	audit.SourceIP = actor.SourceIP
	audit.UserAgent = actor.UserAgent
	if audit.ChangedAt.IsZero() {
		return conv, HistoryLog{}, fmt.Errorf("audit changed-at is required")
	}

	updated.Status = target
	if target == StatusClosed {
		changedAt := audit.ChangedAt
		updated.ClosedAt = &changedAt
	}
	return updated, audit, nil
}

// ApplyAssignment validates and applies an assignment sub-state transition.
// Forced assignments require an admin actor and a justification comment.
func ApplyAssignment(conv Conversation, target AssignmentState, actor Actor, comment string) (Conversation, error) {
	if target == AssignmentForced {
		if !actor.Admin() {
			return conv, fmt.Errorf("%w: forced assignment requires admin", ErrInvalidTransition)
		}
		if strings.TrimSpace(comment) == "" {
			return conv, fmt.Errorf("%w: forced assignment requires a comment", ErrInvalidTransition)
		}
	}
	current := conv.AssignmentState
	if current == "" {
		current = AssignmentNone
	}
	allowed := false
	for _, candidate := range assignmentGraph[current] {
		if candidate == target {
			allowed = true
			break
		}
	}
	if !allowed {
		return conv, fmt.Errorf("%w: assignment %s -> %s", ErrInvalidTransition, current, target)
	}
	updated := conv
	updated.AssignmentState = target
	return updated, nil
}
