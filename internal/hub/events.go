package hub

// Event is one notification pushed to subscribed clients. Data carries the
// full snapshot of the entity the event is about, so clients never have to
// merge partial updates.
type Event struct {
	Type string `json:"type"`
	Data any    `json:"data,omitempty"`
}

// Event types pushed over the socket.
const (
	EventConversationCreated = "conversation_created"
	EventConversationUpdated = "conversation_updated"
	EventConversationClosed  = "conversation_closed"
	EventMessageReceived     = "message_received"
	EventMessageSent         = "message_sent"
	EventMessageStatus       = "message_status"
	EventAssignmentRequested = "assignment_requested"
	EventAssignmentResponded = "assignment_responded"
	EventSupportRequested    = "support_requested"
	EventInactivityWarning   = "inactivity_warning"
	EventUserOnline          = "user_online"
	EventUserOffline         = "user_offline"
)

// TopicAdmin receives every administrative broadcast.
const TopicAdmin = "admin"

// ConversationTopic names the per-conversation fan-out topic.
func ConversationTopic(conversationID string) string {
	return "conversation:" + conversationID
}

// UserTopic names the direct topic of one account.
func UserTopic(accountID string) string {
	return "user:" + accountID
}
