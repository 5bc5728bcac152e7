package store

// Nickname is a locally assigned display name for a member.
type Nickname struct {
	MemberID  string
	Nickname  string
	UpdatedAt int64
}

// Outbox entry statuses.
const (
	OutboxQueued  = "queued"
	OutboxSending = "sending"
	OutboxSent    = "sent"
	OutboxFailed  = "failed"
)

// OutboxEntry represents a pending outgoing message.
type OutboxEntry struct {
	ID             int64
	ClientMsgID    string
	ConversationID string
	ContentType    string
	Body           []byte
	Status         string // queued, sending, sent, failed
	Attempts       int
	ErrorMessage   string
	ServerMsgID    string
	CreatedAt      int64
}
