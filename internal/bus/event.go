package bus

import "time"

// Event represents a domain event published on the bus.
type Event struct {
	Kind      string
	Timestamp time.Time
	Payload   any
}

// Event kinds. Subscribers filter by prefix, so "mirror." receives every
// mirror notification.
const (
	KindConversationUpserted = "mirror.conversation.upserted"
	KindMembersChanged       = "mirror.members.changed"
	KindMessageAppended      = "mirror.message.appended"
	KindConversationRemoved  = "mirror.conversation.removed"
	KindMirrorReset          = "mirror.reset"

	KindSyncStarted   = "sync.started"
	KindSyncCompleted = "sync.completed"
	KindSyncFailed    = "sync.failed"

	KindStatusChanged = "session.status_changed"

	KindOutboxSent   = "outbox.sent"
	KindOutboxFailed = "outbox.failed"

	KindNotifyMessage = "notify.message"
)
