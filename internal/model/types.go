package model

// Kind distinguishes direct (two-party) conversations from groups.
type Kind string

const (
	KindUnknown Kind = ""
	KindDirect  Kind = "direct"
	KindGroup   Kind = "group"
)

// Known reports whether k is one of the supported conversation kinds.
func (k Kind) Known() bool {
	return k == KindDirect || k == KindGroup
}

// ParseKind maps a wire string to a Kind. Unsupported values map to KindUnknown.
func ParseKind(s string) Kind {
	switch Kind(s) {
	case KindDirect, KindGroup:
		return Kind(s)
	case "dm":
		return KindDirect
	default:
		return KindUnknown
	}
}

// Metadata holds the mutable, source-owned descriptive fields of a conversation.
type Metadata struct {
	Name        string
	Description string
	ImageURL    string
}

// IsZero reports whether no metadata field is set.
func (m Metadata) IsZero() bool {
	return m == Metadata{}
}

// Conversation is the mirrored view of a remote conversation.
type Conversation struct {
	ID        string
	Kind      Kind
	Metadata  Metadata
	CreatedAt int64 // unix nanoseconds
	PeerID    string // direct conversations only
}

// Member is an inbox participating in a conversation.
type Member struct {
	ID string
}

// Members builds a member list from raw ids.
func Members(ids ...string) []Member {
	out := make([]Member, 0, len(ids))
	for _, id := range ids {
		out = append(out, Member{ID: id})
	}
	return out
}

// ContentType tags an opaque message payload.
type ContentType string

const (
	ContentText        ContentType = "text"
	ContentAttachment  ContentType = "attachment"
	ContentReaction    ContentType = "reaction"
	ContentReply       ContentType = "reply"
	ContentReadReceipt ContentType = "read_receipt"
	ContentGroupUpdate ContentType = "group_update"
	ContentUnknown     ContentType = "unknown"
)

// ParseContentType maps a wire string to a ContentType.
func ParseContentType(s string) ContentType {
	switch ContentType(s) {
	case ContentText, ContentAttachment, ContentReaction, ContentReply, ContentReadReceipt, ContentGroupUpdate:
		return ContentType(s)
	default:
		return ContentUnknown
	}
}

// Content is a message payload. The mirror stores it without interpretation.
type Content struct {
	Type    ContentType
	Payload []byte
}

// Text builds a text content value.
func Text(s string) Content {
	return Content{Type: ContentText, Payload: []byte(s)}
}

// Message is a single mirrored message.
type Message struct {
	ID             string
	ConversationID string
	SentAt         int64 // unix nanoseconds
	SenderID       string
	Content        Content
}

// RemoteConversation is a conversation as returned by a pull from the message source,
// carrying its complete member list.
type RemoteConversation struct {
	Conversation Conversation
	Members      []Member
}

// Cursor is the conversation-list watermark used for incremental fetches.
type Cursor struct {
	LastCreatedAfter int64
	Set              bool
}

// Installation is one registered device of the signed-in inbox.
type Installation struct {
	ID        string
	CreatedAt int64
	Current   bool
}
