package api

import (
	"github.com/mumblechat/mumble/internal/model"
	"github.com/mumblechat/mumble/internal/store"
	msync "github.com/mumblechat/mumble/internal/sync"
	"github.com/mumblechat/mumble/internal/views"
)

// Nanosecond timestamps are carried as strings; Struct numbers are doubles.

// Conversation is a conversation row.
type Conversation struct {
	ID          string   `json:"id"`
	Kind        string   `json:"kind"`
	Name        string   `json:"name,omitempty"`
	Description string   `json:"description,omitempty"`
	ImageURL    string   `json:"image_url,omitempty"`
	PeerID      string   `json:"peer_id,omitempty"`
	CreatedAt   int64    `json:"created_at_ns,string"`
	DisplayName string   `json:"display_name"`
	MemberCount int      `json:"member_count"`
	Members     []string `json:"members,omitempty"`
	Muted       bool     `json:"muted,omitempty"`
	LastMessage *Message `json:"last_message,omitempty"`
}

// Message is a mirrored message.
type Message struct {
	ID             string `json:"id"`
	ConversationID string `json:"conversation_id"`
	SentAt         int64  `json:"sent_at_ns,string"`
	SenderID       string `json:"sender_id"`
	SenderName     string `json:"sender_name,omitempty"`
	ContentType    string `json:"content_type"`
	Payload        []byte `json:"payload,omitempty"`
}

// Text returns the payload as text for text content and "" otherwise.
func (m Message) Text() string {
	if model.ContentType(m.ContentType) != model.ContentText {
		return ""
	}
	return string(m.Payload)
}

func messageFrom(m model.Message, senderName string) Message {
	return Message{
		ID:             m.ID,
		ConversationID: m.ConversationID,
		SentAt:         m.SentAt,
		SenderID:       m.SenderID,
		SenderName:     senderName,
		ContentType:    string(m.Content.Type),
		Payload:        m.Content.Payload,
	}
}

func conversationFrom(c model.Conversation) Conversation {
	return Conversation{
		ID:          c.ID,
		Kind:        string(c.Kind),
		Name:        c.Metadata.Name,
		Description: c.Metadata.Description,
		ImageURL:    c.Metadata.ImageURL,
		PeerID:      c.PeerID,
		CreatedAt:   c.CreatedAt,
	}
}

func summaryFrom(s views.Summary) Conversation {
	out := conversationFrom(s.Conversation)
	out.DisplayName = s.DisplayName
	out.MemberCount = s.MemberCount
	if s.LastMessage != nil {
		m := messageFrom(*s.LastMessage, "")
		out.LastMessage = &m
	}
	return out
}

// Session service.

type StatusRequest struct{}

type StatusResponse struct {
	Session       string `json:"session"`
	Status        string `json:"status"`
	SelfID        string `json:"self_id,omitempty"`
	Source        string `json:"source"`
	UptimeMs      int64  `json:"uptime_ms,string"`
	Conversations int    `json:"conversations"`
	Live          bool   `json:"live"`
	// DroppedEvents counts events lost by slow event subscribers.
	DroppedEvents int `json:"dropped_events,omitempty"`
}

type ConnectRequest struct{}

type DisconnectRequest struct{}

type ConnectionResponse struct {
	Status string `json:"status"`
}

type WatchEventsRequest struct {
	// Prefixes filters event kinds; empty receives everything.
	Prefixes []string `json:"prefixes,omitempty"`
}

// EventEnvelope wraps one bus event for clients.
type EventEnvelope struct {
	EventID      string `json:"event_id"`
	Session      string `json:"session"`
	OccurredAtMs int64  `json:"occurred_at_ms,string"`
	Kind         string `json:"kind"`
	Payload      any    `json:"payload,omitempty"`
}

// Sync service.

type SyncRequest struct {
	ConversationID string `json:"conversation_id,omitempty"`
	All            bool   `json:"all,omitempty"`
}

type SyncResult struct {
	Scope      string `json:"scope"`
	Full       bool   `json:"full"`
	Fetched    int    `json:"fetched"`
	Inserted   int    `json:"inserted"`
	Cursor     int64  `json:"cursor_ns,string"`
	Discarded  bool   `json:"discarded,omitempty"`
	Shared     bool   `json:"shared,omitempty"`
	DurationMs int64  `json:"duration_ms,string"`
}

func syncResultFrom(r msync.Result) SyncResult {
	return SyncResult{
		Scope:      r.Scope,
		Full:       r.Full,
		Fetched:    r.Fetched,
		Inserted:   r.Inserted,
		Cursor:     r.Cursor.LastCreatedAfter,
		Discarded:  r.Discarded,
		Shared:     r.Shared,
		DurationMs: r.Duration.Milliseconds(),
	}
}

type SyncResponse struct {
	Results []SyncResult `json:"results"`
}

type SyncStatusRequest struct{}

type SyncStatusResponse struct {
	Active    []string `json:"active,omitempty"`
	Watched   []string `json:"watched,omitempty"`
	Cursor    int64    `json:"cursor_ns,string"`
	CursorSet bool     `json:"cursor_set"`
}

// Conversation service.

type ListConversationsRequest struct {
	Query string `json:"query,omitempty"`
	Kind  string `json:"kind,omitempty"`
}

type ListConversationsResponse struct {
	Conversations []Conversation `json:"conversations"`
}

type ConversationRequest struct {
	ID string `json:"id"`
}

type MessagesRequest struct {
	ID string `json:"id"`
	// Limit keeps only the most recent messages when positive.
	Limit int `json:"limit,omitempty"`
}

type MessagesResponse struct {
	Messages []Message `json:"messages"`
}

type SendRequest struct {
	ConversationID string `json:"conversation_id"`
	Text           string `json:"text"`
}

type SendResponse struct {
	ClientMsgID string `json:"client_msg_id"`
}

type OutboxRequest struct {
	ClientMsgID string `json:"client_msg_id"`
}

type OutboxEntry struct {
	ClientMsgID    string `json:"client_msg_id"`
	ConversationID string `json:"conversation_id"`
	Status         string `json:"status"`
	Attempts       int    `json:"attempts"`
	Error          string `json:"error,omitempty"`
	ServerMsgID    string `json:"server_msg_id,omitempty"`
}

func outboxFrom(e *store.OutboxEntry) OutboxEntry {
	return OutboxEntry{
		ClientMsgID:    e.ClientMsgID,
		ConversationID: e.ConversationID,
		Status:         e.Status,
		Attempts:       e.Attempts,
		Error:          e.ErrorMessage,
		ServerMsgID:    e.ServerMsgID,
	}
}

type CreateDirectRequest struct {
	MemberID string `json:"member_id"`
}

type CreateGroupRequest struct {
	MemberIDs   []string `json:"member_ids"`
	Name        string   `json:"name,omitempty"`
	Description string   `json:"description,omitempty"`
	ImageURL    string   `json:"image_url,omitempty"`
}

type RemoveResponse struct {
	Removed bool `json:"removed"`
}

type MuteRequest struct {
	ID    string `json:"id"`
	Muted bool   `json:"muted"`
}

type MuteResponse struct {
	Muted bool `json:"muted"`
}

// Nick service.

type Nick struct {
	MemberID string `json:"member_id"`
	Nickname string `json:"nickname"`
}

type SetNickRequest struct {
	MemberID string `json:"member_id"`
	Nickname string `json:"nickname"`
}

type NickRequest struct {
	MemberID string `json:"member_id"`
}

type NickResponse struct {
	Nick  Nick `json:"nick"`
	Found bool `json:"found"`
}

type ListNicksRequest struct{}

type ListNicksResponse struct {
	Nicks []Nick `json:"nicks"`
}

type DeleteNickResponse struct {
	Deleted bool `json:"deleted"`
}

// Device service.

type Installation struct {
	ID        string `json:"id"`
	CreatedAt int64  `json:"created_at_ns,string"`
	Current   bool   `json:"current"`
}

type ListInstallationsRequest struct{}

type ListInstallationsResponse struct {
	Installations []Installation `json:"installations"`
}

type RevokeOthersRequest struct{}

type RevokeOthersResponse struct {
	Revoked []string `json:"revoked"`
}
