package gateway

import (
	"github.com/mumblechat/mumble/internal/model"
)

// Wire types shared by Client and Handler. Timestamps are unix nanoseconds.

type wireConversation struct {
	ID          string   `json:"id"`
	Kind        string   `json:"kind"`
	Name        string   `json:"name,omitempty"`
	Description string   `json:"description,omitempty"`
	ImageURL    string   `json:"image_url,omitempty"`
	CreatedAtNs int64    `json:"created_at_ns"`
	PeerID      string   `json:"peer_id,omitempty"`
	Members     []string `json:"members,omitempty"`
}

type wireMessage struct {
	ID             string `json:"id"`
	ConversationID string `json:"conversation_id"`
	SentAtNs       int64  `json:"sent_at_ns"`
	SenderID       string `json:"sender_id"`
	ContentType    string `json:"content_type"`
	Content        []byte `json:"content,omitempty"`
}

type wireInstallation struct {
	ID          string `json:"id"`
	CreatedAtNs int64  `json:"created_at_ns"`
	Current     bool   `json:"current,omitempty"`
}

type conversationList struct {
	Conversations []wireConversation `json:"conversations"`
}

type messageList struct {
	Messages []wireMessage `json:"messages"`
}

type installationList struct {
	Installations []wireInstallation `json:"installations"`
}

type createDirectRequest struct {
	MemberID string `json:"member_id"`
}

type createGroupRequest struct {
	MemberIDs   []string `json:"member_ids"`
	Name        string   `json:"name,omitempty"`
	Description string   `json:"description,omitempty"`
	ImageURL    string   `json:"image_url,omitempty"`
}

type sendRequest struct {
	ContentType string `json:"content_type"`
	Content     []byte `json:"content"`
}

type revokeRequest struct {
	InstallationIDs []string `json:"installation_ids"`
}

type errorBody struct {
	Error string `json:"error"`
}

// Stream frame types.
const (
	frameConversation = "conversation"
	frameMessage      = "message"
	frameMembership   = "membership"
)

type frame struct {
	Type           string            `json:"type"`
	Conversation   *wireConversation `json:"conversation,omitempty"`
	Message        *wireMessage      `json:"message,omitempty"`
	ConversationID string            `json:"conversation_id,omitempty"`
	Added          []string          `json:"added,omitempty"`
}

func toWireConversation(rc model.RemoteConversation) wireConversation {
	c := rc.Conversation
	return wireConversation{
		ID:          c.ID,
		Kind:        string(c.Kind),
		Name:        c.Metadata.Name,
		Description: c.Metadata.Description,
		ImageURL:    c.Metadata.ImageURL,
		CreatedAtNs: c.CreatedAt,
		PeerID:      c.PeerID,
		Members:     memberIDs(rc.Members),
	}
}

func (w wireConversation) model() model.RemoteConversation {
	return model.RemoteConversation{
		Conversation: model.Conversation{
			ID:   w.ID,
			Kind: model.ParseKind(w.Kind),
			Metadata: model.Metadata{
				Name:        w.Name,
				Description: w.Description,
				ImageURL:    w.ImageURL,
			},
			CreatedAt: w.CreatedAtNs,
			PeerID:    w.PeerID,
		},
		Members: model.Members(w.Members...),
	}
}

func toWireMessage(m model.Message) wireMessage {
	return wireMessage{
		ID:             m.ID,
		ConversationID: m.ConversationID,
		SentAtNs:       m.SentAt,
		SenderID:       m.SenderID,
		ContentType:    string(m.Content.Type),
		Content:        m.Content.Payload,
	}
}

func (w wireMessage) model() model.Message {
	return model.Message{
		ID:             w.ID,
		ConversationID: w.ConversationID,
		SentAt:         w.SentAtNs,
		SenderID:       w.SenderID,
		Content: model.Content{
			Type:    model.ParseContentType(w.ContentType),
			Payload: w.Content,
		},
	}
}

func toFrame(evt model.Event) (frame, bool) {
	switch e := evt.(type) {
	case model.ConversationEvent:
		wc := toWireConversation(model.RemoteConversation{Conversation: e.Conversation, Members: e.Members})
		return frame{Type: frameConversation, Conversation: &wc}, true
	case model.MessageEvent:
		wm := toWireMessage(e.Message)
		return frame{Type: frameMessage, Message: &wm}, true
	case model.MembershipEvent:
		return frame{Type: frameMembership, ConversationID: e.ConversationID, Added: memberIDs(e.Added)}, true
	}
	return frame{}, false
}

func (f frame) event() (model.Event, bool) {
	switch f.Type {
	case frameConversation:
		if f.Conversation == nil {
			return nil, false
		}
		rc := f.Conversation.model()
		return model.ConversationEvent{Conversation: rc.Conversation, Members: rc.Members}, true
	case frameMessage:
		if f.Message == nil {
			return nil, false
		}
		return model.MessageEvent{Message: f.Message.model()}, true
	case frameMembership:
		return model.MembershipEvent{ConversationID: f.ConversationID, Added: model.Members(f.Added...)}, true
	}
	return nil, false
}

func memberIDs(members []model.Member) []string {
	if len(members) == 0 {
		return nil
	}
	out := make([]string, len(members))
	for i, m := range members {
		out[i] = m.ID
	}
	return out
}
