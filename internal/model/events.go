package model

// Event is a live update delivered by a message source stream.
type Event interface {
	eventConversationID() string
}

// ConversationEvent announces a new (or updated) conversation.
type ConversationEvent struct {
	Conversation Conversation
	Members      []Member
}

// MessageEvent carries a newly delivered message.
type MessageEvent struct {
	Message Message
}

// MembershipEvent reports members added to a conversation.
type MembershipEvent struct {
	ConversationID string
	Added          []Member
}

func (e ConversationEvent) eventConversationID() string { return e.Conversation.ID }
func (e MessageEvent) eventConversationID() string      { return e.Message.ConversationID }
func (e MembershipEvent) eventConversationID() string   { return e.ConversationID }

// EventConversationID returns the conversation an event refers to.
func EventConversationID(e Event) string {
	if e == nil {
		return ""
	}
	return e.eventConversationID()
}
