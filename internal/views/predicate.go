package views

import (
	"strings"

	"github.com/mumblechat/mumble/internal/model"
)

// Subject is what a Predicate inspects for one conversation.
type Subject struct {
	Conversation model.Conversation
	Members      []model.Member
	nickname     func(string) string
}

// Nickname returns the local nickname of a member, or "".
func (s Subject) Nickname(memberID string) string {
	if s.nickname == nil {
		return ""
	}
	return s.nickname(memberID)
}

// Predicate filters conversations in ListConversations and Summaries.
type Predicate func(Subject) bool

// MatchText matches q case-insensitively against the conversation id, name
// and description, and against member ids and nicknames. An empty q matches
// everything.
func MatchText(q string) Predicate {
	q = strings.ToLower(strings.TrimSpace(q))
	return func(s Subject) bool {
		if q == "" {
			return true
		}
		c := s.Conversation
		for _, field := range []string{c.ID, c.Metadata.Name, c.Metadata.Description, c.PeerID} {
			if strings.Contains(strings.ToLower(field), q) {
				return true
			}
		}
		for _, m := range s.Members {
			if strings.Contains(strings.ToLower(m.ID), q) {
				return true
			}
			if nick := s.Nickname(m.ID); nick != "" && strings.Contains(strings.ToLower(nick), q) {
				return true
			}
		}
		return false
	}
}

// OfKind matches conversations of kind k.
func OfKind(k model.Kind) Predicate {
	return func(s Subject) bool {
		return s.Conversation.Kind == k
	}
}

// And matches when every predicate matches. Nil predicates are skipped.
func And(preds ...Predicate) Predicate {
	return func(s Subject) bool {
		for _, p := range preds {
			if p != nil && !p(s) {
				return false
			}
		}
		return true
	}
}
