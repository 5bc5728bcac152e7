// Package views exposes read-only projections of the mirror for clients.
// Every result is a pure function of the cache state at call time.
package views

import (
	"cmp"
	"slices"
	"strings"
	"sync"

	"github.com/mumblechat/mumble/internal/ident"
	"github.com/mumblechat/mumble/internal/mirror"
	"github.com/mumblechat/mumble/internal/model"
)

// Nicknamer resolves local nicknames.
type Nicknamer interface {
	Nickname(memberID string) string
}

// Summary is a conversation row as shown in a conversation list.
type Summary struct {
	Conversation model.Conversation
	DisplayName  string
	MemberCount  int
	LastMessage  *model.Message
}

// Views projects a mirror cache.
type Views struct {
	cache  *mirror.Cache
	nicks  Nicknamer
	selfID string

	mu          sync.Mutex
	memoVersion uint64
	memoValid   bool
	memo        []model.Conversation
	rebuilds    int
}

// New creates views over cache. nicks may be nil.
func New(cache *mirror.Cache, nicks Nicknamer, selfID string) *Views {
	return &Views{cache: cache, nicks: nicks, selfID: ident.Canonical(selfID)}
}

// sorted returns the conversations most recent first, rebuilding only when
// the cache changed since the last call. Callers must not modify the result.
func (v *Views) sorted() []model.Conversation {
	version := v.cache.Version()
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.memoValid && v.memoVersion == version {
		return v.memo
	}
	convs := v.cache.Conversations()
	slices.SortStableFunc(convs, func(a, b model.Conversation) int {
		return cmp.Compare(b.CreatedAt, a.CreatedAt)
	})
	v.memo = convs
	v.memoVersion = version
	v.memoValid = true
	v.rebuilds++
	return convs
}

func (v *Views) nickname(memberID string) string {
	if v.nicks == nil {
		return ""
	}
	return v.nicks.Nickname(memberID)
}

func (v *Views) matches(c model.Conversation, filter Predicate) bool {
	if filter == nil {
		return true
	}
	return filter(Subject{Conversation: c, Members: v.cache.Members(c.ID), nickname: v.nickname})
}

// ListConversations returns conversations most recent first; conversations
// created at the same time keep the order the mirror first saw them in.
func (v *Views) ListConversations(filter Predicate) []model.Conversation {
	all := v.sorted()
	out := make([]model.Conversation, 0, len(all))
	for _, c := range all {
		if v.matches(c, filter) {
			out = append(out, c)
		}
	}
	return out
}

// GetMessages returns a conversation's messages in order. Unknown
// conversations yield an empty slice.
func (v *Views) GetMessages(conversationID string) []model.Message {
	msgs := v.cache.Messages(conversationID)
	if msgs == nil {
		return []model.Message{}
	}
	return msgs
}

// GetMemberCount returns the membership size, zero for unknown conversations.
func (v *Views) GetMemberCount(conversationID string) int {
	return v.cache.MemberCount(conversationID)
}

// Summaries returns list rows for the conversations matching filter.
func (v *Views) Summaries(filter Predicate) []Summary {
	convs := v.ListConversations(filter)
	out := make([]Summary, 0, len(convs))
	for _, c := range convs {
		s := Summary{
			Conversation: c,
			DisplayName:  v.ConversationName(c),
			MemberCount:  v.cache.MemberCount(c.ID),
		}
		if last, ok := v.cache.LastMessage(c.ID); ok {
			s.LastMessage = &last
		}
		out = append(out, s)
	}
	return out
}

// MemberName returns a member's nickname, or its id when none is set.
func (v *Views) MemberName(memberID string) string {
	if nick := v.nickname(memberID); nick != "" {
		return nick
	}
	return memberID
}

// ConversationName picks the label of a conversation: its name, the peer for
// direct conversations, or the first few other members for unnamed groups.
func (v *Views) ConversationName(c model.Conversation) string {
	if c.Metadata.Name != "" {
		return c.Metadata.Name
	}
	if c.Kind == model.KindDirect && c.PeerID != "" {
		return v.MemberName(c.PeerID)
	}
	const maxNames = 3
	var names []string
	others := 0
	for _, m := range v.cache.Members(c.ID) {
		if m.ID == v.selfID {
			continue
		}
		others++
		if len(names) < maxNames {
			names = append(names, v.MemberName(m.ID))
		}
	}
	if len(names) == 0 {
		return c.ID
	}
	label := strings.Join(names, ", ")
	if others > maxNames {
		label += ", …"
	}
	return label
}
