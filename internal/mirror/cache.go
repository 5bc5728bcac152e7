// Package mirror holds the in-memory replica of remote conversations, members
// and messages. The Cache is the single owner of that state; sync and live
// ingestion mutate it only through the methods below.
package mirror

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"
	"sync"

	"github.com/mumblechat/mumble/internal/bus"
	"github.com/mumblechat/mumble/internal/ident"
	"github.com/mumblechat/mumble/internal/model"
	"go.uber.org/zap"
)

// ErrUnknownConversation is returned by callers that require a conversation
// to be present in the mirror.
var ErrUnknownConversation = errors.New("unknown conversation")

// Options configures a Cache.
type Options struct {
	// Strict panics on malformed entities instead of logging and dropping them.
	Strict bool
	Bus    *bus.Bus
	Logger *zap.Logger
}

type entry struct {
	conv     model.Conversation
	members  map[string]model.Member
	messages []model.Message
}

// Cache is the mirror's entity store. It is safe for concurrent use; no method
// calls out to other components while holding the lock.
type Cache struct {
	mu       sync.RWMutex
	convs    map[string]*entry
	order    []string
	msgIndex map[string]string // message id -> conversation id
	cursor   model.Cursor
	gen      uint64
	version  uint64

	strict bool
	bus    *bus.Bus
	logger *zap.Logger
}

// New creates an empty cache.
func New(opts Options) *Cache {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Cache{
		convs:    make(map[string]*entry),
		msgIndex: make(map[string]string),
		strict:   opts.Strict,
		bus:      opts.Bus,
		logger:   logger,
	}
}

// ConversationChange is the payload of conversation upsert/remove events.
type ConversationChange struct {
	ConversationID string
	Created        bool
}

// MembersChange is the payload of members.changed events.
type MembersChange struct {
	ConversationID string
	Replaced       bool
	Count          int
}

// MessageAppended is the payload of message.appended events.
type MessageAppended struct {
	ConversationID string
	Message        model.Message
}

// malformed reports an entity without an identifier.
func (c *Cache) malformed(what string) {
	if c.strict {
		panic(fmt.Sprintf("mirror: malformed %s: missing id", what))
	}
	c.logger.Warn("dropping malformed entity", zap.String("entity", what))
}

// write runs fn under the write lock. The lock is released even when fn
// panics on a malformed entity in strict mode.
func (c *Cache) write(fn func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fn()
}

func (c *Cache) publish(evts []bus.Event) {
	for _, evt := range evts {
		c.bus.Publish(evt)
	}
}

// UpsertConversation inserts a conversation or merges its fields into the
// existing one. Members and messages are never touched. Returns true when the
// conversation was not present before.
func (c *Cache) UpsertConversation(conv model.Conversation) bool {
	var (
		created, ok bool
		evt         *bus.Event
	)
	c.write(func() { created, evt, ok = c.upsertLocked(conv) })
	if ok && evt != nil {
		c.publish([]bus.Event{*evt})
	}
	return created
}

// UpsertConversations is the batch form of UpsertConversation. Returns the
// number of newly created conversations.
func (c *Cache) UpsertConversations(list []model.Conversation) int {
	var evts []bus.Event
	n := 0
	c.write(func() {
		for _, conv := range list {
			created, evt, ok := c.upsertLocked(conv)
			if !ok {
				continue
			}
			if created {
				n++
			}
			if evt != nil {
				evts = append(evts, *evt)
			}
		}
	})
	c.publish(evts)
	return n
}

func (c *Cache) upsertLocked(conv model.Conversation) (created bool, evt *bus.Event, ok bool) {
	conv.ID = ident.Canonical(conv.ID)
	if conv.ID == "" {
		c.malformed("conversation")
		return false, nil, false
	}
	conv.PeerID = ident.Canonical(conv.PeerID)

	e, exists := c.convs[conv.ID]
	if !exists {
		c.convs[conv.ID] = &entry{conv: conv, members: make(map[string]model.Member)}
		c.order = append(c.order, conv.ID)
		c.version++
		return true, conversationEvent(conv.ID, true), true
	}
	if !mergeConversation(&e.conv, conv) {
		return false, nil, true
	}
	c.version++
	return false, conversationEvent(conv.ID, false), true
}

func conversationEvent(id string, created bool) *bus.Event {
	return &bus.Event{
		Kind:    bus.KindConversationUpserted,
		Payload: ConversationChange{ConversationID: id, Created: created},
	}
}

// mergeConversation applies the source's view of a conversation onto dst.
// Non-empty incoming fields win; CreatedAt is immutable once set.
func mergeConversation(dst *model.Conversation, src model.Conversation) bool {
	changed := false
	if src.Kind.Known() && dst.Kind != src.Kind {
		dst.Kind = src.Kind
		changed = true
	}
	if dst.CreatedAt == 0 && src.CreatedAt != 0 {
		dst.CreatedAt = src.CreatedAt
		changed = true
	}
	if src.PeerID != "" && dst.PeerID != src.PeerID {
		dst.PeerID = src.PeerID
		changed = true
	}
	if src.Metadata.Name != "" && dst.Metadata.Name != src.Metadata.Name {
		dst.Metadata.Name = src.Metadata.Name
		changed = true
	}
	if src.Metadata.Description != "" && dst.Metadata.Description != src.Metadata.Description {
		dst.Metadata.Description = src.Metadata.Description
		changed = true
	}
	if src.Metadata.ImageURL != "" && dst.Metadata.ImageURL != src.Metadata.ImageURL {
		dst.Metadata.ImageURL = src.Metadata.ImageURL
		changed = true
	}
	return changed
}

// SetMembers replaces the membership of a conversation. Pull paths only.
// Returns false if the conversation is unknown.
func (c *Cache) SetMembers(conversationID string, members []model.Member) bool {
	var (
		evt *bus.Event
		ok  bool
	)
	c.write(func() { evt, ok = c.setMembersLocked(ident.Canonical(conversationID), members) })
	if evt != nil {
		c.publish([]bus.Event{*evt})
	}
	return ok
}

func (c *Cache) setMembersLocked(id string, members []model.Member) (*bus.Event, bool) {
	e, ok := c.convs[id]
	if !ok {
		return nil, false
	}
	next := make(map[string]model.Member, len(members))
	for _, m := range members {
		m.ID = ident.Canonical(m.ID)
		if m.ID == "" {
			c.malformed("member")
			continue
		}
		next[m.ID] = m
	}
	if maps.Equal(e.members, next) {
		return nil, true
	}
	e.members = next
	c.version++
	return &bus.Event{
		Kind:    bus.KindMembersChanged,
		Payload: MembersChange{ConversationID: id, Replaced: true, Count: len(next)},
	}, true
}

// MergeMembers adds members to a conversation without removing any. Live
// updates only. Returns false if the conversation is unknown.
func (c *Cache) MergeMembers(conversationID string, members []model.Member) bool {
	id := ident.Canonical(conversationID)
	var (
		ok           bool
		added, count int
	)
	c.write(func() {
		var e *entry
		if e, ok = c.convs[id]; !ok {
			return
		}
		for _, m := range members {
			m.ID = ident.Canonical(m.ID)
			if m.ID == "" {
				c.malformed("member")
				continue
			}
			if _, dup := e.members[m.ID]; dup {
				continue
			}
			e.members[m.ID] = m
			added++
		}
		count = len(e.members)
		if added > 0 {
			c.version++
		}
	})
	if !ok {
		return false
	}

	if added > 0 {
		c.bus.Publish(bus.Event{
			Kind:    bus.KindMembersChanged,
			Payload: MembersChange{ConversationID: id, Count: count},
		})
	}
	return true
}

// AppendMessage inserts a message into its conversation, keeping the
// (sentAt, id) order. It is a no-op when a message with the same id is
// already mirrored or the conversation is unknown. Returns true on insert.
func (c *Cache) AppendMessage(conversationID string, msg model.Message) bool {
	var evt *bus.Event
	c.write(func() { evt = c.appendLocked(ident.Canonical(conversationID), msg) })
	if evt != nil {
		c.publish([]bus.Event{*evt})
		return true
	}
	return false
}

func (c *Cache) appendLocked(id string, msg model.Message) *bus.Event {
	msg.ID = ident.Canonical(msg.ID)
	if msg.ID == "" {
		c.malformed("message")
		return nil
	}
	if _, dup := c.msgIndex[msg.ID]; dup {
		return nil
	}
	e, ok := c.convs[id]
	if !ok {
		return nil
	}
	msg.ConversationID = id
	msg.SenderID = ident.Canonical(msg.SenderID)
	i := ident.InsertIndex(e.messages, msg)
	e.messages = slices.Insert(e.messages, i, msg)
	c.msgIndex[msg.ID] = id
	c.version++
	return &bus.Event{
		Kind:    bus.KindMessageAppended,
		Payload: MessageAppended{ConversationID: id, Message: msg},
	}
}

// RemoveConversation drops a conversation with its members and messages from
// the mirror only. Propagating the removal to the network is up to the caller.
func (c *Cache) RemoveConversation(conversationID string) bool {
	id := ident.Canonical(conversationID)
	var ok bool
	c.write(func() {
		var e *entry
		if e, ok = c.convs[id]; !ok {
			return
		}
		for _, m := range e.messages {
			delete(c.msgIndex, m.ID)
		}
		delete(c.convs, id)
		if i := slices.Index(c.order, id); i >= 0 {
			c.order = slices.Delete(c.order, i, i+1)
		}
		c.version++
	})
	if !ok {
		return false
	}

	c.bus.Publish(bus.Event{
		Kind:    bus.KindConversationRemoved,
		Payload: ConversationChange{ConversationID: id},
	})
	return true
}

// Reset clears every entity and the sync cursor. Pulls that started before the
// reset are discarded when they complete.
func (c *Cache) Reset() {
	c.write(func() {
		c.convs = make(map[string]*entry)
		c.order = nil
		c.msgIndex = make(map[string]string)
		c.cursor = model.Cursor{}
		c.gen++
		c.version++
	})

	c.bus.Emit(bus.KindMirrorReset, nil)
}

// ApplyPull atomically applies a conversation-list pull taken at generation
// gen: conversations are upserted, their members replaced, and the cursor
// advanced to the newest createdAt seen. It returns false without touching
// anything if the cache was reset since gen was read.
func (c *Cache) ApplyPull(gen uint64, remote []model.RemoteConversation) (model.Cursor, bool) {
	var (
		evts    []bus.Event
		cur     model.Cursor
		applied bool
	)
	c.write(func() {
		cur = c.cursor
		if gen != c.gen {
			return
		}
		watermark := c.cursor.LastCreatedAfter
		for _, rc := range remote {
			_, evt, ok := c.upsertLocked(rc.Conversation)
			if !ok {
				continue
			}
			if evt != nil {
				evts = append(evts, *evt)
			}
			if mevt, _ := c.setMembersLocked(ident.Canonical(rc.Conversation.ID), rc.Members); mevt != nil {
				evts = append(evts, *mevt)
			}
			watermark = max(watermark, rc.Conversation.CreatedAt)
		}
		c.cursor = model.Cursor{LastCreatedAfter: watermark, Set: true}
		cur = c.cursor
		applied = true
	})

	c.publish(evts)
	return cur, applied
}

// ApplyMessages appends a message pull for one conversation taken at
// generation gen. Returns the number of newly inserted messages and false if
// the cache was reset since gen was read.
func (c *Cache) ApplyMessages(gen uint64, conversationID string, msgs []model.Message) (int, bool) {
	id := ident.Canonical(conversationID)
	var (
		evts    []bus.Event
		applied bool
	)
	c.write(func() {
		if gen != c.gen {
			return
		}
		for _, m := range msgs {
			if evt := c.appendLocked(id, m); evt != nil {
				evts = append(evts, *evt)
			}
		}
		applied = true
	})

	c.publish(evts)
	return len(evts), applied
}

// SetCursor overrides the sync cursor.
func (c *Cache) SetCursor(cur model.Cursor) {
	c.write(func() { c.cursor = cur })
}

// Cursor returns the sync cursor.
func (c *Cache) Cursor() model.Cursor {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.cursor
}

// Generation changes on every Reset.
func (c *Cache) Generation() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.gen
}

// Version changes on every mutation.
func (c *Cache) Version() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.version
}

// Len returns the number of mirrored conversations.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.convs)
}

// Conversation returns a conversation by id.
func (c *Cache) Conversation(id string) (model.Conversation, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.convs[ident.Canonical(id)]
	if !ok {
		return model.Conversation{}, false
	}
	return e.conv, true
}

// Conversations returns every conversation in first-seen order.
func (c *Cache) Conversations() []model.Conversation {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]model.Conversation, 0, len(c.order))
	for _, id := range c.order {
		out = append(out, c.convs[id].conv)
	}
	return out
}

// Members returns a conversation's members sorted by id.
func (c *Cache) Members(id string) []model.Member {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.convs[ident.Canonical(id)]
	if !ok {
		return nil
	}
	out := make([]model.Member, 0, len(e.members))
	for _, m := range e.members {
		out = append(out, m)
	}
	slices.SortFunc(out, func(a, b model.Member) int { return strings.Compare(a.ID, b.ID) })
	return out
}

// MemberCount returns the size of a conversation's membership, zero if unknown.
func (c *Cache) MemberCount(id string) int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.convs[ident.Canonical(id)]
	if !ok {
		return 0
	}
	return len(e.members)
}

// Messages returns a copy of a conversation's ordered messages.
func (c *Cache) Messages(id string) []model.Message {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.convs[ident.Canonical(id)]
	if !ok {
		return nil
	}
	return slices.Clone(e.messages)
}

// LastMessage returns the newest message of a conversation.
func (c *Cache) LastMessage(id string) (model.Message, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.convs[ident.Canonical(id)]
	if !ok || len(e.messages) == 0 {
		return model.Message{}, false
	}
	return e.messages[len(e.messages)-1], true
}

// HasMessage reports whether a message id is mirrored.
func (c *Cache) HasMessage(id string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.msgIndex[ident.Canonical(id)]
	return ok
}
