// Package memory is an in-process message network. The daemon uses it when
// source.kind is "memory"; tests use it as a faithful stand-in for a gateway.
package memory

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/mumblechat/mumble/internal/ident"
	"github.com/mumblechat/mumble/internal/model"
	"github.com/mumblechat/mumble/internal/source"
)

type conversation struct {
	conv     model.Conversation
	members  []model.Member
	messages []model.Message
}

type stream struct {
	ch   chan model.Event
	done chan struct{}
	once sync.Once
}

func (s *stream) close() {
	s.once.Do(func() { close(s.done) })
}

// Source is an in-memory implementation of source.Source for one inbox.
type Source struct {
	mu            sync.Mutex
	selfID        string
	convs         map[string]*conversation
	installations []model.Installation
	convStreams   map[*stream]struct{}
	msgStreams    map[*stream]struct{}
	lastTS        int64
	err           error
	closed        bool

	// Calls counts pull calls, keyed by method name.
	calls map[string]int
}

var _ source.Source = (*Source)(nil)

// New creates a network for the inbox selfID with a single current installation.
func New(selfID string) *Source {
	s := &Source{
		selfID:      ident.Canonical(selfID),
		convs:       make(map[string]*conversation),
		convStreams: make(map[*stream]struct{}),
		msgStreams:  make(map[*stream]struct{}),
		calls:       make(map[string]int),
	}
	s.installations = []model.Installation{{ID: uuid.NewString(), CreatedAt: s.now(), Current: true}}
	return s
}

// now returns a strictly increasing nanosecond timestamp. Caller may or may
// not hold mu; it only touches lastTS.
func (s *Source) now() int64 {
	ts := time.Now().UnixNano()
	if ts <= s.lastTS {
		ts = s.lastTS + 1
	}
	s.lastTS = ts
	return ts
}

// SelfID returns the inbox this source acts as.
func (s *Source) SelfID() string {
	return s.selfID
}

// Fail makes every subsequent pull and write return err. A nil err clears it.
func (s *Source) Fail(err error) {
	s.mu.Lock()
	s.err = err
	s.mu.Unlock()
}

// Calls returns how many times a method was invoked.
func (s *Source) Calls(method string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[method]
}

func (s *Source) enter(method string) error {
	s.calls[method]++
	if s.closed {
		return source.ErrClosed
	}
	return s.err
}

// Close stops every stream.
func (s *Source) Close() {
	s.mu.Lock()
	s.closed = true
	streams := make([]*stream, 0, len(s.convStreams)+len(s.msgStreams))
	for st := range s.convStreams {
		streams = append(streams, st)
	}
	for st := range s.msgStreams {
		streams = append(streams, st)
	}
	s.mu.Unlock()
	for _, st := range streams {
		st.close()
	}
}

func (s *Source) ListConversations(_ context.Context, opts source.ListOptions) ([]model.RemoteConversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter("ListConversations"); err != nil {
		return nil, err
	}
	var out []model.RemoteConversation
	for _, c := range s.convs {
		if opts.Incremental() && c.conv.CreatedAt <= opts.CreatedAfter {
			continue
		}
		out = append(out, model.RemoteConversation{Conversation: c.conv, Members: slices.Clone(c.members)})
	}
	slices.SortFunc(out, func(a, b model.RemoteConversation) int {
		return ident.CompareConversations(a.Conversation, b.Conversation)
	})
	return out, nil
}

func (s *Source) FetchMessages(_ context.Context, conversationID string) ([]model.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter("FetchMessages"); err != nil {
		return nil, err
	}
	c, ok := s.convs[ident.Canonical(conversationID)]
	if !ok {
		return nil, fmt.Errorf("conversation %q not found", conversationID)
	}
	return slices.Clone(c.messages), nil
}

func (s *Source) StreamConversations(ctx context.Context, fn source.EventFunc) (source.Disposer, error) {
	return s.subscribe(ctx, s.convStreams, fn)
}

func (s *Source) StreamMessages(ctx context.Context, fn source.EventFunc) (source.Disposer, error) {
	return s.subscribe(ctx, s.msgStreams, fn)
}

func (s *Source) subscribe(ctx context.Context, set map[*stream]struct{}, fn source.EventFunc) (source.Disposer, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, source.ErrClosed
	}
	st := &stream{ch: make(chan model.Event, 256), done: make(chan struct{})}
	set[st] = struct{}{}
	s.mu.Unlock()

	go func() {
		defer st.close()
		for {
			select {
			case evt := <-st.ch:
				fn(evt)
			case <-st.done:
				return
			case <-ctx.Done():
				return
			}
		}
	}()

	return func() {
		s.mu.Lock()
		delete(set, st)
		s.mu.Unlock()
		st.close()
	}, nil
}

// broadcast must be called with mu held.
func (s *Source) broadcast(set map[*stream]struct{}, evt model.Event) {
	for st := range set {
		select {
		case st.ch <- evt:
		case <-st.done:
		}
	}
}

// AddConversation creates a conversation as if another inbox had started it
// and announces it on the conversation stream.
func (s *Source) AddConversation(conv model.Conversation, members ...model.Member) model.RemoteConversation {
	s.mu.Lock()
	defer s.mu.Unlock()
	if conv.ID == "" {
		conv.ID = uuid.NewString()
	}
	if conv.CreatedAt == 0 {
		conv.CreatedAt = s.now()
	} else if conv.CreatedAt > s.lastTS {
		s.lastTS = conv.CreatedAt
	}
	rc := s.putLocked(conv, members)
	s.broadcast(s.convStreams, model.ConversationEvent{Conversation: rc.Conversation, Members: rc.Members})
	return rc
}

func (s *Source) putLocked(conv model.Conversation, members []model.Member) model.RemoteConversation {
	c := &conversation{conv: conv, members: slices.Clone(members)}
	s.convs[conv.ID] = c
	return model.RemoteConversation{Conversation: c.conv, Members: slices.Clone(c.members)}
}

// Deliver stores a message sent by another member and announces it on the
// message stream.
func (s *Source) Deliver(msg model.Message) (model.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.convs[ident.Canonical(msg.ConversationID)]
	if !ok {
		return model.Message{}, fmt.Errorf("conversation %q not found", msg.ConversationID)
	}
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.SentAt == 0 {
		msg.SentAt = s.now()
	}
	c.messages = append(c.messages, msg)
	s.broadcast(s.msgStreams, model.MessageEvent{Message: msg})
	return msg, nil
}

// AddMembers adds members to a group and announces the change.
func (s *Source) AddMembers(conversationID string, members ...model.Member) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.convs[ident.Canonical(conversationID)]
	if !ok {
		return fmt.Errorf("conversation %q not found", conversationID)
	}
	c.members = append(c.members, members...)
	s.broadcast(s.convStreams, model.MembershipEvent{ConversationID: c.conv.ID, Added: members})
	return nil
}

// Emit pushes a raw event to the matching stream without touching state.
func (s *Source) Emit(evt model.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch evt.(type) {
	case model.MessageEvent:
		s.broadcast(s.msgStreams, evt)
	default:
		s.broadcast(s.convStreams, evt)
	}
}

func (s *Source) CreateDirectConversation(_ context.Context, memberID string) (model.RemoteConversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter("CreateDirectConversation"); err != nil {
		return model.RemoteConversation{}, err
	}
	peer := ident.Canonical(memberID)
	if peer == "" {
		return model.RemoteConversation{}, fmt.Errorf("empty member id")
	}
	for _, c := range s.convs {
		if c.conv.Kind == model.KindDirect && c.conv.PeerID == peer {
			return model.RemoteConversation{Conversation: c.conv, Members: slices.Clone(c.members)}, nil
		}
	}
	conv := model.Conversation{ID: uuid.NewString(), Kind: model.KindDirect, CreatedAt: s.now(), PeerID: peer}
	return s.putLocked(conv, model.Members(s.selfID, peer)), nil
}

func (s *Source) CreateGroupConversation(_ context.Context, memberIDs []string, meta model.Metadata) (model.RemoteConversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter("CreateGroupConversation"); err != nil {
		return model.RemoteConversation{}, err
	}
	ids := []string{s.selfID}
	for _, id := range memberIDs {
		if id = ident.Canonical(id); id != "" && !slices.Contains(ids, id) {
			ids = append(ids, id)
		}
	}
	conv := model.Conversation{ID: uuid.NewString(), Kind: model.KindGroup, CreatedAt: s.now(), Metadata: meta}
	return s.putLocked(conv, model.Members(ids...)), nil
}

func (s *Source) SendMessage(_ context.Context, conversationID string, content model.Content) (model.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter("SendMessage"); err != nil {
		return model.Message{}, err
	}
	c, ok := s.convs[ident.Canonical(conversationID)]
	if !ok {
		return model.Message{}, fmt.Errorf("conversation %q not found", conversationID)
	}
	msg := model.Message{
		ID:             uuid.NewString(),
		ConversationID: c.conv.ID,
		SentAt:         s.now(),
		SenderID:       s.selfID,
		Content:        content,
	}
	c.messages = append(c.messages, msg)
	s.broadcast(s.msgStreams, model.MessageEvent{Message: msg})
	return msg, nil
}

// AddInstallation registers another device for the inbox.
func (s *Source) AddInstallation() model.Installation {
	s.mu.Lock()
	defer s.mu.Unlock()
	inst := model.Installation{ID: uuid.NewString(), CreatedAt: s.now()}
	s.installations = append(s.installations, inst)
	return inst
}

func (s *Source) ListInstallations(_ context.Context) ([]model.Installation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter("ListInstallations"); err != nil {
		return nil, err
	}
	return slices.Clone(s.installations), nil
}

func (s *Source) RevokeInstallations(_ context.Context, installationIDs []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter("RevokeInstallations"); err != nil {
		return err
	}
	for _, id := range installationIDs {
		i := slices.IndexFunc(s.installations, func(inst model.Installation) bool { return inst.ID == id })
		if i < 0 {
			return fmt.Errorf("installation %q not found", id)
		}
		if s.installations[i].Current {
			return fmt.Errorf("cannot revoke the current installation")
		}
	}
	s.installations = slices.DeleteFunc(s.installations, func(inst model.Installation) bool {
		return slices.Contains(installationIDs, inst.ID)
	})
	return nil
}
