package sync

import (
	"context"
	"fmt"

	"github.com/mumblechat/mumble/internal/ident"
	"github.com/mumblechat/mumble/internal/model"
	"go.uber.org/zap"
)

// CreateDirect opens a direct conversation with memberID, or returns the
// existing one, and mirrors it with its complete member list. The cursor is
// not moved; the next pull sees the conversation again and merges it.
func (c *Coordinator) CreateDirect(ctx context.Context, memberID string) (model.Conversation, error) {
	if !ident.Valid(memberID) {
		return model.Conversation{}, ErrInvalidMember
	}
	if c.auth != nil && !c.auth.Authenticated() {
		return model.Conversation{}, ErrUnauthenticated
	}
	rc, err := c.src.CreateDirectConversation(ctx, memberID)
	if err != nil {
		return model.Conversation{}, fmt.Errorf("create direct conversation: %w", err)
	}
	return c.adopt(rc), nil
}

// CreateGroup creates a group with the given members and metadata and
// mirrors it.
func (c *Coordinator) CreateGroup(ctx context.Context, memberIDs []string, meta model.Metadata) (model.Conversation, error) {
	if len(memberIDs) == 0 {
		return model.Conversation{}, ErrInvalidMember
	}
	for _, id := range memberIDs {
		if !ident.Valid(id) {
			return model.Conversation{}, ErrInvalidMember
		}
	}
	if c.auth != nil && !c.auth.Authenticated() {
		return model.Conversation{}, ErrUnauthenticated
	}
	rc, err := c.src.CreateGroupConversation(ctx, memberIDs, meta)
	if err != nil {
		return model.Conversation{}, fmt.Errorf("create group conversation: %w", err)
	}
	return c.adopt(rc), nil
}

func (c *Coordinator) adopt(rc model.RemoteConversation) model.Conversation {
	c.cache.UpsertConversation(rc.Conversation)
	c.cache.SetMembers(rc.Conversation.ID, rc.Members)
	conv, _ := c.cache.Conversation(rc.Conversation.ID)
	c.logger.Info("conversation created",
		zap.String("conversation", conv.ID),
		zap.String("kind", string(conv.Kind)),
		zap.Int("members", len(rc.Members)))
	return conv
}
