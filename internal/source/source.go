// Package source defines the message source the mirror synchronizes against.
// Implementations own every protocol, cryptographic and persistence concern;
// the mirror only pulls, streams and writes through this interface.
package source

import (
	"context"
	"errors"

	"github.com/mumblechat/mumble/internal/model"
)

// ErrClosed is returned by operations on a source that has been closed.
var ErrClosed = errors.New("source closed")

// ListOptions narrows a conversation-list pull.
type ListOptions struct {
	// CreatedAfter requests only conversations created strictly after this
	// unix-nanosecond timestamp. Zero requests the full list.
	CreatedAfter int64
}

// Incremental reports whether the pull is filtered by a cursor.
func (o ListOptions) Incremental() bool {
	return o.CreatedAfter > 0
}

// EventFunc receives live events. Implementations call it from a single
// goroutine per stream, in delivery order.
type EventFunc func(model.Event)

// Disposer stops a stream. It is safe to call more than once.
type Disposer func()

// Source is the external messaging network as seen by the mirror.
type Source interface {
	ListConversations(ctx context.Context, opts ListOptions) ([]model.RemoteConversation, error)
	FetchMessages(ctx context.Context, conversationID string) ([]model.Message, error)

	StreamConversations(ctx context.Context, fn EventFunc) (Disposer, error)
	StreamMessages(ctx context.Context, fn EventFunc) (Disposer, error)

	CreateDirectConversation(ctx context.Context, memberID string) (model.RemoteConversation, error)
	CreateGroupConversation(ctx context.Context, memberIDs []string, meta model.Metadata) (model.RemoteConversation, error)
	SendMessage(ctx context.Context, conversationID string, content model.Content) (model.Message, error)

	ListInstallations(ctx context.Context) ([]model.Installation, error)
	RevokeInstallations(ctx context.Context, installationIDs []string) error
}
