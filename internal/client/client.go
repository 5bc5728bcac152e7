// Package client is the typed gRPC client of a mumbled session socket.
package client

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/mumblechat/mumble/internal/api"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/structpb"
)

// Client wraps the gRPC connection to the daemon.
type Client struct {
	conn *grpc.ClientConn
}

// New dials the daemon's Unix domain socket.
func New(socketPath string) (*Client, error) {
	conn, err := grpc.NewClient(
		"unix://"+socketPath,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		return nil, fmt.Errorf("dial daemon: %w", err)
	}
	return &Client{conn: conn}, nil
}

// NewWithConn wraps an existing connection. Close closes it.
func NewWithConn(conn *grpc.ClientConn) *Client {
	return &Client{conn: conn}
}

// Close closes the gRPC connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

func call[Req, Resp any](ctx context.Context, c *Client, service, method string, req *Req) (*Resp, error) {
	in, err := api.Encode(req)
	if err != nil {
		return nil, err
	}
	out := new(structpb.Struct)
	if err := c.conn.Invoke(ctx, api.FullMethod(service, method), in, out); err != nil {
		return nil, err
	}
	resp := new(Resp)
	if err := api.Decode(out, resp); err != nil {
		return nil, fmt.Errorf("decode %s: %w", method, err)
	}
	return resp, nil
}

// stream runs a server-streaming call, handing every message to fn until the
// server ends the stream, ctx is done, or fn returns an error.
func stream[Req, Resp any](ctx context.Context, c *Client, service, method string, req *Req, fn func(Resp) error) error {
	desc := &grpc.StreamDesc{StreamName: method, ServerStreams: true}
	st, err := c.conn.NewStream(ctx, desc, api.FullMethod(service, method))
	if err != nil {
		return err
	}
	in, err := api.Encode(req)
	if err != nil {
		return err
	}
	if err := st.SendMsg(in); err != nil {
		return err
	}
	if err := st.CloseSend(); err != nil {
		return err
	}
	for {
		out := new(structpb.Struct)
		if err := st.RecvMsg(out); err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
		var resp Resp
		if err := api.Decode(out, &resp); err != nil {
			return fmt.Errorf("decode %s: %w", method, err)
		}
		if err := fn(resp); err != nil {
			return err
		}
	}
}

// Session service.

func (c *Client) Status(ctx context.Context) (*api.StatusResponse, error) {
	return call[api.StatusRequest, api.StatusResponse](ctx, c, api.SessionServiceName, "GetStatus", &api.StatusRequest{})
}

func (c *Client) Connect(ctx context.Context) (*api.ConnectionResponse, error) {
	return call[api.ConnectRequest, api.ConnectionResponse](ctx, c, api.SessionServiceName, "Connect", &api.ConnectRequest{})
}

func (c *Client) Disconnect(ctx context.Context) (*api.ConnectionResponse, error) {
	return call[api.DisconnectRequest, api.ConnectionResponse](ctx, c, api.SessionServiceName, "Disconnect", &api.DisconnectRequest{})
}

// WatchEvents streams daemon events whose kind starts with one of prefixes.
func (c *Client) WatchEvents(ctx context.Context, prefixes []string, fn func(api.EventEnvelope) error) error {
	return stream(ctx, c, api.SessionServiceName, "WatchEvents", &api.WatchEventsRequest{Prefixes: prefixes}, fn)
}

// Sync service.

func (c *Client) Sync(ctx context.Context, req api.SyncRequest) (*api.SyncResponse, error) {
	return call[api.SyncRequest, api.SyncResponse](ctx, c, api.SyncServiceName, "Sync", &req)
}

func (c *Client) SyncStatus(ctx context.Context) (*api.SyncStatusResponse, error) {
	return call[api.SyncStatusRequest, api.SyncStatusResponse](ctx, c, api.SyncServiceName, "GetSyncStatus", &api.SyncStatusRequest{})
}

// Conversation service.

func (c *Client) Conversations(ctx context.Context, query, kind string) ([]api.Conversation, error) {
	resp, err := call[api.ListConversationsRequest, api.ListConversationsResponse](ctx, c, api.ConversationServiceName, "ListConversations",
		&api.ListConversationsRequest{Query: query, Kind: kind})
	if err != nil {
		return nil, err
	}
	return resp.Conversations, nil
}

func (c *Client) Conversation(ctx context.Context, id string) (*api.Conversation, error) {
	return call[api.ConversationRequest, api.Conversation](ctx, c, api.ConversationServiceName, "GetConversation", &api.ConversationRequest{ID: id})
}

func (c *Client) Messages(ctx context.Context, id string, limit int) ([]api.Message, error) {
	resp, err := call[api.MessagesRequest, api.MessagesResponse](ctx, c, api.ConversationServiceName, "ListMessages",
		&api.MessagesRequest{ID: id, Limit: limit})
	if err != nil {
		return nil, err
	}
	return resp.Messages, nil
}

// SendText queues a text message and returns its client message id.
func (c *Client) SendText(ctx context.Context, conversationID, text string) (string, error) {
	resp, err := call[api.SendRequest, api.SendResponse](ctx, c, api.ConversationServiceName, "SendText",
		&api.SendRequest{ConversationID: conversationID, Text: text})
	if err != nil {
		return "", err
	}
	return resp.ClientMsgID, nil
}

func (c *Client) OutboxEntry(ctx context.Context, clientMsgID string) (*api.OutboxEntry, error) {
	return call[api.OutboxRequest, api.OutboxEntry](ctx, c, api.ConversationServiceName, "GetOutboxEntry", &api.OutboxRequest{ClientMsgID: clientMsgID})
}

func (c *Client) CreateDirect(ctx context.Context, memberID string) (*api.Conversation, error) {
	return call[api.CreateDirectRequest, api.Conversation](ctx, c, api.ConversationServiceName, "CreateDirect", &api.CreateDirectRequest{MemberID: memberID})
}

func (c *Client) CreateGroup(ctx context.Context, req api.CreateGroupRequest) (*api.Conversation, error) {
	return call[api.CreateGroupRequest, api.Conversation](ctx, c, api.ConversationServiceName, "CreateGroup", &req)
}

func (c *Client) RemoveConversation(ctx context.Context, id string) (bool, error) {
	resp, err := call[api.ConversationRequest, api.RemoveResponse](ctx, c, api.ConversationServiceName, "RemoveConversation", &api.ConversationRequest{ID: id})
	if err != nil {
		return false, err
	}
	return resp.Removed, nil
}

func (c *Client) SetMuted(ctx context.Context, id string, muted bool) error {
	_, err := call[api.MuteRequest, api.MuteResponse](ctx, c, api.ConversationServiceName, "SetMuted", &api.MuteRequest{ID: id, Muted: muted})
	return err
}

// Focus holds a conversation open until ctx is done, handing every newly
// mirrored message to fn.
func (c *Client) Focus(ctx context.Context, id string, fn func(api.Message) error) error {
	return stream(ctx, c, api.ConversationServiceName, "Focus", &api.ConversationRequest{ID: id}, fn)
}

// Nick service.

func (c *Client) SetNick(ctx context.Context, memberID, nickname string) error {
	_, err := call[api.SetNickRequest, api.NickResponse](ctx, c, api.NickServiceName, "SetNick",
		&api.SetNickRequest{MemberID: memberID, Nickname: nickname})
	return err
}

// Nick returns a member's nickname, or "" when none is set.
func (c *Client) Nick(ctx context.Context, memberID string) (string, error) {
	resp, err := call[api.NickRequest, api.NickResponse](ctx, c, api.NickServiceName, "GetNick", &api.NickRequest{MemberID: memberID})
	if err != nil {
		return "", err
	}
	return resp.Nick.Nickname, nil
}

func (c *Client) Nicks(ctx context.Context) ([]api.Nick, error) {
	resp, err := call[api.ListNicksRequest, api.ListNicksResponse](ctx, c, api.NickServiceName, "ListNicks", &api.ListNicksRequest{})
	if err != nil {
		return nil, err
	}
	return resp.Nicks, nil
}

func (c *Client) DeleteNick(ctx context.Context, memberID string) (bool, error) {
	resp, err := call[api.NickRequest, api.DeleteNickResponse](ctx, c, api.NickServiceName, "DeleteNick", &api.NickRequest{MemberID: memberID})
	if err != nil {
		return false, err
	}
	return resp.Deleted, nil
}

// Device service.

func (c *Client) Installations(ctx context.Context) ([]api.Installation, error) {
	resp, err := call[api.ListInstallationsRequest, api.ListInstallationsResponse](ctx, c, api.DeviceServiceName, "ListInstallations", &api.ListInstallationsRequest{})
	if err != nil {
		return nil, err
	}
	return resp.Installations, nil
}

func (c *Client) RevokeOtherInstallations(ctx context.Context) ([]string, error) {
	resp, err := call[api.RevokeOthersRequest, api.RevokeOthersResponse](ctx, c, api.DeviceServiceName, "RevokeOthers", &api.RevokeOthersRequest{})
	if err != nil {
		return nil, err
	}
	return resp.Revoked, nil
}
