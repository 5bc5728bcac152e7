package api

import (
	"context"

	"google.golang.org/grpc"
)

// SessionServiceServer is the server API for mumble.v1.SessionService.
type SessionServiceServer interface {
	GetStatus(context.Context, *StatusRequest) (*StatusResponse, error)
	Connect(context.Context, *ConnectRequest) (*ConnectionResponse, error)
	Disconnect(context.Context, *DisconnectRequest) (*ConnectionResponse, error)
	WatchEvents(*WatchEventsRequest, Stream) error
}

// SyncServiceServer is the server API for mumble.v1.SyncService.
type SyncServiceServer interface {
	Sync(context.Context, *SyncRequest) (*SyncResponse, error)
	GetSyncStatus(context.Context, *SyncStatusRequest) (*SyncStatusResponse, error)
}

// ConversationServiceServer is the server API for mumble.v1.ConversationService.
type ConversationServiceServer interface {
	ListConversations(context.Context, *ListConversationsRequest) (*ListConversationsResponse, error)
	GetConversation(context.Context, *ConversationRequest) (*Conversation, error)
	ListMessages(context.Context, *MessagesRequest) (*MessagesResponse, error)
	SendText(context.Context, *SendRequest) (*SendResponse, error)
	GetOutboxEntry(context.Context, *OutboxRequest) (*OutboxEntry, error)
	CreateDirect(context.Context, *CreateDirectRequest) (*Conversation, error)
	CreateGroup(context.Context, *CreateGroupRequest) (*Conversation, error)
	RemoveConversation(context.Context, *ConversationRequest) (*RemoveResponse, error)
	SetMuted(context.Context, *MuteRequest) (*MuteResponse, error)
	Focus(*ConversationRequest, Stream) error
}

// NickServiceServer is the server API for mumble.v1.NickService.
type NickServiceServer interface {
	SetNick(context.Context, *SetNickRequest) (*NickResponse, error)
	GetNick(context.Context, *NickRequest) (*NickResponse, error)
	ListNicks(context.Context, *ListNicksRequest) (*ListNicksResponse, error)
	DeleteNick(context.Context, *NickRequest) (*DeleteNickResponse, error)
}

// DeviceServiceServer is the server API for mumble.v1.DeviceService.
type DeviceServiceServer interface {
	ListInstallations(context.Context, *ListInstallationsRequest) (*ListInstallationsResponse, error)
	RevokeOthers(context.Context, *RevokeOthersRequest) (*RevokeOthersResponse, error)
}

var (
	_ SessionServiceServer      = (*SessionService)(nil)
	_ SyncServiceServer         = (*SyncService)(nil)
	_ ConversationServiceServer = (*ConversationService)(nil)
	_ NickServiceServer         = (*NickService)(nil)
	_ DeviceServiceServer       = (*DeviceService)(nil)
)

func RegisterSessionServiceServer(s grpc.ServiceRegistrar, srv SessionServiceServer) {
	const name = SessionServiceName
	s.RegisterService(&grpc.ServiceDesc{
		ServiceName: name,
		HandlerType: (*SessionServiceServer)(nil),
		Methods: []grpc.MethodDesc{
			unary(name, "GetStatus", srv.GetStatus),
			unary(name, "Connect", srv.Connect),
			unary(name, "Disconnect", srv.Disconnect),
		},
		Streams: []grpc.StreamDesc{
			serverStream("WatchEvents", srv.WatchEvents),
		},
		Metadata: metadata,
	}, srv)
}

func RegisterSyncServiceServer(s grpc.ServiceRegistrar, srv SyncServiceServer) {
	const name = SyncServiceName
	s.RegisterService(&grpc.ServiceDesc{
		ServiceName: name,
		HandlerType: (*SyncServiceServer)(nil),
		Methods: []grpc.MethodDesc{
			unary(name, "Sync", srv.Sync),
			unary(name, "GetSyncStatus", srv.GetSyncStatus),
		},
		Metadata: metadata,
	}, srv)
}

func RegisterConversationServiceServer(s grpc.ServiceRegistrar, srv ConversationServiceServer) {
	const name = ConversationServiceName
	s.RegisterService(&grpc.ServiceDesc{
		ServiceName: name,
		HandlerType: (*ConversationServiceServer)(nil),
		Methods: []grpc.MethodDesc{
			unary(name, "ListConversations", srv.ListConversations),
			unary(name, "GetConversation", srv.GetConversation),
			unary(name, "ListMessages", srv.ListMessages),
			unary(name, "SendText", srv.SendText),
			unary(name, "GetOutboxEntry", srv.GetOutboxEntry),
			unary(name, "CreateDirect", srv.CreateDirect),
			unary(name, "CreateGroup", srv.CreateGroup),
			unary(name, "RemoveConversation", srv.RemoveConversation),
			unary(name, "SetMuted", srv.SetMuted),
		},
		Streams: []grpc.StreamDesc{
			serverStream("Focus", srv.Focus),
		},
		Metadata: metadata,
	}, srv)
}

func RegisterNickServiceServer(s grpc.ServiceRegistrar, srv NickServiceServer) {
	const name = NickServiceName
	s.RegisterService(&grpc.ServiceDesc{
		ServiceName: name,
		HandlerType: (*NickServiceServer)(nil),
		Methods: []grpc.MethodDesc{
			unary(name, "SetNick", srv.SetNick),
			unary(name, "GetNick", srv.GetNick),
			unary(name, "ListNicks", srv.ListNicks),
			unary(name, "DeleteNick", srv.DeleteNick),
		},
		Metadata: metadata,
	}, srv)
}

func RegisterDeviceServiceServer(s grpc.ServiceRegistrar, srv DeviceServiceServer) {
	const name = DeviceServiceName
	s.RegisterService(&grpc.ServiceDesc{
		ServiceName: name,
		HandlerType: (*DeviceServiceServer)(nil),
		Methods: []grpc.MethodDesc{
			unary(name, "ListInstallations", srv.ListInstallations),
			unary(name, "RevokeOthers", srv.RevokeOthers),
		},
		Metadata: metadata,
	}, srv)
}
