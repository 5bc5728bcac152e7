// Package api serves the mirror to local clients over gRPC on the session
// socket. Messages travel as google.protobuf.Struct values so the service
// descriptors in services.go are the whole contract; Encode and Decode convert them
// to and from the request and response types in types.go.
package api

import (
	"context"
	"encoding/json"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	grpcstatus "google.golang.org/grpc/status"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"
)

// Service names.
const (
	SessionServiceName      = "mumble.v1.SessionService"
	SyncServiceName         = "mumble.v1.SyncService"
	ConversationServiceName = "mumble.v1.ConversationService"
	NickServiceName         = "mumble.v1.NickService"
	DeviceServiceName       = "mumble.v1.DeviceService"
)

// metadata names the service family in descriptors.
const metadata = "mumble/v1"

// FullMethod returns the gRPC method path for a service method.
func FullMethod(service, method string) string {
	return "/" + service + "/" + method
}

// Encode converts a request or response value to its wire form.
func Encode(v any) (*structpb.Struct, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var fields map[string]any
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, fmt.Errorf("encode %T: %w", v, err)
	}
	return structpb.NewStruct(fields)
}

// Decode fills v from its wire form.
func Decode(s *structpb.Struct, v any) error {
	data, err := protojson.Marshal(s)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}

// Stream sends typed values on a server stream.
type Stream struct {
	grpc.ServerStream
}

// Send encodes v and writes it to the stream.
func (s Stream) Send(v any) error {
	msg, err := Encode(v)
	if err != nil {
		return err
	}
	return s.SendMsg(msg)
}

func unary[Req, Resp any](service, method string, fn func(context.Context, *Req) (*Resp, error)) grpc.MethodDesc {
	info := &grpc.UnaryServerInfo{FullMethod: FullMethod(service, method)}
	call := func(ctx context.Context, in any) (any, error) {
		req := new(Req)
		if err := Decode(in.(*structpb.Struct), req); err != nil {
			return nil, grpcstatus.Errorf(codes.InvalidArgument, "decode %s: %v", method, err)
		}
		resp, err := fn(ctx, req)
		if err != nil {
			return nil, toStatus(err)
		}
		return Encode(resp)
	}
	return grpc.MethodDesc{
		MethodName: method,
		Handler: func(_ any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(structpb.Struct)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(ctx, in)
			}
			return interceptor(ctx, in, info, call)
		},
	}
}

func serverStream[Req any](method string, fn func(*Req, Stream) error) grpc.StreamDesc {
	return grpc.StreamDesc{
		StreamName:    method,
		ServerStreams: true,
		Handler: func(_ any, ss grpc.ServerStream) error {
			in := new(structpb.Struct)
			if err := ss.RecvMsg(in); err != nil {
				return err
			}
			req := new(Req)
			if err := Decode(in, req); err != nil {
				return grpcstatus.Errorf(codes.InvalidArgument, "decode %s: %v", method, err)
			}
			if err := fn(req, Stream{ss}); err != nil {
				return toStatus(err)
			}
			return nil
		},
	}
}
