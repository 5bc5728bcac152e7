package api

import (
	"context"
	"errors"

	"github.com/mumblechat/mumble/internal/devices"
	"github.com/mumblechat/mumble/internal/mirror"
	"github.com/mumblechat/mumble/internal/source"
	"github.com/mumblechat/mumble/internal/source/gateway"
	msync "github.com/mumblechat/mumble/internal/sync"
	"google.golang.org/grpc/codes"
	grpcstatus "google.golang.org/grpc/status"
)

// toStatus maps domain errors to gRPC status errors. Errors that already
// carry a status pass through unchanged.
func toStatus(err error) error {
	if err == nil {
		return nil
	}
	if s, ok := grpcstatus.FromError(err); ok {
		return s.Err()
	}

	var syncErr *msync.SyncError
	switch {
	case errors.Is(err, msync.ErrUnauthenticated), errors.Is(err, gateway.ErrUnauthorized):
		return grpcstatus.Error(codes.Unauthenticated, err.Error())
	case errors.Is(err, mirror.ErrUnknownConversation):
		return grpcstatus.Error(codes.NotFound, err.Error())
	case errors.Is(err, msync.ErrInvalidMember):
		return grpcstatus.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, devices.ErrNoCurrent):
		return grpcstatus.Error(codes.FailedPrecondition, err.Error())
	case errors.Is(err, context.Canceled):
		return grpcstatus.Error(codes.Canceled, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return grpcstatus.Error(codes.DeadlineExceeded, err.Error())
	case errors.As(err, &syncErr), errors.Is(err, source.ErrClosed):
		return grpcstatus.Error(codes.Unavailable, err.Error())
	default:
		return grpcstatus.Error(codes.Internal, err.Error())
	}
}

func errUnavailable(msg string) error {
	return grpcstatus.Error(codes.Unavailable, msg)
}

func errInvalid(format string, args ...any) error {
	return grpcstatus.Errorf(codes.InvalidArgument, format, args...)
}
