package api

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/mumblechat/mumble/internal/devices"
	"github.com/mumblechat/mumble/internal/mirror"
	"github.com/mumblechat/mumble/internal/source"
	"github.com/mumblechat/mumble/internal/source/gateway"
	msync "github.com/mumblechat/mumble/internal/sync"
	"google.golang.org/grpc/codes"
	grpcstatus "google.golang.org/grpc/status"
)

func TestToStatus(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want codes.Code
	}{
		{"unauthenticated", msync.ErrUnauthenticated, codes.Unauthenticated},
		{"gateway rejected token", &msync.SyncError{Scope: "conversations", Err: &gateway.APIError{Status: 401}}, codes.Unauthenticated},
		{"unknown conversation", fmt.Errorf("queue: %w", mirror.ErrUnknownConversation), codes.NotFound},
		{"invalid member", msync.ErrInvalidMember, codes.InvalidArgument},
		{"no current installation", devices.ErrNoCurrent, codes.FailedPrecondition},
		{"sync failure", &msync.SyncError{Scope: "conversations", Err: errors.New("down")}, codes.Unavailable},
		{"source closed", source.ErrClosed, codes.Unavailable},
		{"canceled", context.Canceled, codes.Canceled},
		{"passthrough", grpcstatus.Error(codes.AlreadyExists, "x"), codes.AlreadyExists},
		{"other", errors.New("boom"), codes.Internal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := grpcstatus.Code(toStatus(tt.err))
			if got != tt.want {
				t.Errorf("toStatus(%v) code = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
	if toStatus(nil) != nil {
		t.Error("toStatus(nil) != nil")
	}
}

func TestEncodeKeepsNanosecondsAndBytes(t *testing.T) {
	in := Message{
		ID:          "m1",
		SentAt:      1700000000123456789,
		ContentType: "attachment",
		Payload:     []byte{0, 1, 2, 255},
	}
	s, err := Encode(in)
	if err != nil {
		t.Fatal(err)
	}
	var out Message
	if err := Decode(s, &out); err != nil {
		t.Fatal(err)
	}
	if out.SentAt != in.SentAt {
		t.Errorf("SentAt = %d, want %d", out.SentAt, in.SentAt)
	}
	if string(out.Payload) != string(in.Payload) {
		t.Errorf("Payload = %v, want %v", out.Payload, in.Payload)
	}
}

func TestMatchesPrefix(t *testing.T) {
	if !matchesPrefix("mirror.reset", nil) {
		t.Error("empty prefixes should match everything")
	}
	if !matchesPrefix("sync.failed", []string{"mirror.", "sync."}) {
		t.Error("sync.failed should match sync.")
	}
	if matchesPrefix("outbox.sent", []string{"mirror."}) {
		t.Error("outbox.sent should not match mirror.")
	}
}
