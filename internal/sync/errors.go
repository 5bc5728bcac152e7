package sync

import (
	"errors"
	"fmt"
)

// ErrUnauthenticated is returned when a sync is requested while the session
// holds no account identity. The source is never contacted.
var ErrUnauthenticated = errors.New("session not authenticated")

// ErrInvalidMember is returned when a conversation is requested with a blank
// or missing member id.
var ErrInvalidMember = errors.New("invalid member id")

// SyncError reports a failed pull. The mirror and cursor are left as they
// were before the pull started.
type SyncError struct {
	Scope string
	Full  bool
	Err   error
}

func (e *SyncError) Error() string {
	mode := "incremental"
	if e.Full {
		mode = "full"
	}
	return fmt.Sprintf("sync %s (%s): %v", e.Scope, mode, e.Err)
}

func (e *SyncError) Unwrap() error {
	return e.Err
}
