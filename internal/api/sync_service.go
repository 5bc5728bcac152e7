package api

import (
	"context"
	"slices"

	"github.com/mumblechat/mumble/internal/mirror"
	msync "github.com/mumblechat/mumble/internal/sync"
)

// SyncService implements mumble.v1.SyncService.
type SyncService struct {
	coord  *msync.Coordinator
	poller *msync.Poller
	cache  *mirror.Cache
}

// NewSyncService creates a new sync service. poller may be nil.
func NewSyncService(coord *msync.Coordinator, poller *msync.Poller, cache *mirror.Cache) *SyncService {
	return &SyncService{coord: coord, poller: poller, cache: cache}
}

// Sync pulls one conversation's messages, everything, or by default the
// conversation list.
func (s *SyncService) Sync(ctx context.Context, req *SyncRequest) (*SyncResponse, error) {
	switch {
	case req.ConversationID != "" && req.All:
		return nil, errInvalid("conversation_id and all are mutually exclusive")
	case req.ConversationID != "":
		res, err := s.coord.SyncMessages(ctx, req.ConversationID)
		if err != nil {
			return nil, err
		}
		return &SyncResponse{Results: []SyncResult{syncResultFrom(res)}}, nil
	case req.All:
		report, err := s.coord.SyncAll(ctx)
		if err != nil {
			return nil, err
		}
		results := []SyncResult{syncResultFrom(report.Conversations)}
		for _, r := range report.Messages {
			results = append(results, syncResultFrom(r))
		}
		return &SyncResponse{Results: results}, nil
	default:
		res, err := s.coord.SyncConversations(ctx)
		if err != nil {
			return nil, err
		}
		return &SyncResponse{Results: []SyncResult{syncResultFrom(res)}}, nil
	}
}

func (s *SyncService) GetSyncStatus(_ context.Context, _ *SyncStatusRequest) (*SyncStatusResponse, error) {
	active := s.coord.Active()
	slices.Sort(active)
	cur := s.cache.Cursor()
	resp := &SyncStatusResponse{
		Active:    active,
		Cursor:    cur.LastCreatedAfter,
		CursorSet: cur.Set,
	}
	if s.poller != nil {
		resp.Watched = s.poller.Watched()
	}
	return resp, nil
}
