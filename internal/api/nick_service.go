package api

import (
	"context"
	"strings"

	"github.com/mumblechat/mumble/internal/ident"
	"github.com/mumblechat/mumble/internal/store"
	"github.com/mumblechat/mumble/internal/views"
)

// NickService implements mumble.v1.NickService.
type NickService struct {
	db  *store.DB
	dir *views.Directory
}

// NewNickService creates a nickname service. dir is refreshed after every
// change and may be nil.
func NewNickService(db *store.DB, dir *views.Directory) *NickService {
	return &NickService{db: db, dir: dir}
}

func (s *NickService) SetNick(_ context.Context, req *SetNickRequest) (*NickResponse, error) {
	id := ident.Canonical(req.MemberID)
	nick := strings.TrimSpace(req.Nickname)
	if id == "" {
		return nil, errInvalid("member_id is required")
	}
	if nick == "" {
		return nil, errInvalid("nickname is required")
	}
	if err := s.db.SetNickname(id, nick); err != nil {
		return nil, err
	}
	if err := s.refresh(); err != nil {
		return nil, err
	}
	return &NickResponse{Nick: Nick{MemberID: id, Nickname: nick}, Found: true}, nil
}

func (s *NickService) GetNick(_ context.Context, req *NickRequest) (*NickResponse, error) {
	id := ident.Canonical(req.MemberID)
	nick, err := s.db.Nickname(id)
	if err != nil {
		return nil, err
	}
	return &NickResponse{Nick: Nick{MemberID: id, Nickname: nick}, Found: nick != ""}, nil
}

func (s *NickService) ListNicks(_ context.Context, _ *ListNicksRequest) (*ListNicksResponse, error) {
	list, err := s.db.Nicknames()
	if err != nil {
		return nil, err
	}
	out := make([]Nick, 0, len(list))
	for _, n := range list {
		out = append(out, Nick{MemberID: n.MemberID, Nickname: n.Nickname})
	}
	return &ListNicksResponse{Nicks: out}, nil
}

func (s *NickService) DeleteNick(_ context.Context, req *NickRequest) (*DeleteNickResponse, error) {
	deleted, err := s.db.DeleteNickname(ident.Canonical(req.MemberID))
	if err != nil {
		return nil, err
	}
	if err := s.refresh(); err != nil {
		return nil, err
	}
	return &DeleteNickResponse{Deleted: deleted}, nil
}

func (s *NickService) refresh() error {
	if s.dir == nil {
		return nil
	}
	return s.dir.Refresh()
}
