package api

import (
	"context"

	"github.com/mumblechat/mumble/internal/devices"
)

// DeviceService implements mumble.v1.DeviceService.
type DeviceService struct {
	manager *devices.Manager
}

// NewDeviceService creates a device service.
func NewDeviceService(m *devices.Manager) *DeviceService {
	return &DeviceService{manager: m}
}

func (s *DeviceService) ListInstallations(ctx context.Context, _ *ListInstallationsRequest) (*ListInstallationsResponse, error) {
	list, err := s.manager.List(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]Installation, 0, len(list))
	for _, inst := range list {
		out = append(out, Installation{ID: inst.ID, CreatedAt: inst.CreatedAt, Current: inst.Current})
	}
	return &ListInstallationsResponse{Installations: out}, nil
}

func (s *DeviceService) RevokeOthers(ctx context.Context, _ *RevokeOthersRequest) (*RevokeOthersResponse, error) {
	revoked, err := s.manager.RevokeOthers(ctx)
	if err != nil {
		return nil, err
	}
	if revoked == nil {
		revoked = []string{}
	}
	return &RevokeOthersResponse{Revoked: revoked}, nil
}
