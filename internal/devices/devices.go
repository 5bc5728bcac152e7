// Package devices manages the installations registered for the inbox.
package devices

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/mumblechat/mumble/internal/model"
	"go.uber.org/zap"
)

// ErrNoCurrent is returned when the source does not mark any installation
// as the current one. Revoking blindly could lock this device out.
var ErrNoCurrent = errors.New("no current installation reported")

// Registry is the part of the message source dealing with installations.
type Registry interface {
	ListInstallations(ctx context.Context) ([]model.Installation, error)
	RevokeInstallations(ctx context.Context, installationIDs []string) error
}

// Manager lists and revokes installations.
type Manager struct {
	reg    Registry
	logger *zap.Logger
}

// NewManager creates a manager.
func NewManager(reg Registry, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{reg: reg, logger: logger}
}

// List returns installations, current first and then newest first.
func (m *Manager) List(ctx context.Context) ([]model.Installation, error) {
	list, err := m.reg.ListInstallations(ctx)
	if err != nil {
		return nil, fmt.Errorf("list installations: %w", err)
	}
	slices.SortFunc(list, func(a, b model.Installation) int {
		if a.Current != b.Current {
			if a.Current {
				return -1
			}
			return 1
		}
		return cmp.Compare(b.CreatedAt, a.CreatedAt)
	})
	return list, nil
}

// RevokeOthers revokes every installation except the current one and returns
// the revoked ids.
func (m *Manager) RevokeOthers(ctx context.Context) ([]string, error) {
	list, err := m.List(ctx)
	if err != nil {
		return nil, err
	}
	var others []string
	current := false
	for _, inst := range list {
		if inst.Current {
			current = true
			continue
		}
		others = append(others, inst.ID)
	}
	if !current {
		return nil, ErrNoCurrent
	}
	if len(others) == 0 {
		return nil, nil
	}
	if err := m.reg.RevokeInstallations(ctx, others); err != nil {
		return nil, fmt.Errorf("revoke installations: %w", err)
	}
	m.logger.Info("revoked other installations", zap.Int("count", len(others)))
	return others, nil
}
