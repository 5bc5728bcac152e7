package devices

import (
	"context"
	"errors"
	"testing"

	"github.com/mumblechat/mumble/internal/model"
	"github.com/mumblechat/mumble/internal/source/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRegistry struct {
	list    []model.Installation
	revoked []string
	err     error
}

func (f *fakeRegistry) ListInstallations(context.Context) ([]model.Installation, error) {
	return f.list, f.err
}

func (f *fakeRegistry) RevokeInstallations(_ context.Context, ids []string) error {
	f.revoked = append(f.revoked, ids...)
	return nil
}

func TestListOrdersCurrentFirst(t *testing.T) {
	reg := &fakeRegistry{list: []model.Installation{
		{ID: "old", CreatedAt: 1},
		{ID: "me", CreatedAt: 2, Current: true},
		{ID: "new", CreatedAt: 3},
	}}
	list, err := NewManager(reg, nil).List(context.Background())
	require.NoError(t, err)

	var ids []string
	for _, inst := range list {
		ids = append(ids, inst.ID)
	}
	assert.Equal(t, []string{"me", "new", "old"}, ids)
}

func TestRevokeOthers(t *testing.T) {
	src := memory.New("0xself")
	a := src.AddInstallation()
	b := src.AddInstallation()
	m := NewManager(src, nil)
	ctx := context.Background()

	revoked, err := m.RevokeOthers(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{a.ID, b.ID}, revoked)

	list, err := m.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.True(t, list[0].Current)

	revoked, err = m.RevokeOthers(ctx)
	require.NoError(t, err)
	assert.Empty(t, revoked)
}

func TestRevokeOthersWithoutCurrent(t *testing.T) {
	reg := &fakeRegistry{list: []model.Installation{{ID: "x"}}}
	_, err := NewManager(reg, nil).RevokeOthers(context.Background())
	assert.ErrorIs(t, err, ErrNoCurrent)
	assert.Empty(t, reg.revoked)
}

func TestListError(t *testing.T) {
	boom := errors.New("boom")
	_, err := NewManager(&fakeRegistry{err: boom}, nil).List(context.Background())
	assert.ErrorIs(t, err, boom)
}
