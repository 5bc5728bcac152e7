package views

import (
	"sync"

	"github.com/mumblechat/mumble/internal/ident"
)

// NicknameSource loads every nickname keyed by member id.
type NicknameSource interface {
	NicknameMap() (map[string]string, error)
}

// Directory is an in-memory snapshot of the nickname store. Call Refresh
// after writing to the store.
type Directory struct {
	src NicknameSource

	mu    sync.RWMutex
	nicks map[string]string
}

// NewDirectory creates a directory and loads it once.
func NewDirectory(src NicknameSource) (*Directory, error) {
	d := &Directory{src: src}
	if err := d.Refresh(); err != nil {
		return nil, err
	}
	return d, nil
}

// Refresh reloads nicknames from the source.
func (d *Directory) Refresh() error {
	m, err := d.src.NicknameMap()
	if err != nil {
		return err
	}
	next := make(map[string]string, len(m))
	for id, nick := range m {
		next[ident.Canonical(id)] = nick
	}
	d.mu.Lock()
	d.nicks = next
	d.mu.Unlock()
	return nil
}

// Nickname returns the nickname of a member, or "".
func (d *Directory) Nickname(memberID string) string {
	if d == nil {
		return ""
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.nicks[ident.Canonical(memberID)]
}
