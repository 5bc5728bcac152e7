// Package ident canonicalizes identifiers and defines the ordering used for
// messages and conversations throughout the mirror.
package ident

import (
	"cmp"
	"slices"
	"strings"

	"github.com/mumblechat/mumble/internal/model"
)

// Canonical returns the canonical form of an identifier. Surrounding whitespace
// is removed and 0x-prefixed hex addresses are lower-cased; anything else is
// opaque and returned as is.
func Canonical(id string) string {
	id = strings.TrimSpace(id)
	if len(id) > 2 && (id[:2] == "0x" || id[:2] == "0X") && isHex(id[2:]) {
		return "0x" + strings.ToLower(id[2:])
	}
	return id
}

// Valid reports whether id is non-empty once canonicalized.
func Valid(id string) bool {
	return Canonical(id) != ""
}

func isHex(s string) bool {
	for i := 0; i < len(s); i++ {
		c := s[i]
		if !('0' <= c && c <= '9' || 'a' <= c && c <= 'f' || 'A' <= c && c <= 'F') {
			return false
		}
	}
	return true
}

// Compare orders two messages by sentAt ascending, breaking ties by id.
func Compare(aSentAt int64, aID string, bSentAt int64, bID string) int {
	if c := cmp.Compare(aSentAt, bSentAt); c != 0 {
		return c
	}
	return strings.Compare(aID, bID)
}

// CompareMessages is Compare over model.Message values.
func CompareMessages(a, b model.Message) int {
	return Compare(a.SentAt, a.ID, b.SentAt, b.ID)
}

// InsertIndex returns the position at which m must be inserted into sorted to
// keep it ordered by CompareMessages.
func InsertIndex(sorted []model.Message, m model.Message) int {
	i, _ := slices.BinarySearchFunc(sorted, m, CompareMessages)
	return i
}

// CompareConversations orders conversations most recent first, ties by id.
func CompareConversations(a, b model.Conversation) int {
	if c := cmp.Compare(b.CreatedAt, a.CreatedAt); c != 0 {
		return c
	}
	return strings.Compare(a.ID, b.ID)
}
