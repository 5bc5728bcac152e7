package ident

import (
	"slices"
	"testing"

	"github.com/mumblechat/mumble/internal/model"
)

func TestCanonical(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"opaque kept", "AbC-123", "AbC-123"},
		{"trimmed", "  c1 \n", "c1"},
		{"hex address lowered", "0xABCDef01", "0xabcdef01"},
		{"upper prefix", "0XAB", "0xab"},
		{"not hex after prefix", "0xZZ", "0xZZ"},
		{"bare prefix", "0x", "0x"},
		{"empty", "   ", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Canonical(tt.input); got != tt.want {
				t.Errorf("Canonical(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestValid(t *testing.T) {
	if Valid(" ") {
		t.Error("Valid(blank) = true")
	}
	if !Valid("m1") {
		t.Error("Valid(m1) = false")
	}
}

func TestCompare(t *testing.T) {
	tests := []struct {
		name string
		a, b model.Message
		want int
	}{
		{"earlier first", model.Message{ID: "z", SentAt: 1}, model.Message{ID: "a", SentAt: 2}, -1},
		{"later second", model.Message{ID: "a", SentAt: 3}, model.Message{ID: "z", SentAt: 2}, 1},
		{"tie by id", model.Message{ID: "a", SentAt: 5}, model.Message{ID: "b", SentAt: 5}, -1},
		{"equal", model.Message{ID: "a", SentAt: 5}, model.Message{ID: "a", SentAt: 5}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CompareMessages(tt.a, tt.b); got != tt.want {
				t.Errorf("CompareMessages() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestInsertIndexKeepsOrder(t *testing.T) {
	var msgs []model.Message
	for _, m := range []model.Message{
		{ID: "m3", SentAt: 30},
		{ID: "m1", SentAt: 10},
		{ID: "m2b", SentAt: 20},
		{ID: "m2a", SentAt: 20},
	} {
		i := InsertIndex(msgs, m)
		msgs = slices.Insert(msgs, i, m)
	}

	var ids []string
	for _, m := range msgs {
		ids = append(ids, m.ID)
	}
	want := []string{"m1", "m2a", "m2b", "m3"}
	if !slices.Equal(ids, want) {
		t.Errorf("order = %v, want %v", ids, want)
	}
}

func TestCompareConversationsMostRecentFirst(t *testing.T) {
	convs := []model.Conversation{
		{ID: "old", CreatedAt: 10},
		{ID: "new", CreatedAt: 30},
		{ID: "mid-b", CreatedAt: 20},
		{ID: "mid-a", CreatedAt: 20},
	}
	slices.SortStableFunc(convs, CompareConversations)
	want := []string{"new", "mid-a", "mid-b", "old"}
	for i, c := range convs {
		if c.ID != want[i] {
			t.Errorf("convs[%d] = %s, want %s", i, c.ID, want[i])
		}
	}
}
