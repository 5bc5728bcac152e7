package store

import (
	"os"
	"path/filepath"
	"testing"
)

func testDB(t *testing.T) *DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	db, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := db.Migrate(); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestMigrateIdempotent(t *testing.T) {
	db := testDB(t)

	// testDB already ran Migrate; a second run must be a no-op.
	result, err := db.Migrate()
	if err != nil {
		t.Fatal(err)
	}
	if result.Changed {
		t.Error("second Migrate() should report Changed=false")
	}
	if result.Version != 2 {
		t.Errorf("version = %d, want 2 (init + muted)", result.Version)
	}
	if result.Dirty {
		t.Error("schema left dirty")
	}
}

func TestOpenCreatesPrivateFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mumble.db")
	db, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = db.Close() }()

	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if perm := info.Mode().Perm(); perm != 0600 {
		t.Errorf("db perm = %o, want 0600", perm)
	}
}

func TestRollbackAndReapply(t *testing.T) {
	db := testDB(t)

	result, err := db.Rollback(1)
	if err != nil {
		t.Fatal(err)
	}
	if result.Version != 1 || !result.Changed {
		t.Errorf("after rollback = %+v, want version 1, changed", result)
	}
	if _, err := db.Exec("INSERT INTO muted_conversations (conversation_id) VALUES ('c1')"); err == nil {
		t.Error("muted_conversations should be gone after rollback")
	}
	// Tables from the first migration survive.
	if err := db.SetNickname("0xbob", "bob"); err != nil {
		t.Fatalf("nicknames lost on rollback: %v", err)
	}

	result, err = db.Migrate()
	if err != nil {
		t.Fatal(err)
	}
	if result.Version != 2 || !result.Changed {
		t.Errorf("after reapply = %+v, want version 2, changed", result)
	}
	if err := db.Mute("c1"); err != nil {
		t.Errorf("Mute after reapply: %v", err)
	}

	if _, err := db.Rollback(0); err == nil {
		t.Error("Rollback(0) should fail")
	}
}

func TestMigrateSchemaHasRequiredColumns(t *testing.T) {
	db := testDB(t)

	requiredOps := []struct {
		desc  string
		query string
		args  []any
	}{
		{"set nickname", "INSERT INTO nicknames (member_id, nickname, updated_at) VALUES (?, ?, ?)", []any{"0xabc", "alice", 1}},
		{"queue outbox", "INSERT INTO outbox (client_msg_id, conversation_id, content_type, body, status) VALUES (?, ?, ?, ?, ?)", []any{"cid", "c1", "text", []byte("hi"), "queued"}},
		{"mute", "INSERT INTO muted_conversations (conversation_id, muted_at) VALUES (?, ?)", []any{"c1", 1}},
	}

	for _, op := range requiredOps {
		t.Run(op.desc, func(t *testing.T) {
			if _, err := db.Exec(op.query, op.args...); err != nil {
				t.Fatalf("%s failed: %v", op.desc, err)
			}
		})
	}
}

func TestNicknames(t *testing.T) {
	db := testDB(t)

	if err := db.SetNickname("0xbob", "bob"); err != nil {
		t.Fatal(err)
	}
	if err := db.SetNickname("0xalice", "al"); err != nil {
		t.Fatal(err)
	}
	// Replace.
	if err := db.SetNickname("0xalice", "alice"); err != nil {
		t.Fatal(err)
	}

	nick, err := db.Nickname("0xalice")
	if err != nil {
		t.Fatal(err)
	}
	if nick != "alice" {
		t.Errorf("nickname = %q, want alice", nick)
	}

	nick, err = db.Nickname("0xmissing")
	if err != nil {
		t.Fatal(err)
	}
	if nick != "" {
		t.Errorf("nickname for missing member = %q, want empty", nick)
	}

	list, err := db.Nicknames()
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 2 || list[0].MemberID != "0xalice" || list[1].MemberID != "0xbob" {
		t.Errorf("Nicknames() = %+v, want alice then bob", list)
	}

	m, err := db.NicknameMap()
	if err != nil {
		t.Fatal(err)
	}
	if m["0xbob"] != "bob" {
		t.Errorf("NicknameMap()[0xbob] = %q, want bob", m["0xbob"])
	}

	removed, err := db.DeleteNickname("0xbob")
	if err != nil {
		t.Fatal(err)
	}
	if !removed {
		t.Error("DeleteNickname returned false for existing nickname")
	}
	removed, err = db.DeleteNickname("0xbob")
	if err != nil {
		t.Fatal(err)
	}
	if removed {
		t.Error("DeleteNickname returned true for missing nickname")
	}
}

func TestMute(t *testing.T) {
	db := testDB(t)

	if err := db.Mute("c1"); err != nil {
		t.Fatal(err)
	}
	// Muting twice is fine.
	if err := db.Mute("c1"); err != nil {
		t.Fatal(err)
	}
	muted, err := db.IsMuted("c1")
	if err != nil {
		t.Fatal(err)
	}
	if !muted {
		t.Error("c1 should be muted")
	}

	if err := db.Unmute("c1"); err != nil {
		t.Fatal(err)
	}
	muted, err = db.IsMuted("c1")
	if err != nil {
		t.Fatal(err)
	}
	if muted {
		t.Error("c1 should not be muted after Unmute")
	}
}

func TestOutbox(t *testing.T) {
	db := testDB(t)

	if err := db.QueueOutbox("client1", "c1", "text", []byte("test msg")); err != nil {
		t.Fatal(err)
	}
	if err := db.QueueOutbox("client1", "c1", "text", []byte("dup")); err == nil {
		t.Error("duplicate client_msg_id accepted")
	}

	pending, err := db.PendingOutbox(0)
	if err != nil {
		t.Fatal(err)
	}
	if len(pending) != 1 {
		t.Fatalf("got %d pending, want 1", len(pending))
	}
	if pending[0].ClientMsgID != "client1" || string(pending[0].Body) != "test msg" {
		t.Errorf("pending[0] = %+v", pending[0])
	}

	if err := db.MarkOutboxSending("client1"); err != nil {
		t.Fatal(err)
	}
	if err := db.MarkOutboxSent("client1", "server1"); err != nil {
		t.Fatal(err)
	}

	pending, err = db.PendingOutbox(0)
	if err != nil {
		t.Fatal(err)
	}
	if len(pending) != 0 {
		t.Errorf("got %d pending after sent, want 0", len(pending))
	}

	e, err := db.GetOutbox("client1")
	if err != nil {
		t.Fatal(err)
	}
	if e == nil || e.Status != OutboxSent || e.ServerMsgID != "server1" || e.Attempts != 1 {
		t.Errorf("entry = %+v, want sent/server1/1 attempt", e)
	}

	e, err = db.GetOutbox("missing")
	if err != nil {
		t.Fatal(err)
	}
	if e != nil {
		t.Error("expected nil for missing entry")
	}
}

func TestOutboxRetryThenFail(t *testing.T) {
	db := testDB(t)

	if err := db.QueueOutbox("c", "conv", "text", []byte("x")); err != nil {
		t.Fatal(err)
	}

	for attempt := 1; attempt <= 2; attempt++ {
		if err := db.MarkOutboxSending("c"); err != nil {
			t.Fatal(err)
		}
		if err := db.MarkOutboxFailed("c", "boom", 2); err != nil {
			t.Fatal(err)
		}
		e, err := db.GetOutbox("c")
		if err != nil {
			t.Fatal(err)
		}
		want := OutboxQueued
		if attempt == 2 {
			want = OutboxFailed
		}
		if e.Status != want {
			t.Errorf("after attempt %d status = %q, want %q", attempt, e.Status, want)
		}
		if e.ErrorMessage != "boom" {
			t.Errorf("error_message = %q, want boom", e.ErrorMessage)
		}
	}
}

func TestRequeueSending(t *testing.T) {
	db := testDB(t)

	if err := db.QueueOutbox("c", "conv", "text", []byte("x")); err != nil {
		t.Fatal(err)
	}
	if err := db.MarkOutboxSending("c"); err != nil {
		t.Fatal(err)
	}
	n, err := db.RequeueSending()
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Errorf("requeued %d, want 1", n)
	}
	pending, err := db.PendingOutbox(10)
	if err != nil {
		t.Fatal(err)
	}
	if len(pending) != 1 {
		t.Errorf("got %d pending, want 1", len(pending))
	}
}

func TestReleaseOutboxSendingRefundsAttempt(t *testing.T) {
	db := testDB(t)

	if err := db.QueueOutbox("c", "conv", "text", []byte("x")); err != nil {
		t.Fatal(err)
	}
	if err := db.MarkOutboxSending("c"); err != nil {
		t.Fatal(err)
	}
	if err := db.ReleaseOutboxSending("c"); err != nil {
		t.Fatal(err)
	}
	e, err := db.GetOutbox("c")
	if err != nil {
		t.Fatal(err)
	}
	if e.Status != OutboxQueued || e.Attempts != 0 {
		t.Errorf("entry = %+v, want queued with 0 attempts", e)
	}

	// Only entries in 'sending' are released.
	if err := db.ReleaseOutboxSending("c"); err != nil {
		t.Fatal(err)
	}
	if e, _ = db.GetOutbox("c"); e.Attempts != 0 {
		t.Errorf("attempts = %d after second release, want 0", e.Attempts)
	}
}
