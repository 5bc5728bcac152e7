package store

import "time"

// Mute silences local notifications for a conversation.
func (db *DB) Mute(conversationID string) error {
	_, err := db.Exec(`
		INSERT INTO muted_conversations (conversation_id, muted_at) VALUES (?, ?)
		ON CONFLICT(conversation_id) DO NOTHING`,
		conversationID, time.Now().UnixMilli())
	return err
}

// Unmute re-enables notifications for a conversation.
func (db *DB) Unmute(conversationID string) error {
	_, err := db.Exec(`DELETE FROM muted_conversations WHERE conversation_id = ?`, conversationID)
	return err
}

// IsMuted reports whether a conversation is muted.
func (db *DB) IsMuted(conversationID string) (bool, error) {
	var n int
	err := db.QueryRow(`SELECT COUNT(*) FROM muted_conversations WHERE conversation_id = ?`, conversationID).Scan(&n)
	return n > 0, err
}
