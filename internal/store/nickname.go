package store

import (
	"database/sql"
	"errors"
	"time"
)

// SetNickname assigns a nickname to a member, replacing any previous one.
func (db *DB) SetNickname(memberID, nickname string) error {
	now := time.Now().UnixMilli()
	_, err := db.Exec(`
		INSERT INTO nicknames (member_id, nickname, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(member_id) DO UPDATE SET
			nickname = excluded.nickname,
			updated_at = excluded.updated_at`,
		memberID, nickname, now)
	return err
}

// Nickname returns the nickname of a member, or "" if none is set.
func (db *DB) Nickname(memberID string) (string, error) {
	var nick string
	err := db.QueryRow(`SELECT nickname FROM nicknames WHERE member_id = ?`, memberID).Scan(&nick)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	return nick, err
}

// Nicknames returns every nickname ordered by member id.
func (db *DB) Nicknames() ([]Nickname, error) {
	rows, err := db.Query(`SELECT member_id, nickname, updated_at FROM nicknames ORDER BY member_id`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []Nickname
	for rows.Next() {
		var n Nickname
		if err := rows.Scan(&n.MemberID, &n.Nickname, &n.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

// NicknameMap returns every nickname keyed by member id.
func (db *DB) NicknameMap() (map[string]string, error) {
	list, err := db.Nicknames()
	if err != nil {
		return nil, err
	}
	out := make(map[string]string, len(list))
	for _, n := range list {
		out[n.MemberID] = n.Nickname
	}
	return out, nil
}

// DeleteNickname removes a member's nickname. Returns false if none was set.
func (db *DB) DeleteNickname(memberID string) (bool, error) {
	res, err := db.Exec(`DELETE FROM nicknames WHERE member_id = ?`, memberID)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}
