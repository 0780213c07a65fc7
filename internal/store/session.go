// Copyright (C) 2026 The Bantay Authors. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package store

import (
	"database/sql"
	"time"
)

// InsertSession stores a new session row.
func (s *Store) InsertSession(sess Session) error {
	active := 0
	if sess.Active {
		active = 1
	}
	_, err := s.db.Exec(`
		INSERT INTO connection_sessions (id, mac, source_addr, classification, opened_at, last_seen_at, active)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		sess.ID, sess.MAC, sess.SourceAddr, sess.Classification,
		sess.OpenedAt.Unix(), sess.LastSeenAt.Unix(), active)
	return err
}

// GetSession fetches a session by id.
func (s *Store) GetSession(id string) (Session, bool, error) {
	row := s.db.QueryRow(`
		SELECT id, mac, source_addr, classification, opened_at, last_seen_at, active
		FROM connection_sessions WHERE id = ?`, id)
	sess, err := scanSession(row)
	if err == sql.ErrNoRows {
		return Session{}, false, nil
	}
	if err != nil {
		return Session{}, false, err
	}
	return sess, true, nil
}

// TouchSession updates last_seen_at for an active session. Returns
// false when the session does not exist or is already inactive.
func (s *Store) TouchSession(id string, seen time.Time) (bool, error) {
	res, err := s.db.Exec(`
		UPDATE connection_sessions SET last_seen_at = ? WHERE id = ? AND active = 1`,
		seen.Unix(), id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// EndSession marks a session inactive. Idempotent.
func (s *Store) EndSession(id string) error {
	_, err := s.db.Exec(`UPDATE connection_sessions SET active = 0 WHERE id = ?`, id)
	return err
}

// CountActiveSessions counts sessions for a MAC that are both marked
// active and seen since the cutoff. Sessions that lapsed but have not
// been swept yet do not count — "active" is evaluated here, at read
// time, so a stale row can never block a new admission.
func (s *Store) CountActiveSessions(mac string, seenSince time.Time) (int, error) {
	var n int
	err := s.db.QueryRow(`
		SELECT COUNT(*) FROM connection_sessions
		WHERE mac = ? AND active = 1 AND last_seen_at >= ?`,
		mac, seenSince.Unix()).Scan(&n)
	return n, err
}

// CountAllActiveSessions counts live sessions across every device,
// with the same read-time definition of "active". Feeds the gauge on
// the metrics endpoint.
func (s *Store) CountAllActiveSessions(seenSince time.Time) (int, error) {
	var n int
	err := s.db.QueryRow(`
		SELECT COUNT(*) FROM connection_sessions
		WHERE active = 1 AND last_seen_at >= ?`,
		seenSince.Unix()).Scan(&n)
	return n, err
}

// ExpireSessions marks every active session last seen before the
// cutoff as inactive and returns how many rows changed. Idempotent.
func (s *Store) ExpireSessions(seenBefore time.Time) (int64, error) {
	res, err := s.db.Exec(`
		UPDATE connection_sessions SET active = 0
		WHERE active = 1 AND last_seen_at < ?`,
		seenBefore.Unix())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// ListSessions returns sessions, optionally filtered by MAC and
// activity, newest first.
func (s *Store) ListSessions(mac string, activeOnly bool, limit int) ([]Session, error) {
	query := `
		SELECT id, mac, source_addr, classification, opened_at, last_seen_at, active
		FROM connection_sessions WHERE 1=1`
	args := []any{}
	if mac != "" {
		query += ` AND mac = ?`
		args = append(args, mac)
	}
	if activeOnly {
		query += ` AND active = 1`
	}
	query += ` ORDER BY last_seen_at DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, sess)
	}
	return result, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(r rowScanner) (Session, error) {
	var sess Session
	var opened, seen int64
	var active int
	err := r.Scan(&sess.ID, &sess.MAC, &sess.SourceAddr, &sess.Classification, &opened, &seen, &active)
	if err != nil {
		return Session{}, err
	}
	sess.OpenedAt = time.Unix(opened, 0)
	sess.LastSeenAt = time.Unix(seen, 0)
	sess.Active = active == 1
	return sess, nil
}
