// Copyright (C) 2026 The Bantay Authors. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package store

import "time"

// AppendTraffic appends one observation to the audit log.
func (s *Store) AppendTraffic(e TrafficEntry) error {
	_, err := s.db.Exec(`
		INSERT INTO traffic_log (mac, ttl, classification, note, observed_at)
		VALUES (?, ?, ?, ?, ?)`,
		e.MAC, e.TTL, e.Classification, e.Note, e.ObservedAt.Unix())
	return err
}

// ListTraffic returns the newest entries, optionally filtered by MAC.
func (s *Store) ListTraffic(mac string, limit int) ([]TrafficEntry, error) {
	query := `SELECT id, mac, ttl, classification, note, observed_at FROM traffic_log`
	args := []any{}
	if mac != "" {
		query += ` WHERE mac = ?`
		args = append(args, mac)
	}
	query += ` ORDER BY observed_at DESC, id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []TrafficEntry
	for rows.Next() {
		var e TrafficEntry
		var ts int64
		if err := rows.Scan(&e.ID, &e.MAC, &e.TTL, &e.Classification, &e.Note, &ts); err != nil {
			return nil, err
		}
		e.ObservedAt = time.Unix(ts, 0)
		result = append(result, e)
	}
	return result, rows.Err()
}

// CountSuspiciousSince counts Suspicious observations for a MAC since
// the cutoff. Operator views use this; the ledger is authoritative for
// enforcement.
func (s *Store) CountSuspiciousSince(mac string, cutoff time.Time) (int, error) {
	var n int
	err := s.db.QueryRow(`
		SELECT COUNT(*) FROM traffic_log
		WHERE mac = ? AND classification = 'suspicious' AND observed_at >= ?`,
		mac, cutoff.Unix()).Scan(&n)
	return n, err
}

// CleanupTraffic removes audit entries observed before the cutoff.
func (s *Store) CleanupTraffic(cutoff time.Time) (int64, error) {
	res, err := s.db.Exec(`DELETE FROM traffic_log WHERE observed_at < ?`, cutoff.Unix())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
