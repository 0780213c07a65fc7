// Copyright (C) 2026 The Bantay Authors. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package store

import (
	"database/sql"
	"time"
)

// GetViolation returns a device's current window, if any.
func (s *Store) GetViolation(mac string) (ViolationWindow, bool, error) {
	var w ViolationWindow
	var start int64
	err := s.db.QueryRow(`
		SELECT mac, count, window_start FROM violation_ledger WHERE mac = ?`,
		mac).Scan(&w.MAC, &w.Count, &start)
	if err == sql.ErrNoRows {
		return ViolationWindow{}, false, nil
	}
	if err != nil {
		return ViolationWindow{}, false, err
	}
	w.WindowStart = time.Unix(start, 0)
	return w, true, nil
}

// PutViolation upserts a device's window.
func (s *Store) PutViolation(w ViolationWindow) error {
	_, err := s.db.Exec(`
		INSERT INTO violation_ledger (mac, count, window_start)
		VALUES (?, ?, ?)
		ON CONFLICT(mac) DO UPDATE SET
			count = excluded.count,
			window_start = excluded.window_start`,
		w.MAC, w.Count, w.WindowStart.Unix())
	return err
}

// DeleteViolation clears a device's window. Missing rows are fine.
func (s *Store) DeleteViolation(mac string) error {
	_, err := s.db.Exec(`DELETE FROM violation_ledger WHERE mac = ?`, mac)
	return err
}

// ListViolations returns every open window, largest counts first.
func (s *Store) ListViolations() ([]ViolationWindow, error) {
	rows, err := s.db.Query(`
		SELECT mac, count, window_start FROM violation_ledger
		ORDER BY count DESC, mac ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []ViolationWindow
	for rows.Next() {
		var w ViolationWindow
		var start int64
		if err := rows.Scan(&w.MAC, &w.Count, &start); err != nil {
			return nil, err
		}
		w.WindowStart = time.Unix(start, 0)
		result = append(result, w)
	}
	return result, rows.Err()
}
