// Copyright (C) 2026 The Bantay Authors. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package store

import (
	"database/sql"
	"time"
)

// InsertRule stores a new rule record and returns it with its id.
func (s *Store) InsertRule(r RuleRecord) (RuleRecord, error) {
	res, err := s.db.Exec(`
		INSERT INTO firewall_rules (mac, ttl_value, status, created_at, expires_at, violation_count, descriptor, note)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		r.MAC, r.TTLValue, string(r.Status), r.CreatedAt.Unix(), r.ExpiresAt.Unix(),
		r.ViolationCount, r.Descriptor, r.Note)
	if err != nil {
		return RuleRecord{}, err
	}
	r.ID, err = res.LastInsertId()
	return r, err
}

// GetOpenRule returns the single non-terminal (pending/active/error)
// rule for a MAC, if one exists. Expired and disabled records stay in
// the table as history.
func (s *Store) GetOpenRule(mac string) (RuleRecord, bool, error) {
	row := s.db.QueryRow(`
		SELECT id, mac, ttl_value, status, created_at, expires_at, violation_count, descriptor, note
		FROM firewall_rules
		WHERE mac = ? AND status IN ('pending', 'active', 'error')
		ORDER BY created_at DESC LIMIT 1`, mac)
	r, err := scanRule(row)
	if err == sql.ErrNoRows {
		return RuleRecord{}, false, nil
	}
	if err != nil {
		return RuleRecord{}, false, err
	}
	return r, true, nil
}

// UpdateRule rewrites the mutable fields of a rule record.
func (s *Store) UpdateRule(r RuleRecord) error {
	_, err := s.db.Exec(`
		UPDATE firewall_rules
		SET status = ?, expires_at = ?, violation_count = ?, descriptor = ?, note = ?
		WHERE id = ?`,
		string(r.Status), r.ExpiresAt.Unix(), r.ViolationCount, r.Descriptor, r.Note, r.ID)
	return err
}

// ListExpiredActive returns active rules whose expiry has passed.
func (s *Store) ListExpiredActive(now time.Time) ([]RuleRecord, error) {
	return s.queryRules(`
		SELECT id, mac, ttl_value, status, created_at, expires_at, violation_count, descriptor, note
		FROM firewall_rules
		WHERE status = 'active' AND expires_at < ?
		ORDER BY expires_at ASC`, now.Unix())
}

// ListErrorRules returns rules stuck in the error state, for sweep
// retry and the operator view.
func (s *Store) ListErrorRules() ([]RuleRecord, error) {
	return s.queryRules(`
		SELECT id, mac, ttl_value, status, created_at, expires_at, violation_count, descriptor, note
		FROM firewall_rules
		WHERE status = 'error'
		ORDER BY created_at ASC`)
}

// ListRules returns rule records, newest first.
func (s *Store) ListRules(limit int) ([]RuleRecord, error) {
	return s.queryRules(`
		SELECT id, mac, ttl_value, status, created_at, expires_at, violation_count, descriptor, note
		FROM firewall_rules
		ORDER BY created_at DESC LIMIT ?`, limit)
}

func (s *Store) queryRules(query string, args ...any) ([]RuleRecord, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []RuleRecord
	for rows.Next() {
		r, err := scanRule(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, r)
	}
	return result, rows.Err()
}

func scanRule(r rowScanner) (RuleRecord, error) {
	var rec RuleRecord
	var status string
	var created, expires int64
	err := r.Scan(&rec.ID, &rec.MAC, &rec.TTLValue, &status, &created, &expires,
		&rec.ViolationCount, &rec.Descriptor, &rec.Note)
	if err != nil {
		return RuleRecord{}, err
	}
	rec.Status = RuleStatus(status)
	rec.CreatedAt = time.Unix(created, 0)
	rec.ExpiresAt = time.Unix(expires, 0)
	return rec, nil
}
