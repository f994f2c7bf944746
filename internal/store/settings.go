package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"log"
	"time"

	"github.com/ayusman/snoezelen/internal/settings"
)

// SettingsRepository stores settings as key/value JSON pairs.
type SettingsRepository struct {
	db *sql.DB
}

// Settings returns the settings repository for this store.
func (s *Store) Settings() *SettingsRepository {
	return &SettingsRepository{db: s.db}
}

// Get returns the raw JSON stored under key.
func (r *SettingsRepository) Get(key string) (json.RawMessage, error) {
	var value string
	err := r.db.QueryRow(`SELECT value FROM settings WHERE key = ?`, key).Scan(&value)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return json.RawMessage(value), nil
}

// Set stores value under key, replacing any previous value.
func (r *SettingsRepository) Set(key string, value json.RawMessage) error {
	_, err := r.db.Exec(
		`INSERT INTO settings (key, value, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, string(value), time.Now(),
	)
	return err
}

// All returns every stored pair.
func (r *SettingsRepository) All() (map[string]json.RawMessage, error) {
	rows, err := r.db.Query(`SELECT key, value FROM settings ORDER BY key`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]json.RawMessage)
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return nil, err
		}
		out[key] = json.RawMessage(value)
	}
	return out, rows.Err()
}

// Save writes every field of s in a single transaction.
func (r *SettingsRepository) Save(s settings.Settings) error {
	fields, err := s.Fields()
	if err != nil {
		return err
	}
	return r.SetAll(fields)
}

// SetAll stores every pair of values in a single transaction.
func (r *SettingsRepository) SetAll(values map[string]json.RawMessage) error {
	tx, err := r.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(
		`INSERT INTO settings (key, value, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	now := time.Now()
	for key, value := range values {
		if _, err := stmt.Exec(key, string(value), now); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// Restore applies the stored pairs on top of base. Keys that are unknown or
// no longer valid are logged and skipped.
func (r *SettingsRepository) Restore(base settings.Settings) (settings.Settings, error) {
	stored, err := r.All()
	if err != nil {
		return base, err
	}
	out := base
	for key, value := range stored {
		next, err := out.Apply(key, value)
		if err != nil {
			log.Printf("Skipping stored setting %q: %v", key, err)
			continue
		}
		out = next
	}
	return out, nil
}
