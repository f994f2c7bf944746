package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ayusman/snoezelen/internal/detector"
	"github.com/ayusman/snoezelen/internal/recording"
	"github.com/google/uuid"
)

// SessionInfo is a stored session without its samples.
type SessionInfo struct {
	ID        string         `json:"id"`
	Kind      recording.Kind `json:"kind"`
	Memo      string         `json:"memo"`
	StartTime time.Time      `json:"startTime"`
	Samples   int            `json:"samples"`
	CreatedAt time.Time      `json:"createdAt"`
}

// SessionRepository stores recorded sessions.
type SessionRepository struct {
	db *sql.DB
}

// Sessions returns the session repository for this store.
func (s *Store) Sessions() *SessionRepository {
	return &SessionRepository{db: s.db}
}

// Create inserts a session and its samples in a single transaction. An
// empty ID is replaced with a new UUID; the assigned ID is returned.
func (r *SessionRepository) Create(sess recording.Session) (string, error) {
	if len(sess.Samples) == 0 {
		return "", recording.ErrEmptyRecording
	}
	if sess.ID == "" {
		sess.ID = uuid.NewString()
	}

	tx, err := r.db.Begin()
	if err != nil {
		return "", err
	}
	defer tx.Rollback()

	_, err = tx.Exec(
		`INSERT INTO sessions (id, kind, memo, start_time, samples, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		sess.ID, string(sess.Kind), sess.Memo, sess.StartTime, len(sess.Samples), time.Now(),
	)
	if err != nil {
		return "", err
	}

	stmt, err := tx.Prepare(
		`INSERT INTO session_samples (session_id, sample_index, timestamp_ms, keypoints) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return "", err
	}
	defer stmt.Close()

	for i, sample := range sess.Samples {
		data, err := json.Marshal(sample.Keypoints)
		if err != nil {
			return "", fmt.Errorf("encode sample %d: %w", i, err)
		}
		if _, err := stmt.Exec(sess.ID, i, sample.Timestamp, string(data)); err != nil {
			return "", err
		}
	}

	if err := tx.Commit(); err != nil {
		return "", err
	}
	return sess.ID, nil
}

// List returns all sessions, newest first.
func (r *SessionRepository) List() ([]*SessionInfo, error) {
	rows, err := r.db.Query(
		`SELECT id, kind, memo, start_time, samples, created_at
		 FROM sessions ORDER BY start_time DESC`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []*SessionInfo
	for rows.Next() {
		info := &SessionInfo{}
		var kind string
		if err := rows.Scan(&info.ID, &kind, &info.Memo, &info.StartTime, &info.Samples, &info.CreatedAt); err != nil {
			return nil, err
		}
		info.Kind = recording.Kind(kind)
		sessions = append(sessions, info)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return sessions, nil
}

// Get loads a session with all of its samples.
func (r *SessionRepository) Get(id string) (recording.Session, error) {
	var sess recording.Session
	var kind string
	err := r.db.QueryRow(
		`SELECT id, kind, memo, start_time FROM sessions WHERE id = ?`, id,
	).Scan(&sess.ID, &kind, &sess.Memo, &sess.StartTime)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return sess, ErrNotFound
		}
		return sess, err
	}
	sess.Kind = recording.Kind(kind)

	rows, err := r.db.Query(
		`SELECT timestamp_ms, keypoints FROM session_samples
		 WHERE session_id = ? ORDER BY sample_index`, id,
	)
	if err != nil {
		return sess, err
	}
	defer rows.Close()

	for rows.Next() {
		var sample recording.Sample
		var data string
		if err := rows.Scan(&sample.Timestamp, &data); err != nil {
			return sess, err
		}
		var kps []detector.Keypoint
		if err := json.Unmarshal([]byte(data), &kps); err != nil {
			return sess, fmt.Errorf("decode sample: %w", err)
		}
		sample.Keypoints = kps
		sess.Samples = append(sess.Samples, sample)
	}

	return sess, rows.Err()
}

// Delete removes a session and its samples.
func (r *SessionRepository) Delete(id string) error {
	result, err := r.db.Exec(`DELETE FROM sessions WHERE id = ?`, id)
	if err != nil {
		return err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}

	if rowsAffected == 0 {
		return ErrNotFound
	}

	return nil
}
