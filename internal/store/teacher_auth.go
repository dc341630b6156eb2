package store

import (
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"time"

	"github.com/soundlab/soundcoach/internal/model"
)

const teacherSessionTTL = 24 * time.Hour

// CreateTeacherSession creates a new teacher login token.
func (s *Store) CreateTeacherSession() (string, error) {
	token, err := generateToken()
	if err != nil {
		return "", err
	}
	now := time.Now()
	_, err = s.db.Exec(
		`INSERT INTO teacher_sessions (id, created_at, expires_at) VALUES (?, ?, ?)`,
		token, now, now.Add(teacherSessionTTL),
	)
	if err != nil {
		return "", err
	}
	return token, nil
}

// GetTeacherSession returns the session for the given token, or nil if not
// found or expired. Expired tokens are removed on read.
func (s *Store) GetTeacherSession(token string) (*model.TeacherSession, error) {
	var sess model.TeacherSession
	err := s.db.QueryRow(
		`SELECT id, created_at, expires_at FROM teacher_sessions WHERE id = ?`, token,
	).Scan(&sess.ID, &sess.CreatedAt, &sess.ExpiresAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if time.Now().After(sess.ExpiresAt) {
		_ = s.DeleteTeacherSession(token)
		return nil, nil
	}
	return &sess, nil
}

// DeleteTeacherSession removes a session token.
func (s *Store) DeleteTeacherSession(token string) error {
	_, err := s.db.Exec(`DELETE FROM teacher_sessions WHERE id = ?`, token)
	return err
}

// CleanupExpiredTeacherSessions removes all expired teacher sessions.
func (s *Store) CleanupExpiredTeacherSessions() error {
	_, err := s.db.Exec(`DELETE FROM teacher_sessions WHERE expires_at < ?`, time.Now())
	return err
}

func generateToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
