package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/soundlab/soundcoach/internal/model"

	_ "modernc.org/sqlite"
)

// Store is the durable persistence sink. Submissions are append-only and
// keyed by student name: one logical partition per student, appearing lazily
// on first write.
type Store struct {
	db *sql.DB
}

func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}
	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS submissions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		student_name TEXT NOT NULL,
		question_id TEXT NOT NULL,
		attempt INTEGER NOT NULL DEFAULT 0,
		is_final INTEGER NOT NULL DEFAULT 0,
		question_text TEXT NOT NULL,
		answer TEXT NOT NULL,
		attachment_path TEXT NOT NULL DEFAULT '',
		scores TEXT NOT NULL DEFAULT '',
		total_score REAL NOT NULL DEFAULT 0,
		analysis TEXT NOT NULL DEFAULT '',
		suggestion TEXT NOT NULL DEFAULT '',
		created_at DATETIME NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_submissions_student ON submissions(student_name, id);

	CREATE TABLE IF NOT EXISTS app_metadata (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS teacher_sessions (
		id TEXT PRIMARY KEY,
		created_at DATETIME NOT NULL,
		expires_at DATETIME NOT NULL
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// AppendSubmission appends one submission row.
func (s *Store) AppendSubmission(ctx context.Context, sub model.Submission) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO submissions
		 (student_name, question_id, attempt, is_final, question_text, answer,
		  attachment_path, scores, total_score, analysis, suggestion, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sub.StudentName, sub.QuestionID, sub.Attempt, sub.IsFinal, sub.QuestionText, sub.Answer,
		sub.AttachmentPath, sub.ScoresJSON, sub.TotalScore, sub.Analysis, sub.Suggestion, time.Now(),
	)
	return err
}

// ListStudents returns the distinct student partitions, sorted by name.
func (s *Store) ListStudents() ([]string, error) {
	rows, err := s.db.Query(`SELECT DISTINCT student_name FROM submissions ORDER BY student_name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var names []string
	for rows.Next() {
		var n string
		if err := rows.Scan(&n); err != nil {
			return nil, err
		}
		names = append(names, n)
	}
	return names, rows.Err()
}

// ListSubmissions returns one student's full history in append order.
func (s *Store) ListSubmissions(studentName string) ([]model.Submission, error) {
	rows, err := s.db.Query(
		`SELECT id, student_name, question_id, attempt, is_final, question_text, answer,
		        attachment_path, scores, total_score, analysis, suggestion, created_at
		 FROM submissions WHERE student_name = ? ORDER BY id`, studentName,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var subs []model.Submission
	for rows.Next() {
		var sub model.Submission
		if err := rows.Scan(&sub.ID, &sub.StudentName, &sub.QuestionID, &sub.Attempt, &sub.IsFinal,
			&sub.QuestionText, &sub.Answer, &sub.AttachmentPath, &sub.ScoresJSON,
			&sub.TotalScore, &sub.Analysis, &sub.Suggestion, &sub.CreatedAt); err != nil {
			return nil, err
		}
		subs = append(subs, sub)
	}
	return subs, rows.Err()
}

// SubmissionCount returns the total number of submission rows.
func (s *Store) SubmissionCount() (int, error) {
	var count int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM submissions`).Scan(&count)
	return count, err
}

// SetMetadata upserts a key-value pair in the app_metadata table.
func (s *Store) SetMetadata(key, value string) error {
	_, err := s.db.Exec(
		`INSERT INTO app_metadata (key, value) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = ?`,
		key, value, value,
	)
	return err
}

// GetMetadata returns the value for a metadata key.
// Returns empty string and nil error if the key is missing.
func (s *Store) GetMetadata(key string) (string, error) {
	var value string
	err := s.db.QueryRow(`SELECT value FROM app_metadata WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return value, err
}
