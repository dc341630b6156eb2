package coach

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"strings"
	"sync"
	"unicode"
)

// ErrEmptyName is returned when a student logs in without a usable name.
var ErrEmptyName = errors.New("student name is empty")

// Manager keeps the in-memory session registry. Sessions are keyed by a
// random token carried in a cookie; the student-chosen name doubles as the
// persistence partition key, so it is sanitized the same way the sink
// partitions are named.
type Manager struct {
	coach *Coach

	mu      sync.Mutex
	byToken map[string]*Session
	byName  map[string]string
}

// NewManager creates an empty session registry.
func NewManager(c *Coach) *Manager {
	return &Manager{
		coach:   c,
		byToken: make(map[string]*Session),
		byName:  make(map[string]string),
	}
}

// Login returns the session for a student name, creating it if absent.
// Logging in again with the same name resumes the existing session; a new
// name starts a fresh one.
func (m *Manager) Login(name string) (string, *Session, error) {
	name = SanitizeName(name)
	if name == "" {
		return "", nil, ErrEmptyName
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if token, ok := m.byName[name]; ok {
		return token, m.byToken[token], nil
	}

	token, err := generateToken()
	if err != nil {
		return "", nil, err
	}
	s := newSession(m.coach, name)
	m.byToken[token] = s
	m.byName[name] = token
	return token, s, nil
}

// Get returns the session for a token, or nil.
func (m *Manager) Get(token string) *Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.byToken[token]
}

// Restart discards a student's session so the next login starts over.
func (m *Manager) Restart(token string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.byToken[token]
	if !ok {
		return
	}
	delete(m.byToken, token)
	delete(m.byName, s.studentName)
}

// SanitizeName reduces a student name to characters safe for a partition key:
// letters, digits, spaces, underscores, and hyphens.
func SanitizeName(name string) string {
	var sb strings.Builder
	for _, r := range strings.TrimSpace(name) {
		if r == ' ' || r == '_' || r == '-' || unicode.IsLetter(r) || unicode.IsDigit(r) {
			sb.WriteRune(r)
		}
	}
	return strings.TrimSpace(sb.String())
}

func generateToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
