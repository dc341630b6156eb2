package coach

import (
	"errors"
	"testing"

	"github.com/soundlab/soundcoach/internal/catalog"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	cat, err := catalog.Parse([]byte(coachCatalogJSON))
	if err != nil {
		t.Fatalf("parse catalog: %v", err)
	}
	return NewManager(New(cat, scoreWith(goodFeedback(1)), &fakeSink{}, Config{}))
}

func TestLoginResumesSameName(t *testing.T) {
	m := newTestManager(t)

	token1, sess1, err := m.Login("Mina Kim")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	token2, sess2, err := m.Login("Mina Kim")
	if err != nil {
		t.Fatalf("second Login: %v", err)
	}
	if token1 != token2 || sess1 != sess2 {
		t.Error("logging in with the same name must resume the existing session")
	}

	_, other, err := m.Login("Another Student")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if other == sess1 {
		t.Error("a different name must get a fresh session")
	}
}

func TestLoginEmptyName(t *testing.T) {
	m := newTestManager(t)
	for _, name := range []string{"", "   ", "!!!", "@#$%"} {
		if _, _, err := m.Login(name); !errors.Is(err, ErrEmptyName) {
			t.Errorf("Login(%q) = %v, want ErrEmptyName", name, err)
		}
	}
}

func TestGetAndRestart(t *testing.T) {
	m := newTestManager(t)

	token, sess, err := m.Login("mina")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if got := m.Get(token); got != sess {
		t.Error("Get should return the logged-in session")
	}
	if got := m.Get("no-such-token"); got != nil {
		t.Error("Get of an unknown token should be nil")
	}

	m.Restart(token)
	if got := m.Get(token); got != nil {
		t.Error("restarted session must be gone")
	}
	_, fresh, err := m.Login("mina")
	if err != nil {
		t.Fatalf("Login after restart: %v", err)
	}
	if fresh == sess {
		t.Error("login after restart must start over")
	}
}

func TestSanitizeName(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Mina Kim", "Mina Kim"},
		{"  mina  ", "mina"},
		{"김민아", "김민아"},
		{"mina/../../etc", "minaetc"},
		{"a_b-c 1", "a_b-c 1"},
		{"<script>", "script"},
	}
	for _, tt := range tests {
		if got := SanitizeName(tt.in); got != tt.want {
			t.Errorf("SanitizeName(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
