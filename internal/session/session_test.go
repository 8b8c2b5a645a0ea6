package session

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/tourneysync/tourney/internal/remote"
)

func TestOpen_MissingFileIsLoggedOut(t *testing.T) {
	s, err := Open(filepath.Join(t.TempDir(), "session.yaml"))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if s.IsAuthenticated() {
		t.Error("expected no session for missing file")
	}
	if tok, ok := s.AuthToken(); ok || tok != "" {
		t.Errorf("AuthToken() = %q, %v; want empty, false", tok, ok)
	}
}

func TestSaveReloadClear(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "session.yaml")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}

	cred := remote.Credential{Token: "tok-1", UserID: "u-1", Email: "a@b.c"}
	if err := s.Save(cred); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("session file missing: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0o600 {
		t.Errorf("expected mode 0600, got %o", perm)
	}

	// A second handle sees what the first wrote.
	other, err := Open(path)
	if err != nil {
		t.Fatalf("second Open failed: %v", err)
	}
	tok, ok := other.AuthToken()
	if !ok || tok != "tok-1" {
		t.Errorf("AuthToken() = %q, %v; want tok-1, true", tok, ok)
	}
	sess, _ := other.Current()
	if sess.UserID != "u-1" || sess.Email != "a@b.c" || sess.SavedAt.IsZero() {
		t.Errorf("unexpected session %+v", sess)
	}

	if err := s.Clear(); err != nil {
		t.Fatalf("Clear failed: %v", err)
	}
	if s.IsAuthenticated() {
		t.Error("expected logged out after Clear")
	}
	if err := other.Reload(); err != nil {
		t.Fatalf("Reload failed: %v", err)
	}
	if other.IsAuthenticated() {
		t.Error("expected Reload to observe the cleared session")
	}
	if err := s.Clear(); err != nil {
		t.Errorf("Clear of missing file should succeed: %v", err)
	}
}

func TestSave_RejectsEmptyToken(t *testing.T) {
	s, _ := Open(filepath.Join(t.TempDir(), "session.yaml"))
	if err := s.Save(remote.Credential{}); err == nil {
		t.Error("expected error for empty token")
	}
}

func TestReload_CorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.yaml")
	if err := os.WriteFile(path, []byte("token: [unterminated"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := Open(path); err == nil {
		t.Error("expected error for corrupt session file")
	}
}
