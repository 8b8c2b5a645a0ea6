// Package session persists the bearer credential between invocations.
//
// The credential lives in a small YAML file readable only by its owner.
// Another process (for example `tourney login` while the daemon runs) may
// rewrite the file; call Reload to pick the change up.
package session

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/tourneysync/tourney/internal/remote"
)

// Session is the on-disk credential.
type Session struct {
	Token   string    `yaml:"token"`
	UserID  string    `yaml:"user_id,omitempty"`
	Email   string    `yaml:"email,omitempty"`
	SavedAt time.Time `yaml:"saved_at"`
}

// Store holds the current session in memory backed by a file.
type Store struct {
	path string

	mu  sync.RWMutex
	cur *Session
}

// Open loads the session file at path. A missing file means logged out.
func Open(path string) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("session path cannot be empty")
	}
	s := &Store{path: path}
	if err := s.Reload(); err != nil {
		return nil, err
	}
	return s, nil
}

// Path returns the session file path.
func (s *Store) Path() string {
	return s.path
}

// Reload re-reads the session file.
func (s *Store) Reload() error {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		s.set(nil)
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read session file: %w", err)
	}

	var sess Session
	if err := yaml.Unmarshal(data, &sess); err != nil {
		return fmt.Errorf("failed to parse session file %s: %w", s.path, err)
	}
	if sess.Token == "" {
		s.set(nil)
		return nil
	}
	s.set(&sess)
	return nil
}

// AuthToken returns the bearer token and whether one is available.
func (s *Store) AuthToken() (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.cur == nil {
		return "", false
	}
	return s.cur.Token, true
}

// IsAuthenticated reports whether a token is available.
func (s *Store) IsAuthenticated() bool {
	_, ok := s.AuthToken()
	return ok
}

// Current returns a copy of the active session.
func (s *Store) Current() (Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.cur == nil {
		return Session{}, false
	}
	return *s.cur, true
}

// Save persists cred and makes it the active session.
func (s *Store) Save(cred remote.Credential) error {
	if cred.Token == "" {
		return fmt.Errorf("refusing to save an empty token")
	}
	sess := &Session{
		Token:   cred.Token,
		UserID:  cred.UserID,
		Email:   cred.Email,
		SavedAt: time.Now().UTC().Truncate(time.Second),
	}

	data, err := yaml.Marshal(sess)
	if err != nil {
		return fmt.Errorf("failed to encode session: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return fmt.Errorf("failed to create session directory: %w", err)
	}

	// Write to a temp file and rename so readers never see a partial file.
	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".session-*.yaml")
	if err != nil {
		return fmt.Errorf("failed to create temp session file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if err := tmp.Chmod(0o600); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to set session file mode: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to write session file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close session file: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		return fmt.Errorf("failed to install session file: %w", err)
	}

	s.set(sess)
	return nil
}

// Clear removes the session file and forgets the token.
func (s *Store) Clear() error {
	if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to remove session file: %w", err)
	}
	s.set(nil)
	return nil
}

func (s *Store) set(sess *Session) {
	s.mu.Lock()
	s.cur = sess
	s.mu.Unlock()
}
