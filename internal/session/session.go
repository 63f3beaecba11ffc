// Package session tracks who is logged in to the report form.
package session

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

// Role is the authorization level returned by the API at login.
type Role string

const (
	RoleAdmin Role = "admin"
	RoleUser  Role = "user"
)

// ParseRole accepts "admin" or "user".
func ParseRole(s string) (Role, error) {
	switch r := Role(strings.ToLower(strings.TrimSpace(s))); r {
	case RoleAdmin, RoleUser:
		return r, nil
	}
	return "", fmt.Errorf("unknown role %q", s)
}

// Session is the explicit replacement for a token kept in ambient storage.
// The zero value is logged out.
type Session struct {
	mu       sync.RWMutex
	token    string
	role     Role
	username string
}

// Login starts a session.
func (s *Session) Login(token string, role Role, username string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token, s.role, s.username = token, role, username
}

// Logout ends the session.
func (s *Session) Logout() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token, s.role, s.username = "", "", ""
}

// CurrentRole returns the role of the logged in user; ok is false when
// nobody is logged in.
func (s *Session) CurrentRole() (role Role, ok bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.token == "" {
		return "", false
	}
	return s.role, true
}

// Token returns the bearer token, empty when logged out.
func (s *Session) Token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token
}

func (s *Session) Username() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.username
}

// IsAdmin reports whether an admin is logged in.
func (s *Session) IsAdmin() bool {
	role, ok := s.CurrentRole()
	return ok && role == RoleAdmin
}

type savedSession struct {
	Token    string `yaml:"token"`
	Role     Role   `yaml:"role"`
	Username string `yaml:"username"`
}

// FileStore keeps a session between CLI invocations.
type FileStore struct {
	Path string
}

// Load restores a saved session into s. A missing file leaves s logged out.
func (f FileStore) Load(s *Session) error {
	data, err := os.ReadFile(f.Path)
	if errors.Is(err, os.ErrNotExist) {
		s.Logout()
		return nil
	}
	if err != nil {
		return fmt.Errorf("read session file: %w", err)
	}

	var saved savedSession
	if err := yaml.Unmarshal(data, &saved); err != nil {
		return fmt.Errorf("parse session file: %w", err)
	}
	if saved.Token == "" {
		s.Logout()
		return nil
	}
	s.Login(saved.Token, saved.Role, saved.Username)
	return nil
}

// Save writes s to disk, readable only by the current user.
func (f FileStore) Save(s *Session) error {
	role, _ := s.CurrentRole()
	data, err := yaml.Marshal(savedSession{Token: s.Token(), Role: role, Username: s.Username()})
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(f.Path), 0o700); err != nil {
		return fmt.Errorf("create session directory: %w", err)
	}
	if err := os.WriteFile(f.Path, data, 0o600); err != nil {
		return fmt.Errorf("write session file: %w", err)
	}
	return nil
}

// Clear removes the saved session.
func (f FileStore) Clear() error {
	if err := os.Remove(f.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove session file: %w", err)
	}
	return nil
}
