// Package state keeps the operator's bearer token between CLI sessions.
package state

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Saved is the on-disk form of the session token.
type Saved struct {
	AccessToken string    `json:"accessToken"`
	SavedAt     time.Time `json:"savedAt"`
}

// Store reads and writes the token file at one path.
type Store struct {
	path string
}

func NewStore(path string) *Store {
	return &Store{path: path}
}

func (s *Store) Path() string {
	return s.path
}

// Load returns the saved token. A missing or empty file is an empty token.
func (s *Store) Load() (Saved, error) {
	var saved Saved
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) || (err == nil && len(data) == 0) {
		return saved, nil
	}
	if err != nil {
		return saved, fmt.Errorf("read token state failed: %w", err)
	}
	if err := json.Unmarshal(data, &saved); err != nil {
		return saved, fmt.Errorf("parse token state failed: %w", err)
	}
	return saved, nil
}

// Save writes token with owner-only permissions.
func (s *Store) Save(token string) (Saved, error) {
	saved := Saved{AccessToken: token, SavedAt: time.Now().UTC()}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return saved, fmt.Errorf("create token state dir failed: %w", err)
	}
	data, err := json.MarshalIndent(saved, "", "  ")
	if err != nil {
		return saved, fmt.Errorf("marshal token state failed: %w", err)
	}
	if err := os.WriteFile(s.path, data, 0o600); err != nil {
		return saved, fmt.Errorf("write token state failed: %w", err)
	}
	return saved, nil
}

// Clear removes the token file.
func (s *Store) Clear() error {
	if err := os.Remove(s.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove token state failed: %w", err)
	}
	return nil
}

// TokenInfo is what the CLI can tell about a token without the signing key.
type TokenInfo struct {
	Subject   string
	Role      string
	ExpiresAt time.Time
}

// Expired reports whether the token expired before now.
func (i TokenInfo) Expired(now time.Time) bool {
	return !i.ExpiresAt.IsZero() && now.After(i.ExpiresAt)
}

type claims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// Inspect decodes token's claims without verifying its signature; the
// server remains the authority.
func Inspect(token string) (TokenInfo, error) {
	var c claims
	if _, _, err := jwt.NewParser().ParseUnverified(token, &c); err != nil {
		return TokenInfo{}, fmt.Errorf("decode token failed: %w", err)
	}
	info := TokenInfo{Subject: c.Subject, Role: c.Role}
	if c.ExpiresAt != nil {
		info.ExpiresAt = c.ExpiresAt.Time
	}
	return info, nil
}
