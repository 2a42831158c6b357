// Package credentials persists the bearer token tripsync sends to the remote
// service. Tokens live in a small TOML file (0600) next to the config.
//
// tripsync does not design authentication: it stores whatever token the user
// supplies, sends it, and reads the JWT "exp" claim only to report whether the
// token looks expired.
package credentials

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/golang-jwt/jwt/v5"
	toml "github.com/pelletier/go-toml/v2"
	"go.uber.org/zap"
)

// Credentials is the on-disk token set.
type Credentials struct {
	AuthToken    string `toml:"auth_token"`
	RefreshToken string `toml:"refresh_token,omitempty"`
	Email        string `toml:"email,omitempty"`
}

// Load reads credentials from path. A missing or unreadable file yields empty
// credentials; only a malformed file is reported.
func Load(path string) (Credentials, error) {
	resolved, err := expandPath(path)
	if err != nil {
		return Credentials{}, err
	}

	file, err := os.Open(resolved)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Credentials{}, nil
		}
		return Credentials{}, nil // unreadable behaves like logged out
	}
	defer func() { _ = file.Close() }()

	data, err := io.ReadAll(file)
	if err != nil {
		return Credentials{}, nil
	}

	var c Credentials
	if err := toml.Unmarshal(data, &c); err != nil {
		return Credentials{}, fmt.Errorf("parse credentials: %w", err)
	}
	c.AuthToken = strings.TrimSpace(c.AuthToken)
	c.RefreshToken = strings.TrimSpace(c.RefreshToken)
	return c, nil
}

// Save writes c to path, creating directories as needed.
func Save(path string, c Credentials) error {
	resolved, err := expandPath(path)
	if err != nil {
		return fmt.Errorf("resolve path: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(resolved), 0o700); err != nil {
		return fmt.Errorf("create credentials dir: %w", err)
	}
	data, err := toml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal credentials: %w", err)
	}
	if err := os.WriteFile(resolved, data, 0o600); err != nil {
		return fmt.Errorf("write credentials: %w", err)
	}
	return nil
}

// Expiry returns the token's "exp" claim. The signature is not verified.
// ok is false when the token is not a JWT or carries no expiry.
func Expiry(token string) (time.Time, bool) {
	token = strings.TrimSpace(token)
	if token == "" {
		return time.Time{}, false
	}
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return time.Time{}, false
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}, false
	}
	return exp.Time, true
}

// Authenticated reports whether c holds a token that has not expired at now.
// Tokens that cannot be read as a JWT with an expiry are treated as expired.
func (c Credentials) Authenticated(now time.Time) bool {
	exp, ok := Expiry(c.AuthToken)
	return ok && now.Before(exp)
}

// Store keeps the current credentials in memory and reloads them when the
// file changes. It satisfies remote.TokenSource.
type Store struct {
	path   string
	logger *zap.Logger

	mu  sync.RWMutex
	cur Credentials
}

// Open loads the credentials at path into a Store.
func Open(path string, logger *zap.Logger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	resolved, err := expandPath(path)
	if err != nil {
		return nil, err
	}
	c, err := Load(resolved)
	if err != nil {
		return nil, err
	}
	return &Store{path: resolved, logger: logger.Named("credentials"), cur: c}, nil
}

// Path returns the resolved credentials file.
func (s *Store) Path() string { return s.path }

// Token returns the current bearer token.
func (s *Store) Token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cur.AuthToken
}

// Current returns a copy of the loaded credentials.
func (s *Store) Current() Credentials {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cur
}

// Set persists c and makes it current.
func (s *Store) Set(c Credentials) error {
	if err := Save(s.path, c); err != nil {
		return err
	}
	s.mu.Lock()
	s.cur = c
	s.mu.Unlock()
	return nil
}

// Reload re-reads the file. A malformed file keeps the previous credentials.
func (s *Store) Reload() error {
	c, err := Load(s.path)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.cur = c
	s.mu.Unlock()
	return nil
}

// Watch reloads the credentials whenever the file is written, created or
// replaced, until ctx is done. It watches the parent directory so editors
// that rename over the file are seen.
func (s *Store) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer func() { _ = watcher.Close() }()

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("create credentials dir: %w", err)
	}
	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("watch %s: %w", dir, err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != s.path {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename|fsnotify.Remove) == 0 {
				continue
			}
			if err := s.Reload(); err != nil {
				s.logger.Warn("credentials reload failed", zap.Error(err))
				continue
			}
			s.logger.Info("credentials reloaded", zap.String("op", event.Op.String()))
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			s.logger.Warn("credentials watcher error", zap.Error(err))
		}
	}
}

func expandPath(path string) (string, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return "", fmt.Errorf("path is empty")
	}
	if strings.HasPrefix(trimmed, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home dir: %w", err)
		}
		trimmed = filepath.Join(home, strings.TrimPrefix(trimmed, "~"))
	}
	return filepath.Abs(trimmed)
}
