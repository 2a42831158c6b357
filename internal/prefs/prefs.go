// Package prefs remembers choices made in the watch monitor between runs.
// Only the colour theme is stored today.
package prefs

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	toml "github.com/pelletier/go-toml/v2"

	"github.com/five82/tripsync/internal/config"
)

const (
	defaultPath  = "~/.config/tripsync/prefs.toml"
	defaultTheme = "Nightfox"
)

// Prefs is the contents of prefs.toml.
type Prefs struct {
	Theme string `toml:"theme"`
}

// Defaults is what the monitor uses before anything was saved.
func Defaults() Prefs {
	return Prefs{Theme: defaultTheme}
}

// Path resolves path, or the default location under ~/.config/tripsync when
// path is blank.
func Path(path string) (string, error) {
	if strings.TrimSpace(path) == "" {
		path = defaultPath
	}
	return config.ExpandPath(path)
}

// Load returns the saved preferences. A missing file is not an error. On any
// other problem the defaults are returned together with the error, so callers
// that only want a theme can ignore it.
func Load(path string) (Prefs, error) {
	resolved, err := Path(path)
	if err != nil {
		return Defaults(), err
	}

	data, err := os.ReadFile(resolved)
	if errors.Is(err, fs.ErrNotExist) {
		return Defaults(), nil
	}
	if err != nil {
		return Defaults(), fmt.Errorf("read prefs: %w", err)
	}

	var p Prefs
	if err := toml.Unmarshal(data, &p); err != nil {
		return Defaults(), fmt.Errorf("parse %s: %w", resolved, err)
	}
	p.Theme = strings.TrimSpace(p.Theme)
	if p.Theme == "" {
		p.Theme = defaultTheme
	}
	return p, nil
}

// Save replaces the preferences file. The new content is written to a
// sibling temp file and renamed into place.
func Save(path string, p Prefs) error {
	resolved, err := Path(path)
	if err != nil {
		return err
	}
	data, err := toml.Marshal(p)
	if err != nil {
		return fmt.Errorf("encode prefs: %w", err)
	}

	dir := filepath.Dir(resolved)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create prefs dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".prefs-*.toml")
	if err != nil {
		return fmt.Errorf("create temp prefs: %w", err)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write prefs: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("write prefs: %w", err)
	}
	if err := os.Rename(tmp.Name(), resolved); err != nil {
		return fmt.Errorf("replace prefs: %w", err)
	}
	return nil
}
