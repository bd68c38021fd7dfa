// Package prefs handles recall user preferences persistence.
// Preferences are stored in ~/.config/recall/prefs.toml.
package prefs

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	toml "github.com/pelletier/go-toml/v2"
)

// View modes for the note list.
const (
	ViewCard = "card"
	ViewRow  = "row"
)

// Prefs holds user preferences for the list view.
type Prefs struct {
	Theme    string `toml:"theme"`
	ViewMode string `toml:"view_mode"`
	SortBy   string `toml:"sort_by"`
	Order    string `toml:"order"`
	PageSize int    `toml:"page_size"`
}

const (
	defaultPrefsPath = "~/.config/recall/prefs.toml"
	defaultTheme     = "Nightfox"
	defaultSortBy    = "created_at"
	defaultOrder     = "desc"
	defaultPageSize  = 20
	maxPageSize      = 100
)

// Default returns the preferences used when nothing is saved.
func Default() Prefs {
	return Prefs{
		Theme:    defaultTheme,
		ViewMode: ViewCard,
		SortBy:   defaultSortBy,
		Order:    defaultOrder,
		PageSize: defaultPageSize,
	}
}

// DefaultPath returns the default preferences file path.
func DefaultPath() string {
	return defaultPrefsPath
}

// Load reads preferences from the given path, falling back to defaults if
// the file is missing or unreadable.
func Load(path string) Prefs {
	resolved, err := resolvePath(path)
	if err != nil {
		return Default()
	}

	file, err := os.Open(resolved)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Default()
		}
		return Default() // Graceful degradation
	}
	defer func() { _ = file.Close() }()

	bytes, err := io.ReadAll(file)
	if err != nil {
		return Default() // Graceful degradation
	}

	var p Prefs
	if err := toml.Unmarshal(bytes, &p); err != nil {
		return Default() // Graceful degradation
	}
	return p.normalized()
}

// Save writes preferences to the given path, creating directories as needed.
func Save(path string, p Prefs) error {
	resolved, err := resolvePath(path)
	if err != nil {
		return fmt.Errorf("resolve path: %w", err)
	}

	dir := filepath.Dir(resolved)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create prefs dir: %w", err)
	}

	bytes, err := toml.Marshal(p.normalized())
	if err != nil {
		return fmt.Errorf("marshal prefs: %w", err)
	}

	if err := os.WriteFile(resolved, bytes, 0o644); err != nil {
		return fmt.Errorf("write prefs: %w", err)
	}

	return nil
}

// normalized replaces empty or unknown values with defaults.
func (p Prefs) normalized() Prefs {
	def := Default()
	if strings.TrimSpace(p.Theme) == "" {
		p.Theme = def.Theme
	}
	switch p.ViewMode {
	case ViewCard, ViewRow:
	default:
		p.ViewMode = def.ViewMode
	}
	switch p.SortBy {
	case "created_at", "next_review_at":
	default:
		p.SortBy = def.SortBy
	}
	switch p.Order {
	case "asc", "desc":
	default:
		p.Order = def.Order
	}
	if p.PageSize <= 0 {
		p.PageSize = def.PageSize
	}
	if p.PageSize > maxPageSize {
		p.PageSize = maxPageSize
	}
	return p
}

func resolvePath(path string) (string, error) {
	if strings.TrimSpace(path) == "" {
		return expandPath(defaultPrefsPath)
	}
	return expandPath(path)
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
