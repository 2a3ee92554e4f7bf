// Package prefs stores per-user reader preferences on disk.
package prefs

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/pelletier/go-toml/v2"
)

type Theme string

const (
	ThemeLight Theme = "light"
	ThemeDark  Theme = "dark"
	ThemeSepia Theme = "sepia"
)

var themes = []Theme{ThemeLight, ThemeDark, ThemeSepia}

// Next cycles light, dark, sepia.
func (t Theme) Next() Theme {
	for i, th := range themes {
		if th == t {
			return themes[(i+1)%len(themes)]
		}
	}
	return ThemeLight
}

func (t Theme) Valid() bool {
	for _, th := range themes {
		if th == t {
			return true
		}
	}
	return false
}

type Prefs struct {
	Theme Theme `toml:"theme"`
}

func Default() Prefs {
	return Prefs{Theme: ThemeLight}
}

// DefaultPath is ~/.config/pagemark/prefs.toml, honouring XDG_CONFIG_HOME.
func DefaultPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "pagemark", "prefs.toml"), nil
}

// Load reads path. A missing file yields the defaults; an unknown theme is
// replaced by the default one.
func Load(path string) (Prefs, error) {
	p := Default()
	b, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return p, nil
	}
	if err != nil {
		return p, err
	}
	if err := toml.Unmarshal(b, &p); err != nil {
		return Default(), fmt.Errorf("parse %s: %w", path, err)
	}
	if !p.Theme.Valid() {
		p.Theme = ThemeLight
	}
	return p, nil
}

func Save(path string, p Prefs) error {
	if !p.Theme.Valid() {
		return fmt.Errorf("invalid theme %q", p.Theme)
	}
	b, err := toml.Marshal(p)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
