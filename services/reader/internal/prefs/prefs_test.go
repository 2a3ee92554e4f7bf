package prefs

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoad_MissingFileGivesDefaults(t *testing.T) {
	p, err := Load(filepath.Join(t.TempDir(), "nope.toml"))
	require.NoError(t, err)
	require.Equal(t, ThemeLight, p.Theme)
}

func TestSaveLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pagemark", "prefs.toml")
	require.NoError(t, Save(path, Prefs{Theme: ThemeSepia}))

	b, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Contains(t, string(b), "theme")
	require.Contains(t, string(b), "sepia")

	p, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, ThemeSepia, p.Theme)
}

func TestLoad_UnknownThemeFallsBack(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prefs.toml")
	require.NoError(t, os.WriteFile(path, []byte("theme = \"neon\"\n"), 0o644))
	p, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, ThemeLight, p.Theme)
}

func TestLoad_Malformed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prefs.toml")
	require.NoError(t, os.WriteFile(path, []byte("theme = "), 0o644))
	_, err := Load(path)
	require.Error(t, err)
}

func TestSave_RejectsInvalidTheme(t *testing.T) {
	require.Error(t, Save(filepath.Join(t.TempDir(), "p.toml"), Prefs{Theme: "neon"}))
}

func TestThemeNext(t *testing.T) {
	require.Equal(t, ThemeDark, ThemeLight.Next())
	require.Equal(t, ThemeSepia, ThemeDark.Next())
	require.Equal(t, ThemeLight, ThemeSepia.Next())
	require.Equal(t, ThemeLight, Theme("").Next())
}
