package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func setBase(t *testing.T) {
	t.Setenv("SERVICE_NAME", "library")
	t.Setenv("JWT_SECRET", "jwt")
	t.Setenv("SIGNING_SECRET", "sig")
}

func TestLoad_MemoryDefaults(t *testing.T) {
	setBase(t)
	t.Setenv("LIBRARY_BACKEND", "memory")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, time.Hour, cfg.SignedURLTTL)
	require.Equal(t, int64(200<<20), cfg.MaxUploadBytes)
	require.Equal(t, "./data/objects", cfg.ObjectRoot)
}

func TestLoad_MemoryRefusedInProduction(t *testing.T) {
	setBase(t)
	t.Setenv("LIBRARY_BACKEND", "memory")
	t.Setenv("ENV", "production")
	_, err := Load()
	require.Error(t, err)
}

func TestLoad_UnknownBackend(t *testing.T) {
	setBase(t)
	t.Setenv("LIBRARY_BACKEND", "s3")
	_, err := Load()
	require.Error(t, err)
}

func TestLoad_RequiresSigningSecret(t *testing.T) {
	t.Setenv("SERVICE_NAME", "library")
	t.Setenv("JWT_SECRET", "jwt")
	t.Setenv("LIBRARY_BACKEND", "memory")
	_, err := Load()
	require.Error(t, err)
}
