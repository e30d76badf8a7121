package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	tmp := t.TempDir()
	cfgPath := filepath.Join(tmp, "notary.yml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("{}"), 0644))

	cfg, err := Load(cfgPath)
	require.NoError(t, err)
	require.Equal(t, []string{":8080"}, cfg.HTTP.Addresses)
	require.Equal(t, "sqlite", cfg.Store.Backend)
	require.Equal(t, "lru", cfg.Cache.Backend)
	require.Equal(t, 10, cfg.Admission.ProbeLimit)
	require.Equal(t, 10*time.Second, cfg.Scanner.ProbeTimeout)
}

func TestLoadUnknownField(t *testing.T) {
	tmp := t.TempDir()
	cfgPath := filepath.Join(tmp, "notary.yml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("UnknownField: 1"), 0644))

	_, err := Load(cfgPath)
	require.Error(t, err)
}

func TestLoadBytesResolvesRelativePaths(t *testing.T) {
	cfg, err := LoadBytes([]byte("Store:\n  Path: notary.db\n"), "/var/lib/notary")
	require.NoError(t, err)
	require.Equal(t, "/var/lib/notary/notary.db", cfg.Store.Path)
}

func TestApplyEnvOverrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("DATABASE_URL", "postgres://u:p@host/db")

	cfg, err := LoadBytes([]byte("{}"), "")
	require.NoError(t, err)
	require.Equal(t, []string{":9090"}, cfg.HTTP.Addresses)
	require.Equal(t, "postgres", cfg.Store.Backend)
	require.Equal(t, "postgres://u:p@host/db", cfg.Store.DSN)
}

func TestLoggerValidateRejectsUnknownEncoding(t *testing.T) {
	l := Logger{LogEncoding: "xml"}
	require.Error(t, l.Validate())
}
