package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/godii/transgemma/shared/testutils"

	"github.com/stretchr/testify/require"
)

func TestLoadConfig(t *testing.T) {
	for _, k := range []string{"ADDR", "POSTGRES_DB", "SQLITE_PATH", "STATSD_ADDR", "PRODUCTION", "ADMIN_TOKEN", "MAX_DEVICES", "RATE_LIMIT_RPS", "RATE_LIMIT_BURST"} {
		t.Cleanup(testutils.BackupAndRestoreEnv("TRANSGEMMA_" + k))
		require.NoError(t, os.Unsetenv("TRANSGEMMA_"+k))
	}
	t.Setenv("TRANSGEMMA_ADDR", ":9999")
	t.Setenv("TRANSGEMMA_RATE_LIMIT_RPS", "0.5")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	require.Equal(t, ":9999", cfg.Addr)
	require.Equal(t, 0.5, cfg.RateLimit)
	require.Equal(t, 20, cfg.RateBurst)
	require.Equal(t, 5, cfg.MaxDevices)
	require.Empty(t, cfg.PostgresDSN)

	// Production builds must carry a release version
	t.Setenv("TRANSGEMMA_PRODUCTION", "true")
	_, err = LoadConfig()
	require.Error(t, err)
}

func TestOpenDBSQLite(t *testing.T) {
	cfg := &Config{SQLitePath: filepath.Join(t.TempDir(), "licenses.db")}
	db, err := OpenDB(cfg)
	require.NoError(t, err)
	defer db.Close()
	require.NoError(t, db.Ping())
	require.True(t, db.Migrator().HasTable("license_codes"))
	require.True(t, db.Migrator().HasTable("device_bindings"))
}
