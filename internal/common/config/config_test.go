package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("FEED_BASE_URL", "")
	t.Setenv("FEED_CATALOG", "")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "https://data.explore.star.fr", cfg.Feed.BaseURL)
	assert.Equal(t, 10*time.Second, cfg.Feed.Timeout)
	assert.Equal(t, DefaultCatalog(), cfg.Feed.Catalog)
	assert.Equal(t, 40, cfg.Feed.Catalog.BusRowCap)
	assert.Equal(t, 60, cfg.Feed.Catalog.MetroRowCap)
	assert.Equal(t, "1001", cfg.Feed.Catalog.MetroLineID)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("FEED_TIMEOUT", "3s")
	t.Setenv("STATION_SYNC_INTERVAL", "1h")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 3*time.Second, cfg.Feed.Timeout)
	assert.Equal(t, time.Hour, cfg.Stations.SyncInterval)
}

func TestLoadRejectsBadBaseURL(t *testing.T) {
	t.Setenv("FEED_BASE_URL", "not a url")

	_, err := Load()
	require.Error(t, err)
}

func TestLoadCatalogMergesOverBase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.yml")
	content := "busPassages: custom-bus-passages\nbusRowCap: 25\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	catalog, err := LoadCatalog(path, DefaultCatalog())
	require.NoError(t, err)

	assert.Equal(t, "custom-bus-passages", catalog.BusPassages)
	assert.Equal(t, 25, catalog.BusRowCap)
	assert.Equal(t, "tco-metro-circulation-passages-tr", catalog.MetroPassages)
}

func TestLoadCatalogValidates(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.yml")
	require.NoError(t, os.WriteFile(path, []byte("metroRowCap: 0\n"), 0o644))

	_, err := LoadCatalog(path, DefaultCatalog())
	require.Error(t, err)
}

func TestDatabaseValidate(t *testing.T) {
	db := DatabaseConfig{Host: "localhost", Port: "5432", User: "postgres", DBName: "moov"}
	require.NoError(t, db.Validate())

	db.Port = "five"
	assert.Error(t, db.Validate())

	assert.Equal(t,
		"host=localhost port=five user=postgres password= dbname=moov sslmode=disable",
		db.ConnectionString())
}
