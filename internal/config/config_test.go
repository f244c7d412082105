package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv("STRAVASYNC_CLIENT_ID", "1234")
	t.Setenv("STRAVASYNC_CLIENT_SECRET", "secret")
	t.Setenv("STRAVASYNC_REFRESH_TOKEN", "refresh")
}

func TestLoadConfig_Defaults(t *testing.T) {
	setRequiredEnv(t)
	chdir(t, t.TempDir())

	cfg, err := LoadConfig("")
	require.NoError(t, err)

	assert.Equal(t, "1234", cfg.ClientID)
	assert.Equal(t, "https://www.strava.com/api/v3", cfg.APIURL)
	assert.Equal(t, 1, cfg.RecentActivities)
	assert.Equal(t, 24*time.Hour, cfg.PhotoRefreshInterval)
	assert.Equal(t, 100, cfg.MaxImages)
	assert.Equal(t, 30*time.Minute, cfg.SyncInterval)
	assert.Equal(t, 10*time.Second, cfg.RequestTimeout)
	assert.Equal(t, UnitMetric, cfg.DistanceUnit)
	assert.Empty(t, cfg.ActivityTypes)
	assert.False(t, cfg.PhotosEnabled)
}

func TestLoadConfig_EnvOverrides(t *testing.T) {
	setRequiredEnv(t)
	chdir(t, t.TempDir())
	t.Setenv("STRAVASYNC_ACTIVITY_TYPES", "Run, Ride")
	t.Setenv("STRAVASYNC_RECENT_ACTIVITIES", "3")
	t.Setenv("STRAVASYNC_PHOTOS_ENABLED", "true")
	t.Setenv("STRAVASYNC_SYNC_INTERVAL", "15m")
	t.Setenv("STRAVASYNC_WEBHOOK_SUBSCRIPTION_ID", "42")

	cfg, err := LoadConfig("")
	require.NoError(t, err)

	assert.Equal(t, []string{"Run", "Ride"}, cfg.ActivityTypes)
	assert.Equal(t, 3, cfg.RecentActivities)
	assert.True(t, cfg.PhotosEnabled)
	assert.Equal(t, 15*time.Minute, cfg.SyncInterval)
	assert.Equal(t, int64(42), cfg.WebhookSubscriptionID)
}

func TestLoadConfig_File(t *testing.T) {
	setRequiredEnv(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "custom.yaml")
	content := `
activity_types: [Swim]
max_images: 20
distance_unit: imperial
geocode_api_key: abc
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, []string{"Swim"}, cfg.ActivityTypes)
	assert.Equal(t, 20, cfg.MaxImages)
	assert.Equal(t, UnitImperial, cfg.DistanceUnit)
	assert.Equal(t, "abc", cfg.GeocodeAPIKey)
}

func TestLoadConfig_MissingExplicitFile(t *testing.T) {
	setRequiredEnv(t)

	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestLoadConfig_MissingCredentials(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("STRAVASYNC_CLIENT_ID", "")
	t.Setenv("STRAVASYNC_CLIENT_SECRET", "")
	t.Setenv("STRAVASYNC_REFRESH_TOKEN", "")

	_, err := LoadConfig("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ClientID")
}

func TestValidate_Rejects(t *testing.T) {
	setRequiredEnv(t)
	chdir(t, t.TempDir())

	cfg, err := LoadConfig("")
	require.NoError(t, err)

	bad := *cfg
	bad.DistanceUnit = "furlongs"
	assert.Error(t, Validate(&bad))

	bad = *cfg
	bad.RecentActivities = 0
	assert.Error(t, Validate(&bad))

	bad = *cfg
	bad.RateLimit = 0
	assert.Error(t, Validate(&bad))
}

// chdir changes the working directory for the duration of the test and
// restores it on cleanup (equivalent of testing.T.Chdir, added in Go 1.24).
func chdir(t *testing.T, dir string) {
	t.Helper()
	old, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { require.NoError(t, os.Chdir(old)) })
}
