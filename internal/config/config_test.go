package config

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "drilarchive.yaml")

	cfg := Default()
	cfg.Account.Handle = "someone"
	cfg.Fetch.RetweetSince = 1136073600
	require.NoError(t, Save(path, cfg))

	got, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "someone", got.Account.Handle)
	assert.Equal(t, int64(1136073600), got.Fetch.RetweetSince)
	assert.Equal(t, 2*time.Second, got.Fetch.PoliteDelay)
}

func TestLoadClampsFetchDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "drilarchive.yaml")

	cfg := Default()
	cfg.Fetch.RetriesOn429 = 0
	cfg.Fetch.PoliteDelay = 0
	cfg.Fetch.IdleWait = -time.Second
	require.NoError(t, Save(path, cfg))

	got, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 5, got.Fetch.RetriesOn429)
	assert.Equal(t, 2*time.Second, got.Fetch.PoliteDelay)
	assert.Equal(t, 10*time.Second, got.Fetch.IdleWait)
}

func TestResolveEnv(t *testing.T) {
	t.Setenv("TWITTER_BEARER", "api-token")
	t.Setenv("ADAPTIVE_BEARER", "Bearer adaptive-token")
	t.Setenv("ADAPTIVE_GUEST_TOKEN", "guest")

	cfg := Default()
	cfg.ResolveEnv()

	assert.Equal(t, "api-token", cfg.Credentials.APIToken)
	// the "Bearer " prefix is tolerated and stripped
	assert.Equal(t, "adaptive-token", cfg.Credentials.AdaptiveToken)
	assert.Equal(t, "guest", cfg.Credentials.AdaptiveGuestToken)
}

func TestResolveEnvKeepsExplicitValues(t *testing.T) {
	t.Setenv("TWITTER_BEARER", "from-env")

	cfg := Default()
	cfg.Credentials.APIToken = "explicit"
	cfg.ResolveEnv()

	assert.Equal(t, "explicit", cfg.Credentials.APIToken)
}
