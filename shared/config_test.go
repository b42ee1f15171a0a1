package shared

import (
	"os"
	"path"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestParseConfigLayersOnDefaults(t *testing.T) {
	configPath := path.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte("timezone: America/Los_Angeles\nerror_threshold: 3\n"), 0o644))

	config, err := ParseConfig(configPath)
	require.NoError(t, err)
	require.Equal(t, "America/Los_Angeles", config.Timezone)
	require.Equal(t, 3, config.ErrorThreshold)
	// Unspecified fields keep their defaults
	require.Equal(t, ":8080", config.ListenAddr)
	require.Equal(t, 10, config.ErrorLogSize)
	require.True(t, config.RetainErrorsOnSuccess)

	loc, err := config.Location()
	require.NoError(t, err)
	require.Equal(t, "America/Los_Angeles", loc.String())
}

func TestParseConfigErrors(t *testing.T) {
	_, err := ParseConfig("/does/not/exist.yaml")
	require.Error(t, err)

	configPath := path.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte("listen_addr: [not, a, string]\n"), 0o644))
	_, err = ParseConfig(configPath)
	require.Error(t, err)
}

func TestConfigLocation(t *testing.T) {
	config := DefaultConfig()
	loc, err := config.Location()
	require.NoError(t, err)
	require.Equal(t, time.UTC, loc)

	config.Timezone = ""
	loc, err = config.Location()
	require.NoError(t, err)
	require.Equal(t, time.UTC, loc)

	config.Timezone = "Mars/OlympusMons"
	_, err = config.Location()
	require.Error(t, err)
}

func TestConfigDurations(t *testing.T) {
	config := DefaultConfig()
	require.Equal(t, 15*time.Second, config.TickInterval())
	require.Equal(t, 60*time.Second, config.FetchTimeout())
	require.Equal(t, 30*24*time.Hour, config.AbandonAfter())
}
