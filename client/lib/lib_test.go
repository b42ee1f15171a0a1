package lib

import (
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/reportproxy/reportproxy/shared/testutils"

	"github.com/stretchr/testify/require"
)

func TestConfigRoundTripAndEnvOverrides(t *testing.T) {
	defer testutils.BackupAndRestoreEnv("HOME")()
	defer testutils.BackupAndRestoreEnv("REPORTPROXY_SERVER")()
	defer testutils.BackupAndRestoreEnv("REPORTPROXY_ADMIN_USERNAME")()
	defer testutils.BackupAndRestoreEnv("REPORTPROXY_ADMIN_PASSWORD")()
	os.Setenv("HOME", t.TempDir())
	os.Unsetenv("REPORTPROXY_SERVER")
	os.Unsetenv("REPORTPROXY_ADMIN_USERNAME")
	os.Unsetenv("REPORTPROXY_ADMIN_PASSWORD")

	// No config file yet
	config, err := GetConfig()
	require.NoError(t, err)
	require.Equal(t, DefaultServerUrl, config.ServerUrl)
	require.Empty(t, config.AdminUsername)

	require.NoError(t, SetConfig(ClientConfig{ServerUrl: "https://proxy.example.com", AdminUsername: "admin", AdminPassword: "hunter2"}))
	config, err = GetConfig()
	require.NoError(t, err)
	require.Equal(t, "https://proxy.example.com", config.ServerUrl)
	require.Equal(t, "admin", config.AdminUsername)
	require.Equal(t, "hunter2", config.AdminPassword)

	// Env vars beat the config file
	os.Setenv("REPORTPROXY_SERVER", "https://other.example.com")
	os.Setenv("REPORTPROXY_ADMIN_USERNAME", "ci")
	config, err = GetConfig()
	require.NoError(t, err)
	require.Equal(t, "https://other.example.com", config.ServerUrl)
	require.Equal(t, "ci", config.AdminUsername)
	require.Equal(t, "hunter2", config.AdminPassword)
}

func TestApiRequestSendsBasicAuth(t *testing.T) {
	defer testutils.BackupAndRestoreEnv("HOME")()
	defer testutils.BackupAndRestoreEnv("REPORTPROXY_SERVER")()
	defer testutils.BackupAndRestoreEnv("REPORTPROXY_ADMIN_USERNAME")()
	defer testutils.BackupAndRestoreEnv("REPORTPROXY_ADMIN_PASSWORD")()
	os.Setenv("HOME", t.TempDir())

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		username, password, ok := r.BasicAuth()
		if !ok || username != "admin" || password != "hunter2" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Write([]byte("[]"))
	}))
	defer server.Close()
	os.Setenv("REPORTPROXY_SERVER", server.URL)
	os.Setenv("REPORTPROXY_ADMIN_USERNAME", "admin")
	os.Setenv("REPORTPROXY_ADMIN_PASSWORD", "hunter2")

	body, err := ApiGet("/internal/api/v1/list-queries")
	require.NoError(t, err)
	require.Equal(t, "[]", string(body))

	os.Setenv("REPORTPROXY_ADMIN_PASSWORD", "wrong")
	_, err = ApiGet("/internal/api/v1/list-queries")
	require.Error(t, err)
	require.Contains(t, err.Error(), "status_code=401")
}
