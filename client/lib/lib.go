package lib

import (
	"bytes"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"path"
	"runtime"
	"time"

	"github.com/reportproxy/reportproxy/shared"

	"github.com/fatih/color"
	"github.com/rodaine/table"
	"gopkg.in/yaml.v3"
)

var Version string = "Unknown"

const DefaultServerUrl = "http://localhost:8080"

func CheckFatalError(err error) {
	if err != nil {
		_, filename, line, _ := runtime.Caller(1)
		log.Fatalf("reportproxy v0.%s fatal error at %s:%d: %v", Version, filename, line, err)
	}
}

// ClientConfig holds the admin CLI's connection settings. It lives at
// ~/.reportproxy.yaml; every field can be overridden via env vars so the CLI
// works in CI without a config file.
type ClientConfig struct {
	ServerUrl     string `yaml:"server_url"`
	AdminUsername string `yaml:"admin_username"`
	AdminPassword string `yaml:"admin_password"`
}

func GetConfig() (ClientConfig, error) {
	config := ClientConfig{ServerUrl: DefaultServerUrl}
	homedir, err := os.UserHomeDir()
	if err != nil {
		return config, fmt.Errorf("failed to retrieve homedir: %w", err)
	}
	data, err := os.ReadFile(path.Join(homedir, ".reportproxy.yaml"))
	if err == nil {
		if err := yaml.Unmarshal(data, &config); err != nil {
			return config, fmt.Errorf("failed to parse config file: %w", err)
		}
	} else if !os.IsNotExist(err) {
		return config, fmt.Errorf("failed to read config file: %w", err)
	}
	if v := os.Getenv("REPORTPROXY_SERVER"); v != "" {
		config.ServerUrl = v
	}
	if v := os.Getenv("REPORTPROXY_ADMIN_USERNAME"); v != "" {
		config.AdminUsername = v
	}
	if v := os.Getenv("REPORTPROXY_ADMIN_PASSWORD"); v != "" {
		config.AdminPassword = v
	}
	return config, nil
}

func SetConfig(config ClientConfig) error {
	data, err := yaml.Marshal(config)
	if err != nil {
		return fmt.Errorf("failed to serialize config: %w", err)
	}
	homedir, err := os.UserHomeDir()
	if err != nil {
		return fmt.Errorf("failed to retrieve homedir: %w", err)
	}
	return os.WriteFile(path.Join(homedir, ".reportproxy.yaml"), data, 0o600)
}

func ApiGet(path string) ([]byte, error) {
	return apiRequest(http.MethodGet, path, "", nil)
}

func ApiPost(path, contentType string, reqBody []byte) ([]byte, error) {
	return apiRequest(http.MethodPost, path, contentType, reqBody)
}

func apiRequest(method, path, contentType string, reqBody []byte) ([]byte, error) {
	config, err := GetConfig()
	if err != nil {
		return nil, err
	}
	start := time.Now()
	req, err := http.NewRequest(method, config.ServerUrl+path, bytes.NewReader(reqBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create %s: %w", method, err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if config.AdminUsername != "" {
		req.SetBasicAuth(config.AdminUsername, config.AdminPassword)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to %s %s%s: %w", method, config.ServerUrl, path, err)
	}
	defer resp.Body.Close()
	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body from %s %s%s: %w", method, config.ServerUrl, path, err)
	}
	if resp.StatusCode != 200 {
		return nil, fmt.Errorf("failed to %s %s%s: status_code=%d body=%s", method, config.ServerUrl, path, resp.StatusCode, string(respBody))
	}
	duration := time.Since(start)
	shared.GetLogger().Infof("%s(%#v): %d bytes - %s\n", method, config.ServerUrl+path, len(respBody), duration.String())
	return respBody, nil
}

func DisplayQueries(queries []*shared.QueryDefinition) {
	headerFmt := color.New(color.FgGreen, color.Underline).SprintfFunc()
	tbl := table.New("Query Id", "Name", "Owner", "State", "Enabled", "Interval", "Formats", "Public Requests")
	tbl.WithHeaderFormatter(headerFmt)
	for _, query := range queries {
		tbl.AddRow(query.QueryId, query.Name, query.OwnerRef, query.State(), query.Enabled, query.RefreshInterval, query.Formats, query.PublicRequestCount)
	}
	tbl.Print()
}

func DisplayErrors(queryErrors []*shared.QueryError) {
	headerFmt := color.New(color.FgRed, color.Underline).SprintfFunc()
	tbl := table.New("Timestamp", "Message")
	tbl.WithHeaderFormatter(headerFmt)
	for _, queryError := range queryErrors {
		tbl.AddRow(queryError.Timestamp.Format("Jan 2 2006 15:04:05 MST"), queryError.Message)
	}
	tbl.Print()
}
