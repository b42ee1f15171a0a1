package shared

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Limits carried over from the upstream reporting API's practical bounds.
const (
	MinRefreshIntervalSeconds = 15
	MaxRefreshIntervalSeconds = 2505600 // 29 days
	MaxNameLength             = 115
	MaxRequestLength          = 2000
)

// Config is the immutable runtime configuration. It is loaded once in main
// and passed explicitly into every component constructor.
type Config struct {
	ListenAddr string `yaml:"listen_addr"`

	// Timezone is the IANA timezone used to resolve relative date
	// placeholders. Calendar-day arithmetic happens in this zone.
	Timezone string `yaml:"timezone"`

	TickIntervalSeconds   int     `yaml:"tick_interval_seconds"`
	SchedulerWorkers      int     `yaml:"scheduler_workers"`
	ErrorThreshold        int     `yaml:"error_threshold"`
	ErrorLogSize          int     `yaml:"error_log_size"`
	AbandonAfterSeconds   int     `yaml:"abandon_after_seconds"`
	FetchTimeoutSeconds   int     `yaml:"fetch_timeout_seconds"`
	UpstreamRatePerSec    float64 `yaml:"upstream_rate_per_sec"`
	UpstreamRateBurst     int     `yaml:"upstream_rate_burst"`
	RetainErrorsOnSuccess bool    `yaml:"retain_errors_on_success"`
}

func DefaultConfig() Config {
	return Config{
		ListenAddr:            ":8080",
		Timezone:              "UTC",
		TickIntervalSeconds:   15,
		SchedulerWorkers:      4,
		ErrorThreshold:        10,
		ErrorLogSize:          10,
		AbandonAfterSeconds:   30 * 24 * 60 * 60,
		FetchTimeoutSeconds:   60,
		UpstreamRatePerSec:    5,
		UpstreamRateBurst:     10,
		RetainErrorsOnSuccess: true,
	}
}

// ParseConfig reads a YAML config file layered on top of the defaults.
func ParseConfig(path string) (Config, error) {
	config := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &config); err != nil {
		return Config{}, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return config, nil
}

func (c Config) Location() (*time.Location, error) {
	if c.Timezone == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid timezone %#v: %w", c.Timezone, err)
	}
	return loc, nil
}

func (c Config) TickInterval() time.Duration {
	return time.Duration(c.TickIntervalSeconds) * time.Second
}

func (c Config) AbandonAfter() time.Duration {
	return time.Duration(c.AbandonAfterSeconds) * time.Second
}

func (c Config) FetchTimeout() time.Duration {
	return time.Duration(c.FetchTimeoutSeconds) * time.Second
}
