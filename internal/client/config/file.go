package config

import (
	"time"

	"github.com/dmitrijs2005/geocapsule/internal/flagx"
	"github.com/dmitrijs2005/geocapsule/internal/timex"
)

// FileConfig is a DTO used exclusively for decoding the config file, JSON
// or YAML. It relies on timex.Duration so intervals can be written as
// strings like "3s" or as integer nanoseconds. Zero values leave the
// current setting alone.
type FileConfig struct {
	ServerURL           string         `json:"server_url" yaml:"server_url"`
	HealthAddr          string         `json:"health_addr" yaml:"health_addr"`
	DataDir             string         `json:"data_dir" yaml:"data_dir"`
	OnlineCheckInterval timex.Duration `json:"online_check_interval" yaml:"online_check_interval"`
	SyncInterval        timex.Duration `json:"sync_interval" yaml:"sync_interval"`
	SyncPolicy          string         `json:"sync_policy" yaml:"sync_policy"`
	BackoffBase         timex.Duration `json:"backoff_base" yaml:"backoff_base"`
	BackoffMax          timex.Duration `json:"backoff_max" yaml:"backoff_max"`
	MaxAttempts         int            `json:"max_attempts" yaml:"max_attempts"`
	NearbyRadius        float64        `json:"nearby_radius" yaml:"nearby_radius"`
	LogFormat           string         `json:"log_format" yaml:"log_format"`
	LogLevel            string         `json:"log_level" yaml:"log_level"`
}

// parseFile overlays cfg with the file named by -c or -config. Read or
// decode errors panic, as flag errors do.
func parseFile(cfg *Config) {
	path := flagx.ConfigFileFlag()
	if path == "" {
		return
	}

	var fc FileConfig
	if err := flagx.DecodeFile(path, &fc); err != nil {
		panic(err)
	}
	fc.apply(cfg)
}

func (fc *FileConfig) apply(cfg *Config) {
	setString(&cfg.ServerURL, fc.ServerURL)
	setString(&cfg.HealthAddr, fc.HealthAddr)
	setString(&cfg.DataDir, fc.DataDir)
	setString(&cfg.SyncPolicy, fc.SyncPolicy)
	setString(&cfg.LogFormat, fc.LogFormat)
	setString(&cfg.LogLevel, fc.LogLevel)
	setDuration(&cfg.OnlineCheckInterval, fc.OnlineCheckInterval)
	setDuration(&cfg.SyncInterval, fc.SyncInterval)
	setDuration(&cfg.BackoffBase, fc.BackoffBase)
	setDuration(&cfg.BackoffMax, fc.BackoffMax)
	if fc.MaxAttempts > 0 {
		cfg.MaxAttempts = fc.MaxAttempts
	}
	if fc.NearbyRadius > 0 {
		cfg.NearbyRadius = fc.NearbyRadius
	}
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func setDuration(dst *time.Duration, v timex.Duration) {
	if v.Duration > 0 {
		*dst = v.Duration
	}
}
