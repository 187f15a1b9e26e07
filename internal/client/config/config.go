package config

import (
	"time"

	"github.com/dmitrijs2005/geocapsule/internal/client/syncer"
)

// Config holds runtime settings for the GeoCapsule CLI.
//
// Fields:
//   - ServerURL: base URL of the REST backend.
//   - HealthAddr: host:port of the backend gRPC health endpoint.
//   - DataDir: directory for the local database and captured media.
//   - OnlineCheckInterval: how often the client probes server reachability.
//   - SyncInterval: period of background sync passes.
//   - SyncPolicy: "hold" or "lww", see syncer.Policy.
//   - BackoffBase / BackoffMax / MaxAttempts: retry schedule for failing notes.
//   - NearbyRadius: default radius in meters for "around me" queries.
//   - LogFormat / LogLevel: see logging.New.
type Config struct {
	ServerURL           string
	HealthAddr          string
	DataDir             string
	OnlineCheckInterval time.Duration
	SyncInterval        time.Duration
	SyncPolicy          string
	BackoffBase         time.Duration
	BackoffMax          time.Duration
	MaxAttempts         int
	NearbyRadius        float64
	LogFormat           string
	LogLevel            string
}

// LoadDefaults populates c with sensible defaults.
func (c *Config) LoadDefaults() {
	d := syncer.DefaultConfig()

	c.ServerURL = "http://127.0.0.1:8080"
	c.HealthAddr = "127.0.0.1:50051"
	c.DataDir = ".geocapsule"
	c.OnlineCheckInterval = d.ProbeInterval
	c.SyncInterval = d.Interval
	c.SyncPolicy = string(d.Policy)
	c.BackoffBase = d.BackoffBase
	c.BackoffMax = d.BackoffMax
	c.MaxAttempts = d.MaxAttempts
	c.NearbyRadius = 500
	c.LogFormat = "text"
	c.LogLevel = "info"
}

// Syncer converts the sync settings into an engine config.
func (c *Config) Syncer() syncer.Config {
	return syncer.Config{
		Policy:        syncer.Policy(c.SyncPolicy),
		Interval:      c.SyncInterval,
		ProbeInterval: c.OnlineCheckInterval,
		BackoffBase:   c.BackoffBase,
		BackoffMax:    c.BackoffMax,
		MaxAttempts:   c.MaxAttempts,
	}
}

// LoadConfig constructs a Config, applies defaults, then overlays values from
// a config file (if given) and command-line flags (if present). Later
// sources take precedence over earlier ones.
func LoadConfig() *Config {
	cfg := &Config{}
	cfg.LoadDefaults()
	parseFile(cfg)
	parseFlags(cfg)
	return cfg
}
