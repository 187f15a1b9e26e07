// Package config loads runtime configuration for the GeoCapsule CLI.
//
// Sources & precedence
//
//  1. Built-in defaults (see (*Config).LoadDefaults).
//  2. Optional config file selected via -c or -config. Files ending in
//     .yml/.yaml are YAML, anything else JSON.
//  3. Command-line flags (see parseFlags), which override earlier values.
//
// # File schema
//
// Intervals accept strings like "3s" or integer nanoseconds:
//
//	server_url: http://127.0.0.1:8080
//	health_addr: 127.0.0.1:50051
//	data_dir: .geocapsule
//	sync_interval: 30s
//	sync_policy: hold
//	log_format: zap
//
// This package does not read environment variables.
package config
