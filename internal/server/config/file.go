package config

import (
	"github.com/dmitrijs2005/geocapsule/internal/flagx"
	"github.com/dmitrijs2005/geocapsule/internal/timex"
)

// FileConfig is the DTO for the optional config file (JSON, or YAML for
// .yml/.yaml). Durations use timex.Duration so both "15m" and integer
// nanoseconds work. Empty fields keep the current value.
type FileConfig struct {
	EndpointAddrHTTP             string         `json:"endpoint_addr_http" yaml:"endpoint_addr_http"`
	EndpointAddrGRPC             string         `json:"endpoint_addr_grpc" yaml:"endpoint_addr_grpc"`
	DatabaseDSN                  string         `json:"database_dsn" yaml:"database_dsn"`
	SecretKey                    string         `json:"secret_key" yaml:"secret_key"`
	AccessTokenValidityDuration  timex.Duration `json:"access_token_validity_duration" yaml:"access_token_validity_duration"`
	RefreshTokenValidityDuration timex.Duration `json:"refresh_token_validity_duration" yaml:"refresh_token_validity_duration"`
	S3RootUser                   string         `json:"s3_root_user" yaml:"s3_root_user"`
	S3RootPassword               string         `json:"s3_root_password" yaml:"s3_root_password"`
	S3Bucket                     string         `json:"s3_bucket" yaml:"s3_bucket"`
	S3Region                     string         `json:"s3_region" yaml:"s3_region"`
	S3BaseEndpoint               string         `json:"s3_base_endpoint" yaml:"s3_base_endpoint"`
	PresignExpiry                timex.Duration `json:"presign_expiry" yaml:"presign_expiry"`
	RedisAddr                    string         `json:"redis_addr" yaml:"redis_addr"`
	LogFormat                    string         `json:"log_format" yaml:"log_format"`
	LogLevel                     string         `json:"log_level" yaml:"log_level"`
}

// parseFile loads the file named by -c or -config, if any, and panics if
// it cannot be read or decoded.
func parseFile(config *Config) {
	path := flagx.ConfigFileFlag()
	if path == "" {
		return
	}

	c := &FileConfig{}
	if err := flagx.DecodeFile(path, c); err != nil {
		panic(err)
	}

	for dst, v := range map[*string]string{
		&config.EndpointAddrHTTP: c.EndpointAddrHTTP,
		&config.EndpointAddrGRPC: c.EndpointAddrGRPC,
		&config.DatabaseDSN:      c.DatabaseDSN,
		&config.SecretKey:        c.SecretKey,
		&config.S3RootUser:       c.S3RootUser,
		&config.S3RootPassword:   c.S3RootPassword,
		&config.S3Bucket:         c.S3Bucket,
		&config.S3Region:         c.S3Region,
		&config.S3BaseEndpoint:   c.S3BaseEndpoint,
		&config.RedisAddr:        c.RedisAddr,
		&config.LogFormat:        c.LogFormat,
		&config.LogLevel:         c.LogLevel,
	} {
		if v != "" {
			*dst = v
		}
	}

	if c.AccessTokenValidityDuration.Duration > 0 {
		config.AccessTokenValidityDuration = c.AccessTokenValidityDuration.Duration
	}
	if c.RefreshTokenValidityDuration.Duration > 0 {
		config.RefreshTokenValidityDuration = c.RefreshTokenValidityDuration.Duration
	}
	if c.PresignExpiry.Duration > 0 {
		config.PresignExpiry = c.PresignExpiry.Duration
	}
}
