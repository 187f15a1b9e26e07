package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTemp(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func Test_parseFile(t *testing.T) {
	origArgs := os.Args
	t.Cleanup(func() { os.Args = origArgs })

	t.Run("json overlays only what it sets", func(t *testing.T) {
		os.Args = []string{"testbin", "-config", writeTemp(t, "c.json",
			`{"server_url":"http://json:1","sync_interval":"45s","max_attempts":3}`)}

		var cfg Config
		cfg.LoadDefaults()
		parseFile(&cfg)

		assert.Equal(t, "http://json:1", cfg.ServerURL)
		assert.Equal(t, 45*time.Second, cfg.SyncInterval)
		assert.Equal(t, 3, cfg.MaxAttempts)
		assert.Equal(t, "127.0.0.1:50051", cfg.HealthAddr)
	})

	t.Run("yaml", func(t *testing.T) {
		os.Args = []string{"testbin", "-c", writeTemp(t, "c.yaml",
			"server_url: http://yaml:2\nsync_policy: lww\nlog_format: zap\nbackoff_max: 1m\n")}

		var cfg Config
		cfg.LoadDefaults()
		parseFile(&cfg)

		assert.Equal(t, "http://yaml:2", cfg.ServerURL)
		assert.Equal(t, "lww", cfg.SyncPolicy)
		assert.Equal(t, "zap", cfg.LogFormat)
		assert.Equal(t, time.Minute, cfg.BackoffMax)
	})

	t.Run("no file → no changes", func(t *testing.T) {
		os.Args = []string{"testbin"}
		cfg := Config{ServerURL: "keep"}
		parseFile(&cfg)
		assert.Equal(t, "keep", cfg.ServerURL)
	})

	t.Run("invalid file → panics", func(t *testing.T) {
		os.Args = []string{"testbin", "-config", writeTemp(t, "bad.json", `{ nope`)}
		require.Panics(t, func() { parseFile(&Config{}) })
	})
}
