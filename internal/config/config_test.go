package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shivanshkc/feedrace/internal/config"
	"github.com/shivanshkc/feedrace/pkg/feed"
	"github.com/shivanshkc/feedrace/pkg/geyser"
)

const systemProgram = "11111111111111111111111111111111"

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func validConfig() config.Config {
	cfg := config.Default()
	cfg.Address = systemProgram
	cfg.Sources = []feed.Source{
		{Name: "node 1", URL: "https://grpc.example.com:443", Token: "t1"},
		{Name: "node 2", URL: "wss://rpc.example.com"},
	}
	return cfg
}

func TestLoad(t *testing.T) {
	t.Run("Reads File And Expands Environment", func(t *testing.T) {
		t.Setenv("NODE1_TOKEN", "from-env")
		path := writeFile(t, t.TempDir(), "feedrace.yaml", `
duration: 30s
address: `+systemProgram+`
commitment: processed
pending_ttl: 1m
sources:
  - name: node 1
    url: https://grpc.example.com
    token: ${NODE1_TOKEN}
  - name: node 2
    url: http://localhost:10000
`)

		cfg, err := config.Load(path)
		require.NoError(t, err)

		assert.Equal(t, 30*time.Second, cfg.Duration)
		assert.Equal(t, systemProgram, cfg.Address)
		assert.Equal(t, "processed", cfg.Commitment)
		assert.Equal(t, time.Minute, cfg.PendingTTL)
		require.Len(t, cfg.Sources, 2)
		assert.Equal(t, "from-env", cfg.Sources[0].Token)
		assert.Equal(t, []string{"node 1", "node 2"}, cfg.SourceNames())
		assert.NoError(t, cfg.Validate())
	})

	t.Run("Defaults Apply To Missing Keys", func(t *testing.T) {
		path := writeFile(t, t.TempDir(), "feedrace.yaml", "address: "+systemProgram+"\n")

		cfg, err := config.Load(path)
		require.NoError(t, err)
		assert.Equal(t, 5*time.Second, cfg.Duration)
		assert.Equal(t, "confirmed", cfg.Commitment)
	})

	t.Run("Environment Overrides File", func(t *testing.T) {
		t.Setenv("FEEDRACE_DURATION", "2m")
		t.Setenv("FEEDRACE_COMMITMENT", "finalized")
		t.Setenv("FEEDRACE_INCLUDE_FAILED", "true")
		path := writeFile(t, t.TempDir(), "feedrace.yaml", "duration: 10s\ncommitment: processed\n")

		cfg, err := config.Load(path)
		require.NoError(t, err)
		assert.Equal(t, 2*time.Minute, cfg.Duration)
		assert.Equal(t, "finalized", cfg.Commitment)
		assert.True(t, cfg.IncludeFailed)
	})

	t.Run("Loads Dotenv From Working Directory", func(t *testing.T) {
		dir := t.TempDir()
		writeFile(t, dir, ".env", "FEEDRACE_TEST_TOKEN=dotenv-secret\n")
		path := writeFile(t, dir, "feedrace.yaml", "sources:\n  - name: a\n    url: http://a\n    token: ${FEEDRACE_TEST_TOKEN}\n")

		wd, err := os.Getwd()
		require.NoError(t, err)
		require.NoError(t, os.Chdir(dir))
		t.Cleanup(func() {
			_ = os.Chdir(wd)
			_ = os.Unsetenv("FEEDRACE_TEST_TOKEN")
		})

		cfg, err := config.Load(path)
		require.NoError(t, err)
		assert.Equal(t, "dotenv-secret", cfg.Sources[0].Token)
	})

	t.Run("Missing File", func(t *testing.T) {
		_, err := config.Load(filepath.Join(t.TempDir(), "absent.yaml"))
		assert.Error(t, err)
	})

	t.Run("Malformed File", func(t *testing.T) {
		path := writeFile(t, t.TempDir(), "feedrace.yaml", "sources: [unterminated\n")
		_, err := config.Load(path)
		assert.Error(t, err)
	})
}

func TestValidate(t *testing.T) {
	testCases := []struct {
		name    string
		mutate  func(c *config.Config)
		wantErr error
	}{
		{name: "Valid", mutate: func(c *config.Config) {}},
		{name: "One Source", mutate: func(c *config.Config) { c.Sources = c.Sources[:1] }, wantErr: config.ErrTooFewSources},
		{name: "No Sources", mutate: func(c *config.Config) { c.Sources = nil }, wantErr: config.ErrTooFewSources},
		{name: "Duplicate Names", mutate: func(c *config.Config) { c.Sources[1].Name = c.Sources[0].Name }, wantErr: config.ErrInvalid},
		{name: "Empty Name", mutate: func(c *config.Config) { c.Sources[1].Name = "" }, wantErr: config.ErrInvalid},
		{name: "Bad Scheme", mutate: func(c *config.Config) { c.Sources[0].URL = "tcp://host:1" }, wantErr: config.ErrInvalid},
		{name: "No Host", mutate: func(c *config.Config) { c.Sources[0].URL = "grpc.example.com" }, wantErr: config.ErrInvalid},
		{name: "Zero Duration", mutate: func(c *config.Config) { c.Duration = 0 }, wantErr: config.ErrInvalid},
		{name: "Negative TTL", mutate: func(c *config.Config) { c.PendingTTL = -time.Second }, wantErr: config.ErrInvalid},
		{name: "Bad Address", mutate: func(c *config.Config) { c.Address = "not-an-address" }, wantErr: config.ErrInvalid},
		{name: "Bad Commitment", mutate: func(c *config.Config) { c.Commitment = "rooted" }, wantErr: config.ErrInvalid},
		{name: "One Source With Bad Address", mutate: func(c *config.Config) {
			c.Sources = c.Sources[:1]
			c.Address = "not-an-address"
		}, wantErr: config.ErrInvalid},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := validConfig()
			tc.mutate(&cfg)

			err := cfg.Validate()
			if tc.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tc.wantErr)
		})
	}
}

func TestFilter(t *testing.T) {
	cfg := validConfig()
	cfg.Commitment = "finalized"
	cfg.IncludeFailed = true

	assert.Equal(t, feed.Filter{Account: systemProgram, Commitment: geyser.Finalized, IncludeFailed: true}, cfg.Filter())
}
