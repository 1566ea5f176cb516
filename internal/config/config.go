// Package config loads the benchmark configuration: the sources to race and
// what to watch on them.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"strconv"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/shivanshkc/feedrace/pkg/feed"
	"github.com/shivanshkc/feedrace/pkg/geyser"
)

// MinSources is the smallest number of sources a race makes sense with.
const MinSources = 2

var (
	// ErrTooFewSources is returned when fewer than MinSources sources are configured.
	ErrTooFewSources = errors.New("too few sources")
	// ErrInvalid is returned for every other validation failure.
	ErrInvalid = errors.New("invalid configuration")
)

// Config is the full benchmark configuration.
type Config struct {
	// Duration is the length of the benchmark window.
	Duration time.Duration `yaml:"duration"`
	// Address is the base58 account every raced transaction must mention.
	Address       string `yaml:"address"`
	Commitment    string `yaml:"commitment"`
	IncludeFailed bool   `yaml:"include_failed"`
	// PendingTTL, when positive, expires entries that never reach quorum.
	PendingTTL time.Duration `yaml:"pending_ttl"`
	// Sources in ranking tie-break order.
	Sources []feed.Source `yaml:"sources"`
}

// Default returns the configuration used for keys absent from the file.
func Default() Config {
	return Config{
		Duration:   5 * time.Second,
		Commitment: "confirmed",
	}
}

// Load reads .env (if present) into the environment, then the YAML file at
// path with ${VAR} references expanded, then applies FEEDRACE_* overrides.
// The result is not validated.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(raw))), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	cfg.Duration = getDurationEnv("FEEDRACE_DURATION", cfg.Duration)
	cfg.Address = getEnv("FEEDRACE_ADDRESS", cfg.Address)
	cfg.Commitment = getEnv("FEEDRACE_COMMITMENT", cfg.Commitment)
	cfg.IncludeFailed = getBoolEnv("FEEDRACE_INCLUDE_FAILED", cfg.IncludeFailed)
	cfg.PendingTTL = getDurationEnv("FEEDRACE_PENDING_TTL", cfg.PendingTTL)

	return &cfg, nil
}

// Validate checks the configuration before any connection is made.
// ErrTooFewSources is only returned when everything else is valid.
func (c *Config) Validate() error {
	names := make(map[string]struct{}, len(c.Sources))
	for i, src := range c.Sources {
		if src.Name == "" {
			return fmt.Errorf("%w: source %d has no name", ErrInvalid, i+1)
		}
		if _, dup := names[src.Name]; dup {
			return fmt.Errorf("%w: source name %q is used more than once", ErrInvalid, src.Name)
		}
		names[src.Name] = struct{}{}

		u, err := url.Parse(src.URL)
		if err != nil || u.Host == "" {
			return fmt.Errorf("%w: source %q has an invalid url %q", ErrInvalid, src.Name, src.URL)
		}
		switch u.Scheme {
		case "http", "https", "ws", "wss":
		default:
			return fmt.Errorf("%w: source %q: url scheme must be http, https, ws or wss", ErrInvalid, src.Name)
		}
	}

	if c.Duration <= 0 {
		return fmt.Errorf("%w: duration must be positive", ErrInvalid)
	}
	if c.PendingTTL < 0 {
		return fmt.Errorf("%w: pending_ttl must not be negative", ErrInvalid)
	}
	if _, err := solana.PublicKeyFromBase58(c.Address); err != nil {
		return fmt.Errorf("%w: address %q is not a valid account: %v", ErrInvalid, c.Address, err)
	}
	if _, err := geyser.ParseCommitment(c.Commitment); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}

	// Checked last so callers that need fewer sources can tolerate it.
	if len(c.Sources) < MinSources {
		return fmt.Errorf("%w: you must use a minimum of %d sources, got %d", ErrTooFewSources, MinSources, len(c.Sources))
	}

	return nil
}

// Filter returns the subscription filter shared by every source.
// It must only be called on a validated Config.
func (c *Config) Filter() feed.Filter {
	commitment, _ := geyser.ParseCommitment(c.Commitment)
	return feed.Filter{
		Account:       c.Address,
		Commitment:    commitment,
		IncludeFailed: c.IncludeFailed,
	}
}

// SourceNames returns the source names in configuration order.
func (c *Config) SourceNames() []string {
	names := make([]string, len(c.Sources))
	for i, src := range c.Sources {
		names[i] = src.Name
	}
	return names
}

func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value, exists := os.LookupEnv(key); exists {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value, exists := os.LookupEnv(key); exists {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}
