// Package config loads and watches the agent's configuration file
// (config.yaml). This is an ambient concern the expanded spec adds
// (SPEC_FULL.md §4.8); it's grounded on
// marocz-ObsidianStack/agent/internal/config/config.go's Load/defaults/
// validate shape, adapted from the agent's scrape/ship settings to the
// transport's URL/timeouts/cipher settings.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Default values applied when fields are absent from the config file,
// matching spec.md §6's suggested timeout values.
const (
	DefaultComms      = 5 * time.Minute
	DefaultRetryTotal = 1 * time.Hour
	DefaultRetryWait  = 5 * time.Second
	DefaultExpiry     = 0 // zero = no hard expiry
)

// Config is the top-level configuration for cmd/agentd.
type Config struct {
	// Transport holds the settings needed to build a tlscore.Transport.
	Transport TransportConfig `yaml:"transport"`
}

// TransportConfig maps 1:1 to tlscore.Timeouts plus the URL and cipher
// selection tlscore.New/Transmit need.
type TransportConfig struct {
	// URL is the transport-url grammar of spec.md §6, e.g.
	// "tcp://10.0.0.5:4444" (reverse) or "tcp://:4444" (bind).
	URL string `yaml:"url"`

	// Comms is the idle timeout: end the session if no packet arrives for
	// this long.
	Comms time.Duration `yaml:"comms_timeout"`

	// RetryTotal bounds how long socket bring-up keeps retrying.
	RetryTotal time.Duration `yaml:"retry_total"`

	// RetryWait is the sleep between bring-up attempts.
	RetryWait time.Duration `yaml:"retry_wait"`

	// Expiry is the hard session deadline measured from Init; zero means
	// no expiry.
	Expiry time.Duration `yaml:"expiry"`

	// Cipher selects the payload cipher: "none" or "xor".
	Cipher CipherConfig `yaml:"cipher"`
}

// CipherConfig selects and parameterizes the session's payload cipher.
type CipherConfig struct {
	// Mode is one of: none | xor.
	Mode string `yaml:"mode"`

	// KeyEnv names the environment variable holding the cipher key (for xor,
	// cmd/agentd uses the first byte of the variable's value as the key), so
	// the key itself never lives in the config file.
	KeyEnv string `yaml:"key_env"`
}

// Key resolves the cipher key from the environment. Returns empty string if
// KeyEnv is unset.
func (c CipherConfig) Key() string {
	if c.KeyEnv == "" {
		return ""
	}
	return os.Getenv(c.KeyEnv)
}

// Load reads and parses the YAML config file at path. Missing optional
// fields are filled with sensible defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read file: %w", err)
	}

	cfg := defaults()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse yaml: %w", err)
	}

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	return cfg, nil
}

func defaults() *Config {
	return &Config{
		Transport: TransportConfig{
			Comms:      DefaultComms,
			RetryTotal: DefaultRetryTotal,
			RetryWait:  DefaultRetryWait,
			Expiry:     DefaultExpiry,
			Cipher:     CipherConfig{Mode: "none"},
		},
	}
}

func validate(cfg *Config) error {
	if cfg.Transport.URL == "" {
		return fmt.Errorf("transport.url is required")
	}
	if cfg.Transport.Comms <= 0 {
		return fmt.Errorf("transport.comms_timeout must be positive")
	}
	if cfg.Transport.RetryTotal <= 0 {
		return fmt.Errorf("transport.retry_total must be positive")
	}
	if cfg.Transport.RetryWait <= 0 {
		return fmt.Errorf("transport.retry_wait must be positive")
	}
	switch cfg.Transport.Cipher.Mode {
	case "none", "xor":
	default:
		return fmt.Errorf("transport.cipher.mode: unknown mode %q", cfg.Transport.Cipher.Mode)
	}
	if cfg.Transport.Cipher.Mode == "xor" && cfg.Transport.Cipher.KeyEnv == "" {
		return fmt.Errorf("transport.cipher.key_env is required for mode xor")
	}
	return nil
}
