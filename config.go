package askrouter

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	defaultTimezone      = "Asia/Seoul"
	defaultCallTimeout   = 30 * time.Second
	defaultRetentionDays = 90
)

// Duration wraps time.Duration so YAML configs can say "30s" or "5m".
type Duration time.Duration

// UnmarshalYAML parses a Go duration string.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return fmt.Errorf("askrouter: config: duration must be a string like \"30s\": %w", err)
	}
	dur, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("askrouter: config: parse duration %q: %w", s, err)
	}
	*d = Duration(dur)
	return nil
}

// MarshalYAML renders the duration string form.
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// Config is the top-level orchestrator configuration. The order of Providers
// is the failover priority: first entry is tried first.
type Config struct {
	Timezone         string           `yaml:"timezone"`
	CallTimeout      Duration         `yaml:"call_timeout"`
	FailureThreshold int              `yaml:"failure_threshold"`
	Cooldown         Duration         `yaml:"cooldown"`
	RetentionDays    int              `yaml:"retention_days"`
	DisableFallback  bool             `yaml:"disable_fallback"`
	SystemPrompt     string           `yaml:"system_prompt"`
	Providers        []ProviderConfig `yaml:"providers"`
}

// ProviderConfig configures one provider account.
type ProviderConfig struct {
	ID            string   `yaml:"id"`
	Kind          string   `yaml:"kind"` // adapter name: "gemini", "openai", ...
	Model         string   `yaml:"model"`
	Auth          Auth     `yaml:"auth"`
	DailyRequests int64    `yaml:"daily_requests"` // 0 = unmetered
	DailyTokens   int64    `yaml:"daily_tokens"`   // 0 = no token ceiling
	MaxTokens     int      `yaml:"max_tokens"`
	Temperature   *float64 `yaml:"temperature"`
}

// LoadConfig reads and parses a YAML config file. Environment variables in
// the format ${VAR} are expanded before parsing.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("askrouter: read config: %w", err)
	}

	expanded := os.ExpandEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return Config{}, fmt.Errorf("askrouter: parse config: %w", err)
	}

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Timezone == "" {
		c.Timezone = defaultTimezone
	}
	if c.CallTimeout <= 0 {
		c.CallTimeout = Duration(defaultCallTimeout)
	}
	if c.RetentionDays <= 0 {
		c.RetentionDays = defaultRetentionDays
	}
	// FailureThreshold and Cooldown fall back to the health tracker defaults.
}

// Validate checks the config for required fields and consistency. An empty
// provider list is valid only when the fallback is enabled (offline mode).
func (c Config) Validate() error {
	if len(c.Providers) == 0 && c.DisableFallback {
		return fmt.Errorf("askrouter: config: no providers and fallback disabled")
	}

	if _, err := time.LoadLocation(c.Timezone); c.Timezone != "" && err != nil {
		return fmt.Errorf("askrouter: config: invalid timezone %q: %w", c.Timezone, err)
	}

	ids := make(map[string]bool, len(c.Providers))
	for i, p := range c.Providers {
		if p.ID == "" {
			return fmt.Errorf("askrouter: config: providers[%d]: id is required", i)
		}
		if ids[p.ID] {
			return fmt.Errorf("askrouter: config: duplicate provider id %q", p.ID)
		}
		ids[p.ID] = true

		if p.Kind == "" {
			return fmt.Errorf("askrouter: config: providers[%d] (%s): kind is required", i, p.ID)
		}
		if p.Model == "" {
			return fmt.Errorf("askrouter: config: providers[%d] (%s): model is required", i, p.ID)
		}
		if p.DailyRequests < 0 || p.DailyTokens < 0 {
			return fmt.Errorf("askrouter: config: providers[%d] (%s): negative daily limit", i, p.ID)
		}
	}

	return nil
}

// Location resolves the configured timezone.
func (c Config) Location() (*time.Location, error) {
	if c.Timezone == "" {
		return time.LoadLocation(defaultTimezone)
	}
	return time.LoadLocation(c.Timezone)
}

// limits extracts the per-provider quota policy, loaded once at startup and
// shared read-only afterwards.
func (c Config) limits() map[string]QuotaLimit {
	m := make(map[string]QuotaLimit, len(c.Providers))
	for _, p := range c.Providers {
		m[p.ID] = QuotaLimit{DailyRequests: p.DailyRequests, DailyTokens: p.DailyTokens}
	}
	return m
}
