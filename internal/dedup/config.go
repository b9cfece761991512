package dedup

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Config holds the tunables of the duplicate detector. Values are passed
// explicitly into every call; nothing is read from package state.
type Config struct {
	// TextThreshold is the minimum question-text similarity that counts as a signal.
	TextThreshold float64 `yaml:"text_threshold" json:"text_threshold"`

	// OptionsThreshold is the minimum similarity for a single option to count as matching.
	OptionsThreshold float64 `yaml:"options_threshold" json:"options_threshold"`

	// MinMatches is the number of independent signals a pair needs to be kept as a match.
	MinMatches int `yaml:"min_matches" json:"min_matches"`

	// TopMatches caps the ranked matches kept per candidate.
	TopMatches int `yaml:"top_matches" json:"top_matches"`

	// DuplicateScore is the weighted score the best match needs for the
	// candidate to be flagged as a duplicate.
	DuplicateScore float64 `yaml:"duplicate_score" json:"duplicate_score"`

	// TextWeight and OptionsWeight combine into the overall score.
	TextWeight    float64 `yaml:"text_weight" json:"text_weight"`
	OptionsWeight float64 `yaml:"options_weight" json:"options_weight"`

	// CheckAcrossParts compares records from different exam parts.
	CheckAcrossParts bool `yaml:"check_across_parts" json:"check_across_parts"`

	// YieldEvery is the number of candidates processed between scheduling points.
	YieldEvery int `yaml:"yield_every" json:"yield_every"`
}

// DefaultConfig returns the empirically tuned defaults.
func DefaultConfig() Config {
	return Config{
		TextThreshold:    0.7,
		OptionsThreshold: 0.6,
		MinMatches:       2,
		TopMatches:       3,
		DuplicateScore:   0.8,
		TextWeight:       0.6,
		OptionsWeight:    0.4,
		CheckAcrossParts: false,
		YieldEvery:       10,
	}
}

// Validate checks if the configuration has valid values
func (c Config) Validate() error {
	ratios := []struct {
		name string
		v    float64
	}{
		{"text_threshold", c.TextThreshold},
		{"options_threshold", c.OptionsThreshold},
		{"duplicate_score", c.DuplicateScore},
		{"text_weight", c.TextWeight},
		{"options_weight", c.OptionsWeight},
	}
	for _, r := range ratios {
		if !(r.v >= 0 && r.v <= 1) {
			return fmt.Errorf("%w: %s must be between 0.0 and 1.0 (got %.2f)", ErrInvalidConfig, r.name, r.v)
		}
	}
	if sum := c.TextWeight + c.OptionsWeight; !(sum >= 0.999 && sum <= 1.001) {
		return fmt.Errorf("%w: text_weight + options_weight must equal 1.0 (got %.2f)", ErrInvalidConfig, sum)
	}
	if c.MinMatches < 0 {
		return fmt.Errorf("%w: min_matches cannot be negative (got %d)", ErrInvalidConfig, c.MinMatches)
	}
	if c.TopMatches <= 0 {
		return fmt.Errorf("%w: top_matches must be positive (got %d)", ErrInvalidConfig, c.TopMatches)
	}
	if c.TopMatches > 50 {
		return fmt.Errorf("%w: top_matches too large (got %d, max 50)", ErrInvalidConfig, c.TopMatches)
	}
	if c.YieldEvery <= 0 {
		return fmt.Errorf("%w: yield_every must be positive (got %d)", ErrInvalidConfig, c.YieldEvery)
	}
	return nil
}

// String returns a human-readable representation of the config
func (c Config) String() string {
	return fmt.Sprintf(
		"Config{Text: %.2f, Options: %.2f, MinMatches: %d, TopMatches: %d, Duplicate: %.2f, "+
			"Weights: %.2f/%.2f, AcrossParts: %t, YieldEvery: %d}",
		c.TextThreshold, c.OptionsThreshold, c.MinMatches, c.TopMatches, c.DuplicateScore,
		c.TextWeight, c.OptionsWeight, c.CheckAcrossParts, c.YieldEvery,
	)
}

// Overrides carries optional per-request adjustments. Nil fields keep the base value.
type Overrides struct {
	TextThreshold    *float64 `json:"text_threshold,omitempty"`
	OptionsThreshold *float64 `json:"options_threshold,omitempty"`
	MinMatches       *int     `json:"min_matches,omitempty"`
	TopMatches       *int     `json:"top_matches,omitempty"`
	CheckAcrossParts *bool    `json:"check_across_parts,omitempty"`
}

// Apply returns a copy of c with the overrides applied and validated.
func (o Overrides) Apply(c Config) (Config, error) {
	if o.TextThreshold != nil {
		c.TextThreshold = *o.TextThreshold
	}
	if o.OptionsThreshold != nil {
		c.OptionsThreshold = *o.OptionsThreshold
	}
	if o.MinMatches != nil {
		c.MinMatches = *o.MinMatches
	}
	if o.TopMatches != nil {
		c.TopMatches = *o.TopMatches
	}
	if o.CheckAcrossParts != nil {
		c.CheckAcrossParts = *o.CheckAcrossParts
	}
	if err := c.Validate(); err != nil {
		return c, err
	}
	return c, nil
}

// LoadConfigFile reads a YAML file on top of DefaultConfig. Keys missing from
// the file keep their default value.
func LoadConfigFile(path string) (Config, error) {
	cfg := DefaultConfig()
	raw, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read dedup config: %w", err)
	}
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return cfg, fmt.Errorf("%w: parse %s: %v", ErrInvalidConfig, path, err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// ConfigFromEnv overrides base with environment variables:
//   - DEDUP_TEXT_THRESHOLD, DEDUP_OPTIONS_THRESHOLD, DEDUP_DUPLICATE_SCORE (0.0-1.0)
//   - DEDUP_MIN_MATCHES, DEDUP_TOP_MATCHES, DEDUP_YIELD_EVERY (integers)
//   - DEDUP_CHECK_ACROSS_PARTS (bool)
func ConfigFromEnv(base Config) (Config, error) {
	cfg := base
	if err := parseEnvFloat("DEDUP_TEXT_THRESHOLD", &cfg.TextThreshold); err != nil {
		return cfg, err
	}
	if err := parseEnvFloat("DEDUP_OPTIONS_THRESHOLD", &cfg.OptionsThreshold); err != nil {
		return cfg, err
	}
	if err := parseEnvFloat("DEDUP_DUPLICATE_SCORE", &cfg.DuplicateScore); err != nil {
		return cfg, err
	}
	if err := parseEnvInt("DEDUP_MIN_MATCHES", &cfg.MinMatches); err != nil {
		return cfg, err
	}
	if err := parseEnvInt("DEDUP_TOP_MATCHES", &cfg.TopMatches); err != nil {
		return cfg, err
	}
	if err := parseEnvInt("DEDUP_YIELD_EVERY", &cfg.YieldEvery); err != nil {
		return cfg, err
	}
	if err := parseEnvBool("DEDUP_CHECK_ACROSS_PARTS", &cfg.CheckAcrossParts); err != nil {
		return cfg, err
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid dedup configuration from environment: %w", err)
	}
	return cfg, nil
}

func parseEnvFloat(key string, dest *float64) error {
	value := os.Getenv(key)
	if value == "" {
		return nil
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return fmt.Errorf("%w: invalid value for %s: %v", ErrInvalidConfig, key, err)
	}
	*dest = parsed
	return nil
}

func parseEnvInt(key string, dest *int) error {
	value := os.Getenv(key)
	if value == "" {
		return nil
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fmt.Errorf("%w: invalid value for %s: %v", ErrInvalidConfig, key, err)
	}
	*dest = parsed
	return nil
}

func parseEnvBool(key string, dest *bool) error {
	value := os.Getenv(key)
	if value == "" {
		return nil
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return fmt.Errorf("%w: invalid value for %s: %v", ErrInvalidConfig, key, err)
	}
	*dest = parsed
	return nil
}
