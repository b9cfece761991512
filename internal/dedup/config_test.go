package dedup

import (
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 0.7, cfg.TextThreshold)
	assert.Equal(t, 0.6, cfg.OptionsThreshold)
	assert.Equal(t, 2, cfg.MinMatches)
	assert.Equal(t, 3, cfg.TopMatches)
	assert.Equal(t, 0.8, cfg.DuplicateScore)
	assert.False(t, cfg.CheckAcrossParts)
	assert.Equal(t, 10, cfg.YieldEvery)
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
	}{
		{"text threshold above one", func(c *Config) { c.TextThreshold = 1.5 }},
		{"negative options threshold", func(c *Config) { c.OptionsThreshold = -0.1 }},
		{"weights do not sum to one", func(c *Config) { c.TextWeight = 0.5 }},
		{"text threshold is NaN", func(c *Config) { c.TextThreshold = math.NaN() }},
		{"duplicate score is NaN", func(c *Config) { c.DuplicateScore = math.NaN() }},
		{"negative min matches", func(c *Config) { c.MinMatches = -1 }},
		{"zero top matches", func(c *Config) { c.TopMatches = 0 }},
		{"too many top matches", func(c *Config) { c.TopMatches = 51 }},
		{"zero yield interval", func(c *Config) { c.YieldEvery = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.modify(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalidConfig))
		})
	}
}

func TestConfigString(t *testing.T) {
	s := DefaultConfig().String()
	assert.Contains(t, s, "Text: 0.70")
	assert.Contains(t, s, "MinMatches: 2")
}

func TestOverridesApply(t *testing.T) {
	text := 0.9
	top := 5
	across := true

	cfg, err := Overrides{TextThreshold: &text, TopMatches: &top, CheckAcrossParts: &across}.Apply(DefaultConfig())
	require.NoError(t, err)
	assert.Equal(t, 0.9, cfg.TextThreshold)
	assert.Equal(t, 5, cfg.TopMatches)
	assert.True(t, cfg.CheckAcrossParts)
	assert.Equal(t, 0.6, cfg.OptionsThreshold)

	bad := 2.0
	_, err = Overrides{OptionsThreshold: &bad}.Apply(DefaultConfig())
	assert.True(t, errors.Is(err, ErrInvalidConfig))
}

func TestConfigFromEnv(t *testing.T) {
	t.Setenv("DEDUP_TEXT_THRESHOLD", "0.85")
	t.Setenv("DEDUP_MIN_MATCHES", "3")
	t.Setenv("DEDUP_CHECK_ACROSS_PARTS", "true")

	cfg, err := ConfigFromEnv(DefaultConfig())
	require.NoError(t, err)
	assert.Equal(t, 0.85, cfg.TextThreshold)
	assert.Equal(t, 3, cfg.MinMatches)
	assert.True(t, cfg.CheckAcrossParts)
	assert.Equal(t, 3, cfg.TopMatches)
}

func TestConfigFromEnvInvalid(t *testing.T) {
	tests := map[string]string{
		"DEDUP_OPTIONS_THRESHOLD":  "high",
		"DEDUP_TOP_MATCHES":        "3.5",
		"DEDUP_CHECK_ACROSS_PARTS": "sometimes",
		"DEDUP_DUPLICATE_SCORE":    "1.2",
		"DEDUP_TEXT_THRESHOLD":     "NaN",
	}
	for key, value := range tests {
		t.Run(key, func(t *testing.T) {
			t.Setenv(key, value)
			_, err := ConfigFromEnv(DefaultConfig())
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalidConfig))
		})
	}
}

func TestLoadConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dedup.yaml")
	content := `text_threshold: 0.75
top_matches: 5
check_across_parts: true
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := LoadConfigFile(path)
	require.NoError(t, err)
	assert.Equal(t, 0.75, cfg.TextThreshold)
	assert.Equal(t, 5, cfg.TopMatches)
	assert.True(t, cfg.CheckAcrossParts)
	assert.Equal(t, 0.8, cfg.DuplicateScore, "missing keys keep defaults")
}

func TestLoadConfigFileErrors(t *testing.T) {
	_, err := LoadConfigFile(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)

	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("text_weight: 0.9\n"), 0o644))
	_, err = LoadConfigFile(path)
	assert.True(t, errors.Is(err, ErrInvalidConfig))

	nan := filepath.Join(t.TempDir(), "nan.yaml")
	require.NoError(t, os.WriteFile(nan, []byte("text_threshold: .nan\n"), 0o644))
	_, err = LoadConfigFile(nan)
	assert.True(t, errors.Is(err, ErrInvalidConfig))
}
