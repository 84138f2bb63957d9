package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	detectors "github.com/hannes/yaak-guard/pii/detectors"
)

func TestValidatePort(t *testing.T) {
	testCases := []struct {
		name      string
		port      string
		fieldName string
		expectErr bool
		errString string
	}{
		{
			name:      "valid port",
			port:      ":8090",
			fieldName: "Server.Port",
			expectErr: false,
		},
		{
			name:      "empty port",
			port:      "",
			fieldName: "Server.Port",
			expectErr: true,
			errString: "Server.Port: port cannot be empty",
		},
		{
			name:      "no colon",
			port:      "8090",
			fieldName: "Server.Port",
			expectErr: true,
			errString: "Server.Port: port must be in format ':PORT' where PORT is numeric (current value: 8090)",
		},
		{
			name:      "non-numeric",
			port:      ":abcd",
			fieldName: "Server.Port",
			expectErr: true,
			errString: "Server.Port: port must be in format ':PORT' where PORT is numeric (current value: :abcd)",
		},
		{
			name:      "port out of range (low)",
			port:      ":0",
			fieldName: "Server.Port",
			expectErr: true,
			errString: "Server.Port: port must be between 1 and 65535 (current value: 0)",
		},
		{
			name:      "port out of range (high)",
			port:      ":65536",
			fieldName: "Server.Port",
			expectErr: true,
			errString: "Server.Port: port must be between 1 and 65535 (current value: 65536)",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			err := validatePort(tc.port, tc.fieldName)
			if tc.expectErr {
				assert.EqualError(t, err, tc.errString)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestDefaultConfig_IsValid(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "regex", cfg.Guard.Provider)
	assert.Equal(t, ":8090", cfg.Server.Port)
}

func TestValidate_Rejects(t *testing.T) {
	testCases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"unknown provider", func(c *Config) { c.Guard.Provider = "nonexistent-provider" }},
		{"bad log level", func(c *Config) { c.Logging.Level = "verbose" }},
		{"bad log format", func(c *Config) { c.Logging.Format = "xml" }},
		{"bad llama url", func(c *Config) { c.Guard.Llama.BaseURL = "not a url" }},
		{"bad llama timeout", func(c *Config) { c.Guard.Llama.Timeout = "soon" }},
		{"score threshold above one", func(c *Config) { c.Guard.Presidio.ScoreThreshold = 1.5 }},
		{"database enabled without host", func(c *Config) {
			c.Database.Enabled = true
			c.Database.Host = ""
		}},
		{"bad ssl mode", func(c *Config) { c.Database.SSLMode = "sometimes" }},
		{"bad port", func(c *Config) { c.Server.Port = "8090" }},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tc.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestValidate_UnknownProviderNamesValidIdentifiers(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Guard.Provider = "nonexistent-provider"

	err := cfg.Validate()
	require.Error(t, err)
	assert.True(t, errors.Is(err, detectors.ErrUnknownProvider))
	assert.Contains(t, err.Error(), "nonexistent-provider")
	assert.Contains(t, err.Error(), "llama-guard")
	assert.NotContains(t, err.Error(), "invalid configuration")
}

func TestValidate_AcceptsEveryRegisteredProvider(t *testing.T) {
	for _, provider := range append(detectors.SupportedProviders(), "regex", "none", "", "LLAMA") {
		cfg := DefaultConfig()
		cfg.Guard.Provider = provider
		assert.NoError(t, cfg.Validate(), provider)
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "guard.yaml")
	content := `
guard:
  provider: presidio
  presidio:
    base_url: http://presidio:3000
    score_threshold: 0.6
  extra:
    entities: [PERSON, EMAIL_ADDRESS]
server:
  port: ":9000"
logging:
  level: debug
  format: json
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg := DefaultConfig()
	require.NoError(t, LoadFile(path, cfg))

	assert.Equal(t, "presidio", cfg.Guard.Provider)
	assert.Equal(t, "http://presidio:3000", cfg.Guard.Presidio.BaseURL)
	// unset keys keep their defaults
	assert.Equal(t, "en", cfg.Guard.Presidio.Language)
	assert.Equal(t, ":9000", cfg.Server.Port)
	assert.Equal(t, "debug", cfg.Logging.Level)
	require.NoError(t, cfg.Validate())

	opts := cfg.GuardOptions()
	assert.Equal(t, "http://presidio:3000", opts["base_url"])
	assert.Equal(t, "en", opts["language"])
	assert.Equal(t, 0.6, opts["score_threshold"])
	assert.Equal(t, []any{"PERSON", "EMAIL_ADDRESS"}, opts["entities"])
}

func TestLoadFile_JSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "guard.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"guard":{"provider":"llama","llama":{"model":"llama-guard3:1b"}}}`), 0o600))

	cfg := DefaultConfig()
	require.NoError(t, LoadFile(path, cfg))
	assert.Equal(t, "llama-guard3:1b", cfg.Guard.Llama.Model)
}

func TestLoadFile_Missing(t *testing.T) {
	cfg := DefaultConfig()
	err := LoadFile(filepath.Join(t.TempDir(), "absent.yaml"), cfg)
	assert.True(t, errors.Is(err, ErrConfigNotFound))

	// without an explicit path a missing default file is fine
	chdir(t, t.TempDir())
	assert.NoError(t, LoadFile("", cfg))
}

func TestLoadFile_Malformed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("guard: [unclosed"), 0o600))

	assert.Error(t, LoadFile(path, DefaultConfig()))
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("GUARD_PROVIDER", "bedrock")
	t.Setenv("BEDROCK_GUARDRAIL_ID", "gr-abc")
	t.Setenv("AWS_REGION", "eu-west-1")
	t.Setenv("SERVER_PORT", ":7000")
	t.Setenv("RATE_LIMIT_RPS", "2.5")
	t.Setenv("RATE_LIMIT_BURST", "not-a-number")
	t.Setenv("DB_ENABLED", "true")
	t.Setenv("DB_PORT", "6543")
	t.Setenv("LOG_LEVEL", "warn")
	t.Setenv("TRACING_ENABLED", "true")

	cfg := DefaultConfig()
	LoadFromEnv(cfg)

	assert.Equal(t, "bedrock", cfg.Guard.Provider)
	assert.Equal(t, ":7000", cfg.Server.Port)
	assert.Equal(t, 2.5, cfg.Server.RateLimitRPS)
	assert.Equal(t, 40, cfg.Server.RateLimitBurst)
	assert.True(t, cfg.Database.Enabled)
	assert.Equal(t, 6543, cfg.Database.Port)
	assert.Equal(t, "warn", cfg.Logging.Level)
	assert.True(t, cfg.Tracing.Enabled)

	opts := cfg.GuardOptions()
	assert.Equal(t, detectors.Options{
		"guardrail_id":      "gr-abc",
		"guardrail_version": "DRAFT",
		"region":            "eu-west-1",
	}, opts)
}

func TestGuardOptions_PerProvider(t *testing.T) {
	cfg := DefaultConfig()

	cfg.Guard.Provider = "llama-guard"
	assert.Equal(t, detectors.Options{
		"base_url": "http://localhost:11434",
		"model":    "llama-guard3",
		"timeout":  "60s",
	}, cfg.GuardOptions())

	cfg.Guard.Provider = "gpt"
	cfg.Guard.OpenAI.APIKey = "sk-test"
	assert.Equal(t, detectors.Options{"api_key": "sk-test", "model": "gpt-4o-mini"}, cfg.GuardOptions())

	cfg.Guard.Provider = "regex"
	assert.Empty(t, cfg.GuardOptions())
}

func TestMaxLifetimeDuration(t *testing.T) {
	assert.Equal(t, 5*time.Minute, DatabaseConfig{MaxLifetime: 300}.MaxLifetimeDuration())
	assert.Zero(t, DatabaseConfig{}.MaxLifetimeDuration())
}

// chdir changes the working directory for the duration of the test and
// restores it on cleanup (equivalent of testing.T.Chdir, which needs Go 1.24).
func chdir(t *testing.T, dir string) {
	t.Helper()
	wd, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		if err := os.Chdir(wd); err != nil {
			t.Fatal(err)
		}
	})
}
