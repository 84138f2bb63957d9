package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	detectors "github.com/hannes/yaak-guard/pii/detectors"
)

// DefaultConfigFile is looked up in the working directory when no path is given.
const DefaultConfigFile = "yaak-guard.yaml"

const TRUE = "true"

// ErrConfigNotFound is returned when an explicitly requested file does not exist.
var ErrConfigNotFound = errors.New("configuration file not found")

// LoggingConfig holds logging configuration options
type LoggingConfig struct {
	Level     string `yaml:"level" validate:"oneof=debug info warn error"`
	Format    string `yaml:"format" validate:"oneof=text json"`
	LogValues bool   `yaml:"log_values"` // Log detected PII values
}

// DatabaseConfig holds the audit database configuration
type DatabaseConfig struct {
	Enabled      bool   `yaml:"enabled"`
	Host         string `yaml:"host" validate:"required_if=Enabled true"`
	Port         int    `yaml:"port" validate:"gte=0,lte=65535"`
	Database     string `yaml:"database" validate:"required_if=Enabled true"`
	Username     string `yaml:"username"`
	Password     string `yaml:"password"`
	SSLMode      string `yaml:"ssl_mode" validate:"omitempty,oneof=disable allow prefer require verify-ca verify-full"`
	MaxOpenConns int    `yaml:"max_open_conns" validate:"gte=0"`
	MaxIdleConns int    `yaml:"max_idle_conns" validate:"gte=0"`
	MaxLifetime  int    `yaml:"max_lifetime"` // Connection max lifetime in seconds
	CleanupHours int    `yaml:"cleanup_hours" validate:"gte=0"`
}

type LlamaConfig struct {
	BaseURL string `yaml:"base_url" validate:"omitempty,url"`
	Model   string `yaml:"model"`
	Timeout string `yaml:"timeout"`
}

type BedrockConfig struct {
	GuardrailID      string `yaml:"guardrail_id"`
	GuardrailVersion string `yaml:"guardrail_version"`
	Region           string `yaml:"region"`
	Profile          string `yaml:"profile"`
	EndpointURL      string `yaml:"endpoint_url" validate:"omitempty,url"`
}

type PresidioConfig struct {
	BaseURL        string  `yaml:"base_url" validate:"omitempty,url"`
	Language       string  `yaml:"language"`
	ScoreThreshold float64 `yaml:"score_threshold" validate:"gte=0,lte=1"`
}

type OpenAIConfig struct {
	APIKey       string `yaml:"api_key"`
	Model        string `yaml:"model"`
	BaseURL      string `yaml:"base_url" validate:"omitempty,url"`
	Organization string `yaml:"organization"`
}

type ONNXConfig struct {
	ModelPath     string `yaml:"model_path"`
	TokenizerPath string `yaml:"tokenizer_path"`
	LabelsPath    string `yaml:"labels_path"`
}

// GuardConfig selects and configures the detection backend
type GuardConfig struct {
	Provider string         `yaml:"provider"`
	Llama    LlamaConfig    `yaml:"llama"`
	Bedrock  BedrockConfig  `yaml:"bedrock"`
	Presidio PresidioConfig `yaml:"presidio"`
	OpenAI   OpenAIConfig   `yaml:"openai"`
	ONNX     ONNXConfig     `yaml:"onnx"`
	// Extra is merged into the backend options as-is
	Extra map[string]any `yaml:"extra"`
}

// ServerConfig holds the HTTP server configuration
type ServerConfig struct {
	Port            string  `yaml:"port"`
	RateLimitRPS    float64 `yaml:"rate_limit_rps" validate:"gte=0"`
	RateLimitBurst  int     `yaml:"rate_limit_burst" validate:"gte=0"`
	MaxBodyBytes    int64   `yaml:"max_body_bytes" validate:"gt=0"`
	AuditCapacity   int     `yaml:"audit_capacity" validate:"gte=0"`
	SentryDSN       string  `yaml:"sentry_dsn"`
	ShutdownTimeout int     `yaml:"shutdown_timeout"` // Seconds
}

type TracingConfig struct {
	Enabled bool `yaml:"enabled"`
}

// Config holds all configuration for the guard service
type Config struct {
	Guard    GuardConfig    `yaml:"guard"`
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Logging  LoggingConfig  `yaml:"logging"`
	Tracing  TracingConfig  `yaml:"tracing"`
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		Guard: GuardConfig{
			Provider: detectors.ProviderRegex,
			Llama: LlamaConfig{
				BaseURL: "http://localhost:11434",
				Model:   "llama-guard3",
				Timeout: "60s",
			},
			Bedrock: BedrockConfig{
				GuardrailVersion: "DRAFT",
				Region:           "us-east-1",
			},
			Presidio: PresidioConfig{
				BaseURL:  "http://localhost:5002",
				Language: "en",
			},
			OpenAI: OpenAIConfig{
				Model: "gpt-4o-mini",
			},
			ONNX: ONNXConfig{
				ModelPath:     "model/quantized/model_quantized.onnx",
				TokenizerPath: "model/quantized/tokenizer.json",
				LabelsPath:    "model/quantized/label_mappings.json",
			},
		},
		Server: ServerConfig{
			Port:            ":8090",
			RateLimitRPS:    20,
			RateLimitBurst:  40,
			MaxBodyBytes:    1 << 20,
			AuditCapacity:   1000,
			ShutdownTimeout: 10,
		},
		Database: DatabaseConfig{
			Enabled:      false,
			Host:         "localhost",
			Port:         5432,
			Database:     "yaak_guard",
			Username:     "postgres",
			SSLMode:      "disable",
			MaxOpenConns: 25,
			MaxIdleConns: 25,
			MaxLifetime:  300,
			CleanupHours: 24 * 30,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// LoadFile overlays the YAML (or JSON) file at path onto cfg. An empty path tries
// DefaultConfigFile and silently keeps cfg when it is absent.
func LoadFile(path string, cfg *Config) error {
	explicit := path != ""
	if !explicit {
		path = DefaultConfigFile
	}

	data, err := os.ReadFile(path) // #nosec G304 - config path comes from the operator
	if err != nil {
		if os.IsNotExist(err) {
			if explicit {
				return fmt.Errorf("%w: %s", ErrConfigNotFound, path)
			}
			return nil
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

// LoadFromEnv overrides cfg with environment variables
func LoadFromEnv(cfg *Config) {
	loadGuardConfig(cfg)
	loadServerConfig(cfg)
	loadDatabaseConfig(cfg)
	loadLoggingConfig(cfg)
}

func loadGuardConfig(cfg *Config) {
	setString(&cfg.Guard.Provider, "GUARD_PROVIDER")

	setString(&cfg.Guard.Llama.BaseURL, "OLLAMA_BASE_URL")
	setString(&cfg.Guard.Llama.Model, "OLLAMA_MODEL")
	setString(&cfg.Guard.Llama.Timeout, "OLLAMA_TIMEOUT")

	setString(&cfg.Guard.Bedrock.GuardrailID, "BEDROCK_GUARDRAIL_ID")
	setString(&cfg.Guard.Bedrock.GuardrailVersion, "BEDROCK_GUARDRAIL_VERSION")
	setString(&cfg.Guard.Bedrock.Region, "AWS_REGION")
	setString(&cfg.Guard.Bedrock.EndpointURL, "BEDROCK_ENDPOINT_URL")

	setString(&cfg.Guard.Presidio.BaseURL, "PRESIDIO_BASE_URL")
	setString(&cfg.Guard.Presidio.Language, "PRESIDIO_LANGUAGE")

	setString(&cfg.Guard.OpenAI.APIKey, "OPENAI_API_KEY")
	setString(&cfg.Guard.OpenAI.Model, "OPENAI_MODEL")
	setString(&cfg.Guard.OpenAI.BaseURL, "OPENAI_BASE_URL")

	setString(&cfg.Guard.ONNX.ModelPath, "ONNX_MODEL_PATH")
	setString(&cfg.Guard.ONNX.TokenizerPath, "TOKENIZER_PATH")
	setString(&cfg.Guard.ONNX.LabelsPath, "ONNX_LABELS_PATH")
}

func loadServerConfig(cfg *Config) {
	setString(&cfg.Server.Port, "SERVER_PORT")
	setString(&cfg.Server.SentryDSN, "SENTRY_DSN")
	if rps := os.Getenv("RATE_LIMIT_RPS"); rps != "" {
		if v, err := strconv.ParseFloat(rps, 64); err == nil {
			cfg.Server.RateLimitRPS = v
		}
	}
	setInt(&cfg.Server.RateLimitBurst, "RATE_LIMIT_BURST")
	if tracing := os.Getenv("TRACING_ENABLED"); tracing != "" {
		cfg.Tracing.Enabled = tracing == TRUE
	}
}

func loadDatabaseConfig(cfg *Config) {
	if dbEnabled := os.Getenv("DB_ENABLED"); dbEnabled != "" {
		cfg.Database.Enabled = dbEnabled == TRUE
	}
	setString(&cfg.Database.Host, "DB_HOST")
	setInt(&cfg.Database.Port, "DB_PORT")
	setString(&cfg.Database.Database, "DB_NAME")
	setString(&cfg.Database.Username, "DB_USER")
	setString(&cfg.Database.Password, "DB_PASSWORD")
	setString(&cfg.Database.SSLMode, "DB_SSL_MODE")
	setInt(&cfg.Database.CleanupHours, "DB_CLEANUP_HOURS")
}

func loadLoggingConfig(cfg *Config) {
	setString(&cfg.Logging.Level, "LOG_LEVEL")
	setString(&cfg.Logging.Format, "LOG_FORMAT")
	if logValues := os.Getenv("LOG_VALUES"); logValues != "" {
		cfg.Logging.LogValues = logValues == TRUE
	}
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

// Validate checks the guard provider, struct constraints and the server port. An unknown
// provider is reported with detectors.ErrUnknownProvider.
func (c *Config) Validate() error {
	if err := detectors.CheckProvider(c.Guard.Provider); err != nil {
		return err
	}
	validate := validator.New(validator.WithRequiredStructEnabled())
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if c.Guard.Llama.Timeout != "" {
		if _, err := time.ParseDuration(c.Guard.Llama.Timeout); err != nil {
			return fmt.Errorf("invalid configuration: guard.llama.timeout: %w", err)
		}
	}
	return validatePort(c.Server.Port, "Server.Port")
}

// validatePort checks that port has the form ":PORT" with PORT in 1..65535.
func validatePort(port, fieldName string) error {
	if port == "" {
		return fmt.Errorf("%s: port cannot be empty", fieldName)
	}
	if !strings.HasPrefix(port, ":") {
		return fmt.Errorf("%s: port must be in format ':PORT' where PORT is numeric (current value: %s)", fieldName, port)
	}
	n, err := strconv.Atoi(port[1:])
	if err != nil {
		return fmt.Errorf("%s: port must be in format ':PORT' where PORT is numeric (current value: %s)", fieldName, port)
	}
	if n < 1 || n > 65535 {
		return fmt.Errorf("%s: port must be between 1 and 65535 (current value: %d)", fieldName, n)
	}
	return nil
}

// GuardOptions returns the backend options for the selected provider. Empty settings are
// left out so backend defaults apply.
func (c *Config) GuardOptions() detectors.Options {
	opts := detectors.Options{}
	put := func(key, value string) {
		if value != "" {
			opts[key] = value
		}
	}

	g := c.Guard
	switch strings.ToLower(strings.TrimSpace(g.Provider)) {
	case detectors.ProviderLlama, detectors.ProviderLlamaGuard:
		put("base_url", g.Llama.BaseURL)
		put("model", g.Llama.Model)
		put("timeout", g.Llama.Timeout)
	case detectors.ProviderBedrock, detectors.ProviderAWS:
		put("guardrail_id", g.Bedrock.GuardrailID)
		put("guardrail_version", g.Bedrock.GuardrailVersion)
		put("region", g.Bedrock.Region)
		put("profile", g.Bedrock.Profile)
		put("endpoint_url", g.Bedrock.EndpointURL)
	case detectors.ProviderPresidio:
		put("base_url", g.Presidio.BaseURL)
		put("language", g.Presidio.Language)
		if g.Presidio.ScoreThreshold > 0 {
			opts["score_threshold"] = g.Presidio.ScoreThreshold
		}
	case detectors.ProviderOpenAI, detectors.ProviderGPT:
		put("api_key", g.OpenAI.APIKey)
		put("model", g.OpenAI.Model)
		put("base_url", g.OpenAI.BaseURL)
		put("organization", g.OpenAI.Organization)
	case detectors.ProviderONNX:
		put("model_path", g.ONNX.ModelPath)
		put("tokenizer_path", g.ONNX.TokenizerPath)
		put("labels_path", g.ONNX.LabelsPath)
	}

	for k, v := range g.Extra {
		opts[k] = v
	}
	return opts
}

// MaxLifetimeDuration returns the connection lifetime as a duration
func (d DatabaseConfig) MaxLifetimeDuration() time.Duration {
	return time.Duration(d.MaxLifetime) * time.Second
}
