// Package config loads chatbench's run configuration from environment
// variables, a best-effort .env file, and an optional YAML overlay.
package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

// OpenAIConfig binds the requester to an OpenAI-compatible endpoint.
type OpenAIConfig struct {
	Model   string `yaml:"model"`
	APIKey  string `yaml:"api_key"`
	BaseURL string `yaml:"base_url,omitempty"`
}

// RunConfig holds the parameters of a single harness invocation.
type RunConfig struct {
	Filepath     string `yaml:"filepath"`
	Concurrency  int    `yaml:"concurrency"`
	OutputFile   string `yaml:"output_file"`
	LogResponses bool   `yaml:"log_responses"`
	MaxHistory   int    `yaml:"max_history,omitempty"`
}

// TelemetryConfig controls the optional OpenTelemetry metrics exporter.
type TelemetryConfig struct {
	OTLPEndpoint string `yaml:"otlp_endpoint,omitempty"`
	Insecure     bool   `yaml:"insecure,omitempty"`
	ServiceName  string `yaml:"service_name,omitempty"`
}

// Config is the complete, resolved configuration for one run.
type Config struct {
	OpenAI    OpenAIConfig    `yaml:"openai"`
	Run       RunConfig       `yaml:"run"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

// Load resolves a Config from, in increasing precedence: built-in
// defaults, a best-effort ".env" file, OPENAI_*/CHATBENCH_* environment
// variables, and finally an optional YAML file at overlayPath (if
// non-empty). This mirrors the teacher's own env-first,
// config-file-overlay loading order.
func Load(overlayPath string, log zerolog.Logger) (*Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Warn().Err(err).Msg("dotenv_load_failed")
	}

	cfg := &Config{
		Run: RunConfig{
			Concurrency: 1,
			OutputFile:  "output.json",
		},
	}

	cfg.OpenAI.APIKey = os.Getenv("OPENAI_API_KEY")
	cfg.OpenAI.BaseURL = os.Getenv("OPENAI_BASE_URL")
	cfg.OpenAI.Model = os.Getenv("CHATBENCH_MODEL")
	cfg.Telemetry.OTLPEndpoint = os.Getenv("CHATBENCH_OTLP_ENDPOINT")
	cfg.Telemetry.Insecure = ParseBool(os.Getenv("CHATBENCH_OTLP_INSECURE"), false)
	cfg.Run.LogResponses = ParseBool(os.Getenv("CHATBENCH_LOG_RESPONSES"), false)

	if overlayPath != "" {
		b, err := os.ReadFile(overlayPath)
		if err != nil {
			return nil, fmt.Errorf("config: reading %s: %w", overlayPath, err)
		}
		if err := yaml.Unmarshal(b, cfg); err != nil {
			return nil, fmt.Errorf("config: parsing %s: %w", overlayPath, err)
		}
		log.Info().Str("path", overlayPath).Msg("config_overlay_loaded")
	}

	if cfg.Run.Concurrency < 1 {
		log.Warn().Int("concurrency", cfg.Run.Concurrency).Msg("invalid_concurrency_defaulted")
		cfg.Run.Concurrency = 1
	}
	if cfg.Run.OutputFile == "" {
		cfg.Run.OutputFile = "output.json"
	}

	return cfg, nil
}

// ParseBool is a small env-parsing helper in the teacher's style (its
// config loader tolerates missing/garbled boolean env vars by falling
// back rather than failing the whole run).
func ParseBool(s string, fallback bool) bool {
	if s == "" {
		return fallback
	}
	v, err := strconv.ParseBool(s)
	if err != nil {
		return fallback
	}
	return v
}
