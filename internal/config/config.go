package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/vbonduro/snackcheck/internal/apperr"
)

// DefaultConfigFile is read when SNACKCHECK_CONFIG is not set.
const DefaultConfigFile = "config.json"

const (
	ProviderGemini = "gemini"
	ProviderClaude = "claude"
	ProviderOllama = "ollama"

	RatingRandom  = "random"
	RatingDerived = "derived"
)

type Config struct {
	ListenAddr     string
	Provider       string
	GoogleAPIKey   string
	TavilyAPIKey   string
	ClaudeAPIKey   string
	GeminiModel    string
	ClaudeModel    string
	OllamaHost     string
	OllamaModel    string
	SearchEnabled  bool
	RatingMode     string
	TempDir        string
	MaxUploadBytes int64
	MaxConcurrent  int
	RunLogPath     string
	LogLevel       string
	LogFile        string
}

// Path returns the config file location from SNACKCHECK_CONFIG or the default.
func Path() string {
	if p, ok := os.LookupEnv("SNACKCHECK_CONFIG"); ok && p != "" {
		return p
	}
	return DefaultConfigFile
}

// Load reads the config file at path plus an optional .env in the working directory.
func Load(path string) (*Config, error) {
	return LoadFiles(path, ".env")
}

// LoadFiles builds a Config. Precedence, highest first: process environment,
// dotenvPath, the config file, defaults. The config file must exist. The
// process environment is never modified.
func LoadFiles(path, dotenvPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, apperr.Config("config.Load", fmt.Sprintf("failed to read config file %q", path), err)
	}

	if dotenvPath != "" {
		vals, err := godotenv.Read(dotenvPath)
		switch {
		case err == nil:
			merged := make(map[string]any, len(vals))
			for k, val := range vals {
				merged[strings.ToLower(k)] = val
			}
			if err := v.MergeConfigMap(merged); err != nil {
				return nil, apperr.Config("config.Load", "failed to merge .env", err)
			}
		case errors.Is(err, fs.ErrNotExist):
		default:
			return nil, apperr.Config("config.Load", fmt.Sprintf("failed to read %q", dotenvPath), err)
		}
	}

	v.AutomaticEnv()

	cfg := &Config{
		ListenAddr:     v.GetString("listen_addr"),
		Provider:       strings.ToLower(v.GetString("report_provider")),
		GoogleAPIKey:   v.GetString("google_api_key"),
		TavilyAPIKey:   v.GetString("tavily_api_key"),
		ClaudeAPIKey:   v.GetString("claude_api_key"),
		GeminiModel:    v.GetString("gemini_model"),
		ClaudeModel:    v.GetString("claude_model"),
		OllamaHost:     v.GetString("ollama_host"),
		OllamaModel:    v.GetString("ollama_model"),
		SearchEnabled:  v.GetBool("search_enabled"),
		RatingMode:     strings.ToLower(v.GetString("rating_mode")),
		TempDir:        v.GetString("temp_dir"),
		MaxUploadBytes: v.GetInt64("max_upload_bytes"),
		MaxConcurrent:  v.GetInt("max_concurrent_analyses"),
		RunLogPath:     v.GetString("run_log_path"),
		LogLevel:       v.GetString("log_level"),
		LogFile:        v.GetString("log_file"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("listen_addr", ":8501")
	v.SetDefault("report_provider", ProviderGemini)
	v.SetDefault("google_api_key", "")
	v.SetDefault("tavily_api_key", "")
	v.SetDefault("claude_api_key", "")
	v.SetDefault("gemini_model", "gemini-2.0-flash-exp")
	v.SetDefault("claude_model", "claude-sonnet-4-5")
	v.SetDefault("ollama_host", "http://localhost:11434")
	v.SetDefault("ollama_model", "llama3.2")
	v.SetDefault("search_enabled", true)
	v.SetDefault("rating_mode", RatingRandom)
	v.SetDefault("temp_dir", os.TempDir())
	v.SetDefault("max_upload_bytes", 20<<20)
	v.SetDefault("max_concurrent_analyses", 1)
	v.SetDefault("run_log_path", "")
	v.SetDefault("log_level", "info")
	v.SetDefault("log_file", "")
}

// Validate reports the first missing or invalid setting as a config error.
func (c *Config) Validate() error {
	if c.TavilyAPIKey == "" {
		return apperr.Config("config.Validate", "TAVILY_API_KEY is required", nil)
	}

	switch c.Provider {
	case ProviderGemini:
		if c.GoogleAPIKey == "" {
			return apperr.Config("config.Validate", "GOOGLE_API_KEY is required when REPORT_PROVIDER=gemini", nil)
		}
	case ProviderClaude:
		if c.ClaudeAPIKey == "" {
			return apperr.Config("config.Validate", "CLAUDE_API_KEY is required when REPORT_PROVIDER=claude", nil)
		}
	case ProviderOllama:
		if c.OllamaHost == "" {
			return apperr.Config("config.Validate", "OLLAMA_HOST is required when REPORT_PROVIDER=ollama", nil)
		}
	default:
		return apperr.Config("config.Validate", fmt.Sprintf("unknown REPORT_PROVIDER %q", c.Provider), nil)
	}

	if c.RatingMode != RatingRandom && c.RatingMode != RatingDerived {
		return apperr.Config("config.Validate", fmt.Sprintf("RATING_MODE must be %q or %q, got %q", RatingRandom, RatingDerived, c.RatingMode), nil)
	}
	if c.MaxConcurrent < 1 {
		return apperr.Config("config.Validate", fmt.Sprintf("MAX_CONCURRENT_ANALYSES must be at least 1, got %d", c.MaxConcurrent), nil)
	}
	if c.MaxUploadBytes < 1024 {
		return apperr.Config("config.Validate", fmt.Sprintf("MAX_UPLOAD_BYTES must be at least 1024, got %d", c.MaxUploadBytes), nil)
	}
	return nil
}

// Secrets returns the configured API keys so the logger can redact them.
func (c *Config) Secrets() []string {
	var out []string
	for _, s := range []string{c.GoogleAPIKey, c.TavilyAPIKey, c.ClaudeAPIKey} {
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}
