package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the research service
type Config struct {
	General   GeneralConfig   `mapstructure:"general"`
	Server    ServerConfig    `mapstructure:"server"`
	LLM       LLMConfig       `mapstructure:"llm"`
	Research  ResearchConfig  `mapstructure:"research"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
	Storage   StorageConfig   `mapstructure:"storage"`
}

// GeneralConfig contains general application settings
type GeneralConfig struct {
	Debug          bool          `mapstructure:"debug"`
	LogLevel       string        `mapstructure:"log_level"`
	DefaultTimeout time.Duration `mapstructure:"default_timeout"`
}

// ServerConfig contains HTTP server and auth settings
type ServerConfig struct {
	Address          string `mapstructure:"address"`
	JWTSecret        string `mapstructure:"jwt_secret"`
	StreamEnabled    bool   `mapstructure:"stream_enabled"`
	MigrationsSource string `mapstructure:"migrations_source"`
}

// LLMConfig contains LLM provider configurations
type LLMConfig struct {
	Providers map[string]LLMProvider `mapstructure:"providers"`
	Routing   LLMRoutingConfig       `mapstructure:"routing"`
}

// LLMProvider represents a single LLM provider configuration
type LLMProvider struct {
	Type       string              `mapstructure:"type"` // openai only, for now
	APIKey     string              `mapstructure:"api_key"`
	BaseURL    string              `mapstructure:"base_url"`
	Models     map[string]LLMModel `mapstructure:"models"`
	MaxRetries int                 `mapstructure:"max_retries"`
	Timeout    time.Duration       `mapstructure:"timeout"`
}

// LLMModel represents a specific model configuration
type LLMModel struct {
	Name            string  `mapstructure:"name"`
	APIName         string  `mapstructure:"api_name"`
	MaxTokens       int     `mapstructure:"max_tokens"`
	Temperature     float64 `mapstructure:"temperature"`
	CostPer1K       float64 `mapstructure:"cost_per_1k_input"`
	CostPer1KOutput float64 `mapstructure:"cost_per_1k_output"`
}

// LLMRoutingConfig defines which model each agent role uses
type LLMRoutingConfig struct {
	Planning     string `mapstructure:"planning"`     // search planning
	Search       string `mapstructure:"search"`       // per-item research summaries
	Analysis     string `mapstructure:"analysis"`     // legal/policy specialist analyses
	Writing      string `mapstructure:"writing"`      // memo drafting
	Verification string `mapstructure:"verification"` // quality verification
	Revision     string `mapstructure:"revision"`     // memo revision
	Fallback     string `mapstructure:"fallback"`
}

// ModelFor resolves a role's configured model, falling back when unset.
func (r LLMRoutingConfig) ModelFor(role string) string {
	m := ""
	switch role {
	case "planning":
		m = r.Planning
	case "search":
		m = r.Search
	case "analysis":
		m = r.Analysis
	case "writing":
		m = r.Writing
	case "verification":
		m = r.Verification
	case "revision":
		m = r.Revision
	}
	if m == "" {
		m = r.Fallback
	}
	return m
}

// ResearchConfig controls the iterative research pipeline.
type ResearchConfig struct {
	MaxIterations int           `mapstructure:"max_iterations"`
	VerifierMode  string        `mapstructure:"verifier_mode"` // "fanout" or "monolithic"
	StageTimeout  time.Duration `mapstructure:"stage_timeout"`
}

// Normalize applies defaults for unset research values.
func (c ResearchConfig) Normalize() ResearchConfig {
	if c.MaxIterations <= 0 {
		c.MaxIterations = 3
	}
	if c.VerifierMode == "" {
		c.VerifierMode = "fanout"
	}
	if c.StageTimeout <= 0 {
		c.StageTimeout = 3 * time.Minute
	}
	return c
}

// Validate ensures research settings are usable.
func (c ResearchConfig) Validate() error {
	if c.MaxIterations < 1 {
		return fmt.Errorf("research.max_iterations must be >= 1")
	}
	switch c.VerifierMode {
	case "fanout", "monolithic":
	default:
		return fmt.Errorf("research.verifier_mode must be fanout or monolithic, got %q", c.VerifierMode)
	}
	return nil
}

// TelemetryConfig contains telemetry and cost tracking settings
type TelemetryConfig struct {
	Enabled      bool   `mapstructure:"enabled"`
	CostTracking bool   `mapstructure:"cost_tracking"`
	LogFile      string `mapstructure:"log_file"`
}

// StorageConfig contains storage and persistence settings
type StorageConfig struct {
	Postgres PostgresConfig `mapstructure:"postgres"`
	Search   SearchConfig   `mapstructure:"search"`
}

// PostgresConfig contains Postgres connection settings
type PostgresConfig struct {
	URL      string        `mapstructure:"url"`
	Host     string        `mapstructure:"host"`
	Port     string        `mapstructure:"port"`
	User     string        `mapstructure:"user"`
	Password string        `mapstructure:"password"`
	DBName   string        `mapstructure:"dbname"`
	SSLMode  string        `mapstructure:"sslmode"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

func (p PostgresConfig) Validate() error {
	if strings.TrimSpace(p.URL) != "" {
		return nil
	}
	if strings.TrimSpace(p.Host) == "" {
		return fmt.Errorf("storage.postgres.host required when url is not provided")
	}
	if strings.TrimSpace(p.DBName) == "" {
		return fmt.Errorf("storage.postgres.dbname required when url is not provided")
	}
	return nil
}

// DSN builds a postgres connection string from the configured fields.
func (p PostgresConfig) DSN() string {
	if p.URL != "" {
		return p.URL
	}
	port := p.Port
	if port == "" {
		port = "5432"
	}
	ssl := p.SSLMode
	if ssl == "" {
		ssl = "disable"
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s", p.User, p.Password, p.Host, port, p.DBName, ssl)
}

// SearchConfig contains the bleve message index settings
type SearchConfig struct {
	IndexPath string `mapstructure:"index_path"`
}

// LoadConfig loads config from file
func LoadConfig(path string) *Config {
	viper.SetConfigName("config")
	viper.SetConfigType("json")
	viper.SetDefault("general.default_timeout", "2m")
	viper.SetDefault("server.address", ":8080")
	viper.SetDefault("server.stream_enabled", true)
	viper.SetDefault("server.migrations_source", "file://migrations")
	viper.SetDefault("research.max_iterations", 3)
	viper.SetDefault("research.verifier_mode", "fanout")
	viper.SetDefault("telemetry.cost_tracking", true)
	viper.SetDefault("storage.search.index_path", "data/messages.bleve")

	if path == "" {
		viper.AddConfigPath("./config")
		viper.AddConfigPath(".")
		exe, _ := os.Executable()
		exeDir := filepath.Dir(exe)
		viper.AddConfigPath(exeDir)
		viper.AddConfigPath(filepath.Join(exeDir, ".."))
		viper.AddConfigPath(filepath.Join(exeDir, "..", "config"))
	} else {
		viper.SetConfigFile(path)
	}

	viper.SetEnvPrefix("COUNSEL")
	replacer := strings.NewReplacer(".", "_")
	viper.SetEnvKeyReplacer(replacer)
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		panic(fmt.Errorf("fatal error config file: %w", err))
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		panic(fmt.Errorf("fatal error config file: %w", err))
	}
	config.Research = config.Research.Normalize()

	if err := config.Research.Validate(); err != nil {
		panic(err)
	}
	if err := config.Storage.Postgres.Validate(); err != nil {
		panic(err)
	}
	return &config
}
