package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all configuration settings
type Config struct {
	// Run mode: "mock", "demo", "live"
	Mode RunMode `yaml:"mode"`

	// Checkpoint store configuration
	Checkpoint CheckpointConfig `yaml:"checkpoint"`

	// Result sink configuration
	Sink SinkConfig `yaml:"sink"`

	// Cache configuration (progress cache, session counters)
	Cache CacheConfig `yaml:"cache"`

	// LLM provider configuration
	API APIConfig `yaml:"api"`

	// Risk finalization settings
	Risk RiskConfig `yaml:"risk"`

	// Link-graph tool configuration
	Graph GraphConfig `yaml:"graph"`

	// Live-mode guard budgets
	Guard GuardConfig `yaml:"guard"`

	// Per-investigation defaults
	Investigation InvestigationConfig `yaml:"investigation"`
}

type CheckpointConfig struct {
	Type        string `yaml:"type"` // "postgres", "sqlite", "memory"
	PostgresDSN string `yaml:"postgres_dsn"`
	LocalPath   string `yaml:"local_path"`
}

type SinkConfig struct {
	PostgresDSN string `yaml:"postgres_dsn"`
	StoreRaw    bool   `yaml:"store_raw"` // persist raw state alongside the outcome
}

type CacheConfig struct {
	RedisHost     string        `yaml:"redis_host"`
	RedisPort     int           `yaml:"redis_port"`
	RedisPassword string        `yaml:"redis_password"`
	TTL           time.Duration `yaml:"ttl"`
}

type APIConfig struct {
	Provider    string `yaml:"provider"` // "openai", "gemini"
	OpenAIKey   string `yaml:"openai_key"`
	OpenAIModel string `yaml:"openai_model"`
	GeminiKey   string `yaml:"gemini_key"`
	GeminiModel string `yaml:"gemini_model"`
	UseKeychain bool   `yaml:"use_keychain"`
	RateLimit   int    `yaml:"rate_limit"` // requests per minute
}

type RiskConfig struct {
	// Evidence gating
	MinimumEvidenceFloor float64 `yaml:"minimum_evidence_floor"`
	MinItemsPerDomain    int     `yaml:"min_items_per_domain"`

	// Per-domain evidence weights used in risk finalization
	DomainWeights map[string]float64 `yaml:"domain_weights"`

	// Default confidence assigned to reconstructed findings
	ReconstructedConfidence float64 `yaml:"reconstructed_confidence"`
}

type GraphConfig struct {
	Neo4jURI      string `yaml:"neo4j_uri"`
	Neo4jUser     string `yaml:"neo4j_user"`
	Neo4jPassword string `yaml:"neo4j_password"`
}

type GuardConfig struct {
	InvestigationCostLimitUSD float64       `yaml:"investigation_cost_limit_usd"`
	SessionCostLimitUSD       float64       `yaml:"session_cost_limit_usd"`
	InvestigationTimeLimit    time.Duration `yaml:"investigation_time_limit"`
	SessionTimeLimit          time.Duration `yaml:"session_time_limit"`
	ConsecutiveErrorLimit     int           `yaml:"consecutive_error_limit"`
	ErrorRateThreshold        float64       `yaml:"error_rate_threshold"`
	EmergencyStateDir         string        `yaml:"emergency_state_dir"`
}

type InvestigationConfig struct {
	MaxTools          int    `yaml:"max_tools"`
	DateRangeDays     int    `yaml:"date_range_days"`
	ParallelExecution bool   `yaml:"parallel_execution"`
	UseSnowflake      bool   `yaml:"use_snowflake"`
	CustomUserPrompt  string `yaml:"custom_user_prompt"`
}

// Default returns default configuration
func Default() *Config {
	homeDir, _ := os.UserHomeDir()
	return &Config{
		Mode: ModeMock,
		Checkpoint: CheckpointConfig{
			Type:      "sqlite",
			LocalPath: filepath.Join(homeDir, ".fraudscope", "checkpoints.db"),
		},
		Sink: SinkConfig{
			StoreRaw: false,
		},
		Cache: CacheConfig{
			RedisHost: "",
			RedisPort: 6379,
			TTL:       15 * time.Minute,
		},
		API: APIConfig{
			Provider:    "openai",
			OpenAIModel: "gpt-4o-mini",
			GeminiModel: "gemini-2.0-flash",
			RateLimit:   60,
		},
		Risk: RiskConfig{
			MinimumEvidenceFloor: 0.2,
			MinItemsPerDomain:    1,
			DomainWeights: map[string]float64{
				"network":        1.0,
				"device":         1.0,
				"location":       0.8,
				"logs":           0.8,
				"authentication": 1.0,
				"risk":           1.2,
			},
			ReconstructedConfidence: 0.35,
		},
		Guard: GuardConfig{
			InvestigationCostLimitUSD: 5.00,
			SessionCostLimitUSD:       50.00,
			InvestigationTimeLimit:    30 * time.Minute,
			SessionTimeLimit:          4 * time.Hour,
			ConsecutiveErrorLimit:     5,
			ErrorRateThreshold:        0.5,
			EmergencyStateDir:         "emergency_states",
		},
		Investigation: InvestigationConfig{
			MaxTools:          8,
			DateRangeDays:     90,
			ParallelExecution: true,
			UseSnowflake:      true,
		},
	}
}

// Load loads configuration from file, environment, and keychain
func Load(path string) (*Config, error) {
	loadEnvFiles()

	v := viper.New()
	v.SetConfigType("yaml")

	cfg := Default()
	v.SetDefault("mode", string(cfg.Mode))
	v.SetDefault("checkpoint", cfg.Checkpoint)
	v.SetDefault("sink", cfg.Sink)
	v.SetDefault("cache", cfg.Cache)
	v.SetDefault("risk", cfg.Risk)
	v.SetDefault("guard", cfg.Guard)
	v.SetDefault("investigation", cfg.Investigation)

	v.SetEnvPrefix("FRAUDSCOPE")
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".fraudscope")
		v.AddConfigPath(".")
		homeDir, _ := os.UserHomeDir()
		v.AddConfigPath(filepath.Join(homeDir, ".fraudscope"))
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		// Config file not found is OK, use defaults
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyEnvOverrides(cfg)

	if _, err := ParseRunMode(string(cfg.Mode)); err != nil {
		return nil, err
	}
	cfg.Mode = ResolveRunMode(cfg.Mode)

	return cfg, nil
}

// loadEnvFiles loads .env files in order of precedence
func loadEnvFiles() {
	envFiles := []string{
		".env.local",
		".env",
	}

	for _, file := range envFiles {
		if _, err := os.Stat(file); err == nil {
			godotenv.Load(file)
		}
	}

	homeDir, _ := os.UserHomeDir()
	homeEnvFile := filepath.Join(homeDir, ".fraudscope", ".env")
	if _, err := os.Stat(homeEnvFile); err == nil {
		godotenv.Load(homeEnvFile)
	}
}

// applyEnvOverrides applies environment variable overrides to config.
// Precedence for API keys: 1. env var 2. keychain 3. config file.
func applyEnvOverrides(cfg *Config) {
	if mode := os.Getenv("TEST_MODE"); mode != "" {
		if parsed, err := ParseRunMode(mode); err == nil {
			cfg.Mode = parsed
		}
	}

	if useSnowflake := os.Getenv("USE_SNOWFLAKE"); useSnowflake != "" {
		cfg.Investigation.UseSnowflake = useSnowflake == "true"
	}

	if prompt := os.Getenv("CUSTOM_USER_PROMPT"); prompt != "" {
		cfg.Investigation.CustomUserPrompt = prompt
	}

	if key := os.Getenv("OPENAI_API_KEY"); key != "" {
		cfg.API.OpenAIKey = key
	} else if cfg.API.OpenAIKey == "" {
		km := NewKeyringManager()
		if km.IsAvailable() {
			if keychainKey, err := km.GetAPIKey(); err == nil && keychainKey != "" {
				cfg.API.OpenAIKey = keychainKey
			}
		}
	}

	if key := os.Getenv("GEMINI_API_KEY"); key != "" {
		cfg.API.GeminiKey = key
	}
	if provider := os.Getenv("LLM_PROVIDER"); provider != "" {
		cfg.API.Provider = provider
	}
	if model := os.Getenv("OPENAI_MODEL"); model != "" {
		cfg.API.OpenAIModel = model
	}

	if dsn := os.Getenv("CHECKPOINT_POSTGRES_DSN"); dsn != "" {
		cfg.Checkpoint.Type = "postgres"
		cfg.Checkpoint.PostgresDSN = dsn
	}
	if path := os.Getenv("CHECKPOINT_LOCAL_PATH"); path != "" {
		cfg.Checkpoint.LocalPath = expandPath(path)
	}
	if dsn := os.Getenv("SINK_POSTGRES_DSN"); dsn != "" {
		cfg.Sink.PostgresDSN = dsn
	}

	if host := os.Getenv("REDIS_HOST"); host != "" {
		cfg.Cache.RedisHost = host
	}
	if port := os.Getenv("REDIS_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			cfg.Cache.RedisPort = p
		}
	}
	if password := os.Getenv("REDIS_PASSWORD"); password != "" {
		cfg.Cache.RedisPassword = password
	}

	if uri := os.Getenv("NEO4J_URI"); uri != "" {
		cfg.Graph.Neo4jURI = uri
	}
	if user := os.Getenv("NEO4J_USER"); user != "" {
		cfg.Graph.Neo4jUser = user
	}
	if password := os.Getenv("NEO4J_PASSWORD"); password != "" {
		cfg.Graph.Neo4jPassword = password
	}

	if limit := os.Getenv("GUARD_SESSION_COST_LIMIT_USD"); limit != "" {
		if amount, err := strconv.ParseFloat(limit, 64); err == nil {
			cfg.Guard.SessionCostLimitUSD = amount
		}
	}
	if limit := os.Getenv("GUARD_INVESTIGATION_COST_LIMIT_USD"); limit != "" {
		if amount, err := strconv.ParseFloat(limit, 64); err == nil {
			cfg.Guard.InvestigationCostLimitUSD = amount
		}
	}
}

// expandPath expands ~ to home directory
func expandPath(path string) string {
	if path == "" {
		return path
	}
	if path[0] == '~' {
		homeDir, _ := os.UserHomeDir()
		return filepath.Join(homeDir, path[1:])
	}
	return path
}

// Save saves configuration to file
func (c *Config) Save(path string) error {
	v := viper.New()
	v.SetConfigType("yaml")

	v.Set("mode", string(c.Mode))
	v.Set("checkpoint", c.Checkpoint)
	v.Set("sink", c.Sink)
	v.Set("cache", c.Cache)
	v.Set("api", c.API)
	v.Set("risk", c.Risk)
	v.Set("graph", c.Graph)
	v.Set("guard", c.Guard)
	v.Set("investigation", c.Investigation)

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := v.WriteConfigAs(path); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}
