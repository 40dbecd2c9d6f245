// Package config loads and validates tamalebot's configuration from
// environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds the environment inputs recognized by the core (spec §6).
// Chat-platform, CLI, and YAML configuration surfaces are external
// collaborators and are not represented here.
type Config struct {
	// Provider / model selection.
	APIKey   string // From one of several named env vars; fatal if missing.
	Provider string // Optional override; inferred from Model when empty.
	Model    string

	// Agent identity.
	AgentID     string
	AgentName   string
	PolicyName  string
	Mode        string

	// Storage.
	StorageURL string // Optional persistent-storage URL (postgres://... or file://...).
	VaultKeySource string // Secret used to derive the vault's encryption key.

	// HTTP server.
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration

	// Agent loop.
	MaxIterations int

	// JWT bearer auth (optional; enabled when key paths are set).
	JWTPrivateKeyPath string
	JWTPublicKeyPath  string
	JWTExpiration     time.Duration

	// Rate limiting.
	RateLimitEnabled bool
	RateLimitRPS     float64
	RateLimitBurst   int

	// Telemetry.
	OTELEndpoint string
	ServiceName  string
	OTELInsecure bool

	LogLevel string
}

// apiKeyEnvVars lists the environment variables checked, in order, for the
// provider API key (spec §6: "an API key from one of several named
// variables").
var apiKeyEnvVars = []string{
	"TAMALEBOT_API_KEY",
	"ANTHROPIC_API_KEY",
	"OPENAI_API_KEY",
}

// Load reads configuration from environment variables with sensible
// defaults, then validates it. A missing API key is a fatal startup error
// (spec §6, §7).
func Load() (Config, error) {
	cfg := Config{
		APIKey:            firstEnv(apiKeyEnvVars...),
		Provider:          envStr("TAMALEBOT_PROVIDER", ""),
		Model:             envStr("TAMALEBOT_MODEL", "claude-sonnet-4-5"),
		AgentID:           envStr("TAMALEBOT_AGENT_ID", "default"),
		AgentName:         envStr("TAMALEBOT_AGENT_NAME", "tamalebot"),
		PolicyName:        envStr("TAMALEBOT_POLICY", "default"),
		Mode:              envStr("TAMALEBOT_MODE", "standard"),
		StorageURL:        envStr("TAMALEBOT_STORAGE_URL", ""),
		VaultKeySource:    envStr("TAMALEBOT_VAULT_KEY", ""),
		Port:              envInt("TAMALEBOT_PORT", 8080),
		ReadTimeout:       envDuration("TAMALEBOT_READ_TIMEOUT", 30*time.Second),
		WriteTimeout:      envDuration("TAMALEBOT_WRITE_TIMEOUT", 30*time.Second),
		MaxIterations:     envInt("TAMALEBOT_MAX_ITERATIONS", 20),
		JWTPrivateKeyPath: envStr("TAMALEBOT_JWT_PRIVATE_KEY", ""),
		JWTPublicKeyPath:  envStr("TAMALEBOT_JWT_PUBLIC_KEY", ""),
		JWTExpiration:     envDuration("TAMALEBOT_JWT_EXPIRATION", 24*time.Hour),
		RateLimitEnabled:  envBool("TAMALEBOT_RATE_LIMIT_ENABLED", false),
		RateLimitRPS:      envFloat("TAMALEBOT_RATE_LIMIT_RPS", 5),
		RateLimitBurst:    envInt("TAMALEBOT_RATE_LIMIT_BURST", 10),
		OTELEndpoint:      envStr("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
		ServiceName:       envStr("OTEL_SERVICE_NAME", "tamalebot"),
		OTELInsecure:      envBool("OTEL_EXPORTER_OTLP_INSECURE", true),
		LogLevel:          envStr("TAMALEBOT_LOG_LEVEL", "info"),
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks that required configuration is present.
func (c Config) Validate() error {
	if c.APIKey == "" {
		return fmt.Errorf("config: no provider API key set (checked %v)", apiKeyEnvVars)
	}
	if c.MaxIterations <= 0 {
		return fmt.Errorf("config: TAMALEBOT_MAX_ITERATIONS must be positive")
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("config: TAMALEBOT_PORT must be a valid TCP port")
	}
	return nil
}

func firstEnv(keys ...string) string {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			return v
		}
	}
	return ""
}

func envStr(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envInt(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return defaultVal
}

func envFloat(key string, defaultVal float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return defaultVal
}

func envBool(key string, defaultVal bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return defaultVal
}

func envDuration(key string, defaultVal time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return defaultVal
}
