package profile

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// Profile is the configuration to start the main server.
type Profile struct {
	// Mode can be "prod" or "dev" or "demo"
	Mode string
	// Addr is the binding address for server
	Addr string
	// Port is the binding port for server
	Port int
	// Data is the data directory
	Data string
	// DSN points to where mnemod stores its own data
	DSN string
	// Driver is the database driver (sqlite)
	Driver string
	// Version is the current version of server
	Version string

	// Embedding configuration. Embeddings are optional: with no API key
	// the service runs lexical-only.
	EmbeddingProvider string // MNEMOD_EMBEDDING_PROVIDER (openai, mock, none)
	EmbeddingAPIKey   string // MNEMOD_EMBEDDING_API_KEY
	EmbeddingBaseURL  string // MNEMOD_EMBEDDING_BASE_URL (default: https://api.openai.com/v1)
	EmbeddingModel    string // MNEMOD_EMBEDDING_MODEL (default: text-embedding-3-small)
	EmbeddingDims     int    // MNEMOD_EMBEDDING_DIMS (default: 768)

	// Retention configuration.
	RetentionEnabled bool // MNEMOD_RETENTION_ENABLED (default: true)
	RetentionDays    int  // MNEMOD_RETENTION_DAYS (default: 90)
	RetentionMax     int  // MNEMOD_RETENTION_MAX (default: 10000)

	// ContextBudget is the default token budget for context building.
	ContextBudget int // MNEMOD_CONTEXT_BUDGET (default: 800)
}

func (p *Profile) IsDev() bool {
	return p.Mode != "prod"
}

// IsEmbeddingEnabled returns true if an embedding provider is usable.
// The mock provider needs no key; openai needs a key or a custom base URL
// pointing at a local OpenAI-compatible server.
func (p *Profile) IsEmbeddingEnabled() bool {
	switch p.EmbeddingProvider {
	case "mock":
		return true
	case "openai":
		return p.EmbeddingAPIKey != "" || p.EmbeddingBaseURL != defaultEmbeddingBaseURL
	default:
		return false
	}
}

const defaultEmbeddingBaseURL = "https://api.openai.com/v1"

// getEnvOrDefault returns the environment variable value or the default value.
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnvOrDefault(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}
	return n
}

func getBoolEnvOrDefault(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value == "true"
}

// FromEnv loads configuration from MNEMOD_* environment variables.
func (p *Profile) FromEnv() {
	p.EmbeddingProvider = getEnvOrDefault("MNEMOD_EMBEDDING_PROVIDER", "openai")
	p.EmbeddingAPIKey = os.Getenv("MNEMOD_EMBEDDING_API_KEY")
	p.EmbeddingBaseURL = getEnvOrDefault("MNEMOD_EMBEDDING_BASE_URL", defaultEmbeddingBaseURL)
	p.EmbeddingModel = getEnvOrDefault("MNEMOD_EMBEDDING_MODEL", "text-embedding-3-small")
	p.EmbeddingDims = getIntEnvOrDefault("MNEMOD_EMBEDDING_DIMS", 768)

	p.RetentionEnabled = getBoolEnvOrDefault("MNEMOD_RETENTION_ENABLED", true)
	p.RetentionDays = getIntEnvOrDefault("MNEMOD_RETENTION_DAYS", 90)
	p.RetentionMax = getIntEnvOrDefault("MNEMOD_RETENTION_MAX", 10000)

	p.ContextBudget = getIntEnvOrDefault("MNEMOD_CONTEXT_BUDGET", 800)
}

func checkDataDir(dataDir string) (string, error) {
	// Convert to absolute path if relative path is supplied.
	if !filepath.IsAbs(dataDir) {
		relativeDir := filepath.Join(filepath.Dir(os.Args[0]), dataDir)
		absDir, err := filepath.Abs(relativeDir)
		if err != nil {
			return "", err
		}
		dataDir = absDir
	}

	// Trim trailing \ or / in case user supplies
	dataDir = strings.TrimRight(dataDir, "\\/")
	if _, err := os.Stat(dataDir); err != nil {
		return "", errors.Wrapf(err, "unable to access data folder %s", dataDir)
	}
	return dataDir, nil
}

func (p *Profile) Validate() error {
	if p.Mode != "demo" && p.Mode != "dev" && p.Mode != "prod" {
		p.Mode = "demo"
	}

	if p.Port < 0 || p.Port > 65535 {
		return errors.Errorf("invalid port %d", p.Port)
	}

	if p.Mode == "prod" && p.Data == "" {
		if runtime.GOOS == "windows" {
			p.Data = filepath.Join(os.Getenv("ProgramData"), "mnemod")
			if _, err := os.Stat(p.Data); os.IsNotExist(err) {
				if err := os.MkdirAll(p.Data, 0770); err != nil {
					slog.Error("failed to create data directory", slog.String("data", p.Data), slog.String("error", err.Error()))
					return err
				}
			}
		} else {
			p.Data = "/var/opt/mnemod"
		}
	}

	dataDir, err := checkDataDir(p.Data)
	if err != nil {
		slog.Error("failed to check data dir", slog.String("data", dataDir), slog.String("error", err.Error()))
		return err
	}

	p.Data = dataDir
	if p.Driver == "sqlite" && p.DSN == "" {
		dbFile := fmt.Sprintf("mnemod_%s.db", p.Mode)
		p.DSN = filepath.Join(dataDir, dbFile)
	}

	if p.EmbeddingDims <= 0 {
		return errors.Errorf("invalid embedding dimensions %d", p.EmbeddingDims)
	}
	if p.RetentionDays < 0 || p.RetentionMax < 0 {
		return errors.New("retention limits must not be negative")
	}
	if p.ContextBudget <= 0 {
		p.ContextBudget = 800
	}

	return nil
}
