// Package config loads application settings from YAML with environment
// overrides.
package config

import (
	"log"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	configPathEnv    = "CURATOR_CONFIG"
	databasePathEnv  = "CURATOR_DB_PATH"
	logLevelEnv      = "CURATOR_LOG_LEVEL"
	ncbiAPIKeyEnv    = "NCBI_API_KEY"
	ncbiEmailEnv     = "NCBI_EMAIL"
	classifierURLEnv = "CLASSIFIER_URL"
	classifierKeyEnv = "CLASSIFIER_API_KEY"
)

// Config holds high-level settings required across the application.
type Config struct {
	LogLevel   string           `yaml:"logLevel"`
	Database   DatabaseConfig   `yaml:"database"`
	NCBI       NCBIConfig       `yaml:"ncbi"`
	Sync       SyncConfig       `yaml:"sync"`
	Classifier ClassifierConfig `yaml:"classifier"`
}

// DatabaseConfig describes where the SQLite store lives.
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// NCBIConfig identifies this client to the E-utilities service.
type NCBIConfig struct {
	APIKey string `yaml:"apiKey"`
	Tool   string `yaml:"tool"`
	Email  string `yaml:"email"`
}

// SyncConfig tunes the ingestion runs.
type SyncConfig struct {
	// Terms are the search phrases each run fans out over.
	Terms []string `yaml:"terms"`
	// FloorYear is where full-sync windowing starts.
	FloorYear   int `yaml:"floorYear"`
	WindowYears int `yaml:"windowYears"`
	MaxPerTerm  int `yaml:"maxPerTerm"`
	FanOut      int `yaml:"fanOut"`
	// BatchDelayMS spaces out source requests between batches.
	BatchDelayMS int `yaml:"batchDelayMs"`
	// CooldownSeconds is how long a finished run stays visible before the
	// tracker reverts to idle.
	CooldownSeconds int `yaml:"cooldownSeconds"`
}

// BatchDelay returns the inter-batch delay as a duration.
func (s SyncConfig) BatchDelay() time.Duration {
	return time.Duration(s.BatchDelayMS) * time.Millisecond
}

// Cooldown returns the post-run cooldown as a duration.
func (s SyncConfig) Cooldown() time.Duration {
	return time.Duration(s.CooldownSeconds) * time.Second
}

// ClassifierConfig describes the optional remote categorization service.
// With an empty URL, categorization falls back to keyword matching only.
type ClassifierConfig struct {
	URL           string  `yaml:"url"`
	APIKey        string  `yaml:"apiKey"`
	AutoApproveAt float64 `yaml:"autoApproveAt"`
}

// Load reads YAML configuration (if present) and applies environment
// overrides.
func Load() Config {
	cfg := defaultConfig()

	if path := os.Getenv(configPathEnv); path != "" {
		if raw, err := os.ReadFile(path); err != nil {
			log.Printf("config: cannot read %s: %v (falling back to defaults)", path, err)
		} else {
			var fileCfg Config
			if err := yaml.Unmarshal(raw, &fileCfg); err != nil {
				log.Printf("config: cannot parse %s: %v (falling back to defaults)", path, err)
			} else {
				cfg = mergeConfig(cfg, fileCfg)
			}
		}
	}

	cfg.applyEnvOverrides()
	return cfg
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv(databasePathEnv); v != "" {
		c.Database.Path = v
	}
	if v := os.Getenv(logLevelEnv); v != "" {
		c.LogLevel = v
	}
	if v := os.Getenv(ncbiAPIKeyEnv); v != "" {
		c.NCBI.APIKey = v
	}
	if v := os.Getenv(ncbiEmailEnv); v != "" {
		c.NCBI.Email = v
	}
	if v := os.Getenv(classifierURLEnv); v != "" {
		c.Classifier.URL = v
	}
	if v := os.Getenv(classifierKeyEnv); v != "" {
		c.Classifier.APIKey = v
	}
}

func mergeConfig(base, override Config) Config {
	if override.LogLevel != "" {
		base.LogLevel = override.LogLevel
	}
	if override.Database.Path != "" {
		base.Database = override.Database
	}

	if override.NCBI.APIKey != "" {
		base.NCBI.APIKey = override.NCBI.APIKey
	}
	if override.NCBI.Tool != "" {
		base.NCBI.Tool = override.NCBI.Tool
	}
	if override.NCBI.Email != "" {
		base.NCBI.Email = override.NCBI.Email
	}

	if len(override.Sync.Terms) > 0 {
		base.Sync.Terms = override.Sync.Terms
	}
	if override.Sync.FloorYear != 0 {
		base.Sync.FloorYear = override.Sync.FloorYear
	}
	if override.Sync.WindowYears != 0 {
		base.Sync.WindowYears = override.Sync.WindowYears
	}
	if override.Sync.MaxPerTerm != 0 {
		base.Sync.MaxPerTerm = override.Sync.MaxPerTerm
	}
	if override.Sync.FanOut != 0 {
		base.Sync.FanOut = override.Sync.FanOut
	}
	if override.Sync.BatchDelayMS != 0 {
		base.Sync.BatchDelayMS = override.Sync.BatchDelayMS
	}
	if override.Sync.CooldownSeconds != 0 {
		base.Sync.CooldownSeconds = override.Sync.CooldownSeconds
	}

	if override.Classifier.URL != "" {
		base.Classifier.URL = override.Classifier.URL
	}
	if override.Classifier.APIKey != "" {
		base.Classifier.APIKey = override.Classifier.APIKey
	}
	if override.Classifier.AutoApproveAt != 0 {
		base.Classifier.AutoApproveAt = override.Classifier.AutoApproveAt
	}

	return base
}

func defaultConfig() Config {
	return Config{
		LogLevel: "info",
		Database: DatabaseConfig{Path: "curator.db"},
		NCBI:     NCBIConfig{Tool: "curator"},
		Sync: SyncConfig{
			FloorYear:       1990,
			WindowYears:     5,
			FanOut:          5,
			BatchDelayMS:    350,
			CooldownSeconds: 30,
		},
		Classifier: ClassifierConfig{AutoApproveAt: 0.8},
	}
}
