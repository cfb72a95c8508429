package config

import (
	"os"
	"strconv"

	"github.com/BurntSushi/toml"
)

type Config struct {
	Server    ServerConfig    `toml:"server"`
	Database  DatabaseConfig  `toml:"database"`
	Embedding EmbeddingConfig `toml:"embedding"`
	QA        QAConfig        `toml:"qa"`
	Chunking  ChunkingConfig  `toml:"chunking"`
	Query     QueryConfig     `toml:"query"`
	Observer  ObserverConfig  `toml:"observer"`
}

type ServerConfig struct {
	Addr            string `toml:"addr"`
	MaxUploadBytes  int64  `toml:"max_upload_bytes"`
	UploadRPM       int    `toml:"upload_rpm"`
	QuestionRPM     int    `toml:"question_rpm"`
	ShutdownSeconds int    `toml:"shutdown_seconds"`
}

type DatabaseConfig struct {
	// PostgresDSN selects the pgvector backend when set; otherwise the
	// local SQLite file at Path is used.
	PostgresDSN string `toml:"postgres_dsn"`
	Path        string `toml:"path"`
}

type EmbeddingConfig struct {
	Model      string `toml:"model"`
	Dimensions int    `toml:"dimensions"`
	APIKey     string `toml:"api_key"`
	BaseURL    string `toml:"base_url"`
	RPM        int    `toml:"rpm"`
}

type QAConfig struct {
	Model   string `toml:"model"`
	APIKey  string `toml:"api_key"`
	BaseURL string `toml:"base_url"`
	RPM     int    `toml:"rpm"`
}

type ChunkingConfig struct {
	Size    int `toml:"size"`
	Overlap int `toml:"overlap"`
}

type QueryConfig struct {
	TopK int `toml:"top_k"`
}

type ObserverConfig struct {
	Enabled bool `toml:"enabled"`
}

// Default returns a Config with all defaults applied.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Addr:            ":5000",
			MaxUploadBytes:  16 << 20,
			UploadRPM:       10,
			QuestionRPM:     60,
			ShutdownSeconds: 10,
		},
		Database:  DatabaseConfig{Path: "papyr.db"},
		Embedding: EmbeddingConfig{Model: "sentence-transformers/all-MiniLM-L6-v2", Dimensions: 384},
		QA:        QAConfig{Model: "deepset/roberta-base-squad2"},
		Chunking:  ChunkingConfig{Size: 250, Overlap: 50},
		Query:     QueryConfig{TopK: 5},
	}
}

// Load reads config: defaults -> TOML file -> env vars (env wins).
func Load(path string) Config {
	cfg := Default()

	if path == "" {
		path = "papyr.toml"
	}

	if data, err := os.ReadFile(path); err == nil {
		_ = toml.Unmarshal(data, &cfg)
	}

	// Env overrides
	if v := os.Getenv("PAPYR_ADDR"); v != "" {
		cfg.Server.Addr = v
	}
	if v := os.Getenv("PAPYR_POSTGRES_DSN"); v != "" {
		cfg.Database.PostgresDSN = v
	}
	if v := os.Getenv("PAPYR_DB_PATH"); v != "" {
		cfg.Database.Path = v
	}
	if v := os.Getenv("PAPYR_HF_API_KEY"); v != "" {
		cfg.Embedding.APIKey = v
		cfg.QA.APIKey = v
	}
	if v := os.Getenv("PAPYR_EMBEDDING_API_KEY"); v != "" {
		cfg.Embedding.APIKey = v
	}
	if v := os.Getenv("PAPYR_EMBEDDING_MODEL"); v != "" {
		cfg.Embedding.Model = v
	}
	if v := os.Getenv("PAPYR_EMBEDDING_DIMENSIONS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Embedding.Dimensions = n
		}
	}
	if v := os.Getenv("PAPYR_QA_API_KEY"); v != "" {
		cfg.QA.APIKey = v
	}
	if v := os.Getenv("PAPYR_QA_MODEL"); v != "" {
		cfg.QA.Model = v
	}
	if os.Getenv("PAPYR_OBSERVER_ENABLED") == "true" || os.Getenv("PAPYR_OBSERVER_ENABLED") == "1" {
		cfg.Observer.Enabled = true
	}

	// Fallbacks
	if cfg.QA.APIKey == "" {
		cfg.QA.APIKey = cfg.Embedding.APIKey
	}

	return cfg
}
