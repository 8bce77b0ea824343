package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	env "github.com/Netflix/go-env"
	"github.com/joho/godotenv"
)

const (
	DefaultConfigPath     = "config.json"
	DefaultServiceAccount = "googleserviceaccount.json"
	DefaultPort           = "3000"
	DefaultSpreadsheetID  = "1mKEZjc89U1-8tmfPDs8004GtS-6yL9h9PfcBimuNBBk"
	DefaultSheetName      = "ReelShareConfig"
	DefaultSheetRange     = "B1:B3"
	// DefaultMaxUploadBytes matches the largest file the Gemini Files API accepts.
	DefaultMaxUploadBytes = 2 << 30
)

// Config represents runtime configuration for the service.
type Config struct {
	BasicConfig    BasicConfig               `json:"basic_config"`
	ServiceAccount ServiceAccountConfig      `json:"service_account"`
	Sheet          SheetConfig               `json:"sheet"`
	Gemini         GeminiConfig              `json:"gemini"`
	Ingest         IngestConfig              `json:"ingest"`
	Workers        WorkerConfig              `json:"workers"`
	Redis          RedisConfig               `json:"redis"`
	Databases      map[string]DatabaseConfig `json:"databases"`
}

type BasicConfig struct {
	ServerAddress  string `json:"server_address"`
	TempDir        string `json:"temp_dir"`
	MaxUploadBytes int64  `json:"max_upload_bytes"`
	Database       string `json:"database"`
}

type ServiceAccountConfig struct {
	File     string `json:"file"`
	TokenURI string `json:"token_uri"`
}

type SheetConfig struct {
	SpreadsheetID string `json:"spreadsheet_id"`
	SheetName     string `json:"sheet_name"`
	Range         string `json:"range"`
	Endpoint      string `json:"endpoint"`
}

// GeminiConfig overrides the genai backend, mostly useful behind a proxy.
type GeminiConfig struct {
	BaseURL string `json:"base_url"`
}

type IngestConfig struct {
	PollIntervalSeconds int `json:"poll_interval_seconds"`
	PollTimeoutSeconds  int `json:"poll_timeout_seconds"`
	MaxPolls            int `json:"max_polls"`
	DownloadTimeoutSecs int `json:"download_timeout_seconds"`
}

type WorkerConfig struct {
	MinWorkers        int `json:"min_workers"`
	MaxWorkers        int `json:"max_workers"`
	QueueSize         int `json:"queue_size"`
	WorkerIdleTimeout int `json:"worker_idle_timeout"`
}

type RedisConfig struct {
	Enabled       bool   `json:"enabled"`
	Host          string `json:"host"`
	Port          int    `json:"port"`
	Username      string `json:"username"`
	Password      string `json:"password"`
	DB            int    `json:"db"`
	EncryptionKey string `json:"encryption_key"`
	TTLMinutes    int    `json:"ttl_minutes"`
}

type DatabaseConfig struct {
	DSN      string `json:"dsn"`
	Host     string `json:"host"`
	Port     int    `json:"port"`
	Username string `json:"username"`
	Password string `json:"password"`
	DBName   string `json:"db_name"`
	Params   string `json:"params"`
}

// Environment lists the variables that override the JSON file.
type Environment struct {
	Port           string `env:"PORT"`
	ServiceAccount string `env:"REELSHARE_SERVICE_ACCOUNT"`
	Database       string `env:"REELSHARE_DB"`
	TempDir        string `env:"REELSHARE_TEMP_DIR"`
	CacheKey       string `env:"REELSHARE_CACHE_KEY"`
	RedisAddr      string `env:"REELSHARE_REDIS_HOST"`
}

// Load reads configuration from the provided path (defaults to config.json).
// A missing default file is not an error; defaults and environment apply.
func Load(path string) (*Config, error) {
	// .env is optional, mirroring the dotenv behaviour of the deployment scripts.
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	explicit := path != ""
	if !explicit {
		path = DefaultConfigPath
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve config path: %w", err)
	}

	var cfg Config
	file, err := os.Open(absPath)
	switch {
	case err == nil:
		defer file.Close()
		if err := json.NewDecoder(file).Decode(&cfg); err != nil {
			return nil, fmt.Errorf("decode config: %w", err)
		}
	case errors.Is(err, os.ErrNotExist) && !explicit:
	default:
		return nil, fmt.Errorf("open config %s: %w", absPath, err)
	}

	var envCfg Environment
	if _, err := env.UnmarshalFromEnviron(&envCfg); err != nil {
		return nil, fmt.Errorf("read environment: %w", err)
	}
	cfg.applyEnvironment(envCfg)
	cfg.applyDefaults()

	if cfg.ServiceAccount.File != "" && !filepath.IsAbs(cfg.ServiceAccount.File) {
		cfg.ServiceAccount.File = filepath.Join(filepath.Dir(absPath), cfg.ServiceAccount.File)
	}
	if dbCfg, ok := cfg.Databases["sqlite3"]; ok && dbCfg.DSN != "" && !filepath.IsAbs(dbCfg.DSN) && !strings.HasPrefix(dbCfg.DSN, "file:") {
		dbCfg.DSN = filepath.Join(filepath.Dir(absPath), dbCfg.DSN)
		cfg.Databases["sqlite3"] = dbCfg
	}
	return &cfg, nil
}

func (c *Config) applyEnvironment(e Environment) {
	if e.Port != "" {
		c.BasicConfig.ServerAddress = ":" + strings.TrimPrefix(e.Port, ":")
	}
	if e.ServiceAccount != "" {
		c.ServiceAccount.File = e.ServiceAccount
	}
	if e.Database != "" {
		c.BasicConfig.Database = e.Database
	}
	if e.TempDir != "" {
		c.BasicConfig.TempDir = e.TempDir
	}
	if e.CacheKey != "" {
		c.Redis.EncryptionKey = e.CacheKey
	}
	if e.RedisAddr != "" {
		c.Redis.Enabled = true
		c.Redis.Host = e.RedisAddr
	}
}

func (c *Config) applyDefaults() {
	if c.BasicConfig.ServerAddress == "" {
		c.BasicConfig.ServerAddress = ":" + DefaultPort
	}
	if c.BasicConfig.TempDir == "" {
		c.BasicConfig.TempDir = os.TempDir()
	}
	if c.BasicConfig.MaxUploadBytes <= 0 {
		c.BasicConfig.MaxUploadBytes = DefaultMaxUploadBytes
	}
	if c.ServiceAccount.File == "" {
		c.ServiceAccount.File = DefaultServiceAccount
	}
	if c.Sheet.SpreadsheetID == "" {
		c.Sheet.SpreadsheetID = DefaultSpreadsheetID
	}
	if c.Sheet.SheetName == "" {
		c.Sheet.SheetName = DefaultSheetName
	}
	if c.Sheet.Range == "" {
		c.Sheet.Range = DefaultSheetRange
	}
	if c.Ingest.PollIntervalSeconds <= 0 {
		c.Ingest.PollIntervalSeconds = 2
	}
	if c.Ingest.PollTimeoutSeconds <= 0 {
		c.Ingest.PollTimeoutSeconds = 600
	}
	if c.Ingest.MaxPolls <= 0 {
		c.Ingest.MaxPolls = c.Ingest.PollTimeoutSeconds / c.Ingest.PollIntervalSeconds
	}
	if c.Ingest.DownloadTimeoutSecs <= 0 {
		c.Ingest.DownloadTimeoutSecs = 600
	}
	if c.Workers.MaxWorkers <= 0 {
		c.Workers.MaxWorkers = 8
	}
	if c.Workers.QueueSize <= 0 {
		c.Workers.QueueSize = 64
	}
}

// SheetRange returns the A1 notation range including the sheet name.
func (s SheetConfig) SheetRange() string {
	return fmt.Sprintf("%s!%s", s.SheetName, s.Range)
}
