package main

import (
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"

	"github.com/joho/godotenv"
)

// Config holds all umbra engine configuration.
// Priority: env vars > settings.json > defaults.
type Config struct {
	DataDir        string `json:"data_dir"`
	ProfileDataDir string `json:"profile_data_dir"`
	DBPath         string `json:"db_path"`
	ChromiumPath   string `json:"chromium_path"`
	Headless       bool   `json:"headless"`
	PoolSize       int    `json:"pool_size"`
	LogLevel       string `json:"log_level"`

	SMTPHost string `json:"smtp_host"`
	SMTPPort int    `json:"smtp_port"`
	SMTPUser string `json:"smtp_user"`
	SMTPPass string `json:"-"`
	SMTPFrom string `json:"smtp_from"`

	// VaultPassphrase enables proxy credential encryption at rest.
	VaultPassphrase string `json:"-"`
	VaultSalt       string `json:"vault_salt"`
}

func defaultConfig() Config {
	dir := umbraDir()
	return Config{
		DataDir:        dir,
		ProfileDataDir: filepath.Join(dir, "profiles"),
		DBPath:         filepath.Join(dir, "umbra.db"),
		Headless:       true,
		PoolSize:       3,
		LogLevel:       "info",
	}
}

func umbraDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".umbra"
	}
	return filepath.Join(home, ".umbra")
}

func settingsPath() string {
	return filepath.Join(umbraDir(), "settings.json")
}

func loadConfig() Config {
	// Layer 0: .env for local development (ignore if missing).
	_ = godotenv.Load()

	cfg := defaultConfig()

	// Layer 2: settings.json (ignore if missing).
	if data, err := os.ReadFile(settingsPath()); err == nil {
		_ = json.Unmarshal(data, &cfg)
	}

	// Layer 3: env vars override.
	if v := os.Getenv("UMBRA_DATA_DIR"); v != "" {
		cfg.DataDir = v
	}
	if v := os.Getenv("UMBRA_PROFILE_DATA_DIR"); v != "" {
		cfg.ProfileDataDir = v
	}
	if v := os.Getenv("UMBRA_DB_PATH"); v != "" {
		cfg.DBPath = v
	}
	if v := os.Getenv("UMBRA_CHROMIUM_PATH"); v != "" {
		cfg.ChromiumPath = v
	}
	if v := os.Getenv("UMBRA_HEADLESS"); v != "" {
		cfg.Headless = v == "true" || v == "1"
	}
	if v := os.Getenv("UMBRA_POOL_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.PoolSize = n
		}
	}
	if v := os.Getenv("UMBRA_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("UMBRA_SMTP_HOST"); v != "" {
		cfg.SMTPHost = v
	}
	if v := os.Getenv("UMBRA_SMTP_PORT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.SMTPPort = n
		}
	}
	if v := os.Getenv("UMBRA_SMTP_USER"); v != "" {
		cfg.SMTPUser = v
	}
	if v := os.Getenv("UMBRA_SMTP_PASS"); v != "" {
		cfg.SMTPPass = v
	}
	if v := os.Getenv("UMBRA_SMTP_FROM"); v != "" {
		cfg.SMTPFrom = v
	}
	if v := os.Getenv("UMBRA_VAULT_PASSPHRASE"); v != "" {
		cfg.VaultPassphrase = v
	}
	if v := os.Getenv("UMBRA_VAULT_SALT"); v != "" {
		cfg.VaultSalt = v
	}

	return cfg
}

func parseLogLevel(s string) slog.Level {
	switch s {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
