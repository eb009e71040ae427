package app

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"

	"jassist-go/internal/config"
)

// Environment variables read by jassist.
const (
	EnvConfigPath = "JASSIST_CONFIG_PATH"
	EnvHome       = "JASSIST_HOME"
	EnvOpenAIKey  = "OPENAI_API_KEY"
	EnvRedisURL   = "JASSIST_REDIS_URL"
)

// LoadEnv loads .env from the working directory and then from the data home.
// Variables already set in the environment win; missing files are ignored.
func LoadEnv() error {
	if err := loadEnvFile(".env"); err != nil {
		return err
	}
	baseDir, err := getBaseDir()
	if err != nil {
		return err
	}
	return loadEnvFile(filepath.Join(baseDir, ".env"))
}

func loadEnvFile(path string) error {
	if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("loading %s: %w", path, err)
	}
	return nil
}

// GetDefaults returns application default paths, checking environment variables first.
// Environment variables:
//   - JASSIST_CONFIG_PATH: config file location (default: ~/.config/jassist.toml)
//   - JASSIST_HOME: base directory for jassist data (default: ~/.local/share/jassist)
func GetDefaults() (map[string]string, error) {
	configPath, err := getConfigPath()
	if err != nil {
		return nil, err
	}

	baseDir, err := getBaseDir()
	if err != nil {
		return nil, err
	}

	return map[string]string{
		"config_path": configPath,
		"base_dir":    baseDir,
		"log_dir":     filepath.Join(baseDir, "log"),
	}, nil
}

// LoadConfig reads the config file over the defaults and applies environment overrides.
func LoadConfig() (*config.Config, error) {
	defaults, err := GetDefaults()
	if err != nil {
		return nil, err
	}
	cfg, err := config.LoadFile(defaults["config_path"], config.NewConfig(defaults["base_dir"]))
	if err != nil {
		return nil, err
	}
	ApplyEnv(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnv overrides the redis URLs from JASSIST_REDIS_URL when it is set.
func ApplyEnv(cfg *config.Config) {
	if url := os.Getenv(EnvRedisURL); url != "" {
		cfg.Queue.RedisURL = url
		cfg.Session.RedisURL = url
	}
}

// getConfigPath returns the config file path, checking JASSIST_CONFIG_PATH env var first,
// then falling back to the default ~/.config/jassist.toml.
func getConfigPath() (string, error) {
	if path := os.Getenv(EnvConfigPath); path != "" {
		return path, nil
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	return filepath.Join(homeDir, ".config", "jassist.toml"), nil
}

// getBaseDir returns the base directory for jassist data, checking JASSIST_HOME env var first,
// then falling back to the XDG default ~/.local/share/jassist.
func getBaseDir() (string, error) {
	if path := os.Getenv(EnvHome); path != "" {
		return path, nil
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	return filepath.Join(homeDir, ".local", "share", "jassist"), nil
}
