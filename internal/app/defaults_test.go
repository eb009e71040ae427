package app

import (
	"os"
	"path/filepath"
	"testing"

	"jassist-go/internal/config"
)

func TestGetDefaults(t *testing.T) {
	t.Run("uses env vars when set", func(t *testing.T) {
		t.Setenv("JASSIST_CONFIG_PATH", "/custom/config.toml")
		t.Setenv("JASSIST_HOME", "/custom/jassist")

		defaults, err := GetDefaults()
		if err != nil {
			t.Fatalf("GetDefaults() error = %v", err)
		}

		if defaults["config_path"] != "/custom/config.toml" {
			t.Errorf("config_path = %q, want %q", defaults["config_path"], "/custom/config.toml")
		}
		if defaults["base_dir"] != "/custom/jassist" {
			t.Errorf("base_dir = %q, want %q", defaults["base_dir"], "/custom/jassist")
		}
		if defaults["log_dir"] != "/custom/jassist/log" {
			t.Errorf("log_dir = %q, want %q", defaults["log_dir"], "/custom/jassist/log")
		}
	})

	t.Run("falls back to home dir defaults", func(t *testing.T) {
		t.Setenv("JASSIST_CONFIG_PATH", "")
		t.Setenv("JASSIST_HOME", "")

		defaults, err := GetDefaults()
		if err != nil {
			t.Fatalf("GetDefaults() error = %v", err)
		}

		homeDir, _ := os.UserHomeDir()

		wantConfig := filepath.Join(homeDir, ".config", "jassist.toml")
		if defaults["config_path"] != wantConfig {
			t.Errorf("config_path = %q, want %q", defaults["config_path"], wantConfig)
		}

		wantBase := filepath.Join(homeDir, ".local", "share", "jassist")
		if defaults["base_dir"] != wantBase {
			t.Errorf("base_dir = %q, want %q", defaults["base_dir"], wantBase)
		}

		wantLog := filepath.Join(wantBase, "log")
		if defaults["log_dir"] != wantLog {
			t.Errorf("log_dir = %q, want %q", defaults["log_dir"], wantLog)
		}
	})
}

func TestLoadEnv(t *testing.T) {
	home := t.TempDir()
	t.Setenv("JASSIST_HOME", home)
	t.Chdir(t.TempDir())

	if err := os.WriteFile(filepath.Join(home, ".env"), []byte("JASSIST_TEST_FROM_HOME=yes\nJASSIST_TEST_PRESET=file\n"), 0600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("JASSIST_TEST_PRESET", "env")
	t.Setenv("JASSIST_TEST_FROM_HOME", "")
	os.Unsetenv("JASSIST_TEST_FROM_HOME")

	if err := LoadEnv(); err != nil {
		t.Fatalf("LoadEnv() error = %v", err)
	}
	if got := os.Getenv("JASSIST_TEST_FROM_HOME"); got != "yes" {
		t.Errorf("JASSIST_TEST_FROM_HOME = %q, want yes", got)
	}
	if got := os.Getenv("JASSIST_TEST_PRESET"); got != "env" {
		t.Errorf("JASSIST_TEST_PRESET = %q, want env", got)
	}
}

func TestLoadConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "jassist.toml")
	t.Setenv("JASSIST_CONFIG_PATH", path)
	t.Setenv("JASSIST_HOME", dir)
	t.Setenv("JASSIST_REDIS_URL", "redis://localhost:6379/2")

	data := "[queue]\ntype = \"asynq\"\n\n[[drive.accounts]]\nuser_id = \"alice\"\nactive = true\n"
	if err := os.WriteFile(path, []byte(data), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}
	if cfg.Queue.RedisURL != "redis://localhost:6379/2" {
		t.Errorf("Queue.RedisURL = %q", cfg.Queue.RedisURL)
	}
	if cfg.Transcription.Model != config.NewConfig(dir).Transcription.Model {
		t.Errorf("default transcription model lost: %q", cfg.Transcription.Model)
	}
	if cfg.Account("alice") == nil {
		t.Error("account alice not loaded")
	}
}
