package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
)

// Config represents the main configuration for jassist.
type Config struct {
	BaseDir        string               `toml:"base_dir"`
	LogDir         string               `toml:"log_dir"`
	Debug          bool                 `toml:"debug"`
	Database       DatabaseConfig       `toml:"database"`
	Remote         RemoteConfig         `toml:"remote"`
	Drive          DriveConfig          `toml:"drive"`
	Transcription  TranscriptionConfig  `toml:"transcription"`
	Classification ClassificationConfig `toml:"classification"`
	Secrets        SecretsConfig        `toml:"secrets"`
	Queue          QueueConfig          `toml:"queue"`
	Server         ServerConfig         `toml:"server"`
	Session        SessionConfig        `toml:"session"`
}

// DatabaseConfig represents configuration for the job database.
// This uses a tagged union pattern - the Type field determines which other fields are relevant.
type DatabaseConfig struct {
	Type    string `toml:"type"`               // "sqlite" or "memory"
	DataDir string `toml:"data_dir,omitempty"` // only used for type=sqlite
}

// RemoteConfig represents configuration for the remote file source.
// This uses a tagged union pattern - the Type field determines which other fields are relevant.
type RemoteConfig struct {
	Type string `toml:"type"` // "gdrive", "s3", "filesystem" or "memory"

	// gdrive-specific fields. The OAuth client and per-user tokens live in the secrets store.
	DriveBaseURL string `toml:"drive_base_url,omitempty"`

	// S3-specific fields (only used when Type == "s3")
	S3Bucket   string `toml:"s3_bucket,omitempty"`
	S3Prefix   string `toml:"s3_prefix,omitempty"`
	S3Region   string `toml:"s3_region,omitempty"`
	S3Endpoint string `toml:"s3_endpoint,omitempty"`

	// FileSystem-specific fields (only used when Type == "filesystem")
	FSRoot string `toml:"fs_root,omitempty"`
}

// DriveConfig holds the download settings shared by every account.
type DriveConfig struct {
	DownloadsDir        string          `toml:"downloads_dir"`
	Extensions          []string        `toml:"extensions"`
	Exclude             []string        `toml:"exclude"`
	DeleteAfterDownload bool            `toml:"delete_after_download"`
	AddTimestamp        bool            `toml:"add_timestamp"`
	TimestampFormat     string          `toml:"timestamp_format"` // Go time layout
	AutoTranscribe      bool            `toml:"auto_transcribe"`
	Accounts            []AccountConfig `toml:"accounts"`
}

// AccountConfig is the per-user part of the drive configuration.
type AccountConfig struct {
	UserID        string   `toml:"user_id"`
	TargetFolders []string `toml:"target_folders"`
	Schedule      string   `toml:"schedule"` // e.g. "daily:1", "weekly:monday", "cron:0 6 * * *"
	Active        bool     `toml:"active"`
}

// TranscriptionConfig holds speech-to-text settings.
type TranscriptionConfig struct {
	Active                  bool    `toml:"active"`
	BaseURL                 string  `toml:"base_url"`
	Model                   string  `toml:"model"`
	Language                string  `toml:"language"`
	Prompt                  string  `toml:"prompt"`
	ResponseFormat          string  `toml:"response_format"` // requested from the API
	OutputFormat            string  `toml:"output_format"`   // txt, json, srt or vtt
	ResultsDir              string  `toml:"results_dir"`
	MetricsDir              string  `toml:"metrics_dir"`
	TimestampFormat         string  `toml:"timestamp_format"`
	MaxAudioDurationSeconds float64 `toml:"max_audio_duration_seconds"`
	WarnOnLargeFiles        bool    `toml:"warn_on_large_files"`
	SplitOversized          bool    `toml:"split_oversized"`
	FFmpegPath              string  `toml:"ffmpeg_path"`
	FFprobePath             string  `toml:"ffprobe_path"`
	TimeoutSeconds          int     `toml:"timeout_seconds"`
}

// ClassificationConfig holds the assistant settings used to label transcripts.
type ClassificationConfig struct {
	BaseURL             string  `toml:"base_url"`
	AssistantName       string  `toml:"assistant_name"`
	Model               string  `toml:"model"`
	Temperature         float64 `toml:"temperature"`
	ResponseFormat      string  `toml:"response_format"`
	SaveUsageStats      bool    `toml:"save_usage_stats"`
	ThreadRetentionDays int     `toml:"thread_retention_days"`
	PollIntervalMs      int     `toml:"poll_interval_ms"`
	RunTimeoutSeconds   int     `toml:"run_timeout_seconds"`
	SessionName         string  `toml:"session_name"`
	PromptsFile         string  `toml:"prompts_file"`
}

// SecretsConfig locates the age key pair and the sealed secrets file.
type SecretsConfig struct {
	Type           string `toml:"type"` // "age" (default) or "test"
	PublicKeyPath  string `toml:"public_key_path"`
	PrivateKeyPath string `toml:"private_key_path"`
	StorePath      string `toml:"store_path"`
}

// QueueConfig selects how submitted transcriptions reach a worker.
// This uses a tagged union pattern - the Type field determines which other fields are relevant.
type QueueConfig struct {
	Type        string `toml:"type"`                // "memory" or "asynq"
	RedisURL    string `toml:"redis_url,omitempty"` // only used for type=asynq
	Concurrency int    `toml:"concurrency"`
	MaxRetry    int    `toml:"max_retry"`
}

// ServerConfig holds the HTTP API settings.
type ServerConfig struct {
	Addr           string   `toml:"addr"`
	Mode           string   `toml:"mode"` // gin mode: debug, release or test
	AllowedOrigins []string `toml:"allowed_origins"`
}

// SessionConfig selects where the assistant session ids are cached.
type SessionConfig struct {
	Type     string `toml:"type"` // "database" (default) or "redis"
	RedisURL string `toml:"redis_url,omitempty"`
}

// NewConfig creates a new Config rooted at baseDir with every default filled in.
func NewConfig(baseDir string) *Config {
	return &Config{
		BaseDir: baseDir,
		LogDir:  filepath.Join(baseDir, "log"),
		Database: DatabaseConfig{
			Type:    "sqlite",
			DataDir: filepath.Join(baseDir, "db"),
		},
		Remote: RemoteConfig{Type: "gdrive"},
		Drive: DriveConfig{
			DownloadsDir:    filepath.Join(baseDir, "downloads"),
			Extensions:      []string{".mp3", ".m4a", ".wav", ".pdf"},
			AddTimestamp:    true,
			TimestampFormat: DefaultTimestampFormat,
			AutoTranscribe:  true,
		},
		Transcription: TranscriptionConfig{
			Active:                  true,
			BaseURL:                 DefaultOpenAIBaseURL,
			Model:                   "gpt-4o-transcribe",
			ResponseFormat:          "json",
			OutputFormat:            "txt",
			ResultsDir:              filepath.Join(baseDir, "transcriptions"),
			MetricsDir:              filepath.Join(baseDir, "metrics"),
			TimestampFormat:         DefaultTimestampFormat,
			MaxAudioDurationSeconds: 300,
			WarnOnLargeFiles:        true,
			FFmpegPath:              "ffmpeg",
			FFprobePath:             "ffprobe",
			TimeoutSeconds:          300,
		},
		Classification: ClassificationConfig{
			BaseURL:             DefaultOpenAIBaseURL,
			AssistantName:       "Classification Assistant",
			Model:               "gpt-4o",
			Temperature:         0.2,
			ResponseFormat:      "json_object",
			SaveUsageStats:      true,
			ThreadRetentionDays: 30,
			PollIntervalMs:      1000,
			RunTimeoutSeconds:   300,
			SessionName:         "default",
			PromptsFile:         filepath.Join(baseDir, "prompts.yaml"),
		},
		Secrets: SecretsConfig{
			Type:           "age",
			PublicKeyPath:  filepath.Join(baseDir, "keys", "jassist.pub"),
			PrivateKeyPath: filepath.Join(baseDir, "keys", "jassist.key"),
			StorePath:      filepath.Join(baseDir, "secrets.age"),
		},
		Queue: QueueConfig{
			Type:        "memory",
			Concurrency: 2,
			MaxRetry:    3,
		},
		Server: ServerConfig{
			Addr: "127.0.0.1:8080",
			Mode: "release",
		},
		Session: SessionConfig{Type: "database"},
	}
}

const (
	// DefaultTimestampFormat is the layout inserted into downloaded and transcribed file names.
	DefaultTimestampFormat = "20060102_150405"
	DefaultOpenAIBaseURL   = "https://api.openai.com/v1"
)

// Account returns the drive account for userID, or nil.
func (c *Config) Account(userID string) *AccountConfig {
	for i := range c.Drive.Accounts {
		if c.Drive.Accounts[i].UserID == userID {
			return &c.Drive.Accounts[i]
		}
	}
	return nil
}

// Validate checks the cross-field rules that TOML decoding cannot express.
func (c *Config) Validate() error {
	var problems []string

	switch c.Database.Type {
	case "sqlite", "memory", "":
	default:
		problems = append(problems, fmt.Sprintf("unknown database type %q", c.Database.Type))
	}

	switch c.Remote.Type {
	case "gdrive", "memory", "":
	case "s3":
		if c.Remote.S3Bucket == "" {
			problems = append(problems, "remote s3_bucket required for type=s3")
		}
	case "filesystem":
		if c.Remote.FSRoot == "" {
			problems = append(problems, "remote fs_root required for type=filesystem")
		}
	default:
		problems = append(problems, fmt.Sprintf("unknown remote type %q", c.Remote.Type))
	}

	switch c.Queue.Type {
	case "memory", "":
	case "asynq":
		if c.Queue.RedisURL == "" {
			problems = append(problems, "queue redis_url required for type=asynq")
		}
	default:
		problems = append(problems, fmt.Sprintf("unknown queue type %q", c.Queue.Type))
	}

	switch c.Session.Type {
	case "database", "":
	case "redis":
		if c.Session.RedisURL == "" {
			problems = append(problems, "session redis_url required for type=redis")
		}
	default:
		problems = append(problems, fmt.Sprintf("unknown session type %q", c.Session.Type))
	}

	seen := make(map[string]bool)
	for _, a := range c.Drive.Accounts {
		if a.UserID == "" {
			problems = append(problems, "drive account without user_id")
			continue
		}
		if seen[a.UserID] {
			problems = append(problems, fmt.Sprintf("duplicate drive account %q", a.UserID))
		}
		seen[a.UserID] = true
	}

	if len(problems) > 0 {
		return fmt.Errorf("invalid config: %s", strings.Join(problems, "; "))
	}
	return nil
}

// Manager handles reading and writing configuration.
type Manager struct{}

// Read decodes a Config from the provided reader.
func (m *Manager) Read(r io.Reader) (*Config, error) {
	var cfg Config
	if _, err := toml.NewDecoder(r).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	return &cfg, nil
}

// ReadInto decodes over base, leaving fields absent from the file untouched,
// so decoding over NewConfig yields defaults for anything the file omits.
func (m *Manager) ReadInto(r io.Reader, base *Config) error {
	if _, err := toml.NewDecoder(r).Decode(base); err != nil {
		return fmt.Errorf("failed to decode config: %w", err)
	}
	return nil
}

// Write encodes a Config to the provided writer.
func (m *Manager) Write(w io.Writer, cfg *Config) error {
	if err := toml.NewEncoder(w).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return nil
}

// ReadFromFile reads a Config from the specified file path.
func ReadFromFile(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer f.Close()

	m := &Manager{}
	cfg, err := m.Read(f)
	if err != nil {
		return nil, fmt.Errorf("reading config from %s: %w", path, err)
	}
	return cfg, nil
}

// writeToFile writes a Config to the specified file path.
func writeToFile(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer f.Close()

	m := &Manager{}
	if err := m.Write(f, cfg); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}
	return nil
}

// Init initializes a new config file at the specified path with the provided Config.
func Init(path string, cfg *Config) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}

	if err := writeToFile(path, cfg); err != nil {
		return fmt.Errorf("initializing config: %w", err)
	}
	return nil
}

// LoadFile reads the config at path over base. base is modified and returned.
func LoadFile(path string, base *Config) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer f.Close()

	m := &Manager{}
	if err := m.ReadInto(f, base); err != nil {
		return nil, fmt.Errorf("reading config from %s: %w", path, err)
	}
	return base, nil
}
