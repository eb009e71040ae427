package remote

import (
	"context"
	"path/filepath"
	"testing"

	"jassist-go/internal/config"
	"jassist-go/internal/jassist"
)

func TestNewRemoteFromConfig(t *testing.T) {
	ctx := context.Background()

	t.Run("memory", func(t *testing.T) {
		r, err := NewRemoteFromConfig(ctx, config.RemoteConfig{Type: "memory"}, "alice", nil, nil)
		if err != nil {
			t.Fatalf("NewRemoteFromConfig() error = %v", err)
		}
		if _, ok := r.(*MemoryRemote); !ok {
			t.Errorf("got %T, want *MemoryRemote", r)
		}
	})

	t.Run("filesystem is per user", func(t *testing.T) {
		root := t.TempDir()
		writeFile(t, filepath.Join(root, "alice", "memo.txt"), []byte("hi"))

		r, err := NewRemoteFromConfig(ctx, config.RemoteConfig{Type: "filesystem", FSRoot: root}, "alice", nil, nil)
		if err != nil {
			t.Fatalf("NewRemoteFromConfig() error = %v", err)
		}
		files, err := r.ListFiles(ctx, jassist.RootFolder)
		if err != nil || len(files) != 1 {
			t.Errorf("ListFiles() = %v, %v", files, err)
		}
	})

	t.Run("s3 prefix is per user", func(t *testing.T) {
		cfg := config.RemoteConfig{Type: "s3", S3Bucket: "media", S3Prefix: "drives", S3Region: "eu-west-1"}
		r, err := NewRemoteFromConfig(ctx, cfg, "alice", mapSecrets{}, nil)
		if err != nil {
			t.Fatalf("NewRemoteFromConfig() error = %v", err)
		}
		s, ok := r.(*S3Remote)
		if !ok {
			t.Fatalf("got %T, want *S3Remote", r)
		}
		if s.prefix != "drives/alice/" {
			t.Errorf("prefix = %q, want %q", s.prefix, "drives/alice/")
		}
	})

	tests := []struct {
		name    string
		cfg     config.RemoteConfig
		user    string
		secrets jassist.SecretStore
	}{
		{"missing user", config.RemoteConfig{Type: "memory"}, "", nil},
		{"filesystem without root", config.RemoteConfig{Type: "filesystem"}, "alice", nil},
		{"s3 without bucket", config.RemoteConfig{Type: "s3"}, "alice", nil},
		{"gdrive without secrets", config.RemoteConfig{Type: "gdrive"}, "alice", nil},
		{"gdrive without token", config.RemoteConfig{Type: "gdrive"}, "alice", mapSecrets{}},
		{"unknown type", config.RemoteConfig{Type: "ftp"}, "alice", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewRemoteFromConfig(ctx, tt.cfg, tt.user, tt.secrets, nil)
			if !jassist.IsConfigurationError(err) {
				t.Errorf("NewRemoteFromConfig() error = %v, want ConfigurationError", err)
			}
		})
	}
}
