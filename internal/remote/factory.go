package remote

import (
	"context"
	"fmt"
	"path"
	"path/filepath"

	"jassist-go/internal/config"
	"jassist-go/internal/jassist"
)

// NewRemoteFromConfig creates the RemoteFileClient for userID based on the remote config type.
// Each user gets a private view: its own Drive token, its own S3 prefix or its own filesystem subtree.
func NewRemoteFromConfig(ctx context.Context, cfg config.RemoteConfig, userID string, secrets jassist.SecretStore, logger jassist.Logger) (jassist.RemoteFileClient, error) {
	if userID == "" {
		return nil, jassist.Configf("remote client requires a user id")
	}

	switch cfg.Type {
	case "memory":
		return NewMemoryRemote(), nil
	case "filesystem":
		if cfg.FSRoot == "" {
			return nil, jassist.Configf("filesystem remote requires fs_root to be set")
		}
		return NewFileSystemRemote(filepath.Join(cfg.FSRoot, userID), logger)
	case "s3":
		if cfg.S3Bucket == "" {
			return nil, jassist.Configf("s3 remote requires s3_bucket to be set")
		}
		opts := S3Options{Region: cfg.S3Region, Endpoint: cfg.S3Endpoint}
		if secrets != nil {
			var err error
			if opts.AccessKeyID, err = secrets.Get(jassist.SecretAWSAccessKeyID); err != nil {
				return nil, fmt.Errorf("reading aws access key: %w", err)
			}
			if opts.SecretAccessKey, err = secrets.Get(jassist.SecretAWSSecretKey); err != nil {
				return nil, fmt.Errorf("reading aws secret key: %w", err)
			}
		}
		client, err := NewS3Client(ctx, opts)
		if err != nil {
			return nil, err
		}
		return NewS3Remote(client, cfg.S3Bucket, path.Join(cfg.S3Prefix, userID), logger), nil
	case "gdrive":
		if secrets == nil {
			return nil, jassist.Configf("gdrive remote requires a secrets store")
		}
		httpClient, err := NewDriveHTTPClient(ctx, secrets, userID)
		if err != nil {
			return nil, err
		}
		return NewDriveRemote(cfg.DriveBaseURL, httpClient, logger), nil
	default:
		return nil, jassist.Configf("unknown remote type: %s", cfg.Type)
	}
}
