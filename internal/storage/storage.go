package storage

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"jassist-go/internal/config"
	"jassist-go/internal/jassist"
)

// SpaceBufferFactor is the headroom HasSufficientSpace demands over the requested size.
const SpaceBufferFactor = 1.5

// maxCollisionSuffix bounds the _<n> search so a broken directory cannot loop forever.
const maxCollisionSuffix = 10000

// Options controls how download paths are named.
type Options struct {
	AddTimestamp    bool
	TimestampFormat string // Go time layout
}

// DiskStorage stores one user's downloads under <root>/<userID>.
//
// Directory structure:
//
//	<downloads_dir>/
//	  <user_id>/
//	    <stem>_<timestamp>.<ext>
//	    <stem>_<timestamp>_1.<ext>
type DiskStorage struct {
	dir   string
	opts  Options
	clock jassist.Clock
	mu    sync.Mutex

	// freeSpace is swapped in tests.
	freeSpace func(path string) (int64, error)
}

var _ jassist.LocalStorage = (*DiskStorage)(nil)

// NewDiskStorage creates the user directory and returns a DiskStorage rooted there.
func NewDiskStorage(root, userID string, opts Options, clock jassist.Clock) (*DiskStorage, error) {
	if root == "" {
		return nil, jassist.Configf("downloads directory not configured")
	}
	if userID == "" || strings.ContainsAny(userID, `/\`) || userID == "." || userID == ".." {
		return nil, jassist.Configf("invalid user id %q", userID)
	}
	if opts.TimestampFormat == "" {
		opts.TimestampFormat = config.DefaultTimestampFormat
	}

	dir := filepath.Join(root, userID)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating download directory: %w", err)
	}

	return &DiskStorage{
		dir:       dir,
		opts:      opts,
		clock:     clock,
		freeSpace: freeBytes,
	}, nil
}

// NewStorageFromConfig builds the DiskStorage for userID from the drive settings.
func NewStorageFromConfig(cfg config.DriveConfig, userID string, clock jassist.Clock) (*DiskStorage, error) {
	return NewDiskStorage(cfg.DownloadsDir, userID, Options{
		AddTimestamp:    cfg.AddTimestamp,
		TimestampFormat: cfg.TimestampFormat,
	}, clock)
}

// Dir returns the user's download directory.
func (s *DiskStorage) Dir() string {
	return s.dir
}

// ResolveDownloadPath picks a free name for originalName and reserves it by
// creating an empty file exclusively. Persist later replaces it.
func (s *DiskStorage) ResolveDownloadPath(originalName string) (string, error) {
	name := filepath.Base(filepath.Clean("/" + originalName))
	if name == "/" || name == "." {
		return "", jassist.Invalidf("invalid file name %q", originalName)
	}

	ext := filepath.Ext(name)
	stem := strings.TrimSuffix(name, ext)
	if s.opts.AddTimestamp {
		stem = stem + "_" + s.clock.Now().Format(s.opts.TimestampFormat)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(s.dir, 0755); err != nil {
		return "", fmt.Errorf("creating download directory: %w", err)
	}

	for n := 0; n <= maxCollisionSuffix; n++ {
		candidate := stem + ext
		if n > 0 {
			candidate = fmt.Sprintf("%s_%d%s", stem, n, ext)
		}
		path := filepath.Join(s.dir, candidate)

		f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
		if err != nil {
			if errors.Is(err, os.ErrExist) {
				continue
			}
			return "", fmt.Errorf("reserving download path: %w", err)
		}
		f.Close()
		return path, nil
	}
	return "", fmt.Errorf("no free name for %s after %d attempts", name, maxCollisionSuffix)
}

// Persist writes data to a temporary file beside path and renames it into place.
func (s *DiskStorage) Persist(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("creating directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".download-*")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("writing temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("syncing temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("closing temp file: %w", err)
	}
	if err := os.Chmod(tmpPath, 0644); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("setting permissions: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("renaming into place: %w", err)
	}
	return nil
}

// HasSufficientSpace fails open: an unknown free-space figure counts as enough.
func (s *DiskStorage) HasSufficientSpace(path string, required int64) bool {
	dir := path
	if info, err := os.Stat(path); err != nil || !info.IsDir() {
		dir = filepath.Dir(path)
	}
	free, err := s.freeSpace(dir)
	if err != nil || free < 0 {
		return true
	}
	return float64(free) > float64(required)*SpaceBufferFactor
}
