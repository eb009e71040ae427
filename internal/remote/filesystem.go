package remote

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"

	"github.com/gabriel-vasile/mimetype"

	"jassist-go/internal/jassist"
)

// FileSystemRemote serves a local directory tree as a drive:
//
//	<root>/
//	  <file>            (files at the drive root, folder id "root")
//	  <folder>/<file>   (folder id and file id are slash paths relative to root)
type FileSystemRemote struct {
	root   string
	logger jassist.Logger
}

// NewFileSystemRemote creates a remote rooted at the given path. The directory is created if missing.
func NewFileSystemRemote(root string, logger jassist.Logger) (*FileSystemRemote, error) {
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, fmt.Errorf("creating remote root: %w", err)
	}
	if logger == nil {
		logger = jassist.NewNopLogger()
	}
	return &FileSystemRemote{root: root, logger: logger}, nil
}

// resolve maps an id onto a path inside root. Ids that escape root are rejected.
func (r *FileSystemRemote) resolve(id string) (string, error) {
	if id == jassist.RootFolder || id == "" {
		return r.root, nil
	}
	local := filepath.FromSlash(id)
	if !filepath.IsLocal(local) {
		return "", jassist.NewTransportError(jassist.KindInvalidRequest, 0, "id escapes remote root: "+id, nil)
	}
	return filepath.Join(r.root, local), nil
}

func (r *FileSystemRemote) ioError(op, id string, err error) error {
	r.logger.Error("filesystem remote failed", "op", op, "id", id, "error", err)
	if errors.Is(err, fs.ErrPermission) {
		return jassist.NewTransportError(jassist.KindPermission, 0, err.Error(), err)
	}
	return jassist.NewTransportError(jassist.KindUnknown, 0, err.Error(), err)
}

// FindFolder returns the first directory called name in lexical walk order.
func (r *FileSystemRemote) FindFolder(ctx context.Context, name string) (string, error) {
	var found string
	err := filepath.WalkDir(r.root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if p == r.root || !d.IsDir() {
			return nil
		}
		if d.Name() == name {
			rel, err := filepath.Rel(r.root, p)
			if err != nil {
				return err
			}
			found = filepath.ToSlash(rel)
			return fs.SkipAll
		}
		return ctx.Err()
	})
	if err != nil {
		return "", r.ioError("find_folder", name, err)
	}
	return found, nil
}

// ListFiles returns the regular files directly under folderID.
func (r *FileSystemRemote) ListFiles(ctx context.Context, folderID string) ([]*jassist.RemoteFile, error) {
	dir, err := r.resolve(folderID)
	if err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, r.ioError("list_files", folderID, err)
	}

	var files []*jassist.RemoteFile
	for _, e := range entries {
		if !e.Type().IsRegular() {
			continue
		}
		id := e.Name()
		if folderID != jassist.RootFolder && folderID != "" {
			id = path.Join(folderID, e.Name())
		}
		f, err := r.stat(id)
		if err != nil {
			return nil, err
		}
		if f != nil {
			files = append(files, f)
		}
	}
	return files, nil
}

func (r *FileSystemRemote) stat(id string) (*jassist.RemoteFile, error) {
	p, err := r.resolve(id)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(p)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, r.ioError("stat", id, err)
	}
	if info.IsDir() {
		return nil, nil
	}

	mt, err := mimetype.DetectFile(p)
	if err != nil {
		return nil, r.ioError("detect_mime", id, err)
	}

	parent := path.Dir(id)
	if parent == "." {
		parent = jassist.RootFolder
	}
	return &jassist.RemoteFile{
		ID:           id,
		Name:         info.Name(),
		MimeType:     mt.String(),
		ModifiedTime: info.ModTime().UTC(),
		Size:         info.Size(),
		Parents:      []string{parent},
	}, nil
}

// GetMetadata returns nil when no regular file exists at fileID.
func (r *FileSystemRemote) GetMetadata(ctx context.Context, fileID string) (*jassist.RemoteFile, error) {
	return r.stat(fileID)
}

// Download reads the whole file.
func (r *FileSystemRemote) Download(ctx context.Context, fileID string) ([]byte, error) {
	p, err := r.resolve(fileID)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(p)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, jassist.NewTransportError(jassist.KindInvalidRequest, 0, "file not found: "+fileID, err)
		}
		return nil, r.ioError("download", fileID, err)
	}
	return data, nil
}

// Delete removes the file. It returns false when it did not exist.
func (r *FileSystemRemote) Delete(ctx context.Context, fileID string) (bool, error) {
	p, err := r.resolve(fileID)
	if err != nil {
		return false, err
	}
	if err := os.Remove(p); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, r.ioError("delete", fileID, err)
	}
	return true, nil
}

// Compile-time check that FileSystemRemote implements jassist.RemoteFileClient interface
var _ jassist.RemoteFileClient = (*FileSystemRemote)(nil)
