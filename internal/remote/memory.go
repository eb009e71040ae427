package remote

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"jassist-go/internal/jassist"
)

type memoryFile struct {
	meta jassist.RemoteFile
	data []byte
}

// MemoryRemote is an in-memory implementation of the RemoteFileClient interface.
// It is useful for testing. This implementation is safe for concurrent use.
type MemoryRemote struct {
	mu      sync.RWMutex
	folders map[string]string // folder id -> name
	files   map[string]*memoryFile
	failing map[string]error // file id -> error returned by Download
	nextID  int
	deleted []string
}

// NewMemoryRemote creates an empty in-memory drive.
func NewMemoryRemote() *MemoryRemote {
	return &MemoryRemote{
		folders: make(map[string]string),
		files:   make(map[string]*memoryFile),
		failing: make(map[string]error),
	}
}

func (m *MemoryRemote) newID(prefix string) string {
	m.nextID++
	return fmt.Sprintf("%s-%d", prefix, m.nextID)
}

// AddFolder creates a folder and returns its id.
func (m *MemoryRemote) AddFolder(name string) string {
	m.mu.Lock()
	defer m.mu.Unlock()

	id := m.newID("folder")
	m.folders[id] = name
	return id
}

// AddFile stores data as a file in folderID and returns its metadata.
// Use jassist.RootFolder as folderID for files at the root.
func (m *MemoryRemote) AddFile(folderID, name, mimeType string, data []byte) *jassist.RemoteFile {
	m.mu.Lock()
	defer m.mu.Unlock()

	id := m.newID("file")
	m.files[id] = &memoryFile{
		meta: jassist.RemoteFile{
			ID:           id,
			Name:         name,
			MimeType:     mimeType,
			ModifiedTime: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
			Size:         int64(len(data)),
			Parents:      []string{folderID},
		},
		data: data,
	}
	meta := m.files[id].meta
	return &meta
}

// FailDownload makes Download of fileID return err.
func (m *MemoryRemote) FailDownload(fileID string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failing[fileID] = err
}

// Deleted returns the ids removed through Delete, in order.
func (m *MemoryRemote) Deleted() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]string(nil), m.deleted...)
}

// FindFolder returns the first folder called name, by id order.
func (m *MemoryRemote) FindFolder(ctx context.Context, name string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ids := make([]string, 0, len(m.folders))
	for id, n := range m.folders {
		if n == name {
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 {
		return "", nil
	}
	sort.Strings(ids)
	return ids[0], nil
}

// ListFiles returns the files whose first parent is folderID, sorted by name.
func (m *MemoryRemote) ListFiles(ctx context.Context, folderID string) ([]*jassist.RemoteFile, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var files []*jassist.RemoteFile
	for _, f := range m.files {
		if f.meta.SourceFolder() == folderID {
			meta := f.meta
			files = append(files, &meta)
		}
	}
	sort.Slice(files, func(i, j int) bool {
		return strings.Compare(files[i].Name, files[j].Name) < 0
	})
	return files, nil
}

// GetMetadata returns nil when fileID does not exist.
func (m *MemoryRemote) GetMetadata(ctx context.Context, fileID string) (*jassist.RemoteFile, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	f, ok := m.files[fileID]
	if !ok {
		return nil, nil
	}
	meta := f.meta
	return &meta, nil
}

// Download returns a copy of the stored bytes.
func (m *MemoryRemote) Download(ctx context.Context, fileID string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if err, ok := m.failing[fileID]; ok {
		return nil, err
	}
	f, ok := m.files[fileID]
	if !ok {
		return nil, jassist.NewTransportError(jassist.KindInvalidRequest, 404, "file not found: "+fileID, nil)
	}
	if jassist.IsNativeDocument(f.meta.MimeType) {
		if _, ok := jassist.ExportMimeType(f.meta.MimeType); !ok {
			return nil, jassist.NewTransportError(jassist.KindInvalidRequest, 0, "no export format for "+f.meta.MimeType, nil)
		}
	}
	return append([]byte(nil), f.data...), nil
}

// Delete removes fileID. It returns false when the file did not exist.
func (m *MemoryRemote) Delete(ctx context.Context, fileID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.files[fileID]; !ok {
		return false, nil
	}
	delete(m.files, fileID)
	m.deleted = append(m.deleted, fileID)
	return true, nil
}

// Compile-time check that MemoryRemote implements jassist.RemoteFileClient interface
var _ jassist.RemoteFileClient = (*MemoryRemote)(nil)
