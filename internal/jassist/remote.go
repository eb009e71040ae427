package jassist

import (
	"context"
	"strings"
	"time"
)

// RootFolder is the folder name that bypasses lookup and addresses the drive root.
const RootFolder = "root"

const (
	FolderMimeType       = "application/vnd.google-apps.folder"
	nativeDocumentPrefix = "application/vnd.google-apps"
)

// RemoteFile is the metadata of one file in a remote drive.
type RemoteFile struct {
	ID           string
	Name         string
	MimeType     string
	ModifiedTime time.Time
	Size         int64
	Parents      []string
}

// SourceFolder returns the first parent id, or "unknown".
func (f *RemoteFile) SourceFolder() string {
	if len(f.Parents) == 0 || f.Parents[0] == "" {
		return "unknown"
	}
	return f.Parents[0]
}

// RemoteFileClient talks to a cloud drive on behalf of one user.
// Provider failures are returned as *TransportError; a missing folder or file
// is reported as "" or nil with a nil error.
type RemoteFileClient interface {
	// FindFolder returns the id of the first non-trashed folder called name.
	FindFolder(ctx context.Context, name string) (string, error)

	// ListFiles returns every non-folder file directly under folderID.
	// Pagination is handled internally.
	ListFiles(ctx context.Context, folderID string) ([]*RemoteFile, error)

	// GetMetadata returns the metadata for fileID.
	GetMetadata(ctx context.Context, fileID string) (*RemoteFile, error)

	// Download returns the content of fileID. Native documents are exported
	// through ExportMimeType.
	Download(ctx context.Context, fileID string) ([]byte, error)

	// Delete removes fileID from the drive. It returns false when the file did not exist.
	Delete(ctx context.Context, fileID string) (bool, error)
}

var exportFormats = map[string]string{
	"application/vnd.google-apps.document":     "application/pdf",
	"application/vnd.google-apps.spreadsheet":  "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
	"application/vnd.google-apps.presentation": "application/pdf",
	"application/vnd.google-apps.drawing":      "image/png",
	"application/vnd.google-apps.script":       "application/vnd.google-apps.script+json",
}

// IsNativeDocument reports whether mimeType is a workspace document that must be exported.
func IsNativeDocument(mimeType string) bool {
	return strings.HasPrefix(mimeType, nativeDocumentPrefix)
}

// ExportMimeType returns the concrete format a native document is exported to.
// ok is false for native types with no export mapping.
func ExportMimeType(mimeType string) (string, bool) {
	target, ok := exportFormats[mimeType]
	return target, ok
}
