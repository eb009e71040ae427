package remote

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"jassist-go/internal/jassist"
)

func writeFile(t *testing.T, path string, data []byte) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatal(err)
	}
}

func TestFileSystemRemote(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "inbox", "voice", "memo.pdf"), []byte("%PDF-1.4\n%test\n"))
	writeFile(t, filepath.Join(root, "inbox", "voice", "note.txt"), []byte("hello"))
	writeFile(t, filepath.Join(root, "top.txt"), []byte("top"))

	r, err := NewFileSystemRemote(root, nil)
	if err != nil {
		t.Fatalf("NewFileSystemRemote() error = %v", err)
	}

	t.Run("find nested folder", func(t *testing.T) {
		got, err := r.FindFolder(ctx, "voice")
		if err != nil {
			t.Fatalf("FindFolder() error = %v", err)
		}
		if got != "inbox/voice" {
			t.Errorf("FindFolder() = %q, want %q", got, "inbox/voice")
		}
		missing, err := r.FindFolder(ctx, "nothing")
		if err != nil || missing != "" {
			t.Errorf("FindFolder(missing) = %q, %v", missing, err)
		}
	})

	t.Run("list skips directories", func(t *testing.T) {
		files, err := r.ListFiles(ctx, jassist.RootFolder)
		if err != nil {
			t.Fatalf("ListFiles() error = %v", err)
		}
		if len(files) != 1 || files[0].ID != "top.txt" {
			t.Fatalf("ListFiles(root) = %v", files)
		}
		if files[0].SourceFolder() != jassist.RootFolder {
			t.Errorf("SourceFolder() = %q, want %q", files[0].SourceFolder(), jassist.RootFolder)
		}

		files, err = r.ListFiles(ctx, "inbox/voice")
		if err != nil {
			t.Fatalf("ListFiles() error = %v", err)
		}
		if len(files) != 2 {
			t.Fatalf("ListFiles(voice) returned %d files, want 2", len(files))
		}
		if files[0].ID != "inbox/voice/memo.pdf" || files[0].MimeType != "application/pdf" {
			t.Errorf("file = %+v", files[0])
		}
		if files[1].SourceFolder() != "inbox/voice" {
			t.Errorf("SourceFolder() = %q", files[1].SourceFolder())
		}
	})

	t.Run("metadata", func(t *testing.T) {
		got, err := r.GetMetadata(ctx, "inbox/voice/note.txt")
		if err != nil || got == nil {
			t.Fatalf("GetMetadata() = %v, %v", got, err)
		}
		if got.Size != 5 || got.Name != "note.txt" {
			t.Errorf("GetMetadata() = %+v", got)
		}
		none, err := r.GetMetadata(ctx, "inbox/voice/gone.txt")
		if err != nil || none != nil {
			t.Errorf("GetMetadata(missing) = %v, %v", none, err)
		}
	})

	t.Run("download and delete", func(t *testing.T) {
		data, err := r.Download(ctx, "top.txt")
		if err != nil || string(data) != "top" {
			t.Fatalf("Download() = %q, %v", data, err)
		}
		ok, err := r.Delete(ctx, "top.txt")
		if err != nil || !ok {
			t.Fatalf("Delete() = %v, %v", ok, err)
		}
		ok, err = r.Delete(ctx, "top.txt")
		if err != nil || ok {
			t.Errorf("Delete(again) = %v, %v, want false", ok, err)
		}
	})

	t.Run("rejects ids outside root", func(t *testing.T) {
		_, err := r.Download(ctx, "../secret")
		te, ok := jassist.AsTransportError(err)
		if !ok || te.Kind != jassist.KindInvalidRequest {
			t.Errorf("Download(../secret) error = %v, want invalid_request", err)
		}
	})
}
