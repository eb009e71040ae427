package jassist_test

import (
	"path"
	"strings"
	"testing"

	"jassist-go/internal/jassist"
)

func TestMatchesExtension(t *testing.T) {
	tests := []struct {
		name      string
		file      string
		allowlist []string
		want      bool
	}{
		{"uppercase file, lowercase entry", "report.PDF", []string{".pdf"}, true},
		{"entry without dot", "memo.m4a", []string{"m4a"}, true},
		{"entry uppercase", "memo.m4a", []string{".M4A"}, true},
		{"empty allowlist matches all", "anything.xyz", nil, true},
		{"no extension", "README", []string{".md"}, false},
		{"only final extension counts", "archive.pdf.zip", []string{".pdf"}, false},
		{"not listed", "photo.jpg", []string{".pdf", ".mp3"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := jassist.MatchesExtension(tt.file, tt.allowlist); got != tt.want {
				t.Errorf("MatchesExtension(%q, %v) = %v, want %v", tt.file, tt.allowlist, got, tt.want)
			}
		})
	}
}

func TestMatchesExtension_AgreesWithSetMembership(t *testing.T) {
	allowlist := []string{"pdf", ".Mp3", " .wav "}
	set := map[string]bool{".pdf": true, ".mp3": true, ".wav": true}
	names := []string{"a.pdf", "b.PDF", "c.mp3", "d.Wav", "e.txt", "f", "g.tar.gz", "h.MP3.bak", ".wav"}

	for _, n := range names {
		want := set[strings.ToLower(path.Ext(n))]
		if got := jassist.MatchesExtension(n, allowlist); got != want {
			t.Errorf("MatchesExtension(%q) = %v, want %v", n, got, want)
		}
	}
}

func TestFileFilter_ShouldDownload(t *testing.T) {
	f := jassist.NewFileFilter([]string{".m4a", ".pdf"}, []string{"# comment", "", "draft_*", "*.tmp.m4a"})

	tests := []struct {
		name string
		want bool
	}{
		{"memo.m4a", true},
		{"Draft_memo.m4a", false},
		{"memo.tmp.m4a", false},
		{"notes.pdf", true},
		{"song.mp3", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := f.ShouldDownload(&jassist.RemoteFile{Name: tt.name}); got != tt.want {
				t.Errorf("ShouldDownload(%q) = %v, want %v", tt.name, got, tt.want)
			}
		})
	}

	if f.ShouldDownload(nil) {
		t.Error("ShouldDownload(nil) = true, want false")
	}
}

func TestFileFilter_Filter(t *testing.T) {
	f := jassist.NewFileFilter(nil, nil)
	files := []*jassist.RemoteFile{{Name: "a.mp3"}, {Name: "b.bin"}}

	// No allowlist and no excludes: everything passes.
	if got := f.Filter(files); len(got) != 2 {
		t.Errorf("len(Filter()) = %d, want 2", len(got))
	}
}

func TestIsTranscribable(t *testing.T) {
	for _, name := range []string{"a.mp3", "b.MP4", "c.mpeg", "d.mpga", "e.m4a", "f.wav", "g.webm"} {
		if !jassist.IsTranscribable(name) {
			t.Errorf("IsTranscribable(%q) = false, want true", name)
		}
	}
	for _, name := range []string{"a.pdf", "b.ogg", "c", "d.m4a.txt"} {
		if jassist.IsTranscribable(name) {
			t.Errorf("IsTranscribable(%q) = true, want false", name)
		}
	}
}

func TestRemoteFile_SourceFolder(t *testing.T) {
	if got := (&jassist.RemoteFile{}).SourceFolder(); got != "unknown" {
		t.Errorf("SourceFolder() = %q, want unknown", got)
	}
	if got := (&jassist.RemoteFile{Parents: []string{"p1", "p2"}}).SourceFolder(); got != "p1" {
		t.Errorf("SourceFolder() = %q, want p1", got)
	}
}

func TestExportMimeType(t *testing.T) {
	got, ok := jassist.ExportMimeType("application/vnd.google-apps.document")
	if !ok || got != "application/pdf" {
		t.Errorf("ExportMimeType(document) = %q, %v", got, ok)
	}
	if _, ok := jassist.ExportMimeType("application/vnd.google-apps.form"); ok {
		t.Error("ExportMimeType(form) should be unsupported")
	}
	if !jassist.IsNativeDocument("application/vnd.google-apps.form") {
		t.Error("IsNativeDocument(form) = false, want true")
	}
}
