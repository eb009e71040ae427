package jassist

import (
	"path"
	"strings"
)

// transcribableExtensions are the containers the speech API accepts.
var transcribableExtensions = map[string]bool{
	".mp3":  true,
	".mp4":  true,
	".mpeg": true,
	".mpga": true,
	".m4a":  true,
	".wav":  true,
	".webm": true,
}

// FileFilter decides which remote files are fetched.
// Exclude patterns use path.Match syntax against the lowercased file name;
// blank entries and entries starting with '#' are skipped.
type FileFilter struct {
	extensions []string
	exclude    []string
}

// NewFileFilter normalizes extensions to lowercase with a leading dot.
func NewFileFilter(extensions, exclude []string) *FileFilter {
	f := &FileFilter{}
	for _, ext := range extensions {
		if ext = normalizeExtension(ext); ext != "" {
			f.extensions = append(f.extensions, ext)
		}
	}
	for _, raw := range exclude {
		raw = strings.TrimSpace(raw)
		if raw == "" || strings.HasPrefix(raw, "#") {
			continue
		}
		f.exclude = append(f.exclude, strings.ToLower(raw))
	}
	return f
}

// ShouldDownload reports whether file passes the extension allowlist and no exclude pattern matches it.
func (f *FileFilter) ShouldDownload(file *RemoteFile) bool {
	if file == nil {
		return false
	}
	return MatchesExtension(file.Name, f.extensions) && !f.excluded(file.Name)
}

// Filter returns the files that ShouldDownload accepts, in order.
func (f *FileFilter) Filter(files []*RemoteFile) []*RemoteFile {
	var out []*RemoteFile
	for _, file := range files {
		if f.ShouldDownload(file) {
			out = append(out, file)
		}
	}
	return out
}

func (f *FileFilter) excluded(name string) bool {
	lower := strings.ToLower(name)
	for _, p := range f.exclude {
		matched, err := path.Match(p, lower)
		if err != nil {
			continue
		}
		if matched {
			return true
		}
	}
	return false
}

// MatchesExtension reports whether name's final extension is in allowlist, ignoring case.
// An empty allowlist matches everything.
func MatchesExtension(name string, allowlist []string) bool {
	if len(allowlist) == 0 {
		return true
	}
	ext := strings.ToLower(path.Ext(name))
	if ext == "" {
		return false
	}
	for _, allowed := range allowlist {
		if normalizeExtension(allowed) == ext {
			return true
		}
	}
	return false
}

// IsTranscribable reports whether name has an audio extension the speech API accepts.
func IsTranscribable(name string) bool {
	return transcribableExtensions[strings.ToLower(path.Ext(name))]
}

func normalizeExtension(ext string) string {
	ext = strings.ToLower(strings.TrimSpace(ext))
	if ext == "" {
		return ""
	}
	if !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return ext
}
