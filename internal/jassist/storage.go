package jassist

// LocalStorage decides where downloaded files land and writes them there.
type LocalStorage interface {
	// ResolveDownloadPath returns a fresh path for originalName inside the
	// user's download directory. The returned path is reserved: no later call
	// returns it again and no existing file is overwritten.
	ResolveDownloadPath(originalName string) (string, error)

	// Persist atomically writes data to path.
	Persist(path string, data []byte) error

	// HasSufficientSpace reports whether the filesystem holding path has room
	// for required bytes plus headroom. It returns true when free space is unknown.
	HasSufficientSpace(path string, required int64) bool
}
