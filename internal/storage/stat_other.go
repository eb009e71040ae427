//go:build !unix

package storage

import "errors"

func freeBytes(path string) (int64, error) {
	return -1, errors.New("free space not available on this platform")
}
