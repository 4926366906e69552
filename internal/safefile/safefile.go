// Package safefile provides hardened file open helpers for the tailing
// and configuration-loading paths.
package safefile

import (
	"errors"
	"os"
)

// ErrNotRegularFile is returned when a path resolves to something other
// than a regular file (symlink, FIFO, device, socket, directory).
var ErrNotRegularFile = errors.New("not a regular file")

// OpenRegular opens path and verifies it is a regular file.
//
// The path is Lstat'd first to reject symlinks, then the open descriptor
// is stat'd again so a file swapped in between the two calls is still
// caught. A small TOCTOU window remains; Go does not expose O_NOFOLLOW
// portably.
//
// The caller must close the returned file. The returned FileInfo comes
// from the descriptor and can be compared with os.SameFile to detect
// later replacement of the path (log rotation).
func OpenRegular(path string) (*os.File, os.FileInfo, error) {
	linkInfo, err := os.Lstat(path)
	if err != nil {
		return nil, nil, err
	}
	if !linkInfo.Mode().IsRegular() {
		return nil, nil, ErrNotRegularFile
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, nil, err
	}
	if !info.Mode().IsRegular() {
		f.Close()
		return nil, nil, ErrNotRegularFile
	}

	return f, info, nil
}
