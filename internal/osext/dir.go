// Package osext holds the small OS helpers shared by the converters.
package osext

import (
	"errors"
	"io"
	"os"
)

// ErrNotADir is returned when the path exists but is not a directory.
var ErrNotADir = errors.New("not a directory")

// ErrNotEmpty is returned by EmptyOrCreate for a directory with content.  A
// non-empty output directory usually means a previous run was killed partway
// through; its contents are invalid and must be discarded by the caller, not
// resumed into.
var ErrNotEmpty = errors.New("directory not empty")

// DirExists checks that the path exists and is a directory.
func DirExists(dir string) error {
	fi, err := os.Stat(dir)
	if err != nil {
		return err
	}
	if !fi.IsDir() {
		return ErrNotADir
	}
	return nil
}

// EmptyOrCreate ensures dir exists and is empty, creating it if necessary.
func EmptyOrCreate(dir string) error {
	fi, err := os.Stat(dir)
	if errors.Is(err, os.ErrNotExist) {
		return os.MkdirAll(dir, 0o755)
	}
	if err != nil {
		return err
	}
	if !fi.IsDir() {
		return ErrNotADir
	}
	f, err := os.Open(dir)
	if err != nil {
		return err
	}
	defer f.Close()
	if _, err := f.Readdirnames(1); err != io.EOF {
		return ErrNotEmpty
	}
	return nil
}
