//go:build windows

package config

import (
	"errors"
	"os"
	"time"

	"golang.org/x/sys/windows"
)

// Virus scanners and indexers briefly hold files open, which makes the
// replace fail with access or sharing errors.
func replaceFile(oldpath, newpath string) error {
	return renameWithRetry(os.Rename, isTransientReplaceError, oldpath, newpath, 10, 50*time.Millisecond)
}

func isTransientReplaceError(err error) bool {
	return errors.Is(err, windows.ERROR_ACCESS_DENIED) || errors.Is(err, windows.ERROR_SHARING_VIOLATION)
}
