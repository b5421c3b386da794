//go:build linux

package source

import (
	"os"
	"strings"

	"golang.org/x/sys/unix"
)

// IsWSL reports whether the process runs inside a WSL distribution.
func IsWSL() bool {
	if os.Getenv("WSL_DISTRO_NAME") != "" {
		return true
	}
	var uts unix.Utsname
	if err := unix.Uname(&uts); err != nil {
		return false
	}
	release := strings.ToLower(unix.ByteSliceToString(uts.Release[:]))
	return strings.Contains(release, "microsoft")
}
