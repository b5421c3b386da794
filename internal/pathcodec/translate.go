package pathcodec

import (
	"strings"
)

// IsWindowsPath reports whether p is a drive-letter or UNC path.
func IsWindowsPath(p string) bool {
	if strings.HasPrefix(p, `\\`) {
		return true
	}
	if len(p) < 2 || p[1] != ':' {
		return false
	}
	c := p[0]
	if !((c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')) {
		return false
	}
	return len(p) == 2 || p[2] == '\\' || p[2] == '/'
}

// WSLToWindows converts a drvfs mount path such as /mnt/c/Users/bob to
// C:\Users\bob.
func WSLToWindows(p string) (string, bool) {
	if !strings.HasPrefix(p, "/mnt/") || len(p) < len("/mnt/c") {
		return "", false
	}
	letter := p[len("/mnt/")]
	if !((letter >= 'a' && letter <= 'z') || (letter >= 'A' && letter <= 'Z')) {
		return "", false
	}
	rest := p[len("/mnt/c"):]
	if rest != "" && rest[0] != '/' {
		return "", false
	}
	rest = strings.TrimPrefix(cleanSlash("/"+rest), "/")
	return strings.ToUpper(string(letter)) + `:\` + strings.ReplaceAll(rest, "/", `\`), true
}

// WindowsToWSL converts C:\Users\bob to /mnt/c/Users/bob.
func WindowsToWSL(p string) (string, bool) {
	if !IsWindowsPath(p) || strings.HasPrefix(p, `\\`) {
		return "", false
	}
	letter := strings.ToLower(p[:1])
	rest := strings.ReplaceAll(p[2:], `\`, "/")
	rest = cleanSlash("/" + rest)
	if rest == "/" {
		return "/mnt/" + letter, true
	}
	return "/mnt/" + letter + rest, true
}

// WSLUNCPath returns the Windows-side UNC path of a POSIX path inside a WSL
// distribution.
func WSLUNCPath(distro, posix string) string {
	posix = cleanSlash("/" + strings.TrimPrefix(posix, "/"))
	unc := `\\wsl.localhost\` + distro
	if posix == "/" {
		return unc
	}
	return unc + strings.ReplaceAll(posix, "/", `\`)
}
