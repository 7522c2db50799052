package hostfs

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unicode"
	"unicode/utf8"
)

var (
	ErrInvalidPath  = errors.New("invalid path")
	ErrInvalidChars = fmt.Errorf("%w: invalid path characters", ErrInvalidPath)
)

// ValidPath rejects client paths with bytes no front-end should ever pass on:
// broken UTF-8, NUL and other control characters.
func ValidPath(p string) error {
	if !utf8.ValidString(p) {
		return ErrInvalidChars
	}
	for _, r := range p {
		if r == 0 || unicode.IsControl(r) {
			return ErrInvalidChars
		}
	}
	return nil
}

// InvisiblePath reports whether any component of p is an administrative entry.
func InvisiblePath(p string) bool {
	for _, part := range strings.Split(filepath.ToSlash(p), "/") {
		for _, name := range invisibleNames {
			if part == name {
				return true
			}
		}
	}
	return false
}

// FsPath translates a client path into a path below root. Leading separators
// in userPath never escape root. The symlink-resolved target must stay inside
// root or one of chrootExceptions. The returned path is the unresolved one.
func FsPath(userPath, root string, chrootExceptions []string) (string, error) {
	if err := ValidPath(userPath); err != nil {
		return "", err
	}
	realPath := filepath.Join(root, strings.Trim(userPath, string(os.PathSeparator)))
	expanded := resolve(realPath)
	accept := append([]string{root}, chrootExceptions...)
	for _, dir := range accept {
		if dir == "" {
			continue
		}
		if !within(expanded, dir) && !within(expanded, resolve(dir)) {
			continue
		}
		if InvisiblePath(realPath) {
			return "", ErrInvalidPath
		}
		return realPath, nil
	}
	return "", ErrInvalidPath
}

// StripRoot removes the first matching accepted root from p for display to
// clients. Paths outside all roots are returned unchanged.
func StripRoot(p, root string, chrootExceptions []string) string {
	for _, dir := range append([]string{root}, chrootExceptions...) {
		if dir == "" || !within(p, dir) {
			continue
		}
		rel := strings.TrimPrefix(filepath.Clean(p), filepath.Clean(dir))
		if !strings.HasPrefix(rel, "/") {
			rel = "/" + rel
		}
		return rel
	}
	return p
}

// AcceptableChmod checks that a client chmod request leaves the owner able to
// use the entry and never touches protected locations. Invisible entries and
// anything below chmodExceptions are refused, as are setuid/setgid/sticky bits.
// Files must keep u+rw and dirs u+rwx. Group/other policy is up to the caller.
func AcceptableChmod(p string, mode uint32, chmodExceptions []string) bool {
	if InvisiblePath(p) {
		return false
	}
	expanded := resolve(p)
	for _, dir := range chmodExceptions {
		if dir != "" && (within(expanded, dir) || within(expanded, resolve(dir))) {
			return false
		}
	}
	if mode&07000 != 0 {
		return false
	}
	st, err := os.Stat(p)
	if err != nil {
		return false
	}
	switch {
	case st.Mode().IsRegular():
		return mode&0600 == 0600
	case st.IsDir():
		return mode&0700 == 0700
	}
	return false
}

// FlagsToMode converts os.O_* open flags into an fopen style mode. Write and
// append modes never truncate unless O_TRUNC is set.
func FlagsToMode(flags int) string {
	var mode string
	switch flags & (os.O_RDONLY | os.O_WRONLY | os.O_RDWR) {
	case os.O_WRONLY:
		mode = "w"
	case os.O_RDWR:
		mode = "w+"
	default:
		mode = "r"
	}
	if flags&os.O_APPEND != 0 {
		mode = strings.Replace(mode, "w", "a", 1)
	}
	if flags&os.O_TRUNC == 0 {
		mode = strings.Replace(mode, "w+", "r+", 1)
		mode = strings.Replace(mode, "w", "r+", 1)
	}
	return mode
}

// resolve evaluates symlinks in the longest existing prefix of p and keeps
// the missing tail as is.
func resolve(p string) string {
	p = filepath.Clean(p)
	cur, rest := p, ""
	for {
		if r, err := filepath.EvalSymlinks(cur); err == nil {
			return filepath.Join(r, rest)
		}
		parent := filepath.Dir(cur)
		if parent == cur {
			return p
		}
		rest = filepath.Join(filepath.Base(cur), rest)
		cur = parent
	}
}

func within(p, dir string) bool {
	p = filepath.Clean(p)
	dir = filepath.Clean(dir)
	if p == dir || dir == string(os.PathSeparator) {
		return true
	}
	return strings.HasPrefix(p, dir+string(os.PathSeparator))
}
