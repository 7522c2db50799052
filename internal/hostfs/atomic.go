package hostfs

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"syscall"

	"github.com/hnrobert/gridlogin/internal/logger"
)

// pathLocks serialises access to one credential file between the daemon's own
// writers and the refresh scans that stat and read it.
var pathLocks sync.Map

func lockPath(path string) func() {
	v, _ := pathLocks.LoadOrStore(filepath.Clean(path), &sync.Mutex{})
	m := v.(*sync.Mutex)
	m.Lock()
	return m.Unlock
}

func ReadFile(path string) ([]byte, error) {
	defer lockPath(path)()
	return os.ReadFile(path)
}

// StatFile stats path while no WriteFileAtomic on it is in flight, so the
// returned mtime belongs to a complete file.
func StatFile(path string) (fs.FileInfo, error) {
	defer lockPath(path)()
	return os.Stat(path)
}

func EnsureDir(path string, perm os.FileMode) error {
	defer lockPath(path)()
	return os.MkdirAll(path, perm)
}

// WriteFileAtomic replaces path through a temp file and rename so refresh
// scans only ever see the old or the new content.
func WriteFileAtomic(path string, data []byte, perm os.FileMode) error {
	defer lockPath(path)()

	dir := filepath.Dir(path)
	tmpName, err := writeTemp(dir, data, perm)
	if err != nil {
		return err
	}
	defer func() { _ = os.Remove(tmpName) }()

	err = os.Rename(tmpName, path)
	switch {
	case err == nil:
		syncDir(dir)
		return nil
	case errors.Is(err, syscall.EBUSY), errors.Is(err, syscall.EXDEV), errors.Is(err, syscall.EPERM):
		// Bind-mounted targets refuse rename.
		logger.Warn("hostfs: rename onto %s failed (%v), rewriting in place", path, err)
		if werr := rewriteInPlace(path, data, perm); werr != nil {
			return werr
		}
		return nil
	default:
		return err
	}
}

func writeTemp(dir string, data []byte, perm os.FileMode) (string, error) {
	tmp, err := os.CreateTemp(dir, ".gridlogin-*")
	if err != nil {
		return "", err
	}
	name := tmp.Name()
	for _, step := range []func() error{
		func() error { _, err := tmp.Write(data); return err },
		func() error { return tmp.Chmod(perm) },
		tmp.Sync,
	} {
		if err := step(); err != nil {
			_ = tmp.Close()
			_ = os.Remove(name)
			return "", err
		}
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(name)
		return "", err
	}
	return name, nil
}

func rewriteInPlace(path string, data []byte, perm os.FileMode) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC|os.O_CREATE, perm)
	if err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		return err
	}
	_ = f.Sync()
	return f.Close()
}

func syncDir(dir string) {
	d, err := os.Open(dir)
	if err != nil {
		return
	}
	_ = d.Sync()
	_ = d.Close()
}
