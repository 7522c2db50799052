package refresh

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/hnrobert/gridlogin/internal/credfile"
	"github.com/hnrobert/gridlogin/internal/hostfs"
	"github.com/hnrobert/gridlogin/internal/logger"
	"github.com/hnrobert/gridlogin/internal/login"
	"github.com/hnrobert/gridlogin/internal/userid"
)

// identity is one user home and every login name it answers to.
type identity struct {
	dir   string
	names []string
}

// identityFor derives the login names of the home dir: the ASCII alias of
// the client ID and, with user_alias set, the raw and ASCII short alias.
func (e *Engine) identityFor(dir string) identity {
	id := userid.ClientDirID(dir)
	names := []string{userid.Alias(id)}
	if e.cfg.UserAlias != "" {
		if short := userid.ExtractField(id, e.cfg.UserAlias); short != "" {
			names = appendUnique(names, short, userid.Alias(short))
		}
	}
	return identity{dir: dir, names: names}
}

// isNewer decides whether a credential file must be parsed again given its
// mtime and the newest stamp of the records it produced.
type isNewer func(mtime, prev time.Time, had bool) bool

// RefreshAllUsers rescans every user home below the root dir. Symlinked
// homes are aliases and are skipped here. Users whose credential files are
// all gone are removed. Returns the changed login names.
func (e *Engine) RefreshAllUsers(ctx context.Context) []string {
	return e.share("users", func() []string { return e.refreshAllUsers(ctx) })
}

func (e *Engine) refreshAllUsers(ctx context.Context) []string {
	start := time.Now()
	last := e.store.TimeStamp()
	entries, err := os.ReadDir(e.cfg.RootDir)
	if err != nil {
		logger.Error("refresh: read user root %s: %v", e.cfg.RootDir, err)
		return nil
	}
	newer := func(mtime, _ time.Time, had bool) bool { return !had || mtime.After(last) }

	var changed []string
	current := map[string]bool{}
	for _, ent := range entries {
		if err := ctx.Err(); err != nil {
			logger.Warn("refresh: user sweep interrupted: %v", err)
			return changed
		}
		if ent.Type()&fs.ModeSymlink != 0 || !ent.IsDir() {
			continue
		}
		id := e.identityFor(ent.Name())
		home := filepath.Join(e.cfg.RootDir, ent.Name())
		active := false
		for _, m := range e.methods() {
			present, ch := e.syncMethod(id, home, m, newer, start)
			active = active || present
			if ch {
				changed = appendUnique(changed, id.names...)
			}
		}
		if active {
			for _, n := range id.names {
				current[n] = true
			}
		}
	}

	var gone []string
	for _, n := range e.store.Usernames(login.KindUser) {
		if !current[n] {
			gone = append(gone, n)
		}
	}
	if removed := e.store.RemoveUsernames(login.KindUser, gone); len(removed) > 0 {
		logger.Info("refresh: removed logins of %d deleted users", len(removed))
		changed = appendUnique(changed, removed...)
	}
	e.store.AdvanceTimeStamp(start)
	logger.Info("refresh: %s users refreshed (%d records, %d changed names)",
		e.proto, e.store.Len(login.KindUser), len(changed))
	e.observe("users", start, changed)
	return changed
}

// RefreshOneUser rescans the home of one login name, following an alias
// symlink if there is one. Each method is compared against the stamp of its
// own records, so it never waits for or depends on a full sweep.
func (e *Engine) RefreshOneUser(ctx context.Context, username string) []string {
	if !validName(username) {
		logger.Debug("refresh: ignoring invalid username %q", username)
		return nil
	}
	return e.share("user/"+username, func() []string { return e.refreshOneUser(username) })
}

func (e *Engine) refreshOneUser(username string) []string {
	start := time.Now()
	home, dir, err := e.resolveHome(username)
	if errors.Is(err, fs.ErrNotExist) {
		// Short aliases usually have no link of their own. Fall back to the
		// home their records were loaded from.
		known, ok := e.knownHome(username)
		if !ok {
			logger.Debug("refresh: skipping %s without a home", username)
			return nil
		}
		home, dir, err = e.resolveHome(known)
		if errors.Is(err, fs.ErrNotExist) {
			removed := e.removeIdentity(username, known)
			e.observe("user", start, removed)
			return removed
		}
	}
	if err != nil {
		logSkip("user", username, err)
		return nil
	}

	id := e.identityFor(dir)
	newer := func(mtime, prev time.Time, had bool) bool { return !had || mtime.After(prev) }
	var changed []string
	for _, m := range e.methods() {
		if _, ch := e.syncMethod(id, home, m, newer, start); ch {
			changed = appendUnique(changed, id.names...)
		}
	}
	if len(changed) > 0 {
		logger.Info("refresh: updated user %s (%s)", username, strings.Join(changed, ", "))
	} else {
		logger.Debug("refresh: no credential changes for %s", username)
	}
	e.observe("user", start, changed)
	return changed
}

// knownHome returns the home dir the records of username were loaded from.
func (e *Engine) knownHome(username string) (string, bool) {
	for _, l := range e.store.Records(login.KindUser, username) {
		if l.Home != "" && validName(l.Home) {
			return l.Home, true
		}
	}
	return "", false
}

// removeIdentity drops every name of a home that no longer exists.
func (e *Engine) removeIdentity(username, dir string) []string {
	names := appendUnique([]string{username}, e.identityFor(dir).names...)
	removed := e.store.RemoveUsernames(login.KindUser, names)
	if len(removed) > 0 {
		logger.Info("refresh: removed logins of deleted user %s", username)
	}
	return removed
}

// resolveHome returns the real home path of username and its directory name
// below the root.
func (e *Engine) resolveHome(username string) (string, string, error) {
	root, err := filepath.EvalSymlinks(e.cfg.RootDir)
	if err != nil {
		return "", "", err
	}
	real, err := filepath.EvalSymlinks(filepath.Join(e.cfg.RootDir, username))
	if err != nil {
		return "", "", err
	}
	rel, err := filepath.Rel(root, real)
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) ||
		strings.ContainsRune(rel, filepath.Separator) {
		return "", "", fmt.Errorf("%w: %s resolves outside the user root", hostfs.ErrInvalidPath, username)
	}
	st, err := os.Stat(real)
	if err != nil {
		return "", "", err
	}
	if !st.IsDir() {
		return "", "", fmt.Errorf("%s is not a directory", username)
	}
	return real, rel, nil
}

// syncMethod brings the records of one method in line with its file and
// reports whether the file exists and whether the records changed.
func (e *Engine) syncMethod(id identity, home string, m login.Method, newer isNewer, start time.Time) (bool, bool) {
	path := filepath.Join(home, e.proto.AuthFile(m))
	prev, had := e.store.MethodUpdated(login.KindUser, id.names[0], m)
	st, err := hostfs.StatFile(path)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			logSkip("credential file", path, err)
			return false, false
		}
		if !had {
			return false, false
		}
		logger.Debug("refresh: %s vanished, dropping %s logins of %s", path, m, id.names[0])
		return false, e.dropVanished(id, m, prev, start)
	}
	if st.IsDir() || (!had && st.Size() == 0) || !newer(st.ModTime(), prev, had) {
		return !st.IsDir(), false
	}
	fresh, err := e.loadMethod(path, id, m)
	if err != nil {
		logSkip("credential file", path, err)
		return true, false
	}
	ok := e.store.ReplaceMethod(login.KindUser, id.names, m, fresh, st.ModTime())
	if !ok {
		logger.Debug("refresh: newer %s logins of %s already loaded", m, id.names[0])
	}
	return true, ok && (had || len(fresh) > 0)
}

// dropVanished removes the method's records of id once their file is gone.
// The removal is stamped with the later of the refresh start and the last
// seen stamp, so records a concurrent refresh loaded from a re-created file
// survive.
func (e *Engine) dropVanished(id identity, m login.Method, prev, start time.Time) bool {
	stamp := start
	if prev.After(stamp) {
		stamp = prev
	}
	return e.store.ReplaceMethod(login.KindUser, id.names, m, nil, stamp)
}

// loadMethod parses one credential file into records for every name of id.
func (e *Engine) loadMethod(path string, id identity, m login.Method) ([]*login.Login, error) {
	var fresh []*login.Login
	add := func(opt login.Option) {
		for _, n := range id.names {
			fresh = append(fresh, login.New(n, id.dir, opt))
		}
	}
	switch m {
	case login.MethodPublicKey:
		kf, err := credfile.LoadKeys(path)
		if err != nil {
			return nil, err
		}
		for _, b := range kf.Broken() {
			e.metrics.BrokenKey()
			logger.Warn("refresh: skipping broken key on line %d of %s for %s: %v",
				b.Number, path, id.names[0], b.Err)
		}
		for _, k := range kf.Keys() {
			add(login.WithPublicKey(k.Key))
		}
	case login.MethodPassword, login.MethodDigest:
		sf, err := credfile.LoadSecrets(path)
		if err != nil {
			return nil, err
		}
		for _, s := range sf.Secrets() {
			if m == login.MethodPassword {
				add(login.WithPassword(s))
			} else {
				add(login.WithDigest(s))
			}
		}
	}
	return fresh, nil
}

// validName rejects login names that could address anything but a direct
// child of a base dir.
func validName(name string) bool {
	if name == "" || name == "." || name == ".." || strings.ContainsAny(name, `/\`) {
		return false
	}
	return hostfs.ValidPath(name) == nil && !hostfs.InvisiblePath(name)
}
