package refresh

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/hnrobert/gridlogin/internal/credfile"
	"github.com/hnrobert/gridlogin/internal/job"
	"github.com/hnrobert/gridlogin/internal/logger"
	"github.com/hnrobert/gridlogin/internal/login"
	"github.com/hnrobert/gridlogin/internal/userid"
)

// RefreshJobs rescans the session links of all jobs. A job keeps its login
// only while its descriptor is readable and describes an executing job with
// a mount key for the matching session. Returns the changed session ids.
func (e *Engine) RefreshJobs(ctx context.Context) []string {
	if !e.proto.AllowsJobs() {
		logger.Error("refresh: %s does not serve job logins", e.proto)
		return nil
	}
	return e.share("jobs", func() []string { return e.refreshJobs(ctx) })
}

func (e *Engine) refreshJobs(ctx context.Context) []string {
	start := time.Now()
	entries, err := os.ReadDir(e.cfg.LinkHome)
	if err != nil {
		logger.Error("refresh: read link home %s: %v", e.cfg.LinkHome, err)
		return nil
	}
	var changed []string
	current := map[string]bool{}
	for _, ent := range entries {
		sid, ok := job.SessionIDFromLink(ent.Name())
		if !ok || ent.Type()&fs.ModeSymlink == 0 {
			continue
		}
		active, ch := e.syncJob(ctx, sid)
		if active {
			current[sid] = true
		}
		if ch {
			changed = appendUnique(changed, sid)
		}
	}

	var gone []string
	for _, n := range e.store.Usernames(login.KindJob) {
		if !current[n] {
			gone = append(gone, n)
		}
	}
	if removed := e.store.RemoveUsernames(login.KindJob, gone); len(removed) > 0 {
		logger.Info("refresh: removed logins of %d finished jobs", len(removed))
		changed = appendUnique(changed, removed...)
	}
	logger.Info("refresh: jobs refreshed (%d jobs)", e.store.Len(login.KindJob))
	e.observe("jobs", start, changed)
	return changed
}

// RefreshOneJob rechecks the session link of one job.
func (e *Engine) RefreshOneJob(ctx context.Context, sessionID string) []string {
	if !e.proto.AllowsJobs() {
		logger.Error("refresh: %s does not serve job logins", e.proto)
		return nil
	}
	if !validName(sessionID) {
		logger.Debug("refresh: ignoring invalid session id %q", sessionID)
		return nil
	}
	return e.share("job/"+sessionID, func() []string {
		start := time.Now()
		var changed []string
		active, ch := e.syncJob(ctx, sessionID)
		switch {
		case !active:
			changed = e.store.RemoveUsernames(login.KindJob, []string{sessionID})
			if len(changed) > 0 {
				logger.Info("refresh: removed login of finished job %s", sessionID)
			}
		case ch:
			changed = []string{sessionID}
		}
		e.observe("job", start, changed)
		return changed
	})
}

// syncJob reports whether the session is valid and whether its record was
// replaced.
func (e *Engine) syncJob(ctx context.Context, sid string) (bool, bool) {
	link := job.LinkPath(e.cfg.LinkHome, sid)
	lst, err := os.Lstat(link)
	if err != nil || lst.Mode()&fs.ModeSymlink == 0 {
		return false, false
	}
	st, err := os.Stat(link)
	if err != nil {
		logger.Debug("refresh: dangling session link %s", link)
		return false, false
	}
	prev, had := e.store.MethodUpdated(login.KindJob, sid, login.MethodPublicKey)
	if had && !st.ModTime().After(prev) {
		return true, false
	}
	l, err := e.loadJob(ctx, sid, link)
	if err != nil {
		if errors.Is(err, job.ErrNotExecuting) {
			logger.Debug("refresh: job %s: %v", sid, err)
		} else {
			logSkip("job", sid, err)
		}
		return false, false
	}
	ok := e.store.ReplaceMethod(login.KindJob, []string{sid}, login.MethodPublicKey, []*login.Login{l}, st.ModTime())
	return true, ok
}

// loadJob builds the mount login of a job, restricted to the address of the
// resource running it.
func (e *Engine) loadJob(ctx context.Context, sid, link string) (*login.Login, error) {
	d, err := job.Load(link)
	if err != nil {
		return nil, err
	}
	if err := d.Validate(sid); err != nil {
		return nil, err
	}
	key, _, err := credfile.ParseKey(d.MountSSHPublicKey)
	if err != nil {
		e.metrics.BrokenKey()
		return nil, fmt.Errorf("broken mount key: %w", err)
	}
	ip, err := job.ResolveHost(ctx, e.resolver, d.ResourceConfig.HostURL)
	if err != nil {
		return nil, err
	}
	return login.New(sid, userid.ClientIDDir(d.UserCert), login.WithPublicKey(key), login.WithIPAddr(ip)), nil
}
