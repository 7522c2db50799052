// Package refresh keeps a login.Store in sync with the credential files and
// job session links on disk.
//
// All file I/O and parsing happens before the store lock is taken. Records
// are stamped with the modification time of their source file and the store
// refuses to replace newer records with older ones, so concurrent refreshes
// of the same name settle on the newest file state.
package refresh

import (
	"context"
	"net"
	"path/filepath"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/hnrobert/gridlogin/internal/config"
	"github.com/hnrobert/gridlogin/internal/job"
	"github.com/hnrobert/gridlogin/internal/logger"
	"github.com/hnrobert/gridlogin/internal/login"
	"github.com/hnrobert/gridlogin/internal/metrics"
)

type Engine struct {
	cfg      config.Config
	store    *login.Store
	proto    Protocol
	resolver job.Resolver
	metrics  *metrics.Metrics

	group singleflight.Group
}

type Option func(*Engine)

func WithResolver(r job.Resolver) Option { return func(e *Engine) { e.resolver = r } }

func WithMetrics(m *metrics.Metrics) Option { return func(e *Engine) { e.metrics = m } }

func New(cfg config.Config, store *login.Store, proto Protocol, opts ...Option) *Engine {
	e := &Engine{
		cfg:      cfg,
		store:    store,
		proto:    proto,
		resolver: net.DefaultResolver,
	}
	e.cfg.RootDir = filepath.Clean(cfg.RootDir)
	for _, o := range opts {
		o(e)
	}
	return e
}

func (e *Engine) Store() *login.Store { return e.store }

func (e *Engine) Protocol() Protocol { return e.proto }

// methods returns the authentication methods the daemon accepts.
func (e *Engine) methods() []login.Method {
	var out []login.Method
	if e.cfg.AllowPublicKey {
		out = append(out, login.MethodPublicKey)
	}
	if e.cfg.AllowPassword {
		out = append(out, login.MethodPassword)
	}
	if e.cfg.AllowDigest {
		out = append(out, login.MethodDigest)
	}
	return out
}

// UpdateLoginMap rebuilds the login map entries of the changed names only.
func (e *Engine) UpdateLoginMap(changedUsers, changedJobs []string) {
	if len(changedUsers) == 0 && len(changedJobs) == 0 {
		return
	}
	e.store.RebuildLoginMap(changedUsers, changedJobs)
}

// Refresh sweeps users, and jobs where the protocol allows them, and updates
// the login map. It returns every changed login name.
func (e *Engine) Refresh(ctx context.Context) []string {
	users := e.RefreshAllUsers(ctx)
	var jobs []string
	if e.proto.AllowsJobs() {
		jobs = e.RefreshJobs(ctx)
	}
	e.UpdateLoginMap(users, jobs)
	return append(users, jobs...)
}

func (e *Engine) observe(scope string, start time.Time, changed []string) {
	e.metrics.ObserveRefresh(scope, len(changed), time.Since(start))
	e.metrics.SetRecords(login.KindUser.String(), e.store.Len(login.KindUser))
	e.metrics.SetRecords(login.KindJob.String(), e.store.Len(login.KindJob))
}

// share runs fn once per key among concurrent callers.
func (e *Engine) share(key string, fn func() []string) []string {
	v, _, _ := e.group.Do(key, func() (any, error) {
		return fn(), nil
	})
	changed, _ := v.([]string)
	return append([]string(nil), changed...)
}

func appendUnique(dst []string, names ...string) []string {
	for _, n := range names {
		if n == "" {
			continue
		}
		dup := false
		for _, d := range dst {
			if d == n {
				dup = true
				break
			}
		}
		if !dup {
			dst = append(dst, n)
		}
	}
	return dst
}

func logSkip(what, name string, err error) {
	logger.Warn("refresh: skipping %s %s: %v", what, name, err)
}
