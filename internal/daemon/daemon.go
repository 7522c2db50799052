// Package daemon is what a protocol front-end talks to: it owns the login
// store and refresh engine of one daemon and shares a rate limiter with the
// other daemons of the process.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/hnrobert/gridlogin/internal/auth"
	"github.com/hnrobert/gridlogin/internal/config"
	"github.com/hnrobert/gridlogin/internal/hostfs"
	"github.com/hnrobert/gridlogin/internal/job"
	"github.com/hnrobert/gridlogin/internal/logger"
	"github.com/hnrobert/gridlogin/internal/login"
	"github.com/hnrobert/gridlogin/internal/metrics"
	"github.com/hnrobert/gridlogin/internal/ratelimit"
	"github.com/hnrobert/gridlogin/internal/refresh"
)

var ErrRateLimited = errors.New("too many failed logins")

// Attempt is one login attempt as seen by a front-end.
type Attempt struct {
	Username   string
	Address    string
	Credential auth.Credential
}

type Daemon struct {
	cfg     config.Config
	proto   refresh.Protocol
	store   *login.Store
	engine  *refresh.Engine
	limiter *ratelimit.Limiter
	metrics *metrics.Metrics
}

type options struct {
	limiter  *ratelimit.Limiter
	metrics  *metrics.Metrics
	resolver job.Resolver
}

type Option func(*options)

// WithLimiter shares l between daemons of one process.
func WithLimiter(l *ratelimit.Limiter) Option { return func(o *options) { o.limiter = l } }

func WithMetrics(m *metrics.Metrics) Option { return func(o *options) { o.metrics = m } }

func WithResolver(r job.Resolver) Option { return func(o *options) { o.resolver = r } }

func New(cfg config.Config, opts ...Option) (*Daemon, error) {
	proto, err := refresh.ParseProtocol(cfg.Protocol)
	if err != nil {
		logger.Error("daemon: %v", err)
		return nil, err
	}
	var o options
	for _, fn := range opts {
		fn(&o)
	}
	if o.limiter == nil {
		o.limiter = ratelimit.New(ratelimit.WithMetrics(o.metrics))
	}
	engineOpts := []refresh.Option{refresh.WithMetrics(o.metrics)}
	if o.resolver != nil {
		engineOpts = append(engineOpts, refresh.WithResolver(o.resolver))
	}
	store := login.NewStore()
	return &Daemon{
		cfg:     cfg,
		proto:   proto,
		store:   store,
		engine:  refresh.New(cfg, store, proto, engineOpts...),
		limiter: o.limiter,
		metrics: o.metrics,
	}, nil
}

func (d *Daemon) Config() config.Config             { return d.cfg }
func (d *Daemon) Protocol() refresh.Protocol        { return d.proto }
func (d *Daemon) Store() *login.Store               { return d.store }
func (d *Daemon) Engine() *refresh.Engine           { return d.engine }
func (d *Daemon) Limiter() *ratelimit.Limiter       { return d.limiter }
func (d *Daemon) Lookup(name string) []*login.Login { return d.store.Lookup(name) }

// Refresh runs a full sweep and returns the changed login names.
func (d *Daemon) Refresh(ctx context.Context) []string {
	return d.engine.Refresh(ctx)
}

// ExpireRateLimit drops stale failures of this daemon's protocol.
func (d *Daemon) ExpireRateLimit() []ratelimit.Expired {
	return d.limiter.Expire(d.cfg.Protocol, d.cfg.FailCache)
}

// Authenticate checks a login attempt end to end. Blocked addresses are
// refused before any credential is compared. Failures are recorded and
// stall the caller once the address is over the limit.
func (d *Daemon) Authenticate(ctx context.Context, a Attempt) (*login.Login, error) {
	proto := d.cfg.Protocol
	if d.limiter.Hit(a.Address, proto, a.Username, d.cfg.MaxFails, d.cfg.FailCache) {
		d.metrics.RecordAuth(proto, "blocked")
		logger.Warn("daemon: refusing rate limited %s login for %s from %s", proto, a.Username, a.Address)
		return nil, ErrRateLimited
	}

	d.engine.RefreshOneUser(ctx, a.Username)
	if d.proto.AllowsJobs() {
		d.engine.RefreshOneJob(ctx, a.Username)
	}

	l, err := auth.Match(d.store.Lookup(a.Username), a.Credential, a.Address)
	if err == nil {
		d.limiter.Update(a.Address, proto, a.Username, true, "")
		d.metrics.RecordAuth(proto, "ok")
		logger.Info("daemon: accepted %s %s login for %s from %s", proto, l.Method(), a.Username, a.Address)
		return l, nil
	}

	hits := d.limiter.Update(a.Address, proto, a.Username, false, a.Credential.Token())
	d.metrics.RecordAuth(proto, "denied")
	logger.Warn("daemon: denied %s login for %s from %s: %v", proto, a.Username, a.Address, err)
	d.limiter.Penalize(ctx, a.Address, proto, a.Username, hits, d.cfg.MaxFails)
	return nil, err
}

// FsPath maps a client path of l to the filesystem. Chrooted logins are
// confined to their home and the configured exceptions.
func (d *Daemon) FsPath(l *login.Login, userPath string) (string, error) {
	home := filepath.Join(d.cfg.RootDir, l.Home)
	if !l.Chroot {
		return hostfs.FsPath(userPath, string(os.PathSeparator), nil)
	}
	p, err := hostfs.FsPath(userPath, home, d.cfg.ChrootExceptions)
	if err != nil {
		return "", fmt.Errorf("%s: %w", l.Username, err)
	}
	return p, nil
}

// StripRoot turns a filesystem path of l back into the client view.
func (d *Daemon) StripRoot(l *login.Login, fsPath string) string {
	if !l.Chroot {
		return fsPath
	}
	return hostfs.StripRoot(fsPath, filepath.Join(d.cfg.RootDir, l.Home), d.cfg.ChrootExceptions)
}

// OpenMode maps the open flags of a client request to the mode the file is
// opened with.
func (d *Daemon) OpenMode(flags int) string {
	return hostfs.FlagsToMode(flags)
}

// AcceptableChmod applies the chmod policy with the configured exceptions.
func (d *Daemon) AcceptableChmod(path string, mode uint32) bool {
	return hostfs.AcceptableChmod(path, mode, d.cfg.ChmodExceptions)
}

// WatchPaths lists the directories whose changes should trigger a sweep: the
// user root, every existing credential directory and the job link home.
func (d *Daemon) WatchPaths() []string {
	paths := []string{d.cfg.RootDir}
	confDirs, _ := filepath.Glob(filepath.Join(d.cfg.RootDir, "*", d.proto.ConfDir()))
	paths = append(paths, confDirs...)
	if d.proto.AllowsJobs() && d.cfg.LinkHome != "" {
		paths = append(paths, d.cfg.LinkHome)
	}
	return paths
}
