// Package sweeper runs full credential sweeps and rate limit expiry on a
// timer and, optionally, shortly after credential files change on disk.
package sweeper

import (
	"context"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/hnrobert/gridlogin/internal/logger"
	"github.com/hnrobert/gridlogin/internal/ratelimit"
)

const DefaultDebounce = 500 * time.Millisecond

// Target is swept. *daemon.Daemon implements it.
type Target interface {
	Refresh(ctx context.Context) []string
	ExpireRateLimit() []ratelimit.Expired
}

type Sweeper struct {
	target   Target
	interval time.Duration
	debounce time.Duration
	watch    func() []string
	kick     chan struct{}
}

type Option func(*Sweeper)

// WithWatch enables fsnotify triggers on the directories returned by paths.
// The list is re-read after every sweep so new homes get watched too.
func WithWatch(paths func() []string) Option { return func(s *Sweeper) { s.watch = paths } }

func WithDebounce(d time.Duration) Option { return func(s *Sweeper) { s.debounce = d } }

// New returns a sweeper; a zero interval disables the timer.
func New(t Target, interval time.Duration, opts ...Option) *Sweeper {
	s := &Sweeper{
		target:   t,
		interval: interval,
		debounce: DefaultDebounce,
		kick:     make(chan struct{}, 1),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Trigger requests a sweep as soon as possible without waiting for it.
func (s *Sweeper) Trigger() {
	select {
	case s.kick <- struct{}{}:
	default:
	}
}

// Run sweeps once and then until ctx is done.
func (s *Sweeper) Run(ctx context.Context) error {
	var (
		events  <-chan fsnotify.Event
		errs    <-chan error
		watcher *fsnotify.Watcher
		watched = map[string]bool{}
	)
	if s.watch != nil {
		w, err := fsnotify.NewWatcher()
		if err != nil {
			return err
		}
		defer w.Close()
		watcher, events, errs = w, w.Events, w.Errors
	}

	sweep := func() {
		s.sweep(ctx)
		if watcher != nil {
			s.syncWatches(watcher, watched)
		}
	}
	sweep()

	var tick <-chan time.Time
	if s.interval > 0 {
		t := time.NewTicker(s.interval)
		defer t.Stop()
		tick = t.C
	}
	debounce := time.NewTimer(s.debounce)
	debounce.Stop()
	defer debounce.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-tick:
			sweep()
		case <-s.kick:
			sweep()
		case <-debounce.C:
			sweep()
		case ev, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			if ev.Op == fsnotify.Chmod {
				continue
			}
			logger.Debug("sweeper: %s %s", ev.Op, ev.Name)
			debounce.Reset(s.debounce)
		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			logger.Warn("sweeper: watch error: %v", err)
		}
	}
}

func (s *Sweeper) sweep(ctx context.Context) {
	start := time.Now()
	changed := s.target.Refresh(ctx)
	expired := s.target.ExpireRateLimit()
	logger.Debug("sweeper: sweep took %s, %d changed, %d expired",
		time.Since(start).Round(time.Millisecond), len(changed), len(expired))
}

func (s *Sweeper) syncWatches(w *fsnotify.Watcher, watched map[string]bool) {
	current := map[string]bool{}
	for _, p := range s.watch() {
		current[p] = true
		if watched[p] {
			continue
		}
		if err := w.Add(p); err != nil {
			logger.Debug("sweeper: cannot watch %s: %v", p, err)
			continue
		}
		watched[p] = true
	}
	for p := range watched {
		if !current[p] {
			_ = w.Remove(p)
			delete(watched, p)
		}
	}
}
