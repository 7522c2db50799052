// Package ratelimit tracks recent failed logins per client address and
// protocol so daemons can refuse and stall brute force attempts.
package ratelimit

import (
	"context"
	"path"
	"sort"
	"sync"
	"time"

	"github.com/hnrobert/gridlogin/internal/logger"
	"github.com/hnrobert/gridlogin/internal/metrics"
)

const (
	DefaultMaxFails  = 5
	DefaultFailCache = 120 * time.Second

	// PenaltyStep is the stall added for every failure beyond the limit.
	PenaltyStep = 3 * time.Second
)

// Failure is one failed login. Secret is an opaque token, such as a hash of
// the offered credential, used to recognize repeats of the same attempt.
type Failure struct {
	Time     time.Time
	ClientID string
	Secret   string
}

// Expired describes a failure removed by Expire.
type Expired struct {
	Address  string    `json:"address"`
	Protocol string    `json:"protocol"`
	Time     time.Time `json:"time"`
	ClientID string    `json:"client_id"`
}

// Entry summarizes the failures of one address and protocol.
type Entry struct {
	Address  string    `json:"address"`
	Protocol string    `json:"protocol"`
	Failures int       `json:"failures"`
	Last     time.Time `json:"last"`
}

// Sleeper blocks for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

type Limiter struct {
	mu    sync.Mutex
	table map[string]map[string][]Failure

	now     func() time.Time
	sleep   Sleeper
	metrics *metrics.Metrics
}

type Option func(*Limiter)

func WithClock(now func() time.Time) Option { return func(l *Limiter) { l.now = now } }

func WithSleeper(s Sleeper) Option { return func(l *Limiter) { l.sleep = s } }

func WithMetrics(m *metrics.Metrics) Option { return func(l *Limiter) { l.metrics = m } }

func New(opts ...Option) *Limiter {
	l := &Limiter{
		table: map[string]map[string][]Failure{},
		now:   time.Now,
		sleep: sleepCtx,
	}
	for _, o := range opts {
		o(l)
	}
	return l
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func live(f Failure, now time.Time, failCache time.Duration) bool {
	return !f.Time.Add(failCache).Before(now)
}

// Hit reports whether address has at least maxFails failures on proto within
// the last failCache. It does not modify the table.
func (l *Limiter) Hit(address, proto, clientID string, maxFails int, failCache time.Duration) bool {
	now := l.now()
	l.mu.Lock()
	hits := 0
	for _, f := range l.table[address][proto] {
		if live(f, now, failCache) {
			hits++
		}
	}
	l.mu.Unlock()

	if hits > 0 {
		logger.Info("ratelimit: %d hit(s) on %s from %s (%s)", hits, proto, address, clientID)
	}
	return hits >= maxFails
}

// Update records the outcome of a login. A success clears the failures of
// address on proto. A failure is appended unless the same clientID already
// failed with the same non-empty secret. Returns the resulting failure count.
func (l *Limiter) Update(address, proto, clientID string, success bool, secret string) int {
	now := l.now()
	l.mu.Lock()
	if success {
		if protos, ok := l.table[address]; ok {
			delete(protos, proto)
			if len(protos) == 0 {
				delete(l.table, address)
			}
		}
		l.mu.Unlock()
		return 0
	}
	protos := l.table[address]
	if protos == nil {
		protos = map[string][]Failure{}
		l.table[address] = protos
	}
	failed := protos[proto]
	repeat := false
	if secret != "" {
		for _, f := range failed {
			if f.ClientID == clientID && f.Secret == secret {
				repeat = true
				break
			}
		}
	}
	if !repeat {
		failed = append(failed, Failure{Time: now, ClientID: clientID, Secret: secret})
		protos[proto] = failed
	}
	count := len(failed)
	l.mu.Unlock()

	if !repeat {
		l.metrics.RateLimitFailure(proto)
	}
	logger.Info("ratelimit: failure for %s from %s on %s, %d hit(s)", clientID, address, proto, count)
	return count
}

// Expire drops failures older than failCache on protocols matching the glob
// pattern protoPattern and returns them.
func (l *Limiter) Expire(protoPattern string, failCache time.Duration) []Expired {
	if protoPattern == "" {
		protoPattern = "*"
	}
	if _, err := path.Match(protoPattern, ""); err != nil {
		logger.Error("ratelimit: bad protocol pattern %q: %v", protoPattern, err)
		return nil
	}
	now := l.now()
	var expired []Expired
	l.mu.Lock()
	for address, protos := range l.table {
		for proto, failed := range protos {
			if ok, _ := path.Match(protoPattern, proto); !ok {
				continue
			}
			keep := failed[:0]
			for _, f := range failed {
				if live(f, now, failCache) {
					keep = append(keep, f)
					continue
				}
				expired = append(expired, Expired{Address: address, Protocol: proto, Time: f.Time, ClientID: f.ClientID})
			}
			if len(keep) == 0 {
				delete(protos, proto)
			} else {
				protos[proto] = keep
			}
		}
		if len(protos) == 0 {
			delete(l.table, address)
		}
	}
	l.mu.Unlock()

	if len(expired) > 0 {
		logger.Info("ratelimit: expired %d entries on %s", len(expired), protoPattern)
		l.metrics.Expired(len(expired))
	}
	return expired
}

// Penalize stalls the caller for PenaltyStep per failure beyond maxFails and
// returns the stall. No lock is held while sleeping.
func (l *Limiter) Penalize(ctx context.Context, address, proto, clientID string, hits, maxFails int) time.Duration {
	d := time.Duration(hits-maxFails) * PenaltyStep
	if d <= 0 {
		return 0
	}
	logger.Info("ratelimit: stalling %s user %s from %s for %s", proto, clientID, address, d)
	l.metrics.Penalty(d)
	if err := l.sleep(ctx, d); err != nil {
		logger.Debug("ratelimit: stall of %s cut short: %v", address, err)
	}
	return d
}

// Snapshot lists the current failure counts without secrets.
func (l *Limiter) Snapshot() []Entry {
	l.mu.Lock()
	out := make([]Entry, 0, len(l.table))
	for address, protos := range l.table {
		for proto, failed := range protos {
			e := Entry{Address: address, Protocol: proto, Failures: len(failed)}
			if len(failed) > 0 {
				e.Last = failed[len(failed)-1].Time
			}
			out = append(out, e)
		}
	}
	l.mu.Unlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].Address != out[j].Address {
			return out[i].Address < out[j].Address
		}
		return out[i].Protocol < out[j].Protocol
	})
	return out
}
