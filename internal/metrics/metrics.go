// Package metrics exposes prometheus instrumentation for the login daemon.
// A nil *Metrics is valid and records nothing.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

type Metrics struct {
	// RefreshTotal counts refresh runs by scope ("users", "user", "jobs", "job").
	RefreshTotal *prometheus.CounterVec

	RefreshDuration *prometheus.HistogramVec

	// ChangedTotal counts login names reported changed by refresh runs.
	ChangedTotal *prometheus.CounterVec

	// Records tracks the current number of credential records by kind.
	Records *prometheus.GaugeVec

	BrokenKeys prometheus.Counter

	// AuthTotal counts authentication attempts by protocol and result.
	AuthTotal *prometheus.CounterVec

	RateLimitFailures *prometheus.CounterVec
	RateLimitExpired  prometheus.Counter
	PenaltySeconds    prometheus.Counter
}

// New creates and registers the gridlogin_ metrics on reg. Panics if
// registration fails.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		RefreshTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gridlogin_refresh_total",
			Help: "Credential refresh runs by scope",
		}, []string{"scope"}),
		RefreshDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "gridlogin_refresh_duration_seconds",
			Help:    "Credential refresh duration in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"scope"}),
		ChangedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gridlogin_refresh_changed_total",
			Help: "Login names changed by refresh runs",
		}, []string{"scope"}),
		Records: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "gridlogin_records",
			Help: "Current credential records by kind",
		}, []string{"kind"}),
		BrokenKeys: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gridlogin_broken_keys_total",
			Help: "Public key lines skipped because they did not parse",
		}),
		AuthTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gridlogin_auth_total",
			Help: "Authentication attempts by protocol and result",
		}, []string{"protocol", "result"}),
		RateLimitFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gridlogin_ratelimit_failures_total",
			Help: "Failed logins recorded by the rate limiter",
		}, []string{"protocol"}),
		RateLimitExpired: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gridlogin_ratelimit_expired_total",
			Help: "Rate limiter entries removed by expiry",
		}),
		PenaltySeconds: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gridlogin_penalty_seconds_total",
			Help: "Seconds spent stalling rate limited clients",
		}),
	}
	reg.MustRegister(
		m.RefreshTotal,
		m.RefreshDuration,
		m.ChangedTotal,
		m.Records,
		m.BrokenKeys,
		m.AuthTotal,
		m.RateLimitFailures,
		m.RateLimitExpired,
		m.PenaltySeconds,
	)
	return m
}

func (m *Metrics) ObserveRefresh(scope string, changed int, d time.Duration) {
	if m == nil {
		return
	}
	m.RefreshTotal.WithLabelValues(scope).Inc()
	m.RefreshDuration.WithLabelValues(scope).Observe(d.Seconds())
	m.ChangedTotal.WithLabelValues(scope).Add(float64(changed))
}

func (m *Metrics) SetRecords(kind string, n int) {
	if m == nil {
		return
	}
	m.Records.WithLabelValues(kind).Set(float64(n))
}

func (m *Metrics) BrokenKey() {
	if m == nil {
		return
	}
	m.BrokenKeys.Inc()
}

// RecordAuth counts an attempt; result is one of "ok", "denied", "blocked".
func (m *Metrics) RecordAuth(protocol, result string) {
	if m == nil {
		return
	}
	m.AuthTotal.WithLabelValues(protocol, result).Inc()
}

func (m *Metrics) RateLimitFailure(protocol string) {
	if m == nil {
		return
	}
	m.RateLimitFailures.WithLabelValues(protocol).Inc()
}

func (m *Metrics) Expired(n int) {
	if m == nil {
		return
	}
	m.RateLimitExpired.Add(float64(n))
}

func (m *Metrics) Penalty(d time.Duration) {
	if m == nil {
		return
	}
	m.PenaltySeconds.Add(d.Seconds())
}
