// Package login holds the in-memory directory of valid logins for one
// protocol daemon: users with their keys, passwords and digests plus the
// job sessions allowed to mount user homes.
package login

import (
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"golang.org/x/crypto/ssh"
)

type Method int

const (
	MethodPublicKey Method = iota + 1
	MethodPassword
	MethodDigest
)

func (m Method) String() string {
	switch m {
	case MethodPublicKey:
		return "publickey"
	case MethodPassword:
		return "password"
	case MethodDigest:
		return "digest"
	}
	return "unknown"
}

// Login is one valid login for a user or job with one authentication method.
// Fields are set by New and must not be changed afterwards. Only the refresh
// code moves LastUpdate, and only forward.
type Login struct {
	Username  string
	Home      string
	Password  string
	Digest    string
	PublicKey ssh.PublicKey
	Chroot    bool
	// IPAddr limits the login to a single source address, used for job mounts.
	IPAddr string

	lastUpdate atomic.Int64
}

type Option func(*Login)

func WithPassword(pw string) Option        { return func(l *Login) { l.Password = pw } }
func WithDigest(d string) Option           { return func(l *Login) { l.Digest = d } }
func WithPublicKey(k ssh.PublicKey) Option { return func(l *Login) { l.PublicKey = k } }
func WithChroot(c bool) Option             { return func(l *Login) { l.Chroot = c } }
func WithIPAddr(ip string) Option          { return func(l *Login) { l.IPAddr = ip } }

func WithLastUpdate(t time.Time) Option {
	return func(l *Login) { l.lastUpdate.Store(t.UnixNano()) }
}

// New returns a chrooted login stamped with the current time. An empty home
// defaults to the username.
func New(username, home string, opts ...Option) *Login {
	l := &Login{Username: username, Home: home, Chroot: true}
	l.lastUpdate.Store(time.Now().UnixNano())
	for _, o := range opts {
		o(l)
	}
	if l.Home == "" {
		l.Home = l.Username
	}
	return l
}

func (l *Login) HasMethod(m Method) bool {
	switch m {
	case MethodPublicKey:
		return l.PublicKey != nil
	case MethodPassword:
		return l.Password != ""
	case MethodDigest:
		return l.Digest != ""
	}
	return false
}

// Method returns the authentication method of the login, 0 if none is set.
func (l *Login) Method() Method {
	for _, m := range []Method{MethodPublicKey, MethodPassword, MethodDigest} {
		if l.HasMethod(m) {
			return m
		}
	}
	return 0
}

func (l *Login) LastUpdate() time.Time {
	return time.Unix(0, l.lastUpdate.Load())
}

// AllowsAddress reports whether a client connecting from addr may use the login.
func (l *Login) AllowsAddress(addr string) bool {
	return l.IPAddr == "" || l.IPAddr == addr
}

// String formats the login for logs without leaking secrets.
func (l *Login) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "username: %s\nhome: %s", l.Username, l.Home)
	if l.Password != "" {
		b.WriteString("\npassword: ********")
	}
	if l.Digest != "" {
		b.WriteString("\ndigest: ********")
	}
	if l.PublicKey != nil {
		fmt.Fprintf(&b, "\npubkey: %s", ssh.FingerprintSHA256(l.PublicKey))
	}
	if l.IPAddr != "" {
		fmt.Fprintf(&b, "\nip_addr: %s", l.IPAddr)
	}
	fmt.Fprintf(&b, "\nlast_update: %s", l.LastUpdate().UTC().Format(time.RFC3339Nano))
	return b.String()
}
