// Package job reads the job session descriptors that grant a running job
// temporary sftp access to its owner's home.
//
// Every executing job with a mount has a symlink <link_home>/<sessionid>.mRSL
// pointing at its job state record, stored as YAML or JSON.
package job

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/hnrobert/gridlogin/internal/hostfs"
)

const (
	LinkSuffix      = ".mRSL"
	StatusExecuting = "EXECUTING"

	DefaultResolveTimeout = 5 * time.Second
)

var (
	ErrNotExecuting    = errors.New("job is not executing")
	ErrSessionMismatch = errors.New("job session id does not match link")
	ErrNoOwner         = errors.New("job has no owner")
	ErrNoMount         = errors.New("job has no mounts")
	ErrNoMountKey      = errors.New("job has no mount public key")
	ErrNoResource      = errors.New("job has no resource host")
)

type ResourceConfig struct {
	HostURL string `yaml:"HOSTURL"`
}

// Descriptor is the subset of the job state record the daemons rely on.
type Descriptor struct {
	Status            string         `yaml:"STATUS"`
	SessionID         string         `yaml:"SESSIONID"`
	UserCert          string         `yaml:"USER_CERT"`
	Mount             []string       `yaml:"MOUNT"`
	MountSSHPublicKey string         `yaml:"MOUNTSSHPUBLICKEY"`
	ResourceConfig    ResourceConfig `yaml:"RESOURCE_CONFIG"`
}

func LinkPath(linkHome, sessionID string) string {
	return filepath.Join(linkHome, sessionID+LinkSuffix)
}

// SessionIDFromLink returns the session id encoded in a link name.
func SessionIDFromLink(name string) (string, bool) {
	base := filepath.Base(name)
	if !strings.HasSuffix(base, LinkSuffix) || len(base) == len(LinkSuffix) {
		return "", false
	}
	return strings.TrimSuffix(base, LinkSuffix), true
}

func Load(path string) (*Descriptor, error) {
	b, err := hostfs.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var d Descriptor
	if err := yaml.Unmarshal(b, &d); err != nil {
		return nil, fmt.Errorf("parse job descriptor %s: %w", path, err)
	}
	return &d, nil
}

// Validate checks that d may grant a mount login for sessionID.
func (d *Descriptor) Validate(sessionID string) error {
	switch {
	case d.Status != StatusExecuting:
		return fmt.Errorf("%w: status %q", ErrNotExecuting, d.Status)
	case d.SessionID != sessionID:
		return ErrSessionMismatch
	case d.UserCert == "":
		return ErrNoOwner
	case len(d.Mount) == 0:
		return ErrNoMount
	case strings.TrimSpace(d.MountSSHPublicKey) == "":
		return ErrNoMountKey
	case d.ResourceConfig.HostURL == "":
		return ErrNoResource
	}
	return nil
}

// Resolver is satisfied by *net.Resolver.
type Resolver interface {
	LookupHost(ctx context.Context, host string) ([]string, error)
}

// ResolveHost returns the address a job resource connects from, preferring
// IPv4. hostURL may be a bare host name or a URL.
func ResolveHost(ctx context.Context, r Resolver, hostURL string) (string, error) {
	host := hostURL
	if strings.Contains(hostURL, "://") {
		u, err := url.Parse(hostURL)
		if err != nil {
			return "", fmt.Errorf("parse resource url %q: %w", hostURL, err)
		}
		host = u.Hostname()
	}
	if ip := net.ParseIP(host); ip != nil {
		return ip.String(), nil
	}
	ctx, cancel := context.WithTimeout(ctx, DefaultResolveTimeout)
	defer cancel()
	addrs, err := r.LookupHost(ctx, host)
	if err != nil {
		return "", fmt.Errorf("resolve %s: %w", host, err)
	}
	if len(addrs) == 0 {
		return "", fmt.Errorf("resolve %s: no addresses", host)
	}
	for _, a := range addrs {
		if ip := net.ParseIP(a); ip != nil && ip.To4() != nil {
			return ip.String(), nil
		}
	}
	return addrs[0], nil
}
