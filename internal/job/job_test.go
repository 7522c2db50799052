package job

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeResolver map[string][]string

func (f fakeResolver) LookupHost(_ context.Context, host string) ([]string, error) {
	if addrs, ok := f[host]; ok {
		return addrs, nil
	}
	return nil, errors.New("no such host")
}

const descriptorYAML = `
STATUS: EXECUTING
SESSIONID: abc123
USER_CERT: /C=DK/CN=Jane Doe
MOUNT: ["/home/jane"]
MOUNTSSHPUBLICKEY: ssh-ed25519 AAAA
RESOURCE_CONFIG:
  HOSTURL: node1.example.org
`

func TestLoadYAMLAndJSON(t *testing.T) {
	dir := t.TempDir()
	yml := filepath.Join(dir, "job.yaml")
	require.NoError(t, os.WriteFile(yml, []byte(descriptorYAML), 0600))
	d, err := Load(yml)
	require.NoError(t, err)
	assert.Equal(t, "abc123", d.SessionID)
	assert.Equal(t, "node1.example.org", d.ResourceConfig.HostURL)
	assert.NoError(t, d.Validate("abc123"))

	js := filepath.Join(dir, "job.json")
	require.NoError(t, os.WriteFile(js, []byte(`{"STATUS":"QUEUED","SESSIONID":"abc123"}`), 0600))
	d, err = Load(js)
	require.NoError(t, err)
	assert.ErrorIs(t, d.Validate("abc123"), ErrNotExecuting)

	bad := filepath.Join(dir, "bad")
	require.NoError(t, os.WriteFile(bad, []byte("STATUS: [unterminated"), 0600))
	_, err = Load(bad)
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	good := Descriptor{
		Status: StatusExecuting, SessionID: "s1", UserCert: "/CN=x",
		Mount: []string{"/"}, MountSSHPublicKey: "ssh-ed25519 AAAA",
		ResourceConfig: ResourceConfig{HostURL: "h"},
	}
	assert.NoError(t, good.Validate("s1"))
	assert.ErrorIs(t, good.Validate("s2"), ErrSessionMismatch)

	d := good
	d.UserCert = ""
	assert.ErrorIs(t, d.Validate("s1"), ErrNoOwner)
	d = good
	d.Mount = nil
	assert.ErrorIs(t, d.Validate("s1"), ErrNoMount)
	d = good
	d.MountSSHPublicKey = " "
	assert.ErrorIs(t, d.Validate("s1"), ErrNoMountKey)
	d = good
	d.ResourceConfig.HostURL = ""
	assert.ErrorIs(t, d.Validate("s1"), ErrNoResource)
}

func TestSessionIDFromLink(t *testing.T) {
	sid, ok := SessionIDFromLink("/var/links/abc123.mRSL")
	assert.True(t, ok)
	assert.Equal(t, "abc123", sid)
	_, ok = SessionIDFromLink(".mRSL")
	assert.False(t, ok)
	_, ok = SessionIDFromLink("abc123.txt")
	assert.False(t, ok)
	assert.Equal(t, "/var/links/abc123.mRSL", LinkPath("/var/links", "abc123"))
}

func TestResolveHost(t *testing.T) {
	r := fakeResolver{
		"node1.example.org":  {"2001:db8::1", "192.0.2.10"},
		"v6only.example.org": {"2001:db8::2"},
	}
	ctx := context.Background()

	ip, err := ResolveHost(ctx, r, "node1.example.org")
	require.NoError(t, err)
	assert.Equal(t, "192.0.2.10", ip)

	ip, err = ResolveHost(ctx, r, "https://node1.example.org:8443/")
	require.NoError(t, err)
	assert.Equal(t, "192.0.2.10", ip)

	ip, err = ResolveHost(ctx, r, "v6only.example.org")
	require.NoError(t, err)
	assert.Equal(t, "2001:db8::2", ip)

	ip, err = ResolveHost(ctx, r, "198.51.100.7")
	require.NoError(t, err)
	assert.Equal(t, "198.51.100.7", ip)

	_, err = ResolveHost(ctx, r, "unknown.example.org")
	assert.Error(t, err)
}
