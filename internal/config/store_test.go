package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hnrobert/gridlogin/internal/auth"
)

func envMap(m map[string]string) func(string) string {
	return func(k string) string { return m[k] }
}

func TestEnsureWritesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "etc", "gridlogind.yaml")
	s := NewStore(path)
	s.getenv = envMap(nil)
	require.NoError(t, s.Ensure())
	_, err := os.Stat(path)
	require.NoError(t, err)

	cfg, err := s.Get()
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gridlogind.yaml")
	s := NewStore(path)
	s.getenv = envMap(nil)
	require.NoError(t, s.Ensure())

	cfg, err := s.Get()
	require.NoError(t, err)
	cfg.AdminSecret = "a-long-enough-admin-secret"
	cfg.UserAlias = "emailAddress"
	require.NoError(t, s.Save(cfg))

	got, err := s.Get()
	require.NoError(t, err)
	assert.Equal(t, cfg, got)

	// Ensure leaves an existing file alone.
	require.NoError(t, s.Ensure())
	got, err = s.Get()
	require.NoError(t, err)
	assert.Equal(t, "emailAddress", got.UserAlias)
}

func TestGetMissingFileUsesDefaults(t *testing.T) {
	s := NewStore(filepath.Join(t.TempDir(), "missing.yaml"))
	s.getenv = envMap(nil)
	cfg, err := s.Get()
	require.NoError(t, err)
	assert.Equal(t, DefaultMaxFails, cfg.MaxFails)
	assert.Equal(t, DefaultFailCache, cfg.FailCache)
}

func TestGetParsesFileAndKeepsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "c.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
root_dir: /srv/home/
protocol: davs
allow_publickey: false
allow_digest: true
user_alias: email
chroot_exceptions: [/srv/vgrid_files]
fail_cache: 5m
`), 0600))
	s := NewStore(path)
	s.getenv = envMap(nil)
	cfg, err := s.Get()
	require.NoError(t, err)
	assert.Equal(t, "/srv/home", cfg.RootDir)
	assert.Equal(t, "davs", cfg.Protocol)
	assert.False(t, cfg.AllowPublicKey)
	assert.True(t, cfg.AllowPassword)
	assert.True(t, cfg.AllowDigest)
	assert.Equal(t, "email", cfg.UserAlias)
	assert.Equal(t, []string{"/srv/vgrid_files"}, cfg.ChrootExceptions)
	assert.Equal(t, 5*time.Minute, cfg.FailCache)
	assert.Equal(t, DefaultMaxFails, cfg.MaxFails)
}

func TestEnvOverrides(t *testing.T) {
	s := NewStore(filepath.Join(t.TempDir(), "none.yaml"))
	s.getenv = envMap(map[string]string{
		"GRIDLOGIN_PROTOCOL":         "ftps",
		"GRIDLOGIN_ALLOW_PUBLICKEY":  "false",
		"GRIDLOGIN_MAX_FAILS":        "3",
		"GRIDLOGIN_FAIL_CACHE":       "30s",
		"GRIDLOGIN_CHMOD_EXCEPTIONS": "/a:/b",
	})
	cfg, err := s.Get()
	require.NoError(t, err)
	assert.Equal(t, "ftps", cfg.Protocol)
	assert.False(t, cfg.AllowPublicKey)
	assert.Equal(t, 3, cfg.MaxFails)
	assert.Equal(t, 30*time.Second, cfg.FailCache)
	assert.Equal(t, []string{"/a", "/b"}, cfg.ChmodExceptions)

	s.getenv = envMap(map[string]string{"GRIDLOGIN_WATCH": "maybe"})
	_, err = s.Get()
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestValidate(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	bad := cfg
	bad.Protocol = "gopher"
	assert.ErrorIs(t, bad.Validate(), ErrInvalidConfig)

	bad = cfg
	bad.ChrootExceptions = []string{"relative/path"}
	assert.ErrorIs(t, bad.Validate(), ErrInvalidConfig)

	bad = cfg
	bad.AllowPublicKey, bad.AllowPassword, bad.AllowDigest = false, false, false
	assert.ErrorIs(t, bad.Validate(), ErrInvalidConfig)

	bad = cfg
	bad.LogLevel = "loud"
	assert.ErrorIs(t, bad.Validate(), ErrInvalidConfig)

	bad = cfg
	bad.AdminSecret = "x"
	err := bad.Validate()
	assert.ErrorIs(t, err, ErrInvalidConfig)
	assert.ErrorIs(t, err, auth.ErrWeakSecret)

	good := cfg
	good.AdminSecret = "a-long-enough-admin-secret"
	assert.NoError(t, good.Validate())
}

func TestGetRejectsMalformedYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "c.yaml")
	require.NoError(t, os.WriteFile(path, []byte("root_dir: [oops"), 0600))
	s := NewStore(path)
	s.getenv = envMap(nil)
	_, err := s.Get()
	assert.ErrorIs(t, err, ErrInvalidConfig)
}
