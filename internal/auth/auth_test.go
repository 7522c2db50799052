package auth

import (
	"crypto/ed25519"
	"crypto/rand"
	"testing"
	"time"

	"github.com/GehirnInc/crypt/md5_crypt"
	"github.com/GehirnInc/crypt/sha512_crypt"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/crypto/ssh"

	"github.com/hnrobert/gridlogin/internal/login"
)

func newPubKey(t *testing.T) ssh.PublicKey {
	t.Helper()
	pub, _, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	k, err := ssh.NewPublicKey(pub)
	require.NoError(t, err)
	return k
}

func TestVerifyPasswordFormats(t *testing.T) {
	sha512, err := sha512_crypt.New().Generate([]byte("T3stp4ss"), []byte("$6$saltsalt"))
	require.NoError(t, err)
	md5, err := md5_crypt.New().Generate([]byte("T3stp4ss"), []byte("$1$saltsalt"))
	require.NoError(t, err)
	bc, err := bcrypt.GenerateFromPassword([]byte("T3stp4ss"), bcrypt.MinCost)
	require.NoError(t, err)

	for _, stored := range []string{sha512, md5, string(bc), "T3stp4ss"} {
		ok, err := VerifyPassword(stored, "T3stp4ss")
		require.NoError(t, err)
		assert.True(t, ok, stored)

		ok, err = VerifyPassword(stored, "wrong")
		require.NoError(t, err)
		assert.False(t, ok, stored)
	}

	ok, err := VerifyPassword("", "")
	assert.NoError(t, err)
	assert.False(t, ok)

	_, err = VerifyPassword("$y$j9T$abc$def", "x")
	assert.ErrorIs(t, err, ErrUnsupportedHash)
}

func TestVerifyDigestAndKey(t *testing.T) {
	assert.True(t, VerifyDigest("abc123", "abc123"))
	assert.False(t, VerifyDigest("abc123", "abc124"))
	assert.False(t, VerifyDigest("", ""))

	k1, k2 := newPubKey(t), newPubKey(t)
	assert.True(t, VerifyPublicKey(k1, k1))
	assert.False(t, VerifyPublicKey(k1, k2))
	assert.False(t, VerifyPublicKey(nil, k1))
}

func TestMatch(t *testing.T) {
	k1, k2 := newPubKey(t), newPubKey(t)
	logins := []*login.Login{
		login.New("jane", "", login.WithPassword("pw")),
		login.New("jane", "", login.WithPublicKey(k1)),
		login.New("jane", "", login.WithPublicKey(k2), login.WithIPAddr("10.1.2.3")),
	}

	got, err := Match(logins, Credential{PublicKey: k1}, "192.0.2.1")
	require.NoError(t, err)
	assert.Same(t, logins[1], got)

	got, err = Match(logins, Credential{PublicKey: k2}, "10.1.2.3")
	require.NoError(t, err)
	assert.Same(t, logins[2], got)

	_, err = Match(logins, Credential{PublicKey: k2}, "192.0.2.1")
	assert.ErrorIs(t, err, ErrAddressNotAllowed)

	_, err = Match(logins, Credential{Password: "nope"}, "192.0.2.1")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = Match(logins, Credential{Digest: "pw"}, "192.0.2.1")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = Match(logins, Credential{}, "192.0.2.1")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestTokens(t *testing.T) {
	_, err := DecodeSecret("short")
	assert.ErrorIs(t, err, ErrWeakSecret)
	_, err = DecodeSecret("x")
	assert.ErrorIs(t, err, ErrWeakSecret)

	secret, err := DecodeSecret("a-long-enough-admin-secret")
	require.NoError(t, err)
	other, err := DecodeSecret("another-long-admin-secret")
	require.NoError(t, err)

	tok, err := SignHS256(secret, "admin", true, time.Minute)
	require.NoError(t, err)
	cl, err := ParseHS256(secret, tok)
	require.NoError(t, err)
	assert.Equal(t, "admin", cl.Username)
	assert.True(t, cl.Admin)

	_, err = ParseHS256(other, tok)
	assert.Error(t, err)

	expired, err := SignHS256(secret, "admin", true, -time.Hour)
	require.NoError(t, err)
	_, err = ParseHS256(secret, expired)
	assert.Error(t, err)
}

func TestCredentialToken(t *testing.T) {
	k := newPubKey(t)
	assert.Empty(t, Credential{}.Token())
	assert.Equal(t, Credential{Password: "pw"}.Token(), Credential{Password: "pw"}.Token())
	assert.NotEqual(t, Credential{Password: "pw"}.Token(), Credential{Digest: "pw"}.Token())
	assert.NotContains(t, Credential{Password: "pw"}.Token(), "pw")
	assert.Len(t, Credential{PublicKey: k}.Token(), 64)
}
