package auth

import (
	"bytes"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/GehirnInc/crypt"
	"github.com/GehirnInc/crypt/md5_crypt"
	"github.com/GehirnInc/crypt/sha256_crypt"
	"github.com/GehirnInc/crypt/sha512_crypt"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/crypto/ssh"

	"github.com/hnrobert/gridlogin/internal/login"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrUnsupportedHash    = errors.New("unsupported password hash")
	ErrAddressNotAllowed  = errors.New("source address not allowed for login")
)

// Credential is what a client offered. Exactly one field is expected to be set.
type Credential struct {
	Password  string
	Digest    string
	PublicKey ssh.PublicKey
}

func (c Credential) Method() login.Method {
	switch {
	case c.PublicKey != nil:
		return login.MethodPublicKey
	case c.Password != "":
		return login.MethodPassword
	case c.Digest != "":
		return login.MethodDigest
	}
	return 0
}

// Token returns an opaque fingerprint of the offered secret, suitable for
// recognizing repeated attempts without keeping the secret itself.
func (c Credential) Token() string {
	h := sha256.New()
	switch c.Method() {
	case login.MethodPublicKey:
		h.Write([]byte("publickey\x00"))
		h.Write(c.PublicKey.Marshal())
	case login.MethodPassword:
		h.Write([]byte("password\x00" + c.Password))
	case login.MethodDigest:
		h.Write([]byte("digest\x00" + c.Digest))
	default:
		return ""
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Match returns the first login accepting cred from addr.
func Match(logins []*login.Login, cred Credential, addr string) (*login.Login, error) {
	method := cred.Method()
	if method == 0 {
		return nil, ErrInvalidCredentials
	}
	addrRefused := false
	for _, l := range logins {
		if !l.HasMethod(method) {
			continue
		}
		var ok bool
		switch method {
		case login.MethodPublicKey:
			ok = VerifyPublicKey(l.PublicKey, cred.PublicKey)
		case login.MethodPassword:
			ok, _ = VerifyPassword(l.Password, cred.Password)
		case login.MethodDigest:
			ok = VerifyDigest(l.Digest, cred.Digest)
		}
		if !ok {
			continue
		}
		if !l.AllowsAddress(addr) {
			addrRefused = true
			continue
		}
		return l, nil
	}
	if addrRefused {
		return nil, ErrAddressNotAllowed
	}
	return nil, ErrInvalidCredentials
}

// VerifyPassword checks password against a stored hash or scrambled value.
func VerifyPassword(stored, password string) (bool, error) {
	switch {
	case stored == "":
		return false, nil
	case strings.HasPrefix(stored, "$2a$"), strings.HasPrefix(stored, "$2b$"), strings.HasPrefix(stored, "$2y$"):
		return bcrypt.CompareHashAndPassword([]byte(stored), []byte(password)) == nil, nil
	case strings.HasPrefix(stored, "$"):
		return verifyCrypt(stored, password)
	}
	return subtle.ConstantTimeCompare([]byte(stored), []byte(password)) == 1, nil
}

func verifyCrypt(hash, password string) (bool, error) {
	var crypters []crypt.Crypter
	crypters = append(crypters, sha512_crypt.New())
	crypters = append(crypters, sha256_crypt.New())
	crypters = append(crypters, md5_crypt.New())

	for _, c := range crypters {
		if err := c.Verify(hash, []byte(password)); err == nil {
			return true, nil
		}
	}
	// yescrypt and scrypt hashes have no verifier here.
	if strings.HasPrefix(hash, "$y$") || strings.HasPrefix(hash, "$7$") {
		return false, fmt.Errorf("%w: %.3s", ErrUnsupportedHash, hash)
	}
	return false, nil
}

func VerifyDigest(stored, digest string) bool {
	if stored == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(stored), []byte(digest)) == 1
}

func VerifyPublicKey(stored, offered ssh.PublicKey) bool {
	if stored == nil || offered == nil {
		return false
	}
	return bytes.Equal(stored.Marshal(), offered.Marshal())
}
