package credfile

import (
	"bytes"
	"io"
	"strings"

	"github.com/hnrobert/gridlogin/internal/hostfs"
)

// SecretFile holds authorized_passwords or authorized_digests lines. Each
// non-blank line is one opaque secret (a hash, scrambled password or digest).
type SecretFile struct {
	secrets []string
}

func LoadSecrets(path string) (*SecretFile, error) {
	b, err := hostfs.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseSecrets(bytes.NewReader(b))
}

func ParseSecrets(r io.Reader) (*SecretFile, error) {
	lines, err := readLines(r)
	if err != nil {
		return nil, err
	}
	sf := &SecretFile{}
	for _, line := range lines {
		if trim := strings.TrimSpace(line); trim != "" {
			sf.secrets = append(sf.secrets, trim)
		}
	}
	return sf, nil
}

func (f *SecretFile) Secrets() []string {
	return f.secrets
}
