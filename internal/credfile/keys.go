package credfile

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	"golang.org/x/crypto/ssh"

	"github.com/hnrobert/gridlogin/internal/hostfs"
)

type KeyFile struct {
	keys   []KeyEntry
	broken []BrokenLine
}

// ParseKey parses a single authorized_keys style line after comment stripping.
func ParseKey(line string) (ssh.PublicKey, string, error) {
	clean := stripComment(line)
	if clean == "" {
		return nil, "", fmt.Errorf("empty key line")
	}
	key, comment, _, _, err := ssh.ParseAuthorizedKey([]byte(clean))
	if err != nil {
		return nil, "", err
	}
	return key, comment, nil
}

func LoadKeys(path string) (*KeyFile, error) {
	b, err := hostfs.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseKeys(bytes.NewReader(b))
}

func ParseKeys(r io.Reader) (*KeyFile, error) {
	lines, err := readLines(r)
	if err != nil {
		return nil, err
	}
	kf := &KeyFile{}
	for i, line := range lines {
		if stripComment(line) == "" {
			continue
		}
		key, comment, err := ParseKey(line)
		if err != nil {
			kf.broken = append(kf.broken, BrokenLine{Number: i + 1, Line: line, Err: err})
			continue
		}
		kf.keys = append(kf.keys, KeyEntry{Line: strings.TrimSpace(line), Key: key, Comment: comment})
	}
	return kf, nil
}

// Keys returns the usable keys in file order.
func (f *KeyFile) Keys() []KeyEntry {
	return f.keys
}

func (f *KeyFile) Broken() []BrokenLine {
	return f.broken
}
