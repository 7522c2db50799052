package credfile

import "golang.org/x/crypto/ssh"

const (
	AuthKeysName      = "authorized_keys"
	AuthPasswordsName = "authorized_passwords"
	AuthDigestsName   = "authorized_digests"
)

// KeyEntry is one usable line of an authorized_keys file.
type KeyEntry struct {
	Line    string
	Key     ssh.PublicKey
	Comment string
}

// BrokenLine is a non-comment line that did not parse as a public key.
type BrokenLine struct {
	Number int
	Line   string
	Err    error
}
