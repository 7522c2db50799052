package refresh

import (
	"errors"
	"fmt"
	"path/filepath"

	"github.com/hnrobert/gridlogin/internal/credfile"
	"github.com/hnrobert/gridlogin/internal/login"
)

var ErrInvalidProtocol = errors.New("invalid protocol")

// Protocol is a protocol family. Each family keeps its credential files in
// its own configuration directory below the user home.
type Protocol int

const (
	ProtoSSH Protocol = iota + 1
	ProtoDAV
	ProtoFTP
)

var protoNames = map[string]Protocol{
	"ssh":   ProtoSSH,
	"sftp":  ProtoSSH,
	"scp":   ProtoSSH,
	"rsync": ProtoSSH,
	"dav":   ProtoDAV,
	"davs":  ProtoDAV,
	"ftp":   ProtoFTP,
	"ftps":  ProtoFTP,
}

func ParseProtocol(name string) (Protocol, error) {
	if p, ok := protoNames[name]; ok {
		return p, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrInvalidProtocol, name)
}

func (p Protocol) String() string {
	switch p {
	case ProtoSSH:
		return "ssh"
	case ProtoDAV:
		return "davs"
	case ProtoFTP:
		return "ftps"
	}
	return fmt.Sprintf("Protocol(%d)", int(p))
}

// ConfDir is the directory below a user home holding the credential files.
func (p Protocol) ConfDir() string {
	return "." + p.String()
}

// AuthFile returns the home-relative credential file for method.
func (p Protocol) AuthFile(m login.Method) string {
	var name string
	switch m {
	case login.MethodPublicKey:
		name = credfile.AuthKeysName
	case login.MethodPassword:
		name = credfile.AuthPasswordsName
	case login.MethodDigest:
		name = credfile.AuthDigestsName
	default:
		return ""
	}
	return filepath.Join(p.ConfDir(), name)
}

// AllowsJobs reports whether job session mounts may log in over p.
func (p Protocol) AllowsJobs() bool {
	return p == ProtoSSH
}
