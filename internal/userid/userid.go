// Package userid converts between the distinguished-name style user IDs of
// grid accounts and the names used for home directories and logins.
//
//	client ID: /C=DK/O=Grid/CN=Jane Doe/emailAddress=jane@example.org
//	home dir:  +C=DK+O=Grid+CN=Jane_Doe+emailAddress=jane@example.org
package userid

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// ClientIDDir returns the home directory name for a client ID.
func ClientIDDir(clientID string) string {
	return strings.NewReplacer("/", "+", " ", "_").Replace(clientID)
}

// ClientDirID is the inverse of ClientIDDir.
func ClientDirID(dir string) string {
	return strings.NewReplacer("+", "/", "_", " ").Replace(dir)
}

// Alias returns a filesystem and ASCII safe login name for id. Accents are
// folded away and anything still outside printable ASCII becomes '_'.
func Alias(id string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, id)
	if err != nil {
		folded = id
	}
	folded = strings.Map(func(r rune) rune {
		if r > unicode.MaxASCII || !unicode.IsPrint(r) {
			return '_'
		}
		return r
	}, folded)
	return ClientIDDir(folded)
}

// ExtractField returns the value of field in a client ID or "" if missing.
func ExtractField(clientID, field string) string {
	if field == "" {
		return ""
	}
	for _, part := range strings.Split(clientID, "/") {
		k, v, ok := strings.Cut(part, "=")
		if ok && k == field {
			return v
		}
	}
	return ""
}
