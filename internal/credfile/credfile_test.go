package credfile

import (
	"crypto/ed25519"
	"crypto/rand"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/ssh"
)

func newKeyLine(t *testing.T, comment string) (string, ssh.PublicKey) {
	t.Helper()
	pub, _, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	sshPub, err := ssh.NewPublicKey(pub)
	require.NoError(t, err)
	line := strings.TrimSpace(string(ssh.MarshalAuthorizedKey(sshPub)))
	if comment != "" {
		line += " " + comment
	}
	return line, sshPub
}

func TestParseKeysSkipsCommentsAndBlanks(t *testing.T) {
	k1, pub1 := newKeyLine(t, "jane@laptop")
	k2, _ := newKeyLine(t, "")
	k3, _ := newKeyLine(t, "")
	content := strings.Join([]string{
		"# managed keys",
		"",
		k1,
		"   ",
		k2 + " # trailing comment",
		"#" + k3,
		k3,
	}, "\n")

	kf, err := ParseKeys(strings.NewReader(content))
	require.NoError(t, err)
	keys := kf.Keys()
	require.Len(t, keys, 3)
	assert.Equal(t, pub1.Marshal(), keys[0].Key.Marshal())
	assert.Equal(t, "jane@laptop", keys[0].Comment)
	assert.Empty(t, kf.Broken())
}

func TestParseKeysReportsBrokenLines(t *testing.T) {
	good, _ := newKeyLine(t, "")
	content := "ssh-rsa AAAAnotbase64!!\n" + good + "\ngarbage\n"

	kf, err := ParseKeys(strings.NewReader(content))
	require.NoError(t, err)
	assert.Len(t, kf.Keys(), 1)
	broken := kf.Broken()
	require.Len(t, broken, 2)
	assert.Equal(t, 1, broken[0].Number)
	assert.Equal(t, 3, broken[1].Number)
	assert.Error(t, broken[0].Err)
}

func TestLoadKeysFromFile(t *testing.T) {
	k1, pub1 := newKeyLine(t, "one")
	k2, _ := newKeyLine(t, "two")
	path := filepath.Join(t.TempDir(), AuthKeysName)
	require.NoError(t, os.WriteFile(path, []byte("# header\n"+k1+"\n"+k2+"\n"), 0600))

	kf, err := LoadKeys(path)
	require.NoError(t, err)
	keys := kf.Keys()
	require.Len(t, keys, 2)
	assert.Equal(t, ssh.FingerprintSHA256(pub1), ssh.FingerprintSHA256(keys[0].Key))
	assert.Equal(t, k1, keys[0].Line)
	assert.Equal(t, "two", keys[1].Comment)
}

func TestSecrets(t *testing.T) {
	sf, err := ParseSecrets(strings.NewReader("\n  $6$salt$hash  \n\nplain\n"))
	require.NoError(t, err)
	assert.Equal(t, []string{"$6$salt$hash", "plain"}, sf.Secrets())

	path := filepath.Join(t.TempDir(), AuthPasswordsName)
	require.NoError(t, os.WriteFile(path, []byte("one\n\n  two\n"), 0600))
	loaded, err := LoadSecrets(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"one", "two"}, loaded.Secrets())

	empty, err := ParseSecrets(strings.NewReader(""))
	require.NoError(t, err)
	assert.Empty(t, empty.Secrets())
}

func TestLoadMissingFile(t *testing.T) {
	_, err := LoadKeys(filepath.Join(t.TempDir(), "missing"))
	assert.Error(t, err)
	_, err = LoadSecrets(filepath.Join(t.TempDir(), "missing"))
	assert.Error(t, err)
}
