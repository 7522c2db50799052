package logger

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitWritesDailyFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, Init(dir))
	defer Close()

	Info("refreshed %d users", 3)
	Debug("hidden at info level")

	day := time.Now().Format("2006-01-02")
	b, err := os.ReadFile(filepath.Join(dir, "logs", day+".log"))
	require.NoError(t, err)
	assert.Contains(t, string(b), "refreshed 3 users")
	assert.NotContains(t, string(b), "hidden at info level")
}

func TestSetLevelDebug(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "logs")
	require.NoError(t, Init(dir))
	defer Close()
	SetLevel("debug")
	defer SetLevel("info")

	Debug("debug line for %s", "alice")

	day := time.Now().Format("2006-01-02")
	b, err := os.ReadFile(filepath.Join(dir, day+".log"))
	require.NoError(t, err)
	assert.Contains(t, string(b), "debug line for alice")
}

func TestSetLevelIgnoresUnknown(t *testing.T) {
	before := base.GetLevel()
	SetLevel("loud")
	assert.Equal(t, before, base.GetLevel())
}
