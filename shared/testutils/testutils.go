package testutils

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func BackupAndRestoreEnv(k string) func() {
	origValue := os.Getenv(k)
	return func() {
		if origValue == "" {
			os.Unsetenv(k)
		} else {
			os.Setenv(k, origValue)
		}
	}
}

// UseTempTransgemmaPath points $TRANSGEMMA_PATH at a fresh directory for the duration of t.
func UseTempTransgemmaPath(t testing.TB) string {
	dir := filepath.Join(t.TempDir(), ".transgemma")
	require.NoError(t, os.MkdirAll(dir, 0o744))
	t.Cleanup(BackupAndRestoreEnv("TRANSGEMMA_PATH"))
	require.NoError(t, os.Setenv("TRANSGEMMA_PATH", dir))
	return dir
}

// FakeClock is a manually advanced time source for code that takes a `func() time.Time`.
type FakeClock struct {
	Current time.Time
}

func NewFakeClock(t time.Time) *FakeClock {
	return &FakeClock{Current: t}
}

func (c *FakeClock) Now() time.Time {
	return c.Current
}

func (c *FakeClock) Advance(d time.Duration) {
	c.Current = c.Current.Add(d)
}

func IsGithubAction() bool {
	return os.Getenv("GITHUB_ACTION") != ""
}
