package hooks

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRunner() (*Runner, *bytes.Buffer) {
	var out bytes.Buffer
	return &Runner{Stdout: &out, Stderr: &out}, &out
}

func TestRunScripts(t *testing.T) {
	dir := t.TempDir()
	r, out := newTestRunner()

	err := r.Run(context.Background(), Setup, dir, []string{
		"echo port=$APP_PORT",
		"pwd > where.txt",
	}, map[string]string{"APP_PORT": "47100"})
	require.NoError(t, err)

	assert.Equal(t, "port=47100\n", out.String())
	where, err := os.ReadFile(filepath.Join(dir, "where.txt"))
	require.NoError(t, err)
	assert.Contains(t, string(where), filepath.Base(dir))
}

func TestRunStopsOnFailure(t *testing.T) {
	dir := t.TempDir()
	r, out := newTestRunner()

	err := r.Run(context.Background(), Setup, dir, []string{"exit 3", "echo unreachable"}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exit 3")
	assert.NotContains(t, out.String(), "unreachable")
}

func TestRunFileHookWins(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, Dir), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, Dir, "teardown.sh"), []byte("echo from-file $SESSION_ID\n"), 0644))

	r, out := newTestRunner()
	err := r.Run(context.Background(), Teardown, dir, []string{"echo from-config"}, map[string]string{"SESSION_ID": "004"})
	require.NoError(t, err)
	assert.Equal(t, "from-file 004\n", out.String())
}

func TestRunNothingConfigured(t *testing.T) {
	r, out := newTestRunner()
	require.NoError(t, r.Run(context.Background(), Setup, t.TempDir(), nil, nil))
	assert.Empty(t, out.String())
}
