package inject

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thatjpcsguy/lanes/internal/registry"
	"github.com/thatjpcsguy/lanes/internal/session"
)

const testConfig = `
ports: [app, postgres]
env:
  DATABASE_URL: "postgres://localhost:${postgres}/dev"
  PORT: "${app}"
apps:
  worker:
    env:
      PORT: "${postgres}"
`

var baseEnv = []string{"PATH=" + os.Getenv("PATH"), "PORT=80", "KEEP=yes"}

func newInjector(dir, registryPath string) (*Injector, *bytes.Buffer) {
	var out bytes.Buffer
	return &Injector{
		Dir:          dir,
		RegistryPath: registryPath,
		Stdout:       &out,
		Stderr:       &out,
		Environ:      func() []string { return baseEnv },
	}, &out
}

// setupSession creates a project with one active session at <root>/.lanes/001
// holding ports app=41001 and postgres=41002.
func setupSession(t *testing.T) (string, string) {
	t.Helper()
	ctx := context.Background()

	root := session.Canonical(t.TempDir())
	require.NoError(t, os.WriteFile(filepath.Join(root, ".lanes.yaml"), []byte(testConfig), 0644))
	dir := filepath.Join(root, ".lanes", "001")
	require.NoError(t, os.MkdirAll(dir, 0755))

	regPath := filepath.Join(t.TempDir(), "registry.db")
	reg, err := registry.Open(regPath)
	require.NoError(t, err)
	defer reg.Close()

	s := &registry.Session{ID: "001", ProjectRoot: root, Dir: dir, Mode: registry.ModeNative}
	require.NoError(t, reg.Insert(ctx, s))
	require.NoError(t, reg.AssignPorts(ctx, s, []registry.PortAllocation{
		{Service: "app", Port: 41001},
		{Service: "postgres", Port: 41002},
	}))

	return dir, regPath
}

func envLines(out string) []string {
	return strings.Split(strings.TrimSpace(out), "\n")
}

func TestRunPassThroughOutsideProject(t *testing.T) {
	inj, out := newInjector(t.TempDir(), filepath.Join(t.TempDir(), "registry.db"))

	code, err := inj.Run(context.Background(), "env", nil, "")
	require.NoError(t, err)
	assert.Equal(t, 0, code)
	assert.Equal(t, baseEnv, envLines(out.String()))
}

func TestRunPassThroughWithoutRegistry(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, ".lanes.yaml"), []byte(testConfig), 0644))
	regPath := filepath.Join(t.TempDir(), "registry.db")

	inj, out := newInjector(root, regPath)
	code, err := inj.Run(context.Background(), "env", nil, "")
	require.NoError(t, err)
	assert.Equal(t, 0, code)
	assert.Equal(t, baseEnv, envLines(out.String()))
	assert.False(t, registry.Exists(regPath), "registry must not be created")
}

func TestRunPassThroughProjectWithoutSession(t *testing.T) {
	dir, regPath := setupSession(t)
	root := filepath.Dir(filepath.Dir(dir))

	inj, out := newInjector(root, regPath)
	code, err := inj.Run(context.Background(), "env", nil, "")
	require.NoError(t, err)
	assert.Equal(t, 0, code)
	assert.Equal(t, baseEnv, envLines(out.String()))
}

func TestRunPassThroughIgnoresBrokenConfig(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, ".lanes.yaml"), []byte("mode: vm\nports: 7\n"), 0644))
	regPath := filepath.Join(t.TempDir(), "registry.db")
	reg, err := registry.Open(regPath)
	require.NoError(t, err)
	require.NoError(t, reg.Close())

	inj, out := newInjector(root, regPath)
	code, err := inj.Run(context.Background(), "env", nil, "nope")
	require.NoError(t, err)
	assert.Equal(t, 0, code)
	assert.Equal(t, baseEnv, envLines(out.String()))
}

func TestRunInjectsSessionEnv(t *testing.T) {
	dir, regPath := setupSession(t)

	inj, out := newInjector(dir, regPath)
	code, err := inj.Run(context.Background(), "env", nil, "")
	require.NoError(t, err)
	assert.Equal(t, 0, code)

	lines := envLines(out.String())
	assert.Contains(t, lines, "PORT=41001")
	assert.NotContains(t, lines, "PORT=80")
	assert.Contains(t, lines, "KEEP=yes")
	assert.Contains(t, lines, "DATABASE_URL=postgres://localhost:41002/dev")
	assert.Contains(t, lines, "SESSION_ID=001")
}

func TestRunAppOverrides(t *testing.T) {
	dir, regPath := setupSession(t)
	sub := filepath.Join(dir, "cmd")
	require.NoError(t, os.MkdirAll(sub, 0755))

	inj, out := newInjector(sub, regPath)
	code, err := inj.Run(context.Background(), "env", nil, "worker")
	require.NoError(t, err)
	assert.Equal(t, 0, code)
	assert.Contains(t, envLines(out.String()), "PORT=41002")
}

func TestRunUnknownApp(t *testing.T) {
	dir, regPath := setupSession(t)

	inj, _ := newInjector(dir, regPath)
	code, err := inj.Run(context.Background(), "env", nil, "nope")
	require.Error(t, err)
	assert.Equal(t, 1, code)

	var verr *session.ValidationError
	assert.True(t, errors.As(err, &verr))
}

func TestRunPropagatesExitCode(t *testing.T) {
	inj, _ := newInjector(t.TempDir(), "")
	code, err := inj.Run(context.Background(), "sh", []string{"-c", "exit 42"}, "")
	require.NoError(t, err)
	assert.Equal(t, 42, code)
}

func TestRunMissingBinary(t *testing.T) {
	inj, _ := newInjector(t.TempDir(), "")
	code, err := inj.Run(context.Background(), "lanes-test-no-such-binary", nil, "")
	require.Error(t, err)
	assert.Equal(t, ExitNotRunnable, code)
}
