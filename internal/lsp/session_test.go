package lsp

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mvp-joe/leantrace/internal/trace"
)

func TestResolveServer_ExplicitPath(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	bin := filepath.Join(dir, "lake")
	require.NoError(t, os.WriteFile(bin, []byte("#!/bin/sh\n"), 0o755))

	got, err := ResolveServer(bin, "lake")
	require.NoError(t, err)
	assert.Equal(t, bin, got)
}

func TestResolveServer_ExplicitPathMissing(t *testing.T) {
	t.Parallel()

	_, err := ResolveServer(filepath.Join(t.TempDir(), "nope"), "lake")
	assert.ErrorIs(t, err, ErrBinaryNotFound)
}

func TestResolveServer_NotFoundAnywhere(t *testing.T) {
	t.Parallel()

	_, err := ResolveServer("", "definitely-not-a-real-binary-name")
	assert.ErrorIs(t, err, ErrBinaryNotFound)
}

func TestPathToURI(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "file:///proj/Basic.lean", PathToURI("/proj/Basic.lean"))
	assert.Equal(t, "file:///proj/My%20File.lean", PathToURI("/proj/My File.lean"))
}

func TestServerVersionOf(t *testing.T) {
	t.Parallel()

	cases := []struct {
		raw  string
		want string
	}{
		{`{"serverInfo":{"name":"Lean 4 Server","version":"4.9.0"}}`, "Lean 4 Server 4.9.0"},
		{`{"serverInfo":{"name":"Lean 4 Server"}}`, "Lean 4 Server"},
		{`{"serverInfo":{"version":"4.9.0"}}`, "4.9.0"},
		{`{"capabilities":{}}`, ""},
		{`not json`, ""},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, serverVersionOf(json.RawMessage(tc.raw)), "raw: %s", tc.raw)
	}
}

func TestConfigDefaults(t *testing.T) {
	t.Parallel()

	cfg := Config{}.withDefaults()
	assert.Equal(t, []string{"serve"}, cfg.Args)
	assert.Equal(t, "$/lean/plainGoal", cfg.GoalMethod)
	assert.Equal(t, "textDocument/waitForDiagnostics", cfg.WaitMethod)
	assert.Positive(t, cfg.ReadyRetries)
	assert.Positive(t, cfg.ReadyBackoff)
	assert.NotNil(t, cfg.Logger)
}

// fakeServerScript writes a shell script speaking just enough of the wire
// protocol for a handshake: it answers the initialize and readiness requests
// by id, leaves a background reader draining stdin, and exits. Every
// invocation appends a line to the count file, so a restart is observable.
func fakeServerScript(t *testing.T) (bin, countFile string) {
	t.Helper()
	dir := t.TempDir()
	bin = filepath.Join(dir, "fake-server")
	countFile = filepath.Join(dir, "runs")
	script := `#!/bin/sh
echo run >> "$1"
body1='{"jsonrpc":"2.0","id":1,"result":{"capabilities":{},"serverInfo":{"name":"fake","version":"1"}}}'
body2='{"jsonrpc":"2.0","id":2,"result":null}'
printf 'Content-Length: %s\r\n\r\n%s' "${#body1}" "$body1"
printf 'Content-Length: %s\r\n\r\n%s' "${#body2}" "$body2"
cat > /dev/null &
exit 0
`
	require.NoError(t, os.WriteFile(bin, []byte(script), 0o755))
	return bin, countFile
}

func TestSession_RestartsOnceAfterExit(t *testing.T) {
	t.Parallel()

	bin, countFile := fakeServerScript(t)
	dir := t.TempDir()
	src := filepath.Join(dir, "Basic.lean")
	require.NoError(t, os.WriteFile(src, []byte("theorem t : 1 = 1 := rfl\n"), 0o644))

	cfg := Config{
		Binary:         bin,
		Args:           []string{countFile},
		RootDir:        dir,
		StartupTimeout: 5 * time.Second,
		RequestTimeout: 2 * time.Second,
	}
	s, err := Open(context.Background(), cfg, src)
	require.NoError(t, err)
	defer s.Close()

	assert.Equal(t, "fake 1", s.ServerVersion())

	// The process is already gone; the query triggers one respawn, and the
	// second exit is surfaced instead of looping.
	_, err = s.GoalAt(context.Background(), trace.Position{Line: 0, Column: 0})
	require.Error(t, err)

	runs, err := os.ReadFile(countFile)
	require.NoError(t, err)
	assert.Equal(t, 2, strings.Count(string(runs), "run"), "exactly one restart")

	assert.NoError(t, s.Close())
}
