package cli

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tbourn/twola/internal/config"
	"github.com/tbourn/twola/internal/testutil"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCommand("test")
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

// sourceServer replays testutil.SourceResponses in order, wrapping around.
func sourceServer(t *testing.T) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := hits.Add(1) - 1
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(testutil.SourceResponses[int(n)%len(testutil.SourceResponses)]))
	}))
	t.Cleanup(srv.Close)
	return srv, &hits
}

// writePayloads stores each payload in its own file and returns the paths.
func writePayloads(t *testing.T, payloads ...string) []string {
	t.Helper()
	dir := t.TempDir()
	var paths []string
	for i, p := range payloads {
		name := filepath.Join(dir, fmt.Sprintf("payload%d.json", i))
		require.NoError(t, os.WriteFile(name, []byte(p), 0o600))
		paths = append(paths, name)
	}
	return paths
}

func fileArgs(paths []string) []string {
	var args []string
	for _, p := range paths {
		args = append(args, "--file", p)
	}
	return args
}

func dbPath(t *testing.T) string {
	return filepath.Join(t.TempDir(), "twola.db")
}

func TestRootCommand(t *testing.T) {
	cmd := NewRootCommand("1.2.3")
	require.NotNil(t, cmd)
	assert.Equal(t, "twola", cmd.Use)
	assert.Equal(t, "1.2.3", cmd.Version)

	for _, name := range []string{"import", "serve", "watch", "stats"} {
		t.Run(name, func(t *testing.T) {
			sub, _, err := cmd.Find([]string{name})
			require.NoError(t, err)
			assert.Equal(t, name, sub.Name())
		})
	}
}

func TestGlobalFlags(t *testing.T) {
	cmd := NewRootCommand("test")

	cfgFlag := cmd.PersistentFlags().Lookup("config")
	require.NotNil(t, cfgFlag)
	assert.Equal(t, "c", cfgFlag.Shorthand)

	for _, name := range []string{"db", "log-level"} {
		f := cmd.PersistentFlags().Lookup(name)
		require.NotNil(t, f, name)
		assert.Equal(t, "", f.DefValue)
	}

	watch, _, err := cmd.Find([]string{"watch"})
	require.NoError(t, err)
	assert.NotNil(t, watch.Flags().Lookup("schedule"))
	assert.NotNil(t, watch.Flags().Lookup("now"))
}

func TestImportCommand_FromSource(t *testing.T) {
	srv, hits := sourceServer(t)
	t.Setenv("SOURCE_URL", srv.URL)
	db := dbPath(t)

	out, err := execute(t, "import", "--db", db)
	require.NoError(t, err)
	assert.Equal(t, int32(3), hits.Load())
	assert.Contains(t, out, "imported 3 new tweets (1 duplicates, 1 error payloads)")
	assert.Contains(t, out, "total: 3\nfiltered: 1\n")

	// Same payloads again: nothing new, no error.
	out, err = execute(t, "import", "--db", db)
	require.NoError(t, err)
	assert.Contains(t, out, "imported 0 new tweets (4 duplicates, 1 error payloads)")
	assert.Contains(t, out, "total: 3\nfiltered: 1\n")
}

func TestImportCommand_SkipsFailedRequests(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) == 2 {
			http.Error(w, "unavailable", http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(testutil.SourceResponses[2]))
	}))
	t.Cleanup(srv.Close)
	t.Setenv("SOURCE_URL", srv.URL)

	out, err := execute(t, "import", "--db", dbPath(t))
	require.NoError(t, err)
	assert.Contains(t, out, "imported 2 new tweets (2 duplicates, 0 error payloads)")
}

func TestImportCommand_FromFiles(t *testing.T) {
	db := dbPath(t)
	args := append([]string{"import", "--db", db}, fileArgs(writePayloads(t, testutil.SourceResponses...))...)

	out, err := execute(t, args...)
	require.NoError(t, err)
	assert.Contains(t, out, "total: 3\nfiltered: 1\n")

	out, err = execute(t, "stats", "--db", db)
	require.NoError(t, err)
	assert.Equal(t, "total: 3\nfiltered: 1\n", out)
}

func TestImportCommand_MalformedPayloadCommitsNothing(t *testing.T) {
	db := dbPath(t)
	args := append([]string{"import", "--db", db}, fileArgs(writePayloads(t, testutil.SourceResponses[0], `[{"id":`))...)

	_, err := execute(t, args...)
	require.Error(t, err)

	out, err := execute(t, "stats", "--db", db)
	require.NoError(t, err)
	assert.Equal(t, "total: 0\nfiltered: 0\n", out)
}

func TestImportCommand_Errors(t *testing.T) {
	_, err := execute(t, "import", "--db", dbPath(t), "--file", filepath.Join(t.TempDir(), "missing.json"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read payload")

	_, err = execute(t, "import", "--db", filepath.Join(t.TempDir(), "no", "such", "dir", "x.db"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "open ")

	_, err = execute(t, "stats", "--db", dbPath(t), "--log-level", "loud")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "LOG_LEVEL")
}

func TestLoadConfig_FlagOverrides(t *testing.T) {
	var logs bytes.Buffer
	cfg, err := loadConfig(&RootOptions{DBPath: "/tmp/x.db", LogLevel: "WARNING"}, &logs)
	require.NoError(t, err)
	assert.Equal(t, "/tmp/x.db", cfg.DBPath)
	assert.Equal(t, "warn", cfg.LogLevel)
}

func TestLoadConfig_File(t *testing.T) {
	name := filepath.Join(t.TempDir(), "twola.yaml")
	require.NoError(t, os.WriteFile(name, []byte("keywords:\n  - pepsi\nimport_schedule: \"@hourly\"\n"), 0o600))

	cfg, err := loadConfig(&RootOptions{ConfigPath: name}, &bytes.Buffer{})
	require.NoError(t, err)
	assert.Equal(t, []string{"pepsi"}, cfg.Keywords)
	assert.Equal(t, "@hourly", cfg.Source.Schedule)

	_, err = loadConfig(&RootOptions{ConfigPath: filepath.Join(t.TempDir(), "nope.yaml")}, &bytes.Buffer{})
	require.Error(t, err)
}

func watchConfig(t *testing.T) config.Config {
	t.Helper()
	cfg, err := loadConfig(&RootOptions{DBPath: dbPath(t)}, &bytes.Buffer{})
	require.NoError(t, err)
	return cfg
}

func TestRunWatch_InvalidSchedule(t *testing.T) {
	cfg := watchConfig(t)
	cfg.Source.Schedule = "every now and then"

	err := runWatch(context.Background(), cfg, nil, false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "schedule")
}

func TestRunWatch_RunsNowThenStops(t *testing.T) {
	cfg := watchConfig(t)
	cfg.Source.Schedule = "@every 1h"
	paths := writePayloads(t, testutil.SourceResponses...)

	// A cancelled context still lets the --now cycle finish.
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, runWatch(ctx, cfg, paths, true))

	out, err := execute(t, "stats", "--db", cfg.DBPath)
	require.NoError(t, err)
	assert.Equal(t, "total: 3\nfiltered: 1\n", out)
}

func TestRunServe_ShutsDownOnCancel(t *testing.T) {
	cfg := watchConfig(t)
	cfg.GinMode = "test"

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- runServe(ctx, cfg, "127.0.0.1:0", "test") }()

	time.Sleep(50 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}

func TestRunServe_ListenError(t *testing.T) {
	cfg := watchConfig(t)
	cfg.GinMode = "test"

	err := runServe(context.Background(), cfg, "256.0.0.1:bad", "test")
	require.Error(t, err)
}
