package main

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/phrazzld/coda-batch/internal/platform/coda/codatest"
	"github.com/phrazzld/coda-batch/internal/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

const testAPIKey = "cli-test-api-key"

// testEnv points the tool at a fake server and keeps every file it
// touches inside a temp dir.
type testEnv struct {
	srv        *codatest.Server
	dir        string
	keyFile    string
	cookieFile string
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	srv := codatest.New(t, testAPIKey)
	dir := t.TempDir()
	env := &testEnv{
		srv:        srv,
		dir:        dir,
		keyFile:    filepath.Join(dir, "apikey.key"),
		cookieFile: filepath.Join(dir, "cookie_bar.ck"),
	}

	t.Setenv("CODA_API_BASE_URL", srv.APIURL())
	t.Setenv("CODA_API_KEY", testAPIKey)
	t.Setenv("CODA_API_KEY_FILE", env.keyFile)
	t.Setenv("CODA_API_RETRY_DELAY", "1ms")
	t.Setenv("CODA_SESSION_WEB_URL", srv.WebURL())
	t.Setenv("CODA_SESSION_COOKIE_FILE", env.cookieFile)
	t.Setenv("CODA_SESSION_COOKIE_DOMAIN", "127.0.0.1")
	t.Setenv("CODA_LOG_LEVEL", "error")
	return env
}

type result struct {
	code   int
	stdout string
	stderr string
}

func runCLI(t *testing.T, stdin string, args ...string) result {
	t.Helper()
	original := slog.Default()
	t.Cleanup(func() { slog.SetDefault(original) })

	var stdout, stderr bytes.Buffer
	code := run(context.Background(), args, strings.NewReader(stdin), &stdout, &stderr)
	return result{code: code, stdout: stdout.String(), stderr: stderr.String()}
}

func TestHelpAndUsage(t *testing.T) {
	testCases := []struct {
		name     string
		args     []string
		wantCode int
		wantOut  string
	}{
		{name: "no command", args: nil, wantCode: exitOK, wantOut: helpText},
		{name: "help", args: []string{"help"}, wantCode: exitOK, wantOut: helpText},
		{name: "help with argument", args: []string{"help", "me"}, wantCode: exitUsage, wantOut: unknownCommandText + "\n"},
		{name: "unknown command", args: []string{"delete-all"}, wantCode: exitUsage, wantOut: unknownCommandText + "\n"},
		{name: "too many list-doc args", args: []string{"list-doc", "a", "b"}, wantCode: exitUsage, wantOut: unknownCommandText + "\n"},
		{name: "rename without prefix", args: []string{"rename_pages", "doc"}, wantCode: exitUsage, wantOut: unknownCommandText + "\n"},
		{name: "list-ws with argument", args: []string{"list-ws", "x"}, wantCode: exitUsage, wantOut: unknownCommandText + "\n"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			res := runCLI(t, "", tc.args...)
			assert.Equal(t, tc.wantCode, res.code)
			assert.Equal(t, tc.wantOut, res.stdout)
		})
	}
}

func TestFlagErrors(t *testing.T) {
	res := runCLI(t, "", "--output", "xml", "list-doc")
	assert.Equal(t, exitUsage, res.code)
	assert.Contains(t, res.stderr, "unknown output format")

	res = runCLI(t, "", "--no-such-flag")
	assert.Equal(t, exitUsage, res.code)

	res = runCLI(t, "", "-h")
	assert.Equal(t, exitOK, res.code)
	assert.Contains(t, res.stderr, "Usage:")
}

func TestListDocuments(t *testing.T) {
	env := newTestEnv(t)
	env.srv.AddDocument("d1", "Roadmap", "ws-a")
	env.srv.AddDocument("d2", "Budget", "ws-b")

	res := runCLI(t, "", "list-doc")
	require.Equal(t, exitOK, res.code, res.stderr)
	assert.Equal(t, "Documents:\n(d1) Roadmap\n(d2) Budget\n--- Done!\n", res.stdout)

	res = runCLI(t, "", "list-doc", "ws-b")
	require.Equal(t, exitOK, res.code, res.stderr)
	assert.Equal(t, "Documents:\n(d2) Budget\n--- Done!\n", res.stdout)
}

func TestDebugLoggingCarriesCommand(t *testing.T) {
	env := newTestEnv(t)
	env.srv.AddDocument("d1", "Roadmap", "ws-a")

	res := runCLI(t, "", "--log-level", "debug", "list-doc")
	require.Equal(t, exitOK, res.code, res.stderr)
	assert.Contains(t, res.stderr, "documents listed")
	assert.Contains(t, res.stderr, "command=list-doc")
	assert.Equal(t, "Documents:\n(d1) Roadmap\n--- Done!\n", res.stdout)
}

func TestListDocumentsYAML(t *testing.T) {
	env := newTestEnv(t)
	env.srv.AddDocument("d1", "Roadmap", "ws-a")

	res := runCLI(t, "", "--output", "yaml", "list-doc")
	require.Equal(t, exitOK, res.code, res.stderr)

	var out struct {
		Documents []documentView `yaml:"documents"`
	}
	require.NoError(t, yaml.Unmarshal([]byte(res.stdout), &out))
	assert.Equal(t, []documentView{{ID: "d1", Name: "Roadmap", WorkspaceID: "ws-a"}}, out.Documents)
}

func TestListWorkspaces(t *testing.T) {
	env := newTestEnv(t)
	env.srv.SetSessionCookie("session", "signed-in")
	env.srv.SetWorkspaceName("ws-a", "Team A")
	env.srv.SetWorkspaceName("ws-b", "Team B")
	env.srv.AddDocument("d1", "Roadmap", "ws-b")
	env.srv.AddDocument("d2", "Budget", "ws-a")
	env.srv.AddDocument("d3", "Notes", "ws-b")
	require.NoError(t, os.WriteFile(env.cookieFile,
		[]byte(`[{"name":"session","value":"signed-in","domain":"127.0.0.1","path":"/"}]`), 0o600))

	res := runCLI(t, "", "list-ws")
	require.Equal(t, exitOK, res.code, res.stderr)
	assert.Equal(t, "Workspaces:\n(ws-b) Team B\n(ws-a) Team A\n--- Done!\n", res.stdout)
}

func TestListWorkspacesWithoutSession(t *testing.T) {
	env := newTestEnv(t)
	env.srv.SetSessionCookie("session", "signed-in")
	env.srv.SetWorkspaceName("ws-a", "Team A")
	env.srv.AddDocument("d1", "Roadmap", "ws-a")

	res := runCLI(t, "", "list-ws")
	assert.Equal(t, exitError, res.code)
	assert.Contains(t, res.stderr, "signed-in browser session")
	assert.Contains(t, res.stderr, env.cookieFile)
}

func seedPages(srv *codatest.Server) {
	srv.AddDocument("doc-1", "Handbook", "ws-a")
	srv.AddPage("doc-1", "p1", "Intro", "")
	srv.AddPage("doc-1", "p2", "Details", "p1")
	srv.AddPage("doc-1", "p3", "More", "p2")
	srv.AddPage("doc-1", "p4", "Appendix", "")
}

func TestRenamePagesText(t *testing.T) {
	env := newTestEnv(t)
	seedPages(env.srv)

	res := runCLI(t, "", "rename_pages", "doc-1", "2024 ")
	require.Equal(t, exitOK, res.code, res.stderr)
	assert.Equal(t, "Renaming\n....\n--- Done!\n", res.stdout)

	for id, name := range map[string]string{"p1": "Intro", "p2": "Details", "p3": "More", "p4": "Appendix"} {
		assert.Equal(t, "2024 "+name, env.srv.PageName("doc-1", id))
	}
}

func TestRenamePagesJSONWithFailure(t *testing.T) {
	env := newTestEnv(t)
	seedPages(env.srv)
	t.Setenv("CODA_API_MAX_RETRIES", "0")
	env.srv.FailUpdates("p4", 1)

	res := runCLI(t, "", "--output", "json", "rename-pages", "doc-1", "x-")
	require.Equal(t, exitOK, res.code, res.stderr)

	var out service.RenameResult
	require.NoError(t, json.Unmarshal([]byte(res.stdout), &out))
	assert.Equal(t, 4, out.Pages)
	assert.Equal(t, 3, out.Renamed)
	assert.Equal(t, 1, out.Failed)
	require.Len(t, out.Failures, 1)
	assert.Equal(t, "p4", out.Failures[0].PageID)
}

func TestInvalidKeyRemovesKeyFile(t *testing.T) {
	env := newTestEnv(t)
	t.Setenv("CODA_API_KEY", "")
	require.NoError(t, os.WriteFile(env.keyFile, []byte("stale-key-000"), 0o600))

	res := runCLI(t, "", "list-doc")
	assert.Equal(t, exitError, res.code)
	assert.Equal(t, invalidKeyText+"\n", res.stdout)
	assert.NoFileExists(t, env.keyFile)
	assert.NotContains(t, res.stderr, "stale-key-000")
}

func TestPromptsForKey(t *testing.T) {
	env := newTestEnv(t)
	t.Setenv("CODA_API_KEY", "")
	env.srv.AddDocument("d1", "Roadmap", "ws-a")

	res := runCLI(t, testAPIKey+"\n", "list-doc")
	require.Equal(t, exitOK, res.code, res.stderr)
	assert.True(t, strings.HasPrefix(res.stdout, "API KEY: Documents:\n"), res.stdout)

	stored, err := os.ReadFile(env.keyFile)
	require.NoError(t, err)
	assert.Equal(t, testAPIKey, string(stored))

	// the stored key is used without prompting
	res = runCLI(t, "", "list-doc")
	require.Equal(t, exitOK, res.code, res.stderr)
	assert.NotContains(t, res.stdout, "API KEY:")
}

func TestPromptWithoutInput(t *testing.T) {
	newTestEnv(t)
	t.Setenv("CODA_API_KEY", "")

	res := runCLI(t, "", "list-doc")
	assert.Equal(t, exitError, res.code)
	assert.Contains(t, res.stderr, errNoKeyEntered.Error())
}

func TestMetricsFile(t *testing.T) {
	env := newTestEnv(t)
	seedPages(env.srv)
	metricsPath := filepath.Join(env.dir, "coda.prom")

	res := runCLI(t, "", "--metrics-file", metricsPath, "rename_pages", "doc-1", "m-")
	require.Equal(t, exitOK, res.code, res.stderr)

	data, err := os.ReadFile(metricsPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), "coda_pool_tasks_completed_total")
	assert.Contains(t, string(data), "coda_pool_task_duration_seconds_count 4")
}

func TestConfigErrors(t *testing.T) {
	newTestEnv(t)
	t.Setenv("CODA_POOL_MAX_CONCURRENCY", "0")

	res := runCLI(t, "", "list-doc")
	assert.Equal(t, exitError, res.code)
	assert.Contains(t, res.stderr, "validation failed")

	res = runCLI(t, "", "--config", filepath.Join(t.TempDir(), "missing.yaml"), "list-doc")
	assert.Equal(t, exitError, res.code)
}

func TestCancelledRun(t *testing.T) {
	env := newTestEnv(t)
	seedPages(env.srv)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var stdout, stderr bytes.Buffer
	code := run(ctx, []string{"rename_pages", "doc-1", "c-"}, strings.NewReader(""), &stdout, &stderr)
	assert.Equal(t, exitInterrupted, code)
	assert.Contains(t, stderr.String(), "Interrupted")
}
