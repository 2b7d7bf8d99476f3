package cli

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"testing"

	"jscrambler-client/internal/config"
	"jscrambler-client/internal/store"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMain(m *testing.M) {
	color.NoColor = true
	os.Exit(m.Run())
}

// service answers like the remote API for project "p1".
type service struct {
	mu      sync.Mutex
	status  string
	deleted []string
}

func (s *service) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch {
	case r.Method == http.MethodPost && r.URL.Path == "/v4/code.json":
		w.Write([]byte(`{"id":"p1"}`))
	case r.Method == http.MethodGet && r.URL.Path == "/v4/code.json":
		w.Write([]byte(`[{"id":"p1","error_id":"0","received_at":"2024-01-01","sources":[{"id":"s1","filename":"a.js"}]}]`))
	case r.Method == http.MethodGet && strings.HasSuffix(r.URL.Path, ".json"):
		w.Write([]byte(s.status))
	case r.Method == http.MethodGet && r.URL.Path == "/v4/code/p1/s1":
		w.Write([]byte("obfuscated a"))
	case r.Method == http.MethodGet && strings.HasSuffix(r.URL.Path, ".zip"):
		var buf bytes.Buffer
		zw := zip.NewWriter(&buf)
		f, _ := zw.Create("a.js")
		f.Write([]byte("obfuscated a"))
		zw.Close()
		w.Write(buf.Bytes())
	case r.Method == http.MethodDelete:
		id := strings.TrimSuffix(strings.TrimPrefix(r.URL.Path, "/v4/code/"), ".zip")
		s.deleted = append(s.deleted, id)
		w.Write([]byte(`{"id":"` + id + `"}`))
	default:
		http.NotFound(w, r)
	}
}

type env struct {
	dir     string
	cfgPath string
	dest    string
	svc     *service
}

func newEnv(t *testing.T) *env {
	t.Helper()
	svc := &service{status: `{"id":"p1","error_id":"0"}`}
	srv := httptest.NewServer(svc)
	t.Cleanup(srv.Close)

	u, err := url.Parse(srv.URL)
	require.NoError(t, err)
	port, err := strconv.Atoi(u.Port())
	require.NoError(t, err)

	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "src"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "src", "a.js"), []byte("plain a"), 0o644))

	e := &env{dir: dir, cfgPath: filepath.Join(dir, "jscrambler.json"), dest: filepath.Join(dir, "dist"), svc: svc}
	cfg := map[string]any{
		"keys":         map[string]string{"accessKey": "AK", "secretKey": "SK"},
		"host":         u.Hostname(),
		"port":         port,
		"filesSrc":     []string{filepath.Join(dir, "src", "**", "*.js")},
		"filesDest":    e.dest,
		"pollInterval": "1ms",
		"historyDB":    filepath.Join(dir, "history.db"),
	}
	data, err := json.Marshal(cfg)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(e.cfgPath, data, 0o600))
	return e
}

func run(t *testing.T, args ...string) (int, string, string) {
	t.Helper()
	var out, errOut bytes.Buffer
	code := Execute(context.Background(), args, &out, &errOut)
	return code, out.String(), errOut.String()
}

func TestProcess_DefaultCommand(t *testing.T) {
	e := newEnv(t)

	code, out, errOut := run(t, "--config", e.cfgPath, "--delete")
	require.Equal(t, 0, code, errOut)

	got, err := os.ReadFile(filepath.Join(e.dest, "a.js"))
	require.NoError(t, err)
	assert.Equal(t, "obfuscated a", string(got))
	assert.Contains(t, out, "Uploading sources...")
	assert.Contains(t, out, "Deleting project p1")
	assert.Contains(t, out, "Done.")
	assert.Equal(t, []string{"p1"}, e.svc.deleted)

	code, out, _ = run(t, "history", "--config", e.cfgPath)
	require.Equal(t, 0, code)
	assert.Contains(t, out, "p1")
	assert.Contains(t, out, string(store.StatusDeleted))
}

func TestProcess_SilentAndDestOverride(t *testing.T) {
	e := newEnv(t)
	other := filepath.Join(e.dir, "other")

	code, out, errOut := run(t, "process", "--config", e.cfgPath, "--silent", "--dest", other)
	require.Equal(t, 0, code, errOut)

	assert.Empty(t, out)
	assert.FileExists(t, filepath.Join(other, "a.js"))
	assert.NoDirExists(t, e.dest)
}

func TestPoll_RemoteErrorExitCode(t *testing.T) {
	e := newEnv(t)
	e.svc.status = `{"id":"p1","error_id":"1","error_message":"bad file"}`

	code, _, errOut := run(t, "poll", "p1", "--config", e.cfgPath)
	assert.Equal(t, 1, code)
	assert.Contains(t, errOut, "bad file")
}

func TestUploadPrintsID(t *testing.T) {
	e := newEnv(t)

	code, out, errOut := run(t, "upload", "--config", e.cfgPath, "--silent")
	require.Equal(t, 0, code, errOut)
	assert.Equal(t, "p1\n", out)
}

func TestDownloadSource(t *testing.T) {
	e := newEnv(t)
	target := filepath.Join(e.dir, "a.out.js")

	code, _, errOut := run(t, "download", "p1", "--source", "s1", "--out", target, "--config", e.cfgPath)
	require.Equal(t, 0, code, errOut)

	got, err := os.ReadFile(target)
	require.NoError(t, err)
	assert.Equal(t, "obfuscated a", string(got))
}

func TestInfoListsProjects(t *testing.T) {
	e := newEnv(t)

	code, out, errOut := run(t, "info", "--config", e.cfgPath)
	require.Equal(t, 0, code, errOut)
	assert.Contains(t, out, "STATUS")
	assert.Contains(t, out, "p1")
	assert.Contains(t, out, "ok")
}

func TestPruneKeepsNewest(t *testing.T) {
	e := newEnv(t)

	history, err := store.NewStore(filepath.Join(e.dir, "history.db"))
	require.NoError(t, err)
	for _, id := range []string{"old1", "old2", "new"} {
		require.NoError(t, history.RecordUpload(id, 1, e.dest))
	}
	require.NoError(t, history.Close())

	code, out, errOut := run(t, "prune", "--keep", "1", "--config", e.cfgPath)
	require.Equal(t, 0, code, errOut)
	assert.Equal(t, []string{"old1", "old2"}, e.svc.deleted)
	assert.Contains(t, out, "Pruned old1")
}

func TestMissingConfig(t *testing.T) {
	code, _, errOut := run(t, "--config", filepath.Join(t.TempDir(), "nope.json"))
	assert.Equal(t, 1, code)
	assert.Contains(t, errOut, "configuration file not found")
}

func TestHelpAndCompletionWithoutConfig(t *testing.T) {
	t.Chdir(t.TempDir())

	code, out, errOut := run(t, "help")
	require.Equal(t, 0, code, errOut)
	assert.Contains(t, out, "Usage:")
	assert.Contains(t, out, "process")

	code, out, errOut = run(t, "completion", "bash")
	require.Equal(t, 0, code, errOut)
	assert.Contains(t, out, "jscrambler")

	code, _, errOut = run(t, "info")
	assert.Equal(t, 1, code)
	assert.Contains(t, errOut, "configuration file not found")
}

func TestInit(t *testing.T) {
	path := filepath.Join(t.TempDir(), "jscrambler.json")

	code, out, errOut := run(t, "init", "--config", path, "--access-key", "AK", "--secret-key", "SK")
	require.Equal(t, 0, code, errOut)
	assert.Contains(t, out, "Wrote")

	cfg, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, "AK", cfg.Keys.AccessKey)
	assert.Equal(t, "dist", cfg.FilesDest)

	code, _, errOut = run(t, "init", "--config", path)
	assert.Equal(t, 1, code)
	assert.Contains(t, errOut, "already exists")
}
