package project

import (
	"archive/zip"
	"bytes"
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"jscrambler-client/internal/api"
	"jscrambler-client/internal/archive"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeAPI scripts the service: status polls walk through statuses, repeating
// the last one.
type fakeAPI struct {
	statuses [][]byte
	polls    int

	uploadBody   []byte
	uploaded     map[string]any
	archiveNames []string

	downloadBody []byte
	deleteBody   []byte
	infoBody     []byte

	calls []string
}

func (f *fakeAPI) Get(ctx context.Context, path string, _ map[string]any) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f.calls = append(f.calls, "GET "+path)
	switch {
	case path == "/code.json":
		return f.infoBody, nil
	case strings.HasSuffix(path, ".json"):
		i := min(f.polls, len(f.statuses)-1)
		f.polls++
		return f.statuses[i], nil
	default:
		return f.downloadBody, nil
	}
}

func (f *fakeAPI) Post(ctx context.Context, path string, params map[string]any) ([]byte, error) {
	f.calls = append(f.calls, "POST "+path)
	f.uploaded = params

	files := params["files"].([]string)
	r, err := zip.OpenReader(files[0])
	if err != nil {
		return nil, err
	}
	defer r.Close()
	for _, entry := range r.File {
		f.archiveNames = append(f.archiveNames, entry.Name)
	}
	return f.uploadBody, nil
}

func (f *fakeAPI) Delete(ctx context.Context, path string, _ map[string]any) ([]byte, error) {
	f.calls = append(f.calls, "DELETE "+path)
	return f.deleteBody, nil
}

type recordingHistory struct {
	events []string
}

func (h *recordingHistory) RecordUpload(id string, files int, dest string) error {
	h.events = append(h.events, "upload "+id)
	return nil
}
func (h *recordingHistory) MarkCompleted(id string) error {
	h.events = append(h.events, "completed "+id)
	return nil
}
func (h *recordingHistory) MarkFailed(id string, message string) error {
	h.events = append(h.events, "failed "+id+": "+message)
	return nil
}
func (h *recordingHistory) MarkDeleted(id string) error {
	h.events = append(h.events, "deleted "+id)
	return nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestProject(t *testing.T, f *fakeAPI, opts Options) *Client {
	t.Helper()
	if opts.PollInterval == 0 {
		opts.PollInterval = time.Millisecond
	}
	if opts.TempDir == "" {
		opts.TempDir = t.TempDir()
	}
	return New(f, opts, discardLogger())
}

func TestPoll_SuccessStopsImmediately(t *testing.T) {
	f := &fakeAPI{statuses: [][]byte{[]byte(`{"id":"123","error_id":"0"}`)}}
	h := &recordingHistory{}
	c := newTestProject(t, f, Options{})
	c.History = h

	require.NoError(t, c.Poll(context.Background(), "123"))
	assert.Equal(t, 1, f.polls)
	assert.Equal(t, []string{"GET /code/123.json"}, f.calls)
	assert.Equal(t, []string{"completed 123"}, h.events)
}

func TestPoll_RemoteFailure(t *testing.T) {
	f := &fakeAPI{statuses: [][]byte{
		[]byte(`{"id":"123","error_id":"1","error_message":"bad file"}`),
		[]byte(`{"id":"123","error_id":"0"}`),
	}}
	h := &recordingHistory{}
	c := newTestProject(t, f, Options{})
	c.History = h

	err := c.Poll(context.Background(), "123")

	var jobErr *api.RemoteJobError
	require.ErrorAs(t, err, &jobErr)
	assert.Equal(t, "1", jobErr.ErrorID)
	assert.Contains(t, err.Error(), "bad file")
	assert.Equal(t, 1, f.polls, "no poll after a terminal state")
	assert.Equal(t, StateFailed, c.State())
	assert.Equal(t, []string{"failed 123: bad file"}, h.events)
}

func TestPoll_NumericErrorID(t *testing.T) {
	f := &fakeAPI{statuses: [][]byte{[]byte(`{"id":123,"error_id":0}`)}}
	c := newTestProject(t, f, Options{})

	assert.NoError(t, c.Poll(context.Background(), "123"))
}

func TestPoll_PendingThenSuccess(t *testing.T) {
	f := &fakeAPI{statuses: [][]byte{
		[]byte(`{"id":"123"}`),
		[]byte(`{"id":"123","error_id":null}`),
		[]byte(`{"id":"123","error_id":"0"}`),
	}}
	c := newTestProject(t, f, Options{})

	require.NoError(t, c.Poll(context.Background(), "123"))
	assert.Equal(t, 3, f.polls)
}

func TestPoll_UnexpectedShapes(t *testing.T) {
	for _, body := range []string{`{}`, `{"error":""}`, `{"id":"123","error":0}`} {
		t.Run(body, func(t *testing.T) {
			f := &fakeAPI{statuses: [][]byte{[]byte(body)}}
			c := newTestProject(t, f, Options{})

			var unexpected *api.UnexpectedResponseError
			require.ErrorAs(t, c.Poll(context.Background(), "123"), &unexpected)
			assert.Equal(t, body, string(unexpected.Body))
		})
	}
}

func TestPoll_ProtocolErrors(t *testing.T) {
	for _, body := range []string{`not json`, `null`, `{"error":"forbidden","message":"Invalid signature"}`} {
		t.Run(body, func(t *testing.T) {
			f := &fakeAPI{statuses: [][]byte{[]byte(body)}}
			c := newTestProject(t, f, Options{})

			var pe *api.ProtocolError
			require.ErrorAs(t, c.Poll(context.Background(), "123"), &pe)
		})
	}
}

func TestPoll_Timeout(t *testing.T) {
	f := &fakeAPI{statuses: [][]byte{[]byte(`{"id":"123"}`)}}
	c := newTestProject(t, f, Options{PollInterval: 5 * time.Millisecond, PollTimeout: 30 * time.Millisecond})

	err := c.Poll(context.Background(), "123")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Greater(t, f.polls, 1)
}

func TestPoll_Cancelled(t *testing.T) {
	f := &fakeAPI{statuses: [][]byte{[]byte(`{"id":"123"}`)}}
	c := newTestProject(t, f, Options{PollInterval: time.Hour})

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	err := c.Poll(ctx, "123")
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, f.polls)
}

func TestUpload_ArchivesAndCleansUp(t *testing.T) {
	src := t.TempDir()
	for _, name := range []string{"a.js", "b.js"} {
		require.NoError(t, os.WriteFile(filepath.Join(src, name), []byte("var x;"), 0o644))
	}

	tmpDir := t.TempDir()
	f := &fakeAPI{uploadBody: []byte(`{"id":"abc"}`)}
	h := &recordingHistory{}
	c := newTestProject(t, f, Options{TempDir: tmpDir})
	c.History = h

	params := map[string]any{"mode": "starter"}
	id, err := c.Upload(context.Background(), []string{filepath.Join(src, "a.js"), filepath.Join(src, "b.js")}, params)
	require.NoError(t, err)
	assert.Equal(t, "abc", id)

	assert.Equal(t, "starter", f.uploaded["mode"])
	assert.NotContains(t, params, "files", "caller params are not modified")
	require.Len(t, f.archiveNames, 2)
	assert.True(t, strings.HasSuffix(f.archiveNames[0], "/a.js"))
	assert.True(t, strings.HasSuffix(f.archiveNames[1], "/b.js"))

	leftovers, err := os.ReadDir(tmpDir)
	require.NoError(t, err)
	assert.Empty(t, leftovers, "scratch archive must be removed")
	assert.Equal(t, []string{"upload abc"}, h.events)
}

func TestUpload_ServiceError(t *testing.T) {
	src := filepath.Join(t.TempDir(), "a.js")
	require.NoError(t, os.WriteFile(src, []byte("var x;"), 0o644))

	tmpDir := t.TempDir()
	f := &fakeAPI{uploadBody: []byte(`{"error":"1","message":"Invalid signature"}`)}
	c := newTestProject(t, f, Options{TempDir: tmpDir})

	_, err := c.Upload(context.Background(), []string{src}, nil)

	var pe *api.ProtocolError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, "Invalid signature", pe.Message)
	assert.Equal(t, StateFailed, c.State())

	leftovers, err := os.ReadDir(tmpDir)
	require.NoError(t, err)
	assert.Empty(t, leftovers)
}

func TestFailureLogNamesFailedStep(t *testing.T) {
	var buf bytes.Buffer
	f := &fakeAPI{statuses: [][]byte{[]byte(`{"id":"123","error_id":"7","error_message":"bad file"}`)}}
	c := New(f, Options{PollInterval: time.Millisecond, TempDir: t.TempDir()},
		slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})))

	require.Error(t, c.Poll(context.Background(), "123"))
	assert.Equal(t, StateFailed, c.State())
	assert.Contains(t, buf.String(), "level=DEBUG msg=\"Project workflow failed\" state=polling")
	assert.NotContains(t, buf.String(), "level=ERROR")
}

func TestUpload_NothingToPackage(t *testing.T) {
	f := &fakeAPI{}
	c := newTestProject(t, f, Options{})

	_, err := c.Upload(context.Background(), nil, nil)

	var nf *archive.NoFilesFoundError
	require.ErrorAs(t, err, &nf)
	assert.Empty(t, f.calls, "nothing is sent when no file was packaged")
}

func TestDownload_Paths(t *testing.T) {
	tests := []struct {
		sourceID string
		want     string
	}{
		{"", "GET /code/123.zip"},
		{"src-1", "GET /code/123/src-1"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			f := &fakeAPI{
				statuses:     [][]byte{[]byte(`{"id":"123","error_id":"0"}`)},
				downloadBody: []byte("PK\x03\x04payload"),
			}
			c := newTestProject(t, f, Options{})

			data, err := c.Download(context.Background(), "123", tt.sourceID)
			require.NoError(t, err)
			assert.Equal(t, "PK\x03\x04payload", string(data))
			assert.Equal(t, []string{"GET /code/123.json", tt.want}, f.calls)
		})
	}
}

func TestDownload_ErrorResponse(t *testing.T) {
	f := &fakeAPI{
		statuses:     [][]byte{[]byte(`{"id":"123","error_id":"0"}`)},
		downloadBody: []byte(`{"error":"1","message":"Project not found"}`),
	}
	c := newTestProject(t, f, Options{})

	_, err := c.Download(context.Background(), "123", "")

	var pe *api.ProtocolError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, "Project not found", pe.Message)
}

func TestDelete(t *testing.T) {
	f := &fakeAPI{deleteBody: []byte(`{"id":"123"}`)}
	h := &recordingHistory{}
	c := newTestProject(t, f, Options{})
	c.History = h

	require.NoError(t, c.Delete(context.Background(), "123"))
	assert.Equal(t, []string{"DELETE /code/123.zip"}, f.calls)
	assert.Equal(t, []string{"deleted 123"}, h.events)

	f.deleteBody = []byte(`{"error":"1","message":"gone"}`)
	var pe *api.ProtocolError
	assert.ErrorAs(t, c.Delete(context.Background(), "123"), &pe)

	f.deleteBody = []byte(`null`)
	require.ErrorAs(t, c.Delete(context.Background(), "123"), &pe)
	assert.Equal(t, "failed to parse JSON", pe.Message)
	assert.Equal(t, []string{"deleted 123"}, h.events, "a failed delete is not recorded")
}

func TestInfo(t *testing.T) {
	f := &fakeAPI{infoBody: []byte(`[{"id":"1","error_id":"0","sources":[{"id":"s1","filename":"a.js","extension":"js"}]},{"id":2}]`)}
	c := newTestProject(t, f, Options{})

	projects, err := c.Info(context.Background())
	require.NoError(t, err)
	require.Len(t, projects, 2)
	assert.Equal(t, api.Text("1"), projects[0].ID)
	assert.Equal(t, "a.js", projects[0].Sources[0].Filename)
	assert.Equal(t, api.Text("2"), projects[1].ID)
}

func TestExtract(t *testing.T) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, err := zw.Create("lib/out.js")
	require.NoError(t, err)
	_, err = w.Write([]byte("obfuscated"))
	require.NoError(t, err)
	require.NoError(t, zw.Close())

	c := newTestProject(t, &fakeAPI{}, Options{})
	dest := filepath.Join(t.TempDir(), "dist")
	require.NoError(t, c.Extract("123", buf.Bytes(), dest))

	got, err := os.ReadFile(filepath.Join(dest, "lib", "out.js"))
	require.NoError(t, err)
	assert.Equal(t, "obfuscated", string(got))
	assert.Equal(t, StateExtracting, c.State())
}
