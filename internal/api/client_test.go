package api

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"mime"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	u, err := url.Parse(srv.URL)
	require.NoError(t, err)
	port, err := strconv.Atoi(u.Port())
	require.NoError(t, err)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	c := NewClient(Endpoint{Host: u.Hostname(), Port: port, APIVersion: 4}, Credentials{AccessKey: "AK", SecretKey: "SK"}, 5*time.Second, logger)
	return c
}

func TestEndpoint_BaseURL(t *testing.T) {
	tests := []struct {
		name string
		e    Endpoint
		want string
	}{
		{"port 80 omitted", Endpoint{Host: "api.jscrambler.com", Port: 80, APIVersion: 4}, "http://api.jscrambler.com/v4"},
		{"port 443 https", Endpoint{Host: "api.jscrambler.com", Port: 443, APIVersion: 4}, "https://api.jscrambler.com:443/v4"},
		{"other port kept", Endpoint{Host: "localhost", Port: 8080, APIVersion: 3}, "http://localhost:8080/v3"},
		{"defaults", Endpoint{}.WithDefaults(), "http://api.jscrambler.com/v4"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.e.BaseURL())
		})
	}
}

func TestClient_GetSignsQuery(t *testing.T) {
	var got url.Values
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/v4/code/123.json", r.URL.Path)
		got = r.URL.Query()
		_, _ = w.Write([]byte(`{"id":"123"}`))
	})
	c.Now = func() time.Time { return time.Date(2014, 1, 1, 0, 0, 0, 0, time.UTC) }

	body, err := c.Get(context.Background(), "/code/123.json", nil)
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":"123"}`, string(body))

	assert.Equal(t, "AK", got.Get("access_key"))
	assert.Equal(t, "Go", got.Get("user_agent"))
	assert.Equal(t, "2014-01-01T00:00:00+00:00", got.Get("timestamp"))

	params := map[string]any{}
	for k := range got {
		if k != "signature" {
			params[k] = got.Get(k)
		}
	}
	assert.Equal(t, Sign("GET", "/code/123.json", c.Endpoint.Host, params, "SK"), got.Get("signature"))
}

func TestClient_PostSendsSignedJSONPart(t *testing.T) {
	dir := t.TempDir()
	archive := filepath.Join(dir, "bundle.zip")
	require.NoError(t, os.WriteFile(archive, []byte("PK fake"), 0o644))

	var doc map[string]any
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v4/code.json", r.URL.Path)

		mediaType, mp, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
		require.NoError(t, err)
		assert.Equal(t, "multipart/form-data", mediaType)

		mr := multipart.NewReader(r.Body, mp["boundary"])
		part, err := mr.NextPart()
		require.NoError(t, err)
		assert.Equal(t, "application/json", part.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(part).Decode(&doc))

		_, _ = w.Write([]byte(`{"id":"abc"}`))
	})

	_, err := c.Post(context.Background(), "/code.json", map[string]any{"files": []string{archive}, "mode": "starter"})
	require.NoError(t, err)

	require.NotNil(t, doc)
	assert.Equal(t, "starter", doc["mode"])
	files := doc["files"].([]any)
	require.Len(t, files, 1)
	record := files[0].(map[string]any)
	assert.Equal(t, "bundle.zip", record["name"])

	// The service verifies the signature against the decoded document, keeping
	// the record field order.
	doc["files"] = []FileParam{{Name: record["name"].(string), B64: record["b64"].(string)}}
	sig := doc["signature"].(string)
	delete(doc, "signature")
	assert.Equal(t, Sign("POST", "/code.json", c.Endpoint.Host, doc, "SK"), sig)
}

func TestClient_DeleteUsesMethod(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodDelete, r.Method)
		assert.Equal(t, "/v4/code/7.zip", r.URL.Path)
		_, _ = w.Write([]byte(`{"id":"7"}`))
	})

	_, err := c.Delete(context.Background(), "/code/7.zip", nil)
	require.NoError(t, err)
}

func TestClient_NonSuccessStatusIsTransportError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream down", http.StatusBadGateway)
	})

	_, err := c.Get(context.Background(), "/code.json", nil)

	var te *TransportError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, http.StatusBadGateway, te.StatusCode)
	assert.Equal(t, "http_502", te.Code)
	assert.Contains(t, te.Message, "upstream down")
	assert.NotContains(t, te.URL, "signature")
}

func TestClient_ConnectionFailureIsTransportError(t *testing.T) {
	c := NewClient(Endpoint{Host: "127.0.0.1", Port: 1, APIVersion: 4}, Credentials{}, time.Second, nil)

	_, err := c.Get(context.Background(), "/code.json", nil)

	var te *TransportError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, "connection", te.Code)
	assert.Zero(t, te.StatusCode)
}

func TestClient_FileReadErrorBeforeNetwork(t *testing.T) {
	called := false
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		called = true
	})

	_, err := c.Post(context.Background(), "/code.json", map[string]any{"files": "/does/not/exist.js"})

	var fre *FileReadError
	require.ErrorAs(t, err, &fre)
	assert.False(t, called, "no request may be sent when a file is unreadable")
}
