package rest

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/fiverse/ytdlp_api/internal/cache"
	"github.com/fiverse/ytdlp_api/internal/download"
	"github.com/fiverse/ytdlp_api/internal/media"
	"github.com/fiverse/ytdlp_api/internal/ytdlp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockFetcher struct {
	fetchFunc func(ctx context.Context, url string, kind media.Kind) (*download.Result, error)
}

func (m *mockFetcher) Fetch(ctx context.Context, url string, kind media.Kind) (*download.Result, error) {
	return m.fetchFunc(ctx, url, kind)
}

type mockVersioner struct {
	versionFunc func(ctx context.Context) (string, error)
}

func (m *mockVersioner) Version(ctx context.Context) (string, error) {
	if m.versionFunc != nil {
		return m.versionFunc(ctx)
	}
	return "2025.08.11", nil
}

func newTestHandler(t *testing.T, fetcher Fetcher) (*MediaHandler, string) {
	t.Helper()

	dir := t.TempDir()
	store := cache.NewStore(dir, nil)

	return NewMediaHandler(fetcher, &mockVersioner{}, store, dir, "http://localhost:8000"), dir
}

func postJSON(handler http.Handler, path string, body any) *httptest.ResponseRecorder {
	buf, _ := json.Marshal(body)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(buf))
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	return w
}

func decodeBody[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()

	var out T
	require.NoError(t, json.NewDecoder(w.Body).Decode(&out))

	return out
}

func TestHealth(t *testing.T) {
	h, _ := newTestHandler(t, &mockFetcher{})

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	h.Routes().ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
}

func TestVersion(t *testing.T) {
	h, _ := newTestHandler(t, &mockFetcher{})

	req := httptest.NewRequest(http.MethodGet, "/version", nil)
	w := httptest.NewRecorder()
	h.Routes().ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"version":"2025.08.11"}`, w.Body.String())
}

func TestVersion_ToolUnavailable(t *testing.T) {
	h, _ := newTestHandler(t, &mockFetcher{})
	h.tool = &mockVersioner{
		versionFunc: func(ctx context.Context) (string, error) {
			return "", errors.New("executable file not found")
		},
	}

	req := httptest.NewRequest(http.MethodGet, "/version", nil)
	w := httptest.NewRecorder()
	h.Routes().ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	body := decodeBody[map[string]string](t, w)
	assert.Contains(t, body["error"], "not found")
}

func TestDownload_ReturnsPublicURL(t *testing.T) {
	fetcher := &mockFetcher{
		fetchFunc: func(ctx context.Context, url string, kind media.Kind) (*download.Result, error) {
			assert.Equal(t, "https://youtu.be/dQw4w9WgXcQ", url)
			assert.Equal(t, media.KindAudio, kind)

			return &download.Result{Filename: "Never_Gonna_Give_You_Up.mp3", Cached: false}, nil
		},
	}
	h, _ := newTestHandler(t, fetcher)

	w := postJSON(h.Routes(), "/download", DownloadRequest{URL: "https://youtu.be/dQw4w9WgXcQ", Type: "audio"})

	require.Equal(t, http.StatusOK, w.Code)

	resp := decodeBody[DownloadResponse](t, w)
	assert.Equal(t, "success", resp.Status)
	assert.Equal(t, "audio", resp.Type)
	assert.Equal(t, "http://localhost:8000/dl/Never_Gonna_Give_You_Up.mp3", resp.File)
	assert.False(t, resp.Cached)
}

func TestDownload_CachedFlagSurfaces(t *testing.T) {
	fetcher := &mockFetcher{
		fetchFunc: func(ctx context.Context, url string, kind media.Kind) (*download.Result, error) {
			return &download.Result{Filename: "clip.mp4", Cached: true}, nil
		},
	}
	h, _ := newTestHandler(t, fetcher)

	w := postJSON(h.Routes(), "/download", DownloadRequest{URL: "https://youtu.be/x", Type: "video"})

	require.Equal(t, http.StatusOK, w.Code)

	resp := decodeBody[DownloadResponse](t, w)
	assert.True(t, resp.Cached)
	assert.Equal(t, "video", resp.Type)
}

func TestDownload_FilenameWithSpecialCharsIsEscaped(t *testing.T) {
	fetcher := &mockFetcher{
		fetchFunc: func(ctx context.Context, url string, kind media.Kind) (*download.Result, error) {
			return &download.Result{Filename: "a b#c.mp3"}, nil
		},
	}
	h, _ := newTestHandler(t, fetcher)

	w := postJSON(h.Routes(), "/download", DownloadRequest{URL: "https://youtu.be/x"})

	resp := decodeBody[DownloadResponse](t, w)
	assert.Equal(t, "http://localhost:8000/dl/a%20b%23c.mp3", resp.File)
}

func TestDownload_RequestValidation(t *testing.T) {
	h, _ := newTestHandler(t, &mockFetcher{})

	tests := []struct {
		name string
		body string
	}{
		{name: "malformed json", body: `{"url": `},
		{name: "missing url", body: `{"type": "audio"}`},
		{name: "empty url", body: `{"url": "", "type": "audio"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/download", strings.NewReader(tt.body))
			w := httptest.NewRecorder()
			h.Routes().ServeHTTP(w, req)

			assert.Equal(t, http.StatusBadRequest, w.Code)

			resp := decodeBody[errorResponse](t, w)
			assert.Equal(t, "error", resp.Status)
		})
	}
}

func TestDownload_ErrorMapping(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantError  string
	}{
		{
			name:       "resolve failure",
			err:        &media.ResolveError{URL: "x", Err: errors.New("exit status 1")},
			wantStatus: http.StatusBadRequest,
			wantError:  "Failed to get video info: exit status 1",
		},
		{
			name:       "concurrent wait timeout",
			err:        &download.WaitTimeoutError{Key: "abc_audio", Waited: 3 * time.Minute},
			wantStatus: http.StatusInternalServerError,
			wantError:  "Timeout waiting for concurrent download",
		},
		{
			name:       "tool timeout",
			err:        &ytdlp.TimeoutError{Operation: "download", Timeout: 5 * time.Minute, Err: context.DeadlineExceeded},
			wantStatus: http.StatusInternalServerError,
			wantError:  "Download timeout - video may be too long or connection too slow",
		},
		{
			name:       "tool failure surfaces stderr",
			err:        &ytdlp.ToolError{Operation: "download", ExitCode: 1, Stderr: "ERROR: Video unavailable"},
			wantStatus: http.StatusInternalServerError,
			wantError:  "ERROR: Video unavailable",
		},
		{
			name:       "artifact missing",
			err:        &download.ArtifactMissingError{ID: "abc", Kind: media.KindAudio},
			wantStatus: http.StatusInternalServerError,
			wantError:  "Download completed but file not found",
		},
		{
			name:       "unexpected error",
			err:        errors.New("disk full"),
			wantStatus: http.StatusInternalServerError,
			wantError:  "Unexpected error: disk full",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fetcher := &mockFetcher{
				fetchFunc: func(ctx context.Context, url string, kind media.Kind) (*download.Result, error) {
					return nil, tt.err
				},
			}
			h, _ := newTestHandler(t, fetcher)

			w := postJSON(h.Routes(), "/download", DownloadRequest{URL: "https://youtu.be/x"})

			assert.Equal(t, tt.wantStatus, w.Code)

			resp := decodeBody[errorResponse](t, w)
			assert.Equal(t, "error", resp.Status)
			assert.Equal(t, tt.wantError, resp.Error)
		})
	}
}

func TestGet_StreamsArtifactBytes(t *testing.T) {
	fetcher := &mockFetcher{
		fetchFunc: func(ctx context.Context, url string, kind media.Kind) (*download.Result, error) {
			return &download.Result{Filename: "song.mp3", Cached: true}, nil
		},
	}
	h, dir := newTestHandler(t, fetcher)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "song.mp3"), []byte("audio bytes"), 0o644))

	w := postJSON(h.Routes(), "/get", DownloadRequest{URL: "https://youtu.be/x"})

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/octet-stream", w.Header().Get("Content-Type"))
	assert.Equal(t, `attachment; filename="song.mp3"`, w.Header().Get("Content-Disposition"))
	assert.Equal(t, "audio bytes", w.Body.String())
}

func TestDownloadBase64(t *testing.T) {
	fetcher := &mockFetcher{
		fetchFunc: func(ctx context.Context, url string, kind media.Kind) (*download.Result, error) {
			return &download.Result{Filename: "song.mp3", Cached: true}, nil
		},
	}
	h, dir := newTestHandler(t, fetcher)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "song.mp3"), []byte("audio bytes"), 0o644))

	w := postJSON(h.Routes(), "/download-base64", DownloadRequest{URL: "https://youtu.be/x", Type: "audio"})

	require.Equal(t, http.StatusOK, w.Code)

	resp := decodeBody[Base64Response](t, w)
	assert.Equal(t, "success", resp.Status)
	assert.Equal(t, "song.mp3", resp.Filename)
	assert.Equal(t, "audio/mpeg", resp.MIMEType)
	assert.Equal(t, len("audio bytes"), resp.Size)

	wantData := "data:audio/mpeg;base64," + base64.StdEncoding.EncodeToString([]byte("audio bytes"))
	assert.Equal(t, wantData, resp.Data)
}

func TestForceDownload(t *testing.T) {
	h, dir := newTestHandler(t, &mockFetcher{})

	require.NoError(t, os.WriteFile(filepath.Join(dir, "song.mp3"), []byte("audio bytes"), 0o644))

	req := httptest.NewRequest(http.MethodGet, "/dl/song.mp3", nil)
	w := httptest.NewRecorder()
	h.Routes().ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, `attachment; filename="song.mp3"`, w.Header().Get("Content-Disposition"))
	assert.Equal(t, "audio bytes", w.Body.String())
}

func TestForceDownload_MissingFile(t *testing.T) {
	h, _ := newTestHandler(t, &mockFetcher{})

	req := httptest.NewRequest(http.MethodGet, "/dl/nope.mp3", nil)
	w := httptest.NewRecorder()
	h.Routes().ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.JSONEq(t, `{"status":"error","message":"File not found"}`, w.Body.String())
}

func TestForceDownload_RejectsTraversal(t *testing.T) {
	h, _ := newTestHandler(t, &mockFetcher{})

	// The traversal has to be smuggled in encoded, otherwise the router
	// cleans the path before the handler sees it.
	req := httptest.NewRequest(http.MethodGet, "/dl/..%2F..%2Fetc%2Fpasswd", nil)
	w := httptest.NewRecorder()
	h.Routes().ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestCacheEndpoints(t *testing.T) {
	h, dir := newTestHandler(t, &mockFetcher{})

	require.NoError(t, os.WriteFile(filepath.Join(dir, "song.mp3"), []byte("x"), 0o644))
	h.store.Put("abc_audio", "song.mp3")

	req := httptest.NewRequest(http.MethodGet, "/cache", nil)
	w := httptest.NewRecorder()
	h.Routes().ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	body := decodeBody[struct {
		Cache map[string]string `json:"cache"`
		Files []string          `json:"files"`
	}](t, w)
	assert.Equal(t, "song.mp3", body.Cache["abc_audio"])
	assert.Contains(t, body.Files, "song.mp3")

	req = httptest.NewRequest(http.MethodDelete, "/cache", nil)
	w = httptest.NewRecorder()
	h.Routes().ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"cache cleared"}`, w.Body.String())
	assert.Equal(t, 0, h.store.Len())

	// Clearing the cache never touches artifacts.
	_, err := os.Stat(filepath.Join(dir, "song.mp3"))
	assert.NoError(t, err)
}

func TestStaticDownloads(t *testing.T) {
	h, dir := newTestHandler(t, &mockFetcher{})

	require.NoError(t, os.WriteFile(filepath.Join(dir, "song.mp3"), []byte("audio bytes"), 0o644))

	req := httptest.NewRequest(http.MethodGet, "/downloads/song.mp3", nil)
	w := httptest.NewRecorder()
	h.Routes().ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "audio bytes", w.Body.String())
}
