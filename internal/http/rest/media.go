package rest

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"path/filepath"

	"github.com/dustin/go-humanize"
	"github.com/fiverse/ytdlp_api/internal/cache"
	"github.com/fiverse/ytdlp_api/internal/download"
	"github.com/fiverse/ytdlp_api/internal/logctx"
	"github.com/fiverse/ytdlp_api/internal/media"
	"github.com/fiverse/ytdlp_api/internal/ytdlp"
	"github.com/go-chi/chi/v5"
)

// Fetcher resolves a URL and kind to a local artifact.
type Fetcher interface {
	Fetch(ctx context.Context, url string, kind media.Kind) (*download.Result, error)
}

// Versioner reports the external tool's version.
type Versioner interface {
	Version(ctx context.Context) (string, error)
}

// DownloadRequest is the body shared by the download endpoints.
type DownloadRequest struct {
	URL  string `json:"url"`
	Type string `json:"type"`
}

// DownloadResponse is returned by POST /download.
type DownloadResponse struct {
	Status string `json:"status"`
	Type   string `json:"type"`
	File   string `json:"file"`
	Cached bool   `json:"cached"`
}

// Base64Response is returned by POST /download-base64.
type Base64Response struct {
	Status   string `json:"status"`
	Type     string `json:"type"`
	Filename string `json:"filename"`
	MIMEType string `json:"mimetype"`
	Data     string `json:"data"`
	Size     int    `json:"size"`
}

type errorResponse struct {
	Status string `json:"status"`
	Error  string `json:"error"`
}

// MediaHandler serves the media download API.
type MediaHandler struct {
	fetcher Fetcher
	tool    Versioner
	store   *cache.Store
	dir     string
	baseURL string
}

// NewMediaHandler creates a new media handler. baseURL is the public prefix
// embedded into redirect URLs returned by /download.
func NewMediaHandler(fetcher Fetcher, tool Versioner, store *cache.Store, dir, baseURL string) *MediaHandler {
	return &MediaHandler{
		fetcher: fetcher,
		tool:    tool,
		store:   store,
		dir:     dir,
		baseURL: baseURL,
	}
}

func (h *MediaHandler) Routes() http.Handler {
	r := chi.NewRouter()

	r.Get("/health", h.Health)
	r.Get("/version", h.Version)
	r.Post("/download", h.Download)
	r.Post("/get", h.Get)
	r.Post("/download-base64", h.DownloadBase64)
	r.Get("/dl/{filename}", h.ForceDownload)
	r.Get("/cache", h.ShowCache)
	r.Delete("/cache", h.ClearCache)
	r.Handle("/downloads/*", http.StripPrefix("/downloads/", http.FileServer(http.Dir(h.dir))))

	return r
}

func (h *MediaHandler) Health(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *MediaHandler) Version(w http.ResponseWriter, r *http.Request) {
	version, err := h.tool.Version(r.Context())
	if err != nil {
		respondJSON(w, http.StatusOK, map[string]string{"error": err.Error()})

		return
	}

	respondJSON(w, http.StatusOK, map[string]string{"version": version})
}

// Download resolves the request and answers with a public redirect URL.
func (h *MediaHandler) Download(w http.ResponseWriter, r *http.Request) {
	req, kind, ok := h.decodeRequest(w, r)
	if !ok {
		return
	}

	res, err := h.fetcher.Fetch(r.Context(), req.URL, kind)
	if err != nil {
		h.respondFetchError(r.Context(), w, err)

		return
	}

	respondJSON(w, http.StatusOK, DownloadResponse{
		Status: "success",
		Type:   string(kind),
		File:   h.baseURL + "/dl/" + url.PathEscape(res.Filename),
		Cached: res.Cached,
	})
}

// Get resolves the request and streams the artifact bytes back directly.
func (h *MediaHandler) Get(w http.ResponseWriter, r *http.Request) {
	req, kind, ok := h.decodeRequest(w, r)
	if !ok {
		return
	}

	res, err := h.fetcher.Fetch(r.Context(), req.URL, kind)
	if err != nil {
		h.respondFetchError(r.Context(), w, err)

		return
	}

	h.serveArtifact(w, r, res.Filename)
}

// DownloadBase64 resolves the request and answers with the artifact
// embedded as a base64 data URI.
func (h *MediaHandler) DownloadBase64(w http.ResponseWriter, r *http.Request) {
	logger := logctx.LoggerFromContext(r.Context())

	req, kind, ok := h.decodeRequest(w, r)
	if !ok {
		return
	}

	res, err := h.fetcher.Fetch(r.Context(), req.URL, kind)
	if err != nil {
		h.respondFetchError(r.Context(), w, err)

		return
	}

	data, err := os.ReadFile(filepath.Join(h.dir, res.Filename))
	if err != nil {
		logger.Error("failed to read artifact for encoding", "filename", res.Filename, "err", err)
		respondError(w, http.StatusInternalServerError, "Failed to encode file")

		return
	}

	mimeType := media.MIMEType(res.Filename, kind)

	logger.Debug("encoding artifact", "filename", res.Filename, "size", humanize.Bytes(uint64(len(data))))

	respondJSON(w, http.StatusOK, Base64Response{
		Status:   "success",
		Type:     string(kind),
		Filename: res.Filename,
		MIMEType: mimeType,
		Data:     fmt.Sprintf("data:%s;base64,%s", mimeType, base64.StdEncoding.EncodeToString(data)),
		Size:     len(data),
	})
}

// ForceDownload serves a previously produced artifact by exact filename.
func (h *MediaHandler) ForceDownload(w http.ResponseWriter, r *http.Request) {
	name, err := url.PathUnescape(chi.URLParam(r, "filename"))
	if err != nil || name == "" || name != filepath.Base(name) {
		respondJSON(w, http.StatusNotFound, map[string]string{"status": "error", "message": "File not found"})

		return
	}

	if _, err := os.Stat(filepath.Join(h.dir, name)); err != nil {
		respondJSON(w, http.StatusNotFound, map[string]string{"status": "error", "message": "File not found"})

		return
	}

	h.serveArtifact(w, r, name)
}

// ShowCache dumps the cache mapping plus a directory listing.
func (h *MediaHandler) ShowCache(w http.ResponseWriter, r *http.Request) {
	logger := logctx.LoggerFromContext(r.Context())

	entries, err := os.ReadDir(h.dir)
	if err != nil {
		logger.Error("failed to list download directory", "dir", h.dir, "err", err)
		respondError(w, http.StatusInternalServerError, "Failed to list downloads")

		return
	}

	files := make([]string, 0, len(entries))
	for _, entry := range entries {
		files = append(files, entry.Name())
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"cache": h.store.Snapshot(),
		"files": files,
	})
}

// ClearCache drops the cache mapping. Artifacts stay on disk.
func (h *MediaHandler) ClearCache(w http.ResponseWriter, r *http.Request) {
	h.store.Clear()
	respondJSON(w, http.StatusOK, map[string]string{"status": "cache cleared"})
}

func (h *MediaHandler) decodeRequest(w http.ResponseWriter, r *http.Request) (DownloadRequest, media.Kind, bool) {
	var req DownloadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")

		return req, media.KindAudio, false
	}

	if req.URL == "" {
		respondError(w, http.StatusBadRequest, "url is required")

		return req, media.KindAudio, false
	}

	return req, media.ParseKind(req.Type), true
}

func (h *MediaHandler) serveArtifact(w http.ResponseWriter, r *http.Request, name string) {
	logger := logctx.LoggerFromContext(r.Context())

	f, err := os.Open(filepath.Join(h.dir, name))
	if err != nil {
		logger.Error("failed to open artifact", "filename", name, "err", err)
		respondError(w, http.StatusInternalServerError, "Failed to open file")

		return
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		logger.Error("failed to stat artifact", "filename", name, "err", err)
		respondError(w, http.StatusInternalServerError, "Failed to open file")

		return
	}

	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Disposition", `attachment; filename="`+name+`"`)

	http.ServeContent(w, r, "", info.ModTime(), f)
}

// respondFetchError maps the pipeline's error taxonomy onto HTTP statuses
// and the original error body shape.
func (h *MediaHandler) respondFetchError(ctx context.Context, w http.ResponseWriter, err error) {
	logger := logctx.LoggerFromContext(ctx)

	var resolveErr *media.ResolveError
	if errors.As(err, &resolveErr) {
		respondError(w, http.StatusBadRequest, "Failed to get video info: "+resolveErr.Err.Error())

		return
	}

	var waitErr *download.WaitTimeoutError
	if errors.As(err, &waitErr) {
		logger.Error("timed out waiting for concurrent download", "key", waitErr.Key)
		respondError(w, http.StatusInternalServerError, "Timeout waiting for concurrent download")

		return
	}

	var timeoutErr *ytdlp.TimeoutError
	if errors.As(err, &timeoutErr) {
		logger.Error("download timed out", "err", err)
		respondError(w, http.StatusInternalServerError, "Download timeout - video may be too long or connection too slow")

		return
	}

	var toolErr *ytdlp.ToolError
	if errors.As(err, &toolErr) {
		logger.Error("download failed", "operation", toolErr.Operation, "exit_code", toolErr.ExitCode, "err", err)
		respondError(w, http.StatusInternalServerError, toolErr.Error())

		return
	}

	var missingErr *download.ArtifactMissingError
	if errors.As(err, &missingErr) {
		logger.Error("artifact missing after download", "video_id", missingErr.ID, "type", string(missingErr.Kind))
		respondError(w, http.StatusInternalServerError, "Download completed but file not found")

		return
	}

	logger.Error("unexpected fetch error", "err", err)
	respondError(w, http.StatusInternalServerError, "Unexpected error: "+err.Error())
}

func respondJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	_ = json.NewEncoder(w).Encode(body)
}

func respondError(w http.ResponseWriter, status int, msg string) {
	respondJSON(w, status, errorResponse{Status: "error", Error: msg})
}
