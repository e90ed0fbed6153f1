// Package download coordinates the full resolution pipeline: cache check,
// cross-process locking, external tool invocation and disk reconciliation.
// There is no in-process mutex around the shared state; correctness relies
// on the filesystem create-exclusive lock plus the recheck-on-disk pattern,
// which keeps the design safe across processes sharing the same storage.
package download

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/fiverse/ytdlp_api/internal/cache"
	"github.com/fiverse/ytdlp_api/internal/flock"
	"github.com/fiverse/ytdlp_api/internal/logctx"
	"github.com/fiverse/ytdlp_api/internal/media"
	"github.com/fiverse/ytdlp_api/internal/storage"
	"github.com/fiverse/ytdlp_api/internal/telemetry"
	"github.com/fiverse/ytdlp_api/internal/ytdlp"
)

const (
	defaultWaitAttempts = 180
	defaultWaitInterval = time.Second
)

// Result is the outcome of a successful fetch.
type Result struct {
	Filename string
	Cached   bool
}

// Event notifies subscribers about finished or failed downloads.
type Event struct {
	Key      string
	Filename string
	URL      string
	Err      error
}

// IdentityResolver derives a stable identity for a requested URL.
type IdentityResolver interface {
	Resolve(ctx context.Context, url string) (media.Identity, error)
}

// ToolClient invokes the external downloader.
type ToolClient interface {
	Download(ctx context.Context, url, outputTemplate string, kind media.Kind) error
}

// Orchestrator ties the cache store, lock manager and external tool into
// one state machine. A single Orchestrator serves all requests.
type Orchestrator struct {
	dir      string
	store    *cache.Store
	locks    *flock.Manager
	resolver IdentityResolver
	tool     ToolClient

	history   storage.HistoryWriteRepository
	telemetry *telemetry.Telemetry

	waitAttempts int
	waitInterval time.Duration

	OnDownloadFinished chan Event
	OnDownloadFailed   chan Event
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithHistory records completed downloads into the given repository.
func WithHistory(repo storage.HistoryWriteRepository) Option {
	return func(o *Orchestrator) {
		o.history = repo
	}
}

// WithTelemetry wires download metrics.
func WithTelemetry(t *telemetry.Telemetry) Option {
	return func(o *Orchestrator) {
		o.telemetry = t
	}
}

// WithWaitPolicy overrides the bounded polling applied when another request
// holds the download lock.
func WithWaitPolicy(attempts int, interval time.Duration) Option {
	return func(o *Orchestrator) {
		o.waitAttempts = attempts
		o.waitInterval = interval
	}
}

// NewOrchestrator creates an Orchestrator downloading into dir.
func NewOrchestrator(dir string, store *cache.Store, locks *flock.Manager, resolver IdentityResolver, tool ToolClient, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		dir:          dir,
		store:        store,
		locks:        locks,
		resolver:     resolver,
		tool:         tool,
		waitAttempts: defaultWaitAttempts,
		waitInterval: defaultWaitInterval,

		OnDownloadFinished: make(chan Event, 16),
		OnDownloadFailed:   make(chan Event, 16),
	}

	for _, opt := range opts {
		opt(o)
	}

	return o
}

// Close releases the event channels.
func (o *Orchestrator) Close() {
	close(o.OnDownloadFinished)
	close(o.OnDownloadFailed)
}

// Fetch resolves rawURL to an artifact filename, downloading it when no
// usable copy exists. For a given (id, kind) at most one download is in
// flight system-wide; requests losing the lock race degrade to bounded
// polling for the artifact.
func (o *Orchestrator) Fetch(ctx context.Context, rawURL string, kind media.Kind) (*Result, error) {
	ident, err := o.resolver.Resolve(ctx, rawURL)
	if err != nil {
		return nil, err
	}

	key := media.CacheKey(ident.ID, kind)
	logger := logctx.LoggerFromContext(ctx).With("video_id", ident.ID, "type", string(kind))

	logger.Info("processing request", "title", ident.Title)

	if name, ok := o.FindExisting(ident.ID, kind); ok {
		logger.Info("found existing file", "filename", name)
		o.telemetry.RecordCacheLookup("hit")
		o.store.Put(key, name)

		return &Result{Filename: name, Cached: true}, nil
	}

	o.telemetry.RecordCacheLookup("miss")

	lock, err := o.locks.Acquire(key)
	if err != nil {
		if errors.Is(err, flock.ErrBusy) {
			return o.awaitConcurrent(ctx, key, ident.ID, kind)
		}

		return nil, fmt.Errorf("failed to acquire download lock: %w", err)
	}

	// The lock must be dropped on every exit path, including errors below.
	defer func() {
		if releaseErr := lock.Release(); releaseErr != nil {
			logger.Warn("failed to release download lock", "key", key, "err", releaseErr)
		}
	}()

	name, err := o.download(ctx, rawURL, ident, kind, logger)
	if err != nil {
		o.emit(o.OnDownloadFailed, Event{Key: key, URL: rawURL, Err: err})

		return nil, err
	}

	o.store.Put(key, name)
	o.trackHistory(ident.ID, kind, name, logger)
	o.emit(o.OnDownloadFinished, Event{Key: key, Filename: name, URL: rawURL})

	return &Result{Filename: name, Cached: false}, nil
}

// FindExisting looks up an artifact for (id, kind): the cache entry wins
// when its file is still on disk, otherwise the download directory is
// scanned in both naming states.
func (o *Orchestrator) FindExisting(id string, kind media.Kind) (string, bool) {
	if name, ok := o.store.Lookup(media.CacheKey(id, kind)); ok {
		return name, true
	}

	return scanDir(o.dir, id, kind)
}

// awaitConcurrent polls the download directory while another request holds
// the lock. The waiter never touches the lock itself; the signal is the
// artifact appearing on disk, which stays visible across processes.
func (o *Orchestrator) awaitConcurrent(ctx context.Context, key, id string, kind media.Kind) (*Result, error) {
	logger := logctx.LoggerFromContext(ctx)
	logger.Info("waiting for concurrent download", "key", key)

	for attempt := 0; attempt < o.waitAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(o.waitInterval):
		}

		if name, ok := o.FindExisting(id, kind); ok {
			o.telemetry.RecordLockWait("found")
			o.store.Put(key, name)

			return &Result{Filename: name, Cached: true}, nil
		}
	}

	o.telemetry.RecordLockWait("timeout")

	return nil, &WaitTimeoutError{Key: key, Waited: time.Duration(o.waitAttempts) * o.waitInterval}
}

// download invokes the tool and reconciles its output. Caller holds the lock.
func (o *Orchestrator) download(ctx context.Context, rawURL string, ident media.Identity, kind media.Kind, logger *slog.Logger) (string, error) {
	logger.Info("starting download", "key", media.CacheKey(ident.ID, kind))

	o.telemetry.IncrementActiveDownloads()
	defer o.telemetry.DecrementActiveDownloads()

	sanitized := media.SanitizeTitle(ident.Title)
	template := filepath.Join(o.dir, sanitized+"__"+ident.ID+".%(ext)s")

	start := time.Now()

	if err := o.tool.Download(ctx, rawURL, template, kind); err != nil {
		o.telemetry.RecordToolInvocation("download", downloadStatus(err))
		o.telemetry.RecordDownload(downloadStatus(err), string(kind), time.Since(start))

		return "", err
	}

	o.telemetry.RecordToolInvocation("download", "success")

	name, ok := o.FindExisting(ident.ID, kind)
	if !ok {
		o.telemetry.RecordDownload("artifact_missing", string(kind), time.Since(start))

		return "", &ArtifactMissingError{ID: ident.ID, Kind: kind}
	}

	name = o.renameIfSafe(name, sanitized, kind, logger)

	// Artifacts may be served by other processes sharing the directory.
	if err := os.Chmod(filepath.Join(o.dir, name), 0o644); err != nil {
		logger.Debug("failed to chmod artifact", "filename", name, "err", err)
	}

	if info, err := os.Stat(filepath.Join(o.dir, name)); err == nil {
		logger.Info("download completed",
			"filename", name,
			"size", humanize.Bytes(uint64(info.Size())),
			"duration", time.Since(start).String(),
		)
	} else {
		logger.Info("download completed", "filename", name)
	}

	o.telemetry.RecordDownload("success", string(kind), time.Since(start))

	return name, nil
}

// renameIfSafe renames the id-suffixed artifact to its clean name, but only
// when the clean name is unclaimed: a file that arrived via an earlier or
// concurrent request is never clobbered. Rename failure is non-fatal, the
// suffixed name stays valid and is what gets cached.
func (o *Orchestrator) renameIfSafe(current, sanitized string, kind media.Kind, logger *slog.Logger) string {
	clean := sanitized + "." + kind.DefaultExtension()
	if current == clean {
		return current
	}

	cleanPath := filepath.Join(o.dir, clean)
	if _, err := os.Stat(cleanPath); err == nil || !os.IsNotExist(err) {
		return current
	}

	if err := os.Rename(filepath.Join(o.dir, current), cleanPath); err != nil {
		logger.Warn("could not rename artifact, keeping suffixed name", "from", current, "to", clean, "err", err)

		return current
	}

	logger.Debug("renamed artifact", "from", current, "to", clean)

	return clean
}

func (o *Orchestrator) trackHistory(id string, kind media.Kind, name string, logger *slog.Logger) {
	if o.history == nil {
		return
	}

	if err := o.history.TrackDownload(id, string(kind), name); err != nil {
		logger.Warn("failed to track download history", "err", err)
	}
}

// emit never blocks; events are advisory and dropped when nobody listens.
func (o *Orchestrator) emit(ch chan Event, ev Event) {
	select {
	case ch <- ev:
	default:
	}
}

func downloadStatus(err error) string {
	var timeoutErr *ytdlp.TimeoutError
	if errors.As(err, &timeoutErr) {
		return "tool_timeout"
	}

	return "tool_error"
}
