// Package ytdlp wraps the yt-dlp command line tool. All format negotiation,
// extraction and encoding happens inside the tool; this package only owns
// the argument contract and the process lifecycle.
package ytdlp

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/fiverse/ytdlp_api/internal/logctx"
	"github.com/fiverse/ytdlp_api/internal/media"
)

const (
	versionTimeout = 5 * time.Second

	userAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36"
)

// Runner invokes the yt-dlp binary.
type Runner struct {
	bin             string
	idTimeout       time.Duration
	downloadTimeout time.Duration
}

// New creates a Runner. idTimeout bounds metadata queries, downloadTimeout
// bounds full downloads.
func New(bin string, idTimeout, downloadTimeout time.Duration) *Runner {
	return &Runner{
		bin:             bin,
		idTimeout:       idTimeout,
		downloadTimeout: downloadTimeout,
	}
}

// Version reports the tool's version string.
func (r *Runner) Version(ctx context.Context) (string, error) {
	return r.run(ctx, versionTimeout, "version", "--version")
}

// VideoID asks the tool for the video id without downloading.
func (r *Runner) VideoID(ctx context.Context, url string) (string, error) {
	return r.run(ctx, r.idTimeout, "get_id", "--no-check-certificates", "--get-id", url)
}

// Title asks the tool for the display title without downloading.
func (r *Runner) Title(ctx context.Context, url string) (string, error) {
	return r.run(ctx, r.idTimeout, "get_title", "--no-check-certificates", "--get-title", url)
}

// Download fetches the media behind url into outputTemplate, which must
// contain the tool's %(ext)s placeholder. The argument set disables
// certificate checks and playlist expansion and pins a browser user agent.
func (r *Runner) Download(ctx context.Context, url, outputTemplate string, kind media.Kind) error {
	args := []string{
		"--no-check-certificates",
		"--no-playlist",
		"--no-warnings",
		"--prefer-insecure",
		"--add-header", "User-Agent:" + userAgent,
	}
	args = append(args, formatArgs(kind)...)
	args = append(args, "-o", outputTemplate, url)

	logger := logctx.LoggerFromContext(ctx)
	logger.Debug("running downloader", "bin", r.bin, "args", strings.Join(args, " "))

	_, err := r.run(ctx, r.downloadTimeout, "download", args...)

	return err
}

// formatArgs selects the output format per kind: best-quality mp3 for
// audio, a combined mp4 stream with fallbacks for video.
func formatArgs(kind media.Kind) []string {
	if kind == media.KindVideo {
		return []string{"-f", "bestvideo[ext=mp4]+bestaudio[ext=m4a]/best[ext=mp4]/best"}
	}

	return []string{"-x", "--audio-format", "mp3", "--audio-quality", "0"}
}

func (r *Runner) run(ctx context.Context, timeout time.Duration, operation string, args ...string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, r.bin, args...)

	var stdout, stderr bytes.Buffer

	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return "", &TimeoutError{Operation: operation, Timeout: timeout, Err: ctx.Err()}
		}

		exitCode := -1

		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			exitCode = exitErr.ExitCode()
		}

		return "", &ToolError{
			Operation: operation,
			ExitCode:  exitCode,
			Stderr:    strings.TrimSpace(stderr.String()),
			Err:       fmt.Errorf("running %s: %w", r.bin, err),
		}
	}

	return strings.TrimSpace(stdout.String()), nil
}
