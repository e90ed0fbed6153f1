package media

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"regexp"
	"strings"

	"github.com/fiverse/ytdlp_api/internal/logctx"
)

// Identity names a source video: a stable 11-character identifier plus a
// display title. The title is not guaranteed unique or filesystem-safe.
type Identity struct {
	ID    string
	Title string
}

// ResolveError is returned when identity resolution cannot even start,
// which callers surface as a client error.
type ResolveError struct {
	URL string
	Err error
}

func (e *ResolveError) Error() string {
	return fmt.Sprintf("failed to get video info for %q: %v", e.URL, e.Err)
}

func (e *ResolveError) Unwrap() error {
	return e.Err
}

// MetadataClient queries the external tool for video metadata without
// downloading anything.
type MetadataClient interface {
	VideoID(ctx context.Context, url string) (string, error)
	Title(ctx context.Context, url string) (string, error)
}

// Known URL shapes carrying an 11-character video id.
var idPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?:v=|/)([0-9A-Za-z_-]{11})`),
	regexp.MustCompile(`youtu\.be/([0-9A-Za-z_-]{11})`),
	regexp.MustCompile(`/embed/([0-9A-Za-z_-]{11})`),
	regexp.MustCompile(`/v/([0-9A-Za-z_-]{11})`),
}

// Resolver derives a stable Identity for a requested URL. The external tool
// is preferred; URL pattern matching and a hash of the URL itself act as
// fallbacks, so resolution terminates deterministically even when the tool
// is unreachable.
type Resolver struct {
	meta MetadataClient
}

func NewResolver(meta MetadataClient) *Resolver {
	return &Resolver{meta: meta}
}

// Resolve returns the Identity for rawURL. It fails only when rawURL is
// blank; every other failure degrades to a fallback path.
func (r *Resolver) Resolve(ctx context.Context, rawURL string) (Identity, error) {
	logger := logctx.LoggerFromContext(ctx)

	rawURL = strings.TrimSpace(rawURL)
	if rawURL == "" {
		return Identity{}, &ResolveError{URL: rawURL, Err: fmt.Errorf("url is empty")}
	}

	id, err := r.meta.VideoID(ctx, rawURL)
	if err != nil || id == "" {
		if err != nil {
			logger.Debug("tool id lookup failed, falling back to url parsing", "url", rawURL, "err", err)
		}

		id = ExtractVideoID(rawURL)
	}

	title, err := r.meta.Title(ctx, rawURL)
	if err != nil || title == "" {
		if err != nil {
			logger.Debug("tool title lookup failed, synthesizing title", "url", rawURL, "err", err)
		}

		title = "video_" + id
	}

	return Identity{ID: id, Title: title}, nil
}

// ExtractVideoID parses the video id out of known URL shapes. When no
// pattern matches it derives a deterministic 11-character token from a hash
// of the URL, so the same URL always maps to the same id.
func ExtractVideoID(rawURL string) string {
	for _, pattern := range idPatterns {
		if m := pattern.FindStringSubmatch(rawURL); m != nil {
			return m[1]
		}
	}

	sum := md5.Sum([]byte(rawURL))

	return hex.EncodeToString(sum[:])[:11]
}
