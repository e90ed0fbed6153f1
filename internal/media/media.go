// Package media defines the vocabulary shared by the download pipeline:
// media kinds, their extension and MIME tables, cache keys, filename
// sanitization and video identity resolution.
package media

import (
	"path/filepath"
	"strings"
)

// Kind is the requested media flavor.
type Kind string

const (
	KindAudio Kind = "audio"
	KindVideo Kind = "video"
)

// ParseKind normalizes a request type string. Anything that is not
// explicitly "video" falls back to audio.
func ParseKind(s string) Kind {
	if strings.ToLower(strings.TrimSpace(s)) == string(KindVideo) {
		return KindVideo
	}

	return KindAudio
}

// Extensions returns the extension preference order used when searching
// the download directory for an artifact of this kind.
func (k Kind) Extensions() []string {
	if k == KindVideo {
		return []string{"mp4", "webm", "mkv", "avi", "mov"}
	}

	return []string{"mp3", "m4a", "wav", "flac", "ogg"}
}

// DefaultExtension is the extension the downloader is asked to produce.
func (k Kind) DefaultExtension() string {
	if k == KindVideo {
		return "mp4"
	}

	return "mp3"
}

// DefaultMIME is the fallback MIME type when the extension is unknown.
func (k Kind) DefaultMIME() string {
	if k == KindVideo {
		return "video/mp4"
	}

	return "audio/mpeg"
}

var mimeByExtension = map[string]string{
	"mp3":  "audio/mpeg",
	"m4a":  "audio/mp4",
	"wav":  "audio/wav",
	"flac": "audio/flac",
	"ogg":  "audio/ogg",
	"mp4":  "video/mp4",
	"webm": "video/webm",
	"mkv":  "video/x-matroska",
	"avi":  "video/x-msvideo",
	"mov":  "video/quicktime",
}

// MIMEType resolves the MIME type for a filename from its extension,
// falling back to the kind's default.
func MIMEType(filename string, kind Kind) string {
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(filename), "."))
	if mime, ok := mimeByExtension[ext]; ok {
		return mime
	}

	return kind.DefaultMIME()
}

// CacheKey builds the lookup key shared by the cache store and the lock
// manager for a given video and kind.
func CacheKey(id string, kind Kind) string {
	return id + "_" + string(kind)
}
