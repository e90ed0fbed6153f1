package media

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseKind(t *testing.T) {
	tests := []struct {
		in   string
		want Kind
	}{
		{"audio", KindAudio},
		{"video", KindVideo},
		{"VIDEO", KindVideo},
		{" video ", KindVideo},
		{"", KindAudio},
		{"flac", KindAudio},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, ParseKind(tt.in), "input %q", tt.in)
	}
}

func TestKindExtensions(t *testing.T) {
	assert.Equal(t, []string{"mp3", "m4a", "wav", "flac", "ogg"}, KindAudio.Extensions())
	assert.Equal(t, []string{"mp4", "webm", "mkv", "avi", "mov"}, KindVideo.Extensions())
	assert.Equal(t, "mp3", KindAudio.DefaultExtension())
	assert.Equal(t, "mp4", KindVideo.DefaultExtension())
}

func TestMIMEType(t *testing.T) {
	tests := []struct {
		filename string
		kind     Kind
		want     string
	}{
		{"song.mp3", KindAudio, "audio/mpeg"},
		{"song.M4A", KindAudio, "audio/mp4"},
		{"clip.webm", KindVideo, "video/webm"},
		{"clip.mkv", KindVideo, "video/x-matroska"},
		{"mystery.xyz", KindAudio, "audio/mpeg"},
		{"mystery.xyz", KindVideo, "video/mp4"},
		{"noext", KindAudio, "audio/mpeg"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, MIMEType(tt.filename, tt.kind), "file %q kind %q", tt.filename, tt.kind)
	}
}

func TestCacheKey(t *testing.T) {
	assert.Equal(t, "dQw4w9WgXcQ_audio", CacheKey("dQw4w9WgXcQ", KindAudio))
	assert.Equal(t, "dQw4w9WgXcQ_video", CacheKey("dQw4w9WgXcQ", KindVideo))
}
