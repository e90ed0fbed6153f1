package download

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/fiverse/ytdlp_api/internal/media"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func touch(t *testing.T, dir, name string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o644))
}

func TestScanDir(t *testing.T) {
	tests := []struct {
		name     string
		files    []string
		id       string
		kind     media.Kind
		want     string
		wantFind bool
	}{
		{
			name:     "suffixed name",
			files:    []string{"Some_Title__abc123def45.mp3"},
			id:       "abc123def45",
			kind:     media.KindAudio,
			want:     "Some_Title__abc123def45.mp3",
			wantFind: true,
		},
		{
			name:     "id prefixed name",
			files:    []string{"abc123def45.mp3"},
			id:       "abc123def45",
			kind:     media.KindAudio,
			want:     "abc123def45.mp3",
			wantFind: true,
		},
		{
			name:     "suffixed beats prefixed within an extension",
			files:    []string{"abc123def45.mp3", "Title__abc123def45.mp3"},
			id:       "abc123def45",
			kind:     media.KindAudio,
			want:     "Title__abc123def45.mp3",
			wantFind: true,
		},
		{
			name:     "extension preference order",
			files:    []string{"Title__abc123def45.m4a", "Title__abc123def45.mp3"},
			id:       "abc123def45",
			kind:     media.KindAudio,
			want:     "Title__abc123def45.mp3",
			wantFind: true,
		},
		{
			name:     "video kind ignores audio artifacts",
			files:    []string{"Title__abc123def45.mp3"},
			id:       "abc123def45",
			kind:     media.KindVideo,
			wantFind: false,
		},
		{
			name:     "other ids do not match",
			files:    []string{"Title__zzz999zzz99.mp3"},
			id:       "abc123def45",
			kind:     media.KindAudio,
			wantFind: false,
		},
		{
			name:     "empty directory",
			id:       "abc123def45",
			kind:     media.KindAudio,
			wantFind: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			for _, f := range tt.files {
				touch(t, dir, f)
			}

			got, ok := scanDir(dir, tt.id, tt.kind)
			assert.Equal(t, tt.wantFind, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}
