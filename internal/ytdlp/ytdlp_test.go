package ytdlp

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/fiverse/ytdlp_api/internal/media"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRun_TrimsStdout(t *testing.T) {
	r := New("echo", time.Second, time.Second)

	out, err := r.run(context.Background(), time.Second, "version", "hello")
	require.NoError(t, err)
	assert.Equal(t, "hello", out)
}

func TestRun_NonZeroExit(t *testing.T) {
	r := New("false", time.Second, time.Second)

	_, err := r.run(context.Background(), time.Second, "download")

	var toolErr *ToolError
	require.ErrorAs(t, err, &toolErr)
	assert.Equal(t, "download", toolErr.Operation)
	assert.Equal(t, 1, toolErr.ExitCode)
}

func TestRun_MissingBinary(t *testing.T) {
	r := New("definitely-not-a-real-binary-xyz", time.Second, time.Second)

	_, err := r.run(context.Background(), time.Second, "version", "--version")

	var toolErr *ToolError
	require.ErrorAs(t, err, &toolErr)
	assert.Equal(t, -1, toolErr.ExitCode)
}

func TestRun_Timeout(t *testing.T) {
	r := New("sleep", time.Second, time.Second)

	_, err := r.run(context.Background(), 50*time.Millisecond, "download", "5")

	var timeoutErr *TimeoutError
	require.ErrorAs(t, err, &timeoutErr)
	assert.Equal(t, "download", timeoutErr.Operation)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
}

func TestFormatArgs(t *testing.T) {
	assert.Equal(t,
		[]string{"-x", "--audio-format", "mp3", "--audio-quality", "0"},
		formatArgs(media.KindAudio),
	)
	assert.Equal(t,
		[]string{"-f", "bestvideo[ext=mp4]+bestaudio[ext=m4a]/best[ext=mp4]/best"},
		formatArgs(media.KindVideo),
	)
}

func TestToolError_Error(t *testing.T) {
	withStderr := &ToolError{Operation: "download", ExitCode: 1, Stderr: "ERROR: Video unavailable"}
	assert.Equal(t, "ERROR: Video unavailable", withStderr.Error())

	silent := &ToolError{Operation: "get_id", ExitCode: 2, Err: errors.New("boom")}
	assert.Equal(t, "yt-dlp get_id failed with exit code 2: boom", silent.Error())
}

func TestTimeoutError_Error(t *testing.T) {
	err := &TimeoutError{Operation: "download", Timeout: 5 * time.Minute, Err: context.DeadlineExceeded}
	assert.Equal(t, "yt-dlp download timed out after 5m0s", err.Error())
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
