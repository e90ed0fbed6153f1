package ytdlp

import (
	"fmt"
	"time"
)

// ToolError represents a non-zero exit from the external tool. The tool's
// own diagnostic output is carried in Stderr and becomes the caller-visible
// error message.
type ToolError struct {
	Operation string // the invocation mode that failed (e.g. "download", "get_id")
	ExitCode  int    // process exit code, -1 if the process never started
	Stderr    string // trimmed stderr from the tool
	Err       error  // underlying error, if any
}

func (e *ToolError) Error() string {
	if e.Stderr != "" {
		return e.Stderr
	}

	return fmt.Sprintf("yt-dlp %s failed with exit code %d: %v", e.Operation, e.ExitCode, e.Err)
}

func (e *ToolError) Unwrap() error {
	return e.Err
}

// TimeoutError represents an invocation exceeding its deadline, kept
// distinct from ToolError so callers can report timeouts separately.
type TimeoutError struct {
	Operation string
	Timeout   time.Duration
	Err       error
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("yt-dlp %s timed out after %s", e.Operation, e.Timeout)
}

func (e *TimeoutError) Unwrap() error {
	return e.Err
}
