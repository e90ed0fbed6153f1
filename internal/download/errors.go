package download

import (
	"fmt"
	"time"

	"github.com/fiverse/ytdlp_api/internal/media"
)

// WaitTimeoutError is returned when another holder owned the download lock
// and the artifact never appeared within the bounded polling window. The
// in-flight download is not cancelled; it may still complete later.
type WaitTimeoutError struct {
	Key    string        // the cache key being waited on
	Waited time.Duration // total time spent polling
}

func (e *WaitTimeoutError) Error() string {
	return fmt.Sprintf("timed out after %s waiting for concurrent download of %s", e.Waited, e.Key)
}

// ArtifactMissingError is returned when the tool reported success but no
// matching artifact was found on disk. It signals a reconciliation bug or a
// naming-pattern mismatch, not a download failure.
type ArtifactMissingError struct {
	ID   string
	Kind media.Kind
}

func (e *ArtifactMissingError) Error() string {
	return fmt.Sprintf("download completed but no %s artifact found for %s", e.Kind, e.ID)
}
