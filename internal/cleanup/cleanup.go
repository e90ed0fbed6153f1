package cleanup

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/fiverse/ytdlp_api/internal/logctx"
	"github.com/fiverse/ytdlp_api/internal/storage"
)

// DeleteExpiredArtifacts deletes artifacts older than keepDuration based on
// the download history. Records whose file is already gone are skipped.
func DeleteExpiredArtifacts(ctx context.Context, records []storage.DownloadRecord, dir string, keepDuration time.Duration) error {
	logger := logctx.LoggerFromContext(ctx)
	now := time.Now()

	for _, rec := range records {
		filePath := filepath.Join(dir, rec.Filename)

		info, err := os.Stat(filePath)
		if err != nil {
			if os.IsNotExist(err) {
				continue // already deleted
			}

			logger.Error("failed to stat file", "file", filePath, "err", err)

			return err
		}

		downloadedAt, err := time.Parse(time.RFC3339, rec.DownloadedAt)
		if err != nil {
			// fallback: use file mod time
			logger.Warn("failed to parse download time, using file mod time", "file", filePath, "err", err)

			downloadedAt = info.ModTime()
		}

		if now.Sub(downloadedAt) > keepDuration {
			if err := os.Remove(filePath); err != nil && !os.IsNotExist(err) {
				logger.Error("failed to delete expired file", "file", filePath, "err", err)

				return err
			}

			logger.Info("deleted expired file", "file", filePath)
		}
	}

	return nil
}
