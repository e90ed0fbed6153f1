package sqlite

import (
	"database/sql"
	"time"

	"github.com/fiverse/ytdlp_api/internal/storage"
)

// HistoryRepository stores download history records in SQLite.
type HistoryRepository struct {
	db *sql.DB
}

func NewHistoryRepository(dbConn *sql.DB) *HistoryRepository {
	return &HistoryRepository{db: dbConn}
}

// TrackDownload appends a record for a completed download.
func (r *HistoryRepository) TrackDownload(videoID, kind, filename string) error {
	_, err := r.db.Exec(
		`INSERT INTO downloads (video_id, kind, filename, downloaded_at, status) VALUES (?, ?, ?, ?, 'downloaded')`,
		videoID, kind, filename, time.Now().Format(time.RFC3339),
	)

	return err
}

// GetDownloads returns every history record.
func (r *HistoryRepository) GetDownloads() ([]storage.DownloadRecord, error) {
	rows, err := r.db.Query(`SELECT video_id, kind, filename, downloaded_at, status FROM downloads`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var downloads []storage.DownloadRecord

	for rows.Next() {
		var record storage.DownloadRecord
		if err := rows.Scan(&record.VideoID, &record.Kind, &record.Filename, &record.DownloadedAt, &record.Status); err != nil {
			return nil, err
		}

		downloads = append(downloads, record)
	}

	return downloads, rows.Err()
}
