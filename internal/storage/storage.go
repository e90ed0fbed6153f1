package storage

// DownloadRecord is one completed download, kept for diagnostics and
// retention cleanup. The JSON cache remains the lookup path; history is an
// audit trail.
type DownloadRecord struct {
	VideoID      string
	Kind         string
	Filename     string
	DownloadedAt string
	Status       string
}

// HistoryReadRepository reads download history.
type HistoryReadRepository interface {
	GetDownloads() ([]DownloadRecord, error)
}

// HistoryWriteRepository appends download history.
type HistoryWriteRepository interface {
	TrackDownload(videoID, kind, filename string) error
}

// HistoryRepository combines both sides.
type HistoryRepository interface {
	HistoryReadRepository
	HistoryWriteRepository
}
