package sqlite

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHistoryRepository_TrackAndGet(t *testing.T) {
	db, err := InitDB(filepath.Join(t.TempDir(), "history.db"))
	require.NoError(t, err)

	t.Cleanup(func() { _ = db.Close() })

	repo := NewHistoryRepository(db)

	require.NoError(t, repo.TrackDownload("dQw4w9WgXcQ", "audio", "Never_Gonna_Give_You_Up.mp3"))
	require.NoError(t, repo.TrackDownload("abc123def45", "video", "Some_Clip__abc123def45.mp4"))

	records, err := repo.GetDownloads()
	require.NoError(t, err)
	require.Len(t, records, 2)

	assert.Equal(t, "dQw4w9WgXcQ", records[0].VideoID)
	assert.Equal(t, "audio", records[0].Kind)
	assert.Equal(t, "Never_Gonna_Give_You_Up.mp3", records[0].Filename)
	assert.Equal(t, "downloaded", records[0].Status)

	_, err = time.Parse(time.RFC3339, records[0].DownloadedAt)
	assert.NoError(t, err, "downloaded_at should be RFC3339")

	assert.Equal(t, "video", records[1].Kind)
}

func TestHistoryRepository_EmptyDatabase(t *testing.T) {
	db, err := InitDB(filepath.Join(t.TempDir(), "history.db"))
	require.NoError(t, err)

	t.Cleanup(func() { _ = db.Close() })

	records, err := NewHistoryRepository(db).GetDownloads()
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestInitDB_Idempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.db")

	db, err := InitDB(path)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	// Reopening against the existing file must not fail on the schema.
	db, err = InitDB(path)
	require.NoError(t, err)
	require.NoError(t, db.Close())
}
