package sqlite

import (
	"database/sql"

	// Import the SQLite driver.
	_ "github.com/mattn/go-sqlite3"
)

// InitDB opens the SQLite database at path and creates the history table if
// it doesn't exist.
func InitDB(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}

	_, err = db.Exec(`CREATE TABLE IF NOT EXISTS downloads (
		id INTEGER PRIMARY KEY,
		video_id TEXT,
		kind TEXT,
		filename TEXT,
		downloaded_at DATETIME,
		status TEXT DEFAULT 'downloaded'
	)`)

	if err != nil {
		return nil, err
	}

	return db, nil
}
