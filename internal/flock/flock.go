// Package flock provides filesystem-based advisory locking. A marker file
// created with O_CREATE|O_EXCL is the sole mutual-exclusion primitive, which
// makes the locks visible to every process sharing the same storage, not
// just goroutines in one process.
//
// Locks carry no expiry: a crashed holder leaves an orphaned marker that
// blocks its key until an operator removes the file by hand.
package flock

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
)

// ErrBusy is returned by Acquire when another holder owns the key.
var ErrBusy = errors.New("flock: lock already held")

// Manager creates and releases marker files inside a single directory.
type Manager struct {
	dir   string
	owner string
}

// NewManager returns a Manager locking inside dir. The owner identity
// written into marker files is diagnostic only.
func NewManager(dir string) *Manager {
	return &Manager{dir: dir, owner: instanceID()}
}

// Lock is an acquired marker file.
type Lock struct {
	path string
}

// Path returns the marker file location, for diagnostics.
func (l *Lock) Path() string {
	return l.path
}

// Acquire attempts an atomic create-exclusive on the marker file for key.
// Exactly one caller across all processes can succeed at a time; the rest
// receive ErrBusy immediately rather than blocking.
func (m *Manager) Acquire(key string) (*Lock, error) {
	path := filepath.Join(m.dir, "."+key+".lock")

	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		if os.IsExist(err) {
			return nil, ErrBusy
		}

		return nil, fmt.Errorf("failed to create lock file: %w", err)
	}

	// Body is informational only; losing it does not affect exclusion.
	_, _ = f.WriteString(m.owner)
	_ = f.Close()

	return &Lock{path: path}, nil
}

// Release removes the marker file. It is idempotent: releasing an
// already-absent marker is not an error.
func (l *Lock) Release() error {
	if err := os.Remove(l.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove lock file: %w", err)
	}

	return nil
}

// instanceID returns a unique string for this process (hostname+pid+random).
func instanceID() string {
	host, _ := os.Hostname()
	pid := os.Getpid()
	rnd := make([]byte, 4)
	_, _ = rand.Read(rnd)

	return host + "-" + strconv.Itoa(pid) + "-" + hex.EncodeToString(rnd)
}
