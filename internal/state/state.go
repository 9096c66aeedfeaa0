// Package state persists resumable playback state to SQLite.
//
// Writes are opportunistic and eventually consistent: position
// checkpoints are debounced and fire-and-forget, last write wins. Only
// explicit checkpoints (queue load, index change, mode toggle) are
// expected to be durable.
package state

import (
	"database/sql"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/adrg/xdg"
	_ "modernc.org/sqlite" // SQLite driver
)

const (
	appName      = "tala"
	dbFileName   = "tala.db"
	saveDebounce = 500 * time.Millisecond
)

type Manager struct {
	db         *sql.DB
	saveMu     sync.Mutex
	saveTimer  *time.Timer
	pendingPos *time.Duration
}

// Open opens (or creates) the state database under the XDG data dir.
func Open() (*Manager, error) {
	dbPath, err := xdg.DataFile(filepath.Join(appName, dbFileName))
	if err != nil {
		return nil, err
	}
	return OpenAt(dbPath)
}

// OpenAt opens the state database at an explicit path.
func OpenAt(dbPath string) (*Manager, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}

	if err := initSchema(db); err != nil {
		db.Close()
		return nil, err
	}

	return &Manager{db: db}, nil
}

// Close flushes any pending position checkpoint and closes the database.
func (m *Manager) Close() error {
	m.saveMu.Lock()
	if m.saveTimer != nil {
		m.saveTimer.Stop()
	}
	pending := m.pendingPos
	m.pendingPos = nil
	m.saveMu.Unlock()

	if pending != nil {
		_ = savePosition(m.db, *pending)
	}

	return m.db.Close()
}

// DB exposes the underlying database handle.
func (m *Manager) DB() *sql.DB {
	return m.db
}

// SavePosition records a position checkpoint. Writes are debounced and
// best-effort; they must never block the playback critical path.
func (m *Manager) SavePosition(pos time.Duration) {
	m.saveMu.Lock()
	defer m.saveMu.Unlock()

	m.pendingPos = &pos

	if m.saveTimer != nil {
		m.saveTimer.Stop()
	}

	m.saveTimer = time.AfterFunc(saveDebounce, func() {
		m.saveMu.Lock()
		pending := m.pendingPos
		m.pendingPos = nil
		m.saveMu.Unlock()

		if pending != nil {
			_ = savePosition(m.db, *pending)
		}
	})
}
