// internal/state/interface.go
package state

import (
	"database/sql"
	"time"
)

// Interface defines the state manager contract for dependency injection and testing.
type Interface interface {
	DB() *sql.DB
	SaveQueue(st QueueState) error
	GetQueue() (*QueueState, error)
	SavePosition(pos time.Duration)
	Close() error
}

// Verify Manager implements Interface at compile time.
var _ Interface = (*Manager)(nil)
