package storage

import (
	"errors"

	"github.com/cuemby/cassnode/pkg/types"
)

var (
	// ErrNotFound is returned when a run ID is unknown
	ErrNotFound = errors.New("run not found")

	// ErrLocked is returned when another cassnode process holds the state
	// database
	ErrLocked = errors.New("state database is locked by another run")
)

// Store defines the interface for run history storage
type Store interface {
	// SaveRun persists a run record. Every occurrence of a secret in the
	// encoded record is replaced before it is written.
	SaveRun(rec *types.RunRecord, secrets []string) error
	GetRun(id string) (*types.RunRecord, error)
	// ListRuns returns up to limit records, newest first. A limit <= 0
	// returns every record.
	ListRuns(limit int) ([]*types.RunRecord, error)
	// LatestRun returns the newest record, or nil when there is none
	LatestRun() (*types.RunRecord, error)
	// Prune deletes all but the newest keep records
	Prune(keep int) (int, error)

	// Utility
	Close() error
}
