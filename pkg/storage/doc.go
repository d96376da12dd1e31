/*
Package storage provides BoltDB-backed run history for cassnode.

Every apply run ends with a RunRecord (host, versions, success flag and the
full per-artifact report) written to a bbolt database in the state
directory. The `history` command reads it back.

# Architecture

	┌──────────────────── BOLTDB STORAGE ──────────────────────┐
	│                                                            │
	│  ┌────────────────────────────────────────────┐          │
	│  │            BoltStore                        │          │
	│  │  - File: <stateDir>/cassnode.db (0600)      │          │
	│  │  - Exclusive flock while open               │          │
	│  └──────────────────┬─────────────────────────┘          │
	│                     │                                      │
	│  ┌──────────────────▼─────────────────────────┐          │
	│  │              Bucket Structure               │          │
	│  │  runs     <started UTC>_<run ID> → JSON     │          │
	│  │  run_ids  <run ID> → runs key               │          │
	│  └────────────────────────────────────────────┘          │
	└────────────────────────────────────────────────────────────┘

Keys in the runs bucket sort by start time, so listing newest first is a
reverse cursor walk and pruning drops the oldest keys.

# Run Lock

The database doubles as the run lock. bbolt takes an exclusive flock on
open, so a second apply against the same state directory waits for the
configured timeout and then fails with ErrLocked instead of converging the
host concurrently.

	store, err := storage.NewBoltStore("/var/lib/cassnode", 5*time.Second)
	if errors.Is(err, storage.ErrLocked) {
		// another run is in progress
	}
	defer store.Close()

# Secrets

SaveRun takes the secrets of the run and redacts the encoded JSON before it
is written. Reports are redacted by the reconciler already; the store
applies the same replacement again so that nothing on disk depends on every
producer remembering to do it.

	err := store.SaveRun(record, cat.Secrets())

# Retention

	removed, err := store.Prune(100) // keep the newest 100 runs
*/
package storage
