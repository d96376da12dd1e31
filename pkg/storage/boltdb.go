package storage

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/cuemby/cassnode/pkg/types"
	bolt "go.etcd.io/bbolt"
)

// DBFile is the name of the run history database inside the state directory
const DBFile = "cassnode.db"

var (
	// Bucket names
	bucketRuns   = []byte("runs")
	bucketRunIDs = []byte("run_ids")
)

// keyTimeFormat sorts lexically in time order
const keyTimeFormat = "20060102T150405.000000000Z"

// BoltStore implements Store interface using BoltDB
type BoltStore struct {
	db *bolt.DB
}

// NewBoltStore opens the run history in stateDir. bbolt holds an exclusive
// file lock while the store is open; a second process waits up to timeout
// and then fails with ErrLocked.
func NewBoltStore(stateDir string, timeout time.Duration) (*BoltStore, error) {
	if err := os.MkdirAll(stateDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create state directory: %w", err)
	}
	dbPath := filepath.Join(stateDir, DBFile)

	db, err := bolt.Open(dbPath, 0600, &bolt.Options{Timeout: timeout})
	if err != nil {
		if errors.Is(err, bolt.ErrTimeout) {
			return nil, fmt.Errorf("%w: %s", ErrLocked, dbPath)
		}
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Create buckets
	err = db.Update(func(tx *bolt.Tx) error {
		for _, bucket := range [][]byte{bucketRuns, bucketRunIDs} {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return fmt.Errorf("failed to create bucket %s: %w", bucket, err)
			}
		}
		return nil
	})

	if err != nil {
		db.Close()
		return nil, err
	}

	return &BoltStore{db: db}, nil
}

// Close closes the database and releases the lock
func (s *BoltStore) Close() error {
	return s.db.Close()
}

func runKey(rec *types.RunRecord) []byte {
	started := time.Time{}
	if rec.Report != nil {
		started = rec.Report.StartedAt
	}
	return []byte(started.UTC().Format(keyTimeFormat) + "_" + rec.ID)
}

// redactRecord returns a copy of rec with secrets replaced in every string.
// It runs before encoding because JSON escapes would hide a secret from a
// search of the encoded form.
func redactRecord(rec *types.RunRecord, secrets []string) *types.RunRecord {
	out := *rec
	out.Hostname = types.Redact(rec.Hostname, secrets)
	if rec.Report == nil {
		return &out
	}

	report := *rec.Report
	report.Results = make([]*types.ArtifactResult, len(rec.Report.Results))
	for i, res := range rec.Report.Results {
		r := *res
		r.ID = types.Redact(res.ID, secrets)
		r.Error = types.Redact(res.Error, secrets)
		r.GuardProbe = types.Redact(res.GuardProbe, secrets)
		r.Diff = types.Redact(res.Diff, secrets)
		r.Actions = make([]string, len(res.Actions))
		for j, action := range res.Actions {
			r.Actions[j] = types.Redact(action, secrets)
		}
		report.Results[i] = &r
	}
	out.Report = &report
	return &out
}

func encodeRun(rec *types.RunRecord, secrets []string) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(redactRecord(rec, secrets)); err != nil {
		return nil, err
	}
	return []byte(types.Redact(buf.String(), secrets)), nil
}

// SaveRun persists a run record
func (s *BoltStore) SaveRun(rec *types.RunRecord, secrets []string) error {
	if rec.ID == "" {
		return fmt.Errorf("run record has no ID")
	}
	data, err := encodeRun(rec, secrets)
	if err != nil {
		return fmt.Errorf("failed to marshal run: %w", err)
	}
	key := runKey(rec)

	return s.db.Update(func(tx *bolt.Tx) error {
		ids := tx.Bucket(bucketRunIDs)
		runs := tx.Bucket(bucketRuns)
		if old := ids.Get([]byte(rec.ID)); old != nil && !bytes.Equal(old, key) {
			if err := runs.Delete(old); err != nil {
				return err
			}
		}
		if err := ids.Put([]byte(rec.ID), key); err != nil {
			return err
		}
		return runs.Put(key, data)
	})
}

// GetRun retrieves a run record by ID
func (s *BoltStore) GetRun(id string) (*types.RunRecord, error) {
	var rec types.RunRecord
	err := s.db.View(func(tx *bolt.Tx) error {
		key := tx.Bucket(bucketRunIDs).Get([]byte(id))
		if key == nil {
			return fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		data := tx.Bucket(bucketRuns).Get(key)
		if data == nil {
			return fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return json.Unmarshal(data, &rec)
	})
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// ListRuns returns run records, newest first
func (s *BoltStore) ListRuns(limit int) ([]*types.RunRecord, error) {
	var records []*types.RunRecord
	err := s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(bucketRuns).Cursor()
		for k, v := c.Last(); k != nil; k, v = c.Prev() {
			if limit > 0 && len(records) >= limit {
				break
			}
			var rec types.RunRecord
			if err := json.Unmarshal(v, &rec); err != nil {
				return fmt.Errorf("failed to unmarshal run %s: %w", k, err)
			}
			records = append(records, &rec)
		}
		return nil
	})
	return records, err
}

// LatestRun returns the newest run record, or nil
func (s *BoltStore) LatestRun() (*types.RunRecord, error) {
	records, err := s.ListRuns(1)
	if err != nil || len(records) == 0 {
		return nil, err
	}
	return records[0], nil
}

// Prune deletes all but the newest keep records and returns how many were
// removed
func (s *BoltStore) Prune(keep int) (int, error) {
	if keep < 0 {
		keep = 0
	}
	removed := 0
	err := s.db.Update(func(tx *bolt.Tx) error {
		runs := tx.Bucket(bucketRuns)
		ids := tx.Bucket(bucketRunIDs)

		var stale [][]byte
		seen := 0
		c := runs.Cursor()
		for k, _ := c.Last(); k != nil; k, _ = c.Prev() {
			seen++
			if seen > keep {
				stale = append(stale, append([]byte(nil), k...))
			}
		}

		for _, key := range stale {
			if err := runs.Delete(key); err != nil {
				return err
			}
			// key is "<time>_<id>"
			if i := bytes.IndexByte(key, '_'); i >= 0 {
				if err := ids.Delete(key[i+1:]); err != nil {
					return err
				}
			}
			removed++
		}
		return nil
	})
	return removed, err
}
