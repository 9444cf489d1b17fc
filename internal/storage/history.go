// Package storage keeps a history of run reports in a bbolt file.
package storage

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.etcd.io/bbolt"

	"github.com/wesleyorama2/groomload/internal/performance/engine"
)

const (
	bucketRuns  = "runs"
	bucketIndex = "index"
)

// ErrNotFound is returned by Get for an unknown run ID.
var ErrNotFound = errors.New("run not found")

// Entry summarises one stored run.
type Entry struct {
	RunID     string         `json:"runId"`
	Name      string         `json:"name"`
	StartTime time.Time      `json:"startTime"`
	Duration  time.Duration  `json:"duration"`
	Verdict   engine.Verdict `json:"verdict"`
	Requests  int64          `json:"requests"`
	ErrorRate float64        `json:"errorRate"`
	P95       time.Duration  `json:"p95"`
}

type record struct {
	Entry  Entry          `json:"entry"`
	Report *engine.Report `json:"report"`
}

// Store is a bbolt-backed run history. Reports are stored whole under their
// run ID and indexed by start time.
type Store struct {
	db   *bbolt.DB
	path string
}

// DefaultPath returns ~/.groomload/history.db.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".groomload", "history.db"), nil
}

// Open opens or creates the history file at path.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create history directory: %w", err)
	}

	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open history %s: %w", path, err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		for _, name := range []string{bucketRuns, bucketIndex} {
			if _, err := tx.CreateBucketIfNotExists([]byte(name)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &Store{db: db, path: path}, nil
}

// Path returns the file backing the store.
func (s *Store) Path() string {
	return s.path
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Save stores a report. Saving the same run ID again replaces it.
func (s *Store) Save(r *engine.Report) error {
	if r == nil || r.RunID == "" {
		return errors.New("report has no run ID")
	}

	rec := record{Entry: summarize(r), Report: r}
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to encode report: %w", err)
	}

	return s.db.Update(func(tx *bbolt.Tx) error {
		runs := tx.Bucket([]byte(bucketRuns))
		index := tx.Bucket([]byte(bucketIndex))

		if old := runs.Get([]byte(r.RunID)); old != nil {
			var prev record
			if err := json.Unmarshal(old, &prev); err == nil {
				if err := index.Delete(indexKey(prev.Entry)); err != nil {
					return err
				}
			}
		}

		if err := runs.Put([]byte(r.RunID), data); err != nil {
			return err
		}
		return index.Put(indexKey(rec.Entry), []byte(r.RunID))
	})
}

// List returns up to limit entries, newest first. A limit <= 0 returns all.
func (s *Store) List(limit int) ([]Entry, error) {
	var entries []Entry

	err := s.db.View(func(tx *bbolt.Tx) error {
		runs := tx.Bucket([]byte(bucketRuns))
		c := tx.Bucket([]byte(bucketIndex)).Cursor()

		for k, id := c.Last(); k != nil; k, id = c.Prev() {
			if limit > 0 && len(entries) >= limit {
				break
			}
			data := runs.Get(id)
			if data == nil {
				continue
			}
			var rec record
			if err := json.Unmarshal(data, &rec); err != nil {
				return fmt.Errorf("corrupt history entry %s: %w", id, err)
			}
			entries = append(entries, rec.Entry)
		}
		return nil
	})
	return entries, err
}

// Get returns the full report of a run.
func (s *Store) Get(runID string) (*engine.Report, error) {
	var rec record

	err := s.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket([]byte(bucketRuns)).Get([]byte(runID))
		if data == nil {
			return ErrNotFound
		}
		return json.Unmarshal(data, &rec)
	})
	if err != nil {
		return nil, err
	}
	return rec.Report, nil
}

// Prune keeps the newest keep runs and deletes the rest. It returns the
// number of runs removed.
func (s *Store) Prune(keep int) (int, error) {
	if keep < 0 {
		keep = 0
	}

	removed := 0
	err := s.db.Update(func(tx *bbolt.Tx) error {
		runs := tx.Bucket([]byte(bucketRuns))
		index := tx.Bucket([]byte(bucketIndex))

		var stale [][]byte
		seen := 0
		c := index.Cursor()
		for k, _ := c.Last(); k != nil; k, _ = c.Prev() {
			seen++
			if seen > keep {
				stale = append(stale, append([]byte(nil), k...))
			}
		}

		for _, k := range stale {
			id := append([]byte(nil), index.Get(k)...)
			if err := runs.Delete(id); err != nil {
				return err
			}
			if err := index.Delete(k); err != nil {
				return err
			}
			removed++
		}
		return nil
	})
	return removed, err
}

func summarize(r *engine.Report) Entry {
	return Entry{
		RunID:     r.RunID,
		Name:      r.Name,
		StartTime: r.StartTime,
		Duration:  r.Duration,
		Verdict:   r.Verdict,
		Requests:  r.Total.Count,
		ErrorRate: r.Total.ErrorRate,
		P95:       r.Total.Latency.P95,
	}
}

// indexKey sorts by start time, with the run ID breaking ties.
func indexKey(e Entry) []byte {
	key := make([]byte, 8, 8+len(e.RunID))
	binary.BigEndian.PutUint64(key, uint64(e.StartTime.UnixNano()))
	return append(key, e.RunID...)
}
