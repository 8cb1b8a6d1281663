// Package history keeps an on-disk record of past scans, one run per
// invocation, grouped by certificate.
package history

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/btree"
	"go.etcd.io/bbolt"

	"github.com/yairfalse/certusage/pkg/usage"
)

// Bucket names in bbolt. Each certificate gets a nested bucket under
// bucketRuns, keyed by run sequence.
var bucketRuns = []byte("runs")

// ErrEmptyCertificate is returned when a run names no certificate.
var ErrEmptyCertificate = errors.New("run has no certificate")

// Run is one recorded scan.
type Run struct {
	Sequence    uint64         `json:"sequence"`
	Certificate string         `json:"certificate"`
	StartedAt   time.Time      `json:"started_at"`
	Duration    time.Duration  `json:"duration"`
	Reports     []usage.Report `json:"reports"`
	Failed      []usage.Kind   `json:"failed,omitempty"`
}

// CertificateState tracks a certificate's runs in the index.
type CertificateState struct {
	Certificate  string
	Runs         int
	LastSequence uint64
	LastScan     time.Time
	LastReports  int
}

// Store is a bbolt-backed run history with an in-memory index of
// certificates.
type Store struct {
	mu sync.RWMutex

	index *btree.BTreeG[*CertificateState]
	db    *bbolt.DB
}

// Open opens or creates the history database at path.
func Open(path string) (*Store, error) {
	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open history %s: %w", path, err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketRuns)
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init history: %w", err)
	}

	s := &Store{
		index: btree.NewG(16, func(a, b *CertificateState) bool {
			return a.Certificate < b.Certificate
		}),
		db: db,
	}

	if err := s.rebuildIndex(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Record appends a run and returns its sequence number.
func (s *Store) Record(ctx context.Context, run Run) (uint64, error) {
	if run.Certificate == "" {
		return 0, ErrEmptyCertificate
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	err := s.db.Update(func(tx *bbolt.Tx) error {
		bucket, err := tx.Bucket(bucketRuns).CreateBucketIfNotExists([]byte(run.Certificate))
		if err != nil {
			return err
		}

		seq, err := bucket.NextSequence()
		if err != nil {
			return err
		}
		run.Sequence = seq

		value, err := json.Marshal(run)
		if err != nil {
			return err
		}
		return bucket.Put(uint64ToBytes(seq), value)
	})
	if err != nil {
		return 0, fmt.Errorf("record run: %w", err)
	}

	s.updateIndex(run)
	return run.Sequence, nil
}

// Last returns the most recent run for certificate.
func (s *Store) Last(ctx context.Context, certificate string) (Run, bool, error) {
	runs, err := s.Runs(ctx, certificate, 1)
	if err != nil || len(runs) == 0 {
		return Run{}, false, err
	}
	return runs[0], true, nil
}

// Runs returns up to limit runs for certificate, newest first. A limit of
// zero or less returns every run.
func (s *Store) Runs(ctx context.Context, certificate string, limit int) ([]Run, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var runs []Run
	err := s.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(bucketRuns).Bucket([]byte(certificate))
		if bucket == nil {
			return nil
		}

		c := bucket.Cursor()
		for k, v := c.Last(); k != nil; k, v = c.Prev() {
			var run Run
			if err := json.Unmarshal(v, &run); err != nil {
				return fmt.Errorf("decode run %d: %w", bytesToUint64(k), err)
			}
			runs = append(runs, run)
			if limit > 0 && len(runs) == limit {
				break
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("read runs: %w", err)
	}
	return runs, nil
}

// Certificates returns the state of every recorded certificate, ordered by
// certificate.
func (s *Store) Certificates() []CertificateState {
	s.mu.RLock()
	defer s.mu.RUnlock()

	states := make([]CertificateState, 0, s.index.Len())
	s.index.Ascend(func(st *CertificateState) bool {
		states = append(states, *st)
		return true
	})
	return states
}

func (s *Store) updateIndex(run Run) {
	state, found := s.index.Get(&CertificateState{Certificate: run.Certificate})
	if !found {
		state = &CertificateState{Certificate: run.Certificate}
	}
	state.Runs++
	if run.Sequence >= state.LastSequence {
		state.LastSequence = run.Sequence
		state.LastScan = run.StartedAt
		state.LastReports = len(run.Reports)
	}
	s.index.ReplaceOrInsert(state)
}

func (s *Store) rebuildIndex() error {
	return s.db.View(func(tx *bbolt.Tx) error {
		root := tx.Bucket(bucketRuns)
		return root.ForEach(func(name, v []byte) error {
			if v != nil {
				return nil
			}
			bucket := root.Bucket(name)
			return bucket.ForEach(func(_, value []byte) error {
				var run Run
				if err := json.Unmarshal(value, &run); err != nil {
					return fmt.Errorf("rebuild index for %s: %w", name, err)
				}
				s.updateIndex(run)
				return nil
			})
		})
	})
}

func uint64ToBytes(v uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, v)
	return b
}

func bytesToUint64(b []byte) uint64 {
	if len(b) != 8 {
		return 0
	}
	return binary.BigEndian.Uint64(b)
}
