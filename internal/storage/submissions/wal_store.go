// Package submissions journals transaction submissions in a write-ahead log.
package submissions

import (
	"encoding/json"
	"strings"
	"sync"

	"github.com/pkg/errors"
	"github.com/vadiminshakov/gowal"

	"github.com/vadiminshakov/ledgerwallet/internal/domain"
)

const (
	defaultJournalDir   = "./wal/submissions"
	journalSegmentLimit = 1000
	journalMaxSegments  = 100
	submissionKeyPrefix = "submission_"
	tombstoneValue      = "tombstone"
)

var errNotInitialized = errors.New("submission journal is not initialized")

// WALStore persists submission records so that hashes of applied
// transactions survive restarts.
type WALStore struct {
	wal *gowal.Wal
	mu  sync.RWMutex
}

// NewWALStore opens (or creates) the journal under dir.
func NewWALStore(dir string) (*WALStore, error) {
	if dir == "" {
		dir = defaultJournalDir
	}

	wal, err := gowal.NewWAL(gowal.Config{
		Dir:              dir,
		Prefix:           "submission_",
		SegmentThreshold: journalSegmentLimit,
		MaxSegments:      journalMaxSegments,
		IsInSyncDiskMode: true,
	})
	if err != nil {
		return nil, errors.Wrap(err, "init submission journal WAL")
	}

	return &WALStore{wal: wal}, nil
}

// Append writes rec at the next index.
func (s *WALStore) Append(rec domain.SubmissionRecord) error {
	if s == nil || s.wal == nil {
		return errNotInitialized
	}
	if rec.ID == "" {
		return errors.New("submission id is required")
	}

	payload, err := json.Marshal(rec)
	if err != nil {
		return errors.Wrap(err, "marshal submission record")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.wal.CurrentIndex() + 1
	return errors.Wrap(s.wal.Write(next, submissionKeyPrefix+rec.ID, payload), "write submission record")
}

// EntriesAfter returns all records written after index, oldest first.
func (s *WALStore) EntriesAfter(index uint64) ([]domain.SubmissionEntry, error) {
	if s == nil || s.wal == nil {
		return nil, errNotInitialized
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	current := s.wal.CurrentIndex()
	if current <= index {
		return nil, nil
	}

	entries := make([]domain.SubmissionEntry, 0, current-index)
	for idx := index + 1; idx <= current; idx++ {
		key, payload, err := s.wal.Get(idx)
		if err != nil {
			return nil, errors.Wrapf(err, "read submission record %d", idx)
		}
		// rotated out indexes come back with an empty key
		if !strings.HasPrefix(key, submissionKeyPrefix) || string(payload) == tombstoneValue {
			continue
		}
		var rec domain.SubmissionRecord
		if err := json.Unmarshal(payload, &rec); err != nil {
			return nil, errors.Wrapf(err, "decode submission record %d", idx)
		}
		entries = append(entries, domain.SubmissionEntry{Index: idx, Record: rec})
	}

	return entries, nil
}

// Find returns the latest record of a submission.
func (s *WALStore) Find(id string) (domain.SubmissionRecord, bool, error) {
	entries, err := s.EntriesAfter(0)
	if err != nil {
		return domain.SubmissionRecord{}, false, err
	}
	for i := len(entries) - 1; i >= 0; i-- {
		if entries[i].Record.ID == id {
			return entries[i].Record, true, nil
		}
	}
	return domain.SubmissionRecord{}, false, nil
}

// CurrentIndex returns the latest index stored.
func (s *WALStore) CurrentIndex() uint64 {
	if s == nil || s.wal == nil {
		return 0
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.wal.CurrentIndex()
}

func (s *WALStore) Close() error {
	if s == nil || s.wal == nil {
		return errNotInitialized
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	return s.wal.Close()
}
