// Package history persists finished transcriptions in badger.
package history

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"

	"go.aimuz.me/dawn/internal/types"
)

// ErrNotFound is returned when deleting an unknown record.
var ErrNotFound = errors.New("transcription not found")

const (
	recordPrefix = "tx:"
	indexPrefix  = "id:"
)

// Store is the transcription history. It is safe for concurrent use.
type Store struct {
	db *badger.DB
}

// Open opens the history database at dir.
func Open(dir string) (*Store, error) {
	return open(badger.DefaultOptions(dir).WithLogger(nil))
}

// OpenInMemory opens a history that is lost on Close.
func OpenInMemory() (*Store, error) {
	return open(badger.DefaultOptions("").WithInMemory(true).WithLogger(nil))
}

func open(opts badger.Options) (*Store, error) {
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open history: %w", err)
	}
	return &Store{db: db}, nil
}

// recordKey sorts records by time; the id breaks ties.
func recordKey(t types.Transcription) []byte {
	return fmt.Appendf(nil, "%s%020d:%s", recordPrefix, t.Timestamp, t.ID)
}

// Add stores t, filling in a missing id or timestamp.
func (s *Store) Add(t types.Transcription) error {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	if t.Timestamp == 0 {
		t.Timestamp = time.Now().UnixMilli()
	}
	data, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("marshal transcription: %w", err)
	}

	key := recordKey(t)
	return s.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set(key, data); err != nil {
			return err
		}
		return txn.Set([]byte(indexPrefix+t.ID), key)
	})
}

// Recent returns up to n records, newest first. n <= 0 returns all.
func (s *Store) Recent(n int) ([]types.Transcription, error) {
	var out []types.Transcription
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Reverse = true
		opts.Prefix = []byte(recordPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek([]byte(recordPrefix + "\xff")); it.Valid(); it.Next() {
			var t types.Transcription
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &t)
			}); err != nil {
				return fmt.Errorf("decode transcription: %w", err)
			}
			out = append(out, t)
			if n > 0 && len(out) == n {
				break
			}
		}
		return nil
	})
	return out, err
}

// Delete removes the record with id.
func (s *Store) Delete(id string) error {
	return s.db.Update(func(txn *badger.Txn) error {
		idx := []byte(indexPrefix + id)
		item, err := txn.Get(idx)
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		key, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}
		if err := txn.Delete(key); err != nil {
			return err
		}
		return txn.Delete(idx)
	})
}

// Clear removes every record.
func (s *Store) Clear() error {
	if err := s.db.DropPrefix([]byte(recordPrefix)); err != nil {
		return fmt.Errorf("drop records: %w", err)
	}
	if err := s.db.DropPrefix([]byte(indexPrefix)); err != nil {
		return fmt.Errorf("drop index: %w", err)
	}
	return nil
}

// Close flushes and closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}
