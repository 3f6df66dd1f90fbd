package execmgr

import (
	"encoding/json"
	"fmt"
	"sync"

	"go.etcd.io/bbolt"
)

// HistoryStore persists the command history a PersistentManager hands out
// through GetHistoryItem. The default is purely in-memory and dies with the
// manager; BoltHistoryStore is the optional durable backend, wired the same
// way anhnv…/orchestrator/persistence.go durably stores workflow state: one
// bucket, JSON-encoded values, read-modify-write under a single transaction.
type HistoryStore interface {
	// Append records cmdText as the newest entry for key.
	Append(key, cmdText string) error
	// Item returns the index'th most recent entry for key (1-based, newest
	// first), or ErrNoHistoryItem if index is out of range.
	Item(key string, index int) (string, error)
}

// InMemoryHistoryStore is the default HistoryStore: a mutex-guarded map from
// manager key to its ordered command list. It is scoped to the process and
// never outlives it.
type InMemoryHistoryStore struct {
	mu      sync.Mutex
	entries map[string][]string
}

// NewInMemoryHistoryStore returns an empty in-memory history store.
func NewInMemoryHistoryStore() *InMemoryHistoryStore {
	return &InMemoryHistoryStore{entries: make(map[string][]string)}
}

func (s *InMemoryHistoryStore) Append(key, cmdText string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[key] = append(s.entries[key], cmdText)
	return nil
}

func (s *InMemoryHistoryStore) Item(key string, index int) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	h := s.entries[key]
	if index < 1 || index > len(h) {
		return "", ErrNoHistoryItem
	}
	return h[len(h)-index], nil
}

var historyBucket = []byte("history")

// BoltHistoryStore persists history entries to a bbolt database so readline-
// style recall survives a PersistentManager restart within the same process
// lifetime. It is optional: callers that never construct one keep the
// default in-memory behavior.
type BoltHistoryStore struct {
	db *bbolt.DB
	mu sync.Mutex
}

// OpenBoltHistoryStore opens (creating if absent) a bbolt database at path
// and ensures its history bucket exists.
func OpenBoltHistoryStore(path string) (*BoltHistoryStore, error) {
	db, err := bbolt.Open(path, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("execmgr: open history db: %w", err)
	}
	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(historyBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("execmgr: create history bucket: %w", err)
	}
	return &BoltHistoryStore{db: db}, nil
}

// Close closes the underlying database.
func (s *BoltHistoryStore) Close() error {
	return s.db.Close()
}

func (s *BoltHistoryStore) Append(key, cmdText string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(historyBucket)
		history, err := readHistory(bucket, key)
		if err != nil {
			return err
		}
		history = append(history, cmdText)
		data, err := json.Marshal(history)
		if err != nil {
			return fmt.Errorf("execmgr: marshal history: %w", err)
		}
		return bucket.Put([]byte(key), data)
	})
}

func (s *BoltHistoryStore) Item(key string, index int) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var item string
	err := s.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(historyBucket)
		history, err := readHistory(bucket, key)
		if err != nil {
			return err
		}
		if index < 1 || index > len(history) {
			return ErrNoHistoryItem
		}
		item = history[len(history)-index]
		return nil
	})
	return item, err
}

func readHistory(bucket *bbolt.Bucket, key string) ([]string, error) {
	data := bucket.Get([]byte(key))
	if data == nil {
		return nil, nil
	}
	var history []string
	if err := json.Unmarshal(data, &history); err != nil {
		return nil, fmt.Errorf("execmgr: unmarshal history: %w", err)
	}
	return history, nil
}
