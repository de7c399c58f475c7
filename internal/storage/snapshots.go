package storage

import (
	"encoding/json"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"
)

// SnapshotStore holds saved cluster results keyed by opaque snapshot id. The
// blobs can be large, so they live in their own bbolt file next to the
// relational store, which keeps only the metadata rows.
type SnapshotStore struct {
	db *bolt.DB
}

var snapshotBucket = []byte("snapshots")

// OpenSnapshots opens (or creates) the snapshot store at path.
func OpenSnapshots(path string) (*SnapshotStore, error) {
	db, err := bolt.Open(path, 0644, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open snapshot store: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(snapshotBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("init snapshot bucket: %w", err)
	}

	return &SnapshotStore{db: db}, nil
}

// Close closes the snapshot store.
func (s *SnapshotStore) Close() error {
	return s.db.Close()
}

// Save stores a JSON-encodable result under id.
func (s *SnapshotStore) Save(id string, result interface{}) error {
	data, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("marshal snapshot %s: %w", id, err)
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(snapshotBucket).Put([]byte(id), data)
	})
}

// Load decodes the snapshot stored under id into out. Returns ErrNotFound
// when the id is unknown.
func (s *SnapshotStore) Load(id string, out interface{}) error {
	var data []byte
	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(snapshotBucket).Get([]byte(id))
		if v == nil {
			return ErrNotFound
		}
		data = append([]byte(nil), v...)
		return nil
	})
	if err != nil {
		return err
	}
	return json.Unmarshal(data, out)
}

// Delete removes the snapshot stored under id. Unknown ids are a no-op.
func (s *SnapshotStore) Delete(id string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(snapshotBucket).Delete([]byte(id))
	})
}
