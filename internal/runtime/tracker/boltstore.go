package tracker

import (
	"context"
	"fmt"

	bolt "go.etcd.io/bbolt"
)

// bucketName is the single bbolt bucket tracker documents live in; the
// document key already carries the full path convention, so no further
// namespacing inside the bucket is needed.
var bucketName = []byte("aws-orchestrate-tracker")

// BoltStore is the local/offline Tracker store, used outside a deployed
// stage where no S3 bucket is configured (integration tests, local
// development against LocalStack-less setups).
type BoltStore struct {
	db *bolt.DB
}

// NewBoltStore opens (creating if absent) a bbolt database at path and
// ensures the tracker bucket exists.
func NewBoltStore(path string) (*BoltStore, error) {
	db, err := bolt.Open(path, 0o600, nil)
	if err != nil {
		return nil, fmt.Errorf("tracker: open bolt store %q: %w", path, err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketName)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("tracker: create bucket: %w", err)
	}

	return &BoltStore{db: db}, nil
}

// Put writes status under DocumentPath(stage, correlationID), overwriting
// any previous value.
func (s *BoltStore) Put(ctx context.Context, stage, correlationID string, status Status) error {
	body, err := encodeStatus(status)
	if err != nil {
		return fmt.Errorf("tracker: encode status: %w", err)
	}

	key := []byte(DocumentPath(stage, correlationID))
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketName).Put(key, body)
	})
}

// Get returns the raw document written at DocumentPath(stage,
// correlationID), or nil if nothing has been written yet. Used by tests
// and local inspection tooling; the protocol itself is write-only.
func (s *BoltStore) Get(stage, correlationID string) ([]byte, error) {
	var value []byte
	err := s.db.View(func(tx *bolt.Tx) error {
		raw := tx.Bucket(bucketName).Get([]byte(DocumentPath(stage, correlationID)))
		if raw != nil {
			value = append([]byte(nil), raw...)
		}
		return nil
	})
	return value, err
}

// Close releases the underlying bbolt file handle.
func (s *BoltStore) Close() error {
	return s.db.Close()
}
