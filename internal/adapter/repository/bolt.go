package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/boltdb/bolt"
)

const collectionsBucket = "collections"

// BoltStore is the embedded default persistence backend: one bucket, one
// key per collection. Bolt gives each Set transactional whole-blob
// semantics for free.
type BoltStore struct {
	db *bolt.DB
}

func NewBoltStore(path string) (*BoltStore, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(collectionsBucket))
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create collections bucket: %w", err)
	}

	return &BoltStore{db: db}, nil
}

func (s *BoltStore) Get(_ context.Context, collection string) ([]byte, error) {
	var data []byte
	err := s.db.View(func(tx *bolt.Tx) error {
		if stored := tx.Bucket([]byte(collectionsBucket)).Get([]byte(collection)); stored != nil {
			data = make([]byte, len(stored))
			copy(data, stored)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read collection %s: %w", collection, err)
	}
	return data, nil
}

func (s *BoltStore) Set(_ context.Context, collection string, data []byte) error {
	err := s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(collectionsBucket)).Put([]byte(collection), data)
	})
	if err != nil {
		return fmt.Errorf("failed to write collection %s: %w", collection, err)
	}
	return nil
}

func (s *BoltStore) Close() error {
	return s.db.Close()
}
