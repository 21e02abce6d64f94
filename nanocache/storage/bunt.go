package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/tidwall/buntdb"
)

// BuntStore keeps blobs in a buntdb database. An empty path or ":memory:"
// gives a purely in-memory database.
type BuntStore struct {
	db *buntdb.DB
}

// NewBuntStore opens the buntdb file at path
func NewBuntStore(path string) (*BuntStore, error) {
	if path == "" {
		path = ":memory:"
	}
	db, err := buntdb.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open buntdb: %w", err)
	}
	return &BuntStore{db: db}, nil
}

// Get implements KV.Get
func (s *BuntStore) Get(_ context.Context, key string) (value []byte, ok bool, err error) {
	err = s.db.View(func(tx *buntdb.Tx) error {
		val, err := tx.Get(key)
		if errors.Is(err, buntdb.ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		value, ok = []byte(val), true
		return nil
	})
	if err != nil {
		return nil, false, fmt.Errorf("failed to read %q: %w", key, err)
	}
	return value, ok, nil
}

// Set implements KV.Set
func (s *BuntStore) Set(_ context.Context, key string, value []byte) error {
	err := s.db.Update(func(tx *buntdb.Tx) error {
		_, _, err := tx.Set(key, string(value), nil)
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to write %q: %w", key, err)
	}
	return nil
}

// Delete implements KV.Delete
func (s *BuntStore) Delete(_ context.Context, key string) error {
	err := s.db.Update(func(tx *buntdb.Tx) error {
		_, err := tx.Delete(key)
		if errors.Is(err, buntdb.ErrNotFound) {
			return nil
		}
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to delete %q: %w", key, err)
	}
	return nil
}

// Close implements KV.Close
func (s *BuntStore) Close() error {
	return s.db.Close()
}
