package state

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"github.com/vreid/duelist/internal/pkg/common"
	"go.etcd.io/bbolt"
)

var ErrStateBucketNotFound = errors.New("state bucket doesn't exist")

type BoltStore struct {
	DatabaseService *common.DatabaseService
}

func NewBoltStore(databaseService *common.DatabaseService) *BoltStore {
	return &BoltStore{
		DatabaseService: databaseService,
	}
}

func (s *BoltStore) Get(_ context.Context, key string) ([]byte, error) {
	var result []byte

	err := s.DatabaseService.DB.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(common.StateBucket))
		if bucket == nil {
			return ErrStateBucketNotFound
		}

		value := bucket.Get([]byte(key))
		if value == nil {
			return ErrNotFound
		}

		// bolt values are only valid for the lifetime of the transaction
		result = bytes.Clone(value)

		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get %s: %w", key, err)
	}

	return result, nil
}

func (s *BoltStore) Put(_ context.Context, key string, value []byte) error {
	err := s.DatabaseService.DB.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(common.StateBucket))
		if bucket == nil {
			return ErrStateBucketNotFound
		}

		return bucket.Put([]byte(key), value)
	})
	if err != nil {
		return fmt.Errorf("failed to put %s: %w", key, err)
	}

	return nil
}
