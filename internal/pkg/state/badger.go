package state

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"

	"github.com/dgraph-io/badger/v4"
)

type BadgerStore struct {
	DB *badger.DB
}

func OpenBadgerStore(dataDir string) (*BadgerStore, error) {
	dbPath := path.Join(dataDir, "state.badger")

	err := os.MkdirAll(dbPath, 0750)
	if err != nil {
		return nil, fmt.Errorf("failed to create badger path: %w", err)
	}

	opts := badger.DefaultOptions(dbPath).WithLogger(nil)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger: %w", err)
	}

	return &BadgerStore{DB: db}, nil
}

func (s *BadgerStore) Get(_ context.Context, key string) ([]byte, error) {
	var result []byte

	err := s.DB.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err //nolint:wrapcheck
		}

		result, err = item.ValueCopy(nil)

		return err //nolint:wrapcheck
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, fmt.Errorf("failed to get %s: %w", key, ErrNotFound)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to get %s: %w", key, err)
	}

	return result, nil
}

func (s *BadgerStore) Put(_ context.Context, key string, value []byte) error {
	err := s.DB.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), value)
	})
	if err != nil {
		return fmt.Errorf("failed to put %s: %w", key, err)
	}

	return nil
}

func (s *BadgerStore) Shutdown() error {
	//nolint:wrapcheck
	return s.DB.Close()
}
