package settlement

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/vreid/duelist/internal/pkg/common"
	"go.etcd.io/bbolt"
)

var (
	ErrRecordNotFound      = errors.New("settlement record not found")
	ErrLedgerBucketMissing = errors.New("settlement bucket doesn't exist")
)

type Ledger interface {
	Put(ctx context.Context, record *Record) error
	Get(ctx context.Context, id string) (*Record, error)
	// List returns up to limit records, newest first.
	List(ctx context.Context, limit int) ([]Record, error)
}

type BoltLedger struct {
	DatabaseService *common.DatabaseService
}

func NewBoltLedger(databaseService *common.DatabaseService) *BoltLedger {
	return &BoltLedger{
		DatabaseService: databaseService,
	}
}

func (l *BoltLedger) Put(_ context.Context, record *Record) error {
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal settlement record: %w", err)
	}

	err = l.DatabaseService.DB.Update(func(tx *bbolt.Tx) error {
		records := tx.Bucket([]byte(common.SettlementsBucket))
		index := tx.Bucket([]byte(common.SettlementsIndexBucket))

		if records == nil || index == nil {
			return ErrLedgerBucketMissing
		}

		id := []byte(record.Effect.ID)

		if records.Get(id) == nil {
			seq, err := index.NextSequence()
			if err != nil {
				return fmt.Errorf("failed to allocate index sequence: %w", err)
			}

			err = index.Put(common.Uint64ToBytes(seq), id)
			if err != nil {
				return fmt.Errorf("failed to put index entry: %w", err)
			}
		}

		return records.Put(id, data)
	})
	if err != nil {
		return fmt.Errorf("failed to store settlement %s: %w", record.Effect.ID, err)
	}

	return nil
}

func (l *BoltLedger) Get(_ context.Context, id string) (*Record, error) {
	var record Record

	err := l.DatabaseService.DB.View(func(tx *bbolt.Tx) error {
		records := tx.Bucket([]byte(common.SettlementsBucket))
		if records == nil {
			return ErrLedgerBucketMissing
		}

		data := records.Get([]byte(id))
		if data == nil {
			return ErrRecordNotFound
		}

		return json.Unmarshal(data, &record)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get settlement %s: %w", id, err)
	}

	return &record, nil
}

func (l *BoltLedger) List(_ context.Context, limit int) ([]Record, error) {
	result := make([]Record, 0, limit)

	err := l.DatabaseService.DB.View(func(tx *bbolt.Tx) error {
		records := tx.Bucket([]byte(common.SettlementsBucket))
		index := tx.Bucket([]byte(common.SettlementsIndexBucket))

		if records == nil || index == nil {
			return ErrLedgerBucketMissing
		}

		cursor := index.Cursor()
		for _, id := cursor.Last(); id != nil && len(result) < limit; _, id = cursor.Prev() {
			data := records.Get(id)
			if data == nil {
				continue
			}

			var record Record

			err := json.Unmarshal(data, &record)
			if err != nil {
				return fmt.Errorf("failed to unmarshal settlement %s: %w", id, err)
			}

			result = append(result, record)
		}

		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list settlements: %w", err)
	}

	return result, nil
}
