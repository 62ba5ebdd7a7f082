package state

import (
	"context"
	"fmt"

	"github.com/valkey-io/valkey-go"
)

const valkeyKeyPrefix = "duelist:state:"

type ValkeyStore struct {
	Client valkey.Client
}

func OpenValkeyStore(addr string) (*ValkeyStore, error) {
	//nolint:exhaustruct
	client, err := valkey.NewClient(valkey.ClientOption{
		InitAddress: []string{addr},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to valkey at %s: %w", addr, err)
	}

	return &ValkeyStore{Client: client}, nil
}

func (s *ValkeyStore) Get(ctx context.Context, key string) ([]byte, error) {
	result, err := s.Client.Do(ctx, s.Client.B().Get().Key(valkeyKeyPrefix+key).Build()).AsBytes()
	if valkey.IsValkeyNil(err) {
		return nil, fmt.Errorf("failed to get %s: %w", key, ErrNotFound)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to get %s: %w", key, err)
	}

	return result, nil
}

func (s *ValkeyStore) Put(ctx context.Context, key string, value []byte) error {
	err := s.Client.Do(ctx, s.Client.B().Set().Key(valkeyKeyPrefix+key).Value(valkey.BinaryString(value)).Build()).Error()
	if err != nil {
		return fmt.Errorf("failed to put %s: %w", key, err)
	}

	return nil
}

func (s *ValkeyStore) Shutdown() error {
	s.Client.Close()

	return nil
}
