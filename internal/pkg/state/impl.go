package state

import (
	"fmt"

	"github.com/samber/do/v2"
	"github.com/vreid/duelist/internal/pkg/common"
)

// NewStore selects the backend named by "state-backend". The bolt backend
// shares the service database file; the others own their connection.
func NewStore(i do.Injector) (Store, error) {
	backend := do.MustInvokeNamed[string](i, "state-backend")

	switch backend {
	case BackendMemory:
		return NewMemoryStore(), nil
	case BackendBolt:
		databaseService, err := do.Invoke[*common.DatabaseService](i)
		if err != nil {
			return nil, fmt.Errorf("failed to create database service: %w", err)
		}

		return NewBoltStore(databaseService), nil
	case BackendBadger:
		store, err := OpenBadgerStore(do.MustInvokeNamed[string](i, "data-dir"))
		if err != nil {
			return nil, err
		}

		return store, nil
	case BackendValkey:
		store, err := OpenValkeyStore(do.MustInvokeNamed[string](i, "valkey-addr"))
		if err != nil {
			return nil, err
		}

		return store, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownBackend, backend)
	}
}
