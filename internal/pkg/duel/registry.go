package duel

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/vreid/duelist/internal/pkg/state"
)

const OwnerKeyPrefix = "wizard_owner:"

// OwnerRegistry maps wizard ids to the address allowed to sign their moves.
type OwnerRegistry interface {
	Owner(ctx context.Context, wizard *big.Int) (common.Address, error)
}

type StoreOwnerRegistry struct {
	Store state.Store
}

func OwnerKey(wizard *big.Int) string {
	return OwnerKeyPrefix + hexutil.EncodeBig(wizard)
}

func (r *StoreOwnerRegistry) Owner(ctx context.Context, wizard *big.Int) (common.Address, error) {
	if wizard == nil {
		return common.Address{}, fmt.Errorf("%w: wizard", ErrMissingField)
	}

	value, err := r.Store.Get(ctx, OwnerKey(wizard))
	if errors.Is(err, state.ErrNotFound) {
		return common.Address{}, fmt.Errorf("%w: %s", ErrUnknownWizard, wizard)
	}

	if err != nil {
		return common.Address{}, fmt.Errorf("failed to read owner of wizard %s: %w", wizard, err)
	}

	if len(value) != common.AddressLength {
		return common.Address{}, fmt.Errorf("malformed owner entry for wizard %s", wizard)
	}

	return common.BytesToAddress(value), nil
}

func (r *StoreOwnerRegistry) SetOwner(ctx context.Context, wizard *big.Int, owner common.Address) error {
	if wizard == nil || wizard.Sign() < 0 {
		return fmt.Errorf("%w: wizard", ErrMissingField)
	}

	err := r.Store.Put(ctx, OwnerKey(wizard), owner.Bytes())
	if err != nil {
		return fmt.Errorf("failed to store owner of wizard %s: %w", wizard, err)
	}

	return nil
}
