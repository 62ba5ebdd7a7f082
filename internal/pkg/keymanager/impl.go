// Package keymanager owns the contract's symmetric key and settlement
// address. The symmetric key doubles as the secp256k1 private scalar of the
// key pair whose public half is handed to clients.
package keymanager

import (
	"context"
	"crypto/ecdsa"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/rs/zerolog/log"
	"github.com/samber/do/v2"
	"github.com/vreid/duelist/internal/pkg/state"
)

const (
	SettlementAddressKey = "wizard_eth_addr"
	EncryptionKeyKey     = "encryption_key"

	SymmetricKeySize = 32
)

var (
	ErrUninitializedState = errors.New("uninitialized state")
	ErrInvalidKey         = errors.New("stored encryption key is invalid")
)

type KeyManagerService struct {
	Store state.Store
}

func NewKeyManagerService(i do.Injector) (*KeyManagerService, error) {
	store := do.MustInvoke[state.Store](i)

	return &KeyManagerService{
		Store: store,
	}, nil
}

// GenerateKey returns 32 random bytes that are also a valid secp256k1
// private scalar.
func GenerateKey() ([]byte, error) {
	key, err := crypto.GenerateKey()
	if err != nil {
		return nil, fmt.Errorf("failed to generate key: %w", err)
	}

	return crypto.FromECDSA(key), nil
}

// Initialize stores the settlement address and a fresh symmetric key.
// Calling it again rotates the key; ciphertexts produced under the previous
// public key stop decrypting.
func (s *KeyManagerService) Initialize(ctx context.Context, settlementAddress common.Address) error {
	err := s.Store.Put(ctx, SettlementAddressKey, []byte(hex.EncodeToString(settlementAddress.Bytes())))
	if err != nil {
		return fmt.Errorf("failed to store settlement address: %w", err)
	}

	key, err := GenerateKey()
	if err != nil {
		return err
	}

	err = s.Store.Put(ctx, EncryptionKeyKey, key)
	if err != nil {
		return fmt.Errorf("failed to store encryption key: %w", err)
	}

	log.Info().Str("settlement_address", settlementAddress.Hex()).Msg("contract state initialized")

	return nil
}

func (s *KeyManagerService) Initialized(ctx context.Context) (bool, error) {
	_, err := s.SymmetricKey(ctx)
	if errors.Is(err, ErrUninitializedState) {
		return false, nil
	}

	if err != nil {
		return false, err
	}

	return true, nil
}

func (s *KeyManagerService) SymmetricKey(ctx context.Context) ([]byte, error) {
	key, err := s.Store.Get(ctx, EncryptionKeyKey)
	if errors.Is(err, state.ErrNotFound) {
		return nil, fmt.Errorf("%w: no encryption key", ErrUninitializedState)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to read encryption key: %w", err)
	}

	if len(key) != SymmetricKeySize {
		return nil, fmt.Errorf("%w: length %d", ErrInvalidKey, len(key))
	}

	return key, nil
}

func (s *KeyManagerService) KeyPair(ctx context.Context) (*ecdsa.PrivateKey, error) {
	key, err := s.SymmetricKey(ctx)
	if err != nil {
		return nil, err
	}

	keyPair, err := crypto.ToECDSA(key)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidKey, err)
	}

	return keyPair, nil
}

// PublicKey returns the 64-byte uncompressed public key without the 0x04
// prefix.
func (s *KeyManagerService) PublicKey(ctx context.Context) ([]byte, error) {
	keyPair, err := s.KeyPair(ctx)
	if err != nil {
		return nil, err
	}

	return crypto.FromECDSAPub(&keyPair.PublicKey)[1:], nil
}

func (s *KeyManagerService) SettlementAddress(ctx context.Context) (common.Address, error) {
	value, err := s.Store.Get(ctx, SettlementAddressKey)
	if errors.Is(err, state.ErrNotFound) {
		return common.Address{}, fmt.Errorf("%w: no settlement address", ErrUninitializedState)
	}

	if err != nil {
		return common.Address{}, fmt.Errorf("failed to read settlement address: %w", err)
	}

	raw, err := hex.DecodeString(string(value))
	if err != nil || len(raw) != common.AddressLength {
		return common.Address{}, fmt.Errorf("%w: malformed settlement address %q", ErrUninitializedState, value)
	}

	return common.BytesToAddress(raw), nil
}
