package keymanager_test

import (
	"context"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vreid/duelist/internal/pkg/keymanager"
	"github.com/vreid/duelist/internal/pkg/state"
)

var settlementAddress = common.HexToAddress("0x5b9b42d6e4B2e4Bf8d42Eba32D46918e10899B66")

func newKeyManager() *keymanager.KeyManagerService {
	return &keymanager.KeyManagerService{
		Store: state.NewMemoryStore(),
	}
}

func TestUninitialized(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	keyManager := newKeyManager()

	_, err := keyManager.PublicKey(ctx)
	require.ErrorIs(t, err, keymanager.ErrUninitializedState)

	_, err = keyManager.SettlementAddress(ctx)
	require.ErrorIs(t, err, keymanager.ErrUninitializedState)

	initialized, err := keyManager.Initialized(ctx)
	require.NoError(t, err)
	assert.False(t, initialized)
}

func TestInitializeStoresAddressAsHex(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	keyManager := newKeyManager()

	require.NoError(t, keyManager.Initialize(ctx, settlementAddress))

	raw, err := keyManager.Store.Get(ctx, keymanager.SettlementAddressKey)
	require.NoError(t, err)
	assert.Equal(t, "5b9b42d6e4b2e4bf8d42eba32d46918e10899b66", string(raw))

	address, err := keyManager.SettlementAddress(ctx)
	require.NoError(t, err)
	assert.Equal(t, settlementAddress, address)

	initialized, err := keyManager.Initialized(ctx)
	require.NoError(t, err)
	assert.True(t, initialized)
}

func TestPublicKeyIsDeterministic(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	keyManager := newKeyManager()

	require.NoError(t, keyManager.Initialize(ctx, settlementAddress))

	first, err := keyManager.PublicKey(ctx)
	require.NoError(t, err)
	assert.Len(t, first, 64)

	second, err := keyManager.PublicKey(ctx)
	require.NoError(t, err)
	assert.Equal(t, first, second)

	keyPair, err := keyManager.KeyPair(ctx)
	require.NoError(t, err)
	assert.Equal(t, crypto.FromECDSAPub(&keyPair.PublicKey)[1:], first)
}

func TestInitializeTwiceRotatesKey(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	keyManager := newKeyManager()

	require.NoError(t, keyManager.Initialize(ctx, settlementAddress))

	before, err := keyManager.PublicKey(ctx)
	require.NoError(t, err)

	require.NoError(t, keyManager.Initialize(ctx, settlementAddress))

	after, err := keyManager.PublicKey(ctx)
	require.NoError(t, err)
	assert.NotEqual(t, before, after)
}

func TestInvalidStoredKey(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	keyManager := newKeyManager()

	require.NoError(t, keyManager.Store.Put(ctx, keymanager.EncryptionKeyKey, []byte{1, 2, 3}))

	_, err := keyManager.PublicKey(ctx)
	require.ErrorIs(t, err, keymanager.ErrInvalidKey)
}
