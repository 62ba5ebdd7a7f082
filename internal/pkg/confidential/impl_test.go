package confidential_test

import (
	"context"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vreid/duelist/internal/pkg/confidential"
	"github.com/vreid/duelist/internal/pkg/keymanager"
	"github.com/vreid/duelist/internal/pkg/state"
)

func newDecryptor(t *testing.T) (*confidential.DecryptorService, *keymanager.KeyManagerService) {
	t.Helper()

	keyManager := &keymanager.KeyManagerService{Store: state.NewMemoryStore()}
	require.NoError(t, keyManager.Initialize(context.Background(), common.HexToAddress("0x01")))

	return &confidential.DecryptorService{Keys: keyManager}, keyManager
}

func TestRoundTripThroughDecryptor(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	decryptor, keyManager := newDecryptor(t)

	key, err := keyManager.SymmetricKey(ctx)
	require.NoError(t, err)

	for _, payload := range [][]byte{
		{0, 1, 2, 1, 0},
		{4, 4, 4, 4, 4},
		{},
	} {
		ciphertext, err := confidential.Encrypt(payload, key)
		require.NoError(t, err)
		assert.Len(t, ciphertext, len(payload)+confidential.TagSize+confidential.IVSize)

		plaintext, err := decryptor.Decrypt(ctx, ciphertext)
		require.NoError(t, err)
		assert.Equal(t, payload, plaintext)
	}
}

func TestIVIsAppended(t *testing.T) {
	t.Parallel()

	key := make([]byte, 32)
	iv := []byte{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12}

	ciphertext, err := confidential.EncryptWithIV([]byte{1, 2, 3}, key, iv)
	require.NoError(t, err)
	assert.Equal(t, iv, ciphertext[len(ciphertext)-confidential.IVSize:])

	plaintext, err := confidential.Decrypt(ciphertext, key)
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3}, plaintext)
}

func TestTamperedCiphertext(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	decryptor, keyManager := newDecryptor(t)

	key, err := keyManager.SymmetricKey(ctx)
	require.NoError(t, err)

	ciphertext, err := confidential.Encrypt([]byte{0, 1, 2, 1, 0}, key)
	require.NoError(t, err)

	ciphertext[0] ^= 0xFF

	_, err = decryptor.Decrypt(ctx, ciphertext)
	require.ErrorIs(t, err, confidential.ErrDecryptionFailure)
}

func TestShortCiphertext(t *testing.T) {
	t.Parallel()

	_, err := confidential.Decrypt(make([]byte, 27), make([]byte, 32))
	require.ErrorIs(t, err, confidential.ErrDecryptionFailure)
}

func TestRotatedKeyFailsToDecrypt(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	decryptor, keyManager := newDecryptor(t)

	key, err := keyManager.SymmetricKey(ctx)
	require.NoError(t, err)

	ciphertext, err := confidential.Encrypt([]byte{1, 1, 1, 1, 1}, key)
	require.NoError(t, err)

	require.NoError(t, keyManager.Initialize(ctx, common.HexToAddress("0x01")))

	_, err = decryptor.Decrypt(ctx, ciphertext)
	require.ErrorIs(t, err, confidential.ErrDecryptionFailure)
}

func TestDecryptWithoutKey(t *testing.T) {
	t.Parallel()

	decryptor := &confidential.DecryptorService{
		Keys: &keymanager.KeyManagerService{Store: state.NewMemoryStore()},
	}

	_, err := decryptor.Decrypt(context.Background(), make([]byte, 40))
	require.ErrorIs(t, err, keymanager.ErrUninitializedState)
}
