package duel_test

import (
	"context"
	"crypto/ecdsa"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vreid/duelist/internal/pkg/confidential"
	"github.com/vreid/duelist/internal/pkg/duel"
	"github.com/vreid/duelist/internal/pkg/keymanager"
	"github.com/vreid/duelist/internal/pkg/scorer"
	"github.com/vreid/duelist/internal/pkg/settlement"
	"github.com/vreid/duelist/internal/pkg/signature"
	"github.com/vreid/duelist/internal/pkg/state"
)

var settlementAddress = common.HexToAddress("0x5b9b42d6e4B2e4Bf8d42Eba32D46918e10899B66")

type fixture struct {
	service    *duel.DuelService
	keyManager *keymanager.KeyManagerService
	owners     *duel.StoreOwnerRegistry
	key        []byte
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	ctx := context.Background()
	store := state.NewMemoryStore()
	keyManager := &keymanager.KeyManagerService{Store: store}

	require.NoError(t, keyManager.Initialize(ctx, settlementAddress))

	key, err := keyManager.SymmetricKey(ctx)
	require.NoError(t, err)

	owners := &duel.StoreOwnerRegistry{Store: store}

	return &fixture{
		service: &duel.DuelService{
			Keys:      keyManager,
			Decryptor: &confidential.DecryptorService{Keys: keyManager},
			Owners:    owners,
		},
		keyManager: keyManager,
		owners:     owners,
		key:        key,
	}
}

func (f *fixture) encrypt(t *testing.T, moves []byte) []byte {
	t.Helper()

	ciphertext, err := confidential.Encrypt(moves, f.key)
	require.NoError(t, err)

	return ciphertext
}

func sign(t *testing.T, key *ecdsa.PrivateKey, moves []byte, nonce *big.Int) []byte {
	t.Helper()

	sig, err := signature.Sign(key, moves, nonce)
	require.NoError(t, err)

	return sig
}

func TestCommitToDuel(t *testing.T) {
	t.Parallel()

	f := newFixture(t)

	effect, err := f.service.CommitToDuel(context.Background(),
		[]byte{2, 0, 0, 0, 0},
		[]byte{0, 0, 0, 0, 0},
		big.NewInt(11),
		big.NewInt(22),
		[]byte{9, 9})
	require.NoError(t, err)

	assert.Equal(t, settlement.EntryPointCommit, effect.EntryPoint)
	assert.Equal(t, settlementAddress, effect.Contract)
	assert.Equal(t, big.NewInt(78), (*big.Int)(effect.Score))
	assert.True(t, effect.Negative)
	assert.Equal(t, big.NewInt(11), (*big.Int)(effect.Wizard1))
	assert.Equal(t, big.NewInt(22), (*big.Int)(effect.Wizard2))
	assert.Empty(t, effect.Signers)
	assert.NotEmpty(t, effect.ID)
}

func TestCommitToDuelPositiveScore(t *testing.T) {
	t.Parallel()

	f := newFixture(t)

	effect, err := f.service.CommitToDuel(context.Background(),
		[]byte{1, 0, 0, 0, 0},
		[]byte{3, 0, 0, 0, 0},
		big.NewInt(1),
		big.NewInt(2),
		[]byte{3, 9})
	require.NoError(t, err)

	assert.Equal(t, big.NewInt(78), (*big.Int)(effect.Score))
	assert.False(t, effect.Negative)
}

func TestCommitToDuelErrors(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f := newFixture(t)

	_, err := f.service.CommitToDuel(ctx, []byte{0, 1}, []byte{0, 1}, big.NewInt(1), big.NewInt(2), []byte{1})
	require.ErrorIs(t, err, duel.ErrAffinityArity)

	_, err = f.service.CommitToDuel(ctx, []byte{0, 1, 2}, []byte{0, 1}, big.NewInt(1), big.NewInt(2), []byte{1, 2})
	require.ErrorIs(t, err, scorer.ErrMoveSetLengthMismatch)

	_, err = f.service.CommitToDuel(ctx, make([]byte, 6), make([]byte, 6), big.NewInt(1), big.NewInt(2), []byte{1, 2})
	require.ErrorIs(t, err, scorer.ErrWeightTableOverflow)

	_, err = f.service.CommitToDuel(ctx, []byte{0}, []byte{0}, nil, big.NewInt(2), []byte{1, 2})
	require.ErrorIs(t, err, duel.ErrMissingField)
}

func TestCommitToDuelExtraAffinitiesIgnored(t *testing.T) {
	t.Parallel()

	f := newFixture(t)

	effect, err := f.service.CommitToDuel(context.Background(),
		[]byte{3, 0, 0, 0, 0},
		[]byte{1, 0, 0, 0, 0},
		big.NewInt(1),
		big.NewInt(2),
		[]byte{3, 9, 0, 1})
	require.NoError(t, err)
	assert.Equal(t, big.NewInt(101), (*big.Int)(effect.Score))
}

func TestValidateMoves(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f := newFixture(t)

	require.NoError(t, duel.ValidateMoveSet([]byte{0, 1, 2, 2, 0}))
	require.ErrorIs(t, duel.ValidateMoveSet([]byte{0, 3}), duel.ErrInvalidMove)

	moves := []byte{4, 0, 0, 0, 0}

	_, err := f.service.CommitToDuel(ctx, moves, moves, big.NewInt(1), big.NewInt(2), []byte{0, 1})
	require.NoError(t, err)

	f.service.ValidateMoves = true

	_, err = f.service.CommitToDuel(ctx, moves, moves, big.NewInt(1), big.NewInt(2), []byte{0, 1})
	require.ErrorIs(t, err, duel.ErrInvalidMove)
}

func TestUninitializedSettlementAddress(t *testing.T) {
	t.Parallel()

	keyManager := &keymanager.KeyManagerService{Store: state.NewMemoryStore()}
	service := &duel.DuelService{
		Keys:      keyManager,
		Decryptor: &confidential.DecryptorService{Keys: keyManager},
	}

	_, err := service.CommitToDuel(context.Background(), []byte{0}, []byte{1}, big.NewInt(1), big.NewInt(2), []byte{0, 1})
	require.ErrorIs(t, err, keymanager.ErrUninitializedState)

	_, err = service.PublicKey(context.Background())
	require.ErrorIs(t, err, keymanager.ErrUninitializedState)
}

func TestCommitToDuelDecrypt(t *testing.T) {
	t.Parallel()

	f := newFixture(t)

	effect, err := f.service.CommitToDuelDecrypt(context.Background(),
		f.encrypt(t, []byte{3, 0, 0, 0, 0}),
		f.encrypt(t, []byte{1, 0, 0, 0, 0}),
		big.NewInt(1),
		big.NewInt(2),
		[]byte{3, 9})
	require.NoError(t, err)

	assert.Equal(t, settlement.EntryPointCommitDecrypt, effect.EntryPoint)
	assert.Equal(t, big.NewInt(101), (*big.Int)(effect.Score))
	assert.True(t, effect.Negative)
}

func TestCommitToDuelDecryptFailure(t *testing.T) {
	t.Parallel()

	f := newFixture(t)

	bad := f.encrypt(t, []byte{0, 0, 0, 0, 0})
	bad[0] ^= 0x01

	_, err := f.service.CommitToDuelDecrypt(context.Background(),
		f.encrypt(t, []byte{0, 0, 0, 0, 0}),
		bad,
		big.NewInt(1),
		big.NewInt(2),
		[]byte{3, 9})
	require.ErrorIs(t, err, confidential.ErrDecryptionFailure)
}

func TestCommitToDuelDecryptAndVerify(t *testing.T) {
	t.Parallel()

	f := newFixture(t)

	player1, err := crypto.GenerateKey()
	require.NoError(t, err)

	player2, err := crypto.GenerateKey()
	require.NoError(t, err)

	moves1 := []byte{0, 1, 2, 1, 0}
	moves2 := []byte{2, 1, 0, 1, 2}
	nonce := big.NewInt(1234)

	effect, err := f.service.CommitToDuelDecryptAndVerify(context.Background(),
		f.encrypt(t, moves1),
		f.encrypt(t, moves2),
		sign(t, player1, moves1, nonce),
		sign(t, player2, moves2, nonce),
		big.NewInt(1),
		big.NewInt(2),
		[]byte{9, 9},
		nonce)
	require.NoError(t, err)

	expected, err := scorer.ComputeScore(moves1, moves2, 9, 9)
	require.NoError(t, err)

	assert.Equal(t, settlement.EntryPointCommitDecryptVerify, effect.EntryPoint)
	assert.Equal(t, expected.Magnitude(), (*big.Int)(effect.Score))
	assert.Equal(t, expected.Negative(), effect.Negative)
	assert.Equal(t, []common.Address{
		crypto.PubkeyToAddress(player1.PublicKey),
		crypto.PubkeyToAddress(player2.PublicKey),
	}, effect.Signers)
	assert.Equal(t, nonce, (*big.Int)(effect.Nonce))
}

func TestCommitToDuelDecryptAndVerifyRejectsBadSignature(t *testing.T) {
	t.Parallel()

	f := newFixture(t)

	player1, err := crypto.GenerateKey()
	require.NoError(t, err)

	moves := []byte{0, 1, 2, 1, 0}
	nonce := big.NewInt(1)

	_, err = f.service.CommitToDuelDecryptAndVerify(context.Background(),
		f.encrypt(t, moves),
		f.encrypt(t, moves),
		sign(t, player1, moves, nonce),
		make([]byte, 64),
		big.NewInt(1),
		big.NewInt(2),
		[]byte{9, 9},
		nonce)
	require.ErrorIs(t, err, signature.ErrInvalidSignature)

	_, err = f.service.CommitToDuelDecryptAndVerify(context.Background(),
		f.encrypt(t, moves),
		f.encrypt(t, moves),
		sign(t, player1, moves, nonce),
		sign(t, player1, moves, nonce),
		big.NewInt(1),
		big.NewInt(2),
		[]byte{9, 9},
		nil)
	require.ErrorIs(t, err, duel.ErrMissingField)
}

func TestEnforceOwners(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f := newFixture(t)
	f.service.EnforceOwners = true

	player1, err := crypto.GenerateKey()
	require.NoError(t, err)

	player2, err := crypto.GenerateKey()
	require.NoError(t, err)

	moves1 := []byte{0, 1, 2, 1, 0}
	moves2 := []byte{1, 1, 1, 1, 1}
	nonce := big.NewInt(99)
	wizard1 := big.NewInt(1)
	wizard2 := big.NewInt(2)

	commit := func() error {
		_, err := f.service.CommitToDuelDecryptAndVerify(ctx,
			f.encrypt(t, moves1),
			f.encrypt(t, moves2),
			sign(t, player1, moves1, nonce),
			sign(t, player2, moves2, nonce),
			wizard1,
			wizard2,
			[]byte{9, 9},
			nonce)

		return err
	}

	require.ErrorIs(t, commit(), duel.ErrUnknownWizard)

	require.NoError(t, f.owners.SetOwner(ctx, wizard1, crypto.PubkeyToAddress(player1.PublicKey)))
	require.NoError(t, f.owners.SetOwner(ctx, wizard2, crypto.PubkeyToAddress(player1.PublicKey)))

	require.ErrorIs(t, commit(), duel.ErrUnauthorizedSigner)

	require.NoError(t, f.owners.SetOwner(ctx, wizard2, crypto.PubkeyToAddress(player2.PublicKey)))

	require.NoError(t, commit())
}

func TestOwnerRegistry(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	registry := &duel.StoreOwnerRegistry{Store: state.NewMemoryStore()}
	owner := common.HexToAddress("0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266")

	_, err := registry.Owner(ctx, big.NewInt(5))
	require.ErrorIs(t, err, duel.ErrUnknownWizard)

	require.NoError(t, registry.SetOwner(ctx, big.NewInt(5), owner))

	stored, err := registry.Owner(ctx, big.NewInt(5))
	require.NoError(t, err)
	assert.Equal(t, owner, stored)
	assert.Equal(t, "wizard_owner:0x5", duel.OwnerKey(big.NewInt(5)))
}
