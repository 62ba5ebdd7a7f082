// Package duel exposes the three settlement entry points: plaintext,
// encrypted, and encrypted plus signed move sets. Each returns a
// settlement.ResolveDuel effect instead of calling the ledger itself.
package duel

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/rs/zerolog/log"
	"github.com/samber/do/v2"
	duelcommon "github.com/vreid/duelist/internal/pkg/common"
	"github.com/vreid/duelist/internal/pkg/confidential"
	"github.com/vreid/duelist/internal/pkg/keymanager"
	"github.com/vreid/duelist/internal/pkg/scorer"
	"github.com/vreid/duelist/internal/pkg/settlement"
	"github.com/vreid/duelist/internal/pkg/signature"
	"github.com/vreid/duelist/internal/pkg/state"
)

const (
	AffinityArity = 2
	MaxValidMove  = 2
)

var (
	ErrAffinityArity      = errors.New("affinities need two values")
	ErrInvalidMove        = errors.New("move value out of range")
	ErrMissingField       = errors.New("missing field")
	ErrUnknownWizard      = errors.New("wizard has no registered owner")
	ErrUnauthorizedSigner = errors.New("signer does not own wizard")
)

type KeyManager interface {
	PublicKey(ctx context.Context) ([]byte, error)
	SettlementAddress(ctx context.Context) (common.Address, error)
}

type Decryptor interface {
	Decrypt(ctx context.Context, ciphertext []byte) ([]byte, error)
}

type DuelService struct {
	Keys      KeyManager
	Decryptor Decryptor
	Owners    OwnerRegistry

	ValidateMoves bool
	EnforceOwners bool

	SettlementSink chan<- settlement.ResolveDuel
}

func NewDuelService(i do.Injector) (*DuelService, error) {
	keyManager := do.MustInvoke[*keymanager.KeyManagerService](i)
	decryptor := do.MustInvoke[*confidential.DecryptorService](i)
	store := do.MustInvoke[state.Store](i)
	settlementSink := do.MustInvokeNamed[chan<- settlement.ResolveDuel](i, "settlement-sink")

	validateMoves := do.MustInvokeNamed[bool](i, "validate-moves")
	enforceOwners := do.MustInvokeNamed[bool](i, "enforce-owners")

	result := &DuelService{
		Keys:      keyManager,
		Decryptor: decryptor,
		Owners:    &StoreOwnerRegistry{Store: store},

		ValidateMoves: validateMoves,
		EnforceOwners: enforceOwners,

		SettlementSink: settlementSink,
	}

	echoService, err := do.Invoke[*duelcommon.EchoService](i)
	if err != nil {
		return nil, fmt.Errorf("failed to create echo service: %w", err)
	}

	echoService.Register(result.Routes)

	return result, nil
}

// ValidateMoveSet rejects values above MaxValidMove. Only applied when
// ValidateMoves is set.
func ValidateMoveSet(moves []byte) error {
	for n, move := range moves {
		if move > MaxValidMove {
			return fmt.Errorf("%w: %d at position %d", ErrInvalidMove, move, n)
		}
	}

	return nil
}

func (s *DuelService) PublicKey(ctx context.Context) ([]byte, error) {
	//nolint:wrapcheck
	return s.Keys.PublicKey(ctx)
}

func (s *DuelService) CommitToDuel(
	ctx context.Context,
	moves1, moves2 []byte,
	wizard1, wizard2 *big.Int,
	affinities []byte) (*settlement.ResolveDuel, error) {
	effect, err := s.settle(ctx, settlement.EntryPointCommit, moves1, moves2, wizard1, wizard2, affinities)
	observe(settlement.EntryPointCommit, err)

	return effect, err
}

func (s *DuelService) CommitToDuelDecrypt(
	ctx context.Context,
	encMoves1, encMoves2 []byte,
	wizard1, wizard2 *big.Int,
	affinities []byte) (*settlement.ResolveDuel, error) {
	effect, err := s.commitDecrypt(ctx, encMoves1, encMoves2, wizard1, wizard2, affinities)
	observe(settlement.EntryPointCommitDecrypt, err)

	return effect, err
}

func (s *DuelService) CommitToDuelDecryptAndVerify(
	ctx context.Context,
	encMoves1, encMoves2 []byte,
	signature1, signature2 []byte,
	wizard1, wizard2 *big.Int,
	affinities []byte,
	nonce *big.Int) (*settlement.ResolveDuel, error) {
	effect, err := s.commitDecryptAndVerify(ctx, encMoves1, encMoves2, signature1, signature2, wizard1, wizard2, affinities, nonce)
	observe(settlement.EntryPointCommitDecryptVerify, err)

	return effect, err
}

func (s *DuelService) commitDecrypt(
	ctx context.Context,
	encMoves1, encMoves2 []byte,
	wizard1, wizard2 *big.Int,
	affinities []byte) (*settlement.ResolveDuel, error) {
	moves1, moves2, err := s.decryptPair(ctx, encMoves1, encMoves2)
	if err != nil {
		return nil, err
	}

	return s.settle(ctx, settlement.EntryPointCommitDecrypt, moves1, moves2, wizard1, wizard2, affinities)
}

//nolint:funlen
func (s *DuelService) commitDecryptAndVerify(
	ctx context.Context,
	encMoves1, encMoves2 []byte,
	signature1, signature2 []byte,
	wizard1, wizard2 *big.Int,
	affinities []byte,
	nonce *big.Int) (*settlement.ResolveDuel, error) {
	if nonce == nil {
		return nil, fmt.Errorf("%w: nonce", ErrMissingField)
	}

	moves1, moves2, err := s.decryptPair(ctx, encMoves1, encMoves2)
	if err != nil {
		return nil, err
	}

	signer1, err := signature.VerifySignature(signature1, moves1, nonce)
	if err != nil {
		return nil, fmt.Errorf("player 1: %w", err)
	}

	signer2, err := signature.VerifySignature(signature2, moves2, nonce)
	if err != nil {
		return nil, fmt.Errorf("player 2: %w", err)
	}

	if s.EnforceOwners {
		err = s.checkOwner(ctx, wizard1, signer1)
		if err != nil {
			return nil, err
		}

		err = s.checkOwner(ctx, wizard2, signer2)
		if err != nil {
			return nil, err
		}
	}

	effect, err := s.settle(ctx, settlement.EntryPointCommitDecryptVerify, moves1, moves2, wizard1, wizard2, affinities)
	if err != nil {
		return nil, err
	}

	effect.Signers = []common.Address{signer1, signer2}
	effect.Nonce = (*math.HexOrDecimal256)(new(big.Int).Set(nonce))

	return effect, nil
}

func (s *DuelService) decryptPair(ctx context.Context, encMoves1, encMoves2 []byte) ([]byte, []byte, error) {
	moves1, err := s.Decryptor.Decrypt(ctx, encMoves1)
	if err != nil {
		return nil, nil, fmt.Errorf("player 1: %w", err)
	}

	moves2, err := s.Decryptor.Decrypt(ctx, encMoves2)
	if err != nil {
		return nil, nil, fmt.Errorf("player 2: %w", err)
	}

	return moves1, moves2, nil
}

func (s *DuelService) checkOwner(ctx context.Context, wizard *big.Int, signer common.Address) error {
	if s.Owners == nil {
		return fmt.Errorf("%w: no owner registry", ErrUnknownWizard)
	}

	owner, err := s.Owners.Owner(ctx, wizard)
	if err != nil {
		//nolint:wrapcheck
		return err
	}

	if owner != signer {
		return fmt.Errorf("%w: wizard %s is owned by %s, signed by %s", ErrUnauthorizedSigner, wizard, owner.Hex(), signer.Hex())
	}

	return nil
}

func (s *DuelService) settle(
	ctx context.Context,
	entryPoint settlement.EntryPoint,
	moves1, moves2 []byte,
	wizard1, wizard2 *big.Int,
	affinities []byte) (*settlement.ResolveDuel, error) {
	if len(affinities) < AffinityArity {
		return nil, fmt.Errorf("%w: got %d", ErrAffinityArity, len(affinities))
	}

	if wizard1 == nil || wizard2 == nil {
		return nil, fmt.Errorf("%w: wizard1 and wizard2", ErrMissingField)
	}

	if s.ValidateMoves {
		for _, moves := range [][]byte{moves1, moves2} {
			err := ValidateMoveSet(moves)
			if err != nil {
				return nil, err
			}
		}
	}

	score, err := scorer.ComputeScore(moves1, moves2, affinities[0], affinities[1])
	if err != nil {
		return nil, fmt.Errorf("failed to compute score: %w", err)
	}

	contract, err := s.Keys.SettlementAddress(ctx)
	if err != nil {
		//nolint:wrapcheck
		return nil, err
	}

	effect, err := settlement.NewResolveDuel(entryPoint, contract, score.Magnitude(), score.Negative(), wizard1, wizard2)
	if err != nil {
		return nil, fmt.Errorf("failed to build settlement: %w", err)
	}

	duelcommon.ScoreMagnitude.Observe(float64(score.Magnitude().Int64()))

	log.Debug().
		Str("id", effect.ID).
		Str("entry_point", string(entryPoint)).
		Str("wizard1", wizard1.String()).
		Str("wizard2", wizard2.String()).
		Bool("negative", effect.Negative).
		Msg("duel scored")

	return effect, nil
}

func observe(entryPoint settlement.EntryPoint, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}

	duelcommon.CommitsTotal.WithLabelValues(string(entryPoint), result).Inc()
}
