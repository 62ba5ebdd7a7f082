// Package signature recovers the address that signed a move set. Clients
// sign Keccak256(moves || nonce) with the Ethereum personal-message scheme,
// so any wallet can produce a compatible signature.
package signature

import (
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

const (
	SignatureLength = crypto.SignatureLength
	recoveryIDIndex = crypto.RecoveryIDOffset

	// wallets add 27 to the recovery id
	walletRecoveryOffset = 27
)

var ErrInvalidSignature = errors.New("invalid signature")

// CanonicalMessage is message || big_endian_32(nonce).
func CanonicalMessage(message []byte, nonce *big.Int) ([]byte, error) {
	if nonce == nil || nonce.Sign() < 0 || nonce.BitLen() > 256 {
		return nil, fmt.Errorf("%w: nonce out of uint256 range", ErrInvalidSignature)
	}

	result := make([]byte, 0, len(message)+common.HashLength)
	result = append(result, message...)
	result = append(result, common.BigToHash(nonce).Bytes()...)

	return result, nil
}

// Digest is Keccak256("\x19Ethereum Signed Message:\n32" || Keccak256(canonical)).
func Digest(message []byte, nonce *big.Int) ([]byte, error) {
	canonical, err := CanonicalMessage(message, nonce)
	if err != nil {
		return nil, err
	}

	return accounts.TextHash(crypto.Keccak256(canonical)), nil
}

func VerifySignature(signature []byte, message []byte, nonce *big.Int) (common.Address, error) {
	if len(signature) != SignatureLength {
		return common.Address{}, fmt.Errorf("%w: length %d", ErrInvalidSignature, len(signature))
	}

	digest, err := Digest(message, nonce)
	if err != nil {
		return common.Address{}, err
	}

	sig := make([]byte, SignatureLength)
	copy(sig, signature)

	if sig[recoveryIDIndex] >= walletRecoveryOffset {
		sig[recoveryIDIndex] -= walletRecoveryOffset
	}

	if sig[recoveryIDIndex] > 1 {
		return common.Address{}, fmt.Errorf("%w: recovery id %d", ErrInvalidSignature, signature[recoveryIDIndex])
	}

	publicKey, err := crypto.SigToPub(digest, sig)
	if err != nil {
		return common.Address{}, fmt.Errorf("%w: %w", ErrInvalidSignature, err)
	}

	return crypto.PubkeyToAddress(*publicKey), nil
}

// Sign produces the wallet form of the signature (recovery id 27/28).
func Sign(key *ecdsa.PrivateKey, message []byte, nonce *big.Int) ([]byte, error) {
	digest, err := Digest(message, nonce)
	if err != nil {
		return nil, err
	}

	sig, err := crypto.Sign(digest, key)
	if err != nil {
		return nil, fmt.Errorf("failed to sign: %w", err)
	}

	sig[recoveryIDIndex] += walletRecoveryOffset

	return sig, nil
}
