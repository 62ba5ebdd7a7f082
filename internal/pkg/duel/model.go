package duel

import (
	"encoding/json"
	"fmt"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/common/math"
)

// ByteList is a byte slice that travels as a JSON array of numbers rather
// than base64.
type ByteList []byte

func (b ByteList) MarshalJSON() ([]byte, error) {
	values := make([]int, len(b))
	for n, v := range b {
		values[n] = int(v)
	}

	//nolint:wrapcheck
	return json.Marshal(values)
}

func (b *ByteList) UnmarshalJSON(data []byte) error {
	var values []int

	err := json.Unmarshal(data, &values)
	if err != nil {
		return fmt.Errorf("expected an array of byte values: %w", err)
	}

	result := make(ByteList, len(values))

	for n, v := range values {
		if v < 0 || v > 255 {
			return fmt.Errorf("value %d at index %d is not a byte", v, n)
		}

		result[n] = byte(v)
	}

	*b = result

	return nil
}

type CommitRequest struct {
	Moves1 ByteList `json:"moves1"`
	Moves2 ByteList `json:"moves2"`

	Wizard1 *math.HexOrDecimal256 `json:"wizard1"`
	Wizard2 *math.HexOrDecimal256 `json:"wizard2"`

	Affinities ByteList `json:"affinities"`
}

type EncryptedCommitRequest struct {
	EncMoves1 hexutil.Bytes `json:"enc_moves1"`
	EncMoves2 hexutil.Bytes `json:"enc_moves2"`

	Wizard1 *math.HexOrDecimal256 `json:"wizard1"`
	Wizard2 *math.HexOrDecimal256 `json:"wizard2"`

	Affinities ByteList `json:"affinities"`
}

type SignedCommitRequest struct {
	EncMoves1 hexutil.Bytes `json:"enc_moves1"`
	EncMoves2 hexutil.Bytes `json:"enc_moves2"`

	Signature1 hexutil.Bytes `json:"signature1"`
	Signature2 hexutil.Bytes `json:"signature2"`

	Wizard1 *math.HexOrDecimal256 `json:"wizard1"`
	Wizard2 *math.HexOrDecimal256 `json:"wizard2"`

	Affinities ByteList `json:"affinities"`

	Nonce *math.HexOrDecimal256 `json:"nonce"`
}

type PublicKeyResponse struct {
	PublicKey hexutil.Bytes `json:"public_key"`
}
