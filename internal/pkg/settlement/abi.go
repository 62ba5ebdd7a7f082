package settlement

import (
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/google/uuid"
)

const resolveDuelABI = `[{
	"type": "function",
	"name": "ResolveDuel",
	"stateMutability": "nonpayable",
	"inputs": [
		{"name": "score", "type": "uint256"},
		{"name": "negative", "type": "bool"},
		{"name": "wizard1", "type": "uint256"},
		{"name": "wizard2", "type": "uint256"}
	],
	"outputs": []
}]`

const ResolveDuelMethod = "ResolveDuel"

var ErrOutOfRange = errors.New("value out of uint256 range")

//nolint:gochecknoglobals
var settlementABI = func() abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(resolveDuelABI))
	if err != nil {
		panic(fmt.Sprintf("invalid settlement abi: %v", err))
	}

	return parsed
}()

func isUint256(v *big.Int) bool {
	return v != nil && v.Sign() >= 0 && v.BitLen() <= 256
}

func NewResolveDuel(
	entryPoint EntryPoint,
	contract common.Address,
	score *big.Int,
	negative bool,
	wizard1 *big.Int,
	wizard2 *big.Int) (*ResolveDuel, error) {
	for name, v := range map[string]*big.Int{"score": score, "wizard1": wizard1, "wizard2": wizard2} {
		if !isUint256(v) {
			return nil, fmt.Errorf("%w: %s", ErrOutOfRange, name)
		}
	}

	id, err := uuid.NewRandom()
	if err != nil {
		return nil, fmt.Errorf("failed to generate settlement ID: %w", err)
	}

	return &ResolveDuel{
		ID:         id.String(),
		EntryPoint: entryPoint,
		Contract:   contract,
		Score:      (*math.HexOrDecimal256)(new(big.Int).Set(score)),
		Negative:   negative,
		Wizard1:    (*math.HexOrDecimal256)(new(big.Int).Set(wizard1)),
		Wizard2:    (*math.HexOrDecimal256)(new(big.Int).Set(wizard2)),
		Timestamp:  time.Now().Unix(),
	}, nil
}

// CallData is the ABI encoded ResolveDuel invocation.
func (e *ResolveDuel) CallData() ([]byte, error) {
	values := []*math.HexOrDecimal256{e.Score, e.Wizard1, e.Wizard2}
	for _, v := range values {
		if !isUint256((*big.Int)(v)) {
			return nil, ErrOutOfRange
		}
	}

	data, err := settlementABI.Pack(ResolveDuelMethod,
		(*big.Int)(e.Score),
		e.Negative,
		(*big.Int)(e.Wizard1),
		(*big.Int)(e.Wizard2))
	if err != nil {
		return nil, fmt.Errorf("failed to pack %s: %w", ResolveDuelMethod, err)
	}

	return data, nil
}
