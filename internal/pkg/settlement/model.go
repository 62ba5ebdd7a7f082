package settlement

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"
)

type EntryPoint string

const (
	EntryPointCommit              EntryPoint = "commit_to_duel"
	EntryPointCommitDecrypt       EntryPoint = "commit_to_duel_decrypt"
	EntryPointCommitDecryptVerify EntryPoint = "commit_to_duel_decrypt_sig"
)

// ResolveDuel is the outbound call ResolveDuel(score, negative, wizard1,
// wizard2) on the settlement contract, captured as a value so it can be
// queued, recorded and inspected before anything leaves the process.
type ResolveDuel struct {
	ID         string     `json:"id"`
	EntryPoint EntryPoint `json:"entry_point"`

	Contract common.Address        `json:"contract"`
	Score    *math.HexOrDecimal256 `json:"score"`
	Negative bool                  `json:"negative"`
	Wizard1  *math.HexOrDecimal256 `json:"wizard1"`
	Wizard2  *math.HexOrDecimal256 `json:"wizard2"`

	Signers []common.Address      `json:"signers,omitempty"`
	Nonce   *math.HexOrDecimal256 `json:"nonce,omitempty"`

	Timestamp int64 `json:"timestamp"`
}

type Status string

const (
	StatusPending    Status = "pending"
	StatusDispatched Status = "dispatched"
	StatusFailed     Status = "failed"
)

type Record struct {
	Effect ResolveDuel `json:"effect"`

	Status Status `json:"status"`
	TxHash string `json:"tx_hash,omitempty"`
	Error  string `json:"error,omitempty"`

	DispatchedAt int64 `json:"dispatched_at"`
}
