package settlement

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog/log"
)

var ErrRPC = errors.New("settlement rpc failed")

// Bridge submits a ResolveDuel call to the settlement contract and returns
// the transaction hash.
type Bridge interface {
	ResolveDuel(ctx context.Context, effect *ResolveDuel) (string, error)
}

// DryRunBridge only logs; used when no RPC endpoint is configured.
type DryRunBridge struct{}

func (DryRunBridge) ResolveDuel(_ context.Context, effect *ResolveDuel) (string, error) {
	data, err := effect.CallData()
	if err != nil {
		return "", err
	}

	log.Info().
		Str("id", effect.ID).
		Str("contract", effect.Contract.Hex()).
		Str("data", hexutil.Encode(data)).
		Msg("dry run settlement")

	return "", nil
}

// EthBridge sends eth_sendTransaction from an account managed by the node.
type EthBridge struct {
	Client *resty.Client
	From   common.Address
	Gas    uint64

	requestID atomic.Uint64
}

func NewEthBridge(rpcURL string, from common.Address, gas uint64) *EthBridge {
	client := resty.New().
		SetBaseURL(rpcURL).
		SetHeader("Content-Type", "application/json")

	return &EthBridge{
		Client: client,
		From:   from,
		Gas:    gas,
	}
}

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      uint64 `json:"id"`
	Method  string `json:"method"`
	Params  []any  `json:"params"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *rpcError       `json:"error"`
}

type sendTransactionArgs struct {
	From common.Address  `json:"from"`
	To   common.Address  `json:"to"`
	Gas  *hexutil.Uint64 `json:"gas,omitempty"`
	Data hexutil.Bytes   `json:"data"`
}

func (b *EthBridge) ResolveDuel(ctx context.Context, effect *ResolveDuel) (string, error) {
	data, err := effect.CallData()
	if err != nil {
		return "", err
	}

	args := sendTransactionArgs{
		From: b.From,
		To:   effect.Contract,
		Gas:  nil,
		Data: data,
	}

	if b.Gas > 0 {
		gas := hexutil.Uint64(b.Gas)
		args.Gas = &gas
	}

	request := rpcRequest{
		JSONRPC: "2.0",
		ID:      b.requestID.Add(1),
		Method:  "eth_sendTransaction",
		Params:  []any{args},
	}

	var response rpcResponse

	resp, err := b.Client.R().
		SetContext(ctx).
		SetBody(request).
		SetResult(&response).
		Post("")
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrRPC, err)
	}

	if resp.IsError() {
		return "", fmt.Errorf("%w: http status %d", ErrRPC, resp.StatusCode())
	}

	if response.Error != nil {
		return "", fmt.Errorf("%w: %d %s", ErrRPC, response.Error.Code, response.Error.Message)
	}

	var txHash common.Hash

	err = json.Unmarshal(response.Result, &txHash)
	if err != nil {
		return "", fmt.Errorf("%w: malformed result: %w", ErrRPC, err)
	}

	return txHash.Hex(), nil
}
