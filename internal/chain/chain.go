// Package chain verifies tip transactions on Base through Ethereum JSON-RPC.
package chain

import (
	"context"
	"errors"
	"fmt"
	"regexp"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/vizionai/vizion/internal/logging"
)

const (
	DefaultToken        = "CLAWNCH"
	DefaultTokenAddress = "0xa1F72459dfA10BAD200Ac160eCd78C6b77a747be"
)

var txHashFormat = regexp.MustCompile(`^0x[0-9a-fA-F]{64}$`)

// Verification is the outcome of checking one transaction. Error carries a
// human readable reason when Verified is false.
type Verification struct {
	Verified bool   `json:"verified"`
	From     string `json:"from,omitempty"`
	To       string `json:"to,omitempty"`
	Value    string `json:"value,omitempty"`
	Error    string `json:"error,omitempty"`
}

// Verifier checks that a transaction was mined and succeeded.
type Verifier struct {
	client *ethclient.Client
	log    logging.Logger
}

// Dial connects to an Ethereum JSON-RPC endpoint.
func Dial(ctx context.Context, rpcURL string, log logging.Logger) (*Verifier, error) {
	if rpcURL == "" {
		return nil, fmt.Errorf("rpc url is required")
	}
	client, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("dial ethereum rpc: %w", err)
	}
	return NewVerifier(client, log), nil
}

func NewVerifier(client *ethclient.Client, log logging.Logger) *Verifier {
	if log == nil {
		log = logging.Discard()
	}
	return &Verifier{client: client, log: log}
}

func (v *Verifier) Close() { v.client.Close() }

// Verify looks up txHash and its receipt. RPC failures are reported in the
// result, never returned, so a tip is still recorded as unverified.
func (v *Verifier) Verify(ctx context.Context, txHash string) Verification {
	if !txHashFormat.MatchString(txHash) {
		return Verification{Error: "Invalid transaction hash"}
	}
	hash := common.HexToHash(txHash)

	tx, _, err := v.client.TransactionByHash(ctx, hash)
	if errors.Is(err, ethereum.NotFound) {
		return Verification{Error: "Transaction not found"}
	}
	if err != nil {
		return v.failed(txHash, "get transaction", err)
	}

	receipt, err := v.client.TransactionReceipt(ctx, hash)
	if errors.Is(err, ethereum.NotFound) {
		return Verification{Error: "Transaction receipt not found"}
	}
	if err != nil {
		return v.failed(txHash, "get receipt", err)
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return Verification{Error: "Transaction failed"}
	}

	from, err := v.client.TransactionSender(ctx, tx, receipt.BlockHash, receipt.TransactionIndex)
	if err != nil {
		return v.failed(txHash, "get sender", err)
	}

	out := Verification{
		Verified: true,
		From:     from.Hex(),
		Value:    tx.Value().String(),
	}
	if to := tx.To(); to != nil {
		out.To = to.Hex()
	}
	return out
}

func (v *Verifier) failed(txHash, step string, err error) Verification {
	v.log.WithError(err).WithFields(logging.Fields{"tx_hash": txHash, "step": step}).Warn("tip verification failed")
	return Verification{Error: err.Error()}
}
