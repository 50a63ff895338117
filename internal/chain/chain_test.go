package chain

import (
	"context"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
)

var baseChainID = big.NewInt(8453)

// newRPCServer answers JSON-RPC calls from a method -> result table.
// Missing methods answer null.
func newRPCServer(t *testing.T, results map[string]any) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			ID     json.RawMessage `json:"id"`
			Method string          `json:"method"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "bad json", http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"jsonrpc": "2.0",
			"id":      req.ID,
			"result":  results[req.Method],
		})
	}))
	t.Cleanup(srv.Close)
	return srv
}

type minedTx struct {
	tx      map[string]any
	receipt json.RawMessage
	hash    string
	from    common.Address
	to      common.Address
}

func signedTransfer(t *testing.T, status uint64) minedTx {
	t.Helper()
	key, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	to := common.HexToAddress(DefaultTokenAddress)
	tx, err := types.SignNewTx(key, types.NewLondonSigner(baseChainID), &types.DynamicFeeTx{
		ChainID:   baseChainID,
		Nonce:     7,
		GasTipCap: big.NewInt(1),
		GasFeeCap: big.NewInt(2),
		Gas:       21000,
		To:        &to,
		Value:     big.NewInt(1500),
	})
	if err != nil {
		t.Fatalf("SignNewTx: %v", err)
	}

	blockHash := common.HexToHash("0xb10c")
	raw, err := tx.MarshalJSON()
	if err != nil {
		t.Fatalf("marshal tx: %v", err)
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		t.Fatalf("unmarshal tx: %v", err)
	}
	from := crypto.PubkeyToAddress(key.PublicKey)
	m["blockHash"] = blockHash.Hex()
	m["blockNumber"] = "0x10"
	m["transactionIndex"] = "0x0"
	m["from"] = from.Hex()

	receipt, err := json.Marshal(&types.Receipt{
		Type:              types.DynamicFeeTxType,
		Status:            status,
		CumulativeGasUsed: 21000,
		Logs:              []*types.Log{},
		TxHash:            tx.Hash(),
		GasUsed:           21000,
		BlockHash:         blockHash,
		BlockNumber:       big.NewInt(16),
	})
	if err != nil {
		t.Fatalf("marshal receipt: %v", err)
	}
	return minedTx{tx: m, receipt: receipt, hash: tx.Hash().Hex(), from: from, to: to}
}

func dialFake(t *testing.T, results map[string]any) *Verifier {
	t.Helper()
	srv := newRPCServer(t, results)
	v, err := Dial(context.Background(), srv.URL, nil)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	t.Cleanup(v.Close)
	return v
}

func TestVerifySuccess(t *testing.T) {
	mined := signedTransfer(t, types.ReceiptStatusSuccessful)
	v := dialFake(t, map[string]any{
		"eth_getTransactionByHash":  mined.tx,
		"eth_getTransactionReceipt": mined.receipt,
	})

	got := v.Verify(context.Background(), mined.hash)
	if !got.Verified {
		t.Fatalf("Verify = %+v, want verified", got)
	}
	if got.From != mined.from.Hex() || got.To != mined.to.Hex() || got.Value != "1500" {
		t.Errorf("Verify = %+v", got)
	}
}

func TestVerifyFailedReceipt(t *testing.T) {
	mined := signedTransfer(t, types.ReceiptStatusFailed)
	v := dialFake(t, map[string]any{
		"eth_getTransactionByHash":  mined.tx,
		"eth_getTransactionReceipt": mined.receipt,
	})

	got := v.Verify(context.Background(), mined.hash)
	if got.Verified || got.Error != "Transaction failed" {
		t.Errorf("Verify = %+v, want Transaction failed", got)
	}
}

func TestVerifyNotFound(t *testing.T) {
	mined := signedTransfer(t, types.ReceiptStatusSuccessful)
	ctx := context.Background()

	v := dialFake(t, map[string]any{})
	if got := v.Verify(ctx, mined.hash); got.Error != "Transaction not found" {
		t.Errorf("missing tx = %+v", got)
	}

	v = dialFake(t, map[string]any{"eth_getTransactionByHash": mined.tx})
	if got := v.Verify(ctx, mined.hash); got.Error != "Transaction receipt not found" {
		t.Errorf("missing receipt = %+v", got)
	}
}

func TestVerifyRejectsMalformedHash(t *testing.T) {
	v := dialFake(t, map[string]any{})
	for _, h := range []string{"", "0x123", "abc"} {
		if got := v.Verify(context.Background(), h); got.Verified || got.Error != "Invalid transaction hash" {
			t.Errorf("Verify(%q) = %+v", h, got)
		}
	}
}

func TestDialRequiresURL(t *testing.T) {
	if _, err := Dial(context.Background(), "", nil); err == nil {
		t.Error("empty url accepted")
	}
}
