package verify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	creditgate "github.com/mark3labs/creditgate-go"
)

const (
	testTxHash    = "0x1111111111111111111111111111111111111111111111111111111111111111"
	testRecipient = "0x384Aa214be0B279cbf211e9b2C992d8633F77848"
	testToken     = "0x036CbD53842c5426634e7929541eC2318f3dCF7e"
	testSender    = "0xE4d365a5a8fC0DCEE9E3C5985D7FcBab8B4A0fE1"
	testBlockHash = "0x2222222222222222222222222222222222222222222222222222222222222222"

	// topic0 of Transfer(address,address,uint256)
	transferTopicHex = "0xddf252ad1be2c89b69c2b068fc378daa952ba7f163c4a11628f55a4df523b3ef"
)

// rpcRequest is the decoded JSON-RPC request body.
type rpcRequest struct {
	ID     json.RawMessage   `json:"id"`
	Method string            `json:"method"`
	Params []json.RawMessage `json:"params"`
}

// newEVMBackend serves canned JSON-RPC results keyed by method name.
// A method mapped to nil returns a JSON-RPC null result.
func newEVMBackend(t *testing.T, results map[string]any) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req rpcRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("malformed rpc request: %v", err)
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		result, ok := results[req.Method]
		if !ok {
			t.Errorf("unexpected rpc method %q", req.Method)
		}
		resp := map[string]any{"jsonrpc": "2.0", "id": req.ID, "result": result}
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(resp); err != nil {
			t.Errorf("failed to encode response: %v", err)
		}
	}))
}

func topicForAddress(addr string) string {
	return "0x000000000000000000000000" + strings.ToLower(strings.TrimPrefix(addr, "0x"))
}

func valueData(v int64) string {
	return fmt.Sprintf("0x%064x", v)
}

func receiptJSON(status string, logs []map[string]any) map[string]any {
	if logs == nil {
		logs = []map[string]any{}
	}
	return map[string]any{
		"type":              "0x2",
		"status":            status,
		"cumulativeGasUsed": "0x5208",
		"logsBloom":         "0x" + strings.Repeat("0", 512),
		"logs":              logs,
		"transactionHash":   testTxHash,
		"contractAddress":   nil,
		"gasUsed":           "0x5208",
		"effectiveGasPrice": "0x3b9aca00",
		"blockHash":         testBlockHash,
		"blockNumber":       "0x1",
		"transactionIndex":  "0x0",
	}
}

func transferLog(contract, to string, value int64) map[string]any {
	return map[string]any{
		"address":          contract,
		"topics":           []string{transferTopicHex, topicForAddress(testSender), topicForAddress(to)},
		"data":             valueData(value),
		"blockNumber":      "0x1",
		"transactionHash":  testTxHash,
		"transactionIndex": "0x0",
		"blockHash":        testBlockHash,
		"logIndex":         "0x0",
		"removed":          false,
	}
}

func nativeTxJSON(to string, value int64) map[string]any {
	return map[string]any{
		"type":             "0x0",
		"nonce":            "0x0",
		"gasPrice":         "0x3b9aca00",
		"gas":              "0x5208",
		"to":               to,
		"value":            fmt.Sprintf("0x%x", value),
		"input":            "0x",
		"v":                "0x25",
		"r":                "0x1",
		"s":                "0x1",
		"hash":             testTxHash,
		"from":             testSender,
		"blockHash":        testBlockHash,
		"blockNumber":      "0x1",
		"transactionIndex": "0x0",
	}
}

func newTestEVMVerifier(t *testing.T, url string) *EVMVerifier {
	t.Helper()
	chain := creditgate.ChainConfig{ID: "base-sepolia", Name: "Base Sepolia", RPCURL: url, Family: creditgate.FamilyEVM}
	v, err := NewEVMVerifier(chain, slog.Default())
	if err != nil {
		t.Fatalf("NewEVMVerifier: %v", err)
	}
	t.Cleanup(v.Close)
	return v
}

func TestEVMVerifyTokenDeposit(t *testing.T) {
	tests := []struct {
		name string
		logs []map[string]any
		min  int64
		want bool
	}{
		{
			name: "matching transfer",
			logs: []map[string]any{transferLog(testToken, testRecipient, 10_000)},
			min:  10_000,
			want: true,
		},
		{
			name: "transfer above minimum",
			logs: []map[string]any{transferLog(testToken, testRecipient, 20_000)},
			min:  10_000,
			want: true,
		},
		{
			name: "transfer below minimum",
			logs: []map[string]any{transferLog(testToken, testRecipient, 9_999)},
			min:  10_000,
			want: false,
		},
		{
			name: "wrong recipient",
			logs: []map[string]any{transferLog(testToken, testSender, 10_000)},
			min:  10_000,
			want: false,
		},
		{
			name: "wrong contract",
			logs: []map[string]any{transferLog(testRecipient, testRecipient, 10_000)},
			min:  10_000,
			want: false,
		},
		{
			name: "no logs",
			logs: nil,
			min:  10_000,
			want: false,
		},
		{
			name: "malformed log skipped, matching log found",
			logs: []map[string]any{
				{
					"address":          testToken,
					"topics":           []string{transferTopicHex},
					"data":             "0x",
					"blockNumber":      "0x1",
					"transactionHash":  testTxHash,
					"transactionIndex": "0x0",
					"blockHash":        testBlockHash,
					"logIndex":         "0x0",
					"removed":          false,
				},
				transferLog(testToken, testRecipient, 10_000),
			},
			min:  10_000,
			want: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := newEVMBackend(t, map[string]any{
				"eth_getTransactionReceipt": receiptJSON("0x1", tt.logs),
			})
			defer ts.Close()

			v := newTestEVMVerifier(t, ts.URL)
			got := v.VerifyDeposit(context.Background(), Deposit{
				TxRef:        testTxHash,
				Recipient:    testRecipient,
				TokenAddress: testToken,
				MinAmount:    big.NewInt(tt.min),
			})
			if got != tt.want {
				t.Errorf("VerifyDeposit() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestEVMVerifyRevertedTransaction(t *testing.T) {
	// A failed receipt is never a valid deposit, whatever the logs claim.
	ts := newEVMBackend(t, map[string]any{
		"eth_getTransactionReceipt": receiptJSON("0x0", []map[string]any{
			transferLog(testToken, testRecipient, 1_000_000),
		}),
	})
	defer ts.Close()

	v := newTestEVMVerifier(t, ts.URL)
	got := v.VerifyDeposit(context.Background(), Deposit{
		TxRef:        testTxHash,
		Recipient:    testRecipient,
		TokenAddress: testToken,
		MinAmount:    big.NewInt(1),
	})
	if got {
		t.Error("VerifyDeposit() = true for reverted transaction, want false")
	}
}

func TestEVMVerifyMissingReceipt(t *testing.T) {
	ts := newEVMBackend(t, map[string]any{
		"eth_getTransactionReceipt": nil,
	})
	defer ts.Close()

	v := newTestEVMVerifier(t, ts.URL)
	got := v.VerifyDeposit(context.Background(), Deposit{
		TxRef:        testTxHash,
		Recipient:    testRecipient,
		TokenAddress: testToken,
		MinAmount:    big.NewInt(1),
	})
	if got {
		t.Error("VerifyDeposit() = true for missing receipt, want false")
	}
}

func TestEVMVerifyNativeDeposit(t *testing.T) {
	tests := []struct {
		name string
		to   string
		val  int64
		min  int64
		want bool
	}{
		{"matching transfer", testRecipient, 10_000, 10_000, true},
		{"above minimum", testRecipient, 20_000, 10_000, true},
		{"below minimum", testRecipient, 9_999, 10_000, false},
		{"wrong recipient", testSender, 10_000, 10_000, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := newEVMBackend(t, map[string]any{
				"eth_getTransactionReceipt": receiptJSON("0x1", nil),
				"eth_getTransactionByHash":  nativeTxJSON(tt.to, tt.val),
			})
			defer ts.Close()

			v := newTestEVMVerifier(t, ts.URL)
			got := v.VerifyDeposit(context.Background(), Deposit{
				TxRef:        testTxHash,
				Recipient:    testRecipient,
				TokenAddress: creditgate.NativeAsset,
				MinAmount:    big.NewInt(tt.min),
			})
			if got != tt.want {
				t.Errorf("VerifyDeposit() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestEVMVerifyNativeDepositRetriesTransientFetch(t *testing.T) {
	// First transaction fetch fails with a gateway error; the retry must
	// pick up the successful second attempt.
	var txFetches int
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req rpcRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		var result any
		switch req.Method {
		case "eth_getTransactionReceipt":
			result = receiptJSON("0x1", nil)
		case "eth_getTransactionByHash":
			txFetches++
			if txFetches == 1 {
				http.Error(w, "bad gateway", http.StatusBadGateway)
				return
			}
			result = nativeTxJSON(testRecipient, 10_000)
		default:
			t.Errorf("unexpected rpc method %q", req.Method)
		}
		w.Header().Set("Content-Type", "application/json")
		resp := map[string]any{"jsonrpc": "2.0", "id": req.ID, "result": result}
		if err := json.NewEncoder(w).Encode(resp); err != nil {
			t.Errorf("failed to encode response: %v", err)
		}
	}))
	defer ts.Close()

	v := newTestEVMVerifier(t, ts.URL)
	got := v.VerifyDeposit(context.Background(), Deposit{
		TxRef:        testTxHash,
		Recipient:    testRecipient,
		TokenAddress: creditgate.NativeAsset,
		MinAmount:    big.NewInt(10_000),
	})
	if !got {
		t.Error("VerifyDeposit() = false after transient fetch failure, want true")
	}
	if txFetches != 2 {
		t.Errorf("transaction fetched %d times, want 2", txFetches)
	}
}

func TestEVMVerifyUnreachableRPC(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad gateway", http.StatusBadGateway)
	}))
	defer ts.Close()

	v := newTestEVMVerifier(t, ts.URL)
	got := v.VerifyDeposit(context.Background(), Deposit{
		TxRef:        testTxHash,
		Recipient:    testRecipient,
		TokenAddress: testToken,
		MinAmount:    big.NewInt(1),
	})
	if got {
		t.Error("VerifyDeposit() = true with unreachable RPC, want false")
	}
}
