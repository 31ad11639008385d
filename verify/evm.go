package verify

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"

	creditgate "github.com/mark3labs/creditgate-go"
	"github.com/mark3labs/creditgate-go/retry"
)

// transferTopic is the topic0 of the ERC-20 Transfer(address,address,uint256) event.
var transferTopic = crypto.Keccak256Hash([]byte("Transfer(address,address,uint256)"))

// EVMVerifier confirms deposits on EVM-family chains from the transaction
// receipt. A deposit is verified iff the receipt shows success and either
// the transaction's direct recipient and value match (native asset) or a
// Transfer event from the expected token contract pays the expected
// recipient at least the expected amount.
type EVMVerifier struct {
	chainID string
	client  *ethclient.Client
	logger  *slog.Logger
}

// NewEVMVerifier creates a verifier backed by the chain's RPC endpoint.
func NewEVMVerifier(chain creditgate.ChainConfig, logger *slog.Logger) (*EVMVerifier, error) {
	if logger == nil {
		logger = slog.Default()
	}
	client, err := ethclient.Dial(chain.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("chain %q: failed to dial RPC: %w", chain.ID, err)
	}
	return &EVMVerifier{
		chainID: chain.ID,
		client:  client,
		logger:  logger,
	}, nil
}

// Close releases the underlying RPC connection.
func (v *EVMVerifier) Close() {
	v.client.Close()
}

// VerifyDeposit implements Verifier.
func (v *EVMVerifier) VerifyDeposit(ctx context.Context, d Deposit) bool {
	hash := common.HexToHash(d.TxRef)

	ctx, cancel := context.WithTimeout(ctx, rpcTimeout)
	defer cancel()

	receipt, err := retry.Do(ctx, retry.DefaultConfig, func() (*types.Receipt, error) {
		return v.client.TransactionReceipt(ctx, hash)
	})
	if err != nil {
		v.logger.Warn("receipt fetch failed", "chain", v.chainID, "tx", hash.Hex(), "error", err)
		return false
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		v.logger.Debug("transaction reverted", "chain", v.chainID, "tx", hash.Hex())
		return false
	}

	recipient := common.HexToAddress(d.Recipient)
	if d.TokenAddress == creditgate.NativeAsset {
		return v.verifyNativeTransfer(ctx, hash, recipient, d.MinAmount)
	}
	return v.verifyTokenTransfer(receipt, common.HexToAddress(d.TokenAddress), recipient, d.MinAmount)
}

// verifyNativeTransfer checks the transaction's direct recipient and value.
func (v *EVMVerifier) verifyNativeTransfer(ctx context.Context, hash common.Hash, recipient common.Address, minAmount *big.Int) bool {
	tx, err := retry.Do(ctx, retry.DefaultConfig, func() (*types.Transaction, error) {
		tx, _, err := v.client.TransactionByHash(ctx, hash)
		return tx, err
	})
	if err != nil {
		v.logger.Warn("transaction fetch failed", "chain", v.chainID, "tx", hash.Hex(), "error", err)
		return false
	}
	to := tx.To()
	if to == nil || *to != recipient {
		v.logger.Debug("native transfer recipient mismatch", "chain", v.chainID, "tx", hash.Hex())
		return false
	}
	if tx.Value().Cmp(minAmount) < 0 {
		v.logger.Debug("native transfer below minimum", "chain", v.chainID, "tx", hash.Hex(), "value", tx.Value(), "min", minAmount)
		return false
	}
	return true
}

// verifyTokenTransfer scans the receipt logs for a Transfer event from the
// token contract paying the recipient at least minAmount. Malformed or
// unrelated logs are skipped, never fatal.
func (v *EVMVerifier) verifyTokenTransfer(receipt *types.Receipt, token, recipient common.Address, minAmount *big.Int) bool {
	for _, log := range receipt.Logs {
		if log == nil || log.Address != token {
			continue
		}
		// Transfer(address indexed from, address indexed to, uint256 value)
		if len(log.Topics) != 3 || log.Topics[0] != transferTopic {
			continue
		}
		if common.BytesToAddress(log.Topics[2].Bytes()) != recipient {
			continue
		}
		if len(log.Data) == 0 || len(log.Data) > 32 {
			continue
		}
		value := new(big.Int).SetBytes(log.Data)
		if value.Cmp(minAmount) >= 0 {
			return true
		}
	}
	v.logger.Debug("no matching transfer log", "chain", v.chainID, "tx", receipt.TxHash.Hex(), "token", token.Hex())
	return false
}
