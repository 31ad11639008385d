package verify

import (
	"context"
	"log/slog"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"

	creditgate "github.com/mark3labs/creditgate-go"
	"github.com/mark3labs/creditgate-go/retry"
)

// SolanaVerifier confirms deposits on Solana-family chains by fetching the
// transaction at confirmed commitment. A deposit is verified iff the
// transaction exists and carries no execution error.
//
// Token, amount, and recipient are not cross-checked against the claimed
// values on this path; only existence and success are. The stricter
// field-level checks live in the EVM strategy.
type SolanaVerifier struct {
	chainID string
	client  *rpc.Client
	logger  *slog.Logger
}

// NewSolanaVerifier creates a verifier backed by the chain's RPC endpoint.
func NewSolanaVerifier(chain creditgate.ChainConfig, logger *slog.Logger) *SolanaVerifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &SolanaVerifier{
		chainID: chain.ID,
		client:  rpc.New(chain.RPCURL),
		logger:  logger,
	}
}

// VerifyDeposit implements Verifier.
func (v *SolanaVerifier) VerifyDeposit(ctx context.Context, d Deposit) bool {
	sig, err := solana.SignatureFromBase58(d.TxRef)
	if err != nil {
		v.logger.Debug("invalid solana signature", "chain", v.chainID, "txRef", d.TxRef, "error", err)
		return false
	}

	ctx, cancel := context.WithTimeout(ctx, rpcTimeout)
	defer cancel()

	maxVersion := uint64(0)
	out, err := retry.Do(ctx, retry.DefaultConfig, func() (*rpc.GetTransactionResult, error) {
		return v.client.GetTransaction(ctx, sig, &rpc.GetTransactionOpts{
			Encoding:                       solana.EncodingBase64,
			Commitment:                     rpc.CommitmentConfirmed,
			MaxSupportedTransactionVersion: &maxVersion,
		})
	})
	if err != nil {
		v.logger.Warn("solana transaction fetch failed", "chain", v.chainID, "signature", sig.String(), "error", err)
		return false
	}
	if out == nil || out.Meta == nil {
		v.logger.Warn("solana transaction missing metadata", "chain", v.chainID, "signature", sig.String())
		return false
	}
	if out.Meta.Err != nil {
		v.logger.Debug("solana transaction failed on-chain", "chain", v.chainID, "signature", sig.String(), "err", out.Meta.Err)
		return false
	}
	return true
}
