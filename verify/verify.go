// Package verify confirms deposit transactions on-chain. Each supported
// chain family has its own strategy behind the Verifier interface; the
// strategy is selected once at construction from the chain's family tag.
//
// Verification is deliberately conservative: a false negative only makes
// the user retry, while a false positive mints unpaid credits. Transient
// RPC failures, timeouts, and missing transactions are therefore all
// reported as "unverified" rather than surfaced as errors.
package verify

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	creditgate "github.com/mark3labs/creditgate-go"
)

// rpcTimeout bounds a single verification against a hung RPC endpoint.
const rpcTimeout = 15 * time.Second

// Deposit describes the transfer a verifier must find on-chain.
type Deposit struct {
	// TxRef is the transaction reference: a hash on EVM chains, a
	// signature on Solana chains.
	TxRef string

	// Recipient is the expected destination wallet.
	Recipient string

	// TokenAddress is the expected token contract or mint address, or
	// creditgate.NativeAsset for the chain's native asset.
	TokenAddress string

	// MinAmount is the minimum acceptable transferred value in the
	// token's smallest unit.
	MinAmount *big.Int
}

// Verifier confirms that a deposit matching the expectation occurred
// on-chain. Implementations never return an error: any ambiguity is false.
type Verifier interface {
	VerifyDeposit(ctx context.Context, d Deposit) bool
}

// ForChain constructs the verifier matching the chain's family.
func ForChain(chain creditgate.ChainConfig, logger *slog.Logger) (Verifier, error) {
	switch chain.Family {
	case creditgate.FamilySolana:
		return NewSolanaVerifier(chain, logger), nil
	case creditgate.FamilyEVM:
		return NewEVMVerifier(chain, logger)
	default:
		return nil, fmt.Errorf("chain %q: no verifier for family %q", chain.ID, chain.Family)
	}
}

// BuildVerifiers constructs one long-lived verifier per registered chain.
// The returned map is built once at startup and shared read-only across
// concurrent requests.
func BuildVerifiers(registry *creditgate.Registry, logger *slog.Logger) (map[string]Verifier, error) {
	verifiers := make(map[string]Verifier)
	for _, id := range registry.ChainIDs() {
		chain, _ := registry.Chain(id)
		v, err := ForChain(chain, logger)
		if err != nil {
			return nil, err
		}
		verifiers[id] = v
	}
	return verifiers, nil
}
