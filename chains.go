// Package creditgate implements prepaid credit sessions for metered APIs.
// A client deposits tokens on a supported blockchain once, the deposit is
// verified on-chain, and the deposit value is converted into a pool of
// spendable query credits bound to the client's wallet. This package holds
// the shared types: the chain catalog, session records, and error values.
// Verification strategies live in verify/, persistence backends in store/,
// and the orchestration logic in session/.
package creditgate

import (
	"fmt"
	"sort"
)

// Family is the transaction-verification model a chain follows.
type Family int

const (
	// FamilyUnknown represents an unrecognized chain family.
	FamilyUnknown Family = iota
	// FamilyEVM represents chains with receipts and event logs (Ethereum-like).
	FamilyEVM
	// FamilySolana represents chains with a global transaction log and
	// commitment levels (Solana-like).
	FamilySolana
)

// String returns the family name used in configuration and logs.
func (f Family) String() string {
	switch f {
	case FamilyEVM:
		return "evm"
	case FamilySolana:
		return "solana"
	default:
		return "unknown"
	}
}

// NativeAsset is the token address sentinel for a chain's native asset
// (ETH, POL, AVAX). Native deposits are verified against the transaction's
// direct recipient and value instead of transfer-event logs.
const NativeAsset = "native"

// TokenConfig describes a payment token accepted on a chain.
type TokenConfig struct {
	// Address is the token contract address (EVM), mint address (Solana),
	// or NativeAsset for the chain's native asset.
	Address string

	// Symbol is the token symbol (e.g., "USDC", "ETH").
	Symbol string

	// Decimals is the number of decimal places for the token.
	Decimals int

	// PricePerQuery is the cost of one metered query in the token's
	// smallest unit. Must be greater than zero.
	PricePerQuery uint64
}

// IsNative reports whether the token is the chain's native asset.
func (t TokenConfig) IsNative() bool {
	return t.Address == NativeAsset
}

// ChainConfig describes a supported blockchain network.
type ChainConfig struct {
	// ID is the chain identifier used throughout the API (e.g., "base").
	ID string

	// Name is the human-readable chain name.
	Name string

	// RPCURL is the JSON-RPC endpoint used for deposit verification.
	RPCURL string

	// Family selects the verification strategy for the chain.
	Family Family

	// Tokens maps token symbol to its configuration.
	Tokens map[string]TokenConfig
}

// Registry is the immutable catalog of supported chains. It is built once at
// startup and is safe for concurrent reads.
type Registry struct {
	chains map[string]ChainConfig
	order  []string
}

// NewRegistry builds a registry from the given chain configurations.
// Registration order is preserved for listing. Duplicate chain ids are
// rejected, as are tokens priced at zero, since a zero price would grant
// unlimited credits for any deposit.
func NewRegistry(chains ...ChainConfig) (*Registry, error) {
	r := &Registry{chains: make(map[string]ChainConfig, len(chains))}
	for _, c := range chains {
		if c.ID == "" {
			return nil, fmt.Errorf("chain with empty id")
		}
		if _, dup := r.chains[c.ID]; dup {
			return nil, fmt.Errorf("duplicate chain id %q", c.ID)
		}
		if c.Family != FamilyEVM && c.Family != FamilySolana {
			return nil, fmt.Errorf("chain %q: unknown family", c.ID)
		}
		for sym, tok := range c.Tokens {
			if tok.PricePerQuery == 0 {
				return nil, fmt.Errorf("chain %q: token %q has zero price per query", c.ID, sym)
			}
		}
		r.chains[c.ID] = c
		r.order = append(r.order, c.ID)
	}
	return r, nil
}

// Chain returns the configuration for the given chain id.
func (r *Registry) Chain(id string) (ChainConfig, bool) {
	c, ok := r.chains[id]
	return c, ok
}

// ChainIDs returns the supported chain ids in registration order.
func (r *Registry) ChainIDs() []string {
	ids := make([]string, len(r.order))
	copy(ids, r.order)
	return ids
}

// Token returns the configuration for a token symbol on a chain.
func (r *Registry) Token(chainID, symbol string) (TokenConfig, bool) {
	c, ok := r.chains[chainID]
	if !ok {
		return TokenConfig{}, false
	}
	t, ok := c.Tokens[symbol]
	return t, ok
}

// IsFamily reports whether the chain exists and belongs to the given family.
func (r *Registry) IsFamily(chainID string, f Family) bool {
	c, ok := r.chains[chainID]
	return ok && c.Family == f
}

// TokenSymbols returns the token symbols configured for a chain, sorted.
func (r *Registry) TokenSymbols(chainID string) []string {
	c, ok := r.chains[chainID]
	if !ok {
		return nil
	}
	syms := make([]string, 0, len(c.Tokens))
	for s := range c.Tokens {
		syms = append(syms, s)
	}
	sort.Strings(syms)
	return syms
}

// Default price for one query: 0.01 USDC in atomic units (6 decimals).
const defaultUSDCPricePerQuery = 10_000

// Mainnet chain configurations. USDC addresses verified 2025-10-28.
var (
	// SolanaMainnet is the configuration for Solana mainnet.
	SolanaMainnet = ChainConfig{
		ID:     "solana",
		Name:   "Solana",
		RPCURL: "https://api.mainnet-beta.solana.com",
		Family: FamilySolana,
		Tokens: map[string]TokenConfig{
			"USDC": {
				Address:       "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v",
				Symbol:        "USDC",
				Decimals:      6,
				PricePerQuery: defaultUSDCPricePerQuery,
			},
		},
	}

	// BaseMainnet is the configuration for Base mainnet.
	BaseMainnet = ChainConfig{
		ID:     "base",
		Name:   "Base",
		RPCURL: "https://mainnet.base.org",
		Family: FamilyEVM,
		Tokens: map[string]TokenConfig{
			"USDC": {
				Address:       "0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913",
				Symbol:        "USDC",
				Decimals:      6,
				PricePerQuery: defaultUSDCPricePerQuery,
			},
			"ETH": {
				Address:       NativeAsset,
				Symbol:        "ETH",
				Decimals:      18,
				PricePerQuery: 3_000_000_000_000, // ~0.000003 ETH
			},
		},
	}

	// PolygonMainnet is the configuration for Polygon PoS mainnet.
	PolygonMainnet = ChainConfig{
		ID:     "polygon",
		Name:   "Polygon",
		RPCURL: "https://polygon-rpc.com",
		Family: FamilyEVM,
		Tokens: map[string]TokenConfig{
			"USDC": {
				Address:       "0x3c499c542cEF5E3811e1192ce70d8cC03d5c3359",
				Symbol:        "USDC",
				Decimals:      6,
				PricePerQuery: defaultUSDCPricePerQuery,
			},
			"POL": {
				Address:       NativeAsset,
				Symbol:        "POL",
				Decimals:      18,
				PricePerQuery: 25_000_000_000_000_000, // ~0.025 POL
			},
		},
	}

	// AvalancheMainnet is the configuration for Avalanche C-Chain mainnet.
	AvalancheMainnet = ChainConfig{
		ID:     "avalanche",
		Name:   "Avalanche",
		RPCURL: "https://api.avax.network/ext/bc/C/rpc",
		Family: FamilyEVM,
		Tokens: map[string]TokenConfig{
			"USDC": {
				Address:       "0xB97EF9Ef8734C71904D8002F8b6Bc66Dd9c48a6E",
				Symbol:        "USDC",
				Decimals:      6,
				PricePerQuery: defaultUSDCPricePerQuery,
			},
			"AVAX": {
				Address:       NativeAsset,
				Symbol:        "AVAX",
				Decimals:      18,
				PricePerQuery: 400_000_000_000_000, // ~0.0004 AVAX
			},
		},
	}
)

// Testnet chain configurations.
var (
	// SolanaDevnet is the configuration for Solana devnet.
	// USDC mint verified 2025-10-28.
	SolanaDevnet = ChainConfig{
		ID:     "solana-devnet",
		Name:   "Solana Devnet",
		RPCURL: "https://api.devnet.solana.com",
		Family: FamilySolana,
		Tokens: map[string]TokenConfig{
			"USDC": {
				Address:       "4zMMC9srt5Ri5X14GAgXhaHii3GnPAEERYPJgZJDncDU",
				Symbol:        "USDC",
				Decimals:      6,
				PricePerQuery: defaultUSDCPricePerQuery,
			},
		},
	}

	// BaseSepolia is the configuration for Base Sepolia testnet.
	// USDC address verified 2025-10-30 via on-chain contract read.
	BaseSepolia = ChainConfig{
		ID:     "base-sepolia",
		Name:   "Base Sepolia",
		RPCURL: "https://sepolia.base.org",
		Family: FamilyEVM,
		Tokens: map[string]TokenConfig{
			"USDC": {
				Address:       "0x036CbD53842c5426634e7929541eC2318f3dCF7e",
				Symbol:        "USDC",
				Decimals:      6,
				PricePerQuery: defaultUSDCPricePerQuery,
			},
		},
	}
)

// DefaultRegistry returns a registry with the curated mainnet and testnet
// chains above.
func DefaultRegistry() *Registry {
	r, err := NewRegistry(
		SolanaMainnet,
		BaseMainnet,
		PolygonMainnet,
		AvalancheMainnet,
		SolanaDevnet,
		BaseSepolia,
	)
	if err != nil {
		// The curated catalog is covered by tests; NewRegistry cannot fail
		// on the constants above.
		panic(err)
	}
	return r
}
