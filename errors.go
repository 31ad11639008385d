package creditgate

import "errors"

// Standard creditgate error definitions

var (
	// ErrUnsupportedChain indicates the chain id is not in the registry.
	ErrUnsupportedChain = errors.New("unsupported chain")

	// ErrUnsupportedToken indicates the token is not configured for the chain.
	ErrUnsupportedToken = errors.New("unsupported token")

	// ErrTransactionUsed indicates the deposit transaction reference has
	// already been redeemed into credits.
	ErrTransactionUsed = errors.New("transaction already used")

	// ErrNoRecipient indicates no deposit recipient wallet is configured
	// for the chain.
	ErrNoRecipient = errors.New("no recipient wallet configured")

	// ErrNotVerified indicates the deposit could not be confirmed on-chain.
	// This covers RPC failures, missing or failed transactions, and
	// mismatched transfer details alike: ambiguous evidence never mints
	// credits, and the caller may retry with better proof.
	ErrNotVerified = errors.New("deposit not verified")

	// ErrInvalidAmount indicates a malformed or non-positive amount string.
	ErrInvalidAmount = errors.New("invalid amount")

	// ErrInvalidParams indicates missing or malformed request parameters.
	ErrInvalidParams = errors.New("invalid parameters")
)
