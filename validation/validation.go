// Package validation provides format checks for wallet addresses and
// transaction references before they are sent to a chain RPC endpoint.
// Rejecting malformed input early keeps garbage out of the verification
// path and out of the session store.
package validation

import (
	"fmt"
	"regexp"

	"github.com/mark3labs/creditgate-go"
)

var (
	// evmAddressRegex matches Ethereum-style addresses (0x followed by 40 hex chars)
	evmAddressRegex = regexp.MustCompile(`^0x[a-fA-F0-9]{40}$`)

	// evmTxHashRegex matches 32-byte transaction hashes (0x followed by 64 hex chars)
	evmTxHashRegex = regexp.MustCompile(`^0x[a-fA-F0-9]{64}$`)

	// solanaAddressRegex matches Solana base58 addresses (32-44 chars, base58 charset)
	solanaAddressRegex = regexp.MustCompile(`^[1-9A-HJ-NP-Za-km-z]{32,44}$`)

	// solanaSignatureRegex matches Solana transaction signatures (base58, 64 bytes encoded)
	solanaSignatureRegex = regexp.MustCompile(`^[1-9A-HJ-NP-Za-km-z]{64,90}$`)
)

// ValidateWalletAddress validates that a wallet address matches the format
// of the given chain family.
func ValidateWalletAddress(family creditgate.Family, address string) error {
	if address == "" {
		return fmt.Errorf("wallet address cannot be empty")
	}
	switch family {
	case creditgate.FamilyEVM:
		if !evmAddressRegex.MatchString(address) {
			return fmt.Errorf("address %q is not a valid EVM address (expected 0x-prefixed hex, 42 chars)", address)
		}
	case creditgate.FamilySolana:
		if !solanaAddressRegex.MatchString(address) {
			return fmt.Errorf("address %q is not a valid Solana address (expected base58, 32-44 chars)", address)
		}
	default:
		return fmt.Errorf("unknown chain family")
	}
	return nil
}

// ValidateTxRef validates that a deposit transaction reference matches the
// format of the given chain family: a 0x-prefixed 32-byte hash for EVM
// chains, a base58 signature for Solana chains.
func ValidateTxRef(family creditgate.Family, txRef string) error {
	if txRef == "" {
		return fmt.Errorf("transaction reference cannot be empty")
	}
	switch family {
	case creditgate.FamilyEVM:
		if !evmTxHashRegex.MatchString(txRef) {
			return fmt.Errorf("transaction reference %q is not a valid EVM transaction hash", txRef)
		}
	case creditgate.FamilySolana:
		if !solanaSignatureRegex.MatchString(txRef) {
			return fmt.Errorf("transaction reference %q is not a valid Solana signature", txRef)
		}
	default:
		return fmt.Errorf("unknown chain family")
	}
	return nil
}

// ValidateTokenAddress validates that a token address matches the chain
// family. The native-asset sentinel is accepted for EVM chains.
func ValidateTokenAddress(family creditgate.Family, address string) error {
	if address == creditgate.NativeAsset {
		if family != creditgate.FamilyEVM {
			return fmt.Errorf("native-asset tokens are only supported on EVM chains")
		}
		return nil
	}
	return ValidateWalletAddress(family, address)
}
