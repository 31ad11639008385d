package creditgate

import (
	"math/big"
	"time"

	"github.com/google/uuid"
)

// SessionDuration is the fixed lifetime of a session. It is reset to this
// value from the current time on every deposit merge, never on credit use.
const SessionDuration = 24 * time.Hour

// Session binds a wallet and chain to a remaining-credit balance and expiry.
// There is at most one session per (wallet, chain) pair: subsequent deposits
// top up the existing session rather than creating a new one.
type Session struct {
	// ID is the opaque, server-generated session identifier.
	ID string `json:"id"`

	// Wallet is the depositing wallet address.
	Wallet string `json:"wallet"`

	// ChainID is the chain the deposit was made on.
	ChainID string `json:"chainId"`

	// TxRef is the deposit transaction reference that created the session.
	TxRef string `json:"txRef"`

	// Token is the symbol of the deposit token.
	Token string `json:"token"`

	// TotalCredits is the total number of credits ever granted.
	TotalCredits int64 `json:"totalCredits"`

	// RemainingCredits is the number of credits still spendable.
	RemainingCredits int64 `json:"remainingCredits"`

	// CreatedAt is when the session was first created.
	CreatedAt time.Time `json:"createdAt"`

	// ExpiresAt is when the session stops being usable.
	ExpiresAt time.Time `json:"expiresAt"`

	// LastUsedAt is when a credit was last spent.
	LastUsedAt time.Time `json:"lastUsedAt"`
}

// Expired reports whether the session is past its expiry at the given time.
func (s *Session) Expired(now time.Time) bool {
	return !s.ExpiresAt.After(now)
}

// QueriesUsed returns the number of credits already spent.
func (s *Session) QueriesUsed() int64 {
	return s.TotalCredits - s.RemainingCredits
}

// SessionStatus is the caller-facing projection of a session.
type SessionStatus struct {
	// Valid reports whether the session still has spendable credits.
	Valid bool `json:"valid"`

	RemainingCredits int64     `json:"remainingCredits"`
	TotalCredits     int64     `json:"totalCredits"`
	QueriesUsed      int64     `json:"queriesUsed"`
	ExpiresAt        time.Time `json:"expiresAt"`
}

// TokenPricing summarizes one accepted token for client discovery.
type TokenPricing struct {
	Symbol        string `json:"symbol"`
	Address       string `json:"address"`
	Decimals      int    `json:"decimals"`
	PricePerQuery uint64 `json:"pricePerQuery"`
}

// PricingInfo is the discovery projection of the chain registry plus the
// runtime-configured recipient wallet for one chain.
type PricingInfo struct {
	ChainID           string         `json:"chain"`
	ChainName         string         `json:"chainName"`
	RecipientWallet   string         `json:"recipientWallet"`
	SessionDurationMS int64          `json:"sessionDurationMs"`
	SupportedChains   []string       `json:"supportedChains"`
	SupportedTokens   []TokenPricing `json:"supportedTokens"`
}

// NewSessionID generates a cryptographically random, unguessable session
// identifier.
func NewSessionID() string {
	return uuid.NewString()
}

// ParseBaseAmount parses a token amount expressed in the token's smallest
// unit (a base-10 integer string, e.g. lamports or wei) into a big.Int.
// Returns ErrInvalidAmount for malformed or negative input.
func ParseBaseAmount(amount string) (*big.Int, error) {
	if amount == "" {
		return nil, ErrInvalidAmount
	}
	v, ok := new(big.Int).SetString(amount, 10)
	if !ok || v.Sign() < 0 {
		return nil, ErrInvalidAmount
	}
	return v, nil
}
