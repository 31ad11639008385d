// Package session orchestrates deposit redemption and credit accounting.
// The Manager holds no session state across calls: every operation re-reads
// from the store, which is the single source of truth.
package session

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"math/big"
	"time"

	"github.com/go-playground/validator/v10"

	creditgate "github.com/mark3labs/creditgate-go"
	"github.com/mark3labs/creditgate-go/store"
	"github.com/mark3labs/creditgate-go/validation"
	"github.com/mark3labs/creditgate-go/verify"
)

// Manager converts verified deposits into credit sessions and meters
// credit consumption. It is safe for concurrent use.
type Manager struct {
	registry   *creditgate.Registry
	store      store.Store
	verifiers  map[string]verify.Verifier
	recipients map[string]string
	validate   *validator.Validate
	logger     *slog.Logger
	now        func() time.Time
}

// Config holds the required collaborators for a Manager.
type Config struct {
	// Registry is the catalog of supported chains and tokens.
	Registry *creditgate.Registry

	// Store persists sessions and consumed transaction references.
	Store store.Store

	// Verifiers maps chain id to its deposit verifier, built once at
	// startup (see verify.BuildVerifiers).
	Verifiers map[string]verify.Verifier

	// Recipients maps chain id to the deposit recipient wallet address.
	Recipients map[string]string
}

// Option customizes optional Manager collaborators.
type Option func(*Manager)

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) { m.logger = l }
}

// WithClock overrides the time source, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// NewManager creates a Manager from its collaborators.
func NewManager(cfg Config, opts ...Option) (*Manager, error) {
	if cfg.Registry == nil {
		return nil, fmt.Errorf("registry is required")
	}
	if cfg.Store == nil {
		return nil, fmt.Errorf("store is required")
	}
	if cfg.Verifiers == nil {
		return nil, fmt.Errorf("verifiers are required")
	}
	m := &Manager{
		registry:   cfg.Registry,
		store:      cfg.Store,
		verifiers:  cfg.Verifiers,
		recipients: cfg.Recipients,
		validate:   validator.New(),
		logger:     slog.Default(),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// CreateSessionParams are the caller-supplied inputs for redeeming a
// deposit into credits.
type CreateSessionParams struct {
	// Wallet is the depositing wallet address.
	Wallet string `validate:"required"`

	// ChainID identifies the chain the deposit was made on.
	ChainID string `validate:"required"`

	// TxRef is the deposit transaction reference.
	TxRef string `validate:"required"`

	// Amount is the claimed deposit amount in the token's smallest unit.
	Amount string `validate:"required"`

	// Token is the deposit token symbol.
	Token string `validate:"required"`
}

// CreateSessionResult describes the created or topped-up session.
type CreateSessionResult struct {
	SessionID    string    `json:"sessionId"`
	TotalCredits int64     `json:"totalCredits"`
	ExpiresAt    time.Time `json:"expiresAt"`
	Token        string    `json:"token"`
}

// CreateSession redeems a verified deposit into credits. Each gate below is
// hard: unsupported chain or token, a missing recipient, and a reused
// transaction reference are domain errors; a deposit that cannot be
// confirmed on-chain is creditgate.ErrNotVerified and may simply be
// retried. The transaction reference is claimed before credits are
// computed, and the claim is irreversible: once consumed, a reference can
// never be redeemed again, even if this call fails afterwards.
//
// If an unexpired session already exists for (wallet, chain), the new
// credits are merged into it and its expiry is reset; otherwise a fresh
// session is created. Either way the deposit buys a full 24 hours.
func (m *Manager) CreateSession(ctx context.Context, p CreateSessionParams) (*CreateSessionResult, error) {
	if err := m.validate.Struct(p); err != nil {
		return nil, fmt.Errorf("%w: %v", creditgate.ErrInvalidParams, err)
	}

	chain, ok := m.registry.Chain(p.ChainID)
	if !ok {
		return nil, creditgate.ErrUnsupportedChain
	}
	if err := validation.ValidateWalletAddress(chain.Family, p.Wallet); err != nil {
		return nil, fmt.Errorf("%w: %v", creditgate.ErrInvalidParams, err)
	}
	if err := validation.ValidateTxRef(chain.Family, p.TxRef); err != nil {
		return nil, fmt.Errorf("%w: %v", creditgate.ErrInvalidParams, err)
	}

	used, err := m.store.HasTransaction(ctx, p.ChainID, p.TxRef)
	if err != nil {
		return nil, fmt.Errorf("failed to check transaction: %w", err)
	}
	if used {
		return nil, creditgate.ErrTransactionUsed
	}

	token, ok := m.registry.Token(p.ChainID, p.Token)
	if !ok {
		return nil, creditgate.ErrUnsupportedToken
	}

	recipient, ok := m.recipients[p.ChainID]
	if !ok || recipient == "" {
		return nil, creditgate.ErrNoRecipient
	}

	amount, err := creditgate.ParseBaseAmount(p.Amount)
	if err != nil {
		return nil, err
	}

	verifier, ok := m.verifiers[p.ChainID]
	if !ok {
		return nil, creditgate.ErrUnsupportedChain
	}
	if !verifier.VerifyDeposit(ctx, verify.Deposit{
		TxRef:        p.TxRef,
		Recipient:    recipient,
		TokenAddress: token.Address,
		MinAmount:    amount,
	}) {
		m.logger.Warn("deposit not verified", "chain", p.ChainID, "txRef", p.TxRef, "wallet", p.Wallet)
		return nil, creditgate.ErrNotVerified
	}

	// Claim the transaction reference before computing credits. The claim
	// is the replay guard: it must win any concurrent redemption race, and
	// it is never rolled back.
	if err := m.store.MarkTransactionUsed(ctx, p.ChainID, p.TxRef); err != nil {
		return nil, err
	}

	credits := creditsFor(amount, token.PricePerQuery)
	if credits < 1 {
		// The deposit is real but bought nothing at the configured price.
		m.logger.Warn("deposit below price per query", "chain", p.ChainID, "txRef", p.TxRef, "amount", p.Amount)
		return nil, creditgate.ErrNotVerified
	}

	now := m.now()
	expiresAt := now.Add(creditgate.SessionDuration)

	existing, err := m.store.GetSessionByWallet(ctx, p.Wallet, p.ChainID)
	if err != nil {
		return nil, fmt.Errorf("failed to look up session: %w", err)
	}
	if existing != nil && existing.Expired(now) {
		if err := m.store.DeleteSession(ctx, existing.ID); err != nil {
			return nil, fmt.Errorf("failed to remove expired session: %w", err)
		}
		existing = nil
	}

	if existing != nil {
		// The top-up adjusts the stored balance in place, so a credit spent
		// between the lookup above and this call is never resurrected.
		updated, err := m.store.TopUpSession(ctx, existing.ID, credits, expiresAt)
		if err != nil {
			return nil, fmt.Errorf("failed to top up session: %w", err)
		}
		if updated != nil {
			m.logger.Info("session topped up",
				"sessionId", updated.ID, "chain", p.ChainID, "wallet", p.Wallet,
				"addedCredits", credits, "totalCredits", updated.TotalCredits)
			return &CreateSessionResult{
				SessionID:    updated.ID,
				TotalCredits: updated.TotalCredits,
				ExpiresAt:    updated.ExpiresAt,
				Token:        p.Token,
			}, nil
		}
		// The session vanished between lookup and top-up; fall through and
		// create a fresh one.
	}

	sess := &creditgate.Session{
		ID:               creditgate.NewSessionID(),
		Wallet:           p.Wallet,
		ChainID:          p.ChainID,
		TxRef:            p.TxRef,
		Token:            p.Token,
		TotalCredits:     credits,
		RemainingCredits: credits,
		CreatedAt:        now,
		ExpiresAt:        expiresAt,
		LastUsedAt:       now,
	}
	if err := m.store.SaveSession(ctx, sess); err != nil {
		return nil, fmt.Errorf("failed to save session: %w", err)
	}
	m.logger.Info("session created",
		"sessionId", sess.ID, "chain", p.ChainID, "wallet", p.Wallet,
		"credits", credits, "expiresAt", expiresAt)
	return &CreateSessionResult{
		SessionID:    sess.ID,
		TotalCredits: sess.TotalCredits,
		ExpiresAt:    sess.ExpiresAt,
		Token:        p.Token,
	}, nil
}

// creditsFor computes floor(amount / pricePerQuery), clamped to int64.
func creditsFor(amount *big.Int, pricePerQuery uint64) int64 {
	credits := new(big.Int).Div(amount, new(big.Int).SetUint64(pricePerQuery))
	if !credits.IsInt64() {
		return math.MaxInt64
	}
	return credits.Int64()
}

// GetSession returns the session with the given id, or nil if it is absent
// or expired. An expired record is deleted on first access.
func (m *Manager) GetSession(ctx context.Context, id string) (*creditgate.Session, error) {
	s, err := m.store.GetSession(ctx, id)
	if err != nil {
		return nil, err
	}
	return m.filterExpired(ctx, s)
}

// GetSessionByWallet returns the session for a (wallet, chain) pair with
// the same lazy-expiry rule as GetSession.
func (m *Manager) GetSessionByWallet(ctx context.Context, wallet, chainID string) (*creditgate.Session, error) {
	s, err := m.store.GetSessionByWallet(ctx, wallet, chainID)
	if err != nil {
		return nil, err
	}
	return m.filterExpired(ctx, s)
}

func (m *Manager) filterExpired(ctx context.Context, s *creditgate.Session) (*creditgate.Session, error) {
	if s == nil {
		return nil, nil
	}
	if s.Expired(m.now()) {
		if err := m.store.DeleteSession(ctx, s.ID); err != nil {
			return nil, fmt.Errorf("failed to remove expired session: %w", err)
		}
		return nil, nil
	}
	return s, nil
}

// UseCredit spends one credit from the session. It returns false if the
// session is absent, expired, or exhausted, and fails closed: when the
// decrement cannot be durably persisted the credit is not granted and the
// storage error is returned alongside false.
//
// This is the metering primitive: every paid operation must call it and
// proceed only on true.
func (m *Manager) UseCredit(ctx context.Context, id string) (bool, error) {
	ok, err := m.store.UseCredit(ctx, id, m.now())
	if err != nil {
		return false, err
	}
	return ok, nil
}

// SessionStatus returns the caller-facing status of a session, or nil if
// the session is absent or expired.
func (m *Manager) SessionStatus(ctx context.Context, id string) (*creditgate.SessionStatus, error) {
	s, err := m.GetSession(ctx, id)
	if err != nil {
		return nil, err
	}
	if s == nil {
		return nil, nil
	}
	return &creditgate.SessionStatus{
		Valid:            s.RemainingCredits > 0,
		RemainingCredits: s.RemainingCredits,
		TotalCredits:     s.TotalCredits,
		QueriesUsed:      s.QueriesUsed(),
		ExpiresAt:        s.ExpiresAt,
	}, nil
}

// CleanupExpiredSessions removes all sessions past their expiry and
// returns the number removed. It is safe to run concurrently with other
// operations: it only removes records reads would already treat as absent.
func (m *Manager) CleanupExpiredSessions(ctx context.Context) (int, error) {
	return m.store.CleanupExpiredSessions(ctx, m.now())
}

// PricingInfo returns the discovery projection for a chain: its accepted
// tokens and prices, the configured recipient wallet, and the fixed
// session duration. An empty chainID selects the first registered chain.
func (m *Manager) PricingInfo(chainID string) (*creditgate.PricingInfo, error) {
	if chainID == "" {
		ids := m.registry.ChainIDs()
		if len(ids) == 0 {
			return nil, creditgate.ErrUnsupportedChain
		}
		chainID = ids[0]
	}
	chain, ok := m.registry.Chain(chainID)
	if !ok {
		return nil, creditgate.ErrUnsupportedChain
	}
	recipient, ok := m.recipients[chainID]
	if !ok || recipient == "" {
		return nil, creditgate.ErrNoRecipient
	}

	tokens := make([]creditgate.TokenPricing, 0, len(chain.Tokens))
	for _, sym := range m.registry.TokenSymbols(chainID) {
		tok := chain.Tokens[sym]
		tokens = append(tokens, creditgate.TokenPricing{
			Symbol:        tok.Symbol,
			Address:       tok.Address,
			Decimals:      tok.Decimals,
			PricePerQuery: tok.PricePerQuery,
		})
	}
	return &creditgate.PricingInfo{
		ChainID:           chain.ID,
		ChainName:         chain.Name,
		RecipientWallet:   recipient,
		SessionDurationMS: creditgate.SessionDuration.Milliseconds(),
		SupportedChains:   m.registry.ChainIDs(),
		SupportedTokens:   tokens,
	}, nil
}
