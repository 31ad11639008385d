// Package store persists credit sessions and the set of consumed deposit
// transaction references. The Store interface is implementation-agnostic;
// SQLiteStore is the local transactional file-based backend, RedisStore the
// managed key-value backend, and MemoryStore an in-process backend for
// tests and embedding.
//
// Three operations carry the correctness burden. MarkTransactionUsed is an
// atomic claim: exactly one caller ever succeeds for a given (chain, txRef)
// pair, and every later or concurrent caller gets
// creditgate.ErrTransactionUsed. UseCredit is a conditional decrement:
// concurrent spends against one session serialize in the backend so the
// balance never goes below zero and the last credit is granted once.
// TopUpSession is the matching conditional increment: a deposit merge
// adjusts the stored balance in place, so a spend landing mid-merge is
// never overwritten.
package store

import (
	"context"
	"time"

	creditgate "github.com/mark3labs/creditgate-go"
)

// Store is the persistence contract consumed by the session manager.
// The store is the single source of truth: callers hold no session state
// across calls.
type Store interface {
	// SaveSession inserts or updates a session keyed by its id.
	SaveSession(ctx context.Context, s *creditgate.Session) error

	// GetSession returns the session with the given id, or (nil, nil) if
	// absent. No expiry filtering happens here; callers enforce it.
	GetSession(ctx context.Context, id string) (*creditgate.Session, error)

	// GetSessionByWallet returns the session for a (wallet, chain) pair,
	// or (nil, nil) if absent.
	GetSessionByWallet(ctx context.Context, wallet, chainID string) (*creditgate.Session, error)

	// DeleteSession removes a session. Deleting an absent session is not
	// an error.
	DeleteSession(ctx context.Context, id string) error

	// HasTransaction reports whether a deposit transaction reference has
	// already been consumed on the given chain.
	HasTransaction(ctx context.Context, chainID, txRef string) (bool, error)

	// MarkTransactionUsed atomically claims a deposit transaction
	// reference. Returns creditgate.ErrTransactionUsed if any caller has
	// claimed it before, including concurrently.
	MarkTransactionUsed(ctx context.Context, chainID, txRef string) error

	// TopUpSession atomically adds credits to a session's total and
	// remaining balances and resets its expiry, returning the updated
	// session, or (nil, nil) if the session is absent.
	TopUpSession(ctx context.Context, id string, credits int64, expiresAt time.Time) (*creditgate.Session, error)

	// UseCredit atomically decrements a session's remaining credits by
	// one and stamps last-used, provided the session exists, is unexpired
	// at now, and has credits left. Returns whether a credit was spent.
	UseCredit(ctx context.Context, id string, now time.Time) (bool, error)

	// CleanupExpiredSessions removes sessions expired at now and returns
	// how many were removed. Backends with native per-key expiry may
	// implement this as a no-op.
	CleanupExpiredSessions(ctx context.Context, now time.Time) (int, error)

	// Close releases backend resources.
	Close() error
}
