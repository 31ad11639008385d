package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	creditgate "github.com/mark3labs/creditgate-go"
)

// RedisStore is the managed key-value backend. Sessions and their wallet
// index are written with a TTL matching the session expiry, so expiry is
// passive and CleanupExpiredSessions is a no-op; callers still apply the
// lazy-read expiry check, which covers the window between logical expiry
// and key eviction. Consumed transaction references are kept without TTL.
type RedisStore struct {
	client *redis.Client
	now    func() time.Time
}

const (
	sessionKeyPrefix = "creditgate:session:"
	walletKeyPrefix  = "creditgate:wallet:"
	txKeyPrefix      = "creditgate:tx:"
)

// useCreditRetries bounds optimistic-lock retries on contended sessions.
const useCreditRetries = 5

// RedisOption customizes optional RedisStore collaborators.
type RedisOption func(*RedisStore)

// WithRedisClock overrides the time source used for key TTLs and claim
// timestamps, mainly for tests. Defaults to time.Now.
func WithRedisClock(now func() time.Time) RedisOption {
	return func(r *RedisStore) { r.now = now }
}

// NewRedisStore creates a store backed by the given Redis options and
// verifies connectivity.
func NewRedisStore(ctx context.Context, opts *redis.Options, storeOpts ...RedisOption) (*RedisStore, error) {
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	r := &RedisStore{client: client, now: time.Now}
	for _, opt := range storeOpts {
		opt(r)
	}
	return r, nil
}

// sessionTTL is the remaining lifetime of a session key at now. A zero or
// negative result means the session is already expired.
func sessionTTL(expiresAt, now time.Time) time.Duration {
	return expiresAt.Sub(now)
}

func sessionKey(id string) string { return sessionKeyPrefix + id }

func redisWalletKey(wallet, chainID string) string {
	return walletKeyPrefix + chainID + ":" + wallet
}

func redisTxKey(chainID, txRef string) string {
	return txKeyPrefix + chainID + ":" + txRef
}

// SaveSession implements Store.
func (r *RedisStore) SaveSession(ctx context.Context, s *creditgate.Session) error {
	ttl := sessionTTL(s.ExpiresAt, r.now())
	if ttl <= 0 {
		return r.DeleteSession(ctx, s.ID)
	}
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("failed to encode session: %w", err)
	}
	pipe := r.client.TxPipeline()
	pipe.Set(ctx, sessionKey(s.ID), data, ttl)
	pipe.Set(ctx, redisWalletKey(s.Wallet, s.ChainID), s.ID, ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}
	return nil
}

// GetSession implements Store.
func (r *RedisStore) GetSession(ctx context.Context, id string) (*creditgate.Session, error) {
	data, err := r.client.Get(ctx, sessionKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read session: %w", err)
	}
	var s creditgate.Session
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("failed to decode session: %w", err)
	}
	return &s, nil
}

// GetSessionByWallet implements Store.
func (r *RedisStore) GetSessionByWallet(ctx context.Context, wallet, chainID string) (*creditgate.Session, error) {
	id, err := r.client.Get(ctx, redisWalletKey(wallet, chainID)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read wallet index: %w", err)
	}
	return r.GetSession(ctx, id)
}

// DeleteSession implements Store.
func (r *RedisStore) DeleteSession(ctx context.Context, id string) error {
	s, err := r.GetSession(ctx, id)
	if err != nil {
		return err
	}
	if s == nil {
		return nil
	}
	pipe := r.client.TxPipeline()
	pipe.Del(ctx, sessionKey(id))
	pipe.Del(ctx, redisWalletKey(s.Wallet, s.ChainID))
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

// HasTransaction implements Store.
func (r *RedisStore) HasTransaction(ctx context.Context, chainID, txRef string) (bool, error) {
	n, err := r.client.Exists(ctx, redisTxKey(chainID, txRef)).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check transaction: %w", err)
	}
	return n > 0, nil
}

// MarkTransactionUsed implements Store. SETNX makes the claim atomic
// across concurrent redeemers.
func (r *RedisStore) MarkTransactionUsed(ctx context.Context, chainID, txRef string) error {
	claimed, err := r.client.SetNX(ctx, redisTxKey(chainID, txRef), r.now().UnixMilli(), 0).Result()
	if err != nil {
		return fmt.Errorf("failed to mark transaction used: %w", err)
	}
	if !claimed {
		return creditgate.ErrTransactionUsed
	}
	return nil
}

// TopUpSession implements Store. Like UseCredit, the adjustment runs under
// WATCH: a spend that lands mid-merge invalidates the transaction and the
// top-up re-reads the fresh balance.
func (r *RedisStore) TopUpSession(ctx context.Context, id string, credits int64, expiresAt time.Time) (*creditgate.Session, error) {
	key := sessionKey(id)
	var updated *creditgate.Session

	txf := func(tx *redis.Tx) error {
		data, err := tx.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			return nil
		}
		if err != nil {
			return err
		}
		var s creditgate.Session
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		s.TotalCredits += credits
		s.RemainingCredits += credits
		s.ExpiresAt = expiresAt
		buf, err := json.Marshal(&s)
		if err != nil {
			return err
		}
		ttl := sessionTTL(expiresAt, r.now())
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, buf, ttl)
			pipe.Set(ctx, redisWalletKey(s.Wallet, s.ChainID), s.ID, ttl)
			return nil
		})
		if err == nil {
			updated = &s
		}
		return err
	}

	for i := 0; i < useCreditRetries; i++ {
		err := r.client.Watch(ctx, txf, key)
		if err == nil {
			return updated, nil
		}
		if errors.Is(err, redis.TxFailedErr) {
			updated = nil
			continue
		}
		return nil, fmt.Errorf("failed to top up session: %w", err)
	}
	return nil, fmt.Errorf("failed to top up session: %w", redis.TxFailedErr)
}

// UseCredit implements Store. The decrement runs under WATCH so concurrent
// spends against the same session serialize; a contended transaction is
// retried a bounded number of times.
func (r *RedisStore) UseCredit(ctx context.Context, id string, now time.Time) (bool, error) {
	key := sessionKey(id)
	spent := false

	txf := func(tx *redis.Tx) error {
		data, err := tx.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			return nil
		}
		if err != nil {
			return err
		}
		var s creditgate.Session
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		if s.Expired(now) || s.RemainingCredits <= 0 {
			return nil
		}
		s.RemainingCredits--
		s.LastUsedAt = now
		updated, err := json.Marshal(&s)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, updated, redis.KeepTTL)
			return nil
		})
		if err == nil {
			spent = true
		}
		return err
	}

	for i := 0; i < useCreditRetries; i++ {
		err := r.client.Watch(ctx, txf, key)
		if err == nil {
			return spent, nil
		}
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return false, fmt.Errorf("failed to use credit: %w", err)
	}
	return false, fmt.Errorf("failed to use credit: %w", redis.TxFailedErr)
}

// CleanupExpiredSessions implements Store. Redis evicts expired keys
// natively, so the sweep has nothing to do.
func (r *RedisStore) CleanupExpiredSessions(context.Context, time.Time) (int, error) {
	return 0, nil
}

// Close implements Store.
func (r *RedisStore) Close() error {
	return r.client.Close()
}
