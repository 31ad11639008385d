package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	creditgate "github.com/mark3labs/creditgate-go"
)

// SQLiteStore is the local transactional file-based backend. The consumed
// transaction set is a primary-keyed table, so the idempotency claim is a
// single conditional insert. Expiry is swept actively via
// CleanupExpiredSessions in addition to the caller's lazy-read checks.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) the database at path and prepares the
// schema.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// Serialized writes avoid SQLITE_BUSY under concurrent claims.
	db.SetMaxOpenConns(1)
	s := &SQLiteStore{db: db}
	if err := s.init(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) init() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS sessions (
            id TEXT PRIMARY KEY,
            wallet TEXT NOT NULL,
            chain_id TEXT NOT NULL,
            tx_ref TEXT NOT NULL,
            token TEXT NOT NULL,
            total_credits INTEGER NOT NULL,
            remaining_credits INTEGER NOT NULL,
            created_at INTEGER NOT NULL,
            expires_at INTEGER NOT NULL,
            last_used_at INTEGER NOT NULL,
            UNIQUE(wallet, chain_id)
        );`,
		`CREATE INDEX IF NOT EXISTS idx_sessions_expires_at ON sessions(expires_at);`,
		`CREATE TABLE IF NOT EXISTS consumed_transactions (
            chain_id TEXT NOT NULL,
            tx_ref TEXT NOT NULL,
            used_at INTEGER NOT NULL,
            PRIMARY KEY (chain_id, tx_ref)
        );`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("failed to prepare schema: %w", err)
		}
	}
	return nil
}

// SaveSession implements Store.
func (s *SQLiteStore) SaveSession(ctx context.Context, sess *creditgate.Session) error {
	_, err := s.db.ExecContext(ctx, `
        INSERT INTO sessions
            (id, wallet, chain_id, tx_ref, token, total_credits, remaining_credits, created_at, expires_at, last_used_at)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
        ON CONFLICT(id) DO UPDATE SET
            tx_ref = excluded.tx_ref,
            token = excluded.token,
            total_credits = excluded.total_credits,
            remaining_credits = excluded.remaining_credits,
            expires_at = excluded.expires_at,
            last_used_at = excluded.last_used_at`,
		sess.ID, sess.Wallet, sess.ChainID, sess.TxRef, sess.Token,
		sess.TotalCredits, sess.RemainingCredits,
		sess.CreatedAt.UnixMilli(), sess.ExpiresAt.UnixMilli(), sess.LastUsedAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}
	return nil
}

// GetSession implements Store.
func (s *SQLiteStore) GetSession(ctx context.Context, id string) (*creditgate.Session, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, wallet, chain_id, tx_ref, token, total_credits, remaining_credits, created_at, expires_at, last_used_at
         FROM sessions WHERE id = ?`, id)
	return scanSession(row)
}

// GetSessionByWallet implements Store.
func (s *SQLiteStore) GetSessionByWallet(ctx context.Context, wallet, chainID string) (*creditgate.Session, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, wallet, chain_id, tx_ref, token, total_credits, remaining_credits, created_at, expires_at, last_used_at
         FROM sessions WHERE wallet = ? AND chain_id = ?`, wallet, chainID)
	return scanSession(row)
}

func scanSession(row *sql.Row) (*creditgate.Session, error) {
	var sess creditgate.Session
	var createdAt, expiresAt, lastUsedAt int64
	err := row.Scan(&sess.ID, &sess.Wallet, &sess.ChainID, &sess.TxRef, &sess.Token,
		&sess.TotalCredits, &sess.RemainingCredits, &createdAt, &expiresAt, &lastUsedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read session: %w", err)
	}
	sess.CreatedAt = time.UnixMilli(createdAt).UTC()
	sess.ExpiresAt = time.UnixMilli(expiresAt).UTC()
	sess.LastUsedAt = time.UnixMilli(lastUsedAt).UTC()
	return &sess, nil
}

// DeleteSession implements Store.
func (s *SQLiteStore) DeleteSession(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

// HasTransaction implements Store.
func (s *SQLiteStore) HasTransaction(ctx context.Context, chainID, txRef string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx,
		`SELECT 1 FROM consumed_transactions WHERE chain_id = ? AND tx_ref = ?`, chainID, txRef).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check transaction: %w", err)
	}
	return true, nil
}

// MarkTransactionUsed implements Store. The primary key makes the claim a
// single atomic conditional insert: zero rows affected means another caller
// already holds the claim.
func (s *SQLiteStore) MarkTransactionUsed(ctx context.Context, chainID, txRef string) error {
	res, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO consumed_transactions (chain_id, tx_ref, used_at) VALUES (?, ?, ?)`,
		chainID, txRef, time.Now().UnixMilli())
	if err != nil {
		return fmt.Errorf("failed to mark transaction used: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to mark transaction used: %w", err)
	}
	if n == 0 {
		return creditgate.ErrTransactionUsed
	}
	return nil
}

// TopUpSession implements Store. Like UseCredit, the adjustment is a single
// relative UPDATE, so it composes with concurrent decrements instead of
// overwriting them.
func (s *SQLiteStore) TopUpSession(ctx context.Context, id string, credits int64, expiresAt time.Time) (*creditgate.Session, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE sessions
         SET total_credits = total_credits + ?, remaining_credits = remaining_credits + ?, expires_at = ?
         WHERE id = ?`,
		credits, credits, expiresAt.UnixMilli(), id)
	if err != nil {
		return nil, fmt.Errorf("failed to top up session: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("failed to top up session: %w", err)
	}
	if n == 0 {
		return nil, nil
	}
	return s.GetSession(ctx, id)
}

// UseCredit implements Store. The conditional update serializes concurrent
// spends: the balance never drops below zero.
func (s *SQLiteStore) UseCredit(ctx context.Context, id string, now time.Time) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE sessions
         SET remaining_credits = remaining_credits - 1, last_used_at = ?
         WHERE id = ? AND remaining_credits > 0 AND expires_at > ?`,
		now.UnixMilli(), id, now.UnixMilli())
	if err != nil {
		return false, fmt.Errorf("failed to use credit: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to use credit: %w", err)
	}
	return n == 1, nil
}

// CleanupExpiredSessions implements Store.
func (s *SQLiteStore) CleanupExpiredSessions(ctx context.Context, now time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE expires_at < ?`, now.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("failed to clean up sessions: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to clean up sessions: %w", err)
	}
	return int(n), nil
}

// Close implements Store.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
