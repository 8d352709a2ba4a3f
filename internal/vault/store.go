package vault

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// ErrTokenNotFound is returned when a token is not in the registry.
var ErrTokenNotFound = errors.New("token not found")

// TokenStore is the registry of tokenized card metadata. It holds tokens,
// fingerprints and display data only; no cardholder data ever reaches it.
type TokenStore struct {
	db *sql.DB
}

// NewTokenStore creates a token store over an opened database handle.
func NewTokenStore(db *sql.DB) *TokenStore {
	return &TokenStore{db: db}
}

// Migrate creates the registry schema if it does not exist.
func (ts *TokenStore) Migrate(ctx context.Context) error {
	const schema = `
	CREATE TABLE IF NOT EXISTS card_tokens (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		token TEXT UNIQUE NOT NULL,
		last4 TEXT NOT NULL,
		fingerprint TEXT NOT NULL,
		provider TEXT NOT NULL DEFAULT '',
		format TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL DEFAULT 'active',
		expiry INTEGER NOT NULL DEFAULT 0,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_card_tokens_fingerprint ON card_tokens(fingerprint);
	CREATE INDEX IF NOT EXISTS idx_card_tokens_status ON card_tokens(status);
	`
	_, err := ts.db.ExecContext(ctx, schema)
	if err != nil {
		return fmt.Errorf("failed to run token store migrations: %w", err)
	}
	return nil
}

// Register stores a tokenized card after validating its formats. Duplicate
// tokens are rejected by the unique constraint.
func (ts *TokenStore) Register(ctx context.Context, card TokenizedCardData) error {
	if err := ValidateCardIdentifier(card); err != nil {
		return err
	}
	if card.Status == "" {
		card.Status = TokenStatusActive
	}

	_, err := ts.db.ExecContext(ctx, `
		INSERT INTO card_tokens (token, last4, fingerprint, provider, format, status, expiry, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, card.Token, card.Last4, card.Fingerprint, card.Provider, card.Format, string(card.Status), card.Expiry, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("failed to register token %s: %w", MaskToken(card.Token), err)
	}
	return nil
}

// Lookup fetches a tokenized card by token.
func (ts *TokenStore) Lookup(ctx context.Context, token string) (*TokenizedCardData, error) {
	var card TokenizedCardData
	var status string
	err := ts.db.QueryRowContext(ctx, `
		SELECT token, last4, fingerprint, provider, format, status, expiry
		FROM card_tokens
		WHERE token = ?
	`, token).Scan(&card.Token, &card.Last4, &card.Fingerprint, &card.Provider, &card.Format, &status, &card.Expiry)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrTokenNotFound
		}
		return nil, fmt.Errorf("failed to look up token %s: %w", MaskToken(token), err)
	}
	card.Status = TokenStatus(status)
	return &card, nil
}

// SetStatus transitions a token's lifecycle state.
func (ts *TokenStore) SetStatus(ctx context.Context, token string, status TokenStatus) error {
	res, err := ts.db.ExecContext(ctx, `UPDATE card_tokens SET status = ? WHERE token = ?`, string(status), token)
	if err != nil {
		return fmt.Errorf("failed to update token status: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrTokenNotFound
	}
	return nil
}
