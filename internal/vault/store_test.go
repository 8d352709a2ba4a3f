package vault

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	_ "github.com/mattn/go-sqlite3"
)

func newTestStore(t *testing.T) *TokenStore {
	t.Helper()

	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	ts := NewTokenStore(db)
	if err := ts.Migrate(context.Background()); err != nil {
		t.Fatalf("migrate failed: %v", err)
	}
	return ts
}

func TestTokenStoreRegisterAndLookup(t *testing.T) {
	ts := newTestStore(t)
	ctx := context.Background()

	card := validCard()
	card.Provider = "network_vault"
	card.Expiry = 1800000000

	if err := ts.Register(ctx, card); err != nil {
		t.Fatalf("register failed: %v", err)
	}

	got, err := ts.Lookup(ctx, card.Token)
	if err != nil {
		t.Fatalf("lookup failed: %v", err)
	}
	if *got != card {
		t.Errorf("round trip mismatch: got %+v want %+v", *got, card)
	}

	// Duplicate tokens hit the unique constraint.
	if err := ts.Register(ctx, card); err == nil {
		t.Error("duplicate register succeeded")
	}
}

func TestTokenStoreRejectsInvalidFormats(t *testing.T) {
	ts := newTestStore(t)

	card := validCard()
	card.Token = "tok_short"
	err := ts.Register(context.Background(), card)
	if !errors.Is(err, ErrInvalidTokenFormat) {
		t.Errorf("expected format error, got %v", err)
	}
}

func TestTokenStoreLookupMissing(t *testing.T) {
	ts := newTestStore(t)

	_, err := ts.Lookup(context.Background(), "tok_MissingMissingMissing00")
	if !errors.Is(err, ErrTokenNotFound) {
		t.Errorf("expected ErrTokenNotFound, got %v", err)
	}
}

func TestTokenStoreSetStatus(t *testing.T) {
	ts := newTestStore(t)
	ctx := context.Background()

	card := validCard()
	if err := ts.Register(ctx, card); err != nil {
		t.Fatalf("register failed: %v", err)
	}

	if err := ts.SetStatus(ctx, card.Token, TokenStatusRevoked); err != nil {
		t.Fatalf("set status failed: %v", err)
	}

	got, err := ts.Lookup(ctx, card.Token)
	if err != nil {
		t.Fatalf("lookup failed: %v", err)
	}
	if got.Status != TokenStatusRevoked {
		t.Errorf("status not updated: %s", got.Status)
	}

	if err := ts.SetStatus(ctx, "tok_MissingMissingMissing00", TokenStatusActive); !errors.Is(err, ErrTokenNotFound) {
		t.Errorf("expected ErrTokenNotFound, got %v", err)
	}
}
