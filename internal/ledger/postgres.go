package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/example/dispute-engine/internal/disputes"
)

// PostgresLedger persists balance transactions. Rows are insert-only;
// corrections post new entries rather than mutate old ones.
type PostgresLedger struct {
	Pool *pgxpool.Pool
}

func NewPostgresLedger(pool *pgxpool.Pool) *PostgresLedger {
	return &PostgresLedger{Pool: pool}
}

// Post writes a transaction set atomically, linked to its dispute.
func (pl *PostgresLedger) Post(ctx context.Context, disputeID string, txns []disputes.BalanceTransaction) error {
	if len(txns) == 0 {
		return nil
	}

	queryCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	tx, err := pl.Pool.BeginTx(queryCtx, pgx.TxOptions{
		IsoLevel:   pgx.Serializable,
		AccessMode: pgx.ReadWrite,
	})
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(queryCtx)

	for _, t := range txns {
		_, err := tx.Exec(queryCtx, `
			INSERT INTO balance_transactions (id, dispute_id, type, amount, currency, created, fee, net)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		`, t.ID, disputeID, t.Type, t.Amount, t.Currency, t.Created, t.Fee, t.Net)
		if err != nil {
			return fmt.Errorf("failed to insert balance transaction %s: %w", t.ID, err)
		}
	}
	return tx.Commit(queryCtx)
}

// ForDispute returns every transaction posted against a dispute, oldest
// first.
func (pl *PostgresLedger) ForDispute(ctx context.Context, disputeID string) ([]disputes.BalanceTransaction, error) {
	queryCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	rows, err := pl.Pool.Query(queryCtx, `
		SELECT id, type, amount, currency, created, fee, net
		FROM balance_transactions
		WHERE dispute_id = $1
		ORDER BY created ASC, id ASC
	`, disputeID)
	if err != nil {
		return nil, fmt.Errorf("failed to query balance transactions: %w", err)
	}
	defer rows.Close()

	var txns []disputes.BalanceTransaction
	for rows.Next() {
		var t disputes.BalanceTransaction
		if err := rows.Scan(&t.ID, &t.Type, &t.Amount, &t.Currency, &t.Created, &t.Fee, &t.Net); err != nil {
			return nil, fmt.Errorf("failed to scan balance transaction: %w", err)
		}
		txns = append(txns, t)
	}
	return txns, rows.Err()
}

// Net returns the net balance effect of a dispute's lifecycle so far.
func (pl *PostgresLedger) Net(ctx context.Context, disputeID string) (int64, error) {
	queryCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var sum int64
	err := pl.Pool.QueryRow(queryCtx, `
		SELECT COALESCE(SUM(amount), 0) FROM balance_transactions WHERE dispute_id = $1
	`, disputeID).Scan(&sum)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to sum balance transactions: %w", err)
	}
	return sum, nil
}
