package disputes

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	ErrDisputeNotFound = errors.New("dispute not found")
	ErrDisputeClosed   = errors.New("dispute is in a terminal status")
)

// PostgresStore persists disputes. Evidence, payment method and eligibility
// snapshots live in JSONB columns; the scalar columns mirror the fields the
// deadline daemon and list queries filter on.
type PostgresStore struct {
	Pool *pgxpool.Pool
}

func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{Pool: pool}
}

const disputeColumns = `
	id, amount, currency, status, reason, created, charge, payment_intent,
	due_by, has_evidence, past_due, submission_count,
	point_of_sale, foreign_transaction,
	evidence, enhanced_evidence, payment_method, eligibility
`

// CreateDispute inserts a new dispute row. The dispute must already pass
// Validate; the store does not re-check enum membership.
func (s *PostgresStore) CreateDispute(ctx context.Context, d *Dispute) error {
	if err := d.Validate(); err != nil {
		return err
	}

	queryCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	evidence, err := json.Marshal(d.Evidence)
	if err != nil {
		return fmt.Errorf("failed to encode evidence: %w", err)
	}
	var enhanced []byte
	if d.EnhancedEvidence != nil {
		if enhanced, err = json.Marshal(d.EnhancedEvidence); err != nil {
			return fmt.Errorf("failed to encode enhanced evidence: %w", err)
		}
	}
	paymentMethod, err := json.Marshal(d.PaymentMethod)
	if err != nil {
		return fmt.Errorf("failed to encode payment method: %w", err)
	}
	var eligibility []byte
	if d.EvidenceDetails.EnhancedEligibility != nil {
		if eligibility, err = json.Marshal(d.EvidenceDetails.EnhancedEligibility); err != nil {
			return fmt.Errorf("failed to encode eligibility: %w", err)
		}
	}

	_, err = s.Pool.Exec(queryCtx, `
		INSERT INTO disputes (
			id, amount, currency, status, reason, created, charge, payment_intent,
			due_by, has_evidence, past_due, submission_count,
			point_of_sale, foreign_transaction,
			evidence, enhanced_evidence, payment_method, eligibility
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18)
	`, d.ID, d.Amount, d.Currency, d.Status, d.Reason, d.Created, d.Charge, d.PaymentIntent,
		d.EvidenceDetails.DueBy, d.EvidenceDetails.HasEvidence, d.EvidenceDetails.PastDue,
		d.EvidenceDetails.SubmissionCount, d.PointOfSale, d.ForeignTransaction,
		evidence, enhanced, paymentMethod, eligibility)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return fmt.Errorf("dispute %s already exists", d.ID)
		}
		return fmt.Errorf("failed to insert dispute: %w", err)
	}
	return nil
}

// GetDispute loads a dispute by id.
func (s *PostgresStore) GetDispute(ctx context.Context, id string) (*Dispute, error) {
	queryCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	row := s.Pool.QueryRow(queryCtx, `SELECT `+disputeColumns+` FROM disputes WHERE id = $1`, id)
	d, err := scanDispute(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrDisputeNotFound
		}
		return nil, fmt.Errorf("failed to get dispute: %w", err)
	}
	return d, nil
}

// UpdateEvidence replaces the stored evidence and bumps the submission
// counter. Terminal disputes reject further submissions.
func (s *PostgresStore) UpdateEvidence(ctx context.Context, id string, e *Evidence) error {
	return s.withSerializableTx(ctx, func(queryCtx context.Context, tx pgx.Tx) error {
		var status DisputeStatus
		err := tx.QueryRow(queryCtx,
			`SELECT status FROM disputes WHERE id = $1 FOR UPDATE`, id).Scan(&status)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return ErrDisputeNotFound
			}
			return fmt.Errorf("failed to lock dispute: %w", err)
		}
		if (&Dispute{Status: status}).IsTerminal() {
			return ErrDisputeClosed
		}

		evidence, err := json.Marshal(e)
		if err != nil {
			return fmt.Errorf("failed to encode evidence: %w", err)
		}
		_, err = tx.Exec(queryCtx, `
			UPDATE disputes
			SET evidence = $2,
			    has_evidence = $3,
			    submission_count = submission_count + 1,
			    status = CASE WHEN status = 'needs_response' THEN 'under_review'
			                  WHEN status = 'warning_needs_response' THEN 'warning_under_review'
			                  ELSE status END
			WHERE id = $1
		`, id, evidence, e.HasAnyField())
		if err != nil {
			return fmt.Errorf("failed to update evidence: %w", err)
		}
		return nil
	})
}

// SaveEligibility stores an eligibility evaluation snapshot. The snapshot
// lives inside EvidenceDetails, which is immutable once the dispute is
// terminal.
func (s *PostgresStore) SaveEligibility(ctx context.Context, id string, el *EnhancedEligibility) error {
	payload, err := json.Marshal(el)
	if err != nil {
		return fmt.Errorf("failed to encode eligibility: %w", err)
	}
	return s.withSerializableTx(ctx, func(queryCtx context.Context, tx pgx.Tx) error {
		var status DisputeStatus
		err := tx.QueryRow(queryCtx,
			`SELECT status FROM disputes WHERE id = $1 FOR UPDATE`, id).Scan(&status)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return ErrDisputeNotFound
			}
			return fmt.Errorf("failed to lock dispute: %w", err)
		}
		if (&Dispute{Status: status}).IsTerminal() {
			return ErrDisputeClosed
		}
		if _, err := tx.Exec(queryCtx,
			`UPDATE disputes SET eligibility = $2 WHERE id = $1`, id, payload); err != nil {
			return fmt.Errorf("failed to save eligibility: %w", err)
		}
		return nil
	})
}

// ResolveDispute moves a dispute into a terminal status. The transition is
// one-way; resolving an already terminal dispute fails.
func (s *PostgresStore) ResolveDispute(ctx context.Context, id string, outcome DisputeStatus) error {
	if outcome != StatusWon && outcome != StatusLost && outcome != StatusChargeRefunded && outcome != StatusWarningClosed {
		return fmt.Errorf("status %q is not a terminal outcome", outcome)
	}
	return s.withSerializableTx(ctx, func(queryCtx context.Context, tx pgx.Tx) error {
		var status DisputeStatus
		err := tx.QueryRow(queryCtx,
			`SELECT status FROM disputes WHERE id = $1 FOR UPDATE`, id).Scan(&status)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return ErrDisputeNotFound
			}
			return fmt.Errorf("failed to lock dispute: %w", err)
		}
		if (&Dispute{Status: status}).IsTerminal() {
			return ErrDisputeClosed
		}
		if _, err := tx.Exec(queryCtx,
			`UPDATE disputes SET status = $2 WHERE id = $1`, id, outcome); err != nil {
			return fmt.Errorf("failed to resolve dispute: %w", err)
		}
		return nil
	})
}

// ListPastDue returns ids of open disputes whose response deadline has
// elapsed but that are not yet flagged past_due.
func (s *PostgresStore) ListPastDue(ctx context.Context, now int64, limit int) ([]string, error) {
	queryCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	rows, err := s.Pool.Query(queryCtx, `
		SELECT id FROM disputes
		WHERE due_by > 0
		  AND due_by < $1
		  AND past_due = FALSE
		  AND status IN ('needs_response', 'warning_needs_response')
		ORDER BY due_by ASC
		LIMIT $2
	`, now, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query past-due disputes: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan dispute id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// MarkPastDue flags a dispute whose response window closed without evidence.
func (s *PostgresStore) MarkPastDue(ctx context.Context, id string) error {
	queryCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	tag, err := s.Pool.Exec(queryCtx,
		`UPDATE disputes SET past_due = TRUE WHERE id = $1 AND past_due = FALSE`, id)
	if err != nil {
		return fmt.Errorf("failed to mark dispute past due: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrDisputeNotFound
	}
	return nil
}

// withSerializableTx runs fn in a SERIALIZABLE transaction, retrying
// serialization failures the way the ledger writer does.
func (s *PostgresStore) withSerializableTx(ctx context.Context, fn func(context.Context, pgx.Tx) error) error {
	const maxRetries = 3

	for attempt := 0; attempt < maxRetries; attempt++ {
		err := s.runTx(ctx, fn)
		if err != nil {
			var pgErr *pgconn.PgError
			if errors.As(err, &pgErr) && pgErr.Code == "40001" {
				if attempt == maxRetries-1 {
					return fmt.Errorf("transaction failed after %d retries due to serialization failure: %w", maxRetries, err)
				}
				time.Sleep(time.Duration(attempt+1) * 10 * time.Millisecond)
				continue
			}
			return err
		}
		break
	}
	return nil
}

func (s *PostgresStore) runTx(ctx context.Context, fn func(context.Context, pgx.Tx) error) error {
	queryCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	conn, err := s.Pool.Acquire(queryCtx)
	if err != nil {
		return fmt.Errorf("failed to acquire connection: %w", err)
	}
	defer conn.Release()

	tx, err := conn.BeginTx(queryCtx, pgx.TxOptions{
		IsoLevel:   pgx.Serializable,
		AccessMode: pgx.ReadWrite,
	})
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(queryCtx)

	if err := fn(queryCtx, tx); err != nil {
		return err
	}
	return tx.Commit(queryCtx)
}

func scanDispute(row pgx.Row) (*Dispute, error) {
	var (
		d           Dispute
		evidence    []byte
		enhanced    []byte
		payment     []byte
		eligibility []byte
	)
	err := row.Scan(
		&d.ID, &d.Amount, &d.Currency, &d.Status, &d.Reason, &d.Created,
		&d.Charge, &d.PaymentIntent,
		&d.EvidenceDetails.DueBy, &d.EvidenceDetails.HasEvidence,
		&d.EvidenceDetails.PastDue, &d.EvidenceDetails.SubmissionCount,
		&d.PointOfSale, &d.ForeignTransaction,
		&evidence, &enhanced, &payment, &eligibility,
	)
	if err != nil {
		return nil, err
	}
	if len(evidence) > 0 {
		if err := json.Unmarshal(evidence, &d.Evidence); err != nil {
			return nil, fmt.Errorf("failed to decode evidence: %w", err)
		}
	}
	if len(enhanced) > 0 {
		d.EnhancedEvidence = &EnhancedEvidence{}
		if err := json.Unmarshal(enhanced, d.EnhancedEvidence); err != nil {
			return nil, fmt.Errorf("failed to decode enhanced evidence: %w", err)
		}
	}
	if len(payment) > 0 {
		if err := json.Unmarshal(payment, &d.PaymentMethod); err != nil {
			return nil, fmt.Errorf("failed to decode payment method: %w", err)
		}
	}
	if len(eligibility) > 0 {
		d.EvidenceDetails.EnhancedEligibility = &EnhancedEligibility{}
		if err := json.Unmarshal(eligibility, d.EvidenceDetails.EnhancedEligibility); err != nil {
			return nil, fmt.Errorf("failed to decode eligibility: %w", err)
		}
	}
	return &d, nil
}
