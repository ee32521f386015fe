package transaction

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/mbd888/fraudops/internal/escrow"
)

// PostgresStore implements Store with PostgreSQL
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgreSQL-backed transaction store
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Migrate creates the transactions table. Mirrors migrations/00001; kept
// here so demo deployments work without running the migrate binary.
func (p *PostgresStore) Migrate(ctx context.Context) error {
	_, err := p.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS transactions (
			id                  VARCHAR(40) PRIMARY KEY,
			customer            TEXT NOT NULL DEFAULT '',
			phone               TEXT NOT NULL DEFAULT '',
			recipient           TEXT NOT NULL DEFAULT '',
			amount              NUMERIC(20,2) NOT NULL DEFAULT 0,
			currency            VARCHAR(8) NOT NULL DEFAULT 'GBP',
			method              VARCHAR(32) NOT NULL DEFAULT 'bank_transfer',
			message             TEXT NOT NULL DEFAULT '',
			reason              TEXT NOT NULL DEFAULT '',
			status              VARCHAR(16) NOT NULL,
			sandbox             BOOLEAN NOT NULL DEFAULT FALSE,
			created_at          TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			session_id          TEXT NOT NULL DEFAULT '',
			device_fingerprint  TEXT NOT NULL DEFAULT '',
			behavior            TEXT NOT NULL DEFAULT '',
			escrow              JSONB,
			llm_explanation     TEXT NOT NULL DEFAULT '',
			semantic_context    TEXT NOT NULL DEFAULT '',
			CONSTRAINT chk_amount_nonneg CHECK (amount >= 0)
		);

		CREATE INDEX IF NOT EXISTS idx_transactions_status ON transactions(status);
		CREATE INDEX IF NOT EXISTS idx_transactions_created ON transactions(created_at DESC);
	`)
	return err
}

func (p *PostgresStore) Create(ctx context.Context, rec *Record) error {
	escrowJSON, err := marshalEscrow(rec.Escrow)
	if err != nil {
		return err
	}

	_, err = p.db.ExecContext(ctx, `
		INSERT INTO transactions (
			id, customer, phone, recipient, amount, currency, method,
			message, reason, status, sandbox, created_at,
			session_id, device_fingerprint, behavior,
			escrow, llm_explanation, semantic_context
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18)
	`,
		rec.ID, rec.Customer, rec.Phone, rec.Recipient, rec.Amount, rec.Currency, rec.Method,
		rec.Message, rec.Reason, string(rec.Status), rec.Sandbox, rec.CreatedAt,
		rec.SessionID, rec.DeviceFingerprint, rec.Behavior,
		escrowJSON, rec.LLMExplanation, rec.SemanticContext,
	)
	if err != nil {
		return fmt.Errorf("failed to insert transaction: %w", err)
	}
	return nil
}

func (p *PostgresStore) Get(ctx context.Context, id string) (*Record, error) {
	row := p.db.QueryRowContext(ctx, `
		SELECT id, customer, phone, recipient, amount, currency, method,
		       message, reason, status, sandbox, created_at,
		       session_id, device_fingerprint, behavior,
		       escrow, llm_explanation, semantic_context
		FROM transactions WHERE id = $1
	`, id)

	rec, err := scanRecord(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	return rec, err
}

func (p *PostgresStore) Update(ctx context.Context, rec *Record) error {
	escrowJSON, err := marshalEscrow(rec.Escrow)
	if err != nil {
		return err
	}

	res, err := p.db.ExecContext(ctx, `
		UPDATE transactions
		SET status = $2, reason = $3, sandbox = $4, escrow = $5
		WHERE id = $1
	`, rec.ID, string(rec.Status), rec.Reason, rec.Sandbox, escrowJSON)
	if err != nil {
		return fmt.Errorf("failed to update transaction: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *PostgresStore) ListByStatus(ctx context.Context, status Status) ([]*Record, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT id, customer, phone, recipient, amount, currency, method,
		       message, reason, status, sandbox, created_at,
		       session_id, device_fingerprint, behavior,
		       escrow, llm_explanation, semantic_context
		FROM transactions WHERE status = $1
		ORDER BY created_at DESC
	`, string(status))
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	result := []*Record{}
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, rec)
	}
	return result, rows.Err()
}

// scanner covers both *sql.Row and *sql.Rows
type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(s scanner) (*Record, error) {
	rec := &Record{}
	var status string
	var escrowJSON []byte

	err := s.Scan(
		&rec.ID, &rec.Customer, &rec.Phone, &rec.Recipient, &rec.Amount, &rec.Currency, &rec.Method,
		&rec.Message, &rec.Reason, &status, &rec.Sandbox, &rec.CreatedAt,
		&rec.SessionID, &rec.DeviceFingerprint, &rec.Behavior,
		&escrowJSON, &rec.LLMExplanation, &rec.SemanticContext,
	)
	if err != nil {
		return nil, err
	}

	rec.Status = Status(status)
	if len(escrowJSON) > 0 {
		var l escrow.Ledger
		if err := json.Unmarshal(escrowJSON, &l); err != nil {
			return nil, fmt.Errorf("failed to decode escrow for %s: %w", rec.ID, err)
		}
		rec.Escrow = &l
	}
	return rec, nil
}

func marshalEscrow(l *escrow.Ledger) ([]byte, error) {
	if l == nil {
		return nil, nil // stored as SQL NULL
	}
	b, err := json.Marshal(l)
	if err != nil {
		return nil, fmt.Errorf("failed to encode escrow: %w", err)
	}
	return b, nil
}
