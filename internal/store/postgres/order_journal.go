package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/tradepilot/internal/domain"
)

// OrderJournal persists every order attempt, successful or not. It
// implements the executor's Journal interface.
type OrderJournal struct {
	pool *pgxpool.Pool
}

// NewOrderJournal creates a journal backed by the given connection pool.
func NewOrderJournal(pool *pgxpool.Pool) *OrderJournal {
	return &OrderJournal{pool: pool}
}

// Record inserts one attempt. The row id is generated here; the intent id
// is kept alongside so retries of the same intent remain correlated.
func (j *OrderJournal) Record(ctx context.Context, intent domain.TradeIntent, result domain.OrderResult) error {
	createdAt := result.Timestamp
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	const query = `
		INSERT INTO order_journal (
			id, intent_id, source, strategy, side, outcome_index, token_id,
			limit_price, worst_case, shares, est_cost,
			success, order_id, fill_price, fill_shares, gasless, tx_hash, message,
			created_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7,
			$8, $9, $10, $11,
			$12, $13, $14, $15, $16, $17, $18,
			$19
		)`

	_, err := j.pool.Exec(ctx, query,
		uuid.NewString(), intent.ID, intent.Source,
		string(intent.Strategy), string(intent.Side),
		intent.OutcomeIndex, intent.TokenID,
		intent.Price, intent.WorstCasePrice, intent.Shares, intent.EstCost,
		result.Success, result.OrderID, result.Price, result.Shares,
		result.Gasless, result.TxHash, result.Message,
		createdAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: record order attempt %s: %w", intent.ID, err)
	}
	return nil
}

const journalSelectCols = `id, intent_id, source, strategy, side, outcome_index, token_id,
	limit_price, worst_case, shares, est_cost,
	success, order_id, fill_price, fill_shares, gasless, tx_hash, message,
	created_at`

func scanEntry(scanner interface{ Scan(dest ...any) error }) (domain.JournalEntry, error) {
	var e domain.JournalEntry
	var strategy, side string

	err := scanner.Scan(
		&e.ID, &e.IntentID, &e.Source, &strategy, &side,
		&e.OutcomeIndex, &e.TokenID,
		&e.LimitPrice, &e.WorstCase, &e.Shares, &e.EstCost,
		&e.Success, &e.OrderID, &e.FillPrice, &e.FillShares,
		&e.Gasless, &e.TxHash, &e.Message,
		&e.CreatedAt,
	)
	if err != nil {
		return domain.JournalEntry{}, err
	}

	e.Strategy = domain.TradeStrategy(strategy)
	e.Side = domain.OrderSide(side)
	return e, nil
}

// ListRecent returns the most recent attempts, newest first.
func (j *OrderJournal) ListRecent(ctx context.Context, limit int) ([]domain.JournalEntry, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := j.pool.Query(ctx,
		`SELECT `+journalSelectCols+` FROM order_journal
		 ORDER BY created_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: list journal: %w", err)
	}
	defer rows.Close()

	var entries []domain.JournalEntry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan journal row: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// GetByIntentID returns the attempt journaled for one intent.
func (j *OrderJournal) GetByIntentID(ctx context.Context, intentID string) (domain.JournalEntry, error) {
	row := j.pool.QueryRow(ctx,
		`SELECT `+journalSelectCols+` FROM order_journal WHERE intent_id = $1
		 ORDER BY created_at DESC LIMIT 1`, intentID)

	e, err := scanEntry(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return domain.JournalEntry{}, domain.ErrNotFound
		}
		return domain.JournalEntry{}, fmt.Errorf("postgres: get journal entry %s: %w", intentID, err)
	}
	return e, nil
}
