package relational

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	_ "modernc.org/sqlite"

	"github.com/dvloznov/moneyrag/internal/domain"
)

// Store is the SQLite-backed system of record for canonical transactions.
// Writes are serialized by a store-level mutex (single-writer discipline);
// reads go through database/sql's own pooling.
type Store struct {
	db *sql.DB
	mu sync.Mutex // serializes writes
}

// Open opens (or creates) the database and ensures the schema exists.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("Open: create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, &domain.StoreUnavailableError{Store: "relational", Err: err}
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("Open: execute %s: %w", pragma, err)
		}
	}

	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS transactions (
			id                TEXT PRIMARY KEY,
			transaction_date  TEXT NOT NULL,
			raw_description   TEXT NOT NULL,
			merchant          TEXT NOT NULL DEFAULT '',
			amount            TEXT NOT NULL,
			amount_num        REAL NOT NULL,
			currency          TEXT NOT NULL,
			category          TEXT NOT NULL DEFAULT '',
			source_file       TEXT NOT NULL,
			batch_id          TEXT NOT NULL,
			enrichment_status TEXT NOT NULL
		)`); err != nil {
		db.Close()
		return nil, fmt.Errorf("Open: create schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Upsert inserts or fully replaces the row keyed by tx.ID.
func (s *Store) Upsert(ctx context.Context, tx *domain.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	amountNum, _ := tx.Amount.Float64()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO transactions (
			id, transaction_date, raw_description, merchant, amount,
			amount_num, currency, category, source_file, batch_id,
			enrichment_status
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			transaction_date  = excluded.transaction_date,
			raw_description   = excluded.raw_description,
			merchant          = excluded.merchant,
			amount            = excluded.amount,
			amount_num        = excluded.amount_num,
			currency          = excluded.currency,
			category          = excluded.category,
			source_file       = excluded.source_file,
			batch_id          = excluded.batch_id,
			enrichment_status = excluded.enrichment_status`,
		tx.ID, tx.Date.Format(domain.DateFormat), tx.RawDescription,
		tx.Merchant, tx.Amount.String(), amountNum, tx.Currency,
		tx.Category, tx.SourceFile, tx.BatchID, string(tx.EnrichmentStatus))
	if err != nil {
		return &domain.StoreUnavailableError{Store: "relational", Err: err}
	}
	return nil
}

// Get returns the stored transaction or nil when absent.
func (s *Store) Get(ctx context.Context, id string) (*domain.Transaction, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, transaction_date, raw_description, merchant, amount,
		       currency, category, source_file, batch_id, enrichment_status
		FROM transactions WHERE id = ?`, id)
	tx, err := scanTransaction(row.Scan)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("Get: %w", err)
	}
	return tx, nil
}

// Delete removes the row keyed by id. Used as the compensating action when
// the vector-store write fails.
func (s *Store) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.db.ExecContext(ctx, `DELETE FROM transactions WHERE id = ?`, id); err != nil {
		return &domain.StoreUnavailableError{Store: "relational", Err: err}
	}
	return nil
}

// All returns every stored transaction ordered by date then ID. Used to
// rebuild the in-process vector index for a persisted data directory.
func (s *Store) All(ctx context.Context) ([]*domain.Transaction, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, transaction_date, raw_description, merchant, amount,
		       currency, category, source_file, batch_id, enrichment_status
		FROM transactions ORDER BY transaction_date, id`)
	if err != nil {
		return nil, fmt.Errorf("All: %w", err)
	}
	defer rows.Close()

	var txs []*domain.Transaction
	for rows.Next() {
		tx, err := scanTransaction(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("All: %w", err)
		}
		txs = append(txs, tx)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("All: %w", err)
	}
	return txs, nil
}

// Count returns the number of stored transactions.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM transactions`).Scan(&n); err != nil {
		return 0, fmt.Errorf("Count: %w", err)
	}
	return n, nil
}

func scanTransaction(scan func(dest ...any) error) (*domain.Transaction, error) {
	var (
		tx        domain.Transaction
		dateStr   string
		amountStr string
		statusStr string
	)
	if err := scan(&tx.ID, &dateStr, &tx.RawDescription, &tx.Merchant,
		&amountStr, &tx.Currency, &tx.Category, &tx.SourceFile,
		&tx.BatchID, &statusStr); err != nil {
		return nil, err
	}

	date, err := time.Parse(domain.DateFormat, dateStr)
	if err != nil {
		return nil, fmt.Errorf("scanTransaction: invalid date %q: %w", dateStr, err)
	}
	amount, err := decimal.NewFromString(amountStr)
	if err != nil {
		return nil, fmt.Errorf("scanTransaction: invalid amount %q: %w", amountStr, err)
	}

	tx.Date = date
	tx.Amount = amount
	tx.EnrichmentStatus = domain.EnrichmentStatus(statusStr)
	return &tx, nil
}
