package store

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"hash/fnv"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/MrJamesThe3rd/paycore/internal/money"
	"github.com/MrJamesThe3rd/paycore/internal/transaction"
)

//go:embed schema.sql
var schema string

const uniqueViolation = "23505"

type Store struct {
	db *sql.DB
}

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// Migrate creates the transactions table if it does not exist.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("applying schema: %w", err)
	}

	return nil
}

// scanner is satisfied by both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

// scanTransaction reads a transaction row from the scanner and returns a populated Transaction.
// Expected column order matches selectTransactionColumns.
func scanTransaction(s scanner) (*transaction.Transaction, error) {
	var tx transaction.Transaction

	var typeStr, statusStr, amountStr, currency string

	var providerID, errCode, errMessage sql.NullString

	var related *uuid.UUID

	var metadata []byte

	if err := s.Scan(
		&tx.ID, &typeStr, &amountStr, &currency, &statusStr,
		&providerID, &related, &errCode, &errMessage, &metadata,
		&tx.CreatedAt, &tx.UpdatedAt,
	); err != nil {
		return nil, err
	}

	amount, err := money.Parse(amountStr, currency)
	if err != nil {
		return nil, fmt.Errorf("parsing stored amount: %w", err)
	}

	tx.Type = transaction.Type(typeStr)
	tx.Status = transaction.Status(statusStr)
	tx.Amount = amount
	tx.ProviderTransactionID = providerID.String
	tx.RelatedTransactionID = related

	if errCode.Valid {
		tx.Error = &transaction.Error{Code: errCode.String, Message: errMessage.String}
	}

	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &tx.Metadata); err != nil {
			return nil, fmt.Errorf("decoding metadata: %w", err)
		}
	}

	return &tx, nil
}

const selectTransactionColumns = `
	id, type, amount::text, currency, status,
	provider_transaction_id, related_transaction_id, error_code, error_message, metadata,
	created_at, updated_at
`

// CreateTransaction inserts a pending record. Refunds and captures are checked against the
// related record's remaining amount under a per-record advisory lock, so two concurrent children
// cannot together exceed it.
func (s *Store) CreateTransaction(ctx context.Context, tx *transaction.Transaction) error {
	metadata, err := json.Marshal(nonNil(tx.Metadata))
	if err != nil {
		return fmt.Errorf("encoding metadata: %w", err)
	}

	dbTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer dbTx.Rollback()

	if tx.RelatedTransactionID != nil {
		if _, err := dbTx.ExecContext(ctx, "SELECT pg_advisory_xact_lock($1)", relatedLockKey(*tx.RelatedTransactionID)); err != nil {
			return fmt.Errorf("acquiring related lock: %w", err)
		}

		remaining, err := remaining(ctx, dbTx, *tx.RelatedTransactionID, tx.Type)
		if err != nil {
			return err
		}

		cmp, err := tx.Amount.Cmp(remaining)
		if err != nil {
			return fmt.Errorf("creating transaction: %w", err)
		}

		if cmp > 0 {
			return fmt.Errorf("%w: %s > %s", transaction.ErrExceedsRemainder, tx.Amount, remaining)
		}
	}

	query := `
		INSERT INTO transactions (id, type, amount, currency, status, related_transaction_id, metadata, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	_, err = dbTx.ExecContext(ctx, query,
		tx.ID,
		tx.Type,
		tx.Amount,
		tx.Amount.Currency(),
		tx.Status,
		tx.RelatedTransactionID,
		metadata,
		tx.CreatedAt,
		tx.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return fmt.Errorf("%w: %s", transaction.ErrDuplicateID, tx.ID)
		}

		return fmt.Errorf("creating transaction: %w", err)
	}

	if err := dbTx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}

	return nil
}

func (s *Store) GetTransaction(ctx context.Context, id uuid.UUID) (*transaction.Transaction, error) {
	query := `SELECT ` + selectTransactionColumns + ` FROM transactions WHERE id = $1`

	tx, err := scanTransaction(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, transaction.ErrNotFound
		}

		return nil, fmt.Errorf("getting transaction: %w", err)
	}

	return tx, nil
}

// FinalizeTransaction applies the terminal update only while the stored row is still pending.
func (s *Store) FinalizeTransaction(ctx context.Context, tx *transaction.Transaction) error {
	query := `
		UPDATE transactions
		SET status = $1, provider_transaction_id = $2, error_code = $3, error_message = $4, updated_at = $5
		WHERE id = $6 AND status = 'pending'
	`

	var errCode, errMessage sql.NullString
	if tx.Error != nil {
		errCode = sql.NullString{String: tx.Error.Code, Valid: true}
		errMessage = sql.NullString{String: tx.Error.Message, Valid: true}
	}

	providerID := sql.NullString{String: tx.ProviderTransactionID, Valid: tx.ProviderTransactionID != ""}

	res, err := s.db.ExecContext(ctx, query, tx.Status, providerID, errCode, errMessage, tx.UpdatedAt, tx.ID)
	if err != nil {
		return fmt.Errorf("finalizing transaction: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("finalizing transaction: %w", err)
	}

	if n == 1 {
		return nil
	}

	if _, err := s.GetTransaction(ctx, tx.ID); err != nil {
		return err
	}

	return fmt.Errorf("%w: %s", transaction.ErrAlreadyFinal, tx.ID)
}

func (s *Store) ListTransactions(ctx context.Context, filter transaction.ListFilter) ([]*transaction.Transaction, error) {
	query := `SELECT ` + selectTransactionColumns + ` FROM transactions WHERE TRUE`

	var args []any

	argIdx := 1

	if filter.RelatedTransactionID != nil {
		query += fmt.Sprintf(" AND related_transaction_id = $%d", argIdx)

		args = append(args, *filter.RelatedTransactionID)
		argIdx++
	}

	if filter.Type != nil {
		query += fmt.Sprintf(" AND type = $%d", argIdx)

		args = append(args, *filter.Type)
		argIdx++
	}

	if filter.Status != nil {
		query += fmt.Sprintf(" AND status = $%d", argIdx)

		args = append(args, *filter.Status)
		argIdx++
	}

	query += " ORDER BY created_at ASC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing transactions: %w", err)
	}
	defer rows.Close()

	var txs []*transaction.Transaction

	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning transaction: %w", err)
		}

		txs = append(txs, tx)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating transaction rows: %w", err)
	}

	return txs, nil
}

func (s *Store) Remaining(ctx context.Context, relatedID uuid.UUID, childType transaction.Type) (money.Money, error) {
	return remaining(ctx, s.db, relatedID, childType)
}

type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func remaining(ctx context.Context, q querier, relatedID uuid.UUID, childType transaction.Type) (money.Money, error) {
	query := `
		SELECT t.amount::text, t.currency,
			COALESCE((
				SELECT SUM(c.amount) FROM transactions c
				WHERE c.related_transaction_id = t.id AND c.type = $2 AND c.status <> 'failed'
			), 0)::text
		FROM transactions t
		WHERE t.id = $1
	`

	var amountStr, currency, usedStr string
	if err := q.QueryRowContext(ctx, query, relatedID, childType).Scan(&amountStr, &currency, &usedStr); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return money.Money{}, transaction.ErrNotFound
		}

		return money.Money{}, fmt.Errorf("computing remaining: %w", err)
	}

	total, err := money.Parse(amountStr, currency)
	if err != nil {
		return money.Money{}, fmt.Errorf("parsing stored amount: %w", err)
	}

	used, err := money.Parse(usedStr, currency)
	if err != nil {
		return money.Money{}, fmt.Errorf("parsing used amount: %w", err)
	}

	return total.Sub(used)
}

func relatedLockKey(id uuid.UUID) int64 {
	h := fnv.New64a()
	h.Write([]byte("related"))
	h.Write([]byte{0})
	h.Write(id[:])

	return int64(h.Sum64())
}

func nonNil(m map[string]string) map[string]string {
	if m == nil {
		return map[string]string{}
	}

	return m
}

var _ transaction.Repository = (*Store)(nil)
