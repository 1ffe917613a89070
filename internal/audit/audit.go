// Package audit records one event per created transaction and one per terminal transition.
// Events carry ids, amounts and codes only; payment-method data has no field here.
package audit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/MrJamesThe3rd/paycore/internal/transaction"
)

type Kind string

const (
	KindCreated  Kind = "transaction.created"
	KindTerminal Kind = "transaction.terminal"
)

type Event struct {
	Kind                  Kind      `json:"event_type"`
	TransactionID         uuid.UUID `json:"transaction_id"`
	Type                  string    `json:"type"`
	Amount                string    `json:"amount"`
	Currency              string    `json:"currency"`
	Status                string    `json:"status"`
	ErrorCode             string    `json:"error_code,omitempty"`
	ProviderTransactionID string    `json:"provider_transaction_id,omitempty"`
	RelatedTransactionID  string    `json:"related_transaction_id,omitempty"`
	CorrelationID         string    `json:"correlation_id,omitempty"`
	UserID                string    `json:"user_id,omitempty"`
	Timestamp             time.Time `json:"timestamp"`
}

// Actor identifies who triggered the transition.
type Actor struct {
	CorrelationID string
	UserID        string
}

// NewEvent snapshots tx. The kind follows the record's status.
func NewEvent(tx *transaction.Transaction, actor Actor, now time.Time) Event {
	kind := KindCreated
	if tx.Status.Terminal() {
		kind = KindTerminal
	}

	e := Event{
		Kind:                  kind,
		TransactionID:         tx.ID,
		Type:                  string(tx.Type),
		Amount:                tx.Amount.String(),
		Currency:              tx.Amount.Currency(),
		Status:                string(tx.Status),
		ProviderTransactionID: tx.ProviderTransactionID,
		CorrelationID:         actor.CorrelationID,
		UserID:                actor.UserID,
		Timestamp:             now.UTC(),
	}

	if tx.Error != nil {
		e.ErrorCode = tx.Error.Code
	}

	if tx.RelatedTransactionID != nil {
		e.RelatedTransactionID = tx.RelatedTransactionID.String()
	}

	return e
}

type Sink interface {
	Record(ctx context.Context, e Event) error
}

// LogSink writes events as structured log records.
type LogSink struct {
	logger *slog.Logger
}

func NewLogSink(logger *slog.Logger) *LogSink {
	if logger == nil {
		logger = slog.Default()
	}

	return &LogSink{logger: logger}
}

func (s *LogSink) Record(ctx context.Context, e Event) error {
	attrs := []slog.Attr{
		slog.String("transaction_id", e.TransactionID.String()),
		slog.String("type", e.Type),
		slog.String("amount", e.Amount),
		slog.String("currency", e.Currency),
		slog.String("status", e.Status),
		slog.Time("timestamp", e.Timestamp),
	}

	for _, opt := range []struct{ key, val string }{
		{"error_code", e.ErrorCode},
		{"provider_transaction_id", e.ProviderTransactionID},
		{"related_transaction_id", e.RelatedTransactionID},
		{"correlation_id", e.CorrelationID},
		{"user_id", e.UserID},
	} {
		if opt.val != "" {
			attrs = append(attrs, slog.String(opt.key, opt.val))
		}
	}

	s.logger.LogAttrs(ctx, slog.LevelInfo, string(e.Kind), attrs...)

	return nil
}

// Multi fans an event out to every sink, returning the joined failures.
type Multi []Sink

func (m Multi) Record(ctx context.Context, e Event) error {
	var errs []error

	for _, s := range m {
		if err := s.Record(ctx, e); err != nil {
			errs = append(errs, err)
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("recording audit event: %w", errors.Join(errs...))
	}

	return nil
}
