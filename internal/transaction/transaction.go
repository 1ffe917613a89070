package transaction

import (
	"fmt"
	"maps"
	"time"

	"github.com/google/uuid"

	"github.com/MrJamesThe3rd/paycore/internal/money"
)

// Type represents the kind of provider operation a transaction records.
type Type string

const (
	TypePayment Type = "payment"
	TypeRefund  Type = "refund"
	TypeCapture Type = "capture"
)

// Status represents the lifecycle state of a transaction.
type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCanceled  Status = "canceled"
)

// Terminal reports whether no further transition can leave this status.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCanceled
}

// Error is the failure recorded on a failed transaction.
type Error struct {
	Code    string
	Message string
}

// Transaction is the record of one payment, refund or capture attempt.
// ID doubles as the idempotency key sent to the provider.
type Transaction struct {
	ID                    uuid.UUID
	Type                  Type
	Amount                money.Money
	Status                Status
	ProviderTransactionID string
	RelatedTransactionID  *uuid.UUID
	Error                 *Error
	Metadata              map[string]string
	CreatedAt             time.Time
	UpdatedAt             time.Time
}

// New builds a pending record with a fresh id.
func New(typ Type, amount money.Money, related *uuid.UUID, metadata map[string]string, now time.Time) *Transaction {
	return &Transaction{
		ID:                   uuid.New(),
		Type:                 typ,
		Amount:               amount,
		Status:               StatusPending,
		RelatedTransactionID: related,
		Metadata:             maps.Clone(metadata),
		CreatedAt:            now,
		UpdatedAt:            now,
	}
}

// Complete moves a pending record to completed with the provider's id.
func (t *Transaction) Complete(providerTransactionID string, now time.Time) error {
	if err := t.transition(StatusCompleted); err != nil {
		return err
	}

	t.ProviderTransactionID = providerTransactionID
	t.Error = nil
	t.UpdatedAt = now

	return nil
}

// Fail moves a pending record to failed with a stable code.
func (t *Transaction) Fail(code, message string, now time.Time) error {
	if err := t.transition(StatusFailed); err != nil {
		return err
	}

	t.Error = &Error{Code: code, Message: message}
	t.UpdatedAt = now

	return nil
}

func (t *Transaction) transition(to Status) error {
	if t.Status != StatusPending {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, t.Status, to)
	}

	t.Status = to

	return nil
}

// Clone returns a deep copy so callers never share a record with its owner.
func (t *Transaction) Clone() *Transaction {
	c := *t
	c.Metadata = maps.Clone(t.Metadata)

	if t.RelatedTransactionID != nil {
		id := *t.RelatedTransactionID
		c.RelatedTransactionID = &id
	}

	if t.Error != nil {
		e := *t.Error
		c.Error = &e
	}

	return &c
}
