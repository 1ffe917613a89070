package transaction

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/MrJamesThe3rd/paycore/internal/money"
)

// Repository stores transaction records and tracks how much of a transaction is still refundable or capturable.
//
// Implementations must reject a second record with an existing ID (ErrDuplicateID), apply at most one
// terminal update per record (ErrAlreadyFinal), and, for refunds and captures, reject a create whose
// amount exceeds Remaining for the related record (ErrExceedsRemainder) atomically with the insert.
//
//go:generate mockgen -source=service.go -destination=repository_mock.go -package=transaction
type Repository interface {
	CreateTransaction(ctx context.Context, tx *Transaction) error
	GetTransaction(ctx context.Context, id uuid.UUID) (*Transaction, error)
	FinalizeTransaction(ctx context.Context, tx *Transaction) error
	ListTransactions(ctx context.Context, filter ListFilter) ([]*Transaction, error)

	// Remaining returns the related record's amount minus every non-failed child of the given type.
	Remaining(ctx context.Context, relatedID uuid.UUID, childType Type) (money.Money, error)
}

type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

type ListFilter struct {
	RelatedTransactionID *uuid.UUID
	Type                 *Type
	Status               *Status
}

// Create persists a new pending record.
func (s *Service) Create(ctx context.Context, tx *Transaction) error {
	if tx.Status != StatusPending {
		return fmt.Errorf("%w: new transaction must be pending, got %s", ErrInvalidTransition, tx.Status)
	}

	if tx.ID == uuid.Nil {
		return fmt.Errorf("creating transaction: missing id")
	}

	return s.repo.CreateTransaction(ctx, tx)
}

// Finalize persists the single terminal update of a record.
func (s *Service) Finalize(ctx context.Context, tx *Transaction) error {
	if !tx.Status.Terminal() {
		return fmt.Errorf("%w: cannot finalize as %s", ErrInvalidTransition, tx.Status)
	}

	return s.repo.FinalizeTransaction(ctx, tx)
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Transaction, error) {
	return s.repo.GetTransaction(ctx, id)
}

func (s *Service) List(ctx context.Context, filter ListFilter) ([]*Transaction, error) {
	return s.repo.ListTransactions(ctx, filter)
}

func (s *Service) Remaining(ctx context.Context, relatedID uuid.UUID, childType Type) (money.Money, error) {
	return s.repo.Remaining(ctx, relatedID, childType)
}
