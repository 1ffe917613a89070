package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/MrJamesThe3rd/paycore/internal/money"
	"github.com/MrJamesThe3rd/paycore/internal/transaction"
)

// Store is an in-memory transaction.Repository, safe for concurrent use.
// Records are lost on restart; use the Postgres store for anything durable.
type Store struct {
	mu  sync.RWMutex
	txs map[uuid.UUID]*transaction.Transaction
	// order keeps insertion order for listing.
	order []uuid.UUID
}

func New() *Store {
	return &Store{txs: make(map[uuid.UUID]*transaction.Transaction)}
}

func (s *Store) CreateTransaction(ctx context.Context, tx *transaction.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.txs[tx.ID]; exists {
		return fmt.Errorf("%w: %s", transaction.ErrDuplicateID, tx.ID)
	}

	if tx.RelatedTransactionID != nil {
		remaining, err := s.remaining(*tx.RelatedTransactionID, tx.Type)
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

	s.txs[tx.ID] = tx.Clone()
	s.order = append(s.order, tx.ID)

	return nil
}

func (s *Store) GetTransaction(ctx context.Context, id uuid.UUID) (*transaction.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tx, ok := s.txs[id]
	if !ok {
		return nil, transaction.ErrNotFound
	}

	return tx.Clone(), nil
}

func (s *Store) FinalizeTransaction(ctx context.Context, tx *transaction.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.txs[tx.ID]
	if !ok {
		return transaction.ErrNotFound
	}

	if stored.Status.Terminal() {
		return fmt.Errorf("%w: %s is %s", transaction.ErrAlreadyFinal, tx.ID, stored.Status)
	}

	stored.Status = tx.Status
	stored.ProviderTransactionID = tx.ProviderTransactionID
	stored.UpdatedAt = tx.UpdatedAt

	stored.Error = nil
	if tx.Error != nil {
		e := *tx.Error
		stored.Error = &e
	}

	return nil
}

func (s *Store) ListTransactions(ctx context.Context, filter transaction.ListFilter) ([]*transaction.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var txs []*transaction.Transaction

	for _, id := range s.order {
		tx := s.txs[id]
		if !matches(tx, filter) {
			continue
		}

		txs = append(txs, tx.Clone())
	}

	return txs, nil
}

func (s *Store) Remaining(ctx context.Context, relatedID uuid.UUID, childType transaction.Type) (money.Money, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.remaining(relatedID, childType)
}

// remaining expects s.mu to be held.
func (s *Store) remaining(relatedID uuid.UUID, childType transaction.Type) (money.Money, error) {
	related, ok := s.txs[relatedID]
	if !ok {
		return money.Money{}, transaction.ErrNotFound
	}

	left := related.Amount

	for _, id := range s.order {
		child := s.txs[id]
		if child.RelatedTransactionID == nil || *child.RelatedTransactionID != relatedID {
			continue
		}

		if child.Type != childType || child.Status == transaction.StatusFailed {
			continue
		}

		var err error

		left, err = left.Sub(child.Amount)
		if err != nil {
			return money.Money{}, fmt.Errorf("computing remaining: %w", err)
		}
	}

	return left, nil
}

func matches(tx *transaction.Transaction, f transaction.ListFilter) bool {
	if f.RelatedTransactionID != nil && (tx.RelatedTransactionID == nil || *tx.RelatedTransactionID != *f.RelatedTransactionID) {
		return false
	}

	if f.Type != nil && tx.Type != *f.Type {
		return false
	}

	if f.Status != nil && tx.Status != *f.Status {
		return false
	}

	return true
}

// Len reports how many records are stored.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.order)
}

var _ transaction.Repository = (*Store)(nil)
