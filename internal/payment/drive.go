package payment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/MrJamesThe3rd/paycore/internal/audit"
	"github.com/MrJamesThe3rd/paycore/internal/provider"
	"github.com/MrJamesThe3rd/paycore/internal/transaction"
)

// submitter performs one provider call for a record. Every call carries the record id as idempotency key.
type submitter func(ctx context.Context) provider.Outcome

func (s *Service) paymentSubmitter(tx *transaction.Transaction, method provider.PaymentMethod) submitter {
	req := provider.PaymentRequest{
		IdempotencyKey: tx.ID.String(),
		Amount:         tx.Amount,
		Method:         method,
		Metadata:       tx.Metadata,
	}

	return func(ctx context.Context) provider.Outcome {
		return s.gateway.SubmitPayment(ctx, req)
	}
}

func (s *Service) refundSubmitter(tx, original *transaction.Transaction) submitter {
	amount := tx.Amount
	req := provider.RefundRequest{
		IdempotencyKey:        tx.ID.String(),
		ProviderTransactionID: original.ProviderTransactionID,
		Amount:                &amount,
	}

	return func(ctx context.Context) provider.Outcome {
		return s.gateway.SubmitRefund(ctx, req)
	}
}

func (s *Service) captureSubmitter(tx, authorization *transaction.Transaction) submitter {
	amount := tx.Amount
	req := provider.CaptureRequest{
		IdempotencyKey:  tx.ID.String(),
		AuthorizationID: authorization.ProviderTransactionID,
		Amount:          &amount,
	}

	return func(ctx context.Context) provider.Outcome {
		return s.gateway.SubmitCapture(ctx, req)
	}
}

// drive submits tx until a terminal outcome is recorded or the operation deadline passes.
// Concurrent drives of the same id in this process share one submission loop.
func (s *Service) drive(ctx context.Context, tx *transaction.Transaction, caller Caller, submit submitter) (*transaction.Transaction, error) {
	v, err, _ := s.inflight.Do(tx.ID.String(), func() (any, error) {
		return s.run(ctx, tx, caller, submit)
	})
	if err != nil {
		return nil, err
	}

	return v.(*transaction.Transaction).Clone(), nil
}

func (s *Service) run(ctx context.Context, tx *transaction.Transaction, caller Caller, submit submitter) (*transaction.Transaction, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	fields := s.fields(tx, caller)

	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, s.timedOut(ctx, tx, caller, attempt-1, err)
		}

		s.logger.DebugContext(ctx, "submitting to provider", append(fields, "attempt", attempt)...)

		outcome := submit(ctx)

		// A transient failure caused by our own deadline is not an outcome; the provider may still act on it.
		if outcome.Retryable() && ctx.Err() != nil {
			return nil, s.timedOut(ctx, tx, caller, attempt, ctx.Err())
		}

		decision := s.policy.Decide(attempt, outcome)
		if !decision.Retry {
			if outcome.Kind == provider.KindPending {
				return nil, s.unsettled(ctx, tx, caller, outcome, attempt)
			}

			return s.finish(ctx, tx, caller, outcome, attempt)
		}

		s.logger.WarnContext(ctx, "provider outcome not final, retrying",
			append(fields, "attempt", attempt, "outcome", outcome.Kind.String(), "code", outcome.Code, "backoff", decision.After)...)

		timer := time.NewTimer(decision.After)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return nil, s.timedOut(ctx, tx, caller, attempt, ctx.Err())
		}
	}
}

func (s *Service) timedOut(ctx context.Context, tx *transaction.Transaction, caller Caller, attempts int, err error) error {
	s.logger.WarnContext(ctx, "operation deadline reached, transaction left pending",
		append(s.fields(tx, caller), "attempts", attempts, "error", err)...)

	return &TimeoutError{TransactionID: tx.ID, Err: err}
}

// unsettled leaves tx pending when the provider still holds the operation after the last attempt.
// Re-driving the same id asks the provider again under the same idempotency key.
func (s *Service) unsettled(ctx context.Context, tx *transaction.Transaction, caller Caller, outcome provider.Outcome, attempts int) error {
	s.logger.WarnContext(ctx, "provider has not settled the operation, transaction left pending",
		append(s.fields(tx, caller), "attempts", attempts, "provider_transaction_id", outcome.ProviderTransactionID)...)

	return &TimeoutError{TransactionID: tx.ID, ProviderTransactionID: outcome.ProviderTransactionID, Err: ErrProviderPending}
}

func (s *Service) finish(ctx context.Context, tx *transaction.Transaction, caller Caller, outcome provider.Outcome, attempts int) (*transaction.Transaction, error) {
	now := s.now()

	var err error

	switch outcome.Kind {
	case provider.KindAccepted:
		err = tx.Complete(outcome.ProviderTransactionID, now)
	case provider.KindTransient:
		err = tx.Fail(outcome.Code, fmt.Sprintf("giving up after %d attempts: %s", attempts, outcome.Message), now)
	default:
		err = tx.Fail(outcome.Code, outcome.Message, now)
	}

	if err != nil {
		return nil, fmt.Errorf("applying %s outcome: %w", outcome.Kind, err)
	}

	// The outcome happened at the provider; record it even if the caller has gone away.
	wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), finalizeTimeout)
	defer cancel()

	if err := s.txs.Finalize(wctx, tx); err != nil {
		if !errors.Is(err, transaction.ErrAlreadyFinal) {
			return nil, fmt.Errorf("finalizing transaction %s: %w", tx.ID, err)
		}

		// Another driver of this id got there first; its outcome is the one that counts.
		stored, gerr := s.txs.Get(wctx, tx.ID)
		if gerr != nil {
			return nil, fmt.Errorf("loading finalized transaction %s: %w", tx.ID, gerr)
		}

		return result(stored)
	}

	s.logger.InfoContext(ctx, "transaction finalized",
		append(s.fields(tx, caller), "status", tx.Status, "attempts", attempts, "outcome", outcome.Kind.String())...)

	s.record(wctx, tx, caller)

	return result(tx)
}

// result maps a terminal record to the operation's return values.
func result(tx *transaction.Transaction) (*transaction.Transaction, error) {
	switch tx.Status {
	case transaction.StatusCompleted:
		return tx, nil
	case transaction.StatusCanceled:
		return nil, &PaymentError{Code: CodeCanceled, TransactionID: tx.ID}
	case transaction.StatusFailed:
		perr := &PaymentError{TransactionID: tx.ID}
		if tx.Error != nil {
			perr.Code, perr.Message = tx.Error.Code, tx.Error.Message
		}

		return nil, perr
	default:
		return nil, fmt.Errorf("transaction %s is not terminal: %s", tx.ID, tx.Status)
	}
}

// record emits an audit event. Sink failures are logged and never fail the operation.
func (s *Service) record(ctx context.Context, tx *transaction.Transaction, caller Caller) {
	e := audit.NewEvent(tx, audit.Actor{CorrelationID: caller.CorrelationID, UserID: caller.UserID}, s.now())

	if err := s.auditor.Record(ctx, e); err != nil {
		s.logger.ErrorContext(ctx, "recording audit event", append(s.fields(tx, caller), "error", err)...)
	}
}

func (s *Service) fields(tx *transaction.Transaction, caller Caller) []any {
	fields := []any{"transaction_id", tx.ID.String(), "type", string(tx.Type)}

	if caller.CorrelationID != "" {
		fields = append(fields, "correlation_id", caller.CorrelationID)
	}

	if caller.UserID != "" {
		fields = append(fields, "user_id", caller.UserID)
	}

	return fields
}
