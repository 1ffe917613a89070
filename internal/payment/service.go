package payment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/MrJamesThe3rd/paycore/internal/audit"
	"github.com/MrJamesThe3rd/paycore/internal/card"
	"github.com/MrJamesThe3rd/paycore/internal/money"
	"github.com/MrJamesThe3rd/paycore/internal/provider"
	"github.com/MrJamesThe3rd/paycore/internal/retry"
	"github.com/MrJamesThe3rd/paycore/internal/transaction"
)

const (
	DefaultOperationTimeout = 30 * time.Second
	// finalizeTimeout bounds the terminal write once an outcome is known.
	finalizeTimeout = 5 * time.Second
)

//go:generate mockgen -source=service.go -destination=service_mock.go -package=payment
type Gateway interface {
	SubmitPayment(ctx context.Context, req provider.PaymentRequest) provider.Outcome
	SubmitRefund(ctx context.Context, req provider.RefundRequest) provider.Outcome
	SubmitCapture(ctx context.Context, req provider.CaptureRequest) provider.Outcome
}

type CardValidator interface {
	Validate(c card.Card) (card.Card, error)
}

type Auditor interface {
	Record(ctx context.Context, e audit.Event) error
}

type Config struct {
	Retry retry.Policy
	// OperationTimeout bounds a whole operation, retries and backoff included.
	OperationTimeout time.Duration
	Cards            CardValidator
	Auditor          Auditor
	Logger           *slog.Logger
	Now              func() time.Time
}

// Caller identifies who asked for an operation. It is threaded into logs and audit events.
type Caller struct {
	CorrelationID string
	UserID        string
}

type PaymentRequest struct {
	Amount   money.Money
	Method   provider.PaymentMethod
	Metadata map[string]string
	Caller   Caller
}

// RefundRequest refunds a completed payment or capture. A nil Amount refunds the whole remainder.
type RefundRequest struct {
	OriginalID uuid.UUID
	Amount     *money.Money
	Metadata   map[string]string
	Caller     Caller
}

// CaptureRequest captures a completed authorization. A nil Amount captures the whole remainder.
type CaptureRequest struct {
	AuthorizationID uuid.UUID
	Amount          *money.Money
	Metadata        map[string]string
	Caller          Caller
}

// Service runs payments, refunds and captures against the gateway and keeps their records.
// Each operation owns its record from creation to its single terminal update.
type Service struct {
	txs     *transaction.Service
	gateway Gateway
	cards   CardValidator
	auditor Auditor
	policy  retry.Policy
	timeout time.Duration
	logger  *slog.Logger
	now     func() time.Time

	inflight singleflight.Group
}

func NewService(repo transaction.Repository, gateway Gateway, cfg Config) *Service {
	s := &Service{
		txs:     transaction.NewService(repo),
		gateway: gateway,
		cards:   cfg.Cards,
		auditor: cfg.Auditor,
		policy:  cfg.Retry.WithDefaults(),
		timeout: cfg.OperationTimeout,
		logger:  cfg.Logger,
		now:     cfg.Now,
	}

	if s.cards == nil {
		s.cards = card.NewValidator()
	}

	if s.auditor == nil {
		s.auditor = audit.Multi{}
	}

	if s.timeout <= 0 {
		s.timeout = DefaultOperationTimeout
	}

	if s.logger == nil {
		s.logger = slog.Default()
	}

	if s.now == nil {
		s.now = time.Now
	}

	return s
}

func (s *Service) ProcessPayment(ctx context.Context, req PaymentRequest) (*transaction.Transaction, error) {
	if err := validateAmount(req.Amount); err != nil {
		return nil, err
	}

	method, err := s.validateMethod(req.Method)
	if err != nil {
		return nil, err
	}

	tx := transaction.New(transaction.TypePayment, req.Amount, nil, req.Metadata, s.now())
	if err := s.create(ctx, tx, req.Caller); err != nil {
		return nil, err
	}

	return s.drive(ctx, tx, req.Caller, s.paymentSubmitter(tx, method))
}

func (s *Service) ProcessRefund(ctx context.Context, req RefundRequest) (*transaction.Transaction, error) {
	original, amount, err := s.child(ctx, req.OriginalID, req.Amount, transaction.TypeRefund)
	if err != nil {
		return nil, err
	}

	tx := transaction.New(transaction.TypeRefund, amount, &original.ID, req.Metadata, s.now())
	if err := s.create(ctx, tx, req.Caller); err != nil {
		return nil, err
	}

	return s.drive(ctx, tx, req.Caller, s.refundSubmitter(tx, original))
}

func (s *Service) CapturePayment(ctx context.Context, req CaptureRequest) (*transaction.Transaction, error) {
	authorization, amount, err := s.child(ctx, req.AuthorizationID, req.Amount, transaction.TypeCapture)
	if err != nil {
		return nil, err
	}

	tx := transaction.New(transaction.TypeCapture, amount, &authorization.ID, req.Metadata, s.now())
	if err := s.create(ctx, tx, req.Caller); err != nil {
		return nil, err
	}

	return s.drive(ctx, tx, req.Caller, s.captureSubmitter(tx, authorization))
}

// Resume re-drives a pending record under its existing id. Terminal records are reported as they are.
// Payments need the payment method again since it is never stored.
func (s *Service) Resume(ctx context.Context, id uuid.UUID, method *provider.PaymentMethod, caller Caller) (*transaction.Transaction, error) {
	tx, err := s.txs.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("resuming transaction %s: %w", id, err)
	}

	if tx.Status.Terminal() {
		return result(tx)
	}

	var submit submitter

	switch tx.Type {
	case transaction.TypePayment:
		if method == nil {
			return nil, invalid(CodePaymentMethodRequired, "payment method is required to resume a payment")
		}

		validated, err := s.validateMethod(*method)
		if err != nil {
			return nil, err
		}

		submit = s.paymentSubmitter(tx, validated)
	case transaction.TypeRefund, transaction.TypeCapture:
		if tx.RelatedTransactionID == nil {
			return nil, fmt.Errorf("resuming transaction %s: %s without related transaction", id, tx.Type)
		}

		related, err := s.txs.Get(ctx, *tx.RelatedTransactionID)
		if err != nil {
			return nil, fmt.Errorf("loading related transaction: %w", err)
		}

		if tx.Type == transaction.TypeRefund {
			submit = s.refundSubmitter(tx, related)
		} else {
			submit = s.captureSubmitter(tx, related)
		}
	default:
		return nil, fmt.Errorf("resuming transaction %s: unknown type %q", id, tx.Type)
	}

	s.logger.InfoContext(ctx, "resuming pending transaction", s.fields(tx, caller)...)

	return s.drive(ctx, tx, caller, submit)
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*transaction.Transaction, error) {
	return s.txs.Get(ctx, id)
}

// List returns records in creation order, e.g. every refund issued against a payment.
func (s *Service) List(ctx context.Context, filter transaction.ListFilter) ([]*transaction.Transaction, error) {
	return s.txs.List(ctx, filter)
}

// child validates a refund or capture against its related record and resolves the amount.
func (s *Service) child(ctx context.Context, relatedID uuid.UUID, amount *money.Money, typ transaction.Type) (*transaction.Transaction, money.Money, error) {
	if amount != nil {
		if err := validateAmount(*amount); err != nil {
			return nil, money.Money{}, err
		}
	}

	related, err := s.txs.Get(ctx, relatedID)
	if errors.Is(err, transaction.ErrNotFound) {
		return nil, money.Money{}, invalid(CodeUnknownTransaction, "transaction %s does not exist", relatedID)
	}

	if err != nil {
		return nil, money.Money{}, fmt.Errorf("loading related transaction: %w", err)
	}

	if err := eligible(related, typ); err != nil {
		return nil, money.Money{}, err
	}

	remaining, err := s.txs.Remaining(ctx, related.ID, typ)
	if err != nil {
		return nil, money.Money{}, fmt.Errorf("computing remainder of %s: %w", related.ID, err)
	}

	if amount == nil {
		if !remaining.IsPositive() {
			return nil, money.Money{}, invalid(CodeNothingRemaining, "nothing left to %s on %s", typ, related.ID)
		}

		return related, remaining, nil
	}

	if amount.Currency() != related.Amount.Currency() {
		return nil, money.Money{}, invalid(CodeCurrencyMismatch, "%s amount in %s, transaction in %s", typ, amount.Currency(), related.Amount.Currency())
	}

	cmp, err := amount.Cmp(remaining)
	if err != nil {
		return nil, money.Money{}, invalid(CodeCurrencyMismatch, "%v", err)
	}

	if cmp > 0 {
		return nil, money.Money{}, invalid(CodeExceedsRemainder, "%s of %s exceeds remaining %s", typ, amount, remaining)
	}

	return related, *amount, nil
}

func eligible(related *transaction.Transaction, typ transaction.Type) error {
	if typ == transaction.TypeCapture {
		if related.Type != transaction.TypePayment || related.Status != transaction.StatusCompleted {
			return invalid(CodeNotCapturable, "%s %s is %s", related.Type, related.ID, related.Status)
		}

		return nil
	}

	if related.Type == transaction.TypeRefund || related.Status != transaction.StatusCompleted {
		return invalid(CodeNotRefundable, "%s %s is %s", related.Type, related.ID, related.Status)
	}

	return nil
}

func validateAmount(m money.Money) error {
	if m.IsZero() {
		return invalid(CodeInvalidAmount, "amount and currency are required")
	}

	if !m.IsPositive() {
		return invalid(CodeInvalidAmount, "amount must be positive, got %s", m)
	}

	if _, err := m.MinorUnits(); err != nil {
		return invalid(CodeInvalidAmount, "%v", err)
	}

	return nil
}

func (s *Service) validateMethod(m provider.PaymentMethod) (provider.PaymentMethod, error) {
	switch m.Type {
	case provider.MethodCard:
		if m.Card == nil {
			return provider.PaymentMethod{}, invalid(CodeInvalidCard, "card details are required")
		}

		c, err := s.cards.Validate(*m.Card)
		if err != nil {
			// Card errors are sentinels and never echo the number.
			return provider.PaymentMethod{}, invalid(CodeInvalidCard, "%v", err)
		}

		return provider.PaymentMethod{Type: provider.MethodCard, Card: &c}, nil
	case provider.MethodToken:
		if m.Token == "" {
			return provider.PaymentMethod{}, invalid(CodeInvalidPaymentMethod, "token is required")
		}

		return provider.PaymentMethod{Type: provider.MethodToken, Token: m.Token}, nil
	default:
		return provider.PaymentMethod{}, invalid(CodeInvalidPaymentMethod, "unsupported payment method type %q", m.Type)
	}
}

func (s *Service) create(ctx context.Context, tx *transaction.Transaction, caller Caller) error {
	if err := s.txs.Create(ctx, tx); err != nil {
		// Another operation claimed the remainder between the check and the insert.
		if errors.Is(err, transaction.ErrExceedsRemainder) {
			return invalid(CodeExceedsRemainder, "%s of %s exceeds remaining amount", tx.Type, tx.Amount)
		}

		return fmt.Errorf("creating %s: %w", tx.Type, err)
	}

	s.record(ctx, tx, caller)

	return nil
}
