package payment_test

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/MrJamesThe3rd/paycore/internal/audit"
	"github.com/MrJamesThe3rd/paycore/internal/card"
	"github.com/MrJamesThe3rd/paycore/internal/money"
	"github.com/MrJamesThe3rd/paycore/internal/payment"
	"github.com/MrJamesThe3rd/paycore/internal/provider"
	"github.com/MrJamesThe3rd/paycore/internal/provider/stripe"
	"github.com/MrJamesThe3rd/paycore/internal/retry"
	"github.com/MrJamesThe3rd/paycore/internal/transaction"
	"github.com/MrJamesThe3rd/paycore/internal/transaction/memory"
)

const testPAN = "4242424242424242"

var now = time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC)

type eventLog struct {
	mu     sync.Mutex
	events []audit.Event
}

func (l *eventLog) Record(_ context.Context, e audit.Event) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.events = append(l.events, e)

	return nil
}

func (l *eventLog) kinds() []audit.Kind {
	l.mu.Lock()
	defer l.mu.Unlock()

	var kinds []audit.Kind
	for _, e := range l.events {
		kinds = append(kinds, e.Kind)
	}

	return kinds
}

type fixture struct {
	svc     *payment.Service
	gateway *payment.MockGateway
	store   *memory.Store
	events  *eventLog
	logs    *bytes.Buffer
}

func newFixture(t *testing.T, configure ...func(*payment.Config)) *fixture {
	t.Helper()

	ctrl := gomock.NewController(t)

	f := &fixture{
		gateway: payment.NewMockGateway(ctrl),
		store:   memory.New(),
		events:  &eventLog{},
		logs:    &bytes.Buffer{},
	}

	cfg := payment.Config{
		Retry:            retry.Policy{MaxAttempts: 3, BaseDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond},
		OperationTimeout: 5 * time.Second,
		Auditor:          f.events,
		Logger:           slog.New(slog.NewJSONHandler(f.logs, &slog.HandlerOptions{Level: slog.LevelDebug})),
		Now:              func() time.Time { return now },
	}

	for _, c := range configure {
		c(&cfg)
	}

	f.svc = payment.NewService(f.store, f.gateway, cfg)

	return f
}

// seed stores a completed payment as if it had been processed earlier.
func (f *fixture) seed(t *testing.T, amount string) *transaction.Transaction {
	t.Helper()

	tx := transaction.New(transaction.TypePayment, money.MustParse(amount, "USD"), nil, nil, now)
	require.NoError(t, tx.Complete("prov_orig", now))
	require.NoError(t, f.store.CreateTransaction(context.Background(), tx))

	return tx
}

func cardPayment(amount string) payment.PaymentRequest {
	return payment.PaymentRequest{
		Amount: money.MustParse(amount, "USD"),
		Method: provider.PaymentMethod{
			Type: provider.MethodCard,
			Card: &card.Card{Number: "4242 4242 4242 4242", ExpMonth: 12, ExpYear: 2099, CVC: "123"},
		},
		Metadata: map[string]string{"order": "o-1"},
		Caller:   payment.Caller{CorrelationID: "corr-1", UserID: "user-1"},
	}
}

func TestService_ProcessPayment_AcceptedFirstAttempt(t *testing.T) {
	f := newFixture(t)

	var sent provider.PaymentRequest

	f.gateway.EXPECT().SubmitPayment(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, req provider.PaymentRequest) provider.Outcome {
			sent = req
			return provider.Accepted("prov_1")
		}).Times(1)

	tx, err := f.svc.ProcessPayment(context.Background(), cardPayment("100.00"))
	require.NoError(t, err)

	assert.Equal(t, transaction.StatusCompleted, tx.Status)
	assert.Equal(t, "prov_1", tx.ProviderTransactionID)
	assert.Equal(t, "100.00", tx.Amount.String())
	assert.Equal(t, "USD", tx.Amount.Currency())

	assert.Equal(t, tx.ID.String(), sent.IdempotencyKey)
	assert.Equal(t, testPAN, sent.Method.Card.Number, "card is normalised before submission")
	assert.Equal(t, map[string]string{"order": "o-1"}, sent.Metadata)

	stored, err := f.svc.Get(context.Background(), tx.ID)
	require.NoError(t, err)
	assert.Equal(t, transaction.StatusCompleted, stored.Status)

	assert.Equal(t, []audit.Kind{audit.KindCreated, audit.KindTerminal}, f.events.kinds())
	assert.Equal(t, "corr-1", f.events.events[1].CorrelationID)
}

func TestService_ProcessPayment_RetriesTransientWithSameKey(t *testing.T) {
	f := newFixture(t)

	var keys []string

	record := func(_ context.Context, req provider.PaymentRequest) {
		keys = append(keys, req.IdempotencyKey)
	}

	gomock.InOrder(
		f.gateway.EXPECT().SubmitPayment(gomock.Any(), gomock.Any()).Do(record).
			Return(provider.Transient(provider.CodeTimeout, "timeout")),
		f.gateway.EXPECT().SubmitPayment(gomock.Any(), gomock.Any()).Do(record).
			Return(provider.Transient(provider.CodeUnavailable, "503")),
		f.gateway.EXPECT().SubmitPayment(gomock.Any(), gomock.Any()).Do(record).
			Return(provider.Accepted("prov_1")),
	)

	tx, err := f.svc.ProcessPayment(context.Background(), cardPayment("100.00"))
	require.NoError(t, err)

	assert.Equal(t, transaction.StatusCompleted, tx.Status)
	require.Len(t, keys, 3)
	assert.Equal(t, []string{tx.ID.String(), tx.ID.String(), tx.ID.String()}, keys)
	assert.Equal(t, []audit.Kind{audit.KindCreated, audit.KindTerminal}, f.events.kinds(), "transient attempts are not audited")
}

func TestService_ProcessPayment_TerminalFailures(t *testing.T) {
	type testCase struct {
		name     string
		outcome  provider.Outcome
		calls    int
		wantCode string
	}

	tests := []testCase{
		{
			name:     "Declined",
			outcome:  provider.Declined("card_declined", "Card declined"),
			calls:    1,
			wantCode: "card_declined",
		},
		{
			name:     "Malformed",
			outcome:  provider.Malformed("unexpected status"),
			calls:    1,
			wantCode: provider.CodeMalformedResponse,
		},
		{
			name:     "RetriesExhausted",
			outcome:  provider.Transient(provider.CodeUnavailable, "provider returned HTTP 503"),
			calls:    3,
			wantCode: provider.CodeUnavailable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)

			f.gateway.EXPECT().SubmitPayment(gomock.Any(), gomock.Any()).Return(tt.outcome).Times(tt.calls)

			tx, err := f.svc.ProcessPayment(context.Background(), cardPayment("100.00"))
			assert.Nil(t, tx)

			var perr *payment.PaymentError
			require.ErrorAs(t, err, &perr)
			assert.Equal(t, tt.wantCode, perr.Code)

			stored, err := f.svc.Get(context.Background(), perr.TransactionID)
			require.NoError(t, err)
			assert.Equal(t, transaction.StatusFailed, stored.Status)
			require.NotNil(t, stored.Error)
			assert.Equal(t, tt.wantCode, stored.Error.Code)
			assert.Empty(t, stored.ProviderTransactionID)

			assert.Equal(t, []audit.Kind{audit.KindCreated, audit.KindTerminal}, f.events.kinds())
			assert.Equal(t, tt.wantCode, f.events.events[1].ErrorCode)
		})
	}
}

func TestService_ProcessPayment_ValidationHasNoSideEffects(t *testing.T) {
	type testCase struct {
		name     string
		mutate   func(*payment.PaymentRequest)
		wantCode string
	}

	tests := []testCase{
		{
			name:     "MissingAmount",
			mutate:   func(r *payment.PaymentRequest) { r.Amount = money.Money{} },
			wantCode: payment.CodeInvalidAmount,
		},
		{
			name:     "ZeroAmount",
			mutate:   func(r *payment.PaymentRequest) { r.Amount = money.MustParse("0", "USD") },
			wantCode: payment.CodeInvalidAmount,
		},
		{
			name:     "SubMinorPrecision",
			mutate:   func(r *payment.PaymentRequest) { r.Amount = money.MustParse("10.001", "USD") },
			wantCode: payment.CodeInvalidAmount,
		},
		{
			name:     "BadLuhn",
			mutate:   func(r *payment.PaymentRequest) { r.Method.Card.Number = "4242424242424241" },
			wantCode: payment.CodeInvalidCard,
		},
		{
			name:     "MissingCard",
			mutate:   func(r *payment.PaymentRequest) { r.Method.Card = nil },
			wantCode: payment.CodeInvalidCard,
		},
		{
			name:     "EmptyToken",
			mutate:   func(r *payment.PaymentRequest) { r.Method = provider.PaymentMethod{Type: provider.MethodToken} },
			wantCode: payment.CodeInvalidPaymentMethod,
		},
		{
			name:     "UnknownMethod",
			mutate:   func(r *payment.PaymentRequest) { r.Method = provider.PaymentMethod{Type: "wire"} },
			wantCode: payment.CodeInvalidPaymentMethod,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)

			req := cardPayment("100.00")
			tt.mutate(&req)

			_, err := f.svc.ProcessPayment(context.Background(), req)

			var verr *payment.ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tt.wantCode, verr.Code)
			assert.Zero(t, f.store.Len(), "no record is created for invalid input")
			assert.Empty(t, f.events.kinds())
			assert.NotContains(t, err.Error(), "424242424242424")
		})
	}
}

func TestService_ProcessPayment_DeadlineLeavesRecordPending(t *testing.T) {
	f := newFixture(t, func(c *payment.Config) { c.OperationTimeout = 50 * time.Millisecond })

	f.gateway.EXPECT().SubmitPayment(gomock.Any(), gomock.Any()).
		DoAndReturn(func(ctx context.Context, _ provider.PaymentRequest) provider.Outcome {
			<-ctx.Done()
			return provider.Transient(provider.CodeTimeout, "provider call timed out")
		}).Times(1)

	tx, err := f.svc.ProcessPayment(context.Background(), cardPayment("100.00"))
	assert.Nil(t, tx)

	var terr *payment.TimeoutError
	require.ErrorAs(t, err, &terr)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	stored, err := f.svc.Get(context.Background(), terr.TransactionID)
	require.NoError(t, err)
	assert.Equal(t, transaction.StatusPending, stored.Status)
	assert.Equal(t, []audit.Kind{audit.KindCreated}, f.events.kinds())
}

func TestService_ProcessPayment_DeadlineDuringBackoff(t *testing.T) {
	f := newFixture(t, func(c *payment.Config) {
		c.OperationTimeout = 50 * time.Millisecond
		c.Retry = retry.Policy{MaxAttempts: 3, BaseDelay: time.Hour, MaxDelay: time.Hour}
	})

	f.gateway.EXPECT().SubmitPayment(gomock.Any(), gomock.Any()).
		Return(provider.Transient(provider.CodeUnavailable, "503")).Times(1)

	start := time.Now()
	_, err := f.svc.ProcessPayment(context.Background(), cardPayment("100.00"))

	var terr *payment.TimeoutError
	require.ErrorAs(t, err, &terr)
	assert.Less(t, time.Since(start), 5*time.Second, "backoff must stop at the deadline")
}

func TestService_ProcessPayment_DefaultRetryPolicy(t *testing.T) {
	f := newFixture(t, func(c *payment.Config) {
		c.Retry = retry.Policy{}
	})

	f.gateway.EXPECT().SubmitPayment(gomock.Any(), gomock.Any()).
		Return(provider.Transient(provider.CodeUnavailable, "503")).Times(retry.DefaultMaxAttempts)

	_, err := f.svc.ProcessPayment(context.Background(), cardPayment("100.00"))

	var perr *payment.PaymentError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, provider.CodeUnavailable, perr.Code)
}

func TestService_ProcessPayment_UnsettledStaysPending(t *testing.T) {
	f := newFixture(t)

	f.gateway.EXPECT().SubmitPayment(gomock.Any(), gomock.Any()).
		Return(provider.Pending("pi_1", "payment intent still processing")).Times(3)

	tx, err := f.svc.ProcessPayment(context.Background(), cardPayment("100.00"))
	assert.Nil(t, tx)

	var terr *payment.TimeoutError
	require.ErrorAs(t, err, &terr)
	assert.ErrorIs(t, err, payment.ErrProviderPending)
	assert.Equal(t, "pi_1", terr.ProviderTransactionID)

	stored, err := f.svc.Get(context.Background(), terr.TransactionID)
	require.NoError(t, err)
	assert.Equal(t, transaction.StatusPending, stored.Status)
	assert.Nil(t, stored.Error)
	assert.Equal(t, []audit.Kind{audit.KindCreated}, f.events.kinds())
}

func TestService_ProcessPayment_StripeProcessingIsResumed(t *testing.T) {
	var (
		mu      sync.Mutex
		settled bool
		creates int
		reads   int
	)

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()

		status := "processing"
		if settled {
			status = "succeeded"
		}

		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/v1/payment_intents":
			creates++
			// Idempotent replays return the intent as first created.
			status = "processing"
		case r.Method == http.MethodGet && r.URL.Path == "/v1/payment_intents/pi_1":
			reads++
		default:
			w.WriteHeader(http.StatusNotFound)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id":"pi_1","object":"payment_intent","status":"` + status + `"}`))
	}))
	defer ts.Close()

	events := &eventLog{}
	svc := payment.NewService(memory.New(), stripe.New(stripe.Config{SecretKey: "sk_test_123", URL: ts.URL}), payment.Config{
		Retry:   retry.Policy{MaxAttempts: 3, BaseDelay: time.Millisecond},
		Auditor: events,
	})

	req := payment.PaymentRequest{
		Amount: money.MustParse("100.00", "USD"),
		Method: provider.PaymentMethod{Type: provider.MethodToken, Token: "pm_card_visa"},
	}

	_, err := svc.ProcessPayment(context.Background(), req)

	var terr *payment.TimeoutError
	require.ErrorAs(t, err, &terr)
	assert.Equal(t, "pi_1", terr.ProviderTransactionID)

	stored, err := svc.Get(context.Background(), terr.TransactionID)
	require.NoError(t, err)
	assert.Equal(t, transaction.StatusPending, stored.Status)

	mu.Lock()
	assert.Equal(t, 3, creates)
	assert.Equal(t, 3, reads)
	settled = true
	mu.Unlock()

	tx, err := svc.Resume(context.Background(), terr.TransactionID, &req.Method, payment.Caller{})
	require.NoError(t, err)
	assert.Equal(t, transaction.StatusCompleted, tx.Status)
	assert.Equal(t, "pi_1", tx.ProviderTransactionID)
	assert.Equal(t, []audit.Kind{audit.KindCreated, audit.KindTerminal}, events.kinds())
}

func TestService_ProcessPayment_CanceledCaller(t *testing.T) {
	f := newFixture(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := f.svc.ProcessPayment(ctx, cardPayment("100.00"))

	var terr *payment.TimeoutError
	require.ErrorAs(t, err, &terr)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestService_ProcessPayment_DeadlineNeverFinalizes(t *testing.T) {
	ctrl := gomock.NewController(t)
	repo := transaction.NewMockRepository(ctrl)
	gateway := payment.NewMockGateway(ctrl)

	svc := payment.NewService(repo, gateway, payment.Config{
		Retry:            retry.Policy{MaxAttempts: 3, BaseDelay: time.Millisecond},
		OperationTimeout: 20 * time.Millisecond,
		Logger:           slog.New(slog.DiscardHandler),
	})

	repo.EXPECT().CreateTransaction(gomock.Any(), gomock.Any()).Return(nil)
	gateway.EXPECT().SubmitPayment(gomock.Any(), gomock.Any()).
		DoAndReturn(func(ctx context.Context, _ provider.PaymentRequest) provider.Outcome {
			<-ctx.Done()
			return provider.Transient(provider.CodeTimeout, "")
		})

	_, err := svc.ProcessPayment(context.Background(), cardPayment("10.00"))

	var terr *payment.TimeoutError
	assert.ErrorAs(t, err, &terr)
}

func TestService_ProcessPayment_LateAcceptIsRecorded(t *testing.T) {
	f := newFixture(t, func(c *payment.Config) { c.OperationTimeout = 20 * time.Millisecond })

	f.gateway.EXPECT().SubmitPayment(gomock.Any(), gomock.Any()).
		DoAndReturn(func(ctx context.Context, _ provider.PaymentRequest) provider.Outcome {
			<-ctx.Done()
			return provider.Accepted("prov_late")
		})

	tx, err := f.svc.ProcessPayment(context.Background(), cardPayment("10.00"))
	require.NoError(t, err)
	assert.Equal(t, "prov_late", tx.ProviderTransactionID)

	stored, err := f.svc.Get(context.Background(), tx.ID)
	require.NoError(t, err)
	assert.Equal(t, transaction.StatusCompleted, stored.Status)
}

func TestService_ProcessPayment_ConcurrentFinalizeWins(t *testing.T) {
	ctrl := gomock.NewController(t)
	repo := transaction.NewMockRepository(ctrl)
	gateway := payment.NewMockGateway(ctrl)

	svc := payment.NewService(repo, gateway, payment.Config{Logger: slog.New(slog.DiscardHandler)})

	var created *transaction.Transaction

	repo.EXPECT().CreateTransaction(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, tx *transaction.Transaction) error {
			created = tx.Clone()
			return nil
		})
	gateway.EXPECT().SubmitPayment(gomock.Any(), gomock.Any()).Return(provider.Declined("card_declined", ""))
	repo.EXPECT().FinalizeTransaction(gomock.Any(), gomock.Any()).Return(transaction.ErrAlreadyFinal)
	repo.EXPECT().GetTransaction(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, id uuid.UUID) (*transaction.Transaction, error) {
			winner := created.Clone()
			require.NoError(t, winner.Complete("prov_other", now))

			return winner, nil
		})

	tx, err := svc.ProcessPayment(context.Background(), cardPayment("10.00"))
	require.NoError(t, err)
	assert.Equal(t, "prov_other", tx.ProviderTransactionID)
}

func TestService_ProcessPayment_NoCardDataInLogs(t *testing.T) {
	f := newFixture(t)

	f.gateway.EXPECT().SubmitPayment(gomock.Any(), gomock.Any()).
		Return(provider.Transient(provider.CodeNetworkError, "reset")).Times(3)

	_, err := f.svc.ProcessPayment(context.Background(), cardPayment("100.00"))
	require.Error(t, err)

	assert.NotEmpty(t, f.logs.String())
	assert.NotContains(t, f.logs.String(), testPAN)
	assert.NotContains(t, f.logs.String(), "4242 4242")
	assert.NotContains(t, err.Error(), testPAN)
	assert.Contains(t, f.logs.String(), `"correlation_id":"corr-1"`)
}

func TestService_ProcessPayment_AuditFailureDoesNotFail(t *testing.T) {
	ctrl := gomock.NewController(t)
	auditor := payment.NewMockAuditor(ctrl)
	gateway := payment.NewMockGateway(ctrl)

	svc := payment.NewService(memory.New(), gateway, payment.Config{
		Auditor: auditor,
		Logger:  slog.New(slog.DiscardHandler),
	})

	auditor.EXPECT().Record(gomock.Any(), gomock.Any()).Return(errors.New("sns down")).Times(2)
	gateway.EXPECT().SubmitPayment(gomock.Any(), gomock.Any()).Return(provider.Accepted("prov_1"))

	tx, err := svc.ProcessPayment(context.Background(), cardPayment("5.00"))
	require.NoError(t, err)
	assert.Equal(t, transaction.StatusCompleted, tx.Status)
}

func TestService_ProcessPayment_UsesCardValidator(t *testing.T) {
	ctrl := gomock.NewController(t)
	cards := payment.NewMockCardValidator(ctrl)
	gateway := payment.NewMockGateway(ctrl)

	svc := payment.NewService(memory.New(), gateway, payment.Config{Cards: cards, Logger: slog.New(slog.DiscardHandler)})

	cards.EXPECT().Validate(gomock.Any()).Return(card.Card{}, card.ErrExpired)

	_, err := svc.ProcessPayment(context.Background(), cardPayment("5.00"))

	var verr *payment.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, payment.CodeInvalidCard, verr.Code)
}

func TestService_ProcessRefund(t *testing.T) {
	f := newFixture(t)
	original := f.seed(t, "20.00")

	var sent provider.RefundRequest

	f.gateway.EXPECT().SubmitRefund(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, req provider.RefundRequest) provider.Outcome {
			sent = req
			return provider.Accepted("re_1")
		})

	amount := money.MustParse("7.50", "USD")
	tx, err := f.svc.ProcessRefund(context.Background(), payment.RefundRequest{OriginalID: original.ID, Amount: &amount})
	require.NoError(t, err)

	assert.Equal(t, transaction.TypeRefund, tx.Type)
	assert.Equal(t, transaction.StatusCompleted, tx.Status)
	require.NotNil(t, tx.RelatedTransactionID)
	assert.Equal(t, original.ID, *tx.RelatedTransactionID)

	assert.Equal(t, tx.ID.String(), sent.IdempotencyKey)
	assert.Equal(t, "prov_orig", sent.ProviderTransactionID)
	require.NotNil(t, sent.Amount)
	assert.Equal(t, "7.50", sent.Amount.String())
}

func TestService_ProcessRefund_DefaultsToRemainder(t *testing.T) {
	f := newFixture(t)
	original := f.seed(t, "20.00")

	prior := transaction.New(transaction.TypeRefund, money.MustParse("5.00", "USD"), &original.ID, nil, now)
	require.NoError(t, prior.Complete("re_0", now))
	require.NoError(t, f.store.CreateTransaction(context.Background(), prior))

	failed := transaction.New(transaction.TypeRefund, money.MustParse("15.00", "USD"), &original.ID, nil, now)
	require.NoError(t, failed.Fail("declined", "", now))
	require.NoError(t, f.store.CreateTransaction(context.Background(), failed))

	f.gateway.EXPECT().SubmitRefund(gomock.Any(), gomock.Any()).Return(provider.Accepted("re_1"))

	tx, err := f.svc.ProcessRefund(context.Background(), payment.RefundRequest{OriginalID: original.ID})
	require.NoError(t, err)
	assert.Equal(t, "15.00", tx.Amount.String(), "failed refunds do not consume the remainder")
}

func TestService_ProcessRefund_Rejections(t *testing.T) {
	type testCase struct {
		name     string
		target   func(t *testing.T, f *fixture) uuid.UUID
		amount   *money.Money
		wantCode string
	}

	completed := func(t *testing.T, f *fixture) uuid.UUID { return f.seed(t, "20.00").ID }

	tests := []testCase{
		{
			name:     "ExceedsOriginal",
			target:   completed,
			amount:   new(money.MustParse("30.00", "USD")),
			wantCode: payment.CodeExceedsRemainder,
		},
		{
			name:     "CurrencyMismatch",
			target:   completed,
			amount:   new(money.MustParse("5.00", "EUR")),
			wantCode: payment.CodeCurrencyMismatch,
		},
		{
			name:     "ZeroAmount",
			target:   completed,
			amount:   new(money.MustParse("0", "USD")),
			wantCode: payment.CodeInvalidAmount,
		},
		{
			name:     "UnknownOriginal",
			target:   func(*testing.T, *fixture) uuid.UUID { return uuid.New() },
			wantCode: payment.CodeUnknownTransaction,
		},
		{
			name: "PendingOriginal",
			target: func(t *testing.T, f *fixture) uuid.UUID {
				tx := transaction.New(transaction.TypePayment, money.MustParse("20.00", "USD"), nil, nil, now)
				require.NoError(t, f.store.CreateTransaction(context.Background(), tx))

				return tx.ID
			},
			wantCode: payment.CodeNotRefundable,
		},
		{
			name: "FullyRefunded",
			target: func(t *testing.T, f *fixture) uuid.UUID {
				original := f.seed(t, "20.00")
				refund := transaction.New(transaction.TypeRefund, original.Amount, &original.ID, nil, now)
				require.NoError(t, f.store.CreateTransaction(context.Background(), refund))

				return original.ID
			},
			wantCode: payment.CodeNothingRemaining,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			target := tt.target(t, f)
			before := f.store.Len()

			_, err := f.svc.ProcessRefund(context.Background(), payment.RefundRequest{OriginalID: target, Amount: tt.amount})

			var verr *payment.ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tt.wantCode, verr.Code)
			assert.Equal(t, before, f.store.Len())
		})
	}
}

func TestService_ProcessRefund_ConcurrentRefundsNeverOverdraw(t *testing.T) {
	f := newFixture(t)
	original := f.seed(t, "20.00")

	f.gateway.EXPECT().SubmitRefund(gomock.Any(), gomock.Any()).Return(provider.Accepted("re")).AnyTimes()

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
		rejected  int
	)

	for range 10 {
		wg.Go(func() {
			amount := money.MustParse("5.00", "USD")
			_, err := f.svc.ProcessRefund(context.Background(), payment.RefundRequest{OriginalID: original.ID, Amount: &amount})

			mu.Lock()
			defer mu.Unlock()

			var verr *payment.ValidationError
			switch {
			case err == nil:
				succeeded++
			case errors.As(err, &verr) && verr.Code == payment.CodeExceedsRemainder:
				rejected++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		})
	}

	wg.Wait()

	assert.Equal(t, 4, succeeded)
	assert.Equal(t, 6, rejected)
}

func TestService_CapturePayment(t *testing.T) {
	f := newFixture(t)
	authorization := f.seed(t, "50.00")

	var sent provider.CaptureRequest

	f.gateway.EXPECT().SubmitCapture(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, req provider.CaptureRequest) provider.Outcome {
			sent = req
			return provider.Accepted("cap_1")
		})

	tx, err := f.svc.CapturePayment(context.Background(), payment.CaptureRequest{AuthorizationID: authorization.ID})
	require.NoError(t, err)

	assert.Equal(t, transaction.TypeCapture, tx.Type)
	assert.Equal(t, "50.00", tx.Amount.String())
	assert.Equal(t, "prov_orig", sent.AuthorizationID)
	assert.Equal(t, tx.ID.String(), sent.IdempotencyKey)

	amount := money.MustParse("1.00", "USD")
	_, err = f.svc.CapturePayment(context.Background(), payment.CaptureRequest{AuthorizationID: authorization.ID, Amount: &amount})

	var verr *payment.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, payment.CodeExceedsRemainder, verr.Code)
}

func TestService_CapturePayment_RejectsNonPayments(t *testing.T) {
	f := newFixture(t)
	original := f.seed(t, "50.00")

	refund := transaction.New(transaction.TypeRefund, money.MustParse("5.00", "USD"), &original.ID, nil, now)
	require.NoError(t, refund.Complete("re_1", now))
	require.NoError(t, f.store.CreateTransaction(context.Background(), refund))

	_, err := f.svc.CapturePayment(context.Background(), payment.CaptureRequest{AuthorizationID: refund.ID})

	var verr *payment.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, payment.CodeNotCapturable, verr.Code)
}

func TestService_Resume(t *testing.T) {
	t.Run("PendingPaymentIsRedrivenWithSameKey", func(t *testing.T) {
		f := newFixture(t, func(c *payment.Config) { c.OperationTimeout = 20 * time.Millisecond })

		f.gateway.EXPECT().SubmitPayment(gomock.Any(), gomock.Any()).
			DoAndReturn(func(ctx context.Context, _ provider.PaymentRequest) provider.Outcome {
				<-ctx.Done()
				return provider.Transient(provider.CodeTimeout, "")
			})

		req := cardPayment("100.00")
		_, err := f.svc.ProcessPayment(context.Background(), req)

		var terr *payment.TimeoutError
		require.ErrorAs(t, err, &terr)

		var key string

		f.gateway.EXPECT().SubmitPayment(gomock.Any(), gomock.Any()).
			DoAndReturn(func(_ context.Context, r provider.PaymentRequest) provider.Outcome {
				key = r.IdempotencyKey
				return provider.Accepted("prov_1")
			})

		tx, err := f.svc.Resume(context.Background(), terr.TransactionID, &req.Method, payment.Caller{})
		require.NoError(t, err)

		assert.Equal(t, terr.TransactionID, tx.ID)
		assert.Equal(t, terr.TransactionID.String(), key)
		assert.Equal(t, transaction.StatusCompleted, tx.Status)
		assert.Equal(t, []audit.Kind{audit.KindCreated, audit.KindTerminal}, f.events.kinds())
	})

	t.Run("PaymentNeedsMethod", func(t *testing.T) {
		f := newFixture(t)

		pending := transaction.New(transaction.TypePayment, money.MustParse("1.00", "USD"), nil, nil, now)
		require.NoError(t, f.store.CreateTransaction(context.Background(), pending))

		_, err := f.svc.Resume(context.Background(), pending.ID, nil, payment.Caller{})

		var verr *payment.ValidationError
		require.ErrorAs(t, err, &verr)
		assert.Equal(t, payment.CodePaymentMethodRequired, verr.Code)
	})

	t.Run("PendingRefund", func(t *testing.T) {
		f := newFixture(t)
		original := f.seed(t, "20.00")

		pending := transaction.New(transaction.TypeRefund, money.MustParse("4.00", "USD"), &original.ID, nil, now)
		require.NoError(t, f.store.CreateTransaction(context.Background(), pending))

		f.gateway.EXPECT().SubmitRefund(gomock.Any(), gomock.Any()).
			DoAndReturn(func(_ context.Context, r provider.RefundRequest) provider.Outcome {
				assert.Equal(t, pending.ID.String(), r.IdempotencyKey)
				assert.Equal(t, "prov_orig", r.ProviderTransactionID)

				return provider.Accepted("re_1")
			})

		tx, err := f.svc.Resume(context.Background(), pending.ID, nil, payment.Caller{})
		require.NoError(t, err)
		assert.Equal(t, transaction.StatusCompleted, tx.Status)
	})

	t.Run("TerminalRecordsAreNotResubmitted", func(t *testing.T) {
		f := newFixture(t)
		completed := f.seed(t, "20.00")

		failed := transaction.New(transaction.TypePayment, money.MustParse("1.00", "USD"), nil, nil, now)
		require.NoError(t, failed.Fail("card_declined", "", now))
		require.NoError(t, f.store.CreateTransaction(context.Background(), failed))

		tx, err := f.svc.Resume(context.Background(), completed.ID, nil, payment.Caller{})
		require.NoError(t, err)
		assert.Equal(t, completed.ID, tx.ID)

		_, err = f.svc.Resume(context.Background(), failed.ID, nil, payment.Caller{})

		var perr *payment.PaymentError
		require.ErrorAs(t, err, &perr)
		assert.Equal(t, "card_declined", perr.Code)
	})

	t.Run("Unknown", func(t *testing.T) {
		f := newFixture(t)

		_, err := f.svc.Resume(context.Background(), uuid.New(), nil, payment.Caller{})
		assert.ErrorIs(t, err, transaction.ErrNotFound)
	})
}
