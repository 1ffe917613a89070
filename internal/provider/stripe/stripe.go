// Package stripe adapts Stripe PaymentIntents and Refunds to the gateway outcome taxonomy.
// Only tokenised payment methods are supported; raw card numbers never reach this adapter's wire.
package stripe

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	stripeapi "github.com/stripe/stripe-go/v80"
	"github.com/stripe/stripe-go/v80/paymentintent"
	"github.com/stripe/stripe-go/v80/refund"

	"github.com/MrJamesThe3rd/paycore/internal/money"
	"github.com/MrJamesThe3rd/paycore/internal/provider"
)

type Config struct {
	SecretKey string
	// URL overrides the API base, for tests and mocks.
	URL     string
	Timeout time.Duration
}

type Gateway struct {
	intents paymentintent.Client
	refunds refund.Client
}

func New(cfg Config) *Gateway {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = provider.DefaultTimeout
	}

	backendCfg := &stripeapi.BackendConfig{
		HTTPClient: &http.Client{Timeout: timeout},
		// Retries are owned by the caller's retry policy.
		MaxNetworkRetries: stripeapi.Int64(0),
		LeveledLogger:     &stripeapi.LeveledLogger{Level: stripeapi.LevelNull},
	}
	if cfg.URL != "" {
		backendCfg.URL = stripeapi.String(cfg.URL)
	}

	backend := stripeapi.GetBackendWithConfig(stripeapi.APIBackend, backendCfg)

	return &Gateway{
		intents: paymentintent.Client{B: backend, Key: cfg.SecretKey},
		refunds: refund.Client{B: backend, Key: cfg.SecretKey},
	}
}

func (g *Gateway) SubmitPayment(ctx context.Context, req provider.PaymentRequest) provider.Outcome {
	if req.Method.Type != provider.MethodToken || req.Method.Token == "" {
		return provider.Declined(provider.CodeUnsupportedMethod, "stripe accepts tokenised payment methods only")
	}

	units, err := req.Amount.MinorUnits()
	if err != nil {
		return provider.Declined("invalid_amount", err.Error())
	}

	params := &stripeapi.PaymentIntentParams{
		Amount:             stripeapi.Int64(units),
		Currency:           stripeapi.String(strings.ToLower(req.Amount.Currency())),
		PaymentMethod:      stripeapi.String(req.Method.Token),
		PaymentMethodTypes: stripeapi.StringSlice([]string{"card"}),
		Confirm:            stripeapi.Bool(true),
	}
	params.Context = ctx
	params.SetIdempotencyKey(req.IdempotencyKey)

	for k, v := range req.Metadata {
		params.AddMetadata(k, v)
	}

	pi, err := g.intents.New(params)
	if err != nil {
		return fromError(err)
	}

	return fromIntent(g.settle(ctx, pi))
}

func (g *Gateway) SubmitRefund(ctx context.Context, req provider.RefundRequest) provider.Outcome {
	params := &stripeapi.RefundParams{PaymentIntent: stripeapi.String(req.ProviderTransactionID)}
	params.Context = ctx
	params.SetIdempotencyKey(req.IdempotencyKey)

	if req.Amount != nil {
		units, outcome, ok := minorUnits(*req.Amount)
		if !ok {
			return outcome
		}

		params.Amount = stripeapi.Int64(units)
	}

	r, err := g.refunds.New(params)
	if err != nil {
		return fromError(err)
	}

	if r.Status == stripeapi.RefundStatusPending {
		getParams := &stripeapi.RefundParams{}
		getParams.Context = ctx

		if fresh, err := g.refunds.Get(r.ID, getParams); err == nil {
			r = fresh
		}
	}

	switch r.Status {
	case stripeapi.RefundStatusSucceeded:
		return provider.Accepted(r.ID)
	case stripeapi.RefundStatusPending, stripeapi.RefundStatusRequiresAction:
		return provider.Pending(r.ID, "refund not settled yet")
	case stripeapi.RefundStatusFailed, stripeapi.RefundStatusCanceled:
		return provider.Declined("refund_"+string(r.Status), "")
	default:
		return provider.Malformed("unexpected refund status " + string(r.Status))
	}
}

func (g *Gateway) SubmitCapture(ctx context.Context, req provider.CaptureRequest) provider.Outcome {
	params := &stripeapi.PaymentIntentCaptureParams{}
	params.Context = ctx
	params.SetIdempotencyKey(req.IdempotencyKey)

	if req.Amount != nil {
		units, outcome, ok := minorUnits(*req.Amount)
		if !ok {
			return outcome
		}

		params.AmountToCapture = stripeapi.Int64(units)
	}

	pi, err := g.intents.Capture(req.AuthorizationID, params)
	if err != nil {
		return fromError(err)
	}

	return fromIntent(g.settle(ctx, pi))
}

// settle re-reads an intent that is still processing. A replayed idempotent request returns the
// intent as it was first created, so only a read shows whether it has settled since.
func (g *Gateway) settle(ctx context.Context, pi *stripeapi.PaymentIntent) *stripeapi.PaymentIntent {
	if pi.Status != stripeapi.PaymentIntentStatusProcessing {
		return pi
	}

	params := &stripeapi.PaymentIntentParams{}
	params.Context = ctx

	fresh, err := g.intents.Get(pi.ID, params)
	if err != nil {
		return pi
	}

	return fresh
}

func minorUnits(m money.Money) (int64, provider.Outcome, bool) {
	units, err := m.MinorUnits()
	if err != nil {
		return 0, provider.Declined("invalid_amount", err.Error()), false
	}

	return units, provider.Outcome{}, true
}

func fromIntent(pi *stripeapi.PaymentIntent) provider.Outcome {
	switch pi.Status {
	case stripeapi.PaymentIntentStatusSucceeded, stripeapi.PaymentIntentStatusRequiresCapture:
		return provider.Accepted(pi.ID)
	case stripeapi.PaymentIntentStatusProcessing:
		return provider.Pending(pi.ID, "payment intent still processing")
	case stripeapi.PaymentIntentStatusRequiresAction:
		return provider.Declined("authentication_required", "payment requires customer action")
	case stripeapi.PaymentIntentStatusRequiresPaymentMethod, stripeapi.PaymentIntentStatusCanceled:
		return provider.Declined("payment_intent_"+string(pi.Status), "")
	default:
		return provider.Malformed("unexpected payment intent status " + string(pi.Status))
	}
}

func fromError(err error) provider.Outcome {
	var serr *stripeapi.Error
	if !errors.As(err, &serr) {
		if errors.Is(err, context.DeadlineExceeded) {
			return provider.Transient(provider.CodeTimeout, "provider call timed out")
		}

		return provider.Transient(provider.CodeNetworkError, "provider unreachable")
	}

	switch {
	case serr.HTTPStatusCode >= http.StatusInternalServerError,
		serr.HTTPStatusCode == http.StatusTooManyRequests,
		serr.Type == stripeapi.ErrorTypeAPI:
		return provider.Transient(provider.CodeUnavailable, serr.Msg)
	case serr.Type == stripeapi.ErrorTypeCard:
		code := string(serr.DeclineCode)
		if code == "" {
			code = string(serr.Code)
		}

		return provider.Declined(code, serr.Msg)
	case serr.Type == stripeapi.ErrorTypeIdempotency:
		return provider.Declined("idempotency_conflict", serr.Msg)
	default:
		return provider.Declined(string(serr.Code), serr.Msg)
	}
}
