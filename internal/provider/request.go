package provider

import (
	"log/slog"

	"github.com/MrJamesThe3rd/paycore/internal/card"
	"github.com/MrJamesThe3rd/paycore/internal/money"
)

// MethodType says how a payment method is expressed on the wire.
type MethodType string

const (
	MethodCard  MethodType = "card"
	MethodToken MethodType = "token"
)

// PaymentMethod is passed through to the provider without interpretation beyond validation.
type PaymentMethod struct {
	Type  MethodType `json:"type"`
	Card  *card.Card `json:"card,omitempty"`
	Token string     `json:"token,omitempty"`
}

// String returns a representation safe for logs and errors.
func (m PaymentMethod) String() string {
	switch {
	case m.Card != nil:
		return m.Card.String()
	case m.Token != "":
		return "token"
	default:
		return string(m.Type)
	}
}

func (m PaymentMethod) GoString() string { return m.String() }

func (m PaymentMethod) LogValue() slog.Value {
	if m.Card != nil {
		return slog.GroupValue(slog.String("type", string(m.Type)), slog.Any("card", *m.Card))
	}

	return slog.GroupValue(slog.String("type", string(m.Type)))
}

// PaymentRequest submits a charge. IdempotencyKey is the transaction id.
type PaymentRequest struct {
	IdempotencyKey string
	Amount         money.Money
	Method         PaymentMethod
	Metadata       map[string]string
}

// RefundRequest returns money from a prior provider transaction. A nil Amount refunds in full.
type RefundRequest struct {
	IdempotencyKey        string
	ProviderTransactionID string
	Amount                *money.Money
}

// CaptureRequest captures a prior authorization. A nil Amount captures the authorised amount.
type CaptureRequest struct {
	IdempotencyKey  string
	AuthorizationID string
	Amount          *money.Money
}
