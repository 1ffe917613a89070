package payment

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	txhttp "github.com/MrJamesThe3rd/paycore/internal/http/transaction"
	"github.com/MrJamesThe3rd/paycore/internal/money"
	"github.com/MrJamesThe3rd/paycore/internal/payment"
	"github.com/MrJamesThe3rd/paycore/internal/provider"
)

const amountMessage = "amount must be a decimal string and currency an ISO 4217 code"

type Handler struct {
	svc      *payment.Service
	validate *validator.Validate
}

func NewHandler(svc *payment.Service) *Handler {
	return &Handler{svc: svc, validate: validator.New()}
}

func (h *Handler) Routes(r chi.Router) {
	r.Post("/", h.create)
	r.Post("/{id}/refunds", h.refund)
	r.Post("/{id}/captures", h.capture)
}

// The payment method is checked by the payment service after normalisation.
type createPaymentRequest struct {
	Amount        string                 `json:"amount" validate:"required,numeric"`
	Currency      string                 `json:"currency" validate:"required,iso4217"`
	PaymentMethod provider.PaymentMethod `json:"payment_method" validate:"-"`
	Metadata      map[string]string      `json:"metadata"`
}

// childRequest is the body of a refund or capture; omitting amount takes the whole remainder.
type childRequest struct {
	Amount   string            `json:"amount,omitempty" validate:"required_with=Currency,omitempty,numeric"`
	Currency string            `json:"currency,omitempty" validate:"required_with=Amount,omitempty,iso4217"`
	Metadata map[string]string `json:"metadata"`
}

// check validates a decoded body and writes the 422 response when it fails.
// Only amount fields carry tags, so every failure is an invalid amount.
func (h *Handler) check(w http.ResponseWriter, req any) bool {
	if err := h.validate.Struct(req); err != nil {
		txhttp.WriteJSON(w, http.StatusUnprocessableEntity, txhttp.ErrorResponse{
			Code:    payment.CodeInvalidAmount,
			Message: amountMessage,
		})

		return false
	}

	return true
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var req createPaymentRequest
	if err := txhttp.Decode(w, r, &req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	req.Currency = strings.ToUpper(req.Currency)
	if !h.check(w, &req) {
		return
	}

	amount, err := money.Parse(req.Amount, req.Currency)
	if err != nil {
		txhttp.WriteJSON(w, http.StatusUnprocessableEntity, txhttp.ErrorResponse{
			Code:    payment.CodeInvalidAmount,
			Message: err.Error(),
		})

		return
	}

	tx, err := h.svc.ProcessPayment(r.Context(), payment.PaymentRequest{
		Amount:   amount,
		Method:   req.PaymentMethod,
		Metadata: req.Metadata,
		Caller:   txhttp.Caller(r),
	})
	if err != nil {
		txhttp.WriteError(w, r, err)
		return
	}

	txhttp.WriteJSON(w, http.StatusCreated, txhttp.ToResponse(tx))
}

func (h *Handler) refund(w http.ResponseWriter, r *http.Request) {
	id, req, amount, ok := h.decodeChild(w, r)
	if !ok {
		return
	}

	tx, err := h.svc.ProcessRefund(r.Context(), payment.RefundRequest{
		OriginalID: id,
		Amount:     amount,
		Metadata:   req.Metadata,
		Caller:     txhttp.Caller(r),
	})
	if err != nil {
		txhttp.WriteError(w, r, err)
		return
	}

	txhttp.WriteJSON(w, http.StatusCreated, txhttp.ToResponse(tx))
}

func (h *Handler) capture(w http.ResponseWriter, r *http.Request) {
	id, req, amount, ok := h.decodeChild(w, r)
	if !ok {
		return
	}

	tx, err := h.svc.CapturePayment(r.Context(), payment.CaptureRequest{
		AuthorizationID: id,
		Amount:          amount,
		Metadata:        req.Metadata,
		Caller:          txhttp.Caller(r),
	})
	if err != nil {
		txhttp.WriteError(w, r, err)
		return
	}

	txhttp.WriteJSON(w, http.StatusCreated, txhttp.ToResponse(tx))
}

func (h *Handler) decodeChild(w http.ResponseWriter, r *http.Request) (uuid.UUID, childRequest, *money.Money, bool) {
	var req childRequest

	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return uuid.Nil, req, nil, false
	}

	if err := txhttp.Decode(w, r, &req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return uuid.Nil, req, nil, false
	}

	req.Currency = strings.ToUpper(req.Currency)
	if !h.check(w, &req) {
		return uuid.Nil, req, nil, false
	}

	if req.Amount == "" {
		return id, req, nil, true
	}

	amount, err := money.Parse(req.Amount, req.Currency)
	if err != nil {
		txhttp.WriteJSON(w, http.StatusUnprocessableEntity, txhttp.ErrorResponse{
			Code:    payment.CodeInvalidAmount,
			Message: err.Error(),
		})

		return uuid.Nil, req, nil, false
	}

	return id, req, &amount, true
}
