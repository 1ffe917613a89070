package transaction

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/MrJamesThe3rd/paycore/internal/money"
	"github.com/MrJamesThe3rd/paycore/internal/payment"
	"github.com/MrJamesThe3rd/paycore/internal/transaction"
)

type Response struct {
	ID                    uuid.UUID          `json:"id"`
	Type                  transaction.Type   `json:"type"`
	Status                transaction.Status `json:"status"`
	Amount                money.Money        `json:"amount"`
	ProviderTransactionID string             `json:"provider_transaction_id,omitempty"`
	RelatedTransactionID  *uuid.UUID         `json:"related_transaction_id,omitempty"`
	ErrorCode             string             `json:"error_code,omitempty"`
	Metadata              map[string]string  `json:"metadata,omitempty"`
	CreatedAt             time.Time          `json:"created_at"`
	UpdatedAt             time.Time          `json:"updated_at"`
}

// ToResponse renders a record. Provider error messages are left out of the body.
func ToResponse(tx *transaction.Transaction) Response {
	resp := Response{
		ID:                    tx.ID,
		Type:                  tx.Type,
		Status:                tx.Status,
		Amount:                tx.Amount,
		ProviderTransactionID: tx.ProviderTransactionID,
		RelatedTransactionID:  tx.RelatedTransactionID,
		Metadata:              tx.Metadata,
		CreatedAt:             tx.CreatedAt,
		UpdatedAt:             tx.UpdatedAt,
	}

	if tx.Error != nil {
		resp.ErrorCode = tx.Error.Code
	}

	return resp
}

func ToResponseList(txs []*transaction.Transaction) []Response {
	resp := make([]Response, len(txs))
	for i, tx := range txs {
		resp[i] = ToResponse(tx)
	}

	return resp
}

type ErrorResponse struct {
	Code          string     `json:"code"`
	Message       string     `json:"message"`
	TransactionID *uuid.UUID `json:"transaction_id,omitempty"`
}

func WriteJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

// WriteError maps orchestrator errors onto status codes and stable bodies.
func WriteError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		verr *payment.ValidationError
		perr *payment.PaymentError
		terr *payment.TimeoutError
	)

	switch {
	case errors.As(err, &verr):
		WriteJSON(w, http.StatusUnprocessableEntity, ErrorResponse{Code: verr.Code, Message: verr.Message})
	case errors.As(err, &perr):
		WriteJSON(w, http.StatusPaymentRequired, ErrorResponse{
			Code:          perr.Code,
			Message:       "the payment provider did not complete the operation",
			TransactionID: &perr.TransactionID,
		})
	case errors.As(err, &terr):
		WriteJSON(w, http.StatusGatewayTimeout, ErrorResponse{
			Code:          "timeout",
			Message:       "outcome unknown; resume this transaction instead of submitting a new one",
			TransactionID: &terr.TransactionID,
		})
	case errors.Is(err, transaction.ErrNotFound):
		WriteJSON(w, http.StatusNotFound, ErrorResponse{Code: "not_found", Message: "transaction not found"})
	default:
		slog.ErrorContext(r.Context(), "request failed", "path", r.URL.Path, "error", err)
		WriteJSON(w, http.StatusInternalServerError, ErrorResponse{Code: "internal", Message: "internal error"})
	}
}
