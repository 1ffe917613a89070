package transaction

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/MrJamesThe3rd/paycore/internal/http/auth"
	"github.com/MrJamesThe3rd/paycore/internal/payment"
	"github.com/MrJamesThe3rd/paycore/internal/provider"
	"github.com/MrJamesThe3rd/paycore/internal/transaction"
)

const maxBodyBytes = 1 << 20

type Handler struct {
	svc *payment.Service
}

func NewHandler(svc *payment.Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) Routes(r chi.Router) {
	r.Get("/", h.list)
	r.Get("/{id}", h.get)
	r.Post("/{id}/resume", h.resume)
}

// Caller builds the audit identity of a request from its request id and token subject.
func Caller(r *http.Request) payment.Caller {
	return payment.Caller{
		CorrelationID: middleware.GetReqID(r.Context()),
		UserID:        auth.Subject(r.Context()),
	}
}

// Decode reads a JSON body; an empty body leaves dst untouched.
func Decode(w http.ResponseWriter, r *http.Request, dst any) error {
	err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(dst)
	if errors.Is(err, io.EOF) {
		return nil
	}

	return err
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	filter := transaction.ListFilter{}

	if s := r.URL.Query().Get("related_transaction_id"); s != "" {
		id, err := uuid.Parse(s)
		if err != nil {
			http.Error(w, "invalid related_transaction_id", http.StatusBadRequest)
			return
		}

		filter.RelatedTransactionID = &id
	}

	if s := r.URL.Query().Get("type"); s != "" {
		filter.Type = new(transaction.Type(s))
	}

	if s := r.URL.Query().Get("status"); s != "" {
		filter.Status = new(transaction.Status(s))
	}

	txs, err := h.svc.List(r.Context(), filter)
	if err != nil {
		WriteError(w, r, err)
		return
	}

	WriteJSON(w, http.StatusOK, ToResponseList(txs))
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return
	}

	tx, err := h.svc.Get(r.Context(), id)
	if err != nil {
		WriteError(w, r, err)
		return
	}

	WriteJSON(w, http.StatusOK, ToResponse(tx))
}

type resumeRequest struct {
	PaymentMethod *provider.PaymentMethod `json:"payment_method,omitempty"`
}

func (h *Handler) resume(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return
	}

	var req resumeRequest
	if err := Decode(w, r, &req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	tx, err := h.svc.Resume(r.Context(), id, req.PaymentMethod, Caller(r))
	if err != nil {
		WriteError(w, r, err)
		return
	}

	WriteJSON(w, http.StatusOK, ToResponse(tx))
}
