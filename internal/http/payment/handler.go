package payment

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/MrJamesThe3rd/autoescrow/internal/auth"
	"github.com/MrJamesThe3rd/autoescrow/internal/http/respond"
	"github.com/MrJamesThe3rd/autoescrow/internal/payment"
	"github.com/MrJamesThe3rd/autoescrow/internal/transaction"
	"github.com/MrJamesThe3rd/autoescrow/internal/validate"
)

type Handler struct {
	svc          *payment.Service
	transactions *transaction.Service
}

func NewHandler(svc *payment.Service, transactions *transaction.Service) *Handler {
	return &Handler{svc: svc, transactions: transactions}
}

// Routes serves /payments.
func (h *Handler) Routes(r chi.Router) {
	r.With(auth.RequireAdmin).Get("/", h.list)
	r.Get("/{id}", h.get)

	r.Group(func(r chi.Router) {
		r.Use(auth.RequireAdmin)
		r.Post("/{id}/verify", h.verify)
		r.Post("/{id}/reject", h.reject)
		r.Post("/{id}/paid", h.markPaid)
	})
}

// TransactionRoutes serves /transactions/{id}/payments.
func (h *Handler) TransactionRoutes(r chi.Router) {
	r.Get("/", h.listForTransaction)
	r.Post("/", h.record)
}

type paymentResponse struct {
	ID              uuid.UUID       `json:"id"`
	TransactionID   uuid.UUID       `json:"transaction_id"`
	Amount          decimal.Decimal `json:"amount"`
	Currency        string          `json:"currency"`
	Method          payment.Method  `json:"method"`
	Reference       string          `json:"reference,omitempty"`
	Status          payment.Status  `json:"status"`
	VerifiedBy      *uuid.UUID      `json:"verified_by,omitempty"`
	VerifiedAt      *time.Time      `json:"verified_at,omitempty"`
	PaidAt          *time.Time      `json:"paid_at,omitempty"`
	RejectionReason string          `json:"rejection_reason,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       *time.Time      `json:"updated_at,omitempty"`
}

func toResponse(p *payment.Payment) paymentResponse {
	return paymentResponse{
		ID:              p.ID,
		TransactionID:   p.TransactionID,
		Amount:          p.Amount,
		Currency:        p.Currency,
		Method:          p.Method,
		Reference:       p.Reference,
		Status:          p.Status,
		VerifiedBy:      p.VerifiedBy,
		VerifiedAt:      p.VerifiedAt,
		PaidAt:          p.PaidAt,
		RejectionReason: p.RejectionReason,
		CreatedAt:       p.CreatedAt,
		UpdatedAt:       p.UpdatedAt,
	}
}

func toResponseList(ps []*payment.Payment) []paymentResponse {
	resp := make([]paymentResponse, len(ps))
	for i, p := range ps {
		resp[i] = toResponse(p)
	}

	return resp
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	filter := payment.ListFilter{}

	if s := r.URL.Query().Get("status"); s != "" {
		filter.Status = new(payment.Status(s))
	}

	ps, err := h.svc.List(r.Context(), filter)
	if err != nil {
		respond.Error(w, err)
		return
	}

	respond.JSON(w, http.StatusOK, toResponseList(ps))
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return
	}

	p, err := h.svc.Get(r.Context(), id)
	if err != nil {
		respond.Error(w, err)
		return
	}

	actor, _ := auth.ActorFromContext(r.Context())
	if _, err := h.transactions.View(r.Context(), p.TransactionID, actor); err != nil {
		respond.Error(w, err)
		return
	}

	respond.JSON(w, http.StatusOK, toResponse(p))
}

func (h *Handler) listForTransaction(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return
	}

	actor, _ := auth.ActorFromContext(r.Context())
	if _, err := h.transactions.View(r.Context(), id, actor); err != nil {
		respond.Error(w, err)
		return
	}

	ps, err := h.svc.List(r.Context(), payment.ListFilter{TransactionID: &id})
	if err != nil {
		respond.Error(w, err)
		return
	}

	respond.JSON(w, http.StatusOK, toResponseList(ps))
}

type recordPaymentRequest struct {
	Amount    string         `json:"amount" validate:"required,amount"`
	Currency  string         `json:"currency" validate:"required,currency"`
	Method    payment.Method `json:"method" validate:"required,oneof=bank_transfer card cash other"`
	Reference string         `json:"reference" validate:"max=140"`
}

func (h *Handler) record(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return
	}

	var req recordPaymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if err := validate.Struct(req); err != nil {
		respond.Error(w, err)
		return
	}

	actor, _ := auth.ActorFromContext(r.Context())

	p, err := h.svc.Record(r.Context(), payment.RecordParams{
		TransactionID: id,
		Amount:        decimal.RequireFromString(req.Amount),
		Currency:      req.Currency,
		Method:        req.Method,
		Reference:     req.Reference,
		Actor:         actor,
	})
	if err != nil {
		respond.Error(w, err)
		return
	}

	respond.JSON(w, http.StatusCreated, toResponse(p))
}

func (h *Handler) verify(w http.ResponseWriter, r *http.Request) {
	h.process(w, r, func(id uuid.UUID, actor transaction.Actor) (*payment.Payment, error) {
		return h.svc.Verify(r.Context(), id, actor)
	})
}

type rejectRequest struct {
	Reason string `json:"reason"`
}

func (h *Handler) reject(w http.ResponseWriter, r *http.Request) {
	var req rejectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	h.process(w, r, func(id uuid.UUID, actor transaction.Actor) (*payment.Payment, error) {
		return h.svc.Reject(r.Context(), id, actor, req.Reason)
	})
}

func (h *Handler) markPaid(w http.ResponseWriter, r *http.Request) {
	h.process(w, r, func(id uuid.UUID, actor transaction.Actor) (*payment.Payment, error) {
		return h.svc.MarkPaid(r.Context(), id, actor)
	})
}

func (h *Handler) process(w http.ResponseWriter, r *http.Request, fn func(uuid.UUID, transaction.Actor) (*payment.Payment, error)) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return
	}

	actor, _ := auth.ActorFromContext(r.Context())

	p, err := fn(id, actor)
	if err != nil {
		respond.Error(w, err)
		return
	}

	respond.JSON(w, http.StatusOK, toResponse(p))
}
