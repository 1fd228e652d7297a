package transaction

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/MrJamesThe3rd/autoescrow/internal/audit"
	"github.com/MrJamesThe3rd/autoescrow/internal/auth"
	"github.com/MrJamesThe3rd/autoescrow/internal/http/respond"
	"github.com/MrJamesThe3rd/autoescrow/internal/transaction"
	"github.com/MrJamesThe3rd/autoescrow/internal/validate"
)

type Handler struct {
	svc      *transaction.Service
	activity *audit.Service
}

func NewHandler(svc *transaction.Service, activity *audit.Service) *Handler {
	return &Handler{svc: svc, activity: activity}
}

func (h *Handler) Routes(r chi.Router) {
	r.Post("/", h.create)
	r.Get("/", h.list)
	r.Get("/code/{code}", h.getByCode)
	r.Get("/{id}", h.get)
	r.Get("/{id}/transitions", h.transitions)
	r.Post("/{id}/transitions", h.transition)
	r.With(auth.RequireAdmin).Get("/{id}/activity", h.listActivity)
}

type createTransactionRequest struct {
	Code             string     `json:"code" validate:"omitempty,max=32"`
	BuyerID          uuid.UUID  `json:"buyer_id" validate:"required"`
	SellerID         uuid.UUID  `json:"seller_id" validate:"required,nefield=BuyerID"`
	DealerID         *uuid.UUID `json:"dealer_id"`
	VehicleID        uuid.UUID  `json:"vehicle_id" validate:"required"`
	Amount           string     `json:"amount" validate:"required,amount"`
	Currency         string     `json:"currency" validate:"required,currency"`
	ServiceFee       string     `json:"service_fee" validate:"omitempty,amount"`
	DealerCommission string     `json:"dealer_commission" validate:"omitempty,amount"`
	EscrowAccount    string     `json:"escrow_account" validate:"required,iban"`
	EscrowCountry    string     `json:"escrow_country" validate:"omitempty,iso3166_1_alpha2"`
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var req createTransactionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if err := validate.Struct(req); err != nil {
		respond.Error(w, err)
		return
	}

	actor, _ := auth.ActorFromContext(r.Context())

	tx, err := h.svc.Create(r.Context(), transaction.CreateParams{
		Code:             req.Code,
		BuyerID:          req.BuyerID,
		SellerID:         req.SellerID,
		DealerID:         req.DealerID,
		VehicleID:        req.VehicleID,
		Amount:           decimal.RequireFromString(req.Amount),
		Currency:         req.Currency,
		ServiceFee:       optionalAmount(req.ServiceFee),
		DealerCommission: optionalAmount(req.DealerCommission),
		EscrowAccount:    req.EscrowAccount,
		EscrowCountry:    req.EscrowCountry,
		Actor:            actor,
	})
	if err != nil {
		respond.Error(w, err)
		return
	}

	respond.JSON(w, http.StatusCreated, toResponse(tx))
}

// optionalAmount parses an already validated amount, treating blank as zero.
func optionalAmount(s string) decimal.Decimal {
	if s == "" {
		return decimal.Zero
	}

	return decimal.RequireFromString(s)
}

// list returns the caller's own transactions. Admins see everything and may
// narrow by party.
func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	actor, _ := auth.ActorFromContext(r.Context())
	filter := transaction.ListFilter{}

	if s := r.URL.Query().Get("status"); s != "" {
		filter.Status = new(transaction.Status(s))
	}

	switch {
	case !actor.Admin:
		filter.PartyID = &actor.ID
	case r.URL.Query().Get("party") != "":
		id, err := uuid.Parse(r.URL.Query().Get("party"))
		if err != nil {
			http.Error(w, "invalid party", http.StatusBadRequest)
			return
		}

		filter.PartyID = &id
	}

	txs, err := h.svc.List(r.Context(), filter)
	if err != nil {
		respond.Error(w, err)
		return
	}

	respond.JSON(w, http.StatusOK, toResponseList(txs))
}

func (h *Handler) load(w http.ResponseWriter, r *http.Request) (*transaction.Transaction, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return nil, false
	}

	actor, _ := auth.ActorFromContext(r.Context())

	tx, err := h.svc.View(r.Context(), id, actor)
	if err != nil {
		respond.Error(w, err)
		return nil, false
	}

	return tx, true
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	tx, ok := h.load(w, r)
	if !ok {
		return
	}

	respond.JSON(w, http.StatusOK, toResponse(tx))
}

func (h *Handler) getByCode(w http.ResponseWriter, r *http.Request) {
	tx, err := h.svc.GetByCode(r.Context(), chi.URLParam(r, "code"))
	if err != nil {
		respond.Error(w, err)
		return
	}

	// Strangers learn nothing about codes they do not belong to.
	if actor, _ := auth.ActorFromContext(r.Context()); !actor.Admin && !tx.IsParty(actor) {
		http.Error(w, transaction.ErrNotFound.Error(), http.StatusNotFound)
		return
	}

	respond.JSON(w, http.StatusOK, toResponse(tx))
}

func (h *Handler) transitions(w http.ResponseWriter, r *http.Request) {
	tx, ok := h.load(w, r)
	if !ok {
		return
	}

	actor, _ := auth.ActorFromContext(r.Context())

	targets := transaction.Transitions(tx, actor)
	if targets == nil {
		targets = []transaction.Status{}
	}

	respond.JSON(w, http.StatusOK, transitionsResponse{Status: tx.Status, Transitions: targets})
}

type transitionRequest struct {
	Target                transaction.Status `json:"target" validate:"required,oneof=pending payment_pending payment_verified inspection_scheduled completed cancelled"`
	InspectionDate        *time.Time         `json:"inspection_date"`
	OwnershipTransferDate *time.Time         `json:"ownership_transfer_date"`
	Reason                string             `json:"reason" validate:"max=500"`
}

func (h *Handler) transition(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return
	}

	var req transitionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if err := validate.Struct(req); err != nil {
		respond.Error(w, err)
		return
	}

	actor, _ := auth.ActorFromContext(r.Context())

	tx, err := h.svc.AttemptTransition(r.Context(), id, transaction.TransitionRequest{
		Target:                req.Target,
		Actor:                 actor,
		InspectionDate:        req.InspectionDate,
		OwnershipTransferDate: req.OwnershipTransferDate,
		Reason:                req.Reason,
	})
	if err != nil {
		respond.Error(w, err)
		return
	}

	respond.JSON(w, http.StatusOK, toResponse(tx))
}

func (h *Handler) listActivity(w http.ResponseWriter, r *http.Request) {
	tx, ok := h.load(w, r)
	if !ok {
		return
	}

	entries, err := h.activity.List(r.Context(), tx.ID)
	if err != nil {
		respond.Error(w, err)
		return
	}

	respond.JSON(w, http.StatusOK, toActivityList(entries))
}
