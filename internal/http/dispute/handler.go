package dispute

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/MrJamesThe3rd/autoescrow/internal/auth"
	"github.com/MrJamesThe3rd/autoescrow/internal/dispute"
	"github.com/MrJamesThe3rd/autoescrow/internal/http/respond"
	"github.com/MrJamesThe3rd/autoescrow/internal/transaction"
	"github.com/MrJamesThe3rd/autoescrow/internal/validate"
)

type Handler struct {
	svc          *dispute.Service
	transactions *transaction.Service
}

func NewHandler(svc *dispute.Service, transactions *transaction.Service) *Handler {
	return &Handler{svc: svc, transactions: transactions}
}

// Routes serves /disputes.
func (h *Handler) Routes(r chi.Router) {
	r.With(auth.RequireAdmin).Get("/", h.list)
	r.Get("/{id}", h.get)

	r.Group(func(r chi.Router) {
		r.Use(auth.RequireAdmin)
		r.Post("/{id}/review", h.review)
		r.Post("/{id}/resolve", h.resolve)
		r.Post("/{id}/close", h.close)
	})
}

// TransactionRoutes serves /transactions/{id}/disputes.
func (h *Handler) TransactionRoutes(r chi.Router) {
	r.Get("/", h.listForTransaction)
	r.Post("/", h.open)
}

type resolutionResponse struct {
	Type       dispute.ResolutionType `json:"type"`
	ResolvedBy uuid.UUID              `json:"resolved_by"`
	ResolvedAt time.Time              `json:"resolved_at"`
	Text       string                 `json:"text"`
}

type disputeResponse struct {
	ID            uuid.UUID           `json:"id"`
	TransactionID uuid.UUID           `json:"transaction_id"`
	RaisedBy      uuid.UUID           `json:"raised_by"`
	Type          dispute.Type        `json:"type"`
	Reason        string              `json:"reason"`
	Description   string              `json:"description,omitempty"`
	Status        dispute.Status      `json:"status"`
	Resolution    *resolutionResponse `json:"resolution,omitempty"`
	CreatedAt     time.Time           `json:"created_at"`
	UpdatedAt     *time.Time          `json:"updated_at,omitempty"`
}

func toResponse(d *dispute.Dispute) disputeResponse {
	resp := disputeResponse{
		ID:            d.ID,
		TransactionID: d.TransactionID,
		RaisedBy:      d.RaisedBy,
		Type:          d.Type,
		Reason:        d.Reason,
		Description:   d.Description,
		Status:        d.Status,
		CreatedAt:     d.CreatedAt,
		UpdatedAt:     d.UpdatedAt,
	}

	if d.Resolution != nil {
		resp.Resolution = &resolutionResponse{
			Type:       d.Resolution.Type,
			ResolvedBy: d.Resolution.ResolvedBy,
			ResolvedAt: d.Resolution.ResolvedAt,
			Text:       d.Resolution.Text,
		}
	}

	return resp
}

func toResponseList(ds []*dispute.Dispute) []disputeResponse {
	resp := make([]disputeResponse, len(ds))
	for i, d := range ds {
		resp[i] = toResponse(d)
	}

	return resp
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	filter := dispute.ListFilter{}

	if s := r.URL.Query().Get("status"); s != "" {
		filter.Status = new(dispute.Status(s))
	}

	ds, err := h.svc.List(r.Context(), filter)
	if err != nil {
		respond.Error(w, err)
		return
	}

	respond.JSON(w, http.StatusOK, toResponseList(ds))
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return
	}

	d, err := h.svc.Get(r.Context(), id)
	if err != nil {
		respond.Error(w, err)
		return
	}

	actor, _ := auth.ActorFromContext(r.Context())
	if _, err := h.transactions.View(r.Context(), d.TransactionID, actor); err != nil {
		respond.Error(w, err)
		return
	}

	respond.JSON(w, http.StatusOK, toResponse(d))
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

	ds, err := h.svc.List(r.Context(), dispute.ListFilter{TransactionID: &id})
	if err != nil {
		respond.Error(w, err)
		return
	}

	respond.JSON(w, http.StatusOK, toResponseList(ds))
}

type openDisputeRequest struct {
	Type        dispute.Type `json:"type" validate:"required,oneof=payment vehicle_condition documentation ownership_transfer other"`
	Reason      string       `json:"reason" validate:"required,max=200"`
	Description string       `json:"description" validate:"max=4000"`
}

func (h *Handler) open(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return
	}

	var req openDisputeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if err := validate.Struct(req); err != nil {
		respond.Error(w, err)
		return
	}

	actor, _ := auth.ActorFromContext(r.Context())

	d, err := h.svc.Open(r.Context(), dispute.OpenParams{
		TransactionID: id,
		Type:          req.Type,
		Reason:        req.Reason,
		Description:   req.Description,
		Actor:         actor,
	})
	if err != nil {
		respond.Error(w, err)
		return
	}

	respond.JSON(w, http.StatusCreated, toResponse(d))
}

func (h *Handler) review(w http.ResponseWriter, r *http.Request) {
	h.process(w, r, func(id uuid.UUID, actor transaction.Actor) (*dispute.Dispute, error) {
		return h.svc.StartReview(r.Context(), id, actor)
	})
}

type resolveRequest struct {
	Type dispute.ResolutionType `json:"type"`
	Text string                 `json:"text"`
}

func (h *Handler) resolve(w http.ResponseWriter, r *http.Request) {
	var req resolveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	h.process(w, r, func(id uuid.UUID, actor transaction.Actor) (*dispute.Dispute, error) {
		return h.svc.Resolve(r.Context(), id, actor, req.Type, req.Text)
	})
}

type closeRequest struct {
	Text string `json:"text"`
}

func (h *Handler) close(w http.ResponseWriter, r *http.Request) {
	var req closeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	h.process(w, r, func(id uuid.UUID, actor transaction.Actor) (*dispute.Dispute, error) {
		return h.svc.Close(r.Context(), id, actor, req.Text)
	})
}

func (h *Handler) process(w http.ResponseWriter, r *http.Request, fn func(uuid.UUID, transaction.Actor) (*dispute.Dispute, error)) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return
	}

	actor, _ := auth.ActorFromContext(r.Context())

	d, err := fn(id, actor)
	if err != nil {
		respond.Error(w, err)
		return
	}

	respond.JSON(w, http.StatusOK, toResponse(d))
}
