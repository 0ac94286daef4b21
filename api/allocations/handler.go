// Package allocations exposes the allocation operations over HTTP. The
// handlers translate between the JSON wire format and the domain types; all
// behaviour lives in the allocation manager.
package allocations

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"github.com/agrilink/fulfillment/core/allocation"
	"github.com/agrilink/fulfillment/core/logger"
	"github.com/agrilink/fulfillment/core/match"
	"github.com/agrilink/fulfillment/core/model"
)

// Handler serves the allocation API.
type Handler struct {
	manager *allocation.Manager
	log     logger.Logger
}

// NewHandler creates a Handler backed by the given manager.
func NewHandler(manager *allocation.Manager, log logger.Logger) *Handler {
	return &Handler{manager: manager, log: log}
}

// Register mounts the routes on the mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/requests", h.submit)
	mux.HandleFunc("GET /api/requests", h.list)
	mux.HandleFunc("GET /api/requests/{id}", h.get)
	mux.HandleFunc("GET /api/requests/{id}/ranking", h.ranking)
	mux.HandleFunc("POST /api/requests/{id}/review", h.review)
	mux.HandleFunc("POST /api/requests/{id}/approve", h.approve)
	mux.HandleFunc("POST /api/requests/{id}/reject", h.reject)
	mux.HandleFunc("GET /api/dispatches/{id}", h.getDispatch)
	mux.HandleFunc("POST /api/dispatches/{id}/status", h.updateDispatchStatus)
}

type submitRequest struct {
	RequesterID string           `json:"requester_id"`
	Commodity   string           `json:"commodity"`
	Variety     string           `json:"variety,omitempty"`
	Quantity    decimal.Decimal  `json:"quantity"`
	Unit        string           `json:"unit"`
	Deadline    *time.Time       `json:"deadline,omitempty"`
	Destination string           `json:"destination"`
	Price       *decimal.Decimal `json:"price,omitempty"`
	Notes       string           `json:"notes,omitempty"`
	LocationID  string           `json:"location_id,omitempty"`
}

type requestResponse struct {
	ID          string           `json:"id"`
	Code        string           `json:"code"`
	RequesterID string           `json:"requester_id,omitempty"`
	Commodity   string           `json:"commodity"`
	Variety     string           `json:"variety,omitempty"`
	Quantity    decimal.Decimal  `json:"quantity"`
	Unit        string           `json:"unit"`
	Deadline    *time.Time       `json:"deadline,omitempty"`
	Destination string           `json:"destination"`
	Price       *decimal.Decimal `json:"price,omitempty"`
	Notes       string           `json:"notes,omitempty"`
	Status      string           `json:"status"`
	LocationID  string           `json:"location_id,omitempty"`
	CreatedAt   time.Time        `json:"created_at"`
	UpdatedAt   time.Time        `json:"updated_at"`
}

type dispatchResponse struct {
	ID                string          `json:"id"`
	Code              string          `json:"code"`
	BatchID           string          `json:"batch_id"`
	RequestID         string          `json:"request_id,omitempty"`
	Destination       string          `json:"destination"`
	Quantity          decimal.Decimal `json:"quantity"`
	Unit              string          `json:"unit"`
	Status            string          `json:"status"`
	DispatchedAt      time.Time       `json:"dispatched_at"`
	EstimatedDelivery time.Time       `json:"estimated_delivery"`
}

type rankedBatchResponse struct {
	BatchID    string           `json:"batch_id"`
	LotCode    string           `json:"lot_code"`
	Remaining  decimal.Decimal  `json:"remaining"`
	Unit       string           `json:"unit"`
	Zone       string           `json:"zone,omitempty"`
	RiskScore  int              `json:"risk_score"`
	RiskTier   string           `json:"risk_tier"`
	Sufficient bool             `json:"sufficient"`
	Score      match.MatchScore `json:"score"`
}

type batchResponse struct {
	ID           string          `json:"id"`
	LotCode      string          `json:"lot_code"`
	Commodity    string          `json:"commodity"`
	Remaining    decimal.Decimal `json:"remaining"`
	Unit         string          `json:"unit"`
	Status       string          `json:"status"`
	DispatchedAt *time.Time      `json:"dispatched_at,omitempty"`
}

type approveRequest struct {
	BatchID string `json:"batch_id"`
}

type approveResponse struct {
	Request  requestResponse  `json:"request"`
	Batch    batchResponse    `json:"batch"`
	Dispatch dispatchResponse `json:"dispatch"`
}

type rejectRequest struct {
	Reason string `json:"reason"`
}

type statusUpdateRequest struct {
	Status string `json:"status"`
}

func (h *Handler) submit(w http.ResponseWriter, r *http.Request) {
	var body submitRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid json: "+err.Error())
		return
	}
	req, err := h.manager.Submit(r.Context(), model.AllocationRequest{
		RequesterID: body.RequesterID,
		Commodity:   body.Commodity,
		Variety:     body.Variety,
		Quantity:    body.Quantity,
		Unit:        body.Unit,
		Deadline:    body.Deadline,
		Destination: body.Destination,
		Price:       body.Price,
		Notes:       body.Notes,
		LocationID:  body.LocationID,
	})
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toRequestResponse(req))
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	req, err := h.manager.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toRequestResponse(req))
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.Query().Get("status")
	if raw == "" {
		raw = "pending"
	}
	status, err := model.ParseRequestStatus(raw)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	reqs, err := h.manager.ListByStatus(r.Context(), status)
	if err != nil {
		h.writeError(w, err)
		return
	}
	out := make([]requestResponse, 0, len(reqs))
	for _, req := range reqs {
		out = append(out, toRequestResponse(req))
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) ranking(w http.ResponseWriter, r *http.Request) {
	ranked, err := h.manager.Rank(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	out := make([]rankedBatchResponse, 0, len(ranked))
	for _, rb := range ranked {
		out = append(out, rankedBatchResponse{
			BatchID:    rb.Batch.ID,
			LotCode:    rb.Batch.LotCode,
			Remaining:  rb.Batch.Remaining,
			Unit:       rb.Batch.Unit,
			Zone:       rb.Batch.Zone,
			RiskScore:  rb.Batch.RiskScore,
			RiskTier:   rb.Tier.String(),
			Sufficient: rb.Sufficient,
			Score:      rb.Score,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) review(w http.ResponseWriter, r *http.Request) {
	req, err := h.manager.Review(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toRequestResponse(req))
}

func (h *Handler) approve(w http.ResponseWriter, r *http.Request) {
	var body approveRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid json: "+err.Error())
		return
	}
	res, err := h.manager.Approve(r.Context(), r.PathValue("id"), body.BatchID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, approveResponse{
		Request:  toRequestResponse(res.Request),
		Batch:    toBatchResponse(res.Batch),
		Dispatch: toDispatchResponse(res.Dispatch),
	})
}

func (h *Handler) reject(w http.ResponseWriter, r *http.Request) {
	var body rejectRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid json: "+err.Error())
		return
	}
	req, err := h.manager.Reject(r.Context(), r.PathValue("id"), body.Reason)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toRequestResponse(req))
}

func (h *Handler) getDispatch(w http.ResponseWriter, r *http.Request) {
	d, err := h.manager.GetDispatch(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toDispatchResponse(d))
}

func (h *Handler) updateDispatchStatus(w http.ResponseWriter, r *http.Request) {
	var body statusUpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid json: "+err.Error())
		return
	}
	status, err := model.ParseDispatchStatus(body.Status)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	d, err := h.manager.UpdateDispatchStatus(r.Context(), r.PathValue("id"), status)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toDispatchResponse(d))
}

func toRequestResponse(r model.AllocationRequest) requestResponse {
	return requestResponse{
		ID:          r.ID,
		Code:        r.Code,
		RequesterID: r.RequesterID,
		Commodity:   r.Commodity,
		Variety:     r.Variety,
		Quantity:    r.Quantity,
		Unit:        r.Unit,
		Deadline:    r.Deadline,
		Destination: r.Destination,
		Price:       r.Price,
		Notes:       r.Notes,
		Status:      r.Status.String(),
		LocationID:  r.LocationID,
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
	}
}

func toBatchResponse(b model.InventoryBatch) batchResponse {
	return batchResponse{
		ID:           b.ID,
		LotCode:      b.LotCode,
		Commodity:    b.Commodity,
		Remaining:    b.Remaining,
		Unit:         b.Unit,
		Status:       b.Status.String(),
		DispatchedAt: b.DispatchedAt,
	}
}

func toDispatchResponse(d model.Dispatch) dispatchResponse {
	return dispatchResponse{
		ID:                d.ID,
		Code:              d.Code,
		BatchID:           d.BatchID,
		RequestID:         d.RequestID,
		Destination:       d.Destination,
		Quantity:          d.Quantity,
		Unit:              d.Unit,
		Status:            d.Status.String(),
		DispatchedAt:      d.DispatchedAt,
		EstimatedDelivery: d.EstimatedDelivery,
	}
}

// writeError maps the typed domain errors onto HTTP status codes.
func (h *Handler) writeError(w http.ResponseWriter, err error) {
	var (
		vErr  *allocation.ValidationError
		nfErr *allocation.NotFoundError
		isErr *allocation.InvalidStateError
		iiErr *allocation.InsufficientInventoryError
	)
	switch {
	case errors.As(err, &vErr):
		writeJSONError(w, http.StatusBadRequest, err.Error())
	case errors.As(err, &nfErr):
		writeJSONError(w, http.StatusNotFound, err.Error())
	case errors.As(err, &isErr), errors.As(err, &iiErr):
		writeJSONError(w, http.StatusConflict, err.Error())
	default:
		h.log.Errorf("internal error: %v", err)
		writeJSONError(w, http.StatusInternalServerError, "internal error")
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeJSONError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
