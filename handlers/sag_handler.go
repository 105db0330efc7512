package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/silsilat/tokenization-backend/queue"
	"github.com/silsilat/tokenization-backend/storage"
)

// Submitter enqueues asynchronous jobs.
type Submitter interface {
	SubmitIssuance(ctx context.Context, payload queue.IssuancePayload) (string, error)
	SubmitPurchase(ctx context.Context, payload queue.PurchasePayload) (string, error)
	SubmitRepayment(ctx context.Context, payload queue.RepaymentPayload, at time.Time) (string, error)
}

// SagHandler serves SAG creation and lookup.
type SagHandler struct {
	Queue Submitter
	Store storage.Store
}

func NewSagHandler(q Submitter, store storage.Store) *SagHandler {
	return &SagHandler{Queue: q, Store: store}
}

// Create enqueues an issuance job.
// POST /sags
func (h *SagHandler) Create(w http.ResponseWriter, r *http.Request) {
	// Authentication lives in front of this service; it forwards the user id.
	userID := r.Header.Get("X-User-ID")
	if userID == "" {
		http.Error(w, "X-User-ID header is required", http.StatusBadRequest)
		return
	}

	var payload queue.IssuancePayload
	if err := json.NewDecoder(r.Body).Decode(&payload.Input); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	payload.UserID = userID

	jobID, err := h.Queue.SubmitIssuance(r.Context(), payload)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(map[string]string{"jobId": jobID, "status": "queued"})
}

// Get returns one SAG by id.
// GET /sags/{id}
func (h *SagHandler) Get(w http.ResponseWriter, r *http.Request) {
	sagID := chi.URLParam(r, "id")
	if sagID == "" {
		http.Error(w, "SAG id is required", http.StatusBadRequest)
		return
	}

	sag, found, err := h.Store.GetSag(r.Context(), sagID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if !found {
		http.Error(w, "SAG not found", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(sag)
}
