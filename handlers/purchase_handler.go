package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/silsilat/tokenization-backend/queue"
)

// PurchaseHandler serves token purchase submissions.
type PurchaseHandler struct {
	Queue Submitter
}

func NewPurchaseHandler(q Submitter) *PurchaseHandler {
	return &PurchaseHandler{Queue: q}
}

// Create enqueues a purchase job.
// POST /purchases
func (h *PurchaseHandler) Create(w http.ResponseWriter, r *http.Request) {
	userID := r.Header.Get("X-User-ID")
	if userID == "" {
		http.Error(w, "X-User-ID header is required", http.StatusBadRequest)
		return
	}

	var payload queue.PurchasePayload
	if err := json.NewDecoder(r.Body).Decode(&payload.Input); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	payload.UserID = userID

	jobID, err := h.Queue.SubmitPurchase(r.Context(), payload)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(map[string]string{"jobId": jobID, "status": "queued"})
}
