package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/silsilat/tokenization-backend/queue"
	"github.com/silsilat/tokenization-backend/services"
	"github.com/silsilat/tokenization-backend/storage"
)

// RepaymentHandler serves SAG repayment submissions.
type RepaymentHandler struct {
	Queue Submitter
	Store storage.Store
}

func NewRepaymentHandler(q Submitter, store storage.Store) *RepaymentHandler {
	return &RepaymentHandler{Queue: q, Store: store}
}

// Create enqueues a repayment job. With atExpiry the job is scheduled for
// the SAG's maturity instead of running immediately.
// POST /repayments
func (h *RepaymentHandler) Create(w http.ResponseWriter, r *http.Request) {
	userID := r.Header.Get("X-User-ID")
	if userID == "" {
		http.Error(w, "X-User-ID header is required", http.StatusBadRequest)
		return
	}

	var req struct {
		TokenID  string `json:"tokenId"`
		AtExpiry bool   `json:"atExpiry"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	var at time.Time
	if req.AtExpiry {
		sag, found, err := h.Store.GetSagByTokenID(r.Context(), req.TokenID)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		if !found {
			http.Error(w, "SAG not found for token", http.StatusNotFound)
			return
		}
		at = sag.ExpiredAt
	}

	jobID, err := h.Queue.SubmitRepayment(r.Context(), queue.RepaymentPayload{
		Input:  services.RepaymentInput{TokenID: req.TokenID},
		UserID: userID,
	}, at)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(map[string]string{"jobId": jobID, "status": "queued"})
}
