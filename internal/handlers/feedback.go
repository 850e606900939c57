package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/areassist/apiserver/internal/services"
)

// FeedbackHandler accepts platform feedback. Submission is open; reading the
// collected feedback is an admin endpoint.
type FeedbackHandler struct {
	feedback *services.FeedbackService
}

func NewFeedbackHandler(feedback *services.FeedbackService) *FeedbackHandler {
	return &FeedbackHandler{feedback: feedback}
}

// FeedbackRouter registers feedback routes on the given router.
func FeedbackRouter(r chi.Router, feedback *services.FeedbackService) {
	handler := NewFeedbackHandler(feedback)

	r.Post("/", handler.Submit)
}

func (h *FeedbackHandler) Submit(w http.ResponseWriter, r *http.Request) {
	var req FeedbackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}

	fb, err := h.feedback.Submit(r.Context(), req.Name, req.Message)
	if err != nil {
		writeServiceError(w, err, "failed to save feedback")
		return
	}

	writeJSON(w, http.StatusCreated, fb)
}

type FeedbackRequest struct {
	Name    string `json:"name"`
	Message string `json:"message"`
}
