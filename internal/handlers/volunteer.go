package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/areassist/apiserver/internal/services"
	"github.com/areassist/apiserver/types"
)

// VolunteerHandler exposes volunteer-facing endpoints: the open-issue queue
// and the work profile.
type VolunteerHandler struct {
	issues *services.IssueService
	users  *services.UserService
}

func NewVolunteerHandler(issues *services.IssueService, users *services.UserService) *VolunteerHandler {
	return &VolunteerHandler{issues: issues, users: users}
}

// VolunteerRouter registers volunteer routes on the given router.
func VolunteerRouter(r chi.Router, issues *services.IssueService, users *services.UserService, jwtSecret string) {
	handler := NewVolunteerHandler(issues, users)

	r.Use(RequireAuth(jwtSecret))
	r.With(requireRole(users, types.RoleVolunteer)).Put("/profile", handler.CompleteProfile)
	r.With(requireVolunteer(users)).Get("/available-issues", handler.AvailableIssues)
}

// CompleteProfile files the volunteer's work profile. Until this succeeds the
// volunteer cannot act on issues.
func (h *VolunteerHandler) CompleteProfile(w http.ResponseWriter, r *http.Request) {
	userID, err := userIDFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var profile services.VolunteerProfile
	if err := json.NewDecoder(r.Body).Decode(&profile); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}

	user, err := h.users.CompleteProfile(r.Context(), userID, profile)
	if err != nil {
		writeServiceError(w, err, "failed to update profile")
		return
	}

	writeJSON(w, http.StatusOK, user)
}

// AvailableIssues lists every issue a volunteer can still work on, i.e.
// everything not yet resolved.
func (h *VolunteerHandler) AvailableIssues(w http.ResponseWriter, r *http.Request) {
	issues, err := h.issues.ListOpen(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list issues")
		return
	}
	if issues == nil {
		issues = []types.Issue{}
	}

	writeJSON(w, http.StatusOK, issues)
}
