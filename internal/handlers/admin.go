package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/areassist/apiserver/internal/services"
	"github.com/areassist/apiserver/internal/store"
	"github.com/areassist/apiserver/types"
)

// AdminHandler exposes oversight endpoints: account listings, the full issue
// table, feedback, and volunteer verification.
type AdminHandler struct {
	users    *services.UserService
	issues   *services.IssueService
	feedback *services.FeedbackService
}

func NewAdminHandler(users *services.UserService, issues *services.IssueService, feedback *services.FeedbackService) *AdminHandler {
	return &AdminHandler{users: users, issues: issues, feedback: feedback}
}

// AdminRouter registers admin routes on the given router. Access requires an
// admin session, or the operator secret header for bootstrap and tooling.
func AdminRouter(r chi.Router, users *services.UserService, issues *services.IssueService, feedback *services.FeedbackService, jwtSecret, adminSecret string) {
	handler := NewAdminHandler(users, issues, feedback)

	r.Use(adminOnly(users, jwtSecret, adminSecret))
	r.Get("/citizens", handler.Citizens)
	r.Get("/volunteers", handler.Volunteers)
	r.Get("/issues", handler.Issues)
	r.Get("/feedbacks", handler.Feedbacks)
	r.Get("/users/{id}", handler.User)
	r.Put("/users/{id}/verify", handler.VerifyUser)
}

// adminOnly admits admin sessions, and requests carrying the operator secret
// header. The header path exists so the first admin can be managed before any
// admin account exists.
func adminOnly(users *services.UserService, jwtSecret, adminSecret string) func(http.Handler) http.Handler {
	auth := requireAuth([]byte(jwtSecret))
	role := requireRole(users, types.RoleAdmin)
	return func(next http.Handler) http.Handler {
		viaSession := auth(role(next))
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if adminSecret != "" && r.Header.Get("X-Admin-Secret") == adminSecret {
				next.ServeHTTP(w, r)
				return
			}
			viaSession.ServeHTTP(w, r)
		})
	}
}

func (h *AdminHandler) Citizens(w http.ResponseWriter, r *http.Request) {
	h.listByRole(w, r, types.RoleCitizen)
}

func (h *AdminHandler) Volunteers(w http.ResponseWriter, r *http.Request) {
	h.listByRole(w, r, types.RoleVolunteer)
}

func (h *AdminHandler) listByRole(w http.ResponseWriter, r *http.Request, role types.Role) {
	users, err := h.users.ListByRole(r.Context(), role)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list users")
		return
	}
	if users == nil {
		users = []types.User{}
	}
	writeJSON(w, http.StatusOK, users)
}

// Issues returns the full issue table with the usual filters.
func (h *AdminHandler) Issues(w http.ResponseWriter, r *http.Request) {
	filter := store.IssueFilter{
		Category: r.URL.Query().Get("category"),
		Status:   r.URL.Query().Get("status"),
		Limit:    100,
	}

	issues, total, err := h.issues.List(r.Context(), filter)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list issues")
		return
	}
	if issues == nil {
		issues = []types.Issue{}
	}

	writeJSON(w, http.StatusOK, IssueListResponse{Issues: issues, Total: total})
}

func (h *AdminHandler) Feedbacks(w http.ResponseWriter, r *http.Request) {
	feedbacks, err := h.feedback.List(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list feedback")
		return
	}
	if feedbacks == nil {
		feedbacks = []types.Feedback{}
	}

	writeJSON(w, http.StatusOK, feedbacks)
}

func (h *AdminHandler) User(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid user id")
		return
	}

	user, err := h.users.GetByID(r.Context(), id)
	if err != nil {
		writeServiceError(w, err, "failed to load user")
		return
	}

	writeJSON(w, http.StatusOK, user)
}

// VerifyUser records the admin's decision on a volunteer account.
func (h *AdminHandler) VerifyUser(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid user id")
		return
	}

	var req VerifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}

	if err := h.users.SetVerified(r.Context(), id, req.Verified); err != nil {
		writeServiceError(w, err, "failed to update user")
		return
	}

	writeJSON(w, http.StatusOK, map[string]bool{"verified": req.Verified})
}

type VerifyRequest struct {
	Verified bool `json:"verified"`
}
