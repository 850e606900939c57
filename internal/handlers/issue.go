package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/areassist/apiserver/internal/services"
	"github.com/areassist/apiserver/internal/store"
	"github.com/areassist/apiserver/types"
)

// maxUploadBytes bounds a single photo upload.
const maxUploadBytes = 10 << 20

// IssueHandler exposes the issue lifecycle over HTTP.
type IssueHandler struct {
	issues *services.IssueService
	users  *services.UserService
}

func NewIssueHandler(issues *services.IssueService, users *services.UserService) *IssueHandler {
	return &IssueHandler{issues: issues, users: users}
}

// IssueRouter registers issue routes on the given router. All routes require
// a session; mutation routes additionally require the right role.
func IssueRouter(r chi.Router, issues *services.IssueService, users *services.UserService, limiter *RateLimiter, jwtSecret string) {
	handler := NewIssueHandler(issues, users)

	r.Use(RequireAuth(jwtSecret))
	r.With(requireRole(users, types.RoleCitizen)).Post("/", limiter.Limit(handler.Submit))
	r.Get("/", handler.List)
	r.Get("/mine", handler.Mine)
	r.Get("/{id}", handler.Get)

	r.Group(func(r chi.Router) {
		r.Use(requireVolunteer(users))
		r.Put("/{id}", handler.UpdateStatus)
		r.Post("/{id}/note", handler.Annotate)
		r.Post("/{id}/resolve", handler.Resolve)
	})

	r.With(requireRole(users, types.RoleAdmin)).Post("/{id}/reopen", handler.Reopen)
}

// Submit accepts a multipart issue report with a mandatory photo.
func (h *IssueHandler) Submit(w http.ResponseWriter, r *http.Request) {
	userID, err := userIDFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}

	input := services.SubmitInput{
		Title:       r.FormValue("title"),
		Description: r.FormValue("description"),
		Category:    r.FormValue("category"),
		Location:    r.FormValue("location"),
	}
	if lat, ok := parseCoord(r.FormValue("latitude")); ok {
		input.Latitude = &lat
	}
	if lng, ok := parseCoord(r.FormValue("longitude")); ok {
		input.Longitude = &lng
	}

	image, err := formImage(r, "image")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	issue, err := h.issues.Submit(r.Context(), userID, input, image)
	if err != nil {
		writeServiceError(w, err, "failed to submit issue")
		return
	}

	writeJSON(w, http.StatusCreated, issue)
}

// List returns issues with optional category, status, and page filters.
func (h *IssueHandler) List(w http.ResponseWriter, r *http.Request) {
	filter := store.IssueFilter{
		Category: strings.TrimSpace(r.URL.Query().Get("category")),
		Status:   strings.TrimSpace(r.URL.Query().Get("status")),
		Limit:    10,
	}
	if limit, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil && limit > 0 {
		filter.Limit = limit
	}
	if page, err := strconv.Atoi(r.URL.Query().Get("page")); err == nil && page > 1 {
		filter.Offset = (page - 1) * filter.Limit
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

// Mine returns the caller's own reports, newest first.
func (h *IssueHandler) Mine(w http.ResponseWriter, r *http.Request) {
	userID, err := userIDFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	issues, err := h.issues.ListByReporter(r.Context(), userID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list issues")
		return
	}
	if issues == nil {
		issues = []types.Issue{}
	}

	writeJSON(w, http.StatusOK, issues)
}

// Get returns a single issue.
func (h *IssueHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid issue id")
		return
	}

	issue, err := h.issues.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "issue not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to load issue")
		return
	}

	writeJSON(w, http.StatusOK, issue)
}

// UpdateStatus moves an issue between Pending and In Progress.
func (h *IssueHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	userID, err := userIDFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid issue id")
		return
	}

	var req StatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}

	issue, err := h.issues.UpdateStatus(r.Context(), userID, id, types.IssueStatus(req.Status))
	if err != nil {
		writeServiceError(w, err, "failed to update issue")
		return
	}

	writeJSON(w, http.StatusOK, issue)
}

// Annotate attaches a volunteer note and notifies the reporter.
func (h *IssueHandler) Annotate(w http.ResponseWriter, r *http.Request) {
	userID, err := userIDFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid issue id")
		return
	}

	var req NoteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}

	issue, err := h.issues.Annotate(r.Context(), userID, id, req.Note, req.KeepInProgress)
	if err != nil {
		writeServiceError(w, err, "failed to annotate issue")
		return
	}

	writeJSON(w, http.StatusOK, issue)
}

// Resolve closes an issue with a mandatory resolution photo.
func (h *IssueHandler) Resolve(w http.ResponseWriter, r *http.Request) {
	userID, err := userIDFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid issue id")
		return
	}

	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}

	image, err := formImage(r, "image")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	issue, err := h.issues.Resolve(r.Context(), userID, id, image)
	if err != nil {
		writeServiceError(w, err, "failed to resolve issue")
		return
	}

	writeJSON(w, http.StatusOK, issue)
}

// Reopen returns a resolved issue to Pending.
func (h *IssueHandler) Reopen(w http.ResponseWriter, r *http.Request) {
	userID, err := userIDFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid issue id")
		return
	}

	issue, err := h.issues.Reopen(r.Context(), userID, id)
	if err != nil {
		writeServiceError(w, err, "failed to reopen issue")
		return
	}

	writeJSON(w, http.StatusOK, issue)
}

type StatusRequest struct {
	Status string `json:"status"`
}

type NoteRequest struct {
	Note           string `json:"note"`
	KeepInProgress bool   `json:"keepInProgress"`
}

type IssueListResponse struct {
	Issues []types.Issue `json:"issues"`
	Total  int           `json:"total"`
}

func parseCoord(raw string) (float64, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, false
	}
	value, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, false
	}
	return value, true
}

func formImage(r *http.Request, field string) (services.ImageFile, error) {
	file, header, err := r.FormFile(field)
	if err != nil {
		if errors.Is(err, http.ErrMissingFile) {
			// Absent file surfaces through service validation with the
			// other field errors.
			return services.ImageFile{}, nil
		}
		return services.ImageFile{}, errors.New("invalid image upload")
	}
	defer file.Close()

	data, err := readBounded(file)
	if err != nil {
		return services.ImageFile{}, err
	}
	return services.ImageFile{
		Filename:    header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Data:        data,
	}, nil
}

func readBounded(file multipart.File) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(file, maxUploadBytes+1))
	if err != nil {
		return nil, errors.New("failed to read image upload")
	}
	if len(data) > maxUploadBytes {
		return nil, errors.New("image exceeds the upload size limit")
	}
	return data, nil
}
