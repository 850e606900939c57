package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/areassist/apiserver/internal/services"
	"github.com/areassist/apiserver/internal/storage"
	"github.com/areassist/apiserver/internal/store"
	"github.com/areassist/apiserver/types"
)

const testSecret = "handler-test-secret"
const testAdminSecret = "ops-secret"

type fakeUserRepo struct {
	users  map[int]types.User
	nextID int

	// createErr, when set, fails the next Create once. Used to simulate
	// losing a write race against the database.
	createErr error
}

func newFakeUserRepo() *fakeUserRepo {
	return &fakeUserRepo{users: make(map[int]types.User), nextID: 1}
}

func (r *fakeUserRepo) GetByID(_ context.Context, id int) (types.User, error) {
	user, ok := r.users[id]
	if !ok {
		return types.User{}, store.ErrNotFound
	}
	return user, nil
}

func (r *fakeUserRepo) GetByEmail(_ context.Context, email string) (types.User, error) {
	for _, user := range r.users {
		if user.Email == email {
			return user, nil
		}
	}
	return types.User{}, store.ErrNotFound
}

func (r *fakeUserRepo) GetByExternalID(_ context.Context, externalID string) (types.User, error) {
	for _, user := range r.users {
		if user.ExternalID == externalID {
			return user, nil
		}
	}
	return types.User{}, store.ErrNotFound
}

func (r *fakeUserRepo) Create(_ context.Context, user types.User) (types.User, error) {
	if r.createErr != nil {
		err := r.createErr
		r.createErr = nil
		return types.User{}, err
	}
	user.ID = r.nextID
	r.nextID++
	r.users[user.ID] = user
	return user, nil
}

func (r *fakeUserRepo) Update(_ context.Context, user types.User) (types.User, error) {
	if _, ok := r.users[user.ID]; !ok {
		return types.User{}, store.ErrNotFound
	}
	r.users[user.ID] = user
	return user, nil
}

func (r *fakeUserRepo) ListByRole(_ context.Context, role types.Role) ([]types.User, error) {
	var out []types.User
	for _, user := range r.users {
		if user.Role == role {
			out = append(out, user)
		}
	}
	return out, nil
}

func (r *fakeUserRepo) LinkExternalID(_ context.Context, id int, externalID string) error {
	user, ok := r.users[id]
	if !ok {
		return store.ErrNotFound
	}
	user.ExternalID = externalID
	r.users[id] = user
	return nil
}

func (r *fakeUserRepo) TouchLastLogin(_ context.Context, id int) error {
	user, ok := r.users[id]
	if !ok {
		return store.ErrNotFound
	}
	now := time.Now()
	user.LastLogin = &now
	r.users[id] = user
	return nil
}

func (r *fakeUserRepo) SetVerified(_ context.Context, id int, verified bool) error {
	user, ok := r.users[id]
	if !ok {
		return store.ErrNotFound
	}
	user.Verified = verified
	r.users[id] = user
	return nil
}

type fakeIssueRepo struct {
	issues        map[int]types.Issue
	notifications *fakeNotificationRepo
	nextID        int
}

func newFakeIssueRepo(notifications *fakeNotificationRepo) *fakeIssueRepo {
	return &fakeIssueRepo{issues: make(map[int]types.Issue), notifications: notifications, nextID: 1}
}

func (r *fakeIssueRepo) Create(_ context.Context, issue types.Issue) (types.Issue, error) {
	issue.ID = r.nextID
	issue.CreatedAt = time.Now()
	r.nextID++
	r.issues[issue.ID] = issue
	return issue, nil
}

func (r *fakeIssueRepo) Get(_ context.Context, id int) (types.Issue, error) {
	issue, ok := r.issues[id]
	if !ok {
		return types.Issue{}, store.ErrNotFound
	}
	return issue, nil
}

func (r *fakeIssueRepo) List(_ context.Context, filter store.IssueFilter) ([]types.Issue, int, error) {
	var out []types.Issue
	for _, issue := range r.issues {
		if filter.Status != "" && string(issue.Status) != filter.Status {
			continue
		}
		if filter.Category != "" && issue.Category != filter.Category {
			continue
		}
		out = append(out, issue)
	}
	return out, len(out), nil
}

func (r *fakeIssueRepo) ListByReporter(_ context.Context, reporterID int) ([]types.Issue, error) {
	var out []types.Issue
	for _, issue := range r.issues {
		if issue.ReporterID == reporterID {
			out = append(out, issue)
		}
	}
	return out, nil
}

func (r *fakeIssueRepo) ListOpen(_ context.Context) ([]types.Issue, error) {
	var out []types.Issue
	for _, issue := range r.issues {
		if issue.Status != types.StatusResolved {
			out = append(out, issue)
		}
	}
	return out, nil
}

func (r *fakeIssueRepo) SetStatus(_ context.Context, id int, to types.IssueStatus) error {
	issue, ok := r.issues[id]
	if !ok {
		return store.ErrNotFound
	}
	if issue.Status == types.StatusResolved {
		return store.ErrConflict
	}
	issue.Status = to
	r.issues[id] = issue
	return nil
}

func (r *fakeIssueRepo) Annotate(ctx context.Context, id int, note string, status types.IssueStatus, notif types.Notification) error {
	issue, ok := r.issues[id]
	if !ok {
		return store.ErrNotFound
	}
	if issue.Status == types.StatusResolved {
		return store.ErrConflict
	}
	issue.VolunteerNote = note
	issue.Status = status
	r.issues[id] = issue
	_, _ = r.notifications.Create(ctx, notif)
	return nil
}

func (r *fakeIssueRepo) Resolve(ctx context.Context, id int, resolvedImageURL string, notif types.Notification) (time.Time, error) {
	issue, ok := r.issues[id]
	if !ok {
		return time.Time{}, store.ErrNotFound
	}
	if issue.Status == types.StatusResolved {
		return time.Time{}, store.ErrConflict
	}
	now := time.Now()
	issue.Status = types.StatusResolved
	issue.ResolvedImageURL = resolvedImageURL
	issue.ResolvedAt = &now
	r.issues[id] = issue
	_, _ = r.notifications.Create(ctx, notif)
	return now, nil
}

func (r *fakeIssueRepo) Reopen(ctx context.Context, id int, notif types.Notification) error {
	issue, ok := r.issues[id]
	if !ok {
		return store.ErrNotFound
	}
	if issue.Status != types.StatusResolved {
		return store.ErrConflict
	}
	issue.Status = types.StatusPending
	issue.ResolvedImageURL = ""
	issue.ResolvedAt = nil
	r.issues[id] = issue
	_, _ = r.notifications.Create(ctx, notif)
	return nil
}

type fakeNotificationRepo struct {
	notifications map[int]types.Notification
	nextID        int
}

func newFakeNotificationRepo() *fakeNotificationRepo {
	return &fakeNotificationRepo{notifications: make(map[int]types.Notification), nextID: 1}
}

func (r *fakeNotificationRepo) Create(_ context.Context, notif types.Notification) (types.Notification, error) {
	notif.ID = r.nextID
	notif.CreatedAt = time.Now()
	r.nextID++
	r.notifications[notif.ID] = notif
	return notif, nil
}

func (r *fakeNotificationRepo) Get(_ context.Context, id int) (types.Notification, error) {
	notif, ok := r.notifications[id]
	if !ok {
		return types.Notification{}, store.ErrNotFound
	}
	return notif, nil
}

func (r *fakeNotificationRepo) ListByUser(_ context.Context, userID int) ([]types.Notification, error) {
	var out []types.Notification
	for _, notif := range r.notifications {
		if notif.UserID == userID {
			out = append(out, notif)
		}
	}
	return out, nil
}

func (r *fakeNotificationRepo) UnreadCount(_ context.Context, userID int) (int, error) {
	count := 0
	for _, notif := range r.notifications {
		if notif.UserID == userID && !notif.IsRead {
			count++
		}
	}
	return count, nil
}

func (r *fakeNotificationRepo) MarkRead(_ context.Context, id, userID int) error {
	notif, ok := r.notifications[id]
	if !ok || notif.UserID != userID {
		return store.ErrNotFound
	}
	notif.IsRead = true
	r.notifications[id] = notif
	return nil
}

func (r *fakeNotificationRepo) MarkAllRead(_ context.Context, userID int) error {
	for id, notif := range r.notifications {
		if notif.UserID == userID {
			notif.IsRead = true
			r.notifications[id] = notif
		}
	}
	return nil
}

func (r *fakeNotificationRepo) Delete(_ context.Context, id, userID int) error {
	notif, ok := r.notifications[id]
	if !ok || notif.UserID != userID {
		return store.ErrNotFound
	}
	delete(r.notifications, id)
	return nil
}

type memObjectStorage struct {
	objects map[string][]byte
}

func newMemObjectStorage() *memObjectStorage {
	return &memObjectStorage{objects: make(map[string][]byte)}
}

func (m *memObjectStorage) EnsureBucket(context.Context) error { return nil }

func (m *memObjectStorage) Put(_ context.Context, key string, r io.Reader, _ int64, _ string) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	m.objects[key] = data
	return nil
}

func (m *memObjectStorage) Get(_ context.Context, key string) (io.ReadCloser, error) {
	data, ok := m.objects[key]
	if !ok {
		return nil, errors.New("no such object")
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (m *memObjectStorage) Delete(_ context.Context, key string) error {
	delete(m.objects, key)
	return nil
}

func (m *memObjectStorage) Bucket() string { return "test" }

// testAPI wires the full route tree over in-memory repositories.
type testAPI struct {
	router  *chi.Mux
	users   *fakeUserRepo
	issues  *fakeIssueRepo
	notifs  *fakeNotificationRepo
	objects *memObjectStorage
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()

	users := newFakeUserRepo()
	notifs := newFakeNotificationRepo()
	issues := newFakeIssueRepo(notifs)
	objects := newMemObjectStorage()

	userService := services.NewUserService(users)
	issueService := services.NewIssueService(issues, storage.NewStorage(objects), nil)
	notificationService := services.NewNotificationService(notifs)
	identityService := services.NewIdentityService(users, services.NewJWTVerifier("idp-secret", "test-idp"))
	otpService := services.NewOTPService(stubOTPRepo{}, nil, time.Minute)
	feedbackService := services.NewFeedbackService(stubFeedbackRepo{})

	limiter := NewRateLimiter(nil, 0)

	router := chi.NewRouter()
	router.Route("/auth", func(r chi.Router) {
		AuthRouter(r, userService, identityService, otpService, testSecret)
	})
	router.Route("/issues", func(r chi.Router) {
		IssueRouter(r, issueService, userService, limiter, testSecret)
	})
	router.Route("/notifications", func(r chi.Router) {
		NotificationRouter(r, notificationService, testSecret)
	})
	router.Route("/volunteers", func(r chi.Router) {
		VolunteerRouter(r, issueService, userService, testSecret)
	})
	router.Route("/admin", func(r chi.Router) {
		AdminRouter(r, userService, issueService, feedbackService, testSecret, testAdminSecret)
	})

	return &testAPI{router: router, users: users, issues: issues, notifs: notifs, objects: objects}
}

type stubOTPRepo struct{}

func (stubOTPRepo) Create(_ context.Context, challenge types.OTPChallenge) (types.OTPChallenge, error) {
	challenge.ID = 1
	return challenge, nil
}

func (stubOTPRepo) Consume(context.Context, types.OTPChannel, string, string) (types.OTPChallenge, error) {
	return types.OTPChallenge{}, store.ErrNotFound
}

type stubFeedbackRepo struct{}

func (stubFeedbackRepo) Create(_ context.Context, fb types.Feedback) (types.Feedback, error) {
	fb.ID = 1
	return fb, nil
}

func (stubFeedbackRepo) List(context.Context) ([]types.Feedback, error) {
	return nil, nil
}

// addUser stores a user with a bcrypt password and returns a session token.
func (api *testAPI) addUser(t *testing.T, name, email string, role types.Role, profileCompleted bool) (types.User, string) {
	t.Helper()

	hashed, err := bcrypt.GenerateFromPassword([]byte("password123"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	user, err := api.users.Create(context.Background(), types.User{
		Name:             name,
		Email:            email,
		Role:             role,
		PasswordHash:     string(hashed),
		ProfileCompleted: profileCompleted,
	})
	if err != nil {
		t.Fatalf("create user: %v", err)
	}

	token, err := issueToken(user.ID, []byte(testSecret), time.Hour)
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	return user, token
}

func (api *testAPI) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	rec := httptest.NewRecorder()
	api.router.ServeHTTP(rec, req)
	return rec
}

func (api *testAPI) doMultipart(t *testing.T, method, path, token string, fields map[string]string, imageField, imageName string, imageData []byte) *httptest.ResponseRecorder {
	t.Helper()

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	for name, value := range fields {
		_ = writer.WriteField(name, value)
	}
	if imageField != "" {
		part, err := writer.CreateFormFile(imageField, imageName)
		if err != nil {
			t.Fatalf("create form file: %v", err)
		}
		if _, err := part.Write(imageData); err != nil {
			t.Fatalf("write form file: %v", err)
		}
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("close writer: %v", err)
	}

	req := httptest.NewRequest(method, path, &body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	rec := httptest.NewRecorder()
	api.router.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var value T
	if err := json.NewDecoder(rec.Body).Decode(&value); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return value
}

func requireStatus(t *testing.T, rec *httptest.ResponseRecorder, want int) {
	t.Helper()
	if rec.Code != want {
		t.Fatalf("expected status %d, got %d: %s", want, rec.Code, rec.Body.String())
	}
}
