package services

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/areassist/apiserver/internal/storage"
	"github.com/areassist/apiserver/internal/store"
	"github.com/areassist/apiserver/types"
)

type fakeIssueRepo struct {
	issues        map[int]types.Issue
	notifications []types.Notification
	nextID        int
}

func newFakeIssueRepo() *fakeIssueRepo {
	return &fakeIssueRepo{issues: make(map[int]types.Issue), nextID: 1}
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

func (r *fakeIssueRepo) Annotate(_ context.Context, id int, note string, status types.IssueStatus, notif types.Notification) error {
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
	r.notifications = append(r.notifications, notif)
	return nil
}

func (r *fakeIssueRepo) Resolve(_ context.Context, id int, resolvedImageURL string, notif types.Notification) (time.Time, error) {
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
	r.notifications = append(r.notifications, notif)
	return now, nil
}

func (r *fakeIssueRepo) Reopen(_ context.Context, id int, notif types.Notification) error {
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
	r.notifications = append(r.notifications, notif)
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

type recordingPublisher struct {
	published []string
}

func (p *recordingPublisher) Publish(_ context.Context, channel string, _ []byte, _ map[string]string) (string, error) {
	p.published = append(p.published, channel)
	return "1", nil
}

func validSubmitInput() SubmitInput {
	return SubmitInput{
		Title:       "Broken streetlight",
		Description: "The streetlight at the corner of 5th and Main has been out for a week.",
		Category:    "infrastructure",
		Location:    "5th and Main",
	}
}

func testImage() ImageFile {
	return ImageFile{Filename: "photo.jpg", ContentType: "image/jpeg", Data: []byte("jpegdata")}
}

func newTestIssueService() (*IssueService, *fakeIssueRepo, *memObjectStorage, *recordingPublisher) {
	repo := newFakeIssueRepo()
	objects := newMemObjectStorage()
	events := &recordingPublisher{}
	svc := NewIssueService(repo, storage.NewStorage(objects), events)
	return svc, repo, objects, events
}

func TestSubmitCreatesPendingIssue(t *testing.T) {
	svc, _, objects, events := newTestIssueService()

	issue, err := svc.Submit(context.Background(), 7, validSubmitInput(), testImage())
	if err != nil {
		t.Fatalf("submit: %v", err)
	}

	if issue.Status != types.StatusPending {
		t.Fatalf("expected Pending, got %q", issue.Status)
	}
	if issue.ReporterID != 7 {
		t.Fatalf("unexpected reporter: %d", issue.ReporterID)
	}
	if !strings.HasPrefix(issue.ImageURL, "/uploads/") {
		t.Fatalf("unexpected image url: %q", issue.ImageURL)
	}
	if len(objects.objects) != 1 {
		t.Fatalf("expected 1 stored object, got %d", len(objects.objects))
	}
	if len(events.published) != 1 || events.published[0] != ChannelIssueCreated {
		t.Fatalf("unexpected events: %v", events.published)
	}
}

func TestSubmitReportsEveryViolatedField(t *testing.T) {
	svc, repo, objects, _ := newTestIssueService()

	_, err := svc.Submit(context.Background(), 7, SubmitInput{
		Title:       "bad",
		Description: "too short",
	}, ImageFile{})

	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected validation error, got %v", err)
	}
	for _, field := range []string{"title", "description", "category", "location", "image"} {
		if _, ok := verr.Fields[field]; !ok {
			t.Errorf("expected field %q in %v", field, verr.Fields)
		}
	}
	if len(repo.issues) != 0 {
		t.Fatalf("nothing should be stored on validation failure")
	}
	if len(objects.objects) != 0 {
		t.Fatalf("no image should be stored on validation failure")
	}
}

func TestSubmitBoundaryLengths(t *testing.T) {
	svc, _, _, _ := newTestIssueService()

	input := validSubmitInput()
	input.Title = strings.Repeat("a", 100)
	input.Description = strings.Repeat("b", 1000)
	if _, err := svc.Submit(context.Background(), 1, input, testImage()); err != nil {
		t.Fatalf("max lengths should pass: %v", err)
	}

	input.Title = strings.Repeat("a", 101)
	_, err := svc.Submit(context.Background(), 1, input, testImage())
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if _, ok := verr.Fields["title"]; !ok {
		t.Fatalf("expected title violation, got %v", verr.Fields)
	}
}

func TestUpdateStatusRejectsResolvedValue(t *testing.T) {
	svc, _, _, _ := newTestIssueService()

	issue, err := svc.Submit(context.Background(), 1, validSubmitInput(), testImage())
	if err != nil {
		t.Fatalf("submit: %v", err)
	}

	_, err = svc.UpdateStatus(context.Background(), 2, issue.ID, types.StatusResolved)
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestAnnotateNotifiesReporter(t *testing.T) {
	svc, repo, _, events := newTestIssueService()

	issue, err := svc.Submit(context.Background(), 3, validSubmitInput(), testImage())
	if err != nil {
		t.Fatalf("submit: %v", err)
	}

	updated, err := svc.Annotate(context.Background(), 9, issue.ID, "ordered a replacement lamp", true)
	if err != nil {
		t.Fatalf("annotate: %v", err)
	}
	if updated.Status != types.StatusInProgress {
		t.Fatalf("expected In Progress, got %q", updated.Status)
	}
	if updated.VolunteerNote != "ordered a replacement lamp" {
		t.Fatalf("unexpected note: %q", updated.VolunteerNote)
	}

	if len(repo.notifications) != 1 {
		t.Fatalf("expected 1 notification, got %d", len(repo.notifications))
	}
	notif := repo.notifications[0]
	if notif.UserID != 3 {
		t.Fatalf("notification should target the reporter, got user %d", notif.UserID)
	}
	if notif.Type != types.NotificationVolunteerUpdate {
		t.Fatalf("unexpected notification type: %q", notif.Type)
	}
	if events.published[len(events.published)-1] != ChannelIssueAnnotated {
		t.Fatalf("unexpected events: %v", events.published)
	}
}

func TestAnnotateWithoutKeepReturnsToPending(t *testing.T) {
	svc, _, _, _ := newTestIssueService()

	issue, err := svc.Submit(context.Background(), 3, validSubmitInput(), testImage())
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if _, err := svc.UpdateStatus(context.Background(), 9, issue.ID, types.StatusInProgress); err != nil {
		t.Fatalf("update status: %v", err)
	}

	updated, err := svc.Annotate(context.Background(), 9, issue.ID, "waiting on parts", false)
	if err != nil {
		t.Fatalf("annotate: %v", err)
	}
	if updated.Status != types.StatusPending {
		t.Fatalf("expected Pending, got %q", updated.Status)
	}
}

func TestResolveRequiresImage(t *testing.T) {
	svc, _, _, _ := newTestIssueService()

	issue, err := svc.Submit(context.Background(), 3, validSubmitInput(), testImage())
	if err != nil {
		t.Fatalf("submit: %v", err)
	}

	_, err = svc.Resolve(context.Background(), 9, issue.ID, ImageFile{})
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if _, ok := verr.Fields["image"]; !ok {
		t.Fatalf("expected image violation, got %v", verr.Fields)
	}
}

func TestResolveIsTerminal(t *testing.T) {
	svc, repo, _, _ := newTestIssueService()

	issue, err := svc.Submit(context.Background(), 3, validSubmitInput(), testImage())
	if err != nil {
		t.Fatalf("submit: %v", err)
	}

	resolved, err := svc.Resolve(context.Background(), 9, issue.ID, testImage())
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if resolved.Status != types.StatusResolved {
		t.Fatalf("expected Resolved, got %q", resolved.Status)
	}
	if resolved.ResolvedAt == nil {
		t.Fatalf("expected resolved_at to be set")
	}

	if _, err := svc.UpdateStatus(context.Background(), 9, issue.ID, types.StatusInProgress); !errors.Is(err, store.ErrConflict) {
		t.Fatalf("expected conflict on resolved issue, got %v", err)
	}
	if _, err := svc.Annotate(context.Background(), 9, issue.ID, "too late", true); !errors.Is(err, store.ErrConflict) {
		t.Fatalf("expected conflict on resolved issue, got %v", err)
	}
	if _, err := svc.Resolve(context.Background(), 9, issue.ID, testImage()); !errors.Is(err, store.ErrConflict) {
		t.Fatalf("expected conflict on double resolve, got %v", err)
	}

	if len(repo.notifications) != 1 {
		t.Fatalf("failed transitions must not notify, got %d notifications", len(repo.notifications))
	}
}

func TestResolveConflictDiscardsUploadedPhoto(t *testing.T) {
	svc, _, objects, _ := newTestIssueService()

	issue, err := svc.Submit(context.Background(), 7, validSubmitInput(), testImage())
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if _, err := svc.Resolve(context.Background(), 3, issue.ID, testImage()); err != nil {
		t.Fatalf("resolve: %v", err)
	}
	stored := len(objects.objects)

	if _, err := svc.Resolve(context.Background(), 4, issue.ID, testImage()); !errors.Is(err, store.ErrConflict) {
		t.Fatalf("second resolve must conflict, got %v", err)
	}
	if len(objects.objects) != stored {
		t.Fatalf("losing resolve must not leave an object behind: %d != %d", len(objects.objects), stored)
	}
}

func TestReopenRestoresPending(t *testing.T) {
	svc, repo, _, events := newTestIssueService()

	issue, err := svc.Submit(context.Background(), 3, validSubmitInput(), testImage())
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if _, err := svc.Resolve(context.Background(), 9, issue.ID, testImage()); err != nil {
		t.Fatalf("resolve: %v", err)
	}

	reopened, err := svc.Reopen(context.Background(), 1, issue.ID)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if reopened.Status != types.StatusPending {
		t.Fatalf("expected Pending, got %q", reopened.Status)
	}
	if reopened.ResolvedAt != nil || reopened.ResolvedImageURL != "" {
		t.Fatalf("reopen should clear resolution fields")
	}

	last := repo.notifications[len(repo.notifications)-1]
	if last.Type != types.NotificationReopened {
		t.Fatalf("unexpected notification type: %q", last.Type)
	}
	if events.published[len(events.published)-1] != ChannelIssueReopened {
		t.Fatalf("unexpected events: %v", events.published)
	}

	if err := repo.Reopen(context.Background(), issue.ID, types.Notification{}); !errors.Is(err, store.ErrConflict) {
		t.Fatalf("reopening a non-resolved issue should conflict, got %v", err)
	}
}
