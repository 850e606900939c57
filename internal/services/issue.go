package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log"
	"path"
	"strings"
	"time"

	"github.com/areassist/apiserver/internal/storage"
	"github.com/areassist/apiserver/internal/store"
	"github.com/areassist/apiserver/types"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

// IssueRepository defines persistence operations for issues.
type IssueRepository interface {
	Create(ctx context.Context, issue types.Issue) (types.Issue, error)
	Get(ctx context.Context, id int) (types.Issue, error)
	List(ctx context.Context, filter store.IssueFilter) ([]types.Issue, int, error)
	ListByReporter(ctx context.Context, reporterID int) ([]types.Issue, error)
	ListOpen(ctx context.Context) ([]types.Issue, error)
	SetStatus(ctx context.Context, id int, to types.IssueStatus) error
	Annotate(ctx context.Context, id int, note string, status types.IssueStatus, notif types.Notification) error
	Resolve(ctx context.Context, id int, resolvedImageURL string, notif types.Notification) (time.Time, error)
	Reopen(ctx context.Context, id int, notif types.Notification) error
}

// SubmitInput is the validated payload of a new issue report.
type SubmitInput struct {
	Title       string `validate:"required,min=5,max=100"`
	Description string `validate:"required,min=20,max=1000"`
	Category    string `validate:"required"`
	Location    string `validate:"required"`

	Latitude  *float64
	Longitude *float64

	// Opaque output of the external image-authenticity pipeline.
	VerificationConfidence *int
	VerificationReport     string
}

// ImageFile is an uploaded photo.
type ImageFile struct {
	Filename    string
	ContentType string
	Data        []byte
}

// IssueService owns every valid lifecycle transition for an issue and the
// side effects each one triggers.
type IssueService struct {
	repo     IssueRepository
	images   *storage.Storage
	events   Publisher
	validate *validator.Validate
}

func NewIssueService(repo IssueRepository, images *storage.Storage, events Publisher) *IssueService {
	return &IssueService{
		repo:     repo,
		images:   images,
		events:   events,
		validate: validator.New(),
	}
}

// Submit creates a new issue in Pending. Every violated precondition is
// reported at once; nothing is stored on failure. The image is uploaded
// before the row insert so a failed insert never leaves a row without a
// retrievable photo.
func (s *IssueService) Submit(ctx context.Context, reporterID int, input SubmitInput, image ImageFile) (types.Issue, error) {
	verr := s.validateSubmit(input, image)
	if verr != nil {
		return types.Issue{}, verr
	}

	imageURL, err := s.storeImage(ctx, image)
	if err != nil {
		return types.Issue{}, fmt.Errorf("store image: %w", err)
	}

	issue, err := s.repo.Create(ctx, types.Issue{
		Title:                  strings.TrimSpace(input.Title),
		Description:            strings.TrimSpace(input.Description),
		Category:               input.Category,
		Location:               input.Location,
		ImageURL:               imageURL,
		ReporterID:             reporterID,
		Latitude:               input.Latitude,
		Longitude:              input.Longitude,
		Status:                 types.StatusPending,
		VerificationConfidence: input.VerificationConfidence,
		VerificationReport:     input.VerificationReport,
	})
	if err != nil {
		s.discardImage(ctx, imageURL)
		return types.Issue{}, err
	}

	publishEvent(ctx, s.events, ChannelIssueCreated, IssueEvent{
		IssueID:    issue.ID,
		ReporterID: issue.ReporterID,
		Title:      issue.Title,
		Status:     string(issue.Status),
	})
	return issue, nil
}

// UpdateStatus moves a non-resolved issue between Pending and In Progress.
// Resolution must go through Resolve, which requires a photo.
func (s *IssueService) UpdateStatus(ctx context.Context, volunteerID, issueID int, to types.IssueStatus) (types.Issue, error) {
	switch to {
	case types.StatusPending, types.StatusInProgress:
	default:
		verr := newValidationError()
		verr.Fields["status"] = "status must be Pending or In Progress; use the resolve endpoint to close an issue"
		return types.Issue{}, verr
	}

	if err := s.repo.SetStatus(ctx, issueID, to); err != nil {
		return types.Issue{}, err
	}

	issue, err := s.repo.Get(ctx, issueID)
	if err != nil {
		return types.Issue{}, err
	}

	publishEvent(ctx, s.events, ChannelIssueProgress, IssueEvent{
		IssueID:     issue.ID,
		ReporterID:  issue.ReporterID,
		VolunteerID: volunteerID,
		Title:       issue.Title,
		Status:      string(issue.Status),
	})
	return issue, nil
}

// Annotate stores a volunteer note, moves the issue to In Progress or back to
// Pending, and notifies the reporter in the same transaction. A resolved
// issue cannot be annotated.
func (s *IssueService) Annotate(ctx context.Context, volunteerID, issueID int, note string, keepInProgress bool) (types.Issue, error) {
	note = strings.TrimSpace(note)
	if note == "" {
		verr := newValidationError()
		verr.Fields["note"] = "note is required"
		return types.Issue{}, verr
	}

	issue, err := s.repo.Get(ctx, issueID)
	if err != nil {
		return types.Issue{}, err
	}

	status := types.StatusPending
	if keepInProgress {
		status = types.StatusInProgress
	}

	notif := types.Notification{
		UserID:      issue.ReporterID,
		IssueID:     issue.ID,
		VolunteerID: &volunteerID,
		Title:       fmt.Sprintf("Update on %q", issue.Title),
		Message:     note,
		Type:        types.NotificationVolunteerUpdate,
	}
	if err := s.repo.Annotate(ctx, issueID, note, status, notif); err != nil {
		return types.Issue{}, err
	}

	issue.VolunteerNote = note
	issue.Status = status

	publishEvent(ctx, s.events, ChannelIssueAnnotated, IssueEvent{
		IssueID:     issue.ID,
		ReporterID:  issue.ReporterID,
		VolunteerID: volunteerID,
		Title:       issue.Title,
		Status:      string(issue.Status),
		Note:        note,
	})
	return issue, nil
}

// Resolve closes an issue. The resolution photo is mandatory; the status
// write, resolved_at stamp, and reporter notification commit together.
func (s *IssueService) Resolve(ctx context.Context, volunteerID, issueID int, image ImageFile) (types.Issue, error) {
	if len(image.Data) == 0 {
		verr := newValidationError()
		verr.Fields["image"] = "a photo of the resolved issue is required"
		return types.Issue{}, verr
	}

	issue, err := s.repo.Get(ctx, issueID)
	if err != nil {
		return types.Issue{}, err
	}

	resolvedURL, err := s.storeImage(ctx, image)
	if err != nil {
		return types.Issue{}, fmt.Errorf("store image: %w", err)
	}

	notif := types.Notification{
		UserID:      issue.ReporterID,
		IssueID:     issue.ID,
		VolunteerID: &volunteerID,
		Title:       fmt.Sprintf("%q has been resolved", issue.Title),
		Message:     "A volunteer resolved your report and attached a photo of the result.",
		Type:        types.NotificationResolved,
	}
	resolvedAt, err := s.repo.Resolve(ctx, issueID, resolvedURL, notif)
	if err != nil {
		s.discardImage(ctx, resolvedURL)
		return types.Issue{}, err
	}

	issue.Status = types.StatusResolved
	issue.ResolvedImageURL = resolvedURL
	issue.ResolvedAt = &resolvedAt

	publishEvent(ctx, s.events, ChannelIssueResolved, IssueEvent{
		IssueID:     issue.ID,
		ReporterID:  issue.ReporterID,
		VolunteerID: volunteerID,
		Title:       issue.Title,
		Status:      string(issue.Status),
	})
	return issue, nil
}

// Reopen returns a resolved issue to Pending. Reserved for admins; the
// reporter is notified so "reopened" is distinguishable from "never
// resolved".
func (s *IssueService) Reopen(ctx context.Context, adminID, issueID int) (types.Issue, error) {
	issue, err := s.repo.Get(ctx, issueID)
	if err != nil {
		return types.Issue{}, err
	}

	notif := types.Notification{
		UserID:      issue.ReporterID,
		IssueID:     issue.ID,
		VolunteerID: &adminID,
		Title:       fmt.Sprintf("%q was reopened", issue.Title),
		Message:     "An administrator reopened your report for further work.",
		Type:        types.NotificationReopened,
	}
	if err := s.repo.Reopen(ctx, issueID, notif); err != nil {
		return types.Issue{}, err
	}

	issue.Status = types.StatusPending
	issue.ResolvedImageURL = ""
	issue.ResolvedAt = nil

	publishEvent(ctx, s.events, ChannelIssueReopened, IssueEvent{
		IssueID:     issue.ID,
		ReporterID:  issue.ReporterID,
		VolunteerID: adminID,
		Title:       issue.Title,
		Status:      string(issue.Status),
	})
	return issue, nil
}

func (s *IssueService) Get(ctx context.Context, id int) (types.Issue, error) {
	return s.repo.Get(ctx, id)
}

func (s *IssueService) List(ctx context.Context, filter store.IssueFilter) ([]types.Issue, int, error) {
	if filter.Limit <= 0 {
		filter.Limit = 10
	}
	if filter.Limit > 100 {
		filter.Limit = 100
	}
	return s.repo.List(ctx, filter)
}

func (s *IssueService) ListByReporter(ctx context.Context, reporterID int) ([]types.Issue, error) {
	return s.repo.ListByReporter(ctx, reporterID)
}

func (s *IssueService) ListOpen(ctx context.Context) ([]types.Issue, error) {
	return s.repo.ListOpen(ctx)
}

func (s *IssueService) validateSubmit(input SubmitInput, image ImageFile) *ValidationError {
	verr := newValidationError()

	input.Title = strings.TrimSpace(input.Title)
	input.Description = strings.TrimSpace(input.Description)
	if err := s.validate.Struct(input); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) {
			for _, fe := range fieldErrs {
				verr.Fields[fieldName(fe.Field())] = submitMessage(fe)
			}
		} else {
			verr.Fields["input"] = "invalid input"
		}
	}
	if len(image.Data) == 0 {
		verr.Fields["image"] = "an image file is required"
	}

	if len(verr.Fields) == 0 {
		return nil
	}
	return verr
}

func (s *IssueService) storeImage(ctx context.Context, image ImageFile) (string, error) {
	ext := strings.ToLower(path.Ext(image.Filename))
	key := uuid.NewString() + ext
	contentType := image.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	if err := s.images.Put(ctx, key, bytes.NewReader(image.Data), int64(len(image.Data)), contentType); err != nil {
		return "", err
	}
	return "/uploads/" + key, nil
}

// discardImage removes an uploaded photo whose issue write did not commit,
// so a lost status race never orphans an object in storage.
func (s *IssueService) discardImage(ctx context.Context, imageURL string) {
	key := path.Base(imageURL)
	if err := s.images.Delete(ctx, key); err != nil {
		log.Printf("issues: discard orphaned image %s: %v", key, err)
	}
}

func fieldName(structField string) string {
	switch structField {
	case "Title":
		return "title"
	case "Description":
		return "description"
	case "Category":
		return "category"
	case "Location":
		return "location"
	default:
		return strings.ToLower(structField)
	}
}

func submitMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fieldName(fe.Field()) + " is required"
	case "min":
		return fmt.Sprintf("%s must be at least %s characters", fieldName(fe.Field()), fe.Param())
	case "max":
		return fmt.Sprintf("%s must be at most %s characters", fieldName(fe.Field()), fe.Param())
	default:
		return fieldName(fe.Field()) + " is invalid"
	}
}
