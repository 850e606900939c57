package services

import (
	"context"
	"strings"

	"github.com/areassist/apiserver/types"
)

// FeedbackRepository persists anonymous platform feedback.
type FeedbackRepository interface {
	Create(ctx context.Context, fb types.Feedback) (types.Feedback, error)
	List(ctx context.Context) ([]types.Feedback, error)
}

// FeedbackService records feedback about the platform itself, separate from
// issue reports.
type FeedbackService struct {
	repo FeedbackRepository
}

func NewFeedbackService(repo FeedbackRepository) *FeedbackService {
	return &FeedbackService{repo: repo}
}

func (s *FeedbackService) Submit(ctx context.Context, name, message string) (types.Feedback, error) {
	name = strings.TrimSpace(name)
	message = strings.TrimSpace(message)
	verr := newValidationError()
	if name == "" {
		verr.Fields["name"] = "name is required"
	}
	if message == "" {
		verr.Fields["message"] = "message is required"
	}
	if len(verr.Fields) > 0 {
		return types.Feedback{}, verr
	}
	return s.repo.Create(ctx, types.Feedback{Name: name, Message: message})
}

func (s *FeedbackService) List(ctx context.Context) ([]types.Feedback, error) {
	return s.repo.List(ctx)
}
