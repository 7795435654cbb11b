package service

import (
	"context"
	"database/sql"
	"errors"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/mtb-case-api/internal/models"
	appErrors "github.com/noah-isme/mtb-case-api/pkg/errors"
	"github.com/noah-isme/mtb-case-api/pkg/sanitize"
)

type profileRepository interface {
	FindByUserID(ctx context.Context, userID string) (*models.Profile, error)
	Upsert(ctx context.Context, profile *models.Profile) error
}

type feedbackRepository interface {
	Create(ctx context.Context, feedback *models.Feedback) error
}

// UpdateProfileRequest lists the editable profile fields. Omitted fields keep
// their stored value.
type UpdateProfileRequest struct {
	FullName     *string `json:"fullName" validate:"omitempty,max=200"`
	Profession   *string `json:"profession" validate:"omitempty,max=200"`
	HospitalName *string `json:"hospitalName" validate:"omitempty,max=200"`
	PhoneNumber  *string `json:"phoneNumber" validate:"omitempty,max=50"`
}

// FeedbackRequest is free-text product feedback.
type FeedbackRequest struct {
	Content string `json:"content" validate:"required,max=5000"`
}

// ProfileService manages clinician profiles and product feedback.
type ProfileService struct {
	profiles  profileRepository
	feedback  feedbackRepository
	validator *validator.Validate
	logger    *zap.Logger
}

// NewProfileService constructs a ProfileService.
func NewProfileService(profiles profileRepository, feedback feedbackRepository, validate *validator.Validate, logger *zap.Logger) *ProfileService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ProfileService{profiles: profiles, feedback: feedback, validator: validate, logger: logger}
}

// Get returns the caller's profile, or an empty one when none was saved.
func (s *ProfileService) Get(ctx context.Context, userID string) (*models.Profile, error) {
	if userID == "" {
		return nil, appErrors.ErrUnauthorized
	}
	profile, err := s.profiles.FindByUserID(ctx, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return &models.Profile{UserID: userID}, nil
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load profile")
	}
	return profile, nil
}

// Update merges req into the stored profile.
func (s *ProfileService) Update(ctx context.Context, userID string, req UpdateProfileRequest) (*models.Profile, error) {
	req.FullName = sanitize.LinePtr(req.FullName)
	req.Profession = sanitize.LinePtr(req.Profession)
	req.HospitalName = sanitize.LinePtr(req.HospitalName)
	req.PhoneNumber = sanitize.LinePtr(req.PhoneNumber)
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid profile payload")
	}

	profile, err := s.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	if req.FullName != nil {
		profile.FullName = nonEmpty(req.FullName)
	}
	if req.Profession != nil {
		profile.Profession = nonEmpty(req.Profession)
	}
	if req.HospitalName != nil {
		profile.HospitalName = nonEmpty(req.HospitalName)
	}
	if req.PhoneNumber != nil {
		profile.PhoneNumber = nonEmpty(req.PhoneNumber)
	}
	if err := s.profiles.Upsert(ctx, profile); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to save profile")
	}
	return profile, nil
}

// SubmitFeedback stores a feedback entry from the caller.
func (s *ProfileService) SubmitFeedback(ctx context.Context, userID string, req FeedbackRequest) (*models.Feedback, error) {
	if userID == "" {
		return nil, appErrors.ErrUnauthorized
	}
	req.Content = sanitize.Text(req.Content)
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid feedback payload")
	}
	if sanitize.Blank(req.Content) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "feedback content is required")
	}
	entry := &models.Feedback{UserID: userID, Content: req.Content}
	if err := s.feedback.Create(ctx, entry); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to save feedback")
	}
	s.logger.Info("feedback received", zap.String("feedback_id", entry.ID), zap.String("user_id", userID))
	return entry, nil
}

// nonEmpty maps an explicitly cleared field to nil.
func nonEmpty(s *string) *string {
	if s == nil || *s == "" {
		return nil
	}
	return s
}
