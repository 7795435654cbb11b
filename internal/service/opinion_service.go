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

type opinionRepository interface {
	Upsert(ctx context.Context, caseID, authorID, content string) (*models.Opinion, error)
	FindByID(ctx context.Context, id string) (*models.Opinion, error)
	UpdateContent(ctx context.Context, id, content string) (*models.Opinion, error)
}

type opinionCaseReader interface {
	FindByID(ctx context.Context, id string) (*models.Case, error)
	SharedWithUser(ctx context.Context, caseID, userID string) (bool, error)
}

// OpinionRequest carries a reviewer's assessment.
type OpinionRequest struct {
	Content string `json:"content" validate:"required,max=10000"`
}

// OpinionService records reviewer opinions on shared cases.
type OpinionService struct {
	repo      opinionRepository
	cases     opinionCaseReader
	validator *validator.Validate
	logger    *zap.Logger
}

// NewOpinionService constructs an OpinionService.
func NewOpinionService(repo opinionRepository, cases opinionCaseReader, validate *validator.Validate, logger *zap.Logger) *OpinionService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &OpinionService{repo: repo, cases: cases, validator: validate, logger: logger}
}

// Submit writes the caller's opinion on a case, replacing an earlier one.
func (s *OpinionService) Submit(ctx context.Context, userID, caseID string, req OpinionRequest) (*models.Opinion, error) {
	if userID == "" {
		return nil, appErrors.ErrUnauthorized
	}
	req.Content = sanitize.Text(req.Content)
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid opinion payload")
	}
	if sanitize.Blank(req.Content) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "opinion content is required")
	}

	c, err := s.cases.FindByID(ctx, caseID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "case not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load case")
	}
	if c.OwnerID == userID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "you cannot give an opinion on your own case")
	}
	shared, err := s.cases.SharedWithUser(ctx, caseID, userID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check case access")
	}
	if !shared {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "you do not have access to this case")
	}

	opinion, err := s.repo.Upsert(ctx, caseID, userID, req.Content)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to save opinion")
	}
	s.logger.Info("opinion submitted", zap.String("case_id", caseID), zap.String("author_id", userID))
	return opinion, nil
}

// Update rewrites an opinion. Only its author may change it.
func (s *OpinionService) Update(ctx context.Context, userID, opinionID string, req OpinionRequest) (*models.Opinion, error) {
	if userID == "" {
		return nil, appErrors.ErrUnauthorized
	}
	req.Content = sanitize.Text(req.Content)
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid opinion payload")
	}
	if sanitize.Blank(req.Content) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "opinion content is required")
	}
	existing, err := s.repo.FindByID(ctx, opinionID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "opinion not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load opinion")
	}
	if existing.AuthorID != userID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "you can only edit your own opinions")
	}
	updated, err := s.repo.UpdateContent(ctx, opinionID, req.Content)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "opinion not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update opinion")
	}
	return updated, nil
}
