package service

import (
	"context"
	"database/sql"
	"errors"
	"io"
	"mime"
	"path"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/noah-isme/mtb-case-api/internal/models"
	"github.com/noah-isme/mtb-case-api/internal/repository"
	"github.com/noah-isme/mtb-case-api/pkg/database"
	appErrors "github.com/noah-isme/mtb-case-api/pkg/errors"
	"github.com/noah-isme/mtb-case-api/pkg/sanitize"
	"github.com/noah-isme/mtb-case-api/pkg/storage"
)

type caseRepository interface {
	Create(ctx context.Context, c *models.Case, docs []models.NewDocument, questions []string, boardIDs []string) error
	ExistsByName(ctx context.Context, name string) (bool, error)
	FindByID(ctx context.Context, id string) (*models.Case, error)
	ListByOwner(ctx context.Context, ownerID string) ([]models.Case, error)
	Update(ctx context.Context, id string, upd models.CaseUpdate) (*models.Case, error)
	MarkProcessing(ctx context.Context, id string) error
	Delete(ctx context.Context, id string) error
	ListDocuments(ctx context.Context, caseID string) ([]models.Document, error)
	FindDocument(ctx context.Context, caseID, documentID string) (*models.Document, error)
	ListQuestions(ctx context.Context, caseID string) ([]models.Question, error)
	SharedWithUser(ctx context.Context, caseID, userID string) (bool, error)
}

type caseOpinionRepository interface {
	ListByCase(ctx context.Context, caseID string) ([]models.OpinionView, error)
}

type boardMembershipReader interface {
	FindByID(ctx context.Context, id string) (*models.Board, error)
	IsMember(ctx context.Context, boardID, userID string) (bool, error)
}

type linkSigner interface {
	Generate(documentID, key string) (string, time.Time, error)
	Parse(token string) (storage.DownloadGrant, error)
}

// CreateCaseInput is the full case graph submitted by the creation wizard.
type CreateCaseInput struct {
	Details           models.CaseDetails
	Documents         []models.NewDocument
	Questions         []string
	ShareWithBoardIDs []string
}

// DocumentDownload is an opened stored document.
type DocumentDownload struct {
	Name        string
	ContentType string
	Body        io.ReadCloser
}

// CaseService orchestrates case persistence and access control.
type CaseService struct {
	repo       caseRepository
	opinions   caseOpinionRepository
	boards     boardMembershipReader
	blobs      storage.BlobStore
	signer     linkSigner
	dispatcher caseDispatcher
	metrics    *MetricsService
	validator  *validator.Validate
	logger     *zap.Logger
	linkPrefix string
}

// CaseServiceDeps groups the collaborators of CaseService.
type CaseServiceDeps struct {
	Cases      caseRepository
	Opinions   caseOpinionRepository
	Boards     boardMembershipReader
	Blobs      storage.BlobStore
	Signer     linkSigner
	Dispatcher caseDispatcher
	Metrics    *MetricsService
	Validator  *validator.Validate
	Logger     *zap.Logger
	// LinkPrefix is prepended to download tokens, e.g. "/api/v1/files/".
	LinkPrefix string
}

// NewCaseService constructs a CaseService.
func NewCaseService(deps CaseServiceDeps) *CaseService {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Validator == nil {
		deps.Validator = validator.New()
	}
	if deps.LinkPrefix == "" {
		deps.LinkPrefix = "/files/"
	}
	return &CaseService{
		repo:       deps.Cases,
		opinions:   deps.Opinions,
		boards:     deps.Boards,
		blobs:      deps.Blobs,
		signer:     deps.Signer,
		dispatcher: deps.Dispatcher,
		metrics:    deps.Metrics,
		validator:  deps.Validator,
		logger:     deps.Logger,
		linkPrefix: deps.LinkPrefix,
	}
}

// ListOwnedCases returns the caller's cases, newest first.
func (s *CaseService) ListOwnedCases(ctx context.Context, userID string) ([]models.CaseListItem, error) {
	if userID == "" {
		return nil, appErrors.ErrUnauthorized
	}
	cases, err := s.repo.ListByOwner(ctx, userID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list cases")
	}
	return toListItems(cases), nil
}

// CheckCaseName reports whether name is still free.
func (s *CaseService) CheckCaseName(ctx context.Context, name string) (bool, error) {
	name = sanitize.Line(name)
	if name == "" {
		return false, appErrors.Clone(appErrors.ErrValidation, "case name is required")
	}
	exists, err := s.repo.ExistsByName(ctx, name)
	if err != nil {
		return false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check case name")
	}
	return !exists, nil
}

// CreateCase persists the case with its documents, questions and board
// shares atomically. Summarisation happens later.
func (s *CaseService) CreateCase(ctx context.Context, ownerID string, input CreateCaseInput) (*models.CaseCreated, error) {
	if ownerID == "" {
		return nil, appErrors.ErrUnauthorized
	}
	details := cleanDetails(input.Details)
	if err := s.validator.Struct(details); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid patient details")
	}

	boardIDs := dedupe(input.ShareWithBoardIDs)
	for _, boardID := range boardIDs {
		if err := s.requireBoardAccess(ctx, boardID, ownerID); err != nil {
			return nil, err
		}
	}

	available, err := s.CheckCaseName(ctx, details.CaseName)
	if err != nil {
		return nil, err
	}
	if !available {
		return nil, appErrors.ErrCaseNameTaken
	}

	c := &models.Case{
		OwnerID:     ownerID,
		CaseName:    details.CaseName,
		PatientName: details.PatientName,
		Age:         *details.Age,
		Sex:         details.Sex,
		CancerType:  details.CancerType,
		Processing:  true,
	}
	if err := s.repo.Create(ctx, c, input.Documents, sanitize.All(input.Questions), boardIDs); err != nil {
		if database.IsUniqueViolation(err, repository.CaseNameConstraint) {
			return nil, appErrors.ErrCaseNameTaken
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create case")
	}

	s.metrics.IncCasesCreated()
	s.logger.Info("case created", zap.String("case_id", c.ID), zap.String("owner_id", ownerID), zap.Int("documents", len(input.Documents)), zap.Int("boards", len(boardIDs)))
	return &models.CaseCreated{CaseID: c.ID, CreatedAt: c.CreatedAt}, nil
}

// UpdateCase applies the owner editable fields.
func (s *CaseService) UpdateCase(ctx context.Context, userID, caseID string, upd models.CaseUpdate) (*models.CaseListItem, error) {
	c, err := s.ownedCase(ctx, userID, caseID, false)
	if err != nil {
		return nil, err
	}
	if upd.Empty() {
		item := toListItem(*c)
		return &item, nil
	}
	upd.Summary = sanitize.Ptr(upd.Summary)
	upd.TreatmentPlan = sanitize.Ptr(upd.TreatmentPlan)
	upd.FollowUp = sanitize.Ptr(upd.FollowUp)

	updated, err := s.repo.Update(ctx, caseID, upd)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "case not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update case")
	}
	item := toListItem(*updated)
	return &item, nil
}

// ApplyProcessingResult stores the summary produced by the processing service.
func (s *CaseService) ApplyProcessingResult(ctx context.Context, caseID, summary string) (*models.CaseListItem, error) {
	summary = strings.TrimSpace(summary)
	if summary == "" {
		summary = models.CaseFailedSummary
	}
	updated, err := s.repo.Update(ctx, caseID, models.CaseUpdate{Summary: &summary})
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "case not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store case summary")
	}
	s.logger.Info("case summary received", zap.String("case_id", caseID), zap.String("status", string(updated.Status())))
	item := toListItem(*updated)
	return &item, nil
}

// DeleteCase removes an owned case and its dependents. Unknown ids are
// reported as forbidden so existence is not leaked.
func (s *CaseService) DeleteCase(ctx context.Context, userID, caseID string) error {
	if _, err := s.ownedCase(ctx, userID, caseID, true); err != nil {
		return err
	}
	docs, err := s.repo.ListDocuments(ctx, caseID)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load case documents")
	}
	if err := s.repo.Delete(ctx, caseID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrForbidden, "you can only delete your own cases")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete case")
	}

	for _, doc := range docs {
		if doc.StoragePath == nil {
			continue
		}
		if err := s.blobs.Delete(ctx, *doc.StoragePath); err != nil && !errors.Is(err, storage.ErrObjectNotFound) {
			s.logger.Warn("failed to delete case document blob", zap.String("case_id", caseID), zap.String("key", *doc.StoragePath), zap.Error(err))
		}
	}
	return nil
}

// GetCaseDetail aggregates a readable case. A missing case yields nil without error.
func (s *CaseService) GetCaseDetail(ctx context.Context, userID, caseID string) (*models.CaseDetail, error) {
	c, err := s.readableCase(ctx, userID, caseID)
	if err != nil || c == nil {
		return nil, err
	}

	detail := &models.CaseDetail{Case: *c, Status: c.Status(), IsOwner: c.OwnerID == userID}
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		docs, err := s.repo.ListDocuments(gctx, caseID)
		detail.Documents = docs
		return err
	})
	g.Go(func() error {
		questions, err := s.repo.ListQuestions(gctx, caseID)
		detail.Questions = questions
		return err
	})
	g.Go(func() error {
		opinions, err := s.opinions.ListByCase(gctx, caseID)
		detail.Opinions = opinions
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load case detail")
	}
	return detail, nil
}

// ReprocessCase resets an owned case to Processing and dispatches its stored
// documents again. Cases that already carry a summary are left alone.
func (s *CaseService) ReprocessCase(ctx context.Context, userID, caseID string) error {
	c, err := s.ownedCase(ctx, userID, caseID, false)
	if err != nil {
		return err
	}
	if c.Status() == models.CaseStatusReady {
		return appErrors.ErrCaseSummarized
	}
	docs, err := s.repo.ListDocuments(ctx, caseID)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load case documents")
	}

	job := DispatchJob{CaseID: caseID, UserID: userID}
	notes := make([]string, 0)
	for _, doc := range docs {
		if doc.StoragePath == nil {
			continue
		}
		switch doc.Type {
		case models.DocumentTypeClinical:
			contentType := ""
			if doc.MimeType != nil {
				contentType = *doc.MimeType
			}
			job.Files = append(job.Files, DispatchFile{Name: doc.Name, ContentType: contentType, Key: *doc.StoragePath})
		case models.DocumentTypeText:
			text, err := s.readText(ctx, *doc.StoragePath)
			if err != nil {
				s.logger.Warn("skipping unreadable note", zap.String("case_id", caseID), zap.String("document_id", doc.ID), zap.Error(err))
				continue
			}
			notes = append(notes, text)
		}
	}
	job.AdditionalData = strings.TrimSpace(strings.Join(notes, "\n\n"))

	if err := s.repo.MarkProcessing(ctx, caseID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.ErrCaseSummarized
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to reset case status")
	}
	if err := s.dispatcher.Dispatch(ctx, job); err != nil {
		return appErrors.Wrap(err, appErrors.ErrUnavailable.Code, appErrors.ErrUnavailable.Status, "processing is busy, try again shortly")
	}
	return nil
}

// DocumentLink issues a short lived download link for a readable case document.
func (s *CaseService) DocumentLink(ctx context.Context, userID, caseID, documentID string) (*models.DocumentLink, error) {
	c, err := s.readableCase(ctx, userID, caseID)
	if err != nil {
		return nil, err
	}
	if c == nil {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "case not found")
	}
	doc, err := s.repo.FindDocument(ctx, caseID, documentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "document not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load document")
	}
	if doc.StoragePath == nil {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "document has no stored file")
	}
	token, expiresAt, err := s.signer.Generate(doc.ID, *doc.StoragePath)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to sign download link")
	}
	return &models.DocumentLink{URL: s.linkPrefix + token, ExpiresAt: expiresAt}, nil
}

// OpenDocument resolves a signed download token into the stored blob.
func (s *CaseService) OpenDocument(ctx context.Context, token string) (*DocumentDownload, error) {
	grant, err := s.signer.Parse(token)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrForbidden.Code, appErrors.ErrForbidden.Status, "download link is invalid or expired")
	}
	body, err := s.blobs.Get(ctx, grant.Key)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotFound) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "document not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to open document")
	}
	name := path.Base(grant.Key)
	contentType := mime.TypeByExtension(path.Ext(name))
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	return &DocumentDownload{Name: name, ContentType: contentType, Body: body}, nil
}

// ownedCase loads a case the caller owns. With hideMissing, a missing case
// reads as forbidden instead of not found.
func (s *CaseService) ownedCase(ctx context.Context, userID, caseID string, hideMissing bool) (*models.Case, error) {
	if userID == "" {
		return nil, appErrors.ErrUnauthorized
	}
	c, err := s.repo.FindByID(ctx, caseID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			if hideMissing {
				return nil, appErrors.Clone(appErrors.ErrForbidden, "you can only modify your own cases")
			}
			return nil, appErrors.Clone(appErrors.ErrNotFound, "case not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load case")
	}
	if c.OwnerID != userID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "you can only modify your own cases")
	}
	return c, nil
}

// readableCase loads a case the caller owns or that is shared into one of
// their boards. A missing case returns nil, nil.
func (s *CaseService) readableCase(ctx context.Context, userID, caseID string) (*models.Case, error) {
	if userID == "" {
		return nil, appErrors.ErrUnauthorized
	}
	c, err := s.repo.FindByID(ctx, caseID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load case")
	}
	if c.OwnerID == userID {
		return c, nil
	}
	shared, err := s.repo.SharedWithUser(ctx, caseID, userID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check case access")
	}
	if !shared {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "you do not have access to this case")
	}
	return c, nil
}

func (s *CaseService) requireBoardAccess(ctx context.Context, boardID, userID string) error {
	board, err := s.boards.FindByID(ctx, boardID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "board not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load board")
	}
	if board.OwnerID == userID {
		return nil
	}
	member, err := s.boards.IsMember(ctx, boardID, userID)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check board membership")
	}
	if !member {
		return appErrors.Clone(appErrors.ErrForbidden, "you are not a member of this board")
	}
	return nil
}

func (s *CaseService) readText(ctx context.Context, key string) (string, error) {
	body, err := s.blobs.Get(ctx, key)
	if err != nil {
		return "", err
	}
	defer body.Close() //nolint:errcheck
	data, err := io.ReadAll(body)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func toListItem(c models.Case) models.CaseListItem {
	return models.CaseListItem{Case: c, Status: c.Status()}
}

func toListItems(cases []models.Case) []models.CaseListItem {
	items := make([]models.CaseListItem, 0, len(cases))
	for _, c := range cases {
		items = append(items, toListItem(c))
	}
	return items
}

func dedupe(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
