package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"strings"
	"time"
	"unicode"

	"github.com/gabriel-vasile/mimetype"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/mtb-case-api/internal/models"
	appErrors "github.com/noah-isme/mtb-case-api/pkg/errors"
	"github.com/noah-isme/mtb-case-api/pkg/sanitize"
	"github.com/noah-isme/mtb-case-api/pkg/storage"
)

const (
	defaultNoteTitle = "text_document"
	noteContentType  = "text/plain; charset=utf-8"
)

// DraftStore persists one draft per user.
type DraftStore interface {
	Get(ctx context.Context, userID string) (*models.Draft, error)
	Update(ctx context.Context, userID string, fn func(*models.Draft) error) (*models.Draft, error)
	Delete(ctx context.Context, userID string) error
}

type draftCaseOrchestrator interface {
	CheckCaseName(ctx context.Context, name string) (bool, error)
	CreateCase(ctx context.Context, ownerID string, input CreateCaseInput) (*models.CaseCreated, error)
}

type caseCounter interface {
	CountCreatedBetween(ctx context.Context, from, to time.Time) (int, error)
}

type caseDispatcher interface {
	Dispatch(ctx context.Context, job DispatchJob) error
}

// DraftConfig bounds what may be staged in a draft.
type DraftConfig struct {
	MaxFileSize  int64
	AllowedMIMEs []string
	Location     *time.Location
}

// UploadedFile is a clinical file received from the client.
type UploadedFile struct {
	Name        string
	Size        int64
	ContentType string
	Content     io.Reader
}

// SubmitDraftRequest carries the final wizard step.
type SubmitDraftRequest struct {
	Questions         []string `json:"questions" validate:"dive,max=2000"`
	ShareWithBoardIDs []string `json:"shareWithBoardIds" validate:"dive,required"`
}

// DraftService assembles a case across the creation wizard and submits it.
type DraftService struct {
	store      DraftStore
	blobs      storage.BlobStore
	cases      draftCaseOrchestrator
	counter    caseCounter
	dispatcher caseDispatcher
	validator  *validator.Validate
	logger     *zap.Logger
	config     DraftConfig
	now        func() time.Time
}

// NewDraftService constructs a DraftService.
func NewDraftService(store DraftStore, blobs storage.BlobStore, cases draftCaseOrchestrator, counter caseCounter, dispatcher caseDispatcher, validate *validator.Validate, logger *zap.Logger, config DraftConfig) *DraftService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	if config.Location == nil {
		config.Location = time.UTC
	}
	return &DraftService{
		store:      store,
		blobs:      blobs,
		cases:      cases,
		counter:    counter,
		dispatcher: dispatcher,
		validator:  validate,
		logger:     logger,
		config:     config,
		now:        time.Now,
	}
}

// Subscribe discards a user's draft when their session ends.
func (s *DraftService) Subscribe(events *SessionEvents) (unsubscribe func()) {
	return events.Subscribe(func(ctx context.Context, ev SessionEvent) {
		if ev.Type != SessionSignedOut && ev.Type != SessionPasswordReset {
			return
		}
		if err := s.Cancel(context.WithoutCancel(ctx), ev.UserID); err != nil {
			s.logger.Warn("failed to discard draft after session change", zap.String("user_id", ev.UserID), zap.String("event", string(ev.Type)), zap.Error(err))
		}
	})
}

// Get returns the user's draft, or an empty one.
func (s *DraftService) Get(ctx context.Context, userID string) (*models.Draft, error) {
	if userID == "" {
		return nil, appErrors.ErrUnauthorized
	}
	draft, err := s.store.Get(ctx, userID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load draft")
	}
	if draft == nil {
		draft = &models.Draft{UserID: userID, PendingFiles: []models.PendingFile{}}
	}
	return draft, nil
}

// SetPatientDetails replaces the step-one snapshot after checking the case
// name is still free.
func (s *DraftService) SetPatientDetails(ctx context.Context, userID string, details models.CaseDetails) (*models.Draft, error) {
	if userID == "" {
		return nil, appErrors.ErrUnauthorized
	}
	details = cleanDetails(details)
	if err := s.validator.Struct(details); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid patient details")
	}

	available, err := s.cases.CheckCaseName(ctx, details.CaseName)
	if err != nil {
		return nil, err
	}
	if !available {
		return nil, appErrors.ErrCaseNameTaken
	}

	draft, err := s.store.Update(ctx, userID, func(d *models.Draft) error {
		d.PatientDetails = &details
		return nil
	})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to save draft")
	}
	return draft, nil
}

// AddPendingFiles stages clinical uploads one by one. Names colliding
// case-insensitively with staged files or earlier files of the batch are
// reported in DuplicateNames; oversized, unreadable or disallowed files are
// reported in Rejected. The rest are accepted. Only a storage failure fails
// the whole batch.
func (s *DraftService) AddPendingFiles(ctx context.Context, userID string, files []UploadedFile) (*models.AddFilesResult, error) {
	if userID == "" {
		return nil, appErrors.ErrUnauthorized
	}
	if len(files) == 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "no files provided")
	}

	current, err := s.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	seen := stagedNames(current)

	result := newAddFilesResult()
	staged := make([]models.PendingFile, 0, len(files))
	for _, f := range files {
		name := storage.SafeName(f.Name)
		if _, dup := seen[strings.ToLower(name)]; dup {
			result.DuplicateNames = append(result.DuplicateNames, name)
			continue
		}
		pf, err := s.stageUpload(ctx, userID, name, f)
		if err != nil {
			if rejection, ok := asRejection(name, err); ok {
				result.Rejected = append(result.Rejected, rejection)
				continue
			}
			s.discardBlobs(ctx, staged)
			return nil, err
		}
		seen[strings.ToLower(name)] = struct{}{}
		staged = append(staged, *pf)
	}
	if len(staged) == 0 {
		return result, nil
	}

	var rejected []models.PendingFile
	_, err = s.store.Update(ctx, userID, func(d *models.Draft) error {
		result.Accepted = result.Accepted[:0]
		rejected = rejected[:0]
		names := stagedNames(d)
		for _, pf := range staged {
			key := strings.ToLower(pf.Name)
			if _, dup := names[key]; dup {
				rejected = append(rejected, pf)
				continue
			}
			names[key] = struct{}{}
			d.PendingFiles = append(d.PendingFiles, pf)
			result.Accepted = append(result.Accepted, pf)
		}
		return nil
	})
	if err != nil {
		s.discardBlobs(ctx, staged)
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to save draft")
	}
	for _, pf := range rejected {
		result.DuplicateNames = append(result.DuplicateNames, pf.Name)
	}
	s.discardBlobs(ctx, rejected)
	return result, nil
}

func newAddFilesResult() *models.AddFilesResult {
	return &models.AddFilesResult{
		Accepted:       []models.PendingFile{},
		DuplicateNames: []string{},
		Rejected:       []models.RejectedFile{},
	}
}

// asRejection turns a per-file failure into a rejection entry. Other errors
// are left to fail the batch.
func asRejection(name string, err error) (models.RejectedFile, bool) {
	appErr := appErrors.FromError(err)
	switch appErr.Code {
	case appErrors.ErrPayloadTooLarge.Code, appErrors.ErrUnsupportedFile.Code, appErrors.ErrValidation.Code:
		return models.RejectedFile{Name: name, Code: appErr.Code, Reason: appErr.Message}, true
	}
	return models.RejectedFile{}, false
}

func (s *DraftService) stageUpload(ctx context.Context, userID, name string, f UploadedFile) (*models.PendingFile, error) {
	if s.config.MaxFileSize > 0 && f.Size > s.config.MaxFileSize {
		return nil, appErrors.Clone(appErrors.ErrPayloadTooLarge, fmt.Sprintf("%s exceeds the maximum upload size", name))
	}
	reader := f.Content
	if s.config.MaxFileSize > 0 {
		reader = io.LimitReader(f.Content, s.config.MaxFileSize+1)
	}
	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, fmt.Sprintf("failed to read %s", name))
	}
	if s.config.MaxFileSize > 0 && int64(len(data)) > s.config.MaxFileSize {
		return nil, appErrors.Clone(appErrors.ErrPayloadTooLarge, fmt.Sprintf("%s exceeds the maximum upload size", name))
	}

	detected := mimetype.Detect(data)
	if !s.mimeAllowed(detected) {
		return nil, appErrors.Clone(appErrors.ErrUnsupportedFile, fmt.Sprintf("%s has unsupported type %s", name, baseMIME(detected.String())))
	}

	id := uuid.NewString()
	key := storage.DraftKey(userID, id, name)
	contentType := baseMIME(detected.String())
	if err := s.blobs.Put(ctx, key, bytes.NewReader(data), int64(len(data)), contentType); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, fmt.Sprintf("failed to store %s", name))
	}

	pf := &models.PendingFile{
		ID:          id,
		Type:        models.DocumentTypeClinical,
		Name:        name,
		Size:        fmt.Sprintf("%.2f MB", float64(len(data))/(1024*1024)),
		SizeBytes:   int64(len(data)),
		MimeType:    contentType,
		StoragePath: key,
		AddedAt:     s.now().UTC(),
	}
	if detected.Is("text/plain") {
		text := string(data)
		pf.RawText = &text
	}
	return pf, nil
}

// AddTextNote stages a hand-typed note as a Text document.
func (s *DraftService) AddTextNote(ctx context.Context, userID, title, content string) (*models.AddFilesResult, error) {
	if userID == "" {
		return nil, appErrors.ErrUnauthorized
	}
	content = sanitize.Text(content)
	if sanitize.Blank(content) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "note content is required")
	}
	title = sanitize.Line(title)
	if title == "" {
		title = defaultNoteTitle
	}
	name := storage.SafeName(title + ".txt")

	result := newAddFilesResult()
	current, err := s.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	if _, dup := stagedNames(current)[strings.ToLower(name)]; dup {
		result.DuplicateNames = append(result.DuplicateNames, name)
		return result, nil
	}

	id := uuid.NewString()
	key := storage.DraftKey(userID, id, name)
	if err := s.blobs.Put(ctx, key, strings.NewReader(content), int64(len(content)), noteContentType); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store note")
	}
	note := models.PendingFile{
		ID:          id,
		Type:        models.DocumentTypeText,
		Name:        name,
		Size:        fmt.Sprintf("%.2f KB", float64(len(content))/1024),
		SizeBytes:   int64(len(content)),
		MimeType:    "text/plain",
		StoragePath: key,
		RawText:     &content,
		AddedAt:     s.now().UTC(),
	}

	duplicate := false
	_, err = s.store.Update(ctx, userID, func(d *models.Draft) error {
		if _, dup := stagedNames(d)[strings.ToLower(name)]; dup {
			duplicate = true
			return nil
		}
		duplicate = false
		d.PendingFiles = append(d.PendingFiles, note)
		return nil
	})
	if err != nil || duplicate {
		s.discardBlobs(ctx, []models.PendingFile{note})
	}
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to save draft")
	}
	if duplicate {
		result.DuplicateNames = append(result.DuplicateNames, name)
		return result, nil
	}
	result.Accepted = append(result.Accepted, note)
	return result, nil
}

// RemovePendingFile drops a staged file. Unknown ids are ignored.
func (s *DraftService) RemovePendingFile(ctx context.Context, userID, fileID string) (*models.Draft, error) {
	if userID == "" {
		return nil, appErrors.ErrUnauthorized
	}
	var removed []models.PendingFile
	draft, err := s.store.Update(ctx, userID, func(d *models.Draft) error {
		removed = removed[:0]
		kept := d.PendingFiles[:0]
		for _, pf := range d.PendingFiles {
			if pf.ID == fileID {
				removed = append(removed, pf)
				continue
			}
			kept = append(kept, pf)
		}
		d.PendingFiles = kept
		return nil
	})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to save draft")
	}
	s.discardBlobs(ctx, removed)
	return draft, nil
}

// Clear forgets the draft metadata. Staged blobs are left to the janitor.
func (s *DraftService) Clear(ctx context.Context, userID string) error {
	if userID == "" {
		return appErrors.ErrUnauthorized
	}
	if err := s.store.Delete(ctx, userID); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to clear draft")
	}
	return nil
}

// Cancel deletes staged blobs and clears the draft.
func (s *DraftService) Cancel(ctx context.Context, userID string) error {
	draft, err := s.Get(ctx, userID)
	if err != nil {
		return err
	}
	s.discardBlobs(ctx, draft.PendingFiles)
	return s.Clear(ctx, userID)
}

// SuggestCaseName proposes {CompactCancerType}-{DDMMYYYY}-{N} where N counts
// today's cases across all owners plus one.
func (s *DraftService) SuggestCaseName(ctx context.Context, cancerType string) (*models.CaseNameSuggestion, error) {
	compact := compactCancerType(cancerType)
	if compact == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "cancer type is required")
	}
	now := s.now().In(s.config.Location)
	start := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, s.config.Location)
	count, err := s.counter.CountCreatedBetween(ctx, start, start.AddDate(0, 0, 1))
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count today's cases")
	}
	return &models.CaseNameSuggestion{CaseName: fmt.Sprintf("%s-%s-%d", compact, now.Format("02012006"), count+1)}, nil
}

// Submit persists the draft as a case, clears it and hands the files to the
// processing dispatcher. Dispatch problems never fail the submission.
func (s *DraftService) Submit(ctx context.Context, userID string, req SubmitDraftRequest) (*models.CaseCreated, error) {
	if userID == "" {
		return nil, appErrors.ErrUnauthorized
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid submission")
	}
	draft, err := s.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	if draft.PatientDetails == nil {
		return nil, appErrors.ErrDraftEmpty
	}

	docs, promoted, err := s.promote(ctx, userID, draft.PendingFiles)
	if err != nil {
		return nil, err
	}

	created, err := s.cases.CreateCase(ctx, userID, CreateCaseInput{
		Details:           *draft.PatientDetails,
		Documents:         docs,
		Questions:         req.Questions,
		ShareWithBoardIDs: req.ShareWithBoardIDs,
	})
	if err != nil {
		s.deleteKeys(ctx, promoted)
		return nil, err
	}

	if err := s.store.Delete(ctx, userID); err != nil {
		s.logger.Warn("failed to clear submitted draft", zap.String("user_id", userID), zap.Error(err))
	}
	s.discardBlobs(ctx, draft.PendingFiles)

	job := DispatchJob{CaseID: created.CaseID, UserID: userID, AdditionalData: joinNotes(draft.PendingFiles)}
	for i, pf := range draft.PendingFiles {
		if pf.Type != models.DocumentTypeClinical {
			continue
		}
		job.Files = append(job.Files, DispatchFile{Name: pf.Name, ContentType: pf.MimeType, Key: promoted[i]})
	}
	if err := s.dispatcher.Dispatch(ctx, job); err != nil {
		s.logger.Warn("case processing dispatch failed", zap.String("case_id", created.CaseID), zap.Error(err))
	}
	return created, nil
}

// promote copies staged blobs to their document keys. promoted[i] is the key
// of files[i].
func (s *DraftService) promote(ctx context.Context, userID string, files []models.PendingFile) ([]models.NewDocument, []string, error) {
	docs := make([]models.NewDocument, 0, len(files))
	promoted := make([]string, 0, len(files))
	for _, pf := range files {
		dst := storage.DocumentKey(userID, pf.ID, pf.Name)
		if err := storage.Copy(ctx, s.blobs, pf.StoragePath, dst, pf.MimeType); err != nil {
			s.deleteKeys(ctx, promoted)
			return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, fmt.Sprintf("failed to attach %s", pf.Name))
		}
		promoted = append(promoted, dst)

		doc := models.NewDocument{ID: pf.ID, Type: pf.Type, Name: pf.Name, Size: pf.Size}
		path := dst
		doc.StoragePath = &path
		if pf.MimeType != "" {
			mimeType := pf.MimeType
			doc.MimeType = &mimeType
		}
		docs = append(docs, doc)
	}
	return docs, promoted, nil
}

// BlobSweeper deletes stored objects older than a cutoff that match a filter.
type BlobSweeper interface {
	CleanupOlderThan(ttl time.Duration, match func(key string) bool) ([]string, error)
}

// SweepExpiredUploads removes staged uploads older than ttl that no live
// draft references any more. Blobs whose draft cannot be loaded are kept.
func (s *DraftService) SweepExpiredUploads(ctx context.Context, sweeper BlobSweeper, ttl time.Duration) ([]string, error) {
	live := make(map[string]map[string]struct{})
	referenced := func(userID, key string) bool {
		keys, ok := live[userID]
		if !ok {
			draft, err := s.store.Get(ctx, userID)
			if err != nil {
				s.logger.Warn("janitor could not load draft", zap.String("user_id", userID), zap.Error(err))
				return true
			}
			keys = make(map[string]struct{})
			if draft != nil {
				for _, pf := range draft.PendingFiles {
					keys[pf.StoragePath] = struct{}{}
				}
			}
			live[userID] = keys
		}
		_, ok = keys[key]
		return ok
	}
	return sweeper.CleanupOlderThan(ttl, func(key string) bool {
		userID, ok := storage.DraftOwner(key)
		if !ok {
			return false
		}
		return !referenced(userID, key)
	})
}

func (s *DraftService) discardBlobs(ctx context.Context, files []models.PendingFile) {
	keys := make([]string, 0, len(files))
	for _, pf := range files {
		if pf.StoragePath != "" {
			keys = append(keys, pf.StoragePath)
		}
	}
	s.deleteKeys(ctx, keys)
}

func (s *DraftService) deleteKeys(ctx context.Context, keys []string) {
	for _, key := range keys {
		if err := s.blobs.Delete(ctx, key); err != nil && !errors.Is(err, storage.ErrObjectNotFound) {
			s.logger.Warn("failed to delete blob", zap.String("key", key), zap.Error(err))
		}
	}
}

func (s *DraftService) mimeAllowed(detected *mimetype.MIME) bool {
	if len(s.config.AllowedMIMEs) == 0 {
		return true
	}
	for m := detected; m != nil; m = m.Parent() {
		for _, allowed := range s.config.AllowedMIMEs {
			if m.Is(allowed) {
				return true
			}
		}
	}
	return false
}

func stagedNames(d *models.Draft) map[string]struct{} {
	names := make(map[string]struct{}, len(d.PendingFiles))
	for _, pf := range d.PendingFiles {
		names[strings.ToLower(pf.Name)] = struct{}{}
	}
	return names
}

func cleanDetails(d models.CaseDetails) models.CaseDetails {
	d.CaseName = sanitize.Line(d.CaseName)
	d.Sex = sanitize.Line(d.Sex)
	d.CancerType = sanitize.Line(d.CancerType)
	if d.PatientName != nil {
		if name := sanitize.Line(*d.PatientName); name != "" {
			d.PatientName = &name
		} else {
			d.PatientName = nil
		}
	}
	return d
}

func compactCancerType(cancerType string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return r
		}
		return -1
	}, cancerType)
}

// joinNotes concatenates the text of hand-typed notes for the processing service.
func joinNotes(files []models.PendingFile) string {
	parts := make([]string, 0, len(files))
	for _, pf := range files {
		if pf.Type == models.DocumentTypeText && pf.RawText != nil {
			parts = append(parts, *pf.RawText)
		}
	}
	return strings.TrimSpace(strings.Join(parts, "\n\n"))
}

func baseMIME(value string) string {
	mediaType, _, err := mime.ParseMediaType(value)
	if err != nil {
		return value
	}
	return mediaType
}
