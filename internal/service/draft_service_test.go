package service

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/mtb-case-api/internal/models"
	"github.com/noah-isme/mtb-case-api/internal/repository"
	appErrors "github.com/noah-isme/mtb-case-api/pkg/errors"
	"github.com/noah-isme/mtb-case-api/pkg/storage"
)

const samplePDF = "%PDF-1.4\n1 0 obj\n<< /Type /Catalog >>\nendobj\ntrailer\n<< /Root 1 0 R >>\n%%EOF\n"

type mockOrchestrator struct {
	taken     map[string]bool
	createErr error
	inputs    []CreateCaseInput
}

func (m *mockOrchestrator) CheckCaseName(ctx context.Context, name string) (bool, error) {
	return !m.taken[name], nil
}

func (m *mockOrchestrator) CreateCase(ctx context.Context, ownerID string, input CreateCaseInput) (*models.CaseCreated, error) {
	if m.createErr != nil {
		return nil, m.createErr
	}
	m.inputs = append(m.inputs, input)
	return &models.CaseCreated{CaseID: "case-1", CreatedAt: time.Now()}, nil
}

type stubCounter struct {
	count    int
	from, to time.Time
}

func (s *stubCounter) CountCreatedBetween(ctx context.Context, from, to time.Time) (int, error) {
	s.from, s.to = from, to
	return s.count, nil
}

type draftFixture struct {
	svc          *DraftService
	store        *repository.MemoryDraftRepository
	blobs        *fakeBlobStore
	orchestrator *mockOrchestrator
	counter      *stubCounter
	dispatcher   *fakeDispatcher
}

func newDraftFixture() *draftFixture {
	f := &draftFixture{
		store:        repository.NewMemoryDraftRepository(time.Hour),
		blobs:        newFakeBlobStore(),
		orchestrator: &mockOrchestrator{taken: map[string]bool{}},
		counter:      &stubCounter{},
		dispatcher:   &fakeDispatcher{},
	}
	f.svc = NewDraftService(f.store, f.blobs, f.orchestrator, f.counter, f.dispatcher, nil, nil, DraftConfig{
		MaxFileSize:  1024,
		AllowedMIMEs: []string{"application/pdf", "text/plain", "image/png", "image/jpeg"},
	})
	return f
}

func upload(name, content string) UploadedFile {
	return UploadedFile{Name: name, Size: int64(len(content)), Content: strings.NewReader(content)}
}

func TestDraftServiceGetEmpty(t *testing.T) {
	f := newDraftFixture()
	draft, err := f.svc.Get(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Nil(t, draft.PatientDetails)
	assert.Empty(t, draft.PendingFiles)
}

func TestDraftServiceSetPatientDetails(t *testing.T) {
	f := newDraftFixture()
	f.orchestrator.taken["Taken-01"] = true

	details := validDetails()
	details.CaseName = "  Lung-01032024-1\t"
	draft, err := f.svc.SetPatientDetails(context.Background(), "user-1", details)
	require.NoError(t, err)
	assert.Equal(t, "Lung-01032024-1", draft.PatientDetails.CaseName)

	details.CaseName = "Taken-01"
	_, err = f.svc.SetPatientDetails(context.Background(), "user-1", details)
	assert.ErrorIs(t, err, appErrors.ErrCaseNameTaken)

	details.Sex = ""
	_, err = f.svc.SetPatientDetails(context.Background(), "user-1", details)
	assert.True(t, appErrors.HasCode(err, appErrors.ErrValidation.Code))
}

func TestDraftServiceAddPendingFilesRejectsDuplicates(t *testing.T) {
	f := newDraftFixture()
	ctx := context.Background()

	result, err := f.svc.AddPendingFiles(ctx, "user-1", []UploadedFile{upload("scan.pdf", samplePDF), upload("notes.txt", "smoker")})
	require.NoError(t, err)
	require.Len(t, result.Accepted, 2)
	assert.Empty(t, result.DuplicateNames)
	assert.Equal(t, "application/pdf", result.Accepted[0].MimeType)
	assert.Equal(t, "0.00 MB", result.Accepted[0].Size)
	assert.Equal(t, storage.DraftKey("user-1", result.Accepted[0].ID, "scan.pdf"), result.Accepted[0].StoragePath)
	require.NotNil(t, result.Accepted[1].RawText)
	assert.Equal(t, "smoker", *result.Accepted[1].RawText)

	result, err = f.svc.AddPendingFiles(ctx, "user-1", []UploadedFile{upload("SCAN.pdf", samplePDF), upload("ct.pdf", samplePDF), upload("CT.PDF", samplePDF)})
	require.NoError(t, err)
	require.Len(t, result.Accepted, 1)
	assert.Equal(t, "ct.pdf", result.Accepted[0].Name)
	assert.ElementsMatch(t, []string{"SCAN.pdf", "CT.PDF"}, result.DuplicateNames)

	draft, err := f.svc.Get(ctx, "user-1")
	require.NoError(t, err)
	assert.Len(t, draft.PendingFiles, 3)
	assert.Len(t, f.blobs.keys(), 3)
}

func TestDraftServiceAddPendingFilesRejectsPerFile(t *testing.T) {
	f := newDraftFixture()
	ctx := context.Background()

	result, err := f.svc.AddPendingFiles(ctx, "user-1", []UploadedFile{
		upload("scan.pdf", samplePDF),
		upload("archive.zip", "PK\x03\x04rest-of-zip"),
		upload("huge.txt", strings.Repeat("a", 2048)),
		upload("notes.txt", "ECOG 1"),
	})
	require.NoError(t, err)
	require.Len(t, result.Accepted, 2)
	assert.Equal(t, "scan.pdf", result.Accepted[0].Name)
	assert.Equal(t, "notes.txt", result.Accepted[1].Name)
	assert.Empty(t, result.DuplicateNames)
	require.Len(t, result.Rejected, 2)
	assert.Equal(t, "archive.zip", result.Rejected[0].Name)
	assert.Equal(t, appErrors.ErrUnsupportedFile.Code, result.Rejected[0].Code)
	assert.NotEmpty(t, result.Rejected[0].Reason)
	assert.Equal(t, "huge.txt", result.Rejected[1].Name)
	assert.Equal(t, appErrors.ErrPayloadTooLarge.Code, result.Rejected[1].Code)

	draft, err := f.svc.Get(ctx, "user-1")
	require.NoError(t, err)
	assert.Len(t, draft.PendingFiles, 2)
	assert.Len(t, f.blobs.keys(), 2)

	result, err = f.svc.AddPendingFiles(ctx, "user-1", []UploadedFile{upload("huge.txt", strings.Repeat("a", 2048))})
	require.NoError(t, err)
	assert.Empty(t, result.Accepted)
	assert.Len(t, result.Rejected, 1)
}

func TestDraftServiceAddTextNote(t *testing.T) {
	f := newDraftFixture()
	ctx := context.Background()

	result, err := f.svc.AddTextNote(ctx, "user-1", "", "Family history of BRCA1")
	require.NoError(t, err)
	require.Len(t, result.Accepted, 1)
	note := result.Accepted[0]
	assert.Equal(t, "text_document.txt", note.Name)
	assert.Equal(t, models.DocumentTypeText, note.Type)
	assert.Equal(t, "0.02 KB", note.Size)

	result, err = f.svc.AddTextNote(ctx, "user-1", "TEXT_DOCUMENT", "again")
	require.NoError(t, err)
	assert.Empty(t, result.Accepted)
	assert.Equal(t, []string{"TEXT_DOCUMENT.txt"}, result.DuplicateNames)
	assert.Len(t, f.blobs.keys(), 1)

	_, err = f.svc.AddTextNote(ctx, "user-1", "empty", "  ")
	assert.True(t, appErrors.HasCode(err, appErrors.ErrValidation.Code))
}

func TestDraftServiceAddTextNoteKeepsContent(t *testing.T) {
	f := newDraftFixture()
	content := "CA-125<35 U/mL; &lt;b&gt; left as typed"

	result, err := f.svc.AddTextNote(context.Background(), "user-1", "labs", content)
	require.NoError(t, err)
	require.Len(t, result.Accepted, 1)
	require.NotNil(t, result.Accepted[0].RawText)
	assert.Equal(t, content, *result.Accepted[0].RawText)
}

func TestDraftServiceRemovePendingFile(t *testing.T) {
	f := newDraftFixture()
	ctx := context.Background()
	result, err := f.svc.AddPendingFiles(ctx, "user-1", []UploadedFile{upload("scan.pdf", samplePDF)})
	require.NoError(t, err)

	draft, err := f.svc.RemovePendingFile(ctx, "user-1", result.Accepted[0].ID)
	require.NoError(t, err)
	assert.Empty(t, draft.PendingFiles)
	assert.Empty(t, f.blobs.keys())

	_, err = f.svc.RemovePendingFile(ctx, "user-1", "unknown")
	require.NoError(t, err)
}

func TestDraftServiceClearIsolatesNextDraft(t *testing.T) {
	f := newDraftFixture()
	ctx := context.Background()
	_, err := f.svc.SetPatientDetails(ctx, "user-1", validDetails())
	require.NoError(t, err)
	_, err = f.svc.AddPendingFiles(ctx, "user-1", []UploadedFile{upload("scan.pdf", samplePDF)})
	require.NoError(t, err)

	require.NoError(t, f.svc.Clear(ctx, "user-1"))
	assert.Len(t, f.blobs.keys(), 1)

	_, err = f.svc.SetPatientDetails(ctx, "user-1", validDetails())
	require.NoError(t, err)
	result, err := f.svc.AddPendingFiles(ctx, "user-1", []UploadedFile{upload("scan.pdf", samplePDF)})
	require.NoError(t, err)
	assert.Len(t, result.Accepted, 1)
	assert.Empty(t, result.DuplicateNames)
}

func TestDraftServiceCancelOnSignOut(t *testing.T) {
	f := newDraftFixture()
	ctx := context.Background()
	events := NewSessionEvents()
	unsubscribe := f.svc.Subscribe(events)
	defer unsubscribe()

	_, err := f.svc.AddPendingFiles(ctx, "user-1", []UploadedFile{upload("scan.pdf", samplePDF)})
	require.NoError(t, err)

	events.Publish(ctx, SessionEvent{Type: SessionSignedIn, UserID: "user-1"})
	assert.Len(t, f.blobs.keys(), 1)

	events.Publish(ctx, SessionEvent{Type: SessionSignedOut, UserID: "user-1"})
	assert.Empty(t, f.blobs.keys())
	draft, err := f.svc.Get(ctx, "user-1")
	require.NoError(t, err)
	assert.Empty(t, draft.PendingFiles)
}

func TestDraftServiceSuggestCaseName(t *testing.T) {
	f := newDraftFixture()
	cet := time.FixedZone("CET", 3600)
	f.svc.config.Location = cet
	f.svc.now = func() time.Time { return time.Date(2024, 3, 1, 23, 30, 0, 0, time.UTC) }
	f.counter.count = 2

	suggestion, err := f.svc.SuggestCaseName(context.Background(), "Non-Small Cell Lung")
	require.NoError(t, err)
	assert.Equal(t, "NonSmallCellLung-02032024-3", suggestion.CaseName)
	assert.True(t, f.counter.from.Equal(time.Date(2024, 3, 2, 0, 0, 0, 0, cet)))
	assert.Equal(t, 24*time.Hour, f.counter.to.Sub(f.counter.from))

	_, err = f.svc.SuggestCaseName(context.Background(), " - ")
	assert.True(t, appErrors.HasCode(err, appErrors.ErrValidation.Code))
}

func TestDraftServiceSubmit(t *testing.T) {
	f := newDraftFixture()
	ctx := context.Background()
	_, err := f.svc.SetPatientDetails(ctx, "user-1", validDetails())
	require.NoError(t, err)
	files, err := f.svc.AddPendingFiles(ctx, "user-1", []UploadedFile{upload("scan.pdf", samplePDF)})
	require.NoError(t, err)
	_, err = f.svc.AddTextNote(ctx, "user-1", "history", "Smoker")
	require.NoError(t, err)
	_, err = f.svc.AddTextNote(ctx, "user-1", "labs", "CEA elevated")
	require.NoError(t, err)

	created, err := f.svc.Submit(ctx, "user-1", SubmitDraftRequest{Questions: []string{"Surgery?"}, ShareWithBoardIDs: []string{"board-1"}})
	require.NoError(t, err)
	assert.Equal(t, "case-1", created.CaseID)

	require.Len(t, f.orchestrator.inputs, 1)
	input := f.orchestrator.inputs[0]
	require.Len(t, input.Documents, 3)
	scanKey := storage.DocumentKey("user-1", files.Accepted[0].ID, "scan.pdf")
	assert.Equal(t, scanKey, *input.Documents[0].StoragePath)
	assert.Equal(t, []string{"board-1"}, input.ShareWithBoardIDs)

	for _, key := range f.blobs.keys() {
		assert.False(t, storage.IsDraftKey(key), key)
	}
	assert.Len(t, f.blobs.keys(), 3)

	require.Len(t, f.dispatcher.jobs, 1)
	job := f.dispatcher.jobs[0]
	assert.Equal(t, "case-1", job.CaseID)
	assert.Equal(t, "Smoker\n\nCEA elevated", job.AdditionalData)
	require.Len(t, job.Files, 1)
	assert.Equal(t, scanKey, job.Files[0].Key)

	draft, err := f.svc.Get(ctx, "user-1")
	require.NoError(t, err)
	assert.Nil(t, draft.PatientDetails)
}

func TestDraftServiceSubmitRequiresDetails(t *testing.T) {
	f := newDraftFixture()
	_, err := f.svc.Submit(context.Background(), "user-1", SubmitDraftRequest{})
	assert.ErrorIs(t, err, appErrors.ErrDraftEmpty)
}

func TestDraftServiceSubmitFailureKeepsDraft(t *testing.T) {
	f := newDraftFixture()
	ctx := context.Background()
	_, err := f.svc.SetPatientDetails(ctx, "user-1", validDetails())
	require.NoError(t, err)
	_, err = f.svc.AddPendingFiles(ctx, "user-1", []UploadedFile{upload("scan.pdf", samplePDF)})
	require.NoError(t, err)
	f.orchestrator.createErr = appErrors.ErrCaseNameTaken

	_, err = f.svc.Submit(ctx, "user-1", SubmitDraftRequest{})
	assert.ErrorIs(t, err, appErrors.ErrCaseNameTaken)

	keys := f.blobs.keys()
	require.Len(t, keys, 1)
	assert.True(t, storage.IsDraftKey(keys[0]))
	draft, err := f.svc.Get(ctx, "user-1")
	require.NoError(t, err)
	assert.Len(t, draft.PendingFiles, 1)
	assert.Empty(t, f.dispatcher.jobs)
}

func TestDraftServiceSubmitSurvivesDispatchFailure(t *testing.T) {
	f := newDraftFixture()
	ctx := context.Background()
	_, err := f.svc.SetPatientDetails(ctx, "user-1", validDetails())
	require.NoError(t, err)
	f.dispatcher.err = errors.New("queue full")

	created, err := f.svc.Submit(ctx, "user-1", SubmitDraftRequest{})
	require.NoError(t, err)
	assert.Equal(t, "case-1", created.CaseID)
}

type keySweeper struct {
	keys []string
}

func (k *keySweeper) CleanupOlderThan(ttl time.Duration, match func(key string) bool) ([]string, error) {
	removed := make([]string, 0)
	for _, key := range k.keys {
		if match(key) {
			removed = append(removed, key)
		}
	}
	return removed, nil
}

func TestDraftServiceSweepKeepsLiveDraftUploads(t *testing.T) {
	f := newDraftFixture()
	ctx := context.Background()
	result, err := f.svc.AddPendingFiles(ctx, "user-1", []UploadedFile{upload("scan.pdf", samplePDF)})
	require.NoError(t, err)
	live := result.Accepted[0].StoragePath

	sweeper := &keySweeper{keys: []string{
		live,
		storage.DraftKey("user-1", "removed", "old.pdf"),
		storage.DraftKey("user-2", "f1", "abandoned.pdf"),
		storage.DocumentKey("user-1", "d1", "kept.pdf"),
	}}
	removed, err := f.svc.SweepExpiredUploads(ctx, sweeper, time.Hour)
	require.NoError(t, err)
	assert.Equal(t, []string{
		storage.DraftKey("user-1", "removed", "old.pdf"),
		storage.DraftKey("user-2", "f1", "abandoned.pdf"),
	}, removed)
}
