package handler

import (
	"bytes"
	"context"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/mtb-case-api/internal/middleware"
	"github.com/noah-isme/mtb-case-api/internal/models"
	"github.com/noah-isme/mtb-case-api/internal/service"
	appErrors "github.com/noah-isme/mtb-case-api/pkg/errors"
)

type draftServiceMock struct {
	uploaded   []string
	contents   []string
	details    models.CaseDetails
	noteTitle  string
	submitted  service.SubmitDraftRequest
	cancelled  bool
	cancerType string
	err        error
}

func (m *draftServiceMock) Get(ctx context.Context, userID string) (*models.Draft, error) {
	return &models.Draft{UserID: userID, PendingFiles: []models.PendingFile{}}, m.err
}

func (m *draftServiceMock) SetPatientDetails(ctx context.Context, userID string, details models.CaseDetails) (*models.Draft, error) {
	m.details = details
	if m.err != nil {
		return nil, m.err
	}
	return &models.Draft{UserID: userID, PatientDetails: &details}, nil
}

func (m *draftServiceMock) AddPendingFiles(ctx context.Context, userID string, files []service.UploadedFile) (*models.AddFilesResult, error) {
	for _, f := range files {
		data, _ := io.ReadAll(f.Content)
		m.uploaded = append(m.uploaded, f.Name)
		m.contents = append(m.contents, string(data))
	}
	if m.err != nil {
		return nil, m.err
	}
	return &models.AddFilesResult{Accepted: []models.PendingFile{}, DuplicateNames: []string{"dup.pdf"}}, nil
}

func (m *draftServiceMock) AddTextNote(ctx context.Context, userID, title, content string) (*models.AddFilesResult, error) {
	m.noteTitle = title
	return &models.AddFilesResult{Accepted: []models.PendingFile{{Name: title + ".txt"}}, DuplicateNames: []string{}}, m.err
}

func (m *draftServiceMock) RemovePendingFile(ctx context.Context, userID, fileID string) (*models.Draft, error) {
	return &models.Draft{UserID: userID}, m.err
}

func (m *draftServiceMock) Cancel(ctx context.Context, userID string) error {
	m.cancelled = true
	return m.err
}

func (m *draftServiceMock) SuggestCaseName(ctx context.Context, cancerType string) (*models.CaseNameSuggestion, error) {
	m.cancerType = cancerType
	return &models.CaseNameSuggestion{CaseName: "Lung-01032024-1"}, m.err
}

func (m *draftServiceMock) Submit(ctx context.Context, userID string, req service.SubmitDraftRequest) (*models.CaseCreated, error) {
	m.submitted = req
	if m.err != nil {
		return nil, m.err
	}
	return &models.CaseCreated{CaseID: "c1"}, nil
}

func multipartContext(t *testing.T, files map[string]string) (*gin.Context, *httptest.ResponseRecorder) {
	t.Helper()
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	for name, content := range files {
		part, err := writer.CreateFormFile(uploadField, name)
		require.NoError(t, err)
		_, err = part.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, writer.Close())

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req := httptest.NewRequest(http.MethodPost, "/drafts/files", &body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	c.Request = req
	c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: "user-1"})
	return c, w
}

func TestDraftHandlerUploadFiles(t *testing.T) {
	svc := &draftServiceMock{}
	h := NewDraftHandler(svc, 1<<20)

	c, w := multipartContext(t, map[string]string{"scan.pdf": "%PDF-1.4"})
	h.UploadFiles(c)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []string{"scan.pdf"}, svc.uploaded)
	assert.Equal(t, []string{"%PDF-1.4"}, svc.contents)
	assert.Contains(t, w.Body.String(), `"duplicateNames":["dup.pdf"]`)
}

func TestDraftHandlerUploadRejectsOversizedRequest(t *testing.T) {
	svc := &draftServiceMock{}
	h := NewDraftHandler(svc, 64)

	c, w := multipartContext(t, map[string]string{"big.pdf": strings.Repeat("x", 4096)})
	h.UploadFiles(c)

	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
	assert.Empty(t, svc.uploaded)
}

func TestDraftHandlerUploadWithoutFiles(t *testing.T) {
	h := NewDraftHandler(&draftServiceMock{}, 0)
	c, w := multipartContext(t, map[string]string{})
	h.UploadFiles(c)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestDraftHandlerUploadServiceError(t *testing.T) {
	svc := &draftServiceMock{err: appErrors.ErrUnsupportedFile}
	h := NewDraftHandler(svc, 0)
	c, w := multipartContext(t, map[string]string{"a.zip": "PK"})
	h.UploadFiles(c)

	assert.Equal(t, http.StatusUnsupportedMediaType, w.Code)
}

func TestDraftHandlerSetPatientDetails(t *testing.T) {
	svc := &draftServiceMock{}
	h := NewDraftHandler(svc, 0)
	c, w := newContext(http.MethodPut, "/drafts/patient", `{"caseName":"Lung-1","age":0,"sex":"female","cancerType":"Lung"}`, "user-1")
	h.SetPatientDetails(c)

	require.Equal(t, http.StatusOK, w.Code)
	require.NotNil(t, svc.details.Age)
	assert.Equal(t, 0, *svc.details.Age)
}

func TestDraftHandlerTextNoteRequiresContent(t *testing.T) {
	h := NewDraftHandler(&draftServiceMock{}, 0)
	c, w := newContext(http.MethodPost, "/drafts/notes", `{"title":"History"}`, "user-1")
	h.AddTextNote(c)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	svc := &draftServiceMock{}
	h = NewDraftHandler(svc, 0)
	c, w = newContext(http.MethodPost, "/drafts/notes", `{"title":"History","content":"Smoker"}`, "user-1")
	h.AddTextNote(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "History", svc.noteTitle)
}

func TestDraftHandlerSuggestAndSubmit(t *testing.T) {
	svc := &draftServiceMock{}
	h := NewDraftHandler(svc, 0)

	c, w := newContext(http.MethodGet, "/drafts/case-name?cancerType=Lung", "", "user-1")
	h.SuggestCaseName(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Lung", svc.cancerType)

	c, w = newContext(http.MethodPost, "/drafts/submit", `{"questions":["Surgery?"],"shareWithBoardIds":["b1"]}`, "user-1")
	h.Submit(c)
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, []string{"Surgery?"}, svc.submitted.Questions)
}

func TestDraftHandlerSubmitIncomplete(t *testing.T) {
	h := NewDraftHandler(&draftServiceMock{err: appErrors.ErrDraftEmpty}, 0)
	c, w := newContext(http.MethodPost, "/drafts/submit", `{}`, "user-1")
	h.Submit(c)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "DRAFT_INCOMPLETE", errorCode(t, w))
}

func TestDraftHandlerCancel(t *testing.T) {
	svc := &draftServiceMock{}
	h := NewDraftHandler(svc, 0)
	c, w := newContext(http.MethodDelete, "/drafts", "", "user-1")
	h.Cancel(c)
	c.Writer.WriteHeaderNow()

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.True(t, svc.cancelled)
}
