package handler

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/mtb-case-api/internal/models"
	"github.com/noah-isme/mtb-case-api/internal/service"
	appErrors "github.com/noah-isme/mtb-case-api/pkg/errors"
	"github.com/noah-isme/mtb-case-api/pkg/export"
)

type caseServiceMock struct {
	items        []models.CaseListItem
	available    bool
	created      *models.CaseCreated
	createErr    error
	lastInput    service.CreateCaseInput
	lastUpdate   models.CaseUpdate
	detail       *models.CaseDetail
	err          error
	reprocessErr error
	reprocessed  []string
	deleted      []string
	link         *models.DocumentLink
}

func (m *caseServiceMock) ListOwnedCases(ctx context.Context, userID string) ([]models.CaseListItem, error) {
	return m.items, m.err
}

func (m *caseServiceMock) CheckCaseName(ctx context.Context, name string) (bool, error) {
	return m.available, m.err
}

func (m *caseServiceMock) CreateCase(ctx context.Context, ownerID string, input service.CreateCaseInput) (*models.CaseCreated, error) {
	m.lastInput = input
	return m.created, m.createErr
}

func (m *caseServiceMock) UpdateCase(ctx context.Context, userID, caseID string, upd models.CaseUpdate) (*models.CaseListItem, error) {
	m.lastUpdate = upd
	if m.err != nil {
		return nil, m.err
	}
	return &models.CaseListItem{Case: models.Case{ID: caseID}}, nil
}

func (m *caseServiceMock) DeleteCase(ctx context.Context, userID, caseID string) error {
	m.deleted = append(m.deleted, caseID)
	return m.err
}

func (m *caseServiceMock) GetCaseDetail(ctx context.Context, userID, caseID string) (*models.CaseDetail, error) {
	return m.detail, m.err
}

func (m *caseServiceMock) ReprocessCase(ctx context.Context, userID, caseID string) error {
	m.reprocessed = append(m.reprocessed, caseID)
	return m.reprocessErr
}

func (m *caseServiceMock) DocumentLink(ctx context.Context, userID, caseID, documentID string) (*models.DocumentLink, error) {
	return m.link, m.err
}

type exporterMock struct {
	format export.Format
}

func (m *exporterMock) ExportOwnedCases(ctx context.Context, userID string, format export.Format) (*service.ExportResult, error) {
	m.format = format
	return &service.ExportResult{Filename: "cases." + string(format), ContentType: format.ContentType(), Data: []byte("a,b")}, nil
}

func (m *exporterMock) ExportCase(ctx context.Context, userID, caseID string) (*service.ExportResult, error) {
	return &service.ExportResult{Filename: "Lung-1.pdf", ContentType: "application/pdf", Data: []byte("%PDF")}, nil
}

type opinionServiceMock struct {
	req service.OpinionRequest
	err error
}

func (m *opinionServiceMock) Submit(ctx context.Context, userID, caseID string, req service.OpinionRequest) (*models.Opinion, error) {
	m.req = req
	if m.err != nil {
		return nil, m.err
	}
	return &models.Opinion{ID: "op-1", CaseID: caseID, AuthorID: userID, Content: req.Content}, nil
}

func (m *opinionServiceMock) Update(ctx context.Context, userID, opinionID string, req service.OpinionRequest) (*models.Opinion, error) {
	m.req = req
	if m.err != nil {
		return nil, m.err
	}
	return &models.Opinion{ID: opinionID, AuthorID: userID, Content: req.Content}, nil
}

func TestCaseHandlerList(t *testing.T) {
	svc := &caseServiceMock{items: []models.CaseListItem{{Case: models.Case{ID: "c1"}, Status: models.CaseStatusProcessing}}}
	h := NewCaseHandler(svc, &exporterMock{}, &opinionServiceMock{})

	c, w := newContext(http.MethodGet, "/cases", "", "user-1")
	h.List(c)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"Processing"`)
	assert.Equal(t, "no-store", w.Header().Get("Cache-Control"))
}

func TestCaseHandlerCheckName(t *testing.T) {
	h := NewCaseHandler(&caseServiceMock{available: true}, &exporterMock{}, &opinionServiceMock{})
	c, w := newContext(http.MethodGet, "/cases/check-name?name=Lung-1", "", "user-1")
	h.CheckName(c)

	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"name":"Lung-1","available":true}`, string(decode(t, w).Data))
}

func TestCaseHandlerCreateDispatches(t *testing.T) {
	svc := &caseServiceMock{created: &models.CaseCreated{CaseID: "c9", CreatedAt: time.Now()}}
	h := NewCaseHandler(svc, &exporterMock{}, &opinionServiceMock{})

	body := `{"details":{"caseName":"Lung-1","age":60,"sex":"male","cancerType":"Lung"},"questions":["Surgery?"],"shareWithBoardIds":["b1"]}`
	c, w := newContext(http.MethodPost, "/cases", body, "user-1")
	h.Create(c)

	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "Lung-1", svc.lastInput.Details.CaseName)
	assert.Equal(t, []string{"b1"}, svc.lastInput.ShareWithBoardIDs)
	assert.Equal(t, []string{"c9"}, svc.reprocessed)
	assert.Equal(t, true, decode(t, w).Meta["dispatched"])
}

func TestCaseHandlerCreateSurvivesBusyQueue(t *testing.T) {
	svc := &caseServiceMock{created: &models.CaseCreated{CaseID: "c9"}, reprocessErr: appErrors.ErrUnavailable}
	h := NewCaseHandler(svc, &exporterMock{}, &opinionServiceMock{})

	c, w := newContext(http.MethodPost, "/cases", `{"details":{"caseName":"x"}}`, "user-1")
	h.Create(c)

	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, false, decode(t, w).Meta["dispatched"])
}

func TestCaseHandlerCreateNameTaken(t *testing.T) {
	svc := &caseServiceMock{createErr: appErrors.ErrCaseNameTaken}
	h := NewCaseHandler(svc, &exporterMock{}, &opinionServiceMock{})

	c, w := newContext(http.MethodPost, "/cases", `{"details":{"caseName":"x"}}`, "user-1")
	h.Create(c)

	require.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "CASE_NAME_TAKEN", errorCode(t, w))
	assert.Empty(t, svc.reprocessed)
}

func TestCaseHandlerGetMissingReturnsNull(t *testing.T) {
	h := NewCaseHandler(&caseServiceMock{}, &exporterMock{}, &opinionServiceMock{})
	c, w := newContext(http.MethodGet, "/cases/missing", "", "user-1")
	c.Params = gin.Params{{Key: "id", Value: "missing"}}
	h.Get(c)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "null", string(decode(t, w).Data))
}

func TestCaseHandlerGetForbidden(t *testing.T) {
	h := NewCaseHandler(&caseServiceMock{err: appErrors.ErrForbidden}, &exporterMock{}, &opinionServiceMock{})
	c, w := newContext(http.MethodGet, "/cases/c1", "", "user-2")
	c.Params = gin.Params{{Key: "id", Value: "c1"}}
	h.Get(c)

	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestCaseHandlerUpdateInvalidBody(t *testing.T) {
	svc := &caseServiceMock{}
	h := NewCaseHandler(svc, &exporterMock{}, &opinionServiceMock{})
	c, w := newContext(http.MethodPatch, "/cases/c1", `{"finalized":`, "user-1")
	c.Params = gin.Params{{Key: "id", Value: "c1"}}
	h.Update(c)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCaseHandlerUpdate(t *testing.T) {
	svc := &caseServiceMock{}
	h := NewCaseHandler(svc, &exporterMock{}, &opinionServiceMock{})
	c, w := newContext(http.MethodPatch, "/cases/c1", `{"finalized":true}`, "user-1")
	c.Params = gin.Params{{Key: "id", Value: "c1"}}
	h.Update(c)

	require.Equal(t, http.StatusOK, w.Code)
	require.NotNil(t, svc.lastUpdate.Finalized)
	assert.True(t, *svc.lastUpdate.Finalized)
	assert.Nil(t, svc.lastUpdate.Summary)
}

func TestCaseHandlerDelete(t *testing.T) {
	svc := &caseServiceMock{}
	h := NewCaseHandler(svc, &exporterMock{}, &opinionServiceMock{})
	c, w := newContext(http.MethodDelete, "/cases/c1", "", "user-1")
	c.Params = gin.Params{{Key: "id", Value: "c1"}}
	h.Delete(c)
	c.Writer.WriteHeaderNow()

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, []string{"c1"}, svc.deleted)
}

func TestCaseHandlerReprocessBusy(t *testing.T) {
	svc := &caseServiceMock{reprocessErr: appErrors.Wrap(errors.New("queue full"), appErrors.ErrUnavailable.Code, appErrors.ErrUnavailable.Status, "processing is busy")}
	h := NewCaseHandler(svc, &exporterMock{}, &opinionServiceMock{})
	c, w := newContext(http.MethodPost, "/cases/c1/reprocess", "", "user-1")
	c.Params = gin.Params{{Key: "id", Value: "c1"}}
	h.Reprocess(c)

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestCaseHandlerDocumentLink(t *testing.T) {
	svc := &caseServiceMock{link: &models.DocumentLink{URL: "/api/v1/files/tok"}}
	h := NewCaseHandler(svc, &exporterMock{}, &opinionServiceMock{})
	c, w := newContext(http.MethodGet, "/cases/c1/documents/d1/link", "", "user-1")
	c.Params = gin.Params{{Key: "id", Value: "c1"}, {Key: "docId", Value: "d1"}}
	h.DocumentLink(c)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "/api/v1/files/tok")
}

func TestCaseHandlerExportList(t *testing.T) {
	exporter := &exporterMock{}
	h := NewCaseHandler(&caseServiceMock{}, exporter, &opinionServiceMock{})

	c, w := newContext(http.MethodGet, "/cases/export?format=CSV", "", "user-1")
	h.ExportList(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, export.FormatCSV, exporter.format)
	assert.Contains(t, w.Header().Get("Content-Disposition"), `filename="cases.csv"`)

	c, w = newContext(http.MethodGet, "/cases/export?format=xlsx", "", "user-1")
	h.ExportList(c)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCaseHandlerExportCase(t *testing.T) {
	h := NewCaseHandler(&caseServiceMock{}, &exporterMock{}, &opinionServiceMock{})
	c, w := newContext(http.MethodGet, "/cases/c1/export", "", "user-1")
	c.Params = gin.Params{{Key: "id", Value: "c1"}}
	h.ExportCase(c)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/pdf", w.Header().Get("Content-Type"))
	assert.Equal(t, "%PDF", w.Body.String())
}

func TestCaseHandlerOpinions(t *testing.T) {
	opinions := &opinionServiceMock{}
	h := NewCaseHandler(&caseServiceMock{}, &exporterMock{}, opinions)

	c, w := newContext(http.MethodPost, "/cases/c1/opinions", `{"content":"Agree with resection"}`, "reviewer")
	c.Params = gin.Params{{Key: "id", Value: "c1"}}
	h.SubmitOpinion(c)
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "Agree with resection", opinions.req.Content)

	opinions.err = appErrors.ErrForbidden
	c, w = newContext(http.MethodPut, "/opinions/op-1", `{"content":"Changed"}`, "someone-else")
	c.Params = gin.Params{{Key: "id", Value: "op-1"}}
	h.UpdateOpinion(c)
	assert.Equal(t, http.StatusForbidden, w.Code)
}
