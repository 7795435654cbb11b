package handler

import (
	"context"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/mtb-case-api/internal/models"
	"github.com/noah-isme/mtb-case-api/internal/service"
	appErrors "github.com/noah-isme/mtb-case-api/pkg/errors"
)

type openerStub struct {
	tokens map[string]string
}

func (o openerStub) OpenDocument(ctx context.Context, token string) (*service.DocumentDownload, error) {
	body, ok := o.tokens[token]
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "download link is invalid or expired")
	}
	return &service.DocumentDownload{Name: "scan.pdf", ContentType: "application/pdf", Body: io.NopCloser(strings.NewReader(body))}, nil
}

type summarySinkStub struct {
	caseID  string
	summary string
	err     error
}

func (s *summarySinkStub) ApplyProcessingResult(ctx context.Context, caseID, summary string) (*models.CaseListItem, error) {
	s.caseID, s.summary = caseID, summary
	if s.err != nil {
		return nil, s.err
	}
	return &models.CaseListItem{Case: models.Case{ID: caseID, Summary: &summary}, Status: models.StatusOf(&summary)}, nil
}

func TestFileHandlerDownload(t *testing.T) {
	h := NewFileHandler(openerStub{tokens: map[string]string{"good": "%PDF-1.7"}})

	c, w := newContext(http.MethodGet, "/files/good", "", "")
	c.Params = gin.Params{{Key: "token", Value: "good"}}
	h.Download(c)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "%PDF-1.7", w.Body.String())
	assert.Equal(t, "application/pdf", w.Header().Get("Content-Type"))
	assert.Equal(t, `attachment; filename="scan.pdf"`, w.Header().Get("Content-Disposition"))

	c, w = newContext(http.MethodGet, "/files/tampered", "", "")
	c.Params = gin.Params{{Key: "token", Value: "tampered"}}
	h.Download(c)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestInternalHandlerCaseSummary(t *testing.T) {
	sink := &summarySinkStub{}
	h := NewInternalHandler(sink)

	c, w := newContext(http.MethodPost, "/internal/cases/c1/summary", `{"summary":"Stage II NSCLC"}`, "")
	c.Params = gin.Params{{Key: "id", Value: "c1"}}
	h.CaseSummary(c)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "c1", sink.caseID)
	assert.Contains(t, w.Body.String(), `"status":"Ready"`)

	sink.err = appErrors.Clone(appErrors.ErrNotFound, "case not found")
	c, w = newContext(http.MethodPost, "/internal/cases/gone/summary", `{"summary":""}`, "")
	c.Params = gin.Params{{Key: "id", Value: "gone"}}
	h.CaseSummary(c)
	assert.Equal(t, http.StatusNotFound, w.Code)
}
