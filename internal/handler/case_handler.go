package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/mtb-case-api/internal/models"
	"github.com/noah-isme/mtb-case-api/internal/service"
	appErrors "github.com/noah-isme/mtb-case-api/pkg/errors"
	"github.com/noah-isme/mtb-case-api/pkg/export"
	"github.com/noah-isme/mtb-case-api/pkg/response"
)

type caseService interface {
	ListOwnedCases(ctx context.Context, userID string) ([]models.CaseListItem, error)
	CheckCaseName(ctx context.Context, name string) (bool, error)
	CreateCase(ctx context.Context, ownerID string, input service.CreateCaseInput) (*models.CaseCreated, error)
	UpdateCase(ctx context.Context, userID, caseID string, upd models.CaseUpdate) (*models.CaseListItem, error)
	DeleteCase(ctx context.Context, userID, caseID string) error
	GetCaseDetail(ctx context.Context, userID, caseID string) (*models.CaseDetail, error)
	ReprocessCase(ctx context.Context, userID, caseID string) error
	DocumentLink(ctx context.Context, userID, caseID, documentID string) (*models.DocumentLink, error)
}

type caseExporter interface {
	ExportOwnedCases(ctx context.Context, userID string, format export.Format) (*service.ExportResult, error)
	ExportCase(ctx context.Context, userID, caseID string) (*service.ExportResult, error)
}

type opinionService interface {
	Submit(ctx context.Context, userID, caseID string, req service.OpinionRequest) (*models.Opinion, error)
	Update(ctx context.Context, userID, opinionID string, req service.OpinionRequest) (*models.Opinion, error)
}

// CreateCaseRequest creates a case without going through the draft wizard.
type CreateCaseRequest struct {
	Details           models.CaseDetails `json:"details"`
	Questions         []string           `json:"questions"`
	ShareWithBoardIDs []string           `json:"shareWithBoardIds"`
}

// CaseHandler exposes the case orchestrator over HTTP.
type CaseHandler struct {
	cases    caseService
	exports  caseExporter
	opinions opinionService
}

// NewCaseHandler constructs a CaseHandler.
func NewCaseHandler(cases caseService, exports caseExporter, opinions opinionService) *CaseHandler {
	return &CaseHandler{cases: cases, exports: exports, opinions: opinions}
}

// List godoc
// @Summary List my cases
// @Description Cases owned by the caller, newest first, with derived status
// @Tags Cases
// @Produce json
// @Security BearerAuth
// @Success 200 {object} response.Envelope
// @Router /cases [get]
func (h *CaseHandler) List(c *gin.Context) {
	items, err := h.cases.ListOwnedCases(c.Request.Context(), currentUserID(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, items, nil)
}

// CheckName godoc
// @Summary Check case name availability
// @Tags Cases
// @Produce json
// @Security BearerAuth
// @Param name query string true "Case name"
// @Success 200 {object} response.Envelope
// @Router /cases/check-name [get]
func (h *CaseHandler) CheckName(c *gin.Context) {
	name := c.Query("name")
	available, err := h.cases.CheckCaseName(c.Request.Context(), name)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, gin.H{"name": name, "available": available}, nil)
}

// Create godoc
// @Summary Create case
// @Description Create a case from patient details and questions, then queue it for processing
// @Tags Cases
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param payload body CreateCaseRequest true "Case payload"
// @Success 201 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /cases [post]
func (h *CaseHandler) Create(c *gin.Context) {
	var req CreateCaseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid case payload"))
		return
	}
	userID := currentUserID(c)
	created, err := h.cases.CreateCase(c.Request.Context(), userID, service.CreateCaseInput{
		Details:           req.Details,
		Questions:         req.Questions,
		ShareWithBoardIDs: req.ShareWithBoardIDs,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	dispatched := h.cases.ReprocessCase(c.Request.Context(), userID, created.CaseID) == nil
	response.JSON(c, http.StatusCreated, created, nil, map[string]interface{}{"dispatched": dispatched})
}

// Get godoc
// @Summary Case detail
// @Description Returns null data when the case does not exist
// @Tags Cases
// @Produce json
// @Security BearerAuth
// @Param id path string true "Case ID"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /cases/{id} [get]
func (h *CaseHandler) Get(c *gin.Context) {
	detail, err := h.cases.GetCaseDetail(c.Request.Context(), currentUserID(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	if detail == nil {
		response.JSON(c, http.StatusOK, nil, nil)
		return
	}
	response.JSON(c, http.StatusOK, detail, nil)
}

// Update godoc
// @Summary Update case
// @Tags Cases
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Case ID"
// @Param payload body models.CaseUpdate true "Fields to change"
// @Success 200 {object} response.Envelope
// @Router /cases/{id} [patch]
func (h *CaseHandler) Update(c *gin.Context) {
	var req models.CaseUpdate
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid case update"))
		return
	}
	item, err := h.cases.UpdateCase(c.Request.Context(), currentUserID(c), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, item, nil)
}

// Delete godoc
// @Summary Delete case
// @Tags Cases
// @Security BearerAuth
// @Param id path string true "Case ID"
// @Success 204
// @Failure 403 {object} response.Envelope
// @Router /cases/{id} [delete]
func (h *CaseHandler) Delete(c *gin.Context) {
	if err := h.cases.DeleteCase(c.Request.Context(), currentUserID(c), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// Reprocess godoc
// @Summary Resubmit case for processing
// @Tags Cases
// @Produce json
// @Security BearerAuth
// @Param id path string true "Case ID"
// @Success 202 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Failure 503 {object} response.Envelope
// @Router /cases/{id}/reprocess [post]
func (h *CaseHandler) Reprocess(c *gin.Context) {
	caseID := c.Param("id")
	if err := h.cases.ReprocessCase(c.Request.Context(), currentUserID(c), caseID); err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusAccepted, gin.H{"caseId": caseID, "status": models.CaseStatusProcessing}, nil)
}

// DocumentLink godoc
// @Summary Signed document link
// @Tags Cases
// @Produce json
// @Security BearerAuth
// @Param id path string true "Case ID"
// @Param docId path string true "Document ID"
// @Success 200 {object} response.Envelope
// @Router /cases/{id}/documents/{docId}/link [get]
func (h *CaseHandler) DocumentLink(c *gin.Context) {
	link, err := h.cases.DocumentLink(c.Request.Context(), currentUserID(c), c.Param("id"), c.Param("docId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, link, nil)
}

// ExportList godoc
// @Summary Export my cases
// @Tags Cases
// @Produce application/pdf,text/csv
// @Security BearerAuth
// @Param format query string false "csv or pdf"
// @Success 200 {file} binary
// @Router /cases/export [get]
func (h *CaseHandler) ExportList(c *gin.Context) {
	format, err := export.ParseFormat(c.Query("format"))
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "unsupported export format"))
		return
	}
	result, err := h.exports.ExportOwnedCases(c.Request.Context(), currentUserID(c), format)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Attachment(c, result.Filename, result.ContentType, result.Data)
}

// ExportCase godoc
// @Summary Export case dossier
// @Tags Cases
// @Produce application/pdf
// @Security BearerAuth
// @Param id path string true "Case ID"
// @Success 200 {file} binary
// @Router /cases/{id}/export [get]
func (h *CaseHandler) ExportCase(c *gin.Context) {
	result, err := h.exports.ExportCase(c.Request.Context(), currentUserID(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Attachment(c, result.Filename, result.ContentType, result.Data)
}

// SubmitOpinion godoc
// @Summary Submit opinion
// @Description Add or replace the caller's opinion on a case shared with one of their boards
// @Tags Opinions
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Case ID"
// @Param payload body service.OpinionRequest true "Opinion"
// @Success 201 {object} response.Envelope
// @Router /cases/{id}/opinions [post]
func (h *CaseHandler) SubmitOpinion(c *gin.Context) {
	var req service.OpinionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid opinion payload"))
		return
	}
	opinion, err := h.opinions.Submit(c.Request.Context(), currentUserID(c), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, opinion)
}

// UpdateOpinion godoc
// @Summary Edit opinion
// @Tags Opinions
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Opinion ID"
// @Param payload body service.OpinionRequest true "Opinion"
// @Success 200 {object} response.Envelope
// @Router /opinions/{id} [put]
func (h *CaseHandler) UpdateOpinion(c *gin.Context) {
	var req service.OpinionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid opinion payload"))
		return
	}
	opinion, err := h.opinions.Update(c.Request.Context(), currentUserID(c), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, opinion, nil)
}
