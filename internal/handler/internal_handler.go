package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/mtb-case-api/internal/models"
	appErrors "github.com/noah-isme/mtb-case-api/pkg/errors"
	"github.com/noah-isme/mtb-case-api/pkg/response"
)

type processingResultSink interface {
	ApplyProcessingResult(ctx context.Context, caseID, summary string) (*models.CaseListItem, error)
}

// SummaryRequest is posted by the processing service when a case is done.
// An empty summary marks the case as failed.
type SummaryRequest struct {
	Summary string `json:"summary"`
}

// InternalHandler receives callbacks from the processing service.
type InternalHandler struct {
	cases processingResultSink
}

// NewInternalHandler constructs an InternalHandler.
func NewInternalHandler(cases processingResultSink) *InternalHandler {
	return &InternalHandler{cases: cases}
}

// CaseSummary godoc
// @Summary Store processing result
// @Tags Internal
// @Accept json
// @Produce json
// @Param X-Processing-Secret header string true "Shared secret"
// @Param id path string true "Case ID"
// @Param payload body SummaryRequest true "Summary"
// @Success 200 {object} response.Envelope
// @Failure 401 {object} response.Envelope
// @Router /internal/cases/{id}/summary [post]
func (h *InternalHandler) CaseSummary(c *gin.Context) {
	var req SummaryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid summary payload"))
		return
	}
	item, err := h.cases.ApplyProcessingResult(c.Request.Context(), c.Param("id"), req.Summary)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, item, nil)
}
