package handler

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/mtb-case-api/internal/models"
	"github.com/noah-isme/mtb-case-api/internal/service"
	appErrors "github.com/noah-isme/mtb-case-api/pkg/errors"
	"github.com/noah-isme/mtb-case-api/pkg/response"
)

const uploadField = "files"

type draftService interface {
	Get(ctx context.Context, userID string) (*models.Draft, error)
	SetPatientDetails(ctx context.Context, userID string, details models.CaseDetails) (*models.Draft, error)
	AddPendingFiles(ctx context.Context, userID string, files []service.UploadedFile) (*models.AddFilesResult, error)
	AddTextNote(ctx context.Context, userID, title, content string) (*models.AddFilesResult, error)
	RemovePendingFile(ctx context.Context, userID, fileID string) (*models.Draft, error)
	Cancel(ctx context.Context, userID string) error
	SuggestCaseName(ctx context.Context, cancerType string) (*models.CaseNameSuggestion, error)
	Submit(ctx context.Context, userID string, req service.SubmitDraftRequest) (*models.CaseCreated, error)
}

// TextNoteRequest is a hand-typed note staged as a document.
type TextNoteRequest struct {
	Title   string `json:"title"`
	Content string `json:"content" binding:"required"`
}

// DraftHandler drives the case creation wizard.
type DraftHandler struct {
	service        draftService
	maxRequestSize int64
}

// NewDraftHandler constructs a DraftHandler. maxRequestSize bounds a whole
// upload request; zero disables the bound.
func NewDraftHandler(svc draftService, maxRequestSize int64) *DraftHandler {
	return &DraftHandler{service: svc, maxRequestSize: maxRequestSize}
}

// Get godoc
// @Summary Current draft
// @Tags Drafts
// @Produce json
// @Security BearerAuth
// @Success 200 {object} response.Envelope
// @Router /drafts [get]
func (h *DraftHandler) Get(c *gin.Context) {
	draft, err := h.service.Get(c.Request.Context(), currentUserID(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, draft, nil)
}

// SetPatientDetails godoc
// @Summary Save patient details
// @Tags Drafts
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param payload body models.CaseDetails true "Patient details"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /drafts/patient [put]
func (h *DraftHandler) SetPatientDetails(c *gin.Context) {
	var req models.CaseDetails
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid patient details"))
		return
	}
	draft, err := h.service.SetPatientDetails(c.Request.Context(), currentUserID(c), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, draft, nil)
}

// UploadFiles godoc
// @Summary Stage clinical files
// @Description Name collisions are reported in duplicateNames, oversized or unsupported files in rejected
// @Tags Drafts
// @Accept multipart/form-data
// @Produce json
// @Security BearerAuth
// @Param files formData file true "Clinical files"
// @Success 200 {object} response.Envelope
// @Failure 413 {object} response.Envelope
// @Failure 415 {object} response.Envelope
// @Router /drafts/files [post]
func (h *DraftHandler) UploadFiles(c *gin.Context) {
	if h.maxRequestSize > 0 {
		if c.Request.ContentLength > h.maxRequestSize {
			response.Error(c, appErrors.ErrPayloadTooLarge)
			return
		}
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxRequestSize)
	}
	form, err := c.MultipartForm()
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			response.Error(c, appErrors.ErrPayloadTooLarge)
			return
		}
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid multipart payload"))
		return
	}
	headers := form.File[uploadField]
	if len(headers) == 0 {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "no files provided"))
		return
	}

	files := make([]service.UploadedFile, 0, len(headers))
	closers := make([]io.Closer, 0, len(headers))
	defer func() {
		for _, cl := range closers {
			_ = cl.Close()
		}
	}()
	for _, fh := range headers {
		f, err := fh.Open()
		if err != nil {
			response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "failed to read upload"))
			return
		}
		closers = append(closers, f)
		files = append(files, service.UploadedFile{
			Name:        fh.Filename,
			Size:        fh.Size,
			ContentType: fh.Header.Get("Content-Type"),
			Content:     f,
		})
	}

	result, err := h.service.AddPendingFiles(c.Request.Context(), currentUserID(c), files)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// AddTextNote godoc
// @Summary Stage a text note
// @Tags Drafts
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param payload body TextNoteRequest true "Note"
// @Success 200 {object} response.Envelope
// @Router /drafts/notes [post]
func (h *DraftHandler) AddTextNote(c *gin.Context) {
	var req TextNoteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "note content is required"))
		return
	}
	result, err := h.service.AddTextNote(c.Request.Context(), currentUserID(c), req.Title, req.Content)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// RemoveFile godoc
// @Summary Remove a staged file
// @Tags Drafts
// @Produce json
// @Security BearerAuth
// @Param fileId path string true "Pending file ID"
// @Success 200 {object} response.Envelope
// @Router /drafts/files/{fileId} [delete]
func (h *DraftHandler) RemoveFile(c *gin.Context) {
	draft, err := h.service.RemovePendingFile(c.Request.Context(), currentUserID(c), c.Param("fileId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, draft, nil)
}

// Cancel godoc
// @Summary Discard draft
// @Tags Drafts
// @Security BearerAuth
// @Success 204
// @Router /drafts [delete]
func (h *DraftHandler) Cancel(c *gin.Context) {
	if err := h.service.Cancel(c.Request.Context(), currentUserID(c)); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// SuggestCaseName godoc
// @Summary Suggest a case name
// @Tags Drafts
// @Produce json
// @Security BearerAuth
// @Param cancerType query string true "Cancer type"
// @Success 200 {object} response.Envelope
// @Router /drafts/case-name [get]
func (h *DraftHandler) SuggestCaseName(c *gin.Context) {
	suggestion, err := h.service.SuggestCaseName(c.Request.Context(), c.Query("cancerType"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, suggestion, nil)
}

// Submit godoc
// @Summary Submit draft as a case
// @Tags Drafts
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param payload body service.SubmitDraftRequest true "Questions and boards"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /drafts/submit [post]
func (h *DraftHandler) Submit(c *gin.Context) {
	var req service.SubmitDraftRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid submission"))
		return
	}
	created, err := h.service.Submit(c.Request.Context(), currentUserID(c), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, created)
}
