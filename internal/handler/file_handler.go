package handler

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/mtb-case-api/internal/service"
	"github.com/noah-isme/mtb-case-api/pkg/response"
)

type documentOpener interface {
	OpenDocument(ctx context.Context, token string) (*service.DocumentDownload, error)
}

// FileHandler serves documents behind signed links. The token is the only
// credential.
type FileHandler struct {
	documents documentOpener
}

// NewFileHandler constructs a FileHandler.
func NewFileHandler(documents documentOpener) *FileHandler {
	return &FileHandler{documents: documents}
}

// Download godoc
// @Summary Download a document
// @Tags Files
// @Produce octet-stream
// @Param token path string true "Signed token"
// @Success 200 {file} binary
// @Failure 403 {object} response.Envelope
// @Router /files/{token} [get]
func (h *FileHandler) Download(c *gin.Context) {
	doc, err := h.documents.OpenDocument(c.Request.Context(), c.Param("token"))
	if err != nil {
		response.Error(c, err)
		return
	}
	defer doc.Body.Close()

	c.Header("Content-Type", doc.ContentType)
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", doc.Name))
	c.Header("Cache-Control", "private, no-store")
	c.Status(http.StatusOK)
	_, _ = io.Copy(c.Writer, doc.Body)
}
