package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/mtb-case-api/internal/models"
	"github.com/noah-isme/mtb-case-api/internal/service"
	appErrors "github.com/noah-isme/mtb-case-api/pkg/errors"
	"github.com/noah-isme/mtb-case-api/pkg/response"
)

type boardService interface {
	ListBoards(ctx context.Context, userID string) ([]models.Board, error)
	GetBoard(ctx context.Context, userID, boardID string) (*models.BoardDetail, error)
	CreateBoard(ctx context.Context, userID string, req service.CreateBoardRequest) (*models.Board, error)
	JoinBoard(ctx context.Context, userID string, req service.JoinBoardRequest) (*models.Board, error)
	LeaveBoard(ctx context.Context, userID, boardID string) error
	ShareCase(ctx context.Context, userID, boardID, caseID string) error
}

// ShareCaseRequest names the case to share into a board.
type ShareCaseRequest struct {
	CaseID string `json:"caseId" binding:"required"`
}

// BoardHandler exposes tumor boards.
type BoardHandler struct {
	service boardService
}

// NewBoardHandler constructs a BoardHandler.
func NewBoardHandler(svc boardService) *BoardHandler {
	return &BoardHandler{service: svc}
}

// List godoc
// @Summary List my boards
// @Description Boards the caller owns or belongs to
// @Tags Boards
// @Produce json
// @Security BearerAuth
// @Success 200 {object} response.Envelope
// @Router /boards [get]
func (h *BoardHandler) List(c *gin.Context) {
	boards, err := h.service.ListBoards(c.Request.Context(), currentUserID(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, boards, nil)
}

// Get godoc
// @Summary Board detail
// @Tags Boards
// @Produce json
// @Security BearerAuth
// @Param id path string true "Board ID"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /boards/{id} [get]
func (h *BoardHandler) Get(c *gin.Context) {
	board, err := h.service.GetBoard(c.Request.Context(), currentUserID(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, board, nil)
}

// Create godoc
// @Summary Create board
// @Description Each user may own one board
// @Tags Boards
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param payload body service.CreateBoardRequest true "Board"
// @Success 201 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /boards [post]
func (h *BoardHandler) Create(c *gin.Context) {
	var req service.CreateBoardRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid board payload"))
		return
	}
	board, err := h.service.CreateBoard(c.Request.Context(), currentUserID(c), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, board)
}

// Join godoc
// @Summary Join board
// @Tags Boards
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param payload body service.JoinBoardRequest true "Join code"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /boards/join [post]
func (h *BoardHandler) Join(c *gin.Context) {
	var req service.JoinBoardRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid join payload"))
		return
	}
	board, err := h.service.JoinBoard(c.Request.Context(), currentUserID(c), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, board, nil)
}

// Leave godoc
// @Summary Leave board
// @Tags Boards
// @Security BearerAuth
// @Param id path string true "Board ID"
// @Success 204
// @Failure 403 {object} response.Envelope
// @Router /boards/{id}/membership [delete]
func (h *BoardHandler) Leave(c *gin.Context) {
	if err := h.service.LeaveBoard(c.Request.Context(), currentUserID(c), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// ShareCase godoc
// @Summary Share case with board
// @Tags Boards
// @Accept json
// @Security BearerAuth
// @Param id path string true "Board ID"
// @Param payload body ShareCaseRequest true "Case"
// @Success 204
// @Router /boards/{id}/cases [post]
func (h *BoardHandler) ShareCase(c *gin.Context) {
	var req ShareCaseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "caseId is required"))
		return
	}
	if err := h.service.ShareCase(c.Request.Context(), currentUserID(c), c.Param("id"), req.CaseID); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
