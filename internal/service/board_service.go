package service

import (
	"context"
	"crypto/rand"
	"database/sql"
	"errors"
	"math/big"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/noah-isme/mtb-case-api/internal/models"
	"github.com/noah-isme/mtb-case-api/internal/repository"
	"github.com/noah-isme/mtb-case-api/pkg/database"
	appErrors "github.com/noah-isme/mtb-case-api/pkg/errors"
	"github.com/noah-isme/mtb-case-api/pkg/sanitize"
)

const (
	joinCodeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
	joinCodeLength   = 8
	joinCodeAttempts = 5
)

type boardRepository interface {
	Create(ctx context.Context, board *models.Board) error
	FindByID(ctx context.Context, id string) (*models.Board, error)
	FindByOwner(ctx context.Context, ownerID string) (*models.Board, error)
	FindByJoinCode(ctx context.Context, code string) (*models.Board, error)
	ListMemberOf(ctx context.Context, userID string) ([]models.Board, error)
	CountMembers(ctx context.Context, boardID string) (int, error)
	ListCaseIDs(ctx context.Context, boardID string) ([]string, error)
	IsMember(ctx context.Context, boardID, userID string) (bool, error)
	AddMember(ctx context.Context, boardID, userID string) error
	RemoveMember(ctx context.Context, boardID, userID string) (bool, error)
	ShareCase(ctx context.Context, boardID, caseID string) error
}

type boardCaseReader interface {
	FindByID(ctx context.Context, id string) (*models.Case, error)
	ListByBoard(ctx context.Context, boardID string) ([]models.Case, error)
}

// CreateBoardRequest names a new tumor board.
type CreateBoardRequest struct {
	Name string `json:"name" validate:"required,max=200"`
}

// JoinBoardRequest carries a join code.
type JoinBoardRequest struct {
	JoinCode string `json:"joinCode" validate:"required,max=64"`
}

// BoardService manages boards, memberships and case sharing.
type BoardService struct {
	repo      boardRepository
	cases     boardCaseReader
	validator *validator.Validate
	logger    *zap.Logger
	newCode   func() (string, error)
}

// NewBoardService constructs a BoardService.
func NewBoardService(repo boardRepository, cases boardCaseReader, validate *validator.Validate, logger *zap.Logger) *BoardService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BoardService{repo: repo, cases: cases, validator: validate, logger: logger, newCode: generateJoinCode}
}

// ListBoards returns the boards the user owns or joined.
func (s *BoardService) ListBoards(ctx context.Context, userID string) ([]models.Board, error) {
	if userID == "" {
		return nil, appErrors.ErrUnauthorized
	}
	boards := make([]models.Board, 0)
	owned, err := s.repo.FindByOwner(ctx, userID)
	switch {
	case err == nil:
		boards = append(boards, *owned)
	case !errors.Is(err, sql.ErrNoRows):
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load owned board")
	}
	member, err := s.repo.ListMemberOf(ctx, userID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list boards")
	}
	seen := make(map[string]struct{}, len(boards)+len(member))
	for _, b := range boards {
		seen[b.ID] = struct{}{}
	}
	for _, b := range member {
		if _, ok := seen[b.ID]; ok {
			continue
		}
		seen[b.ID] = struct{}{}
		boards = append(boards, b)
	}

	g, gctx := errgroup.WithContext(ctx)
	for i := range boards {
		board := &boards[i]
		g.Go(func() error { return s.annotate(gctx, board, userID) })
	}
	if err := g.Wait(); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load board details")
	}
	return boards, nil
}

// GetBoard returns a board with its shared cases. Only the owner and members may read it.
func (s *BoardService) GetBoard(ctx context.Context, userID, boardID string) (*models.BoardDetail, error) {
	board, err := s.accessibleBoard(ctx, userID, boardID)
	if err != nil {
		return nil, err
	}
	var cases []models.Case
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return s.annotate(gctx, board, userID) })
	g.Go(func() error {
		var err error
		cases, err = s.cases.ListByBoard(gctx, boardID)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load board")
	}
	return &models.BoardDetail{Board: *board, Cases: toListItems(cases)}, nil
}

// CreateBoard creates the caller's board. A user owns at most one.
func (s *BoardService) CreateBoard(ctx context.Context, userID string, req CreateBoardRequest) (*models.Board, error) {
	if userID == "" {
		return nil, appErrors.ErrUnauthorized
	}
	req.Name = sanitize.Line(req.Name)
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid board payload")
	}
	if _, err := s.repo.FindByOwner(ctx, userID); err == nil {
		return nil, appErrors.ErrBoardAlreadyOwned
	} else if !errors.Is(err, sql.ErrNoRows) {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check board ownership")
	}

	for attempt := 1; attempt <= joinCodeAttempts; attempt++ {
		code, err := s.newCode()
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to generate join code")
		}
		board := &models.Board{OwnerID: userID, Name: req.Name, JoinCode: code, CaseIDs: []string{}}
		err = s.repo.Create(ctx, board)
		switch {
		case err == nil:
			board.Role = models.BoardRoleOwner
			board.ExpertCount = 1
			s.logger.Info("board created", zap.String("board_id", board.ID), zap.String("owner_id", userID))
			return board, nil
		case database.IsUniqueViolation(err, repository.BoardOwnerConstraint):
			return nil, appErrors.ErrBoardAlreadyOwned
		case database.IsUniqueViolation(err, repository.BoardJoinCodeConstraint):
			s.logger.Debug("join code collision", zap.Int("attempt", attempt))
			continue
		default:
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create board")
		}
	}
	return nil, appErrors.Clone(appErrors.ErrConflict, "could not allocate a unique join code")
}

// JoinBoard adds the caller as a member of the board identified by code.
func (s *BoardService) JoinBoard(ctx context.Context, userID string, req JoinBoardRequest) (*models.Board, error) {
	if userID == "" {
		return nil, appErrors.ErrUnauthorized
	}
	req.JoinCode = strings.ToUpper(strings.TrimSpace(req.JoinCode))
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid join code")
	}
	board, err := s.repo.FindByJoinCode(ctx, req.JoinCode)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "no board matches this join code")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to look up join code")
	}
	if board.OwnerID == userID {
		return nil, appErrors.ErrSelfJoinForbidden
	}
	if err := s.repo.AddMember(ctx, board.ID, userID); err != nil {
		if database.IsUniqueViolation(err, repository.BoardMemberConstraint) {
			return nil, appErrors.ErrAlreadyMember
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to join board")
	}
	if err := s.annotate(ctx, board, userID); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load board")
	}
	s.logger.Info("board joined", zap.String("board_id", board.ID), zap.String("user_id", userID))
	return board, nil
}

// LeaveBoard removes the caller's membership. Leaving a board one is not a
// member of is a no-op.
func (s *BoardService) LeaveBoard(ctx context.Context, userID, boardID string) error {
	if userID == "" {
		return appErrors.ErrUnauthorized
	}
	board, err := s.repo.FindByID(ctx, boardID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load board")
	}
	if board.OwnerID == userID {
		return appErrors.Clone(appErrors.ErrForbidden, "owners cannot leave their own board")
	}
	removed, err := s.repo.RemoveMember(ctx, boardID, userID)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to leave board")
	}
	if removed {
		s.logger.Info("board left", zap.String("board_id", boardID), zap.String("user_id", userID))
	}
	return nil
}

// ShareCase links an owned case into a board the caller owns or belongs to.
func (s *BoardService) ShareCase(ctx context.Context, userID, boardID, caseID string) error {
	if _, err := s.accessibleBoard(ctx, userID, boardID); err != nil {
		return err
	}
	c, err := s.cases.FindByID(ctx, caseID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "case not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load case")
	}
	if c.OwnerID != userID {
		return appErrors.Clone(appErrors.ErrForbidden, "you can only share your own cases")
	}
	if err := s.repo.ShareCase(ctx, boardID, caseID); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to share case")
	}
	return nil
}

func (s *BoardService) accessibleBoard(ctx context.Context, userID, boardID string) (*models.Board, error) {
	if userID == "" {
		return nil, appErrors.ErrUnauthorized
	}
	board, err := s.repo.FindByID(ctx, boardID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "board not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load board")
	}
	if board.OwnerID == userID {
		return board, nil
	}
	member, err := s.repo.IsMember(ctx, boardID, userID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check board membership")
	}
	if !member {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "you are not a member of this board")
	}
	return board, nil
}

// annotate fills the derived fields of board for the viewing user. The join
// code is only shown to the owner.
func (s *BoardService) annotate(ctx context.Context, board *models.Board, userID string) error {
	count, err := s.repo.CountMembers(ctx, board.ID)
	if err != nil {
		return err
	}
	caseIDs, err := s.repo.ListCaseIDs(ctx, board.ID)
	if err != nil {
		return err
	}
	board.MemberCount = count
	board.ExpertCount = count + 1
	board.CaseIDs = caseIDs
	if board.OwnerID == userID {
		board.Role = models.BoardRoleOwner
	} else {
		board.Role = models.BoardRoleMember
		board.JoinCode = ""
	}
	return nil
}

func generateJoinCode() (string, error) {
	var b strings.Builder
	b.Grow(joinCodeLength)
	limit := big.NewInt(int64(len(joinCodeAlphabet)))
	for i := 0; i < joinCodeLength; i++ {
		n, err := rand.Int(rand.Reader, limit)
		if err != nil {
			return "", err
		}
		b.WriteByte(joinCodeAlphabet[n.Int64()])
	}
	return b.String(), nil
}
