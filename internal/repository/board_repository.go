package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/mtb-case-api/internal/models"
)

// Constraint names surfaced as domain conflicts by the board service.
const (
	BoardOwnerConstraint    = "mtbs_owner_id_key"
	BoardJoinCodeConstraint = "mtbs_join_code_key"
	BoardMemberConstraint   = "mtb_members_pkey"
)

// BoardRepository stores tumor boards, their members and shared cases.
type BoardRepository struct {
	db *sqlx.DB
}

// NewBoardRepository constructs the repository.
func NewBoardRepository(db *sqlx.DB) *BoardRepository {
	return &BoardRepository{db: db}
}

// Create inserts a board. Unique violations are returned untouched so callers
// can map them by constraint name.
func (r *BoardRepository) Create(ctx context.Context, board *models.Board) error {
	if board.ID == "" {
		board.ID = uuid.NewString()
	}
	if board.CreatedAt.IsZero() {
		board.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO mtbs (` + boardColumns + `) VALUES (:id, :owner_id, :name, :join_code, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, boardToRow(*board)); err != nil {
		return fmt.Errorf("create board: %w", err)
	}
	return nil
}

// FindByID returns sql.ErrNoRows when the board does not exist.
func (r *BoardRepository) FindByID(ctx context.Context, id string) (*models.Board, error) {
	return r.findOne(ctx, `id = $1`, id)
}

// FindByOwner returns sql.ErrNoRows when the user owns no board.
func (r *BoardRepository) FindByOwner(ctx context.Context, ownerID string) (*models.Board, error) {
	return r.findOne(ctx, `owner_id = $1`, ownerID)
}

// FindByJoinCode returns sql.ErrNoRows for unknown codes.
func (r *BoardRepository) FindByJoinCode(ctx context.Context, code string) (*models.Board, error) {
	return r.findOne(ctx, `join_code = $1`, code)
}

func (r *BoardRepository) findOne(ctx context.Context, where string, arg interface{}) (*models.Board, error) {
	query := `SELECT ` + boardColumns + ` FROM mtbs WHERE ` + where + ` LIMIT 1`
	var row boardRow
	if err := r.db.GetContext(ctx, &row, query, arg); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("find board: %w", err)
	}
	board := row.toDomain()
	return &board, nil
}

// ListMemberOf returns the boards the user joined, excluding any they own.
func (r *BoardRepository) ListMemberOf(ctx context.Context, userID string) ([]models.Board, error) {
	const query = `SELECT m.id, m.owner_id, m.name, m.join_code, m.created_at FROM mtbs m
JOIN mtb_members mm ON mm.mtb_id = m.id
WHERE mm.user_id = $1 AND m.owner_id <> $1
ORDER BY mm.joined_at DESC`
	var rows []boardRow
	if err := r.db.SelectContext(ctx, &rows, query, userID); err != nil {
		return nil, fmt.Errorf("list member boards: %w", err)
	}
	boards := make([]models.Board, 0, len(rows))
	for _, row := range rows {
		boards = append(boards, row.toDomain())
	}
	return boards, nil
}

// CountMembers counts the joined members of a board, the owner excluded.
func (r *BoardRepository) CountMembers(ctx context.Context, boardID string) (int, error) {
	const query = `SELECT COUNT(*) FROM mtb_members WHERE mtb_id = $1`
	var count int
	if err := r.db.GetContext(ctx, &count, query, boardID); err != nil {
		return 0, fmt.Errorf("count board members: %w", err)
	}
	return count, nil
}

// ListCaseIDs returns the ids of cases shared into a board.
func (r *BoardRepository) ListCaseIDs(ctx context.Context, boardID string) ([]string, error) {
	const query = `SELECT case_id FROM mtb_cases WHERE mtb_id = $1 ORDER BY created_at DESC`
	ids := []string{}
	if err := r.db.SelectContext(ctx, &ids, query, boardID); err != nil {
		return nil, fmt.Errorf("list board case ids: %w", err)
	}
	return ids, nil
}

// IsMember reports whether the user joined the board.
func (r *BoardRepository) IsMember(ctx context.Context, boardID, userID string) (bool, error) {
	const query = `SELECT EXISTS(SELECT 1 FROM mtb_members WHERE mtb_id = $1 AND user_id = $2)`
	var member bool
	if err := r.db.GetContext(ctx, &member, query, boardID, userID); err != nil {
		return false, fmt.Errorf("check board membership: %w", err)
	}
	return member, nil
}

// AddMember inserts a membership row. A duplicate surfaces as a unique
// violation on BoardMemberConstraint.
func (r *BoardRepository) AddMember(ctx context.Context, boardID, userID string) error {
	const query = `INSERT INTO mtb_members (mtb_id, user_id, joined_at) VALUES ($1, $2, $3)`
	if _, err := r.db.ExecContext(ctx, query, boardID, userID, time.Now().UTC()); err != nil {
		return fmt.Errorf("add board member: %w", err)
	}
	return nil
}

// RemoveMember deletes a membership row and reports whether one existed.
func (r *BoardRepository) RemoveMember(ctx context.Context, boardID, userID string) (bool, error) {
	const query = `DELETE FROM mtb_members WHERE mtb_id = $1 AND user_id = $2`
	res, err := r.db.ExecContext(ctx, query, boardID, userID)
	if err != nil {
		return false, fmt.Errorf("remove board member: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("remove board member rows affected: %w", err)
	}
	return affected > 0, nil
}

// ShareCase links a case into a board. Repeated shares are no-ops.
func (r *BoardRepository) ShareCase(ctx context.Context, boardID, caseID string) error {
	const query = `INSERT INTO mtb_cases (mtb_id, case_id, created_at) VALUES ($1, $2, $3) ON CONFLICT (mtb_id, case_id) DO NOTHING`
	if _, err := r.db.ExecContext(ctx, query, boardID, caseID, time.Now().UTC()); err != nil {
		return fmt.Errorf("share case: %w", err)
	}
	return nil
}
