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

const opinionColumns = `id, case_id, author_id, content, created_at, updated_at`

// OpinionRepository stores reviewer opinions on cases.
type OpinionRepository struct {
	db *sqlx.DB
}

// NewOpinionRepository constructs the repository.
func NewOpinionRepository(db *sqlx.DB) *OpinionRepository {
	return &OpinionRepository{db: db}
}

// Upsert inserts the author's opinion on a case or replaces its content when
// one already exists. The stored row is returned.
func (r *OpinionRepository) Upsert(ctx context.Context, caseID, authorID, content string) (*models.Opinion, error) {
	now := time.Now().UTC()
	const query = `INSERT INTO case_opinions (id, case_id, author_id, content, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $5)
ON CONFLICT (case_id, author_id) DO UPDATE SET content = EXCLUDED.content, updated_at = EXCLUDED.updated_at
RETURNING ` + opinionColumns
	var row opinionRow
	if err := r.db.GetContext(ctx, &row, query, uuid.NewString(), caseID, authorID, content, now); err != nil {
		return nil, fmt.Errorf("upsert opinion: %w", err)
	}
	opinion := row.toDomain()
	return &opinion, nil
}

// FindByID returns sql.ErrNoRows when the opinion does not exist.
func (r *OpinionRepository) FindByID(ctx context.Context, id string) (*models.Opinion, error) {
	const query = `SELECT ` + opinionColumns + ` FROM case_opinions WHERE id = $1`
	var row opinionRow
	if err := r.db.GetContext(ctx, &row, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("find opinion: %w", err)
	}
	opinion := row.toDomain()
	return &opinion, nil
}

// UpdateContent rewrites an opinion's content.
func (r *OpinionRepository) UpdateContent(ctx context.Context, id, content string) (*models.Opinion, error) {
	const query = `UPDATE case_opinions SET content = $2, updated_at = $3 WHERE id = $1 RETURNING ` + opinionColumns
	var row opinionRow
	if err := r.db.GetContext(ctx, &row, query, id, content, time.Now().UTC()); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("update opinion: %w", err)
	}
	opinion := row.toDomain()
	return &opinion, nil
}

// ListByCase returns the opinions on a case, oldest first, with the author's
// profile name or account name.
func (r *OpinionRepository) ListByCase(ctx context.Context, caseID string) ([]models.OpinionView, error) {
	const query = `SELECT o.id, o.case_id, o.author_id, o.content, o.created_at, o.updated_at,
NULLIF(COALESCE(p.full_name, u.full_name), '') AS author_name
FROM case_opinions o
LEFT JOIN profiles p ON p.id = o.author_id
LEFT JOIN users u ON u.id = o.author_id
WHERE o.case_id = $1
ORDER BY o.created_at`
	var rows []opinionRow
	if err := r.db.SelectContext(ctx, &rows, query, caseID); err != nil {
		return nil, fmt.Errorf("list case opinions: %w", err)
	}
	views := make([]models.OpinionView, 0, len(rows))
	for _, row := range rows {
		views = append(views, row.toView())
	}
	return views, nil
}
