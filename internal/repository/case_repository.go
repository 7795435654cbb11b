package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/mtb-case-api/internal/models"
	"github.com/noah-isme/mtb-case-api/pkg/database"
)

// CaseNameConstraint is the unique index guarding case names.
const CaseNameConstraint = "cases_case_name_key"

// CaseRepository persists cases together with their documents, questions and sharing rows.
type CaseRepository struct {
	db *sqlx.DB
}

// NewCaseRepository constructs the repository.
func NewCaseRepository(db *sqlx.DB) *CaseRepository {
	return &CaseRepository{db: db}
}

// Create writes the case graph in a single transaction. IDs and timestamps
// left empty are filled in on c.
func (r *CaseRepository) Create(ctx context.Context, c *models.Case, docs []models.NewDocument, questions []string, boardIDs []string) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}

	return database.WithTx(ctx, r.db, func(tx *sqlx.Tx) error {
		const insertCase = `INSERT INTO cases (` + caseColumns + `)
VALUES (:id, :owner_id, :case_name, :patient_name, :age, :sex, :cancer_type, :created_at, :summary, :processing, :treatment_plan, :follow_up, :finalized)`
		if _, err := tx.NamedExecContext(ctx, insertCase, caseToRow(*c)); err != nil {
			return fmt.Errorf("insert case: %w", err)
		}

		if len(docs) > 0 {
			rows := make([]documentRow, 0, len(docs))
			for _, d := range docs {
				id := d.ID
				if id == "" {
					id = uuid.NewString()
				}
				rows = append(rows, documentToRow(models.Document{
					ID:          id,
					CaseID:      c.ID,
					Type:        d.Type,
					Name:        d.Name,
					Size:        d.Size,
					StoragePath: d.StoragePath,
					MimeType:    d.MimeType,
					CreatedAt:   c.CreatedAt,
				}))
			}
			const insertDocs = `INSERT INTO case_documents (` + documentColumns + `)
VALUES (:id, :case_id, :type, :name, :size, :storage_path, :mime_type, :created_at)`
			if _, err := tx.NamedExecContext(ctx, insertDocs, rows); err != nil {
				return fmt.Errorf("insert case documents: %w", err)
			}
		}

		if len(questions) > 0 {
			rows := make([]questionRow, 0, len(questions))
			for i, q := range questions {
				rows = append(rows, questionToRow(models.Question{ID: uuid.NewString(), CaseID: c.ID, Text: q}, i))
			}
			const insertQuestions = `INSERT INTO case_questions (id, case_id, question, position) VALUES (:id, :case_id, :question, :position)`
			if _, err := tx.NamedExecContext(ctx, insertQuestions, rows); err != nil {
				return fmt.Errorf("insert case questions: %w", err)
			}
		}

		for _, boardID := range boardIDs {
			const insertShare = `INSERT INTO mtb_cases (mtb_id, case_id, created_at) VALUES ($1, $2, $3) ON CONFLICT (mtb_id, case_id) DO NOTHING`
			if _, err := tx.ExecContext(ctx, insertShare, boardID, c.ID, c.CreatedAt); err != nil {
				return fmt.Errorf("share case with board %s: %w", boardID, err)
			}
		}
		return nil
	})
}

// ExistsByName reports whether a case already uses name.
func (r *CaseRepository) ExistsByName(ctx context.Context, name string) (bool, error) {
	const query = `SELECT EXISTS(SELECT 1 FROM cases WHERE case_name = $1)`
	var exists bool
	if err := r.db.GetContext(ctx, &exists, query, name); err != nil {
		return false, fmt.Errorf("check case name: %w", err)
	}
	return exists, nil
}

// CountCreatedBetween counts cases of every owner created in [from, to).
func (r *CaseRepository) CountCreatedBetween(ctx context.Context, from, to time.Time) (int, error) {
	const query = `SELECT COUNT(*) FROM cases WHERE created_at >= $1 AND created_at < $2`
	var count int
	if err := r.db.GetContext(ctx, &count, query, from, to); err != nil {
		return 0, fmt.Errorf("count cases created between: %w", err)
	}
	return count, nil
}

// FindByID returns sql.ErrNoRows when the case does not exist.
func (r *CaseRepository) FindByID(ctx context.Context, id string) (*models.Case, error) {
	query := `SELECT ` + caseColumns + ` FROM cases WHERE id = $1`
	var row caseRow
	if err := r.db.GetContext(ctx, &row, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("find case: %w", err)
	}
	c := row.toDomain()
	return &c, nil
}

// ListByOwner returns the owner's cases, newest first.
func (r *CaseRepository) ListByOwner(ctx context.Context, ownerID string) ([]models.Case, error) {
	query := `SELECT ` + caseColumns + ` FROM cases WHERE owner_id = $1 ORDER BY created_at DESC`
	var rows []caseRow
	if err := r.db.SelectContext(ctx, &rows, query, ownerID); err != nil {
		return nil, fmt.Errorf("list owned cases: %w", err)
	}
	return casesToDomain(rows), nil
}

// ListByBoard returns the cases shared into a board, newest first.
func (r *CaseRepository) ListByBoard(ctx context.Context, boardID string) ([]models.Case, error) {
	query := `SELECT c.` + strings.ReplaceAll(caseColumns, ", ", ", c.") + ` FROM cases c
JOIN mtb_cases mc ON mc.case_id = c.id
WHERE mc.mtb_id = $1 ORDER BY c.created_at DESC`
	var rows []caseRow
	if err := r.db.SelectContext(ctx, &rows, query, boardID); err != nil {
		return nil, fmt.Errorf("list board cases: %w", err)
	}
	return casesToDomain(rows), nil
}

// Update applies the non-nil fields of upd. A non-nil summary also clears the
// processing flag. Returns sql.ErrNoRows when the case does not exist.
func (r *CaseRepository) Update(ctx context.Context, id string, upd models.CaseUpdate) (*models.Case, error) {
	sets := make([]string, 0, 5)
	args := make([]interface{}, 0, 6)
	add := func(column string, value interface{}) {
		args = append(args, value)
		sets = append(sets, fmt.Sprintf("%s = $%d", column, len(args)))
	}
	if upd.Summary != nil {
		add("summary", *upd.Summary)
		add("processing", false)
	}
	if upd.TreatmentPlan != nil {
		add("treatment_plan", *upd.TreatmentPlan)
	}
	if upd.FollowUp != nil {
		add("follow_up", *upd.FollowUp)
	}
	if upd.Finalized != nil {
		add("finalized", *upd.Finalized)
	}
	if len(sets) == 0 {
		return r.FindByID(ctx, id)
	}

	args = append(args, id)
	query := fmt.Sprintf(`UPDATE cases SET %s WHERE id = $%d RETURNING %s`, strings.Join(sets, ", "), len(args), caseColumns)
	var row caseRow
	if err := r.db.GetContext(ctx, &row, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("update case: %w", err)
	}
	c := row.toDomain()
	return &c, nil
}

// MarkProcessing resets the summary so the case reads as Processing again.
// Only pending or failed cases are touched; sql.ErrNoRows otherwise.
func (r *CaseRepository) MarkProcessing(ctx context.Context, id string) error {
	const query = `UPDATE cases SET summary = NULL, processing = TRUE WHERE id = $1 AND (summary IS NULL OR summary = $2)`
	res, err := r.db.ExecContext(ctx, query, id, models.CaseFailedSummary)
	if err != nil {
		return fmt.Errorf("mark case processing: %w", err)
	}
	if affected, err := res.RowsAffected(); err == nil && affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// Delete removes the case and everything referencing it, children first, in
// one transaction. Returns sql.ErrNoRows when no case row was deleted.
func (r *CaseRepository) Delete(ctx context.Context, id string) error {
	steps := []struct {
		name  string
		query string
	}{
		{"opinions", `DELETE FROM case_opinions WHERE case_id = $1`},
		{"questions", `DELETE FROM case_questions WHERE case_id = $1`},
		{"documents", `DELETE FROM case_documents WHERE case_id = $1`},
		{"board shares", `DELETE FROM mtb_cases WHERE case_id = $1`},
	}
	return database.WithTx(ctx, r.db, func(tx *sqlx.Tx) error {
		for _, step := range steps {
			if _, err := tx.ExecContext(ctx, step.query, id); err != nil {
				return fmt.Errorf("delete case %s: %w", step.name, err)
			}
		}
		res, err := tx.ExecContext(ctx, `DELETE FROM cases WHERE id = $1`, id)
		if err != nil {
			return fmt.Errorf("delete case: %w", err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("delete case rows affected: %w", err)
		}
		if affected == 0 {
			return sql.ErrNoRows
		}
		return nil
	})
}

// ListDocuments returns the documents attached to a case.
func (r *CaseRepository) ListDocuments(ctx context.Context, caseID string) ([]models.Document, error) {
	query := `SELECT ` + documentColumns + ` FROM case_documents WHERE case_id = $1 ORDER BY created_at, name`
	var rows []documentRow
	if err := r.db.SelectContext(ctx, &rows, query, caseID); err != nil {
		return nil, fmt.Errorf("list case documents: %w", err)
	}
	docs := make([]models.Document, 0, len(rows))
	for _, row := range rows {
		docs = append(docs, row.toDomain())
	}
	return docs, nil
}

// FindDocument returns a single document of a case.
func (r *CaseRepository) FindDocument(ctx context.Context, caseID, documentID string) (*models.Document, error) {
	query := `SELECT ` + documentColumns + ` FROM case_documents WHERE case_id = $1 AND id = $2`
	var row documentRow
	if err := r.db.GetContext(ctx, &row, query, caseID, documentID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("find case document: %w", err)
	}
	doc := row.toDomain()
	return &doc, nil
}

// ListQuestions returns the questions of a case in insertion order.
func (r *CaseRepository) ListQuestions(ctx context.Context, caseID string) ([]models.Question, error) {
	const query = `SELECT id, case_id, question, position FROM case_questions WHERE case_id = $1 ORDER BY position`
	var rows []questionRow
	if err := r.db.SelectContext(ctx, &rows, query, caseID); err != nil {
		return nil, fmt.Errorf("list case questions: %w", err)
	}
	questions := make([]models.Question, 0, len(rows))
	for _, row := range rows {
		questions = append(questions, row.toDomain())
	}
	return questions, nil
}

// SharedWithUser reports whether the case is shared into a board the user owns or belongs to.
func (r *CaseRepository) SharedWithUser(ctx context.Context, caseID, userID string) (bool, error) {
	const query = `SELECT EXISTS(
SELECT 1 FROM mtb_cases mc
JOIN mtbs m ON m.id = mc.mtb_id
LEFT JOIN mtb_members mm ON mm.mtb_id = m.id AND mm.user_id = $2
WHERE mc.case_id = $1 AND (m.owner_id = $2 OR mm.user_id IS NOT NULL))`
	var shared bool
	if err := r.db.GetContext(ctx, &shared, query, caseID, userID); err != nil {
		return false, fmt.Errorf("check case sharing: %w", err)
	}
	return shared, nil
}

func casesToDomain(rows []caseRow) []models.Case {
	cases := make([]models.Case, 0, len(rows))
	for _, row := range rows {
		cases = append(cases, row.toDomain())
	}
	return cases
}
