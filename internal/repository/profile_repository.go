package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/mtb-case-api/internal/models"
)

// ProfileRepository stores clinician profile rows keyed by user id.
type ProfileRepository struct {
	db *sqlx.DB
}

// NewProfileRepository constructs the repository.
func NewProfileRepository(db *sqlx.DB) *ProfileRepository {
	return &ProfileRepository{db: db}
}

// FindByUserID returns sql.ErrNoRows when no profile was written yet.
func (r *ProfileRepository) FindByUserID(ctx context.Context, userID string) (*models.Profile, error) {
	const query = `SELECT id, full_name, profession, hospital_name, phone_number, updated_at FROM profiles WHERE id = $1`
	var row profileRow
	if err := r.db.GetContext(ctx, &row, query, userID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("find profile: %w", err)
	}
	profile := row.toDomain()
	return &profile, nil
}

// Upsert writes the profile, replacing every column of an existing row.
func (r *ProfileRepository) Upsert(ctx context.Context, profile *models.Profile) error {
	profile.UpdatedAt = time.Now().UTC()
	const query = `INSERT INTO profiles (id, full_name, profession, hospital_name, phone_number, updated_at)
VALUES (:id, :full_name, :profession, :hospital_name, :phone_number, :updated_at)
ON CONFLICT (id) DO UPDATE SET full_name = EXCLUDED.full_name, profession = EXCLUDED.profession,
hospital_name = EXCLUDED.hospital_name, phone_number = EXCLUDED.phone_number, updated_at = EXCLUDED.updated_at`
	if _, err := r.db.NamedExecContext(ctx, query, profileToRow(*profile)); err != nil {
		return fmt.Errorf("upsert profile: %w", err)
	}
	return nil
}
