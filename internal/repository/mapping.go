package repository

import (
	"time"

	"github.com/noah-isme/mtb-case-api/internal/models"
)

// Row types mirror the snake_case store schema. Every entity has a pure
// toRow/toDomain pair so the camelCase model and the columns stay in sync.

type caseRow struct {
	ID            string    `db:"id"`
	OwnerID       string    `db:"owner_id"`
	CaseName      string    `db:"case_name"`
	PatientName   *string   `db:"patient_name"`
	Age           int       `db:"age"`
	Sex           string    `db:"sex"`
	CancerType    string    `db:"cancer_type"`
	CreatedAt     time.Time `db:"created_at"`
	Summary       *string   `db:"summary"`
	Processing    bool      `db:"processing"`
	TreatmentPlan *string   `db:"treatment_plan"`
	FollowUp      *string   `db:"follow_up"`
	Finalized     bool      `db:"finalized"`
}

const caseColumns = `id, owner_id, case_name, patient_name, age, sex, cancer_type, created_at, summary, processing, treatment_plan, follow_up, finalized`

func caseToRow(c models.Case) caseRow {
	return caseRow{
		ID:            c.ID,
		OwnerID:       c.OwnerID,
		CaseName:      c.CaseName,
		PatientName:   c.PatientName,
		Age:           c.Age,
		Sex:           c.Sex,
		CancerType:    c.CancerType,
		CreatedAt:     c.CreatedAt,
		Summary:       c.Summary,
		Processing:    c.Processing,
		TreatmentPlan: c.TreatmentPlan,
		FollowUp:      c.FollowUp,
		Finalized:     c.Finalized,
	}
}

func (r caseRow) toDomain() models.Case {
	return models.Case{
		ID:            r.ID,
		OwnerID:       r.OwnerID,
		CaseName:      r.CaseName,
		PatientName:   r.PatientName,
		Age:           r.Age,
		Sex:           r.Sex,
		CancerType:    r.CancerType,
		CreatedAt:     r.CreatedAt,
		Summary:       r.Summary,
		Processing:    r.Processing,
		TreatmentPlan: r.TreatmentPlan,
		FollowUp:      r.FollowUp,
		Finalized:     r.Finalized,
	}
}

type documentRow struct {
	ID          string    `db:"id"`
	CaseID      string    `db:"case_id"`
	Type        string    `db:"type"`
	Name        string    `db:"name"`
	Size        string    `db:"size"`
	StoragePath *string   `db:"storage_path"`
	MimeType    *string   `db:"mime_type"`
	CreatedAt   time.Time `db:"created_at"`
}

const documentColumns = `id, case_id, type, name, size, storage_path, mime_type, created_at`

func documentToRow(d models.Document) documentRow {
	return documentRow{
		ID:          d.ID,
		CaseID:      d.CaseID,
		Type:        string(d.Type),
		Name:        d.Name,
		Size:        d.Size,
		StoragePath: d.StoragePath,
		MimeType:    d.MimeType,
		CreatedAt:   d.CreatedAt,
	}
}

func (r documentRow) toDomain() models.Document {
	return models.Document{
		ID:          r.ID,
		CaseID:      r.CaseID,
		Type:        models.DocumentType(r.Type),
		Name:        r.Name,
		Size:        r.Size,
		StoragePath: r.StoragePath,
		MimeType:    r.MimeType,
		CreatedAt:   r.CreatedAt,
	}
}

type questionRow struct {
	ID       string `db:"id"`
	CaseID   string `db:"case_id"`
	Question string `db:"question"`
	Position int    `db:"position"`
}

func questionToRow(q models.Question, position int) questionRow {
	return questionRow{ID: q.ID, CaseID: q.CaseID, Question: q.Text, Position: position}
}

func (r questionRow) toDomain() models.Question {
	return models.Question{ID: r.ID, CaseID: r.CaseID, Text: r.Question}
}

type opinionRow struct {
	ID         string    `db:"id"`
	CaseID     string    `db:"case_id"`
	AuthorID   string    `db:"author_id"`
	Content    string    `db:"content"`
	CreatedAt  time.Time `db:"created_at"`
	UpdatedAt  time.Time `db:"updated_at"`
	AuthorName *string   `db:"author_name"`
}

func opinionToRow(o models.Opinion) opinionRow {
	return opinionRow{
		ID:        o.ID,
		CaseID:    o.CaseID,
		AuthorID:  o.AuthorID,
		Content:   o.Content,
		CreatedAt: o.CreatedAt,
		UpdatedAt: o.UpdatedAt,
	}
}

func (r opinionRow) toDomain() models.Opinion {
	return models.Opinion{
		ID:        r.ID,
		CaseID:    r.CaseID,
		AuthorID:  r.AuthorID,
		Content:   r.Content,
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}
}

func (r opinionRow) toView() models.OpinionView {
	return models.OpinionView{Opinion: r.toDomain(), AuthorName: r.AuthorName}
}

type boardRow struct {
	ID        string    `db:"id"`
	OwnerID   string    `db:"owner_id"`
	Name      string    `db:"name"`
	JoinCode  string    `db:"join_code"`
	CreatedAt time.Time `db:"created_at"`
}

const boardColumns = `id, owner_id, name, join_code, created_at`

func boardToRow(b models.Board) boardRow {
	return boardRow{ID: b.ID, OwnerID: b.OwnerID, Name: b.Name, JoinCode: b.JoinCode, CreatedAt: b.CreatedAt}
}

func (r boardRow) toDomain() models.Board {
	return models.Board{ID: r.ID, OwnerID: r.OwnerID, Name: r.Name, JoinCode: r.JoinCode, CreatedAt: r.CreatedAt, CaseIDs: []string{}}
}

type profileRow struct {
	ID           string    `db:"id"`
	FullName     *string   `db:"full_name"`
	Profession   *string   `db:"profession"`
	HospitalName *string   `db:"hospital_name"`
	PhoneNumber  *string   `db:"phone_number"`
	UpdatedAt    time.Time `db:"updated_at"`
}

func profileToRow(p models.Profile) profileRow {
	return profileRow{
		ID:           p.UserID,
		FullName:     p.FullName,
		Profession:   p.Profession,
		HospitalName: p.HospitalName,
		PhoneNumber:  p.PhoneNumber,
		UpdatedAt:    p.UpdatedAt,
	}
}

func (r profileRow) toDomain() models.Profile {
	return models.Profile{
		UserID:       r.ID,
		FullName:     r.FullName,
		Profession:   r.Profession,
		HospitalName: r.HospitalName,
		PhoneNumber:  r.PhoneNumber,
		UpdatedAt:    r.UpdatedAt,
	}
}
