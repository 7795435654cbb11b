package models

import "time"

// CaseFailedSummary is the summary written when processing could not produce one.
const CaseFailedSummary = "Case creation failed"

// CaseStatus is derived from the summary and never stored.
type CaseStatus string

const (
	CaseStatusProcessing CaseStatus = "Processing"
	CaseStatusReady      CaseStatus = "Ready"
	CaseStatusFailed     CaseStatus = "Failed"
)

// StatusOf derives the processing status from a summary. The processing flag
// stored alongside the summary plays no part.
func StatusOf(summary *string) CaseStatus {
	switch {
	case summary == nil:
		return CaseStatusProcessing
	case *summary == CaseFailedSummary:
		return CaseStatusFailed
	default:
		return CaseStatusReady
	}
}

// Case is a patient record owned by exactly one user.
type Case struct {
	ID            string    `json:"id"`
	OwnerID       string    `json:"ownerId"`
	CaseName      string    `json:"caseName"`
	PatientName   *string   `json:"patientName,omitempty"`
	Age           int       `json:"age"`
	Sex           string    `json:"sex"`
	CancerType    string    `json:"cancerType"`
	CreatedAt     time.Time `json:"createdAt"`
	Summary       *string   `json:"summary"`
	Processing    bool      `json:"processing"`
	TreatmentPlan *string   `json:"treatmentPlan,omitempty"`
	FollowUp      *string   `json:"followUp,omitempty"`
	Finalized     bool      `json:"finalized"`
}

// Status derives the case status from its summary.
func (c Case) Status() CaseStatus {
	return StatusOf(c.Summary)
}

// CaseDetails are the patient fields captured in the first wizard step.
type CaseDetails struct {
	CaseName    string  `json:"caseName" validate:"required,max=200"`
	PatientName *string `json:"patientName,omitempty" validate:"omitempty,max=200"`
	Age         *int    `json:"age" validate:"required,gte=0,lte=150"`
	Sex         string  `json:"sex" validate:"required,max=50"`
	CancerType  string  `json:"cancerType" validate:"required,max=200"`
}

// CaseUpdate carries the owner editable fields. A nil pointer leaves the
// column untouched.
type CaseUpdate struct {
	Summary       *string `json:"summary"`
	TreatmentPlan *string `json:"treatmentPlan"`
	FollowUp      *string `json:"followUp"`
	Finalized     *bool   `json:"finalized"`
}

// Empty reports whether the update changes nothing.
func (u CaseUpdate) Empty() bool {
	return u.Summary == nil && u.TreatmentPlan == nil && u.FollowUp == nil && u.Finalized == nil
}

// CaseCreated is returned once the case graph is durable.
type CaseCreated struct {
	CaseID    string    `json:"caseId"`
	CreatedAt time.Time `json:"createdAt"`
}

// CaseListItem is a case annotated with its derived status.
type CaseListItem struct {
	Case
	Status CaseStatus `json:"status"`
}

// CaseDetail aggregates a case with its documents, questions and opinions.
type CaseDetail struct {
	Case
	Status    CaseStatus    `json:"status"`
	Documents []Document    `json:"documents"`
	Questions []Question    `json:"questions"`
	Opinions  []OpinionView `json:"opinions"`
	IsOwner   bool          `json:"isOwner"`
}
