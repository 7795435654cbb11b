package models

// Question is a prompt the case owner wants reviewers to address.
type Question struct {
	ID     string `json:"id"`
	CaseID string `json:"caseId"`
	Text   string `json:"text"`
}
