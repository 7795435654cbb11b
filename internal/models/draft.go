package models

import "time"

// PendingFile is a staged upload or typed note awaiting case submission.
type PendingFile struct {
	ID          string       `json:"id"`
	Type        DocumentType `json:"type"`
	Name        string       `json:"name"`
	Size        string       `json:"size"`
	SizeBytes   int64        `json:"sizeBytes"`
	MimeType    string       `json:"mimeType,omitempty"`
	StoragePath string       `json:"storagePath"`
	RawText     *string      `json:"rawText,omitempty"`
	AddedAt     time.Time    `json:"addedAt"`
}

// Draft is a user's in-progress case creation state.
type Draft struct {
	UserID         string        `json:"userId"`
	PatientDetails *CaseDetails  `json:"patientDetails,omitempty"`
	PendingFiles   []PendingFile `json:"pendingFiles"`
	UpdatedAt      time.Time     `json:"updatedAt"`
}

// AddFilesResult reports a partially successful staging batch.
type AddFilesResult struct {
	Accepted       []PendingFile  `json:"accepted"`
	DuplicateNames []string       `json:"duplicateNames"`
	Rejected       []RejectedFile `json:"rejected"`
}

// RejectedFile is an upload that was not staged, with the error code that
// explains why.
type RejectedFile struct {
	Name   string `json:"name"`
	Code   string `json:"code"`
	Reason string `json:"reason"`
}

// CaseNameSuggestion is the advisory name for a new case.
type CaseNameSuggestion struct {
	CaseName string `json:"caseName"`
}
