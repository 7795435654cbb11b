package models

import "time"

// DocumentType distinguishes uploaded files from hand-typed notes.
type DocumentType string

const (
	DocumentTypeClinical DocumentType = "Clinical"
	DocumentTypeText     DocumentType = "Text"
)

// Document is a file attached to a case at submission time.
type Document struct {
	ID          string       `json:"id"`
	CaseID      string       `json:"caseId"`
	Type        DocumentType `json:"type"`
	Name        string       `json:"name"`
	Size        string       `json:"size"`
	StoragePath *string      `json:"storagePath,omitempty"`
	MimeType    *string      `json:"mimeType,omitempty"`
	CreatedAt   time.Time    `json:"createdAt"`
}

// NewDocument describes a document to be written with a new case.
type NewDocument struct {
	ID          string
	Type        DocumentType
	Name        string
	Size        string
	StoragePath *string
	MimeType    *string
}

// DocumentLink is a time-limited download URL.
type DocumentLink struct {
	URL       string    `json:"url"`
	ExpiresAt time.Time `json:"expiresAt"`
}
