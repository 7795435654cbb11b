package models

import "time"

// Opinion is a reviewer's assessment. There is at most one per case and author.
type Opinion struct {
	ID        string    `json:"id"`
	CaseID    string    `json:"caseId"`
	AuthorID  string    `json:"authorUserId"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// OpinionView adds the author's display name.
type OpinionView struct {
	Opinion
	AuthorName *string `json:"authorName,omitempty"`
}
