package models

import "time"

// BoardRole describes how the caller relates to a board.
type BoardRole string

const (
	BoardRoleOwner  BoardRole = "owner"
	BoardRoleMember BoardRole = "member"
)

// Board is a tumor board ("MTB"). MemberCount, ExpertCount and CaseIDs are derived.
type Board struct {
	ID          string    `json:"id"`
	OwnerID     string    `json:"ownerId"`
	Name        string    `json:"name"`
	JoinCode    string    `json:"joinCode,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
	MemberCount int       `json:"memberCount"`
	ExpertCount int       `json:"expertCount"`
	CaseIDs     []string  `json:"caseIds"`
	Role        BoardRole `json:"role"`
}

// BoardDetail is a board with the cases shared into it.
type BoardDetail struct {
	Board
	Cases []CaseListItem `json:"cases"`
}
