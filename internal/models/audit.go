package models

import "time"

// Audit actions recorded for mutating requests.
const (
	AuditActionLogin         = "LOGIN"
	AuditActionLogout        = "LOGOUT"
	AuditActionSignUp        = "SIGN_UP"
	AuditActionPasswordReset = "PASSWORD_RESET"
	AuditActionCaseCreate    = "CASE_CREATE"
	AuditActionCaseUpdate    = "CASE_UPDATE"
	AuditActionCaseDelete    = "CASE_DELETE"
	AuditActionCaseShare     = "CASE_SHARE"
	AuditActionBoardCreate   = "BOARD_CREATE"
	AuditActionBoardJoin     = "BOARD_JOIN"
	AuditActionBoardLeave    = "BOARD_LEAVE"
	AuditActionOpinionSubmit = "OPINION_SUBMIT"
	AuditActionOpinionUpdate = "OPINION_UPDATE"
)

// AuditLog represents an audit trail record.
type AuditLog struct {
	ID         string    `db:"id" json:"id"`
	UserID     *string   `db:"user_id" json:"userId,omitempty"`
	Action     string    `db:"action" json:"action"`
	Resource   string    `db:"resource" json:"resource"`
	ResourceID *string   `db:"resource_id" json:"resourceId,omitempty"`
	Status     int       `db:"status" json:"status"`
	IPAddress  string    `db:"ip_address" json:"ipAddress"`
	UserAgent  string    `db:"user_agent" json:"userAgent"`
	CreatedAt  time.Time `db:"created_at" json:"createdAt"`
}
