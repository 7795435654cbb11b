package models

import "time"

// Profile holds editable clinician attributes keyed by user id.
type Profile struct {
	UserID       string    `json:"id"`
	FullName     *string   `json:"fullName,omitempty"`
	Profession   *string   `json:"profession,omitempty"`
	HospitalName *string   `json:"hospitalName,omitempty"`
	PhoneNumber  *string   `json:"phoneNumber,omitempty"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// DisplayName returns the profile name when set.
func (p *Profile) DisplayName() *string {
	if p == nil || p.FullName == nil || *p.FullName == "" {
		return nil
	}
	return p.FullName
}
