package models

import (
	"strings"
	"time"
)

// Role values. Role is never client-selectable: it is recomputed from the
// authenticated identity's email on every session.
const (
	RoleAdmin      = "admin"
	RoleSupervisor = "supervisor"
)

// Profile represents a user profile in the system (admin or supervisor).
// Supervisors double as field surveyors: they author quotations and can be
// assigned locked projects.
type Profile struct {
	UID       string    `gorm:"primaryKey" json:"uid"` // Auth0 user ID (from 'sub' claim)
	Email     string    `gorm:"uniqueIndex;not null" json:"email"`
	Name      string    `json:"name"` // empty until the profile is completed
	Role      string    `gorm:"not null;default:'supervisor'" json:"role"` // "admin" or "supervisor"
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName specifies the table name for the Profile model
func (Profile) TableName() string {
	return "profiles"
}

// RoleForEmail derives the role for an identity. The single configured admin
// address gets admin; everyone else is a supervisor.
func RoleForEmail(email, adminEmail string) string {
	if adminEmail != "" && strings.EqualFold(email, adminEmail) {
		return RoleAdmin
	}
	return RoleSupervisor
}

// IsPending reports whether the profile still needs its name filled in
// before the owner can proceed past intake.
func (p *Profile) IsPending() bool {
	return p.Name == ""
}
