package models

import (
	"strings"
	"time"
)

// UserRole represents the roles issued by the identity provider.
// The order VIEWER < STUDENT < STAFF < ADMIN is for display only;
// authorization is decided by the capability table.
type UserRole string

const (
	RoleViewer  UserRole = "VIEWER"
	RoleStudent UserRole = "STUDENT"
	RoleStaff   UserRole = "STAFF"
	RoleAdmin   UserRole = "ADMIN"
)

// Valid reports whether r is one of the known roles.
func (r UserRole) Valid() bool {
	switch r {
	case RoleViewer, RoleStudent, RoleStaff, RoleAdmin:
		return true
	default:
		return false
	}
}

// ParseRole normalises raw into a known role.
func ParseRole(raw string) (UserRole, bool) {
	role := UserRole(strings.ToUpper(strings.TrimSpace(raw)))
	return role, role.Valid()
}

// DisplayRank orders roles for presentation.
func (r UserRole) DisplayRank() int {
	switch r {
	case RoleStudent:
		return 1
	case RoleStaff:
		return 2
	case RoleAdmin:
		return 3
	default:
		return 0
	}
}

// IsReviewer reports whether the role may hold a queue assignment.
func (r UserRole) IsReviewer() bool {
	return r == RoleStaff || r == RoleAdmin
}

// User mirrors the identity provider's directory entry.
type User struct {
	ID        string    `db:"id" json:"id"`
	Email     string    `db:"email" json:"email"`
	FullName  string    `db:"full_name" json:"fullName"`
	Role      UserRole  `db:"role" json:"role"`
	CreatedAt time.Time `db:"created_at" json:"createdAt"`
}

// Pagination contains pagination metadata returned in list responses.
type Pagination struct {
	Limit  int `json:"limit"`
	Offset int `json:"offset"`
	Count  int `json:"count"`
}
