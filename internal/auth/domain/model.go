// Package domain contains core types for user accounts and login.
package domain

import "time"

type Role string

const (
	RoleAdmin  Role = "admin"
	RoleSeller Role = "seller"
	RoleViewer Role = "viewer"
)

func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleSeller, RoleViewer:
		return true
	}
	return false
}

// User is an account as exposed outside the auth package. It never carries
// the stored credential.
type User struct {
	ID             int64      `json:"id"`
	Username       string     `json:"username"`
	Role           Role       `json:"role"`
	Active         bool       `json:"active"`
	MustChangePin  bool       `json:"must_change_pin"`
	FailedAttempts int        `json:"failed_attempts"`
	LockedUntil    *time.Time `json:"locked_until,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
}

// Account is a user together with its stored credential.
type Account struct {
	User
	Pin string
}

type CreateUserRequest struct {
	Username string
	Pin      string
	Role     Role
}

type ChangePinRequest struct {
	UserID  int64
	Current string
	Next    string
	Confirm string
}
