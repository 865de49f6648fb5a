package domain

import "time"

// Role is the closed set of roles a platform account can hold.
type Role string

const (
	RoleAdmin   Role = "admin"
	RoleTeacher Role = "teacher"
	RoleParent  Role = "parent"
)

// Valid reports whether the role belongs to the closed set.
func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleTeacher, RoleParent:
		return true
	}
	return false
}

// User represents a platform account that can authenticate.
type User struct {
	ID           int64
	Username     string
	PasswordHash string
	Name         string
	Role         Role
	Status       string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Principal is the authenticated identity attached to a request. Immutable
// once issued into a token.
type Principal struct {
	ID       int64
	Username string
	Role     Role
}

// Principal derives the identity carried in tokens for this user.
func (u User) Principal() Principal {
	return Principal{ID: u.ID, Username: u.Username, Role: u.Role}
}
