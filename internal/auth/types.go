package auth

import "errors"

// Role represents an authorisation tier for API callers.
type Role string

// Role constants.
const (
	// RoleReader may run named catalog queries and read the schema.
	RoleReader Role = "reader"

	// RoleWriter may additionally dispatch literal SQL.
	RoleWriter Role = "writer"

	// RoleAdmin may additionally change the schema (indexes, drops).
	RoleAdmin Role = "admin"
)

// ValidRoles is the set of roles a token may carry.
var ValidRoles = []Role{RoleReader, RoleWriter, RoleAdmin}

// IsValidRole returns true if r is one of ValidRoles.
func IsValidRole(r Role) bool {
	for _, v := range ValidRoles {
		if r == v {
			return true
		}
	}
	return false
}

// Domain errors.
var (
	ErrTokenInvalid = errors.New("invalid token")
	ErrInvalidRole  = errors.New("invalid role")
	ErrNoSecret     = errors.New("signing secret is empty")
	ErrForbidden    = errors.New("insufficient permissions")
)
