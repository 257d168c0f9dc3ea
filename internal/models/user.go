package models

import "github.com/google/uuid"

type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// Identity is the verified caller decoded from a bearer token.
type Identity struct {
	UserID uuid.UUID
	Email  string
	Role   Role
}

func (i *Identity) IsAdmin() bool {
	return i != nil && i.Role == RoleAdmin
}
