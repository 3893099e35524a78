package domain

import "time"

// Role classifies a user's privilege level.
type Role string

const (
	RoleAdmin Role = "ADMIN"
	RoleUser  Role = "USER"
)

// User represents a registered account in the identity store.
type User struct {
	ID               int64
	Name             string
	Email            string
	PasswordHash     string
	Role             Role
	RefreshTokenHash string
	CreatedAt        time.Time
	UpdatedAt        time.Time
}
