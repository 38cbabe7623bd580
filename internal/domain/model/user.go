package model

import (
	"time"
)

const (
	RoleRecruiter = "recruiter"
	RoleAdmin     = "admin"
)

type User struct {
	ID             string    `json:"id"`
	Username       string    `json:"username"`
	Email          string    `json:"email"`
	HashedPassword string    `json:"-"` // Not exposed
	Role           string    `json:"role"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

func IsValidRole(role string) bool {
	return role == RoleAdmin || role == RoleRecruiter
}
