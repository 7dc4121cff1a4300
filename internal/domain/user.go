package domain

import (
	"time"

	"github.com/google/uuid"
)

const DefaultRole = "ROLE_USER"

// User is the authentication principal. Username and email are unique among
// non-deleted users.
type User struct {
	UserID        uuid.UUID
	Username      string
	Email         string
	PasswordHash  string
	Roles         []string
	Active        bool
	EmailVerified bool
	DeletedAt     *time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

func NewUser(username, email, passwordHash, role string, now time.Time) User {
	if role == "" {
		role = DefaultRole
	}
	return User{
		UserID:       uuid.New(),
		Username:     username,
		Email:        email,
		PasswordHash: passwordHash,
		Roles:        []string{role},
		Active:       true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

func (u User) HasRole(role string) bool {
	for _, r := range u.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// AddRole keeps Roles a set.
func (u *User) AddRole(role string) {
	if role == "" || u.HasRole(role) {
		return
	}
	u.Roles = append(u.Roles, role)
}

func (u User) IsDeleted() bool {
	return u.DeletedAt != nil
}
