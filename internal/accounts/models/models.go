package models

import (
	"time"

	"github.com/google/uuid"
)

type Role string

const (
	RoleAdmin     Role = "admin"
	RoleVolunteer Role = "volunteer"
)

func (r Role) IsValid() bool {
	return r == RoleAdmin || r == RoleVolunteer
}

// Account is a staff member allowed to operate scanners.
// FirstLogin stays true until the temporary password is replaced.
// Admins are approved when they complete first login; volunteers need an admin.
type Account struct {
	ID            uuid.UUID
	FirstName     string
	LastName      string
	Email         string
	Phone         string
	WhatsAppPhone string
	Role          Role
	PasswordHash  string
	FirstLogin    bool
	Approved      bool
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

func (a *Account) FullName() string {
	if a.LastName == "" {
		return a.FirstName
	}
	return a.FirstName + " " + a.LastName
}

// CanSignIn reports whether the account may receive a staff token.
func (a *Account) CanSignIn() bool {
	return !a.FirstLogin && a.Approved
}

// Profile is the public view of an account.
type Profile struct {
	ID        string `json:"id"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Email     string `json:"email"`
	Role      Role   `json:"role"`
	Approved  bool   `json:"approved"`
}

func (a *Account) Profile() Profile {
	return Profile{
		ID:        a.ID.String(),
		FirstName: a.FirstName,
		LastName:  a.LastName,
		Email:     a.Email,
		Role:      a.Role,
		Approved:  a.Approved,
	}
}
