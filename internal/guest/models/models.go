package models

import (
	"strings"
	"time"

	dErrors "eventgate/pkg/domain-errors"
	"eventgate/pkg/validation"
)

// Name holds the parts of a guest's name as printed on their pass.
type Name struct {
	FirstName  string `json:"firstName" yaml:"firstName" validate:"required,notblank,max=100"`
	MiddleName string `json:"middleName,omitempty" yaml:"middleName" validate:"max=100"`
	LastName   string `json:"lastName,omitempty" yaml:"lastName" validate:"max=100"`
}

func (n Name) Full() string {
	parts := make([]string, 0, 3)
	for _, p := range []string{n.FirstName, n.MiddleName, n.LastName} {
		if p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, " ")
}

// Profile is a registered guest keyed by the token printed in their QR code.
// It is read-only to the checkpoint flow.
type Profile struct {
	Token                string    `json:"token" yaml:"token" validate:"required,token"`
	Name                 Name      `json:"name" yaml:"name"`
	Age                  int       `json:"age,omitempty" yaml:"age" validate:"gte=0,lte=150"`
	Gender               string    `json:"gender,omitempty" yaml:"gender" validate:"max=32"`
	Email                string    `json:"email,omitempty" yaml:"email" validate:"omitempty,email"`
	PhoneNumber          string    `json:"phoneNumber,omitempty" yaml:"phoneNumber" validate:"max=32"`
	AlternatePhoneNumber string    `json:"alternatePhoneNumber,omitempty" yaml:"alternatePhoneNumber" validate:"max=32"`
	PhotoURL             string    `json:"photoUrl,omitempty" yaml:"photoUrl" validate:"omitempty,url"`
	Role                 string    `json:"role,omitempty" yaml:"role" validate:"max=32"`
	CreatedAt            time.Time `json:"-" yaml:"-"`
}

const DefaultRole = "guest"

func (p *Profile) Normalize() {
	p.Token = strings.TrimSpace(p.Token)
	p.Name.FirstName = strings.TrimSpace(p.Name.FirstName)
	p.Name.MiddleName = strings.TrimSpace(p.Name.MiddleName)
	p.Name.LastName = strings.TrimSpace(p.Name.LastName)
	p.Email = strings.ToLower(strings.TrimSpace(p.Email))
	if p.Role == "" {
		p.Role = DefaultRole
	}
}

func (p *Profile) Validate() error {
	if p == nil {
		return dErrors.New(dErrors.CodeValidation, "guest is required")
	}
	return validation.Validate(p)
}
