package models

import (
	"strings"

	"eventgate/pkg/validation"
)

type RegisterRequest struct {
	FirstName     string `json:"firstName" validate:"required,notblank,max=100"`
	LastName      string `json:"lastName" validate:"required,notblank,max=100"`
	Email         string `json:"email" validate:"required,email,max=254"`
	Phone         string `json:"phone" validate:"required,min=7,max=20"`
	WhatsAppPhone string `json:"whatsappPhone" validate:"omitempty,min=7,max=20"`
	Role          string `json:"role" validate:"required,oneof=admin volunteer"`
}

func (r *RegisterRequest) Normalize() {
	r.FirstName = strings.TrimSpace(r.FirstName)
	r.LastName = strings.TrimSpace(r.LastName)
	r.Email = NormalizeEmail(r.Email)
	r.Phone = strings.TrimSpace(r.Phone)
	r.WhatsAppPhone = strings.TrimSpace(r.WhatsAppPhone)
	r.Role = strings.ToLower(strings.TrimSpace(r.Role))
}

func (r *RegisterRequest) Validate() error {
	return validation.Validate(r)
}

// LoginRequest authenticates staff. NewPassword is only honoured on first login.
type LoginRequest struct {
	Email       string `json:"email" validate:"required,email"`
	Password    string `json:"password" validate:"required"`
	NewPassword string `json:"newPassword" validate:"omitempty,min=8,max=72"`
}

func (r *LoginRequest) Normalize() {
	r.Email = NormalizeEmail(r.Email)
}

func (r *LoginRequest) Validate() error {
	return validation.Validate(r)
}

type SetPasswordRequest struct {
	Email           string `json:"email" validate:"required,email"`
	Password        string `json:"password" validate:"required,min=8,max=72"`
	ConfirmPassword string `json:"confirmPassword" validate:"required,eqfield=Password"`
}

func (r *SetPasswordRequest) Normalize() {
	r.Email = NormalizeEmail(r.Email)
}

func (r *SetPasswordRequest) Validate() error {
	return validation.Validate(r)
}

type ForgotPasswordRequest struct {
	Email string `json:"email" validate:"required,email"`
}

func (r *ForgotPasswordRequest) Normalize() {
	r.Email = NormalizeEmail(r.Email)
}

func (r *ForgotPasswordRequest) Validate() error {
	return validation.Validate(r)
}

func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// LoginResult is the outcome of a login attempt.
type LoginResult struct {
	FirstLogin      bool
	Reset           bool
	PendingApproval bool
	Token           string
	Account         *Account
}
