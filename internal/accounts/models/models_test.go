package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "eventgate/pkg/domain-errors"
)

func TestRegisterRequest(t *testing.T) {
	valid := func() RegisterRequest {
		return RegisterRequest{
			FirstName: " Priya ", LastName: "Shah", Email: " Priya@Example.COM ",
			Phone: "9876543210", Role: "Volunteer",
		}
	}

	t.Run("normalises", func(t *testing.T) {
		req := valid()
		req.Normalize()
		require.NoError(t, req.Validate())
		assert.Equal(t, "Priya", req.FirstName)
		assert.Equal(t, "priya@example.com", req.Email)
		assert.Equal(t, "volunteer", req.Role)
	})

	tests := []struct {
		name   string
		mutate func(*RegisterRequest)
		msg    string
	}{
		{"missing first name", func(r *RegisterRequest) { r.FirstName = "" }, "firstName is required"},
		{"bad email", func(r *RegisterRequest) { r.Email = "nope" }, "email must be a valid email"},
		{"bad role", func(r *RegisterRequest) { r.Role = "guest" }, "role must be one of [admin volunteer]"},
		{"short phone", func(r *RegisterRequest) { r.Phone = "12" }, "phone must be at least 7"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := valid()
			tt.mutate(&req)
			req.Normalize()
			err := req.Validate()
			require.Error(t, err)
			assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
			assert.Equal(t, tt.msg, err.Error())
		})
	}
}

func TestSetPasswordRequest_Mismatch(t *testing.T) {
	req := SetPasswordRequest{Email: "a@example.com", Password: "longenough1", ConfirmPassword: "different11"}
	err := req.Validate()
	require.Error(t, err)
	assert.Equal(t, "confirmPassword must match password", err.Error())
}

func TestAccountCanSignIn(t *testing.T) {
	a := &Account{FirstLogin: true, Approved: true}
	assert.False(t, a.CanSignIn())
	a.FirstLogin = false
	assert.True(t, a.CanSignIn())
	a.Approved = false
	assert.False(t, a.CanSignIn())
}
