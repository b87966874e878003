package jwttoken

import (
	"testing"
	"time"

	dErrors "eventgate/pkg/domain-errors"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestService(now time.Time) *JWTService {
	s := NewJWTService("test-signing-key", "eventgate", time.Hour)
	s.now = func() time.Time { return now }
	return s
}

func TestGenerateAndValidate(t *testing.T) {
	now := time.Now()
	s := newTestService(now)

	token, err := s.GenerateStaffToken("acc-1", "admin@example.com", "admin")
	require.NoError(t, err)

	claims, err := s.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, "acc-1", claims.Subject)
	assert.Equal(t, "admin@example.com", claims.Email)
	assert.Equal(t, "admin", claims.Role)
	assert.WithinDuration(t, now.Add(time.Hour), claims.ExpiresAt.Time, time.Second)
}

func TestValidateToken_Expired(t *testing.T) {
	issuedAt := time.Now().Add(-2 * time.Hour)
	token, err := newTestService(issuedAt).GenerateStaffToken("acc-1", "v@example.com", "volunteer")
	require.NoError(t, err)

	_, err = newTestService(time.Now()).ValidateToken(token)
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeUnauthorized))
	assert.Equal(t, "token expired", err.Error())
}

func TestValidateToken_Rejects(t *testing.T) {
	s := newTestService(time.Now())

	t.Run("garbage", func(t *testing.T) {
		_, err := s.ValidateToken("not-a-jwt")
		assert.True(t, dErrors.HasCode(err, dErrors.CodeUnauthorized))
	})

	t.Run("wrong key", func(t *testing.T) {
		other := NewJWTService("other-key", "eventgate", time.Hour)
		token, err := other.GenerateStaffToken("acc-1", "v@example.com", "volunteer")
		require.NoError(t, err)
		_, err = s.ValidateToken(token)
		assert.Error(t, err)
	})

	t.Run("wrong issuer", func(t *testing.T) {
		other := NewJWTService("test-signing-key", "someone-else", time.Hour)
		token, err := other.GenerateStaffToken("acc-1", "v@example.com", "volunteer")
		require.NoError(t, err)
		_, err = s.ValidateToken(token)
		assert.Error(t, err)
	})

	t.Run("none algorithm", func(t *testing.T) {
		unsigned := jwt.NewWithClaims(jwt.SigningMethodNone, StaffClaims{Email: "x@example.com"})
		token, err := unsigned.SignedString(jwt.UnsafeAllowNoneSignatureType)
		require.NoError(t, err)
		_, err = s.ValidateToken(token)
		assert.Error(t, err)
	})
}

func TestGenerateStaffToken_RequiresIdentity(t *testing.T) {
	_, err := newTestService(time.Now()).GenerateStaffToken("", "", "admin")
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
}

func TestAdapter(t *testing.T) {
	s := newTestService(time.Now())
	token, err := s.GenerateStaffToken("acc-9", "v@example.com", "volunteer")
	require.NoError(t, err)

	staff, err := NewAdapter(s).ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, "acc-9", staff.AccountID)
	assert.Equal(t, "volunteer", staff.Role)
}
