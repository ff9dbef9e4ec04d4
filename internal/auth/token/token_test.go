package token

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "simrelease/pkg/domain-errors"
)

func fixedService(at time.Time) *Service {
	s := NewService("test-signing-key", "simrelease", 24*time.Hour)
	s.now = func() time.Time { return at }
	return s
}

func TestIssueAndValidate(t *testing.T) {
	now := time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC)
	s := fixedService(now)

	issued, err := s.Issue("jdoe", "crm_it_team")
	require.NoError(t, err)
	assert.Equal(t, now.Add(24*time.Hour), issued.ExpiresAt)
	assert.NotEmpty(t, issued.ID)

	claims, err := s.Validate(issued.Value)
	require.NoError(t, err)
	assert.Equal(t, "jdoe", claims.Username())
	assert.Equal(t, "crm_it_team", claims.UserType)
	assert.Equal(t, issued.ID, claims.ID)
}

func TestValidate_Rejects(t *testing.T) {
	now := time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC)
	issuer := fixedService(now)
	issued, err := issuer.Issue("jdoe", "crm_it_team")
	require.NoError(t, err)

	t.Run("expired", func(t *testing.T) {
		_, err := fixedService(now.Add(25 * time.Hour)).Validate(issued.Value)
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeUnauthorized))
		assert.Contains(t, err.Error(), "expired")
	})

	t.Run("other signing key", func(t *testing.T) {
		other := NewService("another-key", "simrelease", time.Hour)
		other.now = issuer.now
		_, err := other.Validate(issued.Value)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeUnauthorized))
	})

	t.Run("other issuer", func(t *testing.T) {
		other := NewService("test-signing-key", "someone-else", time.Hour)
		other.now = issuer.now
		_, err := other.Validate(issued.Value)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeUnauthorized))
	})

	t.Run("none algorithm", func(t *testing.T) {
		unsigned, err := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{
			UserType:         "support1515",
			RegisteredClaims: jwt.RegisteredClaims{Subject: "jdoe", Issuer: "simrelease", ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour))},
		}).SignedString(jwt.UnsafeAllowNoneSignatureType)
		require.NoError(t, err)

		_, err = issuer.Validate(unsigned)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeUnauthorized))
	})

	t.Run("garbage", func(t *testing.T) {
		_, err := issuer.Validate("not-a-token")
		assert.True(t, dErrors.HasCode(err, dErrors.CodeUnauthorized))
	})
}

func TestMiddlewareAdapter(t *testing.T) {
	s := fixedService(time.Now())
	issued, err := s.Issue("jdoe", "roaming_team")
	require.NoError(t, err)

	claims, err := NewMiddlewareAdapter(s).ValidateToken(issued.Value)
	require.NoError(t, err)
	assert.Equal(t, "jdoe", claims.Username)
	assert.Equal(t, "roaming_team", claims.Role)
	assert.Equal(t, issued.ID, claims.TokenID)
}
